package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dyike/ArenaGo/internal/models"
)

const snapshotColumns = `id, simulation_id, symbol, price, hour_bucket, sentiment_score, sentiment_reason,
    rsi, macd, macd_signal, macd_histogram, ema9, ema21, ema50, ema_trend,
    bb_upper, bb_middle, bb_lower, bb_width, atr, atr_percent,
    technical_score, rsi_signal, macd_trend, bb_position,
    reddit_hype, stocktwits_bull, stocktwits_bear, fear_greed, fear_greed_label, created_at`

// SnapshotExistsForHour checks the hour bucket across all simulations.
func (s *Store) SnapshotExistsForHour(ctx context.Context, hourBucket string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM snapshots WHERE hour_bucket = ? LIMIT 1`, hourBucket).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check snapshot hour: %w", err)
	}
	return true, nil
}

// InsertSnapshot persists a snapshot. idemKey is nil for forced ticks,
// which are exempt from the per-hour uniqueness.
func (s *Store) InsertSnapshot(ctx context.Context, snap *models.MarketSnapshot, idemKey *string) error {
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO snapshots (`+snapshotColumns+`, idem_key)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, snap.ID, snap.SimulationID, snap.Symbol, snap.Price, snap.HourBucket, snap.SentimentScore, snap.SentimentReason,
		nullFloat(snap.RSI), nullFloat(snap.MACD), nullFloat(snap.MACDSignal), nullFloat(snap.MACDHistogram),
		nullFloat(snap.EMA9), nullFloat(snap.EMA21), nullFloat(snap.EMA50), nullString(snap.EMATrend),
		nullFloat(snap.BBUpper), nullFloat(snap.BBMiddle), nullFloat(snap.BBLower), nullFloat(snap.BBWidth),
		nullFloat(snap.ATR), nullFloat(snap.ATRPercent),
		nullFloat(snap.TechnicalScore), nullString(snap.RSISignal), nullString(snap.MACDTrend), nullString(snap.BBPosition),
		nullFloat(snap.RedditHype), nullFloat(snap.StocktwitsBull), nullFloat(snap.StocktwitsBear),
		nullFloat(snap.FearGreed), nullString(snap.FearGreedLabel), snap.CreatedAt, nullString(idemKey))
	if err != nil {
		return classify(fmt.Errorf("insert snapshot: %w", err))
	}
	return nil
}

func scanSnapshot(row interface{ Scan(...any) error }) (*models.MarketSnapshot, error) {
	var (
		snap                                models.MarketSnapshot
		rsi, macd, macdSignal, macdHist     sql.NullFloat64
		ema9, ema21, ema50                  sql.NullFloat64
		bbUpper, bbMiddle, bbLower, bbWidth sql.NullFloat64
		atr, atrPct, hype, bull, bear, fg   sql.NullFloat64
		technical                           sql.NullFloat64
		emaTrend, fgLabel                   sql.NullString
		rsiSignal, macdTrend, bbPosition    sql.NullString
	)
	err := row.Scan(&snap.ID, &snap.SimulationID, &snap.Symbol, &snap.Price, &snap.HourBucket,
		&snap.SentimentScore, &snap.SentimentReason,
		&rsi, &macd, &macdSignal, &macdHist, &ema9, &ema21, &ema50, &emaTrend,
		&bbUpper, &bbMiddle, &bbLower, &bbWidth, &atr, &atrPct,
		&technical, &rsiSignal, &macdTrend, &bbPosition,
		&hype, &bull, &bear, &fg, &fgLabel, &snap.CreatedAt)
	if err != nil {
		return nil, err
	}
	snap.RSI, snap.MACD, snap.MACDSignal, snap.MACDHistogram = floatPtr(rsi), floatPtr(macd), floatPtr(macdSignal), floatPtr(macdHist)
	snap.EMA9, snap.EMA21, snap.EMA50, snap.EMATrend = floatPtr(ema9), floatPtr(ema21), floatPtr(ema50), stringPtr(emaTrend)
	snap.BBUpper, snap.BBMiddle, snap.BBLower, snap.BBWidth = floatPtr(bbUpper), floatPtr(bbMiddle), floatPtr(bbLower), floatPtr(bbWidth)
	snap.ATR, snap.ATRPercent = floatPtr(atr), floatPtr(atrPct)
	snap.TechnicalScore = floatPtr(technical)
	snap.RSISignal, snap.MACDTrend, snap.BBPosition = stringPtr(rsiSignal), stringPtr(macdTrend), stringPtr(bbPosition)
	snap.RedditHype, snap.StocktwitsBull, snap.StocktwitsBear = floatPtr(hype), floatPtr(bull), floatPtr(bear)
	snap.FearGreed, snap.FearGreedLabel = floatPtr(fg), stringPtr(fgLabel)
	return &snap, nil
}

// Snapshots lists a simulation's snapshots oldest first.
func (s *Store) Snapshots(ctx context.Context, simulationID string) ([]models.MarketSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT `+snapshotColumns+`
FROM snapshots
WHERE simulation_id = ?
ORDER BY created_at ASC, rowid ASC
`, simulationID)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var out []models.MarketSnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		out = append(out, *snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list snapshots rows: %w", err)
	}
	return out, nil
}

// Snapshot loads the tick's snapshot inside the settlement transaction.
// A missing row is ErrNotFound.
func (t *Tx) Snapshot(ctx context.Context, simulationID, snapshotID string) (*models.MarketSnapshot, error) {
	row := t.tx.QueryRowContext(ctx, `
SELECT `+snapshotColumns+`
FROM snapshots
WHERE id = ? AND simulation_id = ?
`, snapshotID, simulationID)
	snap, err := scanSnapshot(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("snapshot %s: %w", snapshotID, ErrNotFound)
		}
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	return snap, nil
}
