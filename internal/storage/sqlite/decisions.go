package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dyike/ArenaGo/consts"
	"github.com/dyike/ArenaGo/internal/models"
)

const decisionColumns = `id, snapshot_id, simulation_id, bot_type, action, quantity, price, reason, confidence,
    prompt_tokens, completion_tokens, cost, debug, created_at`

// InsertDecision writes one audit row. It is called for every bot on
// every tick, including downgraded orders.
func (t *Tx) InsertDecision(ctx context.Context, d *models.BotDecision) error {
	d.CreatedAt = t.now
	_, err := t.tx.ExecContext(ctx, `
INSERT INTO decisions (`+decisionColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, d.ID, d.SnapshotID, d.SimulationID, string(d.BotType), string(d.Action), d.Quantity, d.Price, d.Reason,
		d.Confidence, d.Usage.PromptTokens, d.Usage.CompletionTokens, d.Usage.CostUSD, nullString(d.Debug), d.CreatedAt)
	if err != nil {
		return classify(fmt.Errorf("insert decision: %w", err))
	}
	return nil
}

func scanDecision(row interface{ Scan(...any) error }) (*models.BotDecision, error) {
	var (
		d       models.BotDecision
		botType string
		action  string
		debug   sql.NullString
	)
	err := row.Scan(&d.ID, &d.SnapshotID, &d.SimulationID, &botType, &action, &d.Quantity, &d.Price, &d.Reason,
		&d.Confidence, &d.Usage.PromptTokens, &d.Usage.CompletionTokens, &d.Usage.CostUSD, &debug, &d.CreatedAt)
	if err != nil {
		return nil, err
	}
	d.BotType = consts.BotType(botType)
	d.Action = consts.Action(action)
	d.Usage.TotalTokens = d.Usage.PromptTokens + d.Usage.CompletionTokens
	d.Debug = stringPtr(debug)
	return &d, nil
}

func (s *Store) queryDecisions(ctx context.Context, query string, args ...any) ([]models.BotDecision, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	defer rows.Close()

	var out []models.BotDecision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		out = append(out, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list decisions rows: %w", err)
	}
	return out, nil
}

// RecentDecisions returns a bot's last n decisions, oldest first.
func (s *Store) RecentDecisions(ctx context.Context, simulationID string, bot consts.BotType, n int) ([]models.BotDecision, error) {
	if n <= 0 {
		return nil, nil
	}
	recent, err := s.queryDecisions(ctx, `
SELECT `+decisionColumns+`
FROM decisions
WHERE simulation_id = ? AND bot_type = ?
ORDER BY created_at DESC, rowid DESC
LIMIT ?
`, simulationID, string(bot), n)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(recent)-1; i < j; i, j = i+1, j-1 {
		recent[i], recent[j] = recent[j], recent[i]
	}
	return recent, nil
}

// Decisions lists every decision of a simulation in tick order.
func (s *Store) Decisions(ctx context.Context, simulationID string) ([]models.BotDecision, error) {
	return s.queryDecisions(ctx, `
SELECT `+decisionColumns+`
FROM decisions
WHERE simulation_id = ?
ORDER BY created_at ASC, rowid ASC
`, simulationID)
}
