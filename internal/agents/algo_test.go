package agents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dyike/ArenaGo/consts"
	"github.com/dyike/ArenaGo/internal/models"
)

func fp(v float64) *float64 { return &v }

func algoInput(rsi, macd *float64, sentiment float64, weight int, cash, shares float64) Input {
	return Input{
		Simulation: models.SimulationConfig{ID: "sim", WeightTechnical: weight},
		Snapshot:   &models.MarketSnapshot{Symbol: "AAPL", Price: 100, RSI: rsi, MACD: macd, SentimentScore: sentiment},
		Portfolio:  models.Portfolio{BotType: consts.BotAlgo, Cash: cash, Shares: shares},
	}
}

func TestAlgoCompositeScoreBelowThresholdHolds(t *testing.T) {
	d := NewAlgo().Decide(context.Background(), algoInput(fp(25), fp(-3), 0.5, 60, 10000, 0))
	assert.Equal(t, consts.ActionHold, d.Action)
	assert.Zero(t, d.Quantity)
	assert.InDelta(t, 0.2, d.Debug["final_score"], 1e-9)
	assert.InDelta(t, 0.2, d.Confidence, 1e-9)
	assert.Contains(t, d.Reason, "RSI oversold")
	assert.Contains(t, d.Reason, "MACD négatif")
}

func TestAlgoDebugCarriesSnapshotSignals(t *testing.T) {
	in := algoInput(fp(25), fp(1), 0, 50, 10000, 0)
	trend, pos := "BULLISH", "BELOW"
	in.Snapshot.TechnicalScore = fp(0.7)
	in.Snapshot.MACDTrend, in.Snapshot.BBPosition = &trend, &pos

	d := NewAlgo().Decide(context.Background(), in)
	assert.Equal(t, 0.7, d.Debug["composite_technical_score"])
	assert.Equal(t, "BULLISH", d.Debug["macd_trend"])
	assert.Equal(t, "BELOW", d.Debug["bb_position"])
	assert.NotContains(t, d.Debug, "rsi_signal")
}

func TestAlgoBuysOneThirdOfAffordable(t *testing.T) {
	// technical (1+1)/3, weight 100 -> 0.667
	d := NewAlgo().Decide(context.Background(), algoInput(fp(20), fp(2), 0, 100, 10000, 0))
	assert.Equal(t, consts.ActionBuy, d.Action)
	assert.Equal(t, 33.0, d.Quantity)
	assert.Contains(t, d.Reason, "MACD positif")
}

func TestAlgoBuySkippedWhenQuantityRoundsToZero(t *testing.T) {
	d := NewAlgo().Decide(context.Background(), algoInput(fp(20), fp(2), 0, 100, 250, 0))
	assert.Equal(t, consts.ActionHold, d.Action)

	d = NewAlgo().Decide(context.Background(), algoInput(fp(20), fp(2), 0, 100, 50, 0))
	assert.Equal(t, consts.ActionHold, d.Action)
}

func TestAlgoSellsHalf(t *testing.T) {
	d := NewAlgo().Decide(context.Background(), algoInput(fp(80), fp(-1), -1, 50, 0, 7))
	assert.Equal(t, consts.ActionSell, d.Action)
	assert.Equal(t, 3.0, d.Quantity)
	assert.Contains(t, d.Reason, "RSI overbought")

	d = NewAlgo().Decide(context.Background(), algoInput(fp(80), fp(-1), -1, 50, 0, 1))
	assert.Equal(t, consts.ActionHold, d.Action)

	d = NewAlgo().Decide(context.Background(), algoInput(fp(80), fp(-1), -1, 50, 0, 0))
	assert.Equal(t, consts.ActionHold, d.Action)
}

func TestAlgoMissingIndicatorsUsesSentiment(t *testing.T) {
	d := NewAlgo().Decide(context.Background(), algoInput(nil, nil, 0.8, 0, 1000, 0))
	assert.Equal(t, consts.ActionBuy, d.Action)
	assert.Equal(t, 3.0, d.Quantity)
	assert.InDelta(t, 0.8, d.Confidence, 1e-9)
}

func TestAlgoNeverOverspends(t *testing.T) {
	for _, cash := range []float64{0, 99.99, 100, 301, 1e6} {
		d := NewAlgo().Decide(context.Background(), algoInput(fp(10), fp(5), 1, 50, cash, 0))
		assert.LessOrEqual(t, d.Quantity*100, cash)
	}
}

func TestAlgoWithoutSnapshotDegrades(t *testing.T) {
	d := NewAlgo().Decide(context.Background(), Input{})
	assert.Equal(t, consts.ActionHold, d.Action)
	assert.Equal(t, ErrorReason, d.Reason)
}
