package settlement

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyike/ArenaGo/consts"
	"github.com/dyike/ArenaGo/internal/models"
)

func fptr(v float64) *float64 { return &v }

func TestValidateBuyInsufficientFunds(t *testing.T) {
	h := Holdings{Cash: 100, Shares: 0, TotalValue: 100}
	d := models.TradingDecision{Action: consts.ActionBuy, Quantity: 5, Reason: "go long"}

	v, after := Settle(d, h, 50, 100)

	assert.True(t, v.Skipped)
	assert.Equal(t, consts.ActionHold, v.Action)
	assert.Equal(t, 0.0, v.Quantity)
	assert.Contains(t, v.Reason, "fonds insuffisants")
	assert.Contains(t, v.Reason, "250.00")
	assert.Contains(t, v.Reason, "100.00")
	assert.Equal(t, h, after)
}

func TestValidateSellInsufficientShares(t *testing.T) {
	tests := []struct {
		name   string
		shares float64
		qty    float64
	}{
		{"no position", 0, 1},
		{"more than held", 3, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Validate(models.TradingDecision{Action: consts.ActionSell, Quantity: tt.qty}, Holdings{Cash: 10, Shares: tt.shares}, 20)
			assert.True(t, v.Skipped)
			assert.Equal(t, consts.ActionHold, v.Action)
			assert.Contains(t, v.Reason, "actions insuffisantes")
		})
	}
}

func TestValidateExecutable(t *testing.T) {
	v := Validate(models.TradingDecision{Action: consts.ActionBuy, Quantity: 2, Reason: "cheap"}, Holdings{Cash: 100}, 50)
	assert.False(t, v.Skipped)
	assert.Equal(t, consts.ActionBuy, v.Action)
	assert.Equal(t, 2.0, v.Quantity)
	assert.Equal(t, "cheap", v.Reason)

	hold := Validate(models.TradingDecision{Action: consts.ActionHold, Quantity: 9, Reason: "wait"}, Holdings{Cash: 100}, 50)
	assert.False(t, hold.Skipped)
	assert.Equal(t, 0.0, hold.Quantity)
	assert.Equal(t, "wait", hold.Reason)
}

func TestApplyBuyWeightedAverage(t *testing.T) {
	h := Holdings{Cash: 1000, Shares: 10, AvgPrice: fptr(40)}

	after := Apply(h, consts.ActionBuy, 10, 60, 1400)

	assert.InDelta(t, 20, after.Shares, 1e-9)
	assert.InDelta(t, 400, after.Cash, 1e-9)
	require.NotNil(t, after.AvgPrice)
	assert.InDelta(t, 50, *after.AvgPrice, 1e-9)
	assert.InDelta(t, 1600, after.TotalValue, 1e-9)
	assert.InDelta(t, (1600.0/1400-1)*100, after.ROI, 1e-9)
}

func TestApplyFirstBuySetsAverage(t *testing.T) {
	after := Apply(Holdings{Cash: 500}, consts.ActionBuy, 4, 25, 500)
	require.NotNil(t, after.AvgPrice)
	assert.InDelta(t, 25, *after.AvgPrice, 1e-9)
	assert.InDelta(t, 0, after.ROI, 1e-9)
}

func TestApplySellKeepsAverage(t *testing.T) {
	h := Holdings{Cash: 0, Shares: 10, AvgPrice: fptr(40)}

	after := Apply(h, consts.ActionSell, 5, 50, 400)

	assert.InDelta(t, 5, after.Shares, 1e-9)
	assert.InDelta(t, 250, after.Cash, 1e-9)
	require.NotNil(t, after.AvgPrice)
	assert.InDelta(t, 40, *after.AvgPrice, 1e-9)
	assert.InDelta(t, 500, after.TotalValue, 1e-9)
	assert.InDelta(t, 25, after.ROI, 1e-9)
}

// Value is conserved at the execution price and holdings never go negative.
func TestSettleConservationAndAffordability(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	const start = 10000.0
	h := Holdings{Cash: start, TotalValue: start}

	for i := 0; i < 500; i++ {
		price := 5 + rng.Float64()*200
		action := []consts.Action{consts.ActionBuy, consts.ActionSell, consts.ActionHold}[rng.Intn(3)]
		qty := float64(rng.Intn(80))
		before := h

		v, after := Settle(models.TradingDecision{Action: action, Quantity: qty}, h, price, start)

		assert.GreaterOrEqual(t, after.Cash, -1e-9)
		assert.GreaterOrEqual(t, after.Shares, 0.0)
		assert.InDelta(t, before.Cash+before.Shares*price, after.Cash+after.Shares*price, 1e-6)

		switch v.Action {
		case consts.ActionBuy:
			assert.InDelta(t, before.Shares+qty, after.Shares, 1e-9)
		case consts.ActionSell:
			assert.InDelta(t, before.Shares-qty, after.Shares, 1e-9)
		case consts.ActionHold:
			assert.Equal(t, before, after)
		}
		h = after
	}
}
