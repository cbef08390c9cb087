package settlement

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/dyike/ArenaGo/consts"
	"github.com/dyike/ArenaGo/internal/models"
)

// Holdings is the mutable part of a portfolio.
type Holdings struct {
	Cash       float64
	Shares     float64
	AvgPrice   *float64
	TotalValue float64
	ROI        float64
}

// FromPortfolio copies the holdings out of a portfolio row.
func FromPortfolio(p models.Portfolio) Holdings {
	return Holdings{Cash: p.Cash, Shares: p.Shares, AvgPrice: p.AvgPrice, TotalValue: p.TotalValue, ROI: p.ROI}
}

// Validation is the executable form of a proposed order.
type Validation struct {
	Action   consts.Action
	Quantity float64
	Reason   string
	// Skipped is set when the proposed order was downgraded to HOLD.
	Skipped bool
}

// Validate checks a proposed order against pre-tick holdings. It depends only
// on its arguments.
func Validate(d models.TradingDecision, h Holdings, price float64) Validation {
	v := Validation{Action: d.Action, Quantity: d.Quantity, Reason: d.Reason}

	switch d.Action {
	case consts.ActionBuy:
		cost := decimal.NewFromFloat(d.Quantity).Mul(decimal.NewFromFloat(price))
		cash := decimal.NewFromFloat(h.Cash)
		if d.Quantity <= 0 {
			return skip("quantité nulle, ordre ignoré")
		}
		if cost.GreaterThan(cash) {
			return skip(fmt.Sprintf("fonds insuffisants: besoin de $%s, disponible $%s",
				cost.StringFixed(2), cash.StringFixed(2)))
		}
	case consts.ActionSell:
		if h.Shares <= 0 || d.Quantity > h.Shares {
			return skip(fmt.Sprintf("actions insuffisantes: demandé %s, détenu %s",
				decimal.NewFromFloat(d.Quantity).String(), decimal.NewFromFloat(h.Shares).String()))
		}
		if d.Quantity <= 0 {
			return skip("quantité nulle, ordre ignoré")
		}
	default:
		v.Action = consts.ActionHold
		v.Quantity = 0
	}
	return v
}

func skip(reason string) Validation {
	return Validation{Action: consts.ActionHold, Quantity: 0, Reason: reason, Skipped: true}
}

// Apply settles an executed order at price and revalues the portfolio. HOLD
// only revalues.
func Apply(h Holdings, action consts.Action, qty, price, startCapital float64) Holdings {
	cash := decimal.NewFromFloat(h.Cash)
	shares := decimal.NewFromFloat(h.Shares)
	q := decimal.NewFromFloat(qty)
	p := decimal.NewFromFloat(price)
	avg := h.AvgPrice

	switch action {
	case consts.ActionBuy:
		newShares := shares.Add(q)
		cash = cash.Sub(q.Mul(p))
		basis := p.Mul(q)
		if avg != nil {
			basis = basis.Add(decimal.NewFromFloat(*avg).Mul(shares))
		}
		if newShares.IsPositive() {
			v := basis.Div(newShares).InexactFloat64()
			avg = &v
		}
		shares = newShares
	case consts.ActionSell:
		shares = shares.Sub(q)
		cash = cash.Add(q.Mul(p))
		// cost basis of the remaining shares does not move on a partial sale
	}

	total := cash.Add(shares.Mul(p))
	out := Holdings{
		Cash:       cash.InexactFloat64(),
		Shares:     shares.InexactFloat64(),
		AvgPrice:   avg,
		TotalValue: total.InexactFloat64(),
	}
	out.ROI = ROI(total, startCapital)
	return out
}

// ROI is (totalValue/startCapital - 1) * 100.
func ROI(total decimal.Decimal, startCapital float64) float64 {
	start := decimal.NewFromFloat(startCapital)
	if start.IsZero() {
		return 0
	}
	return total.Div(start).Sub(decimal.NewFromInt(1)).Mul(decimal.NewFromInt(100)).InexactFloat64()
}

// Settle validates and applies in one step. The returned Holdings equal the
// input when the order was not executed.
func Settle(d models.TradingDecision, h Holdings, price, startCapital float64) (Validation, Holdings) {
	v := Validate(d, h, price)
	if v.Action == consts.ActionHold {
		return v, h
	}
	return v, Apply(h, v.Action, v.Quantity, price, startCapital)
}
