package agents

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/dyike/ArenaGo/consts"
	"github.com/dyike/ArenaGo/internal/models"
)

const (
	buyThreshold  = 0.3
	sellThreshold = -0.3
)

// Algo is the rule-based bot. It blends a technical score built from RSI
// and MACD with the snapshot sentiment.
type Algo struct{}

func NewAlgo() *Algo { return &Algo{} }

func (*Algo) BotType() consts.BotType { return consts.BotAlgo }

func (a *Algo) Decide(_ context.Context, in Input) models.ProposedDecision {
	if in.Snapshot == nil || in.Snapshot.Price <= 0 {
		return Degraded(consts.BotAlgo, fmt.Errorf("no usable snapshot"))
	}
	snap := in.Snapshot
	price := snap.Price

	var labels []string
	rsiPart := 0.0
	if snap.RSI != nil {
		switch {
		case *snap.RSI < 30:
			rsiPart = 1
			labels = append(labels, fmt.Sprintf("RSI oversold (%.1f)", *snap.RSI))
		case *snap.RSI > 70:
			rsiPart = -1
			labels = append(labels, fmt.Sprintf("RSI overbought (%.1f)", *snap.RSI))
		default:
			labels = append(labels, fmt.Sprintf("RSI neutre (%.1f)", *snap.RSI))
		}
	}
	macdPart := 0.0
	if snap.MACD != nil {
		if *snap.MACD > 0 {
			macdPart = 1
			labels = append(labels, "MACD positif")
		} else {
			macdPart = -1
			labels = append(labels, "MACD négatif")
		}
	}
	technical := (rsiPart + macdPart) / 3

	wt := float64(min(max(in.Simulation.WeightTechnical, 0), 100))
	ws := 100 - wt
	final := (technical*wt + snap.SentimentScore*ws) / (wt + ws)

	labels = append(labels, fmt.Sprintf("sentiment %.2f", snap.SentimentScore))
	summary := fmt.Sprintf("%s; score %.2f", strings.Join(labels, ", "), final)

	d := models.ProposedDecision{
		BotType: consts.BotAlgo,
		Debug: map[string]any{
			"technical_score":  technical,
			"sentiment_score":  snap.SentimentScore,
			"final_score":      final,
			"weight_technical": wt,
		},
	}
	if snap.TechnicalScore != nil {
		d.Debug["composite_technical_score"] = *snap.TechnicalScore
	}
	for key, v := range map[string]*string{
		"rsi_signal":  snap.RSISignal,
		"macd_trend":  snap.MACDTrend,
		"ema_trend":   snap.EMATrend,
		"bb_position": snap.BBPosition,
	} {
		if v != nil {
			d.Debug[key] = *v
		}
	}
	confidence := math.Min(math.Abs(final), 1)

	cash, shares := in.Portfolio.Cash, in.Portfolio.Shares
	switch {
	case final > buyThreshold && cash >= price:
		qty := math.Floor(cash / price / 3)
		if qty > 0 {
			d.TradingDecision = models.TradingDecision{Action: consts.ActionBuy, Quantity: qty, Reason: summary, Confidence: confidence}
			return d
		}
	case final < sellThreshold && shares > 0:
		qty := math.Floor(shares / 2)
		if qty > 0 {
			d.TradingDecision = models.TradingDecision{Action: consts.ActionSell, Quantity: qty, Reason: summary, Confidence: confidence}
			return d
		}
	}
	d.TradingDecision = models.TradingDecision{Action: consts.ActionHold, Reason: summary, Confidence: confidence}
	return d
}
