package indicators

import "math"

type Signal string

const (
	Bullish    Signal = "BULLISH"
	Bearish    Signal = "BEARISH"
	Neutral    Signal = "NEUTRAL"
	Oversold   Signal = "OVERSOLD"
	Overbought Signal = "OVERBOUGHT"
	Above      Signal = "ABOVE"
	Below      Signal = "BELOW"
	Middle     Signal = "MIDDLE"
)

// Composite score weights.
const (
	weightRSI       = 0.25
	weightMACD      = 0.25
	weightEMA       = 0.30
	weightBollinger = 0.20
)

// RSISignal classifies RSI: below 30 oversold, above 70 overbought.
func (r Result) RSISignal() Signal {
	if r.RSI == nil {
		return Neutral
	}
	switch {
	case *r.RSI < 30:
		return Oversold
	case *r.RSI > 70:
		return Overbought
	}
	return Neutral
}

// MACDTrend is bullish on a histogram crossover above zero or a rising
// positive histogram, bearish on the mirror.
func (r Result) MACDTrend() Signal {
	if r.MACD == nil || r.MACD.Histogram == nil {
		return Neutral
	}
	h := *r.MACD.Histogram
	if r.MACD.PrevHistogram == nil {
		return Neutral
	}
	prev := *r.MACD.PrevHistogram

	switch {
	case prev <= 0 && h > 0:
		return Bullish
	case h > 0 && h > prev:
		return Bullish
	case prev >= 0 && h < 0:
		return Bearish
	case h < 0 && h < prev:
		return Bearish
	}
	return Neutral
}

// EMATrend requires the short EMAs stacked in order, and the 50 EMA too when
// it is known.
func (r Result) EMATrend() Signal {
	if r.EMA9 == nil || r.EMA21 == nil {
		return Neutral
	}
	e9, e21 := *r.EMA9, *r.EMA21
	if e9 > e21 && (r.EMA50 == nil || e21 > *r.EMA50) {
		return Bullish
	}
	if e9 < e21 && (r.EMA50 == nil || e21 < *r.EMA50) {
		return Bearish
	}
	return Neutral
}

// BollingerPosition places the current price relative to the bands.
func (r Result) BollingerPosition() Signal {
	if r.Bollinger == nil {
		return Middle
	}
	switch {
	case r.Price > r.Bollinger.Upper:
		return Above
	case r.Price < r.Bollinger.Lower:
		return Below
	}
	return Middle
}

// Available reports whether at least one indicator could be computed.
func (r Result) Available() bool {
	return r.RSI != nil || (r.MACD != nil && r.MACD.Histogram != nil) ||
		(r.EMA9 != nil && r.EMA21 != nil) || r.Bollinger != nil
}

// Score is the composite technical score in [-1, 1], normalized over the
// weights of the indicators that are available.
func (r Result) Score() float64 {
	var total, weights float64

	if r.RSI != nil {
		weights += weightRSI
		switch r.RSISignal() {
		case Oversold:
			total += weightRSI
		case Overbought:
			total -= weightRSI
		}
	}
	if r.MACD != nil && r.MACD.Histogram != nil {
		weights += weightMACD
		switch r.MACDTrend() {
		case Bullish:
			total += weightMACD
		case Bearish:
			total -= weightMACD
		}
	}
	if r.EMA9 != nil && r.EMA21 != nil {
		weights += weightEMA
		switch r.EMATrend() {
		case Bullish:
			total += weightEMA
		case Bearish:
			total -= weightEMA
		}
	}
	if r.Bollinger != nil {
		weights += weightBollinger
		switch r.BollingerPosition() {
		case Below:
			total += weightBollinger
		case Above:
			total -= weightBollinger
		}
	}

	if weights == 0 {
		return 0
	}
	return math.Max(-1, math.Min(1, total/weights))
}
