package indicators

import (
	"math"
)

// MinCloses is the shortest history that produces indicator values.
const MinCloses = 30

const (
	rsiPeriod    = 14
	macdFast     = 12
	macdSlow     = 26
	macdSignal   = 9
	bollPeriod   = 20
	bollStdDevs  = 2.0
	atrPeriod    = 14
	emaLongRange = 50
)

// Input is an ordered (oldest first) price history plus the current quote.
// Highs and Lows are optional; ATR is only computed when both line up with
// Closes.
type Input struct {
	Closes []float64
	Highs  []float64
	Lows   []float64
	Price  float64
}

type MACD struct {
	MACD      float64
	Signal    *float64
	Histogram *float64
	// previous histogram value, used for crossover detection
	PrevHistogram *float64
}

type Bollinger struct {
	Upper  float64
	Middle float64
	Lower  float64
	Width  float64
}

// Result holds every indicator; nil means "not enough data".
type Result struct {
	Price      float64
	RSI        *float64
	MACD       *MACD
	EMA9       *float64
	EMA21      *float64
	EMA50      *float64
	Bollinger  *Bollinger
	ATR        *float64
	ATRPercent *float64
}

// Calculate computes all indicators. Fewer than MinCloses closes yields an
// empty Result, which scores as neutral.
func Calculate(in Input) Result {
	res := Result{Price: in.Price}
	closes := in.Closes
	if len(closes) < MinCloses {
		return res
	}
	if res.Price <= 0 {
		res.Price = closes[len(closes)-1]
	}

	if v, ok := RSI(closes, rsiPeriod); ok {
		res.RSI = &v
	}
	res.MACD = calculateMACD(closes)

	if v, ok := lastEMA(closes, 9); ok {
		res.EMA9 = &v
	}
	if v, ok := lastEMA(closes, 21); ok {
		res.EMA21 = &v
	}
	if len(closes) >= emaLongRange {
		if v, ok := lastEMA(closes, emaLongRange); ok {
			res.EMA50 = &v
		}
	}

	if b, ok := BollingerBands(closes, bollPeriod, bollStdDevs); ok {
		res.Bollinger = &b
	}

	if len(in.Highs) == len(closes) && len(in.Lows) == len(closes) {
		if v, ok := ATR(in.Highs, in.Lows, closes, atrPeriod); ok {
			res.ATR = &v
			if res.Price > 0 {
				pct := v / res.Price * 100
				res.ATRPercent = &pct
			}
		}
	}

	return res
}

// EMA returns the exponential moving average series, seeded with the SMA of
// the first period values. Element i corresponds to values[period-1+i].
func EMA(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return nil
	}

	multiplier := 2.0 / (float64(period) + 1.0)
	out := make([]float64, 0, len(values)-period+1)

	ema := sum(values[:period]) / float64(period)
	out = append(out, ema)
	for i := period; i < len(values); i++ {
		ema = (values[i] * multiplier) + (ema * (1 - multiplier))
		out = append(out, ema)
	}
	return out
}

func lastEMA(values []float64, period int) (float64, bool) {
	series := EMA(values, period)
	if len(series) == 0 {
		return 0, false
	}
	return series[len(series)-1], true
}

// RSI returns the latest Wilder-smoothed relative strength index.
func RSI(closes []float64, period int) (float64, bool) {
	if len(closes) < period+1 {
		return 0, false
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss -= change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	for i := period + 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		var gain, loss float64
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	if avgLoss == 0 {
		if avgGain == 0 {
			return 50, true
		}
		return 100, true
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs)), true
}

func calculateMACD(closes []float64) *MACD {
	fast := EMA(closes, macdFast)
	slow := EMA(closes, macdSlow)
	if len(slow) == 0 {
		return nil
	}

	// fast[i] is aligned to closes[macdFast-1+i]; slow[j] to closes[macdSlow-1+j].
	offset := macdSlow - macdFast
	line := make([]float64, len(slow))
	for j := range slow {
		line[j] = fast[j+offset] - slow[j]
	}

	out := &MACD{MACD: line[len(line)-1]}
	signal := EMA(line, macdSignal)
	if len(signal) == 0 {
		return out
	}

	n := len(signal)
	sig := signal[n-1]
	hist := line[len(line)-1] - sig
	out.Signal = &sig
	out.Histogram = &hist
	if n >= 2 {
		prev := line[len(line)-2] - signal[n-2]
		out.PrevHistogram = &prev
	}
	return out
}

// BollingerBands computes SMA +/- k population standard deviations over the
// last period closes.
func BollingerBands(closes []float64, period int, k float64) (Bollinger, bool) {
	if len(closes) < period {
		return Bollinger{}, false
	}
	window := closes[len(closes)-period:]
	sma := sum(window) / float64(period)

	var variance float64
	for _, c := range window {
		diff := c - sma
		variance += diff * diff
	}
	variance /= float64(period)
	stdDev := math.Sqrt(variance)

	b := Bollinger{
		Upper:  sma + k*stdDev,
		Middle: sma,
		Lower:  sma - k*stdDev,
	}
	if sma != 0 {
		b.Width = (b.Upper - b.Lower) / sma
	}
	return b, true
}

// ATR returns the Wilder-smoothed average true range.
func ATR(highs, lows, closes []float64, period int) (float64, bool) {
	if len(closes) < period+1 || len(highs) != len(closes) || len(lows) != len(closes) {
		return 0, false
	}

	trueRanges := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		tr1 := highs[i] - lows[i]
		tr2 := math.Abs(highs[i] - closes[i-1])
		tr3 := math.Abs(lows[i] - closes[i-1])
		trueRanges = append(trueRanges, math.Max(tr1, math.Max(tr2, tr3)))
	}

	atr := sum(trueRanges[:period]) / float64(period)
	for i := period; i < len(trueRanges); i++ {
		atr = (atr*float64(period-1) + trueRanges[i]) / float64(period)
	}
	return atr, true
}

func sum(values []float64) float64 {
	total := 0.0
	for _, v := range values {
		total += v
	}
	return total
}
