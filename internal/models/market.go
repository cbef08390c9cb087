package models

import "time"

// MarketSnapshot is the immutable market observation every bot reacts to
// during one tick.
type MarketSnapshot struct {
	ID           string    `json:"id"`
	SimulationID string    `json:"simulation_id"`
	Symbol       string    `json:"symbol"`
	Price        float64   `json:"price"`
	HourBucket   string    `json:"hour_bucket"`
	CreatedAt    time.Time `json:"created_at"`

	SentimentScore  float64 `json:"sentiment_score"`
	SentimentReason string  `json:"sentiment_reason"`

	RSI           *float64 `json:"rsi,omitempty"`
	MACD          *float64 `json:"macd,omitempty"`
	MACDSignal    *float64 `json:"macd_signal,omitempty"`
	MACDHistogram *float64 `json:"macd_histogram,omitempty"`
	EMA9          *float64 `json:"ema9,omitempty"`
	EMA21         *float64 `json:"ema21,omitempty"`
	EMA50         *float64 `json:"ema50,omitempty"`
	EMATrend      *string  `json:"ema_trend,omitempty"`
	BBUpper       *float64 `json:"bb_upper,omitempty"`
	BBMiddle      *float64 `json:"bb_middle,omitempty"`
	BBLower       *float64 `json:"bb_lower,omitempty"`
	BBWidth       *float64 `json:"bb_width,omitempty"`
	ATR           *float64 `json:"atr,omitempty"`
	ATRPercent    *float64 `json:"atr_percent,omitempty"`

	// TechnicalScore is the weighted composite in [-1, 1].
	TechnicalScore *float64 `json:"technical_score,omitempty"`
	RSISignal      *string  `json:"rsi_signal,omitempty"`
	MACDTrend      *string  `json:"macd_trend,omitempty"`
	BBPosition     *string  `json:"bb_position,omitempty"`

	RedditHype     *float64 `json:"reddit_hype,omitempty"`
	StocktwitsBull *float64 `json:"stocktwits_bull,omitempty"`
	StocktwitsBear *float64 `json:"stocktwits_bear,omitempty"`
	FearGreed      *float64 `json:"fear_greed,omitempty"`
	FearGreedLabel *string  `json:"fear_greed_label,omitempty"`
}

// Candles is a daily price history, oldest first.
type Candles struct {
	Closes     []float64   `json:"closes"`
	Highs      []float64   `json:"highs"`
	Lows       []float64   `json:"lows"`
	Timestamps []time.Time `json:"timestamps"`
}

func (c *Candles) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Closes)
}

// NewsItem is one headline from the market-data provider.
type NewsItem struct {
	Headline string    `json:"headline"`
	Summary  string    `json:"summary"`
	URL      string    `json:"url"`
	Source   string    `json:"source"`
	Datetime time.Time `json:"datetime"`
}

// SocialSignals are the optional crowd-sentiment inputs of a snapshot.
type SocialSignals struct {
	RedditHype     *float64
	StocktwitsBull *float64
	StocktwitsBear *float64
}

// FearGreed is the global fear/greed index reading.
type FearGreed struct {
	Score float64
	Label string
}
