package dataflows

import (
	"context"
	"fmt"
	"time"

	finance "github.com/piquette/finance-go"
	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"

	"github.com/dyike/ArenaGo/internal/models"
)

// CandleSource yields daily candles, oldest first.
type CandleSource interface {
	GetCandles(ctx context.Context, symbol string, from, to time.Time) (*models.Candles, error)
}

// YahooFinanceClient is the fallback candle source.
type YahooFinanceClient struct {
	fetch func(*chart.Params) ([]*finance.ChartBar, error)
}

// NewYahooFinanceClient creates a new Yahoo Finance client
func NewYahooFinanceClient() *YahooFinanceClient {
	return &YahooFinanceClient{fetch: fetchChart}
}

func fetchChart(params *chart.Params) ([]*finance.ChartBar, error) {
	iter := chart.Get(params)
	var bars []*finance.ChartBar
	for iter.Next() {
		bars = append(bars, iter.Bar())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return bars, nil
}

// GetCandles gets daily bars for a symbol. finance-go has no context
// support, so cancellation abandons the in-flight request.
func (yf *YahooFinanceClient) GetCandles(ctx context.Context, symbol string, from, to time.Time) (*models.Candles, error) {
	if err := ValidateSymbol(symbol); err != nil {
		return nil, err
	}
	symbol = NormalizeSymbol(symbol)

	params := &chart.Params{
		Symbol:   symbol,
		Start:    datetime.New(&from),
		End:      datetime.New(&to),
		Interval: datetime.OneDay,
	}

	type result struct {
		bars []*finance.ChartBar
		err  error
	}
	done := make(chan result, 1)
	go func() {
		bars, err := yf.fetch(params)
		done <- result{bars, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("failed to get historical data for %s: %w", symbol, r.err)
		}
		c := barsToCandles(r.bars)
		if c.Len() == 0 {
			return nil, fmt.Errorf("yahoo candles for %s: %w", symbol, ErrNoData)
		}
		return c, nil
	}
}

func barsToCandles(bars []*finance.ChartBar) *models.Candles {
	c := &models.Candles{}
	for _, bar := range bars {
		if bar == nil || bar.Close.IsZero() {
			continue
		}
		c.Closes = append(c.Closes, bar.Close.InexactFloat64())
		c.Highs = append(c.Highs, bar.High.InexactFloat64())
		c.Lows = append(c.Lows, bar.Low.InexactFloat64())
		c.Timestamps = append(c.Timestamps, time.Unix(int64(bar.Timestamp), 0).UTC())
	}
	return c
}

// FallbackCandles asks Primary first and switches to Fallback when the
// primary history is too short to compute indicators.
type FallbackCandles struct {
	Primary   CandleSource
	Fallback  CandleSource
	MinCloses int
}

func (f FallbackCandles) GetCandles(ctx context.Context, symbol string, from, to time.Time) (*models.Candles, error) {
	primary, perr := f.Primary.GetCandles(ctx, symbol, from, to)
	if perr == nil && primary.Len() >= f.MinCloses {
		return primary, nil
	}
	if f.Fallback == nil {
		if perr != nil {
			return nil, perr
		}
		return primary, nil
	}

	fallback, ferr := f.Fallback.GetCandles(ctx, symbol, from, to)
	switch {
	case ferr == nil && fallback.Len() > primary.Len():
		return fallback, nil
	case perr == nil:
		return primary, nil
	case ferr == nil:
		return fallback, nil
	default:
		return nil, fmt.Errorf("candles unavailable: primary: %v; fallback: %w", perr, ferr)
	}
}
