package dataflows

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/go-resty/resty/v2"
)

const DefaultStocktwitsBaseURL = "https://api.stocktwits.com/api/2"

// StocktwitsClient reads the tagged bull/bear ratio of a symbol stream.
type StocktwitsClient struct {
	client *resty.Client
}

func NewStocktwitsClient(baseURL string, timeout time.Duration) *StocktwitsClient {
	if baseURL == "" {
		baseURL = DefaultStocktwitsBaseURL
	}
	client := resty.New()
	client.SetBaseURL(baseURL)
	client.SetTimeout(timeout)
	return &StocktwitsClient{client: client}
}

// BullBear returns the bullish and bearish shares (percent) of the
// messages that carry a sentiment tag.
func (sc *StocktwitsClient) BullBear(ctx context.Context, symbol string) (bull, bear float64, err error) {
	symbol = NormalizeSymbol(symbol)
	var out StocktwitsStream
	resp, err := sc.client.R().
		SetContext(ctx).
		SetResult(&out).
		ForceContentType("application/json").
		Get(fmt.Sprintf("/streams/symbol/%s.json", symbol))
	if err != nil {
		return 0, 0, fmt.Errorf("stocktwits %s: %w", symbol, err)
	}
	if resp.StatusCode() != 200 {
		return 0, 0, fmt.Errorf("stocktwits %s: status %d", symbol, resp.StatusCode())
	}

	var bulls, bears int
	for _, m := range out.Messages {
		if m.Entities.Sentiment == nil {
			continue
		}
		switch m.Entities.Sentiment.Basic {
		case "Bullish":
			bulls++
		case "Bearish":
			bears++
		}
	}
	tagged := bulls + bears
	if tagged == 0 {
		return 0, 0, fmt.Errorf("stocktwits %s: %w", symbol, ErrNoData)
	}
	bull = math.Round(float64(bulls)/float64(tagged)*10000) / 100
	return bull, math.Round((100-bull)*100) / 100, nil
}
