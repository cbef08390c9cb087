package dataflows

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/dyike/ArenaGo/internal/cache"
	"github.com/dyike/ArenaGo/internal/logging"
	"github.com/dyike/ArenaGo/internal/models"
)

const (
	DefaultFinnhubBaseURL = "https://finnhub.io/api/v1"

	// MaxNewsItems is how many headlines a snapshot keeps, newest first.
	MaxNewsItems = 10
	// NewsLookback is the company-news window.
	NewsLookback = 3 * 24 * time.Hour
	// CandleLookback is the daily candle window requested for indicators.
	CandleLookback = 120 * 24 * time.Hour
)

var (
	ErrNotConfigured = errors.New("finnhub API key not configured")
	ErrNoData        = errors.New("provider returned no data")
)

// FinnhubOptions configures the Finnhub client.
type FinnhubOptions struct {
	APIKey        string
	BaseURL       string
	Timeout       time.Duration
	RatePerMinute int
	CacheTTL      time.Duration
	Clock         cache.Clock
}

// FinnhubClient handles Finnhub API operations
type FinnhubClient struct {
	client  *resty.Client
	apiKey  string
	limiter *rate.Limiter
	news    *cache.TTLCache[string, []models.NewsItem]
	candles *cache.TTLCache[string, *models.Candles]
	log     *logrus.Entry
}

// NewFinnhubClient creates a new Finnhub client
func NewFinnhubClient(opts FinnhubOptions) *FinnhubClient {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultFinnhubBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.RatePerMinute <= 0 {
		opts.RatePerMinute = 60
	}

	client := resty.New()
	client.SetBaseURL(opts.BaseURL)
	client.SetTimeout(opts.Timeout)

	return &FinnhubClient{
		client:  client,
		apiKey:  opts.APIKey,
		limiter: rate.NewLimiter(rate.Limit(float64(opts.RatePerMinute)/60.0), 5),
		news:    cache.NewTTLCache[string, []models.NewsItem](opts.CacheTTL, opts.Clock),
		candles: cache.NewTTLCache[string, *models.Candles](opts.CacheTTL, opts.Clock),
		log:     logging.For("finnhub"),
	}
}

func (fc *FinnhubClient) get(ctx context.Context, path string, params map[string]string, out any) error {
	if fc.apiKey == "" {
		return ErrNotConfigured
	}
	if err := fc.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	resp, err := fc.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetQueryParam("token", fc.apiKey).
		SetResult(out).
		Get(path)
	if err != nil {
		return fmt.Errorf("finnhub %s: %w", path, err)
	}
	if resp.StatusCode() != 200 {
		return fmt.Errorf("finnhub %s: status %d: %s", path, resp.StatusCode(), resp.String())
	}
	return nil
}

// GetQuote returns the current price. Unknown symbols come back as 0.
func (fc *FinnhubClient) GetQuote(ctx context.Context, symbol string) (float64, error) {
	if err := ValidateSymbol(symbol); err != nil {
		return 0, err
	}
	var q FinnhubQuote
	if err := fc.get(ctx, "/quote", map[string]string{"symbol": NormalizeSymbol(symbol)}, &q); err != nil {
		return 0, err
	}
	return q.Current, nil
}

// GetCompanyNews gets news articles for a specific company, newest first,
// capped at MaxNewsItems.
func (fc *FinnhubClient) GetCompanyNews(ctx context.Context, symbol string, from, to time.Time) ([]models.NewsItem, error) {
	if err := ValidateSymbol(symbol); err != nil {
		return nil, err
	}
	symbol = NormalizeSymbol(symbol)

	key := fmt.Sprintf("%s:%s:%s", symbol, from.Format("2006-01-02"), to.Format("2006-01-02"))
	if items, ok := fc.news.Get(key); ok {
		return items, nil
	}

	var raw []FinnhubNews
	err := fc.get(ctx, "/company-news", map[string]string{
		"symbol": symbol,
		"from":   from.Format("2006-01-02"),
		"to":     to.Format("2006-01-02"),
	}, &raw)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(raw, func(i, j int) bool { return raw[i].DateTime > raw[j].DateTime })
	if len(raw) > MaxNewsItems {
		raw = raw[:MaxNewsItems]
	}

	items := make([]models.NewsItem, 0, len(raw))
	for _, n := range raw {
		if n.Headline == "" {
			continue
		}
		items = append(items, models.NewsItem{
			Headline: StripHTML(n.Headline),
			Summary:  StripHTML(n.Summary),
			URL:      n.URL,
			Source:   n.Source,
			Datetime: time.Unix(n.DateTime, 0).UTC(),
		})
	}
	fc.news.Set(key, items)
	fc.log.WithFields(logrus.Fields{"symbol": symbol, "count": len(items)}).Debug("fetched company news")
	return items, nil
}

// GetCandles fetches daily candles between from and to, oldest first.
func (fc *FinnhubClient) GetCandles(ctx context.Context, symbol string, from, to time.Time) (*models.Candles, error) {
	if err := ValidateSymbol(symbol); err != nil {
		return nil, err
	}
	symbol = NormalizeSymbol(symbol)

	key := fmt.Sprintf("%s:%s", symbol, to.Format("2006-01-02"))
	if c, ok := fc.candles.Get(key); ok {
		return c, nil
	}

	var raw FinnhubCandles
	err := fc.get(ctx, "/stock/candle", map[string]string{
		"symbol":     symbol,
		"resolution": "D",
		"from":       fmt.Sprintf("%d", from.Unix()),
		"to":         fmt.Sprintf("%d", to.Unix()),
	}, &raw)
	if err != nil {
		return nil, err
	}
	if raw.Status != "ok" || len(raw.Close) == 0 {
		return nil, fmt.Errorf("finnhub candles for %s: %w", symbol, ErrNoData)
	}

	n := len(raw.Close)
	if len(raw.High) != n || len(raw.Low) != n || len(raw.Timestamp) != n {
		return nil, fmt.Errorf("finnhub candles for %s: ragged arrays", symbol)
	}

	c := &models.Candles{
		Closes:     append([]float64(nil), raw.Close...),
		Highs:      append([]float64(nil), raw.High...),
		Lows:       append([]float64(nil), raw.Low...),
		Timestamps: make([]time.Time, n),
	}
	for i, ts := range raw.Timestamp {
		c.Timestamps[i] = time.Unix(ts, 0).UTC()
	}
	fc.candles.Set(key, c)
	return c, nil
}
