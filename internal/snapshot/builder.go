// Package snapshot assembles the per-tick market observation every bot
// trades on.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dyike/ArenaGo/consts"
	"github.com/dyike/ArenaGo/internal/dataflows"
	"github.com/dyike/ArenaGo/internal/indicators"
	"github.com/dyike/ArenaGo/internal/logging"
	"github.com/dyike/ArenaGo/internal/models"
	"github.com/dyike/ArenaGo/internal/storage/sqlite"
	"github.com/dyike/ArenaGo/internal/utils"
	"github.com/dyike/ArenaGo/pkg/id"
)

var (
	ErrPriceUnavailable = errors.New("snapshot: price unavailable")
	// ErrAlreadyProcessed means a snapshot for this hour was written by a
	// concurrent tick.
	ErrAlreadyProcessed = errors.New("snapshot: hour already processed")
)

type MarketData interface {
	GetQuote(ctx context.Context, symbol string) (float64, error)
	GetCompanyNews(ctx context.Context, symbol string, from, to time.Time) ([]models.NewsItem, error)
}

type SocialSource interface {
	Signals(ctx context.Context, symbol string) (*models.SocialSignals, error)
}

type FearGreedSource interface {
	Index(ctx context.Context) (*models.FearGreed, error)
}

type SentimentScorer interface {
	Analyze(ctx context.Context, symbol string, news []models.NewsItem) (float64, string)
}

type Writer interface {
	InsertSnapshot(ctx context.Context, snap *models.MarketSnapshot, idemKey *string) error
}

// Sources are the providers a Builder reads from. Social and FearGreed
// may be nil.
type Sources struct {
	Market    MarketData
	Candles   dataflows.CandleSource
	Social    SocialSource
	FearGreed FearGreedSource
	Sentiment SentimentScorer
}

type Options struct {
	ProviderTimeout time.Duration
	SocialEnabled   bool
	Retry           utils.RetryConfig
}

type Builder struct {
	src    Sources
	writer Writer
	log    *logrus.Entry

	mu   sync.RWMutex
	opts Options
}

func NewBuilder(src Sources, writer Writer, opts Options) *Builder {
	if opts.ProviderTimeout <= 0 {
		opts.ProviderTimeout = 15 * time.Second
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = utils.DefaultRetryConfig()
	}
	opts.Retry.Retryable = sqlite.IsTransient
	return &Builder{src: src, writer: writer, opts: opts, log: logging.For("snapshot")}
}

// Reconfigure applies reloaded settings to subsequent builds.
func (b *Builder) Reconfigure(providerTimeout time.Duration, socialEnabled bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if providerTimeout > 0 {
		b.opts.ProviderTimeout = providerTimeout
	}
	b.opts.SocialEnabled = socialEnabled
}

func (b *Builder) options() Options {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.opts
}

type BuildOptions struct {
	Now time.Time
	// Force stores the snapshot without an idempotence key.
	Force bool
	// Price is a quote the caller already validated. When set the builder
	// does not fetch its own, so settlement uses the validated price.
	Price float64
}

// Result is the persisted snapshot plus the headlines the LLM agents read
// in the same tick.
type Result struct {
	Snapshot  *models.MarketSnapshot
	Headlines []models.NewsItem
}

// HourBucket truncates t to its UTC hour.
func HourBucket(t time.Time) string {
	return t.UTC().Format(consts.HourBucketLayout)
}

func (b *Builder) Build(ctx context.Context, sim models.SimulationConfig, opts BuildOptions) (*Result, error) {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()
	cfg := b.options()
	symbol := sim.Symbol

	var (
		wg        sync.WaitGroup
		price     float64
		priceErr  error
		news      []models.NewsItem
		candles   *models.Candles
		social    *models.SocialSignals
		fearGreed *models.FearGreed
	)
	log := b.log.WithFields(logrus.Fields{"simulation_id": sim.ID, "symbol": symbol})

	run := func(name string, fn func(ctx context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, cfg.ProviderTimeout)
			defer cancel()
			if err := fn(cctx); err != nil {
				log.WithError(err).Warnf("%s unavailable", name)
			}
		}()
	}

	if opts.Price > 0 {
		price = opts.Price
	} else {
		run("quote", func(ctx context.Context) error {
			price, priceErr = b.src.Market.GetQuote(ctx, symbol)
			if priceErr == nil && price <= 0 {
				priceErr = fmt.Errorf("no price for %s", symbol)
			}
			return priceErr
		})
	}
	run("news", func(ctx context.Context) (err error) {
		news, err = b.src.Market.GetCompanyNews(ctx, symbol, now.Add(-dataflows.NewsLookback), now)
		return err
	})
	if b.src.Candles != nil {
		run("candles", func(ctx context.Context) (err error) {
			candles, err = b.src.Candles.GetCandles(ctx, symbol, now.Add(-dataflows.CandleLookback), now)
			return err
		})
	}
	if b.src.Social != nil && cfg.SocialEnabled && sim.UseReddit {
		run("social", func(ctx context.Context) (err error) {
			social, err = b.src.Social.Signals(ctx, symbol)
			return err
		})
	}
	if b.src.FearGreed != nil {
		run("fear greed", func(ctx context.Context) (err error) {
			fearGreed, err = b.src.FearGreed.Index(ctx)
			return err
		})
	}
	wg.Wait()

	if priceErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrPriceUnavailable, priceErr)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	in := indicators.Input{Price: price}
	if candles != nil {
		in.Closes, in.Highs, in.Lows = candles.Closes, candles.Highs, candles.Lows
	}
	ind := indicators.Calculate(in)

	score, reason := 0.0, dataflows.NoNewsReason
	if b.src.Sentiment != nil {
		sctx, cancel := context.WithTimeout(ctx, cfg.ProviderTimeout)
		score, reason = b.src.Sentiment.Analyze(sctx, symbol, news)
		cancel()
	}

	snap := &models.MarketSnapshot{
		ID:              id.New(),
		SimulationID:    sim.ID,
		Symbol:          symbol,
		Price:           price,
		HourBucket:      HourBucket(now),
		CreatedAt:       now,
		SentimentScore:  score,
		SentimentReason: reason,
	}
	applyIndicators(snap, ind)
	if social != nil {
		snap.RedditHype = social.RedditHype
		snap.StocktwitsBull = social.StocktwitsBull
		snap.StocktwitsBear = social.StocktwitsBear
	}
	if fearGreed != nil {
		fg, label := fearGreed.Score, fearGreed.Label
		snap.FearGreed, snap.FearGreedLabel = &fg, &label
	}

	var idemKey *string
	if !opts.Force {
		key := snap.HourBucket
		idemKey = &key
	}
	_, err := utils.WithRetry(ctx, cfg.Retry, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, b.writer.InsertSnapshot(ctx, snap, idemKey)
	})
	if err != nil {
		if errors.Is(err, sqlite.ErrConflict) {
			return nil, ErrAlreadyProcessed
		}
		return nil, fmt.Errorf("persist snapshot: %w", err)
	}

	log.WithFields(logrus.Fields{"price": price, "sentiment": score, "headlines": len(news)}).Info("snapshot stored")
	return &Result{Snapshot: snap, Headlines: news}, nil
}

func applyIndicators(snap *models.MarketSnapshot, ind indicators.Result) {
	snap.RSI = ind.RSI
	if ind.MACD != nil {
		macd := ind.MACD.MACD
		snap.MACD = &macd
		snap.MACDSignal = ind.MACD.Signal
		snap.MACDHistogram = ind.MACD.Histogram
	}
	snap.EMA9, snap.EMA21, snap.EMA50 = ind.EMA9, ind.EMA21, ind.EMA50
	if ind.EMA9 != nil && ind.EMA21 != nil {
		snap.EMATrend = label(ind.EMATrend())
	}
	if bb := ind.Bollinger; bb != nil {
		upper, middle, lower, width := bb.Upper, bb.Middle, bb.Lower, bb.Width
		snap.BBUpper, snap.BBMiddle, snap.BBLower, snap.BBWidth = &upper, &middle, &lower, &width
		snap.BBPosition = label(ind.BollingerPosition())
	}
	snap.ATR, snap.ATRPercent = ind.ATR, ind.ATRPercent

	if ind.RSI != nil {
		snap.RSISignal = label(ind.RSISignal())
	}
	if ind.MACD != nil && ind.MACD.Histogram != nil {
		snap.MACDTrend = label(ind.MACDTrend())
	}
	if ind.Available() {
		score := ind.Score()
		snap.TechnicalScore = &score
	}
}

func label(s indicators.Signal) *string {
	v := string(s)
	return &v
}
