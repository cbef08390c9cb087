package cli

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/dyike/ArenaGo/config"
	"github.com/dyike/ArenaGo/internal/agents"
	"github.com/dyike/ArenaGo/internal/calendar"
	"github.com/dyike/ArenaGo/internal/dataflows"
	"github.com/dyike/ArenaGo/internal/events"
	"github.com/dyike/ArenaGo/internal/indicators"
	"github.com/dyike/ArenaGo/internal/logging"
	"github.com/dyike/ArenaGo/internal/service"
	"github.com/dyike/ArenaGo/internal/snapshot"
	"github.com/dyike/ArenaGo/internal/storage/sqlite"
	"github.com/dyike/ArenaGo/internal/trading"
)

// app is the fully wired arena. Components that read settings per call go
// through mgr so that config reloads reach them.
type app struct {
	mgr          *config.Manager
	store        *sqlite.Store
	builder      *snapshot.Builder
	publisher    events.Publisher
	orchestrator *trading.Orchestrator
	service      *service.Service
	log          *logrus.Entry
}

func newApp(ctx context.Context, mgr *config.Manager) (*app, error) {
	cfg := mgr.Get()
	log := logging.For("app")

	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}
	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	finnhub := dataflows.NewFinnhubClient(dataflows.FinnhubOptions{
		APIKey:        cfg.FinnhubAPIKey,
		Timeout:       cfg.ProviderTimeout.Std(),
		RatePerMinute: cfg.FinnhubRatePerMinute,
		CacheTTL:      cfg.MetadataCacheTTL.Std(),
	})
	if cfg.FinnhubAPIKey == "" {
		log.Warn("finnhub_api_key is empty: quotes will fail and ticks report an invalid symbol")
	}
	candles := dataflows.FallbackCandles{
		Primary:   finnhub,
		Fallback:  dataflows.NewYahooFinanceClient(),
		MinCloses: indicators.MinCloses,
	}
	social := dataflows.NewSocialClient(
		dataflows.NewRedditClient("", cfg.RedditUserAgent, cfg.ProviderTimeout.Std()),
		dataflows.NewStocktwitsClient("", cfg.ProviderTimeout.Std()),
	)

	factory := agents.NewModelFactory(agents.ModelFactoryConfig{
		Provider: cfg.LLMProvider,
		BaseURL:  cfg.LLMBaseURL,
		APIKey:   cfg.ChatAPIKey(),
		Timeout:  cfg.AgentTimeout.Std(),
	})
	sentimentChat, err := factory.ChatModel(ctx, cfg.SentimentModel)
	if err != nil {
		log.WithError(err).Warn("sentiment model unavailable, headlines will score neutral")
	}

	builder := snapshot.NewBuilder(snapshot.Sources{
		Market:    finnhub,
		Candles:   candles,
		Social:    social,
		FearGreed: dataflows.NewFearGreedClient("", cfg.ProviderTimeout.Std()),
		Sentiment: dataflows.NewSentimentAnalyzer(sentimentChat, cfg.SentimentModel),
	}, store, snapshot.Options{
		ProviderTimeout: cfg.ProviderTimeout.Std(),
		SocialEnabled:   cfg.SocialEnabled,
	})

	var publisher events.Publisher = events.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		kp, err := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			// ticks still settle without the event stream
			log.WithError(err).Warn("kafka unavailable, tick events disabled")
		} else {
			publisher = kp
		}
	}

	pricing := toPricing(cfg.ModelPricing)
	bots := []agents.Agent{
		agents.NewAlgo(),
		agents.NewLLM(agents.CheapConfig(cfg.CheapMaxTokens, cfg.Temperature, pricing), factory),
		agents.NewLLM(agents.PremiumConfig(cfg.PremiumMaxTokens, cfg.Temperature, pricing), factory),
	}

	orchestrator := trading.NewOrchestrator(trading.Deps{
		Store:     store,
		Quotes:    finnhub,
		Snapshots: builder,
		Agents:    bots,
		Calendar:  calendar.Default(),
		Publisher: publisher,
		Settings: func() trading.Settings {
			c := mgr.Get()
			return trading.Settings{
				CronSecret:      c.CronSecret,
				AgentTimeout:    c.AgentTimeout.Std(),
				ProviderTimeout: c.ProviderTimeout.Std(),
			}
		},
	})

	svc := service.New(store, finnhub, func() service.Defaults {
		c := mgr.Get()
		return service.Defaults{CheapModelID: c.DefaultCheapModel, PremiumModelID: c.DefaultPremiumModel}
	})

	return &app{
		mgr:          mgr,
		store:        store,
		builder:      builder,
		publisher:    publisher,
		orchestrator: orchestrator,
		service:      svc,
		log:          log,
	}, nil
}

// reconfigure pushes a reloaded config into components that cache settings.
func (a *app) reconfigure(cfg config.Config) {
	a.builder.Reconfigure(cfg.ProviderTimeout.Std(), cfg.SocialEnabled)
	a.log.WithFields(logrus.Fields{
		"social_enabled":   cfg.SocialEnabled,
		"provider_timeout": cfg.ProviderTimeout.Std().String(),
		"agent_timeout":    cfg.AgentTimeout.Std().String(),
	}).Info("settings applied")
}

func (a *app) Close() error {
	if err := a.publisher.Close(); err != nil {
		a.log.WithError(err).Warn("close publisher")
	}
	return a.store.Close()
}

func toPricing(in map[string]config.ModelPrice) agents.Pricing {
	out := make(agents.Pricing, len(in))
	for id, p := range in {
		out[id] = agents.ModelPrice{InputPerMillion: p.InputPerMillion, OutputPerMillion: p.OutputPerMillion}
	}
	return out
}
