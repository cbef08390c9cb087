package agents

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cloudwego/eino-ext/components/model/deepseek"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
)

const (
	ProviderOpenAI   = "openai"
	ProviderDeepSeek = "deepseek"
)

// ModelFactoryConfig selects the backend used for every model id.
type ModelFactoryConfig struct {
	Provider string
	BaseURL  string
	APIKey   string
	Timeout  time.Duration
}

// ModelFactory builds chat models lazily and reuses them per model id.
type ModelFactory struct {
	cfg    ModelFactoryConfig
	mu     sync.Mutex
	models map[string]model.BaseChatModel
}

func NewModelFactory(cfg ModelFactoryConfig) *ModelFactory {
	return &ModelFactory{cfg: cfg, models: make(map[string]model.BaseChatModel)}
}

func (f *ModelFactory) ChatModel(ctx context.Context, modelID string) (model.BaseChatModel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if m, ok := f.models[modelID]; ok {
		return m, nil
	}
	if f.cfg.APIKey == "" {
		return nil, fmt.Errorf("%s API key not configured", f.cfg.Provider)
	}

	var (
		m   model.BaseChatModel
		err error
	)
	switch f.cfg.Provider {
	case ProviderDeepSeek:
		m, err = deepseek.NewChatModel(ctx, &deepseek.ChatModelConfig{
			APIKey:  f.cfg.APIKey,
			BaseURL: f.cfg.BaseURL,
			Model:   modelID,
			Timeout: f.cfg.Timeout,
		})
	case ProviderOpenAI, "":
		m, err = openai.NewChatModel(ctx, &openai.ChatModelConfig{
			APIKey:  f.cfg.APIKey,
			BaseURL: f.cfg.BaseURL,
			Model:   modelID,
			Timeout: f.cfg.Timeout,
		})
	default:
		return nil, fmt.Errorf("unknown llm provider %q", f.cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s chat model %s: %w", f.cfg.Provider, modelID, err)
	}
	f.models[modelID] = m
	return m, nil
}
