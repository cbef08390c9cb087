package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/sirupsen/logrus"

	"github.com/dyike/ArenaGo/consts"
	"github.com/dyike/ArenaGo/internal/logging"
	"github.com/dyike/ArenaGo/internal/models"
	"github.com/dyike/ArenaGo/internal/processing"
)

var ErrEmptyCompletion = errors.New("empty completion content")

// ChatModelProvider hands out a chat model for a model id.
type ChatModelProvider interface {
	ChatModel(ctx context.Context, modelID string) (model.BaseChatModel, error)
}

// LLMConfig distinguishes the Cheap and Premium bots.
type LLMConfig struct {
	Bot         consts.BotType
	MaxTokens   int
	Temperature float32
	// ReasonWordLimit > 0 adds a strict word limit on the reason field.
	ReasonWordLimit int
	Parser          *processing.DecisionParser
	Pricing         Pricing
}

// CheapConfig is the budget bot: small token budget, strict parsing.
func CheapConfig(maxTokens int, temperature float32, pricing Pricing) LLMConfig {
	return LLMConfig{
		Bot:         consts.BotCheap,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		Parser:      processing.NewDecisionParser(),
		Pricing:     pricing,
	}
}

// PremiumConfig tolerates verbose reasoning models: larger budget, word
// limit on the reason and structural JSON repair.
func PremiumConfig(maxTokens int, temperature float32, pricing Pricing) LLMConfig {
	return LLMConfig{
		Bot:             consts.BotPremium,
		MaxTokens:       maxTokens,
		Temperature:     temperature,
		ReasonWordLimit: 30,
		Parser:          processing.NewDecisionParser(processing.WithStructuralRepair()),
		Pricing:         pricing,
	}
}

// LLM is a bot backed by a text-completion model.
type LLM struct {
	cfg    LLMConfig
	models ChatModelProvider
	log    *logrus.Entry
}

func NewLLM(cfg LLMConfig, models ChatModelProvider) *LLM {
	if cfg.Parser == nil {
		cfg.Parser = processing.NewDecisionParser()
	}
	return &LLM{cfg: cfg, models: models, log: logging.For("agent." + strings.ToLower(string(cfg.Bot)))}
}

func (l *LLM) BotType() consts.BotType { return l.cfg.Bot }

func (l *LLM) Decide(ctx context.Context, in Input) models.ProposedDecision {
	out, err := l.decide(ctx, in)
	if err != nil {
		l.log.WithError(err).WithField("simulation_id", in.Simulation.ID).Warn("agent degraded to HOLD")
		d := Degraded(l.cfg.Bot, err)
		d.Usage = out.Usage
		return d
	}
	return out
}

func (l *LLM) decide(ctx context.Context, in Input) (models.ProposedDecision, error) {
	out := models.ProposedDecision{BotType: l.cfg.Bot}
	if in.Snapshot == nil {
		return out, fmt.Errorf("no snapshot")
	}
	modelID := in.Simulation.ModelFor(l.cfg.Bot)
	if modelID == "" {
		return out, fmt.Errorf("no model configured for %s", l.cfg.Bot)
	}

	chat, err := l.models.ChatModel(ctx, modelID)
	if err != nil {
		return out, fmt.Errorf("chat model %s: %w", modelID, err)
	}

	msgs, err := traderTemplate.Format(ctx, promptVariables(in, l.cfg.ReasonWordLimit))
	if err != nil {
		return out, fmt.Errorf("format prompt: %w", err)
	}

	opts := []model.Option{model.WithModel(modelID), model.WithTemperature(l.cfg.Temperature)}
	if l.cfg.MaxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(l.cfg.MaxTokens))
	}
	resp, err := chat.Generate(ctx, msgs, opts...)
	if err != nil {
		return out, fmt.Errorf("generate: %w", err)
	}
	if resp == nil {
		return out, ErrEmptyCompletion
	}
	if resp.ResponseMeta != nil && resp.ResponseMeta.Usage != nil {
		u := resp.ResponseMeta.Usage
		out.Usage = models.Usage{
			PromptTokens:     u.PromptTokens,
			CompletionTokens: u.CompletionTokens,
			TotalTokens:      u.TotalTokens,
		}
		out.Usage.CostUSD = l.cfg.Pricing.Cost(modelID, u.PromptTokens, u.CompletionTokens)
	}
	// reasoning models can spend the whole budget thinking and answer nothing
	if strings.TrimSpace(resp.Content) == "" {
		return out, ErrEmptyCompletion
	}

	parsed := l.cfg.Parser.Parse(resp.Content)
	out.Debug = map[string]any{
		"model":      modelID,
		"parse_kind": parsed.Kind.String(),
		"parse_path": parsed.Path,
	}
	switch parsed.Kind {
	case processing.Failed:
		out.Debug["raw"] = truncate(resp.Content, 500)
		return out, fmt.Errorf("unparseable completion: %s", parsed.Reason)
	case processing.Recovered:
		out.Debug["warning"] = parsed.Warning
		l.log.WithField("path", parsed.Path).Warn("decision recovered from malformed completion")
	}
	out.TradingDecision = parsed.Decision
	return out, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
