package dataflows

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
	"github.com/sirupsen/logrus"

	"github.com/dyike/ArenaGo/internal/logging"
	"github.com/dyike/ArenaGo/internal/models"
	"github.com/dyike/ArenaGo/internal/processing"
)

const (
	NoNewsReason          = "No recent news"
	sentimentFailedPrefix = "sentiment analysis failed: "
)

var sentimentTemplate = prompt.FromMessages(schema.FString,
	schema.SystemMessage(`You are a financial news analyst. Score the overall sentiment of the headlines for {symbol} on a scale from -1 (very bearish) to 1 (very bullish).
Answer with JSON only: {{"score": <number>, "reason": "<one short sentence>"}}`),
	schema.UserMessage("Headlines:\n{headlines}"),
)

// SentimentAnalyzer scores headlines with a text-completion model.
type SentimentAnalyzer struct {
	chat  model.BaseChatModel
	model string
	log   *logrus.Entry
}

func NewSentimentAnalyzer(chat model.BaseChatModel, modelID string) *SentimentAnalyzer {
	return &SentimentAnalyzer{chat: chat, model: modelID, log: logging.For("sentiment")}
}

// Analyze never fails: without headlines or on any oracle error it
// returns a neutral score and a reason saying why.
func (s *SentimentAnalyzer) Analyze(ctx context.Context, symbol string, news []models.NewsItem) (float64, string) {
	if len(news) == 0 {
		return 0, NoNewsReason
	}
	if s.chat == nil {
		return 0, sentimentFailedPrefix + "no model configured"
	}

	score, reason, err := s.analyze(ctx, symbol, news)
	if err != nil {
		s.log.WithError(err).WithField("symbol", symbol).Warn("sentiment scoring degraded to neutral")
		return 0, sentimentFailedPrefix + err.Error()
	}
	return score, reason
}

func (s *SentimentAnalyzer) analyze(ctx context.Context, symbol string, news []models.NewsItem) (float64, string, error) {
	var sb strings.Builder
	for i, n := range news {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, n.Headline)
		if n.Summary != "" {
			fmt.Fprintf(&sb, "   %s\n", truncate(n.Summary, 240))
		}
	}

	msgs, err := sentimentTemplate.Format(ctx, map[string]any{
		"symbol":    symbol,
		"headlines": sb.String(),
	})
	if err != nil {
		return 0, "", fmt.Errorf("format prompt: %w", err)
	}

	resp, err := s.chat.Generate(ctx, msgs, model.WithModel(s.model), model.WithTemperature(0.2), model.WithMaxTokens(300))
	if err != nil {
		return 0, "", err
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return 0, "", fmt.Errorf("empty completion")
	}

	obj := processing.ExtractJSONObject(resp.Content)
	if !strings.HasPrefix(obj, "{") {
		return 0, "", fmt.Errorf("no JSON object in completion")
	}
	var out struct {
		Score  float64 `json:"score"`
		Reason string  `json:"reason"`
	}
	if err := json.Unmarshal([]byte(obj), &out); err != nil {
		return 0, "", fmt.Errorf("decode completion: %w", err)
	}
	if math.IsNaN(out.Score) {
		return 0, "", fmt.Errorf("score is NaN")
	}
	score := math.Max(-1, math.Min(1, out.Score))
	reason := strings.TrimSpace(out.Reason)
	if reason == "" {
		reason = "no justification given"
	}
	return score, reason, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
