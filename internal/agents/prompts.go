package agents

import (
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/dyike/ArenaGo/internal/models"
)

// FirstDecisionNote replaces the history block before an agent has traded.
const FirstDecisionNote = "No previous decisions: this is your first decision."

const traderSystemPrompt = `You are an autonomous stock trader competing against other bots in a simulated portfolio.
You trade a single symbol, long-only: you may BUY with available cash, SELL shares you hold, or HOLD. Short selling and margin are not allowed.
Answer with a single JSON object and nothing else:
{{"action": "BUY" | "SELL" | "HOLD", "quantity": <whole number of shares>, "reason": "<short justification>", "confidence": <0 to 1>}}
{reason_rule}`

const traderUserPrompt = `Symbol: {symbol}
Current price: {price}$
RSI(14): {rsi}
MACD: {macd}
Technical score (-1 bearish to +1 bullish): {technical_score} ({signals})
News sentiment: {sentiment} ({sentiment_reason})

Recent headlines:
{headlines}

Your portfolio: cash {cash}$, shares {shares}

Your last decisions (oldest first):
{history}

Decide your next trade.`

var traderTemplate = prompt.FromMessages(schema.FString,
	schema.SystemMessage(traderSystemPrompt),
	schema.UserMessage(traderUserPrompt),
)

// FormatHistory renders past decisions as "N. ACTION qty shares at price$ - reason".
func FormatHistory(history []models.BotDecision) string {
	if len(history) == 0 {
		return FirstDecisionNote
	}
	lines := make([]string, 0, len(history))
	for i, d := range history {
		lines = append(lines, fmt.Sprintf("%d. %s %g shares at %.2f$ - %s", i+1, d.Action, d.Quantity, d.Price, d.Reason))
	}
	return strings.Join(lines, "\n")
}

func formatHeadlines(news []models.NewsItem) string {
	if len(news) == 0 {
		return "none"
	}
	lines := make([]string, 0, len(news))
	for _, n := range news {
		lines = append(lines, "- "+n.Headline)
	}
	return strings.Join(lines, "\n")
}

func optional(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", *v)
}

// formatSignals lists the indicator labels stored on the snapshot.
func formatSignals(snap *models.MarketSnapshot) string {
	var parts []string
	for _, s := range []struct {
		name  string
		value *string
	}{
		{"RSI", snap.RSISignal},
		{"MACD", snap.MACDTrend},
		{"EMA", snap.EMATrend},
		{"Bollinger", snap.BBPosition},
	} {
		if s.value != nil {
			parts = append(parts, s.name+" "+*s.value)
		}
	}
	if len(parts) == 0 {
		return "no signals"
	}
	return strings.Join(parts, ", ")
}

func promptVariables(in Input, wordLimit int) map[string]any {
	rule := "Keep the reason short."
	if wordLimit > 0 {
		rule = fmt.Sprintf("The reason MUST NOT exceed %d words. Do not include your reasoning process in the answer.", wordLimit)
	}
	snap := in.Snapshot
	return map[string]any{
		"reason_rule":      rule,
		"symbol":           snap.Symbol,
		"price":            fmt.Sprintf("%.2f", snap.Price),
		"rsi":              optional(snap.RSI),
		"macd":             optional(snap.MACD),
		"technical_score":  optional(snap.TechnicalScore),
		"signals":          formatSignals(snap),
		"sentiment":        fmt.Sprintf("%.2f", snap.SentimentScore),
		"sentiment_reason": snap.SentimentReason,
		"headlines":        formatHeadlines(in.Headlines),
		"cash":             fmt.Sprintf("%.2f", in.Portfolio.Cash),
		"shares":           fmt.Sprintf("%g", in.Portfolio.Shares),
		"history":          FormatHistory(in.History),
	}
}
