package agents

import (
	"context"
	"fmt"

	"github.com/dyike/ArenaGo/consts"
	"github.com/dyike/ArenaGo/internal/models"
)

// ErrorReason is the reason recorded when an agent degrades to HOLD.
const ErrorReason = "error occurred"

// HistoryDepth is how many of its own past decisions an LLM agent sees.
const HistoryDepth = 3

// Input is everything one agent sees during a tick.
type Input struct {
	Simulation models.SimulationConfig
	Snapshot   *models.MarketSnapshot
	Headlines  []models.NewsItem
	Portfolio  models.Portfolio
	// History holds the agent's own latest decisions, oldest first.
	History []models.BotDecision
}

// Agent proposes a trade. Decide never fails: any internal error is
// reported as a HOLD.
type Agent interface {
	BotType() consts.BotType
	Decide(ctx context.Context, in Input) models.ProposedDecision
}

// Degraded is the safe decision an agent falls back to.
func Degraded(bot consts.BotType, cause error) models.ProposedDecision {
	d := models.ProposedDecision{BotType: bot, TradingDecision: models.Hold(ErrorReason)}
	if cause != nil {
		d.Debug = map[string]any{"error": cause.Error()}
	}
	return d
}

// SafeDecide runs a.Decide and turns a panic into a degraded HOLD.
func SafeDecide(ctx context.Context, a Agent, in Input) (out models.ProposedDecision) {
	defer func() {
		if r := recover(); r != nil {
			out = Degraded(a.BotType(), fmt.Errorf("panic: %v", r))
		}
	}()
	out = a.Decide(ctx, in)
	out.BotType = a.BotType()
	return out
}
