// Package trading runs one tick of the arena: guards, snapshot, agents,
// settlement and day advance.
package trading

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dyike/ArenaGo/consts"
	"github.com/dyike/ArenaGo/internal/agents"
	"github.com/dyike/ArenaGo/internal/events"
	"github.com/dyike/ArenaGo/internal/logging"
	"github.com/dyike/ArenaGo/internal/models"
	"github.com/dyike/ArenaGo/internal/snapshot"
	"github.com/dyike/ArenaGo/internal/storage/sqlite"
)

// Store is the persistence the orchestrator needs.
type Store interface {
	SnapshotExistsForHour(ctx context.Context, hourBucket string) (bool, error)
	RunningSimulations(ctx context.Context) ([]models.SimulationConfig, error)
	Portfolios(ctx context.Context, simulationID string) ([]models.Portfolio, error)
	RecentDecisions(ctx context.Context, simulationID string, bot consts.BotType, n int) ([]models.BotDecision, error)
	InTx(ctx context.Context, fn func(*sqlite.Tx) error) error
}

type QuoteSource interface {
	GetQuote(ctx context.Context, symbol string) (float64, error)
}

type SnapshotBuilder interface {
	Build(ctx context.Context, sim models.SimulationConfig, opts snapshot.BuildOptions) (*snapshot.Result, error)
}

type MarketCalendar interface {
	SkipReason(t time.Time) string
}

// Settings can change between ticks (config hot reload).
type Settings struct {
	CronSecret      string
	AgentTimeout    time.Duration
	ProviderTimeout time.Duration
}

type Deps struct {
	Store     Store
	Quotes    QuoteSource
	Snapshots SnapshotBuilder
	Agents    []agents.Agent
	Calendar  MarketCalendar
	Publisher events.Publisher
	Settings  func() Settings
	Now       func() time.Time
}

type Orchestrator struct {
	deps Deps
	log  *logrus.Entry
}

func NewOrchestrator(deps Deps) *Orchestrator {
	if deps.Publisher == nil {
		deps.Publisher = events.NopPublisher{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Settings == nil {
		deps.Settings = func() Settings { return Settings{} }
	}
	return &Orchestrator{deps: deps, log: logging.For("orchestrator")}
}

type TickRequest struct {
	Credentials Credentials
	// Force bypasses the weekend, holiday and idempotence guards.
	Force bool
}

// TickResult is the terminal state of one tick.
type TickResult struct {
	Outcome      consts.TickOutcome
	SkipReason   string
	SimulationID string
	Day          int
	Status       consts.SimulationStatus
	Decisions    []models.DecisionView
	Err          error
}

func (o *Orchestrator) Tick(ctx context.Context, req TickRequest) TickResult {
	settings := o.deps.Settings()
	if !req.Credentials.Authorized(settings.CronSecret) {
		o.log.Warn("tick rejected: unauthorized")
		return TickResult{Outcome: consts.TickUnauthorized}
	}

	now := o.deps.Now().UTC()
	if !req.Force {
		if reason := o.deps.Calendar.SkipReason(now); reason != "" {
			o.log.WithField("reason", reason).Info("tick skipped")
			return TickResult{Outcome: consts.TickSkipped, SkipReason: reason}
		}
		exists, err := o.deps.Store.SnapshotExistsForHour(ctx, snapshot.HourBucket(now))
		if err != nil {
			return o.internalError("", fmt.Errorf("idempotence check: %w", err))
		}
		if exists {
			o.log.Info("tick skipped: hour already processed")
			return TickResult{Outcome: consts.TickSkipped, SkipReason: consts.SkipAlreadyProcessed}
		}
	}

	return o.run(ctx, req, now, settings)
}

// run covers everything after the guards. Errors and panics from here on
// become INTERNAL_ERROR.
func (o *Orchestrator) run(ctx context.Context, req TickRequest, now time.Time, settings Settings) (res TickResult) {
	simID := ""
	defer func() {
		if r := recover(); r != nil {
			o.log.WithField("stack", string(debug.Stack())).Error("tick panicked")
			res = o.internalError(simID, fmt.Errorf("panic: %v", r))
		}
	}()

	running, err := o.deps.Store.RunningSimulations(ctx)
	if err != nil {
		return o.internalError("", fmt.Errorf("load running simulation: %w", err))
	}
	if len(running) != 1 {
		if len(running) > 1 {
			o.log.WithField("count", len(running)).Error("more than one running simulation")
		}
		return TickResult{Outcome: consts.TickNoActiveSimulation}
	}
	sim := running[0]
	simID = sim.ID
	log := o.log.WithFields(logrus.Fields{"simulation_id": sim.ID, "symbol": sim.Symbol, "day": sim.CurrentDay})

	qctx, cancel := context.WithTimeout(ctx, providerTimeout(settings))
	price, err := o.deps.Quotes.GetQuote(qctx, sim.Symbol)
	cancel()
	if err != nil || price <= 0 {
		log.WithError(err).Warn("symbol failed quote validation")
		return TickResult{Outcome: consts.TickInvalidSymbol, SimulationID: sim.ID}
	}

	snap, err := o.deps.Snapshots.Build(ctx, sim, snapshot.BuildOptions{Now: now, Force: req.Force, Price: price})
	if errors.Is(err, snapshot.ErrAlreadyProcessed) {
		log.Info("tick skipped: concurrent tick stored this hour")
		return TickResult{Outcome: consts.TickSkipped, SkipReason: consts.SkipAlreadyProcessed}
	}
	if err != nil {
		return o.internalError(sim.ID, fmt.Errorf("build snapshot: %w", err))
	}

	proposals, err := o.decide(ctx, sim, snap, settings)
	if err != nil {
		return o.internalError(sim.ID, err)
	}

	settled, err := o.settle(ctx, sim, snap.Snapshot.ID, proposals)
	if err != nil {
		return o.internalError(sim.ID, fmt.Errorf("settle: %w", err))
	}

	views := make([]models.DecisionView, 0, len(settled.decisions))
	for _, d := range settled.decisions {
		views = append(views, d.View())
	}
	log.WithFields(logrus.Fields{"new_day": settled.day, "status": settled.status}).Info("tick completed")

	o.publish(ctx, sim, snap.Snapshot, req.Force, settled, views, now)

	return TickResult{
		Outcome:      consts.TickSuccess,
		SimulationID: sim.ID,
		Day:          settled.day,
		Status:       settled.status,
		Decisions:    views,
	}
}

// decide runs every agent concurrently. Agents degrade to HOLD on their own
// failures, so one slow or broken provider cannot hold back the others past
// the agent timeout.
func (o *Orchestrator) decide(ctx context.Context, sim models.SimulationConfig, snap *snapshot.Result, settings Settings) ([]models.ProposedDecision, error) {
	portfolios, err := o.deps.Store.Portfolios(ctx, sim.ID)
	if err != nil {
		return nil, fmt.Errorf("load portfolios: %w", err)
	}
	byBot := make(map[consts.BotType]models.Portfolio, len(portfolios))
	for _, p := range portfolios {
		byBot[p.BotType] = p
	}

	inputs := make([]agents.Input, len(o.deps.Agents))
	for i, a := range o.deps.Agents {
		p, ok := byBot[a.BotType()]
		if !ok {
			return nil, fmt.Errorf("no portfolio for %s", a.BotType())
		}
		history, err := o.deps.Store.RecentDecisions(ctx, sim.ID, a.BotType(), agents.HistoryDepth)
		if err != nil {
			return nil, fmt.Errorf("load %s history: %w", a.BotType(), err)
		}
		inputs[i] = agents.Input{
			Simulation: sim,
			Snapshot:   snap.Snapshot,
			Headlines:  snap.Headlines,
			Portfolio:  p,
			History:    history,
		}
	}

	timeout := settings.AgentTimeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}

	out := make([]models.ProposedDecision, len(o.deps.Agents))
	var wg sync.WaitGroup
	for i, a := range o.deps.Agents {
		wg.Add(1)
		go func() {
			defer wg.Done()
			actx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			out[i] = agents.SafeDecide(actx, a, inputs[i])
		}()
	}
	wg.Wait()

	return out, nil
}

func (o *Orchestrator) publish(ctx context.Context, sim models.SimulationConfig, snap *models.MarketSnapshot, forced bool, s *settledTick, views []models.DecisionView, now time.Time) {
	ev := events.TickEvent{
		Type:         events.TickCompleted,
		SimulationID: sim.ID,
		Symbol:       sim.Symbol,
		SnapshotID:   snap.ID,
		Price:        snap.Price,
		Day:          s.day,
		Status:       s.status,
		Forced:       forced,
		Decisions:    views,
		OccurredAt:   now,
	}
	for _, p := range s.portfolios {
		ev.Portfolios = append(ev.Portfolios, events.PortfolioView{
			BotType: p.BotType, Cash: p.Cash, Shares: p.Shares, TotalValue: p.TotalValue, ROI: p.ROI,
		})
	}
	if err := o.deps.Publisher.Publish(ctx, ev); err != nil {
		o.log.WithError(err).WithField("simulation_id", sim.ID).Warn("publish tick event failed")
	}
}

func (o *Orchestrator) internalError(simID string, err error) TickResult {
	o.log.WithError(err).WithField("simulation_id", simID).Error("tick failed")
	return TickResult{Outcome: consts.TickInternalError, SimulationID: simID, Err: err}
}

func providerTimeout(s Settings) time.Duration {
	if s.ProviderTimeout > 0 {
		return s.ProviderTimeout
	}
	return 15 * time.Second
}
