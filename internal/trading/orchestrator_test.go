package trading

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyike/ArenaGo/consts"
	"github.com/dyike/ArenaGo/internal/agents"
	"github.com/dyike/ArenaGo/internal/calendar"
	"github.com/dyike/ArenaGo/internal/events"
	"github.com/dyike/ArenaGo/internal/models"
	"github.com/dyike/ArenaGo/internal/snapshot"
	"github.com/dyike/ArenaGo/internal/storage/sqlite"
	"github.com/dyike/ArenaGo/internal/utils"
)

const secret = "s3cret"

var monday = time.Date(2024, 3, 4, 15, 30, 0, 0, time.UTC)

type fakeMarket struct {
	mu     sync.Mutex
	price  float64
	err    error
	quotes int
}

func (f *fakeMarket) GetQuote(context.Context, string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quotes++
	return f.price, f.err
}

func (f *fakeMarket) GetCompanyNews(context.Context, string, time.Time, time.Time) ([]models.NewsItem, error) {
	return []models.NewsItem{{Headline: "headline"}}, nil
}

type scriptedAgent struct {
	bot      consts.BotType
	decision models.TradingDecision
	panics   bool
	block    bool
}

func (a scriptedAgent) BotType() consts.BotType { return a.bot }

func (a scriptedAgent) Decide(ctx context.Context, in agents.Input) models.ProposedDecision {
	if a.panics {
		panic("agent crashed")
	}
	if a.block {
		<-ctx.Done()
		return agents.Degraded(a.bot, ctx.Err())
	}
	return models.ProposedDecision{BotType: a.bot, TradingDecision: a.decision}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.TickEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev events.TickEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

type harness struct {
	store     *sqlite.Store
	market    *fakeMarket
	publisher *recordingPublisher
	now       time.Time
	orch      *Orchestrator
	agents    []agents.Agent
}

func hold(bot consts.BotType) agents.Agent {
	return scriptedAgent{bot: bot, decision: models.Hold("wait")}
}

func newHarness(t *testing.T, agentList ...agents.Agent) *harness {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "arena.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	if len(agentList) == 0 {
		agentList = []agents.Agent{hold(consts.BotAlgo), hold(consts.BotCheap), hold(consts.BotPremium)}
	}

	h := &harness{store: store, market: &fakeMarket{price: 100}, publisher: &recordingPublisher{}, now: monday, agents: agentList}
	retry := utils.DefaultRetryConfig()
	retry.Sleep = func(context.Context, time.Duration) error { return nil }
	builder := snapshot.NewBuilder(snapshot.Sources{Market: h.market}, store, snapshot.Options{ProviderTimeout: time.Second, Retry: retry})

	h.orch = NewOrchestrator(Deps{
		Store:     store,
		Quotes:    h.market,
		Snapshots: builder,
		Agents:    agentList,
		Calendar:  calendar.Default(),
		Publisher: h.publisher,
		Settings: func() Settings {
			return Settings{CronSecret: secret, AgentTimeout: 200 * time.Millisecond, ProviderTimeout: time.Second}
		},
		Now: func() time.Time { return h.now },
	})
	return h
}

func (h *harness) startSimulation(t *testing.T, currentDay, duration int) *models.SimulationConfig {
	t.Helper()
	sim := &models.SimulationConfig{
		ID: "sim-1", Symbol: "AAPL", StartCapital: 10000, DurationDays: duration, CurrentDay: currentDay,
		Status: consts.StatusRunning, CheapModelID: "c", PremiumModelID: "p", WeightTechnical: 50,
	}
	var ps []models.Portfolio
	for _, bot := range consts.BotTypes {
		ps = append(ps, models.Portfolio{ID: "p-" + string(bot), BotType: bot, Cash: 10000, TotalValue: 10000})
	}
	require.NoError(t, h.store.CreateSimulation(context.Background(), sim, ps))
	return sim
}

func authed(force bool) TickRequest {
	return TickRequest{Credentials: Credentials{Authorization: "Bearer " + secret}, Force: force}
}

func TestTickRejectsBadCredentials(t *testing.T) {
	h := newHarness(t)
	for name, c := range map[string]Credentials{
		"none":         {},
		"wrong bearer": {Authorization: "Bearer nope"},
		"no scheme":    {Authorization: secret},
		"wrong query":  {Query: "x"},
	} {
		t.Run(name, func(t *testing.T) {
			res := h.orch.Tick(context.Background(), TickRequest{Credentials: c})
			assert.Equal(t, consts.TickUnauthorized, res.Outcome)
		})
	}

	for name, c := range map[string]Credentials{
		"bearer": {Authorization: "Bearer " + secret},
		"header": {Header: secret},
		"query":  {Query: secret},
	} {
		t.Run(name, func(t *testing.T) {
			res := h.orch.Tick(context.Background(), TickRequest{Credentials: c})
			assert.NotEqual(t, consts.TickUnauthorized, res.Outcome)
		})
	}
}

func TestEmptySecretAuthorizesNobody(t *testing.T) {
	assert.False(t, Credentials{}.Authorized(""))
	assert.False(t, Credentials{Header: ""}.Authorized(""))
}

func TestTickCalendarGuards(t *testing.T) {
	h := newHarness(t)
	h.startSimulation(t, 0, 21)

	h.now = time.Date(2024, 3, 2, 15, 0, 0, 0, time.UTC)
	res := h.orch.Tick(context.Background(), authed(false))
	assert.Equal(t, consts.TickSkipped, res.Outcome)
	assert.Equal(t, "weekend", res.SkipReason)

	h.now = time.Date(2024, 12, 25, 15, 0, 0, 0, time.UTC)
	res = h.orch.Tick(context.Background(), authed(false))
	assert.Equal(t, consts.TickSkipped, res.Outcome)
	assert.Equal(t, "holiday: 2024-12-25", res.SkipReason)

	res = h.orch.Tick(context.Background(), authed(true))
	assert.Equal(t, consts.TickSuccess, res.Outcome)
}

func TestTickNoActiveSimulation(t *testing.T) {
	h := newHarness(t)
	res := h.orch.Tick(context.Background(), authed(false))
	assert.Equal(t, consts.TickNoActiveSimulation, res.Outcome)
}

func TestTickInvalidSymbol(t *testing.T) {
	for name, m := range map[string]*fakeMarket{
		"zero price": {price: 0},
		"error":      {err: errors.New("404")},
	} {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			h.startSimulation(t, 0, 21)
			h.market.price, h.market.err = m.price, m.err
			res := h.orch.Tick(context.Background(), authed(false))
			assert.Equal(t, consts.TickInvalidSymbol, res.Outcome)
		})
	}
}

func TestTickSuccessAndIdempotence(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.startSimulation(t, 0, 21)

	res := h.orch.Tick(ctx, authed(false))
	require.Equal(t, consts.TickSuccess, res.Outcome, "%v", res.Err)
	assert.Equal(t, 1, res.Day)
	assert.Equal(t, consts.StatusRunning, res.Status)
	require.Len(t, res.Decisions, 3)
	assert.Equal(t, consts.BotAlgo, res.Decisions[0].BotType)

	// same hour, later minute
	h.now = monday.Add(20 * time.Minute)
	res = h.orch.Tick(ctx, authed(false))
	assert.Equal(t, consts.TickSkipped, res.Outcome)
	assert.Equal(t, consts.SkipAlreadyProcessed, res.SkipReason)

	res = h.orch.Tick(ctx, authed(true))
	require.Equal(t, consts.TickSuccess, res.Outcome)
	assert.Equal(t, 2, res.Day)

	h.now = monday.Add(time.Hour)
	res = h.orch.Tick(ctx, authed(false))
	require.Equal(t, consts.TickSuccess, res.Outcome)
	assert.Equal(t, 3, res.Day)

	decisions, err := h.store.Decisions(ctx, "sim-1")
	require.NoError(t, err)
	assert.Len(t, decisions, 9, "every bot is audited on every tick")

	snaps, err := h.store.Snapshots(ctx, "sim-1")
	require.NoError(t, err)
	assert.Len(t, snaps, 3)

	require.Len(t, h.publisher.events, 3)
	assert.Equal(t, 3, h.publisher.events[2].Day)
	assert.Len(t, h.publisher.events[2].Portfolios, 3)
}

func TestTickSettlesAtValidatedQuote(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.startSimulation(t, 0, 21)
	h.market.price = 187.5

	res := h.orch.Tick(ctx, authed(false))
	require.Equal(t, consts.TickSuccess, res.Outcome, "%v", res.Err)
	assert.Equal(t, 1, h.market.quotes)

	snaps, err := h.store.Snapshots(ctx, "sim-1")
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, 187.5, snaps[0].Price)

	decisions, err := h.store.Decisions(ctx, "sim-1")
	require.NoError(t, err)
	for _, d := range decisions {
		assert.Equal(t, 187.5, d.Price)
	}
}

func TestTickSettlesAndDowngrades(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t,
		scriptedAgent{bot: consts.BotAlgo, decision: models.TradingDecision{Action: consts.ActionBuy, Quantity: 10, Reason: "cheap"}},
		scriptedAgent{bot: consts.BotCheap, decision: models.TradingDecision{Action: consts.ActionBuy, Quantity: 1000, Reason: "all in"}},
		scriptedAgent{bot: consts.BotPremium, decision: models.TradingDecision{Action: consts.ActionSell, Quantity: 1, Reason: "short"}},
	)
	h.startSimulation(t, 0, 21)

	res := h.orch.Tick(ctx, authed(false))
	require.Equal(t, consts.TickSuccess, res.Outcome, "%v", res.Err)

	assert.Equal(t, consts.ActionBuy, res.Decisions[0].Action)
	assert.Equal(t, 10.0, res.Decisions[0].Quantity)

	assert.Equal(t, consts.ActionHold, res.Decisions[1].Action)
	assert.Zero(t, res.Decisions[1].Quantity)
	assert.Equal(t, "fonds insuffisants: besoin de $100000.00, disponible $10000.00", res.Decisions[1].Reason)

	assert.Equal(t, consts.ActionHold, res.Decisions[2].Action)
	assert.Contains(t, res.Decisions[2].Reason, "actions insuffisantes")

	ps, err := h.store.Portfolios(ctx, "sim-1")
	require.NoError(t, err)
	assert.Equal(t, 9000.0, ps[0].Cash)
	assert.Equal(t, 10.0, ps[0].Shares)
	require.NotNil(t, ps[0].AvgPrice)
	assert.Equal(t, 100.0, *ps[0].AvgPrice)
	assert.Equal(t, 10000.0, ps[1].Cash)
	assert.Nil(t, ps[1].AvgPrice)

	decisions, err := h.store.Decisions(ctx, "sim-1")
	require.NoError(t, err)
	require.Len(t, decisions, 3)
	require.NotNil(t, decisions[1].Debug)
	assert.Contains(t, *decisions[1].Debug, `"skipped":true`)
}

func TestTickCompletesSimulationOnLastDay(t *testing.T) {
	h := newHarness(t)
	h.startSimulation(t, 20, 21)

	res := h.orch.Tick(context.Background(), authed(false))
	require.Equal(t, consts.TickSuccess, res.Outcome)
	assert.Equal(t, 21, res.Day)
	assert.Equal(t, consts.StatusCompleted, res.Status)

	h.now = monday.Add(time.Hour)
	res = h.orch.Tick(context.Background(), authed(false))
	assert.Equal(t, consts.TickNoActiveSimulation, res.Outcome)
}

func TestTickIsolatesAgentFailures(t *testing.T) {
	h := newHarness(t,
		scriptedAgent{bot: consts.BotAlgo, panics: true},
		scriptedAgent{bot: consts.BotCheap, block: true},
		scriptedAgent{bot: consts.BotPremium, decision: models.TradingDecision{Action: consts.ActionBuy, Quantity: 5, Reason: "go"}},
	)
	h.startSimulation(t, 0, 21)

	res := h.orch.Tick(context.Background(), authed(false))
	require.Equal(t, consts.TickSuccess, res.Outcome)
	assert.Equal(t, agents.ErrorReason, res.Decisions[0].Reason)
	assert.Equal(t, agents.ErrorReason, res.Decisions[1].Reason)
	assert.Equal(t, consts.ActionBuy, res.Decisions[2].Action)
}

func TestTickBuildFailureIsInternalError(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.startSimulation(t, 0, 21)
	h.orch.deps.Snapshots = failingBuilder{}

	res := h.orch.Tick(ctx, authed(false))
	assert.Equal(t, consts.TickInternalError, res.Outcome)
	assert.Error(t, res.Err)

	sim, err := h.store.GetSimulation(ctx, "sim-1")
	require.NoError(t, err)
	assert.Equal(t, 0, sim.CurrentDay)
}

func TestTickMissingSnapshotRollsBack(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.startSimulation(t, 0, 21)
	h.orch.deps.Snapshots = phantomBuilder{}

	res := h.orch.Tick(ctx, authed(false))
	assert.Equal(t, consts.TickInternalError, res.Outcome)
	assert.ErrorIs(t, res.Err, sqlite.ErrNotFound)

	decisions, err := h.store.Decisions(ctx, "sim-1")
	require.NoError(t, err)
	assert.Empty(t, decisions)
	sim, err := h.store.GetSimulation(ctx, "sim-1")
	require.NoError(t, err)
	assert.Equal(t, 0, sim.CurrentDay)
}

func TestTickPublishFailureDoesNotFailTick(t *testing.T) {
	h := newHarness(t)
	h.startSimulation(t, 0, 21)
	h.publisher.err = errors.New("broker down")

	res := h.orch.Tick(context.Background(), authed(false))
	assert.Equal(t, consts.TickSuccess, res.Outcome)
}

type failingBuilder struct{}

func (failingBuilder) Build(context.Context, models.SimulationConfig, snapshot.BuildOptions) (*snapshot.Result, error) {
	return nil, errors.New("disk full")
}

// phantomBuilder returns a snapshot that was never persisted.
type phantomBuilder struct{}

func (phantomBuilder) Build(_ context.Context, sim models.SimulationConfig, _ snapshot.BuildOptions) (*snapshot.Result, error) {
	return &snapshot.Result{Snapshot: &models.MarketSnapshot{ID: "ghost", SimulationID: sim.ID, Price: 100}}, nil
}
