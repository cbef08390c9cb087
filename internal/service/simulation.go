package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/dyike/ArenaGo/consts"
	"github.com/dyike/ArenaGo/internal/dataflows"
	"github.com/dyike/ArenaGo/internal/logging"
	"github.com/dyike/ArenaGo/internal/models"
	"github.com/dyike/ArenaGo/internal/storage/sqlite"
	"github.com/dyike/ArenaGo/pkg/id"
)

var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrInvalidSymbol  = errors.New("invalid symbol")
	ErrAlreadyRunning = errors.New("a simulation is already running")
	ErrNoSimulation   = errors.New("no simulation")
	ErrForbidden      = errors.New("caller is not the simulation creator")
)

// Store is the persistence the service reads and writes.
type Store interface {
	CreateSimulation(ctx context.Context, sim *models.SimulationConfig, portfolios []models.Portfolio) error
	GetSimulation(ctx context.Context, id string) (*models.SimulationConfig, error)
	RunningSimulations(ctx context.Context) ([]models.SimulationConfig, error)
	LatestSimulation(ctx context.Context) (*models.SimulationConfig, error)
	CompleteSimulation(ctx context.Context, id string) (bool, error)
	Portfolios(ctx context.Context, simulationID string) ([]models.Portfolio, error)
	Snapshots(ctx context.Context, simulationID string) ([]models.MarketSnapshot, error)
	Decisions(ctx context.Context, simulationID string) ([]models.BotDecision, error)
}

type QuoteSource interface {
	GetQuote(ctx context.Context, symbol string) (float64, error)
}

// Defaults fill the optional fields of a start request.
type Defaults struct {
	CheapModelID   string
	PremiumModelID string
}

type Service struct {
	store    Store
	quotes   QuoteSource
	defaults func() Defaults
	log      *logrus.Entry
}

func New(store Store, quotes QuoteSource, defaults func() Defaults) *Service {
	if defaults == nil {
		defaults = func() Defaults { return Defaults{} }
	}
	return &Service{store: store, quotes: quotes, defaults: defaults, log: logging.For("service")}
}

// StartRequest is the body of a start call.
type StartRequest struct {
	Symbol          string  `json:"symbol"`
	StartCapital    float64 `json:"startCapital"`
	DurationDays    int     `json:"durationDays"`
	CheapModelID    string  `json:"cheapModelId"`
	PremiumModelID  string  `json:"premiumModelId"`
	UseReddit       bool    `json:"useReddit"`
	WeightTechnical *int    `json:"weightTechnical,omitempty"`
}

func (r *StartRequest) normalize(d Defaults) error {
	r.Symbol = dataflows.NormalizeSymbol(r.Symbol)
	if err := dataflows.ValidateSymbol(r.Symbol); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if r.StartCapital < consts.MinStartCapital {
		return fmt.Errorf("%w: startCapital must be at least %.0f", ErrInvalidRequest, consts.MinStartCapital)
	}
	if r.DurationDays == 0 {
		r.DurationDays = consts.DefaultDurationDays
	}
	if r.DurationDays < 1 {
		return fmt.Errorf("%w: durationDays must be positive", ErrInvalidRequest)
	}
	if r.WeightTechnical == nil {
		w := consts.DefaultWeightTechnical
		r.WeightTechnical = &w
	}
	if *r.WeightTechnical < 0 || *r.WeightTechnical > 100 {
		return fmt.Errorf("%w: weightTechnical must be within 0..100", ErrInvalidRequest)
	}
	r.CheapModelID = strings.TrimSpace(r.CheapModelID)
	if r.CheapModelID == "" {
		r.CheapModelID = d.CheapModelID
	}
	r.PremiumModelID = strings.TrimSpace(r.PremiumModelID)
	if r.PremiumModelID == "" {
		r.PremiumModelID = d.PremiumModelID
	}
	if r.CheapModelID == "" || r.PremiumModelID == "" {
		return fmt.Errorf("%w: model ids are required", ErrInvalidRequest)
	}
	return nil
}

// Start creates a RUNNING simulation with three portfolios seeded at the
// starting capital. createdBy may be empty.
func (s *Service) Start(ctx context.Context, req StartRequest, createdBy string) (*models.SimulationConfig, error) {
	if err := req.normalize(s.defaults()); err != nil {
		return nil, err
	}

	running, err := s.store.RunningSimulations(ctx)
	if err != nil {
		return nil, err
	}
	if len(running) > 0 {
		return nil, ErrAlreadyRunning
	}

	price, err := s.quotes.GetQuote(ctx, req.Symbol)
	if err != nil || price <= 0 {
		s.log.WithError(err).WithField("symbol", req.Symbol).Warn("start rejected: symbol failed validation")
		return nil, fmt.Errorf("%w: %s", ErrInvalidSymbol, req.Symbol)
	}

	sim := &models.SimulationConfig{
		ID:              id.New(),
		Symbol:          req.Symbol,
		StartCapital:    req.StartCapital,
		DurationDays:    req.DurationDays,
		Status:          consts.StatusRunning,
		CheapModelID:    req.CheapModelID,
		PremiumModelID:  req.PremiumModelID,
		WeightTechnical: *req.WeightTechnical,
		UseReddit:       req.UseReddit,
	}
	if createdBy = strings.TrimSpace(createdBy); createdBy != "" {
		sim.CreatedBy = &createdBy
	}

	portfolios := make([]models.Portfolio, 0, len(consts.BotTypes))
	for _, bot := range consts.BotTypes {
		portfolios = append(portfolios, models.Portfolio{
			ID:         id.New(),
			BotType:    bot,
			Cash:       req.StartCapital,
			TotalValue: req.StartCapital,
		})
	}

	if err := s.store.CreateSimulation(ctx, sim, portfolios); err != nil {
		if errors.Is(err, sqlite.ErrConflict) {
			return nil, ErrAlreadyRunning
		}
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"simulation_id": sim.ID, "symbol": sim.Symbol, "days": sim.DurationDays}).Info("simulation started")
	return sim, nil
}

// Stop completes the running simulation, or the one named by simulationID.
// A simulation with a creator can only be stopped by that creator.
func (s *Service) Stop(ctx context.Context, simulationID, userID string) (*models.SimulationConfig, error) {
	var sim *models.SimulationConfig
	if simulationID != "" {
		found, err := s.store.GetSimulation(ctx, simulationID)
		if err != nil {
			return nil, err
		}
		sim = found
	} else {
		running, err := s.store.RunningSimulations(ctx)
		if err != nil {
			return nil, err
		}
		if len(running) > 0 {
			sim = &running[0]
		}
	}
	if sim == nil || sim.Status != consts.StatusRunning {
		return nil, ErrNoSimulation
	}

	if sim.CreatedBy != nil && *sim.CreatedBy != strings.TrimSpace(userID) {
		return nil, ErrForbidden
	}

	if _, err := s.store.CompleteSimulation(ctx, sim.ID); err != nil {
		return nil, err
	}
	sim.Status = consts.StatusCompleted
	s.log.WithField("simulation_id", sim.ID).Info("simulation stopped")
	return sim, nil
}

// Status is the current competition state.
type Status struct {
	Status     consts.SimulationStatus  `json:"status"`
	Simulation *models.SimulationConfig `json:"simulation,omitempty"`
	Portfolios []models.Portfolio       `json:"portfolios,omitempty"`
}

// Status reports the running simulation, else the most recent one, else IDLE.
func (s *Service) Status(ctx context.Context) (*Status, error) {
	running, err := s.store.RunningSimulations(ctx)
	if err != nil {
		return nil, err
	}
	var sim *models.SimulationConfig
	if len(running) > 0 {
		sim = &running[0]
	} else if sim, err = s.store.LatestSimulation(ctx); err != nil {
		return nil, err
	}
	if sim == nil {
		return &Status{Status: consts.StatusIdle}, nil
	}

	portfolios, err := s.store.Portfolios(ctx, sim.ID)
	if err != nil {
		return nil, err
	}
	return &Status{Status: sim.Status, Simulation: sim, Portfolios: portfolios}, nil
}
