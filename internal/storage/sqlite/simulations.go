package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dyike/ArenaGo/consts"
	"github.com/dyike/ArenaGo/internal/models"
)

const simulationColumns = `id, symbol, start_capital, duration_days, current_day, status,
    cheap_model, premium_model, weight_technical, use_reddit, created_by, created_at, updated_at`

// CreateSimulation inserts a simulation and its portfolios atomically. A
// second RUNNING simulation fails with ErrConflict.
func (s *Store) CreateSimulation(ctx context.Context, sim *models.SimulationConfig, portfolios []models.Portfolio) error {
	if strings.TrimSpace(sim.ID) == "" {
		return fmt.Errorf("simulation id is required")
	}
	return s.InTx(ctx, func(tx *Tx) error {
		sim.CreatedAt, sim.UpdatedAt = tx.now, tx.now
		_, err := tx.tx.ExecContext(ctx, `
INSERT INTO simulations (`+simulationColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, sim.ID, sim.Symbol, sim.StartCapital, sim.DurationDays, sim.CurrentDay, string(sim.Status),
			sim.CheapModelID, sim.PremiumModelID, sim.WeightTechnical, sim.UseReddit,
			nullString(sim.CreatedBy), sim.CreatedAt, sim.UpdatedAt)
		if err != nil {
			return classify(fmt.Errorf("insert simulation: %w", err))
		}

		for i := range portfolios {
			p := &portfolios[i]
			p.SimulationID = sim.ID
			p.UpdatedAt = tx.now
			_, err := tx.tx.ExecContext(ctx, `
INSERT INTO portfolios (id, simulation_id, bot_type, cash, shares, avg_price, total_value, roi, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`, p.ID, p.SimulationID, string(p.BotType), p.Cash, p.Shares, nullFloat(p.AvgPrice), p.TotalValue, p.ROI, p.UpdatedAt)
			if err != nil {
				return classify(fmt.Errorf("insert portfolio %s: %w", p.BotType, err))
			}
		}
		return nil
	})
}

func scanSimulation(row interface{ Scan(...any) error }) (*models.SimulationConfig, error) {
	var (
		sim       models.SimulationConfig
		status    string
		createdBy sql.NullString
	)
	err := row.Scan(&sim.ID, &sim.Symbol, &sim.StartCapital, &sim.DurationDays, &sim.CurrentDay, &status,
		&sim.CheapModelID, &sim.PremiumModelID, &sim.WeightTechnical, &sim.UseReddit, &createdBy,
		&sim.CreatedAt, &sim.UpdatedAt)
	if err != nil {
		return nil, err
	}
	sim.Status = consts.SimulationStatus(status)
	sim.CreatedBy = stringPtr(createdBy)
	return &sim, nil
}

func getSimulation(ctx context.Context, q querier, id string) (*models.SimulationConfig, error) {
	row := q.QueryRowContext(ctx, `SELECT `+simulationColumns+` FROM simulations WHERE id = ? LIMIT 1`, id)
	sim, err := scanSimulation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get simulation: %w", err)
	}
	return sim, nil
}

// GetSimulation returns nil when the simulation does not exist.
func (s *Store) GetSimulation(ctx context.Context, id string) (*models.SimulationConfig, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("simulation id is required")
	}
	return getSimulation(ctx, s.db, id)
}

func (s *Store) listSimulations(ctx context.Context, where string, args ...any) ([]models.SimulationConfig, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+simulationColumns+` FROM simulations `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("list simulations: %w", err)
	}
	defer rows.Close()

	var sims []models.SimulationConfig
	for rows.Next() {
		sim, err := scanSimulation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan simulation: %w", err)
		}
		sims = append(sims, *sim)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list simulations rows: %w", err)
	}
	return sims, nil
}

// RunningSimulations lists every RUNNING simulation. The partial unique
// index keeps this at most one row.
func (s *Store) RunningSimulations(ctx context.Context) ([]models.SimulationConfig, error) {
	return s.listSimulations(ctx, `WHERE status = ? ORDER BY created_at`, string(consts.StatusRunning))
}

// ListSimulations returns the newest simulations first.
func (s *Store) ListSimulations(ctx context.Context, limit int) ([]models.SimulationConfig, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.listSimulations(ctx, `ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
}

// LatestSimulation returns the most recently created simulation, or nil.
func (s *Store) LatestSimulation(ctx context.Context) (*models.SimulationConfig, error) {
	sims, err := s.ListSimulations(ctx, 1)
	if err != nil || len(sims) == 0 {
		return nil, err
	}
	return &sims[0], nil
}

// CompleteSimulation marks a RUNNING simulation COMPLETED. It reports
// false when the simulation was not running.
func (s *Store) CompleteSimulation(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
UPDATE simulations
SET status = ?, updated_at = ?
WHERE id = ? AND status = ?
`, string(consts.StatusCompleted), s.now(), id, string(consts.StatusRunning))
	if err != nil {
		return false, classify(fmt.Errorf("complete simulation: %w", err))
	}
	rows, _ := res.RowsAffected()
	return rows > 0, nil
}

func scanPortfolio(row interface{ Scan(...any) error }) (*models.Portfolio, error) {
	var (
		p       models.Portfolio
		botType string
		avg     sql.NullFloat64
	)
	if err := row.Scan(&p.ID, &p.SimulationID, &botType, &p.Cash, &p.Shares, &avg, &p.TotalValue, &p.ROI, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.BotType = consts.BotType(botType)
	p.AvgPrice = floatPtr(avg)
	return &p, nil
}

const portfolioColumns = `id, simulation_id, bot_type, cash, shares, avg_price, total_value, roi, updated_at`

// Portfolios returns the simulation's portfolios ordered ALGO, CHEAP, PREMIUM.
func (s *Store) Portfolios(ctx context.Context, simulationID string) ([]models.Portfolio, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT `+portfolioColumns+`
FROM portfolios
WHERE simulation_id = ?
ORDER BY CASE bot_type WHEN 'ALGO' THEN 0 WHEN 'CHEAP' THEN 1 ELSE 2 END
`, simulationID)
	if err != nil {
		return nil, fmt.Errorf("list portfolios: %w", err)
	}
	defer rows.Close()

	var out []models.Portfolio
	for rows.Next() {
		p, err := scanPortfolio(rows)
		if err != nil {
			return nil, fmt.Errorf("scan portfolio: %w", err)
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list portfolios rows: %w", err)
	}
	return out, nil
}

// Simulation loads the simulation inside the transaction.
func (t *Tx) Simulation(ctx context.Context, id string) (*models.SimulationConfig, error) {
	sim, err := getSimulation(ctx, t.tx, id)
	if err != nil {
		return nil, err
	}
	if sim == nil {
		return nil, fmt.Errorf("simulation %s: %w", id, ErrNotFound)
	}
	return sim, nil
}

func (t *Tx) Portfolio(ctx context.Context, simulationID string, bot consts.BotType) (*models.Portfolio, error) {
	row := t.tx.QueryRowContext(ctx, `
SELECT `+portfolioColumns+`
FROM portfolios
WHERE simulation_id = ? AND bot_type = ?
`, simulationID, string(bot))
	p, err := scanPortfolio(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("portfolio %s/%s: %w", simulationID, bot, ErrNotFound)
		}
		return nil, fmt.Errorf("get portfolio: %w", err)
	}
	return p, nil
}

func (t *Tx) UpdatePortfolio(ctx context.Context, p *models.Portfolio) error {
	p.UpdatedAt = t.now
	res, err := t.tx.ExecContext(ctx, `
UPDATE portfolios
SET cash = ?, shares = ?, avg_price = ?, total_value = ?, roi = ?, updated_at = ?
WHERE id = ?
`, p.Cash, p.Shares, nullFloat(p.AvgPrice), p.TotalValue, p.ROI, p.UpdatedAt, p.ID)
	if err != nil {
		return fmt.Errorf("update portfolio: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return fmt.Errorf("update portfolio %s: %w", p.ID, ErrNotFound)
	}
	return nil
}

// AdvanceDay bumps current_day and completes the simulation when it
// reaches its duration. Only a RUNNING simulation advances.
func (t *Tx) AdvanceDay(ctx context.Context, id string) (int, consts.SimulationStatus, error) {
	res, err := t.tx.ExecContext(ctx, `
UPDATE simulations
SET current_day = current_day + 1,
    status = CASE WHEN current_day + 1 >= duration_days THEN ? ELSE status END,
    updated_at = ?
WHERE id = ? AND status = ?
`, string(consts.StatusCompleted), t.now, id, string(consts.StatusRunning))
	if err != nil {
		return 0, "", fmt.Errorf("advance day: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return 0, "", fmt.Errorf("advance day: running simulation %s: %w", id, ErrNotFound)
	}

	var (
		day    int
		status string
	)
	if err := t.tx.QueryRowContext(ctx, `SELECT current_day, status FROM simulations WHERE id = ?`, id).Scan(&day, &status); err != nil {
		return 0, "", fmt.Errorf("read advanced day: %w", err)
	}
	return day, consts.SimulationStatus(status), nil
}

// Now is the store clock, UTC.
func (s *Store) Now() time.Time {
	return s.now()
}
