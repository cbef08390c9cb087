package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
)

var (
	// ErrConflict reports a unique-constraint violation: a second RUNNING
	// simulation, or a second snapshot with the same idempotence key.
	ErrConflict = errors.New("sqlite: unique constraint conflict")
	// ErrNotFound is returned inside transactions where a missing row is fatal.
	ErrNotFound = errors.New("sqlite: not found")
)

type Store struct {
	db  *sql.DB
	now func() time.Time
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func Open(dbPath string) (*Store, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, fmt.Errorf("db path is required")
	}

	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_loc=UTC")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer; WAL lets readers proceed
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=3000;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma %s: %w", p, err)
		}
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SetClock overrides the timestamp source used for created_at/updated_at.
func (s *Store) SetClock(now func() time.Time) {
	s.now = func() time.Time { return now().UTC() }
}

func initSchema(db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS simulations (
    id TEXT PRIMARY KEY,
    symbol TEXT NOT NULL,
    start_capital REAL NOT NULL,
    duration_days INTEGER NOT NULL,
    current_day INTEGER NOT NULL DEFAULT 0,
    status TEXT NOT NULL,
    cheap_model TEXT NOT NULL,
    premium_model TEXT NOT NULL,
    weight_technical INTEGER NOT NULL DEFAULT 50,
    use_reddit INTEGER NOT NULL DEFAULT 0,
    created_by TEXT,
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_simulations_one_running
    ON simulations(status) WHERE status = 'RUNNING';

CREATE TABLE IF NOT EXISTS portfolios (
    id TEXT PRIMARY KEY,
    simulation_id TEXT NOT NULL REFERENCES simulations(id) ON DELETE CASCADE,
    bot_type TEXT NOT NULL,
    cash REAL NOT NULL,
    shares REAL NOT NULL DEFAULT 0,
    avg_price REAL,
    total_value REAL NOT NULL,
    roi REAL NOT NULL DEFAULT 0,
    updated_at DATETIME NOT NULL,
    UNIQUE(simulation_id, bot_type)
);

CREATE TABLE IF NOT EXISTS snapshots (
    id TEXT PRIMARY KEY,
    simulation_id TEXT NOT NULL REFERENCES simulations(id) ON DELETE CASCADE,
    symbol TEXT NOT NULL,
    price REAL NOT NULL,
    hour_bucket TEXT NOT NULL,
    idem_key TEXT,
    sentiment_score REAL NOT NULL DEFAULT 0,
    sentiment_reason TEXT NOT NULL DEFAULT '',
    rsi REAL,
    macd REAL,
    macd_signal REAL,
    macd_histogram REAL,
    ema9 REAL,
    ema21 REAL,
    ema50 REAL,
    ema_trend TEXT,
    bb_upper REAL,
    bb_middle REAL,
    bb_lower REAL,
    bb_width REAL,
    atr REAL,
    atr_percent REAL,
    technical_score REAL,
    rsi_signal TEXT,
    macd_trend TEXT,
    bb_position TEXT,
    reddit_hype REAL,
    stocktwits_bull REAL,
    stocktwits_bear REAL,
    fear_greed REAL,
    fear_greed_label TEXT,
    created_at DATETIME NOT NULL,
    UNIQUE(simulation_id, idem_key)
);

CREATE INDEX IF NOT EXISTS idx_snapshots_hour ON snapshots(hour_bucket);
CREATE INDEX IF NOT EXISTS idx_snapshots_simulation ON snapshots(simulation_id, created_at);

CREATE TABLE IF NOT EXISTS decisions (
    id TEXT PRIMARY KEY,
    snapshot_id TEXT NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
    simulation_id TEXT NOT NULL REFERENCES simulations(id) ON DELETE CASCADE,
    bot_type TEXT NOT NULL,
    action TEXT NOT NULL,
    quantity REAL NOT NULL DEFAULT 0,
    price REAL NOT NULL,
    reason TEXT NOT NULL DEFAULT '',
    confidence REAL NOT NULL DEFAULT 0,
    prompt_tokens INTEGER NOT NULL DEFAULT 0,
    completion_tokens INTEGER NOT NULL DEFAULT 0,
    cost REAL NOT NULL DEFAULT 0,
    debug TEXT,
    created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_decisions_bot ON decisions(simulation_id, bot_type, created_at);
`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return addMissingColumns(db, "snapshots", snapshotAddedColumns)
}

// snapshotAddedColumns were introduced after the first schema; older
// databases get them through ALTER TABLE.
var snapshotAddedColumns = [][2]string{
	{"technical_score", "REAL"},
	{"rsi_signal", "TEXT"},
	{"macd_trend", "TEXT"},
	{"bb_position", "TEXT"},
}

func addMissingColumns(db *sql.DB, table string, columns [][2]string) error {
	rows, err := db.Query(`SELECT name FROM pragma_table_info(?)`, table)
	if err != nil {
		return fmt.Errorf("inspect %s: %w", table, err)
	}
	existing := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return fmt.Errorf("inspect %s: %w", table, err)
		}
		existing[name] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("inspect %s: %w", table, err)
	}

	for _, col := range columns {
		if existing[col[0]] {
			continue
		}
		if _, err := db.Exec(fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s %s`, table, col[0], col[1])); err != nil {
			return fmt.Errorf("add column %s.%s: %w", table, col[0], err)
		}
	}
	return nil
}

// Tx groups the writes of one settlement.
type Tx struct {
	tx  *sql.Tx
	now time.Time
}

// InTx runs fn in a transaction, committing only when fn returns nil.
func (s *Store) InTx(ctx context.Context, fn func(*Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(fmt.Errorf("begin tx: %w", err))
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(&Tx{tx: tx, now: s.now()}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return classify(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

// IsTransient reports whether err is a lock/busy condition worth retrying.
func IsTransient(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
	}
	return false
}

// classify tags unique violations with ErrConflict, keeping the driver
// error in the chain.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var se sqlite3.Error
	if errors.As(err, &se) && (se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey) {
		return fmt.Errorf("%w: %w", ErrConflict, err)
	}
	return err
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

func stringPtr(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	v := n.String
	return &v
}
