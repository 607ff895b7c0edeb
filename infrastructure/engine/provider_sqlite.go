package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"

	_ "modernc.org/sqlite"

	"github.com/ahrav/go-childlimit/internal/domain"
	"github.com/ahrav/go-childlimit/internal/ports"
)

const calculationsSchema = `
CREATE TABLE IF NOT EXISTS calculations (
	scenario_key  TEXT NOT NULL,
	year          INTEGER NOT NULL,
	variable      TEXT NOT NULL,
	level         TEXT NOT NULL,
	payload       TEXT NOT NULL,
	PRIMARY KEY (scenario_key, year, variable, level)
);
`

func init() {
	RegisterProviderFactory("sqlite", func(cfg ClientConfig) (CoreEngine, error) {
		if cfg.DSN == "" {
			return nil, fmt.Errorf("sqlite provider: %w: dsn", ports.ErrConfigNotFound)
		}
		return OpenSQLiteStore(cfg.DSN)
	})
}

// SQLiteStore serves precomputed engine outputs from a SQLite database.
// Each row holds one variable for one scenario, year and level as a JSON
// array of numbers. It is both an engine backend and the sink used by
// the dataset generator.
type SQLiteStore struct {
	db *sql.DB
}

var _ CoreEngine = (*SQLiteStore)(nil)

// OpenSQLiteStore opens (or creates) the database at dsn and runs the
// schema migration.
func OpenSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// SQLite allows one writer; concurrent Puts queue on the pool instead
	// of failing with SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec(calculationsSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Name identifies the backend.
func (s *SQLiteStore) Name() string { return "sqlite" }

// Calculate looks up a stored result. A missing row is reported as
// ports.ErrInvalidResponse wrapping ErrUnknownVariable.
func (s *SQLiteStore) Calculate(
	ctx context.Context,
	scenario domain.Scenario,
	year int,
	variable string,
	level domain.Level,
) ([]float64, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM calculations
		 WHERE scenario_key = ? AND year = ? AND variable = ? AND level = ?`,
		scenario.Key(), year, variable, string(level),
	).Scan(&payload)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("%w: %w: %s at %s level", ports.ErrInvalidResponse, ErrUnknownVariable, variable, level)
	case err != nil:
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, classifyContextError(ctxErr)
		}
		return nil, fmt.Errorf("%w: query: %w", ports.ErrServiceUnavailable, err)
	}

	var stored []payloadValue
	if err := json.Unmarshal([]byte(payload), &stored); err != nil {
		return nil, fmt.Errorf("%w: decode payload: %w", ports.ErrInvalidResponse, err)
	}
	values := make([]float64, len(stored))
	for i, v := range stored {
		values[i] = float64(v)
	}
	return values, nil
}

// Put stores one result, replacing any existing row.
func (s *SQLiteStore) Put(
	ctx context.Context,
	scenario domain.Scenario,
	year int,
	variable string,
	level domain.Level,
	values []float64,
) error {
	stored := make([]payloadValue, len(values))
	for i, v := range values {
		stored[i] = payloadValue(v)
	}
	payload, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO calculations (scenario_key, year, variable, level, payload)
		 VALUES (?, ?, ?, ?, ?)`,
		scenario.Key(), year, variable, string(level), string(payload),
	)
	if err != nil {
		return fmt.Errorf("insert %s/%d/%s: %w", scenario.Key(), year, variable, err)
	}
	return nil
}

// Count returns the number of stored results.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM calculations`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

// payloadValue is a float64 that survives JSON encoding when it is NaN
// or infinite. Non-finite values are written as strings ("NaN", "+Inf",
// "-Inf"); finite ones as plain numbers.
type payloadValue float64

func (v payloadValue) MarshalJSON() ([]byte, error) {
	f := float64(v)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return []byte(strconv.Quote(strconv.FormatFloat(f, 'g', -1, 64))), nil
	}
	return []byte(strconv.FormatFloat(f, 'g', -1, 64)), nil
}

func (v *payloadValue) UnmarshalJSON(b []byte) error {
	s := string(b)
	if unquoted, err := strconv.Unquote(s); err == nil {
		s = unquoted
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("payload value %s: %w", b, err)
	}
	*v = payloadValue(f)
	return nil
}
