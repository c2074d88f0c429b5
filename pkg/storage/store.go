// Package storage persists finished simulation runs in SQLite.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/boristopalov/spacenav/pkg/telemetry"
)

// ErrNotFound is returned when a run id does not exist.
var ErrNotFound = errors.New("run not found")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id                    TEXT PRIMARY KEY,
	kind                  TEXT NOT NULL,
	scenario              TEXT NOT NULL,
	start_epoch           REAL NOT NULL,
	end_epoch             REAL NOT NULL,
	step                  REAL NOT NULL,
	reward                REAL NOT NULL,
	fuel_consumption      REAL NOT NULL,
	collision_probability REAL NOT NULL,
	iterations            INTEGER NOT NULL,
	rejected              INTEGER NOT NULL,
	created_at            INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS samples (
	run_id                TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	iteration             INTEGER NOT NULL,
	epoch                 REAL NOT NULL,
	collision_probability REAL NOT NULL,
	fuel_consumption      REAL NOT NULL,
	reward                REAL NOT NULL,
	PRIMARY KEY (run_id, iteration)
);
CREATE TABLE IF NOT EXISTS rejections (
	run_id    TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	iteration INTEGER NOT NULL,
	epoch     REAL NOT NULL,
	dvx       REAL NOT NULL,
	dvy       REAL NOT NULL,
	dvz       REAL NOT NULL,
	reason    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
`

// RunRecord is one persisted session.
type RunRecord struct {
	ID                   string
	Kind                 string
	Scenario             string
	StartEpoch           float64
	EndEpoch             float64
	Step                 float64
	Reward               float64
	FuelConsumption      float64
	CollisionProbability float64
	Iterations           int
	Rejected             int
	CreatedAt            time.Time

	Samples    []telemetry.Sample
	Rejections []telemetry.Rejection
}

// Store persists runs in SQLite.
type Store struct {
	sqlDB *sql.DB
}

// Open opens (or creates) the database at path and applies the schema. Use
// ":memory:" for a throwaway store.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := path
	if path != ":memory:" {
		dsn = filepath.Clean(path)
	}
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// one connection keeps :memory: databases alive across queries
	sqlDB.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := sqlDB.Exec(pragma); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// SaveRun writes the run with its samples and rejections in one transaction.
func (s *Store) SaveRun(ctx context.Context, run RunRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(run.ID) == "" {
		return fmt.Errorf("run id is required")
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (
		   id, kind, scenario, start_epoch, end_epoch, step, reward,
		   fuel_consumption, collision_probability, iterations, rejected, created_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Kind, run.Scenario, run.StartEpoch, run.EndEpoch, run.Step, run.Reward,
		run.FuelConsumption, run.CollisionProbability, run.Iterations, run.Rejected,
		run.CreatedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}

	if len(run.Samples) > 0 {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO samples (run_id, iteration, epoch, collision_probability, fuel_consumption, reward)
			 VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare samples: %w", err)
		}
		defer stmt.Close()
		for _, smp := range run.Samples {
			if _, err := stmt.ExecContext(ctx, run.ID, smp.Iteration, smp.Epoch,
				smp.CollisionProbability, smp.FuelConsumption, smp.Reward); err != nil {
				return fmt.Errorf("insert sample %d: %w", smp.Iteration, err)
			}
		}
	}

	for _, rej := range run.Rejections {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO rejections (run_id, iteration, epoch, dvx, dvy, dvz, reason)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			run.ID, rej.Iteration, rej.Epoch, rej.DVx, rej.DVy, rej.DVz, rej.Reason); err != nil {
			return fmt.Errorf("insert rejection %d: %w", rej.Iteration, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run %s: %w", run.ID, err)
	}
	return nil
}

// GetRun loads one run including its samples and rejections.
func (s *Store) GetRun(ctx context.Context, id string) (RunRecord, error) {
	if err := ctx.Err(); err != nil {
		return RunRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return RunRecord{}, fmt.Errorf("storage is not configured")
	}

	row := s.sqlDB.QueryRowContext(ctx, selectRun+` WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return RunRecord{}, fmt.Errorf("get run %s: %w", id, err)
	}

	if run.Samples, err = s.samples(ctx, id); err != nil {
		return RunRecord{}, err
	}
	if run.Rejections, err = s.rejections(ctx, id); err != nil {
		return RunRecord{}, err
	}
	return run, nil
}

// ListRuns returns the most recent runs first, without samples or rejections.
// A limit <= 0 returns every run.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.sqlDB.QueryContext(ctx, selectRun+` ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

const selectRun = `SELECT id, kind, scenario, start_epoch, end_epoch, step, reward,
	fuel_consumption, collision_probability, iterations, rejected, created_at FROM runs`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (RunRecord, error) {
	var run RunRecord
	var createdAt int64
	err := sc.Scan(&run.ID, &run.Kind, &run.Scenario, &run.StartEpoch, &run.EndEpoch, &run.Step,
		&run.Reward, &run.FuelConsumption, &run.CollisionProbability, &run.Iterations, &run.Rejected,
		&createdAt)
	if err != nil {
		return RunRecord{}, err
	}
	run.CreatedAt = time.UnixMilli(createdAt).UTC()
	return run, nil
}

func (s *Store) samples(ctx context.Context, id string) ([]telemetry.Sample, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT iteration, epoch, collision_probability, fuel_consumption, reward
		 FROM samples WHERE run_id = ? ORDER BY iteration`, id)
	if err != nil {
		return nil, fmt.Errorf("query samples: %w", err)
	}
	defer rows.Close()

	var out []telemetry.Sample
	for rows.Next() {
		var smp telemetry.Sample
		if err := rows.Scan(&smp.Iteration, &smp.Epoch, &smp.CollisionProbability,
			&smp.FuelConsumption, &smp.Reward); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		out = append(out, smp)
	}
	return out, rows.Err()
}

func (s *Store) rejections(ctx context.Context, id string) ([]telemetry.Rejection, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT iteration, epoch, dvx, dvy, dvz, reason
		 FROM rejections WHERE run_id = ? ORDER BY iteration`, id)
	if err != nil {
		return nil, fmt.Errorf("query rejections: %w", err)
	}
	defer rows.Close()

	var out []telemetry.Rejection
	for rows.Next() {
		var rej telemetry.Rejection
		if err := rows.Scan(&rej.Iteration, &rej.Epoch, &rej.DVx, &rej.DVy, &rej.DVz, &rej.Reason); err != nil {
			return nil, fmt.Errorf("scan rejection: %w", err)
		}
		out = append(out, rej)
	}
	return out, rows.Err()
}
