package core

// store.go defines the persistence seam. The cleaning core only produces
// rows; durable storage is an external collaborator reached through the
// Store interface, with a pgx-backed implementation for Postgres.

import (
	"context"
	"fmt"
	"time"

	"github.com/eurolife/lifexp/internal/region"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
	CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error)
}

// Store persists cleaned observations and ingest history.
type Store interface {
	EnsureSchema(ctx context.Context) error
	SaveRun(ctx context.Context, run IngestRun) error
	InsertObservations(ctx context.Context, runID string, obs []Observation) (int64, error)
	ObservationsByRegion(ctx context.Context, code region.Code, limit int) ([]Observation, error)
	RunsByRegion(ctx context.Context, code region.Code, limit int) ([]IngestRun, error)
}

// PgStore is the Postgres-backed Store.
type PgStore struct {
	db DBTX
}

// NewPgStore creates a store over a pool or transaction.
func NewPgStore(db DBTX) *PgStore {
	return &PgStore{db: db}
}

// EnsureSchema creates the tables if they do not exist.
func (s *PgStore) EnsureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS ingest_runs (
	id          uuid PRIMARY KEY,
	file_name   text NOT NULL,
	region      text NOT NULL,
	input_rows  integer NOT NULL,
	dropped     integer NOT NULL,
	output_rows integer NOT NULL,
	persisted   bigint NOT NULL,
	duration_ms bigint NOT NULL,
	error       text,
	created_at  timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS observations (
	id     bigserial PRIMARY KEY,
	run_id uuid NOT NULL REFERENCES ingest_runs(id) ON DELETE CASCADE,
	unit   text NOT NULL,
	sex    text NOT NULL,
	age    text NOT NULL,
	region text NOT NULL,
	year   integer NOT NULL,
	value  double precision NOT NULL
);

CREATE INDEX IF NOT EXISTS observations_region_year_idx ON observations (region, year);
CREATE INDEX IF NOT EXISTS ingest_runs_region_idx ON ingest_runs (region, created_at DESC);
`
	if _, err := s.db.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// SaveRun records one ingest run. The run row must exist before its
// observations are copied, so this is called first.
func (s *PgStore) SaveRun(ctx context.Context, run IngestRun) error {
	errText := pgtype.Text{String: run.Error, Valid: run.Error != ""}

	_, err := s.db.Exec(ctx, `
		INSERT INTO ingest_runs (id, file_name, region, input_rows, dropped, output_rows, persisted, duration_ms, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			input_rows = EXCLUDED.input_rows,
			dropped = EXCLUDED.dropped,
			output_rows = EXCLUDED.output_rows,
			persisted = EXCLUDED.persisted,
			duration_ms = EXCLUDED.duration_ms,
			error = EXCLUDED.error`,
		run.ID, run.FileName, string(run.Region),
		run.InputRows, run.Dropped, run.OutputRows,
		run.Persisted, run.Duration.Milliseconds(), errText,
	)
	if err != nil {
		return fmt.Errorf("save ingest run: %w", err)
	}
	return nil
}

// InsertObservations bulk-inserts cleaned rows for a run using the COPY
// protocol, falling back to per-row inserts if COPY fails.
func (s *PgStore) InsertObservations(ctx context.Context, runID string, obs []Observation) (int64, error) {
	if len(obs) == 0 {
		return 0, nil
	}

	columns := []string{"run_id", "unit", "sex", "age", "region", "year", "value"}
	rows := make([][]any, len(obs))
	for i, o := range obs {
		rows[i] = []any{runID, o.Unit, o.Sex, o.Age, o.Region, o.Year, o.Value}
	}

	n, err := s.db.CopyFrom(ctx, pgx.Identifier{"observations"}, columns, pgx.CopyFromRows(rows))
	if err == nil {
		return n, nil
	}

	// COPY can fail on older proxies; retry row-by-row before giving up.
	var inserted int64
	for _, o := range obs {
		if _, ierr := s.db.Exec(ctx, `
			INSERT INTO observations (run_id, unit, sex, age, region, year, value)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			runID, o.Unit, o.Sex, o.Age, o.Region, o.Year, o.Value,
		); ierr != nil {
			return inserted, fmt.Errorf("insert observations (copy failed: %v): %w", err, ierr)
		}
		inserted++
	}
	return inserted, nil
}

// ObservationsByRegion returns stored rows for one region, newest years
// first, capped at limit (0 means no cap).
func (s *PgStore) ObservationsByRegion(ctx context.Context, code region.Code, limit int) ([]Observation, error) {
	q := `
		SELECT unit, sex, age, region, year, value
		FROM observations
		WHERE region = $1
		ORDER BY year DESC, unit, sex, age`
	args := []any{string(code)}
	if limit > 0 {
		q += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query observations: %w", err)
	}
	defer rows.Close()

	var out []Observation
	for rows.Next() {
		var o Observation
		if err := rows.Scan(&o.Unit, &o.Sex, &o.Age, &o.Region, &o.Year, &o.Value); err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// RunsByRegion returns the ingest history for one region, newest first.
func (s *PgStore) RunsByRegion(ctx context.Context, code region.Code, limit int) ([]IngestRun, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, file_name, region, input_rows, dropped, output_rows, persisted, duration_ms, error, created_at
		FROM ingest_runs
		WHERE region = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		string(code), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query ingest runs: %w", err)
	}
	defer rows.Close()

	var out []IngestRun
	for rows.Next() {
		var (
			run     IngestRun
			reg     string
			durMs   int64
			errText pgtype.Text
		)
		if err := rows.Scan(&run.ID, &run.FileName, &reg, &run.InputRows, &run.Dropped,
			&run.OutputRows, &run.Persisted, &durMs, &errText, &run.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ingest run: %w", err)
		}
		run.Region = region.Code(reg)
		run.Duration = time.Duration(durMs) * time.Millisecond
		run.Error = errText.String
		out = append(out, run)
	}
	return out, rows.Err()
}
