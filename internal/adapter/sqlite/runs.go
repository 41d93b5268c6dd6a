package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/couchcryptid/urban-pulse-etl/internal/domain"
)

// StartRun opens a ledger entry in the running state.
func (s *Store) StartRun(ctx context.Context) (domain.Run, error) {
	run := domain.Run{
		ID:        uuid.New().String(),
		StartedAt: domain.Now(),
		Status:    domain.RunRunning,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pipeline_runs (id, started_at, status) VALUES (?, ?, ?)`,
		run.ID, formatTime(run.StartedAt), string(run.Status),
	)
	if err != nil {
		return domain.Run{}, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

// FinishRun stamps the finish time and writes the final status, row counts
// and error text.
func (s *Store) FinishRun(ctx context.Context, run domain.Run) error {
	if run.FinishedAt.IsZero() {
		run.FinishedAt = domain.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE pipeline_runs SET finished_at = ?, status = ?, weather_rows = ?, sensor_rows = ?,
			social_rows = ?, stress_rows = ?, error = ? WHERE id = ?`,
		formatTime(run.FinishedAt), string(run.Status), run.WeatherRows, run.SensorRows,
		run.SocialRows, run.StressRows, run.Error, run.ID,
	)
	if err != nil {
		return fmt.Errorf("update run %s: %w", run.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("run %s: %w", run.ID, ErrNotFound)
	}
	return nil
}

// Run fetches one ledger entry by id.
func (s *Store) Run(ctx context.Context, id string) (domain.Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM pipeline_runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Run{}, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return run, err
}

// Runs lists the most recent ledger entries, newest first. limit <= 0 means all.
func (s *Store) Runs(ctx context.Context, limit int) ([]domain.Run, error) {
	query := `SELECT ` + runColumns + ` FROM pipeline_runs ORDER BY started_at DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

const runColumns = `id, started_at, finished_at, status, weather_rows, sensor_rows, social_rows, stress_rows, error`

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (domain.Run, error) {
	var (
		run      domain.Run
		started  string
		finished sql.NullString
		status   string
	)
	if err := row.Scan(&run.ID, &started, &finished, &status, &run.WeatherRows, &run.SensorRows,
		&run.SocialRows, &run.StressRows, &run.Error); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return run, err
		}
		return run, fmt.Errorf("scan run: %w", err)
	}
	run.Status = domain.RunStatus(status)

	var err error
	if run.StartedAt, err = parseTime(started); err != nil {
		return run, err
	}
	if finished.Valid {
		if run.FinishedAt, err = parseTime(finished.String); err != nil {
			return run, err
		}
	}
	return run, nil
}
