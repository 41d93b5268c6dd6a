// Package sqlite persists raw readings, derived stress samples and the run
// ledger in a single SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/couchcryptid/urban-pulse-etl/internal/domain"
)

//go:embed schema.sql
var schema string

// timeLayout is fixed-width so lexical order on the TEXT columns equals
// chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrNotFound is returned when a lookup by id matches no row.
var ErrNotFound = errors.New("not found")

// Store is the SQLite-backed persistence layer.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and configures WAL mode.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer; concurrent pipeline runs against one file are unsupported.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, fmt.Errorf("exec %s: %w", pragma, err)
		}
	}
	return &Store{db: db}, nil
}

// Migrate creates any missing tables and indexes. It is safe to call repeatedly.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// CheckReadiness pings the database.
func (s *Store) CheckReadiness(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping sqlite: %w", err)
	}
	return nil
}

// InsertWeather appends one weather row and returns its id. A zero timestamp
// is replaced by the ingestion time.
func (s *Store) InsertWeather(ctx context.Context, r domain.WeatherReading) (int64, error) {
	var payload any
	if len(r.RawPayload) > 0 {
		payload = string(r.RawPayload)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO weather (city, temperature, humidity, description, data, timestamp) VALUES (?, ?, ?, ?, ?, ?)`,
		r.City, r.Temperature, r.Humidity, r.Description, payload, formatTime(stamp(r.Timestamp)),
	)
	if err != nil {
		return 0, fmt.Errorf("insert weather: %w", err)
	}
	return res.LastInsertId()
}

// InsertSensor appends one sensor row and returns its id.
func (s *Store) InsertSensor(ctx context.Context, r domain.SensorReading) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sensor (air_quality_index, noise_level, timestamp) VALUES (?, ?, ?)`,
		r.AirQualityIndex, r.NoiseLevel, formatTime(stamp(r.Timestamp)),
	)
	if err != nil {
		return 0, fmt.Errorf("insert sensor: %w", err)
	}
	return res.LastInsertId()
}

// InsertSocial appends one classified text and returns its id.
func (s *Store) InsertSocial(ctx context.Context, r domain.SocialRecord) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO social (text, label, score, timestamp) VALUES (?, ?, ?, ?)`,
		r.Text, r.Label, r.Score, formatTime(stamp(r.Timestamp)),
	)
	if err != nil {
		return 0, fmt.Errorf("insert social: %w", err)
	}
	return res.LastInsertId()
}

// Weather lists weather rows in insertion order. A non-empty city restricts
// the result to that city.
func (s *Store) Weather(ctx context.Context, city string) ([]domain.WeatherReading, error) {
	query := `SELECT id, city, temperature, humidity, description, data, timestamp FROM weather`
	var args []any
	if city != "" {
		query += ` WHERE city = ?`
		args = append(args, city)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query weather: %w", err)
	}
	defer rows.Close()

	var out []domain.WeatherReading
	for rows.Next() {
		var (
			r       domain.WeatherReading
			payload sql.NullString
			ts      string
		)
		if err := rows.Scan(&r.ID, &r.City, &r.Temperature, &r.Humidity, &r.Description, &payload, &ts); err != nil {
			return nil, fmt.Errorf("scan weather: %w", err)
		}
		if payload.Valid {
			r.RawPayload = []byte(payload.String)
		}
		if r.Timestamp, err = parseTime(ts); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Sensor lists sensor rows in insertion order.
func (s *Store) Sensor(ctx context.Context) ([]domain.SensorReading, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, air_quality_index, noise_level, timestamp FROM sensor ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query sensor: %w", err)
	}
	defer rows.Close()

	var out []domain.SensorReading
	for rows.Next() {
		var (
			r  domain.SensorReading
			ts string
		)
		if err := rows.Scan(&r.ID, &r.AirQualityIndex, &r.NoiseLevel, &ts); err != nil {
			return nil, fmt.Errorf("scan sensor: %w", err)
		}
		if r.Timestamp, err = parseTime(ts); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Social lists classified texts in insertion order.
func (s *Store) Social(ctx context.Context) ([]domain.SocialRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, text, label, score, timestamp FROM social ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query social: %w", err)
	}
	defer rows.Close()

	var out []domain.SocialRecord
	for rows.Next() {
		var (
			r  domain.SocialRecord
			ts string
		)
		if err := rows.Scan(&r.ID, &r.Text, &r.Label, &r.Score, &ts); err != nil {
			return nil, fmt.Errorf("scan social: %w", err)
		}
		if r.Timestamp, err = parseTime(ts); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Tables reads all three raw tables back. City filtering is left to the
// transform so that an unknown city is reported as an empty table there.
func (s *Store) Tables(ctx context.Context) (domain.Tables, error) {
	var (
		t   domain.Tables
		err error
	)
	if t.Weather, err = s.Weather(ctx, ""); err != nil {
		return t, err
	}
	if t.Sensor, err = s.Sensor(ctx); err != nil {
		return t, err
	}
	if t.Social, err = s.Social(ctx); err != nil {
		return t, err
	}
	return t, nil
}

// ReplaceStress swaps the derived table contents for samples in one transaction.
func (s *Store) ReplaceStress(ctx context.Context, samples []domain.StressSample) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace stress: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM urban_stress`); err != nil {
		return fmt.Errorf("clear urban_stress: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO urban_stress
		(timestamp, city, temperature, humidity, air_quality_index, noise_level, sentiment_factor, urban_stress_index, anomaly)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare stress insert: %w", err)
	}
	defer stmt.Close()

	for _, smp := range samples {
		var flag any
		if smp.Anomaly != "" {
			flag = string(smp.Anomaly)
		}
		if _, err := stmt.ExecContext(ctx,
			formatTime(stamp(smp.Timestamp)), smp.City, smp.Temperature, smp.Humidity,
			smp.AirQualityIndex, smp.NoiseLevel, smp.SentimentFactor, smp.UrbanStressIndex, flag,
		); err != nil {
			return fmt.Errorf("insert stress sample: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace stress: %w", err)
	}
	return nil
}

// Stress lists the derived samples in the order they were written.
func (s *Store) Stress(ctx context.Context) ([]domain.StressSample, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT timestamp, city, temperature, humidity,
		air_quality_index, noise_level, sentiment_factor, urban_stress_index, anomaly
		FROM urban_stress ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query urban_stress: %w", err)
	}
	defer rows.Close()

	var out []domain.StressSample
	for rows.Next() {
		var (
			smp  domain.StressSample
			ts   string
			flag sql.NullString
		)
		if err := rows.Scan(&ts, &smp.City, &smp.Temperature, &smp.Humidity,
			&smp.AirQualityIndex, &smp.NoiseLevel, &smp.SentimentFactor, &smp.UrbanStressIndex, &flag); err != nil {
			return nil, fmt.Errorf("scan urban_stress: %w", err)
		}
		if smp.Timestamp, err = parseTime(ts); err != nil {
			return nil, err
		}
		smp.Anomaly = domain.AnomalyFlag(flag.String)
		out = append(out, smp)
	}
	return out, rows.Err()
}

const maxSweepDays = 1 << 20

// Sweep deletes raw rows strictly older than days before now. A row stamped
// exactly at the cutoff is kept. The derived table is left alone; the next
// transform rebuilds it.
func (s *Store) Sweep(ctx context.Context, days int) (domain.SweepResult, error) {
	if days < 0 {
		return domain.SweepResult{}, fmt.Errorf("sweep: retention days must be non-negative, got %d", days)
	}
	// Windows longer than maxSweepDays reach past every stored row.
	cutoff := formatTime(domain.Now().AddDate(0, 0, -min(days, maxSweepDays)))

	var res domain.SweepResult
	for _, t := range []struct {
		table string
		n     *int64
	}{
		{"weather", &res.Weather},
		{"sensor", &res.Sensor},
		{"social", &res.Social},
	} {
		r, err := s.db.ExecContext(ctx, `DELETE FROM `+t.table+` WHERE timestamp < ?`, cutoff)
		if err != nil {
			return res, fmt.Errorf("sweep %s: %w", t.table, err)
		}
		if *t.n, err = r.RowsAffected(); err != nil {
			return res, fmt.Errorf("sweep %s rows affected: %w", t.table, err)
		}
	}
	return res, nil
}

// Counts returns the number of rows in each raw table and the derived table.
func (s *Store) Counts(ctx context.Context) (map[string]int64, error) {
	out := make(map[string]int64, 4)
	for _, table := range []string{"weather", "sensor", "social", "urban_stress"} {
		var n int64
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", table, err)
		}
		out[table] = n
	}
	return out, nil
}

func stamp(t time.Time) time.Time {
	if t.IsZero() {
		return domain.Now()
	}
	return t
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}
