package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"cab-roaming/internal/report"
	"cab-roaming/internal/trace"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

func Ping(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

const schema = `
CREATE TABLE IF NOT EXISTS roaming_runs (
  run_id             uuid PRIMARY KEY,
  city               text NOT NULL DEFAULT '',
  generated_at       timestamptz NOT NULL,
  velocity_threshold double precision NOT NULL,
  records            integer NOT NULL,
  rejected           integer NOT NULL,
  vehicles           integer NOT NULL,
  vehicle_days       integer NOT NULL,
  pickups            integer NOT NULL
);
CREATE TABLE IF NOT EXISTS roaming_weekday_metrics (
  run_id            uuid NOT NULL REFERENCES roaming_runs(run_id) ON DELETE CASCADE,
  weekday           smallint NOT NULL,
  samples           integer NOT NULL,
  mean_distance     double precision NOT NULL,
  std_distance      double precision NOT NULL,
  upper_95_distance double precision NOT NULL,
  lower_95_distance double precision NOT NULL,
  PRIMARY KEY (run_id, weekday)
);
CREATE TABLE IF NOT EXISTS roaming_emissions (
  run_id           uuid PRIMARY KEY REFERENCES roaming_runs(run_id) ON DELETE CASCADE,
  year             integer NOT NULL,
  co2_ton          double precision NOT NULL,
  upper_95_co2_ton double precision NOT NULL,
  lower_95_co2_ton double precision NOT NULL
)`

// EnsureSchema creates the result tables if they do not exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create result tables: %w", err)
	}
	return nil
}

// FetchRecords returns the cab samples with a timestamp in [from, to), sorted
// by cab then time. A zero bound is open.
//
// Expected table: cab_traces(cab_id text, latitude double precision,
// longitude double precision, occupancy smallint, unix_time bigint).
func FetchRecords(ctx context.Context, db *sql.DB, from, to time.Time) ([]trace.Record, error) {
	q := `
SELECT cab_id, latitude, longitude, occupancy, unix_time
FROM cab_traces
WHERE ($1::bigint IS NULL OR unix_time >= $1)
  AND ($2::bigint IS NULL OR unix_time < $2)
ORDER BY cab_id, unix_time`
	rows, err := db.QueryContext(ctx, q, unixOrNull(from), unixOrNull(to))
	if err != nil {
		return nil, fmt.Errorf("query cab_traces: %w", err)
	}
	defer rows.Close()

	var recs []trace.Record
	for rows.Next() {
		var (
			r         trace.Record
			occupancy int
			unix      int64
		)
		if err := rows.Scan(&r.VehicleID, &r.Lat, &r.Lon, &occupancy, &unix); err != nil {
			return nil, err
		}
		r.Occupied = occupancy != 0
		r.Time = time.Unix(unix, 0).UTC()
		recs = append(recs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return recs, nil
}

// SaveReport stores a run with its weekday metrics and emissions in one
// transaction.
func SaveReport(ctx context.Context, db *sql.DB, r *report.Report) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	runID := r.RunID.String()
	if _, err = tx.ExecContext(ctx, `
INSERT INTO roaming_runs (run_id, city, generated_at, velocity_threshold, records, rejected, vehicles, vehicle_days, pickups)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		runID, r.City, r.GeneratedAt, r.VelocityThreshold, r.Records, r.Rejected, r.Vehicles, r.VehicleDays, r.Pickups); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	for _, w := range r.Weekdays {
		if _, err = tx.ExecContext(ctx, `
INSERT INTO roaming_weekday_metrics (run_id, weekday, samples, mean_distance, std_distance, upper_95_distance, lower_95_distance)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			runID, w.Index, w.Samples, w.MeanDistance, w.StdDistance, w.Upper95, w.Lower95); err != nil {
			return fmt.Errorf("insert weekday %s: %w", w.Weekday, err)
		}
	}
	if _, err = tx.ExecContext(ctx, `
INSERT INTO roaming_emissions (run_id, year, co2_ton, upper_95_co2_ton, lower_95_co2_ton)
VALUES ($1, $2, $3, $4, $5)`,
		runID, r.Year, r.Emissions.CO2Ton, r.Emissions.Upper95CO2Ton, r.Emissions.Lower95CO2Ton); err != nil {
		return fmt.Errorf("insert emissions: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func unixOrNull(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}
