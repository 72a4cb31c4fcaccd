package store

import (
	"context"
	"fmt"
	"time"
)

// LoadLevel is the crowding indicator attached to an arrival observation.
// Upstream codes are mapped to this closed set at the ingestion boundary;
// anything unrecognized becomes LoadUnknown.
type LoadLevel string

const (
	LoadLow     LoadLevel = "LOW"
	LoadMedium  LoadLevel = "MEDIUM"
	LoadHigh    LoadLevel = "HIGH"
	LoadUnknown LoadLevel = "UNKNOWN"
)

// ArrivalObservation is one predicted arrival event captured by the
// collector. Rows are append-only: never updated or deleted.
type ArrivalObservation struct {
	StopCode         string
	RouteID          string
	EstimatedArrival time.Time
	Load             LoadLevel
	DelayMinutes     float64
	RecordedAt       time.Time
}

// ObservationFilter narrows ReadObservations results. Empty string
// fields are ignored.
type ObservationFilter struct {
	StopCode  string
	RouteID   string
	SinceDays int
}

// WriteObservations appends a batch of observations in one transaction
// and returns the number of rows written. On failure no partial batch
// is visible.
func (db *DB) WriteObservations(ctx context.Context, batch []ArrivalObservation) (int, error) {
	if len(batch) == 0 {
		return 0, nil
	}

	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO arrival_observations
			(stop_code, route_id, estimated_arrival_utc, load_level, delay_minutes, recorded_at_utc)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare observation statement: %w", err)
	}
	defer stmt.Close()

	for _, obs := range batch {
		_, err := stmt.ExecContext(ctx,
			obs.StopCode,
			obs.RouteID,
			obs.EstimatedArrival.UTC().Format(time.RFC3339),
			string(obs.Load),
			obs.DelayMinutes,
			obs.RecordedAt.UTC().Format(time.RFC3339),
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert observation for stop %s: %w", obs.StopCode, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit observation batch: %w", err)
	}
	return len(batch), nil
}

// ReadObservations returns matching observations, most recent first.
func (db *DB) ReadObservations(ctx context.Context, filter ObservationFilter) ([]ArrivalObservation, error) {
	days := filter.SinceDays
	if days < 1 {
		days = 1
	}

	query := fmt.Sprintf(`
		SELECT stop_code, route_id, estimated_arrival_utc, load_level, delay_minutes, recorded_at_utc
		FROM arrival_observations
		WHERE datetime(recorded_at_utc) >= datetime('now', '-%d days')
	`, days)
	args := []interface{}{}

	if filter.StopCode != "" {
		query += " AND stop_code = ?"
		args = append(args, filter.StopCode)
	}
	if filter.RouteID != "" {
		query += " AND route_id = ?"
		args = append(args, filter.RouteID)
	}
	query += " ORDER BY recorded_at_utc DESC"

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query observations: %w", err)
	}
	defer rows.Close()

	return scanObservations(rows)
}

// ObservationsBetween returns observations recorded in [start, end),
// oldest first. Used by the aggregator for its hour window.
func (db *DB) ObservationsBetween(ctx context.Context, start, end time.Time) ([]ArrivalObservation, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT stop_code, route_id, estimated_arrival_utc, load_level, delay_minutes, recorded_at_utc
		FROM arrival_observations
		WHERE recorded_at_utc >= ? AND recorded_at_utc < ?
		ORDER BY recorded_at_utc ASC
	`, start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("failed to query observation window: %w", err)
	}
	defer rows.Close()

	return scanObservations(rows)
}

type rowScanner interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanObservations(rows rowScanner) ([]ArrivalObservation, error) {
	var out []ArrivalObservation
	for rows.Next() {
		var obs ArrivalObservation
		var estimated, recorded, load string
		if err := rows.Scan(&obs.StopCode, &obs.RouteID, &estimated, &load, &obs.DelayMinutes, &recorded); err != nil {
			return nil, fmt.Errorf("failed to scan observation: %w", err)
		}
		obs.Load = LoadLevel(load)
		if t, err := time.Parse(time.RFC3339, estimated); err == nil {
			obs.EstimatedArrival = t
		}
		if t, err := time.Parse(time.RFC3339, recorded); err == nil {
			obs.RecordedAt = t
		}
		out = append(out, obs)
	}
	return out, rows.Err()
}
