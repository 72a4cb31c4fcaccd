package store

import (
	"context"
	"fmt"
	"time"
)

// HourlyStatistic is the aggregate summary of all observations within
// one calendar hour. At most one row exists per hour start; recomputing
// the same hour overwrites the previous row.
type HourlyStatistic struct {
	HourStart    time.Time
	TotalCount   int
	MeanDelay    float64
	DelayStdDev  float64
	SevereDelays int
	LowCount     int
	MediumCount  int
	HighCount    int
}

// UpsertHourlyStatistic inserts or replaces the row for stat.HourStart.
// Idempotent: the same input always yields the same stored row.
func (db *DB) UpsertHourlyStatistic(ctx context.Context, stat HourlyStatistic) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO hourly_statistics
			(hour_start_utc, total_count, mean_delay, delay_stddev, severe_delays,
			 low_count, medium_count, high_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (hour_start_utc) DO UPDATE SET
			total_count = excluded.total_count,
			mean_delay = excluded.mean_delay,
			delay_stddev = excluded.delay_stddev,
			severe_delays = excluded.severe_delays,
			low_count = excluded.low_count,
			medium_count = excluded.medium_count,
			high_count = excluded.high_count
	`,
		stat.HourStart.UTC().Truncate(time.Hour).Format(time.RFC3339),
		stat.TotalCount,
		stat.MeanDelay,
		stat.DelayStdDev,
		stat.SevereDelays,
		stat.LowCount,
		stat.MediumCount,
		stat.HighCount,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert hourly statistic: %w", err)
	}
	return nil
}

// ReadHourlyStatistics returns hourly statistics within the lookback
// window, ascending by hour. Returns an empty slice (not an error)
// when no data exists yet.
func (db *DB) ReadHourlyStatistics(ctx context.Context, sinceHours int) ([]HourlyStatistic, error) {
	if sinceHours < 1 {
		sinceHours = 1
	}

	query := fmt.Sprintf(`
		SELECT hour_start_utc, total_count, mean_delay, delay_stddev, severe_delays,
			low_count, medium_count, high_count
		FROM hourly_statistics
		WHERE datetime(hour_start_utc) >= datetime('now', '-%d hours')
		ORDER BY hour_start_utc ASC
	`, sinceHours)

	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query hourly statistics: %w", err)
	}
	defer rows.Close()

	stats := []HourlyStatistic{}
	for rows.Next() {
		var stat HourlyStatistic
		var hourStart string
		if err := rows.Scan(&hourStart, &stat.TotalCount, &stat.MeanDelay, &stat.DelayStdDev,
			&stat.SevereDelays, &stat.LowCount, &stat.MediumCount, &stat.HighCount); err != nil {
			return nil, fmt.Errorf("failed to scan hourly statistic: %w", err)
		}
		if t, err := time.Parse(time.RFC3339, hourStart); err == nil {
			stat.HourStart = t
		}
		stats = append(stats, stat)
	}
	return stats, rows.Err()
}
