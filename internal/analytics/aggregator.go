// Package analytics derives hourly statistics from raw observations
// and compares current conditions against recent history.
package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/sg-transit-watch/monitor/internal/store"
)

// severeDelayMinutes is the threshold past which a delay counts as
// severe in the hourly statistic.
const severeDelayMinutes = 10

// Aggregator computes the hourly statistic for the most recently
// completed hour from raw observations in that window.
type Aggregator struct {
	db     *store.DB
	logger zerolog.Logger
}

// NewAggregator creates an aggregator backed by the given store.
func NewAggregator(db *store.DB, logger zerolog.Logger) *Aggregator {
	return &Aggregator{db: db, logger: logger}
}

// AggregateLastHour computes and upserts the statistic for the hour
// before now. With zero observations in the window no row is written
// and a nil statistic is returned: absence means "no data", which is
// distinct from a legitimately empty hour. The computation is
// deterministic, so rerunning for the same hour with unchanged data
// yields an identical row.
func (a *Aggregator) AggregateLastHour(ctx context.Context, now time.Time) (*store.HourlyStatistic, error) {
	hourStart := now.UTC().Add(-time.Hour).Truncate(time.Hour)
	hourEnd := hourStart.Add(time.Hour)

	observations, err := a.db.ObservationsBetween(ctx, hourStart, hourEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to read observation window: %w", err)
	}
	if len(observations) == 0 {
		a.logger.Debug().Time("hour_start", hourStart).Msg("no observations to aggregate")
		return nil, nil
	}

	stat := store.HourlyStatistic{HourStart: hourStart}
	var delays welfordState
	for _, obs := range observations {
		stat.TotalCount++
		delays.update(obs.DelayMinutes)
		if obs.DelayMinutes > severeDelayMinutes {
			stat.SevereDelays++
		}
		switch obs.Load {
		case store.LoadLow:
			stat.LowCount++
		case store.LoadMedium:
			stat.MediumCount++
		case store.LoadHigh:
			stat.HighCount++
		}
	}
	stat.MeanDelay = delays.mean
	stat.DelayStdDev = delays.stdDev()

	if err := a.db.UpsertHourlyStatistic(ctx, stat); err != nil {
		return nil, fmt.Errorf("failed to store hourly statistic: %w", err)
	}

	a.logger.Info().
		Time("hour_start", hourStart).
		Int("total", stat.TotalCount).
		Float64("mean_delay", stat.MeanDelay).
		Int("severe", stat.SevereDelays).
		Msg("hourly statistic aggregated")
	return &stat, nil
}
