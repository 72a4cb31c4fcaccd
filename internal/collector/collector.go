// Package collector runs the per-cycle collection of arrival
// observations for every monitored stop.
package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sg-transit-watch/monitor/internal/catalog"
	"github.com/sg-transit-watch/monitor/internal/feed"
	"github.com/sg-transit-watch/monitor/internal/metrics"
	"github.com/sg-transit-watch/monitor/internal/store"
)

// Collector fetches arrivals for each monitored stop once per cycle,
// computes a delay estimate per service, and submits the whole batch
// to the store in a single write. It holds no state between cycles
// beyond the static stop list.
type Collector struct {
	db          *store.DB
	source      feed.ArrivalSource
	stops       []catalog.Stop
	concurrency int
	logger      zerolog.Logger
}

// New creates a collector. Concurrency bounds the per-stop fetch
// fan-out; values below 1 are treated as sequential.
func New(db *store.DB, source feed.ArrivalSource, stops []catalog.Stop, concurrency int, logger zerolog.Logger) *Collector {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Collector{
		db:          db,
		source:      source,
		stops:       stops,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Collect runs one collection cycle and returns the number of
// observations written. A single stop's failure never aborts the
// cycle: the stop is logged and skipped. Only the final batch write
// can fail the cycle.
func (c *Collector) Collect(ctx context.Context) (int, error) {
	recordedAt := time.Now().UTC()

	var (
		mu    sync.Mutex
		batch []store.ArrivalObservation
		wg    sync.WaitGroup
	)

	sem := make(chan struct{}, c.concurrency)
	for _, stop := range c.stops {
		wg.Add(1)
		sem <- struct{}{}
		go func(stop catalog.Stop) {
			defer wg.Done()
			defer func() { <-sem }()

			obs, err := c.collectStop(ctx, stop.Code, recordedAt)
			if err != nil {
				metrics.StopFetchError()
				c.logger.Warn().Err(err).Str("stop", stop.Code).Msg("skipping stop")
				return
			}

			mu.Lock()
			batch = append(batch, obs...)
			mu.Unlock()
		}(stop)
	}
	wg.Wait()

	if len(batch) == 0 {
		c.logger.Info().Msg("collection cycle produced no observations")
		return 0, nil
	}

	written, err := c.db.WriteObservations(ctx, batch)
	if err != nil {
		return 0, fmt.Errorf("failed to write observation batch: %w", err)
	}

	metrics.ObservationsPersisted(written)
	c.logger.Info().Int("observations", written).Int("stops", len(c.stops)).Msg("collection cycle complete")
	return written, nil
}

// collectStop fetches one stop and converts its service entries into
// observations. Entries without an estimated arrival are skipped.
func (c *Collector) collectStop(ctx context.Context, stopCode string, recordedAt time.Time) ([]store.ArrivalObservation, error) {
	entries, err := c.source.Arrivals(ctx, stopCode)
	if err != nil {
		return nil, err
	}

	var obs []store.ArrivalObservation
	for _, entry := range entries {
		if entry.EstimatedArrival == nil {
			continue
		}
		obs = append(obs, store.ArrivalObservation{
			StopCode:         stopCode,
			RouteID:          entry.RouteID,
			EstimatedArrival: *entry.EstimatedArrival,
			Load:             entry.Load,
			DelayMinutes:     DelayMinutes(*entry.EstimatedArrival, recordedAt),
			RecordedAt:       recordedAt,
		})
	}
	return obs, nil
}

// DelayMinutes estimates the delay for an arrival prediction. The feed
// carries no schedule, so this is a heuristic, not ground truth: the
// 10-minute mark is treated as the implied schedule. Arrivals more
// than 15 minutes out count the excess past that mark as delay,
// arrivals inside 2 minutes earn an early-arrival credit, and
// everything in between is the on-time band.
func DelayMinutes(estimated, now time.Time) float64 {
	minutesUntil := estimated.Sub(now).Minutes()
	switch {
	case minutesUntil > 15:
		return minutesUntil - 10
	case minutesUntil < 2:
		return -(2 - minutesUntil)
	default:
		return 0
	}
}
