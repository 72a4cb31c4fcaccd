// Package alerting evaluates comparison results against alert
// thresholds, persists and dispatches alerts, and retires stale ones.
package alerting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sg-transit-watch/monitor/internal/analytics"
	"github.com/sg-transit-watch/monitor/internal/metrics"
	"github.com/sg-transit-watch/monitor/internal/store"
)

// crowdingAlertRatio is the high-load ratio above which a crowding
// alert is raised.
const crowdingAlertRatio = 0.4

// ErrChannelDisabled is returned by a channel that is not configured
// to deliver anything. The alert stays unnotified.
var ErrChannelDisabled = errors.New("notification channel disabled")

// NotificationChannel delivers an alert to an external channel.
// Delivery is best-effort: a failure leaves the alert unnotified and
// is retried only if the condition recurs on a later cycle.
type NotificationChannel interface {
	Send(ctx context.Context, alert store.Alert) error
}

// Engine translates comparison output into alert rows and dispatches
// notifications for them.
type Engine struct {
	db      *store.DB
	channel NotificationChannel
	logger  zerolog.Logger
}

// NewEngine creates an alert engine. The channel may be a disabled
// implementation; persistence never depends on dispatch succeeding.
func NewEngine(db *store.DB, channel NotificationChannel, logger zerolog.Logger) *Engine {
	return &Engine{db: db, channel: channel, logger: logger}
}

// Evaluate applies the threshold rules to one comparison and returns
// the alerts created. Every cycle where a condition still holds
// produces a new alert row; there is no dedup across cycles.
func (e *Engine) Evaluate(ctx context.Context, cmp *analytics.Comparison) ([]store.Alert, error) {
	var alerts []store.Alert

	switch {
	case cmp.CongestionLevel == analytics.CongestionSevere:
		alerts = append(alerts, e.newAlert(
			store.AlertSevereCongestion,
			store.SeverityCritical,
			"Severe congestion detected across the network",
			map[string]float64{
				"avg_delay":       cmp.Current.MeanDelay,
				"severe_delays":   float64(cmp.Current.SevereDelays),
				"high_load_count": float64(cmp.Current.HighCount),
			},
		))
	case cmp.CongestionLevel == analytics.CongestionHigh && cmp.DelayChangePercent > 50:
		alerts = append(alerts, e.newAlert(
			store.AlertUnusualDelay,
			store.SeverityWarning,
			fmt.Sprintf("Traffic delays are %.0f%% higher than usual", cmp.DelayChangePercent),
			map[string]float64{
				"delay_change_percent": cmp.DelayChangePercent,
				"current_avg_delay":    cmp.Current.MeanDelay,
			},
		))
	}

	if cmp.CrowdingRatio > crowdingAlertRatio {
		alerts = append(alerts, e.newAlert(
			store.AlertHighCrowdingRatio,
			store.SeverityWarning,
			fmt.Sprintf("%.0f%% of vehicles are severely crowded", cmp.CrowdingRatio*100),
			map[string]float64{
				"crowding_ratio":  cmp.CrowdingRatio,
				"high_load_count": float64(cmp.Current.HighCount),
				"total_count":     float64(cmp.Current.TotalCount),
			},
		))
	}

	for i := range alerts {
		if err := e.db.CreateAlert(ctx, alerts[i]); err != nil {
			return alerts[:i], fmt.Errorf("failed to persist alert: %w", err)
		}
		metrics.AlertCreated(string(alerts[i].Kind), string(alerts[i].Severity))
		e.logger.Info().
			Str("alert_id", alerts[i].ID).
			Str("kind", string(alerts[i].Kind)).
			Str("severity", string(alerts[i].Severity)).
			Msg(alerts[i].Message)
	}

	e.dispatch(ctx, alerts)
	return alerts, nil
}

// dispatch sends notifications for critical and warning alerts. INFO
// alerts never leave the store. Failures are logged; the alert stays
// unnotified. A disabled channel delivers nothing, so its alerts are
// never marked notified either.
func (e *Engine) dispatch(ctx context.Context, alerts []store.Alert) {
	for _, alert := range alerts {
		if alert.Severity != store.SeverityCritical && alert.Severity != store.SeverityWarning {
			continue
		}

		err := e.channel.Send(ctx, alert)
		if errors.Is(err, ErrChannelDisabled) {
			e.logger.Debug().Str("alert_id", alert.ID).Msg("notification channel disabled, alert stays unnotified")
			continue
		}
		if err != nil {
			metrics.NotificationSent(metrics.ResultError)
			e.logger.Error().Err(err).Str("alert_id", alert.ID).Msg("notification dispatch failed")
			continue
		}

		metrics.NotificationSent(metrics.ResultSuccess)
		if err := e.db.MarkNotified(ctx, alert.ID); err != nil {
			e.logger.Error().Err(err).Str("alert_id", alert.ID).Msg("failed to record notification")
		}
	}
}

// ResolveStale resolves open alerts older than maxAge and returns how
// many were resolved. Idempotent and safe to run concurrently with
// alert creation.
func (e *Engine) ResolveStale(ctx context.Context, maxAge time.Duration) (int, error) {
	open, err := e.db.ReadOpenAlerts(ctx, "")
	if err != nil {
		return 0, fmt.Errorf("failed to read open alerts: %w", err)
	}

	now := time.Now().UTC()
	resolved := 0
	for _, alert := range open {
		if now.Sub(alert.CreatedAt) <= maxAge {
			continue
		}
		if err := e.db.ResolveAlert(ctx, alert.ID); err != nil {
			return resolved, fmt.Errorf("failed to resolve alert %s: %w", alert.ID, err)
		}
		resolved++
		e.logger.Info().Str("alert_id", alert.ID).Str("kind", string(alert.Kind)).Msg("alert auto-resolved")
	}

	metrics.SetOpenAlerts(len(open) - resolved)
	return resolved, nil
}

func (e *Engine) newAlert(kind store.AlertKind, severity store.Severity, message string, details map[string]float64) store.Alert {
	return store.Alert{
		ID:        uuid.New().String(),
		Kind:      kind,
		Severity:  severity,
		Message:   message,
		Details:   details,
		CreatedAt: time.Now().UTC(),
	}
}
