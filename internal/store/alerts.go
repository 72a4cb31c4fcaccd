package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// AlertKind identifies the condition that raised an alert.
type AlertKind string

const (
	AlertSevereCongestion  AlertKind = "SEVERE_CONGESTION"
	AlertUnusualDelay      AlertKind = "UNUSUAL_DELAY"
	AlertHighCrowdingRatio AlertKind = "HIGH_CROWDING_RATIO"
	AlertSystemAnomaly     AlertKind = "SYSTEM_ANOMALY"
)

// Severity is the alert severity level.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// Alert is one raised condition. State transitions are monotonic:
// OPEN -> NOTIFIED (notified flag) and OPEN -> RESOLVED (resolved_at
// set) never reverse. Resolved rows remain for audit.
type Alert struct {
	ID         string
	Kind       AlertKind
	Severity   Severity
	Message    string
	Details    map[string]float64
	CreatedAt  time.Time
	Notified   bool
	ResolvedAt *time.Time
}

// CreateAlert persists a new alert row.
func (db *DB) CreateAlert(ctx context.Context, alert Alert) error {
	details := alert.Details
	if details == nil {
		details = map[string]float64{}
	}
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("failed to encode alert details: %w", err)
	}

	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO alerts (alert_id, kind, severity, message, details, created_at_utc, notified)
		VALUES (?, ?, ?, ?, ?, ?, 0)
	`,
		alert.ID,
		string(alert.Kind),
		string(alert.Severity),
		alert.Message,
		string(detailsJSON),
		alert.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert %s: %w", alert.ID, err)
	}
	return nil
}

// MarkNotified records a successful notification dispatch.
func (db *DB) MarkNotified(ctx context.Context, alertID string) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	_, err := db.conn.ExecContext(ctx,
		"UPDATE alerts SET notified = 1 WHERE alert_id = ?", alertID)
	if err != nil {
		return fmt.Errorf("failed to mark alert %s notified: %w", alertID, err)
	}
	return nil
}

// ResolveAlert marks an open alert as resolved. A no-op for alerts that
// are already resolved, which keeps the sweep idempotent.
func (db *DB) ResolveAlert(ctx context.Context, alertID string) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	_, err := db.conn.ExecContext(ctx, `
		UPDATE alerts SET resolved_at_utc = ?
		WHERE alert_id = ? AND resolved_at_utc IS NULL
	`, time.Now().UTC().Format(time.RFC3339), alertID)
	if err != nil {
		return fmt.Errorf("failed to resolve alert %s: %w", alertID, err)
	}
	return nil
}

// ReadOpenAlerts returns unresolved alerts, most recent first,
// optionally filtered by severity (empty means all).
func (db *DB) ReadOpenAlerts(ctx context.Context, severity Severity) ([]Alert, error) {
	query := `
		SELECT alert_id, kind, severity, message, details, created_at_utc, notified, resolved_at_utc
		FROM alerts
		WHERE resolved_at_utc IS NULL
	`
	args := []interface{}{}
	if severity != "" {
		query += " AND severity = ?"
		args = append(args, string(severity))
	}
	query += " ORDER BY created_at_utc DESC"

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query open alerts: %w", err)
	}
	defer rows.Close()

	var alerts []Alert
	for rows.Next() {
		var alert Alert
		var kind, sev, details, createdAt string
		var notified int
		var resolvedAt sql.NullString
		if err := rows.Scan(&alert.ID, &kind, &sev, &alert.Message, &details,
			&createdAt, &notified, &resolvedAt); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alert.Kind = AlertKind(kind)
		alert.Severity = Severity(sev)
		alert.Notified = notified != 0
		if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
			alert.CreatedAt = t
		}
		if resolvedAt.Valid {
			if t, err := time.Parse(time.RFC3339, resolvedAt.String); err == nil {
				alert.ResolvedAt = &t
			}
		}
		if details != "" {
			if err := json.Unmarshal([]byte(details), &alert.Details); err != nil {
				db.logger.Warn().Err(err).Str("alert_id", alert.ID).Msg("failed to decode alert details")
			}
		}
		alerts = append(alerts, alert)
	}
	return alerts, rows.Err()
}
