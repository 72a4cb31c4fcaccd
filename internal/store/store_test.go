package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("failed to ensure schema: %v", err)
	}
	return db
}

func TestWriteReadObservationsRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	batch := []ArrivalObservation{
		{StopCode: "01012", RouteID: "12", EstimatedArrival: now.Add(5 * time.Minute), Load: LoadLow, DelayMinutes: 0, RecordedAt: now},
		{StopCode: "01012", RouteID: "33", EstimatedArrival: now.Add(20 * time.Minute), Load: LoadHigh, DelayMinutes: 10, RecordedAt: now},
		{StopCode: "01013", RouteID: "12", EstimatedArrival: now.Add(1 * time.Minute), Load: LoadMedium, DelayMinutes: -1, RecordedAt: now},
	}

	written, err := db.WriteObservations(ctx, batch)
	if err != nil {
		t.Fatalf("WriteObservations failed: %v", err)
	}
	if written != 3 {
		t.Errorf("expected 3 written, got %d", written)
	}

	all, err := db.ReadObservations(ctx, ObservationFilter{SinceDays: 1})
	if err != nil {
		t.Fatalf("ReadObservations failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 observations, got %d", len(all))
	}

	byStop, err := db.ReadObservations(ctx, ObservationFilter{StopCode: "01012", SinceDays: 1})
	if err != nil {
		t.Fatalf("ReadObservations by stop failed: %v", err)
	}
	if len(byStop) != 2 {
		t.Errorf("expected 2 observations for stop 01012, got %d", len(byStop))
	}

	byRoute, err := db.ReadObservations(ctx, ObservationFilter{RouteID: "12", SinceDays: 1})
	if err != nil {
		t.Fatalf("ReadObservations by route failed: %v", err)
	}
	if len(byRoute) != 2 {
		t.Errorf("expected 2 observations for route 12, got %d", len(byRoute))
	}

	combined, err := db.ReadObservations(ctx, ObservationFilter{StopCode: "01013", RouteID: "12", SinceDays: 1})
	if err != nil {
		t.Fatalf("ReadObservations by stop+route failed: %v", err)
	}
	if len(combined) != 1 {
		t.Fatalf("expected 1 observation for stop 01013 route 12, got %d", len(combined))
	}
	got := combined[0]
	if got.Load != LoadMedium || got.DelayMinutes != -1 || !got.RecordedAt.Equal(now) {
		t.Errorf("round-trip mismatch: %+v", got)
	}
}

func TestWriteObservationsEmptyBatch(t *testing.T) {
	db := newTestDB(t)

	written, err := db.WriteObservations(context.Background(), nil)
	if err != nil {
		t.Fatalf("WriteObservations failed on empty batch: %v", err)
	}
	if written != 0 {
		t.Errorf("expected 0 written, got %d", written)
	}
}

func TestObservationsBetween(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	hourStart := time.Date(2025, 8, 30, 14, 0, 0, 0, time.UTC)
	batch := []ArrivalObservation{
		{StopCode: "A", RouteID: "1", EstimatedArrival: hourStart, Load: LoadLow, RecordedAt: hourStart.Add(-time.Minute)},
		{StopCode: "B", RouteID: "2", EstimatedArrival: hourStart, Load: LoadLow, RecordedAt: hourStart},
		{StopCode: "C", RouteID: "3", EstimatedArrival: hourStart, Load: LoadLow, RecordedAt: hourStart.Add(59 * time.Minute)},
		{StopCode: "D", RouteID: "4", EstimatedArrival: hourStart, Load: LoadLow, RecordedAt: hourStart.Add(time.Hour)},
	}
	if _, err := db.WriteObservations(ctx, batch); err != nil {
		t.Fatalf("WriteObservations failed: %v", err)
	}

	window, err := db.ObservationsBetween(ctx, hourStart, hourStart.Add(time.Hour))
	if err != nil {
		t.Fatalf("ObservationsBetween failed: %v", err)
	}
	if len(window) != 2 {
		t.Fatalf("expected 2 observations in window, got %d", len(window))
	}
	if window[0].StopCode != "B" || window[1].StopCode != "C" {
		t.Errorf("expected window [B C], got [%s %s]", window[0].StopCode, window[1].StopCode)
	}
}

func TestUpsertHourlyStatisticIdempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	stat := HourlyStatistic{
		HourStart:    time.Now().UTC().Add(-time.Hour).Truncate(time.Hour),
		TotalCount:   42,
		MeanDelay:    3.5,
		DelayStdDev:  1.25,
		SevereDelays: 4,
		LowCount:     20,
		MediumCount:  15,
		HighCount:    7,
	}

	if err := db.UpsertHourlyStatistic(ctx, stat); err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}
	if err := db.UpsertHourlyStatistic(ctx, stat); err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}

	stats, err := db.ReadHourlyStatistics(ctx, 24)
	if err != nil {
		t.Fatalf("ReadHourlyStatistics failed: %v", err)
	}
	if len(stats) != 1 {
		t.Fatalf("expected exactly 1 row after double upsert, got %d", len(stats))
	}
	got := stats[0]
	if got.TotalCount != 42 || got.MeanDelay != 3.5 || got.DelayStdDev != 1.25 ||
		got.SevereDelays != 4 || got.LowCount != 20 || got.MediumCount != 15 || got.HighCount != 7 {
		t.Errorf("stored row mismatch: %+v", got)
	}
}

func TestUpsertHourlyStatisticOverwrites(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	hour := time.Now().UTC().Add(-time.Hour).Truncate(time.Hour)

	if err := db.UpsertHourlyStatistic(ctx, HourlyStatistic{HourStart: hour, TotalCount: 10, MeanDelay: 2}); err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}
	if err := db.UpsertHourlyStatistic(ctx, HourlyStatistic{HourStart: hour, TotalCount: 12, MeanDelay: 2.5}); err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}

	stats, err := db.ReadHourlyStatistics(ctx, 24)
	if err != nil {
		t.Fatalf("ReadHourlyStatistics failed: %v", err)
	}
	if len(stats) != 1 {
		t.Fatalf("expected 1 row, got %d", len(stats))
	}
	if stats[0].TotalCount != 12 || stats[0].MeanDelay != 2.5 {
		t.Errorf("expected overwritten row, got %+v", stats[0])
	}
}

func TestReadHourlyStatisticsEmpty(t *testing.T) {
	db := newTestDB(t)

	stats, err := db.ReadHourlyStatistics(context.Background(), 24)
	if err != nil {
		t.Fatalf("ReadHourlyStatistics failed: %v", err)
	}
	if len(stats) != 0 {
		t.Errorf("expected empty slice, got %d rows", len(stats))
	}
}

func TestAlertLifecycle(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	alert := Alert{
		ID:        "a-1",
		Kind:      AlertSevereCongestion,
		Severity:  SeverityCritical,
		Message:   "Severe congestion detected across the network",
		Details:   map[string]float64{"avg_delay": 18, "high_load_count": 6},
		CreatedAt: time.Now().UTC(),
	}
	if err := db.CreateAlert(ctx, alert); err != nil {
		t.Fatalf("CreateAlert failed: %v", err)
	}

	open, err := db.ReadOpenAlerts(ctx, "")
	if err != nil {
		t.Fatalf("ReadOpenAlerts failed: %v", err)
	}
	if len(open) != 1 {
		t.Fatalf("expected 1 open alert, got %d", len(open))
	}
	got := open[0]
	if got.Notified {
		t.Error("new alert should not be notified")
	}
	if got.ResolvedAt != nil {
		t.Error("new alert should not be resolved")
	}
	if got.Details["avg_delay"] != 18 {
		t.Errorf("details round-trip failed: %+v", got.Details)
	}

	if err := db.MarkNotified(ctx, "a-1"); err != nil {
		t.Fatalf("MarkNotified failed: %v", err)
	}
	open, _ = db.ReadOpenAlerts(ctx, "")
	if !open[0].Notified {
		t.Error("alert should be notified after MarkNotified")
	}

	if err := db.ResolveAlert(ctx, "a-1"); err != nil {
		t.Fatalf("ResolveAlert failed: %v", err)
	}
	open, err = db.ReadOpenAlerts(ctx, "")
	if err != nil {
		t.Fatalf("ReadOpenAlerts after resolve failed: %v", err)
	}
	if len(open) != 0 {
		t.Errorf("expected no open alerts after resolve, got %d", len(open))
	}

	// Resolving again is a no-op.
	if err := db.ResolveAlert(ctx, "a-1"); err != nil {
		t.Fatalf("second ResolveAlert failed: %v", err)
	}
}

func TestReadOpenAlertsSeverityFilter(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	alerts := []Alert{
		{ID: "c-1", Kind: AlertSevereCongestion, Severity: SeverityCritical, Message: "critical", CreatedAt: now},
		{ID: "w-1", Kind: AlertHighCrowdingRatio, Severity: SeverityWarning, Message: "warning", CreatedAt: now},
		{ID: "w-2", Kind: AlertUnusualDelay, Severity: SeverityWarning, Message: "warning", CreatedAt: now},
	}
	for _, a := range alerts {
		if err := db.CreateAlert(ctx, a); err != nil {
			t.Fatalf("CreateAlert %s failed: %v", a.ID, err)
		}
	}

	warnings, err := db.ReadOpenAlerts(ctx, SeverityWarning)
	if err != nil {
		t.Fatalf("ReadOpenAlerts failed: %v", err)
	}
	if len(warnings) != 2 {
		t.Errorf("expected 2 warning alerts, got %d", len(warnings))
	}
	for _, a := range warnings {
		if a.Severity != SeverityWarning {
			t.Errorf("unexpected severity %s in filtered read", a.Severity)
		}
	}
}
