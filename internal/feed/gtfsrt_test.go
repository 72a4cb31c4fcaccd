package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/rs/zerolog"
	"google.golang.org/protobuf/proto"

	"github.com/sg-transit-watch/monitor/internal/store"
)

func strPtr(s string) *string    { return &s }
func int64Ptr(v int64) *int64    { return &v }
func uint64Ptr(v uint64) *uint64 { return &v }

func tripUpdatesFeed(t *testing.T, arrivalUnix int64) []byte {
	t.Helper()

	feed := &gtfs.FeedMessage{
		Header: &gtfs.FeedHeader{
			GtfsRealtimeVersion: strPtr("2.0"),
			Timestamp:           uint64Ptr(uint64(time.Now().Unix())),
		},
		Entity: []*gtfs.FeedEntity{
			{
				Id: strPtr("e1"),
				TripUpdate: &gtfs.TripUpdate{
					Trip: &gtfs.TripDescriptor{
						TripId:  strPtr("trip-1"),
						RouteId: strPtr("R12"),
					},
					StopTimeUpdate: []*gtfs.TripUpdate_StopTimeUpdate{
						{
							StopId:  strPtr("01012"),
							Arrival: &gtfs.TripUpdate_StopTimeEvent{Time: int64Ptr(arrivalUnix)},
						},
						{
							StopId: strPtr("01013"),
						},
					},
				},
			},
			{
				// Entity without a trip update is ignored.
				Id: strPtr("e2"),
			},
		},
	}

	data, err := proto.Marshal(feed)
	if err != nil {
		t.Fatalf("failed to marshal feed: %v", err)
	}
	return data
}

func TestGTFSRTArrivals(t *testing.T) {
	arrivalUnix := time.Now().Add(12 * time.Minute).Unix()
	requests := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Write(tripUpdatesFeed(t, arrivalUnix))
	}))
	defer server.Close()

	client := NewGTFSRTClient(server.URL, 5*time.Second, zerolog.Nop())

	entries, err := client.Arrivals(context.Background(), "01012")
	if err != nil {
		t.Fatalf("Arrivals failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry for stop 01012, got %d", len(entries))
	}
	entry := entries[0]
	if entry.RouteID != "R12" {
		t.Errorf("expected route R12, got %s", entry.RouteID)
	}
	if entry.Load != store.LoadUnknown {
		t.Errorf("trip updates carry no occupancy, expected UNKNOWN load, got %s", entry.Load)
	}
	if entry.EstimatedArrival == nil || entry.EstimatedArrival.Unix() != arrivalUnix {
		t.Errorf("arrival mismatch: %v", entry.EstimatedArrival)
	}

	// A stop_time_update without arrival info yields a nil arrival.
	entries, err = client.Arrivals(context.Background(), "01013")
	if err != nil {
		t.Fatalf("Arrivals failed: %v", err)
	}
	if len(entries) != 1 || entries[0].EstimatedArrival != nil {
		t.Errorf("expected 1 entry with nil arrival for stop 01013, got %+v", entries)
	}

	// Second stop was answered from cache: one feed download total.
	if requests != 1 {
		t.Errorf("expected 1 feed fetch, got %d", requests)
	}
}

func TestGTFSRTUnknownStop(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(tripUpdatesFeed(t, time.Now().Unix()))
	}))
	defer server.Close()

	client := NewGTFSRTClient(server.URL, 5*time.Second, zerolog.Nop())
	entries, err := client.Arrivals(context.Background(), "99999")
	if err != nil {
		t.Fatalf("Arrivals failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no entries for unknown stop, got %d", len(entries))
	}
}

func TestGTFSRTFetchError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewGTFSRTClient(server.URL, 5*time.Second, zerolog.Nop())
	if _, err := client.Arrivals(context.Background(), "01012"); err == nil {
		t.Fatal("expected error for non-success feed response")
	}
}
