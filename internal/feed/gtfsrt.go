package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/rs/zerolog"
	"google.golang.org/protobuf/proto"

	"github.com/sg-transit-watch/monitor/internal/store"
)

// feedCacheTTL bounds how often the trip updates feed is re-fetched.
// One feed download covers every stop in a collection cycle.
const feedCacheTTL = 30 * time.Second

// GTFSRTClient adapts a GTFS-RT TripUpdates feed to the per-stop
// ArrivalSource interface. The feed is fetched once and cached for the
// duration of a cycle; Arrivals answers each stop from the cached
// stop_time_update index. Trip updates carry no occupancy, so entries
// report LoadUnknown.
type GTFSRTClient struct {
	tripUpdatesURL string
	client         *http.Client
	logger         zerolog.Logger

	mu        sync.Mutex
	fetchedAt time.Time
	byStop    map[string][]ServiceEntry
}

// NewGTFSRTClient creates an adapter with a bounded request timeout.
func NewGTFSRTClient(tripUpdatesURL string, timeout time.Duration, logger zerolog.Logger) *GTFSRTClient {
	return &GTFSRTClient{
		tripUpdatesURL: tripUpdatesURL,
		client:         &http.Client{Timeout: timeout},
		logger:         logger,
	}
}

// Arrivals returns the cached trip update entries for one stop,
// refreshing the feed when the cache is stale.
func (c *GTFSRTClient) Arrivals(ctx context.Context, stopCode string) ([]ServiceEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.byStop == nil || time.Since(c.fetchedAt) > feedCacheTTL {
		if err := c.refreshLocked(ctx); err != nil {
			return nil, err
		}
	}
	return c.byStop[stopCode], nil
}

// refreshLocked downloads and indexes the feed. Caller must hold c.mu.
func (c *GTFSRTClient) refreshLocked(ctx context.Context) error {
	feed, err := c.fetchFeed(ctx)
	if err != nil {
		return err
	}

	byStop := make(map[string][]ServiceEntry)
	for _, entity := range feed.Entity {
		tripUpdate := entity.TripUpdate
		if tripUpdate == nil || tripUpdate.Trip == nil {
			continue
		}

		var routeID string
		if tripUpdate.Trip.RouteId != nil {
			routeID = *tripUpdate.Trip.RouteId
		}
		if routeID == "" {
			continue
		}

		for _, stu := range tripUpdate.StopTimeUpdate {
			if stu.StopId == nil {
				continue
			}
			entry := ServiceEntry{RouteID: routeID, Load: store.LoadUnknown}
			if stu.Arrival != nil && stu.Arrival.Time != nil {
				t := time.Unix(*stu.Arrival.Time, 0).UTC()
				entry.EstimatedArrival = &t
			}
			byStop[*stu.StopId] = append(byStop[*stu.StopId], entry)
		}
	}

	c.byStop = byStop
	c.fetchedAt = time.Now()
	c.logger.Debug().Int("stops", len(byStop)).Msg("refreshed trip updates feed")
	return nil
}

// fetchFeed fetches and parses the GTFS-RT feed.
func (c *GTFSRTClient) fetchFeed(ctx context.Context) (*gtfs.FeedMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.tripUpdatesURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch trip updates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("trip updates feed returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read trip updates response: %w", err)
	}

	feed := &gtfs.FeedMessage{}
	if err := proto.Unmarshal(body, feed); err != nil {
		return nil, fmt.Errorf("failed to parse trip updates protobuf: %w", err)
	}
	return feed, nil
}
