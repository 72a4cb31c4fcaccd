package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
)

// DataMallClient fetches bus arrivals from a DataMall-style JSON API.
// Requests are keyed by stop code and authenticated with an account
// key header.
type DataMallClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  zerolog.Logger
}

// NewDataMallClient creates a client with a bounded request timeout.
func NewDataMallClient(baseURL, apiKey string, timeout time.Duration, logger zerolog.Logger) *DataMallClient {
	return &DataMallClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// datamallResponse mirrors the BusArrival payload shape. Only the
// fields the monitor consumes are decoded.
type datamallResponse struct {
	Services []struct {
		ServiceNo string `json:"ServiceNo"`
		NextBus   struct {
			EstimatedArrival string `json:"EstimatedArrival"`
			Load             string `json:"Load"`
		} `json:"NextBus"`
	} `json:"Services"`
}

// Arrivals fetches the current service list for one stop.
func (c *DataMallClient) Arrivals(ctx context.Context, stopCode string) ([]ServiceEntry, error) {
	reqURL := c.baseURL + "?BusStopCode=" + url.QueryEscape(stopCode)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("AccountKey", c.apiKey)
	req.Header.Set("accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch arrivals for stop %s: %w", stopCode, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("arrival feed returned status %d for stop %s", resp.StatusCode, stopCode)
	}

	var payload datamallResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode arrivals for stop %s: %w", stopCode, err)
	}

	entries := make([]ServiceEntry, 0, len(payload.Services))
	for _, svc := range payload.Services {
		entry := ServiceEntry{
			RouteID: svc.ServiceNo,
			Load:    ParseLoadCode(svc.NextBus.Load),
		}
		if svc.NextBus.EstimatedArrival != "" {
			t, err := time.Parse(time.RFC3339, svc.NextBus.EstimatedArrival)
			if err != nil {
				// Malformed entry: skip it, keep the rest of the stop.
				c.logger.Debug().Str("stop", stopCode).Str("service", svc.ServiceNo).
					Str("value", svc.NextBus.EstimatedArrival).Msg("unparseable estimated arrival")
			} else {
				utc := t.UTC()
				entry.EstimatedArrival = &utc
			}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
