// Package feed contains clients for the upstream arrival feeds. Every
// client implements ArrivalSource: given a stop code, return the
// current service entries predicted to arrive there.
package feed

import (
	"context"
	"time"

	"github.com/sg-transit-watch/monitor/internal/store"
)

// ServiceEntry is one upstream service record for a stop. An entry
// without an estimated arrival carries a nil EstimatedArrival and is
// skipped by the collector.
type ServiceEntry struct {
	RouteID          string
	EstimatedArrival *time.Time
	Load             store.LoadLevel
}

// ArrivalSource fetches current arrivals for a single stop. Requests
// must honor the context deadline; a timeout is reported as an
// ordinary error and the caller skips the stop.
type ArrivalSource interface {
	Arrivals(ctx context.Context, stopCode string) ([]ServiceEntry, error)
}

// ParseLoadCode maps an upstream load code to the closed load level
// set. Codes follow the LTA convention: SEA (seats available), SDA
// (standing available), LSD (limited standing). Anything else,
// including an absent code, maps to LoadUnknown.
func ParseLoadCode(code string) store.LoadLevel {
	switch code {
	case "SEA":
		return store.LoadLow
	case "SDA":
		return store.LoadMedium
	case "LSD":
		return store.LoadHigh
	default:
		return store.LoadUnknown
	}
}
