package catalog

import (
	"encoding/json"
	"fmt"
	"os"
)

// Stop is one monitored stop from the static catalog. The catalog is
// maintained by a separate bootstrap import; the monitor only reads it
// to know which stops to poll.
type Stop struct {
	Code      string  `json:"code"`
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Load reads the monitored stop catalog from a JSON file. Entries
// without a stop code are skipped.
func Load(path string) ([]Stop, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read stop catalog: %w", err)
	}

	var all []Stop
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("failed to parse stop catalog: %w", err)
	}

	stops := make([]Stop, 0, len(all))
	for _, s := range all {
		if s.Code == "" {
			continue
		}
		stops = append(stops, s)
	}

	if len(stops) == 0 {
		return nil, fmt.Errorf("stop catalog %s contains no usable stops", path)
	}
	return stops, nil
}
