package analytics

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/sg-transit-watch/monitor/internal/store"
)

// ErrNoData is returned when the lookback window holds no hourly
// statistics. Callers treat it as "skip alert evaluation this cycle",
// not as a failure.
var ErrNoData = errors.New("no hourly statistics in lookback window")

// CongestionLevel classifies current network conditions.
type CongestionLevel string

const (
	CongestionLow      CongestionLevel = "LOW"
	CongestionModerate CongestionLevel = "MODERATE"
	CongestionHigh     CongestionLevel = "HIGH"
	CongestionSevere   CongestionLevel = "SEVERE"
)

// Comparison relates the most recent hourly statistic to the
// historical rows before it in the lookback window.
type Comparison struct {
	Current                 store.HourlyStatistic
	HistoricalMeanDelay     float64
	HistoricalCrowdingRatio float64
	CrowdingRatio           float64
	DelayChangePercent      float64
	CongestionLevel         CongestionLevel
	WorseThanUsual          bool
}

// Analyzer answers how current conditions compare to recent history.
type Analyzer struct {
	db     *store.DB
	logger zerolog.Logger
}

// NewAnalyzer creates an analyzer backed by the given store.
func NewAnalyzer(db *store.DB, logger zerolog.Logger) *Analyzer {
	return &Analyzer{db: db, logger: logger}
}

// Compare reads hourly statistics for the lookback window and treats
// the chronologically last row as current, the remainder as
// historical. With a single row, that row serves as its own baseline.
// Returns ErrNoData when the window is empty.
func (a *Analyzer) Compare(ctx context.Context, lookbackHours int) (*Comparison, error) {
	stats, err := a.db.ReadHourlyStatistics(ctx, lookbackHours)
	if err != nil {
		return nil, fmt.Errorf("failed to read hourly statistics: %w", err)
	}
	if len(stats) == 0 {
		return nil, ErrNoData
	}

	current := stats[len(stats)-1]
	historical := stats[:len(stats)-1]
	if len(historical) == 0 {
		historical = stats
	}

	var histDelaySum, histRatioSum float64
	for _, s := range historical {
		histDelaySum += s.MeanDelay
		if s.TotalCount > 0 {
			histRatioSum += float64(s.HighCount) / float64(s.TotalCount)
		}
	}
	histMeanDelay := histDelaySum / float64(len(historical))
	histCrowdingRatio := histRatioSum / float64(len(historical))

	var crowdingRatio float64
	if current.TotalCount > 0 {
		crowdingRatio = float64(current.HighCount) / float64(current.TotalCount)
	}

	var delayChange float64
	if histMeanDelay > 0 {
		delayChange = (current.MeanDelay - histMeanDelay) / histMeanDelay * 100
	}

	cmp := &Comparison{
		Current:                 current,
		HistoricalMeanDelay:     histMeanDelay,
		HistoricalCrowdingRatio: histCrowdingRatio,
		CrowdingRatio:           crowdingRatio,
		DelayChangePercent:      delayChange,
		CongestionLevel:         classifyCongestion(current.MeanDelay, crowdingRatio),
		WorseThanUsual:          current.MeanDelay > histMeanDelay*1.2,
	}

	a.logger.Debug().
		Time("current_hour", current.HourStart).
		Str("congestion", string(cmp.CongestionLevel)).
		Float64("delay_change_pct", cmp.DelayChangePercent).
		Float64("crowding_ratio", cmp.CrowdingRatio).
		Bool("worse_than_usual", cmp.WorseThanUsual).
		Msg("comparison computed")
	return cmp, nil
}

// classifyCongestion maps mean delay and high-load ratio onto the
// congestion bands. Bands are checked severest first with strict
// comparisons: a mean delay of exactly 15.0 is HIGH, not SEVERE.
func classifyCongestion(meanDelay, crowdingRatio float64) CongestionLevel {
	switch {
	case meanDelay > 15 || crowdingRatio > 0.5:
		return CongestionSevere
	case meanDelay > 10 || crowdingRatio > 0.3:
		return CongestionHigh
	case meanDelay > 5 || crowdingRatio > 0.15:
		return CongestionModerate
	default:
		return CongestionLow
	}
}
