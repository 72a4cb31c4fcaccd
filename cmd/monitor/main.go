package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/sg-transit-watch/monitor/internal/alerting"
	"github.com/sg-transit-watch/monitor/internal/analytics"
	"github.com/sg-transit-watch/monitor/internal/catalog"
	"github.com/sg-transit-watch/monitor/internal/collector"
	"github.com/sg-transit-watch/monitor/internal/config"
	"github.com/sg-transit-watch/monitor/internal/feed"
	"github.com/sg-transit-watch/monitor/internal/metrics"
	"github.com/sg-transit-watch/monitor/internal/store"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML configuration file (optional)")
	once := flag.Bool("once", false, "Run a single collection cycle and exit")
	interval := flag.Int("interval", 0, "Cycle interval in seconds (overrides config)")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	logger := zerolog.New(os.Stdout).With().
		Timestamp().
		Str("service", "transit-watch").
		Logger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}
	if *interval > 0 {
		cfg.PollIntervalSeconds = *interval
	}

	stops, err := catalog.Load(cfg.StopsFile)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.StopsFile).Msg("failed to load stop catalog")
	}
	logger.Info().Int("stops", len(stops)).Msg("stop catalog loaded")

	db, err := store.Open(cfg.DatabasePath, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open store")
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := db.EnsureSchema(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to ensure schema")
	}

	var source feed.ArrivalSource
	switch cfg.FeedSource {
	case config.SourceGTFSRT:
		source = feed.NewGTFSRTClient(cfg.GTFSRT.TripUpdatesURL, cfg.FetchTimeout(), logger)
	default:
		source = feed.NewDataMallClient(cfg.DataMall.BaseURL, cfg.DataMall.APIKey, cfg.FetchTimeout(), logger)
	}

	metrics.Init()
	if cfg.MetricsListen != "" {
		go serveMetrics(cfg.MetricsListen, logger)
	}

	coll := collector.New(db, source, stops, cfg.FetchConcurrency, logger)
	aggregator := analytics.NewAggregator(db, logger)
	analyzer := analytics.NewAnalyzer(db, logger)
	channel := alerting.NewEmailChannel(cfg.Email.APIKey, cfg.Email.From, cfg.Email.To, logger)
	engine := alerting.NewEngine(db, channel, logger)

	pipeline := &pipeline{
		collector:   coll,
		aggregator:  aggregator,
		analyzer:    analyzer,
		engine:      engine,
		lookback:    cfg.LookbackHours,
		alertMaxAge: cfg.AlertMaxAge(),
		logger:      logger,
	}

	if *once {
		pipeline.runCycle(ctx)
		return
	}

	logger.Info().
		Dur("interval", cfg.PollInterval()).
		Str("feed_source", cfg.FeedSource).
		Msg("monitor running")

	// Register before the first cycle so a signal arriving during it is
	// queued for the loop instead of killing the process.
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	pipeline.runCycle(ctx)

	ticker := time.NewTicker(cfg.PollInterval())
	defer ticker.Stop()

	// Cycles run to completion in this loop; a shutdown signal is only
	// observed between cycles, so an in-flight store write always
	// finishes before the connection is released.
	for {
		select {
		case <-ticker.C:
			pipeline.runCycle(ctx)
		case s := <-sig:
			logger.Info().Str("signal", s.String()).Msg("shutting down")
			cancel()
			return
		}
	}
}

// pipeline holds the wired components for one full
// collect-aggregate-compare-alert cycle.
type pipeline struct {
	collector   *collector.Collector
	aggregator  *analytics.Aggregator
	analyzer    *analytics.Analyzer
	engine      *alerting.Engine
	lookback    int
	alertMaxAge time.Duration
	logger      zerolog.Logger
}

// runCycle executes one cycle. A storage error aborts only the failing
// stage: a failed aggregation still lets the resolve sweep run, and
// the next cycle collects again.
func (p *pipeline) runCycle(ctx context.Context) {
	result := metrics.ResultSuccess

	if _, err := p.collector.Collect(ctx); err != nil {
		p.logger.Error().Err(err).Msg("collection failed")
		result = metrics.ResultError
	}

	if _, err := p.aggregator.AggregateLastHour(ctx, time.Now()); err != nil {
		p.logger.Error().Err(err).Msg("aggregation failed")
		result = metrics.ResultError
	}

	cmp, err := p.analyzer.Compare(ctx, p.lookback)
	switch {
	case errors.Is(err, analytics.ErrNoData):
		p.logger.Debug().Msg("no historical data yet, skipping alert evaluation")
	case err != nil:
		p.logger.Error().Err(err).Msg("comparison failed")
		result = metrics.ResultError
	default:
		if _, err := p.engine.Evaluate(ctx, cmp); err != nil {
			p.logger.Error().Err(err).Msg("alert evaluation failed")
			result = metrics.ResultError
		}
	}

	if _, err := p.engine.ResolveStale(ctx, p.alertMaxAge); err != nil {
		p.logger.Error().Err(err).Msg("alert resolve sweep failed")
		result = metrics.ResultError
	}

	metrics.CycleCompleted(result)
}

// serveMetrics exposes the Prometheus scrape endpoint.
func serveMetrics(addr string, logger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	logger.Info().Str("addr", addr).Msg("metrics listener started")
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error().Err(err).Msg("metrics listener stopped")
	}
}
