// Package monitor wires discovery, stream ingestion, volume aggregation and
// spike detection into the running service.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"volspike/config"
	"volspike/internal/monitor/detector"
	"volspike/internal/monitor/discovery"
	"volspike/internal/monitor/stream"
	"volspike/internal/monitor/volstore"
	"volspike/pkg/alert"
	"volspike/pkg/binance"
	"volspike/pkg/ratelimit"
	"volspike/pkg/storage/postgres"

	"go.uber.org/zap"
)

// tradeRetention bounds the raw trade history kept per symbol. Two hours
// comfortably covers the baseline window plus the current bucket.
const tradeRetention = 2 * time.Hour

// Run brings up the full monitor and blocks until ctx is cancelled. Startup
// errors (no symbol universe, storage unavailable) are returned; runtime
// stream failures degrade per connection and never abort the service.
func Run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	limiter := ratelimit.New(cfg.Binance.REST.MaxRequestsPerSecond, time.Second)
	rest := binance.NewRESTClient(cfg.Binance.REST.BaseURL, cfg.Binance.REST.Timeout, limiter)

	disc := discovery.New(rest, cfg.Monitor.Min24hVolume, cfg.Monitor.MaxSymbols, logger)
	symbols, err := disc.LoadSymbols(ctx)
	if err != nil {
		return fmt.Errorf("symbol discovery failed: %w", err)
	}
	if len(symbols) == 0 {
		return errors.New("no symbols to monitor")
	}

	store := volstore.New(time.Duration(cfg.Monitor.BucketMinutes)*time.Minute, tradeRetention)

	det := detector.New(detector.Params{
		MinVolume:      cfg.Monitor.MinVolumeThreshold,
		RatioThreshold: cfg.Monitor.SpikeRatioThreshold,
		Cooldown:       time.Duration(cfg.Monitor.CooldownMinutes) * time.Minute,
		Confirmations:  cfg.Monitor.Confirmations,
		Window:         cfg.Monitor.Window,
	})

	sinks := []alert.Sink{alert.NewLogSink(logger)}
	if cfg.Postgres.Enabled() {
		pg, err := postgres.InitializeAndMigrateSpikeRecord(cfg.Postgres, cfg.Log.Environment, true)
		if err != nil {
			return fmt.Errorf("spike history storage unavailable: %w", err)
		}
		defer pg.Close()
		sinks = append(sinks, alert.NewStoreSink(pg))
		logger.Info("spike history persistence enabled",
			zap.String("host", cfg.Postgres.Host),
			zap.String("dbname", cfg.Postgres.DBName))
	}
	sink := alert.NewFanout(logger, sinks...)

	mgr := stream.NewManager(cfg.Binance.WS, store, logger)
	mgr.Start(ctx, symbols)

	logger.Info("volume spike monitor started",
		zap.Int("symbols", len(symbols)),
		zap.Float64("min_volume_threshold", cfg.Monitor.MinVolumeThreshold),
		zap.Float64("spike_ratio_threshold", cfg.Monitor.SpikeRatioThreshold),
		zap.Int("baseline_window_minutes", cfg.Monitor.BaselineWindowMinutes),
		zap.Int("bucket_minutes", cfg.Monitor.BucketMinutes),
		zap.Int("cooldown_minutes", cfg.Monitor.CooldownMinutes),
		zap.Duration("poll_interval", cfg.Monitor.PollInterval),
		zap.Int("confirmations", cfg.Monitor.Confirmations),
		zap.Int("window", cfg.Monitor.Window))

	pipe := NewPipeline(cfg.Monitor, store, det, sink, mgr.Dropped, logger)
	pipe.Run(ctx)

	// ctx is done; wait for the stream tasks to observe it and exit.
	mgr.Wait()
	logger.Info("monitor stopped",
		zap.Uint64("alerts", pipe.Alerts()),
		zap.Uint64("dropped_trades", mgr.Dropped()))
	return nil
}
