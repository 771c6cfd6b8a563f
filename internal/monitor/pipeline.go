package monitor

import (
	"context"
	"sync/atomic"
	"time"

	"volspike/config"
	"volspike/internal/monitor/baseline"
	"volspike/internal/monitor/detector"
	"volspike/internal/monitor/volstore"
	"volspike/pkg/alert"

	"go.uber.org/zap"
)

// statsLogEvery controls how many poll cycles pass between stats lines.
const statsLogEvery = 60

// Pipeline runs the periodic aggregate -> baseline -> detect -> publish
// cycle. Ingestion fills the store on its own cadence; detection latency is
// bounded by the poll interval, not by tick arrival.
type Pipeline struct {
	cfg    config.MonitorConfig
	store  *volstore.Store
	det    *detector.Detector
	sink   alert.Sink
	logger *zap.Logger

	// dropped reports trades discarded by the ingestion queue, for the
	// stats line; may be nil.
	dropped func() uint64

	alerts atomic.Uint64
	cycles atomic.Uint64
}

func NewPipeline(cfg config.MonitorConfig, store *volstore.Store, det *detector.Detector,
	sink alert.Sink, dropped func() uint64, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		cfg:     cfg,
		store:   store,
		det:     det,
		sink:    sink,
		dropped: dropped,
		logger:  logger,
	}
}

// Run executes detection cycles on a fixed timer until ctx is done.
func (p *Pipeline) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now().UTC()
			p.runCycle(ctx, now)
			p.det.Purge(now)

			if n := p.cycles.Add(1); n%statsLogEvery == 0 {
				p.logStats(now)
			}
		}
	}
}

// runCycle checks every symbol with data once. Symbols are independent: a
// skip or sink failure for one never stops the cycle for the rest.
func (p *Pipeline) runCycle(ctx context.Context, now time.Time) {
	for _, symbol := range p.store.Symbols() {
		p.checkSymbol(ctx, symbol, now)
	}
}

func (p *Pipeline) checkSymbol(ctx context.Context, symbol string, now time.Time) {
	current := p.store.CurrentVolume(symbol, now)
	if current == 0 {
		return
	}

	lookback := time.Duration(p.cfg.BaselineWindowMinutes) * time.Minute
	history := p.store.History(symbol, now, lookback)
	if len(history) < 3 {
		// Not enough data yet for a meaningful baseline.
		return
	}

	// The last element is the current, incomplete bucket; the baseline is
	// built from the completed ones only.
	values := make([]float64, 0, len(history)-1)
	for _, b := range history[:len(history)-1] {
		values = append(values, b.Volume)
	}

	base := baseline.Estimate(values, baseline.Median)
	if base <= 0 {
		return
	}

	ev, ok := p.det.Check(symbol, current, base, now)
	if !ok {
		return
	}

	p.alerts.Add(1)

	// Price context for the alert: how far the current bucket's average
	// price sits from its recent median.
	price := p.store.CurrentPrice(symbol, now)
	basePrice := p.store.BaselinePrice(symbol, now, lookback)
	change := 0.0
	if basePrice > 0 {
		change = (price - basePrice) / basePrice * 100
	}

	p.logger.Info("spike confirmed",
		zap.String("symbol", ev.Symbol),
		zap.Float64("current_volume", ev.CurrentVolume),
		zap.Float64("baseline_volume", ev.BaselineVolume),
		zap.Float64("ratio", ev.Ratio),
		zap.Float64("price", price),
		zap.Float64("price_change_pct", change))

	// Fire-and-forget: the fanout sink logs and swallows delivery errors.
	_ = p.sink.Publish(ctx, ev)
}

// Alerts returns the number of spikes confirmed so far.
func (p *Pipeline) Alerts() uint64 {
	return p.alerts.Load()
}

func (p *Pipeline) logStats(now time.Time) {
	fields := []zap.Field{
		zap.Uint64("cycles", p.cycles.Load()),
		zap.Uint64("alerts", p.alerts.Load()),
		zap.Int("symbols", len(p.store.Symbols())),
	}
	if p.dropped != nil {
		fields = append(fields, zap.Uint64("dropped_trades", p.dropped()))
	}

	top := p.store.TopVolumes(now, 5)
	for _, sv := range top {
		fields = append(fields, zap.Float64("top_"+sv.Symbol, sv.Volume))
	}

	p.logger.Info("monitor stats", fields...)
}
