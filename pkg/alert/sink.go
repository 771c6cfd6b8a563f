// Package alert is the outbound boundary for confirmed spike events.
// Delivery mechanics (chat bots, message formatting, provider rate limits)
// live behind the Sink interface and outside this repository's core.
package alert

import (
	"context"

	"volspike/internal/monitor/detector"

	"go.uber.org/zap"
)

// Sink receives confirmed spike events. The pipeline calls Publish at most
// once per confirmed, non-cooled-down detection; a failing sink never
// affects detector state.
type Sink interface {
	Publish(ctx context.Context, ev detector.Event) error
}

// LogSink writes spike events to the application log.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Publish(_ context.Context, ev detector.Event) error {
	s.logger.Info("volume spike detected",
		zap.String("symbol", ev.Symbol),
		zap.Float64("current_volume", ev.CurrentVolume),
		zap.Float64("baseline_volume", ev.BaselineVolume),
		zap.Float64("ratio", ev.Ratio),
		zap.Time("time", ev.Time))
	return nil
}

// Fanout publishes to every sink, fire-and-forget: each sink's error is
// logged and swallowed so one slow or broken sink cannot hold up the
// detection cycle or its peers.
type Fanout struct {
	sinks  []Sink
	logger *zap.Logger
}

func NewFanout(logger *zap.Logger, sinks ...Sink) *Fanout {
	return &Fanout{sinks: sinks, logger: logger}
}

func (f *Fanout) Publish(ctx context.Context, ev detector.Event) error {
	for _, sink := range f.sinks {
		if err := sink.Publish(ctx, ev); err != nil {
			f.logger.Warn("alert sink failed",
				zap.String("symbol", ev.Symbol),
				zap.Error(err))
		}
	}
	return nil
}
