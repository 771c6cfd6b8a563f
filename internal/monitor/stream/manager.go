// Package stream keeps live trade feeds for every tracked symbol. Symbols
// are batched onto multiplexed connections; a batch whose multiplexed
// connection fails falls back, once, to one independently supervised
// connection per symbol. One connection's failure never touches another's.
package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"volspike/config"
	"volspike/internal/monitor/volstore"
	"volspike/pkg/binance"

	"go.uber.org/zap"
)

// tradeBufferSize bounds the queue between the read loops and the
// aggregator consumer. Reads never block on it; overflow is dropped and
// counted (best-effort feed, gaps are tolerated).
const tradeBufferSize = 4096

// Manager owns every stream connection and the single consumer that feeds
// the volume store.
type Manager struct {
	cfg    config.WSConfig
	store  *volstore.Store
	logger *zap.Logger

	trades  chan binance.Trade
	dropped atomic.Uint64
	wg      sync.WaitGroup

	mu          sync.Mutex
	supervisors map[string]*supervisor
}

func NewManager(cfg config.WSConfig, store *volstore.Store, logger *zap.Logger) *Manager {
	return &Manager{
		cfg:         cfg,
		store:       store,
		logger:      logger,
		trades:      make(chan binance.Trade, tradeBufferSize),
		supervisors: make(map[string]*supervisor),
	}
}

// Start launches the trade consumer and one connection task per batch of
// symbols. It returns immediately; Wait blocks until every task observed
// ctx cancellation and exited.
func (m *Manager) Start(ctx context.Context, symbols []string) {
	m.wg.Add(1)
	go m.consume(ctx)

	batchSize := m.cfg.MaxBatchSize
	if batchSize <= 0 {
		batchSize = 1
	}

	batches := 0
	for i := 0; i < len(symbols); i += batchSize {
		end := i + batchSize
		if end > len(symbols) {
			end = len(symbols)
		}
		batch := symbols[i:end]
		m.wg.Add(1)
		go m.runBatch(ctx, batches, batch)
		batches++
	}

	m.logger.Info("stream manager started",
		zap.Int("symbols", len(symbols)),
		zap.Int("batches", batches),
		zap.Int("batch_size", batchSize))
}

// Wait blocks until all connection tasks and the consumer have exited.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Dropped returns the number of trades discarded because the queue to the
// aggregator was full.
func (m *Manager) Dropped() uint64 {
	return m.dropped.Load()
}

// ConnState reports the state of a named connection ("batch-N" for a
// multiplexed batch, the stream name for a per-symbol fallback).
func (m *Manager) ConnState(name string) (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sup, ok := m.supervisors[name]
	if !ok {
		return StateDisconnected, false
	}
	return sup.State(), true
}

// runBatch tries the batch as one multiplexed connection, then falls back
// to per-symbol connections. The fallback happens at most once per batch.
func (m *Manager) runBatch(ctx context.Context, index int, symbols []string) {
	defer m.wg.Done()

	streams := make([]string, len(symbols))
	for i, s := range symbols {
		streams[i] = binance.StreamName(s)
	}

	// The multiplexed attempt gets no reconnects: any establish or run
	// failure moves the whole batch to per-symbol connections instead.
	multi := m.register(fmt.Sprintf("batch-%d", index), supervisorConfig{
		url:         binance.MultiplexURL(m.cfg.URL, streams),
		maxAttempts: 0,
	})

	err := multi.Run(ctx)
	if err == nil || ctx.Err() != nil {
		return
	}

	m.logger.Warn("multiplexed connection failed, falling back to per-symbol streams",
		zap.Int("batch", index),
		zap.Int("symbols", len(symbols)),
		zap.Error(err))

	for _, stream := range streams {
		m.wg.Add(1)
		go func(stream string) {
			defer m.wg.Done()

			sup := m.register(stream, supervisorConfig{
				url:         binance.SingleStreamURL(m.cfg.URL, stream),
				maxAttempts: m.cfg.MaxReconnectAttempts,
			})
			if err := sup.Run(ctx); errors.Is(err, ErrGivenUp) {
				// Partial service loss: this symbol stops updating, the
				// rest of the system continues.
				m.logger.Error("stream abandoned",
					zap.String("stream", stream),
					zap.String("symbol", binance.SymbolFromStream(stream)))
			}
		}(stream)
	}
}

// register builds a supervisor with the shared keepalive/reconnect settings
// and records it under name for state inspection.
func (m *Manager) register(name string, cfg supervisorConfig) *supervisor {
	cfg.name = name
	cfg.pingInterval = m.cfg.PingInterval
	cfg.pongTimeout = m.cfg.PongTimeout
	cfg.reconnectDelay = m.cfg.ReconnectDelay

	sup := newSupervisor(cfg, m.handleMessage, m.logger)

	m.mu.Lock()
	m.supervisors[name] = sup
	m.mu.Unlock()
	return sup
}

// handleMessage normalizes one wire message and queues the trade without
// ever blocking the read loop.
func (m *Manager) handleMessage(msg []byte) {
	trade, err := binance.ParseTrade(msg)
	if err != nil {
		// Subscription acks and malformed payloads land here; they are
		// dropped, never raised as connection faults.
		m.logger.Debug("dropped stream message", zap.Error(err))
		return
	}

	select {
	case m.trades <- trade:
	default:
		m.dropped.Add(1)
	}
}

// consume drains the trade queue into the volume store.
func (m *Manager) consume(ctx context.Context) {
	defer m.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case trade := <-m.trades:
			m.store.AddTrade(trade.Symbol, trade.Price, trade.Quantity, trade.Time)
		}
	}
}
