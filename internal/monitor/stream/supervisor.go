package stream

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ErrGivenUp is returned by a supervisor whose reconnect ceiling was
// exceeded. The connection is terminal; other connections are unaffected.
var ErrGivenUp = errors.New("stream: reconnect attempts exhausted")

const controlWriteTimeout = 10 * time.Second

// supervisorConfig parameterizes one supervised connection. Multiplexed and
// per-symbol connections differ only in url and maxAttempts.
type supervisorConfig struct {
	name           string
	url            string
	pingInterval   time.Duration
	pongTimeout    time.Duration // read deadline; refreshed by any inbound traffic
	reconnectDelay time.Duration
	maxAttempts    int // reconnect ceiling; 0 means a single dial, no retries
}

// supervisor owns one websocket connection and keeps it alive: dial,
// keepalive pings, read loop, bounded reconnection. Every received message
// goes to handler.
type supervisor struct {
	cfg     supervisorConfig
	handler func([]byte)
	logger  *zap.Logger
	state   atomic.Int32
}

func newSupervisor(cfg supervisorConfig, handler func([]byte), logger *zap.Logger) *supervisor {
	return &supervisor{
		cfg:     cfg,
		handler: handler,
		logger:  logger.With(zap.String("conn", cfg.name)),
	}
}

func (s *supervisor) State() State {
	return State(s.state.Load())
}

func (s *supervisor) setState(st State) {
	s.state.Store(int32(st))
}

// Run drives the connection state machine until ctx is done or the
// reconnect ceiling is exceeded (ErrGivenUp).
func (s *supervisor) Run(ctx context.Context) error {
	attempts := 0

	for {
		if ctx.Err() != nil {
			s.setState(StateDisconnected)
			return ctx.Err()
		}

		s.setState(StateConnecting)
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.cfg.url, nil)
		if err == nil {
			s.setState(StateConnected)
			s.logger.Info("connected", zap.String("url", s.cfg.url))
			attempts = 0 // counter resets on every successful connect

			err = s.readLoop(ctx, conn)
			if ctx.Err() != nil {
				s.setState(StateDisconnected)
				return ctx.Err()
			}
			s.logger.Warn("connection lost", zap.Error(err))
		} else {
			s.logger.Warn("dial failed", zap.String("url", s.cfg.url), zap.Error(err))
		}

		attempts++
		if attempts > s.cfg.maxAttempts {
			s.setState(StateGivenUp)
			s.logger.Error("giving up on connection",
				zap.Int("attempts", attempts),
				zap.Int("max_attempts", s.cfg.maxAttempts))
			return ErrGivenUp
		}

		s.setState(StateReconnecting)
		s.logger.Info("reconnecting",
			zap.Int("attempt", attempts),
			zap.Duration("delay", s.cfg.reconnectDelay))
		if !sleep(ctx, s.cfg.reconnectDelay) {
			s.setState(StateDisconnected)
			return ctx.Err()
		}
	}
}

// readLoop pumps messages until the connection breaks, the keepalive
// fails, or ctx is done. The connection is closed on return.
func (s *supervisor) readLoop(ctx context.Context, conn *websocket.Conn) error {
	defer conn.Close()

	deadline := func() error {
		return conn.SetReadDeadline(time.Now().Add(s.cfg.pongTimeout))
	}
	if err := deadline(); err != nil {
		return err
	}
	conn.SetPongHandler(func(string) error {
		return deadline()
	})
	// The venue pings from its side as well; answer and refresh.
	conn.SetPingHandler(func(appData string) error {
		_ = deadline()
		return conn.WriteControl(websocket.PongMessage, []byte(appData),
			time.Now().Add(controlWriteTimeout))
	})

	// Keepalive: ping on a period shorter than the venue's idle timeout.
	// A failed write closes the connection, which unblocks ReadMessage.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(s.cfg.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				err := conn.WriteControl(websocket.PingMessage, nil,
					time.Now().Add(controlWriteTimeout))
				if err != nil {
					conn.Close()
					return
				}
			case <-ctx.Done():
				conn.Close()
				return
			case <-stop:
				return
			}
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = deadline() // any inbound traffic proves liveness
		s.handler(msg)
	}
}

// sleep waits d or until ctx is done; reports whether the full delay passed.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
