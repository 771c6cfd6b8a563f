package stream

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"volspike/config"
	"volspike/internal/monitor/volstore"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{}

// wsURL rewrites an httptest server URL to the websocket scheme.
func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

func testWSConfig(url string, maxAttempts int) config.WSConfig {
	return config.WSConfig{
		URL:                  url,
		PingInterval:         50 * time.Millisecond,
		PongTimeout:          2 * time.Second,
		ReconnectDelay:       10 * time.Millisecond,
		MaxReconnectAttempts: maxAttempts,
		MaxBatchSize:         20,
	}
}

// totalVolume sums every retained bucket so assertions do not depend on
// where the wall clock sits within the current bucket.
func totalVolume(store *volstore.Store, symbol string) float64 {
	sum := 0.0
	for _, b := range store.History(symbol, time.Now(), 2*time.Hour) {
		sum += b.Volume
	}
	return sum
}

func tradeJSON(symbol string, price, qty float64) string {
	return fmt.Sprintf(`{"e":"trade","s":"%s","p":"%v","q":"%v","T":%d}`,
		symbol, price, qty, time.Now().UnixMilli())
}

// go test -v --run TestSupervisorReceivesMessages
func TestSupervisorReceivesMessages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte("one"))
		conn.WriteMessage(websocket.TextMessage, []byte("two"))
	}))
	defer srv.Close()

	var mu sync.Mutex
	var got []string
	sup := newSupervisor(supervisorConfig{
		name:           "test",
		url:            wsURL(srv),
		pingInterval:   50 * time.Millisecond,
		pongTimeout:    time.Second,
		reconnectDelay: 10 * time.Millisecond,
		maxAttempts:    0,
	}, func(msg []byte) {
		mu.Lock()
		got = append(got, string(msg))
		mu.Unlock()
	}, zap.NewNop())

	err := sup.Run(context.Background())
	if err != ErrGivenUp {
		t.Fatalf("expected ErrGivenUp after server close with no retries, got %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 || got[0] != "one" || got[1] != "two" {
		t.Errorf("unexpected messages: %v", got)
	}
}

// go test -v --run TestSupervisorGivesUpAfterCeiling
func TestSupervisorGivesUpAfterCeiling(t *testing.T) {
	var dials atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dials.Add(1)
		http.Error(w, "no", http.StatusBadRequest)
	}))
	defer srv.Close()

	sup := newSupervisor(supervisorConfig{
		name:           "test",
		url:            wsURL(srv),
		pingInterval:   50 * time.Millisecond,
		pongTimeout:    time.Second,
		reconnectDelay: 5 * time.Millisecond,
		maxAttempts:    2,
	}, func([]byte) {}, zap.NewNop())

	err := sup.Run(context.Background())
	if err != ErrGivenUp {
		t.Fatalf("expected ErrGivenUp, got %v", err)
	}
	if sup.State() != StateGivenUp {
		t.Errorf("expected terminal given_up state, got %v", sup.State())
	}
	// Initial dial plus two reconnect attempts.
	if n := dials.Load(); n != 3 {
		t.Errorf("expected 3 dial attempts, got %d", n)
	}
}

// go test -v --run TestSupervisorStopsOnCancel
func TestSupervisorStopsOnCancel(t *testing.T) {
	connected := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		close(connected)
		// Hold the connection open; discard control frames.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	sup := newSupervisor(supervisorConfig{
		name:           "test",
		url:            wsURL(srv),
		pingInterval:   20 * time.Millisecond,
		pongTimeout:    2 * time.Second,
		reconnectDelay: 10 * time.Millisecond,
		maxAttempts:    5,
	}, func([]byte) {}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	<-connected
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not stop after cancellation")
	}
}

// go test -v --run TestManagerMultiplexDelivery
func TestManagerMultiplexDelivery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/stream") {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Multiplexed delivery wraps payloads in the stream envelope.
		for i := 0; i < 5; i++ {
			env := fmt.Sprintf(`{"stream":"btcusdt@trade","data":%s}`, tradeJSON("BTCUSDT", 100, 2))
			if err := conn.WriteMessage(websocket.TextMessage, []byte(env)); err != nil {
				return
			}
			env = fmt.Sprintf(`{"stream":"ethusdt@trade","data":%s}`, tradeJSON("ETHUSDT", 10, 1))
			if err := conn.WriteMessage(websocket.TextMessage, []byte(env)); err != nil {
				return
			}
		}
		// Hold open until the client disconnects.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	store := volstore.New(5*time.Minute, 2*time.Hour)
	mgr := NewManager(testWSConfig(wsURL(srv), 1), store, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	mgr.Start(ctx, []string{"BTCUSDT", "ETHUSDT"})

	waitFor(t, 3*time.Second, func() bool {
		return totalVolume(store, "BTCUSDT") == 1000 && totalVolume(store, "ETHUSDT") == 50
	}, "expected multiplexed trades to reach the volume store")

	cancel()
	mgr.Wait()
}

// go test -v --run TestManagerFallbackAndIsolation
func TestManagerFallbackAndIsolation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/stream"):
			// Multiplexed connections always fail: forces per-symbol fallback.
			http.Error(w, "no combined streams", http.StatusBadRequest)
		case r.URL.Path == "/ws/ausdt@trade":
			conn, err := upgrader.Upgrade(w, r, nil)
			if err != nil {
				return
			}
			defer conn.Close()
			for {
				msg := tradeJSON("AUSDT", 5, 10)
				if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
					return
				}
				time.Sleep(20 * time.Millisecond)
			}
		default:
			// BUSDT's connection never establishes.
			http.Error(w, "no", http.StatusBadRequest)
		}
	}))
	defer srv.Close()

	store := volstore.New(5*time.Minute, 2*time.Hour)
	mgr := NewManager(testWSConfig(wsURL(srv), 1), store, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	mgr.Start(ctx, []string{"AUSDT", "BUSDT"})

	// BUSDT exhausts its reconnect ceiling and is abandoned.
	waitFor(t, 3*time.Second, func() bool {
		st, ok := mgr.ConnState("busdt@trade")
		return ok && st == StateGivenUp
	}, "expected BUSDT stream to reach given_up")

	// AUSDT keeps flowing: one stream's terminal failure is isolated.
	waitFor(t, 3*time.Second, func() bool {
		st, ok := mgr.ConnState("ausdt@trade")
		return ok && st == StateConnected && totalVolume(store, "AUSDT") > 0
	}, "expected AUSDT stream to keep delivering trades")

	if totalVolume(store, "BUSDT") != 0 {
		t.Error("BUSDT should have no trades")
	}

	cancel()
	mgr.Wait()
}

// go test -v --run TestManagerDropsMalformedMessages
func TestManagerDropsMalformedMessages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		// Subscription ack, garbage, then a valid trade.
		conn.WriteMessage(websocket.TextMessage, []byte(`{"result":null,"id":1}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`garbage`))
		conn.WriteMessage(websocket.TextMessage, []byte(tradeJSON("BTCUSDT", 100, 1)))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	store := volstore.New(5*time.Minute, 2*time.Hour)
	mgr := NewManager(testWSConfig(wsURL(srv), 1), store, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	mgr.Start(ctx, []string{"BTCUSDT"})

	waitFor(t, 3*time.Second, func() bool {
		return totalVolume(store, "BTCUSDT") == 100
	}, "expected the valid trade to survive malformed neighbors")

	cancel()
	mgr.Wait()
}
