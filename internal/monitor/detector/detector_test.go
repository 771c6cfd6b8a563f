package detector

import (
	"testing"
	"time"
)

func testParams() Params {
	return Params{
		MinVolume:      1_000_000,
		RatioThreshold: 2.0,
		Cooldown:       15 * time.Minute,
		Confirmations:  2,
		Window:         3,
	}
}

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// go test -v --run TestSingleObservationDoesNotConfirm
func TestSingleObservationDoesNotConfirm(t *testing.T) {
	d := New(testParams())

	// ratio 3.0: qualifies, but one observation is not enough.
	if _, ok := d.Check("BTCUSDT", 3_000_000, 1_000_000, t0); ok {
		t.Fatal("expected no event after a single qualifying observation")
	}
}

// go test -v --run TestTwoObservationsConfirm
func TestTwoObservationsConfirm(t *testing.T) {
	d := New(testParams())

	if _, ok := d.Check("BTCUSDT", 3_000_000, 1_000_000, t0); ok {
		t.Fatal("unexpected event on first check")
	}
	ev, ok := d.Check("BTCUSDT", 3_100_000, 1_000_000, t0.Add(5*time.Second))
	if !ok {
		t.Fatal("expected event on second qualifying check")
	}
	if ev.Symbol != "BTCUSDT" {
		t.Errorf("unexpected symbol %q", ev.Symbol)
	}
	if ev.Ratio != 3.1 {
		t.Errorf("event should carry the latest qualifying ratio, got %v", ev.Ratio)
	}
	if ev.CurrentVolume != 3_100_000 || ev.BaselineVolume != 1_000_000 {
		t.Errorf("unexpected event volumes: %+v", ev)
	}
}

// go test -v --run TestSubThresholdResetsProgress
func TestSubThresholdResetsProgress(t *testing.T) {
	d := New(testParams())

	if _, ok := d.Check("ETHUSDT", 3_000_000, 1_000_000, t0); ok {
		t.Fatal("unexpected event")
	}
	// Ratio 0.5 clears the buffer even though volume passes the floor.
	if _, ok := d.Check("ETHUSDT", 1_500_000, 3_000_000, t0.Add(5*time.Second)); ok {
		t.Fatal("unexpected event on sub-threshold check")
	}
	// Buffer restarted: this is the first qualifying observation again.
	if _, ok := d.Check("ETHUSDT", 3_000_000, 1_000_000, t0.Add(10*time.Second)); ok {
		t.Fatal("expected no event, confirmation must restart after reset")
	}
}

// go test -v --run TestCooldownSuppression
func TestCooldownSuppression(t *testing.T) {
	d := New(testParams())

	d.Check("SOLUSDT", 3_000_000, 1_000_000, t0)
	if _, ok := d.Check("SOLUSDT", 3_000_000, 1_000_000, t0.Add(5*time.Second)); !ok {
		t.Fatal("expected confirmed spike")
	}

	// Qualifying observations during cooldown emit nothing.
	at := t0.Add(5 * time.Minute)
	for i := 0; i < 5; i++ {
		if _, ok := d.Check("SOLUSDT", 4_000_000, 1_000_000, at); ok {
			t.Fatal("expected cooldown to suppress event")
		}
		at = at.Add(5 * time.Second)
	}

	// After cooldown expiry confirmation must rebuild from scratch.
	at = t0.Add(16 * time.Minute)
	if _, ok := d.Check("SOLUSDT", 4_000_000, 1_000_000, at); ok {
		t.Fatal("expected no event on first post-cooldown observation")
	}
	if _, ok := d.Check("SOLUSDT", 4_000_000, 1_000_000, at.Add(5*time.Second)); !ok {
		t.Fatal("expected event on second post-cooldown observation")
	}
}

// go test -v --run TestMinVolumeFloor
func TestMinVolumeFloor(t *testing.T) {
	d := New(testParams())

	// Huge ratio but below the absolute floor: rejected without state change.
	for i := 0; i < 3; i++ {
		if _, ok := d.Check("DOGEUSDT", 900_000, 100_000, t0.Add(time.Duration(i)*5*time.Second)); ok {
			t.Fatal("expected no event below minimum volume")
		}
	}
}

// go test -v --run TestNonPositiveBaselineRejected
func TestNonPositiveBaselineRejected(t *testing.T) {
	d := New(testParams())

	if _, ok := d.Check("BTCUSDT", 5_000_000, 0, t0); ok {
		t.Fatal("expected no event for zero baseline")
	}
	if _, ok := d.Check("BTCUSDT", 5_000_000, -1, t0); ok {
		t.Fatal("expected no event for negative baseline")
	}
}

// go test -v --run TestSymbolsIndependent
func TestSymbolsIndependent(t *testing.T) {
	d := New(testParams())

	d.Check("AUSDT", 3_000_000, 1_000_000, t0)
	d.Check("BUSDT", 3_000_000, 1_000_000, t0)

	// Confirming A must not consume or reset B's progress.
	if _, ok := d.Check("AUSDT", 3_000_000, 1_000_000, t0.Add(5*time.Second)); !ok {
		t.Fatal("expected event for AUSDT")
	}
	if _, ok := d.Check("BUSDT", 3_000_000, 1_000_000, t0.Add(5*time.Second)); !ok {
		t.Fatal("expected event for BUSDT")
	}
}

// go test -v --run TestCooldownRemaining
func TestCooldownRemaining(t *testing.T) {
	d := New(testParams())

	if got := d.CooldownRemaining("BTCUSDT", t0); got != 0 {
		t.Errorf("expected zero remaining for unknown symbol, got %v", got)
	}

	d.Check("BTCUSDT", 3_000_000, 1_000_000, t0)
	d.Check("BTCUSDT", 3_000_000, 1_000_000, t0.Add(5*time.Second))

	got := d.CooldownRemaining("BTCUSDT", t0.Add(5*time.Minute+5*time.Second))
	if got != 10*time.Minute {
		t.Errorf("expected 10m remaining, got %v", got)
	}
	if got := d.CooldownRemaining("BTCUSDT", t0.Add(time.Hour)); got != 0 {
		t.Errorf("expected zero after expiry, got %v", got)
	}
}

// go test -v --run TestPurgeDropsStaleCooldowns
func TestPurgeDropsStaleCooldowns(t *testing.T) {
	d := New(testParams())

	d.Check("BTCUSDT", 3_000_000, 1_000_000, t0)
	d.Check("BTCUSDT", 3_000_000, 1_000_000, t0.Add(5*time.Second))

	d.Purge(t0.Add(25 * time.Hour))

	d.mu.Lock()
	_, ok := d.cooldowns["BTCUSDT"]
	d.mu.Unlock()
	if ok {
		t.Error("expected stale cooldown entry to be purged")
	}
}
