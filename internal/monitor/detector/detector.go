// Package detector decides whether a symbol's current bucket volume is a
// confirmed spike over its baseline. Confirmation requires the spike to
// persist across poll cycles, and a per-symbol cooldown suppresses repeat
// alerts on a sustained elevated regime.
package detector

import (
	"sync"
	"time"
)

// cooldownRetention bounds how long a symbol's last-alert time is remembered.
const cooldownRetention = 24 * time.Hour

// Params are the detection thresholds. Confirmations of the last Window
// observations must reach RatioThreshold before an event is emitted; since
// observations are produced once per poll cycle, both are effectively in
// units of the poll interval.
type Params struct {
	MinVolume      float64       // ignore buckets below this quote volume
	RatioThreshold float64       // current/baseline ratio that qualifies
	Cooldown       time.Duration // minimum gap between events per symbol
	Confirmations  int           // qualifying observations required (default 2)
	Window         int           // observation buffer capacity (default 3)
}

// Event is a confirmed volume spike. Emitted at most once per confirmed,
// non-cooled-down detection.
type Event struct {
	Symbol         string
	CurrentVolume  float64
	BaselineVolume float64
	Ratio          float64
	Time           time.Time
}

type observation struct {
	ratio    float64
	volume   float64
	baseline float64
	at       time.Time
}

// Detector holds per-symbol confirmation and cooldown state. Safe for
// concurrent use.
type Detector struct {
	params Params

	mu        sync.Mutex
	pending   map[string][]observation // recent qualifying observations, FIFO
	cooldowns map[string]time.Time     // symbol -> last alert time
}

func New(params Params) *Detector {
	if params.Confirmations <= 0 {
		params.Confirmations = 2
	}
	if params.Window < params.Confirmations {
		params.Window = 3
	}
	return &Detector{
		params:    params,
		pending:   make(map[string][]observation),
		cooldowns: make(map[string]time.Time),
	}
}

// Check evaluates one poll observation for symbol and reports whether it
// confirms a spike. A sub-threshold ratio discards any confirmation
// progress; an observation during cooldown is ignored without touching the
// buffer.
func (d *Detector) Check(symbol string, currentVolume, baselineVolume float64, now time.Time) (Event, bool) {
	if currentVolume < d.params.MinVolume {
		return Event{}, false
	}
	if baselineVolume <= 0 {
		return Event{}, false
	}

	ratio := currentVolume / baselineVolume

	d.mu.Lock()
	defer d.mu.Unlock()

	if ratio < d.params.RatioThreshold {
		// A single quiet interval cancels confirmation progress.
		delete(d.pending, symbol)
		return Event{}, false
	}

	if d.inCooldown(symbol, now) {
		return Event{}, false
	}

	buf := append(d.pending[symbol], observation{
		ratio:    ratio,
		volume:   currentVolume,
		baseline: baselineVolume,
		at:       now,
	})
	if len(buf) > d.params.Window {
		buf = buf[len(buf)-d.params.Window:]
	}
	d.pending[symbol] = buf

	qualifying := 0
	var latest observation
	for _, obs := range buf {
		if obs.ratio >= d.params.RatioThreshold {
			qualifying++
			latest = obs
		}
	}
	if qualifying < d.params.Confirmations {
		return Event{}, false
	}

	// Confirmed: the next spike must build up from scratch.
	d.cooldowns[symbol] = now
	delete(d.pending, symbol)

	return Event{
		Symbol:         symbol,
		CurrentVolume:  latest.volume,
		BaselineVolume: latest.baseline,
		Ratio:          latest.ratio,
		Time:           latest.at,
	}, true
}

// CooldownRemaining returns how long until symbol may alert again, zero if
// it is not cooling down.
func (d *Detector) CooldownRemaining(symbol string, now time.Time) time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()

	last, ok := d.cooldowns[symbol]
	if !ok {
		return 0
	}
	remaining := d.params.Cooldown - now.Sub(last)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Purge drops cooldown entries past the retention horizon and pending
// buffers for symbols with no remaining state. Memory hygiene only.
func (d *Detector) Purge(now time.Time) {
	cutoff := now.Add(-cooldownRetention)

	d.mu.Lock()
	defer d.mu.Unlock()

	for symbol, last := range d.cooldowns {
		if last.Before(cutoff) {
			delete(d.cooldowns, symbol)
		}
	}
	for symbol, buf := range d.pending {
		if len(buf) == 0 {
			if _, ok := d.cooldowns[symbol]; !ok {
				delete(d.pending, symbol)
			}
		}
	}
}

func (d *Detector) inCooldown(symbol string, now time.Time) bool {
	last, ok := d.cooldowns[symbol]
	if !ok {
		return false
	}
	return now.Sub(last) < d.params.Cooldown
}
