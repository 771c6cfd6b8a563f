// Package volstore retains recent trades per symbol and aggregates them
// into fixed-width quote-volume buckets on demand. Buckets are lazy
// projections of the retained trades; only the trade records are mutated.
package volstore

import (
	"sort"
	"sync"
	"time"
)

// TradeRecord is one retained trade. Times are unix seconds from the
// venue's event clock.
type TradeRecord struct {
	At       int64
	Price    float64
	Quantity float64
}

// Bucket is an aggregation interval: Start is the bucket's unix start
// second, Volume the accumulated quote volume (price * quantity).
type Bucket struct {
	Start  int64
	Volume float64
}

// SymbolVolume pairs a symbol with its current bucket volume.
type SymbolVolume struct {
	Symbol string
	Volume float64
}

// Store holds per-symbol trade history. A global RWMutex guards the symbol
// map, a per-symbol mutex guards each trade slice, so writes for different
// symbols do not serialize against each other.
type Store struct {
	bucketSec int64
	retention int64 // seconds

	globalMu sync.RWMutex
	data     map[string]*symbolTrades
}

type symbolTrades struct {
	mu     sync.Mutex
	trades []TradeRecord
	latest int64 // max event time seen for this symbol
}

func New(bucket, retention time.Duration) *Store {
	return &Store{
		bucketSec: int64(bucket / time.Second),
		retention: int64(retention / time.Second),
		data:      make(map[string]*symbolTrades),
	}
}

// BucketStart returns the start second of the bucket containing t.
func (s *Store) BucketStart(t time.Time) int64 {
	ts := t.Unix()
	return ts - ts%s.bucketSec
}

// AddTrade appends a trade for symbol and prunes records older than the
// retention horizon relative to the symbol's latest observed event time.
func (s *Store) AddTrade(symbol string, price, quantity float64, at time.Time) {
	st := s.symbolStore(symbol)
	ts := at.Unix()

	st.mu.Lock()
	defer st.mu.Unlock()

	st.trades = append(st.trades, TradeRecord{At: ts, Price: price, Quantity: quantity})
	if ts > st.latest {
		st.latest = ts
	}

	cutoff := st.latest - s.retention
	if len(st.trades) > 0 && st.trades[0].At < cutoff {
		kept := st.trades[:0]
		for _, tr := range st.trades {
			if tr.At >= cutoff {
				kept = append(kept, tr)
			}
		}
		st.trades = kept
	}
}

// CurrentVolume returns the quote volume of the bucket containing now.
func (s *Store) CurrentVolume(symbol string, now time.Time) float64 {
	current := s.BucketStart(now)
	agg := s.aggregate(symbol, current)
	if b, ok := agg[current]; ok {
		return b.volume
	}
	return 0
}

// History returns the (start, volume) buckets with start in
// [now - lookback, now], ascending. The current, possibly incomplete,
// bucket is included; baseline callers drop the last element.
func (s *Store) History(symbol string, now time.Time, lookback time.Duration) []Bucket {
	current := s.BucketStart(now)
	cutoff := current - int64(lookback/time.Second)

	agg := s.aggregate(symbol, current)

	out := make([]Bucket, 0, len(agg))
	for start, b := range agg {
		if start >= cutoff && start <= current {
			out = append(out, Bucket{Start: start, Volume: b.volume})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// TopVolumes returns up to n symbols ordered by current bucket volume,
// descending. Full recomputation across all symbols; called on demand, not
// per trade.
func (s *Store) TopVolumes(now time.Time, n int) []SymbolVolume {
	symbols := s.Symbols()

	out := make([]SymbolVolume, 0, len(symbols))
	for _, symbol := range symbols {
		out = append(out, SymbolVolume{Symbol: symbol, Volume: s.CurrentVolume(symbol, now)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Volume > out[j].Volume })

	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// CurrentPrice returns the mean trade price of the bucket containing now,
// zero when the bucket is empty.
func (s *Store) CurrentPrice(symbol string, now time.Time) float64 {
	current := s.BucketStart(now)
	agg := s.aggregate(symbol, current)
	b, ok := agg[current]
	if !ok || b.count == 0 {
		return 0
	}
	return b.priceSum / float64(b.count)
}

// BaselinePrice returns the median of the historical buckets' mean prices
// within the lookback window, excluding the current bucket. Median rather
// than mean: a thin bucket with one mispriced trade must not move it.
func (s *Store) BaselinePrice(symbol string, now time.Time, lookback time.Duration) float64 {
	current := s.BucketStart(now)
	cutoff := current - int64(lookback/time.Second)

	agg := s.aggregate(symbol, current)

	var averages []float64
	for start, b := range agg {
		if start >= cutoff && start < current && b.count > 0 {
			averages = append(averages, b.priceSum/float64(b.count))
		}
	}
	return median(averages)
}

// Symbols returns every symbol with retained trades.
func (s *Store) Symbols() []string {
	s.globalMu.RLock()
	defer s.globalMu.RUnlock()

	out := make([]string, 0, len(s.data))
	for symbol := range s.data {
		out = append(out, symbol)
	}
	sort.Strings(out)
	return out
}

type bucketAgg struct {
	volume   float64
	priceSum float64
	count    int
}

// aggregate projects the retained trades of symbol into buckets up to and
// including currentStart.
func (s *Store) aggregate(symbol string, currentStart int64) map[int64]bucketAgg {
	s.globalMu.RLock()
	st, ok := s.data[symbol]
	s.globalMu.RUnlock()
	if !ok {
		return nil
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	agg := make(map[int64]bucketAgg)
	for _, tr := range st.trades {
		start := tr.At - tr.At%s.bucketSec
		if start > currentStart {
			// Trades from the future relative to the query clock stay out
			// of every bucket until their interval opens.
			continue
		}
		b := agg[start]
		b.volume += tr.Price * tr.Quantity
		b.priceSum += tr.Price
		b.count++
		agg[start] = b
	}
	return agg
}

// symbolStore returns the per-symbol store, creating it on first use.
func (s *Store) symbolStore(symbol string) *symbolTrades {
	// Fast path: shared lock only.
	s.globalMu.RLock()
	st, ok := s.data[symbol]
	s.globalMu.RUnlock()
	if ok {
		return st
	}

	s.globalMu.Lock()
	defer s.globalMu.Unlock()
	if st, ok = s.data[symbol]; !ok {
		st = &symbolTrades{}
		s.data[symbol] = st
	}
	return st
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
