// Package discovery selects the instrument universe to monitor: active
// USDT perpetual contracts, ranked by 24h traded value.
package discovery

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"volspike/pkg/binance"

	"go.uber.org/zap"
)

type Discovery struct {
	rest         *binance.RESTClient
	min24hVolume float64
	maxSymbols   int
	logger       *zap.Logger
}

func New(rest *binance.RESTClient, min24hVolume float64, maxSymbols int, logger *zap.Logger) *Discovery {
	return &Discovery{
		rest:         rest,
		min24hVolume: min24hVolume,
		maxSymbols:   maxSymbols,
		logger:       logger,
	}
}

// LoadSymbols fetches the tradable universe. An exchange-info failure is
// returned (no universe, fatal at startup); a ticker failure degrades to
// the unranked instrument list in exchange-info order, capped to the
// maximum count.
func (d *Discovery) LoadSymbols(ctx context.Context) ([]string, error) {
	infos, err := d.rest.GetExchangeInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("load exchange info: %w", err)
	}

	var symbols []string
	for _, info := range infos {
		if info.Status == "TRADING" && info.QuoteAsset == "USDT" && info.ContractType == "PERPETUAL" {
			symbols = append(symbols, info.Symbol)
		}
	}
	d.logger.Info("found active USDT perpetual contracts", zap.Int("count", len(symbols)))

	volumes, err := d.loadVolumes(ctx)
	if err != nil || len(volumes) == 0 {
		d.logger.Warn("24h ticker data unavailable, using unranked symbol list",
			zap.Int("count", min(len(symbols), d.maxSymbols)),
			zap.Error(err))
		return limit(symbols, d.maxSymbols), nil
	}

	filtered := symbols[:0:0]
	for _, s := range symbols {
		if volumes[s] >= d.min24hVolume {
			filtered = append(filtered, s)
		}
	}

	// Most liquid first; ties broken by name for a stable result.
	sort.Slice(filtered, func(i, j int) bool {
		vi, vj := volumes[filtered[i]], volumes[filtered[j]]
		if vi != vj {
			return vi > vj
		}
		return filtered[i] < filtered[j]
	})
	filtered = limit(filtered, d.maxSymbols)

	d.logger.Info("loaded symbol universe",
		zap.Int("count", len(filtered)),
		zap.Float64("min_24h_volume", d.min24hVolume),
		zap.Int("max_symbols", d.maxSymbols))

	return filtered, nil
}

// loadVolumes maps symbol to 24h quote volume from the ticker statistics.
func (d *Discovery) loadVolumes(ctx context.Context) (map[string]float64, error) {
	tickers, err := d.rest.Get24hTickers(ctx)
	if err != nil {
		return nil, err
	}

	volumes := make(map[string]float64, len(tickers))
	for _, t := range tickers {
		if t.Symbol == "" {
			continue
		}
		v, err := strconv.ParseFloat(t.QuoteVolume, 64)
		if err != nil || v <= 0 {
			continue
		}
		volumes[t.Symbol] = v
	}
	return volumes, nil
}

func limit(symbols []string, n int) []string {
	if n > 0 && len(symbols) > n {
		return symbols[:n]
	}
	return symbols
}
