package alert

import (
	"context"

	"volspike/internal/monitor/detector"
	"volspike/pkg/storage/postgres"
)

// StoreSink persists confirmed spikes to the history table.
type StoreSink struct {
	client *postgres.PostgresClient
}

func NewStoreSink(client *postgres.PostgresClient) *StoreSink {
	return &StoreSink{client: client}
}

func (s *StoreSink) Publish(ctx context.Context, ev detector.Event) error {
	return s.client.InsertSpike(ctx, &postgres.SpikeRecord{
		Symbol:         ev.Symbol,
		DetectedAt:     ev.Time,
		CurrentVolume:  ev.CurrentVolume,
		BaselineVolume: ev.BaselineVolume,
		Ratio:          ev.Ratio,
	})
}
