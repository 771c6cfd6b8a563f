package postgres

import (
	"context"
	"time"

	"gorm.io/gorm/clause"
)

// InsertSpike records a confirmed spike. A duplicate (same symbol and
// detection time, e.g. after a process restart replaying a cycle) is
// silently skipped.
func (p *PostgresClient) InsertSpike(ctx context.Context, record *SpikeRecord) error {
	return p.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "symbol"},
			{Name: "detected_at"},
		},
		DoNothing: true,
	}).Create(record).Error
}

// RecentSpikes returns spikes detected since the given time, newest first.
func (p *PostgresClient) RecentSpikes(ctx context.Context, since time.Time, limit int) ([]SpikeRecord, error) {
	var records []SpikeRecord
	err := p.DB.WithContext(ctx).
		Where("detected_at >= ?", since).
		Order("detected_at DESC").
		Limit(limit).
		Find(&records).Error

	if err != nil {
		return nil, err
	}
	return records, nil
}

// DeleteOldSpikes removes history rows older than the given time.
func (p *PostgresClient) DeleteOldSpikes(ctx context.Context, before time.Time) error {
	return p.DB.WithContext(ctx).
		Where("detected_at < ?", before).
		Delete(&SpikeRecord{}).Error
}
