package postgres

import "time"

// SpikeRecord is one confirmed volume spike stored for audit/history.
type SpikeRecord struct {
	ID uint `gorm:"primaryKey"`

	// One row per symbol per detection time.
	Symbol     string    `gorm:"type:text;not null;index:idx_spike_symbol;index:idx_symbol_detected,unique"`
	DetectedAt time.Time `gorm:"not null;index:idx_spike_detected;index:idx_symbol_detected,unique"`

	CurrentVolume  float64 `gorm:"type:numeric;not null"`
	BaselineVolume float64 `gorm:"type:numeric;not null"`
	Ratio          float64 `gorm:"type:numeric;not null"`

	RecordedAt time.Time `gorm:"autoCreateTime"`
}

// TableName overrides the default table name for GORM.
func (SpikeRecord) TableName() string {
	return "spike_record"
}
