package diagnostics

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// GormRecorder implements Recorder using GORM.
type GormRecorder struct {
	db *gorm.DB
}

// NewGormRecorder creates a new GormRecorder.
func NewGormRecorder(db *gorm.DB) *GormRecorder {
	return &GormRecorder{db: db}
}

// RecordAdaptStep appends one adapt-step summary.
func (r *GormRecorder) RecordAdaptStep(ctx context.Context, summary AdaptStepSummary) error {
	record, err := summary.toRecord()
	if err != nil {
		return fmt.Errorf("diagnostics: marshal adapt-step summary: %w", err)
	}
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("diagnostics: insert adapt-step record: %w", err)
	}
	return nil
}

// RecordXferStep appends one transfer-step summary.
func (r *GormRecorder) RecordXferStep(ctx context.Context, summary XferStepSummary) error {
	record, err := summary.toRecord()
	if err != nil {
		return fmt.Errorf("diagnostics: marshal xfer-step summary: %w", err)
	}
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("diagnostics: insert xfer-step record: %w", err)
	}
	return nil
}

// RecentAdaptSteps returns the most recent adapt-step records, newest
// first, for gridctl inspect. limit <= 0 means no limit.
func (r *GormRecorder) RecentAdaptSteps(ctx context.Context, limit int) ([]AdaptStepRecord, error) {
	var records []AdaptStepRecord
	q := r.db.WithContext(ctx).Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("diagnostics: query adapt-step records: %w", err)
	}
	return records, nil
}

// RecentXferSteps returns the most recent xfer-step records, newest
// first, for gridctl inspect. limit <= 0 means no limit.
func (r *GormRecorder) RecentXferSteps(ctx context.Context, limit int) ([]XferStepRecord, error) {
	var records []XferStepRecord
	q := r.db.WithContext(ctx).Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("diagnostics: query xfer-step records: %w", err)
	}
	return records, nil
}

// AutoMigrate creates/updates the diagnostics tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&AdaptStepRecord{}, &XferStepRecord{})
}
