// Package diagnostics persists an append-only log of adapt-step and
// transfer-step summaries for offline inspection. Nothing in the core
// (C1-C6) reads this log back; it is a side observer wired from the
// driver/CLI layer only.
package diagnostics

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// JSONField is a custom type for storing small JSON payloads (a
// per-destination size map, a predicted-new-count triple) in a single
// column across sqlite/mysql/postgres.
type JSONField []byte

// Value implements driver.Valuer.
func (j JSONField) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return []byte(j), nil
}

// Scan implements sql.Scanner.
func (j *JSONField) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		*j = append((*j)[0:0], v...)
		return nil
	case string:
		*j = []byte(v)
		return nil
	default:
		return errors.New("diagnostics: unsupported type for JSONField")
	}
}

// MarshalJSON implements json.Marshaler.
func (j JSONField) MarshalJSON() ([]byte, error) {
	if j == nil {
		return []byte("null"), nil
	}
	return j, nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (j *JSONField) UnmarshalJSON(data []byte) error {
	if data == nil || string(data) == "null" {
		*j = nil
		return nil
	}
	*j = append((*j)[0:0], data...)
	return nil
}

// AdaptStepRecord is one row of the adapt_step_log table: the REFINEINFO
// counters an Engine.AdaptStep call produced (spec §4.3/§8 scenario 6).
type AdaptStepRecord struct {
	ID                int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Proc              int       `gorm:"column:proc"`
	Level             int       `gorm:"column:level"`
	MarkCount         int       `gorm:"column:mark_count"`
	RealCount         int       `gorm:"column:real_count"`
	SonsCreated       int       `gorm:"column:sons_created"`
	ElementsRefined   int       `gorm:"column:elements_refined"`
	ElementsCoarsened int       `gorm:"column:elements_coarsened"`
	PredictedNew      JSONField `gorm:"column:predicted_new;type:json"`
	RecordedAt        time.Time `gorm:"column:recorded_at;autoCreateTime"`
}

// TableName returns the table name for AdaptStepRecord.
func (AdaptStepRecord) TableName() string { return "adapt_step_log" }

// AdaptStepSummary is the in-memory shape a caller hands to Recorder;
// GormRecorder marshals PredictedNew into AdaptStepRecord.PredictedNew.
type AdaptStepSummary struct {
	Proc              int
	Level             int
	MarkCount         int
	RealCount         int
	SonsCreated       int
	ElementsRefined   int
	ElementsCoarsened int
	PredictedNew      [3]int
}

func (s AdaptStepSummary) toRecord() (*AdaptStepRecord, error) {
	predicted, err := json.Marshal(s.PredictedNew)
	if err != nil {
		return nil, err
	}
	return &AdaptStepRecord{
		Proc:              s.Proc,
		Level:             s.Level,
		MarkCount:         s.MarkCount,
		RealCount:         s.RealCount,
		SonsCreated:       s.SonsCreated,
		ElementsRefined:   s.ElementsRefined,
		ElementsCoarsened: s.ElementsCoarsened,
		PredictedNew:      JSONField(predicted),
	}, nil
}

// XferStepRecord is one row of the xfer_step_log table: one XferEnd
// pipeline run's counters and per-destination message sizes (spec
// §4.4.3 steps 1-13).
type XferStepRecord struct {
	ID              int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Proc            int       `gorm:"column:proc"`
	Sent            int       `gorm:"column:sent"`
	Received        int       `gorm:"column:received"`
	Deleted         int       `gorm:"column:deleted"`
	PrioChanged     int       `gorm:"column:prio_changed"`
	Pruned          int       `gorm:"column:pruned"`
	DestinationSize JSONField `gorm:"column:destination_size;type:json"`
	DurationMicros  int64     `gorm:"column:duration_micros"`
	RecordedAt      time.Time `gorm:"column:recorded_at;autoCreateTime"`
}

// TableName returns the table name for XferStepRecord.
func (XferStepRecord) TableName() string { return "xfer_step_log" }

// XferStepSummary is the in-memory shape a caller hands to Recorder.
type XferStepSummary struct {
	Proc            int
	Sent            int
	Received        int
	Deleted         int
	PrioChanged     int
	Pruned          int
	DestinationSize map[int]int64
	Duration        time.Duration
}

func (s XferStepSummary) toRecord() (*XferStepRecord, error) {
	sizes, err := json.Marshal(s.DestinationSize)
	if err != nil {
		return nil, err
	}
	return &XferStepRecord{
		Proc:            s.Proc,
		Sent:            s.Sent,
		Received:        s.Received,
		Deleted:         s.Deleted,
		PrioChanged:     s.PrioChanged,
		Pruned:          s.Pruned,
		DestinationSize: JSONField(sizes),
		DurationMicros:  s.Duration.Microseconds(),
	}, nil
}
