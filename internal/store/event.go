// Package store is the persistence layer: events in Postgres, master data in
// Postgres behind the cooling cache.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"roadwatch-event-engine/internal/models"
)

// EventRecord is the events table row.
type EventRecord struct {
	ID                       int64  `gorm:"primaryKey;autoIncrement"`
	TaskCode                 string `gorm:"size:64;index"`
	Source                   string `gorm:"size:16"`
	EventType                string `gorm:"size:32;index"`
	EventTypeName            string `gorm:"size:128"`
	EventTime                time.Time
	EndTime                  *time.Time
	Marking                  string `gorm:"size:16;index"`
	EngineEventID            string `gorm:"size:128;uniqueIndex"`
	VehicleType              string `gorm:"size:32"`
	PlateNumber              string `gorm:"size:32"`
	PlateColor               string `gorm:"size:32"`
	SpecialCarType           string `gorm:"size:32"`
	EngineVersion            string `gorm:"size:32"`
	Snapshot                 datatypes.JSON
	SnapshotURICompress      string `gorm:"size:512"`
	SnapshotURIRawCompress   string `gorm:"size:512"`
	SnapshotURICoverCompress string `gorm:"size:512"`
	ExtraData                datatypes.JSON
	CameraCode               string `gorm:"size:64"`
	EvidenceStatus           string `gorm:"size:16"`
	EvidenceURL              string `gorm:"size:512"`
	OriginalViolationIndex   int
	Extra                    datatypes.JSON
	ProjectID                int64 `gorm:"index"`
	ProjectName              string `gorm:"size:128"`
	CompanyID                int64
	CompanyName              string `gorm:"size:128"`
	FilteredType             string `gorm:"size:32"`
	MarkingTime              *time.Time
	CreatedAt                time.Time
}

func (EventRecord) TableName() string { return "events" }

// EventStore persists processed events.
type EventStore struct {
	db *gorm.DB
}

func NewEventStore(db *gorm.DB) *EventStore {
	return &EventStore{db: db}
}

// Create inserts the event and backfills its generated row ID.
func (s *EventStore) Create(ctx context.Context, e *models.Event) error {
	record, err := recordFromEvent(e)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("insert event %s: %w", e.EngineEventID, err)
	}
	e.ID = record.ID
	return nil
}

// UpdateSnapshotArchive stores the compressed snapshot archives produced by
// deferred post-processing.
func (s *EventStore) UpdateSnapshotArchive(ctx context.Context, engineEventID string, snapshot, raw, cover string) error {
	err := s.db.WithContext(ctx).
		Model(&EventRecord{}).
		Where("engine_event_id = ?", engineEventID).
		Updates(map[string]any{
			"snapshot_uri_compress":       snapshot,
			"snapshot_uri_raw_compress":   raw,
			"snapshot_uri_cover_compress": cover,
		}).Error
	if err != nil {
		return fmt.Errorf("update snapshot archive for %s: %w", engineEventID, err)
	}
	return nil
}

func recordFromEvent(e *models.Event) (*EventRecord, error) {
	record := &EventRecord{
		TaskCode:                 e.TaskCode,
		Source:                   e.Source,
		EventType:                e.EventType,
		EventTypeName:            e.EventTypeName,
		EventTime:                e.EventTime.Time,
		Marking:                  string(e.Marking),
		EngineEventID:            e.EngineEventID,
		VehicleType:              e.VehicleType,
		PlateNumber:              e.PlateNumber,
		PlateColor:               e.PlateColor,
		SpecialCarType:           e.SpecialCarType,
		EngineVersion:            e.EngineVersion,
		SnapshotURICompress:      e.SnapshotURICompress,
		SnapshotURIRawCompress:   e.SnapshotURIRawCompress,
		SnapshotURICoverCompress: e.SnapshotURICoverCompress,
		CameraCode:               e.CameraCode,
		EvidenceStatus:           e.EvidenceStatus,
		EvidenceURL:              e.EvidenceURL,
		OriginalViolationIndex:   e.OriginalViolationIndex,
		ProjectID:                e.ProjectID,
		ProjectName:              e.ProjectName,
		CompanyID:                e.CompanyID,
		CompanyName:              e.CompanyName,
		FilteredType:             string(e.FilteredType),
		MarkingTime:              e.MarkingTime,
		CreatedAt:                time.Now(),
	}
	if !e.EndTime.IsZero() {
		end := e.EndTime.Time
		record.EndTime = &end
	}

	var err error
	if record.Snapshot, err = marshalJSONColumn(e.Snapshot); err != nil {
		return nil, fmt.Errorf("encode snapshot for %s: %w", e.EngineEventID, err)
	}
	if record.ExtraData, err = marshalJSONColumn(e.ExtraData); err != nil {
		return nil, fmt.Errorf("encode extraData for %s: %w", e.EngineEventID, err)
	}
	if record.Extra, err = marshalJSONColumn(e.Extra); err != nil {
		return nil, fmt.Errorf("encode extra for %s: %w", e.EngineEventID, err)
	}
	return record, nil
}

func marshalJSONColumn(v any) (datatypes.JSON, error) {
	switch value := v.(type) {
	case nil:
		return nil, nil
	case []any:
		if value == nil {
			return nil, nil
		}
	case map[string]any:
		if value == nil {
			return nil, nil
		}
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}
