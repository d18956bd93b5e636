package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"roadwatch-event-engine/internal/cache"
	"roadwatch-event-engine/internal/models"
)

// AlgorithmRecord is the algorithms table row.
type AlgorithmRecord struct {
	ID             int64  `gorm:"primaryKey;autoIncrement"`
	ProjectID      int64  `gorm:"index:idx_algorithms_project_event"`
	Code           string `gorm:"size:64"`
	EventType      string `gorm:"size:32;index:idx_algorithms_project_event"`
	Label          string `gorm:"size:128"`
	DrawType       string `gorm:"size:32"`
	EditableConfig datatypes.JSON
	DebugSwitch    int
	BoxDebugSwitch int
}

func (AlgorithmRecord) TableName() string { return "algorithms" }

// TaskRecord is the tasks table row.
type TaskRecord struct {
	ID          int64  `gorm:"primaryKey;autoIncrement"`
	Code        string `gorm:"size:64;uniqueIndex"`
	ProjectID   int64
	ProjectName string `gorm:"size:128"`
	CompanyID   int64
	CompanyName string `gorm:"size:128"`
	CameraCode  string `gorm:"size:64"`
	Version     string `gorm:"size:32"`
}

func (TaskRecord) TableName() string { return "tasks" }

// MasterDataStore reads algorithm and task master data cache-aside. Both
// change rarely and are read per event.
type MasterDataStore struct {
	db    *gorm.DB
	cache cache.Cache
	ttl   time.Duration
}

func NewMasterDataStore(db *gorm.DB, c cache.Cache, ttl time.Duration) *MasterDataStore {
	return &MasterDataStore{db: db, cache: c, ttl: ttl}
}

// Algorithm returns the algorithm assigned to the project for the event type,
// or nil when none is configured. The cache key format is shared with the
// upstream platform.
func (s *MasterDataStore) Algorithm(ctx context.Context, projectID int64, eventType string) (*models.Algorithm, error) {
	key := fmt.Sprintf("%d_%s", projectID, eventType)
	if raw, ok := s.cached(ctx, key); ok {
		var alg models.Algorithm
		if err := json.Unmarshal([]byte(raw), &alg); err == nil {
			return &alg, nil
		}
		log.Warn().Str("key", key).Msg("algorithm cache entry is malformed, reloading")
	}

	var record AlgorithmRecord
	err := s.db.WithContext(ctx).
		Where("project_id = ? AND event_type = ?", projectID, eventType).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load algorithm %d/%s: %w", projectID, eventType, err)
	}

	alg := &models.Algorithm{
		ID:             record.ID,
		ProjectID:      record.ProjectID,
		Code:           record.Code,
		EventType:      record.EventType,
		Label:          record.Label,
		DrawType:       record.DrawType,
		EditableConfig: json.RawMessage(record.EditableConfig),
		DebugSwitch:    record.DebugSwitch,
		BoxDebugSwitch: record.BoxDebugSwitch,
	}
	s.fill(ctx, key, alg)
	return alg, nil
}

// Task returns the task master data for a task code, or nil when the code is
// unknown.
func (s *MasterDataStore) Task(ctx context.Context, code string) (*models.Task, error) {
	key := "TASK_KEY:" + code
	if raw, ok := s.cached(ctx, key); ok {
		var task models.Task
		if err := json.Unmarshal([]byte(raw), &task); err == nil {
			return &task, nil
		}
		log.Warn().Str("key", key).Msg("task cache entry is malformed, reloading")
	}

	var record TaskRecord
	err := s.db.WithContext(ctx).Where("code = ?", code).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load task %s: %w", code, err)
	}

	task := &models.Task{
		ID:          record.ID,
		Code:        record.Code,
		ProjectID:   record.ProjectID,
		ProjectName: record.ProjectName,
		CompanyID:   record.CompanyID,
		CompanyName: record.CompanyName,
		CameraCode:  record.CameraCode,
		Version:     record.Version,
	}
	s.fill(ctx, key, task)
	return task, nil
}

// GlobalReview returns the process-wide human-review switch. An absent key
// means the switch is off.
func (s *MasterDataStore) GlobalReview(ctx context.Context) string {
	value, ok, err := s.cache.Get(ctx, cache.GlobalReviewKey)
	if err != nil {
		log.Warn().Err(err).Msg("global review switch read failed")
		return ""
	}
	if !ok {
		return ""
	}
	return value
}

func (s *MasterDataStore) cached(ctx context.Context, key string) (string, bool) {
	raw, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("master data cache read failed")
		return "", false
	}
	return raw, ok
}

func (s *MasterDataStore) fill(ctx context.Context, key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, string(raw), s.ttl); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("master data cache write failed")
	}
}
