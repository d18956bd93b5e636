package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"roadwatch-event-engine/internal/cache"
	"roadwatch-event-engine/internal/models"
)

// allConfigsKey caches the full filter-configuration table. The table is
// small and read on every event, so one blob beats per-project keys.
const allConfigsKey = "all_event_filter_configs"

// FilterConfigRecord is the event_filter_configs table row.
type FilterConfigRecord struct {
	ID           int64  `gorm:"primaryKey;autoIncrement"`
	ProjectID    int64  `gorm:"index"`
	SettingGroup string `gorm:"size:16"`
	Config       datatypes.JSON
	UpdatedAt    time.Time
}

func (FilterConfigRecord) TableName() string { return "event_filter_configs" }

// FilterConfigStore reads per-project filter configuration cache-aside: the
// whole table is cached for ttl, and a mutex keeps concurrent misses from
// stampeding the database.
type FilterConfigStore struct {
	db    *gorm.DB
	cache cache.Cache
	ttl   time.Duration

	mu sync.Mutex
}

func NewFilterConfigStore(db *gorm.DB, c cache.Cache, ttl time.Duration) *FilterConfigStore {
	return &FilterConfigStore{db: db, cache: c, ttl: ttl}
}

// FilterConfig returns the parsed configuration for one project, or nil when
// the project has none.
func (s *FilterConfigStore) FilterConfig(ctx context.Context, projectID int64) (*models.FilterConfig, error) {
	rows, err := s.allRows(ctx)
	if err != nil {
		return nil, err
	}
	var own []models.FilterConfigRow
	for _, row := range rows {
		if row.ProjectID == projectID {
			own = append(own, row)
		}
	}
	if len(own) == 0 {
		return nil, nil
	}
	return models.ParseFilterConfig(projectID, own)
}

func (s *FilterConfigStore) allRows(ctx context.Context) ([]models.FilterConfigRow, error) {
	if rows, ok := s.cachedRows(ctx); ok {
		return rows, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Another goroutine may have refilled the cache while we waited.
	if rows, ok := s.cachedRows(ctx); ok {
		return rows, nil
	}

	var records []FilterConfigRecord
	if err := s.db.WithContext(ctx).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("load filter configs: %w", err)
	}
	rows := make([]models.FilterConfigRow, 0, len(records))
	for _, record := range records {
		rows = append(rows, models.FilterConfigRow{
			ProjectID:    record.ProjectID,
			SettingGroup: record.SettingGroup,
			Config:       json.RawMessage(record.Config),
		})
	}

	raw, err := json.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("encode filter configs: %w", err)
	}
	if err := s.cache.Set(ctx, allConfigsKey, string(raw), s.ttl); err != nil {
		log.Warn().Err(err).Msg("filter config cache write failed")
	}
	return rows, nil
}

func (s *FilterConfigStore) cachedRows(ctx context.Context) ([]models.FilterConfigRow, bool) {
	raw, ok, err := s.cache.Get(ctx, allConfigsKey)
	if err != nil {
		log.Warn().Err(err).Msg("filter config cache read failed")
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var rows []models.FilterConfigRow
	if err := json.Unmarshal([]byte(raw), &rows); err != nil {
		log.Warn().Err(err).Msg("filter config cache entry is malformed, reloading")
		return nil, false
	}
	return rows, true
}
