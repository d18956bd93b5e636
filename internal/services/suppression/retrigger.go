// Package suppression implements retrigger suppression: edge devices re-report
// an ongoing violation on every analysis cycle, and only the first report per
// cooling window should survive.
package suppression

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"roadwatch-event-engine/internal/cache"
	"roadwatch-event-engine/internal/models"
)

// Suppressor drops repeat reports of the same task/event-type pair inside the
// algorithm's own cooling window. It is fail-open: any cache error, parse
// error or panic lets the event through.
type Suppressor struct {
	cache      cache.Cache
	enabled    bool
	eventTypes map[string]struct{}
	now        func() time.Time
}

// NewSuppressor builds a Suppressor. eventTypes is the comma-separated
// allow-list of event types subject to suppression; blank entries are skipped.
func NewSuppressor(c cache.Cache, enabled bool, eventTypes string) *Suppressor {
	types := make(map[string]struct{})
	for _, t := range strings.Split(eventTypes, ",") {
		t = strings.TrimSpace(t)
		if t != "" {
			types[t] = struct{}{}
		}
	}
	return &Suppressor{cache: c, enabled: enabled, eventTypes: types, now: time.Now}
}

// Suppressed reports whether the event is a retrigger of a report already seen
// inside its cooling window. When it is not, the event becomes the new
// baseline for the window.
func (s *Suppressor) Suppressed(ctx context.Context, e *models.Event) (suppressed bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("engine_event_id", e.EngineEventID).Msg("retrigger suppression panicked, passing event through")
			suppressed = false
		}
	}()

	if !s.enabled {
		return false
	}
	if _, ok := s.eventTypes[e.EventType]; !ok {
		return false
	}
	cooling, ok := e.CoolingSecond()
	if !ok || cooling <= 0 {
		return false
	}

	key := cache.RetriggerKey(e.TaskCode, e.EventType)
	eventMillis := e.EventTime.UnixMilli()

	raw, found, err := s.cache.Get(ctx, key)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("retrigger baseline read failed, passing event through")
		return false
	}
	if found {
		storedCooling, storedMillis, ok := parseBaseline(raw)
		if ok && storedCooling == cooling && eventMillis <= storedMillis+cooling*1000 {
			log.Info().Str("engine_event_id", e.EngineEventID).Str("task_code", e.TaskCode).Str("event_type", e.EventType).Msg("event suppressed as retrigger")
			return true
		}
	}

	// The baseline lives until the cooling window closes, measured from the
	// event's own timestamp.
	ttlMillis := eventMillis + cooling*1000 - s.now().UnixMilli()
	ttl := time.Duration(ttlMillis/1000) * time.Second
	if ttl < time.Second {
		ttl = time.Second
	}
	value := fmt.Sprintf("%d@%d", cooling, eventMillis)
	if err := s.cache.Set(ctx, key, value, ttl); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("retrigger baseline write failed")
	}
	return false
}

// parseBaseline decodes a "coolingSeconds@eventMillis" baseline value.
func parseBaseline(raw string) (cooling int64, eventMillis int64, ok bool) {
	parts := strings.SplitN(raw, "@", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	cooling, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	eventMillis, err = strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return cooling, eventMillis, true
}
