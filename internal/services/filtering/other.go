package filtering

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"roadwatch-event-engine/internal/cache"
	"roadwatch-event-engine/internal/geometry"
	"roadwatch-event-engine/internal/models"
)

const angleFilterEventType = "2111"

// OtherStage is the ordered rule chain for non-plate suppression: positional
// dedup, blanket ignores, result-code ignores and the camera-angle and
// non-motor vehicle-type rules.
type OtherStage struct {
	cache cache.Cache
}

func NewOtherStage(c cache.Cache) *OtherStage {
	return &OtherStage{cache: c}
}

func (s *OtherStage) Evaluate(ctx context.Context, e *models.Event, cfg *models.OtherGroupConfig) Verdict {
	if s.ignoreSamePosEvents(ctx, e, cfg.IgnoreSamePosEvents) {
		log.Info().Str("engine_event_id", e.EngineEventID).Msg("event filtered -> samePosition")
		return drop(models.ReasonSamePosition)
	}
	if ignoreAllEvents(e, cfg.IgnoreAllEvents) {
		log.Info().Str("engine_event_id", e.EngineEventID).Msg("event filtered -> ignoreAllEvents")
		return drop(models.ReasonIgnoreAllEvents)
	}
	if ignorePartEvents(e, cfg.IgnorePartEvents) {
		log.Info().Str("engine_event_id", e.EngineEventID).Msg("event filtered -> ignorePartEvents")
		return drop(models.ReasonIgnorePartEvents)
	}
	if angleFilter(e, cfg.AngleFilter) {
		log.Info().Str("engine_event_id", e.EngineEventID).Msg("event filtered -> angleFilter")
		return drop(models.ReasonAngleFilter)
	}
	if nonMotorVehicleTypesFilter(e, cfg.NonMotorVehicleTypesFilter) {
		log.Info().Str("engine_event_id", e.EngineEventID).Msg("event filtered -> nonMotorVehicleTypesFilter")
		return drop(models.ReasonNonMotorVehicle)
	}
	return keep()
}

// ignoreSamePosEvents compares the event's region against the cached baseline
// for the task/event type pair and drops it when the rectangle overlap exceeds
// the configured percentage. A drop leaves the baseline untouched; any kept
// event becomes the new baseline.
func (s *OtherStage) ignoreSamePosEvents(ctx context.Context, e *models.Event, rule *models.SamePosRule) bool {
	if rule == nil || !rule.Enable {
		return false
	}
	if rule.EventTypes.Empty() || !rule.EventTypes.Contains(e.EventType) {
		return false
	}
	if rule.CoolingSeconds == nil || *rule.CoolingSeconds < 0 {
		log.Warn().Interface("cooling_seconds", rule.CoolingSeconds).Msg("ignoreSamePosEvents illegal coolingSeconds")
		return false
	}
	if rule.PosOverlapPercent == nil || *rule.PosOverlapPercent < 0 {
		log.Warn().Interface("pos_overlap_percent", rule.PosOverlapPercent).Msg("ignoreSamePosEvents illegal posOverlapPercent")
		return false
	}
	if e.ExtraData == nil {
		return false
	}

	key := cache.PositionKey(e.ProjectID, e.TaskCode, e.EventType)
	ttl := time.Duration(*rule.CoolingSeconds) * time.Second
	threshold := *rule.PosOverlapPercent

	if box, ok := e.Position(); ok {
		// Flow events report a single bounding box in extraData.position.
		rect, ok := geometry.RectFromBox(box)
		if !ok {
			return false
		}
		baseRect, valid := s.loadBoxBaseline(ctx, key)
		if !valid {
			s.storeBaseline(ctx, key, box, ttl)
			return false
		}
		if geometry.Overlap(rect, baseRect) > threshold {
			return true
		}
		s.storeBaseline(ctx, key, box, ttl)
		return false
	}

	pts, ok := e.SnapshotPts()
	if !ok || !geometry.ValidPts(pts) {
		return false
	}
	rect, ok := geometry.RectFromPts(pts)
	if !ok {
		return false
	}
	baseRect, valid := s.loadPtsBaseline(ctx, key)
	if !valid {
		s.storeBaseline(ctx, key, pts, ttl)
		return false
	}
	if geometry.Overlap(rect, baseRect) > threshold {
		return true
	}
	s.storeBaseline(ctx, key, pts, ttl)
	return false
}

func (s *OtherStage) loadBoxBaseline(ctx context.Context, key string) (geometry.Rect, bool) {
	raw, ok, err := s.cache.Get(ctx, key)
	if err != nil || !ok {
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("samePosition baseline read failed")
		}
		return geometry.Rect{}, false
	}
	var box []float64
	if err := json.Unmarshal([]byte(raw), &box); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("samePosition baseline is malformed, replacing")
		return geometry.Rect{}, false
	}
	return geometry.RectFromBox(box)
}

func (s *OtherStage) loadPtsBaseline(ctx context.Context, key string) (geometry.Rect, bool) {
	raw, ok, err := s.cache.Get(ctx, key)
	if err != nil || !ok {
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("samePosition baseline read failed")
		}
		return geometry.Rect{}, false
	}
	var pts [][]float64
	if err := json.Unmarshal([]byte(raw), &pts); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("samePosition baseline is malformed, replacing")
		return geometry.Rect{}, false
	}
	if !geometry.ValidPts(pts) {
		return geometry.Rect{}, false
	}
	return geometry.RectFromPts(pts)
}

func (s *OtherStage) storeBaseline(ctx context.Context, key string, shape any, ttl time.Duration) {
	raw, err := json.Marshal(shape)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("samePosition baseline encode failed")
		return
	}
	if err := s.cache.Set(ctx, key, string(raw), ttl); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("samePosition baseline write failed")
	}
}

func ignoreAllEvents(e *models.Event, rule *models.ToggleRule) bool {
	if rule == nil || !rule.Enable {
		return false
	}
	if rule.EventTypes.Empty() || !rule.EventTypes.Contains(e.EventType) {
		return false
	}
	return true
}

func ignorePartEvents(e *models.Event, rule *models.PartEventsRule) bool {
	if rule == nil || !rule.Enable {
		return false
	}
	if rule.EventTypes.Empty() {
		return false
	}
	if !rule.EventTypes.Contains(e.EventType) {
		return false
	}
	result, ok := e.EventResult()
	if !ok {
		return false
	}
	return result == rule.EventResult
}

// angleFilter drops turn-violation events shot below the configured camera
// angle. It reads the raw snapshot array on extraData, not the enriched one.
func angleFilter(e *models.Event, rule *models.AngleRule) bool {
	if e.EventType != angleFilterEventType {
		return false
	}
	if rule == nil || rule.Angle == nil {
		return false
	}
	if e.ExtraData == nil {
		return false
	}
	snapshots, ok := e.ExtraData["snapshot"].([]any)
	if !ok || len(snapshots) < 3 {
		return false
	}
	second, ok := snapshots[1].(map[string]any)
	if !ok {
		return false
	}
	origin, ok := second["origin"].(map[string]any)
	if !ok {
		return false
	}
	angleMin, ok := models.AsFloat(origin["direction_angle_min"])
	if !ok {
		return false
	}
	return angleMin < *rule.Angle
}

func nonMotorVehicleTypesFilter(e *models.Event, entries []models.NonMotorVehicleEntry) bool {
	if len(entries) == 0 {
		return false
	}
	label, ok := e.SummaryLabel("nonmotor/type")
	if !ok {
		return false
	}
	for _, entry := range entries {
		if len(entry.NonMotorVehicleTypes) == 0 {
			continue
		}
		if !entry.EventTypes.Empty() && !entry.EventTypes.Contains(e.EventType) {
			continue
		}
		for _, t := range entry.NonMotorVehicleTypes {
			if t == label {
				return true
			}
		}
	}
	return false
}
