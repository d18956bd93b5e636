// Package filtering implements the multi-stage rule pipeline that decides
// whether a detection event is kept or suppressed as noise/duplicate.
package filtering

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"roadwatch-event-engine/internal/cache"
	"roadwatch-event-engine/internal/models"
)

// Verdict is the uniform result every rule reports: either the event is kept
// or it is dropped with a reason tag.
type Verdict struct {
	Filtered bool
	Reason   models.FilterReason
}

func keep() Verdict { return Verdict{} }

func drop(reason models.FilterReason) Verdict {
	return Verdict{Filtered: true, Reason: reason}
}

var yellowPlateColors = []string{"s_yellow", "d_yellow"}

// PlateStage is the ordered rule chain for license-plate suppression.
type PlateStage struct {
	cache cache.Cache
}

func NewPlateStage(c cache.Cache) *PlateStage {
	return &PlateStage{cache: c}
}

// Evaluate runs the plate rules in their fixed order, short-circuiting on the
// first drop.
func (s *PlateStage) Evaluate(ctx context.Context, e *models.Event, cfg *models.PlateGroupConfig) Verdict {
	// onlyYellowPlate is the one rule whose positive result means "allow";
	// the inversion is confined to this adapter.
	if !onlyYellowPlateAllows(e, cfg.OnlyYellowPlate) {
		log.Info().Str("engine_event_id", e.EngineEventID).Msg("event filtered -> onlyYellowPlate")
		return drop(models.ReasonYellowPlate)
	}
	if ignoreNoPlateEvents(e, cfg.IgnoreNoPlateEvents) {
		log.Info().Str("engine_event_id", e.EngineEventID).Msg("event filtered -> noPlate")
		return drop(models.ReasonNoPlate)
	}
	if ignoreBlurryPlateEvents(e, cfg.IgnoreBlurryPlateEvents) {
		log.Info().Str("engine_event_id", e.EngineEventID).Msg("event filtered -> blurryPlate")
		return drop(models.ReasonBlurryPlate)
	}
	if onlyPlateTypes(e, cfg.OnlyPlateTypes) {
		log.Info().Str("engine_event_id", e.EngineEventID).Msg("event filtered -> onlyPlateTypes")
		return drop(models.ReasonPlateColorFiltered)
	}
	if nonMotorPlateTypesFilter(e, cfg.NonMotorPlateTypesFilter) {
		log.Info().Str("engine_event_id", e.EngineEventID).Msg("event filtered -> nonMotorPlateTypesFilter")
		return drop(models.ReasonPlateColorFiltered)
	}
	if plateSpecialTextFilter(e, cfg.PlateSpecialTextFilter) {
		log.Info().Str("engine_event_id", e.EngineEventID).Msg("event filtered -> plateSpecialTextFilter")
		return drop(models.ReasonSpecialPlate)
	}
	if shortPlateFilter(e, cfg.ShortPlateFilter) {
		log.Info().Str("engine_event_id", e.EngineEventID).Msg("event filtered -> shortPlateFilter")
		return drop(models.ReasonShortPlate)
	}
	if s.ignoreSamePlateEvents(ctx, e, cfg.IgnoreSamePlateEvents) {
		log.Info().Str("engine_event_id", e.EngineEventID).Msg("event filtered -> samePlate")
		return drop(models.ReasonSamePlate)
	}
	return keep()
}

// onlyYellowPlateAllows returns true when the event may pass. When the rule
// is disabled or inapplicable the event passes; when it applies, only yellow
// plate colors pass. This polarity is a preserved contract of the rule.
func onlyYellowPlateAllows(e *models.Event, rule *models.ToggleRule) bool {
	if rule == nil || !rule.Enable {
		return true
	}
	// No event types configured means the restriction applies to none.
	if rule.EventTypes.Empty() {
		return true
	}
	if !rule.EventTypes.Contains(e.EventType) {
		return true
	}
	for _, color := range yellowPlateColors {
		if e.PlateColor == color {
			return true
		}
	}
	return false
}

func ignoreNoPlateEvents(e *models.Event, rule *models.ToggleRule) bool {
	if rule == nil || !rule.Enable {
		return false
	}
	if rule.EventTypes.Empty() || !rule.EventTypes.Contains(e.EventType) {
		return false
	}
	return strings.TrimSpace(e.PlateNumber) == ""
}

func ignoreBlurryPlateEvents(e *models.Event, rule *models.BlurryPlateRule) bool {
	if rule == nil || !rule.Enable {
		return false
	}
	if rule.BlurryLevel == nil || *rule.BlurryLevel <= 0 {
		log.Warn().Interface("blurry_level", rule.BlurryLevel).Msg("ignoreBlurryPlateEvents illegal param")
		return false
	}
	score, ok := e.PlateNumberScore()
	if !ok {
		return false
	}
	if rule.EventTypes.Empty() || !rule.EventTypes.Contains(e.EventType) {
		return false
	}
	return score < *rule.BlurryLevel
}

func onlyPlateTypes(e *models.Event, rule *models.PlateTypesRule) bool {
	if rule == nil || !rule.Enable {
		return false
	}
	if len(rule.PlateColor) == 0 {
		return false
	}
	if rule.EventTypes.Empty() || !rule.EventTypes.Contains(e.EventType) {
		return false
	}
	for _, color := range rule.PlateColor {
		if color == e.PlateColor {
			return false
		}
	}
	return true
}

func nonMotorPlateTypesFilter(e *models.Event, entries []models.NonMotorPlateEntry) bool {
	if len(entries) == 0 {
		return false
	}
	label, ok := e.SummaryLabel("plate/type")
	if !ok {
		log.Warn().Str("engine_event_id", e.EngineEventID).Msg("nonMotorPlateTypesFilter: event carries no summary")
		return false
	}
	for _, entry := range entries {
		if len(entry.PlateColor) == 0 {
			continue
		}
		if entry.EventTypes.Empty() || !entry.EventTypes.Contains(e.EventType) {
			continue
		}
		allowed := false
		for _, color := range entry.PlateColor {
			if color == label {
				allowed = true
				break
			}
		}
		if !allowed {
			return true
		}
	}
	return false
}

func plateSpecialTextFilter(e *models.Event, rule *models.SpecialTextRule) bool {
	if rule == nil || len(rule.SpecialTexts) == 0 {
		return false
	}
	if strings.TrimSpace(e.PlateNumber) == "" {
		return false
	}
	if rule.EventTypes.Empty() || !rule.EventTypes.Contains(e.EventType) {
		return false
	}
	for _, text := range rule.SpecialTexts {
		if text != "" && strings.Contains(e.PlateNumber, text) {
			return true
		}
	}
	return false
}

func shortPlateFilter(e *models.Event, rule *models.ToggleRule) bool {
	if rule == nil || !rule.Enable {
		return false
	}
	if rule.EventTypes.Empty() || !rule.EventTypes.Contains(e.EventType) {
		return false
	}
	// Plate length is counted in runes: a CJK region prefix is one character.
	return utf8.RuneCountInString(e.PlateNumber) < 7
}

// ignoreSamePlateEvents drops an event whose plate equals the cached baseline.
// A duplicate leaves the baseline untouched so it expires on its original
// TTL; only a distinct plate refreshes it.
func (s *PlateStage) ignoreSamePlateEvents(ctx context.Context, e *models.Event, rule *models.SamePlateRule) bool {
	if e.PlateNumber == "" {
		return false
	}
	if rule == nil || !rule.Enable {
		return false
	}
	if rule.CoolingSeconds == nil || *rule.CoolingSeconds < 0 {
		return false
	}
	if rule.EventTypes.Empty() || !rule.EventTypes.Contains(e.EventType) {
		return false
	}

	key := cache.PlateKey(e.ProjectID, e.EventType, e.PlateNumber)
	baseline, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("samePlate baseline read failed, passing event through")
		return false
	}
	if ok && baseline == e.PlateNumber {
		return true
	}
	ttl := time.Duration(*rule.CoolingSeconds) * time.Second
	if err := s.cache.Set(ctx, key, e.PlateNumber, ttl); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("samePlate baseline write failed")
	}
	return false
}
