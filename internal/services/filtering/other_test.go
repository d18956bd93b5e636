package filtering

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roadwatch-event-engine/internal/cache"
	"roadwatch-event-engine/internal/models"
)

func posEvent(eventType string, box []any) *models.Event {
	e := &models.Event{
		ProjectID:     7,
		TaskCode:      "task-1",
		EventType:     eventType,
		EngineEventID: "evt-1",
		ExtraData:     map[string]any{},
	}
	if box != nil {
		e.ExtraData["position"] = box
	}
	return e
}

func samePosRule(coolingSeconds int, overlapPercent float64, types ...string) *models.SamePosRule {
	return &models.SamePosRule{
		ToggleRule:        models.ToggleRule{Enable: true, EventTypes: types},
		CoolingSeconds:    intPtr(coolingSeconds),
		PosOverlapPercent: floatPtr(overlapPercent),
	}
}

func TestIgnoreSamePosEventsFlowPath(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	mem := cache.NewMemoryCacheWithClock(func() time.Time { return now })
	stage := NewOtherStage(mem)
	ctx := context.Background()

	cfg := &models.OtherGroupConfig{IgnoreSamePosEvents: samePosRule(60, 0.5, "2001")}

	// First event establishes the baseline.
	assert.False(t, stage.Evaluate(ctx, posEvent("2001", []any{0.0, 0.0, 10.0, 10.0}), cfg).Filtered)

	// An identical region overlaps completely and is dropped.
	v := stage.Evaluate(ctx, posEvent("2001", []any{0.0, 0.0, 10.0, 10.0}), cfg)
	require.True(t, v.Filtered)
	assert.Equal(t, models.ReasonSamePosition, v.Reason)

	// Drops leave the baseline in place, so a distant region passes and
	// becomes the new baseline.
	assert.False(t, stage.Evaluate(ctx, posEvent("2001", []any{100.0, 100.0, 110.0, 110.0}), cfg).Filtered)
	assert.True(t, stage.Evaluate(ctx, posEvent("2001", []any{100.0, 100.0, 110.0, 110.0}), cfg).Filtered)

	// The threshold is exclusive: exactly the configured ratio passes.
	cfg.IgnoreSamePosEvents.PosOverlapPercent = floatPtr(1)
	assert.False(t, stage.Evaluate(ctx, posEvent("2001", []any{100.0, 100.0, 110.0, 110.0}), cfg).Filtered)
}

func TestIgnoreSamePosEventsBaselineExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	mem := cache.NewMemoryCacheWithClock(func() time.Time { return now })
	stage := NewOtherStage(mem)
	ctx := context.Background()

	cfg := &models.OtherGroupConfig{IgnoreSamePosEvents: samePosRule(60, 0.5, "2001")}
	box := []any{0.0, 0.0, 10.0, 10.0}

	assert.False(t, stage.Evaluate(ctx, posEvent("2001", box), cfg).Filtered)
	now = now.Add(30 * time.Second)
	assert.True(t, stage.Evaluate(ctx, posEvent("2001", box), cfg).Filtered)

	// The drop did not refresh the baseline, so it expires on schedule.
	now = now.Add(31 * time.Second)
	assert.False(t, stage.Evaluate(ctx, posEvent("2001", box), cfg).Filtered)
}

func TestIgnoreSamePosEventsPtsPath(t *testing.T) {
	mem := cache.NewMemoryCache()
	stage := NewOtherStage(mem)
	ctx := context.Background()

	cfg := &models.OtherGroupConfig{IgnoreSamePosEvents: samePosRule(60, 0.5, "2001")}

	withPts := func(pts []any) *models.Event {
		e := posEvent("2001", nil)
		e.Snapshot = []any{map[string]any{"pts": pts}}
		return e
	}

	pts := []any{[]any{0.0, 0.0}, []any{10.0, 10.0}}
	assert.False(t, stage.Evaluate(ctx, withPts(pts), cfg).Filtered)

	v := stage.Evaluate(ctx, withPts(pts), cfg)
	require.True(t, v.Filtered)
	assert.Equal(t, models.ReasonSamePosition, v.Reason)

	// A degenerate point list is kept without consulting the baseline.
	assert.False(t, stage.Evaluate(ctx, withPts([]any{[]any{0.0, 0.0}}), cfg).Filtered)
}

func TestIgnoreSamePosEventsMalformedBaseline(t *testing.T) {
	mem := cache.NewMemoryCache()
	stage := NewOtherStage(mem)
	ctx := context.Background()

	key := cache.PositionKey(7, "task-1", "2001")
	require.NoError(t, mem.Set(ctx, key, "not-json", time.Minute))

	cfg := &models.OtherGroupConfig{IgnoreSamePosEvents: samePosRule(60, 0.5, "2001")}

	// A garbled baseline is replaced and the event kept.
	assert.False(t, stage.Evaluate(ctx, posEvent("2001", []any{0.0, 0.0, 10.0, 10.0}), cfg).Filtered)

	raw, ok, err := mem.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "[0,0,10,10]", raw)
}

func TestIgnoreSamePosEventsIllegalParams(t *testing.T) {
	stage := NewOtherStage(cache.NewMemoryCache())
	ctx := context.Background()

	rule := samePosRule(-1, 0.5, "2001")
	cfg := &models.OtherGroupConfig{IgnoreSamePosEvents: rule}
	e := posEvent("2001", []any{0.0, 0.0, 10.0, 10.0})
	assert.False(t, stage.Evaluate(ctx, e, cfg).Filtered)
	assert.False(t, stage.Evaluate(ctx, e, cfg).Filtered)

	rule = samePosRule(60, -0.5, "2001")
	cfg.IgnoreSamePosEvents = rule
	assert.False(t, stage.Evaluate(ctx, e, cfg).Filtered)
	assert.False(t, stage.Evaluate(ctx, e, cfg).Filtered)
}

func TestIgnoreAllEvents(t *testing.T) {
	stage := NewOtherStage(cache.NewMemoryCache())
	ctx := context.Background()

	cfg := &models.OtherGroupConfig{IgnoreAllEvents: enabled("2001")}

	v := stage.Evaluate(ctx, posEvent("2001", nil), cfg)
	require.True(t, v.Filtered)
	assert.Equal(t, models.ReasonIgnoreAllEvents, v.Reason)

	assert.False(t, stage.Evaluate(ctx, posEvent("2002", nil), cfg).Filtered)

	cfg.IgnoreAllEvents = enabled()
	assert.False(t, stage.Evaluate(ctx, posEvent("2001", nil), cfg).Filtered)
}

func TestIgnorePartEvents(t *testing.T) {
	stage := NewOtherStage(cache.NewMemoryCache())
	ctx := context.Background()

	cfg := &models.OtherGroupConfig{
		IgnorePartEvents: &models.PartEventsRule{
			ToggleRule:  models.ToggleRule{Enable: true, EventTypes: models.EventTypeList{"2001"}},
			EventResult: "no_violation",
		},
	}

	e := posEvent("2001", nil)
	e.ExtraData["eventResult"] = map[string]any{"result": "no_violation"}
	v := stage.Evaluate(ctx, e, cfg)
	require.True(t, v.Filtered)
	assert.Equal(t, models.ReasonIgnorePartEvents, v.Reason)

	e.ExtraData["eventResult"] = map[string]any{"result": "violation"}
	assert.False(t, stage.Evaluate(ctx, e, cfg).Filtered)

	delete(e.ExtraData, "eventResult")
	assert.False(t, stage.Evaluate(ctx, e, cfg).Filtered)
}

func TestAngleFilter(t *testing.T) {
	stage := NewOtherStage(cache.NewMemoryCache())
	ctx := context.Background()

	cfg := &models.OtherGroupConfig{AngleFilter: &models.AngleRule{Angle: floatPtr(30)}}

	withAngle := func(eventType string, angleMin float64) *models.Event {
		e := posEvent(eventType, nil)
		e.ExtraData["snapshot"] = []any{
			map[string]any{},
			map[string]any{"origin": map[string]any{"direction_angle_min": angleMin}},
			map[string]any{},
		}
		return e
	}

	v := stage.Evaluate(ctx, withAngle("2111", 15), cfg)
	require.True(t, v.Filtered)
	assert.Equal(t, models.ReasonAngleFilter, v.Reason)

	assert.False(t, stage.Evaluate(ctx, withAngle("2111", 45), cfg).Filtered)

	// Only the turn-violation event type is subject to the angle rule.
	assert.False(t, stage.Evaluate(ctx, withAngle("2001", 15), cfg).Filtered)

	// Fewer than three raw snapshots means no usable angle measurement.
	e := posEvent("2111", nil)
	e.ExtraData["snapshot"] = []any{
		map[string]any{"origin": map[string]any{"direction_angle_min": 15.0}},
	}
	assert.False(t, stage.Evaluate(ctx, e, cfg).Filtered)
}

func TestNonMotorVehicleTypesFilter(t *testing.T) {
	stage := NewOtherStage(cache.NewMemoryCache())
	ctx := context.Background()

	cfg := &models.OtherGroupConfig{
		NonMotorVehicleTypesFilter: []models.NonMotorVehicleEntry{
			{NonMotorVehicleTypes: []string{"tricycle"}, EventTypes: models.EventTypeList{"3001"}},
		},
	}

	withType := func(eventType, label string) *models.Event {
		e := posEvent(eventType, nil)
		e.ExtraData["summary"] = map[string]any{
			"nonmotor/type": map[string]any{"label": label},
		}
		return e
	}

	v := stage.Evaluate(ctx, withType("3001", "tricycle"), cfg)
	require.True(t, v.Filtered)
	assert.Equal(t, models.ReasonNonMotorVehicle, v.Reason)

	assert.False(t, stage.Evaluate(ctx, withType("3001", "bicycle"), cfg).Filtered)
	assert.False(t, stage.Evaluate(ctx, withType("3002", "tricycle"), cfg).Filtered)

	// An entry with no event types restricts every event type.
	cfg.NonMotorVehicleTypesFilter[0].EventTypes = nil
	assert.True(t, stage.Evaluate(ctx, withType("3002", "tricycle"), cfg).Filtered)

	// Events without summary data are kept.
	e := posEvent("3001", nil)
	assert.False(t, stage.Evaluate(ctx, e, cfg).Filtered)
}
