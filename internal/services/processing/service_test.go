package processing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roadwatch-event-engine/internal/cache"
	"roadwatch-event-engine/internal/models"
	"roadwatch-event-engine/internal/services/filtering"
)

type memEventStore struct {
	mu     sync.Mutex
	events []*models.Event
}

func (s *memEventStore) Create(ctx context.Context, e *models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *e
	s.events = append(s.events, &copied)
	e.ID = int64(len(s.events))
	return nil
}

func (s *memEventStore) all() []*models.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.Event(nil), s.events...)
}

type stubMasterData struct {
	task         *models.Task
	alg          *models.Algorithm
	globalReview string
}

func (m *stubMasterData) Task(ctx context.Context, code string) (*models.Task, error) {
	return m.task, nil
}

func (m *stubMasterData) Algorithm(ctx context.Context, projectID int64, eventType string) (*models.Algorithm, error) {
	return m.alg, nil
}

func (m *stubMasterData) GlobalReview(ctx context.Context) string { return m.globalReview }

type stubPipeline struct{ verdict filtering.Verdict }

func (p *stubPipeline) Evaluate(ctx context.Context, e *models.Event) filtering.Verdict {
	return p.verdict
}

type stubSuppressor struct{ suppressed bool }

func (s *stubSuppressor) Suppressed(ctx context.Context, e *models.Event) bool {
	return s.suppressed
}

type recPublisher struct {
	mu         sync.Mutex
	filtered   []string
	violations []string
}

func (p *recPublisher) PublishFiltered(e *models.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.filtered = append(p.filtered, e.EngineEventID)
	return nil
}

func (p *recPublisher) PublishViolation(e *models.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.violations = append(p.violations, e.EngineEventID)
	return nil
}

type recPusher struct {
	mu     sync.Mutex
	pushed []string
}

func (p *recPusher) Push(ctx context.Context, e *models.Event, alg *models.Algorithm) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushed = append(p.pushed, e.EngineEventID)
	return nil
}

type noopSnapshots struct{}

func (noopSnapshots) Process(ctx context.Context, e *models.Event) error { return nil }

type fixture struct {
	svc        *Service
	store      *memEventStore
	masterData *stubMasterData
	pipeline   *stubPipeline
	suppressor *stubSuppressor
	publisher  *recPublisher
	pusher     *recPusher
	cache      *cache.MemoryCache
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: &memEventStore{},
		masterData: &stubMasterData{
			task: &models.Task{
				Code:        "task-1",
				ProjectID:   7,
				ProjectName: "North Ring",
				CompanyID:   3,
				CompanyName: "RoadWatch",
				CameraCode:  "cam-9",
				Version:     "2.4.0",
			},
			alg:          &models.Algorithm{ProjectID: 7, EventType: "1001", DebugSwitch: 0, BoxDebugSwitch: 0},
			globalReview: "1",
		},
		pipeline:   &stubPipeline{},
		suppressor: &stubSuppressor{},
		publisher:  &recPublisher{},
		pusher:     &recPusher{},
		cache:      cache.NewMemoryCache(),
	}
	f.svc = NewService(f.store, f.masterData, f.pipeline, f.suppressor, f.publisher, f.pusher, noopSnapshots{}, f.cache, 10*time.Minute, 1, 8)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = f.svc.Shutdown(ctx)
	})
	return f
}

// drain waits for queued side effects to finish.
func (f *fixture) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, f.svc.Shutdown(ctx))
}

func report(eventType string) *models.Event {
	return &models.Event{
		TaskCode:      "task-1",
		Source:        "platform",
		EventType:     eventType,
		EngineEventID: "evt-42",
		EventTime:     models.NewMillis(time.Now()),
		ExtraData: map[string]any{
			"originalConfig": map[string]any{
				"algList": []any{
					map[string]any{"eventType": eventType, "algParam": map[string]any{}},
				},
			},
		},
	}
}

func TestProcessRejectsInvalidReports(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	e := report("1001")
	e.EngineEventID = ""
	_, err := f.svc.Process(ctx, e)
	require.ErrorIs(t, err, ErrInvalidEvent)

	e = report("1001")
	e.Source = ""
	_, err = f.svc.Process(ctx, e)
	require.ErrorIs(t, err, ErrInvalidEvent)

	assert.Empty(t, f.store.all())
}

func TestProcessRejectsUnknownTask(t *testing.T) {
	f := newFixture(t)
	f.masterData.task = nil

	_, err := f.svc.Process(context.Background(), report("1001"))
	require.ErrorIs(t, err, ErrUnknownTask)
	assert.Empty(t, f.store.all())
}

func TestProcessSkipsReplays(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.cache.Set(ctx, "evt-42", "1", time.Minute))

	outcome, err := f.svc.Process(ctx, report("1001"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeReplayed, outcome)
	assert.Empty(t, f.store.all())
}

func TestProcessSuppressedRetrigger(t *testing.T) {
	f := newFixture(t)
	f.suppressor.suppressed = true
	ctx := context.Background()

	outcome, err := f.svc.Process(ctx, report("1001"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuppressed, outcome)

	// Suppressed reports are not persisted but still close their replay
	// window.
	assert.Empty(t, f.store.all())
	seen, err := f.cache.Exists(ctx, "evt-42")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestProcessFilteredEvent(t *testing.T) {
	f := newFixture(t)
	f.pipeline.verdict = filtering.Verdict{Filtered: true, Reason: models.ReasonSamePlate}
	ctx := context.Background()

	outcome, err := f.svc.Process(ctx, report("1001"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeFiltered, outcome)

	stored := f.store.all()
	require.Len(t, stored, 1)
	assert.Equal(t, models.MarkingFiltered, stored[0].Marking)
	assert.Equal(t, models.ReasonSamePlate, stored[0].FilteredType)
	assert.Equal(t, int64(7), stored[0].ProjectID)
	assert.Equal(t, "RoadWatch", stored[0].CompanyName)
	assert.Equal(t, "2.4.0", stored[0].Extra["task_version"])

	f.drain(t)
	assert.Equal(t, []string{"evt-42"}, f.publisher.filtered)
	assert.Empty(t, f.publisher.violations)
}

func TestProcessUnknownMarking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	e := report("1001")
	e.Marking = models.MarkingUnknown
	outcome, err := f.svc.Process(ctx, e)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnknown, outcome)

	stored := f.store.all()
	require.Len(t, stored, 1)
	assert.Equal(t, models.MarkingUnknown, stored[0].Marking)

	f.drain(t)
	assert.Equal(t, []string{"evt-42"}, f.publisher.filtered)
	assert.Empty(t, f.pusher.pushed)
}

func TestProcessWithoutAlgorithm(t *testing.T) {
	f := newFixture(t)
	f.masterData.alg = nil
	ctx := context.Background()

	_, err := f.svc.Process(ctx, report("1001"))
	require.Error(t, err)
	assert.Empty(t, f.store.all())

	// The replay window stays open so the report can be retried once the
	// algorithm is configured.
	seen, err := f.cache.Exists(ctx, "evt-42")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestProcessReviewEnabled(t *testing.T) {
	f := newFixture(t)
	f.masterData.alg.DebugSwitch = 1
	ctx := context.Background()

	outcome, err := f.svc.Process(ctx, report("1001"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeReview, outcome)

	stored := f.store.all()
	require.Len(t, stored, 1)
	assert.Equal(t, models.MarkingInit, stored[0].Marking)
	require.NotNil(t, stored[0].MarkingTime)

	f.drain(t)
	assert.Equal(t, []string{"evt-42"}, f.pusher.pushed)
	// Review-queued events are announced on the filtered subject until a
	// reviewer finalizes them.
	assert.Equal(t, []string{"evt-42"}, f.publisher.filtered)
	assert.Empty(t, f.publisher.violations)
}

func TestProcessReviewDisabledFinalizes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	outcome, err := f.svc.Process(ctx, report("1001"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeFinalized, outcome)

	stored := f.store.all()
	require.Len(t, stored, 1)
	assert.Equal(t, models.MarkingEvent, stored[0].Marking)
	marking, ok := stored[0].Extra["marking"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 1, marking["markEventCount"])

	f.drain(t)
	assert.Equal(t, []string{"evt-42"}, f.publisher.violations)
	assert.Empty(t, f.pusher.pushed)

	seen, err := f.cache.Exists(ctx, "evt-42")
	require.NoError(t, err)
	assert.True(t, seen)
}
