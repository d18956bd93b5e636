// Package processing orchestrates one event report end to end: validation,
// replay guard, enrichment, retrigger suppression, filtering, persistence and
// the review gate.
package processing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"roadwatch-event-engine/internal/cache"
	"roadwatch-event-engine/internal/metrics"
	"roadwatch-event-engine/internal/models"
	"roadwatch-event-engine/internal/services/filtering"
	"roadwatch-event-engine/internal/services/review"
)

// Outcome is the terminal state of one report.
type Outcome string

const (
	OutcomeReplayed   Outcome = "replayed"
	OutcomeSuppressed Outcome = "suppressed"
	OutcomeFiltered   Outcome = "filtered"
	OutcomeUnknown    Outcome = "unknown"
	OutcomeReview     Outcome = "review"
	OutcomeFinalized  Outcome = "finalized"
)

// ErrInvalidEvent marks reports missing required identity fields.
var ErrInvalidEvent = errors.New("invalid event report")

// ErrUnknownTask marks reports referencing a task the platform does not know.
var ErrUnknownTask = errors.New("unknown task code")

// EventStore persists processed events.
type EventStore interface {
	Create(ctx context.Context, e *models.Event) error
}

// MasterData resolves task and algorithm master data and the global review
// switch.
type MasterData interface {
	Task(ctx context.Context, code string) (*models.Task, error)
	Algorithm(ctx context.Context, projectID int64, eventType string) (*models.Algorithm, error)
	GlobalReview(ctx context.Context) string
}

// Pipeline is the filter pipeline.
type Pipeline interface {
	Evaluate(ctx context.Context, e *models.Event) filtering.Verdict
}

// Suppressor is the retrigger suppressor.
type Suppressor interface {
	Suppressed(ctx context.Context, e *models.Event) bool
}

// Publisher fans processed events out to downstream consumers.
type Publisher interface {
	PublishFiltered(e *models.Event) error
	PublishViolation(e *models.Event) error
}

// ReviewPusher forwards review candidates to the DQ service.
type ReviewPusher interface {
	Push(ctx context.Context, e *models.Event, alg *models.Algorithm) error
}

// SnapshotProcessor runs deferred snapshot work for persisted events.
type SnapshotProcessor interface {
	Process(ctx context.Context, e *models.Event) error
}

// Service is the event orchestrator. Side effects (publishes, review pushes,
// snapshot work) run on a bounded worker pool and never fail the report.
type Service struct {
	events     EventStore
	masterData MasterData
	pipeline   Pipeline
	suppressor Suppressor
	publisher  Publisher
	pusher     ReviewPusher
	snapshots  SnapshotProcessor
	cache      cache.Cache

	replayTTL time.Duration
	now       func() time.Time

	tasks chan func()
	wg    sync.WaitGroup
	once  sync.Once
}

func NewService(
	events EventStore,
	masterData MasterData,
	pipeline Pipeline,
	suppressor Suppressor,
	publisher Publisher,
	pusher ReviewPusher,
	snapshots SnapshotProcessor,
	c cache.Cache,
	replayTTL time.Duration,
	workers, queueSize int,
) *Service {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	s := &Service{
		events:     events,
		masterData: masterData,
		pipeline:   pipeline,
		suppressor: suppressor,
		publisher:  publisher,
		pusher:     pusher,
		snapshots:  snapshots,
		cache:      c,
		replayTTL:  replayTTL,
		now:        time.Now,
		tasks:      make(chan func(), queueSize),
	}
	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
	return s
}

func (s *Service) worker() {
	defer s.wg.Done()
	for task := range s.tasks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error().Interface("panic", r).Msg("side effect panicked")
				}
			}()
			task()
		}()
	}
}

// submit queues a side effect, running it inline when the pool is saturated
// so nothing is silently lost.
func (s *Service) submit(task func()) {
	select {
	case s.tasks <- task:
	default:
		task()
	}
}

// Shutdown drains the side-effect pool.
func (s *Service) Shutdown(ctx context.Context) error {
	s.once.Do(func() { close(s.tasks) })
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Process runs one report through the engine and returns its terminal state.
func (s *Service) Process(ctx context.Context, e *models.Event) (Outcome, error) {
	metrics.EventsReceivedTotal.Inc()
	start := s.now()
	defer func() {
		metrics.EventProcessingDuration.Observe(time.Since(start).Seconds())
	}()

	if e.EngineEventID == "" || e.Source == "" {
		metrics.EventsRejectedTotal.Inc()
		return "", fmt.Errorf("%w: engineEventId and source are required", ErrInvalidEvent)
	}

	// Engines re-deliver on timeout; the replay guard makes processing
	// idempotent per engine event id.
	seen, err := s.cache.Exists(ctx, e.EngineEventID)
	if err != nil {
		log.Warn().Err(err).Str("engine_event_id", e.EngineEventID).Msg("replay guard read failed, processing anyway")
	}
	if seen {
		metrics.EventsReplayedTotal.Inc()
		log.Info().Str("engine_event_id", e.EngineEventID).Msg("duplicate report skipped")
		return OutcomeReplayed, nil
	}

	if err := s.enrich(ctx, e); err != nil {
		metrics.EventsRejectedTotal.Inc()
		return "", err
	}

	if s.suppressor.Suppressed(ctx, e) {
		metrics.EventsSuppressedTotal.Inc()
		s.markReplayed(ctx, e)
		return OutcomeSuppressed, nil
	}

	if verdict := s.pipeline.Evaluate(ctx, e); verdict.Filtered {
		return s.finishFiltered(ctx, e, verdict)
	}

	if e.Marking == models.MarkingUnknown {
		return s.finishUnknown(ctx, e)
	}

	alg, err := s.masterData.Algorithm(ctx, e.ProjectID, e.EventType)
	if err != nil {
		return "", err
	}
	if alg == nil {
		log.Error().Int64("project_id", e.ProjectID).Str("event_type", e.EventType).Str("engine_event_id", e.EngineEventID).Msg("no algorithm configured for event type, report dropped")
		return "", fmt.Errorf("no algorithm for project %d event type %s", e.ProjectID, e.EventType)
	}

	decision := review.Decide(e, alg, s.masterData.GlobalReview(ctx), e.IsBox())
	review.ApplyMarking(e, decision, s.now())

	if decision == review.Enabled {
		return s.finishReview(ctx, e, alg)
	}
	return s.finishViolation(ctx, e)
}

// enrich resolves the reporting task and stamps its project and company onto
// the event.
func (s *Service) enrich(ctx context.Context, e *models.Event) error {
	task, err := s.masterData.Task(ctx, e.TaskCode)
	if err != nil {
		return err
	}
	if task == nil {
		return fmt.Errorf("%w: %s", ErrUnknownTask, e.TaskCode)
	}
	e.ProjectID = task.ProjectID
	e.ProjectName = task.ProjectName
	e.CompanyID = task.CompanyID
	e.CompanyName = task.CompanyName
	if e.CameraCode == "" {
		e.CameraCode = task.CameraCode
	}
	if e.Extra == nil {
		e.Extra = map[string]any{}
	}
	e.Extra["task_version"] = task.Version
	return nil
}

func (s *Service) finishFiltered(ctx context.Context, e *models.Event, verdict filtering.Verdict) (Outcome, error) {
	metrics.EventsFilteredTotal.WithLabelValues(string(verdict.Reason)).Inc()
	e.Marking = models.MarkingFiltered
	e.FilteredType = verdict.Reason
	if err := s.events.Create(ctx, e); err != nil {
		return "", err
	}
	s.submit(func() { s.processSnapshots(e) })
	s.submit(func() { s.publishFiltered(e) })
	s.markReplayed(ctx, e)
	return OutcomeFiltered, nil
}

func (s *Service) finishUnknown(ctx context.Context, e *models.Event) (Outcome, error) {
	if err := s.events.Create(ctx, e); err != nil {
		return "", err
	}
	s.submit(func() { s.publishFiltered(e) })
	s.markReplayed(ctx, e)
	return OutcomeUnknown, nil
}

func (s *Service) finishReview(ctx context.Context, e *models.Event, alg *models.Algorithm) (Outcome, error) {
	metrics.EventsReviewedTotal.Inc()
	if err := s.events.Create(ctx, e); err != nil {
		return "", err
	}
	s.submit(func() {
		pushCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.pusher.Push(pushCtx, e, alg); err != nil {
			log.Error().Err(err).Str("engine_event_id", e.EngineEventID).Msg("review push failed")
		}
	})
	s.submit(func() { s.publishFiltered(e) })
	s.markReplayed(ctx, e)
	return OutcomeReview, nil
}

func (s *Service) finishViolation(ctx context.Context, e *models.Event) (Outcome, error) {
	metrics.EventsFinalizedTotal.Inc()
	if err := s.events.Create(ctx, e); err != nil {
		return "", err
	}
	s.submit(func() { s.processSnapshots(e) })
	s.submit(func() {
		if err := s.publisher.PublishViolation(e); err != nil {
			log.Error().Err(err).Str("engine_event_id", e.EngineEventID).Msg("violation publish failed")
		}
	})
	s.markReplayed(ctx, e)
	return OutcomeFinalized, nil
}

func (s *Service) processSnapshots(e *models.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.snapshots.Process(ctx, e); err != nil {
		log.Error().Err(err).Str("engine_event_id", e.EngineEventID).Msg("snapshot post-processing failed")
	}
}

func (s *Service) publishFiltered(e *models.Event) {
	if err := s.publisher.PublishFiltered(e); err != nil {
		log.Error().Err(err).Str("engine_event_id", e.EngineEventID).Msg("filtered publish failed")
	}
}

// markReplayed closes the report's replay window.
func (s *Service) markReplayed(ctx context.Context, e *models.Event) {
	if err := s.cache.Set(ctx, e.EngineEventID, "1", s.replayTTL); err != nil {
		log.Warn().Err(err).Str("engine_event_id", e.EngineEventID).Msg("replay guard write failed")
	}
}
