package filtering

import (
	"context"

	"github.com/rs/zerolog/log"

	"roadwatch-event-engine/internal/cache"
	"roadwatch-event-engine/internal/models"
)

// ConfigLoader resolves the filter configuration for a project. A nil config
// with a nil error means the project has no filtering configured.
type ConfigLoader interface {
	FilterConfig(ctx context.Context, projectID int64) (*models.FilterConfig, error)
}

// Pipeline chains the plate stage and the other-events stage. Filtering is
// fail-open: a config load error lets the event pass so a flaky backend never
// silences detections.
type Pipeline struct {
	configs ConfigLoader
	plate   *PlateStage
	other   *OtherStage
}

func NewPipeline(configs ConfigLoader, c cache.Cache) *Pipeline {
	return &Pipeline{
		configs: configs,
		plate:   NewPlateStage(c),
		other:   NewOtherStage(c),
	}
}

// Evaluate runs both stages against the event's project configuration,
// short-circuiting on the first drop.
func (p *Pipeline) Evaluate(ctx context.Context, e *models.Event) Verdict {
	cfg, err := p.configs.FilterConfig(ctx, e.ProjectID)
	if err != nil {
		log.Error().Err(err).Int64("project_id", e.ProjectID).Msg("filter config load failed, passing event through")
		return keep()
	}
	if cfg == nil {
		log.Info().Int64("project_id", e.ProjectID).Msg("no filter config for project, passing event through")
		return keep()
	}
	if cfg.Plate != nil {
		if v := p.plate.Evaluate(ctx, e, cfg.Plate); v.Filtered {
			return v
		}
	}
	if cfg.Other != nil {
		if v := p.other.Evaluate(ctx, e, cfg.Other); v.Filtered {
			return v
		}
	}
	return keep()
}
