package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"roadwatch-event-engine/internal/models"
	"roadwatch-event-engine/internal/services/processing"
)

// Processor runs one event report through the engine.
type Processor interface {
	Process(ctx context.Context, e *models.Event) (processing.Outcome, error)
}

type EventHandler struct {
	processor Processor
}

func NewEventHandler(processor Processor) *EventHandler {
	return &EventHandler{processor: processor}
}

type ReportResponse struct {
	Outcome processing.Outcome `json:"outcome"`
	ID      int64              `json:"id,omitempty"`
}

// Report ingests one detection event report.
func (h *EventHandler) Report(c *gin.Context) {
	var event models.Event
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event payload"})
		return
	}

	outcome, err := h.processor.Process(c.Request.Context(), &event)
	if err != nil {
		if errors.Is(err, processing.ErrInvalidEvent) || errors.Is(err, processing.ErrUnknownTask) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		log.Error().Err(err).Str("engine_event_id", event.EngineEventID).Msg("event processing failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "event processing failed"})
		return
	}

	c.JSON(http.StatusOK, ReportResponse{Outcome: outcome, ID: event.ID})
}
