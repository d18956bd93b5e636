package review

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"roadwatch-event-engine/internal/models"
)

const pushPath = "/v1/dq-service/event/add"

// Pusher forwards review-enabled events to the external DQ review service.
// Pushes are best-effort: the caller logs and swallows errors, review is
// never allowed to block event processing.
type Pusher struct {
	baseURL string
	client  *http.Client
}

func NewPusher(baseURL string, timeout time.Duration) *Pusher {
	return &Pusher{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// Push posts the review projection of the event to the DQ service.
func (p *Pusher) Push(ctx context.Context, e *models.Event, alg *models.Algorithm) error {
	payload := buildPushPayload(e, alg)
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode review push for %s: %w", e.EngineEventID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+pushPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build review push for %s: %w", e.EngineEventID, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("push review event %s: %w", e.EngineEventID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("push review event %s: unexpected status %d", e.EngineEventID, resp.StatusCode)
	}
	return nil
}

// buildPushPayload projects the event into the shape the review service
// expects. Only the algorithm entries for the event's own type are carried
// over from the original configuration.
func buildPushPayload(e *models.Event, alg *models.Algorithm) map[string]any {
	payload := map[string]any{
		"engineEventId":  e.EngineEventID,
		"taskCode":       e.TaskCode,
		"cameraCode":     e.CameraCode,
		"eventType":      e.EventType,
		"eventTypeName":  e.EventTypeName,
		"eventTime":      e.EventTime.UnixMilli(),
		"source":         e.Source,
		"projectId":      e.ProjectID,
		"companyId":      e.CompanyID,
		"plateNumber":    e.PlateNumber,
		"plateColor":     e.PlateColor,
		"specialCarType": e.SpecialCarType,
		"snapshot":       e.Snapshot,
	}
	if e.ExtraData != nil {
		if pos, ok := e.ExtraData["position"]; ok {
			payload["position"] = pos
		}
		if ts, ok := e.ExtraData["taskSnapshot"]; ok {
			payload["taskSnapshot"] = ts
		}
	}
	payload["originalConfig"] = map[string]any{
		"violations": matchingViolations(e),
		"drawType":   alg.DrawType,
	}
	if fields := alg.EditableFields(); fields != nil {
		payload["editable"] = fields
	}
	return payload
}

// matchingViolations returns the algList entries configured for the event's
// own type.
func matchingViolations(e *models.Event) []any {
	if e.ExtraData == nil {
		return nil
	}
	oc, ok := e.ExtraData["originalConfig"].(map[string]any)
	if !ok {
		return nil
	}
	algList, ok := oc["algList"].([]any)
	if !ok {
		return nil
	}
	var matched []any
	for _, item := range algList {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if t, _ := entry["eventType"].(string); t == e.EventType {
			matched = append(matched, entry)
		}
	}
	return matched
}
