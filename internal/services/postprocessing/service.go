// Package postprocessing archives event snapshot payloads after the event is
// persisted. Snapshot arrays are large and mostly cold, so the full payload
// is compressed into side columns and kept out of the hot row.
package postprocessing

import (
	"bytes"
	"compress/zlib"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"roadwatch-event-engine/internal/models"
)

// ArchiveStore persists compressed snapshot archives.
type ArchiveStore interface {
	UpdateSnapshotArchive(ctx context.Context, engineEventID string, snapshot, raw, cover string) error
}

// Service compresses an event's snapshot payloads into zlib+base64 archives.
type Service struct {
	store ArchiveStore
}

func NewService(store ArchiveStore) *Service {
	return &Service{store: store}
}

// Process archives the event's snapshot, raw snapshot and task snapshot
// payloads. Events without snapshot data are left untouched.
func (s *Service) Process(ctx context.Context, e *models.Event) error {
	var snapshot, raw, cover string
	var err error
	if len(e.Snapshot) > 0 {
		if snapshot, err = compressJSON(e.Snapshot); err != nil {
			return fmt.Errorf("archive snapshot for %s: %w", e.EngineEventID, err)
		}
	}
	if e.ExtraData != nil {
		if raw, err = compressJSON(e.ExtraData["snapshot"]); err != nil {
			return fmt.Errorf("archive raw snapshot for %s: %w", e.EngineEventID, err)
		}
		if cover, err = compressJSON(e.ExtraData["taskSnapshot"]); err != nil {
			return fmt.Errorf("archive task snapshot for %s: %w", e.EngineEventID, err)
		}
	}

	if snapshot == "" && raw == "" && cover == "" {
		return nil
	}
	if err := s.store.UpdateSnapshotArchive(ctx, e.EngineEventID, snapshot, raw, cover); err != nil {
		return err
	}
	log.Debug().Str("engine_event_id", e.EngineEventID).Msg("snapshot archives stored")
	return nil
}

// compressJSON encodes v as JSON, compresses it with zlib and wraps it in
// base64. A nil value yields an empty archive.
func compressJSON(v any) (string, error) {
	if v == nil {
		return "", nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(raw); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
