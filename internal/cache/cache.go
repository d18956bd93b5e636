// Package cache provides the time-windowed key/value store the dedup and
// suppression rules keep their baselines in.
package cache

import (
	"context"
	"fmt"
	"time"
)

// Cache is a key/value store with per-key TTL. Callers follow a best-effort
// read-then-write pattern: there is no compare-and-swap, and concurrent
// writers on the same key may race. A false negative (treating a duplicate as
// distinct) is an accepted outcome, not a bug.
type Cache interface {
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set stores value under key for ttl.
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)
}

// Well-known keys and namespace prefixes of the cooling cache.
const (
	// GlobalReviewKey holds the process-wide human-review switch ("1" = on).
	GlobalReviewKey = "Global_Review"

	platePrefix     = "PLATE_KEY"
	positionPrefix  = "POS_KEY"
	retriggerPrefix = "FILTER_EVENT_TYPE:"
)

// PlateKey is the plate-dedup baseline key for one project/type/plate triple.
func PlateKey(projectID int64, eventType, plateNumber string) string {
	return fmt.Sprintf("%s:%d:%s:%s", platePrefix, projectID, eventType, plateNumber)
}

// PositionKey is the spatial-dedup baseline key for one project/task/type
// triple.
func PositionKey(projectID int64, taskCode, eventType string) string {
	return fmt.Sprintf("%s:%d:%s:%s", positionPrefix, projectID, taskCode, eventType)
}

// RetriggerKey is the retrigger-suppression baseline key. The underscore
// joining is part of the wire-compatible key format.
func RetriggerKey(taskCode, eventType string) string {
	return fmt.Sprintf("%s_%s_%s", retriggerPrefix, taskCode, eventType)
}
