// Package storage contains storage-agnostic contracts and utilities for
// persisting geocoded placements.
package storage

import (
	"context"

	"geoetl/internal/geo"
)

// SaveResult reports the outcome of one batch write.
type SaveResult struct {
	// Saved is the number of placements actually inserted.
	Saved int64

	// Conflicts is the number of placements skipped because a row for the
	// same coordinate already existed. Conflicts are logged and tolerated,
	// not fatal: re-running a partially loaded CSV must succeed.
	Conflicts int64
}

// Add accumulates another batch outcome into r.
func (r *SaveResult) Add(o SaveResult) {
	r.Saved += o.Saved
	r.Conflicts += o.Conflicts
}

// Repository persists geocoded placements.
type Repository interface {
	// EnsureTables creates the destination tables when they do not exist.
	EnsureTables(ctx context.Context) error

	// SaveBatch writes a batch of placements. Duplicate coordinates are
	// skipped and counted in the result, not returned as errors.
	SaveBatch(ctx context.Context, batch []geo.Placement) (SaveResult, error)

	// Close releases the underlying connections.
	Close()
}
