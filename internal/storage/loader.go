// This file implements a generic, batched loader that drains placements from
// a channel and invokes a provided save function per batch.
//
// Logging: on every successful flush, a concise progress line is emitted with
// running totals and instantaneous rows/sec since the previous flush.
package storage

import (
	"context"
	"fmt"
	"log"
	"time"

	"geoetl/internal/geo"
)

// SaveFn abstracts a backend's batch write capability. Implementations
// should insert the provided placements and report how many were saved and
// how many were skipped as duplicates.
type SaveFn func(ctx context.Context, batch []geo.Placement) (SaveResult, error)

// LoadBatches drains placements from 'in', groups them into batches of size
// 'batchSize', and calls 'save' for each non-empty batch. It returns the
// accumulated result and the first error encountered.
//
// The final partial batch is flushed when 'in' closes. Cancellation returns
// (result so far, ctx.Err()).
func LoadBatches(
	ctx context.Context,
	in <-chan geo.Placement,
	batchSize int,
	save SaveFn,
) (SaveResult, error) {
	var result SaveResult
	if batchSize <= 0 {
		return result, fmt.Errorf("batchSize must be > 0")
	}
	if save == nil {
		return result, fmt.Errorf("save must not be nil")
	}

	var (
		batches     int64
		batch       = make([]geo.Placement, 0, batchSize)
		start       = time.Now()
		lastFlushTS = start
		lastSaved   int64
	)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		res, err := save(ctx, batch)
		result.Add(res)

		// Reuse allocated slice; keep capacity to avoid churn.
		batch = batch[:0]

		if err != nil {
			log.Printf("loader: batch write failed saved=%d total_saved=%d err=%v", res.Saved, result.Saved, err)
			return err
		}

		// Progress log per successful batch.
		batches++
		now := time.Now()
		sinceLast := now.Sub(lastFlushTS)
		savedSinceLast := result.Saved - lastSaved
		rps := float64(0)
		if sinceLast > 0 {
			rps = float64(savedSinceLast) / sinceLast.Seconds()
		}
		log.Printf(
			"batch #%d: rps=%.0f saved=%d conflicts=%d total_saved=%d elapsed=%s",
			batches,
			rps,
			res.Saved,
			res.Conflicts,
			result.Saved,
			now.Sub(start).Truncate(time.Millisecond),
		)
		lastFlushTS = now
		lastSaved = result.Saved
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case p, ok := <-in:
			if !ok {
				return result, flush()
			}
			batch = append(batch, p)
			if len(batch) >= batchSize {
				if err := flush(); err != nil {
					return result, err
				}
			}
		}
	}
}
