// Package pipeline wires the coordinate ETL stages into one run:
// CSV parse -> dedupe -> concurrent reverse geocoding -> batched load.
//
// Design goals:
//
//  1. Stages communicate over bounded channels so a slow stage applies
//     backpressure instead of buffering the whole input in memory.
//  2. A geocoder API failure aborts the run; per-row parse failures and
//     unresolved coordinates are counted and skipped.
//  3. The orchestrator depends only on the Geocoder and Repository
//     interfaces, so runs are testable without network or database access.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"geoetl/internal/config"
	"geoetl/internal/datasource"
	"geoetl/internal/geo"
	"geoetl/internal/geocode"
	"geoetl/internal/metrics"
	csvparser "geoetl/internal/parser/csv"
	"geoetl/internal/storage"
	"geoetl/internal/transformer"
)

// Summary reports the outcome of one pipeline run.
type Summary struct {
	// RunID uniquely identifies the run in logs.
	RunID string

	// Processed counts rows that parsed into a coordinate.
	Processed int64

	// ParseErrors counts rows skipped because they could not be parsed.
	ParseErrors int64

	// Duplicates counts coordinates dropped by the dedupe stage.
	Duplicates int64

	// Geocoded counts coordinates resolved to a complete address.
	Geocoded int64

	// Unresolved counts coordinates the geocoder could not resolve to a
	// complete street address.
	Unresolved int64

	// Saved and Conflicts come from the storage layer.
	Saved     int64
	Conflicts int64

	Elapsed time.Duration
}

// Run executes the pipeline described by cfg, reading the CSV named in
// cfg.Source.Path (a local file or an HTTP URL). The config is normalized
// before use.
func Run(ctx context.Context, cfg config.Pipeline, gc geocode.Geocoder, repo storage.Repository) (Summary, error) {
	rc, err := datasource.ForPath(cfg.Source.Path).Open(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("open source: %w", err)
	}
	defer rc.Close()
	return run(ctx, cfg, rc, gc, repo)
}

// run is the source-agnostic core of Run, split out so tests can feed an
// in-memory CSV.
func run(ctx context.Context, cfg config.Pipeline, src io.Reader, gc geocode.Geocoder, repo storage.Repository) (Summary, error) {
	if gc == nil {
		return Summary{}, fmt.Errorf("geocoder must not be nil")
	}
	if repo == nil {
		return Summary{}, fmt.Errorf("repository must not be nil")
	}
	cfg.Normalize()

	runID := uuid.NewString()
	start := time.Now()
	log.Printf("pipeline: run %s job=%q workers=%d batch=%d starting",
		runID, cfg.Job, cfg.Runtime.GeocodeWorkers, cfg.Runtime.BatchSize)

	if err := repo.EnsureTables(ctx); err != nil {
		return Summary{RunID: runID}, fmt.Errorf("ensure tables: %w", err)
	}

	comma := ','
	if cfg.Source.Comma != "" {
		comma = []rune(cfg.Source.Comma)[0]
	}

	var (
		processed   atomic.Int64
		parseErrors atomic.Int64
		duplicates  atomic.Int64
		geocoded    atomic.Int64
		unresolved  atomic.Int64
		batches     atomic.Int64
	)

	buf := cfg.Runtime.ChannelBuffer
	raw := make(chan geo.Coordinate, buf)
	unique := make(chan geo.Coordinate, buf)
	placements := make(chan geo.Placement, buf)

	g, gctx := errgroup.WithContext(ctx)

	// Stage 1: parse. Row errors are soft; an unreadable source is fatal.
	g.Go(func() error {
		defer close(raw)
		t0 := time.Now()
		err := csvparser.StreamCoordinates(gctx, src, csvparser.Options{
			HasHeader: cfg.Source.HasHeader,
			Comma:     comma,
		}, raw, func(line int, err error) {
			parseErrors.Add(1)
			log.Printf("pipeline: run %s line %d skipped: %v", runID, line, err)
		})
		metrics.RecordStep(cfg.Job, "parse", err, time.Since(t0))
		if err != nil {
			return fmt.Errorf("parse: %w", err)
		}
		return nil
	})

	// Stage 2: dedupe. Single goroutine; the dedupe map is not shared.
	g.Go(func() error {
		defer close(unique)
		var dd *transformer.Dedupe
		if cfg.Dedupe.Enabled {
			dd = transformer.NewDedupe(cfg.Dedupe.Precision)
		}
		for c := range raw {
			processed.Add(1)
			if dd != nil && dd.Seen(c) {
				duplicates.Add(1)
				continue
			}
			select {
			case unique <- c:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	// Stage 3: geocode workers. An API error cancels the whole run so a bad
	// key or exhausted quota does not burn through the remaining rows.
	var geoWG sync.WaitGroup
	for i := 0; i < cfg.Runtime.GeocodeWorkers; i++ {
		geoWG.Add(1)
		g.Go(func() error {
			defer geoWG.Done()
			for c := range unique {
				t0 := time.Now()
				addr, ok, err := gc.ReverseGeocode(gctx, c.Latitude, c.Longitude)
				metrics.RecordStep(cfg.Job, "geocode", err, time.Since(t0))
				if err != nil {
					return fmt.Errorf("geocode (%v, %v): %w", c.Latitude, c.Longitude, err)
				}
				if !ok || !addr.Complete() {
					unresolved.Add(1)
					continue
				}
				geocoded.Add(1)
				select {
				case placements <- geo.Placement{Coordinate: c, Address: addr}:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}
	go func() {
		geoWG.Wait()
		close(placements)
	}()

	// Stage 4: load. The batch counter wraps SaveBatch so the repository
	// stays unaware of metrics.
	var saveRes storage.SaveResult
	g.Go(func() error {
		t0 := time.Now()
		res, err := storage.LoadBatches(gctx, placements, cfg.Runtime.BatchSize,
			func(ctx context.Context, batch []geo.Placement) (storage.SaveResult, error) {
				batches.Add(1)
				return repo.SaveBatch(ctx, batch)
			})
		saveRes = res
		metrics.RecordStep(cfg.Job, "load", err, time.Since(t0))
		if err != nil {
			return fmt.Errorf("load: %w", err)
		}
		return nil
	})

	err := g.Wait()

	sum := Summary{
		RunID:       runID,
		Processed:   processed.Load(),
		ParseErrors: parseErrors.Load(),
		Duplicates:  duplicates.Load(),
		Geocoded:    geocoded.Load(),
		Unresolved:  unresolved.Load(),
		Saved:       saveRes.Saved,
		Conflicts:   saveRes.Conflicts,
		Elapsed:     time.Since(start),
	}

	metrics.RecordRow(cfg.Job, "processed", sum.Processed)
	metrics.RecordRow(cfg.Job, "parse_errors", sum.ParseErrors)
	metrics.RecordRow(cfg.Job, "duplicates", sum.Duplicates)
	metrics.RecordRow(cfg.Job, "unresolved", sum.Unresolved)
	metrics.RecordRow(cfg.Job, "saved", sum.Saved)
	metrics.RecordRow(cfg.Job, "conflicts", sum.Conflicts)
	metrics.RecordBatches(cfg.Job, batches.Load())

	if err != nil {
		log.Printf("pipeline: run %s failed after %s: %v", runID, sum.Elapsed.Round(time.Millisecond), err)
		return sum, err
	}
	log.Printf("pipeline: run %s done: processed=%d parse_errors=%d duplicates=%d geocoded=%d unresolved=%d saved=%d conflicts=%d elapsed=%s",
		runID, sum.Processed, sum.ParseErrors, sum.Duplicates, sum.Geocoded,
		sum.Unresolved, sum.Saved, sum.Conflicts, sum.Elapsed.Round(time.Millisecond))
	return sum, nil
}
