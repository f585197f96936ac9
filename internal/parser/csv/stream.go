// Package csv provides streaming parsing of coordinate CSV files.
//
// The expected input is the format the original pipeline consumed:
//
//	latitude,longitude[,distance_km,bearing_degrees]
//	-30.896756,51.987642,1.2,270
//
// StreamCoordinates emits rows one at a time without whole-file buffering.
// Per-row problems (wrong width, unparseable floats, out-of-range values)
// are soft errors reported via a callback; the stream continues. Only a
// missing required column or an unreadable source is fatal.
package csv

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"

	"geoetl/internal/geo"
)

// Column names recognized in the header row (after normalization).
const (
	colLatitude  = "latitude"
	colLongitude = "longitude"
	colDistance  = "distance_km"
	colBearing   = "bearing_degrees"
)

// Options configures coordinate CSV parsing.
type Options struct {
	// HasHeader indicates the first row names the columns. When false the
	// columns are positional: latitude, longitude, then optionally
	// distance_km and bearing_degrees.
	HasHeader bool

	// Comma overrides the field delimiter (default ',').
	Comma rune
}

// StreamCoordinates reads CSV from r and sends parsed coordinates to out.
//
// Behavior:
//   - With a header, latitude/longitude columns are located by normalized
//     name; distance_km and bearing_degrees are picked up when present.
//   - Per-row errors are soft: reported via onError(line, err), stream
//     continues. Lines are 1-based, counting the header.
//   - Returns nil on EOF, ctx.Err() on cancellation, or a fatal error for an
//     unreadable source or unusable header.
//
// The caller owns 'out' and closes it after StreamCoordinates returns.
func StreamCoordinates(
	ctx context.Context,
	r io.Reader,
	opts Options,
	out chan<- geo.Coordinate,
	onError func(line int, err error),
) error {
	if onError == nil {
		onError = func(int, error) {}
	}

	cr := csv.NewReader(r)
	if opts.Comma != 0 {
		cr.Comma = opts.Comma
	}
	// Width is enforced below so short rows produce soft errors, not aborts.
	cr.FieldsPerRecord = -1

	// Column indices; -1 means absent.
	latIdx, lngIdx, distIdx, bearIdx := 0, 1, -1, -1
	line := 0

	if opts.HasHeader {
		h, err := cr.Read()
		if err != nil {
			return fmt.Errorf("read csv header: %w", err)
		}
		line++
		latIdx, lngIdx = -1, -1
		for i, col := range h {
			switch normalizeHeader(col) {
			case colLatitude:
				latIdx = i
			case colLongitude:
				lngIdx = i
			case colDistance:
				distIdx = i
			case colBearing:
				bearIdx = i
			}
		}
		if latIdx < 0 || lngIdx < 0 {
			return fmt.Errorf("csv header %v: latitude and longitude columns are required", h)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		line++
		if err != nil {
			onError(line, err)
			continue
		}

		c, err := parseRow(row, latIdx, lngIdx, distIdx, bearIdx)
		if err != nil {
			onError(line, err)
			continue
		}

		select {
		case out <- c:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func parseRow(row []string, latIdx, lngIdx, distIdx, bearIdx int) (geo.Coordinate, error) {
	width := latIdx
	if lngIdx > width {
		width = lngIdx
	}
	if len(row) <= width {
		return geo.Coordinate{}, fmt.Errorf("row has %d fields, need at least %d", len(row), width+1)
	}

	var c geo.Coordinate
	var err error
	if c.Latitude, err = parseFloat(row[latIdx]); err != nil {
		return geo.Coordinate{}, fmt.Errorf("latitude: %w", err)
	}
	if c.Longitude, err = parseFloat(row[lngIdx]); err != nil {
		return geo.Coordinate{}, fmt.Errorf("longitude: %w", err)
	}
	if !c.Valid() {
		return geo.Coordinate{}, fmt.Errorf("coordinate (%v, %v) out of range", c.Latitude, c.Longitude)
	}

	// Optional columns: absent index or short row leaves the zero value.
	if distIdx >= 0 && distIdx < len(row) && row[distIdx] != "" {
		if c.DistanceKM, err = parseFloat(row[distIdx]); err != nil {
			return geo.Coordinate{}, fmt.Errorf("distance_km: %w", err)
		}
	}
	if bearIdx >= 0 && bearIdx < len(row) && row[bearIdx] != "" {
		if c.BearingDegrees, err = parseFloat(row[bearIdx]); err != nil {
			return geo.Coordinate{}, fmt.Errorf("bearing_degrees: %w", err)
		}
	}
	return c, nil
}

func parseFloat(s string) (float64, error) {
	v, err := strconv.ParseFloat(trimSpaceBOM(s), 64)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", s, err)
	}
	return v, nil
}

func trimSpaceBOM(s string) string {
	for len(s) > 0 && (s[0] == ' ' || s[0] == '\t') {
		s = s[1:]
	}
	for len(s) > 0 && (s[len(s)-1] == ' ' || s[len(s)-1] == '\t') {
		s = s[:len(s)-1]
	}
	if len(s) >= len(utf8BOM) && s[:len(utf8BOM)] == utf8BOM {
		s = s[len(utf8BOM):]
	}
	return s
}
