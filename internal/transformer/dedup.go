// Package transformer contains the in-stream transformations applied between
// parsing and geocoding.
//
// Dedupe is the only transform the coordinate pipeline currently needs: it
// collapses repeated coordinates within a run so the geocoding API is not
// paid twice for the same point. Policy is keep-first; the first occurrence
// flows through, later ones are dropped and counted by the pipeline.
//
// Keys: a coordinate's key is its latitude/longitude pair rounded to a
// configured number of decimal places, hashed with xxh3. Rounding makes
// near-identical points (GPS jitter beyond the useful precision) collapse
// too; six decimals is roughly 0.1m at the equator. Only the 64-bit hash is
// retained, which keeps the seen-set small for large inputs.
package transformer

import (
	"math"
	"strconv"

	"github.com/zeebo/xxh3"

	"geoetl/internal/geo"
)

// Dedupe tracks coordinates already seen in a run. Not safe for concurrent
// use; the pipeline runs it on a single stage goroutine.
type Dedupe struct {
	precision int
	seen      map[uint64]struct{}
}

// NewDedupe builds a Dedupe keyed at the given number of decimal places.
func NewDedupe(precision int) *Dedupe {
	if precision < 0 {
		precision = 0
	}
	return &Dedupe{
		precision: precision,
		seen:      make(map[uint64]struct{}),
	}
}

// Seen records c and reports whether an equivalent coordinate was already
// seen in this run.
func (d *Dedupe) Seen(c geo.Coordinate) bool {
	k := d.key(c)
	if _, ok := d.seen[k]; ok {
		return true
	}
	d.seen[k] = struct{}{}
	return false
}

// Len returns the number of distinct coordinates recorded so far.
func (d *Dedupe) Len() int { return len(d.seen) }

func (d *Dedupe) key(c geo.Coordinate) uint64 {
	buf := make([]byte, 0, 48)
	buf = strconv.AppendFloat(buf, round(c.Latitude, d.precision), 'f', -1, 64)
	buf = append(buf, 0)
	buf = strconv.AppendFloat(buf, round(c.Longitude, d.precision), 'f', -1, 64)
	return xxh3.Hash(buf)
}

func round(v float64, places int) float64 {
	scale := math.Pow10(places)
	r := math.Round(v*scale) / scale
	if r == 0 {
		// Fold -0 into 0 so -0.0000001 and 0.0000001 share a key.
		return 0
	}
	return r
}
