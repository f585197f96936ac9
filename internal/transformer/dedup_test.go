package transformer

import (
	"testing"

	"geoetl/internal/geo"
)

func TestDedupeKeepFirst(t *testing.T) {
	d := NewDedupe(6)

	a := geo.Coordinate{Latitude: -30.896756, Longitude: 51.987642}
	b := geo.Coordinate{Latitude: 10.5, Longitude: -20.25}

	if d.Seen(a) {
		t.Fatalf("first occurrence reported as duplicate")
	}
	if !d.Seen(a) {
		t.Fatalf("second occurrence not reported as duplicate")
	}
	if d.Seen(b) {
		t.Fatalf("distinct coordinate reported as duplicate")
	}
	if d.Len() != 2 {
		t.Fatalf("Len = %d, want 2", d.Len())
	}
}

func TestDedupeIgnoresCarriedColumns(t *testing.T) {
	d := NewDedupe(6)

	a := geo.Coordinate{Latitude: 1, Longitude: 2, DistanceKM: 5}
	b := geo.Coordinate{Latitude: 1, Longitude: 2, DistanceKM: 9, BearingDegrees: 90}

	d.Seen(a)
	if !d.Seen(b) {
		t.Fatalf("same point with different carried columns not deduped")
	}
}

func TestDedupePrecisionCollapsesJitter(t *testing.T) {
	d := NewDedupe(4)

	d.Seen(geo.Coordinate{Latitude: -30.89671, Longitude: 51.98764})
	if !d.Seen(geo.Coordinate{Latitude: -30.896712, Longitude: 51.987641}) {
		t.Fatalf("jittered point not collapsed at 4 decimal places")
	}

	// A point that differs at the configured precision stays distinct.
	if d.Seen(geo.Coordinate{Latitude: -30.8972, Longitude: 51.9876}) {
		t.Fatalf("distinct point collapsed")
	}
}

func TestDedupeNegativeZero(t *testing.T) {
	d := NewDedupe(6)

	d.Seen(geo.Coordinate{Latitude: -0.0000001, Longitude: 0})
	if !d.Seen(geo.Coordinate{Latitude: 0.0000001, Longitude: 0}) {
		t.Fatalf("-0 and 0 keys differ")
	}
}
