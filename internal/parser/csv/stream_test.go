package csv

import (
	"context"
	"strings"
	"testing"

	"geoetl/internal/geo"
)

// collect drains StreamCoordinates into slices for assertions.
func collect(t *testing.T, input string, opts Options) ([]geo.Coordinate, []int, error) {
	t.Helper()

	out := make(chan geo.Coordinate, 64)
	var errLines []int
	err := StreamCoordinates(context.Background(), strings.NewReader(input), opts, out,
		func(line int, err error) { errLines = append(errLines, line) })
	close(out)

	var got []geo.Coordinate
	for c := range out {
		got = append(got, c)
	}
	return got, errLines, err
}

func TestStreamCoordinatesWithHeader(t *testing.T) {
	input := "latitude,longitude,distance_km,bearing_degrees\n" +
		"-30.896756,51.987642,1.5,270\n" +
		"10.5,-20.25,,\n"

	got, errLines, err := collect(t, input, Options{HasHeader: true})
	if err != nil {
		t.Fatalf("StreamCoordinates: %v", err)
	}
	if len(errLines) != 0 {
		t.Fatalf("unexpected soft errors on lines %v", errLines)
	}
	want := []geo.Coordinate{
		{Latitude: -30.896756, Longitude: 51.987642, DistanceKM: 1.5, BearingDegrees: 270},
		{Latitude: 10.5, Longitude: -20.25},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d coordinates, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("row %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestStreamCoordinatesHeaderOrderIndependent(t *testing.T) {
	input := "Longitude,Latitude\n51.98,-30.89\n"
	got, _, err := collect(t, input, Options{HasHeader: true})
	if err != nil {
		t.Fatalf("StreamCoordinates: %v", err)
	}
	if len(got) != 1 || got[0].Latitude != -30.89 || got[0].Longitude != 51.98 {
		t.Fatalf("columns not matched by name: %+v", got)
	}
}

func TestStreamCoordinatesBOMHeader(t *testing.T) {
	input := "\ufefflatitude,longitude\n1,2\n"
	got, _, err := collect(t, input, Options{HasHeader: true})
	if err != nil {
		t.Fatalf("StreamCoordinates: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("BOM header row not recognized, got %d rows", len(got))
	}
}

func TestStreamCoordinatesNoHeader(t *testing.T) {
	got, _, err := collect(t, "-30.0,51.0\n-31.0,52.0\n", Options{})
	if err != nil {
		t.Fatalf("StreamCoordinates: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d rows, want 2", len(got))
	}
}

func TestStreamCoordinatesSoftErrors(t *testing.T) {
	input := "latitude,longitude\n" +
		"-30.0,51.0\n" + // good (line 2)
		"oops,51.0\n" + // bad float (line 3)
		"-95.0,51.0\n" + // out of range (line 4)
		"-30.5\n" + // short row (line 5)
		"-31.0,52.0\n" // good (line 6)

	got, errLines, err := collect(t, input, Options{HasHeader: true})
	if err != nil {
		t.Fatalf("StreamCoordinates: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d rows, want 2 surviving rows", len(got))
	}
	wantLines := []int{3, 4, 5}
	if len(errLines) != len(wantLines) {
		t.Fatalf("error lines = %v, want %v", errLines, wantLines)
	}
	for i := range wantLines {
		if errLines[i] != wantLines[i] {
			t.Fatalf("error lines = %v, want %v", errLines, wantLines)
		}
	}
}

func TestStreamCoordinatesMissingRequiredColumn(t *testing.T) {
	_, _, err := collect(t, "latitude,elevation\n1,2\n", Options{HasHeader: true})
	if err == nil {
		t.Fatalf("header without longitude accepted")
	}
}

func TestStreamCoordinatesSemicolonDelimiter(t *testing.T) {
	got, _, err := collect(t, "latitude;longitude\n-30.0;51.0\n", Options{HasHeader: true, Comma: ';'})
	if err != nil {
		t.Fatalf("StreamCoordinates: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d rows, want 1", len(got))
	}
}

func TestStreamCoordinatesCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := make(chan geo.Coordinate) // unbuffered: forces the send path to block
	err := StreamCoordinates(ctx, strings.NewReader("1,2\n3,4\n"), Options{}, out, nil)
	if err == nil {
		t.Fatalf("canceled stream returned nil")
	}
}

func TestNormalizeHeader(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Latitude", "latitude"},
		{"  longitude  ", "longitude"},
		{"Distance KM", "distance_km"},
		{"bearing-degrees", "bearing_degrees"},
		{"latitudê", "latitude"},
		{"\ufefflatitude", "latitude"},
	}
	for _, tc := range cases {
		if got := normalizeHeader(tc.in); got != tc.want {
			t.Fatalf("normalizeHeader(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
