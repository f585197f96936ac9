package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"geoetl/internal/config"
	"geoetl/internal/geo"
	"geoetl/internal/storage"
)

// fakeGeocoder resolves coordinates via a caller-provided function.
type fakeGeocoder struct {
	fn func(lat, lng float64) (geo.Address, bool, error)

	mu    sync.Mutex
	calls int
}

func (f *fakeGeocoder) ReverseGeocode(ctx context.Context, lat, lng float64) (geo.Address, bool, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.fn(lat, lng)
}

func (f *fakeGeocoder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// completeAddress returns an address that passes geo.Address.Complete.
func completeAddress(lat, lng float64) geo.Address {
	return geo.Address{
		StreetNumber: "100",
		StreetName:   "Av. Ipiranga",
		Neighborhood: "Partenon",
		City:         "Porto Alegre",
		State:        "RS",
		Country:      "Brazil",
		PostalCode:   "90619-900",
		Latitude:     lat,
		Longitude:    lng,
	}
}

// fakeRepo records saved placements in memory.
type fakeRepo struct {
	mu           sync.Mutex
	ensureErr    error
	saveErr      error
	ensureCalled bool
	saved        []geo.Placement
	batchSizes   []int
	closed       bool
}

func (r *fakeRepo) EnsureTables(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ensureCalled = true
	return r.ensureErr
}

func (r *fakeRepo) SaveBatch(ctx context.Context, batch []geo.Placement) (storage.SaveResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return storage.SaveResult{}, r.saveErr
	}
	r.saved = append(r.saved, batch...)
	r.batchSizes = append(r.batchSizes, len(batch))
	return storage.SaveResult{Saved: int64(len(batch))}, nil
}

func (r *fakeRepo) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
}

func (r *fakeRepo) savedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.saved)
}

func testConfig() config.Pipeline {
	cfg := config.Pipeline{Job: "test-job"}
	cfg.Source.HasHeader = true
	cfg.Dedupe.Enabled = true
	cfg.Runtime.GeocodeWorkers = 2
	cfg.Runtime.BatchSize = 2
	return cfg
}

// TestRunHappyPath feeds a CSV with one duplicate, one bad row and one
// unresolvable coordinate, and checks every summary counter.
func TestRunHappyPath(t *testing.T) {
	csvData := strings.Join([]string{
		"latitude,longitude",
		"-30.108498,-51.317228",
		"-30.108498,-51.317228", // duplicate of the previous row
		"not-a-number,-51.0",    // parse error
		"-30.034647,-51.217658",
		"0.0,0.0", // unresolvable
	}, "\n")

	gc := &fakeGeocoder{fn: func(lat, lng float64) (geo.Address, bool, error) {
		if lat == 0 && lng == 0 {
			return geo.Address{}, false, nil
		}
		return completeAddress(lat, lng), true, nil
	}}
	repo := &fakeRepo{}

	sum, err := run(context.Background(), testConfig(), strings.NewReader(csvData), gc, repo)
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}

	if sum.RunID == "" {
		t.Errorf("Summary.RunID is empty")
	}
	if sum.Processed != 4 {
		t.Errorf("Processed = %d, want 4", sum.Processed)
	}
	if sum.ParseErrors != 1 {
		t.Errorf("ParseErrors = %d, want 1", sum.ParseErrors)
	}
	if sum.Duplicates != 1 {
		t.Errorf("Duplicates = %d, want 1", sum.Duplicates)
	}
	if sum.Geocoded != 2 {
		t.Errorf("Geocoded = %d, want 2", sum.Geocoded)
	}
	if sum.Unresolved != 1 {
		t.Errorf("Unresolved = %d, want 1", sum.Unresolved)
	}
	if sum.Saved != 2 {
		t.Errorf("Saved = %d, want 2", sum.Saved)
	}

	if !repo.ensureCalled {
		t.Errorf("EnsureTables was not called")
	}
	if got := repo.savedCount(); got != 2 {
		t.Errorf("repository holds %d placements, want 2", got)
	}
	// The duplicate must not reach the geocoder: 3 unique coordinates.
	if got := gc.callCount(); got != 3 {
		t.Errorf("geocoder called %d times, want 3", got)
	}
}

// TestRunDedupeDisabled verifies that duplicates flow through when the
// stage is off.
func TestRunDedupeDisabled(t *testing.T) {
	csvData := strings.Join([]string{
		"latitude,longitude",
		"-30.108498,-51.317228",
		"-30.108498,-51.317228",
	}, "\n")

	gc := &fakeGeocoder{fn: func(lat, lng float64) (geo.Address, bool, error) {
		return completeAddress(lat, lng), true, nil
	}}
	repo := &fakeRepo{}

	cfg := testConfig()
	cfg.Dedupe.Enabled = false

	sum, err := run(context.Background(), cfg, strings.NewReader(csvData), gc, repo)
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if sum.Duplicates != 0 {
		t.Errorf("Duplicates = %d, want 0", sum.Duplicates)
	}
	if sum.Saved != 2 {
		t.Errorf("Saved = %d, want 2", sum.Saved)
	}
}

// TestRunGeocodeErrorAborts verifies that a geocoder API error cancels
// the run and is surfaced to the caller.
func TestRunGeocodeErrorAborts(t *testing.T) {
	var rows []string
	rows = append(rows, "latitude,longitude")
	for i := 0; i < 50; i++ {
		rows = append(rows, fmt.Sprintf("-30.%06d,-51.317228", i))
	}

	apiErr := errors.New("REQUEST_DENIED")
	gc := &fakeGeocoder{fn: func(lat, lng float64) (geo.Address, bool, error) {
		return geo.Address{}, false, apiErr
	}}
	repo := &fakeRepo{}

	_, err := run(context.Background(), testConfig(), strings.NewReader(strings.Join(rows, "\n")), gc, repo)
	if err == nil {
		t.Fatalf("run() error = nil, want geocode failure")
	}
	if !errors.Is(err, apiErr) {
		t.Errorf("run() error = %v, want wrapped %v", err, apiErr)
	}
	if got := repo.savedCount(); got != 0 {
		t.Errorf("repository holds %d placements, want 0", got)
	}
}

// TestRunEnsureTablesError verifies that a schema failure aborts before
// any parsing happens.
func TestRunEnsureTablesError(t *testing.T) {
	tableErr := errors.New("permission denied for schema public")
	repo := &fakeRepo{ensureErr: tableErr}
	gc := &fakeGeocoder{fn: func(lat, lng float64) (geo.Address, bool, error) {
		return completeAddress(lat, lng), true, nil
	}}

	_, err := run(context.Background(), testConfig(), strings.NewReader("latitude,longitude\n1,2"), gc, repo)
	if !errors.Is(err, tableErr) {
		t.Fatalf("run() error = %v, want wrapped %v", err, tableErr)
	}
	if gc.callCount() != 0 {
		t.Errorf("geocoder called %d times, want 0", gc.callCount())
	}
}

// TestRunSaveErrorPropagates verifies that a storage failure fails the run.
func TestRunSaveErrorPropagates(t *testing.T) {
	saveErr := errors.New("connection refused")
	repo := &fakeRepo{saveErr: saveErr}
	gc := &fakeGeocoder{fn: func(lat, lng float64) (geo.Address, bool, error) {
		return completeAddress(lat, lng), true, nil
	}}

	csvData := "latitude,longitude\n-30.1,-51.3\n-30.2,-51.4\n"
	_, err := run(context.Background(), testConfig(), strings.NewReader(csvData), gc, repo)
	if !errors.Is(err, saveErr) {
		t.Fatalf("run() error = %v, want wrapped %v", err, saveErr)
	}
}

// TestRunValidation checks the nil-dependency guards.
func TestRunValidation(t *testing.T) {
	repo := &fakeRepo{}
	gc := &fakeGeocoder{fn: func(lat, lng float64) (geo.Address, bool, error) {
		return completeAddress(lat, lng), true, nil
	}}

	if _, err := run(context.Background(), testConfig(), strings.NewReader(""), nil, repo); err == nil {
		t.Errorf("run() with nil geocoder: error = nil, want non-nil")
	}
	if _, err := run(context.Background(), testConfig(), strings.NewReader(""), gc, nil); err == nil {
		t.Errorf("run() with nil repository: error = nil, want non-nil")
	}
}

// TestRunMissingSourceFile verifies that Run surfaces an open error for a
// path that does not exist.
func TestRunMissingSourceFile(t *testing.T) {
	cfg := testConfig()
	cfg.Source.Path = "/nonexistent/coordinates.csv"

	gc := &fakeGeocoder{fn: func(lat, lng float64) (geo.Address, bool, error) {
		return completeAddress(lat, lng), true, nil
	}}
	_, err := Run(context.Background(), cfg, gc, &fakeRepo{})
	if err == nil {
		t.Fatalf("Run() error = nil, want open failure")
	}
}

// TestRunBatchSizes verifies that placements are flushed in batches of the
// configured size.
func TestRunBatchSizes(t *testing.T) {
	var rows []string
	rows = append(rows, "latitude,longitude")
	for i := 0; i < 5; i++ {
		rows = append(rows, fmt.Sprintf("-30.%06d,-51.317228", i))
	}

	gc := &fakeGeocoder{fn: func(lat, lng float64) (geo.Address, bool, error) {
		return completeAddress(lat, lng), true, nil
	}}
	repo := &fakeRepo{}

	cfg := testConfig()
	cfg.Runtime.GeocodeWorkers = 1
	cfg.Runtime.BatchSize = 2

	sum, err := run(context.Background(), cfg, strings.NewReader(strings.Join(rows, "\n")), gc, repo)
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if sum.Saved != 5 {
		t.Fatalf("Saved = %d, want 5", sum.Saved)
	}
	if len(repo.batchSizes) != 3 {
		t.Fatalf("batch count = %d (%v), want 3", len(repo.batchSizes), repo.batchSizes)
	}
	for i, n := range repo.batchSizes[:2] {
		if n != 2 {
			t.Errorf("batch %d size = %d, want 2", i, n)
		}
	}
	if last := repo.batchSizes[2]; last != 1 {
		t.Errorf("final batch size = %d, want 1", last)
	}
}
