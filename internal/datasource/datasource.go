// Package datasource abstracts where the coordinate CSV comes from.
//
// The pipeline reads its input through the Source interface so a run can be
// fed from a local file or an HTTP(S) URL without the orchestrator caring
// which. HTTP fetches retry transient failures with exponential backoff,
// since the CSVs are typically published by flaky open-data portals.
package datasource

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// Source yields the bytes of one coordinate CSV.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// ForPath picks a Source for the given path: HTTP(S) URLs get a retrying
// HTTP source with defaults, anything else is treated as a local file.
func ForPath(path string) Source {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return NewHTTP(path, HTTPConfig{})
	}
	return NewLocal(path)
}

// Local is a filesystem data source.
type Local struct{ path string }

// NewLocal returns a Local source bound to path.
func NewLocal(path string) *Local { return &Local{path: path} }

// Open opens the configured path for reading. A canceled context returns
// the context error without touching the filesystem; filesystem errors are
// wrapped with the path and keep errors.Is(err, os.ErrNotExist) working.
func (l *Local) Open(ctx context.Context) (io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", l.path, err)
	}
	return f, nil
}

// HTTPConfig configures the HTTP source.
//
// Zero values are given sensible defaults:
//   - Timeout:        30s
//   - MaxRetries:     3
//   - InitialBackoff: 200ms
//   - MaxBackoff:     5s
type HTTPConfig struct {
	// Timeout is the per-request timeout applied at the http.Client level.
	Timeout time.Duration

	// MaxRetries is the number of retry attempts after the initial request.
	// MaxRetries=0 means only the initial attempt.
	MaxRetries int

	// InitialBackoff is the base backoff duration for the first retry.
	// Each subsequent retry doubles the previous backoff up to MaxBackoff.
	InitialBackoff time.Duration

	// MaxBackoff caps the exponential backoff duration.
	MaxBackoff time.Duration

	// Transport is an optional custom RoundTripper, mainly for tests.
	Transport http.RoundTripper
}

// HTTP fetches the CSV from a URL with retry and backoff.
type HTTP struct {
	url            string
	client         *http.Client
	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration

	// sleep is injectable to make tests fast and deterministic.
	sleep func(time.Duration)
}

// NewHTTP constructs an HTTP source from cfg, applying defaults for zero values.
func NewHTTP(url string, cfg HTTPConfig) *HTTP {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 200 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 5 * time.Second
	}

	return &HTTP{
		url: url,
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: cfg.Transport,
		},
		maxRetries:     cfg.MaxRetries,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		sleep:          time.Sleep,
	}
}

// Open issues a GET for the URL, retrying transport errors and retryable
// HTTP statuses (429 and 5xx) with exponential backoff. The caller must
// close the returned body.
func (h *HTTP) Open(ctx context.Context) (io.ReadCloser, error) {
	attempts := h.maxRetries + 1
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}

		resp, err := h.client.Do(req)
		if err != nil {
			// Transport-level error, treat as retryable.
			lastErr = err
		} else if resp.StatusCode == http.StatusOK {
			return resp.Body, nil
		} else {
			_ = resp.Body.Close()
			lastErr = fmt.Errorf("fetch %s: status %s", h.url, resp.Status)
			if !retryableStatus(resp.StatusCode) {
				return nil, lastErr
			}
		}

		if attempt+1 >= attempts {
			return nil, lastErr
		}
		if err := sleepWithContext(ctx, h.sleep, backoffDuration(h.initialBackoff, attempt, h.maxBackoff)); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// backoffDuration doubles the initial backoff per attempt, capped at max.
func backoffDuration(initial time.Duration, attempt int, max time.Duration) time.Duration {
	d := initial << uint(attempt)
	if d > max || d <= 0 {
		return max
	}
	return d
}

// sleepWithContext waits for d using the injected sleep, aborting early when
// the context is canceled.
func sleepWithContext(ctx context.Context, sleep func(time.Duration), d time.Duration) error {
	done := make(chan struct{})
	go func() {
		sleep(d)
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}
