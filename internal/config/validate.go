// This file adds a lightweight linter/validator for Pipeline values. It
// performs static checks over a decoded Pipeline and returns a list of
// issues (errors and warnings) that callers can surface in a CLI or tests.
package config

import (
	"fmt"
	"strings"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that should block execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning indicates a configuration warning that should be surfaced
	// to users but may not necessarily block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation finding for a Pipeline.
//
// Path is a dotted path into the config (e.g. "source.path",
// "runtime.batch_size"). Message is human-readable.
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a
// single error in contexts that expect one.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue in the slice is of error severity.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// ValidatePipeline performs static validation of a Pipeline. It does not
// mutate the pipeline; run Normalize separately to fill defaults.
func ValidatePipeline(p Pipeline) []Issue {
	var issues []Issue

	if strings.TrimSpace(p.Job) == "" {
		issues = append(issues, Issue{SeverityWarning, "job", "job name is empty; metrics will group under the default job"})
	}

	if strings.TrimSpace(p.Source.Path) == "" {
		issues = append(issues, Issue{SeverityError, "source.path", "source path is required"})
	}
	if len(p.Source.Comma) > 1 {
		issues = append(issues, Issue{SeverityError, "source.comma", "delimiter must be a single character"})
	}

	if p.Dedupe.Precision < 0 || p.Dedupe.Precision > 9 {
		issues = append(issues, Issue{SeverityError, "dedupe.precision", "precision must be between 0 and 9 decimal places"})
	}

	if p.Runtime.GeocodeWorkers < 0 {
		issues = append(issues, Issue{SeverityError, "runtime.geocode_workers", "worker count cannot be negative"})
	}
	if p.Runtime.GeocodeWorkers > 64 {
		issues = append(issues, Issue{SeverityWarning, "runtime.geocode_workers", "more than 64 geocode workers will mostly hit the API rate limit"})
	}
	if p.Runtime.BatchSize < 0 {
		issues = append(issues, Issue{SeverityError, "runtime.batch_size", "batch size cannot be negative"})
	}
	if p.Runtime.ChannelBuffer < 0 {
		issues = append(issues, Issue{SeverityError, "runtime.channel_buffer", "channel buffer cannot be negative"})
	}

	for _, tbl := range []struct{ path, name string }{
		{"storage.coordinate_table", p.Storage.CoordinateTable},
		{"storage.address_table", p.Storage.AddressTable},
	} {
		if tbl.name != "" && !validIdent(tbl.name) {
			issues = append(issues, Issue{SeverityError, tbl.path, fmt.Sprintf("%q is not a plain SQL identifier", tbl.name)})
		}
	}

	switch p.Metrics.Backend {
	case "", "none", "pushgateway":
	default:
		issues = append(issues, Issue{SeverityWarning, "metrics.backend", fmt.Sprintf("unknown backend %q; metrics will be disabled", p.Metrics.Backend)})
	}

	return issues
}

// validIdent accepts unquoted lowercase SQL identifiers: letters, digits and
// underscores, not starting with a digit. Destination tables are created by
// this program, so we never need quoted exotica here.
func validIdent(s string) bool {
	for i, r := range s {
		switch {
		case r == '_':
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return len(s) > 0
}
