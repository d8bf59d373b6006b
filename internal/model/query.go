package model

import (
	"errors"
	"strings"
)

// BackendKind identifies a search backend variant.
//
// Design decision: We use a string-typed enum rather than iota constants
// because backend kinds appear in config files, log output, and the
// history database. A string survives all three without a mapping layer,
// and new kinds can be introduced from configuration without recompiling
// consumers that only route on the value.
type BackendKind string

// Known backend kinds. The set is extensible: config-defined backends
// may introduce additional kinds at runtime.
const (
	// KindDuckDuckGo is the DuckDuckGo HTML endpoint (clearnet).
	KindDuckDuckGo BackendKind = "duckduckgo"

	// KindSearx is a SearxNG instance queried via its JSON API (clearnet).
	KindSearx BackendKind = "searx"

	// KindAhmia is the Ahmia hidden-service search index (onion).
	KindAhmia BackendKind = "ahmia"
)

// String returns the kind name.
func (k BackendKind) String() string {
	return string(k)
}

// Query validation errors.
var (
	// ErrEmptyQuery is returned when the query text is empty or whitespace.
	ErrEmptyQuery = errors.New("query text must not be empty")

	// ErrInvalidMaxResults is returned when MaxResults is not positive.
	ErrInvalidMaxResults = errors.New("max results must be positive")
)

// Query is a single logical search request. It is immutable once built:
// the orchestrator fans the same Query out to every selected backend.
type Query struct {
	// Text is the search phrase. Must be non-empty.
	Text string

	// MaxResults caps the number of results in the aggregated response.
	// Must be positive.
	MaxResults int

	// Sources selects which backends receive the query, in priority
	// order. Priority is used as the tie-breaker when merged results
	// have equal scores. An empty slice means "all registered backends".
	Sources []BackendKind
}

// Validate checks the query invariants.
// It returns the first violated invariant as a sentinel error so callers
// can use errors.Is for programmatic handling.
func (q Query) Validate() error {
	if strings.TrimSpace(q.Text) == "" {
		return ErrEmptyQuery
	}
	if q.MaxResults <= 0 {
		return ErrInvalidMaxResults
	}
	return nil
}

// WantsSource reports whether the query targets the given backend kind.
// A query with no explicit sources targets every backend.
func (q Query) WantsSource(kind BackendKind) bool {
	if len(q.Sources) == 0 {
		return true
	}
	for _, k := range q.Sources {
		if k == kind {
			return true
		}
	}
	return false
}
