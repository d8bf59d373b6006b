package backend

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/BigBang142/Tor-Search-MCP/internal/model"
)

// Adapter parse errors.
// RateLimited and Blocked are distinguished from plain parse failures
// because the orchestrator reacts differently: rate limiting backs off
// on the same circuit, blocking forces a circuit rotation, and a parse
// failure just drops the backend's contribution.
var (
	// ErrParse is returned when a response cannot be interpreted as the
	// backend's result format. Usually means the backend changed its
	// markup or returned an unexpected page.
	ErrParse = errors.New("failed to parse backend response")

	// ErrRateLimited is returned when the backend throttled the request.
	ErrRateLimited = errors.New("backend rate limited the request")

	// ErrBlocked is returned when the backend refused to serve this
	// client, typically an exit-node block or a challenge page.
	ErrBlocked = errors.New("backend blocked the request")

	// ErrUnknownKind is returned when looking up a backend kind that is
	// not registered.
	ErrUnknownKind = errors.New("unknown backend kind")
)

// defaultUserAgent is sent with backend requests. A common desktop
// browser string: Tor exit traffic with an unusual User-Agent is both
// more blockable and more fingerprintable.
const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:109.0) Gecko/20100101 Firefox/115.0"

// RequestSpec describes one HTTP request an adapter wants issued. The
// orchestrator executes it through the Tor transport; the adapter only
// declares method, URL, and headers.
type RequestSpec struct {
	// Method is the HTTP method, usually GET.
	Method string

	// URL is the fully encoded request URL.
	URL string

	// Header contains request headers including the User-Agent.
	Header http.Header
}

// RawResponse is one backend's HTTP response payload. It is transient:
// produced by the dispatch, consumed by exactly one Parse call, then
// discarded.
type RawResponse struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// ContentType is the Content-Type header value.
	ContentType string

	// Body is the response body, already read and size-capped.
	Body []byte
}

// Adapter is the per-source strategy: build a request for a query,
// parse the response into normalized results.
type Adapter interface {
	// Kind identifies the backend variant.
	Kind() model.BackendKind

	// Host returns the backend host (host or host:port) for logging and
	// onion detection.
	Host() string

	// BuildRequest translates the query into this backend's request
	// format (endpoint path, query-string encoding, headers).
	BuildRequest(q model.Query) (*RequestSpec, error)

	// Parse converts the raw response into normalized results.
	// Fails with ErrParse, ErrRateLimited, or ErrBlocked.
	Parse(raw RawResponse) ([]model.Result, error)
}

// Registry holds the configured adapters in priority order. The order
// adapters are registered in is the tie-break order the aggregator uses
// for equal scores.
type Registry struct {
	adapters []Adapter
}

// NewRegistry creates a registry with the given adapters in priority order.
func NewRegistry(adapters ...Adapter) *Registry {
	return &Registry{adapters: adapters}
}

// Add appends an adapter at the lowest priority.
func (r *Registry) Add(a Adapter) {
	r.adapters = append(r.adapters, a)
}

// Select returns the adapters targeted by the query, preserving
// registry priority order. A query without an explicit source filter
// selects every adapter.
func (r *Registry) Select(q model.Query) []Adapter {
	selected := make([]Adapter, 0, len(r.adapters))
	for _, a := range r.adapters {
		if q.WantsSource(a.Kind()) {
			selected = append(selected, a)
		}
	}
	return selected
}

// Lookup returns the adapter for a kind.
func (r *Registry) Lookup(kind model.BackendKind) (Adapter, error) {
	for _, a := range r.adapters {
		if a.Kind() == kind {
			return a, nil
		}
	}
	return nil, ErrUnknownKind
}

// Kinds returns all registered kinds in priority order.
func (r *Registry) Kinds() []model.BackendKind {
	kinds := make([]model.BackendKind, len(r.adapters))
	for i, a := range r.adapters {
		kinds[i] = a.Kind()
	}
	return kinds
}

// Len returns the number of registered adapters.
func (r *Registry) Len() int {
	return len(r.adapters)
}

// statusError maps HTTP status codes shared by all backends onto the
// adapter error taxonomy. Returns nil for statuses the variant-specific
// parser should handle.
func statusError(status int) error {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrRateLimited
	case status == http.StatusForbidden:
		// Backends answer Tor exits with 403 when they block them.
		return ErrBlocked
	case status >= 500:
		return ErrBlocked
	default:
		return nil
	}
}

// rankScore derives a relevance score from a result's rank for backends
// that report no native score. The first result scores 1.0 and scores
// decay linearly so cross-backend merging stays comparable.
func rankScore(rank, total int) float64 {
	if total <= 0 {
		return 0
	}
	return 1.0 - float64(rank)/float64(total+1)
}

// newHeader builds the default request headers for a backend request.
func newHeader(accept string) http.Header {
	h := http.Header{}
	h.Set("User-Agent", defaultUserAgent)
	h.Set("Accept", accept)
	h.Set("Accept-Language", "en-US,en;q=0.5")
	return h
}

// hostOf extracts the host (with port, if any) from a base URL string.
func hostOf(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return strings.TrimSpace(baseURL)
	}
	return u.Host
}
