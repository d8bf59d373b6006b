package search

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/BigBang142/Tor-Search-MCP/internal/backend"
	"github.com/BigBang142/Tor-Search-MCP/internal/model"
	"github.com/BigBang142/Tor-Search-MCP/internal/tor"
)

// Orchestration errors.
var (
	// ErrAllBackendsFailed is returned when every selected backend
	// exhausted its retries without producing results.
	ErrAllBackendsFailed = errors.New("all search backends failed")

	// ErrNoBackendSelected is returned when the query's source filter
	// matches no registered backend.
	ErrNoBackendSelected = errors.New("no backend matches the query's source filter")
)

// Orchestration defaults per attempt and per query.
const (
	// DefaultGlobalTimeout bounds one whole query across all backends.
	DefaultGlobalTimeout = 20 * time.Second

	// DefaultRequestTimeout bounds a single backend request including
	// body transfer. Tor round trips are slow; this is per attempt, so
	// it must fit inside the global timeout with room for a retry.
	DefaultRequestTimeout = 15 * time.Second

	// DefaultMaxRetries is the number of retries after the first attempt.
	DefaultMaxRetries = 2

	// DefaultBackoffBase is the first retry delay; subsequent delays
	// double up to DefaultBackoffCap.
	DefaultBackoffBase = 500 * time.Millisecond

	// DefaultBackoffCap bounds the exponential backoff.
	DefaultBackoffCap = 4 * time.Second

	// DefaultMaxBodySize caps how much of a backend response is read.
	// Result pages are small; anything bigger is garbage or abuse.
	DefaultMaxBodySize = 2 * 1024 * 1024

	// DefaultSnippetLength is the maximum snippet length in runes.
	DefaultSnippetLength = 125
)

// CircuitSource is the slice of the circuit controller the orchestrator
// uses. *tor.CircuitController implements it; tests substitute fakes.
type CircuitSource interface {
	Acquire(ctx context.Context) (*tor.Circuit, error)
	Rotate(ctx context.Context, c *tor.Circuit) error
	ReportFailure(c *tor.Circuit)
	ReportSuccess(c *tor.Circuit)
}

// ClientFactory produces HTTP clients bound to a circuit.
// *tor.Transport implements it.
type ClientFactory interface {
	HTTPClient(circuit *tor.Circuit, timeout time.Duration) *http.Client
}

// Orchestrator fans a query out to the selected backends concurrently,
// applying per-attempt retry, backoff, and circuit-rotation policy, and
// aggregates whatever arrived before the global deadline.
type Orchestrator struct {
	registry *backend.Registry
	circuits CircuitSource
	clients  ClientFactory

	globalTimeout  time.Duration
	requestTimeout time.Duration
	maxRetries     int
	backoffBase    time.Duration
	backoffCap     time.Duration
	maxBodySize    int64
	snippetLength  int

	logger *slog.Logger
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithGlobalTimeout sets the whole-query deadline.
func WithGlobalTimeout(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if d > 0 {
			o.globalTimeout = d
		}
	}
}

// WithRequestTimeout sets the per-attempt transfer timeout.
func WithRequestTimeout(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if d > 0 {
			o.requestTimeout = d
		}
	}
}

// WithMaxRetries sets the retries allowed after the first attempt.
func WithMaxRetries(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n >= 0 {
			o.maxRetries = n
		}
	}
}

// WithBackoff sets the exponential backoff base and cap.
func WithBackoff(base, limit time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if base > 0 {
			o.backoffBase = base
		}
		if limit > 0 {
			o.backoffCap = limit
		}
	}
}

// WithMaxBodySize caps response body reads.
func WithMaxBodySize(n int64) OrchestratorOption {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxBodySize = n
		}
	}
}

// WithSnippetLength sets the maximum snippet length in runes.
func WithSnippetLength(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n > 0 {
			o.snippetLength = n
		}
	}
}

// WithLogger sets the orchestrator's logger.
func WithLogger(logger *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// NewOrchestrator creates an orchestrator over the given backends,
// circuit source, and transport.
func NewOrchestrator(registry *backend.Registry, circuits CircuitSource, clients ClientFactory, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		registry:       registry,
		circuits:       circuits,
		clients:        clients,
		globalTimeout:  DefaultGlobalTimeout,
		requestTimeout: DefaultRequestTimeout,
		maxRetries:     DefaultMaxRetries,
		backoffBase:    DefaultBackoffBase,
		backoffCap:     DefaultBackoffCap,
		maxBodySize:    DefaultMaxBodySize,
		snippetLength:  DefaultSnippetLength,
	}

	for _, opt := range opts {
		opt(o)
	}

	if o.logger == nil {
		o.logger = slog.Default()
	}

	return o
}

// dispatchOutcome records how one backend's dispatch ended.
type dispatchOutcome struct {
	results   []model.Result
	err       error
	exhausted bool // definitively failed (as opposed to cut off by the deadline)
}

// Search executes the query: concurrent fan-out, per-backend retry, and
// final aggregation. It returns once every backend resolved or the
// global timeout elapsed, whichever happens first.
//
// Backends still pending at the deadline contribute nothing; that is
// not an error. The error cases are: no circuit obtainable at all
// (tor.ErrCircuitUnavailable), or every backend exhausting its retries
// (ErrAllBackendsFailed).
func (o *Orchestrator) Search(ctx context.Context, q model.Query) (*model.Response, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	adapters := o.registry.Select(q)
	if len(adapters) == 0 {
		return nil, ErrNoBackendSelected
	}

	ctx, cancel := context.WithTimeout(ctx, o.globalTimeout)
	defer cancel()

	start := time.Now()
	outcomes := make([]dispatchOutcome, len(adapters))

	// One goroutine per backend. The group context is not used for
	// error propagation: a backend failing must not cancel its peers,
	// so every dispatch returns nil and records its outcome instead.
	g := new(errgroup.Group)
	for i, a := range adapters {
		g.Go(func() error {
			outcomes[i] = o.dispatch(ctx, a, q)
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // Dispatches never return errors

	var (
		sets         [][]model.Result
		sources      []model.BackendKind
		exhausted    int
		circuitsDown int
	)
	for i, out := range outcomes {
		kind := adapters[i].Kind()
		switch {
		case out.err == nil:
			sets = append(sets, out.results)
			if len(out.results) > 0 {
				sources = append(sources, kind)
			}
		case errors.Is(out.err, tor.ErrCircuitUnavailable):
			circuitsDown++
			o.logger.Error("backend skipped, no circuit", "backend", kind, "error", out.err)
		default:
			if out.exhausted {
				exhausted++
			}
			o.logger.Warn("backend contributed no results", "backend", kind, "error", out.err)
		}
	}

	if len(sets) == 0 {
		// Both terminal conditions require every backend to have hit
		// them; a deadline cut-off with zero results is still a valid
		// empty response.
		if circuitsDown == len(adapters) {
			return nil, tor.ErrCircuitUnavailable
		}
		if exhausted+circuitsDown == len(adapters) {
			return nil, ErrAllBackendsFailed
		}
	}

	return &model.Response{
		Query:   q.Text,
		Results: Aggregate(q.MaxResults, o.priorityOrder(q), sets...),
		Sources: sources,
		Elapsed: time.Since(start),
	}, nil
}

// priorityOrder is the tie-break order for aggregation: the query's
// explicit source order when given, registry order otherwise.
func (o *Orchestrator) priorityOrder(q model.Query) []model.BackendKind {
	if len(q.Sources) > 0 {
		return q.Sources
	}
	return o.registry.Kinds()
}

// dispatch runs the attempt/retry loop for one backend.
func (o *Orchestrator) dispatch(ctx context.Context, a backend.Adapter, q model.Query) dispatchOutcome {
	var lastErr error

	for attempt := 0; attempt <= o.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return dispatchOutcome{err: lastOrDeadline(lastErr, ctx)}
		}

		results, circuit, err := o.attempt(ctx, a, q)
		if err == nil {
			return dispatchOutcome{results: results}
		}
		lastErr = err

		switch {
		case errors.Is(err, tor.ErrCircuitUnavailable):
			// Without circuits every further attempt is pointless.
			return dispatchOutcome{err: err}

		case errors.Is(err, backend.ErrParse):
			// A markup change will not fix itself within a retry.
			return dispatchOutcome{err: err, exhausted: true}

		case errors.Is(err, backend.ErrBlocked):
			// The block is tied to the exit identity: rotate and go
			// straight to the next attempt without backoff.
			o.logger.Warn("backend blocked, rotating circuit", "backend", a.Kind(), "attempt", attempt+1)
			o.rotate(ctx, circuit)

		case errors.Is(err, backend.ErrRateLimited):
			// Backing off on the same circuit: rotating would look like
			// a new client probing again, which tends to extend limits.
			o.logger.Warn("backend rate limited, backing off", "backend", a.Kind(), "attempt", attempt+1)
			if !o.backoff(ctx, attempt) {
				return dispatchOutcome{err: lastOrDeadline(lastErr, ctx)}
			}

		case errors.Is(err, tor.ErrTimeout), errors.Is(err, tor.ErrTargetUnreachable):
			// Most likely a bad circuit: count the failure, rotate, and
			// back off before retrying.
			o.logger.Warn("transport failure, rotating circuit",
				"backend", a.Kind(),
				"attempt", attempt+1,
				"error", err,
			)
			o.circuits.ReportFailure(circuit)
			o.rotate(ctx, circuit)
			if !o.backoff(ctx, attempt) {
				return dispatchOutcome{err: lastOrDeadline(lastErr, ctx)}
			}

		default:
			// Proxy down, auth rejected, or an unclassified failure:
			// retrying with the same proxy cannot help.
			return dispatchOutcome{err: err, exhausted: true}
		}
	}

	return dispatchOutcome{err: lastErr, exhausted: true}
}

// attempt performs one complete request/parse cycle for a backend.
func (o *Orchestrator) attempt(ctx context.Context, a backend.Adapter, q model.Query) ([]model.Result, *tor.Circuit, error) {
	circuit, err := o.circuits.Acquire(ctx)
	if err != nil {
		return nil, nil, err
	}

	spec, err := a.BuildRequest(q)
	if err != nil {
		return nil, circuit, fmt.Errorf("%w: %v", backend.ErrParse, err)
	}

	req, err := http.NewRequestWithContext(ctx, spec.Method, spec.URL, nil)
	if err != nil {
		return nil, circuit, fmt.Errorf("%w: %v", backend.ErrParse, err)
	}
	req.Header = spec.Header

	client := o.clients.HTTPClient(circuit, o.requestTimeout)
	resp, err := client.Do(req)
	if err != nil {
		return nil, circuit, classifyTransportErr(err)
	}
	defer resp.Body.Close() //nolint:errcheck // Body already fully read

	body, err := io.ReadAll(io.LimitReader(resp.Body, o.maxBodySize))
	if err != nil {
		return nil, circuit, classifyTransportErr(err)
	}

	results, err := a.Parse(backend.RawResponse{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	})
	if err != nil {
		return nil, circuit, err
	}

	o.circuits.ReportSuccess(circuit)

	for i := range results {
		results[i].Snippet = model.TruncateSnippet(results[i].Snippet, o.snippetLength)
	}
	return results, circuit, nil
}

// rotate forces a circuit rotation, tolerating failure: the next
// Acquire will retry the control channel anyway.
func (o *Orchestrator) rotate(ctx context.Context, circuit *tor.Circuit) {
	if circuit == nil {
		return
	}
	if err := o.circuits.Rotate(ctx, circuit); err != nil {
		o.logger.Warn("circuit rotation failed", "circuit", circuit.ID, "error", err)
	}
}

// backoff waits out the capped exponential delay for the given attempt.
// It returns false when the context expired during the wait.
//
// The wait is a timer select, not a sleep, so the global deadline cuts
// it short promptly.
func (o *Orchestrator) backoff(ctx context.Context, attempt int) bool {
	delay := o.backoffBase << attempt
	if delay > o.backoffCap {
		delay = o.backoffCap
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// classifyTransportErr maps HTTP client failures onto the transport
// error taxonomy. Errors from the SOCKS dial already carry the right
// sentinel; timeouts surfaced by the HTTP client itself do not.
func classifyTransportErr(err error) error {
	switch {
	case errors.Is(err, tor.ErrProxyUnreachable),
		errors.Is(err, tor.ErrAuthRejected),
		errors.Is(err, tor.ErrTargetUnreachable),
		errors.Is(err, tor.ErrTimeout),
		errors.Is(err, tor.ErrNotSOCKS5):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", tor.ErrTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", tor.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", tor.ErrTargetUnreachable, err)
}

// lastOrDeadline prefers the last concrete failure over a bare context
// error when the deadline cut a retry loop short.
func lastOrDeadline(lastErr error, ctx context.Context) error {
	if lastErr != nil {
		return lastErr
	}
	return ctx.Err()
}
