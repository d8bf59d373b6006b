package tor

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Circuit lifecycle defaults.
const (
	// DefaultCircuitMaxAge is how long a circuit may serve new
	// acquisitions before it is rotated out. Long-lived circuits
	// accumulate linkable traffic, so we cap their age.
	DefaultCircuitMaxAge = 600 * time.Second

	// DefaultFailureThreshold is the number of consecutive transport
	// failures after which a circuit is considered Degraded and rotated.
	DefaultFailureThreshold = 3

	// DefaultControlAttempts bounds how many times Acquire retries the
	// control channel before giving up with ErrCircuitUnavailable.
	DefaultControlAttempts = 3
)

// CircuitState describes where a circuit is in its lifecycle.
type CircuitState int

const (
	// CircuitBuilding means the circuit has been requested from the
	// daemon but is not yet confirmed usable.
	CircuitBuilding CircuitState = iota

	// CircuitReady means the circuit is confirmed and usable for new
	// connections.
	CircuitReady

	// CircuitDegraded means the circuit accumulated too many consecutive
	// transport failures and is being rotated out.
	CircuitDegraded

	// CircuitExpired means the circuit was rotated or aged out. Expired
	// circuits are never handed out again, but in-flight connections may
	// still be using them.
	CircuitExpired
)

// String returns a human-readable state name.
func (s CircuitState) String() string {
	switch s {
	case CircuitBuilding:
		return "building"
	case CircuitReady:
		return "ready"
	case CircuitDegraded:
		return "degraded"
	case CircuitExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Circuit represents one anonymous routing session through Tor.
//
// ID doubles as the SOCKS5 isolation username: Tor places streams with
// different credentials on different circuits, so a fresh ID gives a
// fresh network path without restarting the daemon.
//
// Design decision: state and failureCount are unexported and owned
// exclusively by the CircuitController; components that hold a *Circuit
// during a connection attempt may read the immutable ID and CreatedAt
// but observe lifecycle state only through the controller. This keeps
// all mutable circuit state behind a single mutex.
type Circuit struct {
	// ID is a random identifier, unique per circuit, used as the stream
	// isolation username on SOCKS connections.
	ID string

	// CreatedAt is when the controller created this circuit.
	CreatedAt time.Time

	state        CircuitState
	failureCount int
}

// ControlChannel is the slice of the Tor control protocol the circuit
// controller needs: requesting a fresh circuit and checking daemon
// circuit health. *ControlClient implements it against a real control
// port; tests substitute fakes.
type ControlChannel interface {
	// NewCircuit asks the daemon to switch to clean circuits
	// (the NEWNYM signal).
	NewCircuit(ctx context.Context) error

	// Status reports whether the daemon currently has an established
	// circuit to the Tor network.
	Status(ctx context.Context) (bool, error)
}

// CircuitController owns the circuit pool. It hands out one "current"
// circuit for new acquisitions, tracks per-circuit failures, and rotates
// circuits on demand, on degradation, and on age expiry.
//
// All methods are safe for concurrent use. In-flight requests keep using
// the circuit they acquired even after it expires; expiry only affects
// which circuit future Acquire calls return.
type CircuitController struct {
	mu sync.Mutex

	// control is the channel to the Tor daemon used for rotation.
	control ControlChannel

	// current is the circuit handed to new acquisitions, nil when a
	// fresh one must be built.
	current *Circuit

	// newnymPending is true when the daemon has already received a
	// NEWNYM for the next circuit (set by Rotate), so Acquire must not
	// signal again.
	newnymPending bool

	maxAge           time.Duration
	failureThreshold int
	controlAttempts  int

	logger *slog.Logger

	// now is the clock, replaceable in tests to exercise age expiry.
	now func() time.Time
}

// ControllerOption configures a CircuitController.
type ControllerOption func(*CircuitController)

// WithMaxAge sets the maximum circuit age before rotation.
func WithMaxAge(d time.Duration) ControllerOption {
	return func(cc *CircuitController) {
		if d > 0 {
			cc.maxAge = d
		}
	}
}

// WithFailureThreshold sets how many consecutive failures degrade a circuit.
func WithFailureThreshold(n int) ControllerOption {
	return func(cc *CircuitController) {
		if n > 0 {
			cc.failureThreshold = n
		}
	}
}

// WithControlAttempts bounds control-channel retries during Acquire.
func WithControlAttempts(n int) ControllerOption {
	return func(cc *CircuitController) {
		if n > 0 {
			cc.controlAttempts = n
		}
	}
}

// WithControllerLogger sets the logger used for lifecycle events.
func WithControllerLogger(logger *slog.Logger) ControllerOption {
	return func(cc *CircuitController) {
		cc.logger = logger
	}
}

// WithClock replaces the controller's time source. Tests use this to
// trigger age-based expiry without sleeping.
func WithClock(now func() time.Time) ControllerOption {
	return func(cc *CircuitController) {
		cc.now = now
	}
}

// NewCircuitController creates a controller over the given control channel.
func NewCircuitController(control ControlChannel, opts ...ControllerOption) *CircuitController {
	cc := &CircuitController{
		control:          control,
		maxAge:           DefaultCircuitMaxAge,
		failureThreshold: DefaultFailureThreshold,
		controlAttempts:  DefaultControlAttempts,
		now:              time.Now,
	}

	for _, opt := range opts {
		opt(cc)
	}

	if cc.logger == nil {
		cc.logger = slog.Default()
	}

	return cc
}

// Acquire returns a Ready circuit, building one if the current circuit
// is missing, degraded, or past its maximum age.
//
// It fails with ErrCircuitUnavailable when the daemon control channel is
// unreachable after the bounded number of attempts.
func (cc *CircuitController) Acquire(ctx context.Context) (*Circuit, error) {
	cc.mu.Lock()
	defer cc.mu.Unlock()

	if c := cc.current; c != nil {
		if c.state == CircuitReady && cc.now().Sub(c.CreatedAt) < cc.maxAge {
			return c, nil
		}
		// Aged-out or degraded circuits are expired here rather than in a
		// background timer so there is exactly one place circuits die.
		cc.expireLocked(c)
	}

	return cc.buildLocked(ctx)
}

// buildLocked creates a fresh circuit, signaling the daemon unless a
// rotation already did. Callers must hold cc.mu.
func (cc *CircuitController) buildLocked(ctx context.Context) (*Circuit, error) {
	if !cc.newnymPending {
		if err := cc.signalNewCircuit(ctx); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCircuitUnavailable, err)
		}
	}
	cc.newnymPending = false

	c := &Circuit{
		ID:        newCircuitID(),
		CreatedAt: cc.now(),
		state:     CircuitReady,
	}
	cc.current = c

	cc.logger.Debug("circuit created", "circuit", c.ID)
	return c, nil
}

// signalNewCircuit sends NEWNYM with bounded retries.
// Callers must hold cc.mu; the control channel itself is safe to call
// under the lock because it carries its own deadline.
func (cc *CircuitController) signalNewCircuit(ctx context.Context) error {
	var lastErr error
	for attempt := 0; attempt < cc.controlAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if lastErr = cc.control.NewCircuit(ctx); lastErr == nil {
			return nil
		}
		cc.logger.Warn("control channel attempt failed",
			"attempt", attempt+1,
			"error", lastErr,
		)
	}
	return lastErr
}

// Rotate marks the circuit Expired and requests a fresh one from the
// daemon. It is idempotent: rotating an already-Expired circuit is a
// no-op and sends no duplicate daemon request.
func (cc *CircuitController) Rotate(ctx context.Context, c *Circuit) error {
	cc.mu.Lock()
	if c == nil || c.state == CircuitExpired {
		cc.mu.Unlock()
		return nil
	}
	cc.expireLocked(c)

	err := cc.signalNewCircuit(ctx)
	if err == nil {
		cc.newnymPending = true
	}
	cc.mu.Unlock()

	if err != nil {
		return fmt.Errorf("%w: %v", ErrCircuitUnavailable, err)
	}
	return nil
}

// expireLocked transitions a circuit to Expired and stops handing it out.
// Callers must hold cc.mu.
func (cc *CircuitController) expireLocked(c *Circuit) {
	c.state = CircuitExpired
	if cc.current == c {
		cc.current = nil
	}
	cc.logger.Debug("circuit expired", "circuit", c.ID, "failures", c.failureCount)
}

// ReportFailure records a transport failure attributed to the circuit.
// At the failure threshold the circuit transitions to Degraded and an
// automatic rotation is started in the background; the next Acquire is
// guaranteed not to return it.
func (cc *CircuitController) ReportFailure(c *Circuit) {
	cc.mu.Lock()
	defer cc.mu.Unlock()

	if c == nil || c.state == CircuitExpired {
		return
	}

	c.failureCount++
	if c.failureCount < cc.failureThreshold || c.state == CircuitDegraded {
		return
	}

	c.state = CircuitDegraded
	cc.logger.Warn("circuit degraded, rotating",
		"circuit", c.ID,
		"failures", c.failureCount,
	)

	// The NEWNYM is best-effort and must not block the reporting caller;
	// Acquire independently refuses to hand out a non-Ready circuit.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := cc.Rotate(ctx, c); err != nil {
			cc.logger.Warn("background rotation failed", "circuit", c.ID, "error", err)
		}
	}()
}

// ReportSuccess resets the circuit's consecutive-failure count.
// The degradation threshold counts consecutive failures, so a success in
// between starts the count over.
func (cc *CircuitController) ReportSuccess(c *Circuit) {
	cc.mu.Lock()
	defer cc.mu.Unlock()

	if c != nil && c.state == CircuitReady {
		c.failureCount = 0
	}
}

// State returns the circuit's current lifecycle state.
func (cc *CircuitController) State(c *Circuit) CircuitState {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return c.state
}

// FailureCount returns the circuit's consecutive failure count.
func (cc *CircuitController) FailureCount(c *Circuit) int {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return c.failureCount
}

// Healthy reports whether the daemon has an established circuit to the
// Tor network according to the control channel.
func (cc *CircuitController) Healthy(ctx context.Context) (bool, error) {
	return cc.control.Status(ctx)
}

// newCircuitID generates a random circuit identifier.
// 8 random bytes is plenty: the ID only needs to be unique among
// circuits seen by one Tor daemon, and hex keeps it printable for both
// SOCKS credentials and logs.
func newCircuitID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand only fails when the OS entropy source is broken;
		// fall back to a time-derived ID rather than crashing.
		return fmt.Sprintf("c-%d", time.Now().UnixNano())
	}
	return "c-" + hex.EncodeToString(buf)
}
