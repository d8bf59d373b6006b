package tor

import (
	"context"
	"fmt"
	"net"
	"net/textproto"
	"strings"
	"time"
)

// DefaultControlTimeout bounds one complete control-port exchange
// (dial, authenticate, command, reply). The control port is local, so
// anything slower than this means the daemon is wedged.
const DefaultControlTimeout = 5 * time.Second

// ControlClient speaks the line-oriented Tor control protocol to a
// local control port. Only the two commands the gateway needs are
// implemented: SIGNAL NEWNYM and GETINFO status/circuit-established.
//
// Design decision: Each command uses its own short-lived connection
// instead of a persistent session. Commands are rare (one per circuit
// rotation), a fresh dial doubles as a daemon liveness check, and it
// avoids a background reader goroutine for asynchronous control events
// we would otherwise have to drain.
type ControlClient struct {
	// addr is the control port address in "host:port" format.
	addr string

	// password authenticates the session. Empty works for daemons
	// configured with no control auth or with cookie auth disabled.
	password string

	// timeout bounds one complete command exchange.
	timeout time.Duration
}

// ControlOption configures a ControlClient.
type ControlOption func(*ControlClient)

// WithControlPassword sets the control port password.
func WithControlPassword(password string) ControlOption {
	return func(c *ControlClient) {
		c.password = password
	}
}

// WithControlTimeout sets the per-command timeout.
func WithControlTimeout(timeout time.Duration) ControlOption {
	return func(c *ControlClient) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// NewControlClient creates a control client for the given address.
// The address is validated for format only; the daemon is not contacted
// until the first command.
func NewControlClient(addr string, opts ...ControlOption) (*ControlClient, error) {
	if !isValidProxyAddress(addr) {
		return nil, ErrInvalidProxyAddress
	}

	c := &ControlClient{
		addr:    addr,
		timeout: DefaultControlTimeout,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// NewCircuit sends SIGNAL NEWNYM, asking the daemon to use clean
// circuits for subsequent streams.
func (c *ControlClient) NewCircuit(ctx context.Context) error {
	_, err := c.roundTrip(ctx, "SIGNAL NEWNYM")
	return err
}

// Status reports whether the daemon has an established circuit to the
// Tor network (GETINFO status/circuit-established).
func (c *ControlClient) Status(ctx context.Context) (bool, error) {
	lines, err := c.roundTrip(ctx, "GETINFO status/circuit-established")
	if err != nil {
		return false, err
	}

	for _, line := range lines {
		if strings.HasSuffix(line, "status/circuit-established=1") {
			return true, nil
		}
	}
	return false, nil
}

// roundTrip dials the control port, authenticates, runs one command,
// and returns the reply lines.
func (c *ControlClient) roundTrip(ctx context.Context, command string) ([]string, error) {
	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return nil, fmt.Errorf("control port dial failed: %w", err)
	}
	defer conn.Close() //nolint:errcheck // Read side already consumed the reply

	if err := conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("control port deadline: %w", err)
	}

	tp := textproto.NewConn(conn)

	// AUTHENTICATE must be the first command of every session.
	// The password is sent as a quoted string per the control spec.
	if err := tp.PrintfLine("AUTHENTICATE %q", c.password); err != nil {
		return nil, fmt.Errorf("control authenticate write: %w", err)
	}
	if _, err := c.readReply(tp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrControlAuthFailed, err)
	}

	if err := tp.PrintfLine("%s", command); err != nil {
		return nil, fmt.Errorf("control command write: %w", err)
	}
	lines, err := c.readReply(tp)
	if err != nil {
		return nil, fmt.Errorf("control command %q: %w", command, err)
	}

	// QUIT is a courtesy; the deferred close handles failure.
	_ = tp.PrintfLine("QUIT") //nolint:errcheck // Best effort session teardown

	return lines, nil
}

// readReply reads one control protocol reply: zero or more continuation
// lines ("250-..." or "250+...") followed by a final line ("250 ...").
// Any status other than 2xx is an error.
func (c *ControlClient) readReply(tp *textproto.Conn) ([]string, error) {
	var lines []string
	for {
		line, err := tp.ReadLine()
		if err != nil {
			return nil, err
		}
		if len(line) < 3 {
			return nil, fmt.Errorf("malformed control reply %q", line)
		}

		lines = append(lines, line)

		if line[0] != '2' {
			return nil, fmt.Errorf("control error reply %q", line)
		}

		// The fourth character distinguishes the final line (space) from
		// continuation ('-') and data ('+') lines.
		if len(line) == 3 || line[3] == ' ' {
			return lines, nil
		}
	}
}
