package tor

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultConnectTimeout bounds the SOCKS connect phase: TCP dial to the
// proxy plus the SOCKS5 handshake up to the CONNECT reply. It is
// deliberately separate from the transfer-phase timeout, which belongs
// to the HTTP client; circuit establishment and slow servers are
// different failure modes.
const DefaultConnectTimeout = 30 * time.Second

// SOCKS5 protocol constants.
const (
	socks5Version      = 0x05
	socks5AuthNone     = 0x00
	socks5AuthUserPass = 0x02
	socks5AuthNoAccept = 0xFF
	socks5CmdConnect   = 0x01
	socks5AddrIPv4     = 0x01
	socks5AddrDomain   = 0x03
	socks5AddrIPv6     = 0x04

	// userPassVersion is the subnegotiation version from RFC 1929.
	userPassVersion = 0x01
)

// isolationPassword is the fixed password half of the stream isolation
// credentials. Tor does not verify SOCKS credentials; it only groups
// streams by them, so the username (circuit ID) carries all the entropy.
const isolationPassword = "torsearch"

// Transport tunnels TCP connections through a local Tor SOCKS5 proxy,
// binding each connection to a Circuit via the proxy's username/password
// isolation convention.
//
// Design decision: Transport never retries. A failed connect surfaces
// immediately with a classified error; retry policy, backoff, and
// circuit rotation are orchestrator concerns. Mixing retry into the
// transport would hide failures the circuit controller needs to count.
type Transport struct {
	// proxyAddress is the Tor SOCKS5 proxy address in "host:port" format.
	proxyAddress string

	// connectTimeout bounds the connect phase of each Connect call.
	connectTimeout time.Duration
}

// TransportOption configures a Transport.
type TransportOption func(*Transport)

// WithConnectTimeout sets the SOCKS connect-phase timeout.
func WithConnectTimeout(d time.Duration) TransportOption {
	return func(t *Transport) {
		if d > 0 {
			t.connectTimeout = d
		}
	}
}

// NewTransport creates a transport for the given proxy address.
//
// The address is validated for format but the proxy is not contacted;
// call CheckProxy to verify it is actually a SOCKS5 proxy. Separating
// construction from network activity lets callers build the transport
// before the daemon has finished bootstrapping.
func NewTransport(proxyAddress string, opts ...TransportOption) (*Transport, error) {
	if !isValidProxyAddress(proxyAddress) {
		return nil, ErrInvalidProxyAddress
	}

	t := &Transport{
		proxyAddress:   proxyAddress,
		connectTimeout: DefaultConnectTimeout,
	}

	for _, opt := range opts {
		opt(t)
	}

	return t, nil
}

// ProxyAddress returns the configured proxy address.
func (t *Transport) ProxyAddress() string {
	return t.proxyAddress
}

// Connect opens a TCP stream to host:port through the Tor proxy, bound
// to the given circuit. The returned connection has no deadline set;
// the caller owns transfer-phase timeouts and must close it.
//
// Failures map onto the transport error taxonomy: ErrProxyUnreachable,
// ErrAuthRejected, ErrTargetUnreachable, ErrTimeout, ErrNotSOCKS5.
func (t *Transport) Connect(ctx context.Context, host string, port int, circuit *Circuit) (net.Conn, error) {
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("invalid target port %d", port)
	}
	if len(host) == 0 || len(host) > 255 {
		return nil, fmt.Errorf("invalid target host %q", host)
	}

	ctx, cancel := context.WithTimeout(ctx, t.connectTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", t.proxyAddress)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrProxyUnreachable, err)
	}

	// The handshake shares the connect-phase deadline. It is cleared
	// before the stream is handed to the caller.
	deadline, _ := ctx.Deadline()
	if err := conn.SetDeadline(deadline); err != nil {
		_ = conn.Close() //nolint:errcheck // Connection is already unusable
		return nil, fmt.Errorf("%w: %v", ErrProxyUnreachable, err)
	}

	if err := t.handshake(conn, host, port, circuit); err != nil {
		_ = conn.Close() //nolint:errcheck // Handshake failed, stream is dead
		return nil, err
	}

	if err := conn.SetDeadline(time.Time{}); err != nil {
		_ = conn.Close() //nolint:errcheck // Connection is already unusable
		return nil, fmt.Errorf("%w: %v", ErrProxyUnreachable, err)
	}

	return conn, nil
}

// handshake performs SOCKS5 method negotiation, optional username/password
// subnegotiation carrying the circuit isolation credentials, and the
// CONNECT request.
func (t *Transport) handshake(conn net.Conn, host string, port int, circuit *Circuit) error {
	// Method negotiation. We offer username/password when a circuit is
	// bound so Tor can isolate the stream; no-auth is offered as well
	// because Tor replies with whichever it prefers.
	greeting := []byte{socks5Version, 0x01, socks5AuthNone}
	if circuit != nil {
		greeting = []byte{socks5Version, 0x02, socks5AuthNone, socks5AuthUserPass}
	}
	if _, err := conn.Write(greeting); err != nil {
		return wrapHandshakeErr(err)
	}

	var methodResp [2]byte
	if _, err := io.ReadFull(conn, methodResp[:]); err != nil {
		return wrapHandshakeErr(err)
	}
	if methodResp[0] != socks5Version {
		return ErrNotSOCKS5
	}

	switch methodResp[1] {
	case socks5AuthNone:
		// Proxy skipped isolation auth. Streams still work, they just
		// share the daemon's default isolation group.
	case socks5AuthUserPass:
		if circuit == nil {
			return ErrAuthRejected
		}
		if err := writeUserPass(conn, circuit.ID, isolationPassword); err != nil {
			return err
		}
	case socks5AuthNoAccept:
		return ErrAuthRejected
	default:
		return ErrNotSOCKS5
	}

	// CONNECT request with a domain address. We always send the hostname
	// rather than resolving it locally: local DNS resolution would leak
	// the target to the network outside Tor, and .onion names cannot be
	// resolved at all.
	req := make([]byte, 0, 7+len(host))
	req = append(req, socks5Version, socks5CmdConnect, 0x00, socks5AddrDomain, byte(len(host)))
	req = append(req, host...)
	req = append(req, byte(port>>8), byte(port&0xFF))
	if _, err := conn.Write(req); err != nil {
		return wrapHandshakeErr(err)
	}

	var reply [4]byte
	if _, err := io.ReadFull(conn, reply[:]); err != nil {
		return wrapHandshakeErr(err)
	}
	if reply[0] != socks5Version {
		return ErrNotSOCKS5
	}
	if reply[1] != 0x00 {
		return replyError(reply[1])
	}

	// Drain the bind address so the stream starts at the payload.
	var skip int
	switch reply[3] {
	case socks5AddrIPv4:
		skip = net.IPv4len + 2
	case socks5AddrIPv6:
		skip = net.IPv6len + 2
	case socks5AddrDomain:
		var n [1]byte
		if _, err := io.ReadFull(conn, n[:]); err != nil {
			return wrapHandshakeErr(err)
		}
		skip = int(n[0]) + 2
	default:
		return ErrNotSOCKS5
	}
	if _, err := io.CopyN(io.Discard, conn, int64(skip)); err != nil {
		return wrapHandshakeErr(err)
	}

	return nil
}

// writeUserPass performs the RFC 1929 username/password subnegotiation.
func writeUserPass(conn net.Conn, user, pass string) error {
	msg := make([]byte, 0, 3+len(user)+len(pass))
	msg = append(msg, userPassVersion, byte(len(user)))
	msg = append(msg, user...)
	msg = append(msg, byte(len(pass)))
	msg = append(msg, pass...)

	if _, err := conn.Write(msg); err != nil {
		return wrapHandshakeErr(err)
	}

	var resp [2]byte
	if _, err := io.ReadFull(conn, resp[:]); err != nil {
		return wrapHandshakeErr(err)
	}
	if resp[1] != 0x00 {
		return ErrAuthRejected
	}
	return nil
}

// replyError maps a SOCKS5 CONNECT reply code onto the error taxonomy.
//
// Tor reports unreachable and offline onion services with codes 0x01
// through 0x06; all of them mean the same thing to the caller: the
// target could not be reached through this circuit.
func replyError(code byte) error {
	switch code {
	case 0x02:
		// Connection not allowed by ruleset, e.g. the daemon's
		// SafeSocks/exit policy refused the target.
		return fmt.Errorf("%w: refused by proxy policy (reply 0x02)", ErrTargetUnreachable)
	case 0x06:
		return fmt.Errorf("%w: circuit TTL expired (reply 0x06)", ErrTimeout)
	default:
		return fmt.Errorf("%w: SOCKS reply 0x%02x", ErrTargetUnreachable, code)
	}
}

// wrapHandshakeErr classifies I/O errors during the handshake.
func wrapHandshakeErr(err error) error {
	if errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrProxyUnreachable, err)
}

// HTTPClient returns an HTTP client whose connections all tunnel through
// the proxy on the given circuit. The timeout covers the full request
// including body transfer; the connect phase is additionally bounded by
// the transport's connect timeout.
//
// Design decisions carried over from scanning Tor services:
//   - Compression is disabled to avoid compression-ratio side channels
//     on anonymized traffic.
//   - Connection pools are kept small because each connection pins a
//     Tor circuit, which is a limited resource.
//   - Redirects are capped at 10 to break redirect loops.
func (t *Transport) HTTPClient(circuit *Circuit, timeout time.Duration) *http.Client {
	transport := &http.Transport{
		DialContext: func(ctx context.Context, _ string, addr string) (net.Conn, error) {
			host, portStr, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, fmt.Errorf("invalid address %q: %w", addr, err)
			}
			port, err := strconv.Atoi(portStr)
			if err != nil {
				return nil, fmt.Errorf("invalid port %q: %w", portStr, err)
			}
			return t.Connect(ctx, host, port, circuit)
		},
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		MaxIdleConns:        4,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,
		DisableCompression:  true,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}
}

// isValidProxyAddress checks if the address is in "host:port" format
// with a port in the valid range. A simple check is enough here; the
// format has no scheme or path to account for.
func isValidProxyAddress(address string) bool {
	host, portStr, err := net.SplitHostPort(address)
	if err != nil || host == "" {
		return false
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return false
	}
	return port >= 1 && port <= 65535
}

// ProxyStatus represents the result of checking the SOCKS proxy.
type ProxyStatus int

const (
	// ProxyStatusOK indicates the proxy speaks SOCKS5 and accepts
	// connection requests.
	ProxyStatusOK ProxyStatus = iota

	// ProxyStatusWrongType indicates something answered that is not a
	// SOCKS5 proxy.
	ProxyStatusWrongType

	// ProxyStatusCannotConnect indicates no TCP connection could be
	// established to the proxy address.
	ProxyStatusCannotConnect

	// ProxyStatusTimeout indicates the check timed out.
	ProxyStatusTimeout
)

// String returns a human-readable description of the proxy status.
func (s ProxyStatus) String() string {
	switch s {
	case ProxyStatusOK:
		return "OK"
	case ProxyStatusWrongType:
		return "wrong type (not SOCKS5)"
	case ProxyStatusCannotConnect:
		return "cannot connect"
	case ProxyStatusTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Err returns the error corresponding to this status, or nil for OK.
func (s ProxyStatus) Err() error {
	switch s {
	case ProxyStatusOK:
		return nil
	case ProxyStatusWrongType:
		return ErrNotSOCKS5
	case ProxyStatusCannotConnect:
		return ErrProxyUnreachable
	case ProxyStatusTimeout:
		return ErrTimeout
	default:
		return errors.New("unknown proxy status")
	}
}

// checkProxyTimeout is deliberately short: the proxy is local, so the
// check either answers immediately or the daemon is not there.
const checkProxyTimeout = 2 * time.Second

// checkTargetHost is a synthetic onion address used only to verify the
// proxy processes CONNECT requests. The connection itself is expected
// to fail; what matters is that the proxy answers in SOCKS5.
const checkTargetHost = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa.onion"

// CheckProxy verifies that something at the proxy address speaks SOCKS5
// and processes connection requests. It is a preflight check, not a
// full connectivity test: a passing check does not guarantee the daemon
// has built circuits yet (use CircuitController.Healthy for that).
func (t *Transport) CheckProxy(ctx context.Context) ProxyStatus {
	ctx, cancel := context.WithTimeout(ctx, checkProxyTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", t.proxyAddress)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return ProxyStatusTimeout
		}
		return ProxyStatusCannotConnect
	}
	defer conn.Close() //nolint:errcheck // Read-only probe connection

	if err := conn.SetDeadline(time.Now().Add(checkProxyTimeout)); err != nil {
		return ProxyStatusCannotConnect
	}

	err = t.handshake(conn, checkTargetHost, 80, nil)
	switch {
	case err == nil:
		// A proxy that claims to reach a nonexistent onion is suspicious
		// but still a SOCKS5 proxy; the orchestrator will find out.
		return ProxyStatusOK
	case errors.Is(err, ErrTargetUnreachable):
		// Expected: the synthetic address cannot exist. The proxy
		// processed the request, which is all the check needs.
		return ProxyStatusOK
	case errors.Is(err, ErrTimeout):
		return ProxyStatusTimeout
	case errors.Is(err, ErrNotSOCKS5), errors.Is(err, ErrAuthRejected):
		return ProxyStatusWrongType
	default:
		return ProxyStatusCannotConnect
	}
}

// SplitHostPort splits a backend host specification into host and port,
// defaulting the port by scheme when absent. It accepts bare hosts
// ("example.onion"), host:port pairs, and is used when adapters describe
// their endpoints as URLs.
func SplitHostPort(host string, defaultPort int) (string, int) {
	h, portStr, err := net.SplitHostPort(host)
	if err != nil {
		return strings.TrimSpace(host), defaultPort
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return h, defaultPort
	}
	return h, port
}
