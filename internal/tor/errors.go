package tor

import "errors"

// Tor connectivity errors.
// These errors are returned when there are problems reaching the Tor
// SOCKS proxy, the control port, or a target through Tor.
//
// Design decision: We define specific error types rather than wrapping all
// errors generically. The orchestrator routes on these values: a Timeout is
// retried on a fresh circuit, an AuthRejected fails fast because retrying
// with the same isolation credentials cannot succeed.
var (
	// ErrProxyUnreachable is returned when we cannot establish a TCP
	// connection to the SOCKS proxy address. This usually means Tor is
	// not running or the address is incorrect.
	ErrProxyUnreachable = errors.New("cannot connect to Tor SOCKS proxy")

	// ErrAuthRejected is returned when the proxy refuses the offered
	// authentication methods or rejects the isolation credentials.
	ErrAuthRejected = errors.New("Tor SOCKS proxy rejected authentication")

	// ErrTargetUnreachable is returned when the proxy accepted the
	// request but could not reach the target host. For onion targets this
	// commonly means the hidden service is offline.
	ErrTargetUnreachable = errors.New("target unreachable through Tor")

	// ErrTimeout is returned when the SOCKS connect phase exceeds its
	// deadline. Tor circuits can stall; callers typically retry on a
	// fresh circuit.
	ErrTimeout = errors.New("timeout connecting through Tor")

	// ErrNotSOCKS5 is returned when the configured proxy address responds
	// but does not speak the SOCKS5 protocol. This typically happens when
	// pointing the gateway at an HTTP proxy or an unrelated service.
	ErrNotSOCKS5 = errors.New("proxy is not a SOCKS5 proxy")

	// ErrInvalidProxyAddress is returned when the proxy address format is
	// invalid. Expected format is "host:port".
	ErrInvalidProxyAddress = errors.New("invalid proxy address format: expected host:port")
)

// Circuit lifecycle errors.
var (
	// ErrCircuitUnavailable is returned when no circuit can be obtained
	// because the daemon control channel is unreachable after the bounded
	// number of attempts. This is terminal for the query that hit it.
	ErrCircuitUnavailable = errors.New("no Tor circuit available: control channel unreachable")

	// ErrControlAuthFailed is returned when the control port rejects our
	// AUTHENTICATE command.
	ErrControlAuthFailed = errors.New("Tor control port authentication failed")
)
