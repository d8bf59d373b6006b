// Package tor provides the anonymized transport layer of the search
// gateway: a SOCKS5 transport that tunnels connections through a local
// Tor daemon, a circuit controller that manages the lifecycle of
// anonymous routing sessions, and a minimal control-port client used to
// request fresh circuits.
//
// Design decision: We implement the SOCKS5 CONNECT handshake ourselves
// instead of using golang.org/x/net/proxy's dialer for data connections
// because circuit binding requires per-connection username/password
// fields (Tor's stream isolation convention) and precise mapping of
// SOCKS reply codes onto the gateway's error taxonomy. x/net/proxy is
// still used where a plain dialer suffices. The tornago library covers
// the orthogonal concern of launching an embedded Tor daemon.
//
// The package is designed to be used with dependency injection - create a
// Transport and a CircuitController and pass them to components that need
// Tor connectivity rather than using global state.
package tor
