package tor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nao1215/tornago"
)

// DefaultStartupTimeout is the maximum time to wait for an embedded Tor
// daemon to bootstrap. Bootstrapping downloads directory information and
// builds initial circuits, which typically takes one to three minutes.
const DefaultStartupTimeout = 3 * time.Minute

// Daemon manages an embedded Tor process via tornago, so the gateway can
// run without a pre-installed Tor daemon. After a successful Start, its
// SOCKS and control addresses feed directly into NewTransport and
// NewControlClient.
//
// Design decision: Embedded Tor is the default but not the only mode;
// users with a long-running system daemon point the gateway at it
// instead and skip the bootstrap wait entirely.
type Daemon struct {
	// process is the running Tor daemon, nil until Start succeeds.
	process *tornago.TorProcess

	// socksAddr and controlAddr are captured once the daemon is up.
	socksAddr   string
	controlAddr string

	// startupTimeout bounds the bootstrap wait.
	startupTimeout time.Duration
}

// DaemonOption configures a Daemon.
type DaemonOption func(*Daemon)

// WithStartupTimeout sets the bootstrap timeout.
func WithStartupTimeout(d time.Duration) DaemonOption {
	return func(dm *Daemon) {
		if d > 0 {
			dm.startupTimeout = d
		}
	}
}

// NewDaemon creates an embedded daemon manager. The Tor process is not
// launched until Start is called.
func NewDaemon(opts ...DaemonOption) *Daemon {
	dm := &Daemon{
		startupTimeout: DefaultStartupTimeout,
	}

	for _, opt := range opts {
		opt(dm)
	}

	return dm
}

// Start launches the Tor process and blocks until it has bootstrapped
// or the startup timeout elapses. Ports are assigned by the OS so
// multiple gateway instances can coexist.
func (dm *Daemon) Start(ctx context.Context) error {
	launchCfg, err := tornago.NewTorLaunchConfig(
		tornago.WithTorSocksAddr(":0"),
		tornago.WithTorControlAddr(":0"),
		tornago.WithTorStartupTimeout(dm.startupTimeout),
	)
	if err != nil {
		return fmt.Errorf("failed to create Tor launch config: %w", err)
	}

	// StartTorDaemon blocks until bootstrap completes or times out.
	process, err := tornago.StartTorDaemon(launchCfg)
	if err != nil {
		return fmt.Errorf("failed to start embedded Tor daemon: %w", err)
	}

	// The launch API has no context parameter, so honor a cancellation
	// that arrived during the bootstrap wait by tearing down.
	select {
	case <-ctx.Done():
		_ = process.Stop() //nolint:errcheck // Best effort cleanup
		return ctx.Err()
	default:
	}

	dm.process = process
	dm.socksAddr = process.SocksAddr()
	dm.controlAddr = process.ControlAddr()

	return nil
}

// Stop shuts the daemon down. Safe to call multiple times and on a
// daemon that never started.
func (dm *Daemon) Stop() error {
	if dm.process == nil {
		return nil
	}

	err := dm.process.Stop()
	dm.process = nil
	return err
}

// Running reports whether the daemon process is up.
func (dm *Daemon) Running() bool {
	return dm.process != nil
}

// SocksAddr returns the daemon's SOCKS5 address ("host:port"), or an
// empty string before Start.
func (dm *Daemon) SocksAddr() string {
	return dm.socksAddr
}

// ControlAddr returns the daemon's control port address ("host:port"),
// or an empty string before Start.
func (dm *Daemon) ControlAddr() string {
	return dm.controlAddr
}

// NewTransport creates a Transport bound to the daemon's SOCKS port.
func (dm *Daemon) NewTransport(opts ...TransportOption) (*Transport, error) {
	if !dm.Running() {
		return nil, errors.New("embedded Tor daemon is not running")
	}
	return NewTransport(dm.socksAddr, opts...)
}

// NewControlClient creates a control client bound to the daemon's
// control port.
func (dm *Daemon) NewControlClient(opts ...ControlOption) (*ControlClient, error) {
	if !dm.Running() {
		return nil, errors.New("embedded Tor daemon is not running")
	}
	return NewControlClient(dm.controlAddr, opts...)
}
