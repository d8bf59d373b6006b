package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/BigBang142/Tor-Search-MCP/internal/backend"
	"github.com/BigBang142/Tor-Search-MCP/internal/config"
	"github.com/BigBang142/Tor-Search-MCP/internal/history"
	"github.com/BigBang142/Tor-Search-MCP/internal/log"
	"github.com/BigBang142/Tor-Search-MCP/internal/report"
	"github.com/BigBang142/Tor-Search-MCP/internal/tor"
)

// addConnectionFlags registers the Tor connection flags shared by the
// network-facing subcommands.
func addConnectionFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("external-tor", "e", "",
		"Use external Tor proxy at specified address (e.g., 127.0.0.1:9050)")
	cmd.Flags().String("control-addr", config.DefaultTorControlAddress,
		"Tor control port address, used for circuit rotation with --external-tor")
	cmd.Flags().String("control-password", "",
		"Tor control port password")
	cmd.Flags().DurationP("tor-timeout", "T", config.DefaultTorStartupTimeout,
		"Timeout for embedded Tor startup")
}

// addOutputFlags registers the output format flags.
func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write output to specified file path (creates directories if needed)")
}

// buildConfig creates a Config from the shared cobra flags.
func buildConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.NewConfig()

	var err error

	// The connection flags exist only on network-facing subcommands.
	if cmd.Flags().Lookup("external-tor") != nil {
		externalTor, err := cmd.Flags().GetString("external-tor")
		if err != nil {
			return nil, err
		}
		if externalTor != "" {
			cfg.UseExternalTor = true
			cfg.TorProxyAddress = externalTor
		}

		cfg.TorControlAddress, err = cmd.Flags().GetString("control-addr")
		if err != nil {
			return nil, err
		}

		cfg.TorControlPassword, err = cmd.Flags().GetString("control-password")
		if err != nil {
			return nil, err
		}

		cfg.TorStartupTimeout, err = cmd.Flags().GetDuration("tor-timeout")
		if err != nil {
			return nil, err
		}
	}

	cfg.JSONOutput, err = cmd.Flags().GetBool("json")
	if err != nil {
		return nil, err
	}

	cfg.MarkdownOutput, err = cmd.Flags().GetBool("markdown")
	if err != nil {
		return nil, err
	}

	cfg.OutputFile, err = cmd.Flags().GetString("output")
	if err != nil {
		return nil, err
	}

	cfg.Verbose = getVerboseFlag(cmd)

	if cmd.Flags().Lookup("config") != nil {
		cfg.ConfigFilePath, err = cmd.Flags().GetString("config")
		if err != nil {
			return nil, err
		}
		if err := loadBackendFile(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// loadBackendFile loads the backend list from the config file.
// An explicitly specified file must exist; otherwise a missing file
// just means the built-in backends are used.
func loadBackendFile(cfg *config.Config) error {
	explicit := cfg.ConfigFilePath != ""
	path := config.FindConfigFile(cfg.ConfigFilePath)

	if path == "" {
		if explicit {
			return fmt.Errorf("configuration file not found: %s", cfg.ConfigFilePath)
		}
		return nil
	}

	cf, err := config.LoadConfigFile(path)
	if err != nil {
		return fmt.Errorf("failed to load config file %s: %w", path, err)
	}
	cfg.Backends = cf
	return nil
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// torStack bundles the running Tor pieces a command needs.
type torStack struct {
	transport *tor.Transport
	circuits  *tor.CircuitController
	daemon    *tor.Daemon
}

// close stops the embedded daemon if one was started.
func (s *torStack) close(logger *slog.Logger) {
	if s.daemon == nil {
		return
	}
	logger.Info("stopping embedded Tor daemon...")
	if err := s.daemon.Stop(); err != nil {
		logger.Error("failed to stop embedded Tor", "error", err)
	}
}

// setupTor connects to Tor: either an external proxy or an embedded
// daemon started on demand. The returned stack's transport and circuit
// controller are ready for use.
func setupTor(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*torStack, error) {
	if cfg.UseExternalTor {
		transport, err := tor.NewTransport(cfg.TorProxyAddress)
		if err != nil {
			return nil, fmt.Errorf("failed to create Tor transport: %w", err)
		}

		if status := transport.CheckProxy(ctx); status != tor.ProxyStatusOK {
			return nil, fmt.Errorf("tor proxy check failed: %s (make sure Tor is running at %s)",
				status, cfg.TorProxyAddress)
		}
		logger.Info("Tor proxy connection verified", "address", cfg.TorProxyAddress)

		control, err := tor.NewControlClient(cfg.TorControlAddress,
			tor.WithControlPassword(cfg.TorControlPassword))
		if err != nil {
			return nil, fmt.Errorf("failed to create Tor control client: %w", err)
		}

		circuits := tor.NewCircuitController(control,
			tor.WithMaxAge(cfg.CircuitMaxAge),
			tor.WithControllerLogger(logger),
		)
		return &torStack{transport: transport, circuits: circuits}, nil
	}

	// Start embedded Tor daemon (default)
	fmt.Fprintln(os.Stderr, "Starting embedded Tor daemon...")
	fmt.Fprintln(os.Stderr, "This may take 1-3 minutes while Tor bootstraps and connects to the network.")

	daemon := tor.NewDaemon(tor.WithStartupTimeout(cfg.TorStartupTimeout))
	if err := daemon.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start embedded Tor: %w", err)
	}

	logger.Info("embedded Tor daemon started",
		"socksAddr", daemon.SocksAddr(),
		"controlAddr", daemon.ControlAddr(),
	)

	transport, err := daemon.NewTransport()
	if err != nil {
		_ = daemon.Stop() //nolint:errcheck // Best effort cleanup
		return nil, fmt.Errorf("failed to create Tor transport: %w", err)
	}

	if status := transport.CheckProxy(ctx); status != tor.ProxyStatusOK {
		_ = daemon.Stop() //nolint:errcheck // Best effort cleanup
		return nil, fmt.Errorf("embedded Tor proxy check failed: %s", status)
	}

	control, err := daemon.NewControlClient()
	if err != nil {
		_ = daemon.Stop() //nolint:errcheck // Best effort cleanup
		return nil, fmt.Errorf("failed to create Tor control client: %w", err)
	}

	circuits := tor.NewCircuitController(control,
		tor.WithMaxAge(cfg.CircuitMaxAge),
		tor.WithControllerLogger(logger),
	)
	return &torStack{transport: transport, circuits: circuits, daemon: daemon}, nil
}

// buildRegistry assembles the backend registry: the built-in backends,
// adjusted and extended by the config file.
func buildRegistry(cfg *config.Config) (*backend.Registry, error) {
	if cfg.Backends == nil || len(cfg.Backends.Backends) == 0 {
		// Built-in set. No public SearxNG instance is baked in; one has
		// to be configured explicitly.
		return backend.NewRegistry(
			backend.NewDuckDuckGo(),
			backend.NewAhmia(),
		), nil
	}

	built := make(map[string]backend.Adapter)
	for name, entry := range cfg.Backends.Backends {
		if entry.Disabled {
			continue
		}
		a, err := buildAdapter(name, entry)
		if err != nil {
			return nil, err
		}
		built[name] = a
	}

	// Built-in backends not mentioned in the file keep their defaults.
	if _, mentioned := cfg.Backends.Backends["duckduckgo"]; !mentioned {
		built["duckduckgo"] = backend.NewDuckDuckGo()
	}
	if _, mentioned := cfg.Backends.Backends["ahmia"]; !mentioned {
		built["ahmia"] = backend.NewAhmia()
	}

	registry := backend.NewRegistry()
	added := make(map[string]bool)

	// Configured order first, then the rest alphabetically so the
	// priority is deterministic.
	for _, name := range cfg.Backends.Order {
		if a, ok := built[name]; ok && !added[name] {
			registry.Add(a)
			added[name] = true
		}
	}
	rest := make([]string, 0, len(built))
	for name := range built {
		if !added[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	for _, name := range rest {
		registry.Add(built[name])
	}

	return registry, nil
}

// buildAdapter constructs one adapter from a config entry.
func buildAdapter(name string, entry config.BackendEntry) (backend.Adapter, error) {
	if entry.URL != "" {
		if err := validateBackendURL(name, entry.URL); err != nil {
			return nil, err
		}
	}

	switch entry.Kind {
	case "duckduckgo":
		var opts []backend.DuckDuckGoOption
		if entry.URL != "" {
			opts = append(opts, backend.WithDuckDuckGoBaseURL(entry.URL))
		}
		if entry.Language != "" {
			opts = append(opts, backend.WithDuckDuckGoRegion(entry.Language))
		}
		return backend.NewDuckDuckGo(opts...), nil

	case "searx":
		if entry.URL == "" {
			return nil, fmt.Errorf("backend %q: searx requires a url", name)
		}
		var opts []backend.SearxOption
		if entry.Language != "" {
			opts = append(opts, backend.WithSearxLanguage(entry.Language))
		}
		return backend.NewSearx(entry.URL, opts...)

	case "ahmia":
		var opts []backend.AhmiaOption
		if entry.URL != "" {
			opts = append(opts, backend.WithAhmiaBaseURL(entry.URL))
		}
		return backend.NewAhmia(opts...), nil

	default:
		return nil, fmt.Errorf("backend %q: unknown kind %q", name, entry.Kind)
	}
}

// validateBackendURL rejects malformed backend URLs before a circuit is
// ever spent on them. Onion hosts get full v3 checksum validation, so a
// typo in the config file fails at startup instead of as an opaque
// resolution error mid-query.
func validateBackendURL(name, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return fmt.Errorf("backend %q: invalid url %q", name, rawURL)
	}
	if tor.IsOnionHost(u.Host) {
		if err := tor.ValidateOnionHost(u.Host); err != nil {
			return fmt.Errorf("backend %q: %w", name, err)
		}
	}
	return nil
}

// newWriter creates the report writer for the configured format and
// destination. The returned closer is non-nil when output goes to a
// file.
func newWriter(cfg *config.Config) (report.Writer, io.Closer, error) {
	var output io.Writer = os.Stdout
	var closer io.Closer

	if cfg.OutputFile != "" {
		dir := filepath.Dir(cfg.OutputFile)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return nil, nil, fmt.Errorf("failed to create output directory: %w", err)
			}
		}

		f, err := os.OpenFile(cfg.OutputFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create output file: %w", err)
		}
		output = f
		closer = f
	}

	switch {
	case cfg.JSONOutput:
		return report.NewJSONWriter(output, report.WithPrettyPrint()), closer, nil
	case cfg.MarkdownOutput:
		return report.NewMarkdownWriter(output), closer, nil
	default:
		return report.NewSimpleWriter(output, report.WithVerbose(cfg.Verbose)), closer, nil
	}
}

// openHistory opens the search history store, or returns nil when
// history is disabled.
func openHistory(cfg *config.Config) (*history.Store, error) {
	if !cfg.SaveHistory || cfg.DBDir == "" {
		return nil, nil
	}
	return history.Open(cfg.DBDir, history.DefaultOptions())
}

// setupLogger creates the secure logger used by all commands.
func setupLogger(verbose bool) *slog.Logger {
	return log.NewSecureLogger(os.Stderr, verbose)
}
