package config

import (
	"fmt"
	"net"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"

	"github.com/BigBang142/Tor-Search-MCP/internal/model"
)

// Default configuration values.
// These values are chosen based on typical Tor network characteristics.
const (
	// DefaultTorProxyAddress is the standard Tor SOCKS5 proxy address.
	// Port 9050 is the default for the Tor daemon's SOCKS port.
	// We use 127.0.0.1 instead of localhost to avoid DNS resolution overhead
	// and potential issues with IPv6 resolution on some systems.
	DefaultTorProxyAddress = "127.0.0.1:9050"

	// DefaultTorControlAddress is the standard Tor control port address.
	// The control port is used for circuit rotation (NEWNYM signals).
	DefaultTorControlAddress = "127.0.0.1:9051"

	// DefaultGlobalTimeout bounds one whole search across all backends.
	// Tor round trips are slow, but a user waiting on a search gives up
	// well before a minute.
	DefaultGlobalTimeout = 20 * time.Second

	// DefaultRequestTimeout bounds a single backend request. It must
	// leave room inside the global timeout for at least one retry.
	DefaultRequestTimeout = 15 * time.Second

	// DefaultFetchTimeout bounds one page fetch. Fetches target
	// arbitrary pages, often onion services, which are slower than the
	// search backends.
	DefaultFetchTimeout = 30 * time.Second

	// DefaultMaxResults is the result cap per search.
	DefaultMaxResults = 10

	// MaxResultsLimit is the hard upper bound for the result cap.
	MaxResultsLimit = 50

	// DefaultSnippetLength is the maximum snippet length in runes.
	DefaultSnippetLength = 125

	// DefaultCircuitMaxAge is how long a Tor circuit is reused before
	// forced rotation. Matches Tor's own MaxCircuitDirtiness default.
	DefaultCircuitMaxAge = 600 * time.Second

	// DefaultTorStartupTimeout is the maximum time to wait for the embedded
	// Tor daemon to bootstrap. 3 minutes is typically sufficient for most
	// network conditions, but may need to be increased for slow connections.
	DefaultTorStartupTimeout = 3 * time.Minute

	// DefaultMaxBodySize limits the maximum response body size to read
	// from a search backend. Result pages are small.
	DefaultMaxBodySize = 2 * 1024 * 1024 // 2MB

	// DefaultUserAgent is a common desktop browser string. Tor exit
	// traffic with an unusual User-Agent is both more blockable and
	// more fingerprintable.
	DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:109.0) Gecko/20100101 Firefox/115.0"

	// AppName is the application name used for XDG directory paths.
	AppName = "torsearch"
)

// Config holds all configuration options for the search gateway.
// This struct is designed to be populated from CLI flags and passed through
// the application via dependency injection rather than global state.
//
// Design decision: We use a single flat struct instead of nested structs
// (e.g., TorConfig, SearchConfig) for simplicity. The number of options
// is manageable, and nesting would add complexity without significant benefit.
type Config struct {
	// TorProxyAddress is the address of the Tor SOCKS5 proxy in "host:port"
	// format. This is required for all network operations as the gateway
	// only communicates through Tor.
	TorProxyAddress string

	// TorControlAddress is the address of the Tor control port, used to
	// request new circuits. Empty disables rotation via the control port.
	TorControlAddress string

	// TorControlPassword authenticates against the control port.
	// Empty works with cookie-less configurations.
	TorControlPassword string

	// UseExternalTor disables the embedded Tor daemon and uses an external
	// proxy. When false (default), the gateway automatically starts an
	// embedded Tor daemon.
	//
	// Note: The embedded Tor daemon takes 1-3 minutes to bootstrap and
	// connect to the Tor network on first start.
	UseExternalTor bool

	// TorStartupTimeout is the maximum time to wait for the embedded Tor
	// daemon to start and bootstrap. Only used when UseExternalTor is false.
	TorStartupTimeout time.Duration

	// GlobalTimeout bounds one whole search across all backends.
	GlobalTimeout time.Duration

	// RequestTimeout bounds a single backend request.
	RequestTimeout time.Duration

	// FetchTimeout bounds one page fetch.
	FetchTimeout time.Duration

	// MaxResults caps the number of aggregated results per search.
	MaxResults int

	// Sources restricts the search to the named backends. Empty means
	// all configured backends.
	Sources []string

	// SnippetLength is the maximum snippet length in runes.
	SnippetLength int

	// CircuitMaxAge is how long a circuit is reused before forced rotation.
	CircuitMaxAge time.Duration

	// Verbose enables detailed log output using slog.LevelDebug.
	// When false, only warnings and errors are logged.
	Verbose bool

	// JSONOutput enables JSON output instead of human-readable format.
	// Mutually exclusive with MarkdownOutput.
	JSONOutput bool

	// MarkdownOutput enables Markdown output instead of human-readable
	// format. Mutually exclusive with JSONOutput.
	MarkdownOutput bool

	// OutputFile is the output file path. When set, output is written
	// to this file instead of stdout. Directories are created
	// automatically if they don't exist.
	OutputFile string

	// ConfigFilePath is the path to the configuration file.
	// If empty, the gateway searches for .torsearch in the current
	// directory and then in the user's home directory.
	ConfigFilePath string

	// Backends holds the backend list loaded from the config file.
	// Nil means the built-in backend set is used.
	Backends *File

	// DBDir is the directory path for the SQLite search history.
	// Defaults to the XDG data directory. Empty disables history, which
	// also disables fetch-by-index.
	DBDir string

	// SaveHistory indicates whether searches are persisted.
	// Automatically true when DBDir is configured.
	SaveHistory bool

	// UserAgent is the User-Agent header sent with HTTP requests.
	UserAgent string

	// MaxBodySize is the maximum response body size in bytes to read.
	// Responses larger than this are truncated to prevent memory
	// exhaustion. Set to 0 to use the default.
	MaxBodySize int64
}

// NewConfig creates a new Config with default values.
// All fields are set to safe, sensible defaults that work for most use cases.
// Users can override specific values after creation.
//
// Design decision: We use a constructor function instead of relying on
// zero values because many defaults are non-zero (e.g., timeouts, port
// numbers). This also serves as documentation of what the defaults are.
func NewConfig() *Config {
	return &Config{
		TorProxyAddress:   DefaultTorProxyAddress,
		TorControlAddress: DefaultTorControlAddress,
		TorStartupTimeout: DefaultTorStartupTimeout,
		GlobalTimeout:     DefaultGlobalTimeout,
		RequestTimeout:    DefaultRequestTimeout,
		FetchTimeout:      DefaultFetchTimeout,
		MaxResults:        DefaultMaxResults,
		SnippetLength:     DefaultSnippetLength,
		CircuitMaxAge:     DefaultCircuitMaxAge,
		DBDir:             XDGDataDir(),
		SaveHistory:       true,
		UserAgent:         DefaultUserAgent,
		MaxBodySize:       DefaultMaxBodySize,
	}
}

// XDGDataDir returns the XDG data directory for the gateway.
// On Linux: ~/.local/share/torsearch
// On macOS: ~/Library/Application Support/torsearch
// On Windows: %LOCALAPPDATA%\torsearch
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for the gateway.
// On Linux: ~/.config/torsearch
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// XDGCacheDir returns the XDG cache directory for the gateway.
// On Linux: ~/.cache/torsearch
func XDGCacheDir() string {
	return filepath.Join(xdg.CacheHome, AppName)
}

// SourceKinds converts the configured source names to backend kinds.
// Unknown names fail with ErrUnknownSource so a typo never silently
// searches the wrong backends.
func (c *Config) SourceKinds() ([]model.BackendKind, error) {
	kinds := make([]model.BackendKind, 0, len(c.Sources))
	for _, s := range c.Sources {
		kind := model.BackendKind(s)
		switch kind {
		case model.KindDuckDuckGo, model.KindSearx, model.KindAhmia:
			kinds = append(kinds, kind)
		default:
			// Custom backends from the config file are also accepted.
			if c.Backends != nil && c.Backends.Has(s) {
				kinds = append(kinds, kind)
				continue
			}
			return nil, fmt.Errorf("%w: %q", ErrUnknownSource, s)
		}
	}
	return kinds, nil
}

// Validate checks if the configuration is valid.
// It returns a specific error describing what is invalid.
//
// Design decision: We validate at the config level rather than at each
// point of use to fail fast and provide clear error messages upfront.
// This is called once after CLI parsing, before any network activity.
//
// We chose to return the first error found rather than collecting all
// errors because fixing one error often makes others irrelevant.
func (c *Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.TorProxyAddress); err != nil {
		return ErrInvalidProxyAddress
	}

	if c.GlobalTimeout <= 0 || c.RequestTimeout <= 0 || c.FetchTimeout <= 0 {
		return ErrInvalidTimeout
	}

	if c.MaxResults < 1 || c.MaxResults > MaxResultsLimit {
		return ErrInvalidMaxResults
	}

	if c.JSONOutput && c.MarkdownOutput {
		return ErrConflictingOutputFormats
	}

	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}

	if _, err := c.SourceKinds(); err != nil {
		return err
	}

	return nil
}
