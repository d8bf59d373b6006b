package config

import "errors"

// Configuration validation errors.
// These errors are returned by Config.Validate() and provide specific
// information about what is wrong with the configuration.
//
// Design decision: We use package-level sentinel errors rather than
// creating new error instances in Validate(). This allows callers to use
// errors.Is() for programmatic error handling while still providing
// human-readable messages.
var (
	// ErrInvalidTimeout is returned when a timeout is not positive.
	// A timeout of zero or negative would cause immediate failures.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidMaxResults is returned when the result cap is outside
	// the accepted range.
	ErrInvalidMaxResults = errors.New("invalid max results: must be between 1 and 50")

	// ErrConflictingOutputFormats is returned when both --json and
	// --markdown are specified. Only one output format can be used at
	// a time.
	ErrConflictingOutputFormats = errors.New("conflicting output formats: --json and --markdown cannot be used together")

	// ErrInvalidMaxBodySize is returned when the max body size is negative.
	// Use 0 to fall back to the default limit.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")

	// ErrUnknownSource is returned when a source filter names a backend
	// that does not exist.
	ErrUnknownSource = errors.New("unknown search source")

	// ErrInvalidProxyAddress is returned when the Tor proxy address is
	// not in "host:port" format.
	ErrInvalidProxyAddress = errors.New("invalid tor proxy address: must be host:port")
)
