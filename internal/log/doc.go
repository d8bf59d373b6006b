// Package log provides secure logging with automatic sanitization of
// sensitive information, built on top of the standard slog package.
//
// An anonymizing gateway's logs are a liability: control-port
// passwords, stream-isolation credentials, and session cookies must
// never end up in output that may be shared or stored. The
// SecureHandler masks such values before any record reaches the
// underlying handler, even in verbose mode.
//
// # Usage
//
//	logger := log.NewSecureLogger(os.Stderr, true) // verbose=true
//
//	logger.Info("control port ready",
//	    "control_password", "opensesame", // masked in output
//	    "addr", "127.0.0.1:9051",
//	)
//
// The handler wraps any slog.Handler, so it also works with JSON output
// and with libraries that accept a *slog.Logger (including tornago).
package log
