// Package config provides configuration structures and utilities for
// the search gateway. It defines the Tor connection options, query
// timeouts, backend selection, and output preferences.
package config
