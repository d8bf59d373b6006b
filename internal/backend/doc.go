// Package backend implements the per-source search adapters. An adapter
// translates a generic query into one backend's request format and its
// response back into normalized results.
//
// The backend set is a closed set of variants (one type per source
// family) rather than an open plugin system: adding a source means
// adding a variant here. Instances of a variant are configuration
// driven, so e.g. any number of SearxNG instances can be registered at
// different base URLs without new code.
//
// Adapters are pure request builders and parsers. They never perform
// network I/O; dispatch, retries, and circuit handling belong to the
// orchestrator.
package backend
