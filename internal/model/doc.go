// Package model defines the core data types shared across the search
// gateway: queries, backend identifiers, normalized results, and the
// aggregated response returned to callers.
//
// Types in this package are plain values with no behavior beyond
// validation and formatting. Network and storage concerns live in the
// packages that consume these types.
package model
