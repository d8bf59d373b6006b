// Package search contains the query execution engine: the orchestrator
// that fans one query out to the selected backends over the Tor
// transport with retry, backoff, and circuit-rotation policy, and the
// aggregator that merges the normalized result sets into one ordered,
// deduplicated response.
//
// Partial success is the normal case on an anonymity network: backends
// that exhaust their retries or miss the global deadline simply
// contribute nothing. The whole query fails only when no circuit can be
// obtained at all or every selected backend exhausts its retries.
package search
