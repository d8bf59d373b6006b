// Package main provides the entry point for the torsearch CLI.
//
// torsearch is an anonymized web-search gateway: every query and page
// fetch is routed through Tor, results from multiple search backends
// are merged, and a later fetch can refer to a previous search's
// result numbers.
//
// Usage:
//
//	torsearch search <query>
//	torsearch fetch <result-number>...
//	torsearch history
//
// See --help for all available options.
package main

// main is the entry point for torsearch.
func main() {
	Execute()
}
