package model

import (
	"net/url"
	"strings"
	"time"
)

// Result is a single search hit normalized from a backend-specific
// response format. Once produced by an adapter it is never mutated;
// the aggregator copies rather than edits.
type Result struct {
	// Title is the result title as reported by the backend.
	Title string `json:"title"`

	// URL is the target page URL. For onion index backends this may be
	// a .onion address only reachable through Tor.
	URL string `json:"url"`

	// Snippet is a short excerpt of the page content.
	Snippet string `json:"snippet"`

	// Source identifies which backend produced this result.
	Source BackendKind `json:"source"`

	// Score is the relevance score in [0, 1]. Backends that report
	// native scores pass them through; HTML-scraped backends derive a
	// score from result rank.
	Score float64 `json:"score"`
}

// Response is the final aggregated answer to one Query: merged,
// deduplicated, and ordered results from all backends that responded
// before the deadline.
type Response struct {
	// Query is the original search text this response answers.
	Query string `json:"query"`

	// Results are ordered by descending score. The slice is already
	// deduplicated by normalized URL and capped at Query.MaxResults.
	Results []Result `json:"results"`

	// Sources lists the backends that contributed at least one result.
	Sources []BackendKind `json:"sources"`

	// Elapsed is the wall-clock duration of the whole query.
	Elapsed time.Duration `json:"elapsed"`
}

// NormalizeURL returns the canonical form of a result URL used for
// deduplication: scheme and host are lowercased and a single trailing
// slash on the path is removed. Query strings and fragments are kept
// as-is because they usually distinguish genuinely different pages.
//
// Unparseable URLs are returned unchanged (lowercased) so that exact
// duplicates still collapse.
func NormalizeURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return strings.ToLower(strings.TrimSpace(raw))
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	// "/path/" and "/path" are the same page on virtually every server.
	// A bare "/" collapses to the empty path for the same reason.
	u.Path = strings.TrimSuffix(u.Path, "/")

	return u.String()
}

// TruncateSnippet shortens a snippet to at most max runes, appending an
// ellipsis when truncation happened. Backends return snippets of wildly
// different lengths; the gateway presents them uniformly.
func TruncateSnippet(snippet string, max int) string {
	if max <= 0 {
		return snippet
	}
	runes := []rune(snippet)
	if len(runes) <= max {
		return snippet
	}
	return string(runes[:max]) + "..."
}
