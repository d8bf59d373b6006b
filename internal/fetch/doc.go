// Package fetch retrieves result pages through Tor and reduces them to
// readable text.
//
// Search results only carry titles and short snippets; this package is
// the follow-up step that pulls the full page for the results the
// caller actually wants to read. Pages are fetched through a
// circuit-bound HTTP client, size-capped, and stripped to their text
// content so the output stays consumable without a browser.
package fetch
