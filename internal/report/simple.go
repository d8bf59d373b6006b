package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/BigBang142/Tor-Search-MCP/internal/fetch"
	"github.com/BigBang142/Tor-Search-MCP/internal/model"
)

// SimpleWriter outputs human-readable text.
//
// Design decision: We use plain text with ASCII formatting rather than
// ANSI colors by default because:
// 1. It works in all terminals without compatibility issues
// 2. It's easier to pipe to files or other tools
// 3. Color can be added as an option later if needed
type SimpleWriter struct {
	baseWriter

	// verbose enables additional detail in the output.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// WriteResponse outputs the search response as a numbered result list.
// The numbers match the positions stored in history, so they are what a
// later fetch-by-index refers to.
func (w *SimpleWriter) WriteResponse(resp *model.Response) (int, error) {
	var sb strings.Builder

	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "Search: %s\n", resp.Query)
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	if len(resp.Results) == 0 {
		sb.WriteString("No results.\n")
	}

	for i, r := range resp.Results {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, orUntitled(r.Title))
		fmt.Fprintf(&sb, "   %s\n", r.URL)
		if r.Snippet != "" {
			fmt.Fprintf(&sb, "   %s\n", r.Snippet)
		}
		if w.verbose {
			fmt.Fprintf(&sb, "   [%s, score %.2f]\n", r.Source, r.Score)
		}
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "%d result(s) from %s in %s\n",
		len(resp.Results), sourceList(resp.Sources), resp.Elapsed.Round(10*time.Millisecond))

	return w.output.Write([]byte(sb.String()))
}

// WritePage outputs the fetched page text with a small header.
func (w *SimpleWriter) WritePage(page *fetch.Page) (int, error) {
	var sb strings.Builder

	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "%s\n", orUntitled(page.Title))
	fmt.Fprintf(&sb, "%s\n", page.URL)
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	sb.WriteString(page.Text)
	sb.WriteString("\n")

	if page.Truncated {
		sb.WriteString("\n[content truncated]\n")
	}

	return w.output.Write([]byte(sb.String()))
}

// orUntitled substitutes a placeholder for empty titles.
func orUntitled(title string) string {
	if strings.TrimSpace(title) == "" {
		return "(untitled)"
	}
	return title
}

// sourceList renders the contributing backends for the summary line.
func sourceList(kinds []model.BackendKind) string {
	if len(kinds) == 0 {
		return "no backends"
	}
	parts := make([]string, 0, len(kinds))
	for _, k := range kinds {
		parts = append(parts, string(k))
	}
	return strings.Join(parts, ", ")
}
