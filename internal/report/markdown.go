package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/nao1215/markdown"

	"github.com/BigBang142/Tor-Search-MCP/internal/fetch"
	"github.com/BigBang142/Tor-Search-MCP/internal/model"
)

// MarkdownWriter outputs Markdown, which is what agent-style consumers
// and documentation want.
//
// Design decision: We use the nao1215/markdown library for fluent
// markdown generation which provides:
// 1. Type-safe markdown generation
// 2. Support for tables, lists, and code blocks
// 3. GitHub-flavored markdown alerts
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// WriteResponse outputs the search response as a Markdown document with
// a result table and per-result snippets. Result numbers match the
// positions stored in history.
func (w *MarkdownWriter) WriteResponse(resp *model.Response) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("Search Results")
	md.PlainText("")
	md.PlainTextf("Query: `%s`", resp.Query)
	md.PlainText("")

	if len(resp.Results) == 0 {
		md.PlainText("No results.")
		return len(md.String()), md.Build()
	}

	rows := make([][]string, 0, len(resp.Results))
	for i, r := range resp.Results {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			orUntitled(r.Title),
			string(r.Source),
			fmt.Sprintf("%.2f", r.Score),
		})
	}
	md.Table(markdown.TableSet{
		Header: []string{"#", "Title", "Source", "Score"},
		Rows:   rows,
	})
	md.PlainText("")

	for i, r := range resp.Results {
		md.H2(fmt.Sprintf("%d. %s", i+1, orUntitled(r.Title)))
		md.PlainTextf("<%s>", r.URL)
		if r.Snippet != "" {
			md.PlainText("")
			md.PlainText(r.Snippet)
		}
		md.PlainText("")
	}

	md.PlainTextf("_%d result(s) from %s._", len(resp.Results), sourceList(resp.Sources))

	return len(md.String()), md.Build()
}

// WritePage outputs the fetched page text under its title and URL.
func (w *MarkdownWriter) WritePage(page *fetch.Page) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1(orUntitled(page.Title))
	md.PlainTextf("<%s>", page.URL)
	md.PlainText("")
	md.PlainText(page.Text)

	if page.Truncated {
		md.PlainText("")
		md.PlainText("_Content truncated._")
	}

	return len(md.String()), md.Build()
}
