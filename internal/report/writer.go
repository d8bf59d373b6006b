package report

import (
	"io"

	"github.com/BigBang142/Tor-Search-MCP/internal/fetch"
	"github.com/BigBang142/Tor-Search-MCP/internal/model"
)

// Writer defines the interface for formatted output.
//
// Design decision: We use an interface to allow different output
// formats and destinations. This enables writing to files, stdout, or
// network connections with the same API.
type Writer interface {
	// WriteResponse outputs an aggregated search response.
	// Returns the number of bytes written and any error encountered.
	WriteResponse(resp *model.Response) (int, error)

	// WritePage outputs one fetched page.
	WritePage(page *fetch.Page) (int, error)
}

// MultiWriter writes to multiple Writers simultaneously, useful for
// outputting to both terminal and file.
//
// Design decision: We implement this as a separate type rather than
// using io.MultiWriter because our Writer interface is different from
// io.Writer - we write structured output, not raw bytes.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// WriteResponse outputs the response to all configured Writers.
// Returns the total bytes written across all writers and stops on the
// first error encountered.
func (m *MultiWriter) WriteResponse(resp *model.Response) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.WriteResponse(resp)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// WritePage outputs the page to all configured Writers.
func (m *MultiWriter) WritePage(page *fetch.Page) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.WritePage(page)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides common functionality for writers.
type baseWriter struct {
	output io.Writer
}

// newBaseWriter creates a baseWriter with the given output destination.
func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}
