// Package report formats search responses and fetched pages for
// output.
//
// Three formats are supported: plain text for terminals, JSON for tool
// integration, and Markdown for documentation or agent consumption.
// All writers share one interface so the caller picks a format without
// changing its output code.
package report
