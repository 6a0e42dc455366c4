// Package report provides report generation and output functionality.
//
// This package contains writers for different output formats:
//   - SimpleWriter: Human-readable text output for terminal display
//   - MarkdownWriter: GitHub Flavored Markdown with a per-column pie chart
//   - JSONWriter: Structured JSON output for tool integration
//
// It also builds chat messages from a check (grouped by column, chunked to
// the message limit), encodes and decodes the findings export document, and
// delivers a check to the chat and webhook collaborators.
//
// Writers implement the Writer interface, allowing them to be used
// interchangeably and composed for multi-format output.
package report
