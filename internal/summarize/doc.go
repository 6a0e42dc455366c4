// Package summarize turns open findings into a short prose summary.
//
// The Summarizer interface is deliberately opaque: findings and stats go in,
// a summary and optional per-finding notes come out. The Anthropic
// implementation asks a Claude model for a JSON answer. Whenever a summarizer
// is missing or fails, SummarizeOrFallback returns PlainStats instead, so a
// check always produces a readable result.
package summarize
