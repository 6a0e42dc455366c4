// Package main provides the entry point for the gridwatch CLI.
//
// gridwatch watches a web table UI for cells that should hold a value but
// are blank. Every check renders the page, extracts the grid, diffs the empty
// cells against the previous check and reports new, persisting and resolved
// findings.
//
// Usage:
//
//	gridwatch check
//	gridwatch watch --interval 30m --listen 127.0.0.1:8080
//	gridwatch findings --column Phone
//
// See --help for all available options.
package main

// main is the entry point for gridwatch.
func main() {
	Execute()
}
