// Package classify decides whether a captured cell value counts as empty.
//
// Classification is a pure function of the raw value, the column name and the rules:
// no I/O and no shared mutable state, so a compiled Classifier can be used from any
// number of goroutines.
//
// Rules come in three layers:
//   - Blank: the value is empty after trimming Unicode whitespace (NBSP included)
//   - WhitespaceOnly: additionally treats invisible format characters such as
//     zero-width spaces and byte order marks as whitespace
//   - SentinelValues: placeholder strings like "-" or "N/A" that mean "not filled in"
//
// Sentinel comparison is done on NFKC-normalized, trimmed text so that full-width
// or compatibility variants of a sentinel match. With CaseInsensitive the comparison
// also applies Unicode case folding. Per-column rules can override any of this or
// exclude a column from detection entirely.
package classify
