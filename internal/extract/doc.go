// Package extract turns a rendered DOM into a TableSnapshot.
//
// The monitored UI does not guarantee stable markup: the same table may be an
// ExtJS grid of nested divs and tables, a plain <table>, or an ARIA grid. The
// extractor therefore tries an ordered list of selector strategies, most
// specific first, and accepts the first one whose rows have a consistent column
// count. Header names come from the header region when there is one, then from
// cell attributes, then from positional labels (col_1, col_2, ...); any fallback
// marks the snapshot's columns as guessed.
//
// # Row identity
//
// Findings are tracked per (row identity, column). The identity hashes the
// values of the configured stable columns only, so rows keep their identity when
// the table is re-sorted or gains unrelated columns. Without usable stable
// columns every value is hashed (full_row mode), which still works but turns an
// edited cell into a resolved finding on the "old" row.
package extract
