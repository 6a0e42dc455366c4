// Package findings tracks empty cells across check runs.
//
// # Diff
//
// Diff is a pure function from the previous finding set and a new snapshot to
// the next finding set:
//  1. every empty cell of the snapshot either refreshes the open finding with
//     the same (row identity, column) as persisting, or opens a new finding
//  2. every open finding whose cell was not reported empty is resolved, unless
//     the snapshot is partial and did not capture the finding's row
//  3. resolved findings are carried over unchanged until retention removes them
//
// # Store
//
// Store owns the committed state of one monitored target. Readers load an
// immutable *State through an atomic pointer and never block. Writers (check
// commits, comments, retention) take a short swap lock, build a new State from
// the latest one and publish it. A separate run lock allows only one check at a
// time; a second BeginCheck fails immediately with ErrCheckInProgress. The
// run lock outlives Commit and is dropped by Release once the run's summary
// and export are written.
package findings
