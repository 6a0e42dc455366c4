// Package retention enforces how long raw data is kept.
//
// Cell values of the monitored table can hold personal data, so resolved
// findings and the raw artifacts of a run (JSON exports, screenshots) are
// removed once they are older than a short maximum age. Findings that an
// operator commented on are pinned and kept.
//
// A Manager purges one target. The Scheduler runs all managers plus a file
// sweep of the artifact directory on a fixed interval until its context is
// cancelled. Purging never takes a target's check lock; it only holds the
// store's short swap lock while removing findings, so a running check is
// never blocked and a concurrent commit is never overwritten.
package retention
