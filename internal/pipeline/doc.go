// Package pipeline runs checks of a table UI as a sequence of steps.
//
// One check of a target goes through two stages. The acquisition stage
// renders the page and extracts a snapshot under the check timeout. The
// publication stage always runs afterwards, even when the timeout expired:
// it commits the (possibly partial) snapshot to the findings store, asks
// the summarizer for a summary, writes the export document and delivers
// the result. A timed out check therefore still records what it saw, and a
// partial snapshot never resolves findings for rows it did not capture.
//
// Steps share a *Run. Checker enforces one check per target at a time
// through the store's run lock. BatchProcessor checks several targets
// concurrently using errgroup.
package pipeline
