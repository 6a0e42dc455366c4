// Package api exposes the findings of every target over HTTP.
//
// Reads are served from the last committed state of each target's store and
// never wait for a running check. The only writes are comments and check
// triggers. A check trigger answers 409 Conflict while another check of the
// same target is running.
//
// Routes exist twice: under /targets/{target}/ for any configured target,
// and at the root for the default target.
package api
