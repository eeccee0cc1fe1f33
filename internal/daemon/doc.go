// Package daemon coordinates the long-running capture process.
//
// It wires the producer, relay queue, upload worker pool, overflow store, and
// recovery sweeper into a single lifecycle with flock-based locking so only
// one process owns the camera and the overflow directory. Delivery state
// transitions are fanned out to the log, the ledger, and notifications here.
//
// Keep orchestration logic here: capture and delivery behavior live in their
// own packages while the daemon focuses on startup, shutdown, and status.
package daemon
