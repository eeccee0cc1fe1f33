// Package main hosts the timelapse CLI entrypoint and command graph.
//
// `timelapse run` is the capture daemon itself. The remaining commands operate
// on the same configuration and on-disk state from a second process: they
// inspect the overflow store and ledger, signal the daemon through its pid
// file, drain the store manually while the daemon is stopped, or run the
// reference collector.
package main
