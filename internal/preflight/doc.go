// Package preflight provides readiness checks for the paths, camera device,
// and collector the daemon depends on.
//
// `timelapse check` prints every result; the daemon itself never refuses to
// start on a failed check, because an unreachable collector or a missing
// camera is a condition it is built to ride out.
package preflight
