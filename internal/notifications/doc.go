// Package notifications pushes delivery state changes to ntfy.
//
// Only transitions matter to an operator: entering degraded mode (captures are
// being buffered on disk) and recovering from it. When no topic is configured
// the service is a no-op.
package notifications
