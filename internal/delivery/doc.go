// Package delivery moves captures from the relay queue to the collector.
//
// A fixed pool of workers dequeues items and consults State. In normal mode
// each item gets the live RetryPolicy; when it is exhausted the item goes to
// the overflow store and State enters degraded mode. In degraded mode each
// item gets only a small probe budget (possibly zero). A successful probe
// recovers State and triggers the recovery sweeper; a failed one persists the
// item. No item is dropped here except when the overflow write itself fails,
// which is logged as artifact_lost.
package delivery
