package ledger

import (
	"context"
	"time"
)

// Kind classifies a delivery event.
type Kind string

const (
	KindCaptured  Kind = "captured"
	KindDropped   Kind = "dropped"
	KindDelivered Kind = "delivered"
	KindPersisted Kind = "persisted"
	KindLost      Kind = "lost"
	KindEvicted   Kind = "evicted"
	KindDegraded  Kind = "degraded"
	KindRecovered Kind = "recovered"
)

// Kinds lists every event kind in display order.
var Kinds = []Kind{
	KindCaptured, KindDropped, KindDelivered, KindPersisted,
	KindLost, KindEvicted, KindDegraded, KindRecovered,
}

// Event is one ledger row.
type Event struct {
	ID        int64
	Kind      Kind
	Artifact  string
	Bytes     int64
	Detail    string
	SessionID string
	CreatedAt time.Time
}

// Sink receives delivery events. Implementations must not block the caller
// for long and must swallow their own failures.
type Sink interface {
	Record(ctx context.Context, ev Event)
}

// Discard is a Sink that drops every event.
var Discard Sink = discard{}

type discard struct{}

func (discard) Record(context.Context, Event) {}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev Event)

func (f SinkFunc) Record(ctx context.Context, ev Event) { f(ctx, ev) }
