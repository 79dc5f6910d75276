// Package eventlog defines the durable, append-only event store: per-stream
// monotonic sequencing, ordered load queries, and live fan-out subscriptions.
//
// A stream partitions the log; ordering and at-most-one-mid-commit-writer are
// enforced per stream. An aggregate identifies a thread within a stream — a
// stream may host several aggregates (a parent thread and its delegated
// children). Sequence numbers are assigned per stream, shared by every
// aggregate on it; they are dense, start at 1, and gaps are forbidden.
package eventlog

import (
	"encoding/json"
	"time"
)

// Metadata carries correlation/causation identifiers alongside an event.
// CorrelationID groups all events of a logical workflow across aggregates;
// CausationID links an event to the event that triggered it.
type Metadata struct {
	CorrelationID string         `json:"correlation_id,omitempty"`
	CausationID   string         `json:"causation_id,omitempty"`
	Extra         map[string]any `json:"extra,omitempty"`
}

// Envelope is the persisted unit of the event log. StreamID partitions the
// log. AggregateID identifies the thread within the stream. Sequence is a
// per-stream (not per-aggregate) monotonically increasing integer assigned by
// the store at Append time; it is dense with no gaps or duplicates across all
// aggregates hosted on the stream.
type Envelope struct {
	StreamID     string          `json:"stream_id" bson:"stream_id"`
	AggregateID  string          `json:"aggregate_id" bson:"aggregate_id"`
	Sequence     int64           `json:"sequence" bson:"sequence"`
	EventType    string          `json:"event_type" bson:"event_type"`
	EventVersion string          `json:"event_version" bson:"event_version"`
	Data         json.RawMessage `json:"data" bson:"data"`
	Metadata     Metadata        `json:"metadata" bson:"metadata"`
	CreatedAt    time.Time       `json:"created_at" bson:"created_at"`
}

// Query filters a Load or Subscribe call. Stream is required. AggregateID and
// EventType are optional narrowing filters; empty means "any".
type Query struct {
	Stream      string
	AggregateID string
	EventType   string
}

// Matches reports whether env satisfies q. Each non-empty field of q must
// match env exactly; an empty field, Stream included, matches anything.
func (q Query) Matches(env Envelope) bool {
	if q.Stream != "" && env.StreamID != q.Stream {
		return false
	}
	if q.AggregateID != "" && env.AggregateID != q.AggregateID {
		return false
	}
	if q.EventType != "" && env.EventType != q.EventType {
		return false
	}
	return true
}
