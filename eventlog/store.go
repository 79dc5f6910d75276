package eventlog

import (
	"context"
	"errors"
	"fmt"
)

// ErrConflict is returned by Append when another writer is mid-commit for the
// same stream. Callers should retry; the retried Append will observe the
// committed sequence and proceed at max+1.
var ErrConflict = errors.New("eventlog: conflicting writer for stream")

// ErrNotFound reports that a stream or aggregate has no record. The memstore
// and mongostore backends do not return it: Load of an unknown stream or
// aggregate yields an empty result with a nil error.
var ErrNotFound = errors.New("eventlog: not found")

// ErrLag is delivered on a subscription's error channel when the subscriber
// could not keep up and events were dropped. The subscriber must reissue
// Subscribe from its last observed sequence, or call Load to reconcile.
var ErrLag = errors.New("eventlog: subscriber lagged, events were dropped")

// SerializeError wraps a payload encoding/decoding failure. Append returns it
// when the event payload cannot be marshaled. Subscribe does not skip
// undecodable envelopes: memstore never decodes stored payloads, and
// mongostore's Subscribe sends any Load failure, a decode failure included,
// on its error channel and ends the subscription.
type SerializeError struct {
	Cause error
}

func (e *SerializeError) Error() string { return fmt.Sprintf("eventlog: serialize: %v", e.Cause) }
func (e *SerializeError) Unwrap() error { return e.Cause }

// Store is the durable append-only event log. Implementations must enforce a
// single-writer-per-stream discipline (e.g. a stream-scoped mutex, or a
// transactional unique-index insert) so that Append assigns dense, gapless
// sequence numbers with no duplicates.
type Store interface {
	// Append assigns the next sequence for stream, writes the envelope
	// atomically, and publishes it to live subscribers of matching queries.
	// Returns ErrConflict if another writer for the same stream is
	// mid-commit; a *SerializeError if the payload cannot be encoded. A
	// failed Append leaves store state unchanged.
	Append(ctx context.Context, stream, aggregate, eventType, eventVersion string, data any, meta Metadata) (Envelope, error)

	// Load returns envelopes matching q, ordered by sequence ascending,
	// starting at fromSequence (inclusive). fromSequence of 0 means from the
	// beginning.
	Load(ctx context.Context, q Query, fromSequence int64) ([]Envelope, error)

	// Subscribe delivers every envelope matching q with sequence >=
	// fromSequence, first from history then live, until ctx is canceled or
	// the subscription lags (see ErrLag). The events channel is closed when
	// delivery ends; the caller should drain errs afterward for at most one
	// error.
	Subscribe(ctx context.Context, q Query, fromSequence int64) (events <-chan Envelope, errs <-chan error)
}
