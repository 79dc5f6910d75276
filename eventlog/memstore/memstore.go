// Package memstore is an in-process eventlog.Store backed by a per-stream
// mutex and a dense sequence counter. It is the default backend: every
// processor in this repository is tested against it directly, and it is
// suitable for single-node deployments that do not need cross-process
// durability.
//
// Subscriptions are bounded channels with a drop-and-signal-lag backpressure
// policy: a slow subscriber is disconnected (its error channel receives
// eventlog.ErrLag) rather than allowed to block publishers.
package memstore

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/agentloom/orchestrator/eventlog"
)

// DefaultSubscriberBuffer is the channel capacity used when Options.Buffer is
// zero.
const DefaultSubscriberBuffer = 256

// Options configures a Store.
type Options struct {
	// Buffer sets the per-subscriber channel capacity. Defaults to
	// DefaultSubscriberBuffer.
	Buffer int
}

// Store implements eventlog.Store entirely in memory.
type Store struct {
	opts Options

	mu      sync.Mutex // guards streams and subs; writers serialize per-stream below
	streams map[string]*streamState
	subs    map[*subscription]struct{}
}

type streamState struct {
	mu       sync.Mutex // single-writer-per-stream discipline
	nextSeq  int64
	byAggSeq map[string]int64 // last known sequence per aggregate, for debugging/metrics only
	history  []eventlog.Envelope
}

type subscription struct {
	q    eventlog.Query
	out  chan eventlog.Envelope
	errs chan error

	mu     sync.Mutex // guards closed and the sends/closes on out and errs
	closed bool
}

// New constructs an in-memory Store.
func New(opts Options) *Store {
	if opts.Buffer <= 0 {
		opts.Buffer = DefaultSubscriberBuffer
	}
	return &Store{
		opts:    opts,
		streams: make(map[string]*streamState),
		subs:    make(map[*subscription]struct{}),
	}
}

func (s *Store) streamFor(stream string) *streamState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.streams[stream]
	if !ok {
		st = &streamState{byAggSeq: make(map[string]int64)}
		s.streams[stream] = st
	}
	return st
}

// Append implements eventlog.Store.
func (s *Store) Append(ctx context.Context, stream, aggregate, eventType, eventVersion string, data any, meta eventlog.Metadata) (eventlog.Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return eventlog.Envelope{}, &eventlog.SerializeError{Cause: err}
	}

	st := s.streamFor(stream)
	st.mu.Lock()
	st.nextSeq++
	seq := st.nextSeq
	st.byAggSeq[aggregate] = seq

	env := eventlog.Envelope{
		StreamID:     stream,
		AggregateID:  aggregate,
		Sequence:     seq,
		EventType:    eventType,
		EventVersion: eventVersion,
		Data:         raw,
		Metadata:     meta,
		CreatedAt:    time.Now().UTC(),
	}
	st.history = append(st.history, env)
	st.mu.Unlock()

	s.publish(env)
	return env, nil
}

// publish fans the committed envelope out to every subscriber whose query
// matches, applying the bounded-buffer drop-and-signal-lag policy.
func (s *Store) publish(env eventlog.Envelope) {
	s.mu.Lock()
	targets := make([]*subscription, 0, len(s.subs))
	for sub := range s.subs {
		if sub.q.Matches(env) {
			targets = append(targets, sub)
		}
	}
	s.mu.Unlock()

	for _, sub := range targets {
		sub.send(env)
	}
}

// send delivers env without blocking. When the subscriber's buffer is full it
// is disconnected instead: ErrLag is signaled and both channels are closed.
// Later sends to a disconnected subscriber are dropped.
func (sub *subscription) send(env eventlog.Envelope) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.closed {
		return
	}
	select {
	case sub.out <- env:
	default:
		sub.closed = true
		select {
		case sub.errs <- eventlog.ErrLag:
		default:
		}
		close(sub.out)
		close(sub.errs)
	}
}

// Load implements eventlog.Store.
func (s *Store) Load(ctx context.Context, q eventlog.Query, fromSequence int64) ([]eventlog.Envelope, error) {
	// Load filters the per-stream history that Append records; a stream that
	// has never been appended to yields an empty result.
	s.mu.Lock()
	st, ok := s.streams[q.Stream]
	s.mu.Unlock()
	if !ok {
		return nil, nil
	}
	st.mu.Lock()
	hist := st.history
	st.mu.Unlock()

	out := make([]eventlog.Envelope, 0, len(hist))
	for _, env := range hist {
		if env.Sequence < fromSequence {
			continue
		}
		if q.Matches(env) {
			out = append(out, env)
		}
	}
	return out, nil
}

// Subscribe implements eventlog.Store. The subscription is registered before
// the backlog is read, so a concurrent Append can never land in the gap
// between "history snapshot taken" and "live fan-out sees this subscriber" —
// at worst an event arrives in both the backlog and the live feed, which the
// forwarder below dedupes by sequence.
func (s *Store) Subscribe(ctx context.Context, q eventlog.Query, fromSequence int64) (<-chan eventlog.Envelope, <-chan error) {
	live := make(chan eventlog.Envelope, s.opts.Buffer)
	out := make(chan eventlog.Envelope, s.opts.Buffer)
	errs := make(chan error, 1)

	sub := &subscription{q: q, out: live, errs: errs}
	s.mu.Lock()
	s.subs[sub] = struct{}{}
	s.mu.Unlock()

	backlog, _ := s.Load(ctx, q, fromSequence)
	lastSeq := fromSequence - 1
	if n := len(backlog); n > 0 {
		lastSeq = backlog[n-1].Sequence
	}

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.subs, sub)
			s.mu.Unlock()
			close(out)
		}()
		for _, env := range backlog {
			select {
			case out <- env:
			case <-ctx.Done():
				return
			}
		}
		for {
			select {
			case env, ok := <-live:
				if !ok {
					return
				}
				if env.Sequence <= lastSeq {
					continue
				}
				select {
				case out <- env:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, errs
}
