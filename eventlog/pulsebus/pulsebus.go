package pulsebus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/agentloom/orchestrator/eventlog"
)

const defaultSinkBuffer = 64

// Bus publishes committed envelopes to a Pulse stream keyed by eventlog
// stream ID, and lets processors in other containers subscribe to them.
// Pair with a Store.Append caller: Publish should be invoked once per
// successful Append, after the durable write commits.
type Bus struct {
	client Client
}

// New constructs a Bus over the given Pulse client.
func New(client Client) *Bus {
	return &Bus{client: client}
}

// Publish carries env onto the Pulse stream named after env.StreamID.
func (b *Bus) Publish(ctx context.Context, env eventlog.Envelope) error {
	str, err := b.client.Stream(env.StreamID)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return &eventlog.SerializeError{Cause: err}
	}
	_, err = str.Add(ctx, env.EventType, payload)
	return err
}

// Subscribe opens a consumer group named sinkName on the stream q.Stream and
// decodes incoming envelopes, applying q as a post-filter since Pulse streams
// do not support server-side filtering. Unlike eventlog.Store.Subscribe, a
// lagging consumer here is governed by Pulse's own consumer-group pending
// list rather than eventlog.ErrLag: messages are redelivered, never silently
// dropped, until acked.
func (b *Bus) Subscribe(ctx context.Context, sinkName string, q eventlog.Query) (<-chan eventlog.Envelope, <-chan error, context.CancelFunc, error) {
	if q.Stream == "" {
		return nil, nil, nil, errors.New("pulsebus: query stream is required")
	}
	str, err := b.client.Stream(q.Stream)
	if err != nil {
		return nil, nil, nil, err
	}
	sink, err := str.NewSink(ctx, sinkName)
	if err != nil {
		return nil, nil, nil, err
	}

	out := make(chan eventlog.Envelope, defaultSinkBuffer)
	errs := make(chan error, 1)
	runCtx, cancel := context.WithCancel(ctx)

	go consume(runCtx, sink, q, out, errs)

	cancelFunc := func() {
		cancel()
		sink.Close(context.Background())
	}
	return out, errs, cancelFunc, nil
}

func consume(ctx context.Context, sink Sink, q eventlog.Query, out chan<- eventlog.Envelope, errs chan<- error) {
	defer close(out)
	defer close(errs)
	ch := sink.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			var env eventlog.Envelope
			if err := json.Unmarshal(evt.Payload, &env); err != nil {
				errs <- fmt.Errorf("pulsebus: decode envelope: %w", err)
				return
			}
			if q.Matches(env) {
				select {
				case out <- env:
				case <-ctx.Done():
					return
				}
			}
			if err := sink.Ack(ctx, evt); err != nil {
				errs <- fmt.Errorf("pulsebus: ack: %w", err)
				return
			}
		}
	}
}
