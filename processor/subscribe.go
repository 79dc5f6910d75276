// Package processor holds the subscribe-and-react loop shared by the four
// processors (threadproc, toolproc, delegation, compaction): each watches a
// stream's event log and reacts to whichever envelopes move its aggregate of
// interest into a state it owes work for. None of them hold state across
// restarts beyond the store's own sequence cursor — every reaction starts by
// reloading and re-folding the aggregate, so a crash and resubscribe from the
// last seen sequence reproduces exactly the same decisions.
package processor

import (
	"context"
	"errors"

	"github.com/agentloom/orchestrator/eventlog"
	"github.com/agentloom/orchestrator/telemetry"
)

// Handler reacts to one delivered envelope. A returned error is logged and
// does not stop the subscription; a handler that wants to stop the whole
// processor should cancel ctx itself.
type Handler func(ctx context.Context, env eventlog.Envelope) error

// Run subscribes to q against store and invokes handle for every envelope
// delivered, resubscribing from the last seen sequence whenever the
// subscription lags (eventlog.ErrLag) rather than treating lag as fatal. It
// returns when ctx is canceled or the subscription fails for any other
// reason.
func Run(ctx context.Context, store eventlog.Store, q eventlog.Query, component string, log telemetry.Logger, handle Handler) error {
	if log == nil {
		log = telemetry.NewNoopLogger()
	}
	var fromSeq int64
	for {
		events, errs := store.Subscribe(ctx, q, fromSeq)
		for env := range events {
			fromSeq = env.Sequence + 1
			if err := handle(ctx, env); err != nil {
				log.Error(ctx, component+": handler failed", "stream", env.StreamID, "aggregate", env.AggregateID, "event_type", env.EventType, "error", err)
			}
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		err := <-errs
		if err == nil {
			return nil
		}
		if !errors.Is(err, eventlog.ErrLag) {
			return err
		}
		log.Warn(ctx, component+": subscriber lagged, resubscribing", "stream", q.Stream, "from_sequence", fromSeq)
	}
}
