package memstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentloom/orchestrator/eventlog"
	"github.com/agentloom/orchestrator/eventlog/memstore"
)

func TestAppend_SequenceIsDenseAndGapless(t *testing.T) {
	s := memstore.New(memstore.Options{})
	ctx := context.Background()

	var last int64
	for i := 0; i < 10; i++ {
		env, err := s.Append(ctx, "stream-1", "agg-1", "UserMessage", "v1", map[string]string{"n": "x"}, eventlog.Metadata{})
		require.NoError(t, err)
		assert.Equal(t, last+1, env.Sequence)
		last = env.Sequence
	}
}

func TestLoad_OrdersBySequenceAndFilters(t *testing.T) {
	s := memstore.New(memstore.Options{})
	ctx := context.Background()

	_, err := s.Append(ctx, "stream-1", "agg-1", "A", "v1", 1, eventlog.Metadata{})
	require.NoError(t, err)
	_, err = s.Append(ctx, "stream-1", "agg-2", "B", "v1", 2, eventlog.Metadata{})
	require.NoError(t, err)
	_, err = s.Append(ctx, "stream-1", "agg-1", "C", "v1", 3, eventlog.Metadata{})
	require.NoError(t, err)

	all, err := s.Load(ctx, eventlog.Query{Stream: "stream-1"}, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, int64(1), all[0].Sequence)
	assert.Equal(t, int64(3), all[2].Sequence)

	onlyAgg1, err := s.Load(ctx, eventlog.Query{Stream: "stream-1", AggregateID: "agg-1"}, 0)
	require.NoError(t, err)
	require.Len(t, onlyAgg1, 2)
}

func TestSubscribe_DeliversHistoryThenLive(t *testing.T) {
	s := memstore.New(memstore.Options{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := s.Append(ctx, "stream-1", "agg-1", "A", "v1", 1, eventlog.Metadata{})
	require.NoError(t, err)

	events, _ := s.Subscribe(ctx, eventlog.Query{Stream: "stream-1"}, 0)

	first := <-events
	assert.Equal(t, int64(1), first.Sequence)

	_, err = s.Append(ctx, "stream-1", "agg-1", "B", "v1", 2, eventlog.Metadata{})
	require.NoError(t, err)

	select {
	case second := <-events:
		assert.Equal(t, int64(2), second.Sequence)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for live event")
	}
}

func TestSubscribe_LagDropsAndSignalsInsteadOfBlockingPublisher(t *testing.T) {
	s := memstore.New(memstore.Options{Buffer: 1})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, errs := s.Subscribe(ctx, eventlog.Query{Stream: "stream-1"}, 0)

	// Fill the subscriber's buffer without ever draining it, then publish
	// past capacity: Append must not block on a slow subscriber.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 5; i++ {
			_, err := s.Append(ctx, "stream-1", "agg-1", "A", "v1", i, eventlog.Metadata{})
			assert.NoError(t, err)
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Append blocked on a slow subscriber")
	}

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, eventlog.ErrLag)
	case <-time.After(time.Second):
		t.Fatal("expected lag signal")
	}
	// Events buffered before the overflow may still be delivered; with a
	// buffer of 1 at most three are in flight, after which the channel closes.
	ok := true
	for i := 0; i < 5 && ok; i++ {
		_, ok = <-events
	}
	assert.False(t, ok, "events channel should be closed after lag")
}

func TestAppend_SerializeErrorLeavesStateUnchanged(t *testing.T) {
	s := memstore.New(memstore.Options{})
	ctx := context.Background()

	_, err := s.Append(ctx, "stream-1", "agg-1", "Bad", "v1", make(chan int), eventlog.Metadata{})
	require.Error(t, err)

	all, err := s.Load(ctx, eventlog.Query{Stream: "stream-1"}, 0)
	require.NoError(t, err)
	assert.Empty(t, all)
}
