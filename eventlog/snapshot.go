package eventlog

import "time"

// RunSnapshot is a derived, read-only view of an aggregate's progress,
// computed by replaying its event prefix. It is never persisted directly —
// callers recompute it from Load whenever they need a status view (a CLI, a
// dashboard, a health check) without pulling in the full thread.State fold.
type RunSnapshot struct {
	StreamID    string
	AggregateID string

	EventCount int
	StartedAt  time.Time
	UpdatedAt  time.Time

	LastEventType string
	LastSequence  int64
}

// Snapshot folds envs (already ordered by Load) into a RunSnapshot. Returns
// the zero value if envs is empty.
func Snapshot(envs []Envelope) RunSnapshot {
	if len(envs) == 0 {
		return RunSnapshot{}
	}
	first, last := envs[0], envs[len(envs)-1]
	return RunSnapshot{
		StreamID:      first.StreamID,
		AggregateID:   first.AggregateID,
		EventCount:    len(envs),
		StartedAt:     first.CreatedAt,
		UpdatedAt:     last.CreatedAt,
		LastEventType: last.EventType,
		LastSequence:  last.Sequence,
	}
}
