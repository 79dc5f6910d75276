package sandbox

import (
	"context"
	"fmt"
	"sync"
)

// Pool owns one Sandbox per aggregate, created lazily on first tool call and
// released when the owning thread terminates (spec.md §3, §4.4, §5). A
// per-aggregate lock serializes sandbox mutation within that aggregate while
// leaving other aggregates free to run in parallel (spec.md §4.4
// "Concurrency discipline").
type Pool struct {
	factory Factory

	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	mu      sync.Mutex
	sandbox Sandbox
}

// NewPool builds a Pool that creates sandboxes via factory.
func NewPool(factory Factory) *Pool {
	return &Pool{factory: factory, entries: make(map[string]*entry)}
}

// Acquire returns the sandbox for aggregateID, creating it on first use, and
// a release function that must be called after the caller is done mutating
// it. Acquire blocks until any concurrent holder for the same aggregate
// releases, enforcing the serial-within-aggregate discipline.
func (p *Pool) Acquire(ctx context.Context, aggregateID string) (Sandbox, func(), error) {
	if aggregateID == "" {
		return nil, nil, fmt.Errorf("sandbox: aggregate id is required")
	}

	p.mu.Lock()
	e, ok := p.entries[aggregateID]
	if !ok {
		e = &entry{}
		p.entries[aggregateID] = e
	}
	p.mu.Unlock()

	e.mu.Lock()
	if e.sandbox == nil {
		sb, err := p.factory(ctx)
		if err != nil {
			e.mu.Unlock()
			return nil, nil, fmt.Errorf("sandbox: create for %s: %w", aggregateID, err)
		}
		e.sandbox = sb
	}
	sb := e.sandbox
	return sb, e.mu.Unlock, nil
}

// Release closes and evicts the sandbox owned by aggregateID, if any. Called
// when the owning thread reaches a terminal state (spec.md §5).
func (p *Pool) Release(ctx context.Context, aggregateID string) error {
	p.mu.Lock()
	e, ok := p.entries[aggregateID]
	if ok {
		delete(p.entries, aggregateID)
	}
	p.mu.Unlock()
	if !ok {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sandbox == nil {
		return nil
	}
	return e.sandbox.Close(ctx)
}

// Fork acquires the parent aggregate's sandbox, forks it, and registers the
// fork under childAggregateID so the child's own Tool Processor calls see a
// ready, independently-mutable sandbox (spec.md §4.5 step 2).
func (p *Pool) Fork(ctx context.Context, parentAggregateID, childAggregateID string) (Sandbox, error) {
	parent, release, err := p.Acquire(ctx, parentAggregateID)
	if err != nil {
		return nil, err
	}
	defer release()

	child, err := parent.Fork(ctx)
	if err != nil {
		return nil, fmt.Errorf("sandbox: fork %s -> %s: %w", parentAggregateID, childAggregateID, err)
	}

	p.mu.Lock()
	p.entries[childAggregateID] = &entry{sandbox: child}
	p.mu.Unlock()

	return child, nil
}
