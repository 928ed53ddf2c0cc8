// Package counters models the published, observable state the agent
// exposes the way a running cluster node would: its current backup state,
// the live-log replay position, and the next query deadline (spec.md §6,
// §9). Grounded on original_source/aeron-cluster's
// agrona.concurrent.status.Counter / CountersReader /
// UnavailableCounterHandler contract: a counter is a named int64 cell that
// can become unavailable out from under a reader, and readers register a
// callback for that. Go has no raw shared-memory counters file, so this is
// reimplemented with atomic.Int64 cells plus an explicit registry rather than
// attempting to fabricate the Aeron IPC layer. This package has no
// unavailable hook; that callback lives on archive.PositionCounter.
package counters

import (
	"sync"
	"sync/atomic"
)

// ID identifies a counter within a Registry.
type ID int32

// Counter is a single named, atomically updated int64 cell.
type Counter struct {
	id    ID
	label string
	value atomic.Int64
	freed atomic.Bool
}

// ID returns the counter's identity within its registry.
func (c *Counter) ID() ID { return c.id }

// Label returns the counter's human-readable name.
func (c *Counter) Label() string { return c.label }

// Get returns the current value, or (0, false) if the counter has been
// released.
func (c *Counter) Get() (int64, bool) {
	if c.freed.Load() {
		return 0, false
	}
	return c.value.Load(), true
}

// Set stores a new value. Setting a released counter is a no-op.
func (c *Counter) Set(v int64) {
	if c.freed.Load() {
		return
	}
	c.value.Store(v)
}

// IsClosed reports whether this counter has been released.
func (c *Counter) IsClosed() bool {
	return c.freed.Load()
}

// Registry owns a small set of named counters, the agent's own published
// state (spec.md §6) rather than counters read from the archive. The
// archive-side UnavailableCounterHandler contract (spec.md §1, §4.11) is
// instead modeled on archive.PositionCounter.OnUnavailable, registered
// per-session against the specific recording-position counter being
// watched; see Agent.liveLogReplay.
type Registry struct {
	mu       sync.Mutex
	counters map[ID]*Counter
	nextID   ID
}

// NewRegistry returns an empty counter registry.
func NewRegistry() *Registry {
	return &Registry{counters: make(map[ID]*Counter)}
}

// Allocate creates and registers a new counter with the given label.
func (r *Registry) Allocate(label string) *Counter {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextID
	r.nextID++

	c := &Counter{id: id, label: label}
	r.counters[id] = c
	return c
}

// Release removes a counter from the registry and marks it closed.
func (r *Registry) Release(id ID) {
	r.mu.Lock()
	c, ok := r.counters[id]
	if ok {
		delete(r.counters, id)
	}
	r.mu.Unlock()

	if !ok {
		return
	}
	c.freed.Store(true)
}

// Lookup returns the counter with the given id, if still registered.
func (r *Registry) Lookup(id ID) (*Counter, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.counters[id]
	return c, ok
}

// Published groups the three counters the agent maintains for external
// observers (spec.md §6): current FSM state, live-log replay position, and
// the epoch-ms deadline of the next scheduled backup query.
type Published struct {
	State             *Counter
	LiveLogPosition   *Counter
	NextQueryDeadline *Counter
}

// NewPublished allocates the standard trio of counters on a registry.
func NewPublished(r *Registry) *Published {
	return &Published{
		State:             r.Allocate("cluster.backup.state"),
		LiveLogPosition:   r.Allocate("cluster.backup.liveLogPosition"),
		NextQueryDeadline: r.Allocate("cluster.backup.nextQueryDeadlineMs"),
	}
}
