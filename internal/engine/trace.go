package engine

import (
	"sync"
	"time"

	"github.com/voxmem/voxmem/internal/index"
)

// TraceSink receives structured events on notable engine transitions. The
// engine itself stays stateless; any buffering or broadcasting lives in the
// sink, whose lifecycle is owned by the host process.
type TraceSink interface {
	Record(ev TraceEvent)
}

// TraceEventKind classifies each trace event.
type TraceEventKind string

const (
	// KindMemoryStored is emitted after a memory has been upserted.
	KindMemoryStored TraceEventKind = "memory_stored"

	// KindStoreFailed is emitted when a store aborts, with the failing stage.
	KindStoreFailed TraceEventKind = "store_failed"

	// KindSearchStarted is emitted at the beginning of a search.
	KindSearchStarted TraceEventKind = "search_started"

	// KindSearchFailed is emitted when a search aborts, with the failing stage.
	KindSearchFailed TraceEventKind = "search_failed"

	// KindResultsReturned is emitted after thresholding with the final id set.
	KindResultsReturned TraceEventKind = "results_returned"
)

// TraceEvent is a single structured event emitted during a store or search.
type TraceEvent struct {
	Kind TraceEventKind `json:"kind"`

	// At is the wall-clock time the event was recorded.
	At time.Time `json:"at"`

	// MemoryID is populated for memory_stored events.
	MemoryID string `json:"memory_id,omitempty"`

	// MemoryType is populated for memory_stored events.
	MemoryType string `json:"memory_type,omitempty"`

	// Query is the original search query for search_started events.
	Query string `json:"query,omitempty"`

	// Filters captures the active predicates for search_started events.
	Filters map[string]string `json:"filters,omitempty"`

	// Stage names the failing stage ("embedding", "index") for failures.
	Stage string `json:"stage,omitempty"`

	// Error is the failure message for store_failed and search_failed.
	Error string `json:"error,omitempty"`

	// MemoryIDs lists returned ids for results_returned events.
	MemoryIDs []string `json:"memory_ids,omitempty"`

	// Dropped counts hits discarded by the relevance threshold.
	Dropped int `json:"dropped,omitempty"`
}

// newTraceEvent timestamps a fresh event.
func newTraceEvent(kind TraceEventKind) TraceEvent {
	return TraceEvent{Kind: kind, At: time.Now().UTC()}
}

// EventMemoryStored creates a memory_stored trace event.
func EventMemoryStored(memoryID, memoryType string) TraceEvent {
	e := newTraceEvent(KindMemoryStored)
	e.MemoryID = memoryID
	e.MemoryType = memoryType
	return e
}

// EventStoreFailed creates a store_failed trace event.
func EventStoreFailed(stage string, err error) TraceEvent {
	e := newTraceEvent(KindStoreFailed)
	e.Stage = stage
	e.Error = err.Error()
	return e
}

// EventSearchStarted creates a search_started trace event.
func EventSearchStarted(query string, filter index.Filter) TraceEvent {
	e := newTraceEvent(KindSearchStarted)
	e.Query = query
	filters := map[string]string{}
	if filter.MemoryType != "" {
		filters["memory_type"] = filter.MemoryType
	}
	if filter.CreatedDate != "" {
		filters["created_date"] = filter.CreatedDate
	}
	if len(filters) > 0 {
		e.Filters = filters
	}
	return e
}

// EventSearchFailed creates a search_failed trace event.
func EventSearchFailed(stage string, err error) TraceEvent {
	e := newTraceEvent(KindSearchFailed)
	e.Stage = stage
	e.Error = err.Error()
	return e
}

// EventResultsReturned creates a results_returned trace event.
func EventResultsReturned(memoryIDs []string, dropped int) TraceEvent {
	e := newTraceEvent(KindResultsReturned)
	e.MemoryIDs = memoryIDs
	e.Dropped = dropped
	return e
}

// NopSink discards all events.
type NopSink struct{}

// Record implements TraceSink.
func (NopSink) Record(TraceEvent) {}

// RingSink keeps the most recent events in a fixed-capacity ring for the
// debug endpoint. Safe for concurrent use.
type RingSink struct {
	mu     sync.Mutex
	events []TraceEvent
	cap    int
}

// DefaultRingCapacity bounds the debug trace buffer.
const DefaultRingCapacity = 100

// NewRingSink creates a ring sink. A non-positive capacity uses
// DefaultRingCapacity.
func NewRingSink(capacity int) *RingSink {
	if capacity <= 0 {
		capacity = DefaultRingCapacity
	}
	return &RingSink{cap: capacity}
}

// Record implements TraceSink, evicting the oldest event when full.
func (r *RingSink) Record(ev TraceEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	if len(r.events) > r.cap {
		r.events = r.events[len(r.events)-r.cap:]
	}
}

// Snapshot returns a copy of the buffered events, oldest first.
func (r *RingSink) Snapshot() []TraceEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]TraceEvent, len(r.events))
	copy(out, r.events)
	return out
}

// MultiSink fans events out to several sinks.
type MultiSink []TraceSink

// Record implements TraceSink.
func (m MultiSink) Record(ev TraceEvent) {
	for _, s := range m {
		s.Record(ev)
	}
}

// Compile-time assertions.
var (
	_ TraceSink = NopSink{}
	_ TraceSink = (*RingSink)(nil)
	_ TraceSink = MultiSink{}
)
