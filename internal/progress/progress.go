// Package progress implements the Ingestion APIs' progress-stream
// primitive (spec.md §4.I): an in-process pub/sub keyed by a job-run id,
// feeding the SSE handler behind GET /api/v1/stream/progress/{jobRunId}.
// Grounded on the teacher's otter/xsync-backed in-memory registries
// elsewhere in this codebase (internal/jobs' history cache, internal/
// proxyselect's dedup map) rather than any persisted queue — a progress
// stream only ever matters to whoever is watching it right now.
package progress

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
)

// Event is one line-framed SSE payload (spec.md §6 "Progress stream
// event"): `data: {"stage":...,"current":N,"total":M,"message":str}\n\n`.
type Event struct {
	Stage   string         `json:"stage"`
	Current int            `json:"current"`
	Total   int            `json:"total"`
	Message string         `json:"message,omitempty"`
	Extra   map[string]any `json:"extra,omitempty"`
}

func (e Event) terminal() bool { return e.Stage == "done" || e.Stage == "error" }

// retentionAfterTerminal keeps a finished run's channel subscribable for a
// short window, so a client reconnecting right after the terminal event
// still gets a clean "already closed" read instead of a 404.
const retentionAfterTerminal = 2 * time.Minute

type run struct {
	events chan Event
	once   sync.Once
	closed atomic.Bool
}

// Broker tracks in-flight and recently-finished runs by id.
type Broker struct {
	runs *xsync.Map[string, *run]
}

// NewBroker builds an empty Broker.
func NewBroker() *Broker {
	return &Broker{runs: xsync.NewMap[string, *run]()}
}

// Publisher is the producer-side handle for one run, returned by Start.
type Publisher struct {
	broker   *Broker
	jobRunID string
	r        *run
}

// Start registers a new run and returns its Publisher. The event channel is
// buffered so a fast producer never blocks on an absent or slow subscriber.
func (b *Broker) Start(jobRunID string) *Publisher {
	r := &run{events: make(chan Event, 64)}
	b.runs.Store(jobRunID, r)
	return &Publisher{broker: b, jobRunID: jobRunID, r: r}
}

// Publish emits one event. A terminal event (stage done|error) closes the
// stream for subscribers and schedules the run's removal from the broker.
// Publishing after the run is already closed is a no-op rather than a
// panic, so a handler that double-reports a terminal stage stays safe.
func (p *Publisher) Publish(e Event) {
	if p.r.closed.Load() {
		return
	}
	select {
	case p.r.events <- e:
	default:
		// A stalled subscriber must never back-pressure the producer
		// (spec.md §4.I's "stop as soon as practical" cuts the other way,
		// not this one) — drop the event rather than block.
	}
	if e.terminal() {
		p.r.once.Do(func() {
			p.r.closed.Store(true)
			close(p.r.events)
			time.AfterFunc(retentionAfterTerminal, func() { p.broker.runs.Delete(p.jobRunID) })
		})
	}
}

// Subscribe returns the event channel for an in-flight or just-finished
// run, or false if jobRunId is unknown or has expired.
func (b *Broker) Subscribe(jobRunID string) (<-chan Event, bool) {
	r, ok := b.runs.Load(jobRunID)
	if !ok {
		return nil, false
	}
	return r.events, true
}

type contextKey int

const publisherContextKey contextKey = iota

// WithPublisher attaches a Publisher to ctx so a job handler several calls
// deep can report progress without threading it through every signature.
func WithPublisher(ctx context.Context, p *Publisher) context.Context {
	return context.WithValue(ctx, publisherContextKey, p)
}

// FromContext retrieves the Publisher attached by WithPublisher, if any.
func FromContext(ctx context.Context) (*Publisher, bool) {
	p, ok := ctx.Value(publisherContextKey).(*Publisher)
	return p, ok
}
