package events

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Emitter receives ledger notifications. Ledgers emit only after an operation
// has fully succeeded, in the order the operation produced them.
type Emitter interface {
	Emit(ctx context.Context, event Event)
}

type NoopEmitter struct{}

func (NoopEmitter) Emit(context.Context, Event) {}

// Recorder is an append-only in-process log of notifications. With a
// positive limit only the newest limit events are retained; sequence numbers
// keep counting.
type Recorder struct {
	mu      sync.RWMutex
	events  []Event
	dropped uint64
	limit   int
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

// NewBoundedRecorder keeps at most limit events.
func NewBoundedRecorder(limit int) *Recorder {
	return &Recorder{limit: limit}
}

func (r *Recorder) Emit(_ context.Context, event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	event.Seq = r.dropped + uint64(len(r.events)) + 1
	r.events = append(r.events, event)
	if r.limit > 0 && len(r.events) > r.limit {
		n := len(r.events) - r.limit
		r.events = append(r.events[:0:0], r.events[n:]...)
		r.dropped += uint64(n)
	}
}

// Events returns a copy of everything retained so far.
func (r *Recorder) Events() []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Types returns the retained event types in emission order.
func (r *Recorder) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

// Since returns retained events with Seq > seq.
func (r *Recorder) Since(seq uint64) []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	start := 0
	if seq > r.dropped {
		start = int(seq - r.dropped)
	}
	if start >= len(r.events) {
		return nil
	}
	out := make([]Event, len(r.events)-start)
	copy(out, r.events[start:])
	return out
}

// PublishingEmitter forwards notifications to a pub/sub stream. Publish
// failures are logged and dropped; the ledger state is already committed.
type PublishingEmitter struct {
	publisher Publisher
	stream    string
	log       *zap.Logger
}

func NewPublishingEmitter(publisher Publisher, stream string, log *zap.Logger) *PublishingEmitter {
	return &PublishingEmitter{publisher: publisher, stream: stream, log: log}
}

func (e *PublishingEmitter) Emit(ctx context.Context, event Event) {
	if err := e.publisher.Publish(ctx, e.stream, event); err != nil {
		e.log.Warn("failed to publish event", zap.String("type", event.Type), zap.Error(err))
	}
}

// Multi fans a notification out to every emitter in order.
type Multi []Emitter

func (m Multi) Emit(ctx context.Context, event Event) {
	for _, e := range m {
		if e != nil {
			e.Emit(ctx, event)
		}
	}
}
