package events

import "defil/core/types"

// Event represents a structured state change emitted by the market.
type Event interface {
	EventType() string
}

// Renderer is implemented by events that expose a flattened wire form.
type Renderer interface {
	Event
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Fanout delivers every event to each non-nil emitter in order.
type Fanout []Emitter

// Emit implements the Emitter interface.
func (f Fanout) Emit(evt Event) {
	for _, emitter := range f {
		if emitter != nil {
			emitter.Emit(evt)
		}
	}
}

// Recorder buffers events until the producer decides whether they should be
// published. A discarded operation calls Reset; a completed one calls Flush.
type Recorder struct {
	buffered []Event
}

// Emit implements the Emitter interface.
func (r *Recorder) Emit(evt Event) {
	if evt == nil {
		return
	}
	r.buffered = append(r.buffered, evt)
}

// Len returns the number of buffered events.
func (r *Recorder) Len() int {
	return len(r.buffered)
}

// Events returns a copy of the buffered events.
func (r *Recorder) Events() []Event {
	out := make([]Event, len(r.buffered))
	copy(out, r.buffered)
	return out
}

// Reset drops everything buffered so far.
func (r *Recorder) Reset() {
	r.buffered = r.buffered[:0]
}

// Flush publishes the buffered events to dst and clears the buffer.
func (r *Recorder) Flush(dst Emitter) {
	if dst != nil {
		for _, evt := range r.buffered {
			dst.Emit(evt)
		}
	}
	r.Reset()
}
