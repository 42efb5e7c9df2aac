package events

// Event represents a structured state change produced by the settlement core,
// e.g. a listing being created or a purchasing group reaching its goal.
type Event interface {
	EventType() string
}

// Emitter broadcasts events to downstream subscribers (RPC responses, audit
// logs, operator tooling).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter satisfies the Emitter interface while discarding all events. It
// keeps event emission optional for callers that only care about state.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}
