package metrics

// Collector receives instrumentation from the feed's components.
type Collector interface {
	// Connection manager
	SetConnectionState(state string)
	IncSessionsOpened()
	IncReconnectAttempts()
	IncReconnectExhausted()
	IncLivenessTimeouts()

	// Decode boundary
	IncFrames(kind string)
	IncDecodeErrors()

	// Dispatcher
	IncEventsDispatched()
	IncListenerFailures()

	// Sinks
	AddEventsArchived(n int)
	IncArchiveErrors()
	IncEventsRelayed()
	IncRelayErrors()
	AddEventsPolled(n int)
}

// Nop discards all metrics.
type Nop struct{}

var _ Collector = (*Nop)(nil)

// NewNop creates a no-op collector.
func NewNop() *Nop {
	return &Nop{}
}

func (*Nop) SetConnectionState(string) {}
func (*Nop) IncSessionsOpened()        {}
func (*Nop) IncReconnectAttempts()     {}
func (*Nop) IncReconnectExhausted()    {}
func (*Nop) IncLivenessTimeouts()      {}
func (*Nop) IncFrames(string)          {}
func (*Nop) IncDecodeErrors()          {}
func (*Nop) IncEventsDispatched()      {}
func (*Nop) IncListenerFailures()      {}
func (*Nop) AddEventsArchived(int)     {}
func (*Nop) IncArchiveErrors()         {}
func (*Nop) IncEventsRelayed()         {}
func (*Nop) IncRelayErrors()           {}
func (*Nop) AddEventsPolled(int)       {}

// OrNop returns c, or a Nop collector when c is nil.
func OrNop(c Collector) Collector {
	if c == nil {
		return NewNop()
	}
	return c
}
