package dispatch

import (
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/rickgao/safelift-feed/internal/metrics"
	"github.com/rickgao/safelift-feed/internal/model"
)

// Listener handles events. A returned error is logged and counted.
type Listener interface {
	HandleEvent(model.Event) error
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(model.Event) error

// HandleEvent calls f(e).
func (f ListenerFunc) HandleEvent(e model.Event) error {
	return f(e)
}

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	id       uint64
	listener Listener
	active   atomic.Bool
	d        *Dispatcher
}

// ID identifies the subscription in logs.
func (s *Subscription) ID() uint64 {
	return s.id
}

// Active reports whether the subscription still receives events.
func (s *Subscription) Active() bool {
	return s.active.Load()
}

// Unsubscribe removes the listener. Safe to call more than once and from
// inside a callback; an in-progress dispatch will skip it if not yet invoked.
func (s *Subscription) Unsubscribe() {
	if !s.active.CompareAndSwap(true, false) {
		return
	}
	s.d.remove(s)
}

// Result summarizes one Dispatch call.
type Result struct {
	Delivered int
	Failed    int
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithMetrics sets the metrics collector.
func WithMetrics(c metrics.Collector) Option {
	return func(d *Dispatcher) {
		d.metrics = metrics.OrNop(c)
	}
}

// Dispatcher is a listener registry with isolated synchronous fan-out.
type Dispatcher struct {
	logger  *slog.Logger
	metrics metrics.Collector

	mu     sync.RWMutex
	subs   []*Subscription
	nextID uint64
}

// New creates a Dispatcher.
func New(logger *slog.Logger, opts ...Option) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}

	d := &Dispatcher{
		logger:  logger,
		metrics: metrics.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Subscribe registers l. Registering the same comparable listener value
// twice returns the existing subscription.
func (d *Dispatcher) Subscribe(l Listener) *Subscription {
	if l == nil {
		panic("dispatch: nil listener")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, s := range d.subs {
		if sameListener(s.listener, l) {
			return s
		}
	}

	d.nextID++
	s := &Subscription{id: d.nextID, listener: l, d: d}
	s.active.Store(true)
	d.subs = append(d.subs, s)
	return s
}

// SubscribeFunc registers a callback that cannot fail.
func (d *Dispatcher) SubscribeFunc(fn func(model.Event)) *Subscription {
	return d.Subscribe(ListenerFunc(func(e model.Event) error {
		fn(e)
		return nil
	}))
}

// Len returns the number of active subscriptions.
func (d *Dispatcher) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subs)
}

// Dispatch delivers e to every listener registered when the call began.
func (d *Dispatcher) Dispatch(e model.Event) Result {
	d.mu.RLock()
	snapshot := make([]*Subscription, len(d.subs))
	copy(snapshot, d.subs)
	d.mu.RUnlock()

	d.metrics.IncEventsDispatched()

	var res Result
	for _, s := range snapshot {
		if !s.active.Load() {
			continue
		}
		if err := d.deliver(s, e); err != nil {
			res.Failed++
			d.metrics.IncListenerFailures()
			d.logger.Warn("listener failed",
				"listener_id", s.id,
				"event_id", e.ID,
				"event_type", e.Type,
				"error", err,
			)
			continue
		}
		res.Delivered++
	}
	return res
}

// HandleEvent lets a Dispatcher be chained as a Listener of another.
func (d *Dispatcher) HandleEvent(e model.Event) error {
	res := d.Dispatch(e)
	if res.Failed > 0 {
		return fmt.Errorf("%d of %d listeners failed", res.Failed, res.Failed+res.Delivered)
	}
	return nil
}

func (d *Dispatcher) deliver(s *Subscription, e model.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener panic: %v", r)
		}
	}()
	return s.listener.HandleEvent(e)
}

func (d *Dispatcher) remove(s *Subscription) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i, cur := range d.subs {
		if cur == s {
			d.subs = append(d.subs[:i], d.subs[i+1:]...)
			return
		}
	}
}

// sameListener reports whether a and b are the same comparable value.
// Func listeners are never equal.
func sameListener(a, b Listener) (same bool) {
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	// A comparable struct can still hold an uncomparable value in an interface field.
	defer func() {
		if recover() != nil {
			same = false
		}
	}()
	return a == b
}
