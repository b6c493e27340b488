package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// connectionStates are the label values of the state gauge. Exactly one is 1.
var connectionStates = []string{"disconnected", "connecting", "connected", "closing", "unknown"}

// Prometheus implements Collector backed by Prometheus.
type Prometheus struct {
	connectionState  *prometheus.GaugeVec
	sessionsOpened   prometheus.Counter
	reconnects       prometheus.Counter
	reconnectsSpent  prometheus.Counter
	livenessTimeouts prometheus.Counter

	frames       *prometheus.CounterVec
	decodeErrors prometheus.Counter

	dispatched       prometheus.Counter
	listenerFailures prometheus.Counter

	archived      prometheus.Counter
	archiveErrors prometheus.Counter
	relayed       prometheus.Counter
	relayErrors   prometheus.Counter
	polled        prometheus.Counter
}

var _ Collector = (*Prometheus)(nil)

// NewPrometheus creates a collector and registers it with reg.
//
// reg defaults to prometheus.DefaultRegisterer, namespace to "safelift".
func NewPrometheus(reg prometheus.Registerer, namespace string) *Prometheus {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "safelift"
	}

	counter := func(subsystem, name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		})
	}

	p := &Prometheus{
		connectionState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "state",
			Help:      "Current connection state (1 for the active state, 0 otherwise).",
		}, []string{"state"}),
		sessionsOpened:   counter("connection", "sessions_opened_total", "Sessions that reached the open state."),
		reconnects:       counter("connection", "reconnect_attempts_total", "Automatic reconnect attempts scheduled."),
		reconnectsSpent:  counter("connection", "reconnect_exhausted_total", "Times the reconnect budget ran out."),
		livenessTimeouts: counter("connection", "liveness_timeouts_total", "Sessions closed because no heartbeat reply arrived in time."),

		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "wire",
			Name:      "frames_total",
			Help:      "Inbound frames by kind (event, pong, ping).",
		}, []string{"kind"}),
		decodeErrors: counter("wire", "decode_errors_total", "Inbound frames dropped as malformed."),

		dispatched:       counter("dispatch", "events_total", "Events fanned out to listeners."),
		listenerFailures: counter("dispatch", "listener_failures_total", "Listener calls that returned an error or panicked."),

		archived:      counter("archive", "events_total", "Events inserted into the archive."),
		archiveErrors: counter("archive", "errors_total", "Failed archive batch inserts."),
		relayed:       counter("relay", "events_total", "Events published to NATS."),
		relayErrors:   counter("relay", "errors_total", "Failed NATS publishes."),
		polled:        counter("refresh", "events_total", "Unseen events returned by the refresh poller."),
	}

	reg.MustRegister(
		p.connectionState,
		p.sessionsOpened,
		p.reconnects,
		p.reconnectsSpent,
		p.livenessTimeouts,
		p.frames,
		p.decodeErrors,
		p.dispatched,
		p.listenerFailures,
		p.archived,
		p.archiveErrors,
		p.relayed,
		p.relayErrors,
		p.polled,
	)

	p.SetConnectionState("disconnected")
	return p
}

// SetConnectionState marks state as the active one.
func (p *Prometheus) SetConnectionState(state string) {
	for _, s := range connectionStates {
		v := 0.0
		if s == state {
			v = 1
		}
		p.connectionState.WithLabelValues(s).Set(v)
	}
}

func (p *Prometheus) IncSessionsOpened()     { p.sessionsOpened.Inc() }
func (p *Prometheus) IncReconnectAttempts()  { p.reconnects.Inc() }
func (p *Prometheus) IncReconnectExhausted() { p.reconnectsSpent.Inc() }
func (p *Prometheus) IncLivenessTimeouts()   { p.livenessTimeouts.Inc() }

func (p *Prometheus) IncFrames(kind string) { p.frames.WithLabelValues(kind).Inc() }
func (p *Prometheus) IncDecodeErrors()      { p.decodeErrors.Inc() }

func (p *Prometheus) IncEventsDispatched() { p.dispatched.Inc() }
func (p *Prometheus) IncListenerFailures() { p.listenerFailures.Inc() }

func (p *Prometheus) AddEventsArchived(n int) { p.archived.Add(float64(n)) }
func (p *Prometheus) IncArchiveErrors()       { p.archiveErrors.Inc() }
func (p *Prometheus) IncEventsRelayed()       { p.relayed.Inc() }
func (p *Prometheus) IncRelayErrors()         { p.relayErrors.Inc() }
func (p *Prometheus) AddEventsPolled(n int)   { p.polled.Add(float64(n)) }
