// Package relay republishes safety events to NATS.
//
// Publisher is a dispatch listener. Events at or above MinSeverity are
// published as JSON on "<prefix>.<type>", e.g. "safelift.events.speed_violation",
// with the event id in the Nats-Msg-Id header so a JetStream stream on the
// subject can deduplicate replays.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/rickgao/safelift-feed/internal/metrics"
	"github.com/rickgao/safelift-feed/internal/model"
)

// ErrClosed is returned by HandleEvent once the connection is closed.
var ErrClosed = errors.New("relay connection closed")

// Header keys set on every relayed message.
const (
	HeaderSeverity = "Safelift-Severity"
	HeaderSource   = "Safelift-Source"
)

// Config holds relay settings.
type Config struct {
	URL           string
	SubjectPrefix string         // default "safelift.events"
	MinSeverity   model.Severity // events below are skipped; 0 relays everything
	Name          string         // connection name shown in NATS monitoring
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithMetrics sets the metrics collector.
func WithMetrics(c metrics.Collector) Option {
	return func(p *Publisher) {
		p.metrics = metrics.OrNop(c)
	}
}

// Publisher relays events to NATS subjects.
type Publisher struct {
	nc          *nats.Conn
	owned       bool
	prefix      string
	minSeverity model.Severity
	logger      *slog.Logger
	metrics     metrics.Collector
}

// Connect dials cfg.URL and returns a Publisher that owns the connection.
func Connect(cfg Config, logger *slog.Logger, opts ...Option) (*Publisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	name := cfg.Name
	if name == "" {
		name = "safelift-feed"
	}

	nc, err := nats.Connect(cfg.URL,
		nats.Name(name),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", cfg.URL, err)
	}

	p := New(nc, cfg, logger, opts...)
	p.owned = true
	return p, nil
}

// New wraps an existing connection. Close will not close nc.
func New(nc *nats.Conn, cfg Config, logger *slog.Logger, opts ...Option) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	prefix := strings.Trim(cfg.SubjectPrefix, ".")
	if prefix == "" {
		prefix = "safelift.events"
	}

	p := &Publisher{
		nc:          nc,
		prefix:      prefix,
		minSeverity: cfg.MinSeverity,
		logger:      logger,
		metrics:     metrics.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Subject returns the subject an event of eventType is published on.
func (p *Publisher) Subject(eventType string) string {
	return Subject(p.prefix, eventType)
}

// Subject joins prefix and a sanitized event type into a NATS subject.
func Subject(prefix, eventType string) string {
	token := strings.Map(func(r rune) rune {
		switch {
		case r == '.' || r == '*' || r == '>' || r <= ' ' || r == 0x7f:
			return '_'
		default:
			return r
		}
	}, strings.TrimSpace(eventType))
	if token == "" {
		token = "unknown"
	}
	return prefix + "." + token
}

// HandleEvent publishes e if it meets the severity floor.
func (p *Publisher) HandleEvent(e model.Event) error {
	if e.Severity < p.minSeverity {
		return nil
	}
	if p.nc.IsClosed() {
		return ErrClosed
	}

	data, err := json.Marshal(e)
	if err != nil {
		p.metrics.IncRelayErrors()
		return fmt.Errorf("encode event %d: %w", e.ID, err)
	}

	msg := nats.NewMsg(p.Subject(e.Type))
	msg.Data = data
	msg.Header.Set(nats.MsgIdHdr, strconv.FormatInt(e.ID, 10))
	msg.Header.Set(HeaderSeverity, strconv.Itoa(int(e.Severity)))
	msg.Header.Set(HeaderSource, e.Source)

	if err := p.nc.PublishMsg(msg); err != nil {
		p.metrics.IncRelayErrors()
		return fmt.Errorf("publish event %d: %w", e.ID, err)
	}

	p.metrics.IncEventsRelayed()
	return nil
}

// Flush waits until the server has processed everything published so far.
func (p *Publisher) Flush(ctx context.Context) error {
	return p.nc.FlushWithContext(ctx)
}

// Close flushes and closes an owned connection.
func (p *Publisher) Close() {
	if !p.owned || p.nc.IsClosed() {
		return
	}
	if err := p.nc.FlushTimeout(time.Second); err != nil {
		p.logger.Warn("nats flush on close failed", "error", err)
	}
	p.nc.Close()
}
