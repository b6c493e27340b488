package connection

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/safelift-feed/internal/dispatch"
	"github.com/rickgao/safelift-feed/internal/metrics"
	"github.com/rickgao/safelift-feed/internal/model"
	"github.com/rickgao/safelift-feed/internal/wire"
)

// session is one transport lifetime: dial, pump, close.
// Fields other than id, client, ctx and cancel are guarded by Manager.mu.
type session struct {
	id     string
	client Client
	ctx    context.Context
	cancel context.CancelFunc

	heartbeat Timer
	openedAt  time.Time
	lastReply time.Time
	closeErr  error
}

// Option configures a Manager.
type Option func(*Manager)

// WithScheduler replaces the system clock and timers.
func WithScheduler(s Scheduler) Option {
	return func(m *Manager) {
		m.sched = s
	}
}

// WithClientFactory replaces NewClient.
func WithClientFactory(f ClientFactory) Option {
	return func(m *Manager) {
		m.newClient = f
	}
}

// WithDispatcher sets the dispatcher events are delivered through.
func WithDispatcher(d *dispatch.Dispatcher) Option {
	return func(m *Manager) {
		m.dispatcher = d
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(c metrics.Collector) Option {
	return func(m *Manager) {
		m.metrics = metrics.OrNop(c)
	}
}

// Manager owns the WebSocket session lifecycle.
type Manager struct {
	cfg        ManagerConfig
	logger     *slog.Logger
	sched      Scheduler
	newClient  ClientFactory
	dispatcher *dispatch.Dispatcher
	metrics    metrics.Collector

	mu                  sync.Mutex
	phase               phase
	session             *session // live session (connecting or open)
	closing             *session // session torn down by Disconnect, not yet closed
	connectPending      bool     // Connect arrived while closing was set
	attempts            int
	intentionallyClosed bool
	reconnectTimer      Timer
	reconnectGen        uint64
	shutdown            bool
	sessionsOpened      int64

	frames       atomic.Int64
	decodeErrors atomic.Int64

	wg sync.WaitGroup
}

// NewManager creates a Connection Manager. It does not connect.
func NewManager(cfg ManagerConfig, logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.MaxReconnectAttempts < 0 {
		cfg.MaxReconnectAttempts = 0
	}

	m := &Manager{
		cfg:       cfg,
		logger:    logger,
		sched:     SystemScheduler{},
		newClient: NewClient,
		metrics:   metrics.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.dispatcher == nil {
		m.dispatcher = dispatch.New(logger, dispatch.WithMetrics(m.metrics))
	}
	m.metrics.SetConnectionState(Disconnected.String())
	return m
}

// Connect starts a session unless one is already connecting or open.
// It clears a previous Disconnect and starts a fresh retry budget.
// While a disconnected session is still closing, the new session is
// deferred until its transport has closed; Connect itself never blocks.
func (m *Manager) Connect() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.shutdown {
		m.logger.Debug("connect ignored after shutdown")
		return
	}
	if m.session != nil && (m.phase == phaseConnecting || m.phase == phaseOpen) {
		return
	}

	m.intentionallyClosed = false
	m.attempts = 0
	if m.session == nil && m.closing != nil {
		m.connectPending = true
		m.logger.Debug("connect deferred until previous session closes", "session_id", m.closing.id)
		return
	}
	m.startSessionLocked()
}

// Disconnect closes the session and suppresses reconnection until the
// next Connect. It never fails.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.intentionallyClosed = true
	m.connectPending = false
	m.cancelReconnectLocked()

	s := m.session
	if s == nil {
		if m.phase != phaseClosing {
			m.setPhaseLocked(phaseClosed)
		}
		m.mu.Unlock()
		return
	}

	if s.heartbeat != nil {
		s.heartbeat.Stop()
	}
	m.session = nil
	m.closing = s
	m.setPhaseLocked(phaseClosing)
	m.mu.Unlock()

	m.logger.Info("disconnecting", "session_id", s.id)
	s.cancel()
}

// Subscribe registers a listener for inbound events.
func (m *Manager) Subscribe(l dispatch.Listener) *dispatch.Subscription {
	return m.dispatcher.Subscribe(l)
}

// SubscribeFunc registers a callback for inbound events.
func (m *Manager) SubscribeFunc(fn func(model.Event)) *dispatch.Subscription {
	return m.dispatcher.SubscribeFunc(fn)
}

// State returns the current connection state.
func (m *Manager) State() ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase.state()
}

// Stats returns current statistics.
func (m *Manager) Stats() ManagerStats {
	m.mu.Lock()
	stats := ManagerStats{
		State:             m.phase.state(),
		ReconnectAttempts: m.attempts,
		ReconnectPending:  m.reconnectTimer != nil,
		SessionsOpened:    m.sessionsOpened,
	}
	if s := m.session; s != nil {
		stats.SessionID = s.id
		stats.ConnectedSince = s.openedAt
		stats.LastReplyAt = s.lastReply
	}
	m.mu.Unlock()

	stats.FramesReceived = m.frames.Load()
	stats.DecodeErrors = m.decodeErrors.Load()
	stats.Listeners = m.dispatcher.Len()
	return stats
}

// Shutdown disconnects and waits for the session goroutine to exit.
// Connect is a no-op afterwards.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("stopping connection manager")

	m.mu.Lock()
	m.shutdown = true
	m.mu.Unlock()

	m.Disconnect()

	// Wait for goroutines with timeout
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("connection manager stopped")
		return nil
	case <-ctx.Done():
		m.logger.Warn("shutdown timeout, session still closing")
		return fmt.Errorf("%w: %w", ErrManagerShutdown, ctx.Err())
	}
}

// -----------------------------------------------------------------------------
// Session lifecycle
// -----------------------------------------------------------------------------

// startSessionLocked must be called with m.mu held.
func (m *Manager) startSessionLocked() {
	m.cancelReconnectLocked()

	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		id:     id,
		client: m.newClient(m.cfg.clientConfig(), m.logger.With("session_id", id)),
		ctx:    ctx,
		cancel: cancel,
	}

	m.session = s
	m.setPhaseLocked(phaseConnecting)

	m.wg.Add(1)
	go m.run(s)

	m.logger.Info("connecting", "session_id", id, "url", m.cfg.URL, "attempt", m.attempts)
}

// run dials and pumps frames until the session ends.
func (m *Manager) run(s *session) {
	defer m.wg.Done()
	defer s.cancel()

	if err := s.client.Connect(s.ctx); err != nil {
		s.client.Close()
		m.closed(s, err)
		return
	}

	if !m.opened(s) {
		s.client.Close()
		m.closed(s, ErrAlreadyClosed)
		return
	}

	err := m.pump(s)
	s.client.Close()
	m.closed(s, err)
}

// opened moves a dialed session to open. It returns false if the session
// was replaced or torn down during the dial.
func (m *Manager) opened(s *session) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session != s {
		return false
	}

	now := m.sched.Now()
	s.openedAt = now
	s.lastReply = now
	m.attempts = 0
	m.sessionsOpened++
	m.setPhaseLocked(phaseOpen)
	m.metrics.IncSessionsOpened()

	if m.cfg.HeartbeatInterval > 0 {
		s.heartbeat = m.sched.AfterFunc(m.cfg.HeartbeatInterval, func() { m.heartbeat(s) })
	}

	m.logger.Info("connected", "session_id", s.id, "url", m.cfg.URL)
	return true
}

// pump delivers frames until the transport fails or the session is cancelled.
func (m *Manager) pump(s *session) error {
	for {
		select {
		case <-s.ctx.Done():
			return m.closeCause(s)

		case err := <-s.client.Errors():
			m.drain(s)
			return err

		case msg := <-s.client.Messages():
			m.handleFrame(s, msg)
		}
	}
}

// drain handles frames read before the transport error was reported.
func (m *Manager) drain(s *session) {
	for {
		select {
		case msg := <-s.client.Messages():
			m.handleFrame(s, msg)
		default:
			return
		}
	}
}

func (m *Manager) closeCause(s *session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.closeErr != nil {
		return s.closeErr
	}
	return context.Canceled
}

// handleFrame decodes one frame and acts on it. Runs on the session goroutine.
func (m *Manager) handleFrame(s *session, msg TimestampedMessage) {
	m.mu.Lock()
	current := m.session == s && m.phase == phaseOpen
	if current {
		s.lastReply = m.sched.Now()
	}
	m.mu.Unlock()

	if !current {
		return
	}

	f, err := wire.Decode(msg.Data)
	if err != nil {
		m.decodeErrors.Add(1)
		m.metrics.IncDecodeErrors()
		m.logger.Warn("dropping malformed frame", "session_id", s.id, "error", err)
		return
	}

	m.frames.Add(1)
	m.metrics.IncFrames(wire.KindOf(f))

	switch v := f.(type) {
	case wire.Control:
		if v.Kind == wire.ControlPing {
			if err := s.client.Send([]byte(wire.ReplyPayload)); err != nil {
				m.logger.Debug("failed to answer ping", "session_id", s.id, "error", err)
			}
		}
	case wire.EventFrame:
		m.dispatcher.Dispatch(v.Event)
	}
}

// heartbeat runs on the scheduler. It sends a probe, or closes the session
// if nothing has been received within the liveness timeout.
func (m *Manager) heartbeat(s *session) {
	m.mu.Lock()
	if m.session != s || m.phase != phaseOpen {
		m.mu.Unlock()
		return
	}

	now := m.sched.Now()
	if m.cfg.LivenessTimeout > 0 && now.Sub(s.lastReply) > m.cfg.LivenessTimeout {
		s.closeErr = ErrLivenessTimeout
		silence := now.Sub(s.lastReply)
		m.mu.Unlock()

		m.metrics.IncLivenessTimeouts()
		m.logger.Warn("heartbeat reply overdue, closing session",
			"session_id", s.id,
			"silence", silence,
			"timeout", m.cfg.LivenessTimeout,
		)
		s.cancel()
		return
	}

	s.heartbeat = m.sched.AfterFunc(m.cfg.HeartbeatInterval, func() { m.heartbeat(s) })
	m.mu.Unlock()

	if err := s.client.Send([]byte(wire.ProbePayload)); err != nil {
		m.logger.Debug("failed to send heartbeat", "session_id", s.id, "error", err)
	}
}

// closed records the end of a session and applies the reconnect policy.
func (m *Manager) closed(s *session, cause error) {
	m.mu.Lock()

	if m.session != s {
		// Torn down by Disconnect, or a stale session.
		if m.closing == s {
			m.closing = nil
			switch {
			case m.connectPending && !m.shutdown:
				m.connectPending = false
				m.startSessionLocked()
			case m.session == nil && m.phase == phaseClosing:
				m.setPhaseLocked(phaseClosed)
			}
		}
		m.mu.Unlock()
		m.logger.Debug("session closed", "session_id", s.id)
		return
	}

	if s.heartbeat != nil {
		s.heartbeat.Stop()
	}
	m.session = nil
	m.setPhaseLocked(phaseClosed)

	if m.intentionallyClosed || m.shutdown {
		m.mu.Unlock()
		return
	}

	if m.attempts >= m.cfg.MaxReconnectAttempts {
		attempts := m.attempts
		m.mu.Unlock()

		m.metrics.IncReconnectExhausted()
		m.logger.Warn("reconnect attempts exhausted, staying disconnected",
			"session_id", s.id,
			"attempts", attempts,
			"error", cause,
		)
		return
	}

	m.attempts++
	attempt := m.attempts
	m.reconnectGen++
	gen := m.reconnectGen
	m.reconnectTimer = m.sched.AfterFunc(m.cfg.ReconnectDelay, func() { m.reconnect(gen) })
	m.mu.Unlock()

	m.metrics.IncReconnectAttempts()
	m.logger.Warn("connection lost, scheduling reconnect",
		"session_id", s.id,
		"attempt", attempt,
		"max_attempts", m.cfg.MaxReconnectAttempts,
		"delay", m.cfg.ReconnectDelay,
		"error", cause,
	)
}

// reconnect runs on the scheduler when the reconnect delay elapses.
func (m *Manager) reconnect(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.reconnectGen || m.reconnectTimer == nil {
		return
	}
	m.reconnectTimer = nil

	if m.intentionallyClosed || m.shutdown || m.session != nil {
		return
	}
	m.startSessionLocked()
}

// cancelReconnectLocked must be called with m.mu held.
func (m *Manager) cancelReconnectLocked() {
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	m.reconnectGen++
}

// setPhaseLocked must be called with m.mu held.
func (m *Manager) setPhaseLocked(p phase) {
	if m.phase == p {
		return
	}
	m.phase = p
	m.metrics.SetConnectionState(p.state().String())
}
