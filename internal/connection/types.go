package connection

import (
	"errors"
	"net/http"
	"time"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrAlreadyClosed   = errors.New("already closed")
	ErrLivenessTimeout = errors.New("no heartbeat reply within liveness timeout")
	ErrManagerShutdown = errors.New("manager shut down")
)

// ConnectionState is the public, read-only view of the manager's phase.
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
	Closing
	Unknown
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Closing:
		return "closing"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name.
func (s ConnectionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// phase is the manager's internal lifecycle position.
type phase int

const (
	phaseIdle phase = iota
	phaseConnecting
	phaseOpen
	phaseClosing
	phaseClosed
)

func (p phase) state() ConnectionState {
	switch p {
	case phaseIdle, phaseClosed:
		return Disconnected
	case phaseConnecting:
		return Connecting
	case phaseOpen:
		return Connected
	case phaseClosing:
		return Closing
	default:
		return Unknown
	}
}

// TimestampedMessage wraps raw message data with receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw message bytes from WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL              string        // WebSocket URL (e.g., ws://localhost:8000/ws/events)
	Header           http.Header   // Extra handshake headers (Authorization)
	HandshakeTimeout time.Duration // Dial + upgrade deadline
	WriteTimeout     time.Duration // Write deadline for sends
	BufferSize       int           // Message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		BufferSize:       256,
	}
}

// ManagerConfig configures the Connection Manager.
type ManagerConfig struct {
	URL                  string        // Broadcaster endpoint
	Header               http.Header   // Handshake headers for every session
	HeartbeatInterval    time.Duration // Period of "ping" frames while open (0 disables)
	LivenessTimeout      time.Duration // Max silence before a session is closed (0 disables)
	ReconnectDelay       time.Duration // Constant wait before each reconnect attempt
	MaxReconnectAttempts int           // Consecutive automatic attempts before giving up
	HandshakeTimeout     time.Duration
	WriteTimeout         time.Duration
	BufferSize           int
}

// Defaults for ManagerConfig.
const (
	DefaultURL                  = "ws://localhost:8000/ws/events"
	DefaultHeartbeatInterval    = 30 * time.Second
	DefaultLivenessTimeout      = 90 * time.Second
	DefaultReconnectDelay       = 3 * time.Second
	DefaultMaxReconnectAttempts = 5
)

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	cc := DefaultClientConfig()
	return ManagerConfig{
		URL:                  DefaultURL,
		HeartbeatInterval:    DefaultHeartbeatInterval,
		LivenessTimeout:      DefaultLivenessTimeout,
		ReconnectDelay:       DefaultReconnectDelay,
		MaxReconnectAttempts: DefaultMaxReconnectAttempts,
		HandshakeTimeout:     cc.HandshakeTimeout,
		WriteTimeout:         cc.WriteTimeout,
		BufferSize:           cc.BufferSize,
	}
}

func (c ManagerConfig) clientConfig() ClientConfig {
	return ClientConfig{
		URL:              c.URL,
		Header:           c.Header.Clone(),
		HandshakeTimeout: c.HandshakeTimeout,
		WriteTimeout:     c.WriteTimeout,
		BufferSize:       c.BufferSize,
	}
}

// ManagerStats provides statistics about the connection manager.
type ManagerStats struct {
	State             ConnectionState `json:"state"`
	SessionID         string          `json:"session_id,omitempty"`
	ConnectedSince    time.Time       `json:"connected_since,omitzero"`
	LastReplyAt       time.Time       `json:"last_reply_at,omitzero"`
	ReconnectAttempts int             `json:"reconnect_attempts"`
	ReconnectPending  bool            `json:"reconnect_pending"`
	SessionsOpened    int64           `json:"sessions_opened"`
	FramesReceived    int64           `json:"frames_received"`
	DecodeErrors      int64           `json:"decode_errors"`
	Listeners         int             `json:"listeners"`
}
