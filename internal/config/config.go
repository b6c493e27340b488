// Package config loads the event feed's YAML configuration.
package config

import "time"

// FeedConfig is the root configuration for the event feed.
type FeedConfig struct {
	API        APIConfig        `yaml:"api"`
	Connection ConnectionConfig `yaml:"connection"`
	Settings   SettingsConfig   `yaml:"settings"`
	Refresh    RefreshConfig    `yaml:"refresh"`
	Archive    ArchiveConfig    `yaml:"archive"`
	Relay      RelayConfig      `yaml:"relay"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// APIConfig holds SafeLift backend settings.
type APIConfig struct {
	BaseURL    string        `yaml:"base_url"`   // REST root, e.g. http://localhost:8000/api
	WSURL      string        `yaml:"ws_url"`     // broadcaster endpoint
	Token      string        `yaml:"token"`      // bearer token (optional)
	TokenPath  string        `yaml:"token_path"` // file holding the bearer token (optional)
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// ConnectionConfig holds WebSocket connection manager settings.
type ConnectionConfig struct {
	HeartbeatInterval    time.Duration  `yaml:"heartbeat_interval"`
	LivenessTimeout      *time.Duration `yaml:"liveness_timeout"` // 0 disables, unset means default
	ReconnectDelay       time.Duration  `yaml:"reconnect_delay"`
	MaxReconnectAttempts int            `yaml:"max_reconnect_attempts"`
	HandshakeTimeout     time.Duration  `yaml:"handshake_timeout"`
	WriteTimeout         time.Duration  `yaml:"write_timeout"`
	BufferSize           int            `yaml:"buffer_size"`
}

// SettingsConfig locates the persisted dashboard settings.
type SettingsConfig struct {
	Path string `yaml:"path"`
}

// RefreshConfig holds auto-refresh poller settings. Whether it runs and how
// often come from the persisted settings.
type RefreshConfig struct {
	PageSize  int           `yaml:"page_size"`
	Timeout   time.Duration `yaml:"timeout"`
	SeenLimit int           `yaml:"seen_limit"` // event ids remembered for dedup
}

// ArchiveConfig holds the Postgres event archive settings.
type ArchiveConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Database      DBConfig      `yaml:"database"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// RelayConfig holds NATS relay settings.
type RelayConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
	MinSeverity   int    `yaml:"min_severity"`
}

// MetricsConfig holds the health and Prometheus endpoint settings.
type MetricsConfig struct {
	Port      int    `yaml:"port"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}
