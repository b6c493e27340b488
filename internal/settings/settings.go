// Package settings persists the dashboard's user settings as a JSON blob.
//
// Fields absent from the stored blob take their default values. There is no
// schema version; unknown fields are ignored.
package settings

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Settings is the persisted dashboard configuration.
type Settings struct {
	BackendURL           string `json:"backendUrl"` // empty: use the configured REST root
	WSURL                string `json:"wsUrl"`      // empty: use the configured endpoint
	AutoRefresh          bool   `json:"autoRefresh"`
	RefreshInterval      int    `json:"refreshInterval"` // seconds
	NotificationsEnabled bool   `json:"notificationsEnabled"`
	SoundEnabled         bool   `json:"soundEnabled"`
	SeverityThreshold    int    `json:"severityThreshold"` // 1-5, notify at or above
}

// Defaults returns the settings used when nothing is stored.
func Defaults() Settings {
	return Settings{
		AutoRefresh:          true,
		RefreshInterval:      30,
		NotificationsEnabled: true,
		SoundEnabled:         false,
		SeverityThreshold:    4,
	}
}

// RefreshPeriod returns RefreshInterval as a duration.
func (s Settings) RefreshPeriod() time.Duration {
	return time.Duration(s.RefreshInterval) * time.Second
}

// Validate rejects values the feed cannot act on.
func (s Settings) Validate() error {
	if s.RefreshInterval < 1 {
		return fmt.Errorf("refreshInterval must be >= 1, got %d", s.RefreshInterval)
	}
	if s.SeverityThreshold < 1 || s.SeverityThreshold > 5 {
		return fmt.Errorf("severityThreshold must be between 1 and 5, got %d", s.SeverityThreshold)
	}
	if err := checkURL("backendUrl", s.BackendURL, "http", "https"); err != nil {
		return err
	}
	if err := checkURL("wsUrl", s.WSURL, "ws", "wss"); err != nil {
		return err
	}
	return nil
}

func checkURL(field, raw string, schemes ...string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	for _, s := range schemes {
		if u.Scheme == s && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("%s %q is not a %s URL", field, raw, schemes[0])
}

// ErrInvalid wraps validation failures from Save.
var ErrInvalid = errors.New("invalid settings")

// Store loads and saves Settings.
type Store interface {
	Load() (Settings, error)
	Save(Settings) error
}
