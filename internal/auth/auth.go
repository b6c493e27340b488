// Package auth provides SafeLift API authentication using bearer tokens.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
)

// ErrNoToken is returned when neither a token nor a token file is given.
var ErrNoToken = errors.New("no API token configured")

// Credentials holds the bearer token sent with every request.
type Credentials struct {
	Token string
}

// LoadCredentials uses token if set, otherwise reads it from tokenPath.
func LoadCredentials(token, tokenPath string) (*Credentials, error) {
	token = strings.TrimSpace(token)
	if token != "" {
		return &Credentials{Token: token}, nil
	}
	if tokenPath == "" {
		return nil, ErrNoToken
	}

	loaded, err := LoadToken(tokenPath)
	if err != nil {
		return nil, fmt.Errorf("load token: %w", err)
	}
	return &Credentials{Token: loaded}, nil
}

// LoadToken reads a token file, ignoring surrounding whitespace.
func LoadToken(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read token file: %w", err)
	}

	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("token file %s is empty", path)
	}
	return token, nil
}

// Apply sets the Authorization header. A nil receiver leaves h unchanged.
func (c *Credentials) Apply(h http.Header) {
	if c == nil || c.Token == "" {
		return
	}
	h.Set("Authorization", "Bearer "+c.Token)
}

// Header returns the handshake headers for a WebSocket dial.
func (c *Credentials) Header() http.Header {
	h := http.Header{}
	c.Apply(h)
	return h
}
