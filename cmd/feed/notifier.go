package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rickgao/safelift-feed/internal/model"
	"github.com/rickgao/safelift-feed/internal/settings"
)

const bell = "\a"

// notifier prints events at or above the configured severity, ringing the
// terminal bell when sound is enabled.
type notifier struct {
	mu        sync.Mutex
	w         io.Writer
	enabled   bool
	sound     bool
	threshold model.Severity
}

func newNotifier(w io.Writer, s settings.Settings) *notifier {
	return &notifier{
		w:         w,
		enabled:   s.NotificationsEnabled,
		sound:     s.SoundEnabled,
		threshold: model.Severity(s.SeverityThreshold),
	}
}

func (n *notifier) HandleEvent(e model.Event) error {
	if !n.enabled || e.Severity < n.threshold {
		return nil
	}

	var b strings.Builder
	if n.sound {
		b.WriteString(bell)
	}

	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	fmt.Fprintf(&b, "%s %-8s %s from %s (event %d",
		ts.UTC().Format(time.RFC3339), strings.ToUpper(e.Severity.String()), e.Type, e.Source, e.ID)
	if e.ForkliftID != nil {
		fmt.Fprintf(&b, ", forklift %d", *e.ForkliftID)
	}
	b.WriteString(")\n")

	n.mu.Lock()
	defer n.mu.Unlock()
	_, err := io.WriteString(n.w, b.String())
	return err
}
