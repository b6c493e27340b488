package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rickgao/safelift-feed/internal/connection"
	"github.com/rickgao/safelift-feed/internal/dispatch"
	"github.com/rickgao/safelift-feed/internal/model"
	"github.com/rickgao/safelift-feed/internal/settings"
	"github.com/rickgao/safelift-feed/internal/version"
)

func (a *app) newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}

// parse wraps flag errors so main exits with status 2.
func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	return nil
}

func (a *app) list(ctx context.Context, args []string) error {
	fs := a.newFlagSet("list")
	severity := fs.Int("severity", 0, "exact severity 1-5")
	eventType := fs.String("type", "", "event type")
	source := fs.String("source", "", "camera or sensor id")
	skip := fs.Int("skip", 0, "events to skip")
	limit := fs.Int("limit", 100, "page size (max 1000)")
	all := fs.Bool("all", false, "page through every matching event")
	if err := parse(fs, args); err != nil {
		return err
	}

	f := model.EventFilter{
		Severity: model.Severity(*severity),
		Type:     *eventType,
		Source:   *source,
		Skip:     *skip,
		Limit:    *limit,
	}

	var (
		events []model.Event
		err    error
	)
	if *all {
		events, err = a.client().ListAll(ctx, f, *limit)
	} else {
		events, err = a.client().List(ctx, f)
	}
	if err != nil {
		return err
	}
	return a.printEvents(events)
}

func (a *app) critical(ctx context.Context, args []string) error {
	fs := a.newFlagSet("critical")
	skip := fs.Int("skip", 0, "events to skip")
	limit := fs.Int("limit", 100, "page size")
	if err := parse(fs, args); err != nil {
		return err
	}

	events, err := a.client().Critical(ctx, *skip, *limit)
	if err != nil {
		return err
	}
	return a.printEvents(events)
}

func (a *app) get(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: get <id>", errUsage)
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("%w: invalid id %q", errUsage, args[0])
	}

	e, err := a.client().Get(ctx, id)
	if err != nil {
		return err
	}
	if a.json {
		return a.printJSON(e)
	}
	return a.printEvent(*e)
}

func (a *app) create(ctx context.Context, args []string) error {
	fs := a.newFlagSet("create")
	eventType := fs.String("type", "", "event type (required)")
	severity := fs.Int("severity", 0, "severity 1-5 (required)")
	source := fs.String("source", "", "camera or sensor id (required)")
	forklift := fs.Int64("forklift", 0, "forklift id (optional)")
	meta := metadataFlag{}
	fs.Var(meta, "meta", "metadata key=value, repeatable; numbers and booleans are typed")
	if err := parse(fs, args); err != nil {
		return err
	}

	n := model.NewEvent{
		Type:     *eventType,
		Severity: model.Severity(*severity),
		Source:   *source,
	}
	if len(meta) > 0 {
		n.Metadata = meta
	}
	if *forklift != 0 {
		n.ForkliftID = forklift
	}

	e, err := a.client().Create(ctx, n)
	if err != nil {
		return err
	}
	if a.json {
		return a.printJSON(e)
	}
	fmt.Fprintf(a.out, "created event %d\n", e.ID)
	return nil
}

func (a *app) watch(ctx context.Context, args []string) error {
	fs := a.newFlagSet("watch")
	minSeverity := fs.Int("min-severity", 1, "hide events below this severity")
	if err := parse(fs, args); err != nil {
		return err
	}

	header := a.creds.Header()
	header.Set("User-Agent", version.UserAgent())

	cc := a.cfg.Connection
	mgr := connection.NewManager(connection.ManagerConfig{
		URL:                  a.cfg.ResolveWSURL(a.prefs.WSURL),
		Header:               header,
		HeartbeatInterval:    cc.HeartbeatInterval,
		LivenessTimeout:      *cc.LivenessTimeout,
		ReconnectDelay:       cc.ReconnectDelay,
		MaxReconnectAttempts: cc.MaxReconnectAttempts,
		HandshakeTimeout:     cc.HandshakeTimeout,
		WriteTimeout:         cc.WriteTimeout,
		BufferSize:           cc.BufferSize,
	}, a.logger)

	mgr.Subscribe(dispatch.ListenerFunc(func(e model.Event) error {
		if e.Severity < model.Severity(*minSeverity) {
			return nil
		}
		if a.json {
			return a.printJSONLine(e)
		}
		return a.printEvent(e)
	}))

	mgr.Connect()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return mgr.Shutdown(shutdownCtx)
}

func (a *app) login(ctx context.Context, args []string) error {
	fs := a.newFlagSet("login")
	username := fs.String("username", "", "account name (required)")
	password := fs.String("password", os.Getenv("SAFELIFT_PASSWORD"), "password (default $SAFELIFT_PASSWORD)")
	out := fs.String("out", a.cfg.API.TokenPath, "file to store the access token in (default api.token_path)")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *username == "" || *password == "" {
		return fmt.Errorf("%w: login requires -username and a password", errUsage)
	}

	tok, err := a.client().Login(ctx, *username, *password)
	if err != nil {
		return err
	}

	if *out == "" {
		fmt.Fprintln(a.out, tok.AccessToken)
		return nil
	}
	if err := os.WriteFile(*out, []byte(tok.AccessToken+"\n"), 0o600); err != nil {
		return fmt.Errorf("write token: %w", err)
	}
	fmt.Fprintf(a.out, "token written to %s\n", *out)
	return nil
}

func (a *app) settings(args []string) error {
	if len(args) > 0 {
		updated := a.prefs
		for _, kv := range args {
			key, value, ok := strings.Cut(kv, "=")
			if !ok {
				return fmt.Errorf("%w: expected key=value, got %q", errUsage, kv)
			}
			if err := setSetting(&updated, key, value); err != nil {
				return err
			}
		}
		if err := a.store.Save(updated); err != nil {
			return err
		}
		a.prefs = updated
	}
	return a.printJSON(a.prefs)
}

// setSetting assigns one field by its JSON name.
func setSetting(s *settings.Settings, key, value string) error {
	parseBool := func() (bool, error) { return strconv.ParseBool(value) }
	parseInt := func() (int, error) { return strconv.Atoi(value) }

	var err error
	switch key {
	case "backendUrl":
		s.BackendURL = value
	case "wsUrl":
		s.WSURL = value
	case "autoRefresh":
		s.AutoRefresh, err = parseBool()
	case "refreshInterval":
		s.RefreshInterval, err = parseInt()
	case "notificationsEnabled":
		s.NotificationsEnabled, err = parseBool()
	case "soundEnabled":
		s.SoundEnabled, err = parseBool()
	case "severityThreshold":
		s.SeverityThreshold, err = parseInt()
	default:
		return fmt.Errorf("unknown setting %q", key)
	}
	if err != nil {
		return fmt.Errorf("setting %s: %w", key, err)
	}
	return nil
}

// metadataFlag collects repeated -meta key=value pairs.
type metadataFlag map[string]any

func (m metadataFlag) String() string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, m[k])
	}
	return strings.Join(parts, ",")
}

func (m metadataFlag) Set(kv string) error {
	key, value, ok := strings.Cut(kv, "=")
	if !ok || key == "" {
		return errors.New("expected key=value")
	}
	if n, err := strconv.ParseInt(value, 10, 64); err == nil {
		m[key] = n
	} else if f, err := strconv.ParseFloat(value, 64); err == nil {
		m[key] = f
	} else if b, err := strconv.ParseBool(value); err == nil {
		m[key] = b
	} else {
		m[key] = value
	}
	return nil
}

func (a *app) printEvents(events []model.Event) error {
	if a.json {
		return a.printJSON(events)
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTIME\tSEVERITY\tTYPE\tSOURCE\tFORKLIFT")
	for _, e := range events {
		forklift := "-"
		if e.ForkliftID != nil {
			forklift = strconv.FormatInt(*e.ForkliftID, 10)
		}
		fmt.Fprintf(tw, "%d\t%s\t%d %s\t%s\t%s\t%s\n",
			e.ID, formatTime(e.Timestamp), int(e.Severity), e.Severity, e.Type, e.Source, forklift)
	}
	return tw.Flush()
}

func (a *app) printEvent(e model.Event) error {
	fmt.Fprintf(a.out, "%s  event %d  %s (severity %d %s) from %s",
		formatTime(e.Timestamp), e.ID, e.Type, int(e.Severity), e.Severity, e.Source)
	if e.ForkliftID != nil {
		fmt.Fprintf(a.out, "  forklift %d", *e.ForkliftID)
	}
	if len(e.Metadata) > 0 {
		meta, err := json.Marshal(e.Metadata)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "  %s", meta)
	}
	_, err := fmt.Fprintln(a.out)
	return err
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *app) printJSONLine(v any) error {
	return json.NewEncoder(a.out).Encode(v)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.DateTime)
}
