// eventctl queries and drives the SafeLift event API from the command line.
//
// Usage:
//
//	eventctl [-config feed.yaml] [-json] <command> [flags]
//
// Commands:
//
//	list      list events (-severity, -type, -source, -skip, -limit, -all)
//	critical  list events with severity >= 4
//	get       show one event by id
//	create    post a new event
//	watch     stream live events until interrupted
//	login     exchange username/password for a token and store it
//	settings  show or update persisted settings (key=value ...)
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rickgao/safelift-feed/internal/api"
	"github.com/rickgao/safelift-feed/internal/auth"
	"github.com/rickgao/safelift-feed/internal/config"
	"github.com/rickgao/safelift-feed/internal/logging"
	"github.com/rickgao/safelift-feed/internal/settings"
	"github.com/rickgao/safelift-feed/internal/version"
)

// errUsage marks errors that should print command usage.
var errUsage = errors.New("usage")

// app carries what every command needs.
type app struct {
	cfg    *config.FeedConfig
	store  settings.Store
	prefs  settings.Settings
	creds  *auth.Credentials
	logger *slog.Logger
	out    io.Writer
	json   bool
}

func main() {
	configPath := flag.String("config", "", "path to YAML config (built-in defaults when empty)")
	envPath := flag.String("env", ".env", "dotenv file loaded before the config")
	asJSON := flag.Bool("json", false, "print JSON instead of a table")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	a, err := newApp(*configPath, *envPath, *asJSON, os.Stdout)
	if err != nil {
		fmt.Fprintln(os.Stderr, "eventctl:", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.run(ctx, flag.Arg(0), flag.Args()[1:]); err != nil {
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, "eventctl:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "eventctl %s\n\n", version.String())
	fmt.Fprintln(os.Stderr, "usage: eventctl [-config file] [-json] <list|critical|get|create|watch|login|settings> [flags]")
	flag.PrintDefaults()
}

func newApp(configPath, envPath string, asJSON bool, out io.Writer) (*app, error) {
	if err := config.LoadDotEnv(envPath); err != nil {
		return nil, fmt.Errorf("load %s: %w", envPath, err)
	}

	cfg, err := config.LoadAndValidate(configPath)
	if err != nil {
		return nil, err
	}

	// Logs go to stderr so command output stays pipeable.
	logger, err := logging.New(cfg.Logging, os.Stderr)
	if err != nil {
		return nil, err
	}

	store := settings.NewFileStore(cfg.Settings.Path)
	prefs, err := store.Load()
	if err != nil {
		logger.Warn("settings unreadable, using defaults", "error", err)
	}

	creds, err := auth.LoadCredentials(cfg.API.Token, cfg.API.TokenPath)
	if err != nil && !errors.Is(err, auth.ErrNoToken) {
		return nil, err
	}

	return &app{
		cfg:    cfg,
		store:  store,
		prefs:  prefs,
		creds:  creds,
		logger: logger,
		out:    out,
		json:   asJSON,
	}, nil
}

func (a *app) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "list":
		return a.list(ctx, args)
	case "critical":
		return a.critical(ctx, args)
	case "get":
		return a.get(ctx, args)
	case "create":
		return a.create(ctx, args)
	case "watch":
		return a.watch(ctx, args)
	case "login":
		return a.login(ctx, args)
	case "settings":
		return a.settings(args)
	case "version":
		fmt.Fprintln(a.out, version.String())
		return nil
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", cmd)
		usage()
		return errUsage
	}
}

func (a *app) client() *api.Client {
	return api.NewClient(a.cfg.ResolveBaseURL(a.prefs.BackendURL), a.creds,
		api.WithLogger(a.logger),
		api.WithTimeout(a.cfg.API.Timeout),
		api.WithRetries(a.cfg.API.MaxRetries, time.Second),
	)
}
