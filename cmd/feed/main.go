// Command feed keeps a live connection to the SafeLift event broadcaster,
// fans events out to the console, the Postgres archive and NATS, and serves
// health and Prometheus endpoints.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/safelift-feed/internal/api"
	"github.com/rickgao/safelift-feed/internal/auth"
	"github.com/rickgao/safelift-feed/internal/config"
	"github.com/rickgao/safelift-feed/internal/connection"
	"github.com/rickgao/safelift-feed/internal/database"
	"github.com/rickgao/safelift-feed/internal/dedup"
	"github.com/rickgao/safelift-feed/internal/dispatch"
	"github.com/rickgao/safelift-feed/internal/logging"
	"github.com/rickgao/safelift-feed/internal/metrics"
	"github.com/rickgao/safelift-feed/internal/model"
	"github.com/rickgao/safelift-feed/internal/poller"
	"github.com/rickgao/safelift-feed/internal/relay"
	"github.com/rickgao/safelift-feed/internal/settings"
	"github.com/rickgao/safelift-feed/internal/version"
	"github.com/rickgao/safelift-feed/internal/writer"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "path to YAML config (built-in defaults when empty)")
	envPath := flag.String("env", ".env", "dotenv file loaded before the config")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	if err := run(*configPath, *envPath); err != nil {
		slog.Error("feed exited", "error", err)
		os.Exit(1)
	}
}

func run(configPath, envPath string) error {
	if err := config.LoadDotEnv(envPath); err != nil {
		return fmt.Errorf("load %s: %w", envPath, err)
	}

	cfg, err := config.LoadAndValidate(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging, os.Stdout)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	logger.Info("starting feed",
		"version", version.Version,
		"commit", version.Commit,
		"config", configPath,
	)

	// Persisted settings
	store := settings.NewFileStore(cfg.Settings.Path)
	prefs, err := store.Load()
	if err != nil {
		logger.Warn("settings unreadable, using defaults", "path", store.Path(), "error", err)
	}

	creds, err := auth.LoadCredentials(cfg.API.Token, cfg.API.TokenPath)
	switch {
	case errors.Is(err, auth.ErrNoToken):
		logger.Info("no API token configured, connecting without credentials")
	case err != nil:
		return err
	}

	wsURL := cfg.ResolveWSURL(prefs.WSURL)
	baseURL := cfg.ResolveBaseURL(prefs.BackendURL)

	logger.Info("configuration loaded",
		"ws_url", wsURL,
		"api_url", baseURL,
		"auto_refresh", prefs.AutoRefresh,
		"severity_threshold", prefs.SeverityThreshold,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewPrometheus(reg, cfg.Metrics.Namespace)

	// Fan-out: dedup marker first, then sinks in subscription order.
	disp := dispatch.New(logger, dispatch.WithMetrics(collector))
	seen := dedup.New(cfg.Refresh.SeenLimit)
	disp.Subscribe(dispatch.ListenerFunc(func(e model.Event) error {
		seen.MarkSeen(e.ID)
		return nil
	}))
	disp.Subscribe(newNotifier(os.Stdout, prefs))

	var archive *writer.EventWriter
	if cfg.Archive.Enabled {
		db := cfg.Archive.Database
		logger.Info("connecting to archive database",
			"host", db.Host,
			"port", db.Port,
			"database", db.Name,
		)

		pool, err := database.Open(ctx, db)
		if err != nil {
			return fmt.Errorf("archive: %w", err)
		}
		defer pool.Close()

		archive = writer.NewEventWriter(writer.Config{
			BatchSize:     cfg.Archive.BatchSize,
			FlushInterval: cfg.Archive.FlushInterval,
			BufferSize:    cfg.Archive.BufferSize,
		}, pool, logger, writer.WithMetrics(collector))
		if err := archive.Start(ctx); err != nil {
			return fmt.Errorf("archive: %w", err)
		}
		disp.Subscribe(archive)
	}

	if cfg.Relay.Enabled {
		pub, err := relay.Connect(relay.Config{
			URL:           cfg.Relay.URL,
			SubjectPrefix: cfg.Relay.SubjectPrefix,
			MinSeverity:   model.Severity(cfg.Relay.MinSeverity),
			Name:          version.Name,
		}, logger, relay.WithMetrics(collector))
		if err != nil {
			return fmt.Errorf("relay: %w", err)
		}
		defer pub.Close()
		disp.Subscribe(pub)
		logger.Info("relaying events to nats",
			"url", cfg.Relay.URL,
			"subject", pub.Subject(">"),
		)
	}

	// Connection manager
	header := creds.Header()
	header.Set("User-Agent", version.UserAgent())

	mgr := connection.NewManager(connection.ManagerConfig{
		URL:                  wsURL,
		Header:               header,
		HeartbeatInterval:    cfg.Connection.HeartbeatInterval,
		LivenessTimeout:      *cfg.Connection.LivenessTimeout,
		ReconnectDelay:       cfg.Connection.ReconnectDelay,
		MaxReconnectAttempts: cfg.Connection.MaxReconnectAttempts,
		HandshakeTimeout:     cfg.Connection.HandshakeTimeout,
		WriteTimeout:         cfg.Connection.WriteTimeout,
		BufferSize:           cfg.Connection.BufferSize,
	}, logger, connection.WithDispatcher(disp), connection.WithMetrics(collector))

	g, gctx := errgroup.WithContext(ctx)

	// Health and metrics server
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler:           newHealthHandler(mgr, archive, reg, cfg.Metrics.Path),
		ReadHeaderTimeout: 5 * time.Second,
	}
	g.Go(func() error {
		logger.Info("starting health server", "port", cfg.Metrics.Port)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	// Auto refresh
	if prefs.AutoRefresh {
		client := api.NewClient(baseURL, creds,
			api.WithLogger(logger),
			api.WithTimeout(cfg.API.Timeout),
			api.WithRetries(cfg.API.MaxRetries, time.Second),
		)
		refresher := poller.New(poller.Config{
			Interval: prefs.RefreshPeriod(),
			PageSize: cfg.Refresh.PageSize,
			Timeout:  cfg.Refresh.Timeout,
		}, client, seen, poller.BatchHandlerFunc(func(events []model.Event) error {
			for _, e := range events {
				disp.Dispatch(e)
			}
			return nil
		}), logger, poller.WithMetrics(collector))

		if err := refresher.Start(gctx); err != nil {
			return err
		}
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return refresher.Stop(shutdownCtx)
		})
	}

	mgr.Connect()
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return mgr.Shutdown(shutdownCtx)
	})

	logger.Info("feed running",
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Metrics.Port),
	)

	err = g.Wait()

	logger.Info("shutting down...")
	if archive != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		archive.Stop(shutdownCtx)
	}

	logger.Info("feed stopped")
	return err
}
