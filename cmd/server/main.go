package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/TimurManjosov/decider/internal/api"
	"github.com/TimurManjosov/decider/internal/auth"
	"github.com/TimurManjosov/decider/internal/config"
	"github.com/TimurManjosov/decider/internal/decider"
	"github.com/TimurManjosov/decider/internal/logging"
	"github.com/TimurManjosov/decider/internal/store"
	"github.com/TimurManjosov/decider/internal/telemetry"
	"github.com/TimurManjosov/decider/internal/tracing"
	"github.com/TimurManjosov/decider/internal/watch"
	"github.com/TimurManjosov/decider/internal/webhook"
)

const (
	httpReadHeaderTimeout = 5 * time.Second
	httpReadTimeout       = 10 * time.Second
	httpIdleTimeout       = 60 * time.Second
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "decider: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log := logging.New(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := tracing.Init(ctx, tracing.Options{
		Endpoint:    cfg.OTLPEndpoint,
		SampleRatio: cfg.TracingSampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(ctx); err != nil {
			log.Error().Err(err).Msg("tracer shutdown error")
		}
	}()

	src, err := store.NewSource(ctx, cfg.ConfigSource)
	if err != nil {
		return fmt.Errorf("config source: %w", err)
	}

	m := telemetry.New()
	if pg, ok := src.(*store.PostgresSource); ok {
		m.RegisterPool(pg.Pool())
	}

	d, err := decider.New(ctx, decider.Options{
		DecisionMakers: cfg.DecisionMakers,
		Source:         src,
		HashVersion:    cfg.HashVersion,
		Logger:         log,
		Observer:       m,
	})
	if err != nil {
		_ = src.Close()
		return err
	}
	defer d.Close()
	m.ObserveGeneration(d.Generation())

	apiServer := api.NewServer(d, api.Options{
		Logger:         log,
		Auth:           auth.NewAuthenticator(cfg.AdminAPIKey, cfg.AdminAPIKeyHash),
		Metrics:        m,
		RateLimitPerIP: cfg.RateLimitPerIP,
	})

	baseContext := func(net.Listener) context.Context { return ctx }
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           apiServer.Router(),
		ReadHeaderTimeout: httpReadHeaderTimeout,
		ReadTimeout:       httpReadTimeout,
		IdleTimeout:       httpIdleTimeout,
		BaseContext:       baseContext, // ends event streams on shutdown
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", m.Handler())
	metricsServer := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           metricsMux,
		ReadHeaderTimeout: httpReadHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return serve(log, "api", httpServer) })
	g.Go(func() error { return serve(log, "metrics", metricsServer) })

	hooks := newDispatcher(cfg, m, log)
	if hooks != nil {
		hooks.Start()
		defer hooks.Close()
	}

	g.Go(func() error {
		updates, unsubscribe := d.Subscribe()
		defer unsubscribe()
		prev := d.Generation()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-updates:
				next := d.Generation()
				m.ObserveGeneration(next)
				if hooks != nil && next.ETag != prev.ETag {
					hooks.Dispatch(webhook.NewGenerationEvent(prev, next, time.Now()))
				}
				prev = next
			}
		}
	})

	if w := newWatcher(cfg, src, d, log); w != nil {
		g.Go(func() error { return w.Run(gctx) })
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("server shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return errors.Join(
			shutdown(shutdownCtx, "api", httpServer),
			shutdown(shutdownCtx, "metrics", metricsServer),
		)
	})

	log.Info().
		Str("http_addr", cfg.HTTPAddr).
		Str("metrics_addr", cfg.MetricsAddr).
		Str("env", cfg.AppEnv).
		Msg("server started")

	err = g.Wait()
	log.Info().Msg("stopped")
	return err
}

// newWatcher picks the reload trigger for src: fsnotify for files when
// WATCH_CONFIG is set, otherwise polling every RELOAD_INTERVAL. Memory
// sources are never reloaded.
func newWatcher(cfg *config.Config, src store.Source, d *decider.Decider, log zerolog.Logger) *watch.Watcher {
	opts := watch.Options{Logger: log.With().Str("component", "watch").Logger()}
	switch s := src.(type) {
	case *store.MemorySource:
		return nil
	case *store.FileSource:
		if cfg.WatchConfig {
			opts.Path = s.Path()
		} else {
			opts.Interval = cfg.ReloadInterval
		}
	default:
		opts.Interval = cfg.ReloadInterval
	}
	if opts.Path == "" && opts.Interval <= 0 {
		return nil
	}
	return watch.New(d, opts)
}

// newDispatcher returns nil when no webhook endpoint is configured.
func newDispatcher(cfg *config.Config, m *telemetry.Metrics, log zerolog.Logger) *webhook.Dispatcher {
	if len(cfg.WebhookURLs) == 0 {
		return nil
	}
	retries := cfg.WebhookMaxRetries
	if retries == 0 {
		retries = -1
	}
	return webhook.NewDispatcher(webhook.Options{
		URLs:       cfg.WebhookURLs,
		Secret:     cfg.WebhookSecret,
		MaxRetries: retries,
		Timeout:    cfg.WebhookTimeout,
		Logger:     log.With().Str("component", "webhook").Logger(),
		OnDelivery: m.ObserveWebhook,
	})
}

func serve(log zerolog.Logger, name string, srv *http.Server) error {
	log.Info().Str("server", name).Str("addr", srv.Addr).Msg("listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve %s: %w", name, err)
	}
	return nil
}

func shutdown(ctx context.Context, name string, srv *http.Server) error {
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("shutdown %s: %w", name, err)
	}
	return nil
}
