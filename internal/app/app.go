// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/page-loader/internal/config"
	collyfetcher "github.com/JakeFAU/page-loader/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/page-loader/internal/fetcher/headless"
	"github.com/JakeFAU/page-loader/internal/headless/detector"
	"github.com/JakeFAU/page-loader/internal/loader"
	"github.com/JakeFAU/page-loader/internal/metrics"
	"github.com/JakeFAU/page-loader/internal/policy/ratelimit"
	"github.com/JakeFAU/page-loader/internal/progress"
	"github.com/JakeFAU/page-loader/internal/progress/sinks"
	"github.com/JakeFAU/page-loader/internal/telemetry"
)

// progressFlushTimeout bounds how long Close waits for pending progress events.
const progressFlushTimeout = 2 * time.Second

// Resource fetches are unbounded by default, so a page with many assets
// can outpace the sinks. Emitters wait briefly rather than lose events.
const (
	hubBufferSize   = 1024
	hubBlockTimeout = time.Second
)

// App holds the services one page-loader run needs: the loader itself, the
// progress hub feeding the log and metrics sinks, and the optional headless
// renderer.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	metrics  *metrics.Metrics
	hub      *progress.Hub
	renderer *headlessfetcher.Renderer
	tracer   *sdktrace.TracerProvider
	loader   *loader.Loader
}

// RendererFactory starts a headless renderer. It is a variable so tests can
// run without a Chrome binary.
var RendererFactory = func(cfg headlessfetcher.Config) (*headlessfetcher.Renderer, error) {
	return headlessfetcher.NewChromedp(cfg)
}

// New wires every service from cfg. A renderer that fails to start is logged
// and skipped; the plain HTTP fetcher then serves the main document.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	m := metrics.New()
	promSink, err := sinks.NewPrometheusSink(m.Registerer())
	if err != nil {
		return nil, fmt.Errorf("register progress metrics: %w", err)
	}
	hub := progress.NewHub(progress.Config{
		BufferSize:   hubBufferSize,
		BlockTimeout: hubBlockTimeout,
		BaseContext:  ctx,
		Logger:       logger.Named("progress"),
	}, sinks.NewLogSink(logger.Named("progress")), promSink)

	a := &App{cfg: cfg, logger: logger, metrics: m, hub: hub}

	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:   cfg.HTTP.UserAgent,
		Timeout:     cfg.RequestTimeout(),
		MaxBodySize: cfg.HTTP.MaxBodyBytes,
	})

	deps := loader.Dependencies{
		Fetcher: fetcher,
		Limiter: ratelimit.New(ratelimit.Config{
			DefaultRPS:   cfg.Fetch.RatePerSecond,
			DefaultBurst: cfg.Fetch.Burst,
			Observer:     m,
		}),
		Observer: m,
		Emitter:  hub,
	}

	if cfg.Tracing.Enabled {
		tp, err := telemetry.NewTracerProvider(ctx, telemetry.ServiceName, telemetry.NewLogExporter(logger.Named("trace")))
		if err != nil {
			_ = hub.Close(context.Background())
			return nil, fmt.Errorf("init tracing: %w", err)
		}
		a.tracer = tp
		deps.Tracer = telemetry.Tracer(tp)
	}

	if cfg.Headless.Enabled {
		renderer, err := RendererFactory(headlessfetcher.Config{
			UserAgent:         cfg.HTTP.UserAgent,
			NavigationTimeout: cfg.NavigationTimeout(),
			ExecPath:          cfg.Headless.ExecPath,
		})
		if err != nil {
			logger.Warn("headless renderer init failed", zap.Error(err))
		} else {
			a.renderer = renderer
			deps.Renderer = renderer
			if cfg.Headless.Mode == config.HeadlessAuto {
				deps.Promoter = detector.NewHeuristic(cfg.Headless.PromotionThresh)
			}
		}
	}

	l, err := loader.New(loader.Config{Concurrency: cfg.Fetch.Concurrency}, deps, logger.Named("loader"))
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("build loader: %w", err)
	}
	a.loader = l
	return a, nil
}

// GetLogger returns the shared zap logger.
func (a *App) GetLogger() *zap.Logger {
	return a.logger
}

// GetMetrics exposes the run's metric registry.
func (a *App) GetMetrics() *metrics.Metrics {
	return a.metrics
}

// HasRenderer reports whether the headless renderer started.
func (a *App) HasRenderer() bool {
	return a.renderer != nil
}

// DownloadPage saves pageURL into outputDir.
func (a *App) DownloadPage(ctx context.Context, pageURL, outputDir string) (loader.Result, error) {
	return a.loader.DownloadPage(ctx, pageURL, outputDir)
}

// Close flushes progress events and spans, stops the renderer and writes the
// metrics textfile when one is configured.
func (a *App) Close() error {
	var errs []error

	ctx, cancel := context.WithTimeout(context.Background(), progressFlushTimeout)
	defer cancel()
	if err := a.hub.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close progress hub: %w", err))
	}

	a.closeRenderer()

	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracing: %w", err))
		}
	}

	if path := a.cfg.Metrics.Textfile; path != "" {
		if err := a.metrics.WriteTextfile(path); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *App) closeRenderer() {
	if a.renderer != nil {
		a.renderer.Close()
		a.renderer = nil
	}
}
