package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"campkit/analytics"
	"campkit/api/httpapi"
	"campkit/availability"
	"campkit/config"
	"campkit/engine"
	"campkit/enrollment"
	"campkit/gamify"
	"campkit/integrations/webhook"
	"campkit/realtime"
)

// App aggregates the assembled server components.
type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	Hub           *realtime.Hub
	Stores        *Stores
	Service       *engine.ProgressService
	Manager       *enrollment.Manager
	Retrier       *enrollment.ProofRetrier
	Hooks         *Hooks
	Handler       http.Handler
	Server        *http.Server
	MetricsServer *MetricsServer
}

// Hooks are the event consumers outside the request path.
type Hooks struct {
	Stats   *analytics.Engagement
	Metrics *analytics.Metrics
	Webhook *webhook.Sink
}

// MetricsServer serves Prometheus metrics on its own address. Server is nil
// when metrics are disabled.
type MetricsServer struct {
	Server *http.Server
}

func provideConfig(ctx context.Context) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if cfg.Environment == config.EnvProduction || cfg.Environment == config.EnvStaging {
		if err := cfg.LoadSecretsFromEnv(ctx); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func provideLogger(cfg *config.Config) *slog.Logger {
	return setupLogging(cfg)
}

func provideHub() *realtime.Hub {
	return realtime.NewHub()
}

func provideStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Stores, func(), error) {
	return setupStores(ctx, cfg, logger)
}

func provideBlobs(ctx context.Context, cfg *config.Config) (enrollment.BlobStore, func(), error) {
	return setupBlobs(ctx, cfg)
}

func provideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

func provideHooks(cfg *config.Config, logger *slog.Logger, reg *prometheus.Registry) (*Hooks, func(), error) {
	h := &Hooks{Stats: analytics.NewEngagement()}
	if cfg.Metrics.Enabled {
		m, err := analytics.NewMetrics(cfg.Metrics.Namespace, reg)
		if err != nil {
			return nil, nil, err
		}
		h.Metrics = m
	}
	if len(cfg.Integrations.WebhookURLs) > 0 {
		h.Webhook = webhook.New(cfg.Integrations.WebhookURLs,
			webhook.WithSecret(cfg.Integrations.WebhookSecret),
			webhook.WithRetry(0, cfg.Integrations.WebhookRetries),
			webhook.WithQueueSize(cfg.Integrations.WebhookQueueSize),
			webhook.WithClient(&http.Client{Timeout: cfg.Integrations.WebhookTimeout}),
			webhook.WithLogger(logger),
		)
	}
	cleanup := func() {
		if h.Webhook != nil {
			h.Webhook.Close()
		}
	}
	return h, cleanup, nil
}

func (h *Hooks) list() []analytics.Hook {
	out := []analytics.Hook{h.Stats}
	if h.Metrics != nil {
		out = append(out, h.Metrics)
	}
	if h.Webhook != nil {
		out = append(out, h.Webhook)
	}
	return out
}

func provideService(logger *slog.Logger, hub *realtime.Hub, stores *Stores, hooks *Hooks) (*engine.ProgressService, func()) {
	svc := gamify.New(
		gamify.WithStore(stores.Progress),
		gamify.WithRanker(stores.Ranker),
		gamify.WithRealtime(hub),
		gamify.WithHooks(hooks.list()...),
		gamify.WithDispatchMode(engine.DispatchAsync),
		gamify.WithLogger(logger),
	)
	return svc, svc.Close
}

func provideRetrier(cfg *config.Config, logger *slog.Logger, stores *Stores, blobs enrollment.BlobStore, svc *engine.ProgressService) (*enrollment.ProofRetrier, func()) {
	r := enrollment.NewProofRetrier(stores.Enrollments, blobs, svc, logger, enrollment.RetrierConfig{
		BaseDelay:  cfg.Enrollment.ProofRetryBaseDelay,
		MaxDelay:   cfg.Enrollment.ProofRetryMaxDelay,
		MaxRetries: cfg.Enrollment.ProofRetryAttempts,
		Timeout:    cfg.Enrollment.UploadTimeout,
	})
	return r, r.Close
}

func provideManager(cfg *config.Config, logger *slog.Logger, stores *Stores, blobs enrollment.BlobStore, svc *engine.ProgressService) *enrollment.Manager {
	return enrollment.NewManager(stores.Enrollments, blobs,
		enrollment.WithTripCompleter(svc),
		enrollment.WithPublisher(svc),
		enrollment.WithManagerLogger(logger),
		enrollment.WithUploadTimeout(cfg.Enrollment.UploadTimeout),
	)
}

func provideHandler(cfg *config.Config, logger *slog.Logger, hub *realtime.Hub, stores *Stores, blobs enrollment.BlobStore,
	svc *engine.ProgressService, manager *enrollment.Manager, retrier *enrollment.ProofRetrier, hooks *Hooks) http.Handler {
	cache := availability.NewCache(stores.Enrollments, availability.Config{
		Size: cfg.Enrollment.AvailabilityCacheSize,
		TTL:  cfg.Enrollment.AvailabilityCacheTTL,
	})
	return httpapi.NewRouter(httpapi.Deps{
		Progress: svc,
		Enrollment: enrollment.Deps{
			Repo:         stores.Enrollments,
			Availability: cache,
			Blobs:        blobs,
			Events:       svc,
			Proofs:       retrier,
			Logger:       logger,
			Timeouts: enrollment.Timeouts{
				Availability: cfg.Enrollment.AvailabilityTimeout,
				Commit:       cfg.Enrollment.CommitTimeout,
				Upload:       cfg.Enrollment.UploadTimeout,
			},
		},
		Manager: manager,
		Hub:     hub,
		Stats:   hooks.Stats,
		Logger:  logger,
	}, httpapi.Options{
		PathPrefix:       cfg.Server.PathPrefix,
		AllowCORSOrigin:  cfg.Server.CORSOrigin,
		APIKeys:          cfg.Security.APIKeys,
		RateLimitEnabled: cfg.Security.EnableRateLimit,
		RateLimitRPM:     cfg.Security.RateLimit.RequestsPerMinute,
		RateLimitBurst:   cfg.Security.RateLimit.BurstSize,
		RateLimitTTL:     cfg.Security.RateLimit.CleanupInterval,
		RequestTimeout:   cfg.Server.WriteTimeout,
		MaxProofBytes:    cfg.Blob.MaxProofBytes,
		WizardTTL:        cfg.Enrollment.WizardSessionTTL,
		WizardLimit:      cfg.Enrollment.WizardSessionLimit,
		LeaderboardMax:   cfg.Server.LeaderboardSize,
	})
}

func provideServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           handler,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}
}

func provideMetricsServer(cfg *config.Config, reg *prometheus.Registry) *MetricsServer {
	if !cfg.Metrics.Enabled {
		return &MetricsServer{}
	}
	mux := http.NewServeMux()
	mux.Handle(cfg.Metrics.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	return &MetricsServer{Server: &http.Server{
		Addr:              cfg.Metrics.Address,
		Handler:           mux,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}}
}

// setupLogging configures the logger based on configuration.
func setupLogging(cfg *config.Config) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Logging.Level),
	}

	var out io.Writer = os.Stdout
	if cfg.Logging.Output == "stderr" {
		out = os.Stderr
	}

	switch cfg.Logging.Format {
	case "text":
		handler = slog.NewTextHandler(out, opts)
	default:
		handler = slog.NewJSONHandler(out, opts)
	}

	attrs := convertAttributes(cfg.Logging.Attributes)
	attrs = append(attrs, slog.String("service", "campkit"), slog.String("environment", string(cfg.Environment)))
	handler = handler.WithAttrs(attrs)

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// convertAttributes converts map[string]string to []slog.Attr.
func convertAttributes(attrs map[string]string) []slog.Attr {
	var result []slog.Attr
	for k, v := range attrs {
		result = append(result, slog.String(k, v))
	}
	return result
}

var _ analytics.Hook = (*webhook.Sink)(nil)

var _ enrollment.Publisher = (*engine.ProgressService)(nil)
