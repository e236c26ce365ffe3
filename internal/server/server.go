// Package server builds the application graph and runs the HTTP service.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/causas-crawler/internal/api"
	"github.com/JakeFAU/causas-crawler/internal/archive"
	"github.com/JakeFAU/causas-crawler/internal/config"
	"github.com/JakeFAU/causas-crawler/internal/crawler"
	"github.com/JakeFAU/causas-crawler/internal/handler"
	"github.com/JakeFAU/causas-crawler/internal/judicial"
	"github.com/JakeFAU/causas-crawler/internal/metrics"
	"github.com/JakeFAU/causas-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/causas-crawler/internal/progress"
	progresssinks "github.com/JakeFAU/causas-crawler/internal/progress/sinks"
	"github.com/JakeFAU/causas-crawler/internal/publisher"
	memorypublisher "github.com/JakeFAU/causas-crawler/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/causas-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/causas-crawler/internal/runs"
	gcsstorage "github.com/JakeFAU/causas-crawler/internal/storage/gcs"
	localstorage "github.com/JakeFAU/causas-crawler/internal/storage/local"
	memorystorage "github.com/JakeFAU/causas-crawler/internal/storage/memory"
	pgstore "github.com/JakeFAU/causas-crawler/internal/storage/postgres"
	"github.com/JakeFAU/causas-crawler/internal/store"
)

// Option customizes Build.
type Option func(*buildOptions)

type buildOptions struct {
	registerer prometheus.Registerer
	transport  func() http.RoundTripper
}

// WithRegisterer registers the progress collectors on reg instead of the
// default registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *buildOptions) {
		o.registerer = reg
	}
}

// WithUpstreamTransport overrides the round tripper used for judicial sessions.
func WithUpstreamTransport(newTransport func() http.RoundTripper) Option {
	return func(o *buildOptions) {
		o.transport = newTransport
	}
}

// App contains the application's dependencies.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	store       *store.Store
	crawler     *crawler.Crawler
	handler     *handler.Handler
	runs        runs.Repository
	apiServer   *api.Server
	progressHub *progress.Hub
	publisher   publisher.Publisher
	pubsub      *gcppublisher.Publisher
	gcs         *gcsstorage.BlobStore
	ledger      *pgstore.RunStore
}

// Build creates the application's dependencies. On failure everything opened
// so far is closed again.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (app *App, err error) {
	o := buildOptions{registerer: prometheus.DefaultRegisterer}
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()

	app = &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = app.Close(context.Background())
			app = nil
		}
	}()

	app.logger.Info("building application dependencies",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("store_driver", store.DriverFor(cfg.Database.DSN)),
		zap.String("archive_backend", cfg.Archive.Backend),
	)

	if err = app.setupStore(ctx); err != nil {
		return app, err
	}
	recorder, err := app.setupArchive(ctx)
	if err != nil {
		return app, err
	}
	if err = app.setupPublisher(ctx); err != nil {
		return app, err
	}
	if err = app.setupRuns(ctx); err != nil {
		return app, err
	}
	if err = app.setupProgress(o.registerer); err != nil {
		return app, err
	}

	clientOpts := []judicial.Option{}
	if recorder != nil {
		clientOpts = append(clientOpts, judicial.WithRecorder(recorder))
	}
	if cfg.Upstream.RateLimitRPS > 0 {
		clientOpts = append(clientOpts, judicial.WithLimiter(ratelimit.New(ratelimit.Config{
			RPS:   cfg.Upstream.RateLimitRPS,
			Burst: cfg.Upstream.RateLimitBurst,
		})))
		app.logger.Info("upstream rate limit enabled",
			zap.Float64("rps", cfg.Upstream.RateLimitRPS),
			zap.Int("burst", cfg.Upstream.RateLimitBurst),
		)
	}
	if o.transport != nil {
		clientOpts = append(clientOpts, judicial.WithTransport(o.transport))
	}
	client := judicial.New(cfg.JudicialConfig(), logger, clientOpts...)

	app.crawler = crawler.New(cfg.CrawlerConfig(), crawler.ClientSessions(client), logger)
	handlerOpts := []handler.Option{handler.WithPublisher(app.publisher)}
	if app.progressHub != nil {
		handlerOpts = append(handlerOpts, handler.WithProgress(app.progressHub))
	}
	app.handler = handler.New(app.crawler, app.store, cfg.HandlerConfig(), logger, handlerOpts...)
	app.apiServer = api.NewServer(app.handler, app.store, app.runs, cfg, logger)
	return app, nil
}

func (a *App) setupStore(ctx context.Context) error {
	s, err := store.Open(ctx, a.cfg.StoreConfig(), store.WithLogger(a.logger))
	if err != nil {
		return fmt.Errorf("store init failed: %w", err)
	}
	a.store = s
	if a.cfg.Database.AutoMigrate {
		if err := s.Migrate(ctx); err != nil {
			return fmt.Errorf("store migration failed: %w", err)
		}
	}
	return nil
}

func (a *App) setupArchive(ctx context.Context) (*archive.Recorder, error) {
	var blobs archive.BlobStore
	switch a.cfg.Archive.Backend {
	case config.ArchiveGCS:
		gcs, err := gcsstorage.Open(ctx, gcsstorage.Config{Bucket: a.cfg.Archive.Bucket}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("gcs archive init failed: %w", err)
		}
		a.gcs = gcs
		blobs = gcs
		a.logger.Info("archiving payloads to GCS", zap.String("bucket", a.cfg.Archive.Bucket))
	case config.ArchiveLocal:
		local, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Archive.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local archive init failed: %w", err)
		}
		blobs = local
		a.logger.Info("archiving payloads locally", zap.String("path", a.cfg.Archive.BaseDir))
	case config.ArchiveMemory:
		blobs = memorystorage.NewBlobStore()
		a.logger.Info("archiving payloads in memory")
	default:
		a.logger.Info("payload archive disabled")
		return nil, nil
	}
	return archive.NewRecorder(blobs, a.cfg.Archive.Prefix, a.logger), nil
}

func (a *App) setupPublisher(ctx context.Context) error {
	if a.cfg.PubSub.TopicName == "" || a.cfg.PubSub.ProjectID == "" {
		a.logger.Warn("no Pub/Sub topic configured, using in-memory publisher")
		a.publisher = memorypublisher.New()
		return nil
	}
	pub, err := gcppublisher.Open(ctx, gcppublisher.Config{
		ProjectID: a.cfg.PubSub.ProjectID,
		Topic:     a.cfg.PubSub.TopicName,
	}, a.logger)
	if err != nil {
		return fmt.Errorf("pubsub init failed: %w", err)
	}
	a.pubsub = pub
	a.publisher = pub
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return nil
}

func (a *App) setupRuns(ctx context.Context) error {
	if a.cfg.Database.LedgerDSN == "" {
		a.logger.Info("no ledger DSN configured, keeping runs in memory")
		a.runs = memorystorage.NewRunStore()
		return nil
	}
	ledger, err := pgstore.NewRunStore(ctx, pgstore.Config{
		DSN:             a.cfg.Database.LedgerDSN,
		MaxConns:        int32(a.cfg.Database.MaxOpenConns), //nolint:gosec // bounded by config validation
		MaxConnLifetime: a.cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return fmt.Errorf("ledger init failed: %w", err)
	}
	a.ledger = ledger
	a.runs = ledger
	return nil
}

func (a *App) setupProgress(reg prometheus.Registerer) error {
	sinkList := []progress.Sink{progresssinks.NewLedgerSink(a.runs, a.logger.Named("progress_ledger"))}
	if a.cfg.Progress.LogEvents {
		sinkList = append(sinkList, progresssinks.NewLogSink(a.logger.Named("progress_log")))
	}
	promSink, err := progresssinks.NewPrometheusSink(reg)
	if err != nil {
		return fmt.Errorf("progress prometheus sink init failed: %w", err)
	}
	sinkList = append(sinkList, promSink)

	hubCfg := a.cfg.HubConfig()
	hubCfg.Logger = a.logger.Named("progress_hub")
	a.progressHub = progress.NewHub(hubCfg, sinkList...)
	a.logger.Info("progress hub initialized",
		zap.Int("sinks", len(sinkList)),
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Duration("flush_interval", hubCfg.FlushInterval),
	)
	return nil
}

// Store exposes the relational store.
func (a *App) Store() *store.Store {
	return a.store
}

// Handler exposes the crawl-and-persist handler.
func (a *App) Handler() *handler.Handler {
	return a.handler
}

// Crawler exposes the upstream crawler.
func (a *App) Crawler() *crawler.Crawler {
	return a.crawler
}

// Runs exposes the run ledger.
func (a *App) Runs() runs.Repository {
	return a.runs
}

// HTTPHandler returns the API router.
func (a *App) HTTPHandler() http.Handler {
	return a.apiServer.Handler()
}

// Run serves HTTP and blocks until ctx is canceled or a signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	default:
	}
	return nil
}

// Close releases everything Build opened. The progress hub is drained before
// the ledger it writes to is closed.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.progressHub != nil {
		if err := a.progressHub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
			errs = append(errs, err)
		}
	}
	if a.pubsub != nil {
		if err := a.pubsub.Close(); err != nil {
			a.logger.Warn("pubsub close failed", zap.Error(err))
			errs = append(errs, err)
		}
	}
	if a.gcs != nil {
		if err := a.gcs.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
			errs = append(errs, err)
		}
	}
	if a.ledger != nil {
		a.ledger.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("store close failed", zap.Error(err))
			errs = append(errs, err)
		}
	}
	a.logger.Info("shutdown complete")
	return errors.Join(errs...)
}
