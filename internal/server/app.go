// Package server builds the application's dependency graph from config and runs
// the HTTP server until shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JakeFAU/tripsync/internal/api"
	"github.com/JakeFAU/tripsync/internal/archive"
	"github.com/JakeFAU/tripsync/internal/audit"
	"github.com/JakeFAU/tripsync/internal/clock/system"
	"github.com/JakeFAU/tripsync/internal/config"
	"github.com/JakeFAU/tripsync/internal/consult"
	"github.com/JakeFAU/tripsync/internal/crawl"
	"github.com/JakeFAU/tripsync/internal/extract"
	collyfetcher "github.com/JakeFAU/tripsync/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/tripsync/internal/fetcher/headless"
	"github.com/JakeFAU/tripsync/internal/fetcher/managed"
	"github.com/JakeFAU/tripsync/internal/hash/sha256"
	"github.com/JakeFAU/tripsync/internal/headless/detector"
	"github.com/JakeFAU/tripsync/internal/id/uuid"
	memoryledger "github.com/JakeFAU/tripsync/internal/ledger/memory"
	"github.com/JakeFAU/tripsync/internal/ledger/sheets"
	"github.com/JakeFAU/tripsync/internal/llm"
	"github.com/JakeFAU/tripsync/internal/logging"
	"github.com/JakeFAU/tripsync/internal/metrics"
	"github.com/JakeFAU/tripsync/internal/policy/ratelimit"
	"github.com/JakeFAU/tripsync/internal/rates"
	"github.com/JakeFAU/tripsync/internal/service"
	gcsstorage "github.com/JakeFAU/tripsync/internal/storage/gcs"
	memorystorage "github.com/JakeFAU/tripsync/internal/storage/memory"
	"github.com/JakeFAU/tripsync/internal/store/memory"
	"github.com/JakeFAU/tripsync/internal/store/postgres"
	redisstore "github.com/JakeFAU/tripsync/internal/store/redis"
	"github.com/JakeFAU/tripsync/internal/trip"
)

// App contains the application's dependencies.
type App struct {
	cfg       *config.Config
	logger    *zap.Logger
	clock     trip.Clock
	svc       *service.Service
	apiServer *api.Server

	audit   *audit.Hub
	browser *headlessfetcher.Fetcher
	gemini  *llm.GeminiClient
	redis   *goredis.Client
	pg      *postgres.Store
	storage *storage.Client

	closeOnce sync.Once
}

// NewApp creates a new App with the given configuration.
func NewApp(cfg *config.Config, logger *zap.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	type sanitizedConfig struct {
		ServerPort    int    `json:"server_port"`
		StoreBackend  string `json:"store_backend"`
		LedgerBackend string `json:"ledger_backend"`
		Constrained   bool   `json:"constrained"`
	}
	logger.Info("creating application", zap.Any("config", sanitizedConfig{
		ServerPort:    cfg.Server.Port,
		StoreBackend:  cfg.Store.Backend,
		LedgerBackend: cfg.Ledger.Backend,
		Constrained:   cfg.Crawl.Constrained,
	}))
	return &App{cfg: cfg, logger: logger, clock: system.New()}, nil
}

// Service exposes the pipeline for in-process callers such as the CLI.
func (a *App) Service() *service.Service {
	return a.svc
}

// Handler returns the HTTP handler.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run starts the HTTP server and blocks until the context is canceled or a
// termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
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
	return nil
}

// Close releases clients held by the App. It is safe to call more than once.
func (a *App) Close() error {
	a.closeOnce.Do(a.close)
	return nil
}

func (a *App) close() {
	if a.audit != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.audit.Close(ctx); err != nil {
			a.logger.Warn("audit hub close failed", zap.Error(err))
		}
		cancel()
	}
	if a.browser != nil {
		a.browser.Close()
	}
	if a.gemini != nil {
		if err := a.gemini.Close(); err != nil {
			a.logger.Warn("gemini client close failed", zap.Error(err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("redis client close failed", zap.Error(err))
		}
	}
	if a.pg != nil {
		a.pg.Close()
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
	a.logger.Info("shutdown complete")
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	metrics.Init()

	app, err := NewApp(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("app init failed: %w", err)
	}
	if err := app.wire(ctx); err != nil {
		_ = app.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) wire(ctx context.Context) error {
	fetcher, err := setupFetcher(ctx, a)
	if err != nil {
		return err
	}
	analyzerOpts := []extract.Option{
		extract.WithFetchBudget(a.cfg.Crawl.Budget),
		extract.WithLogger(a.logger),
	}
	summarizer, err := setupSummarizer(ctx, a)
	if err != nil {
		return err
	}
	if summarizer != nil {
		analyzerOpts = append(analyzerOpts, extract.WithSummarizer(summarizer))
	}
	if a.cfg.AI.MaxSummaryRunes > 0 {
		analyzerOpts = append(analyzerOpts, extract.WithMaxSummaryRunes(a.cfg.AI.MaxSummaryRunes))
	}

	docs, err := setupDocuments(ctx, a)
	if err != nil {
		return err
	}
	synchronizer, err := setupSynchronizer(ctx, a)
	if err != nil {
		return err
	}
	rateCache := rates.NewCache(
		rates.NewHTTPProvider(a.cfg.Rates.Endpoint, a.cfg.Rates.Timeout),
		a.clock,
		rates.WithTTL(a.cfg.Rates.TTL),
		rates.WithLogger(a.logger),
	)

	a.svc = service.New(service.Deps{
		Analyzer:     extract.NewAnalyzer(fetcher, analyzerOpts...),
		Documents:    docs,
		Synchronizer: synchronizer,
		Rates:        rateCache,
		IDs:          uuid.New(),
		Clock:        a.clock,
		Logger:       a.logger,
	})
	a.apiServer = api.NewServer(a.svc, *a.cfg, a.logger, api.WithReadiness(a.ready))
	return nil
}

func (a *App) ready(ctx context.Context) error {
	if a.redis != nil {
		if err := a.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	if a.pg != nil {
		if err := a.pg.Ping(ctx); err != nil {
			return err
		}
	}
	return nil
}

// newManagedGetter builds the transport for the rendering service. It has its
// own collector so calls are bounded by the render timeout, not the direct one.
func newManagedGetter(cfg *config.Config) *collyfetcher.Fetcher {
	return collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.Crawl.UserAgent,
		Timeout:   cfg.Crawl.RenderTimeout,
	})
}

func setupFetcher(ctx context.Context, app *App) (trip.PageFetcher, error) {
	cfg := app.cfg
	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.Crawl.RateLimitRPS,
		DefaultBurst: cfg.Crawl.RateLimitBurst,
	})
	direct := collyfetcher.New(collyfetcher.Config{
		UserAgent:     cfg.Crawl.UserAgent,
		RespectRobots: cfg.Crawl.RespectRobots,
		Timeout:       cfg.Crawl.DirectTimeout,
	},
		collyfetcher.WithLimiter(limiter),
		collyfetcher.WithShellDetector(detector.NewHeuristic(0)),
		collyfetcher.WithClock(app.clock),
	)
	steps := []crawl.Step{{Strategy: direct, Timeout: cfg.Crawl.DirectTimeout}}
	app.logger.Info("using colly direct fetcher", zap.String("user_agent", cfg.Crawl.UserAgent))

	if cfg.Headless.Enabled && !cfg.Crawl.Constrained {
		if headlessfetcher.BrowserAvailable(cfg.Headless.ExecPath) {
			browser, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
				MaxParallel:       cfg.Headless.MaxParallel,
				UserAgent:         cfg.Crawl.UserAgent,
				ExecPath:          cfg.Headless.ExecPath,
				NavigationTimeout: cfg.Crawl.RenderTimeout,
				SettleDelay:       cfg.Headless.SettleDelay,
			})
			if err != nil {
				app.logger.Warn("headless fetcher init failed", zap.Error(err))
			} else {
				app.browser = browser
				steps = append(steps, crawl.Step{Strategy: browser, Timeout: cfg.Crawl.RenderTimeout})
				app.logger.Info("using headless fetcher", zap.Int("max_parallel", cfg.Headless.MaxParallel))
			}
		} else {
			app.logger.Warn("headless enabled but no browser binary found")
		}
	}

	client, err := managed.New(managed.Config{
		Endpoint:    cfg.Managed.Endpoint,
		APIKey:      cfg.Managed.APIKey,
		CountryCode: cfg.Managed.CountryCode,
		SettleDelay: cfg.Headless.SettleDelay,
	}, newManagedGetter(cfg))
	switch {
	case err == nil:
		steps = append(steps, crawl.Step{Strategy: client, Timeout: cfg.Crawl.RenderTimeout})
		app.logger.Info("using managed rendering service")
	case errors.Is(err, trip.ErrStrategyUnavailable):
		app.logger.Info("managed rendering service not configured")
	default:
		return nil, fmt.Errorf("managed renderer init failed: %w", err)
	}

	ordered := crawl.OrderStrategies(cfg.Crawl.Constrained, steps...)
	orchestrator := crawl.New(ordered,
		crawl.WithRetryPolicy(crawl.NewFixedRetryPolicy(cfg.Crawl.MaxRetries, cfg.Crawl.RetryBackoff)),
		crawl.WithDefaultBudget(cfg.Crawl.Budget),
		crawl.WithLogger(app.logger),
	)
	app.logger.Info("fetch strategies ordered", zap.Any("methods", orchestrator.Methods()))

	blobs, err := setupArchive(ctx, app)
	if err != nil {
		return nil, err
	}
	if blobs == nil {
		return orchestrator, nil
	}
	return archive.New(orchestrator, blobs, sha256.New(), cfg.Archive.Prefix, app.logger), nil
}

func setupArchive(ctx context.Context, app *App) (trip.BlobStore, error) {
	switch app.cfg.Archive.Backend {
	case config.BackendGCS:
		client, err := gcsstorage.NewClient(ctx, app.cfg.Archive.Bucket)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		app.storage = client
		blobs, err := gcsstorage.New(client, gcsstorage.Config{Bucket: app.cfg.Archive.Bucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		app.logger.Info("archiving pages to GCS", zap.String("bucket", app.cfg.Archive.Bucket))
		return blobs, nil
	case config.BackendMemory:
		app.logger.Info("archiving pages in memory")
		return memorystorage.NewBlobStore(), nil
	default:
		return nil, nil
	}
}

func setupSummarizer(ctx context.Context, app *App) (trip.Summarizer, error) {
	if app.cfg.AI.APIKey == "" {
		app.logger.Info("AI summarizer disabled; extraction is deterministic only")
		return nil, nil
	}
	client, err := llm.NewGeminiClient(ctx, app.cfg.AI.APIKey, app.cfg.AI.Model)
	if err != nil {
		return nil, fmt.Errorf("gemini client init failed: %w", err)
	}
	app.gemini = client
	app.logger.Info("AI summarizer enabled", zap.String("model", app.cfg.AI.Model))
	return llm.NewSummarizer(client), nil
}

func setupDocuments(ctx context.Context, app *App) (trip.DocumentStore, error) {
	if app.cfg.Store.Backend != config.BackendRedis {
		app.logger.Info("using in-memory confirmation store")
		return memory.NewDocumentStore(app.clock), nil
	}
	rcfg := redisstore.Config{
		Address:  app.cfg.Store.RedisAddress,
		Password: app.cfg.Store.RedisPassword,
		DB:       app.cfg.Store.RedisDB,
		TTL:      app.cfg.Store.TTL,
	}
	client, err := redisstore.NewClient(ctx, rcfg)
	if err != nil {
		return nil, fmt.Errorf("redis client init failed: %w", err)
	}
	app.redis = client
	docs, err := redisstore.NewDocumentStore(client, rcfg, app.clock)
	if err != nil {
		return nil, fmt.Errorf("redis document store init failed: %w", err)
	}
	app.logger.Info("using redis confirmation store", zap.String("address", rcfg.Address))
	return docs, nil
}

func setupSynchronizer(ctx context.Context, app *App) (*consult.Synchronizer, error) {
	cfg := app.cfg
	opts := []consult.Option{
		consult.WithLogger(app.logger),
		consult.WithLedgerTimeout(cfg.Ledger.Timeout),
	}

	switch cfg.Ledger.Backend {
	case config.BackendSheets:
		ledger, err := sheets.New(ctx, sheets.Config{
			SpreadsheetID:   cfg.Ledger.SpreadsheetID,
			SheetName:       cfg.Ledger.SheetName,
			CredentialsFile: cfg.Ledger.CredentialsFile,
		})
		if err != nil {
			return nil, fmt.Errorf("sheets ledger init failed: %w", err)
		}
		opts = append(opts, consult.WithLedger(ledger))
		app.logger.Info("using spreadsheet ledger", zap.String("sheet", cfg.Ledger.SheetName))
	case config.BackendMemory:
		opts = append(opts, consult.WithLedger(memoryledger.New()))
		app.logger.Info("using in-memory ledger")
	default:
		app.logger.Warn("no ledger configured; sync operations will fail and cleanup stays local")
	}

	var (
		toggles trip.ToggleStore
		events  trip.EventLog
	)
	if cfg.Toggles.Backend == config.BackendPostgres {
		pg, err := postgres.New(ctx, postgres.Config{DSN: cfg.Toggles.DSN, MaxConns: cfg.Toggles.MaxConns})
		if err != nil {
			return nil, fmt.Errorf("postgres toggle store init failed: %w", err)
		}
		app.pg = pg
		toggles, events = pg, pg
		app.logger.Info("using postgres toggle store and event log")
	} else {
		toggles, events = memory.NewToggleStore(), memory.NewEventLog(0)
		app.logger.Info("using in-memory toggle store")
	}
	app.audit = audit.NewHub(audit.Config{Logger: app.logger},
		audit.NewStoreSink(events),
		audit.NewLogSink(app.logger.Named("sync_events")),
	)
	opts = append(opts, consult.WithEventLog(app.audit))

	return consult.New(memory.NewSessionStore(), toggles, app.clock, opts...), nil
}
