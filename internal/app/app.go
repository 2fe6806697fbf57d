package app

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"

	"github.com/lcalzada-xor/cyberiq/internal/adapters/attack"
	"github.com/lcalzada-xor/cyberiq/internal/adapters/llm"
	"github.com/lcalzada-xor/cyberiq/internal/adapters/reporting"
	"github.com/lcalzada-xor/cyberiq/internal/adapters/scores"
	"github.com/lcalzada-xor/cyberiq/internal/adapters/sources"
	"github.com/lcalzada-xor/cyberiq/internal/adapters/web/handlers"
	webserver "github.com/lcalzada-xor/cyberiq/internal/adapters/web/server"
	"github.com/lcalzada-xor/cyberiq/internal/adapters/web/websocket"
	"github.com/lcalzada-xor/cyberiq/internal/cache"
	"github.com/lcalzada-xor/cyberiq/internal/config"
	"github.com/lcalzada-xor/cyberiq/internal/core/domain"
	"github.com/lcalzada-xor/cyberiq/internal/core/ports"
	"github.com/lcalzada-xor/cyberiq/internal/core/services/aggregator"
	"github.com/lcalzada-xor/cyberiq/internal/core/services/enrichment"
	grpcserver "github.com/lcalzada-xor/cyberiq/internal/core/services/grpc"
	"github.com/lcalzada-xor/cyberiq/internal/core/services/intent"
	"github.com/lcalzada-xor/cyberiq/internal/core/services/presentation"
	"github.com/lcalzada-xor/cyberiq/internal/core/services/query"
	"github.com/lcalzada-xor/cyberiq/internal/core/services/warmup"
	"github.com/lcalzada-xor/cyberiq/internal/telemetry"
)

// Application holds the core components of the application.
// It acts as the Facade for the entire system, orchestrating services and infrastructure.
type Application struct {
	Config       *config.Config
	Adapters     []*sources.CachedAdapter
	Enrichment   *enrichment.Service
	Techniques   *attack.Catalog
	Aggregator   *aggregator.Service
	QueryService *query.Service
	Scheduler    *warmup.Scheduler
	WSManager    *websocket.WSManager
	Health       *grpcserver.HealthServer
	WebServer    *webserver.Server
	GrpcServer   *grpc.Server

	completer ports.Completer
}

// New creates a new Application instance and bootstraps its components.
func New(cfg *config.Config) (*Application, error) {
	app := &Application{
		Config: cfg,
	}

	if err := app.bootstrap(); err != nil {
		return nil, fmt.Errorf("application bootstrap failed: %w", err)
	}

	return app, nil
}

// bootstrap orchestrates the initialization sequence.
func (app *Application) bootstrap() error {
	// 1. Foundation
	telemetry.InitMetrics()
	if c := llm.NewClient(app.Config.LLM.APIKey, llm.WithModel(app.Config.LLM.Model), llm.WithMaxTokens(app.Config.LLM.MaxTokens)); c != nil {
		app.completer = c
	}

	// 2. Observers
	app.WSManager = websocket.NewWSManager(app.Config.Server.AllowedOrigins)
	app.Health = grpcserver.NewHealthServer(domain.AllSources)

	// 3. Sources, enrichment and the pipeline
	app.initSources()
	app.initTechniques()
	app.initPipeline()

	// 4. Background warm-up
	if err := app.initWarmup(); err != nil {
		return err
	}

	// 5. Servers
	app.initServers()
	return nil
}

func (app *Application) initSources() {
	cfg := app.Config.Sources
	store := cache.New[[]domain.VulnerabilityRecord]("sources")
	common := []sources.Option{sources.WithTimeout(cfg.Timeout)}

	fetchers := []ports.SourceFetcher{
		sources.NewKEVFetcher(common...),
		sources.NewAdvisoryFetcher(
			append(common, sources.WithBaseURL(cfg.AdvisoryFeedURL)),
			sources.WithArticleExpansion(cfg.ArticleExpansion),
		),
		sources.NewNVDFetcher(
			append(common, sources.WithAPIKey(cfg.NVDAPIKey)),
			sources.WithSeverityFloor(cfg.NVDSeverityFloor),
		),
	}

	for _, f := range fetchers {
		a := sources.NewCachedAdapter(f, store, cfg.TTL)
		a.OnState(app.Health.OnSourceState)
		a.OnState(app.WSManager.OnSourceState)
		app.Adapters = append(app.Adapters, a)
	}
}

func (app *Application) initTechniques() {
	cfg := app.Config.Attack
	if !cfg.Enabled {
		return
	}
	app.Techniques = attack.NewCatalog(attack.WithURL(cfg.URL), attack.WithTTL(cfg.TTL))
}

func (app *Application) windows() map[domain.Source]int {
	return map[domain.Source]int{
		domain.SourceExploitedCatalog:      app.Config.Sources.KEVWindowDays,
		domain.SourceAdvisoryFeed:          app.Config.Sources.AdvisoryWindowDays,
		domain.SourceVulnerabilityDatabase: app.Config.Sources.NVDWindowDays,
	}
}

func (app *Application) initPipeline() {
	cfg := app.Config

	app.Enrichment = enrichment.NewService(
		scores.NewCVSSClient(scores.WithAPIKey(cfg.Sources.NVDAPIKey)),
		scores.NewEPSSClient(),
		enrichment.Config{
			MaxItems:  cfg.Enrichment.MaxItems,
			MinDelay:  cfg.Enrichment.MinDelay,
			BulkDelay: cfg.Enrichment.BulkDelay,
			ScoreTTL:  cfg.Enrichment.ScoreTTL,
		},
	)

	adapters := make([]ports.SourceAdapter, 0, len(app.Adapters))
	for _, a := range app.Adapters {
		adapters = append(adapters, a)
	}
	app.Aggregator = aggregator.NewService(adapters, app.Enrichment, aggregator.Config{
		Windows:             app.windows(),
		RansomwareThreshold: cfg.Query.RansomwareThreshold,
	}, aggregator.WithObserver(app.WSManager))

	var resolver ports.IntentResolver = intent.NewKeywordResolver(time.Now)
	if cfg.Query.Resolver == config.ResolverLLM {
		if app.completer == nil {
			slog.Warn("llm resolver requested without an API key, using keyword resolver")
		} else {
			resolver = intent.NewLLMResolver(app.completer, resolver)
		}
	}

	opts := []query.Option{
		query.WithScoreCache(app.Enrichment),
		query.WithObserver(app.WSManager),
		query.WithDefaultPageSize(cfg.Query.PageSize),
	}
	if app.Techniques != nil {
		opts = append(opts, query.WithTechniques(app.Techniques, cfg.Attack.MaxMatches))
	}
	if cfg.LLM.Narrative && app.completer != nil {
		opts = append(opts, query.WithNarrator(presentation.NewLLMNarrator(app.completer)))
	}
	app.QueryService = query.NewService(resolver, app.Aggregator, app.Aggregator, opts...)
}

func (app *Application) initWarmup() error {
	windows := app.windows()
	targets := make([]warmup.Target, 0, len(app.Adapters))
	for _, a := range app.Adapters {
		targets = append(targets, warmup.Target{Source: a.Name(), WindowDays: windows[a.Name()], Refresher: a})
	}
	if app.Techniques != nil {
		targets = append(targets, warmup.Target{Name: "attack", Refresher: app.Techniques})
	}
	app.Scheduler = warmup.NewScheduler(targets, app.Config.Warmup.Timeout)
	if app.Config.Warmup.Schedule == "" {
		return nil
	}
	if err := app.Scheduler.Schedule(app.Config.Warmup.Schedule); err != nil {
		return fmt.Errorf("warm-up schedule: %w", err)
	}
	return nil
}

func (app *Application) initServers() {
	windows := app.windows()
	views := make([]handlers.SourceView, 0, len(app.Adapters))
	for _, a := range app.Adapters {
		views = append(views, handlers.SourceView{View: a, WindowDays: windows[a.Name()]})
	}
	health := handlers.NewHealthHandler(telemetry.ServiceName, telemetry.Version, views)
	if app.Techniques != nil {
		health.Techniques = app.Techniques
	}

	app.WebServer = webserver.NewServer(app.Config.Server.Addr, app.QueryService, health, reporting.NewPDFExporter(), app.WSManager, webserver.Options{
		APIKeyHash: []byte(app.Config.Server.APIKeyHash),
		RateLimit:  app.Config.Server.RateLimit,
	})
	app.GrpcServer = grpcserver.NewGrpcServer(app.Health)
}

// Run starts the application components and manages their execution lifecycle.
func (app *Application) Run(ctx context.Context) error {
	slog.Info("Starting CyberIQ components...")

	// 1. Cache warm-up
	if app.Config.Warmup.OnStart {
		go func() {
			warmCtx, cancel := context.WithTimeout(ctx, app.Config.Warmup.Timeout)
			defer cancel()
			n := app.Scheduler.WarmAll(warmCtx)
			slog.Info("Initial cache warm-up finished", "targets_ok", n, "sources", len(app.Adapters), "attack", app.Techniques != nil)
		}()
	}
	if app.Config.Warmup.Schedule != "" {
		app.Scheduler.Start()
	}

	// 2. Servers
	errChan := make(chan error, 2)

	go func() {
		if err := app.WebServer.Run(ctx); err != nil {
			errChan <- fmt.Errorf("web server error: %w", err)
		}
	}()

	go func() {
		log.Printf("gRPC Server listening on :%d", app.Config.Server.GRPCPort)
		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", app.Config.Server.GRPCPort))
		if err != nil {
			errChan <- fmt.Errorf("grpc listen error: %w", err)
			return
		}

		go func() {
			<-ctx.Done()
			app.Health.Shutdown()
			app.GrpcServer.GracefulStop()
		}()

		if err := app.GrpcServer.Serve(lis); err != nil {
			errChan <- fmt.Errorf("grpc server error: %w", err)
		}
	}()

	slog.Info("CyberIQ Ready. Press Ctrl+C to terminate.")

	select {
	case <-ctx.Done():
		slog.Info("Termination signal received")
	case err := <-errChan:
		app.cleanup()
		return err
	}

	return app.cleanup()
}

func (app *Application) cleanup() error {
	slog.Info("Cleaning up resources...")

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	app.Scheduler.Stop(stopCtx)
	return nil
}
