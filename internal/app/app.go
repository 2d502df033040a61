// Package app wires configuration into the repositories, blog client and services
// shared by the HTTP server and the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"alcyxob/blog-publisher/internal/api"
	"alcyxob/blog-publisher/internal/blogclient"
	"alcyxob/blog-publisher/internal/config"
	"alcyxob/blog-publisher/internal/metrics"
	"alcyxob/blog-publisher/internal/publish"
	"alcyxob/blog-publisher/internal/reconcile"
	"alcyxob/blog-publisher/internal/repository"
	"alcyxob/blog-publisher/internal/repository/memory"
	"alcyxob/blog-publisher/internal/repository/mongo"
	"alcyxob/blog-publisher/internal/service"
	"alcyxob/blog-publisher/internal/storage"
)

// MemoryDatabaseURI keeps posts in process memory instead of MongoDB.
const MemoryDatabaseURI = "memory"

type App struct {
	Config   config.Config
	Logger   *slog.Logger
	Registry *prometheus.Registry

	Client       blogclient.Client
	Orchestrator *publish.Orchestrator

	Auth    service.AuthService
	Posts   service.PostService
	Publish service.PublishService
	Sync    service.SyncService

	closers []func() error
}

// New builds the application. Close releases what it opened.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger, Registry: prometheus.NewRegistry()}
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(a.Registry)

	repo, err := a.openRepository(ctx)
	if err != nil {
		return nil, err
	}

	media, err := storage.NewS3Storage(ctx, cfg.S3, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("initialize media storage: %w", err)
	}

	httpClient := &http.Client{Timeout: cfg.Blog.RequestTimeout}
	client, err := blogclient.NewHTTPClient(blogclient.HTTPClientOptions{
		BaseURL:              cfg.Blog.APIURL,
		TokenSecret:          cfg.Blog.APITokenSecret,
		UploadPrefix:         cfg.Blog.UploadPrefix,
		MaxUploadBytes:       cfg.Files.MaxBytes,
		MaxRetries:           cfg.Upload.MaxRetries,
		RetryInitialInterval: cfg.Upload.RetryInitialInterval,
		HTTPClient:           httpClient,
		Media:                media,
		Logger:               logger,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("initialize blog client: %w", err)
	}
	a.Client = client

	detector := blogclient.NewServiceUpdateDetector(client, logger)
	pinger := blogclient.NewXMLRPCPinger(&http.Client{Timeout: cfg.Ping.Timeout}, blogclient.DefaultPingMethod)
	a.Orchestrator = publish.NewOrchestrator(client, pinger, detector, publish.BlogSettings{
		ID:              cfg.Blog.ID,
		Name:            cfg.Blog.Name,
		HomepageURL:     cfg.Blog.HomepageURL,
		Lightbox:        cfg.Blog.LightboxImages,
		PingURLs:        cfg.Ping.URLs,
		PingTimeout:     cfg.Ping.Timeout,
		PingConcurrency: cfg.Ping.Concurrency,
		RequestTimeout:  cfg.Blog.RequestTimeout,
	}, logger, m)
	a.closers = append(a.closers, func() error {
		a.Orchestrator.WaitForPings()
		return nil
	})

	synchronizer := reconcile.NewSynchronizer(client, repo, reconcile.Options{
		SupportsSync: cfg.Blog.SupportsSync,
		Detector:     detector,
		FetchTimeout: cfg.Blog.RequestTimeout,
		Logger:       logger,
		Metrics:      m,
	})

	a.Auth = service.NewAuthService(cfg.JWT.Secret, cfg.JWT.Expiration)
	a.Posts = service.NewPostService(repo, cfg.Blog.ID, cfg.Files, media, logger)
	a.Publish = service.NewPublishService(repo, a.Orchestrator, logger)
	a.Sync = service.NewSyncService(repo, client, synchronizer, cfg.Blog.ID, logger)
	return a, nil
}

func (a *App) openRepository(ctx context.Context) (repository.PostRepository, error) {
	if a.Config.Database.URI == MemoryDatabaseURI {
		a.Logger.Warn("using in-memory post store; nothing survives a restart")
		return memory.NewPostRepository(), nil
	}
	dbClient, err := mongo.ConnectDB(ctx, a.Config.Database.URI)
	if err != nil {
		return nil, fmt.Errorf("connect to MongoDB: %w", err)
	}
	a.closers = append(a.closers, func() error { return mongo.DisconnectDB(dbClient) })

	db := dbClient.Database(a.Config.Database.Name)
	if err := mongo.EnsurePostIndexes(ctx, db); err != nil {
		a.Logger.Warn("could not create post indexes", "error", err)
	}
	return mongo.NewMongoPostRepository(db), nil
}

// Router builds the gin engine serving the HTTP API.
func (a *App) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), api.RequestLogger(a.Logger))
	api.SetupRoutes(router, a.Config.JWT.Secret, a.Posts, a.Publish, a.Sync,
		promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{}))
	return router
}

// Close waits for background pings and disconnects from the database.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
