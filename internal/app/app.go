package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/kabirmuntasir/agentic-ai-grader/internal/config"
	"github.com/kabirmuntasir/agentic-ai-grader/internal/delivery/httpd"
	"github.com/kabirmuntasir/agentic-ai-grader/internal/pdf"
	"github.com/kabirmuntasir/agentic-ai-grader/internal/repository"
	"github.com/kabirmuntasir/agentic-ai-grader/internal/service"
	"github.com/kabirmuntasir/agentic-ai-grader/internal/service/analyzer"
	"github.com/kabirmuntasir/agentic-ai-grader/internal/service/evaluator"
	"github.com/kabirmuntasir/agentic-ai-grader/internal/service/gateway"
	"github.com/kabirmuntasir/agentic-ai-grader/internal/service/placement"
	"github.com/kabirmuntasir/agentic-ai-grader/internal/service/qc"
	"github.com/kabirmuntasir/agentic-ai-grader/internal/worker"
)

type App struct {
	server *http.Server
	logger zerolog.Logger
	config *config.Config
	pool   *worker.Pool
	worker *worker.GradingWorker
	broker repository.RabbitMQRepository
}

func New(cfg *config.Config, log zerolog.Logger) (*App, error) {
	artifacts, err := newArtifactStore(cfg, log)
	if err != nil {
		return nil, err
	}

	var broker repository.RabbitMQRepository
	if cfg.RabbitMQ.Enabled {
		broker, err = repository.NewRabbitMQRepository(cfg.RabbitMQ.URL, log)
		if err != nil {
			return nil, err
		}
	}

	modelGateway := gateway.NewGeminiGateway(
		cfg.Model.BaseURL,
		cfg.Model.Name,
		cfg.Model.APIKey,
		cfg.Model.Timeout,
		log,
	)

	engine := placement.NewEngine(log)
	gradingService := service.NewGradingService(
		pdf.NewExtractor(log),
		analyzer.NewAnalyzer(modelGateway, log),
		evaluator.NewEvaluator(modelGateway, cfg.Grading.Parallelism, cfg.Grading.RetryDelay, log),
		engine,
		qc.NewController(engine, log),
		pdf.NewRenderer(log),
		artifacts,
		cfg.Grading.TargetDuration,
		log,
	)

	registry := repository.NewRunRegistry()
	pool := worker.NewPool(cfg.Grading.MaxWorkers, log)

	var gradingWorker *worker.GradingWorker
	if broker != nil {
		gradingWorker = worker.NewGradingWorker(broker, artifacts, registry, gradingService, pool, cfg.RabbitMQ, log)
	}

	handler := httpd.NewHandler(gradingService, registry, artifacts, broker, pool, cfg, log)

	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(5 * time.Minute))

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   cfg.CORS.AllowedMethods,
		AllowedHeaders:   cfg.CORS.AllowedHeaders,
		ExposedHeaders:   cfg.CORS.ExposedHeaders,
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           cfg.CORS.MaxAge,
	}))

	handler.RegisterRoutes(router)

	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return &App{
		server: server,
		logger: log,
		config: cfg,
		pool:   pool,
		worker: gradingWorker,
		broker: broker,
	}, nil
}

func newArtifactStore(cfg *config.Config, log zerolog.Logger) (repository.ArtifactStore, error) {
	if cfg.Storage.Backend == "minio" {
		return repository.NewMinIOStore(repository.MinIOConfig{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			Bucket:    cfg.Storage.Bucket,
			Region:    cfg.Storage.Region,
			UseSSL:    cfg.Storage.UseSSL,
			Timeout:   cfg.Storage.Timeout,
		}, log)
	}
	return repository.NewLocalStore(cfg.Storage.LocalDir, log)
}

func (a *App) Run(ctx context.Context) error {
	a.pool.Start()

	if a.worker != nil {
		if err := a.worker.Start(ctx); err != nil {
			a.logger.Error().Err(err).Msg("Failed to start grading worker")
			return err
		}
	}

	a.logger.Info().Msgf("Starting grading service on %s", a.config.Server.Address)
	return a.server.ListenAndServe()
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info().Msg("Shutting down grading service...")

	a.pool.Stop()

	if a.broker != nil {
		if err := a.broker.Close(); err != nil {
			a.logger.Error().Err(err).Msg("Failed to close RabbitMQ connection")
		}
	}

	if err := a.server.Shutdown(ctx); err != nil {
		a.logger.Error().Err(err).Msg("Failed to shutdown HTTP server")
		return err
	}

	a.logger.Info().Msg("Grading service stopped")
	return nil
}
