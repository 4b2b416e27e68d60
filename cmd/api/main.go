package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/spendiq/internal/analyses"
	"github.com/dvloznov/spendiq/internal/api/handlers"
	"github.com/dvloznov/spendiq/internal/api/middleware"
	"github.com/dvloznov/spendiq/internal/app"
	"github.com/dvloznov/spendiq/internal/auth"
	"github.com/dvloznov/spendiq/internal/config"
	"github.com/dvloznov/spendiq/internal/jobs"
	"github.com/dvloznov/spendiq/internal/jobs/inmemory"
	"github.com/dvloznov/spendiq/internal/logger"
	"github.com/go-chi/chi/v5"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewWithLevel(cfg.LogLevel, cfg.LogJSON)

	if err := cfg.RequireServer(); err != nil {
		log.Fatal().Err(err).Msg("Invalid server configuration")
	}

	ctx := logger.WithContext(context.Background(), log)

	// Initialize storage
	store, err := app.OpenStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.StoreBackend).Msg("Failed to open record store")
	}
	defer store.Close()

	blobs, err := app.OpenBlobs(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open blob store")
	}
	defer blobs.Close()

	if cfg.GCSBucket == "" {
		log.Warn().Msg("No GCS bucket configured - uploads are kept in memory and lost on restart")
	}

	runner, err := app.NewRunner(ctx, cfg, store, blobs)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create pipeline runner")
	}

	verifier, err := auth.NewHMACVerifier(cfg.JWTSecret)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create token verifier")
	}

	// Initialize job infrastructure
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(cfg.QueueSize, cfg.Workers, jobStore)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	jobHandler := func(ctx context.Context, job jobs.Job) error {
		analyzeJob, ok := job.(*jobs.AnalyzeStatementJob)
		if !ok {
			return fmt.Errorf("unexpected job type: %T", job)
		}
		return runner.Run(ctx, analyzeJob.AnalysisID)
	}

	go func() {
		log.Info().Int("workers", cfg.Workers).Msg("Starting job workers")
		if err := jobQueue.Start(workerCtx, jobHandler); err != nil {
			log.Error().Err(err).Msg("Job workers stopped with error")
		}
	}()

	svc := analyses.NewService(store, blobs, jobQueue, analyses.Options{
		MaxUploadSizeBytes: cfg.MaxUploadSizeBytes,
		DedupWindow:        cfg.DedupWindow,
		ListLimit:          cfg.ListLimit,
	})

	staleCron, err := analyses.NewStaleReporter(store, cfg.StaleAfter).Schedule(workerCtx, cfg.StaleCheckSchedule)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to schedule stale run check")
	}

	// Create router
	analysesHandler := handlers.NewAnalysesHandler(svc, cfg.MaxUploadSizeBytes)
	submitLimiter := middleware.NewRateLimiter(cfg.SubmitRatePerMinute, cfg.SubmitBurst)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(log))
	r.Use(middleware.Recovery(log))
	r.Use(middleware.CORS(cfg.CORSOrigin))

	r.Get("/health", handlers.Health)

	r.Route("/api/analyses", func(r chi.Router) {
		r.Use(middleware.Auth(verifier))

		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(submitLimiter))
			r.Post("/", analysesHandler.SubmitAnalysis)
			r.Post("/{id}/reanalyze", analysesHandler.ReanalyzeAnalysis)
		})

		analysesHandler.Routes(r)
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Str("port", cfg.Port).
			Str("store", cfg.StoreBackend).
			Str("model", cfg.ModelName).
			Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.RunTimeout+30*time.Second)
	defer cancel()

	// Stop accepting requests before draining the queue.
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	cancelWorker()

	<-staleCron.Stop().Done()

	log.Info().Msg("Server exited")
}
