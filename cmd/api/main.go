package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/receipt-ledger/internal/api/handlers"
	"github.com/dvloznov/receipt-ledger/internal/api/middleware"
	"github.com/dvloznov/receipt-ledger/internal/app"
	"github.com/dvloznov/receipt-ledger/internal/config"
	"github.com/dvloznov/receipt-ledger/internal/jobs"
	"github.com/dvloznov/receipt-ledger/internal/jobs/inmemory"
	"github.com/dvloznov/receipt-ledger/internal/logger"
)

func main() {
	loader := config.NewLoader("api")
	cfg, err := loader.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, loader.Usage())
		os.Exit(2)
	}

	ctx := context.Background()

	a, err := app.Build(ctx, cfg)
	if err != nil {
		bootLog := logger.New()
		bootLog.Fatal().Err(err).Msg("Failed to initialize")
	}
	defer a.Close()
	log := a.Log

	if n, err := a.Migrate(logger.WithContext(ctx, log), "api"); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate index")
	} else if n > 0 {
		log.Info().Int("applied", n).Msg("Index migrations applied")
	}

	// Initialize job infrastructure
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, 1, jobStore)

	workerCtx, cancelWorker := context.WithCancel(logger.WithContext(ctx, log))
	defer cancelWorker()

	go func() {
		log.Info().Msg("Starting job worker")
		if err := jobQueue.Start(workerCtx, a.JobHandlers().Handler()); err != nil {
			log.Error().Err(err).Msg("Job worker stopped with error")
		}
	}()

	// The memory index starts empty; refill it from the archive in the background.
	if a.VolatileIndex() {
		warmJob := &jobs.Job{Type: jobs.JobTypeRebuildIndex}
		if err := jobQueue.Publish(workerCtx, warmJob); err != nil {
			log.Error().Err(err).Msg("Failed to enqueue index warm-up")
		} else {
			log.Info().Str("job_id", warmJob.JobID).Msg("Memory index warm-up enqueued")
		}
	}

	routes := handlers.Routes{
		Receipts: handlers.NewReceiptsHandler(a.Service, a.Publisher),
		Reports:  handlers.NewReportsHandler(a.Ledger),
		Chat:     handlers.NewChatHandler(a.Assistant),
		Jobs:     handlers.NewJobsHandler(jobStore, jobQueue),
		Metrics:  a.Metrics.Handler(),
	}

	handler := middleware.Chain(routes.Mux(),
		middleware.Recovery(log),
		middleware.RequestID,
		middleware.Logger(log),
		middleware.CORS,
	)

	// Uploads wait for OCR polling and two model calls.
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Int("port", cfg.Port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop job queue and wait for in-flight jobs
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	cancelWorker()

	log.Info().Msg("Server exited")
}
