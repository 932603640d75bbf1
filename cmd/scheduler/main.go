// cmd/scheduler/main.go
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	http_api "job-scheduler/internal/api/http"
	"job-scheduler/internal/config"
	"job-scheduler/internal/domain"
	"job-scheduler/internal/infra/etcd"
	"job-scheduler/internal/infra/sqlite"
	"job-scheduler/internal/program"
	"job-scheduler/internal/tracing"
	"job-scheduler/internal/usecase"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// corsMiddleware wraps an http.Handler with CORS headers for local development.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func main() {
	// 1. Initialize logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// 2. Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	tracerShutdown, err := tracing.InitTracer(cfg.ServiceName, log.Writer())
	if err != nil {
		log.Fatalf("failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := tracerShutdown(context.Background()); err != nil {
			log.Printf("failed to shutdown tracer: %v", err)
		}
	}()

	// 3. Create root context for lifecycle management
	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	setupGracefulShutdown(cancel)

	// 4. Open storage
	jobRepo, execRepo, closeStorage, err := openStorage(rootCtx, cfg, logger)
	if err != nil {
		log.Fatalf("Failed to open %s storage: %v", cfg.StorageDriver, err)
	}
	defer closeStorage()
	logger.Info("storage ready", "driver", cfg.StorageDriver)

	// 5. Programs and services
	registry := program.NewRegistry(program.Options{
		HTTPTimeout:  cfg.HttpProgramTimeout,
		ShellTimeout: cfg.ShellProgramTimeout,
	}, logger)
	registerServices(registry)

	jobService := usecase.NewJobService(jobRepo, execRepo, registry, domain.SystemClock{}, logger)
	jobHandler := http_api.NewJobHandler(jobService, logger)

	// 6. Register routes and metrics endpoint
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	jobHandler.RegisterRoutes(mux)

	server := &http.Server{
		Addr:    cfg.HttpListenAddr,
		Handler: corsMiddleware(mux),
	}

	go func() {
		logger.Info("starting HTTP API server", "addr", cfg.HttpListenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// 7. Block until shutdown
	<-rootCtx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", "error", err)
	}
}

func openStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (domain.JobRepository, domain.ExecutionRepository, func(), error) {
	switch cfg.StorageDriver {
	case config.StorageEtcd:
		client, err := etcd.NewClient(ctx, cfg.EtcdEndpoints, cfg.EtcdTimeout)
		if err != nil {
			return nil, nil, nil, err
		}
		closeFn := func() { client.Close() }
		return etcd.NewEtcdJobRepository(client, logger), etcd.NewEtcdExecutionRepository(client, logger), closeFn, nil
	default:
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := sqlite.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, nil, nil, err
		}
		closeFn := func() { db.Close() }
		return sqlite.NewJobRepository(db, logger), sqlite.NewExecutionRepository(db, logger), closeFn, nil
	}
}

// registerServices installs the in-process services jobs can call by id.
func registerServices(registry *program.Registry) {
	registry.RegisterService("scheduler.heartbeat", func(ctx context.Context, r domain.Runner, args []string) error {
		if runner, ok := r.(*program.Runner); ok {
			runner.Logger().Info("heartbeat", "args", args)
		}
		return nil
	})
}

func setupGracefulShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		slog.Info("received signal, initiating graceful shutdown", "signal", sig.String())
		cancel()
	}()
}
