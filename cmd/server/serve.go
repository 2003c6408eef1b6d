package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"fleet-insights-service/internal/cache"
	"fleet-insights-service/internal/config"
	"fleet-insights-service/internal/engine"
	"fleet-insights-service/internal/handlers"
	"fleet-insights-service/internal/store"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return serve(cfg)
		},
	}
}

func serve(cfg *config.Config) error {
	log.Println("Starting Fleet Insights Service...")
	log.Printf("Go version: %s", runtime.Version())
	log.Printf("NumCPU: %d", runtime.NumCPU())

	logger := newLogger()
	slog.SetDefault(logger)

	source, closeSource, err := openSource(context.Background(), cfg.Database)
	if err != nil {
		return err
	}
	defer closeSource()

	// Redis общий для реплик; без него кэш живет в памяти процесса
	redisStore := connectRedis(cfg)
	var (
		cacheStore cache.Store = cache.NewMemoryStore(nil)
		redis      handlers.Pinger
	)
	if redisStore != nil {
		cacheStore = redisStore
		redis = redisStore
		defer redisStore.Close()
	}

	holder := store.NewHolder(source, logger)
	eng := engine.New(cfg.Thresholds, holder, cacheStore, cfg.Cache.TTL,
		engine.WithLogger(logger), engine.WithWorkers(cfg.Server.Workers))

	loadCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
	snap, err := eng.Reload(loadCtx)
	cancel()
	if err != nil {
		// Сервис стартует без снимка; POST /snapshot/reload повторит загрузку
		log.Printf("Warning: initial snapshot load failed: %v", err)
	} else {
		log.Printf("Snapshot %s loaded with %d records", snap.ID, snap.Len())
	}

	handler := handlers.NewHandler(eng, redis)

	// Настраиваем маршруты
	router := mux.NewRouter()
	handler.Routes(router)

	// Prometheus метрики
	router.Handle("/prometheus", promhttp.Handler())

	// pprof для профилирования
	router.PathPrefix("/debug/pprof/").Handler(http.DefaultServeMux)

	router.Use(requestIDMiddleware)
	router.Use(loggingMiddleware)

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Server listening on %s", cfg.Server.Addr)
		log.Printf("Endpoints:")
		log.Printf("  GET  /kpis             - Fleet and vehicle KPIs")
		log.Printf("  GET  /insights         - Ranked insights")
		log.Printf("  GET  /compare          - Vehicle comparison by metric")
		log.Printf("  GET  /compare/metrics  - Comparable metrics")
		log.Printf("  POST /snapshot/reload  - Reload telemetry snapshot")
		log.Printf("  GET  /health           - Health check")
		log.Printf("  GET  /stats            - Snapshot statistics")
		log.Printf("  GET  /prometheus       - Prometheus metrics")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-stop:
	case err := <-errCh:
		return err
	}
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
	return nil
}

// loggingMiddleware логирует HTTP запросы
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s %s", w.Header().Get("X-Request-ID"), r.Method, r.URL.Path, time.Since(start))
	})
}

// requestIDMiddleware проставляет идентификатор запроса
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}
