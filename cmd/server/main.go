// Package main запускает сервис аналитики телеметрии парка
// Сервис реализует:
// - Фильтрацию снимка телеметрии по клиенту, ТС и датам
// - Расчет KPI парка и отдельных ТС
// - Генерацию инсайтов набором независимых правил
// - Сравнение ТС с z-score детекцией выбросов
// - Кэширование результатов в Redis или памяти (TTL 5 минут)
// - Экспорт метрик в Prometheus
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"fleet-insights-service/internal/cache"
	"fleet-insights-service/internal/config"
	"fleet-insights-service/internal/store"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "fleet-insights",
		Short: "Fleet telemetry analysis and insight engine",
		Long: `Computes fleet KPIs, generates ranked insights and compares vehicles
over an immutable snapshot of telemetry records loaded from SQLite or Postgres.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(analyzeCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openSource подключает источник снимка по конфигурации
func openSource(ctx context.Context, cfg config.DatabaseConfig) (store.Source, func(), error) {
	switch cfg.Driver {
	case "postgres":
		src, err := store.NewPostgresSource(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return src, src.Close, nil
	default:
		src, err := store.NewSQLiteSource(cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return src, func() { _ = src.Close() }, nil
	}
}

// connectRedis пробует подключиться к Redis с повторами
// Возвращает nil, если Redis выключен или недоступен
func connectRedis(cfg *config.Config) *cache.RedisStore {
	if !cfg.Redis.Enabled {
		log.Println("Redis disabled, using in-memory result cache")
		return nil
	}

	var redisStore *cache.RedisStore
	var err error
	for i := 0; i < 5; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		redisStore, err = cache.NewRedisStore(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Cache.KeyPrefix)
		cancel()
		if err == nil {
			log.Printf("Connected to Redis at %s", cfg.Redis.Addr)
			return redisStore
		}
		log.Printf("Redis connection attempt %d failed: %v", i+1, err)
		if i < 4 {
			time.Sleep(time.Duration(i+1) * time.Second)
		}
	}

	log.Printf("Warning: Failed to connect to Redis, using in-memory result cache: %v", err)
	return nil
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
}
