// Package config загружает конфигурацию сервиса и пороги аналитики
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config содержит конфигурацию сервиса
type Config struct {
	Server     ServerConfig
	Redis      RedisConfig
	Database   DatabaseConfig
	Cache      CacheConfig
	Thresholds Thresholds
}

// ServerConfig настройки HTTP сервера
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	Workers      int
}

// RedisConfig настройки подключения к Redis
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Enabled  bool
}

// DatabaseConfig источник снимка записей телеметрии
type DatabaseConfig struct {
	Driver string // "sqlite" или "postgres"
	DSN    string
}

// CacheConfig настройки кэша результатов
type CacheConfig struct {
	TTL       time.Duration
	KeyPrefix string
}

// Load загружает конфигурацию из .env и переменных окружения
func Load() (*Config, error) {
	// .env необязателен
	_ = godotenv.Load()

	thresholds, err := loadThresholds()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Addr:         getEnv("SERVER_ADDR", ":8080"),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			Workers:      getEnvInt("WORKER_COUNT", runtime.NumCPU()),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			Enabled:  getEnvBool("REDIS_ENABLED", true),
		},
		Database: DatabaseConfig{
			Driver: getEnv("DB_DRIVER", "sqlite"),
			DSN:    getEnv("DB_DSN", "fleet_telemetry.db"),
		},
		Cache: CacheConfig{
			TTL:       getEnvDuration("CACHE_TTL", 5*time.Minute),
			KeyPrefix: getEnv("CACHE_KEY_PREFIX", "fleetinsights:"),
		},
		Thresholds: thresholds,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate проверяет конфигурацию
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return errors.New("DB_DSN is required")
	}
	if c.Cache.TTL <= 0 {
		return errors.New("CACHE_TTL must be positive")
	}
	if c.Server.Workers < 1 {
		return errors.New("WORKER_COUNT must be at least 1")
	}
	return c.Thresholds.Validate()
}

func loadThresholds() (Thresholds, error) {
	t := DefaultThresholds()

	t.SpeedLimitKmh = getEnvFloat("SPEED_LIMIT_KMH", t.SpeedLimitKmh)
	t.MovingSpeedKmh = getEnvFloat("MOVING_SPEED_KMH", t.MovingSpeedKmh)
	t.MaxSampleGap = getEnvDuration("MAX_SAMPLE_GAP", t.MaxSampleGap)
	t.OperatingHoursStart = getEnvInt("OPERATING_HOURS_START", t.OperatingHoursStart)
	t.OperatingHoursEnd = getEnvInt("OPERATING_HOURS_END", t.OperatingHoursEnd)
	t.OverspeedRateWarning = getEnvFloat("OVERSPEED_RATE_WARNING", t.OverspeedRateWarning)
	t.OverspeedRateCritical = getEnvFloat("OVERSPEED_RATE_CRITICAL", t.OverspeedRateCritical)
	t.ComplianceWarning = getEnvFloat("COMPLIANCE_WARNING", t.ComplianceWarning)
	t.ComplianceCritical = getEnvFloat("COMPLIANCE_CRITICAL", t.ComplianceCritical)
	t.HarshEventRateWarning = getEnvFloat("HARSH_EVENT_RATE_WARNING", t.HarshEventRateWarning)
	t.IdleRatioWarning = getEnvFloat("IDLE_RATIO_WARNING", t.IdleRatioWarning)
	t.IdleRatioCritical = getEnvFloat("IDLE_RATIO_CRITICAL", t.IdleRatioCritical)
	t.GPSCoverageWarning = getEnvFloat("GPS_COVERAGE_WARNING", t.GPSCoverageWarning)
	t.GPSCoverageCritical = getEnvFloat("GPS_COVERAGE_CRITICAL", t.GPSCoverageCritical)
	t.BatteryWarning = getEnvFloat("BATTERY_WARNING", t.BatteryWarning)
	t.BatteryCritical = getEnvFloat("BATTERY_CRITICAL", t.BatteryCritical)
	t.StatusErrorRateWarning = getEnvFloat("STATUS_ERROR_RATE_WARNING", t.StatusErrorRateWarning)
	t.HighAverageSpeedKmh = getEnvFloat("HIGH_AVERAGE_SPEED_KMH", t.HighAverageSpeedKmh)
	t.LowAverageSpeedKmh = getEnvFloat("LOW_AVERAGE_SPEED_KMH", t.LowAverageSpeedKmh)
	t.MinKmPerMovingHour = getEnvFloat("MIN_KM_PER_MOVING_HOUR", t.MinKmPerMovingHour)
	t.LowActivityPercentile = getEnvFloat("LOW_ACTIVITY_PERCENTILE", t.LowActivityPercentile)
	t.SpeedDegradationPct = getEnvFloat("SPEED_DEGRADATION_PCT", t.SpeedDegradationPct)
	t.RecentWindow = getEnvDuration("RECENT_WINDOW", t.RecentWindow)
	t.BaselineWindow = getEnvDuration("BASELINE_WINDOW", t.BaselineWindow)
	t.TrendPeriod = getEnvDuration("TREND_PERIOD", t.TrendPeriod)
	t.TrendPeriods = getEnvInt("TREND_PERIODS", t.TrendPeriods)
	t.MinTrendSlope = getEnvFloat("MIN_TREND_SLOPE", t.MinTrendSlope)
	t.BatteryTrendSlope = getEnvFloat("BATTERY_TREND_SLOPE", t.BatteryTrendSlope)
	t.MaintenanceDistanceKm = getEnvFloat("MAINTENANCE_DISTANCE_KM", t.MaintenanceDistanceKm)
	t.ConfidenceSampleSize = getEnvInt("CONFIDENCE_SAMPLE_SIZE", t.ConfidenceSampleSize)
	t.OutlierZScore = getEnvFloat("OUTLIER_Z_SCORE", t.OutlierZScore)
	t.MinPopulation = getEnvInt("MIN_POPULATION", t.MinPopulation)

	if tz := os.Getenv("OPERATING_TIMEZONE"); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return t, fmt.Errorf("invalid OPERATING_TIMEZONE: %w", err)
		}
		t.Location = loc
	}

	if raw := os.Getenv("METRIC_DIRECTIONS"); raw != "" {
		dirs, err := parseDirections(raw)
		if err != nil {
			return t, err
		}
		t.MetricDirections = dirs
	}

	return t, nil
}

// parseDirections разбирает строку вида "overspeed_rate=lower,total_distance=neutral"
func parseDirections(raw string) (map[string]string, error) {
	dirs := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, dir, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid METRIC_DIRECTIONS entry %q", pair)
		}
		dir = strings.TrimSpace(dir)
		switch dir {
		case DirectionHigher, DirectionLower, DirectionNeutral:
		default:
			return nil, fmt.Errorf("invalid direction %q for metric %q", dir, name)
		}
		dirs[strings.TrimSpace(name)] = dir
	}
	return dirs, nil
}

// getEnv получает переменную окружения с значением по умолчанию
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt получает целочисленную переменную окружения
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return f
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}
