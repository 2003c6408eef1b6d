package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"fleet-insights-service/internal/metrics"
)

// Option настраивает кэш
type Option func(*options)

type options struct {
	clock  Clock
	logger *slog.Logger
}

// WithClock задает источник времени для вычисления срока жизни
func WithClock(clock Clock) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithLogger задает логгер ошибок хранилища
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Cache мемоизирует результаты вычислений по ключу на время TTL
// Конкурентные промахи по одному ключу выполняют вычисление один раз
type Cache[V any] struct {
	name   string
	store  Store
	ttl    time.Duration
	clock  Clock
	logger *slog.Logger
	group  singleflight.Group
}

// New создает кэш поверх хранилища; ttl <= 0 означает DefaultTTL
func New[V any](name string, store Store, ttl time.Duration, opts ...Option) *Cache[V] {
	o := options{clock: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache[V]{
		name:   name,
		store:  store,
		ttl:    ttl,
		clock:  o.clock,
		logger: o.logger.With("cache", name),
	}
}

// TTL время жизни записей
func (c *Cache[V]) TTL() time.Duration {
	return c.ttl
}

// Get возвращает сохраненное значение
func (c *Cache[V]) Get(ctx context.Context, key string) (V, bool) {
	var zero V
	data, ok, err := c.store.Get(ctx, key)
	if err != nil {
		metrics.CacheErrors.WithLabelValues(c.name, "get").Inc()
		c.logger.Warn("cache get failed", "key", key, "err", err)
		return zero, false
	}
	if !ok {
		return zero, false
	}
	var v V
	if err := json.Unmarshal(data, &v); err != nil {
		metrics.CacheErrors.WithLabelValues(c.name, "decode").Inc()
		c.logger.Warn("cache entry undecodable", "key", key, "err", err)
		return zero, false
	}
	return v, true
}

// Set сохраняет значение на TTL; ошибки хранилища только логируются
func (c *Cache[V]) Set(ctx context.Context, key string, v V) {
	data, err := json.Marshal(v)
	if err != nil {
		metrics.CacheErrors.WithLabelValues(c.name, "encode").Inc()
		c.logger.Warn("cache entry unencodable", "key", key, "err", err)
		return
	}
	if err := c.store.Set(ctx, key, data, c.clock().Add(c.ttl)); err != nil {
		metrics.CacheErrors.WithLabelValues(c.name, "set").Inc()
		c.logger.Warn("cache set failed", "key", key, "err", err)
	}
}

// GetOrCompute возвращает значение из кэша либо вычисляет и сохраняет его
// Ошибки вычисления не кэшируются. Второе значение сообщает о попадании
func (c *Cache[V]) GetOrCompute(ctx context.Context, key string, compute func(context.Context) (V, error)) (V, bool, error) {
	if v, ok := c.Get(ctx, key); ok {
		metrics.CacheHits.WithLabelValues(c.name).Inc()
		return v, true, nil
	}
	metrics.CacheMisses.WithLabelValues(c.name).Inc()

	res, err, _ := c.group.Do(key, func() (interface{}, error) {
		v, err := compute(ctx)
		if err != nil {
			return v, err
		}
		c.Set(ctx, key, v)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, false, err
	}
	return res.(V), false, nil
}

// Invalidate удаляет запись
func (c *Cache[V]) Invalidate(ctx context.Context, key string) error {
	return c.store.Delete(ctx, key)
}
