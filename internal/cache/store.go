// Package cache реализует кэш результатов анализа с TTL и подменяемым хранилищем
package cache

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// DefaultTTL время жизни записи по умолчанию
const DefaultTTL = 5 * time.Minute

// Clock источник текущего времени; в тестах подменяется
type Clock func() time.Time

// Store хранилище сериализованных значений с абсолютным сроком жизни
type Store interface {
	// Get возвращает значение; просроченная запись считается отсутствующей
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, expiresAt time.Time) error
	Delete(ctx context.Context, key string) error
}

// Key строит ключ кэша из частей
func Key(namespace string, parts ...string) string {
	h := xxhash.New()
	for _, p := range parts {
		_, _ = h.WriteString(p)
		_, _ = h.Write([]byte{0})
	}
	var b strings.Builder
	b.WriteString(namespace)
	b.WriteByte(':')
	b.WriteString(strconv.FormatUint(h.Sum64(), 16))
	return b.String()
}

type entry struct {
	value     []byte
	expiresAt time.Time
}

// sweepEvery период очистки просроченных записей в числе вызовов Set
const sweepEvery = 256

// MemoryStore хранилище в памяти процесса
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]entry
	now     Clock
	writes  int
}

// NewMemoryStore создает хранилище в памяти; nil clock означает time.Now
func NewMemoryStore(clock Clock) *MemoryStore {
	if clock == nil {
		clock = time.Now
	}
	return &MemoryStore{
		entries: make(map[string]entry),
		now:     clock,
	}
}

// Get возвращает значение, если срок его жизни не истек
func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !m.now().Before(e.expiresAt) {
		delete(m.entries, key)
		return nil, false, nil
	}
	return e.value, true, nil
}

// Set сохраняет значение до expiresAt
func (m *MemoryStore) Set(_ context.Context, key string, value []byte, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = entry{value: value, expiresAt: expiresAt}
	m.writes++
	if m.writes%sweepEvery == 0 {
		m.purgeLocked()
	}
	return nil
}

// Delete удаляет запись
func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

// Purge удаляет просроченные записи и возвращает их число
func (m *MemoryStore) Purge() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.purgeLocked()
}

// Len количество хранимых записей, включая еще не удаленные просроченные
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *MemoryStore) purgeLocked() int {
	now := m.now()
	removed := 0
	for k, e := range m.entries {
		if !now.Before(e.expiresAt) {
			delete(m.entries, k)
			removed++
		}
	}
	return removed
}
