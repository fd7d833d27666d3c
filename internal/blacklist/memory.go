package blacklist

import (
	"context"
	"sync"
	"time"

	"github.com/morozkovaa/lingua-news/internal/models"
)

// MemoryRegistry — внутрипроцессный реестр отозванных токенов.
// Годится только для одиночного инстанса: другие инстансы его записей
// не видят. Выбирается конфигурацией blacklist.backend=memory.
type MemoryRegistry struct {
	mu      sync.RWMutex
	entries map[string]models.BlacklistEntry
}

// NewMemory создаёт пустой реестр.
func NewMemory() *MemoryRegistry {
	return &MemoryRegistry{
		entries: make(map[string]models.BlacklistEntry),
	}
}

// Add — идемпотентный upsert по TokenID: повторное добавление того же jti
// не перетирает исходную запись.
func (r *MemoryRegistry) Add(_ context.Context, entry *models.BlacklistEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[entry.TokenID]; !ok {
		r.entries[entry.TokenID] = *entry
	}

	return nil
}

// IsRevoked проверяет наличие живой записи по jti.
func (r *MemoryRegistry) IsRevoked(_ context.Context, tokenID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[tokenID]
	if !ok {
		return false
	}

	// Просроченная запись логически мертва ещё до уборки.
	return entry.ExpiresAt.After(time.Now().UTC())
}

// Cleanup удаляет просроченные записи.
func (r *MemoryRegistry) Cleanup(_ context.Context, now time.Time) (int64, error) {
	return int64(r.Sweep(now)), nil
}

// Sweep — та же уборка, но без контекста и ошибок: вызывается
// с горячего пути для ограничения роста памяти между плановыми запусками.
func (r *MemoryRegistry) Sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, entry := range r.entries {
		if !entry.ExpiresAt.After(now) {
			delete(r.entries, id)
			removed++
		}
	}

	return removed
}

var _ Registry = (*MemoryRegistry)(nil)
