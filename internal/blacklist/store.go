package blacklist

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/morozkovaa/lingua-news/internal/models"
	"github.com/morozkovaa/lingua-news/internal/pkg/log"
	"github.com/morozkovaa/lingua-news/internal/storage"
)

// StoreRegistry — реестр поверх разделяемого хранилища (PostgreSQL).
// Единственный корректный вариант для многоинстансных развёртываний.
type StoreRegistry struct {
	store storage.BlacklistStorage
}

// NewStore создаёт реестр поверх storage.BlacklistStorage.
func NewStore(store storage.BlacklistStorage) *StoreRegistry {
	return &StoreRegistry{store: store}
}

// Add — идемпотентный upsert по TokenID (ON CONFLICT DO NOTHING в хранилище).
func (r *StoreRegistry) Add(ctx context.Context, entry *models.BlacklistEntry) error {
	const op = "blacklist.store.Add"

	if err := r.store.SaveBlacklistEntry(ctx, entry); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// IsRevoked проверяет jti в хранилище. Fail-open: транзиентный сбой
// хранилища не должен превращаться в полный отказ аутентификации,
// поэтому ошибка логируется и трактуется как "не отозван".
func (r *StoreRegistry) IsRevoked(ctx context.Context, tokenID string) bool {
	revoked, err := r.store.IsBlacklisted(ctx, tokenID)
	if err != nil {
		log.From(ctx).Warn("blacklist_check_failed",
			slog.String("err", err.Error()),
		)
		return false
	}

	return revoked
}

// Cleanup удаляет логически мёртвые записи из хранилища.
func (r *StoreRegistry) Cleanup(ctx context.Context, now time.Time) (int64, error) {
	const op = "blacklist.store.Cleanup"

	count, err := r.store.DeleteExpiredBlacklistEntries(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return count, nil
}

// Sweep — no-op: внутрипроцессного состояния нет, реальную уборку
// делает Cleanup по расписанию.
func (r *StoreRegistry) Sweep(_ time.Time) int { return 0 }

var _ Registry = (*StoreRegistry)(nil)
