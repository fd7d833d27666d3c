// blacklist — реестр отозванных access-токенов (по jti).
//
// Request Gate сверяется с реестром на каждом запросе, поэтому путь чтения
// fail-open: недоступность хранилища деградирует до "не отозван" с warning
// в логе, а не до полного отказа аутентификации. Это осознанный компромисс
// доступность/безопасность; путь записи (Add) ошибок не скрывает.
package blacklist

import (
	"context"
	"time"

	"github.com/morozkovaa/lingua-news/internal/models"
)

// Registry — контракт реестра отозванных токенов.
type Registry interface {
	// Add — идемпотентный upsert по TokenID.
	Add(ctx context.Context, entry *models.BlacklistEntry) error
	// IsRevoked сообщает, отозван ли токен. Fail-open: при ошибке
	// хранилища возвращает false (ошибка логируется внутри).
	IsRevoked(ctx context.Context, tokenID string) bool
	// Cleanup удаляет записи с истёкшим expires_at; возвращает число удалённых.
	Cleanup(ctx context.Context, now time.Time) (int64, error)
	// Sweep — дешёвая внутрипроцессная уборка, пригодная для вызова
	// с горячего пути (Request Gate, ~1% запросов). Для реализаций без
	// внутрипроцессного состояния — no-op.
	Sweep(now time.Time) int
}
