package models

import (
	"time"

	"github.com/google/uuid"
)

// Session — логическая сессия пользователя (одна на вход).
// Живёт независимо от времени жизни отдельных токенов: ротация refresh-токена
// не создаёт новую сессию.
//
// Инварианты:
//   - не более одной строки на SessionID;
//   - IsActive=false — терминальное состояние, сессии не реактивируются.
type Session struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	IPAddress    string
	UserAgent    string
	DeviceInfo   string
	LastActivity time.Time
	CreatedAt    time.Time
	ExpiresAt    time.Time
	IsActive     bool
}
