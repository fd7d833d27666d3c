package models

import (
	"time"

	"github.com/google/uuid"
)

// RefreshToken — данные выпущенного refresh-токена.
// Одна строка на токен; plain-значение не хранится, только SHA-256 хэш.
type RefreshToken struct {
	RefreshTokenHash string
	UserID           uuid.UUID
	SessionID        uuid.UUID
	CreatedAt        time.Time
	ExpiresAt        time.Time
	Revoked          bool
}
