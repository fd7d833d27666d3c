package models

import (
	"time"

	"github.com/google/uuid"
)

// BlacklistEntry — отозванный access-токен.
// TokenID (jti) уникален; запись с ExpiresAt в прошлом логически мертва
// и подлежит удалению фоновой очисткой.
type BlacklistEntry struct {
	TokenID       string
	TokenHash     string
	UserID        uuid.UUID
	Reason        string
	BlacklistedAt time.Time
	ExpiresAt     time.Time
}
