package models

import (
	"time"

	"github.com/google/uuid"
)

// Типы событий безопасности.
const (
	EventLoginSuccess          = "LOGIN_SUCCESS"
	EventLoginFailed           = "LOGIN_FAILED"
	EventAuthenticationSuccess = "AUTHENTICATION_SUCCESS"
	EventAuthenticationFailed  = "AUTHENTICATION_FAILED"
	EventTokenRefresh          = "TOKEN_REFRESH"
	EventRefreshTokenReuse     = "REFRESH_TOKEN_REUSE"
	EventTokenRevoked          = "TOKEN_REVOKED"
	EventSessionTerminated     = "SESSION_TERMINATED"
	EventRateLimitExceeded     = "RATE_LIMIT_EXCEEDED"
	EventSystemError           = "SYSTEM_ERROR"
)

// Уровни серьёзности событий.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// SecurityEvent — запись журнала аудита. Append-only: ядро никогда
// не изменяет и не удаляет события (ретеншн — операционный вопрос).
type SecurityEvent struct {
	ID        uuid.UUID
	EventType string
	Severity  string
	UserID    *uuid.UUID
	IPAddress string
	UserAgent string
	Metadata  map[string]any
	CreatedAt time.Time
}
