package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/morozkovaa/lingua-news/internal/models"
)

var (
	// ErrNotFound — запись не найдена (пользователь/токен/сессия).
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists — нарушение уникальности (email/refresh-token/jti).
	ErrAlreadyExists = errors.New("already exists")
	// ErrExpired — сущность просрочена (refresh-token).
	ErrExpired = errors.New("expired")
	// ErrRevoked — сущность отозвана (refresh-token).
	ErrRevoked = errors.New("revoked")
)

// UserStorage выполняет операции над пользователями.
// Ядро аутентификации использует только чтение по ID; запись нужна
// эндпойнту регистрации.
type UserStorage interface {
	// SaveUser создает нового пользователя в БД.
	SaveUser(ctx context.Context, user *models.User) error
	// UserByEmail находит пользователя по email.
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	// UserByID находит пользователя по ID.
	UserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// RefreshTokenStorage выполняет операции над refresh-токенами.
type RefreshTokenStorage interface {
	// SaveRefreshToken сохраняет новый refresh-токен в БД.
	SaveRefreshToken(ctx context.Context, token *models.RefreshToken) error
	// RefreshTokenByHash находит refresh-токен по его хэшу.
	RefreshTokenByHash(ctx context.Context, hash string) (*models.RefreshToken, error)
	// RedeemRefreshToken атомарно гасит активный непросроченный токен
	// (compare-and-set по флагу revoked). Ровно один из конкурентных
	// вызовов получает успех; остальные — ErrRevoked.
	// Ошибки: ErrNotFound / ErrRevoked / ErrExpired.
	RedeemRefreshToken(ctx context.Context, hash string, now time.Time) (*models.RefreshToken, error)
	// RevokeRefreshToken пытается отозвать refresh-токен.
	// (true, nil) — был активен и отозван; (false, nil) — уже отозван;
	// (false, ErrNotFound) — не найден.
	RevokeRefreshToken(ctx context.Context, hash string) (bool, error)
	// RevokeAllForUser отзывает все активные токены пользователя.
	RevokeAllForUser(ctx context.Context, userID uuid.UUID) (int64, error)
	// RevokeOtherSessionTokens отзывает активные токены пользователя,
	// принадлежащие любым сессиям, кроме keep.
	RevokeOtherSessionTokens(ctx context.Context, userID, keep uuid.UUID) (int64, error)
	// DeleteExpiredTokens удаляет просроченные и давно отозванные токены.
	DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error)
}

// SessionStorage выполняет операции над сессиями.
type SessionStorage interface {
	// SaveSession создает новую сессию.
	SaveSession(ctx context.Context, session *models.Session) error
	// SessionByID находит сессию по ID.
	SessionByID(ctx context.Context, id uuid.UUID) (*models.Session, error)
	// SessionsByUser возвращает активные сессии пользователя.
	SessionsByUser(ctx context.Context, userID uuid.UUID) ([]models.Session, error)
	// TouchSession обновляет last_activity.
	TouchSession(ctx context.Context, id uuid.UUID, at time.Time) error
	// TerminateSession гасит сессию (is_active=false, терминально).
	TerminateSession(ctx context.Context, id uuid.UUID) error
	// TerminateOtherSessions гасит все сессии пользователя, кроме keep.
	TerminateOtherSessions(ctx context.Context, userID, keep uuid.UUID) (int64, error)
	// SweepExpiredSessions гасит сессии с истёкшим expires_at; идемпотентно.
	SweepExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

// BlacklistStorage выполняет операции над отозванными access-токенами.
type BlacklistStorage interface {
	// SaveBlacklistEntry — идемпотентный upsert по token_id.
	SaveBlacklistEntry(ctx context.Context, entry *models.BlacklistEntry) error
	// IsBlacklisted проверяет наличие token_id в реестре.
	IsBlacklisted(ctx context.Context, tokenID string) (bool, error)
	// DeleteExpiredBlacklistEntries удаляет логически мёртвые записи.
	DeleteExpiredBlacklistEntries(ctx context.Context, now time.Time) (int64, error)
}

// AuditStorage — append-only журнал событий безопасности.
type AuditStorage interface {
	// SaveSecurityEvent добавляет событие в журнал.
	SaveSecurityEvent(ctx context.Context, event *models.SecurityEvent) error
}

// Storage задает контракт работы с БД.
type Storage interface {
	UserStorage
	RefreshTokenStorage
	SessionStorage
	BlacklistStorage
	AuditStorage
	Close()
}
