package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/morozkovaa/lingua-news/internal/models"
	"github.com/morozkovaa/lingua-news/internal/storage"
)

// SaveRefreshToken сохраняет новый refresh-токен в БД.
func (s *Storage) SaveRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	const op = "storage.postgres.SaveRefreshToken"

	query := `
        INSERT INTO refresh_tokens(token_hash, user_id, session_id, created_at, expires_at, revoked)
        VALUES ($1, $2, $3, $4, $5, $6)
    `

	_, err := s.db.Exec(ctx, query,
		token.RefreshTokenHash,
		token.UserID,
		token.SessionID,
		token.CreatedAt,
		token.ExpiresAt,
		token.Revoked,
	)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// RefreshTokenByHash находит refresh-токен по его хэшу.
func (s *Storage) RefreshTokenByHash(ctx context.Context, hash string) (*models.RefreshToken, error) {
	const op = "storage.postgres.RefreshTokenByHash"

	query := `
        SELECT token_hash, user_id, session_id, created_at, expires_at, revoked
        FROM refresh_tokens
        WHERE token_hash = $1
    `

	var token models.RefreshToken
	err := s.db.QueryRow(ctx, query, hash).Scan(
		&token.RefreshTokenHash,
		&token.UserID,
		&token.SessionID,
		&token.CreatedAt,
		&token.ExpiresAt,
		&token.Revoked,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &token, nil
}

// RedeemRefreshToken атомарно гасит активный непросроченный токен.
// CAS по флагу revoked: из N конкурентных погашений одного токена ровно
// одно проходит по условию revoked = FALSE; остальные попадают в
// диагностическую ветку и получают ErrRevoked.
//
// Возвращает:
//
//	(*token, nil)       — токен был активен и отозван этим вызовом;
//	(nil, ErrRevoked)   — токен уже отозван (сигнал о reuse для вызывающего);
//	(nil, ErrExpired)   — токен просрочен;
//	(nil, ErrNotFound)  — токен не найден.
func (s *Storage) RedeemRefreshToken(ctx context.Context, hash string, now time.Time) (*models.RefreshToken, error) {
	const op = "storage.postgres.RedeemRefreshToken"

	const upd = `
		UPDATE refresh_tokens
		SET revoked = TRUE
		WHERE token_hash = $1 AND revoked = FALSE AND expires_at > $2
		RETURNING token_hash, user_id, session_id, created_at, expires_at
	`

	var token models.RefreshToken
	err := s.db.QueryRow(ctx, upd, hash, now).Scan(
		&token.RefreshTokenHash,
		&token.UserID,
		&token.SessionID,
		&token.CreatedAt,
		&token.ExpiresAt,
	)
	if err == nil {
		token.Revoked = true
		return &token, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// CAS не прошёл — выясняем причину.
	const sel = `
		SELECT revoked, expires_at
		FROM refresh_tokens
		WHERE token_hash = $1
	`

	var (
		revoked   bool
		expiresAt time.Time
	)
	err = s.db.QueryRow(ctx, sel, hash).Scan(&revoked, &expiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if revoked {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrRevoked)
	}

	return nil, fmt.Errorf("%s: %w", op, storage.ErrExpired)
}

// RevokeRefreshToken пытается отозвать refresh-токен, если он ещё не был отозван.
// Возвращает:
//
//	(true, nil)  — токен был активен и успешно отозван сейчас;
//	(false, nil) — токен существует, но уже был отозван;
//	(false, ErrNotFound) — токен не найден.
func (s *Storage) RevokeRefreshToken(ctx context.Context, hash string) (bool, error) {
	const op = "storage.postgres.RevokeRefreshToken"

	const upd = `
		UPDATE refresh_tokens
		SET revoked = TRUE
		WHERE token_hash = $1 AND revoked = FALSE
		RETURNING user_id
	`

	var userID string
	err := s.db.QueryRow(ctx, upd, hash).Scan(&userID)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	const sel = `
		SELECT revoked
		FROM refresh_tokens
		WHERE token_hash = $1
	`

	var revoked bool
	err = s.db.QueryRow(ctx, sel, hash).Scan(&revoked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return false, fmt.Errorf("%s: %w", op, err)
	}

	return false, nil
}

// RevokeAllForUser отзывает все активные refresh-токены пользователя.
// Используется при logout-everywhere и при обнаружении компрометации.
func (s *Storage) RevokeAllForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	const op = "storage.postgres.RevokeAllForUser"

	query := `
		UPDATE refresh_tokens
		SET revoked = TRUE
		WHERE user_id = $1 AND revoked = FALSE
	`

	cmdTag, err := s.db.Exec(ctx, query, userID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return cmdTag.RowsAffected(), nil
}

// RevokeOtherSessionTokens отзывает активные токены пользователя из всех
// сессий, кроме keep. Пара к TerminateOtherSessions: погашенная сессия
// не должна оставлять за собой ротируемый refresh-токен.
func (s *Storage) RevokeOtherSessionTokens(ctx context.Context, userID, keep uuid.UUID) (int64, error) {
	const op = "storage.postgres.RevokeOtherSessionTokens"

	query := `
		UPDATE refresh_tokens
		SET revoked = TRUE
		WHERE user_id = $1 AND session_id <> $2 AND revoked = FALSE
	`

	cmdTag, err := s.db.Exec(ctx, query, userID, keep)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return cmdTag.RowsAffected(), nil
}

// DeleteExpiredTokens удаляет просроченные токены и отозванные строки,
// пережившие свой expires_at. Удаление трогает только логически мёртвые
// строки, поэтому безопасно при конкурентных Save/Redeem.
func (s *Storage) DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	const op = "storage.postgres.DeleteExpiredTokens"

	query := `
        DELETE FROM refresh_tokens
        WHERE expires_at <= $1
    `

	cmdTag, err := s.db.Exec(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return cmdTag.RowsAffected(), nil
}
