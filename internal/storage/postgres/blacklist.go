package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/morozkovaa/lingua-news/internal/models"
)

// SaveBlacklistEntry — идемпотентный upsert по token_id.
// Повторное добавление того же jti не меняет существующую запись.
func (s *Storage) SaveBlacklistEntry(ctx context.Context, entry *models.BlacklistEntry) error {
	const op = "storage.postgres.SaveBlacklistEntry"

	query := `
		INSERT INTO blacklisted_tokens(token_id, token_hash, user_id, reason, blacklisted_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (token_id) DO NOTHING
	`

	_, err := s.db.Exec(ctx, query,
		entry.TokenID,
		entry.TokenHash,
		entry.UserID,
		entry.Reason,
		entry.BlacklistedAt,
		entry.ExpiresAt,
	)

	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// IsBlacklisted проверяет наличие token_id в реестре.
// Просроченные записи считаются отсутствующими ещё до их физического удаления.
func (s *Storage) IsBlacklisted(ctx context.Context, tokenID string) (bool, error) {
	const op = "storage.postgres.IsBlacklisted"

	query := `
		SELECT 1
		FROM blacklisted_tokens
		WHERE token_id = $1 AND expires_at > now()
	`

	var one int
	err := s.db.QueryRow(ctx, query, tokenID).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}

		return false, fmt.Errorf("%s: %w", op, err)
	}

	return true, nil
}

// DeleteExpiredBlacklistEntries удаляет логически мёртвые записи.
// Удаление трогает только строки с expires_at в прошлом, поэтому
// безопасно при конкурентных Save/IsBlacklisted.
func (s *Storage) DeleteExpiredBlacklistEntries(ctx context.Context, now time.Time) (int64, error) {
	const op = "storage.postgres.DeleteExpiredBlacklistEntries"

	query := `
		DELETE FROM blacklisted_tokens
		WHERE expires_at <= $1
	`

	cmdTag, err := s.db.Exec(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return cmdTag.RowsAffected(), nil
}
