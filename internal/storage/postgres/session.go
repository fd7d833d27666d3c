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

// SaveSession создает новую сессию.
func (s *Storage) SaveSession(ctx context.Context, session *models.Session) error {
	const op = "storage.postgres.SaveSession"

	query := `
		INSERT INTO sessions(id, user_id, ip_address, user_agent, device_info,
		                     last_activity, created_at, expires_at, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := s.db.Exec(ctx, query,
		session.ID,
		session.UserID,
		session.IPAddress,
		session.UserAgent,
		session.DeviceInfo,
		session.LastActivity,
		session.CreatedAt,
		session.ExpiresAt,
		session.IsActive,
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

// SessionByID находит сессию по ID.
func (s *Storage) SessionByID(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	const op = "storage.postgres.SessionByID"

	query := `
		SELECT id, user_id, ip_address, user_agent, device_info,
		       last_activity, created_at, expires_at, is_active
		FROM sessions
		WHERE id = $1
	`

	var session models.Session
	err := s.db.QueryRow(ctx, query, id).Scan(
		&session.ID,
		&session.UserID,
		&session.IPAddress,
		&session.UserAgent,
		&session.DeviceInfo,
		&session.LastActivity,
		&session.CreatedAt,
		&session.ExpiresAt,
		&session.IsActive,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &session, nil
}

// SessionsByUser возвращает активные сессии пользователя,
// отсортированные по последней активности.
func (s *Storage) SessionsByUser(ctx context.Context, userID uuid.UUID) ([]models.Session, error) {
	const op = "storage.postgres.SessionsByUser"

	query := `
		SELECT id, user_id, ip_address, user_agent, device_info,
		       last_activity, created_at, expires_at, is_active
		FROM sessions
		WHERE user_id = $1 AND is_active = TRUE
		ORDER BY last_activity DESC
	`

	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		var session models.Session
		if err := rows.Scan(
			&session.ID,
			&session.UserID,
			&session.IPAddress,
			&session.UserAgent,
			&session.DeviceInfo,
			&session.LastActivity,
			&session.CreatedAt,
			&session.ExpiresAt,
			&session.IsActive,
		); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return sessions, nil
}

// TouchSession обновляет last_activity активной сессии.
func (s *Storage) TouchSession(ctx context.Context, id uuid.UUID, at time.Time) error {
	const op = "storage.postgres.TouchSession"

	query := `
		UPDATE sessions
		SET last_activity = $2
		WHERE id = $1 AND is_active = TRUE
	`

	cmdTag, err := s.db.Exec(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return nil
}

// TerminateSession гасит сессию. is_active=false терминально:
// повторный вызов — no-op без ошибки.
func (s *Storage) TerminateSession(ctx context.Context, id uuid.UUID) error {
	const op = "storage.postgres.TerminateSession"

	query := `
		UPDATE sessions
		SET is_active = FALSE
		WHERE id = $1
	`

	cmdTag, err := s.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return nil
}

// TerminateOtherSessions гасит все сессии пользователя, кроме keep
// ("выйти на всех остальных устройствах").
func (s *Storage) TerminateOtherSessions(ctx context.Context, userID, keep uuid.UUID) (int64, error) {
	const op = "storage.postgres.TerminateOtherSessions"

	query := `
		UPDATE sessions
		SET is_active = FALSE
		WHERE user_id = $1 AND id <> $2 AND is_active = TRUE
	`

	cmdTag, err := s.db.Exec(ctx, query, userID, keep)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return cmdTag.RowsAffected(), nil
}

// SweepExpiredSessions гасит сессии с истёкшим expires_at. Идемпотентно:
// повторный запуск без новых истечений затрагивает 0 строк.
func (s *Storage) SweepExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	const op = "storage.postgres.SweepExpiredSessions"

	query := `
		UPDATE sessions
		SET is_active = FALSE
		WHERE expires_at <= $1 AND is_active = TRUE
	`

	cmdTag, err := s.db.Exec(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return cmdTag.RowsAffected(), nil
}
