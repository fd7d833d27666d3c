package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/morozkovaa/lingua-news/internal/models"
	"github.com/morozkovaa/lingua-news/internal/pkg/log"
	"github.com/morozkovaa/lingua-news/internal/storage"
)

// IsSessionActive проверяет живость сессии: is_active=true и непросроченный
// expires_at. Отсутствующая сессия считается неактивной.
func (s *Service) IsSessionActive(ctx context.Context, sessionID uuid.UUID) (bool, error) {
	const op = "service.session.IsSessionActive"

	session, err := s.storage.SessionByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}

		return false, fmt.Errorf("%s: %w", op, err)
	}

	if !session.IsActive {
		return false, nil
	}

	return session.ExpiresAt.After(time.Now().UTC()), nil
}

// TouchSession обновляет last_activity. Best-effort: любая ошибка
// логируется и глотается — активность не должна ронять запрос.
func (s *Service) TouchSession(ctx context.Context, sessionID uuid.UUID) {
	const op = "service.session.TouchSession"

	if err := s.storage.TouchSession(ctx, sessionID, time.Now().UTC()); err != nil {
		log.From(ctx).Warn("session_touch_failed",
			slog.String("op", op),
			slog.String("session_id", sessionID.String()),
			slog.String("err", err.Error()),
		)
	}
}

// Sessions возвращает активные сессии пользователя.
func (s *Service) Sessions(ctx context.Context, userID uuid.UUID) ([]models.Session, error) {
	const op = "service.session.Sessions"

	sessions, err := s.storage.SessionsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return sessions, nil
}

// TerminateOtherSessions гасит все сессии пользователя, кроме текущей,
// и отзывает refresh-токены погашенных сессий ("выйти на других устройствах").
// Сначала отзываются токены, затем гасятся сессии: при сбое на полпути
// погашенная сессия не остаётся с живым ротируемым refresh-токеном.
func (s *Service) TerminateOtherSessions(ctx context.Context, userID, keep uuid.UUID) (int64, error) {
	const op = "service.session.TerminateOtherSessions"

	revoked, err := s.storage.RevokeOtherSessionTokens(ctx, userID, keep)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	count, err := s.storage.TerminateOtherSessions(ctx, userID, keep)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	s.auditor.Record(ctx, models.SecurityEvent{
		EventType: models.EventSessionTerminated,
		Severity:  models.SeverityMedium,
		UserID:    &userID,
		Metadata: map[string]any{
			"kept_session":   keep.String(),
			"terminated":     count,
			"revoked_tokens": revoked,
		},
	})

	return count, nil
}
