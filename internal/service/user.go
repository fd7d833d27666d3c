package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/morozkovaa/lingua-news/internal/models"
	"github.com/morozkovaa/lingua-news/internal/storage"
)

// UserByID возвращает пользователя по идентификатору.
//
// Ошибки: ErrUserNotFound, обёрнутые ошибки хранилища.
func (s *Service) UserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	const op = "service.user.UserByID"

	user, err := s.storage.UserByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return user, nil
}
