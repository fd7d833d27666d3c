package models

import (
	"time"

	"github.com/google/uuid"
)

// User — модель пользователя в системе.
// Ядро аутентификации читает только {ID, Email, Role, IsActive};
// остальные поля принадлежат учётному хранилищу.
type User struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	Role         string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
