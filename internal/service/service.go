// service содержит бизнес-логику ядра аутентификации:
// регистрацию/вход пользователей, выпуск/проверку токенов, ротацию
// refresh-токенов, жизненный цикл сессий и работу с хранилищем через
// интерфейсы из пакета storage.
//
// Основные аспекты:
//   - Пакет не хранит состояние запроса внутри Service; экземпляр Service
//     безопасен для конкурентного использования из разных горутин при условии,
//     что переданное хранилище (storage.Storage) потокобезопасно.
//   - Взаимное исключение конкурентных погашений одного refresh-токена
//     делегировано атомарному CAS в хранилище, а не внутрипроцессным локам:
//     инстансов сервиса может быть несколько.
//   - Ошибки возвращаются и далее маппятся HTTP-слоем на стабильные коды.
package service

import (
	"errors"

	"github.com/morozkovaa/lingua-news/internal/audit"
	"github.com/morozkovaa/lingua-news/internal/blacklist"
	"github.com/morozkovaa/lingua-news/internal/config"
	"github.com/morozkovaa/lingua-news/internal/storage"
)

var (
	// ErrInvalidCredentials — пара логин/пароль неверна или пользователь не найден.
	// Транспорт: 401, без уточнения причины.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidToken — токен (access/refresh) некорректен по формату/подписи
	// или не проходит строгую схему claims. Транспорт: 401 INVALID_TOKEN.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired — срок действия токена истёк. Транспорт: 401 TOKEN_EXPIRED.
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenTooOld — возраст токена превысил абсолютный потолок,
	// независимо от exp. Транспорт: 401 TOKEN_TOO_OLD.
	ErrTokenTooOld = errors.New("token too old")

	// ErrTokenRevoked — токен отозван (logout/rotation/compromise) и недействителен
	// независимо от срока. Транспорт: 401.
	ErrTokenRevoked = errors.New("token revoked")

	// ErrTokenReused — повторное предъявление уже ротированного refresh-токена.
	// Сигнал возможной кражи токена. Транспорт: 401.
	ErrTokenReused = errors.New("refresh token reused")

	// ErrSessionExpired — сессия погашена или просрочена.
	// Транспорт: 401 SESSION_EXPIRED.
	ErrSessionExpired = errors.New("session expired")

	// ErrAccountDisabled — учётная запись деактивирована.
	// Транспорт: 401 ACCOUNT_DISABLED.
	ErrAccountDisabled = errors.New("account disabled")

	// ErrUserNotFound — субъект токена не существует. Транспорт: 404.
	ErrUserNotFound = errors.New("user not found")

	// ErrEmailTaken — e-mail уже занят другим пользователем. Транспорт: 409.
	ErrEmailTaken = errors.New("email already taken")

	// ErrRefreshTokenCollision — исчерпаны попытки сгенерировать уникальный
	// refresh-токен (редчайшие коллизии хэша при сохранении). Транспорт: 500.
	ErrRefreshTokenCollision = errors.New("refresh token collision")

	// ErrInvalidEmail — e-mail имеет некорректный формат. Транспорт: 400.
	ErrInvalidEmail = errors.New("invalid email format")

	// ErrWeakPassword — пароль не удовлетворяет политикам сложности. Транспорт: 400.
	ErrWeakPassword = errors.New("password is too weak")

	// ErrEmptyPassword — пароль пустой. Транспорт: 400.
	ErrEmptyPassword = errors.New("password is empty")
)

// Service описывает бизнес-логику ядра аутентификации.
type Service struct {
	storage storage.Storage
	cfg     config.AuthConfig
	auditor *audit.Recorder    // может быть nil: события просто не пишутся
	revoked blacklist.Registry // может быть nil: logout не блэклистит access-токены
}

// New создаёт новый экземпляр Service.
func New(storage storage.Storage, cfg config.AuthConfig) *Service {
	return &Service{
		storage: storage,
		cfg:     cfg,
	}
}

// SetAuditor устанавливает журнал событий безопасности (опционально).
func (s *Service) SetAuditor(a *audit.Recorder) {
	s.auditor = a
}
