package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/morozkovaa/lingua-news/internal/blacklist"
	"github.com/morozkovaa/lingua-news/internal/models"
	"github.com/morozkovaa/lingua-news/internal/pkg/log"
	"github.com/morozkovaa/lingua-news/internal/pkg/redact"
	"github.com/morozkovaa/lingua-news/internal/storage"
)

// SessionMeta — клиентские метаданные, фиксируемые в сессии при входе.
type SessionMeta struct {
	IPAddress  string
	UserAgent  string
	DeviceInfo string
}

// SetBlacklist устанавливает реестр отозванных access-токенов.
// Нужен операциям logout; проверку на каждом запросе делает Request Gate.
func (s *Service) SetBlacklist(r blacklist.Registry) {
	s.revoked = r
}

// RegisterUser регистрирует нового пользователя и открывает первую сессию.
func (s *Service) RegisterUser(ctx context.Context, email, password string, meta SessionMeta) (*models.TokenPair, *models.Session, error) {
	const op = "service.auth.RegisterUser"

	normEmail, err := validateEmail(email)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidEmail)
	}

	if err := validatePassword(password); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	_, err = s.storage.UserByEmail(ctx, normEmail)
	if err == nil {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrEmailTaken)
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	hashedPassword, err := hashPassword(password)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	now := time.Now().UTC()
	user := &models.User{
		ID:           uuid.New(),
		Email:        normEmail,
		PasswordHash: hashedPassword,
		Role:         "user",
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.storage.SaveUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return nil, nil, fmt.Errorf("%s: %w", op, ErrEmailTaken)
		}

		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	return s.openSession(ctx, user, meta)
}

// LoginUser выполняет вход по email+пароль и открывает новую сессию.
func (s *Service) LoginUser(ctx context.Context, email, password string, meta SessionMeta) (*models.TokenPair, *models.Session, error) {
	const op = "service.auth.LoginUser"

	normEmail, err := validateEmail(email)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	if len(password) == 0 {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	user, err := s.storage.UserByEmail(ctx, normEmail)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.recordLoginFailed(ctx, normEmail, meta)
			return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}

		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	if !checkPassword(user.PasswordHash, password) {
		s.recordLoginFailed(ctx, normEmail, meta)
		return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	if !user.IsActive {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrAccountDisabled)
	}

	return s.openSession(ctx, user, meta)
}

// RefreshTokens обновляет пару токенов по refresh-токену (ротация).
//
// Погашение старого токена — одиночный CAS в хранилище: из конкурентных
// запросов с одним и тем же токеном успешен ровно один, остальные получают
// ErrTokenReused. Повтор после успешной ротации — индикатор кражи:
// пишется событие REFRESH_TOKEN_REUSE, при включённом RevokeOnReuse
// отзываются все refresh-токены пользователя и гасится сессия токена.
func (s *Service) RefreshTokens(ctx context.Context, refreshToken string) (*models.TokenPair, uuid.UUID, error) {
	const op = "service.auth.RefreshTokens"

	lg := log.From(ctx)

	claims, err := s.parseRefreshToken(refreshToken)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	now := time.Now().UTC()
	hash := HashToken(refreshToken)

	redeemed, err := s.storage.RedeemRefreshToken(ctx, hash, now)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
		case errors.Is(err, storage.ErrExpired):
			return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrTokenExpired)
		case errors.Is(err, storage.ErrRevoked):
			s.handleRefreshReuse(ctx, claims)
			return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrTokenReused)
		default:
			return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	user, err := s.storage.UserByID(ctx, redeemed.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}

		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	if !user.IsActive {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrAccountDisabled)
	}

	pair, err := s.issueTokenPair(ctx, user, redeemed.SessionID, now)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	lg.Debug("refresh_rotated", slog.String("user_id", user.ID.String()))
	s.auditor.Record(ctx, models.SecurityEvent{
		EventType: models.EventTokenRefresh,
		Severity:  models.SeverityLow,
		UserID:    &user.ID,
	})

	return pair, user.ID, nil
}

// Logout гасит текущую сессию: refresh-токен отзывается, jti access-токена
// попадает в реестр отозванных до естественного истечения токена.
func (s *Service) Logout(ctx context.Context, claims *AccessClaims, rawAccessToken, refreshToken string) error {
	const op = "service.auth.Logout"

	lg := log.From(ctx)

	if refreshToken != "" {
		hash := HashToken(refreshToken)
		if _, err := s.storage.RevokeRefreshToken(ctx, hash); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	if s.revoked != nil {
		entry := &models.BlacklistEntry{
			TokenID:       claims.TokenID,
			TokenHash:     HashToken(rawAccessToken),
			UserID:        claims.UserID,
			Reason:        "logout",
			BlacklistedAt: time.Now().UTC(),
			ExpiresAt:     claims.ExpiresAt,
		}
		if err := s.revoked.Add(ctx, entry); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	if err := s.storage.TerminateSession(ctx, claims.SessionID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%s: %w", op, err)
	}

	lg.Info("logout", slog.String("user_id", claims.UserID.String()))
	s.auditor.Record(ctx, models.SecurityEvent{
		EventType: models.EventTokenRevoked,
		Severity:  models.SeverityLow,
		UserID:    &claims.UserID,
		Metadata:  map[string]any{"reason": "logout"},
	})

	return nil
}

// LogoutAll отзывает все refresh-токены пользователя и гасит все его сессии
// ("выйти всюду"). Текущий access-токен тоже попадает в реестр отозванных.
func (s *Service) LogoutAll(ctx context.Context, claims *AccessClaims, rawAccessToken string) error {
	const op = "service.auth.LogoutAll"

	lg := log.From(ctx)

	revoked, err := s.storage.RevokeAllForUser(ctx, claims.UserID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	terminated, err := s.storage.TerminateOtherSessions(ctx, claims.UserID, uuid.Nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if s.revoked != nil {
		entry := &models.BlacklistEntry{
			TokenID:       claims.TokenID,
			TokenHash:     HashToken(rawAccessToken),
			UserID:        claims.UserID,
			Reason:        "logout_all",
			BlacklistedAt: time.Now().UTC(),
			ExpiresAt:     claims.ExpiresAt,
		}
		if err := s.revoked.Add(ctx, entry); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	lg.Info("logout_all",
		slog.String("user_id", claims.UserID.String()),
		slog.Int64("tokens_revoked", revoked),
		slog.Int64("sessions_terminated", terminated),
	)
	s.auditor.Record(ctx, models.SecurityEvent{
		EventType: models.EventTokenRevoked,
		Severity:  models.SeverityMedium,
		UserID:    &claims.UserID,
		Metadata: map[string]any{
			"reason":              "logout_all",
			"tokens_revoked":      revoked,
			"sessions_terminated": terminated,
		},
	})

	return nil
}

// handleRefreshReuse фиксирует повторное предъявление ротированного
// refresh-токена и, если включено, каскадно отзывает токены пользователя.
func (s *Service) handleRefreshReuse(ctx context.Context, claims *refreshClaims) {
	lg := log.From(ctx)

	userID, uidErr := uuid.Parse(claims.Subject)
	sessionID, sidErr := uuid.Parse(claims.SessionID)

	lg.Warn("refresh_reuse_detected",
		slog.String("user_id", claims.Subject),
		slog.String("session_id", claims.SessionID),
	)

	var uidPtr *uuid.UUID
	if uidErr == nil {
		uidPtr = &userID
	}
	s.auditor.Record(ctx, models.SecurityEvent{
		EventType: models.EventRefreshTokenReuse,
		Severity:  models.SeverityHigh,
		UserID:    uidPtr,
		Metadata:  map[string]any{"session_id": claims.SessionID},
	})

	if !s.cfg.RevokeOnReuse || uidErr != nil {
		return
	}

	if _, err := s.storage.RevokeAllForUser(ctx, userID); err != nil {
		lg.Error("reuse_cascade_revoke_failed", slog.String("err", err.Error()))
	}
	if sidErr == nil {
		if err := s.storage.TerminateSession(ctx, sessionID); err != nil && !errors.Is(err, storage.ErrNotFound) {
			lg.Error("reuse_cascade_terminate_failed", slog.String("err", err.Error()))
		}
	}
}

// recordLoginFailed пишет событие неуспешного входа; email маскируется.
func (s *Service) recordLoginFailed(ctx context.Context, email string, meta SessionMeta) {
	s.auditor.Record(ctx, models.SecurityEvent{
		EventType: models.EventLoginFailed,
		Severity:  models.SeverityMedium,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		Metadata:  map[string]any{"email": redact.Email(email)},
	})
}

// openSession создаёт сессию и выпускает привязанную к ней пару токенов.
func (s *Service) openSession(ctx context.Context, user *models.User, meta SessionMeta) (*models.TokenPair, *models.Session, error) {
	const op = "service.auth.openSession"

	now := time.Now().UTC()

	session := &models.Session{
		ID:           uuid.New(),
		UserID:       user.ID,
		IPAddress:    meta.IPAddress,
		UserAgent:    meta.UserAgent,
		DeviceInfo:   meta.DeviceInfo,
		LastActivity: now,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.cfg.SessionTTL),
		IsActive:     true,
	}

	if err := s.storage.SaveSession(ctx, session); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	pair, err := s.issueTokenPair(ctx, user, session.ID, now)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	s.auditor.Record(ctx, models.SecurityEvent{
		EventType: models.EventLoginSuccess,
		Severity:  models.SeverityLow,
		UserID:    &user.ID,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		Metadata:  map[string]any{"session_id": session.ID.String()},
	})

	return pair, session, nil
}

// issueTokenPair выпускает новую пару access+refresh токенов для сессии.
func (s *Service) issueTokenPair(ctx context.Context, user *models.User, sessionID uuid.UUID, now time.Time) (*models.TokenPair, error) {
	const op = "service.auth.issueTokenPair"

	accessToken, _, err := s.generateAccessToken(ctx, user, sessionID, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	refreshToken, err := s.generateRefreshToken(ctx, user.ID, sessionID, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &models.TokenPair{
		AccessToken:     accessToken,
		RefreshToken:    refreshToken,
		AccessExpiresAt: now.Add(s.cfg.AccessTokenTTL),
	}, nil
}

// hashPassword хэширует пароль с помощью bcrypt.
func hashPassword(password string) (string, error) {
	const op = "service.auth.hashPassword"

	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return string(bytes), nil
}

// checkPassword сравнивает пароль с хэшем.
func checkPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// validateEmail проверяет базовый формат email и обрезает пробелы снаружи.
func validateEmail(raw string) (string, error) {
	const op = "service.auth.validateEmail"

	email := strings.TrimSpace(raw)
	if email == "" {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidEmail)
	}

	if _, err := mail.ParseAddress(email); err != nil {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidEmail)
	}

	return strings.ToLower(email), nil
}

// validatePassword проверяет минимальные требования к паролю.
// Политика по умолчанию: длина >= 8, хотя бы одна строчная, заглавная, цифра и спецсимвол.
func validatePassword(pw string) error {
	const op = "service.auth.validatePassword"

	if len(pw) == 0 {
		return fmt.Errorf("%s: %w", op, ErrEmptyPassword)
	}

	if len([]rune(pw)) < 8 {
		return fmt.Errorf("%s: %w", op, ErrWeakPassword)
	}

	var hasLower, hasUpper, hasDigit, hasSpecial bool
	for _, r := range pw {
		switch {
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSpecial = true
		}
	}

	if !(hasLower && hasUpper && hasDigit && hasSpecial) {
		return fmt.Errorf("%s: %w", op, ErrWeakPassword)
	}

	return nil
}
