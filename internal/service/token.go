package service

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/morozkovaa/lingua-news/internal/models"
	"github.com/morozkovaa/lingua-news/internal/pkg/log"
	"github.com/morozkovaa/lingua-news/internal/storage"
)

// accessClaims — схема claims access-токена на проводе.
// Имена полей (uid/email/role/sid + jti в RegisteredClaims) — часть
// wire-формата: менять их нельзя, иначе ранее выпущенные токены
// перестанут проходить проверку.
type accessClaims struct {
	UserID    string `json:"uid"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// refreshClaims — схема claims refresh-токена.
type refreshClaims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// AccessClaims — расшифрованные и проверенные claims access-токена.
// Эфемерны: никогда не персистятся.
type AccessClaims struct {
	UserID    uuid.UUID
	Email     string
	Role      string
	SessionID uuid.UUID
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// HashToken — SHA-256 от compact-представления токена (base64url без паддинга).
// Единая схема хэширования для refresh-токенов и blacklist-записей.
func HashToken(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// generateAccessToken генерирует access-токен со свежим jti.
// Возвращает подписанный токен и его jti.
func (s *Service) generateAccessToken(ctx context.Context, user *models.User, sessionID uuid.UUID, now time.Time) (string, string, error) {
	const op = "service.token.generateAccessToken"

	lg := log.From(ctx)

	jti := uuid.NewString()
	claims := accessClaims{
		UserID:    user.ID.String(),
		Email:     user.Email,
		Role:      user.Role,
		SessionID: sessionID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.AccessTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.cfg.Issuer,
			Subject:   user.ID.String(),
			Audience:  jwt.ClaimStrings(s.cfg.Audience),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		lg.Error("access_token_sign_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return "", "", fmt.Errorf("%s: %w", op, err)
	}

	return signed, jti, nil
}

// VerifyAccessToken проверяет подпись, issuer/audience и сроки access-токена
// и возвращает строго типизированные claims.
//
// Проверка реестра отозванных токенов сюда намеренно не входит — это
// обязанность вызывающего (Request Gate); кодек остаётся чистым и тестируемым.
//
// Помимо exp проверяется абсолютный потолок возраста: токен с iat старше
// MaxTokenAge отклоняется (ErrTokenTooOld) даже при непросроченном exp.
// Сравнения возраста идут в целых секундах — гранулярность NumericDate.
func (s *Service) VerifyAccessToken(tokenStr string) (*AccessClaims, error) {
	const op = "service.token.VerifyAccessToken"

	token, err := jwt.ParseWithClaims(tokenStr, &accessClaims{},
		func(t *jwt.Token) (interface{}, error) {
			if t.Method != jwt.SigningMethodHS256 {
				return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
			}

			return []byte(s.cfg.JWTSecret), nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(5*time.Second),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithAudience(s.cfg.Audience...),
	)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%s: %w", op, ErrTokenExpired)
		}

		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	claims, ok := token.Claims.(*accessClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	// Строгая схема: обязательные поля не могут быть пустыми или битых типов.
	if claims.ID == "" || claims.IssuedAt == nil || claims.ExpiresAt == nil {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	uid, err := uuid.Parse(claims.UserID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	sid, err := uuid.Parse(claims.SessionID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	if s.cfg.MaxTokenAge > 0 {
		age := time.Now().Unix() - claims.IssuedAt.Unix()
		if age > int64(s.cfg.MaxTokenAge.Seconds()) {
			return nil, fmt.Errorf("%s: %w", op, ErrTokenTooOld)
		}
	}

	return &AccessClaims{
		UserID:    uid,
		Email:     claims.Email,
		Role:      claims.Role,
		SessionID: sid,
		TokenID:   claims.ID,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// generateRefreshToken выпускает подписанный refresh-токен и синхронно
// сохраняет соответствующую запись в хранилище: токен и строка никогда
// не расходятся. При коллизии хэша (уникальный индекс) пробует заново
// со свежим jti.
func (s *Service) generateRefreshToken(ctx context.Context, userID, sessionID uuid.UUID, now time.Time) (string, error) {
	const (
		op          = "service.token.generateRefreshToken"
		maxAttempts = 5
	)

	lg := log.From(ctx)

	for attempt := 0; attempt < maxAttempts; attempt++ {
		claims := refreshClaims{
			SessionID: sessionID.String(),
			RegisteredClaims: jwt.RegisteredClaims{
				ID:        uuid.NewString(),
				ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.RefreshTokenTTL)),
				IssuedAt:  jwt.NewNumericDate(now),
				Issuer:    s.cfg.Issuer,
				Subject:   userID.String(),
			},
		}

		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.JWTSecret))
		if err != nil {
			lg.Error("refresh_token_sign_failed",
				slog.String("op", op),
				slog.String("err", err.Error()),
			)
			return "", fmt.Errorf("%s: %w", op, err)
		}

		token := &models.RefreshToken{
			RefreshTokenHash: HashToken(signed),
			UserID:           userID,
			SessionID:        sessionID,
			CreatedAt:        now,
			ExpiresAt:        now.Add(s.cfg.RefreshTokenTTL),
			Revoked:          false,
		}

		if err := s.storage.SaveRefreshToken(ctx, token); err != nil {
			if errors.Is(err, storage.ErrAlreadyExists) {
				// Редкая коллизия — пробуем сгенерировать заново.
				continue
			}

			lg.Error("save_refresh_token_failed",
				slog.String("op", op),
				slog.String("err", err.Error()),
			)
			return "", fmt.Errorf("%s: %w", op, err)
		}

		return signed, nil
	}

	lg.Error("refresh_collision_exceeded",
		slog.String("op", op),
	)

	return "", fmt.Errorf("%s: %w", op, ErrRefreshTokenCollision)
}

// parseRefreshToken проверяет подпись и сроки refresh-токена до обращения
// к хранилищу: подделанный токен не доходит до БД.
func (s *Service) parseRefreshToken(tokenStr string) (*refreshClaims, error) {
	const op = "service.token.parseRefreshToken"

	token, err := jwt.ParseWithClaims(tokenStr, &refreshClaims{},
		func(t *jwt.Token) (interface{}, error) {
			if t.Method != jwt.SigningMethodHS256 {
				return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
			}

			return []byte(s.cfg.JWTSecret), nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(5*time.Second),
		jwt.WithIssuer(s.cfg.Issuer),
	)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%s: %w", op, ErrTokenExpired)
		}

		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	claims, ok := token.Claims.(*refreshClaims)
	if !ok || !token.Valid || claims.ID == "" || claims.SessionID == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	return claims, nil
}
