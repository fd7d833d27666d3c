package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/morozkovaa/lingua-news/internal/blacklist"
	"github.com/morozkovaa/lingua-news/internal/models"
	"github.com/morozkovaa/lingua-news/internal/ratelimit"
	"github.com/morozkovaa/lingua-news/internal/service"
)

// stubAuth — управляемая заглушка сервисного среза шлюза.
type stubAuth struct {
	claims        *service.AccessClaims
	verifyErr     error
	sessionActive bool
	sessionErr    error
	user          *models.User
	userErr       error
	touched       int
}

func (s *stubAuth) VerifyAccessToken(string) (*service.AccessClaims, error) {
	if s.verifyErr != nil {
		return nil, s.verifyErr
	}
	return s.claims, nil
}

func (s *stubAuth) IsSessionActive(context.Context, uuid.UUID) (bool, error) {
	return s.sessionActive, s.sessionErr
}

func (s *stubAuth) TouchSession(context.Context, uuid.UUID) {
	s.touched++
}

func (s *stubAuth) UserByID(context.Context, uuid.UUID) (*models.User, error) {
	return s.user, s.userErr
}

// makeCompactToken выпускает формально валидный JWT с заданным jti.
// Подпись шлюз не проверяет сам (это делает заглушка), но компактная
// форма должна парситься для обращения к реестру отозванных.
func makeCompactToken(t *testing.T, jti string) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		ID:        jti,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("gate-test"))
	require.NoError(t, err)
	return signed
}

func happyStub() *stubAuth {
	uid := uuid.New()
	sid := uuid.New()
	return &stubAuth{
		claims: &service.AccessClaims{
			UserID:    uid,
			Email:     "user@example.com",
			Role:      "user",
			SessionID: sid,
			TokenID:   "jti-ok",
			IssuedAt:  time.Now().UTC(),
			ExpiresAt: time.Now().UTC().Add(15 * time.Minute),
		},
		sessionActive: true,
		user: &models.User{
			ID:       uid,
			Email:    "user@example.com",
			Role:     "user",
			IsActive: true,
		},
	}
}

type gateOpts struct {
	svc      AuthService
	registry blacklist.Registry
	success  ratelimit.Limiter
	failure  ratelimit.Limiter
}

func newTestGate(opts gateOpts) (http.Handler, *Principal) {
	if opts.registry == nil {
		opts.registry = blacklist.NewMemory()
	}
	if opts.success == nil {
		opts.success = ratelimit.NewLocal(ratelimit.Config{Limit: 100, Window: time.Minute})
	}
	if opts.failure == nil {
		opts.failure = ratelimit.NewLocal(ratelimit.Config{Limit: 100, Window: time.Minute})
	}

	seen := &Principal{}
	gate := NewGate(opts.svc, opts.registry, opts.success, opts.failure, nil)
	h := gate.Authn()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p, ok := FromContext(r.Context()); ok {
			*seen = *p
		}
		w.WriteHeader(http.StatusOK)
	}))
	return h, seen
}

func doRequest(h http.Handler, authz string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	r.RemoteAddr = "203.0.113.7:51234"
	if authz != "" {
		r.Header.Set("Authorization", authz)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func errCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Success bool `json:"success"`
		Error   struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.False(t, body.Success)
	require.NotEmpty(t, body.Error.Message)
	return body.Error.Code
}

func TestGate_MissingAndMalformedHeader(t *testing.T) {
	h, _ := newTestGate(gateOpts{svc: happyStub()})

	w := doRequest(h, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "AUTH_TOKEN_REQUIRED", errCode(t, w))

	w = doRequest(h, "Basic dXNlcjpwYXNz")
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "INVALID_TOKEN_FORMAT", errCode(t, w))

	w = doRequest(h, "Bearer not-a-jwt")
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "INVALID_TOKEN_FORMAT", errCode(t, w))
}

func TestGate_HappyPath(t *testing.T) {
	stub := happyStub()
	h, seen := newTestGate(gateOpts{svc: stub})

	w := doRequest(h, "Bearer "+makeCompactToken(t, "jti-ok"))
	require.Equal(t, http.StatusOK, w.Code)

	require.Equal(t, stub.claims.UserID, seen.ID)
	require.Equal(t, "user@example.com", seen.Email)
	require.Equal(t, stub.claims.SessionID, seen.SessionID)
	require.NotNil(t, seen.Claims)
	require.Equal(t, 1, stub.touched)

	// Заголовки бюджета присутствуют и на успехе.
	require.NotEmpty(t, w.Header().Get("X-RateLimit-Limit"))
	require.NotEmpty(t, w.Header().Get("X-RateLimit-Remaining"))
	require.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
}

func TestGate_SuccessLimiterExhaustion(t *testing.T) {
	stub := happyStub()
	h, _ := newTestGate(gateOpts{
		svc:     stub,
		success: ratelimit.NewLocal(ratelimit.Config{Limit: 2, Window: time.Hour}),
	})

	token := "Bearer " + makeCompactToken(t, "jti-ok")
	require.Equal(t, http.StatusOK, doRequest(h, token).Code)
	require.Equal(t, http.StatusOK, doRequest(h, token).Code)

	w := doRequest(h, token)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Equal(t, "RATE_LIMIT_EXCEEDED", errCode(t, w))
	require.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestGate_BlacklistedToken(t *testing.T) {
	stub := happyStub()
	registry := blacklist.NewMemory()
	require.NoError(t, registry.Add(context.Background(), &models.BlacklistEntry{
		TokenID:   "jti-revoked",
		UserID:    stub.claims.UserID,
		Reason:    "logout",
		ExpiresAt: time.Now().UTC().Add(time.Hour),
	}))

	h, _ := newTestGate(gateOpts{svc: stub, registry: registry})

	w := doRequest(h, "Bearer "+makeCompactToken(t, "jti-revoked"))
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "TOKEN_BLACKLISTED", errCode(t, w))
}

// Провал верификации списывает бюджет неудач; после исчерпания — 429.
func TestGate_FailureLimiterAfterVerifyFailures(t *testing.T) {
	stub := happyStub()
	stub.verifyErr = service.ErrInvalidToken

	h, _ := newTestGate(gateOpts{
		svc:     stub,
		failure: ratelimit.NewLocal(ratelimit.Config{Limit: 2, Window: time.Hour, Block: time.Hour}),
	})

	token := "Bearer " + makeCompactToken(t, "jti-x")

	w := doRequest(h, token)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "INVALID_TOKEN", errCode(t, w))

	w = doRequest(h, token)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = doRequest(h, token)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Equal(t, "RATE_LIMIT_EXCEEDED", errCode(t, w))
	require.NotEmpty(t, w.Header().Get("Retry-After"))
}

// TestGate_FailureLimiter429_HeadersFromFailureLimiter — на 429 от
// лимитера неудач заголовки X-RateLimit-* описывают именно его, а не
// лимитер запросов, чей бюджет ставится на входе.
func TestGate_FailureLimiter429_HeadersFromFailureLimiter(t *testing.T) {
	stub := happyStub()
	stub.verifyErr = service.ErrInvalidToken

	h, _ := newTestGate(gateOpts{
		svc:     stub,
		success: ratelimit.NewLocal(ratelimit.Config{Limit: 50, Window: time.Hour}),
		failure: ratelimit.NewLocal(ratelimit.Config{Limit: 1, Window: time.Hour, Block: time.Hour}),
	})

	token := "Bearer " + makeCompactToken(t, "jti-x")

	w := doRequest(h, token)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "50", w.Header().Get("X-RateLimit-Limit"))

	w = doRequest(h, token)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Equal(t, "1", w.Header().Get("X-RateLimit-Limit"))
	require.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	require.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestGate_ExpiredToken(t *testing.T) {
	stub := happyStub()
	stub.verifyErr = service.ErrTokenExpired

	h, _ := newTestGate(gateOpts{svc: stub})

	w := doRequest(h, "Bearer "+makeCompactToken(t, "jti-x"))
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "TOKEN_EXPIRED", errCode(t, w))
}

// Слишком старый токен не трогает бюджет неудач.
func TestGate_TokenTooOld_NoFailureConsumption(t *testing.T) {
	stub := happyStub()
	stub.verifyErr = service.ErrTokenTooOld

	h, _ := newTestGate(gateOpts{
		svc:     stub,
		failure: ratelimit.NewLocal(ratelimit.Config{Limit: 1, Window: time.Hour, Block: time.Hour}),
	})

	token := "Bearer " + makeCompactToken(t, "jti-x")
	for i := 0; i < 3; i++ {
		w := doRequest(h, token)
		require.Equal(t, http.StatusUnauthorized, w.Code)
		require.Equal(t, "TOKEN_TOO_OLD", errCode(t, w))
	}
}

func TestGate_SessionExpired(t *testing.T) {
	stub := happyStub()
	stub.sessionActive = false

	h, _ := newTestGate(gateOpts{svc: stub})

	w := doRequest(h, "Bearer "+makeCompactToken(t, "jti-ok"))
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "SESSION_EXPIRED", errCode(t, w))
	require.Zero(t, stub.touched)
}

// Сбой проверки сессии — отказ, а не пропуск.
func TestGate_SessionCheckFailsClosed(t *testing.T) {
	stub := happyStub()
	stub.sessionErr = context.DeadlineExceeded

	h, _ := newTestGate(gateOpts{svc: stub})

	w := doRequest(h, "Bearer "+makeCompactToken(t, "jti-ok"))
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Equal(t, "SYSTEM_ERROR", errCode(t, w))
}

func TestGate_UserNotFound(t *testing.T) {
	stub := happyStub()
	stub.user = nil
	stub.userErr = service.ErrUserNotFound

	h, _ := newTestGate(gateOpts{svc: stub})

	w := doRequest(h, "Bearer "+makeCompactToken(t, "jti-ok"))
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, "USER_NOT_FOUND", errCode(t, w))
}

func TestGate_AccountDisabled(t *testing.T) {
	stub := happyStub()
	stub.user.IsActive = false

	h, _ := newTestGate(gateOpts{svc: stub})

	w := doRequest(h, "Bearer "+makeCompactToken(t, "jti-ok"))
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "ACCOUNT_DISABLED", errCode(t, w))
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "198.51.100.4:1234"
	require.Equal(t, "198.51.100.4", ClientIP(r))

	r.Header.Set("X-Real-Ip", "203.0.113.9")
	require.Equal(t, "203.0.113.9", ClientIP(r))

	r.Header.Set("X-Forwarded-For", "192.0.2.1, 198.51.100.4")
	require.Equal(t, "192.0.2.1", ClientIP(r))
}
