package middleware

import (
	"context"
	"errors"
	"log/slog"
	mrand "math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/morozkovaa/lingua-news/internal/audit"
	"github.com/morozkovaa/lingua-news/internal/blacklist"
	"github.com/morozkovaa/lingua-news/internal/models"
	logctx "github.com/morozkovaa/lingua-news/internal/pkg/log"
	"github.com/morozkovaa/lingua-news/internal/ratelimit"
	"github.com/morozkovaa/lingua-news/internal/service"
	"github.com/morozkovaa/lingua-news/internal/transport/http/httperr"
)

// AuthService — срез сервисного слоя, нужный шлюзу аутентификации.
type AuthService interface {
	VerifyAccessToken(token string) (*service.AccessClaims, error)
	IsSessionActive(ctx context.Context, sessionID uuid.UUID) (bool, error)
	TouchSession(ctx context.Context, sessionID uuid.UUID)
	UserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

var gateDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "auth_gate_decisions_total",
	Help: "Authentication gate decisions by outcome.",
}, []string{"outcome"})

// Gate — шлюз аутентификации для защищённых маршрутов.
//
// Порядок проверок фиксирован: дешёвые и безопасные отказы идут раньше
// дорогих. Лимит запросов считается до криптографии, чтобы перебор
// токенов не стоил нам CPU; лимит неудач списывается только после
// фактического провала верификации подписи.
type Gate struct {
	svc      AuthService
	registry blacklist.Registry
	success  ratelimit.Limiter
	failure  ratelimit.Limiter
	auditor  *audit.Recorder
}

func NewGate(svc AuthService, registry blacklist.Registry, success, failure ratelimit.Limiter, auditor *audit.Recorder) *Gate {
	return &Gate{
		svc:      svc,
		registry: registry,
		success:  success,
		failure:  failure,
		auditor:  auditor,
	}
}

// Authn возвращает мидлвар, выполняющий полную цепочку проверок:
// извлечение Bearer-токена, лимит запросов, реестр отозванных,
// верификация подписи и срока, возраст токена, активность сессии,
// статус учётной записи. Успех кладёт Principal в контекст.
func (g *Gate) Authn() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ip := ClientIP(r)

			// 1. Извлечение токена.
			raw, ok := bearerToken(r)
			if !ok {
				if r.Header.Get("Authorization") == "" {
					g.deny(w, "token_required",
						http.StatusUnauthorized, httperr.CodeAuthTokenRequired,
						"authorization token required")
					return
				}
				g.deny(w, "invalid_format",
					http.StatusUnauthorized, httperr.CodeInvalidTokenFormat,
					"invalid authorization header format")
				return
			}

			// 2. Лимит запросов по IP.
			if !g.consumeSuccess(ctx, w, r, ip) {
				return
			}

			// 3. Реестр отозванных токенов, до криптографии: jti читается
			// из неверифицированных claims, решение о допуске от них не
			// зависит (подпись всё равно проверяется следом).
			jti, ok := unverifiedTokenID(raw)
			if !ok {
				g.deny(w, "invalid_format",
					http.StatusUnauthorized, httperr.CodeInvalidTokenFormat,
					"invalid token format")
				return
			}
			if g.registry != nil && g.registry.IsRevoked(ctx, jti) {
				g.audit(ctx, models.SecurityEvent{
					EventType: models.EventAuthenticationFailed,
					Severity:  models.SeverityHigh,
					IPAddress: ip,
					UserAgent: r.UserAgent(),
					Metadata:  map[string]any{"reason": "token_blacklisted", "token_id": jti},
				})
				g.deny(w, "blacklisted",
					http.StatusUnauthorized, httperr.CodeTokenBlacklisted,
					"token revoked, re-authenticate")
				return
			}

			// 4-5. Верификация подписи, срока и возраста токена.
			claims, err := g.svc.VerifyAccessToken(raw)
			if err != nil {
				g.handleVerifyError(ctx, w, r, ip, err)
				return
			}

			// 6. Активность сессии. Ошибка хранилища — отказ (fail-closed):
			// пропускать при недоступной проверке сессии нельзя.
			active, err := g.svc.IsSessionActive(ctx, claims.SessionID)
			if err != nil {
				logctx.From(ctx).LogAttrs(ctx, slog.LevelError, "session_check_failed",
					slog.String("err", err.Error()))
				g.audit(ctx, models.SecurityEvent{
					EventType: models.EventSystemError,
					Severity:  models.SeverityCritical,
					UserID:    &claims.UserID,
					IPAddress: ip,
					Metadata:  map[string]any{"stage": "session_check"},
				})
				g.deny(w, "internal_error",
					http.StatusInternalServerError, httperr.CodeSystemError,
					"internal error")
				return
			}
			if !active {
				g.deny(w, "session_expired",
					http.StatusUnauthorized, httperr.CodeSessionExpired,
					"session expired, re-authenticate")
				return
			}
			g.svc.TouchSession(ctx, claims.SessionID)

			// 7. Статус учётной записи.
			user, err := g.svc.UserByID(ctx, claims.UserID)
			if err != nil {
				if errors.Is(err, service.ErrUserNotFound) {
					g.deny(w, "user_not_found",
						http.StatusNotFound, httperr.CodeUserNotFound,
						"user not found")
					return
				}
				logctx.From(ctx).LogAttrs(ctx, slog.LevelError, "user_load_failed",
					slog.String("err", err.Error()))
				g.deny(w, "internal_error",
					http.StatusInternalServerError, httperr.CodeSystemError,
					"internal error")
				return
			}
			if !user.IsActive {
				g.deny(w, "account_disabled",
					http.StatusUnauthorized, httperr.CodeAccountDisabled,
					"account disabled, contact support")
				return
			}

			// 8. Допуск.
			gateDecisions.WithLabelValues("allow").Inc()
			g.audit(ctx, models.SecurityEvent{
				EventType: models.EventAuthenticationSuccess,
				Severity:  models.SeverityLow,
				UserID:    &claims.UserID,
				IPAddress: ip,
				UserAgent: r.UserAgent(),
			})

			// Попутная уборка реестра: примерно на 1% запросов.
			if g.registry != nil && mrand.Intn(100) == 0 {
				g.registry.Sweep(time.Now())
			}

			p := &Principal{
				ID:        claims.UserID,
				Email:     user.Email,
				Role:      user.Role,
				SessionID: claims.SessionID,
				Claims:    claims,
				RawToken:  raw,
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(ctx, p)))
		})
	}
}

// Throttle возвращает мидлвар лимита запросов для публичных маршрутов.
// register/login/refresh не проходят через Authn, но бюджет запросов
// по IP расходуют наравне с защищёнными.
func (g *Gate) Throttle() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !g.consumeSuccess(r.Context(), w, r, ClientIP(r)) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// consumeSuccess списывает лимит запросов по IP. Заголовки ставятся и на
// успех: клиент должен видеть остаток бюджета. Возвращает false, если
// бюджет исчерпан и 429 уже записан.
func (g *Gate) consumeSuccess(ctx context.Context, w http.ResponseWriter, r *http.Request, ip string) bool {
	res, err := g.success.Consume(ctx, ip)
	if err != nil {
		return true
	}

	SetRateHeaders(w, res)
	if res.Allowed {
		return true
	}

	g.audit(ctx, models.SecurityEvent{
		EventType: models.EventRateLimitExceeded,
		Severity:  models.SeverityMedium,
		IPAddress: ip,
		UserAgent: r.UserAgent(),
		Metadata:  map[string]any{"limiter": "success", "path": r.URL.Path},
	})
	w.Header().Set("Retry-After", strconv.Itoa(RetryAfterSeconds(res)))
	g.deny(w, "rate_limited",
		http.StatusTooManyRequests, httperr.CodeRateLimitExceeded,
		"rate limit exceeded, retry later")
	return false
}

// handleVerifyError обрабатывает провал верификации токена.
// Лимит неудач списывается только здесь: до этой точки запрос мог
// провалиться по форме, а не по подписи.
func (g *Gate) handleVerifyError(ctx context.Context, w http.ResponseWriter, r *http.Request, ip string, err error) {
	if errors.Is(err, service.ErrTokenTooOld) {
		g.deny(w, "token_too_old",
			http.StatusUnauthorized, httperr.CodeTokenTooOld,
			"token too old, re-authenticate")
		return
	}

	if g.failure != nil {
		res, lerr := g.failure.Consume(ctx, ip)
		if lerr == nil && !res.Allowed {
			g.audit(ctx, models.SecurityEvent{
				EventType: models.EventRateLimitExceeded,
				Severity:  models.SeverityHigh,
				IPAddress: ip,
				UserAgent: r.UserAgent(),
				Metadata:  map[string]any{"limiter": "failure"},
			})
			// Заголовки перекрываются значениями лимитера неудач:
			// в ответе описан тот лимитер, который отклонил запрос.
			SetRateHeaders(w, res)
			w.Header().Set("Retry-After", strconv.Itoa(RetryAfterSeconds(res)))
			g.deny(w, "rate_limited",
				http.StatusTooManyRequests, httperr.CodeRateLimitExceeded,
				"too many failed attempts, retry later")
			return
		}
	}

	g.audit(ctx, models.SecurityEvent{
		EventType: models.EventAuthenticationFailed,
		Severity:  models.SeverityMedium,
		IPAddress: ip,
		UserAgent: r.UserAgent(),
		Metadata:  map[string]any{"reason": verifyFailReason(err)},
	})

	if errors.Is(err, service.ErrTokenExpired) {
		g.deny(w, "token_expired",
			http.StatusUnauthorized, httperr.CodeTokenExpired,
			"token expired, re-authenticate")
		return
	}
	g.deny(w, "invalid_token",
		http.StatusUnauthorized, httperr.CodeInvalidToken,
		"invalid token, re-authenticate")
}

func (g *Gate) deny(w http.ResponseWriter, outcome string, status int, code, msg string) {
	gateDecisions.WithLabelValues(outcome).Inc()
	httperr.Write(w, status, code, msg)
}

func (g *Gate) audit(ctx context.Context, ev models.SecurityEvent) {
	if g.auditor != nil {
		g.auditor.Record(ctx, ev)
	}
}

func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) || len(auth) <= len(prefix) {
		return "", false
	}
	token := strings.TrimSpace(auth[len(prefix):])
	if token == "" {
		return "", false
	}
	return token, true
}

// unverifiedTokenID достаёт jti без проверки подписи.
// Используется исключительно для запроса к реестру отозванных.
func unverifiedTokenID(raw string) (string, bool) {
	var claims jwt.RegisteredClaims
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(raw, &claims); err != nil {
		return "", false
	}
	if claims.ID == "" {
		return "", false
	}
	return claims.ID, true
}

// SetRateHeaders пишет контрактные заголовки X-RateLimit-* по исходу списания.
func SetRateHeaders(w http.ResponseWriter, res ratelimit.Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
}

// RetryAfterSeconds — значение Retry-After в секундах, минимум 1.
func RetryAfterSeconds(res ratelimit.Result) int {
	secs := int(res.RetryAfter.Round(time.Second).Seconds())
	if secs < 1 {
		secs = 1
	}
	return secs
}

func verifyFailReason(err error) string {
	switch {
	case errors.Is(err, service.ErrTokenExpired):
		return "token_expired"
	default:
		return "invalid_token"
	}
}
