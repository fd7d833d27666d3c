package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/morozkovaa/lingua-news/internal/models"
	"github.com/morozkovaa/lingua-news/internal/service"
	"github.com/morozkovaa/lingua-news/internal/transport/http/httperr"
	"github.com/morozkovaa/lingua-news/internal/transport/http/middleware"
)

// tokenGuess — провалы верификации токена, списывающие лимит неудач.
// Ошибки формы запроса и системные ошибки бюджет не расходуют.
func tokenGuess(err error) bool {
	return errors.Is(err, service.ErrInvalidToken) || errors.Is(err, service.ErrTokenExpired)
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token,omitempty"`
}

type tokenPairResponse struct {
	AccessToken     string    `json:"access_token"`
	RefreshToken    string    `json:"refresh_token"`
	AccessExpiresAt time.Time `json:"access_expires_at"`
	SessionID       uuid.UUID `json:"session_id"`
}

func tokenPairFromModel(pair *models.TokenPair, sessionID uuid.UUID) tokenPairResponse {
	return tokenPairResponse{
		AccessToken:     pair.AccessToken,
		RefreshToken:    pair.RefreshToken,
		AccessExpiresAt: pair.AccessExpiresAt,
		SessionID:       sessionID,
	}
}

// RegisterUser — POST /auth/register.
func (h *Handlers) RegisterUser(w http.ResponseWriter, r *http.Request) {
	var in credentialsRequest
	if err := decodeStrict(r, &in); err != nil {
		writeInvalidArgument(w)
		return
	}

	pair, session, err := h.Service.RegisterUser(r.Context(), in.Email, in.Password, sessionMeta(r))
	if err != nil {
		httperr.WriteService(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, tokenPairFromModel(pair, session.ID))
}

// LoginUser — POST /auth/login.
func (h *Handlers) LoginUser(w http.ResponseWriter, r *http.Request) {
	var in credentialsRequest
	if err := decodeStrict(r, &in); err != nil {
		writeInvalidArgument(w)
		return
	}

	pair, session, err := h.Service.LoginUser(r.Context(), in.Email, in.Password, sessionMeta(r))
	if err != nil {
		// Неверная пара логин/пароль списывает лимит неудач: перебор
		// учётных данных происходит именно здесь, а не на шлюзе.
		if errors.Is(err, service.ErrInvalidCredentials) && h.throttleFailure(w, r) {
			return
		}
		httperr.WriteService(w, err)
		return
	}

	writeJSON(w, http.StatusOK, tokenPairFromModel(pair, session.ID))
}

// RefreshTokens — POST /auth/refresh. Маршрут публичный: доказательство
// владения — сам refresh-токен, access-токен не требуется.
func (h *Handlers) RefreshTokens(w http.ResponseWriter, r *http.Request) {
	var in refreshRequest
	if err := decodeStrict(r, &in); err != nil || in.RefreshToken == "" {
		writeInvalidArgument(w)
		return
	}

	pair, sessionID, err := h.Service.RefreshTokens(r.Context(), in.RefreshToken)
	if err != nil {
		// Провал верификации refresh-токена — тот же перебор креденшелов.
		if tokenGuess(err) && h.throttleFailure(w, r) {
			return
		}
		httperr.WriteService(w, err)
		return
	}

	writeJSON(w, http.StatusOK, tokenPairFromModel(pair, sessionID))
}

// Logout — POST /auth/logout. Защищённый маршрут: отзывает refresh-токен
// (если передан), заносит текущий access-токен в реестр отозванных и
// завершает сессию.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.FromContext(r.Context())
	if !ok {
		httperr.Write(w, http.StatusUnauthorized, httperr.CodeAuthTokenRequired, "authorization token required")
		return
	}

	var in logoutRequest
	// Тело необязательно: logout без refresh-токена тоже валиден.
	_ = decodeStrict(r, &in)

	if err := h.Service.Logout(r.Context(), p.Claims, p.RawToken, in.RefreshToken); err != nil {
		httperr.WriteService(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

// LogoutAll — POST /auth/logout-all. Отзывает все refresh-токены
// пользователя и завершает все его сессии.
func (h *Handlers) LogoutAll(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.FromContext(r.Context())
	if !ok {
		httperr.Write(w, http.StatusUnauthorized, httperr.CodeAuthTokenRequired, "authorization token required")
		return
	}

	if err := h.Service.LogoutAll(r.Context(), p.Claims, p.RawToken); err != nil {
		httperr.WriteService(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}
