package handlers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/morozkovaa/lingua-news/internal/models"
	"github.com/morozkovaa/lingua-news/internal/transport/http/httperr"
	"github.com/morozkovaa/lingua-news/internal/transport/http/middleware"
)

type meResponse struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	SessionID uuid.UUID `json:"session_id"`
}

type sessionResponse struct {
	ID           uuid.UUID `json:"id"`
	IPAddress    string    `json:"ip_address"`
	UserAgent    string    `json:"user_agent"`
	DeviceInfo   string    `json:"device_info,omitempty"`
	LastActivity time.Time `json:"last_activity"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	Current      bool      `json:"current"`
}

func sessionsFromModels(sessions []models.Session, current uuid.UUID) []sessionResponse {
	out := make([]sessionResponse, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, sessionResponse{
			ID:           s.ID,
			IPAddress:    s.IPAddress,
			UserAgent:    s.UserAgent,
			DeviceInfo:   s.DeviceInfo,
			LastActivity: s.LastActivity,
			CreatedAt:    s.CreatedAt,
			ExpiresAt:    s.ExpiresAt,
			Current:      s.ID == current,
		})
	}
	return out
}

// Me — GET /auth/me. Возвращает аутентифицированного субъекта.
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.FromContext(r.Context())
	if !ok {
		httperr.Write(w, http.StatusUnauthorized, httperr.CodeAuthTokenRequired, "authorization token required")
		return
	}

	writeJSON(w, http.StatusOK, meResponse{
		ID:        p.ID,
		Email:     p.Email,
		Role:      p.Role,
		SessionID: p.SessionID,
	})
}

// Sessions — GET /auth/sessions. Список активных сессий пользователя.
func (h *Handlers) Sessions(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.FromContext(r.Context())
	if !ok {
		httperr.Write(w, http.StatusUnauthorized, httperr.CodeAuthTokenRequired, "authorization token required")
		return
	}

	sessions, err := h.Service.Sessions(r.Context(), p.ID)
	if err != nil {
		httperr.WriteService(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": sessionsFromModels(sessions, p.SessionID),
	})
}

// TerminateOtherSessions — POST /auth/sessions/terminate-others.
// Завершает все сессии пользователя, кроме текущей.
func (h *Handlers) TerminateOtherSessions(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.FromContext(r.Context())
	if !ok {
		httperr.Write(w, http.StatusUnauthorized, httperr.CodeAuthTokenRequired, "authorization token required")
		return
	}

	terminated, err := h.Service.TerminateOtherSessions(r.Context(), p.ID, p.SessionID)
	if err != nil {
		httperr.WriteService(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{"terminated": terminated})
}
