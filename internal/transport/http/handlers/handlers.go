package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/morozkovaa/lingua-news/internal/audit"
	"github.com/morozkovaa/lingua-news/internal/models"
	"github.com/morozkovaa/lingua-news/internal/ratelimit"
	"github.com/morozkovaa/lingua-news/internal/service"
	"github.com/morozkovaa/lingua-news/internal/transport/http/httperr"
	"github.com/morozkovaa/lingua-news/internal/transport/http/middleware"
)

// Handlers агрегирует зависимости HTTP-слоя.
type Handlers struct {
	Service *service.Service
	failure ratelimit.Limiter // может быть nil: провалы входа не лимитируются
	auditor *audit.Recorder   // может быть nil: события просто не пишутся
}

func New(s *service.Service) *Handlers {
	return &Handlers{Service: s}
}

// SetFailureLimiter устанавливает лимитер неудачных проверок креденшелов
// (опционально). Тот же экземпляр, что и у шлюза аутентификации: перебор
// паролей и перебор токенов делят один бюджет по IP.
func (h *Handlers) SetFailureLimiter(l ratelimit.Limiter) {
	h.failure = l
}

// SetAuditor устанавливает журнал событий безопасности (опционально).
func (h *Handlers) SetAuditor(a *audit.Recorder) {
	h.auditor = a
}

// throttleFailure списывает лимит неудач по IP после провала проверки
// креденшелов. Возвращает true, если бюджет исчерпан и 429 уже записан.
func (h *Handlers) throttleFailure(w http.ResponseWriter, r *http.Request) bool {
	if h.failure == nil {
		return false
	}

	ip := middleware.ClientIP(r)
	res, err := h.failure.Consume(r.Context(), ip)
	if err != nil || res.Allowed {
		return false
	}

	if h.auditor != nil {
		h.auditor.Record(r.Context(), models.SecurityEvent{
			EventType: models.EventRateLimitExceeded,
			Severity:  models.SeverityHigh,
			IPAddress: ip,
			UserAgent: r.UserAgent(),
			Metadata:  map[string]any{"limiter": "failure", "path": r.URL.Path},
		})
	}

	middleware.SetRateHeaders(w, res)
	w.Header().Set("Retry-After", strconv.Itoa(middleware.RetryAfterSeconds(res)))
	httperr.Write(w, http.StatusTooManyRequests, httperr.CodeRateLimitExceeded,
		"too many failed attempts, retry later")
	return true
}

// envelope — единый формат успешного ответа.
type envelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data,omitempty"`
}

// writeJSON — единый успешный ответ JSON с нужным Content-Type.
// Ошибки выводим через httperr.
func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: true, Data: value})
}

// decodeStrict — строгий JSON-декодер: запрещаем неизвестные поля.
func decodeStrict(r *http.Request, value any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(value)
}

func writeInvalidArgument(w http.ResponseWriter) {
	httperr.Write(w, http.StatusBadRequest, httperr.CodeInvalidArgument, "invalid request body")
}

// sessionMeta собирает метаданные сессии из запроса.
func sessionMeta(r *http.Request) service.SessionMeta {
	return service.SessionMeta{
		IPAddress:  middleware.ClientIP(r),
		UserAgent:  r.UserAgent(),
		DeviceInfo: r.Header.Get("X-Device-Info"),
	}
}
