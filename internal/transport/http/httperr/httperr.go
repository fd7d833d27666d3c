// httperr стандартизирует ответы об ошибках HTTP-слоя.
//
// Каждый отказ — {"success":false,"error":{"message":…,"code":…}} со
// стабильным машиночитаемым кодом. Сообщения намеренно скупы в части
// "почему" (защита от oracle-атак) и конкретны в части "что делать".
// Внутренние детали и стектрейсы наружу не утекают никогда.
package httperr

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/morozkovaa/lingua-news/internal/service"
)

// Стабильные коды ошибок. Часть контракта с фронтом: менять нельзя.
const (
	CodeAuthTokenRequired  = "AUTH_TOKEN_REQUIRED"
	CodeInvalidTokenFormat = "INVALID_TOKEN_FORMAT"
	CodeInvalidToken       = "INVALID_TOKEN"
	CodeTokenExpired       = "TOKEN_EXPIRED"
	CodeTokenTooOld        = "TOKEN_TOO_OLD"
	CodeTokenBlacklisted   = "TOKEN_BLACKLISTED"
	CodeSessionExpired     = "SESSION_EXPIRED"
	CodeAccountDisabled    = "ACCOUNT_DISABLED"
	CodeUserNotFound       = "USER_NOT_FOUND"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeEmailTaken         = "EMAIL_TAKEN"
	CodeInvalidArgument    = "INVALID_ARGUMENT"
	CodeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED"
	CodeSystemError        = "SYSTEM_ERROR"
)

// APIError — тело ошибки в ответе.
type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// ErrorResponse — корневой объект ответа-отказа.
type ErrorResponse struct {
	Success bool     `json:"success"`
	Error   APIError `json:"error"`
}

// Write пишет унифицированный ответ-отказ.
func Write(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Success: false,
		Error:   APIError{Message: message, Code: code},
	})
}

// FromService маппит ошибку сервисного слоя в HTTP-статус, код и сообщение.
// Неузнанные ошибки схлопываются в 500/SYSTEM_ERROR без деталей.
func FromService(err error) (int, string, string) {
	switch {
	case errors.Is(err, service.ErrInvalidEmail),
		errors.Is(err, service.ErrWeakPassword),
		errors.Is(err, service.ErrEmptyPassword):
		return http.StatusBadRequest, CodeInvalidArgument, "invalid request"
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, CodeInvalidCredentials, "invalid credentials, re-authenticate"
	case errors.Is(err, service.ErrEmailTaken):
		return http.StatusConflict, CodeEmailTaken, "email already registered"
	case errors.Is(err, service.ErrTokenExpired):
		return http.StatusUnauthorized, CodeTokenExpired, "token expired, re-authenticate"
	case errors.Is(err, service.ErrTokenTooOld):
		return http.StatusUnauthorized, CodeTokenTooOld, "token too old, re-authenticate"
	case errors.Is(err, service.ErrTokenRevoked),
		errors.Is(err, service.ErrTokenReused),
		errors.Is(err, service.ErrInvalidToken):
		return http.StatusUnauthorized, CodeInvalidToken, "invalid token, re-authenticate"
	case errors.Is(err, service.ErrSessionExpired):
		return http.StatusUnauthorized, CodeSessionExpired, "session expired, re-authenticate"
	case errors.Is(err, service.ErrAccountDisabled):
		return http.StatusUnauthorized, CodeAccountDisabled, "account disabled, contact support"
	case errors.Is(err, service.ErrUserNotFound):
		return http.StatusNotFound, CodeUserNotFound, "user not found"
	default:
		return http.StatusInternalServerError, CodeSystemError, "internal error"
	}
}

// WriteService — хелпер для хендлеров: маппит ошибку сервиса и пишет отказ.
func WriteService(w http.ResponseWriter, err error) {
	status, code, msg := FromService(err)
	Write(w, status, code, msg)
}
