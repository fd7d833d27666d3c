package middleware

import (
	"log/slog"
	"net/http"

	logctx "github.com/morozkovaa/lingua-news/internal/pkg/log"
	"github.com/morozkovaa/lingua-news/internal/transport/http/httperr"
)

// Recover перехватывает panic, конвертирует в 500 и пишет унифицированный ответ.
// Детали паники не утекают на клиент.
func Recover() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					// Безопасно логируем факт паники; детали наружу не отдаем.
					logctx.From(r.Context()).
						LogAttrs(r.Context(), slog.LevelError, "panic",
							slog.String("path", r.URL.Path),
							slog.Any("reason", rec),
						)
					httperr.Write(w, http.StatusInternalServerError,
						httperr.CodeSystemError, "internal error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
