package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/morozkovaa/lingua-news/internal/service"
)

// Principal — аутентифицированный субъект запроса.
// Кладётся в контекст после успешного прохождения Authn и доступен
// хендлерам через FromContext.
type Principal struct {
	ID        uuid.UUID
	Email     string
	Role      string
	SessionID uuid.UUID

	// Claims и RawToken нужны logout-хендлерам: отзыв access-токена
	// требует jti и исходной компактной формы.
	Claims   *service.AccessClaims
	RawToken string
}

// FromContext достаёт Principal из контекста запроса.
func FromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(ctxPrincipal).(*Principal)
	return p, ok
}

// WithPrincipal кладёт Principal в контекст. Используется шлюзом
// и тестами хендлеров.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, ctxPrincipal, p)
}
