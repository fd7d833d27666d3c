package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/morozkovaa/lingua-news/internal/transport/http/handlers"
	"github.com/morozkovaa/lingua-news/internal/transport/http/middleware"
)

// Options — параметры сборки HTTP-роутера.
type Options struct {
	Logger   *slog.Logger
	Timeout  time.Duration
	BasePath string // например, "/api"; если пустой — роуты регистрируются на корне.
}

// NewRouter собирает http.Handler с chi и подключёнными middleware/роутами.
// Gate навешивается только на защищённые маршруты: register/login/refresh
// аутентифицируются своими креденшелами, а не access-токеном.
func NewRouter(h *handlers.Handlers, gate *middleware.Gate, opts Options) http.Handler {
	root := chi.NewRouter()

	// Middleware (внешний -> внутренний).
	root.Use(
		middleware.Recover(),            // безопасно ловим паники
		middleware.RequestID(),          // формируем/прокидываем X-Request-Id (до логирования!)
		middleware.Logging(opts.Logger), // кладём request-scoped логгер в контекст и логируем
	)
	if opts.Timeout > 0 {
		root.Use(middleware.Timeout(opts.Timeout)) // общий дедлайн запроса
	}

	if opts.BasePath != "" {
		sub := chi.NewRouter()
		registerRoutes(sub, h, gate)
		root.Mount(opts.BasePath, sub)
		return root
	}

	registerRoutes(root, h, gate)
	return root
}

// registerRoutes — единая точка регистрации всех REST-эндпойнтов.
func registerRoutes(r chi.Router, h *handlers.Handlers, gate *middleware.Gate) {
	// Публичные маршруты: вместо Authn — только лимит запросов по IP.
	r.Group(func(pub chi.Router) {
		pub.Use(gate.Throttle())

		pub.Post("/auth/register", h.RegisterUser)
		pub.Post("/auth/login", h.LoginUser)
		pub.Post("/auth/refresh", h.RefreshTokens)
	})

	// Защищённые маршруты.
	r.Group(func(pr chi.Router) {
		pr.Use(gate.Authn())

		pr.Post("/auth/logout", h.Logout)
		pr.Post("/auth/logout-all", h.LogoutAll)
		pr.Get("/auth/me", h.Me)
		pr.Get("/auth/sessions", h.Sessions)
		pr.Post("/auth/sessions/terminate-others", h.TerminateOtherSessions)
	})
}
