// Package coordinator собирает координатор сессий: хранилище, шину событий,
// реестр сессий, очередь уведомлений, жизненный цикл подписок и HTTP-маршруты.
package coordinator

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/magabrotheeeer/parkease-coordinator/internal/http/handlers/admin/backup"
	"github.com/magabrotheeeer/parkease-coordinator/internal/http/handlers/admin/expiring"
	"github.com/magabrotheeeer/parkease-coordinator/internal/http/handlers/admin/extend"
	"github.com/magabrotheeeer/parkease-coordinator/internal/http/handlers/admin/forcelogout"
	"github.com/magabrotheeeer/parkease-coordinator/internal/http/handlers/admin/forcelogoutall"
	"github.com/magabrotheeeer/parkease-coordinator/internal/http/handlers/admin/history"
	"github.com/magabrotheeeer/parkease-coordinator/internal/http/handlers/admin/restore"
	"github.com/magabrotheeeer/parkease-coordinator/internal/http/handlers/auth/guest"
	"github.com/magabrotheeeer/parkease-coordinator/internal/http/handlers/auth/login"
	"github.com/magabrotheeeer/parkease-coordinator/internal/http/handlers/auth/logout"
	"github.com/magabrotheeeer/parkease-coordinator/internal/http/handlers/auth/refresh"
	"github.com/magabrotheeeer/parkease-coordinator/internal/http/handlers/auth/sessions"
	"github.com/magabrotheeeer/parkease-coordinator/internal/http/handlers/users/subscription"
	"github.com/magabrotheeeer/parkease-coordinator/internal/http/middlewarectx"
)

// Лимиты запросов с одного адреса за окно в 15 минут.
const (
	limitWindow  = 15 * time.Minute
	apiLimit     = 100
	authLimit    = 5
	apiLimitMsg  = "Too many requests from this IP, please try again later."
	authLimitMsg = "Too many authentication attempts, please try again later."
)

// AuthService операции шлюза идентичности, нужные маршрутам.
type AuthService interface {
	login.Service
	guest.Service
	refresh.Service
	logout.Service
	middlewarectx.Verifier
}

// SessionService операции реестра сессий, нужные маршрутам.
type SessionService interface {
	sessions.Service
	forcelogout.Service
	forcelogoutall.Service
}

// LifecycleService операции жизненного цикла подписок, нужные маршрутам.
type LifecycleService interface {
	extend.Service
	expiring.Service
	history.Service
	backup.Service
	restore.Service
	subscription.Service
}

// Routes зависимости HTTP-маршрутов.
type Routes struct {
	Auth           AuthService
	Sessions       SessionService
	Lifecycle      LifecycleService
	WebSocket      http.HandlerFunc
	Health         http.Handler
	GuestTrialDays int
}

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, deps Routes) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
	)

	apiLimiter := middlewarectx.NewIPLimiter(limitWindow/apiLimit, apiLimit)
	authLimiter := middlewarectx.NewIPLimiter(limitWindow/authLimit, authLimit)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middlewarectx.RateLimitMiddleware(logger, apiLimiter, apiLimitMsg))

		// Открытые конечные точки
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.RateLimitMiddleware(logger, authLimiter, authLimitMsg))
			r.Post("/auth/login", login.New(logger, deps.Auth).ServeHTTP)
			r.Post("/auth/guest", guest.New(logger, deps.Auth, deps.GuestTrialDays).ServeHTTP)
		})
		r.Post("/auth/refresh", refresh.New(logger, deps.Auth).ServeHTTP)

		// Группа с JWT аутентификацией
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.JWTMiddleware(deps.Auth, logger))
			r.Post("/auth/logout", logout.New(logger, deps.Auth).ServeHTTP)
			r.Get("/auth/sessions", sessions.New(logger, deps.Sessions).ServeHTTP)
			r.Get("/users/subscription", subscription.New(logger, deps.Lifecycle).ServeHTTP)

			r.Route("/admin", func(r chi.Router) {
				r.Use(middlewarectx.AdminOnly(logger))
				r.Post("/users/{id}/extend", extend.New(logger, deps.Lifecycle).ServeHTTP)
				r.Get("/users/{id}/subscription-history", history.New(logger, deps.Lifecycle).ServeHTTP)
				r.Post("/users/{id}/backup", backup.New(logger, deps.Lifecycle).ServeHTTP)
				r.Post("/users/{id}/restore", restore.New(logger, deps.Lifecycle).ServeHTTP)
				r.Get("/subscriptions/expiring", expiring.New(logger, deps.Lifecycle).ServeHTTP)
				r.Post("/force-logout", forcelogout.New(logger, deps.Sessions).ServeHTTP)
				r.Post("/force-logout-all", forcelogoutall.New(logger, deps.Sessions).ServeHTTP)
			})
		})
	})

	r.Get("/ws", deps.WebSocket)
	r.Handle("/health", deps.Health)
	r.Handle("/metrics", promhttp.Handler())
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
