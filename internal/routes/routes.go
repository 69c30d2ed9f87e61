package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/mwestergaard/hearth/internal/auth"
	"github.com/mwestergaard/hearth/internal/handlers"
	"github.com/mwestergaard/hearth/internal/middleware"
	"github.com/mwestergaard/hearth/internal/models"
	"github.com/mwestergaard/hearth/internal/services"
	pkghttp "github.com/mwestergaard/hearth/pkg/http"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	profileHandler *handlers.ProfileHandler,
	auditHandler *handlers.AuditHandler,
	sessions *services.SessionService,
	adminLimiter *services.RateLimitService,
	ipConfig *pkghttp.IPConfig,
) {
	publicLimit := middleware.DefaultPublicRateLimit()

	// Public routes - credential-guessing limiter runs inside the handler,
	// httprate blunts raw request floods ahead of it
	router.With(middleware.RateLimitByIP(publicLimit)).Post("/auth/login", authHandler.Login)

	// Authenticated routes
	router.Group(func(r chi.Router) {
		r.Use(auth.Middleware(sessions))

		r.Post("/auth/refresh", authHandler.Refresh)
		r.Post("/auth/logout", authHandler.Logout)

		r.With(auth.RequirePermission(models.ActionPinChange)).
			Post("/auth/password", authHandler.ChangePassword)

		r.With(auth.RequirePermission(models.ActionProfilesList)).
			Get("/profiles", profileHandler.List)

		// Admin management surface: permission-gated and throttled per IP
		r.Group(func(r chi.Router) {
			r.Use(middleware.AdminTraffic(adminLimiter, ipConfig))

			r.With(auth.RequirePermission(models.ActionProfilesManage)).
				Post("/profiles", profileHandler.Create)
			r.With(auth.RequirePermission(models.ActionRolesManage)).
				Put("/profiles/{name}/role", profileHandler.SetRole)
			r.With(auth.RequirePermission(models.ActionProfilesManage)).
				Put("/profiles/{name}/status", profileHandler.SetStatus)
			r.With(auth.RequirePermission(models.ActionPinReset)).
				Post("/profiles/{name}/reset-pin", profileHandler.ResetPin)
			r.With(auth.RequirePermission(models.ActionProfilesManage)).
				Delete("/profiles/{name}", profileHandler.Delete)
			r.With(auth.RequirePermission(models.ActionAuditRead)).
				Get("/audit", auditHandler.Read)
		})
	})
}
