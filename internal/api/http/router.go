package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/merturl4576/pyservice-mini-itsm/internal/api/http/handlers"
	"github.com/merturl4576/pyservice-mini-itsm/internal/auth"
	"github.com/merturl4576/pyservice-mini-itsm/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Users          *handlers.UsersHandler
	Incidents      *handlers.IncidentsHandler
	Requests       *handlers.RequestsHandler
	Assets         *handlers.AssetsHandler
	Notifications  *handlers.NotificationsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	authGroup := app.Group("/auth")
	authGroup.Post("/register", cfg.Users.Register)
	authGroup.Post("/login", cfg.Users.Login)
	authGroup.Post("/password/change", cfg.AuthMiddleware.Handle, auth.RequireAuthenticated(), cfg.Users.ChangePassword)

	protected := app.Group("", cfg.AuthMiddleware.Handle, auth.RequireAuthenticated())

	protected.Get("/users", auth.RequireRole(domain.RoleManager, domain.RoleAdmin), cfg.Users.ListUsers)

	incidents := protected.Group("/incidents")
	incidents.Post("", cfg.Incidents.Create)
	incidents.Get("", cfg.Incidents.List)
	incidents.Get("/:id", cfg.Incidents.Get)
	incidents.Post("/:id/claim", auth.RequireSupport(), cfg.Incidents.Claim)
	incidents.Post("/:id/complete", auth.RequireSupport(), cfg.Incidents.Complete)
	incidents.Post("/:id/escalate", auth.RequireSupport(), cfg.Incidents.Escalate)
	incidents.Patch("/:id/classification", auth.RequireSupport(), cfg.Incidents.Reclassify)

	requests := protected.Group("/requests")
	requests.Post("", cfg.Requests.Create)
	requests.Get("", cfg.Requests.List)
	requests.Get("/:id", cfg.Requests.Get)
	requests.Post("/:id/submit", cfg.Requests.Submit)
	requests.Post("/:id/cancel", cfg.Requests.Cancel)
	requests.Post("/:id/approve", auth.RequireApprover(), cfg.Requests.Approve)
	requests.Post("/:id/reject", auth.RequireApprover(), cfg.Requests.Reject)
	requests.Post("/:id/assign", auth.RequireApprover(), cfg.Requests.Assign)
	requests.Post("/:id/claim", auth.RequireSupport(), cfg.Requests.Claim)
	requests.Post("/:id/start", auth.RequireSupport(), cfg.Requests.StartWork)
	requests.Post("/:id/escalate", auth.RequireSupport(), cfg.Requests.Escalate)
	requests.Post("/:id/complete", auth.RequireSupport(), cfg.Requests.Complete)

	assets := protected.Group("/assets", auth.RequireSupport())
	assets.Post("", cfg.Assets.Create)
	assets.Get("", cfg.Assets.List)
	assets.Get("/inventory", cfg.Assets.Inventory)
	assets.Get("/:id", cfg.Assets.Get)
	assets.Post("/:id/return", cfg.Assets.Return)

	notifications := protected.Group("/notifications")
	notifications.Get("", cfg.Notifications.List)
	notifications.Get("/unread", cfg.Notifications.UnreadCount)
	notifications.Post("/:id/read", cfg.Notifications.MarkRead)
}
