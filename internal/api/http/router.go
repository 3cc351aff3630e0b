package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-service/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Users          *handlers.UsersHandler
	Tickets        *handlers.TicketsHandler
	Messages       *handlers.MessagesHandler
	AuthMiddleware *auth.AuthMiddleware
	// UploadDir is served read-only under UploadPrefix when set.
	UploadDir    string
	UploadPrefix string
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/health/metrics", cfg.Health.Metrics)

	if cfg.UploadDir != "" && cfg.UploadPrefix != "" {
		app.Static(cfg.UploadPrefix, cfg.UploadDir, fiber.Static{Browse: false})
	}

	authGroup := app.Group("/auth")
	authGroup.Post("/register", cfg.Auth.Register)
	authGroup.Post("/login", cfg.Auth.Login)
	authGroup.Get("/me", cfg.AuthMiddleware.Handle, cfg.Auth.Me)

	users := app.Group("/users", cfg.AuthMiddleware.Handle, auth.RequireRole(domain.RoleAdmin))
	users.Get("", cfg.Users.List)
	users.Post("", cfg.Users.Create)
	users.Delete("/:id", cfg.Users.Delete)

	tickets := app.Group("/tickets", cfg.AuthMiddleware.Handle)
	tickets.Post("", cfg.Tickets.CreateTicket)
	tickets.Get("", cfg.Tickets.ListTickets)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Put("/:id", cfg.Tickets.UpdateTicket)
	tickets.Put("/:id/cancel", cfg.Tickets.CancelTicket)
	tickets.Put("/:id/status", cfg.Tickets.UpdateStatus)
	tickets.Get("/:id/history", cfg.Tickets.History)
	tickets.Get("/:id/messages", cfg.Messages.ListMessages)
	tickets.Post("/:id/messages", cfg.Messages.AddMessage)
	tickets.Put("/:id/messages/read", cfg.Messages.MarkAsRead)
}
