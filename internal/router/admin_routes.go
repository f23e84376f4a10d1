package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticketing-marketplace/internal/middleware"
	"github.com/iliyamo/ticketing-marketplace/internal/model"
)

// RegisterAdmin registers ADMIN-scoped endpoints under /api/admin.
func RegisterAdmin(e *echo.Echo, h Handlers, jwtSecret string) {
	g := e.Group("/api/admin", middleware.JWTAuth(jwtSecret), middleware.RequireRole(model.RoleAdmin))

	g.GET("/stats", h.Admin.Stats)
	g.GET("/audit-logs", h.Admin.AuditLogs)
	g.POST("/send-email", h.Admin.SendEmail)

	// ---- Events ----
	g.GET("/events", h.Events.ListAdmin)
	g.POST("/events/:id/approve", h.Events.Approve)
	g.POST("/events/:id/reject", h.Events.Reject)
	g.GET("/events/:id/tickets", h.Events.EventTickets)

	// ---- Money ----
	g.GET("/payouts", h.Payouts.ListAdmin)
	g.POST("/payouts/:id/approve", h.Payouts.Approve)
	g.POST("/payouts/:id/reject", h.Payouts.Reject)
	g.GET("/refunds", h.Refunds.ListAdmin)
	g.POST("/refunds/:id/approve", h.Refunds.Approve)
	g.POST("/refunds/:id/reject", h.Refunds.Reject)

	// ---- Moderation ----
	g.GET("/reports", h.Moderation.List)
	g.POST("/reports/:id/resolve", h.Moderation.Resolve)
	g.POST("/reports/:id/dismiss", h.Moderation.Dismiss)
	g.POST("/reviews/:id/hide", h.Reviews.Hide)
	g.POST("/reviews/:id/unhide", h.Reviews.Unhide)
	g.POST("/users/:id/suspend", h.Moderation.Suspend)
	g.POST("/users/:id/reinstate", h.Moderation.Reinstate)
}
