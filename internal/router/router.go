// Package router wires handlers and middleware onto echo routes.  Every
// API route lives under /api; /healthz, /readyz and /metrics sit at the
// root.
package router

import (
	"database/sql"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/ticketing-marketplace/internal/handler"
	"github.com/iliyamo/ticketing-marketplace/internal/metrics"
	"github.com/iliyamo/ticketing-marketplace/internal/middleware"
	"github.com/iliyamo/ticketing-marketplace/internal/model"
)

// Handlers bundles every handler the router mounts.
type Handlers struct {
	Auth          *handler.AuthHandler
	Profiles      *handler.ProfileHandler
	Events        *handler.EventHandler
	Wallet        *handler.WalletHandler
	Payouts       *handler.PayoutHandler
	Refunds       *handler.RefundHandler
	Bookings      *handler.BookingHandler
	Reviews       *handler.ReviewHandler
	Moderation    *handler.ModerationHandler
	Conversations *handler.ConversationHandler
	Admin         *handler.AdminHandler
}

var (
	members    = []string{model.RoleOrganizer, model.RoleArtist, model.RoleProvider, model.RoleCustomer}
	earners    = []string{model.RoleOrganizer, model.RoleArtist, model.RoleProvider}
	bookables  = []string{model.RoleArtist, model.RoleProvider}
	organizers = []string{model.RoleOrganizer}
)

// RegisterRoutes registers the unauthenticated operational endpoints.
func RegisterRoutes(e *echo.Echo, db *sql.DB, rdb *redis.Client) {
	e.GET("/healthz", handler.Health)
	e.GET("/readyz", handler.Ready(db, rdb))
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
}

// RegisterAuth registers the token endpoints under /api/auth and the
// caller's own account under /api/me.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/api/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)
	g.POST("/refresh-access", a.RefreshAccess)
	g.POST("/logout", a.Logout, middleware.OptionalAuth(jwtSecret))

	e.GET("/api/me", a.Me, middleware.JWTAuth(jwtSecret))
}

// Register mounts the whole API.
func Register(e *echo.Echo, h Handlers, jwtSecret string, cache echo.MiddlewareFunc) {
	RegisterAuth(e, h.Auth, jwtSecret)
	RegisterPublic(e, h, jwtSecret, cache)
	RegisterMember(e, h, jwtSecret)
	RegisterAdmin(e, h, jwtSecret)
}
