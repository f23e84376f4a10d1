package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticketing-marketplace/internal/middleware"
)

// RegisterPublic registers the catalogue endpoints guests may call.  A
// token, when present, identifies the caller so organizers can see their
// own unpublished events; anonymous GETs go through the response cache.
func RegisterPublic(e *echo.Echo, h Handlers, jwtSecret string, cache echo.MiddlewareFunc) {
	g := e.Group("/api", middleware.OptionalAuth(jwtSecret))

	g.GET("/events", h.Events.ListPublic, cache)
	g.GET("/events/:id", h.Events.Get, cache)
	g.GET("/profiles", h.Profiles.List, cache)
	g.GET("/profiles/:id", h.Profiles.Get, cache)
	g.GET("/profiles/:id/media", h.Profiles.ProfileMedia, cache)
	g.GET("/reviews", h.Reviews.List)

	// Signed by the payment gateway, not by a user.
	e.POST("/api/payments/webhook", h.Wallet.Webhook)
}
