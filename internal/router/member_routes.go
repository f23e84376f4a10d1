package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticketing-marketplace/internal/middleware"
)

// RegisterMember registers the endpoints of signed-in marketplace users.
// Admins are kept out of buying, booking and wallet flows.
func RegisterMember(e *echo.Echo, h Handlers, jwtSecret string) {
	g := e.Group("/api", middleware.JWTAuth(jwtSecret), middleware.RequireRole(members...))
	org := middleware.RequireRole(organizers...)
	earn := middleware.RequireRole(earners...)
	bookable := middleware.RequireRole(bookables...)

	// ---- Profiles & media ----
	g.PATCH("/profiles/me", h.Profiles.UpdateMe)
	g.GET("/media", h.Profiles.MyMedia, bookable)
	g.POST("/media", h.Profiles.AddMedia, bookable)
	g.DELETE("/media/:id", h.Profiles.DeleteMedia, bookable)

	// ---- Events (organizer) ----
	g.POST("/events", h.Events.Create, org)
	g.PUT("/events/:id", h.Events.Update, org)
	g.PATCH("/events/:id", h.Events.Update, org)
	g.POST("/events/:id/submit", h.Events.Submit, org)
	g.POST("/events/:id/cancel", h.Events.Cancel, org)
	g.GET("/organizer/events", h.Events.ListMine, org)
	g.GET("/events/:id/tickets", h.Events.EventTickets, org)

	// ---- Tickets ----
	g.POST("/events/:id/tickets", h.Events.Buy)
	g.GET("/tickets", h.Events.MyTickets)

	// ---- Wallet & payments ----
	g.GET("/wallet", h.Wallet.Get)
	g.GET("/wallet/transactions", h.Wallet.Transactions)
	g.POST("/payments/deposit", h.Wallet.Deposit)
	g.GET("/payments/deposit/:reference", h.Wallet.DepositStatus)
	g.GET("/payments/banks", h.Wallet.Banks)
	g.POST("/payments/verify-account", h.Wallet.VerifyAccount)
	g.POST("/payments/withdraw", h.Wallet.Withdraw, earn)
	g.GET("/payouts", h.Payouts.Mine, earn)

	// ---- Refunds ----
	g.POST("/refunds", h.Refunds.Create)
	g.GET("/refunds", h.Refunds.Mine)

	// ---- Bookings ----
	g.POST("/bookings", h.Bookings.Create, org)
	g.GET("/bookings", h.Bookings.List, earn)
	g.GET("/bookings/:id", h.Bookings.Get, earn)
	g.POST("/bookings/:id/:action", h.Bookings.Transition, earn)

	// ---- Reviews & reports ----
	g.POST("/reviews", h.Reviews.Create)
	g.POST("/reports", h.Moderation.Report)

	// ---- Conversations ----
	g.POST("/conversations/start", h.Conversations.Start)
	g.GET("/conversations", h.Conversations.List)
	g.GET("/conversations/:id/messages", h.Conversations.Messages)
	g.POST("/conversations/:id/messages", h.Conversations.Send)
	g.POST("/conversations/:id/read", h.Conversations.MarkRead)
}
