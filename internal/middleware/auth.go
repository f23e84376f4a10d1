package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticketing-marketplace/internal/utils"
)

// Context keys set by JWTAuth.
const (
	CtxUserID = "user_id"
	CtxRole   = "role"
	CtxError  = "handler_error"
)

func bearer(c echo.Context) string {
	h := c.Request().Header.Get(echo.HeaderAuthorization)
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// JWTAuth requires a valid access token and stores the caller's id and role
// on the context.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := bearer(c)
			if raw == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing token"})
			}
			id, err := utils.ParseAccessToken(secret, raw)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}
			c.Set(CtxUserID, id.UserID)
			c.Set(CtxRole, id.Role)
			return next(c)
		}
	}
}

// OptionalAuth is JWTAuth for public routes: a valid token identifies the
// caller, a missing or broken one leaves the request anonymous.
func OptionalAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if raw := bearer(c); raw != "" {
				if id, err := utils.ParseAccessToken(secret, raw); err == nil {
					c.Set(CtxUserID, id.UserID)
					c.Set(CtxRole, id.Role)
				}
			}
			return next(c)
		}
	}
}

// RequireRole rejects callers whose role is not listed.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, _ := c.Get(CtxRole).(string)
			if _, ok := allowed[role]; !ok {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
			}
			return next(c)
		}
	}
}

// UserID returns the authenticated caller, or 0 for anonymous requests.
func UserID(c echo.Context) uint64 {
	id, _ := c.Get(CtxUserID).(uint64)
	return id
}

// Role returns the authenticated caller's role, or "".
func Role(c echo.Context) string {
	r, _ := c.Get(CtxRole).(string)
	return r
}
