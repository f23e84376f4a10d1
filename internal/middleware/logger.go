package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// RequestLogger writes one structured line per request.  Server errors log
// at error level with the error a handler left under CtxError, client
// errors at warn, the rest at info.
func RequestLogger(log logrus.FieldLogger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			} else if herr, ok := c.Get(CtxError).(error); ok {
				err = herr
			}
			req := c.Request()
			res := c.Response()
			entry := log.WithFields(logrus.Fields{
				"method":     req.Method,
				"route":      c.Path(),
				"path":       req.URL.Path,
				"status":     res.Status,
				"latency_ms": time.Since(start).Milliseconds(),
				"ip":         c.RealIP(),
				"request_id": res.Header().Get(echo.HeaderXRequestID),
			})
			if uid := UserID(c); uid != 0 {
				entry = entry.WithField("user_id", uid)
			}
			switch {
			case res.Status >= 500:
				if err != nil {
					entry = entry.WithError(err)
				}
				entry.Error("request failed")
			case res.Status >= 400:
				entry.Warn("request rejected")
			default:
				entry.Info("request")
			}
			return nil
		}
	}
}

// Recover turns a handler panic into a 500 and logs the stack.
func Recover(log logrus.FieldLogger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					if r == http.ErrAbortHandler {
						panic(r)
					}
					log.WithFields(logrus.Fields{
						"panic": fmt.Sprint(r),
						"stack": string(debug.Stack()),
						"path":  c.Request().URL.Path,
					}).Error("recovered from panic")
					err = c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
				}
			}()
			return next(c)
		}
	}
}

// SecurityHeaders sets the response headers every API reply carries.
func SecurityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "no-referrer")
			return next(c)
		}
	}
}
