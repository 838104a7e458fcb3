package middleware

import (
	"time"

	applogger "RoundPull/pkg/logger"

	"github.com/labstack/echo/v4"
)

// quietRoutes are polled by probes and scrapers. They are only logged when they fail.
var quietRoutes = map[string]struct{}{
	"/healthz": {},
	"/metrics": {},
}

// RequestLogging logs HTTP requests at debug level. Errors returned by handlers are logged at warn.
func RequestLogging(l *applogger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			start := time.Now()

			err := next(c)

			status := c.Response().Status
			if _, quiet := quietRoutes[c.Path()]; quiet && err == nil && status < 500 {
				return nil
			}
			fields := []applogger.Field{
				applogger.String("method", req.Method),
				applogger.String("route", c.Path()),
				applogger.String("uri", req.RequestURI),
				applogger.String("remote", c.RealIP()),
				applogger.Int("status", status),
				applogger.Duration("duration_ms", time.Since(start)),
			}
			if err != nil {
				l.Warn("http request error", append(fields, applogger.Error(err))...)
				return err
			}
			l.Debug("http request", fields...)
			return nil
		}
	}
}
