package middleware

import (
	"time"

	applogger "DualSignal/pkg/logger"

	"github.com/labstack/echo/v4"
)

// RequestLogging logs every request at debug level and client or server errors at warn.
func RequestLogging(log *applogger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			req := c.Request()
			status := c.Response().Status
			fields := []applogger.Field{
				applogger.String("method", req.Method),
				applogger.String("uri", req.RequestURI),
				applogger.String("remote", c.RealIP()),
				applogger.Int("status", status),
				applogger.Duration("latency_ms", time.Since(start)),
			}
			if err != nil {
				fields = append(fields, applogger.Error(err))
			}
			if status >= 400 || err != nil {
				log.Warn("request", fields...)
			} else {
				log.Debug("request", fields...)
			}
			return err
		}
	}
}
