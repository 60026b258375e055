package middleware

import (
	"io"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"docgen/internal/logger"
)

// Logger logs each HTTP request through zap with the fields
// request_id, method, path, status and latency (milliseconds).
// 5xx responses log at error level and 4xx at warn.
func Logger(log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		status := c.Response().StatusCode()
		if fe, ok := err.(*fiber.Error); ok {
			status = fe.Code
		} else if err != nil {
			status = fiber.StatusInternalServerError
		}

		fields := []zap.Field{
			zap.String("request_id", GetRequestID(c)),
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", status),
			zap.Float64("latency", float64(time.Since(start).Microseconds())/1000),
		}
		switch {
		case status >= fiber.StatusInternalServerError:
			log.Error("http request", fields...)
		case status >= fiber.StatusBadRequest:
			log.Warn("http request", fields...)
		default:
			log.Info("http request", fields...)
		}

		return err
	}
}

// LoggerWithWriter is Logger writing JSON lines to w.
func LoggerWithWriter(w io.Writer) fiber.Handler {
	return Logger(logger.NewWithWriter(w, "info"))
}
