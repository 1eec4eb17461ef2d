package router

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cuongbtq/bot-runner/internal/api/handler"
	"github.com/cuongbtq/bot-runner/internal/metrics"
	"github.com/gin-gonic/gin"
)

// unmatchedRoute labels requests that matched no route
const unmatchedRoute = "unmatched"

// routeParams are the path parameters copied onto request log lines
var routeParams = []string{"job_id", "bot_id"}

// LoggerMiddleware logs each API request with its route and the job or bot it
// addressed, and records request metrics. Probe endpoints log at DEBUG.
func LoggerMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}

		metrics.HTTPRequestsTotal.WithLabelValues(route, c.Request.Method, strconv.Itoa(status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(route, c.Request.Method).Observe(latency.Seconds())

		attrs := []any{
			slog.String("method", c.Request.Method),
			slog.String("route", route),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", status),
			slog.Duration("latency", latency),
			slog.Int("body_size", c.Writer.Size()),
			slog.String("ip", c.ClientIP()),
		}
		if query := c.Request.URL.RawQuery; query != "" {
			attrs = append(attrs, slog.String("query", query))
		}
		for _, name := range routeParams {
			if v := c.Param(name); v != "" {
				attrs = append(attrs, slog.String(name, v))
			}
		}
		if userID := c.GetHeader(handler.UserIDHeader); userID != "" {
			attrs = append(attrs, slog.String("user_id", userID))
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, slog.String("errors", c.Errors.String()))
		}

		logger.Log(c.Request.Context(), requestLevel(route, status), "HTTP request", attrs...)
	}
}

func requestLevel(route string, status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest:
		return slog.LevelWarn
	case route == "/health" || route == "/metrics":
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

var corsAllowHeaders = strings.Join([]string{
	"Content-Type",
	"Accept",
	"Authorization",
	"Origin",
	"Cache-Control",
	"X-Requested-With",
	handler.UserIDHeader,
}, ", ")

// CORSMiddleware allows browser clients for the methods the API serves
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
		h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
