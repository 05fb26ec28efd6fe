package logger

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	obscontext "github.com/smallbiznis/mealsub/internal/observability/context"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// HeaderRequestID is echoed back on every response.
const HeaderRequestID = "X-Request-Id"

// MiddlewareConfig controls the access log.
type MiddlewareConfig struct {
	Debug bool
	// ErrorClassifier turns the handler's last error into (error_type, error_code).
	ErrorClassifier func(err error) (string, string)
	// QuietRoutes are logged at debug. Defaults to /health and /metrics.
	QuietRoutes []string
}

// GinMiddleware writes one "http_request" line per request. It runs before
// the /v1 user guard, so user_id is read back from the request context
// after the handler chain returns.
func GinMiddleware(cfg MiddlewareConfig) gin.HandlerFunc {
	quiet := map[string]struct{}{"/health": {}, "/metrics": {}}
	if len(cfg.QuietRoutes) > 0 {
		quiet = make(map[string]struct{}, len(cfg.QuietRoutes))
		for _, route := range cfg.QuietRoutes {
			quiet[route] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		started := time.Now()
		requestID := requestIDFor(c)
		c.Request = c.Request.WithContext(obscontext.WithRequestID(c.Request.Context(), requestID))

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		status := c.Writer.Status()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(started)),
			zap.Int64("bytes_in", max(c.Request.ContentLength, 0)),
			zap.Int("bytes_out", max(c.Writer.Size(), 0)),
		}
		if id := c.Param("id"); id != "" {
			fields = append(fields, zap.String("path_id", id))
		}

		level := zapcore.InfoLevel
		if last := c.Errors.Last(); last != nil {
			errType, errCode := "unclassified", ""
			if cfg.ErrorClassifier != nil {
				errType, errCode = cfg.ErrorClassifier(last.Err)
			}
			fields = append(fields, zap.String("error_type", errType), zap.String("error_code", errCode))
			if cfg.Debug {
				fields = append(fields, zap.NamedError("cause", last.Err))
			}
			if errType == "validation_error" {
				level = zapcore.DebugLevel
			}
		}
		if status >= http.StatusInternalServerError {
			level = zapcore.ErrorLevel
		}
		if _, ok := quiet[route]; ok {
			level = zapcore.DebugLevel
		}

		if ce := FromContext(c.Request.Context()).Check(level, "http_request"); ce != nil {
			ce.Write(fields...)
		}
	}
}

func requestIDFor(c *gin.Context) string {
	id := strings.TrimSpace(c.GetHeader(HeaderRequestID))
	if id == "" || len(id) > 128 {
		id = uuid.NewString()
	}
	c.Set("request_id", id)
	c.Header(HeaderRequestID, id)
	return id
}
