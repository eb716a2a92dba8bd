package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"kisanmitra/internal/logger"
	"kisanmitra/internal/metrics"
)

const (
	correlationHeader = "X-Correlation-ID"
	correlationKey    = "correlation_id"

	// maxCorrelationID matches the width of chat_requests.request_id.
	maxCorrelationID = 64
)

// fromHTTP adapts net/http middleware to gin. The chain is aborted when the
// wrapped middleware answers the request itself.
func fromHTTP(mw func(http.Handler) http.Handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		passed := false
		mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			passed = true
			c.Request = r
			c.Next()
		})).ServeHTTP(c.Writer, c.Request)
		if !passed {
			c.Abort()
		}
	}
}

// requestLogger assigns a correlation id and logs one line per request.
func requestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		correlationID := strings.TrimSpace(c.GetHeader(correlationHeader))
		if correlationID == "" || len(correlationID) > maxCorrelationID {
			correlationID = uuid.New().String()
		}
		c.Set(correlationKey, correlationID)
		c.Header(correlationHeader, correlationID)

		c.Next()

		duration := time.Since(start)
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := c.Writer.Status()
		log.Info("request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Int("bytes", c.Writer.Size()),
			zap.Duration("duration", duration),
			zap.String("correlation_id", correlationID),
			zap.String("remote_addr", c.ClientIP()),
		)
		metrics.RecordRequest(c.Request.Method, path, strconv.Itoa(status), duration.Seconds())
	}
}

func correlationID(c *gin.Context) string {
	if id := c.GetString(correlationKey); id != "" {
		return id
	}
	return uuid.New().String()
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	if len(origins) == 0 {
		origins = []string{"https://*", "http://*"}
	}
	return fromHTTP(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Requested-With", correlationHeader},
		ExposedHeaders: []string{correlationHeader},
		MaxAge:         300,
	}))
}

// rateLimit bounds chat requests per client IP per minute.
func rateLimit(perMinute int) gin.HandlerFunc {
	return fromHTTP(httprate.Limit(
		perMinute,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "60")
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"error":true,"content":"rate limit exceeded, please retry in a minute"}`)
		}),
	))
}
