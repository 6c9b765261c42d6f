package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"events_auth/internal/auth"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const requestIDHeader = "X-Request-ID"

const (
	corsMethods = "GET, PUT, POST, DELETE, OPTIONS"
	corsHeaders = "Content-Type, Authorization, Origin, X-Requested-With, Accept"
)

// AuthorizationCodeMiddleware admits only requests whose Authorization
// header carries a JWT signed with secret and holding the shared code.
func AuthorizationCodeMiddleware(secret []byte, code string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if header == "" {
			newErrorResponse(c, http.StatusUnauthorized, "unauthorized", "not authorized")

			return
		}

		tokenStr := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))

		if err := auth.VerifyAuthorizationCode(tokenStr, secret, code); err != nil {
			newErrorResponse(c, http.StatusForbidden, "forbidden", "the authorization code is not valid")

			return
		}

		c.Next()
	}
}

// RequestLogger logs every request with its latency and request id.
func RequestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("request_id", requestID)
		c.Writer.Header().Set(requestIDHeader, requestID)

		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			slog.String("request_id", requestID),
			slog.Int("status", status),
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Duration("latency", time.Since(start)),
			slog.String("client_ip", c.ClientIP()),
		}

		switch {
		case status >= http.StatusInternalServerError:
			log.Error("http request", attrs...)
		case status >= http.StatusBadRequest:
			log.Warn("http request", attrs...)
		default:
			log.Info("http request", attrs...)
		}
	}
}

// CORS answers preflight requests and marks allowed origins.
func CORS(allowedOrigins []string) gin.HandlerFunc {
	wildcard := false
	for _, o := range allowedOrigins {
		if o == "*" {
			wildcard = true
			break
		}
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		header := c.Writer.Header()
		switch {
		case wildcard:
			header.Set("Access-Control-Allow-Origin", "*")
		case origin != "" && originAllowed(origin, allowedOrigins):
			header.Set("Access-Control-Allow-Origin", origin)
			header.Set("Vary", "Origin")
		}
		header.Set("Access-Control-Allow-Methods", corsMethods)
		header.Set("Access-Control-Allow-Headers", corsHeaders)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)

			return
		}

		c.Next()
	}
}

func originAllowed(origin string, allowed []string) bool {
	for _, candidate := range allowed {
		if strings.EqualFold(candidate, origin) {
			return true
		}
	}
	return false
}

// RateLimiter throttles each client ip to a requests-per-minute budget.
type RateLimiter struct {
	limit   rate.Limit
	burst   int
	window  time.Duration
	mu      sync.Mutex
	clients map[string]*clientLimiter
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter returns nil when requestsPerMinute is not positive, which
// disables throttling.
func NewRateLimiter(requestsPerMinute int) *RateLimiter {
	if requestsPerMinute <= 0 {
		return nil
	}

	burst := requestsPerMinute / 10
	if burst < 1 {
		burst = 1
	}

	return &RateLimiter{
		limit:   rate.Limit(float64(requestsPerMinute) / 60.0),
		burst:   burst,
		window:  5 * time.Minute,
		clients: make(map[string]*clientLimiter),
	}
}

func (r *RateLimiter) Handler() gin.HandlerFunc {
	if r == nil {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return func(c *gin.Context) {
		if !r.allow(c.ClientIP()) {
			newErrorResponse(c, http.StatusTooManyRequests, "error", "too many requests")

			return
		}

		c.Next()
	}
}

func (r *RateLimiter) allow(key string) bool {
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.clients[key]
	if !ok {
		entry = &clientLimiter{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.clients[key] = entry
		r.evictLocked(now)
	}
	entry.lastSeen = now

	return entry.limiter.AllowN(now, 1)
}

func (r *RateLimiter) evictLocked(now time.Time) {
	for key, entry := range r.clients {
		if !entry.lastSeen.IsZero() && now.Sub(entry.lastSeen) > r.window {
			delete(r.clients, key)
		}
	}
}
