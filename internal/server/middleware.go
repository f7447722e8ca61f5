package server

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"auction-backend/internal/biddingerrors"
	model "auction-backend/internal/models"
	"auction-backend/services/bidding/helpers"
	"auction-backend/utils"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RequestIDHeader is echoed back on every response.
const RequestIDHeader = "X-Request-ID"

// Authenticator resolves a bearer token to the user it was issued to.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (model.User, error)
}

// RequestLoggerMiddleware logs incoming requests with timing
func RequestLoggerMiddleware(c *gin.Context) {
	start := time.Now()
	requestID := c.GetHeader(RequestIDHeader)
	if requestID == "" {
		requestID = utils.GenerateID()
	}
	c.Header(RequestIDHeader, requestID)

	c.Next() // process request

	fields := map[string]any{
		"request_id": requestID,
		"method":     c.Request.Method,
		"path":       c.Request.URL.Path,
		"status":     c.Writer.Status(),
		"latency":    time.Since(start).String(),
	}
	if user, ok := helpers.CurrentUser(c); ok {
		fields["user_id"] = user.UserID
	}
	utils.Info("HTTP Request", fields)
}

// RequireAuth rejects requests without a valid bearer token and stores the
// authenticated user on the context.
func RequireAuth(authn Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, found := strings.CutPrefix(header, "Bearer ")
		if !found || strings.TrimSpace(token) == "" {
			helpers.RespondError(c, "RequireAuth", fmt.Errorf("%w - missing bearer token", biddingerrors.ErrUnauthorized), map[string]any{"path": c.Request.URL.Path})
			c.Abort()
			return
		}

		user, err := authn.Authenticate(c.Request.Context(), strings.TrimSpace(token))
		if err != nil {
			helpers.RespondError(c, "RequireAuth", err, map[string]any{"path": c.Request.URL.Path})
			c.Abort()
			return
		}
		helpers.SetCurrentUser(c, user)
		c.Next()
	}
}

// RequireAdmin must run after RequireAuth.
func RequireAdmin(c *gin.Context) {
	user, ok := helpers.CurrentUser(c)
	if !ok || !user.IsAdmin() {
		helpers.RespondError(c, "RequireAdmin", fmt.Errorf("%w - admin role required", biddingerrors.ErrForbidden), map[string]any{"path": c.Request.URL.Path})
		c.Abort()
		return
	}
	c.Next()
}

// RateLimiter keeps one token bucket per caller.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
	max      int
}

// NewRateLimiter creates a limiter allowing rps requests per second per caller.
// A non-positive rps disables limiting.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(rps),
		burst:    burst,
		max:      10000,
	}
}

func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limiter, exists := rl.limiters[key]
	if !exists {
		// forget everyone once the table grows too large
		if len(rl.limiters) >= rl.max {
			rl.limiters = make(map[string]*rate.Limiter)
		}
		limiter = rate.NewLimiter(rl.rate, rl.burst)
		rl.limiters[key] = limiter
	}
	return limiter
}

// Middleware limits by authenticated user when known, otherwise by client IP.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl == nil || rl.rate <= 0 {
			c.Next()
			return
		}

		key := c.ClientIP()
		if user, ok := helpers.CurrentUser(c); ok {
			key = "user:" + user.UserID
		}
		if !rl.getLimiter(key).Allow() {
			c.Header("Retry-After", "1")
			helpers.RespondError(c, "RateLimiter", biddingerrors.ErrRateLimited, map[string]any{
				"key":    key,
				"path":   c.Request.URL.Path,
				"method": c.Request.Method,
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
