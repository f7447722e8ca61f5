package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"auction-backend/internal/biddingerrors"
	"auction-backend/internal/metrics"
	model "auction-backend/internal/models"
	"auction-backend/services/bidding/helpers"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

type tokenTable map[string]model.User

func (t tokenTable) Authenticate(_ context.Context, token string) (model.User, error) {
	user, ok := t[token]
	if !ok {
		return model.User{}, biddingerrors.ErrUnauthorized
	}
	return user, nil
}

var testTokens = tokenTable{
	"user-token":  {UserID: "u1", Role: model.RoleUser},
	"admin-token": {UserID: "a1", Role: model.RoleAdmin},
}

func protectedRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestLoggerMiddleware)
	whoami := func(c *gin.Context) {
		user, _ := helpers.CurrentUser(c)
		c.JSON(http.StatusOK, gin.H{"user_id": user.UserID})
	}
	router.GET("/me", RequireAuth(testTokens), whoami)
	router.GET("/admin", RequireAuth(testTokens), RequireAdmin, whoami)
	return router
}

func TestRequireAuth(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		path           string
		authorization  string
		expectedStatus int
		expectedUser   string
	}{
		{name: "valid_token", path: "/me", authorization: "Bearer user-token", expectedStatus: http.StatusOK, expectedUser: "u1"},
		{name: "missing_header", path: "/me", expectedStatus: http.StatusUnauthorized},
		{name: "wrong_scheme", path: "/me", authorization: "Basic user-token", expectedStatus: http.StatusUnauthorized},
		{name: "unknown_token", path: "/me", authorization: "Bearer forged", expectedStatus: http.StatusUnauthorized},
		{name: "admin_allowed", path: "/admin", authorization: "Bearer admin-token", expectedStatus: http.StatusOK, expectedUser: "a1"},
		{name: "user_on_admin_route", path: "/admin", authorization: "Bearer user-token", expectedStatus: http.StatusForbidden},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.authorization != "" {
				req.Header.Set("Authorization", tc.authorization)
			}
			w := httptest.NewRecorder()
			protectedRouter().ServeHTTP(w, req)

			require.Equal(t, tc.expectedStatus, w.Code)
			require.NotEmpty(t, w.Header().Get(RequestIDHeader))
			var resp map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			if tc.expectedUser != "" {
				require.Equal(t, tc.expectedUser, resp["user_id"])
			}
		})
	}
}

func TestRequestIDIsEchoed(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	w := httptest.NewRecorder()
	protectedRouter().ServeHTTP(w, req)
	require.Equal(t, "req-42", w.Header().Get(RequestIDHeader))
}

func TestRateLimiter(t *testing.T) {
	t.Parallel()

	gin.SetMode(gin.TestMode)
	limiter := NewRateLimiter(0.001, 2)
	router := gin.New()
	router.POST("/login", limiter.Middleware(), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	call := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = ip + ":1234"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	require.Equal(t, http.StatusNoContent, call("10.0.0.1").Code)
	require.Equal(t, http.StatusNoContent, call("10.0.0.1").Code)

	w := call("10.0.0.1")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Equal(t, "1", w.Header().Get("Retry-After"))

	require.Equal(t, http.StatusNoContent, call("10.0.0.2").Code, "buckets are per caller")
}

func TestRateLimiterDisabled(t *testing.T) {
	t.Parallel()

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/x", NewRateLimiter(0, 1).Middleware(), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	for i := 0; i < 20; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
		require.Equal(t, http.StatusNoContent, w.Code)
	}
}

func TestSetupRouterOperationalEndpoints(t *testing.T) {
	t.Parallel()

	router := SetupRouter(Deps{Authenticator: testTokens, Metrics: metrics.New()})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	// an unauthenticated bid never reaches the bidding handler
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/items/item1/bid", strings.NewReader(`{"amount":10}`)))
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "auction_http_requests_total")
}
