package integrationtests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	auth "auction-backend/internal/authService"
	bidding "auction-backend/internal/biddingService"
	"auction-backend/internal/clock"
	"auction-backend/internal/events"
	"auction-backend/internal/idempotency"
	listing "auction-backend/internal/listingService"
	"auction-backend/internal/metrics"
	"auction-backend/internal/repository"
	"auction-backend/internal/server"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const adminCode = "let-me-in"

// testEnv is the full HTTP stack over the in-memory store.
type testEnv struct {
	router    *gin.Engine
	repo      *repository.MemoryRepo
	clock     *clock.Manual
	publisher *events.MemoryPublisher
}

// SetupTestEnv wires services the way main does, with a manual clock.
func SetupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	clk := clock.NewManual(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	repo := repository.NewMemoryRepo()
	publisher := events.NewMemoryPublisher(100)
	reg := metrics.New()

	biddingSvc := bidding.NewBiddingService(repo,
		bidding.WithClock(clk),
		bidding.WithIdempotencyCache(idempotency.NewMemoryCache(time.Hour, clk)),
		bidding.WithPublisher(publisher),
		bidding.WithMetrics(reg),
	)
	listingSvc := listing.NewListingService(repo, biddingSvc, listing.WithClock(clk), listing.WithPublisher(publisher))
	authSvc := auth.NewAuthService(repo, "integration-secret",
		auth.WithClock(clk),
		auth.WithAdminCode(adminCode),
		auth.WithBcryptCost(bcrypt.MinCost),
	)

	router := server.SetupRouter(server.Deps{
		Bidding:       biddingSvc,
		Listings:      listingSvc,
		Auth:          authSvc,
		Authenticator: authSvc,
		Metrics:       reg,
	})
	return &testEnv{router: router, repo: repo, clock: clk, publisher: publisher}
}

// request describes one API call; Token and Headers are optional.
type request struct {
	Method  string
	URL     string
	Token   string
	Headers map[string]string
	Body    any
}

// ExecuteRequestAndParse executes an HTTP request on the given router and parses the response envelope
func ExecuteRequestAndParse(t *testing.T, router *gin.Engine, r request) (map[string]any, *httptest.ResponseRecorder) {
	t.Helper()

	var reqBody []byte
	switch v := r.Body.(type) {
	case nil:
	case []byte:
		reqBody = v
	case string:
		reqBody = []byte(v)
	default:
		var err error
		reqBody, err = json.Marshal(v)
		require.NoError(t, err, "failed to marshal body")
	}

	req := httptest.NewRequest(r.Method, r.URL, bytes.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	if r.Token != "" {
		req.Header.Set("Authorization", "Bearer "+r.Token)
	}
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), "failed to unmarshal response: %s", w.Body.String())
	}
	return resp, w
}

// signUp registers and logs in a user, returning the bearer token and user id.
func (e *testEnv) signUp(t *testing.T, username string) (string, string) {
	t.Helper()
	_, w := ExecuteRequestAndParse(t, e.router, request{Method: http.MethodPost, URL: "/api/register", Body: map[string]string{
		"username":     username,
		"email":        username + "@example.com",
		"password":     "secret1",
		"phone_number": "+15551234567",
		"address":      "1 Main St",
	}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return e.login(t, "/api/login", username)
}

func (e *testEnv) signUpAdmin(t *testing.T, username string) (string, string) {
	t.Helper()
	_, w := ExecuteRequestAndParse(t, e.router, request{Method: http.MethodPost, URL: "/api/admin/register", Body: map[string]string{
		"username":     username,
		"email":        username + "@example.com",
		"password":     "secret1",
		"phone_number": "+15551234567",
		"address":      "1 Main St",
		"admin_code":   adminCode,
	}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return e.login(t, "/api/admin/login", username)
}

func (e *testEnv) login(t *testing.T, url, username string) (string, string) {
	t.Helper()
	resp, w := ExecuteRequestAndParse(t, e.router, request{Method: http.MethodPost, URL: url, Body: map[string]string{
		"username": username,
		"password": "secret1",
	}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := resp["data"].(map[string]any)
	user := data["user"].(map[string]any)
	return data["access_token"].(string), user["id"].(string)
}

// createListing opens an auction ending in one hour and returns its id.
func (e *testEnv) createListing(t *testing.T, token string, startingPrice float64) string {
	t.Helper()
	resp, w := ExecuteRequestAndParse(t, e.router, request{Method: http.MethodPost, URL: "/api/items", Token: token, Body: map[string]any{
		"name":           "Vintage camera",
		"description":    "Working condition",
		"starting_price": startingPrice,
		"end_time":       e.clock.Now().Add(time.Hour).Format(time.RFC3339),
	}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return resp["item_id"].(string)
}

func (e *testEnv) bid(t *testing.T, token, listingID string, body any, headers map[string]string) (map[string]any, *httptest.ResponseRecorder) {
	t.Helper()
	return ExecuteRequestAndParse(t, e.router, request{
		Method:  http.MethodPost,
		URL:     "/api/items/" + listingID + "/bid",
		Token:   token,
		Headers: headers,
		Body:    body,
	})
}

// bidHistory reads the listing's bid history, which is served as a bare JSON array.
func (e *testEnv) bidHistory(t *testing.T, listingID string) ([]map[string]any, *httptest.ResponseRecorder) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/items/"+listingID+"/bids", nil)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		return nil, w
	}
	var history []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &history), "bid history is not an array: %s", w.Body.String())
	return history, w
}
