package integrationtests

import (
	"net/http"
	"sync"
	"testing"
	"time"

	"auction-backend/internal/events"
	biddinghandler "auction-backend/services/bidding/handler"

	"github.com/stretchr/testify/require"
)

// PlaceBid API Tests
func TestPlaceBidAPI(t *testing.T) {
	tests := []struct {
		name       string
		body       any
		anonymous  bool
		listingID  string
		prepare    func(env *testEnv, listingID string)
		wantStatus int
		validate   func(t *testing.T, resp map[string]any)
	}{
		{
			name:       "Valid_Bid",
			body:       map[string]any{"amount": 120},
			wantStatus: http.StatusCreated,
			validate: func(t *testing.T, resp map[string]any) {
				require.NotEmpty(t, resp["bid_id"])
				data := resp["data"].(map[string]any)
				require.Equal(t, 120.0, data["amount"])
				_, err := time.Parse(time.RFC3339, data["timestamp"].(string))
				require.NoError(t, err)
			},
		},
		{
			name:       "Numeric_String_Amount",
			body:       map[string]any{"amount": "120.50"},
			wantStatus: http.StatusCreated,
		},
		{
			name:       "Too_Low",
			body:       map[string]any{"amount": 100},
			wantStatus: http.StatusConflict,
			validate: func(t *testing.T, resp map[string]any) {
				require.Equal(t, 100.0, resp["current_price"])
			},
		},
		{
			name:       "Unparsable_Amount",
			body:       map[string]any{"amount": "abc"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "Negative_Amount",
			body:       map[string]any{"amount": -5},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "Ceiling_Below_Amount",
			body:       map[string]any{"amount": 150, "is_auto_bid": true, "max_amount": 140},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "Invalid_JSON",
			body:       "{amount: 'missing quotes'}",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "Auction_Ended",
			body:       map[string]any{"amount": 500},
			prepare:    func(env *testEnv, _ string) { env.clock.Advance(2 * time.Hour) },
			wantStatus: http.StatusConflict,
		},
		{
			name:       "Unknown_Listing",
			body:       map[string]any{"amount": 500},
			listingID:  "nonexistent",
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "Unparsable_Amount_On_Unknown_Listing",
			body:       map[string]any{"amount": "abc"},
			listingID:  "nonexistent",
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "Missing_Amount_After_End",
			body:       map[string]any{"is_auto_bid": false},
			prepare:    func(env *testEnv, _ string) { env.clock.Advance(2 * time.Hour) },
			wantStatus: http.StatusConflict,
		},
		{
			name:       "Missing_Amount",
			body:       map[string]any{},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "No_Token",
			body:       map[string]any{"amount": 500},
			anonymous:  true,
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := SetupTestEnv(t)
			sellerToken, _ := env.signUp(t, "seller")
			bidderToken, _ := env.signUp(t, "bidder")
			listingID := env.createListing(t, sellerToken, 100)
			if tt.listingID != "" {
				listingID = tt.listingID
			}
			if tt.prepare != nil {
				tt.prepare(env, listingID)
			}
			if tt.anonymous {
				bidderToken = ""
			}

			resp, w := env.bid(t, bidderToken, listingID, tt.body, nil)
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.validate != nil {
				tt.validate(t, resp)
			}
		})
	}
}

// A listing starting at 100 sees 120 accepted, 110 rejected and 130 accepted.
func TestBidSequenceAPI(t *testing.T) {
	env := SetupTestEnv(t)
	sellerToken, _ := env.signUp(t, "seller")
	aliceToken, aliceID := env.signUp(t, "alice")
	bobToken, bobID := env.signUp(t, "bob")
	listingID := env.createListing(t, sellerToken, 100)

	_, w := env.bid(t, aliceToken, listingID, map[string]any{"amount": 120}, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	env.clock.Advance(time.Second)
	resp, w := env.bid(t, bobToken, listingID, map[string]any{"amount": 110}, nil)
	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, 120.0, resp["current_price"])

	env.clock.Advance(time.Second)
	_, w = env.bid(t, bobToken, listingID, map[string]any{"amount": 130}, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	bids, w := env.bidHistory(t, listingID)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, bids, 2)
	require.Equal(t, 130.0, bids[0]["amount"])
	require.Equal(t, bobID, bids[0]["user_id"])
	require.Equal(t, 120.0, bids[1]["amount"])
	require.Equal(t, aliceID, bids[1]["user_id"])
	require.ElementsMatch(t, []string{"id", "amount", "timestamp", "user_id", "is_auto_bid"}, keys(bids[0]))

	resp, w = ExecuteRequestAndParse(t, env.router, request{Method: http.MethodGet, URL: "/api/items/" + listingID})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 130.0, resp["data"].(map[string]any)["current_price"])

	resp, w = ExecuteRequestAndParse(t, env.router, request{Method: http.MethodGet, URL: "/api/items/" + listingID + "/winning"})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, bobID, resp["data"].(map[string]any)["user_id"])

	resp, w = ExecuteRequestAndParse(t, env.router, request{Method: http.MethodGet, URL: "/api/users/" + aliceID + "/items"})
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, resp["data"].([]any), 1)

	placed := 0
	for _, p := range env.publisher.Events() {
		if p.Envelope.EventType == events.EventBidPlaced {
			require.Equal(t, listingID, p.Key)
			placed++
		}
	}
	require.Equal(t, 2, placed, "rejected bids publish nothing")
}

func TestIdempotentBidAPI(t *testing.T) {
	env := SetupTestEnv(t)
	sellerToken, _ := env.signUp(t, "seller")
	bidderToken, _ := env.signUp(t, "bidder")
	listingID := env.createListing(t, sellerToken, 100)
	key := map[string]string{biddinghandler.IdempotencyKeyHeader: "retry-1"}

	first, w := env.bid(t, bidderToken, listingID, map[string]any{"amount": 150}, key)
	require.Equal(t, http.StatusCreated, w.Code)

	again, w := env.bid(t, bidderToken, listingID, map[string]any{"amount": 150}, key)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, first["bid_id"], again["bid_id"])

	_, w = env.bid(t, bidderToken, listingID, map[string]any{"amount": 175}, key)
	require.Equal(t, http.StatusConflict, w.Code)

	bids, _ := env.bidHistory(t, listingID)
	require.Len(t, bids, 1)
}

func TestConcurrentBidsAPI(t *testing.T) {
	env := SetupTestEnv(t)
	sellerToken, _ := env.signUp(t, "seller")
	listingID := env.createListing(t, sellerToken, 100)

	const bidders = 20
	tokens := make([]string, bidders)
	for i := range tokens {
		tokens[i], _ = env.signUp(t, "bidder"+string(rune('a'+i)))
	}

	var wg sync.WaitGroup
	codes := make([]int, bidders)
	for i := 0; i < bidders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, w := env.bid(t, tokens[i], listingID, map[string]any{"amount": 101 + i}, nil)
			codes[i] = w.Code
		}(i)
	}
	wg.Wait()

	require.Equal(t, http.StatusCreated, codes[bidders-1], "the highest bid always wins its race")
	bids, _ := env.bidHistory(t, listingID)
	accepted := 0
	for _, c := range codes {
		if c == http.StatusCreated {
			accepted++
		} else {
			require.Equal(t, http.StatusConflict, c)
		}
	}
	require.Len(t, bids, accepted)
	for i := 1; i < len(bids); i++ {
		newer := bids[i-1]["amount"].(float64)
		older := bids[i]["amount"].(float64)
		require.Greater(t, newer, older, "accepted bids strictly increase")
	}
}

func TestGetBidsByListingAPI(t *testing.T) {
	env := SetupTestEnv(t)
	sellerToken, _ := env.signUp(t, "seller")
	listingID := env.createListing(t, sellerToken, 30)

	bids, w := env.bidHistory(t, listingID)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, bids)
	require.Empty(t, bids)
	require.Equal(t, "[]", w.Body.String())

	_, w = ExecuteRequestAndParse(t, env.router, request{Method: http.MethodGet, URL: "/api/items/nonexistent/bids"})
	require.Equal(t, http.StatusNotFound, w.Code)

	_, w = ExecuteRequestAndParse(t, env.router, request{Method: http.MethodGet, URL: "/api/items/" + listingID + "/winning"})
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestCloseListingAPI(t *testing.T) {
	env := SetupTestEnv(t)
	sellerToken, _ := env.signUp(t, "seller")
	bidderToken, bidderID := env.signUp(t, "bidder")
	listingID := env.createListing(t, sellerToken, 100)

	_, w := env.bid(t, bidderToken, listingID, map[string]any{"amount": 140}, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	_, w = ExecuteRequestAndParse(t, env.router, request{Method: http.MethodPost, URL: "/api/items/" + listingID + "/close", Token: bidderToken})
	require.Equal(t, http.StatusForbidden, w.Code)

	resp, w := ExecuteRequestAndParse(t, env.router, request{Method: http.MethodPost, URL: "/api/items/" + listingID + "/close", Token: sellerToken})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "ended", resp["data"].(map[string]any)["status"])

	_, w = env.bid(t, bidderToken, listingID, map[string]any{"amount": 500}, nil)
	require.Equal(t, http.StatusConflict, w.Code)

	resp, _ = ExecuteRequestAndParse(t, env.router, request{Method: http.MethodGet, URL: "/api/items"})
	require.Empty(t, resp["data"].([]any), "closed listings are not active")

	var closed []events.ListingClosedPayload
	for _, p := range env.publisher.Events() {
		if p.Envelope.EventType == events.EventListingClosed {
			payload, err := events.UnwrapPayload[events.ListingClosedPayload](p.Envelope.Payload)
			require.NoError(t, err)
			closed = append(closed, payload)
		}
	}
	require.Len(t, closed, 1)
	require.Equal(t, bidderID, closed[0].WinnerID)
	require.Equal(t, 140.0, closed[0].FinalPrice)
}

func TestAdminAndProfileAPI(t *testing.T) {
	env := SetupTestEnv(t)
	sellerToken, _ := env.signUp(t, "seller")
	bidderToken, _ := env.signUp(t, "bidder")
	adminToken, _ := env.signUpAdmin(t, "root")
	listingID := env.createListing(t, sellerToken, 100)
	_, w := env.bid(t, bidderToken, listingID, map[string]any{"amount": 110}, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	_, w = ExecuteRequestAndParse(t, env.router, request{Method: http.MethodGet, URL: "/api/admin/bids", Token: bidderToken})
	require.Equal(t, http.StatusForbidden, w.Code)

	resp, w := ExecuteRequestAndParse(t, env.router, request{Method: http.MethodGet, URL: "/api/admin/bids", Token: adminToken})
	require.Equal(t, http.StatusOK, w.Code)
	views := resp["data"].([]any)
	require.Len(t, views, 1)
	require.Equal(t, "bidder", views[0].(map[string]any)["user"].(map[string]any)["username"])

	resp, w = ExecuteRequestAndParse(t, env.router, request{Method: http.MethodGet, URL: "/api/admin/items", Token: adminToken})
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, resp["data"].([]any), 1)

	_, w = ExecuteRequestAndParse(t, env.router, request{Method: http.MethodPost, URL: "/api/admin/login", Body: map[string]string{"username": "bidder", "password": "secret1"}})
	require.Equal(t, http.StatusUnauthorized, w.Code, "regular users cannot use the admin login")

	resp, w = ExecuteRequestAndParse(t, env.router, request{Method: http.MethodPut, URL: "/api/profile", Token: bidderToken, Body: map[string]string{"username": "bidder2"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, "bidder2", resp["data"].(map[string]any)["username"])

	_, w = ExecuteRequestAndParse(t, env.router, request{Method: http.MethodPut, URL: "/api/profile", Token: bidderToken, Body: map[string]string{"username": "seller"}})
	require.Equal(t, http.StatusConflict, w.Code)

	_, w = ExecuteRequestAndParse(t, env.router, request{Method: http.MethodGet, URL: "/api/profile", Token: "not-a-token"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
