package postgres

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	bidding "auction-backend/internal/biddingService"
	"auction-backend/internal/biddingerrors"
	model "auction-backend/internal/models"
	"auction-backend/internal/repository"
	"auction-backend/internal/testutil"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, context.Context) {
	t.Helper()
	pool := testutil.NewTestPool(t)
	ctx := context.Background()
	testutil.ApplyMigrations(t, ctx, pool)
	testutil.TruncateAll(t, ctx, pool)
	return NewStore(pool), ctx
}

func seedListing(t *testing.T, ctx context.Context, s *Store, id string, price float64, now time.Time) model.Listing {
	t.Helper()
	l := model.Listing{
		ListingID:     id,
		Name:          "Listing " + id,
		Description:   "description",
		StartingPrice: price,
		CurrentPrice:  price,
		EndTime:       now.Add(time.Hour),
		Status:        model.ListingActive,
		SellerID:      "seller1",
		CreatedAt:     now,
	}
	require.NoError(t, s.CreateListing(ctx, l))
	return l
}

func seedUser(t *testing.T, ctx context.Context, s *Store, id, username string) model.User {
	t.Helper()
	u := model.User{UserID: id, Username: username, Email: username + "@example.com", PasswordHash: "x", Role: model.RoleUser, CreatedAt: time.Now().UTC()}
	require.NoError(t, s.CreateUser(ctx, u))
	return u
}

func TestStoreListings(t *testing.T) {
	s, ctx := newTestStore(t)
	now := time.Now().UTC().Truncate(time.Microsecond)

	seedListing(t, ctx, s, "l1", 100, now)
	seedListing(t, ctx, s, "l2", 50, now.Add(time.Second))

	got, err := s.GetListing(ctx, "l1")
	require.NoError(t, err)
	require.Equal(t, 100.0, got.CurrentPrice)
	require.True(t, got.EndTime.Equal(now.Add(time.Hour)))

	_, err = s.GetListing(ctx, "missing")
	require.ErrorIs(t, err, biddingerrors.ErrListingNotFound)
	require.ErrorIs(t, s.CreateListing(ctx, model.Listing{ListingID: "l1", Name: "dup", Description: "d", StartingPrice: 1, CurrentPrice: 1, EndTime: now, Status: model.ListingActive}), biddingerrors.ErrInvalidListing)

	require.NoError(t, s.UpdateCurrentPrice(ctx, "l1", 120))
	require.NoError(t, s.UpdateCurrentPrice(ctx, "l1", 110), "lower prices are ignored")
	got, err = s.GetListing(ctx, "l1")
	require.NoError(t, err)
	require.Equal(t, 120.0, got.CurrentPrice)
	require.ErrorIs(t, s.UpdateCurrentPrice(ctx, "missing", 1), biddingerrors.ErrListingNotFound)

	require.NoError(t, s.CloseListing(ctx, "l2"))
	active, err := s.ListListings(ctx, repository.ListingFilter{Status: model.ListingActive})
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, "l1", active[0].ListingID)

	all, err := s.ListListings(ctx, repository.ListingFilter{})
	require.NoError(t, err)
	require.Equal(t, "l2", all[0].ListingID, "newest first")
}

func TestStoreBidLedger(t *testing.T) {
	s, ctx := newTestStore(t)
	now := time.Now().UTC().Truncate(time.Microsecond)
	seedListing(t, ctx, s, "l1", 50, now)
	seedListing(t, ctx, s, "l2", 50, now)
	seedUser(t, ctx, s, "u1", "alice")
	seedUser(t, ctx, s, "u2", "bob")

	bids := []model.Bid{
		{BidID: "b1", ListingID: "l1", UserID: "u1", Amount: 60, CreatedAt: now},
		{BidID: "b2", ListingID: "l1", UserID: "u2", Amount: 70, IdempotencyKey: "k1", CreatedAt: now.Add(time.Second)},
		{BidID: "b3", ListingID: "l1", UserID: "u1", Amount: 70, CreatedAt: now.Add(time.Second)},
	}
	for _, b := range bids {
		require.NoError(t, s.AppendBid(ctx, b))
	}
	require.ErrorIs(t, s.AppendBid(ctx, model.Bid{BidID: "bx", ListingID: "missing", UserID: "u1", Amount: 1, CreatedAt: now}), biddingerrors.ErrListingNotFound)
	require.ErrorIs(t, s.AppendBid(ctx, bids[0]), biddingerrors.ErrInvalidBid)

	history, err := s.GetBidsByListing(ctx, "l1")
	require.NoError(t, err)
	ids := []string{}
	for _, b := range history {
		ids = append(ids, b.BidID)
	}
	require.Equal(t, []string{"b3", "b2", "b1"}, ids)

	empty, err := s.GetBidsByListing(ctx, "l2")
	require.NoError(t, err)
	require.Empty(t, empty)
	_, err = s.GetBidsByListing(ctx, "missing")
	require.ErrorIs(t, err, biddingerrors.ErrListingNotFound)

	highest, err := s.GetHighestBid(ctx, "l1")
	require.NoError(t, err)
	require.Equal(t, "b2", highest.BidID, "ties go to the earliest append")
	_, err = s.GetHighestBid(ctx, "l2")
	require.ErrorIs(t, err, biddingerrors.ErrNoBids)

	found, err := s.FindBidByIdempotencyKey(ctx, "l1", "u2", "k1")
	require.NoError(t, err)
	require.Equal(t, "b2", found.BidID)
	_, err = s.FindBidByIdempotencyKey(ctx, "l1", "u1", "k1")
	require.ErrorIs(t, err, biddingerrors.ErrBidNotFound, "keys are scoped to the bidder")

	views, err := s.ListAllBids(ctx)
	require.NoError(t, err)
	require.Len(t, views, 3)
	require.Equal(t, "Listing l1", views[0].ListingName)

	listings, err := s.GetListingsByBidder(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, listings, 1)
	_, err = s.GetListingsByBidder(ctx, "nobody")
	require.ErrorIs(t, err, biddingerrors.ErrUserNoBids)
}

func TestStoreUsers(t *testing.T) {
	s, ctx := newTestStore(t)
	alice := seedUser(t, ctx, s, "u1", "alice")
	seedUser(t, ctx, s, "u2", "bob")

	require.ErrorIs(t, s.CreateUser(ctx, model.User{UserID: "u3", Username: "alice", Email: "new@example.com", Role: model.RoleUser}), biddingerrors.ErrUsernameTaken)
	require.ErrorIs(t, s.CreateUser(ctx, model.User{UserID: "u3", Username: "carol", Email: "bob@example.com", Role: model.RoleUser}), biddingerrors.ErrEmailTaken)

	alice.Username = "bob"
	require.ErrorIs(t, s.UpdateUser(ctx, alice), biddingerrors.ErrUsernameTaken)
	alice.Username = "alice2"
	require.NoError(t, s.UpdateUser(ctx, alice))

	got, err := s.GetUserByUsername(ctx, "alice2")
	require.NoError(t, err)
	require.Equal(t, "u1", got.UserID)
	_, err = s.GetUserByID(ctx, "missing")
	require.ErrorIs(t, err, biddingerrors.ErrUserNotFound)
}

func TestStoreWithListingLockRollsBack(t *testing.T) {
	s, ctx := newTestStore(t)
	now := time.Now().UTC()
	seedListing(t, ctx, s, "l1", 50, now)

	boom := errors.New("price update failed")
	err := s.WithListingLock(ctx, "l1", func(ctx context.Context) error {
		require.NoError(t, s.AppendBid(ctx, model.Bid{BidID: "b1", ListingID: "l1", UserID: "u1", Amount: 60, CreatedAt: now}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	history, err := s.GetBidsByListing(ctx, "l1")
	require.NoError(t, err)
	require.Empty(t, history, "the append is rolled back with the failed commit")
}

func TestStoreConcurrentBidsThroughEngine(t *testing.T) {
	s, ctx := newTestStore(t)
	now := time.Now().UTC()
	seedListing(t, ctx, s, "l1", 100, now)
	seedUser(t, ctx, s, "u1", "alice")
	seedUser(t, ctx, s, "u2", "bob")

	svc := bidding.NewBiddingService(s)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i, in := range []bidding.PlaceBidInput{
		{ListingID: "l1", BidderID: "u1", Amount: 120},
		{ListingID: "l1", BidderID: "u2", Amount: 130},
	} {
		wg.Add(1)
		go func(i int, in bidding.PlaceBidInput) {
			defer wg.Done()
			_, results[i] = svc.PlaceBid(ctx, in)
		}(i, in)
	}
	wg.Wait()

	require.NoError(t, results[1], "the higher bid always succeeds")
	listing, err := s.GetListing(ctx, "l1")
	require.NoError(t, err)
	require.Equal(t, 130.0, listing.CurrentPrice)

	history, err := s.GetBidsByListing(ctx, "l1")
	require.NoError(t, err)
	if results[0] != nil {
		var tooLow *biddingerrors.BidTooLowError
		require.ErrorAs(t, results[0], &tooLow)
		require.Len(t, history, 1)
		return
	}
	require.Len(t, history, 2)
	require.Equal(t, 130.0, history[0].Amount)
}
