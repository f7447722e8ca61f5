package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"auction-backend/internal/biddingerrors"
	model "auction-backend/internal/models"
)

//go:generate mockgen -destination=mock_repository.go -package=repository auction-backend/internal/repository AuctionDB

// ListingFilter narrows ListListings. Zero values match everything.
type ListingFilter struct {
	Status   model.ListingStatus
	SellerID string
}

// ListingStore holds auction listings
type ListingStore interface {
	CreateListing(ctx context.Context, listing model.Listing) error
	GetListing(ctx context.Context, listingID string) (model.Listing, error)
	ListListings(ctx context.Context, filter ListingFilter) ([]model.Listing, error)
	// UpdateCurrentPrice raises the cached current price; lower or equal prices are ignored.
	UpdateCurrentPrice(ctx context.Context, listingID string, price float64) error
	CloseListing(ctx context.Context, listingID string) error
}

// BidLedger is the append-only record of committed bids
type BidLedger interface {
	AppendBid(ctx context.Context, bid model.Bid) error
	GetBid(ctx context.Context, bidID string) (model.Bid, error)
	// GetBidsByListing returns bids newest first; an existing listing without bids yields an empty slice.
	GetBidsByListing(ctx context.Context, listingID string) ([]model.Bid, error)
	GetHighestBid(ctx context.Context, listingID string) (model.Bid, error)
	FindBidByIdempotencyKey(ctx context.Context, listingID, bidderID, key string) (model.Bid, error)
	ListAllBids(ctx context.Context) ([]model.BidView, error)
	GetListingsByBidder(ctx context.Context, userID string) ([]model.Listing, error)
}

// UserStore holds registered users
type UserStore interface {
	CreateUser(ctx context.Context, user model.User) error
	GetUserByID(ctx context.Context, userID string) (model.User, error)
	GetUserByUsername(ctx context.Context, username string) (model.User, error)
	UpdateUser(ctx context.Context, user model.User) error
}

// AuctionDB is the full storage surface used by the services.
//
// WithListingLock runs fn while holding the listing's commit scope: no other
// WithListingLock call for the same listing runs concurrently, and store calls
// made with the ctx passed to fn observe each other's writes. Calls for
// different listings never wait on each other.
type AuctionDB interface {
	ListingStore
	BidLedger
	UserStore
	WithListingLock(ctx context.Context, listingID string, fn func(ctx context.Context) error) error
}

// MemoryRepo is a concurrency-safe in-memory implementation of AuctionDB
type MemoryRepo struct {
	mu        sync.RWMutex
	listings  map[string]model.Listing // key: listingID -> value: listing
	bids      map[string][]model.Bid   // key: listingID -> value: bids in append order
	bidIndex  map[string]model.Bid     // key: bidID -> value: bid
	userItems map[string][]string      // key: userID -> value: listingIDs the user has bid on
	users     map[string]model.User    // key: userID -> value: user
	usernames map[string]string        // key: username -> value: userID
	emails    map[string]string        // key: email -> value: userID

	locks *listingLocks
}

// NewMemoryRepo creates a new in-memory repository instance
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		listings:  make(map[string]model.Listing),
		bids:      make(map[string][]model.Bid),
		bidIndex:  make(map[string]model.Bid),
		userItems: make(map[string][]string),
		users:     make(map[string]model.User),
		usernames: make(map[string]string),
		emails:    make(map[string]string),
		locks:     newListingLocks(),
	}
}

// WithListingLock serializes fn against other commits on the same listing.
// Nested calls for a listing already held by ctx run fn directly.
func (r *MemoryRepo) WithListingLock(ctx context.Context, listingID string, fn func(ctx context.Context) error) error {
	if heldListing(ctx, listingID) {
		return fn(ctx)
	}
	release, err := r.locks.acquire(ctx, listingID)
	if err != nil {
		return fmt.Errorf("lock listing %s: %w", listingID, err)
	}
	defer release()
	return fn(withHeldListing(ctx, listingID))
}

// CreateListing stores a new listing
func (r *MemoryRepo) CreateListing(ctx context.Context, listing model.Listing) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if listing.ListingID == "" {
		return fmt.Errorf("create listing: %w - empty id", biddingerrors.ErrInvalidListing)
	}
	if _, exists := r.listings[listing.ListingID]; exists {
		return fmt.Errorf("create listing %s: %w - duplicate id", listing.ListingID, biddingerrors.ErrInvalidListing)
	}
	r.listings[listing.ListingID] = listing
	return nil
}

// GetListing returns a listing by id
func (r *MemoryRepo) GetListing(ctx context.Context, listingID string) (model.Listing, error) {
	if err := ctx.Err(); err != nil {
		return model.Listing{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	listing, ok := r.listings[listingID]
	if !ok {
		return model.Listing{}, fmt.Errorf("get listing %s: %w", listingID, biddingerrors.ErrListingNotFound)
	}
	return listing, nil
}

// ListListings returns listings matching filter, newest first
func (r *MemoryRepo) ListListings(ctx context.Context, filter ListingFilter) ([]model.Listing, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.Listing, 0, len(r.listings))
	for _, l := range r.listings {
		if filter.Status != "" && l.Status != filter.Status {
			continue
		}
		if filter.SellerID != "" && l.SellerID != filter.SellerID {
			continue
		}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ListingID > out[j].ListingID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// UpdateCurrentPrice raises a listing's current price
func (r *MemoryRepo) UpdateCurrentPrice(ctx context.Context, listingID string, price float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	listing, ok := r.listings[listingID]
	if !ok {
		return fmt.Errorf("update price for listing %s: %w", listingID, biddingerrors.ErrListingNotFound)
	}
	if price > listing.CurrentPrice {
		listing.CurrentPrice = price
		r.listings[listingID] = listing
	}
	return nil
}

// CloseListing marks a listing as ended
func (r *MemoryRepo) CloseListing(ctx context.Context, listingID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	listing, ok := r.listings[listingID]
	if !ok {
		return fmt.Errorf("close listing %s: %w", listingID, biddingerrors.ErrListingNotFound)
	}
	listing.Status = model.ListingEnded
	r.listings[listingID] = listing
	return nil
}

// AppendBid records a bid in the ledger
func (r *MemoryRepo) AppendBid(ctx context.Context, bid model.Bid) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.listings[bid.ListingID]; !ok {
		return fmt.Errorf("append bid for listing %s: %w", bid.ListingID, biddingerrors.ErrListingNotFound)
	}
	if _, dup := r.bidIndex[bid.BidID]; dup {
		return fmt.Errorf("append bid %s: %w - duplicate id", bid.BidID, biddingerrors.ErrInvalidBid)
	}

	r.bids[bid.ListingID] = append(r.bids[bid.ListingID], bid)
	r.bidIndex[bid.BidID] = bid

	for _, id := range r.userItems[bid.UserID] {
		if id == bid.ListingID {
			return nil
		}
	}
	r.userItems[bid.UserID] = append(r.userItems[bid.UserID], bid.ListingID)

	return nil
}

// GetBid returns a bid by id
func (r *MemoryRepo) GetBid(ctx context.Context, bidID string) (model.Bid, error) {
	if err := ctx.Err(); err != nil {
		return model.Bid{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	bid, ok := r.bidIndex[bidID]
	if !ok {
		return model.Bid{}, fmt.Errorf("get bid %s: %w", bidID, biddingerrors.ErrBidNotFound)
	}
	return bid, nil
}

// GetBidsByListing returns all bids for a listing, newest first
func (r *MemoryRepo) GetBidsByListing(ctx context.Context, listingID string) ([]model.Bid, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.listings[listingID]; !ok {
		return nil, fmt.Errorf("get bids for listing %s: %w", listingID, biddingerrors.ErrListingNotFound)
	}

	stored := r.bids[listingID]
	out := make([]model.Bid, 0, len(stored))
	for i := len(stored) - 1; i >= 0; i-- {
		out = append(out, stored[i])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// GetHighestBid returns the highest bid for a listing; the earliest wins a tie
func (r *MemoryRepo) GetHighestBid(ctx context.Context, listingID string) (model.Bid, error) {
	if err := ctx.Err(); err != nil {
		return model.Bid{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	bids := r.bids[listingID]
	if len(bids) == 0 {
		return model.Bid{}, fmt.Errorf("get highest bid for listing %s: %w", listingID, biddingerrors.ErrNoBids)
	}

	winning := bids[0]
	for _, b := range bids[1:] {
		if b.Amount > winning.Amount || (b.Amount == winning.Amount && b.CreatedAt.Before(winning.CreatedAt)) {
			winning = b
		}
	}
	return winning, nil
}

// FindBidByIdempotencyKey returns the bid a bidder committed under key on a listing
func (r *MemoryRepo) FindBidByIdempotencyKey(ctx context.Context, listingID, bidderID, key string) (model.Bid, error) {
	if err := ctx.Err(); err != nil {
		return model.Bid{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	if key != "" {
		for _, b := range r.bids[listingID] {
			if b.UserID == bidderID && b.IdempotencyKey == key {
				return b, nil
			}
		}
	}
	return model.Bid{}, fmt.Errorf("find bid by idempotency key on listing %s: %w", listingID, biddingerrors.ErrBidNotFound)
}

// ListAllBids returns every bid joined with its listing and bidder, newest first.
// Bids whose listing or bidder is missing are skipped.
func (r *MemoryRepo) ListAllBids(ctx context.Context) ([]model.BidView, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.BidView, 0, len(r.bidIndex))
	for listingID, bids := range r.bids {
		listing, ok := r.listings[listingID]
		if !ok {
			continue
		}
		for _, b := range bids {
			user, ok := r.users[b.UserID]
			if !ok {
				continue
			}
			out = append(out, model.BidView{
				Bid:                b,
				ListingName:        listing.Name,
				ListingDescription: listing.Description,
				Username:           user.Username,
				Email:              user.Email,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].BidID > out[j].BidID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// GetListingsByBidder returns all listings a user has bid on
func (r *MemoryRepo) GetListingsByBidder(ctx context.Context, userID string) ([]model.Listing, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	listingIDs, ok := r.userItems[userID]
	if !ok || len(listingIDs) == 0 {
		return nil, fmt.Errorf("get listings for user %s: %w", userID, biddingerrors.ErrUserNoBids)
	}

	listings := make([]model.Listing, 0, len(listingIDs))
	for _, id := range listingIDs {
		if l, exists := r.listings[id]; exists {
			listings = append(listings, l)
		}
	}
	return listings, nil
}

// CreateUser stores a new user; username and email must be unique
func (r *MemoryRepo) CreateUser(ctx context.Context, user model.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.usernames[user.Username]; taken {
		return fmt.Errorf("create user %s: %w", user.Username, biddingerrors.ErrUsernameTaken)
	}
	if _, taken := r.emails[user.Email]; taken {
		return fmt.Errorf("create user %s: %w", user.Username, biddingerrors.ErrEmailTaken)
	}
	r.users[user.UserID] = user
	r.usernames[user.Username] = user.UserID
	r.emails[user.Email] = user.UserID
	return nil
}

// GetUserByID returns a user by id
func (r *MemoryRepo) GetUserByID(ctx context.Context, userID string) (model.User, error) {
	if err := ctx.Err(); err != nil {
		return model.User{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[userID]
	if !ok {
		return model.User{}, fmt.Errorf("get user %s: %w", userID, biddingerrors.ErrUserNotFound)
	}
	return user, nil
}

// GetUserByUsername returns a user by username
func (r *MemoryRepo) GetUserByUsername(ctx context.Context, username string) (model.User, error) {
	if err := ctx.Err(); err != nil {
		return model.User{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.usernames[username]
	if !ok {
		return model.User{}, fmt.Errorf("get user by username %s: %w", username, biddingerrors.ErrUserNotFound)
	}
	return r.users[id], nil
}

// UpdateUser replaces a user's profile, keeping username and email unique
func (r *MemoryRepo) UpdateUser(ctx context.Context, user model.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.users[user.UserID]
	if !ok {
		return fmt.Errorf("update user %s: %w", user.UserID, biddingerrors.ErrUserNotFound)
	}
	if owner, taken := r.usernames[user.Username]; taken && owner != user.UserID {
		return fmt.Errorf("update user %s: %w", user.UserID, biddingerrors.ErrUsernameTaken)
	}
	if owner, taken := r.emails[user.Email]; taken && owner != user.UserID {
		return fmt.Errorf("update user %s: %w", user.UserID, biddingerrors.ErrEmailTaken)
	}

	delete(r.usernames, current.Username)
	delete(r.emails, current.Email)
	r.users[user.UserID] = user
	r.usernames[user.Username] = user.UserID
	r.emails[user.Email] = user.UserID
	return nil
}

// AddListing adds a listing to the repository. Intended for seeding and tests.
func (r *MemoryRepo) AddListing(listing model.Listing) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listings[listing.ListingID] = listing
}

// AddUser adds a user to the repository. Intended for seeding and tests.
func (r *MemoryRepo) AddUser(user model.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[user.UserID] = user
	r.usernames[user.Username] = user.UserID
	r.emails[user.Email] = user.UserID
}
