package bidding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"auction-backend/internal/biddingerrors"
	"auction-backend/internal/clock"
	"auction-backend/internal/events"
	"auction-backend/internal/idempotency"
	"auction-backend/internal/metrics"
	"auction-backend/internal/models"
	"auction-backend/internal/repository"
	"auction-backend/utils"
)

// DefaultStorageTimeout bounds every storage round trip made by one service call.
const DefaultStorageTimeout = 5 * time.Second

// PlaceBidInput is one bid attempt as received from the transport layer.
type PlaceBidInput struct {
	ListingID      string
	BidderID       string
	Amount         float64
	IsAutoBid      bool
	MaxAmount      *float64
	IdempotencyKey string
}

// BiddingService defines the business logic for auction bidding
type BiddingService struct {
	repo           repository.AuctionDB
	clock          clock.Clock
	storageTimeout time.Duration
	idem           idempotency.Cache
	publisher      events.Publisher
	metrics        *metrics.Metrics
}

type Option func(*BiddingService)

func WithClock(c clock.Clock) Option {
	return func(s *BiddingService) { s.clock = c }
}

func WithStorageTimeout(d time.Duration) Option {
	return func(s *BiddingService) {
		if d > 0 {
			s.storageTimeout = d
		}
	}
}

func WithIdempotencyCache(c idempotency.Cache) Option {
	return func(s *BiddingService) { s.idem = c }
}

func WithPublisher(p events.Publisher) Option {
	return func(s *BiddingService) { s.publisher = p }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *BiddingService) { s.metrics = m }
}

// NewBiddingService creates a new BiddingService instance
func NewBiddingService(repo repository.AuctionDB, opts ...Option) *BiddingService {
	s := &BiddingService{
		repo:           repo,
		clock:          clock.NewSystem(),
		storageTimeout: DefaultStorageTimeout,
		idem:           idempotency.NewMemoryCache(idempotency.DefaultTTL, nil),
		publisher:      events.Discard{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PlaceBid validates a bid against the listing and commits it to the ledger.
//
// Checks run in a fixed order and stop at the first failure: bidder, listing
// existence, listing status, end time, amount, and finally amount against the
// current price. A bid repeated with the same idempotency key returns the
// originally committed bid with Replayed set.
func (s *BiddingService) PlaceBid(ctx context.Context, in PlaceBidInput) (result models.BidResult, err error) {
	defer func() { s.metrics.CountBid(outcomeOf(result, err)) }()

	ctx, cancel := context.WithTimeout(ctx, s.storageTimeout)
	defer cancel()

	if err := s.resolveBidder(ctx, in.BidderID); err != nil {
		return models.BidResult{}, err
	}

	if in.IdempotencyKey != "" {
		if bid, ok := s.cachedReplay(ctx, in); ok {
			return s.replay(bid, in)
		}
	}

	var bid models.Bid
	var replayed bool
	start := time.Now()
	err = s.repo.WithListingLock(ctx, in.ListingID, func(ctx context.Context) error {
		if in.IdempotencyKey != "" {
			prior, err := s.repo.FindBidByIdempotencyKey(ctx, in.ListingID, in.BidderID, in.IdempotencyKey)
			switch {
			case err == nil:
				bid, replayed = prior, true
				return nil
			case !errors.Is(err, biddingerrors.ErrBidNotFound):
				return biddingerrors.Storage("find bid by idempotency key", err)
			}
		}

		var err error
		bid, err = s.commit(ctx, in)
		return err
	})
	s.metrics.ObserveCommit(time.Since(start))

	if err != nil {
		err = biddingerrors.Storage("commit bid", err)
		s.logRejection(in, err)
		return models.BidResult{}, fmt.Errorf("service: failed to place bid on listing %s: %w", in.ListingID, err)
	}
	if replayed {
		return s.replay(bid, in)
	}

	s.afterCommit(ctx, bid)
	return models.BidResult{Bid: bid}, nil
}

// commit runs inside the listing's commit scope.
func (s *BiddingService) commit(ctx context.Context, in PlaceBidInput) (models.Bid, error) {
	listing, err := s.repo.GetListing(ctx, in.ListingID)
	if err != nil {
		return models.Bid{}, biddingerrors.Storage("get listing", err)
	}

	now := s.clock.Now()
	if listing.Status != models.ListingActive {
		return models.Bid{}, fmt.Errorf("%w - listing %s is %s", biddingerrors.ErrAuctionEnded, listing.ListingID, listing.Status)
	}
	if !now.Before(listing.EndTime) {
		return models.Bid{}, fmt.Errorf("%w - listing %s ended at %s", biddingerrors.ErrAuctionEnded, listing.ListingID, listing.EndTime.Format(time.RFC3339))
	}
	if err := validateAmount(in.Amount, in.MaxAmount); err != nil {
		return models.Bid{}, err
	}

	listing, err = s.reconcile(ctx, listing)
	if err != nil {
		return models.Bid{}, err
	}
	if in.Amount <= listing.CurrentPrice {
		return models.Bid{}, &biddingerrors.BidTooLowError{Amount: in.Amount, CurrentPrice: listing.CurrentPrice}
	}

	bid := models.Bid{
		BidID:          utils.GenerateID(),
		ListingID:      listing.ListingID,
		UserID:         in.BidderID,
		Amount:         in.Amount,
		IsAutoBid:      in.IsAutoBid,
		MaxAmount:      in.MaxAmount,
		IdempotencyKey: in.IdempotencyKey,
		CreatedAt:      now,
	}
	if err := s.repo.AppendBid(ctx, bid); err != nil {
		return models.Bid{}, biddingerrors.Storage("append bid", err)
	}
	if err := s.repo.UpdateCurrentPrice(ctx, listing.ListingID, bid.Amount); err != nil {
		utils.Error("PlaceBid: price update failed after ledger append", map[string]any{
			"bid_id":     bid.BidID,
			"listing_id": bid.ListingID,
			"amount":     bid.Amount,
			"error":      err.Error(),
		})
		return models.Bid{}, biddingerrors.Storage("update current price", err)
	}
	return bid, nil
}

func (s *BiddingService) resolveBidder(ctx context.Context, bidderID string) error {
	if bidderID == "" {
		return fmt.Errorf("service: %w - missing bidder", biddingerrors.ErrUnauthorized)
	}
	if _, err := s.repo.GetUserByID(ctx, bidderID); err != nil {
		if errors.Is(err, biddingerrors.ErrUserNotFound) {
			return fmt.Errorf("service: %w - unknown bidder %s", biddingerrors.ErrUnauthorized, bidderID)
		}
		return fmt.Errorf("service: failed to resolve bidder %s: %w", bidderID, biddingerrors.Storage("get user", err))
	}
	return nil
}

// cachedReplay consults the idempotency cache. Cache failures fall through to the ledger.
func (s *BiddingService) cachedReplay(ctx context.Context, in PlaceBidInput) (models.Bid, bool) {
	bidID, ok, err := s.idem.Lookup(ctx, idempotency.Scope(in.ListingID, in.BidderID), in.IdempotencyKey)
	if err != nil {
		utils.Warn("PlaceBid: idempotency cache lookup failed", map[string]any{"listing_id": in.ListingID, "error": err.Error()})
		return models.Bid{}, false
	}
	if !ok {
		return models.Bid{}, false
	}
	bid, err := s.repo.GetBid(ctx, bidID)
	if err != nil {
		return models.Bid{}, false
	}
	return bid, true
}

func (s *BiddingService) replay(bid models.Bid, in PlaceBidInput) (models.BidResult, error) {
	if bid.Amount != in.Amount || bid.IsAutoBid != in.IsAutoBid || !sameCeiling(bid.MaxAmount, in.MaxAmount) {
		err := fmt.Errorf("service: %w - key %q already placed %.2f on listing %s", biddingerrors.ErrIdempotencyConflict, in.IdempotencyKey, bid.Amount, in.ListingID)
		s.logRejection(in, err)
		return models.BidResult{}, err
	}
	utils.Info("PlaceBid: replayed committed bid", map[string]any{"bid_id": bid.BidID, "listing_id": bid.ListingID})
	return models.BidResult{Bid: bid, Replayed: true}, nil
}

func sameCeiling(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// afterCommit runs the best-effort side effects of a committed bid.
func (s *BiddingService) afterCommit(ctx context.Context, bid models.Bid) {
	if bid.IdempotencyKey != "" {
		if err := s.idem.Remember(ctx, idempotency.Scope(bid.ListingID, bid.UserID), bid.IdempotencyKey, bid.BidID); err != nil {
			utils.Warn("PlaceBid: failed to remember idempotency key", map[string]any{"bid_id": bid.BidID, "error": err.Error()})
		}
	}

	env, err := events.NewEnvelope(events.EventBidPlaced, bid.ListingID, bid.CreatedAt, events.BidPlacedPayload{
		BidID:     bid.BidID,
		ListingID: bid.ListingID,
		BidderID:  bid.UserID,
		Amount:    bid.Amount,
		IsAutoBid: bid.IsAutoBid,
		MaxAmount: bid.MaxAmount,
		PlacedAt:  bid.CreatedAt,
	})
	if err == nil {
		err = s.publisher.Publish(ctx, bid.ListingID, env)
	}
	if err != nil {
		utils.Warn("PlaceBid: failed to publish BidPlaced", map[string]any{"bid_id": bid.BidID, "error": err.Error()})
	}

	utils.Info("PlaceBid: bid committed", map[string]any{
		"bid_id":      bid.BidID,
		"listing_id":  bid.ListingID,
		"user_id":     bid.UserID,
		"amount":      bid.Amount,
		"is_auto_bid": bid.IsAutoBid,
	})
}

func (s *BiddingService) logRejection(in PlaceBidInput, err error) {
	fields := map[string]any{
		"listing_id": in.ListingID,
		"user_id":    in.BidderID,
		"amount":     in.Amount,
		"error":      err.Error(),
	}
	if biddingerrors.IsRetryable(err) {
		utils.Error("PlaceBid: storage failure", fields)
		return
	}
	utils.Warn("PlaceBid: bid rejected", fields)
}

// Reconcile returns listing with its current price raised to the ledger maximum.
// A lagging stored price is repaired; a failed repair is logged and the corrected value is still returned.
func (s *BiddingService) Reconcile(ctx context.Context, listing models.Listing) (models.Listing, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storageTimeout)
	defer cancel()
	return s.reconcile(ctx, listing)
}

func (s *BiddingService) reconcile(ctx context.Context, listing models.Listing) (models.Listing, error) {
	if listing.CurrentPrice < listing.StartingPrice {
		listing.CurrentPrice = listing.StartingPrice
	}

	highest, err := s.repo.GetHighestBid(ctx, listing.ListingID)
	if errors.Is(err, biddingerrors.ErrNoBids) {
		return listing, nil
	}
	if err != nil {
		return listing, biddingerrors.Storage("get highest bid", err)
	}
	if highest.Amount <= listing.CurrentPrice {
		return listing, nil
	}

	utils.Warn("current price lagged the bid ledger; reconciling", map[string]any{
		"listing_id":    listing.ListingID,
		"stored_price":  listing.CurrentPrice,
		"ledger_price":  highest.Amount,
		"ledger_bid_id": highest.BidID,
	})
	s.metrics.CountReconciliation()

	listing.CurrentPrice = highest.Amount
	if err := s.repo.UpdateCurrentPrice(ctx, listing.ListingID, highest.Amount); err != nil {
		utils.Error("failed to repair current price", map[string]any{"listing_id": listing.ListingID, "error": err.Error()})
	}
	return listing, nil
}

// GetBidsForListing returns all bids for a listing, newest first
func (s *BiddingService) GetBidsForListing(ctx context.Context, listingID string) ([]models.Bid, error) {
	if listingID == "" {
		return nil, fmt.Errorf("service: %w - empty listing ID", biddingerrors.ErrListingNotFound)
	}
	ctx, cancel := context.WithTimeout(ctx, s.storageTimeout)
	defer cancel()

	bids, err := s.repo.GetBidsByListing(ctx, listingID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to get bids for listing %s: %w", listingID, biddingerrors.Storage("get bids", err))
	}
	if bids == nil {
		bids = []models.Bid{}
	}
	return bids, nil
}

// GetWinningBid returns the highest bid for a listing
func (s *BiddingService) GetWinningBid(ctx context.Context, listingID string) (models.Bid, error) {
	if listingID == "" {
		return models.Bid{}, fmt.Errorf("service: %w - empty listing ID", biddingerrors.ErrListingNotFound)
	}
	ctx, cancel := context.WithTimeout(ctx, s.storageTimeout)
	defer cancel()

	listing, err := s.repo.GetListing(ctx, listingID)
	if err != nil {
		return models.Bid{}, fmt.Errorf("service: failed to get listing %s: %w", listingID, biddingerrors.Storage("get listing", err))
	}
	if _, err := s.reconcile(ctx, listing); err != nil {
		return models.Bid{}, fmt.Errorf("service: failed to reconcile listing %s: %w", listingID, err)
	}

	winningBid, err := s.repo.GetHighestBid(ctx, listingID)
	if err != nil {
		return models.Bid{}, fmt.Errorf("service: failed to get winning bid for listing %s: %w", listingID, biddingerrors.Storage("get highest bid", err))
	}
	return winningBid, nil
}

// GetListingsByBidder returns all listings a user has placed bids on
func (s *BiddingService) GetListingsByBidder(ctx context.Context, userID string) ([]models.Listing, error) {
	if userID == "" {
		return nil, fmt.Errorf("service: %w - empty user ID", biddingerrors.ErrInvalidUserInput)
	}
	ctx, cancel := context.WithTimeout(ctx, s.storageTimeout)
	defer cancel()

	listings, err := s.repo.GetListingsByBidder(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to get listings for user %s: %w", userID, biddingerrors.Storage("get listings by bidder", err))
	}
	return listings, nil
}

func validateAmount(amount float64, maxAmount *float64) error {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return fmt.Errorf("%w - amount must be a finite positive number", biddingerrors.ErrInvalidAmount)
	}
	if maxAmount != nil {
		m := *maxAmount
		if math.IsNaN(m) || math.IsInf(m, 0) || m < amount {
			return fmt.Errorf("%w - max_amount must be a finite number not below amount", biddingerrors.ErrInvalidAmount)
		}
	}
	return nil
}

func outcomeOf(result models.BidResult, err error) string {
	switch {
	case err == nil && result.Replayed:
		return metrics.OutcomeReplayed
	case err == nil:
		return metrics.OutcomeAccepted
	case errors.Is(err, biddingerrors.ErrBidTooLow):
		return metrics.OutcomeTooLow
	case errors.Is(err, biddingerrors.ErrAuctionEnded):
		return metrics.OutcomeEnded
	case errors.Is(err, biddingerrors.ErrInvalidAmount), errors.Is(err, biddingerrors.ErrIdempotencyConflict):
		return metrics.OutcomeInvalid
	case errors.Is(err, biddingerrors.ErrListingNotFound):
		return metrics.OutcomeNotFound
	case errors.Is(err, biddingerrors.ErrUnauthorized):
		return metrics.OutcomeUnauthorized
	case biddingerrors.IsRetryable(err):
		return metrics.OutcomeStorageFailed
	default:
		return metrics.OutcomeError
	}
}
