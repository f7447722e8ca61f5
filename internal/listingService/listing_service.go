package listing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"auction-backend/internal/biddingerrors"
	"auction-backend/internal/clock"
	"auction-backend/internal/events"
	"auction-backend/internal/models"
	"auction-backend/internal/repository"
	"auction-backend/utils"
)

// Reconciler raises a listing's current price to its bid ledger maximum.
type Reconciler interface {
	Reconcile(ctx context.Context, listing models.Listing) (models.Listing, error)
}

// CreateListingInput is a seller's new listing.
type CreateListingInput struct {
	Name          string
	Description   string
	StartingPrice float64
	EndTime       time.Time
	Category      string
	Condition     string
	Location      string
	ImageURL      string
}

// ListingService manages the lifecycle of auction listings
type ListingService struct {
	repo           repository.AuctionDB
	reconciler     Reconciler
	clock          clock.Clock
	storageTimeout time.Duration
	publisher      events.Publisher
}

type Option func(*ListingService)

func WithClock(c clock.Clock) Option {
	return func(s *ListingService) { s.clock = c }
}

func WithStorageTimeout(d time.Duration) Option {
	return func(s *ListingService) {
		if d > 0 {
			s.storageTimeout = d
		}
	}
}

func WithPublisher(p events.Publisher) Option {
	return func(s *ListingService) { s.publisher = p }
}

// NewListingService creates a ListingService. reconciler may be nil, in which case stored prices are returned as is.
func NewListingService(repo repository.AuctionDB, reconciler Reconciler, opts ...Option) *ListingService {
	s := &ListingService{
		repo:           repo,
		reconciler:     reconciler,
		clock:          clock.NewSystem(),
		storageTimeout: 5 * time.Second,
		publisher:      events.Discard{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateListing opens a new auction owned by sellerID
func (s *ListingService) CreateListing(ctx context.Context, sellerID string, in CreateListingInput) (models.Listing, error) {
	if sellerID == "" {
		return models.Listing{}, fmt.Errorf("service: %w - missing seller", biddingerrors.ErrUnauthorized)
	}
	now := s.clock.Now()
	if err := validateListing(in, now); err != nil {
		return models.Listing{}, err
	}

	listing := models.Listing{
		ListingID:     utils.GenerateListingID(),
		Name:          strings.TrimSpace(in.Name),
		Description:   strings.TrimSpace(in.Description),
		StartingPrice: in.StartingPrice,
		CurrentPrice:  in.StartingPrice,
		EndTime:       in.EndTime.UTC(),
		Status:        models.ListingActive,
		SellerID:      sellerID,
		Category:      in.Category,
		Condition:     in.Condition,
		Location:      in.Location,
		ImageURL:      in.ImageURL,
		CreatedAt:     now,
	}

	ctx, cancel := context.WithTimeout(ctx, s.storageTimeout)
	defer cancel()
	if err := s.repo.CreateListing(ctx, listing); err != nil {
		return models.Listing{}, fmt.Errorf("service: failed to create listing: %w", biddingerrors.Storage("create listing", err))
	}

	utils.Info("CreateListing: listing created", map[string]any{
		"listing_id":     listing.ListingID,
		"seller_id":      sellerID,
		"starting_price": listing.StartingPrice,
		"end_time":       listing.EndTime.Format(time.RFC3339),
	})
	return listing, nil
}

func validateListing(in CreateListingInput, now time.Time) error {
	switch {
	case strings.TrimSpace(in.Name) == "":
		return fmt.Errorf("service: %w - name is required", biddingerrors.ErrInvalidListing)
	case strings.TrimSpace(in.Description) == "":
		return fmt.Errorf("service: %w - description is required", biddingerrors.ErrInvalidListing)
	case math.IsNaN(in.StartingPrice) || math.IsInf(in.StartingPrice, 0) || in.StartingPrice <= 0:
		return fmt.Errorf("service: %w - starting price must be a finite positive number", biddingerrors.ErrInvalidListing)
	case in.EndTime.IsZero() || !in.EndTime.After(now):
		return fmt.Errorf("service: %w - end time must be in the future", biddingerrors.ErrInvalidListing)
	}
	return nil
}

// GetListing returns a listing with its reconciled price and display status
func (s *ListingService) GetListing(ctx context.Context, listingID string) (models.Listing, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storageTimeout)
	defer cancel()

	listing, err := s.repo.GetListing(ctx, listingID)
	if err != nil {
		return models.Listing{}, fmt.Errorf("service: failed to get listing %s: %w", listingID, biddingerrors.Storage("get listing", err))
	}
	return s.present(ctx, listing)
}

// ListActiveListings returns listings still open for bids, newest first
func (s *ListingService) ListActiveListings(ctx context.Context) ([]models.Listing, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storageTimeout)
	defer cancel()

	listings, err := s.repo.ListListings(ctx, repository.ListingFilter{Status: models.ListingActive})
	if err != nil {
		return nil, fmt.Errorf("service: failed to list listings: %w", biddingerrors.Storage("list listings", err))
	}

	now := s.clock.Now()
	out := make([]models.Listing, 0, len(listings))
	for _, l := range listings {
		if !l.IsOpen(now) {
			continue
		}
		p, err := s.present(ctx, l)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// ListAllListings returns every listing regardless of status, newest first
func (s *ListingService) ListAllListings(ctx context.Context) ([]models.Listing, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storageTimeout)
	defer cancel()

	listings, err := s.repo.ListListings(ctx, repository.ListingFilter{})
	if err != nil {
		return nil, fmt.Errorf("service: failed to list listings: %w", biddingerrors.Storage("list listings", err))
	}
	for i := range listings {
		if listings[i], err = s.present(ctx, listings[i]); err != nil {
			return nil, err
		}
	}
	return listings, nil
}

// ListAllBids returns every bid joined with its listing and bidder, newest first
func (s *ListingService) ListAllBids(ctx context.Context) ([]models.BidView, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storageTimeout)
	defer cancel()

	views, err := s.repo.ListAllBids(ctx)
	if err != nil {
		return nil, fmt.Errorf("service: failed to list bids: %w", biddingerrors.Storage("list bids", err))
	}
	if views == nil {
		views = []models.BidView{}
	}
	return views, nil
}

// CloseListing ends an auction early. Only the seller or an admin may close it; closing twice is a no-op.
func (s *ListingService) CloseListing(ctx context.Context, actor models.User, listingID string) (models.Listing, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storageTimeout)
	defer cancel()

	var closed models.Listing
	var changed bool
	err := s.repo.WithListingLock(ctx, listingID, func(ctx context.Context) error {
		listing, err := s.repo.GetListing(ctx, listingID)
		if err != nil {
			return biddingerrors.Storage("get listing", err)
		}
		if listing.SellerID != actor.UserID && !actor.IsAdmin() {
			return fmt.Errorf("%w - only the seller or an admin may close listing %s", biddingerrors.ErrForbidden, listingID)
		}
		if listing.Status == models.ListingEnded {
			closed = listing
			return nil
		}
		if err := s.repo.CloseListing(ctx, listingID); err != nil {
			return biddingerrors.Storage("close listing", err)
		}
		listing.Status = models.ListingEnded
		closed, changed = listing, true
		return nil
	})
	if err != nil {
		return models.Listing{}, fmt.Errorf("service: failed to close listing %s: %w", listingID, biddingerrors.Storage("close listing", err))
	}

	closed, err = s.present(ctx, closed)
	if err != nil {
		return models.Listing{}, err
	}
	if changed {
		s.publishClosed(ctx, actor.UserID, closed)
	}
	return closed, nil
}

func (s *ListingService) publishClosed(ctx context.Context, actorID string, listing models.Listing) {
	payload := events.ListingClosedPayload{
		ListingID:  listing.ListingID,
		ClosedBy:   actorID,
		FinalPrice: listing.CurrentPrice,
		ClosedAt:   s.clock.Now(),
	}
	if winner, err := s.repo.GetHighestBid(ctx, listing.ListingID); err == nil {
		payload.WinnerID = winner.UserID
	} else if !errors.Is(err, biddingerrors.ErrNoBids) {
		utils.Warn("CloseListing: failed to read winning bid", map[string]any{"listing_id": listing.ListingID, "error": err.Error()})
	}

	env, err := events.NewEnvelope(events.EventListingClosed, listing.ListingID, payload.ClosedAt, payload)
	if err == nil {
		err = s.publisher.Publish(ctx, listing.ListingID, env)
	}
	if err != nil {
		utils.Warn("CloseListing: failed to publish ListingClosed", map[string]any{"listing_id": listing.ListingID, "error": err.Error()})
	}
	utils.Info("CloseListing: listing closed", map[string]any{"listing_id": listing.ListingID, "closed_by": actorID, "winner_id": payload.WinnerID})
}

// present applies price reconciliation and lazy expiry for display.
func (s *ListingService) present(ctx context.Context, listing models.Listing) (models.Listing, error) {
	if s.reconciler != nil {
		var err error
		if listing, err = s.reconciler.Reconcile(ctx, listing); err != nil {
			return models.Listing{}, fmt.Errorf("service: failed to reconcile listing %s: %w", listing.ListingID, err)
		}
	}
	listing.Status = listing.EffectiveStatus(s.clock.Now())
	return listing, nil
}
