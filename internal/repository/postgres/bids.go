package postgres

import (
	"context"
	"errors"
	"fmt"

	"auction-backend/internal/biddingerrors"
	model "auction-backend/internal/models"

	"github.com/jackc/pgx/v5"
)

const bidColumns = `b.id, b.listing_id, b.user_id, b.amount, b.is_auto_bid, b.max_amount, b.idempotency_key, b.created_at`

func scanBid(row pgx.Row, extra ...any) (model.Bid, error) {
	var b model.Bid
	dest := append([]any{&b.BidID, &b.ListingID, &b.UserID, &b.Amount, &b.IsAutoBid, &b.MaxAmount, &b.IdempotencyKey, &b.CreatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return model.Bid{}, err
	}
	b.CreatedAt = b.CreatedAt.UTC()
	return b, nil
}

func (s *Store) AppendBid(ctx context.Context, bid model.Bid) error {
	tag, err := s.exec(ctx, `
INSERT INTO bids (id, listing_id, user_id, amount, is_auto_bid, max_amount, idempotency_key, created_at)
SELECT $1, $2, $3, $4, $5, $6, $7, $8
WHERE EXISTS (SELECT 1 FROM listings WHERE id = $2)`,
		bid.BidID, bid.ListingID, bid.UserID, bid.Amount, bid.IsAutoBid, bid.MaxAmount, bid.IdempotencyKey, bid.CreatedAt)
	if _, dup := uniqueViolation(err); dup {
		return fmt.Errorf("append bid %s: %w - duplicate", bid.BidID, biddingerrors.ErrInvalidBid)
	}
	if err != nil {
		return fmt.Errorf("append bid %s: %w", bid.BidID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("append bid for listing %s: %w", bid.ListingID, biddingerrors.ErrListingNotFound)
	}
	return nil
}

func (s *Store) requireListing(ctx context.Context, listingID, op string) error {
	var exists bool
	if err := s.queryRow(ctx, `SELECT EXISTS (SELECT 1 FROM listings WHERE id = $1)`, listingID).Scan(&exists); err != nil {
		return fmt.Errorf("%s listing %s: %w", op, listingID, err)
	}
	if !exists {
		return fmt.Errorf("%s listing %s: %w", op, listingID, biddingerrors.ErrListingNotFound)
	}
	return nil
}

func (s *Store) GetBid(ctx context.Context, bidID string) (model.Bid, error) {
	b, err := scanBid(s.queryRow(ctx, `SELECT `+bidColumns+` FROM bids b WHERE b.id = $1`, bidID))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Bid{}, fmt.Errorf("get bid %s: %w", bidID, biddingerrors.ErrBidNotFound)
	}
	if err != nil {
		return model.Bid{}, fmt.Errorf("get bid %s: %w", bidID, err)
	}
	return b, nil
}

func (s *Store) collectBids(ctx context.Context, op, sql string, args ...any) ([]model.Bid, error) {
	rows, err := s.query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	bids, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Bid, error) {
		return scanBid(row)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return bids, nil
}

// GetBidsByListing returns bids newest first; equal timestamps keep the later append first.
func (s *Store) GetBidsByListing(ctx context.Context, listingID string) ([]model.Bid, error) {
	if err := s.requireListing(ctx, listingID, "get bids for"); err != nil {
		return nil, err
	}
	return s.collectBids(ctx, "get bids for listing "+listingID,
		`SELECT `+bidColumns+` FROM bids b WHERE b.listing_id = $1 ORDER BY b.created_at DESC, b.seq DESC`, listingID)
}

// GetHighestBid breaks amount ties in favour of the earliest bid.
func (s *Store) GetHighestBid(ctx context.Context, listingID string) (model.Bid, error) {
	b, err := scanBid(s.queryRow(ctx, `
SELECT `+bidColumns+` FROM bids b WHERE b.listing_id = $1
ORDER BY b.amount DESC, b.created_at ASC, b.seq ASC LIMIT 1`, listingID))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Bid{}, fmt.Errorf("get highest bid for listing %s: %w", listingID, biddingerrors.ErrNoBids)
	}
	if err != nil {
		return model.Bid{}, fmt.Errorf("get highest bid for listing %s: %w", listingID, err)
	}
	return b, nil
}

func (s *Store) FindBidByIdempotencyKey(ctx context.Context, listingID, bidderID, key string) (model.Bid, error) {
	notFound := fmt.Errorf("find bid by idempotency key on listing %s: %w", listingID, biddingerrors.ErrBidNotFound)
	if key == "" {
		return model.Bid{}, notFound
	}
	b, err := scanBid(s.queryRow(ctx, `
SELECT `+bidColumns+` FROM bids b
WHERE b.listing_id = $1 AND b.user_id = $2 AND b.idempotency_key = $3`, listingID, bidderID, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Bid{}, notFound
	}
	if err != nil {
		return model.Bid{}, fmt.Errorf("find bid by idempotency key on listing %s: %w", listingID, err)
	}
	return b, nil
}

func (s *Store) ListAllBids(ctx context.Context) ([]model.BidView, error) {
	rows, err := s.query(ctx, `
SELECT `+bidColumns+`, l.name, l.description, u.username, u.email
FROM bids b
JOIN listings l ON l.id = b.listing_id
JOIN users u ON u.id = b.user_id
ORDER BY b.created_at DESC, b.id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list all bids: %w", err)
	}
	views, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.BidView, error) {
		var v model.BidView
		var err error
		v.Bid, err = scanBid(row, &v.ListingName, &v.ListingDescription, &v.Username, &v.Email)
		return v, err
	})
	if err != nil {
		return nil, fmt.Errorf("list all bids: %w", err)
	}
	return views, nil
}

// GetListingsByBidder returns listings in the order the user first bid on them.
func (s *Store) GetListingsByBidder(ctx context.Context, userID string) ([]model.Listing, error) {
	rows, err := s.query(ctx, `
SELECT `+prefixed("l.", listingColumns)+`
FROM listings l
JOIN (SELECT listing_id, MIN(seq) AS first_seq FROM bids WHERE user_id = $1 GROUP BY listing_id) f
	ON f.listing_id = l.id
ORDER BY f.first_seq`, userID)
	if err != nil {
		return nil, fmt.Errorf("get listings for user %s: %w", userID, err)
	}
	listings, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Listing, error) {
		return scanListing(row)
	})
	if err != nil {
		return nil, fmt.Errorf("get listings for user %s: %w", userID, err)
	}
	if len(listings) == 0 {
		return nil, fmt.Errorf("get listings for user %s: %w", userID, biddingerrors.ErrUserNoBids)
	}
	return listings, nil
}
