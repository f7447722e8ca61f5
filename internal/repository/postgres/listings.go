package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"auction-backend/internal/biddingerrors"
	model "auction-backend/internal/models"
	"auction-backend/internal/repository"

	"github.com/jackc/pgx/v5"
)

const listingColumns = `id, name, description, starting_price, current_price, end_time, status, seller_id,
	category, item_condition, location, image_url, created_at`

func scanListing(row pgx.Row) (model.Listing, error) {
	var l model.Listing
	var status string
	err := row.Scan(&l.ListingID, &l.Name, &l.Description, &l.StartingPrice, &l.CurrentPrice, &l.EndTime, &status,
		&l.SellerID, &l.Category, &l.Condition, &l.Location, &l.ImageURL, &l.CreatedAt)
	if err != nil {
		return model.Listing{}, err
	}
	l.Status = model.ListingStatus(status)
	l.EndTime = l.EndTime.UTC()
	l.CreatedAt = l.CreatedAt.UTC()
	return l, nil
}

func (s *Store) CreateListing(ctx context.Context, listing model.Listing) error {
	if listing.ListingID == "" {
		return fmt.Errorf("create listing: %w - empty id", biddingerrors.ErrInvalidListing)
	}
	_, err := s.exec(ctx, `
INSERT INTO listings (`+listingColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		listing.ListingID, listing.Name, listing.Description, listing.StartingPrice, listing.CurrentPrice,
		listing.EndTime, string(listing.Status), listing.SellerID, listing.Category, listing.Condition,
		listing.Location, listing.ImageURL, listing.CreatedAt)
	if _, dup := uniqueViolation(err); dup {
		return fmt.Errorf("create listing %s: %w - duplicate id", listing.ListingID, biddingerrors.ErrInvalidListing)
	}
	if err != nil {
		return fmt.Errorf("create listing %s: %w", listing.ListingID, err)
	}
	return nil
}

func (s *Store) GetListing(ctx context.Context, listingID string) (model.Listing, error) {
	l, err := scanListing(s.queryRow(ctx, `SELECT `+listingColumns+` FROM listings WHERE id = $1`, listingID))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Listing{}, fmt.Errorf("get listing %s: %w", listingID, biddingerrors.ErrListingNotFound)
	}
	if err != nil {
		return model.Listing{}, fmt.Errorf("get listing %s: %w", listingID, err)
	}
	return l, nil
}

func (s *Store) ListListings(ctx context.Context, filter repository.ListingFilter) ([]model.Listing, error) {
	var where []string
	var args []any
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.SellerID != "" {
		args = append(args, filter.SellerID)
		where = append(where, fmt.Sprintf("seller_id = $%d", len(args)))
	}
	sql := `SELECT ` + listingColumns + ` FROM listings`
	if len(where) > 0 {
		sql += ` WHERE ` + strings.Join(where, " AND ")
	}
	sql += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list listings: %w", err)
	}
	listings, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Listing, error) {
		return scanListing(row)
	})
	if err != nil {
		return nil, fmt.Errorf("list listings: %w", err)
	}
	return listings, nil
}

// UpdateCurrentPrice only ever raises the price.
func (s *Store) UpdateCurrentPrice(ctx context.Context, listingID string, price float64) error {
	var exists bool
	err := s.queryRow(ctx, `
WITH updated AS (
	UPDATE listings SET current_price = $2 WHERE id = $1 AND current_price < $2 RETURNING id
)
SELECT EXISTS (SELECT 1 FROM listings WHERE id = $1)`, listingID, price).Scan(&exists)
	if err != nil {
		return fmt.Errorf("update price for listing %s: %w", listingID, err)
	}
	if !exists {
		return fmt.Errorf("update price for listing %s: %w", listingID, biddingerrors.ErrListingNotFound)
	}
	return nil
}

func (s *Store) CloseListing(ctx context.Context, listingID string) error {
	tag, err := s.exec(ctx, `UPDATE listings SET status = $2 WHERE id = $1`, listingID, string(model.ListingEnded))
	if err != nil {
		return fmt.Errorf("close listing %s: %w", listingID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("close listing %s: %w", listingID, biddingerrors.ErrListingNotFound)
	}
	return nil
}

func prefixed(prefix, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = prefix + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
