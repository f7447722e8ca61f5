package biddingerrors

import (
	"errors"
	"fmt"
)

// Repository-level errors
var (
	ErrListingNotFound = errors.New("listing not found")
	ErrBidNotFound     = errors.New("bid not found")
	ErrUserNotFound    = errors.New("user not found")
	ErrNoBids          = errors.New("no bids found for listing")
	ErrUserNoBids      = errors.New("user has not placed any bids")
	ErrUsernameTaken   = errors.New("username already exists")
	ErrEmailTaken      = errors.New("email already exists")
	ErrStorageFailure  = errors.New("storage failure")
)

// business logic errors
var (
	ErrAuctionEnded        = errors.New("auction has ended")
	ErrInvalidAmount       = errors.New("invalid bid amount")
	ErrBidTooLow           = errors.New("bid amount too low")
	ErrInvalidBid          = errors.New("invalid bid")
	ErrIdempotencyConflict = errors.New("idempotency key reused with different bid")
	ErrInvalidListing      = errors.New("invalid listing")
)

// identity errors
var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidUserInput   = errors.New("invalid user input")
	ErrInvalidAdminCode   = errors.New("invalid admin code")
	ErrRateLimited        = errors.New("rate limit exceeded")
)

// BidTooLowError carries the price a bid had to beat.
type BidTooLowError struct {
	Amount       float64
	CurrentPrice float64
}

func (e *BidTooLowError) Error() string {
	return fmt.Sprintf("%s: %.2f does not exceed current price %.2f", ErrBidTooLow, e.Amount, e.CurrentPrice)
}

func (e *BidTooLowError) Unwrap() error {
	return ErrBidTooLow
}

// StorageError wraps a failed or timed-out persistence call.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrStorageFailure, e.Op, e.Err)
}

// Unwrap exposes both the category and the cause to errors.Is.
func (e *StorageError) Unwrap() []error {
	return []error{ErrStorageFailure, e.Err}
}

// Retryable reports that the caller may safely retry the operation.
func (e *StorageError) Retryable() bool {
	return true
}

// Storage wraps err as a StorageError unless it already carries a domain meaning.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsDomain(err) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// IsDomain reports whether err is one of the package's domain errors rather than an infrastructure failure.
func IsDomain(err error) bool {
	for _, target := range []error{
		ErrListingNotFound, ErrBidNotFound, ErrUserNotFound, ErrNoBids, ErrUserNoBids,
		ErrUsernameTaken, ErrEmailTaken, ErrStorageFailure,
		ErrAuctionEnded, ErrInvalidAmount, ErrBidTooLow, ErrInvalidBid, ErrIdempotencyConflict, ErrInvalidListing,
		ErrUnauthorized, ErrForbidden, ErrInvalidCredentials, ErrInvalidUserInput, ErrInvalidAdminCode, ErrRateLimited,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsRetryable reports whether err (or anything it wraps) is a retryable failure.
func IsRetryable(err error) bool {
	var r interface{ Retryable() bool }
	return errors.As(err, &r) && r.Retryable()
}

// CurrentPrice extracts the price payload from a BidTooLow error.
func CurrentPrice(err error) (float64, bool) {
	var tooLow *BidTooLowError
	if errors.As(err, &tooLow) {
		return tooLow.CurrentPrice, true
	}
	return 0, false
}
