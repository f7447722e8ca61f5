package helpers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"auction-backend/internal/biddingerrors"
	model "auction-backend/internal/models"
	"auction-backend/utils"

	"github.com/gin-gonic/gin"
)

// RetryAfterSeconds is advertised to clients on retryable storage failures.
const RetryAfterSeconds = 1

const currentUserKey = "auction.current_user"

// HandleBindError sends a standardized JSON error for binding failures
func HandleBindError(c *gin.Context, handlerName string, err error) {
	wrappedErr := fmt.Errorf("invalid request payload: %w", err)
	utils.JSONError(c, http.StatusBadRequest, wrappedErr, "invalid request payload")
	utils.Warn(handlerName+": binding error", map[string]any{"error": err.Error()})
}

// MapErrorToHTTP maps domain/service errors to HTTP status code and message
func MapErrorToHTTP(err error) (int, string) {
	switch {
	case errors.Is(err, biddingerrors.ErrStorageFailure):
		return http.StatusServiceUnavailable, "storage temporarily unavailable, retry later"
	case errors.Is(err, biddingerrors.ErrListingNotFound):
		return http.StatusNotFound, "item not found"
	case errors.Is(err, biddingerrors.ErrUserNotFound):
		return http.StatusNotFound, "user not found"
	case errors.Is(err, biddingerrors.ErrBidNotFound):
		return http.StatusNotFound, "bid not found"
	case errors.Is(err, biddingerrors.ErrNoBids):
		return http.StatusNotFound, "no bids found for item"
	case errors.Is(err, biddingerrors.ErrAuctionEnded):
		return http.StatusConflict, "auction has ended"
	case errors.Is(err, biddingerrors.ErrInvalidAmount):
		return http.StatusBadRequest, "invalid bid amount"
	case errors.Is(err, biddingerrors.ErrBidTooLow):
		return http.StatusConflict, "bid must be higher than current price"
	case errors.Is(err, biddingerrors.ErrIdempotencyConflict):
		return http.StatusConflict, "idempotency key already used for a different bid"
	case errors.Is(err, biddingerrors.ErrUsernameTaken):
		return http.StatusConflict, "username already exists"
	case errors.Is(err, biddingerrors.ErrEmailTaken):
		return http.StatusConflict, "email already exists"
	case errors.Is(err, biddingerrors.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, biddingerrors.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid credentials"
	case errors.Is(err, biddingerrors.ErrInvalidAdminCode):
		return http.StatusUnauthorized, "invalid admin code"
	case errors.Is(err, biddingerrors.ErrRateLimited):
		return http.StatusTooManyRequests, "too many requests"
	case errors.Is(err, biddingerrors.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, biddingerrors.ErrInvalidUserInput):
		return http.StatusBadRequest, "invalid input"
	case errors.Is(err, biddingerrors.ErrInvalidListing):
		return http.StatusBadRequest, "invalid item details"
	case errors.Is(err, biddingerrors.ErrInvalidBid):
		return http.StatusBadRequest, "invalid bid details"
	case errors.Is(err, biddingerrors.ErrUserNoBids):
		return http.StatusOK, "no items found for user"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// RespondError writes the error envelope for err, adding the fields a client
// needs to react: current_price on a too-low bid, Retry-After on storage failures.
func RespondError(c *gin.Context, handlerName string, err error, logFields map[string]any) {
	status, message := MapErrorToHTTP(err)

	var extra gin.H
	if price, ok := biddingerrors.CurrentPrice(err); ok {
		extra = gin.H{"current_price": price}
	}
	if biddingerrors.IsRetryable(err) {
		c.Header("Retry-After", strconv.Itoa(RetryAfterSeconds))
	}
	utils.JSONErrorWithFields(c, status, fmt.Errorf("%s: %w", message, err), message, extra)

	fields := map[string]any{"handler": handlerName, "status": status, "error": err.Error()}
	for k, v := range logFields {
		fields[k] = v
	}
	if status >= http.StatusInternalServerError {
		utils.Error(handlerName+": request failed", fields)
		return
	}
	utils.Warn(handlerName+": request rejected", fields)
}

// LogSuccess is a small helper to standardize logging of successful operations
func LogSuccess(handlerName, message string, ctx map[string]any) {
	utils.Info(handlerName+": "+message, ctx)
}

// SetCurrentUser stores the authenticated user on the request context.
func SetCurrentUser(c *gin.Context, user model.User) {
	c.Set(currentUserKey, user)
}

// CurrentUser returns the authenticated user, if any.
func CurrentUser(c *gin.Context) (model.User, bool) {
	v, ok := c.Get(currentUserKey)
	if !ok {
		return model.User{}, false
	}
	user, ok := v.(model.User)
	return user, ok
}
