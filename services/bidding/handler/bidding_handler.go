package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	bidding "auction-backend/internal/biddingService"
	"auction-backend/internal/biddingerrors"
	model "auction-backend/internal/models"
	"auction-backend/services/bidding/helpers"
	"auction-backend/utils"

	"github.com/gin-gonic/gin"
)

//go:generate mockgen -destination=mock_bidding_service.go -package=handler auction-backend/services/bidding/handler BiddingServiceInterface

// IdempotencyKeyHeader lets a client retry a bid without placing it twice.
const IdempotencyKeyHeader = "Idempotency-Key"

type BiddingServiceInterface interface {
	PlaceBid(ctx context.Context, in bidding.PlaceBidInput) (model.BidResult, error)
	GetBidsForListing(ctx context.Context, listingID string) ([]model.Bid, error)
	GetWinningBid(ctx context.Context, listingID string) (model.Bid, error)
	GetListingsByBidder(ctx context.Context, userID string) ([]model.Listing, error)
}

type BiddingHandler struct {
	service BiddingServiceInterface
}

func NewBiddingHandler(service BiddingServiceInterface) *BiddingHandler {
	return &BiddingHandler{service: service}
}

// PlaceBidHandler handles POST /api/items/:item_id/bid
func (h *BiddingHandler) PlaceBidHandler(c *gin.Context) {
	listingID := c.Param("item_id")
	user, ok := helpers.CurrentUser(c)
	if !ok {
		helpers.RespondError(c, "PlaceBidHandler", fmt.Errorf("%w - missing credentials", biddingerrors.ErrUnauthorized), map[string]any{"item_id": listingID})
		return
	}

	var req helpers.PlaceBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "PlaceBidHandler", err)
		return
	}

	in := bidding.PlaceBidInput{
		ListingID:      listingID,
		BidderID:       user.UserID,
		Amount:         helpers.ParseAmount(req.Amount),
		IsAutoBid:      req.IsAutoBid,
		MaxAmount:      helpers.ParseOptionalAmount(req.MaxAmount),
		IdempotencyKey: c.GetHeader(IdempotencyKeyHeader),
	}

	result, err := h.service.PlaceBid(c.Request.Context(), in)
	if err != nil {
		helpers.RespondError(c, "PlaceBidHandler", err, map[string]any{
			"item_id": listingID,
			"user_id": user.UserID,
		})
		return
	}

	status, message := http.StatusCreated, "bid placed successfully"
	if result.Replayed {
		status, message = http.StatusOK, "bid already placed"
	}
	utils.JSONResponseWithFields(c, status, helpers.ToBidResponse(result.Bid), message, gin.H{"bid_id": result.Bid.BidID})
	helpers.LogSuccess("PlaceBidHandler", message, map[string]any{
		"bid_id":   result.Bid.BidID,
		"item_id":  listingID,
		"user_id":  user.UserID,
		"amount":   result.Bid.Amount,
		"replayed": result.Replayed,
	})
}

// GetBidsByListingHandler handles GET /api/items/:item_id/bids.
// Success writes the bare history array, newest first; errors keep the envelope.
func (h *BiddingHandler) GetBidsByListingHandler(c *gin.Context) {
	listingID := c.Param("item_id")
	bids, err := h.service.GetBidsForListing(c.Request.Context(), listingID)
	if err != nil {
		helpers.RespondError(c, "GetBidsByListingHandler", err, map[string]any{"item_id": listingID})
		return
	}

	c.JSON(http.StatusOK, helpers.ToBidList(bids))
	helpers.LogSuccess("GetBidsByListingHandler", "bids retrieved successfully", map[string]any{
		"item_id": listingID,
		"count":   len(bids),
	})
}

// GetWinningBidHandler handles GET /api/items/:item_id/winning
func (h *BiddingHandler) GetWinningBidHandler(c *gin.Context) {
	listingID := c.Param("item_id")
	bid, err := h.service.GetWinningBid(c.Request.Context(), listingID)
	if err != nil {
		// For auction, winning bid not found -> 404
		if errors.Is(err, biddingerrors.ErrNoBids) {
			utils.JSONError(c, http.StatusNotFound, err, "no winning bid found")
			utils.Info("GetWinningBidHandler: no winning bid found", map[string]any{"item_id": listingID})
			return
		}
		helpers.RespondError(c, "GetWinningBidHandler", err, map[string]any{"item_id": listingID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.ToBidResponse(bid), "winning bid retrieved successfully")
	helpers.LogSuccess("GetWinningBidHandler", "winning bid retrieved successfully", map[string]any{
		"bid_id":  bid.BidID,
		"item_id": bid.ListingID,
		"user_id": bid.UserID,
		"amount":  bid.Amount,
	})
}

// GetListingsByBidderHandler handles GET /api/users/:user_id/items
func (h *BiddingHandler) GetListingsByBidderHandler(c *gin.Context) {
	userID := c.Param("user_id")
	listings, err := h.service.GetListingsByBidder(c.Request.Context(), userID)
	if err != nil && !errors.Is(err, biddingerrors.ErrUserNoBids) {
		helpers.RespondError(c, "GetListingsByBidderHandler", err, map[string]any{"user_id": userID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.ToListingResponses(listings), "items retrieved successfully")
	helpers.LogSuccess("GetListingsByBidderHandler", "items retrieved successfully", map[string]any{
		"user_id":     userID,
		"items_count": len(listings),
	})
}
