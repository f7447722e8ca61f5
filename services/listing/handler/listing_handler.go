package handler

import (
	"context"
	"fmt"
	"net/http"

	"auction-backend/internal/biddingerrors"
	listing "auction-backend/internal/listingService"
	model "auction-backend/internal/models"
	"auction-backend/services/bidding/helpers"
	"auction-backend/utils"

	"github.com/gin-gonic/gin"
)

//go:generate mockgen -destination=mock_listing_service.go -package=handler auction-backend/services/listing/handler ListingServiceInterface

type ListingServiceInterface interface {
	CreateListing(ctx context.Context, sellerID string, in listing.CreateListingInput) (model.Listing, error)
	GetListing(ctx context.Context, listingID string) (model.Listing, error)
	ListActiveListings(ctx context.Context) ([]model.Listing, error)
	ListAllListings(ctx context.Context) ([]model.Listing, error)
	ListAllBids(ctx context.Context) ([]model.BidView, error)
	CloseListing(ctx context.Context, actor model.User, listingID string) (model.Listing, error)
}

type ListingHandler struct {
	service ListingServiceInterface
}

func NewListingHandler(service ListingServiceInterface) *ListingHandler {
	return &ListingHandler{service: service}
}

// CreateListingHandler handles POST /api/items
func (h *ListingHandler) CreateListingHandler(c *gin.Context) {
	user, ok := helpers.CurrentUser(c)
	if !ok {
		helpers.RespondError(c, "CreateListingHandler", fmt.Errorf("%w - missing credentials", biddingerrors.ErrUnauthorized), nil)
		return
	}

	var req helpers.CreateListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "CreateListingHandler", err)
		return
	}

	endTime, err := helpers.ParseEndTime(req.EndTime)
	if err != nil {
		helpers.RespondError(c, "CreateListingHandler", fmt.Errorf("%w - %v", biddingerrors.ErrInvalidListing, err), map[string]any{"seller_id": user.UserID})
		return
	}

	created, err := h.service.CreateListing(c.Request.Context(), user.UserID, listing.CreateListingInput{
		Name:          req.Name,
		Description:   req.Description,
		StartingPrice: helpers.ParseAmount(req.StartingPrice),
		EndTime:       endTime,
		Category:      req.Category,
		Condition:     req.Condition,
		Location:      req.Location,
		ImageURL:      req.ImageURL,
	})
	if err != nil {
		helpers.RespondError(c, "CreateListingHandler", err, map[string]any{"seller_id": user.UserID})
		return
	}

	utils.JSONResponseWithFields(c, http.StatusCreated, helpers.ToListingResponse(created), "item created successfully", gin.H{"item_id": created.ListingID})
	helpers.LogSuccess("CreateListingHandler", "item created successfully", map[string]any{
		"item_id":   created.ListingID,
		"seller_id": user.UserID,
	})
}

// ListActiveListingsHandler handles GET /api/items
func (h *ListingHandler) ListActiveListingsHandler(c *gin.Context) {
	listings, err := h.service.ListActiveListings(c.Request.Context())
	if err != nil {
		helpers.RespondError(c, "ListActiveListingsHandler", err, nil)
		return
	}
	utils.JSONResponse(c, http.StatusOK, helpers.ToListingResponses(listings), "items retrieved successfully")
}

// GetListingHandler handles GET /api/items/:item_id
func (h *ListingHandler) GetListingHandler(c *gin.Context) {
	listingID := c.Param("item_id")
	found, err := h.service.GetListing(c.Request.Context(), listingID)
	if err != nil {
		helpers.RespondError(c, "GetListingHandler", err, map[string]any{"item_id": listingID})
		return
	}
	utils.JSONResponse(c, http.StatusOK, helpers.ToListingResponse(found), "item retrieved successfully")
}

// CloseListingHandler handles POST /api/items/:item_id/close
func (h *ListingHandler) CloseListingHandler(c *gin.Context) {
	listingID := c.Param("item_id")
	user, ok := helpers.CurrentUser(c)
	if !ok {
		helpers.RespondError(c, "CloseListingHandler", fmt.Errorf("%w - missing credentials", biddingerrors.ErrUnauthorized), map[string]any{"item_id": listingID})
		return
	}

	closed, err := h.service.CloseListing(c.Request.Context(), user, listingID)
	if err != nil {
		helpers.RespondError(c, "CloseListingHandler", err, map[string]any{"item_id": listingID, "user_id": user.UserID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.ToListingResponse(closed), "item closed successfully")
	helpers.LogSuccess("CloseListingHandler", "item closed successfully", map[string]any{
		"item_id": listingID,
		"user_id": user.UserID,
	})
}

// ListAllListingsHandler handles GET /api/admin/items
func (h *ListingHandler) ListAllListingsHandler(c *gin.Context) {
	listings, err := h.service.ListAllListings(c.Request.Context())
	if err != nil {
		helpers.RespondError(c, "ListAllListingsHandler", err, nil)
		return
	}
	utils.JSONResponse(c, http.StatusOK, helpers.ToListingResponses(listings), "items retrieved successfully")
}

// ListAllBidsHandler handles GET /api/admin/bids
func (h *ListingHandler) ListAllBidsHandler(c *gin.Context) {
	views, err := h.service.ListAllBids(c.Request.Context())
	if err != nil {
		helpers.RespondError(c, "ListAllBidsHandler", err, nil)
		return
	}
	utils.JSONResponse(c, http.StatusOK, helpers.ToAdminBidResponses(views), "bids retrieved successfully")
}
