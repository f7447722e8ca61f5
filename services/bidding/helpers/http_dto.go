package helpers

import (
	"encoding/json"
	"time"

	model "auction-backend/internal/models"
)

// Request/Response DTOs

// PlaceBidRequest keeps amounts raw so that unparsable values reach the bid engine as invalid amounts.
type PlaceBidRequest struct {
	Amount    json.RawMessage `json:"amount"`
	IsAutoBid bool            `json:"is_auto_bid"`
	MaxAmount json.RawMessage `json:"max_amount"`
}

type BidResponse struct {
	ID        string   `json:"id"`
	ListingID string   `json:"item_id"`
	UserID    string   `json:"user_id"`
	Amount    float64  `json:"amount"`
	IsAutoBid bool     `json:"is_auto_bid"`
	MaxAmount *float64 `json:"max_amount,omitempty"`
	Timestamp string   `json:"timestamp"`
}

// BidListItem is one entry of the public bid history.
type BidListItem struct {
	ID        string  `json:"id"`
	Amount    float64 `json:"amount"`
	Timestamp string  `json:"timestamp"`
	UserID    string  `json:"user_id"`
	IsAutoBid bool    `json:"is_auto_bid"`
}

type CreateListingRequest struct {
	Name          string          `json:"name" binding:"required"`
	Description   string          `json:"description" binding:"required"`
	StartingPrice json.RawMessage `json:"starting_price" binding:"required"`
	EndTime       string          `json:"end_time" binding:"required"`
	Category      string          `json:"category"`
	Condition     string          `json:"condition"`
	Location      string          `json:"location"`
	ImageURL      string          `json:"image_url"`
}

type ListingResponse struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Description   string  `json:"description"`
	StartingPrice float64 `json:"starting_price"`
	CurrentPrice  float64 `json:"current_price"`
	EndTime       string  `json:"end_time"`
	Status        string  `json:"status"`
	SellerID      string  `json:"seller_id"`
	Category      string  `json:"category,omitempty"`
	Condition     string  `json:"condition,omitempty"`
	Location      string  `json:"location,omitempty"`
	ImageURL      string  `json:"image_url,omitempty"`
	CreatedAt     string  `json:"created_at"`
}

type AdminBidResponse struct {
	ID        string  `json:"id"`
	Amount    float64 `json:"amount"`
	Timestamp string  `json:"timestamp"`
	Item      struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Description string `json:"description"`
	} `json:"item"`
	User struct {
		ID       string `json:"id"`
		Username string `json:"username"`
		Email    string `json:"email"`
	} `json:"user"`
}

type RegisterRequest struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	PhoneNumber string `json:"phone_number"`
	Address     string `json:"address"`
}

type AdminRegisterRequest struct {
	RegisterRequest
	AdminCode string `json:"admin_code"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type UpdateProfileRequest struct {
	Username *string `json:"username"`
	Email    *string `json:"email"`
}

type UserResponse struct {
	ID           string  `json:"id"`
	Username     string  `json:"username"`
	Email        string  `json:"email"`
	PhoneNumber  string  `json:"phone_number"`
	Address      string  `json:"address"`
	ProfileImage *string `json:"profile_image"`
	UserType     string  `json:"user_type"`
}

type LoginResponse struct {
	AccessToken string       `json:"access_token"`
	ExpiresAt   string       `json:"expires_at"`
	User        UserResponse `json:"user"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func ToBidResponse(b model.Bid) BidResponse {
	return BidResponse{
		ID:        b.BidID,
		ListingID: b.ListingID,
		UserID:    b.UserID,
		Amount:    b.Amount,
		IsAutoBid: b.IsAutoBid,
		MaxAmount: b.MaxAmount,
		Timestamp: formatTime(b.CreatedAt),
	}
}

func ToBidList(bids []model.Bid) []BidListItem {
	out := make([]BidListItem, 0, len(bids))
	for _, b := range bids {
		out = append(out, BidListItem{
			ID:        b.BidID,
			Amount:    b.Amount,
			Timestamp: formatTime(b.CreatedAt),
			UserID:    b.UserID,
			IsAutoBid: b.IsAutoBid,
		})
	}
	return out
}

func ToListingResponse(l model.Listing) ListingResponse {
	return ListingResponse{
		ID:            l.ListingID,
		Name:          l.Name,
		Description:   l.Description,
		StartingPrice: l.StartingPrice,
		CurrentPrice:  l.CurrentPrice,
		EndTime:       formatTime(l.EndTime),
		Status:        string(l.Status),
		SellerID:      l.SellerID,
		Category:      l.Category,
		Condition:     l.Condition,
		Location:      l.Location,
		ImageURL:      l.ImageURL,
		CreatedAt:     formatTime(l.CreatedAt),
	}
}

func ToListingResponses(listings []model.Listing) []ListingResponse {
	out := make([]ListingResponse, 0, len(listings))
	for _, l := range listings {
		out = append(out, ToListingResponse(l))
	}
	return out
}

func ToAdminBidResponses(views []model.BidView) []AdminBidResponse {
	out := make([]AdminBidResponse, 0, len(views))
	for _, v := range views {
		r := AdminBidResponse{ID: v.BidID, Amount: v.Amount, Timestamp: formatTime(v.CreatedAt)}
		r.Item.ID = v.ListingID
		r.Item.Name = v.ListingName
		r.Item.Description = v.ListingDescription
		r.User.ID = v.UserID
		r.User.Username = v.Username
		r.User.Email = v.Email
		out = append(out, r)
	}
	return out
}

func ToUserResponse(u model.User) UserResponse {
	return UserResponse{
		ID:           u.UserID,
		Username:     u.Username,
		Email:        u.Email,
		PhoneNumber:  u.PhoneNumber,
		Address:      u.Address,
		ProfileImage: u.ProfileImage,
		UserType:     string(u.Role),
	}
}
