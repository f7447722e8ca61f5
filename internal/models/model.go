package models

import "time"

// Role distinguishes regular marketplace users from administrators
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User represents a registered marketplace participant
type User struct {
	UserID       string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	PhoneNumber  string    `json:"phone_number"`
	Address      string    `json:"address"`
	ProfileImage *string   `json:"profile_image"`
	Role         Role      `json:"user_type"`
	CreatedAt    time.Time `json:"created_at"`
}

// IsAdmin reports whether the user holds the admin role
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// ListingStatus is the stored lifecycle state of a listing
type ListingStatus string

const (
	ListingActive ListingStatus = "active"
	ListingEnded  ListingStatus = "ended"
)

// Listing represents an auction item.
// StartingPrice and EndTime are fixed at creation; CurrentPrice only grows.
type Listing struct {
	ListingID     string        `json:"id"`
	Name          string        `json:"name"`
	Description   string        `json:"description"`
	StartingPrice float64       `json:"starting_price"`
	CurrentPrice  float64       `json:"current_price"`
	EndTime       time.Time     `json:"end_time"`
	Status        ListingStatus `json:"status"`
	SellerID      string        `json:"seller_id"`
	Category      string        `json:"category,omitempty"`
	Condition     string        `json:"condition,omitempty"`
	Location      string        `json:"location,omitempty"`
	ImageURL      string        `json:"image_url,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}

// IsOpen reports whether the listing still accepts bids at instant now.
// An elapsed end time closes the listing whatever its stored status says.
func (l Listing) IsOpen(now time.Time) bool {
	return l.Status == ListingActive && now.Before(l.EndTime)
}

// EffectiveStatus is the status a reader should see at instant now.
func (l Listing) EffectiveStatus(now time.Time) ListingStatus {
	if l.IsOpen(now) {
		return ListingActive
	}
	return ListingEnded
}

// Bid represents a committed bid on a listing. Bids are never updated or deleted.
type Bid struct {
	BidID          string    `json:"id"`
	ListingID      string    `json:"item_id"`
	UserID         string    `json:"user_id"`
	Amount         float64   `json:"amount"`
	IsAutoBid      bool      `json:"is_auto_bid"`
	MaxAmount      *float64  `json:"max_amount,omitempty"`
	IdempotencyKey string    `json:"-"`
	CreatedAt      time.Time `json:"timestamp"`
}

// BidResult is the outcome of a successful bid placement
type BidResult struct {
	Bid      Bid
	Replayed bool // true when an idempotent retry returned an earlier commit
}

// BidView is a bid joined with its listing and bidder for administrative reads
type BidView struct {
	Bid
	ListingName        string `json:"item_name"`
	ListingDescription string `json:"item_description"`
	Username           string `json:"username"`
	Email              string `json:"email"`
}
