package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	EventBidPlaced     = "BidPlaced"
	EventListingClosed = "ListingClosed"
)

// Producer names this service in every envelope.
const Producer = "auction-api"

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"` // listing id
	Payload       json.RawMessage `json:"payload"`
}

type BidPlacedPayload struct {
	BidID     string    `json:"bid_id"`
	ListingID string    `json:"listing_id"`
	BidderID  string    `json:"bidder_id"`
	Amount    float64   `json:"amount"`
	IsAutoBid bool      `json:"is_auto_bid"`
	MaxAmount *float64  `json:"max_amount,omitempty"`
	PlacedAt  time.Time `json:"placed_at"`
}

type ListingClosedPayload struct {
	ListingID  string    `json:"listing_id"`
	ClosedBy   string    `json:"closed_by"`
	FinalPrice float64   `json:"final_price"`
	WinnerID   string    `json:"winner_id,omitempty"`
	ClosedAt   time.Time `json:"closed_at"`
}

// Publisher delivers envelopes; key selects the partition so events of one listing stay ordered.
type Publisher interface {
	Publish(ctx context.Context, key string, env Envelope) error
}

// NewEnvelope wraps payload in a version 1 envelope.
func NewEnvelope(eventType, correlationID string, occurredAt time.Time, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("events: encode %s payload: %w", eventType, err)
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    occurredAt.UTC(),
		Producer:      Producer,
		CorrelationID: correlationID,
		Payload:       raw,
	}, nil
}

// UnwrapPayload decodes an envelope payload into T.
func UnwrapPayload[T any](payload json.RawMessage) (T, error) {
	var t T
	if err := json.Unmarshal(payload, &t); err != nil {
		return t, fmt.Errorf("events: decode payload: %w", err)
	}
	return t, nil
}
