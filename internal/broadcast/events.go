// Package broadcast fans auction state changes out to subscribers of an
// auction's channel. Delivery is at-most-once; a subscriber that misses
// events re-fetches state through the REST API.
package broadcast

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"diamondauction/internal/models"

	"github.com/shopspring/decimal"
)

const (
	EventNewBid         = "new-bid"
	EventAuctionStarted = "auction-started"
	EventAuctionClosed  = "auction-closed"
	EventSnapshot       = "auction-snapshot"
)

// wireVersion tags every payload published to Redis.
const wireVersion = 1

type Event struct {
	Name      string
	AuctionID string
	Body      any
}

// Broadcaster publishes one event on the auction's channel. Calls for the
// same auction must be made in order; subscribers observe that order.
type Broadcaster interface {
	Publish(ctx context.Context, ev Event) error
}

type NewBidBody struct {
	AuctionID         string               `json:"auction_id"`
	BidID             string               `json:"bid_id"`
	Amount            decimal.Decimal      `json:"amount"`
	CurrentPrice      decimal.Decimal      `json:"current_price"`
	Kind              models.BidKind       `json:"kind"`
	HighestBidderID   string               `json:"highest_bidder_id"`
	HighestBidderName string               `json:"highest_bidder_name"`
	Status            models.AuctionStatus `json:"status"`
	CreatedAt         time.Time            `json:"created_at"`
}

type Winner struct {
	UserID string          `json:"user_id"`
	Name   string          `json:"name"`
	Amount decimal.Decimal `json:"amount"`
}

type AuctionClosedBody struct {
	AuctionID     string               `json:"auction_id"`
	Status        models.AuctionStatus `json:"status"`
	Winner        *Winner              `json:"winner"`
	WinnerID      *string              `json:"winner_id"`
	WinningAmount *decimal.Decimal     `json:"winning_amount"`
}

type AuctionStartedBody struct {
	AuctionID    string               `json:"auction_id"`
	Status       models.AuctionStatus `json:"status"`
	Message      string               `json:"message"`
	CurrentPrice decimal.Decimal      `json:"current_price"`
	EndTime      time.Time            `json:"end_time"`
}

// Encode renders ev in the flat wire form
//
//	{"version":1,"event":"new-bid","auction_id":"…",…}
func Encode(ev Event) ([]byte, error) {
	raw, err := json.Marshal(ev.Body)
	if err != nil {
		return nil, err
	}
	flat := map[string]any{}
	if len(raw) > 0 && string(raw) != "null" {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&flat); err != nil {
			return nil, err
		}
	}
	flat["event"] = ev.Name
	flat["version"] = wireVersion
	if _, ok := flat["auction_id"]; !ok {
		flat["auction_id"] = ev.AuctionID
	}
	return json.Marshal(flat)
}
