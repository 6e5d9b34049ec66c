package ws

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

const (
	EventJoinAuction  = "join-auction"
	EventLeaveAuction = "leave-auction"
	EventBid          = "auctions/bid"
	EventAutoBid      = "auctions/auto-bid"
	EventError        = "error"
)

// Envelope wraps every WS frame.
type Envelope struct {
	Event string          `json:"event"`          // e.g. "auctions/bid"
	Body  json.RawMessage `json:"body,omitempty"` // arbitrary JSON object
}

type JoinRequest struct {
	AuctionID string `json:"auction_id"`
}

// BidRequest is the body for "auctions/bid". An empty AuctionID targets
// the auction the connection joined last.
type BidRequest struct {
	AuctionID string          `json:"auction_id"`
	Amount    decimal.Decimal `json:"amount"`
}

// AutoBidRequest is the body for "auctions/auto-bid".
type AutoBidRequest struct {
	AuctionID string          `json:"auction_id"`
	MaxAmount decimal.Decimal `json:"max_amount"`
}

type JoinAck struct {
	AuctionID string `json:"auction_id"`
}

type BidAck struct {
	AuctionID       string          `json:"auction_id"`
	CurrentPrice    decimal.Decimal `json:"current_price"`
	HighestBidderID string          `json:"highest_bidder_id"`
}

// ErrorBody is returned for failures.
type ErrorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
