package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type AuctionStatus string

const (
	AuctionStatusDraft  AuctionStatus = "draft"
	AuctionStatusActive AuctionStatus = "active"
	AuctionStatusClosed AuctionStatus = "closed"
)

type BidKind string

const (
	BidKindManual BidKind = "manual"
	BidKindAuto   BidKind = "auto"
)

// MoneyPlaces is the number of fractional digits a monetary amount may carry.
const MoneyPlaces int32 = 2

// Auction is the authoritative record of one diamond sale.
type Auction struct {
	ID          string `json:"id"`
	DiamondID   string `json:"diamond_id"`
	DiamondName string `json:"diamond_name,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
	Description string `json:"description,omitempty"`

	BasePrice    decimal.Decimal `json:"base_price"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	Status       AuctionStatus   `json:"status"`
	StartTime    *time.Time      `json:"start_time,omitempty"`
	EndTime      time.Time       `json:"end_time"`

	WinnerID      *string          `json:"winner_id"`
	WinningAmount *decimal.Decimal `json:"winning_amount"`

	Bids      []Bid               `json:"-"`
	ProxyBids map[string]ProxyBid `json:"-"`

	Deleted   bool       `json:"is_deleted"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`

	// Version increments on every committed mutation.
	Version int64 `json:"version"`
}

// Bid is an accepted bid; it never changes once recorded.
type Bid struct {
	ID        string          `json:"id"`
	AuctionID string          `json:"auction_id"`
	UserID    string          `json:"user_id"`
	Amount    decimal.Decimal `json:"amount"`
	Kind      BidKind         `json:"kind"`
	CreatedAt time.Time       `json:"created_at"`
}

// ProxyBid is the ceiling up to which the engine bids on a user's behalf.
// Seq orders proxy bids created within the same instant.
type ProxyBid struct {
	AuctionID string          `json:"auction_id"`
	UserID    string          `json:"user_id"`
	Ceiling   decimal.Decimal `json:"ceiling"`
	CreatedAt time.Time       `json:"created_at"`
	Seq       int64           `json:"seq"`
}

// Before reports whether p was created before o.
func (p ProxyBid) Before(o ProxyBid) bool {
	if !p.CreatedAt.Equal(o.CreatedAt) {
		return p.CreatedAt.Before(o.CreatedAt)
	}
	return p.Seq < o.Seq
}

// TopBid returns the bid currently holding the price.
func (a *Auction) TopBid() (Bid, bool) {
	if len(a.Bids) == 0 {
		return Bid{}, false
	}
	return a.Bids[len(a.Bids)-1], true
}

// LeaderID returns the user holding the current price, or "".
func (a *Auction) LeaderID() string {
	if b, ok := a.TopBid(); ok {
		return b.UserID
	}
	return ""
}

// Clone returns a deep copy safe to hand out of the store.
func (a *Auction) Clone() *Auction {
	if a == nil {
		return nil
	}
	c := *a
	if a.StartTime != nil {
		t := *a.StartTime
		c.StartTime = &t
	}
	if a.WinnerID != nil {
		w := *a.WinnerID
		c.WinnerID = &w
	}
	if a.WinningAmount != nil {
		w := *a.WinningAmount
		c.WinningAmount = &w
	}
	if a.DeletedAt != nil {
		t := *a.DeletedAt
		c.DeletedAt = &t
	}
	c.Bids = append([]Bid(nil), a.Bids...)
	c.ProxyBids = make(map[string]ProxyBid, len(a.ProxyBids))
	for k, v := range a.ProxyBids {
		c.ProxyBids[k] = v
	}
	return &c
}

// HasMoneyPrecision reports whether d has at most two fractional digits.
func HasMoneyPrecision(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(MoneyPlaces))
}
