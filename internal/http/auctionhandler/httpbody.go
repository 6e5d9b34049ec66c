package auctionhandler

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreateAuctionBody accepts base_bid_price as an alias of base_price.
type CreateAuctionBody struct {
	DiamondID    string           `json:"diamond_id"     binding:"required" example:"dia-001"`
	DiamondName  string           `json:"diamond_name"                      example:"Blue Hope"`
	ImageURL     string           `json:"image_url"                         example:"https://cdn.example.com/dia-001.jpg"`
	Description  string           `json:"description"                       example:"45.52 carat, fancy dark grayish-blue"`
	BasePrice    *decimal.Decimal `json:"base_price"                        swaggertype:"string" example:"1000.00"`
	BaseBidPrice *decimal.Decimal `json:"base_bid_price"                    swaggertype:"string" example:"1000.00"`
	StartTime    *time.Time       `json:"start_time"                        example:"2026-07-27T16:00:00Z"`
	EndTime      time.Time        `json:"end_time"       binding:"required" example:"2026-07-27T18:00:00Z"`
} // @name CreateAuctionRequest

func (b CreateAuctionBody) basePrice() (decimal.Decimal, bool) {
	switch {
	case b.BasePrice != nil:
		return *b.BasePrice, true
	case b.BaseBidPrice != nil:
		return *b.BaseBidPrice, true
	}
	return decimal.Decimal{}, false
}

type PlaceBidBody struct {
	Amount decimal.Decimal `json:"amount" swaggertype:"string" example:"150.00"`
} // @name PlaceBidRequest

type AutoBidBody struct {
	MaxAmount decimal.Decimal `json:"max_amount" swaggertype:"string" example:"300.00"`
} // @name AutoBidRequest

type ListAuctionsQuery struct {
	Status         string `form:"status"          binding:"omitempty,oneof=all draft active closed completed"`
	IncludeDeleted bool   `form:"include_deleted"`
} // @name ListAuctionsQuery

type AckResponse struct {
	AuctionID string `json:"auction_id" example:"5f0c7c1e-8a52-4a4e-9d59-3f1c6a0c2b1e"`
	Message   string `json:"message"    example:"Auction moved to trash"`
} // @name AckResponse
