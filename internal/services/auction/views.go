package auction

import (
	"context"
	"sort"
	"time"

	"diamondauction/internal/broadcast"
	"diamondauction/internal/models"

	"github.com/shopspring/decimal"
)

type HighestBid struct {
	UserID    string          `json:"user_id"`
	Name      string          `json:"name"`
	Amount    decimal.Decimal `json:"amount"`
	Kind      models.BidKind  `json:"kind"`
	CreatedAt time.Time       `json:"created_at"`
}

type BidSummary struct {
	AuctionID    string               `json:"auction_id"`
	CurrentPrice decimal.Decimal      `json:"current_price"`
	Status       models.AuctionStatus `json:"status"`
	EndTime      time.Time            `json:"end_time"`
	BidCount     int                  `json:"bid_count"`
	HighestBid   *HighestBid          `json:"highest_bid"`
}

type HistoryEntry struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id"`
	BidderName    string          `json:"bidder_name"`
	CurrentAmount decimal.Decimal `json:"current_amount"`
	Kind          models.BidKind  `json:"kind"`
	CreatedAt     time.Time       `json:"created_at"`
	IsWinner      bool            `json:"is_winner"`
}

func (svc *auctionService) CurrentBid(ctx context.Context, auctionID string) (*BidSummary, error) {
	a, err := svc.store.Get(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	out := &BidSummary{
		AuctionID:    a.ID,
		CurrentPrice: a.CurrentPrice,
		Status:       a.Status,
		EndTime:      a.EndTime,
		BidCount:     len(a.Bids),
	}
	if top, ok := a.TopBid(); ok {
		out.HighestBid = &HighestBid{
			UserID:    top.UserID,
			Name:      svc.names.DisplayName(ctx, top.UserID),
			Amount:    top.Amount,
			Kind:      top.Kind,
			CreatedAt: top.CreatedAt,
		}
	}
	return out, nil
}

// BidHistory lists the auction's bids, highest first.
func (svc *auctionService) BidHistory(ctx context.Context, auctionID string) ([]HistoryEntry, error) {
	a, err := svc.store.Get(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	out := make([]HistoryEntry, 0, len(a.Bids))
	for i := len(a.Bids) - 1; i >= 0; i-- {
		b := a.Bids[i]
		out = append(out, HistoryEntry{
			ID:            b.ID,
			UserID:        b.UserID,
			BidderName:    svc.names.DisplayName(ctx, b.UserID),
			CurrentAmount: b.Amount,
			Kind:          b.Kind,
			CreatedAt:     b.CreatedAt,
			IsWinner:      a.Status == models.AuctionStatusClosed && i == len(a.Bids)-1,
		})
	}
	// restored histories are not guaranteed to be in commit order
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CurrentAmount.GreaterThan(out[j].CurrentAmount)
	})
	return out, nil
}

func (svc *auctionService) publishBids(ctx context.Context, a *models.Auction, bids []models.Bid) {
	for _, b := range bids {
		svc.enqueue(broadcast.Event{
			Name:      broadcast.EventNewBid,
			AuctionID: a.ID,
			Body: broadcast.NewBidBody{
				AuctionID:         a.ID,
				BidID:             b.ID,
				Amount:            b.Amount,
				CurrentPrice:      b.Amount,
				Kind:              b.Kind,
				HighestBidderID:   b.UserID,
				HighestBidderName: svc.names.DisplayName(ctx, b.UserID),
				Status:            a.Status,
				CreatedAt:         b.CreatedAt,
			},
		})
	}
}
