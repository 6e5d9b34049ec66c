package auction

import (
	"context"
	"time"

	"diamondauction/internal/auctionerr"
	"diamondauction/internal/models"
	"diamondauction/internal/wallet"

	"github.com/shopspring/decimal"
)

// CheckBid applies the stateless bid rules, in order: the auction is
// active, now falls inside its window, the amount beats the current price
// and carries at most two decimals.
func CheckBid(a *models.Auction, amount decimal.Decimal, now time.Time) error {
	if a.Status != models.AuctionStatusActive {
		return auctionerr.ErrAuctionNotActive
	}
	if err := checkWindow(a, now); err != nil {
		return err
	}
	if !amount.GreaterThan(a.CurrentPrice) {
		return auctionerr.ErrBidTooLow.Withf("bid must be higher than current price (%s)", a.CurrentPrice.StringFixed(models.MoneyPlaces))
	}
	if !models.HasMoneyPrecision(amount) {
		return auctionerr.ErrInvalidPrecision
	}
	return nil
}

func checkWindow(a *models.Auction, now time.Time) error {
	if a.StartTime != nil && now.Before(*a.StartTime) {
		return auctionerr.ErrAuctionWindowClosed.Withf("auction opens at %s", a.StartTime.Format(time.RFC3339))
	}
	if now.After(a.EndTime) {
		return auctionerr.ErrAuctionWindowClosed.Withf("auction ended at %s", a.EndTime.Format(time.RFC3339))
	}
	return nil
}

// BidValidator adds the funds rule on top of CheckBid.
type BidValidator struct {
	ledger wallet.Ledger
}

func NewBidValidator(ledger wallet.Ledger) BidValidator { return BidValidator{ledger: ledger} }

func (v BidValidator) Validate(ctx context.Context, a *models.Auction, userID string, amount decimal.Decimal, now time.Time) error {
	if err := CheckBid(a, amount, now); err != nil {
		return err
	}
	return v.checkFunds(ctx, userID, amount)
}

func (v BidValidator) checkFunds(ctx context.Context, userID string, amount decimal.Decimal) error {
	balance, err := v.ledger.GetBalance(ctx, userID)
	if err != nil {
		return auctionerr.Internal(err)
	}
	if balance.LessThan(amount) {
		return auctionerr.ErrInsufficientFunds
	}
	return nil
}
