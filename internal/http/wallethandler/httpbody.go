package wallethandler

import (
	"github.com/shopspring/decimal"
)

type TopupBody struct {
	Amount decimal.Decimal `json:"amount" swaggertype:"string" example:"500.00"`
} // @name TopupRequest

// AdjustBody carries a signed correction.
type AdjustBody struct {
	Amount decimal.Decimal `json:"amount" swaggertype:"string" example:"-25.00"`
	Reason string          `json:"reason" binding:"required"   example:"chargeback"`
} // @name AdjustRequest

type BalanceResponse struct {
	UserID  string          `json:"user_id" example:"alice"`
	Balance decimal.Decimal `json:"balance" swaggertype:"string" example:"1000.00"`
} // @name BalanceResponse
