// Package wallethandler exposes balances and top-ups over REST.
package wallethandler

import (
	"context"
	"net/http"

	"diamondauction/internal/http/httperror"
	"diamondauction/internal/http/middleware"
	"diamondauction/internal/wallet"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// Wallet is the subset of the ledger the REST surface drives.
type Wallet interface {
	GetBalance(ctx context.Context, userID string) (decimal.Decimal, error)
	Topup(ctx context.Context, userID string, amount decimal.Decimal) (decimal.Decimal, error)
	Adjust(ctx context.Context, userID string, delta decimal.Decimal, reason string) (decimal.Decimal, error)
	History(ctx context.Context, userID string) []wallet.Transaction
}

var _ Wallet = (*wallet.MemoryLedger)(nil)

type Handler struct {
	wallet Wallet
}

func New(w Wallet) *Handler { return &Handler{wallet: w} }

func (h *Handler) Register(r gin.IRouter) {
	g := r.Group("/wallet", middleware.RequireUser())
	g.GET("/balance", h.balance)
	g.POST("/topup", h.topup)
	g.GET("/history", h.history)

	r.POST("/admin/wallet/:userId", h.adjust)
}

// @Summary		Wallet balance
// @Description	Spendable balance of the caller.
// @Tags			Wallet
// @Param			X-User-ID	header		string	true	"Caller"
// @Success		200			{object}	BalanceResponse
// @Failure		400			{object}	httperror.ErrorResponse
// @Router			/wallet/balance [get]
func (h *Handler) balance(c *gin.Context) {
	user := middleware.UserID(c)
	bal, err := h.wallet.GetBalance(c.Request.Context(), user)
	if err != nil {
		httperror.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, BalanceResponse{UserID: user, Balance: bal})
}

// @Summary		Top up wallet
// @Tags			Wallet
// @Accept			json
// @Param			X-User-ID	header		string		true	"Caller"
// @Param			body		body		TopupBody	true	"Amount to add"
// @Success		200			{object}	BalanceResponse
// @Failure		400			{object}	httperror.ErrorResponse
// @Router			/wallet/topup [post]
func (h *Handler) topup(c *gin.Context) {
	var body TopupBody
	if err := c.ShouldBindJSON(&body); err != nil {
		httperror.BadRequest(c, err)
		return
	}
	user := middleware.UserID(c)
	bal, err := h.wallet.Topup(c.Request.Context(), user, body.Amount)
	if err != nil {
		httperror.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, BalanceResponse{UserID: user, Balance: bal})
}

// @Summary		Wallet history
// @Description	Caller's transactions, newest first.
// @Tags			Wallet
// @Param			X-User-ID	header	string	true	"Caller"
// @Success		200			{array}	wallet.Transaction
// @Router			/wallet/history [get]
func (h *Handler) history(c *gin.Context) {
	c.JSON(http.StatusOK, h.wallet.History(c.Request.Context(), middleware.UserID(c)))
}

// @Summary		Adjust a wallet
// @Description	Administrative signed correction of a user's balance.
// @Tags			Admin
// @Accept			json
// @Param			userId	path		string		true	"User ID"
// @Param			body	body		AdjustBody	true	"Signed amount and reason"
// @Success		200		{object}	BalanceResponse
// @Failure		400		{object}	httperror.ErrorResponse
// @Failure		422		{object}	httperror.ErrorResponse
// @Router			/admin/wallet/{userId} [post]
func (h *Handler) adjust(c *gin.Context) {
	var body AdjustBody
	if err := c.ShouldBindJSON(&body); err != nil {
		httperror.BadRequest(c, err)
		return
	}
	user := c.Param("userId")
	bal, err := h.wallet.Adjust(c.Request.Context(), user, body.Amount, body.Reason)
	if err != nil {
		httperror.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, BalanceResponse{UserID: user, Balance: bal})
}
