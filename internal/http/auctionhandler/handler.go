package auctionhandler

import (
	"context"
	"net/http"

	"diamondauction/internal/auctionerr"
	"diamondauction/internal/http/httperror"
	"diamondauction/internal/http/middleware"
	"diamondauction/internal/models"
	"diamondauction/internal/services/auction"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	svc auction.IAuctionService
}

func New(svc auction.IAuctionService) *Handler { return &Handler{svc: svc} }

func (h *Handler) Register(r gin.IRouter) {
	g := r.Group("/bids")
	g.GET("", h.list)
	g.POST("", h.create)
	g.GET("/history/completed", h.completed)
	g.GET("/:id", h.info)
	g.POST("/:id/start", h.start)
	g.POST("/:id/close", h.stop)
	g.POST("/:id/place", middleware.RequireUser(), h.place)
	g.POST("/:id/auto", middleware.RequireUser(), h.auto)
	g.GET("/:id/current", h.current)
	g.GET("/:id/history", h.history)
	g.PATCH("/:id/soft", h.softDelete)
	g.PATCH("/:id/restore", h.restore)
	g.DELETE("/:id/hard", h.hardDelete)
}

// @Summary		List auctions
// @Description	Lists auctions, newest first, optionally filtered by status.
// @Tags			Auctions
// @Param			status			query		string	false	"Status filter"	Enums(all,draft,active,closed,completed)
// @Param			include_deleted	query		bool	false	"Include soft-deleted auctions"
// @Success		200				{array}		models.Auction
// @Failure		400				{object}	httperror.ErrorResponse
// @Router			/bids [get]
func (h *Handler) list(c *gin.Context) {
	var q ListAuctionsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		httperror.BadRequest(c, err)
		return
	}
	f := auction.ListFilter{IncludeDeleted: q.IncludeDeleted}
	switch q.Status {
	case "", "all":
	case "completed":
		f.Status = models.AuctionStatusClosed
	default:
		f.Status = models.AuctionStatus(q.Status)
	}
	out, err := h.svc.ListAuctions(c.Request.Context(), f)
	if err != nil {
		httperror.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// @Summary		List completed auctions
// @Description	Closed auctions with their winners, newest first.
// @Tags			Auctions
// @Success		200	{array}	models.Auction
// @Router			/bids/history/completed [get]
func (h *Handler) completed(c *gin.Context) {
	out, err := h.svc.ListAuctions(c.Request.Context(), auction.ListFilter{Status: models.AuctionStatusClosed})
	if err != nil {
		httperror.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// @Summary		Create an auction
// @Description	Creates a draft auction for one diamond.
// @Tags			Auctions
// @Param			body	body		CreateAuctionBody	true	"Auction payload"
// @Success		201		{object}	models.Auction
// @Failure		400		{object}	httperror.ErrorResponse
// @Router			/bids [post]
func (h *Handler) create(c *gin.Context) {
	var body CreateAuctionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		httperror.BadRequest(c, err)
		return
	}
	price, ok := body.basePrice()
	if !ok {
		httperror.Write(c, auctionerr.Invalid("base_price is required"))
		return
	}
	a, err := h.svc.CreateAuction(c.Request.Context(), auction.CreateAuctionInput{
		DiamondID:   body.DiamondID,
		DiamondName: body.DiamondName,
		ImageURL:    body.ImageURL,
		Description: body.Description,
		BasePrice:   price,
		StartTime:   body.StartTime,
		EndTime:     body.EndTime,
	})
	if err != nil {
		httperror.Write(c, err)
		return
	}
	c.JSON(http.StatusCreated, a)
}

// @Summary		Get auction details
// @Description	Returns full information about a single auction.
// @Tags			Auctions
// @Param			id	path		string	true	"Auction ID"
// @Success		200	{object}	models.Auction
// @Failure		404	{object}	httperror.ErrorResponse
// @Router			/bids/{id} [get]
func (h *Handler) info(c *gin.Context) {
	a, err := h.svc.GetAuction(c.Request.Context(), c.Param("id"))
	if err != nil {
		httperror.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// @Summary		Start an auction
// @Description	Moves a draft auction to active immediately.
// @Tags			Auctions
// @Param			id	path		string	true	"Auction ID"
// @Success		200	{object}	models.Auction
// @Failure		409	{object}	httperror.ErrorResponse
// @Failure		422	{object}	httperror.ErrorResponse
// @Router			/bids/{id}/start [post]
func (h *Handler) start(c *gin.Context) {
	a, err := h.svc.StartAuction(c.Request.Context(), c.Param("id"))
	if err != nil {
		httperror.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// @Summary		Close an auction
// @Description	Closes an active auction early and settles the winner.
// @Tags			Auctions
// @Param			id	path		string	true	"Auction ID"
// @Success		200	{object}	models.Auction
// @Failure		409	{object}	httperror.ErrorResponse
// @Router			/bids/{id}/close [post]
func (h *Handler) stop(c *gin.Context) {
	a, err := h.svc.StopAuction(c.Request.Context(), c.Param("id"))
	if err != nil {
		httperror.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// @Summary		Place a bid
// @Description	Places a manual bid; standing proxy bids may answer it immediately.
// @Tags			Bids
// @Param			id			path		string			true	"Auction ID"
// @Param			X-User-ID	header		string			true	"Bidder"
// @Param			body		body		PlaceBidBody	true	"Bid payload"
// @Success		200			{object}	models.Auction
// @Failure		400			{object}	httperror.ErrorResponse
// @Failure		422			{object}	httperror.ErrorResponse
// @Router			/bids/{id}/place [post]
func (h *Handler) place(c *gin.Context) {
	var body PlaceBidBody
	if err := c.ShouldBindJSON(&body); err != nil {
		httperror.BadRequest(c, err)
		return
	}
	if !body.Amount.IsPositive() {
		httperror.Write(c, auctionerr.Invalid("amount must be positive"))
		return
	}
	a, err := h.svc.PlaceBid(c.Request.Context(), c.Param("id"), middleware.UserID(c), body.Amount)
	if err != nil {
		httperror.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// @Summary		Set an auto bid
// @Description	Records the caller's proxy ceiling and lets it answer competing bids.
// @Tags			Bids
// @Param			id			path		string		true	"Auction ID"
// @Param			X-User-ID	header		string		true	"Bidder"
// @Param			body		body		AutoBidBody	true	"Ceiling payload"
// @Success		200			{object}	models.Auction
// @Failure		422			{object}	httperror.ErrorResponse
// @Router			/bids/{id}/auto [post]
func (h *Handler) auto(c *gin.Context) {
	var body AutoBidBody
	if err := c.ShouldBindJSON(&body); err != nil {
		httperror.BadRequest(c, err)
		return
	}
	if !body.MaxAmount.IsPositive() {
		httperror.Write(c, auctionerr.Invalid("max_amount must be positive"))
		return
	}
	a, err := h.svc.SetAutoBid(c.Request.Context(), c.Param("id"), middleware.UserID(c), body.MaxAmount)
	if err != nil {
		httperror.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// @Summary		Current top bid
// @Tags			Bids
// @Param			id	path		string	true	"Auction ID"
// @Success		200	{object}	auction.BidSummary
// @Failure		404	{object}	httperror.ErrorResponse
// @Router			/bids/{id}/current [get]
func (h *Handler) current(c *gin.Context) {
	out, err := h.svc.CurrentBid(c.Request.Context(), c.Param("id"))
	if err != nil {
		httperror.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// @Summary		Bid history
// @Description	Every accepted bid, highest first.
// @Tags			Bids
// @Param			id	path		string	true	"Auction ID"
// @Success		200	{array}		auction.HistoryEntry
// @Failure		404	{object}	httperror.ErrorResponse
// @Router			/bids/{id}/history [get]
func (h *Handler) history(c *gin.Context) {
	out, err := h.svc.BidHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		httperror.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// @Summary		Soft-delete an auction
// @Tags			Auctions
// @Param			id	path		string	true	"Auction ID"
// @Success		200	{object}	AckResponse
// @Failure		404	{object}	httperror.ErrorResponse
// @Router			/bids/{id}/soft [patch]
func (h *Handler) softDelete(c *gin.Context) {
	h.ack(c, h.svc.SoftDelete, "Auction moved to trash")
}

// @Summary		Restore a soft-deleted auction
// @Tags			Auctions
// @Param			id	path		string	true	"Auction ID"
// @Success		200	{object}	AckResponse
// @Failure		404	{object}	httperror.ErrorResponse
// @Router			/bids/{id}/restore [patch]
func (h *Handler) restore(c *gin.Context) {
	h.ack(c, h.svc.Restore, "Auction restored")
}

// @Summary		Permanently delete an auction
// @Tags			Auctions
// @Param			id	path		string	true	"Auction ID"
// @Success		200	{object}	AckResponse
// @Failure		409	{object}	httperror.ErrorResponse
// @Router			/bids/{id}/hard [delete]
func (h *Handler) hardDelete(c *gin.Context) {
	h.ack(c, h.svc.HardDelete, "Auction permanently deleted")
}

func (h *Handler) ack(c *gin.Context, op func(ctx context.Context, id string) error, msg string) {
	id := c.Param("id")
	if err := op(c.Request.Context(), id); err != nil {
		httperror.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, AckResponse{AuctionID: id, Message: msg})
}
