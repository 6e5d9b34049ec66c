package auction

import (
	"context"
	"math"
	"time"

	"diamondauction/internal/auctionerr"
	"diamondauction/internal/broadcast"
	"diamondauction/internal/models"
	"diamondauction/internal/store"
	"diamondauction/internal/users"
	"diamondauction/internal/wallet"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type CreateAuctionInput struct {
	DiamondID   string
	DiamondName string
	ImageURL    string
	Description string
	BasePrice   decimal.Decimal
	StartTime   *time.Time
	EndTime     time.Time
}

type ListFilter struct {
	Status         models.AuctionStatus
	IncludeDeleted bool
}

type TickResult struct {
	Started int
	Closed  int
}

type IAuctionService interface {
	CreateAuction(ctx context.Context, in CreateAuctionInput) (*models.Auction, error)
	StartAuction(ctx context.Context, auctionID string) (*models.Auction, error)
	StopAuction(ctx context.Context, auctionID string) (*models.Auction, error)
	PlaceBid(ctx context.Context, auctionID, userID string, amount decimal.Decimal) (*models.Auction, error)
	SetAutoBid(ctx context.Context, auctionID, userID string, ceiling decimal.Decimal) (*models.Auction, error)
	GetAuction(ctx context.Context, auctionID string) (*models.Auction, error)
	ListAuctions(ctx context.Context, f ListFilter) ([]*models.Auction, error)
	CurrentBid(ctx context.Context, auctionID string) (*BidSummary, error)
	BidHistory(ctx context.Context, auctionID string) ([]HistoryEntry, error)
	SoftDelete(ctx context.Context, auctionID string) error
	Restore(ctx context.Context, auctionID string) error
	HardDelete(ctx context.Context, auctionID string) error
	Tick(ctx context.Context) TickResult
}

type Options struct {
	MinIncrement         decimal.Decimal
	TieBreak             TieBreak
	MaxResolveIterations int
	PublishRetries       int
	PublishBackoff       time.Duration
	Now                  func() time.Time
}

type auctionService struct {
	store     store.IAuctionStore
	ledger    wallet.Ledger
	bc        broadcast.Broadcaster
	names     users.Directory
	validator BidValidator
	resolver  ProxyResolver
	locks     *keyedLocker
	outboxes  *xsync.MapOf[string, *outbox]
	opts      Options
}

var _ IAuctionService = (*auctionService)(nil)

func NewAuctionService(st store.IAuctionStore, ledger wallet.Ledger, bc broadcast.Broadcaster, names users.Directory, opts Options) IAuctionService {
	if opts.MinIncrement.IsZero() {
		opts.MinIncrement = decimal.New(1, -models.MoneyPlaces)
	}
	if opts.TieBreak == "" {
		opts.TieBreak = TieBreakEarliest
	}
	if opts.PublishBackoff <= 0 {
		opts.PublishBackoff = 50 * time.Millisecond
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if names == nil {
		names = users.StaticDirectory{}
	}
	return &auctionService{
		store:     st,
		ledger:    ledger,
		bc:        bc,
		names:     names,
		validator: NewBidValidator(ledger),
		resolver: ProxyResolver{
			Increment:     opts.MinIncrement,
			TieBreak:      opts.TieBreak,
			MaxIterations: opts.MaxResolveIterations,
		},
		locks:    newKeyedLocker(),
		outboxes: xsync.NewMapOf[string, *outbox](),
		opts:     opts,
	}
}

func (svc *auctionService) now() time.Time { return svc.opts.Now().UTC() }

// withLock runs fn while holding the auction's lock, then delivers the
// events fn queued.
func (svc *auctionService) withLock(ctx context.Context, auctionID string, fn func() error) error {
	unlock, err := svc.locks.lock(ctx, auctionID)
	if err != nil {
		return auctionerr.Internal(err)
	}
	err = func() error {
		defer unlock()
		return fn()
	}()
	svc.flush(ctx, auctionID)
	return err
}

// fundProxies caps every standing proxy's ceiling in a at its owner's
// spendable balance, so a proxy never bids more than its owner can pay.
// a must be a working copy; the stored ceilings are left untouched.
func (svc *auctionService) fundProxies(ctx context.Context, a *models.Auction) error {
	for userID, pb := range a.ProxyBids {
		balance, err := svc.ledger.GetBalance(ctx, userID)
		if err != nil {
			return auctionerr.Internal(err)
		}
		if balance.LessThan(pb.Ceiling) {
			pb.Ceiling = balance
			a.ProxyBids[userID] = pb
		}
	}
	return nil
}

func (svc *auctionService) CreateAuction(ctx context.Context, in CreateAuctionInput) (*models.Auction, error) {
	now := svc.now()
	switch {
	case in.DiamondID == "":
		return nil, auctionerr.Invalid("diamond_id is required")
	case in.BasePrice.IsNegative():
		return nil, auctionerr.Invalid("base price must not be negative")
	case !models.HasMoneyPrecision(in.BasePrice):
		return nil, auctionerr.Invalid("base price can have at most 2 decimal places")
	case !in.EndTime.After(now):
		return nil, auctionerr.Invalid("end_time must be in the future")
	case in.StartTime != nil && !in.StartTime.Before(in.EndTime):
		return nil, auctionerr.Invalid("start_time must be before end_time")
	}

	a := &models.Auction{
		ID:           uuid.NewString(),
		DiamondID:    in.DiamondID,
		DiamondName:  in.DiamondName,
		ImageURL:     in.ImageURL,
		Description:  in.Description,
		BasePrice:    in.BasePrice,
		CurrentPrice: in.BasePrice,
		Status:       models.AuctionStatusDraft,
		EndTime:      in.EndTime.UTC(),
		CreatedAt:    now,
	}
	if in.StartTime != nil {
		st := in.StartTime.UTC()
		a.StartTime = &st
	}
	created, err := svc.store.Create(ctx, a)
	if err != nil {
		return nil, err
	}
	zap.L().Info("auction.created",
		zap.String("auction_id", created.ID),
		zap.String("diamond_id", created.DiamondID),
		zap.String("base_price", created.BasePrice.String()))
	return created, nil
}

func (svc *auctionService) StartAuction(ctx context.Context, auctionID string) (*models.Auction, error) {
	var out *models.Auction
	err := svc.withLock(ctx, auctionID, func() error {
		a, err := svc.store.Get(ctx, auctionID)
		if err != nil {
			return err
		}
		if a.Status != models.AuctionStatusDraft {
			return auctionerr.ErrInvalidTransition.Withf("auction %s is %s, only draft auctions can start", auctionID, a.Status)
		}
		now := svc.now()
		if now.After(a.EndTime) {
			return auctionerr.ErrAuctionWindowClosed.Withf("auction ended at %s", a.EndTime.Format(time.RFC3339))
		}
		out, err = svc.activateLocked(ctx, auctionID, now)
		return err
	})
	return out, err
}

func (svc *auctionService) StopAuction(ctx context.Context, auctionID string) (*models.Auction, error) {
	var out *models.Auction
	err := svc.withLock(ctx, auctionID, func() error {
		a, err := svc.store.Get(ctx, auctionID)
		if err != nil {
			return err
		}
		if a.Status != models.AuctionStatusActive {
			return auctionerr.ErrInvalidTransition.Withf("auction %s is %s, only active auctions can close", auctionID, a.Status)
		}
		out, err = svc.closeLocked(ctx, auctionID)
		return err
	})
	return out, err
}

// activateLocked moves a draft to active and announces it. Caller holds the lock.
func (svc *auctionService) activateLocked(ctx context.Context, auctionID string, at time.Time) (*models.Auction, error) {
	a, err := svc.store.Transition(ctx, auctionID, models.AuctionStatusDraft, models.AuctionStatusActive, at)
	if err != nil {
		return nil, err
	}
	zap.L().Info("auction.started", zap.String("auction_id", auctionID))
	svc.enqueue(broadcast.Event{
		Name:      broadcast.EventAuctionStarted,
		AuctionID: auctionID,
		Body: broadcast.AuctionStartedBody{
			AuctionID:    auctionID,
			Status:       a.Status,
			Message:      "Auction started",
			CurrentPrice: a.CurrentPrice,
			EndTime:      a.EndTime,
		},
	})
	return a, nil
}

// closeLocked moves an active auction to closed, settles the winner and
// announces the result. Caller holds the lock.
func (svc *auctionService) closeLocked(ctx context.Context, auctionID string) (*models.Auction, error) {
	a, err := svc.store.Transition(ctx, auctionID, models.AuctionStatusActive, models.AuctionStatusClosed, svc.now())
	if err != nil {
		return nil, err
	}

	body := broadcast.AuctionClosedBody{
		AuctionID:     auctionID,
		Status:        a.Status,
		WinnerID:      a.WinnerID,
		WinningAmount: a.WinningAmount,
	}
	if a.WinnerID != nil {
		body.Winner = &broadcast.Winner{
			UserID: *a.WinnerID,
			Name:   svc.names.DisplayName(ctx, *a.WinnerID),
			Amount: *a.WinningAmount,
		}
		if err := svc.ledger.Debit(ctx, *a.WinnerID, *a.WinningAmount, "auction "+auctionID); err != nil {
			zap.L().Error("auction.settle_failed",
				zap.String("auction_id", auctionID),
				zap.String("winner_id", *a.WinnerID),
				zap.Error(err))
		}
	}
	zap.L().Info("auction.closed", zap.String("auction_id", auctionID), zap.Int("bids", len(a.Bids)))
	svc.enqueue(broadcast.Event{Name: broadcast.EventAuctionClosed, AuctionID: auctionID, Body: body})
	return a, nil
}

func (svc *auctionService) PlaceBid(ctx context.Context, auctionID, userID string, amount decimal.Decimal) (*models.Auction, error) {
	if userID == "" {
		return nil, auctionerr.Invalid("user id is required")
	}
	var out *models.Auction
	err := svc.withLock(ctx, auctionID, func() error {
		a, err := svc.store.Get(ctx, auctionID)
		if err != nil {
			return err
		}
		now := svc.now()
		if err := svc.validator.Validate(ctx, a, userID, amount, now); err != nil {
			return err
		}

		bid := models.Bid{
			ID:        uuid.NewString(),
			AuctionID: auctionID,
			UserID:    userID,
			Amount:    amount,
			Kind:      models.BidKindManual,
			CreatedAt: now,
		}
		work := a.Clone()
		work.Bids = append(work.Bids, bid)
		work.CurrentPrice = amount
		if err := svc.fundProxies(ctx, work); err != nil {
			return err
		}

		auto, err := svc.resolver.Resolve(work, now)
		if err != nil {
			zap.L().Error("auction.resolve_failed", zap.String("auction_id", auctionID), zap.Error(err))
			return err
		}
		bids := append([]models.Bid{bid}, auto...)

		out, err = svc.store.Commit(ctx, auctionID, store.Change{Version: a.Version, Bids: bids})
		if err != nil {
			return err
		}
		svc.publishBids(ctx, out, bids)
		return nil
	})
	return out, err
}

func (svc *auctionService) SetAutoBid(ctx context.Context, auctionID, userID string, ceiling decimal.Decimal) (*models.Auction, error) {
	if userID == "" {
		return nil, auctionerr.Invalid("user id is required")
	}
	var out *models.Auction
	err := svc.withLock(ctx, auctionID, func() error {
		a, err := svc.store.Get(ctx, auctionID)
		if err != nil {
			return err
		}
		now := svc.now()
		if a.Status != models.AuctionStatusActive {
			return auctionerr.ErrAuctionNotActive
		}
		if err := checkWindow(a, now); err != nil {
			return err
		}
		if !ceiling.GreaterThan(a.CurrentPrice) {
			return auctionerr.ErrCeilingTooLow.Withf("maximum amount must be higher than current price (%s)", a.CurrentPrice.StringFixed(models.MoneyPlaces))
		}
		if !models.HasMoneyPrecision(ceiling) {
			return auctionerr.ErrInvalidPrecision
		}
		if err := svc.validator.checkFunds(ctx, userID, ceiling); err != nil {
			return err
		}

		pb := models.ProxyBid{AuctionID: auctionID, UserID: userID, Ceiling: ceiling, CreatedAt: now}
		work := a.Clone()
		// the store assigns the real sequence; here the new proxy only has
		// to sort after every proxy already standing
		simulated := pb
		simulated.Seq = math.MaxInt64
		work.ProxyBids[userID] = simulated
		if err := svc.fundProxies(ctx, work); err != nil {
			return err
		}

		auto, err := svc.resolver.Resolve(work, now)
		if err != nil {
			zap.L().Error("auction.resolve_failed", zap.String("auction_id", auctionID), zap.Error(err))
			return err
		}

		out, err = svc.store.Commit(ctx, auctionID, store.Change{Version: a.Version, ProxyBid: &pb, Bids: auto})
		if err != nil {
			return err
		}
		zap.L().Debug("auction.proxy_set",
			zap.String("auction_id", auctionID),
			zap.String("user_id", userID),
			zap.Int("auto_bids", len(auto)))
		svc.publishBids(ctx, out, auto)
		return nil
	})
	return out, err
}

func (svc *auctionService) GetAuction(ctx context.Context, auctionID string) (*models.Auction, error) {
	return svc.store.Get(ctx, auctionID)
}

func (svc *auctionService) ListAuctions(ctx context.Context, f ListFilter) ([]*models.Auction, error) {
	return svc.store.List(ctx, store.Filter{Status: f.Status, IncludeDeleted: f.IncludeDeleted})
}

func (svc *auctionService) SoftDelete(ctx context.Context, auctionID string) error {
	return svc.withLock(ctx, auctionID, func() error {
		return svc.store.SoftDelete(ctx, auctionID)
	})
}

func (svc *auctionService) Restore(ctx context.Context, auctionID string) error {
	return svc.withLock(ctx, auctionID, func() error {
		return svc.store.Restore(ctx, auctionID)
	})
}

func (svc *auctionService) HardDelete(ctx context.Context, auctionID string) error {
	err := svc.withLock(ctx, auctionID, func() error {
		return svc.store.HardDelete(ctx, auctionID)
	})
	if err == nil {
		svc.locks.forget(auctionID)
		svc.outboxes.Delete(auctionID)
		zap.L().Info("auction.purged", zap.String("auction_id", auctionID))
	}
	return err
}

// Tick performs the time-driven transitions that are due. Every transition
// is re-checked under the auction's lock, so overlapping or repeated ticks
// are harmless.
func (svc *auctionService) Tick(ctx context.Context) TickResult {
	var res TickResult
	now := svc.now()

	drafts, err := svc.store.List(ctx, store.Filter{Status: models.AuctionStatusDraft, IncludeDeleted: true})
	if err != nil {
		zap.L().Error("auction.tick_list", zap.Error(err))
		return res
	}
	for _, a := range drafts {
		if a.StartTime == nil || a.StartTime.After(now) {
			continue
		}
		started, closed := svc.startDue(ctx, a.ID, now)
		if started {
			res.Started++
		}
		if closed {
			res.Closed++
		}
	}

	actives, err := svc.store.List(ctx, store.Filter{Status: models.AuctionStatusActive, IncludeDeleted: true})
	if err != nil {
		zap.L().Error("auction.tick_list", zap.Error(err))
		return res
	}
	for _, a := range actives {
		if a.EndTime.After(now) {
			continue
		}
		if svc.closeDue(ctx, a.ID, now) {
			res.Closed++
		}
	}
	return res
}

func (svc *auctionService) startDue(ctx context.Context, auctionID string, now time.Time) (started, closed bool) {
	err := svc.withLock(ctx, auctionID, func() error {
		a, err := svc.store.Get(ctx, auctionID)
		if err != nil {
			return err
		}
		if a.Status != models.AuctionStatusDraft || a.StartTime == nil || a.StartTime.After(now) {
			return nil
		}
		a, err = svc.activateLocked(ctx, auctionID, now)
		if err != nil {
			return err
		}
		started = true
		if !a.EndTime.After(now) {
			if _, err := svc.closeLocked(ctx, auctionID); err != nil {
				return err
			}
			closed = true
		}
		return nil
	})
	if err != nil {
		zap.L().Warn("auction.tick_start", zap.String("auction_id", auctionID), zap.Error(err))
	}
	return started, closed
}

func (svc *auctionService) closeDue(ctx context.Context, auctionID string, now time.Time) bool {
	closed := false
	err := svc.withLock(ctx, auctionID, func() error {
		a, err := svc.store.Get(ctx, auctionID)
		if err != nil {
			return err
		}
		if a.Status != models.AuctionStatusActive || a.EndTime.After(now) {
			return nil
		}
		if _, err := svc.closeLocked(ctx, auctionID); err != nil {
			return err
		}
		closed = true
		return nil
	})
	if err != nil {
		zap.L().Warn("auction.tick_close", zap.String("auction_id", auctionID), zap.Error(err))
	}
	return closed
}
