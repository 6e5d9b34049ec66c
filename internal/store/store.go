// Package store keeps the authoritative record of every auction, its bid
// history and its standing proxy bids. Records leave the store only as deep
// copies; all mutation goes through the methods below, each atomic for a
// single auction.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"diamondauction/internal/auctionerr"
	"diamondauction/internal/models"
)

// IAuctionStore is the contract the engine and the persistence mirror use.
type IAuctionStore interface {
	Get(ctx context.Context, id string) (*models.Auction, error)
	Create(ctx context.Context, a *models.Auction) (*models.Auction, error)
	AppendBid(ctx context.Context, id string, bid models.Bid) (*models.Auction, error)
	RecordProxyBid(ctx context.Context, id string, pb models.ProxyBid) (*models.Auction, error)
	Commit(ctx context.Context, id string, c Change) (*models.Auction, error)
	Transition(ctx context.Context, id string, from, to models.AuctionStatus, at time.Time) (*models.Auction, error)
	List(ctx context.Context, f Filter) ([]*models.Auction, error)
	ListActive(ctx context.Context) ([]*models.Auction, error)
	ListClosed(ctx context.Context) ([]*models.Auction, error)
	SoftDelete(ctx context.Context, id string) error
	Restore(ctx context.Context, id string) error
	HardDelete(ctx context.Context, id string) error
}

// Change is a set of mutations committed together. A non-zero Version must
// match the auction's version at commit time.
type Change struct {
	Version  int64
	ProxyBid *models.ProxyBid
	Bids     []models.Bid
}

// Filter narrows List. An empty Status matches every status.
type Filter struct {
	Status         models.AuctionStatus
	IncludeDeleted bool
}

type Option func(*MemoryStore)

// WithClock overrides the time source used for bookkeeping timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *MemoryStore) { s.now = now }
}

type MemoryStore struct {
	mu       sync.RWMutex
	auctions map[string]*models.Auction
	revs     map[string]int64
	rev      int64
	proxySeq int64
	purged   []string
	now      func() time.Time
}

var _ IAuctionStore = (*MemoryStore)(nil)

func New(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		auctions: make(map[string]*models.Auction),
		revs:     make(map[string]int64),
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *MemoryStore) Get(_ context.Context, id string) (*models.Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.auctions[id]
	if !ok {
		return nil, auctionerr.ErrAuctionNotFound
	}
	return a.Clone(), nil
}

func (s *MemoryStore) Create(_ context.Context, a *models.Auction) (*models.Auction, error) {
	if a == nil || a.ID == "" {
		return nil, auctionerr.Invalid("auction id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.auctions[a.ID]; ok {
		return nil, auctionerr.ErrAuctionExists
	}
	rec := a.Clone()
	now := s.now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	rec.Version = 1
	if rec.ProxyBids == nil {
		rec.ProxyBids = map[string]models.ProxyBid{}
	}
	s.auctions[rec.ID] = rec
	s.touch(rec.ID)
	return rec.Clone(), nil
}

// Put inserts or replaces a record verbatim. It is used to restore state
// from durable storage at boot.
func (s *MemoryStore) Put(a *models.Auction) {
	rec := a.Clone()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, pb := range rec.ProxyBids {
		if pb.Seq > s.proxySeq {
			s.proxySeq = pb.Seq
		}
	}
	s.auctions[rec.ID] = rec
	s.revs[rec.ID] = 0
}

func (s *MemoryStore) AppendBid(ctx context.Context, id string, bid models.Bid) (*models.Auction, error) {
	return s.Commit(ctx, id, Change{Bids: []models.Bid{bid}})
}

func (s *MemoryStore) RecordProxyBid(ctx context.Context, id string, pb models.ProxyBid) (*models.Auction, error) {
	return s.Commit(ctx, id, Change{ProxyBid: &pb})
}

func (s *MemoryStore) Commit(_ context.Context, id string, c Change) (*models.Auction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.auctions[id]
	if !ok {
		return nil, auctionerr.ErrAuctionNotFound
	}
	if c.Version != 0 && c.Version != a.Version {
		return nil, auctionerr.ErrVersionConflict
	}
	if a.Status != models.AuctionStatusActive {
		return nil, auctionerr.ErrAuctionNotActive
	}

	// validate the whole change before touching the record
	price := a.CurrentPrice
	for _, b := range c.Bids {
		if !b.Amount.GreaterThan(price) {
			return nil, auctionerr.ErrBidTooLow.Withf("bid %s does not exceed %s", b.Amount, price)
		}
		price = b.Amount
	}

	if c.ProxyBid != nil {
		pb := *c.ProxyBid
		pb.AuctionID = id
		s.proxySeq++
		pb.Seq = s.proxySeq
		a.ProxyBids[pb.UserID] = pb
	}
	for _, b := range c.Bids {
		b.AuctionID = id
		a.Bids = append(a.Bids, b)
	}
	a.CurrentPrice = price
	a.Version++
	a.UpdatedAt = s.now().UTC()
	s.touch(id)
	return a.Clone(), nil
}

func (s *MemoryStore) Transition(_ context.Context, id string, from, to models.AuctionStatus, at time.Time) (*models.Auction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.auctions[id]
	if !ok {
		return nil, auctionerr.ErrAuctionNotFound
	}
	if a.Status != from || !allowed(from, to) {
		return nil, auctionerr.ErrInvalidTransition.Withf("cannot move auction from %s to %s", a.Status, to)
	}

	switch to {
	case models.AuctionStatusActive:
		if a.StartTime == nil || a.StartTime.After(at) {
			t := at.UTC()
			a.StartTime = &t
		}
	case models.AuctionStatusClosed:
		if top, ok := a.TopBid(); ok {
			winner, amount := top.UserID, top.Amount
			a.WinnerID = &winner
			a.WinningAmount = &amount
		} else {
			a.WinnerID = nil
			a.WinningAmount = nil
		}
	}
	a.Status = to
	a.Version++
	a.UpdatedAt = s.now().UTC()
	s.touch(id)
	return a.Clone(), nil
}

func allowed(from, to models.AuctionStatus) bool {
	switch from {
	case models.AuctionStatusDraft:
		return to == models.AuctionStatusActive
	case models.AuctionStatusActive:
		return to == models.AuctionStatusClosed
	}
	return false
}

func (s *MemoryStore) List(_ context.Context, f Filter) ([]*models.Auction, error) {
	s.mu.RLock()
	out := make([]*models.Auction, 0, len(s.auctions))
	for _, a := range s.auctions {
		if a.Deleted && !f.IncludeDeleted {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		out = append(out, a.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) ListActive(ctx context.Context) ([]*models.Auction, error) {
	return s.List(ctx, Filter{Status: models.AuctionStatusActive})
}

func (s *MemoryStore) ListClosed(ctx context.Context) ([]*models.Auction, error) {
	return s.List(ctx, Filter{Status: models.AuctionStatusClosed})
}

func (s *MemoryStore) SoftDelete(_ context.Context, id string) error {
	return s.mutate(id, func(a *models.Auction) {
		now := s.now().UTC()
		a.Deleted = true
		a.DeletedAt = &now
	})
}

func (s *MemoryStore) Restore(_ context.Context, id string) error {
	return s.mutate(id, func(a *models.Auction) {
		a.Deleted = false
		a.DeletedAt = nil
	})
}

func (s *MemoryStore) HardDelete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.auctions[id]
	if !ok {
		return auctionerr.ErrAuctionNotFound
	}
	if a.Status == models.AuctionStatusActive {
		return auctionerr.ErrAuctionActive.Withf("auction %s is active and cannot be purged", id)
	}
	delete(s.auctions, id)
	delete(s.revs, id)
	s.purged = append(s.purged, id)
	return nil
}

func (s *MemoryStore) mutate(id string, fn func(a *models.Auction)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.auctions[id]
	if !ok {
		return auctionerr.ErrAuctionNotFound
	}
	fn(a)
	a.Version++
	a.UpdatedAt = s.now().UTC()
	s.touch(id)
	return nil
}

// touch must be called with mu held.
func (s *MemoryStore) touch(id string) {
	s.rev++
	s.revs[id] = s.rev
}

// Changes returns copies of the auctions mutated after revision since,
// together with the revision to pass on the next call.
func (s *MemoryStore) Changes(since int64) ([]*models.Auction, int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Auction
	for id, r := range s.revs {
		if r > since {
			out = append(out, s.auctions[id].Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, s.rev
}

// DrainPurged returns and forgets the ids hard-deleted since the last call.
func (s *MemoryStore) DrainPurged() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.purged
	s.purged = nil
	return out
}
