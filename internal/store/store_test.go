package store

import (
	"context"
	"testing"
	"time"

	"diamondauction/internal/auctionerr"
	"diamondauction/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newActive(t *testing.T, s *MemoryStore, id string) *models.Auction {
	t.Helper()
	ctx := context.Background()
	_, err := s.Create(ctx, &models.Auction{
		ID:           id,
		DiamondID:    "d-" + id,
		BasePrice:    dec("100"),
		CurrentPrice: dec("100"),
		Status:       models.AuctionStatusDraft,
		EndTime:      t0.Add(time.Hour),
	})
	require.NoError(t, err)
	a, err := s.Transition(ctx, id, models.AuctionStatusDraft, models.AuctionStatusActive, t0)
	require.NoError(t, err)
	return a
}

func TestCreateAndGetReturnCopies(t *testing.T) {
	s := New(WithClock(func() time.Time { return t0 }))
	a := newActive(t, s, "a1")
	require.NotNil(t, a.StartTime)
	assert.True(t, a.StartTime.Equal(t0))

	a.CurrentPrice = dec("999")
	got, err := s.Get(context.Background(), "a1")
	require.NoError(t, err)
	assert.True(t, got.CurrentPrice.Equal(dec("100")))

	_, err = s.Create(context.Background(), &models.Auction{ID: "a1"})
	assert.ErrorIs(t, err, auctionerr.ErrAuctionExists)

	_, err = s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, auctionerr.ErrAuctionNotFound)
}

func TestCommitIsAllOrNothing(t *testing.T) {
	s := New()
	ctx := context.Background()
	a := newActive(t, s, "a1")

	_, err := s.Commit(ctx, "a1", Change{
		Version: a.Version,
		Bids: []models.Bid{
			{ID: "b1", UserID: "u1", Amount: dec("150")},
			{ID: "b2", UserID: "u2", Amount: dec("140")},
		},
	})
	assert.ErrorIs(t, err, auctionerr.ErrBidTooLow)

	got, _ := s.Get(ctx, "a1")
	assert.Empty(t, got.Bids)
	assert.True(t, got.CurrentPrice.Equal(dec("100")))
	assert.Equal(t, a.Version, got.Version)

	got, err = s.Commit(ctx, "a1", Change{
		Version:  a.Version,
		ProxyBid: &models.ProxyBid{UserID: "u2", Ceiling: dec("300")},
		Bids: []models.Bid{
			{ID: "b1", UserID: "u1", Amount: dec("150")},
			{ID: "b2", UserID: "u2", Amount: dec("150.01"), Kind: models.BidKindAuto},
		},
	})
	require.NoError(t, err)
	assert.Len(t, got.Bids, 2)
	assert.Equal(t, "a1", got.Bids[0].AuctionID)
	assert.True(t, got.CurrentPrice.Equal(dec("150.01")))
	assert.Equal(t, "u2", got.LeaderID())
	assert.Equal(t, int64(1), got.ProxyBids["u2"].Seq)

	_, err = s.Commit(ctx, "a1", Change{Version: a.Version, Bids: []models.Bid{{UserID: "u3", Amount: dec("500")}}})
	assert.ErrorIs(t, err, auctionerr.ErrVersionConflict)
}

func TestProxyBidIsReplacedNotStacked(t *testing.T) {
	s := New()
	ctx := context.Background()
	newActive(t, s, "a1")

	_, err := s.RecordProxyBid(ctx, "a1", models.ProxyBid{UserID: "u1", Ceiling: dec("200")})
	require.NoError(t, err)
	got, err := s.RecordProxyBid(ctx, "a1", models.ProxyBid{UserID: "u1", Ceiling: dec("250")})
	require.NoError(t, err)

	require.Len(t, got.ProxyBids, 1)
	assert.True(t, got.ProxyBids["u1"].Ceiling.Equal(dec("250")))
	assert.Equal(t, int64(2), got.ProxyBids["u1"].Seq)
}

func TestTransitionIsStatusGuarded(t *testing.T) {
	s := New()
	ctx := context.Background()
	newActive(t, s, "a1")

	_, err := s.Transition(ctx, "a1", models.AuctionStatusDraft, models.AuctionStatusActive, t0)
	assert.ErrorIs(t, err, auctionerr.ErrInvalidTransition)

	_, err = s.AppendBid(ctx, "a1", models.Bid{ID: "b1", UserID: "u1", Amount: dec("120")})
	require.NoError(t, err)

	closed, err := s.Transition(ctx, "a1", models.AuctionStatusActive, models.AuctionStatusClosed, t0)
	require.NoError(t, err)
	require.NotNil(t, closed.WinnerID)
	assert.Equal(t, "u1", *closed.WinnerID)
	assert.True(t, closed.WinningAmount.Equal(dec("120")))

	_, err = s.Transition(ctx, "a1", models.AuctionStatusActive, models.AuctionStatusClosed, t0)
	assert.ErrorIs(t, err, auctionerr.ErrInvalidTransition)

	_, err = s.AppendBid(ctx, "a1", models.Bid{ID: "b2", UserID: "u2", Amount: dec("130")})
	assert.ErrorIs(t, err, auctionerr.ErrAuctionNotActive)
}

func TestCloseWithoutBidsHasNoWinner(t *testing.T) {
	s := New()
	newActive(t, s, "a1")
	closed, err := s.Transition(context.Background(), "a1", models.AuctionStatusActive, models.AuctionStatusClosed, t0)
	require.NoError(t, err)
	assert.Nil(t, closed.WinnerID)
	assert.Nil(t, closed.WinningAmount)
}

func TestSoftDeleteRestoreAndHardDelete(t *testing.T) {
	s := New()
	ctx := context.Background()
	newActive(t, s, "a1")

	require.NoError(t, s.SoftDelete(ctx, "a1"))
	list, _ := s.List(ctx, Filter{})
	assert.Empty(t, list)
	list, _ = s.List(ctx, Filter{IncludeDeleted: true})
	assert.Len(t, list, 1)

	require.NoError(t, s.Restore(ctx, "a1"))
	list, _ = s.ListActive(ctx)
	assert.Len(t, list, 1)

	assert.ErrorIs(t, s.HardDelete(ctx, "a1"), auctionerr.ErrAuctionActive)

	_, err := s.Transition(ctx, "a1", models.AuctionStatusActive, models.AuctionStatusClosed, t0)
	require.NoError(t, err)
	require.NoError(t, s.HardDelete(ctx, "a1"))
	assert.Equal(t, []string{"a1"}, s.DrainPurged())
	assert.Empty(t, s.DrainPurged())

	_, err = s.Get(ctx, "a1")
	assert.ErrorIs(t, err, auctionerr.ErrAuctionNotFound)
}

func TestChangesTracksRevisions(t *testing.T) {
	s := New()
	ctx := context.Background()
	newActive(t, s, "a1")
	newActive(t, s, "a2")

	changed, rev := s.Changes(0)
	assert.Len(t, changed, 2)

	_, err := s.AppendBid(ctx, "a2", models.Bid{ID: "b1", UserID: "u1", Amount: dec("101")})
	require.NoError(t, err)

	changed, next := s.Changes(rev)
	require.Len(t, changed, 1)
	assert.Equal(t, "a2", changed[0].ID)

	changed, _ = s.Changes(next)
	assert.Empty(t, changed)
}

func TestPutDoesNotMarkRecordDirty(t *testing.T) {
	s := New()
	s.Put(&models.Auction{
		ID:        "restored",
		Status:    models.AuctionStatusActive,
		ProxyBids: map[string]models.ProxyBid{"u1": {UserID: "u1", Ceiling: dec("10"), Seq: 7}},
	})
	changed, _ := s.Changes(0)
	assert.Empty(t, changed)

	got, err := s.RecordProxyBid(context.Background(), "restored", models.ProxyBid{UserID: "u2", Ceiling: dec("11")})
	require.NoError(t, err)
	assert.Equal(t, int64(8), got.ProxyBids["u2"].Seq)
}
