package syncdb

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"diamondauction/internal/models"
	"diamondauction/internal/store"
	"diamondauction/internal/wallet"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func anyArgs(n int) []driver.Value {
	out := make([]driver.Value, n)
	for i := range out {
		out[i] = sqlmock.AnyArg()
	}
	return out
}

func seededStore(t *testing.T) *store.MemoryStore {
	ctx := context.Background()
	s := store.New(store.WithClock(func() time.Time { return t0 }))
	_, err := s.Create(ctx, &models.Auction{
		ID:           "a1",
		DiamondID:    "d1",
		BasePrice:    decimal.NewFromInt(100),
		CurrentPrice: decimal.NewFromInt(100),
		Status:       models.AuctionStatusDraft,
		EndTime:      t0.Add(time.Hour),
	})
	require.NoError(t, err)
	_, err = s.Transition(ctx, "a1", models.AuctionStatusDraft, models.AuctionStatusActive, t0)
	require.NoError(t, err)
	_, err = s.AppendBid(ctx, "a1", models.Bid{ID: "b1", UserID: "alice", Amount: decimal.NewFromInt(150), Kind: models.BidKindManual, CreatedAt: t0})
	require.NoError(t, err)
	_, err = s.RecordProxyBid(ctx, "a1", models.ProxyBid{UserID: "bob", Ceiling: decimal.NewFromInt(300), CreatedAt: t0})
	require.NoError(t, err)
	return s
}

func expectAuctionWrite(mock sqlmock.Sqlmock) {
	auctionArgs := anyArgs(17)
	auctionArgs[0] = "a1"
	auctionArgs[7] = "active"
	mock.ExpectExec("INSERT INTO auctions").WithArgs(auctionArgs...).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO bids").
		WithArgs("b1", "a1", "alice", "150", "manual", t0, 0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO proxy_bids").
		WithArgs("a1", "bob", "300", t0, 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
}

func TestSyncOnceMirrorsChangesOnce(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := seededStore(t)
	m := NewMirror(db, s)

	mock.ExpectBegin()
	expectAuctionWrite(mock)
	mock.ExpectCommit()

	require.NoError(t, m.SyncOnce(context.Background()))
	// nothing changed since, so no statements are issued
	require.NoError(t, m.SyncOnce(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncOnceRetriesAfterFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := seededStore(t)
	m := NewMirror(db, s)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO auctions").WithArgs(anyArgs(17)...).WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()
	err = m.SyncOnce(context.Background())
	require.ErrorContains(t, err, "connection reset")

	mock.ExpectBegin()
	expectAuctionWrite(mock)
	mock.ExpectCommit()
	require.NoError(t, m.SyncOnce(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncOnceDeletesPurgedAuctions(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()
	s := seededStore(t)
	m := NewMirror(db, s)

	mock.ExpectBegin()
	expectAuctionWrite(mock)
	mock.ExpectCommit()
	require.NoError(t, m.SyncOnce(ctx))

	_, err = s.Transition(ctx, "a1", models.AuctionStatusActive, models.AuctionStatusClosed, t0)
	require.NoError(t, err)
	require.NoError(t, s.HardDelete(ctx, "a1"))

	mock.ExpectBegin().WillReturnError(errors.New("too many connections"))
	require.Error(t, m.SyncOnce(ctx))

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM auctions WHERE id = \$1`).WithArgs("a1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	require.NoError(t, m.SyncOnce(ctx))
	require.NoError(t, mock.ExpectationsWereMet())
}

type sink struct{ got []*models.Auction }

func (s *sink) Put(a *models.Auction) { s.got = append(s.got, a) }

func TestLoadRestoresAuctions(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM auctions").WillReturnRows(sqlmock.NewRows([]string{
		"id", "diamond_id", "diamond_name", "image_url", "description",
		"base_price", "current_price", "status", "start_time", "end_time",
		"winner_id", "winning_amount", "is_deleted", "deleted_at",
		"created_at", "updated_at", "version",
	}).AddRow(
		"a1", "d1", "Hope", "", "",
		"100.00", "150.01", "closed", t0, t0.Add(time.Hour),
		"bob", "150.01", false, nil,
		t0, t0, int64(7),
	).AddRow(
		"a2", "d2", "", "", "",
		"50.00", "50.00", "draft", nil, t0.Add(time.Hour),
		nil, nil, true, t0,
		t0, t0, int64(2),
	))
	mock.ExpectQuery("SELECT (.+) FROM bids").WillReturnRows(sqlmock.NewRows([]string{
		"id", "auction_id", "user_id", "amount", "kind", "created_at",
	}).
		AddRow("b1", "a1", "alice", "150.00", "manual", t0).
		AddRow("b2", "a1", "bob", "150.01", "auto", t0).
		AddRow("bx", "gone", "carol", "10.00", "manual", t0))
	mock.ExpectQuery("SELECT (.+) FROM proxy_bids").WillReturnRows(sqlmock.NewRows([]string{
		"auction_id", "user_id", "ceiling", "created_at", "seq",
	}).AddRow("a1", "bob", "300.00", t0, int64(4)))

	out := &sink{}
	n, err := Load(context.Background(), db, out)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.NoError(t, mock.ExpectationsWereMet())

	byID := map[string]*models.Auction{}
	for _, a := range out.got {
		byID[a.ID] = a
	}
	a1 := byID["a1"]
	require.NotNil(t, a1)
	assert.Equal(t, models.AuctionStatusClosed, a1.Status)
	require.Len(t, a1.Bids, 2)
	assert.Equal(t, models.BidKindAuto, a1.Bids[1].Kind)
	require.NotNil(t, a1.WinnerID)
	assert.Equal(t, "bob", *a1.WinnerID)
	assert.True(t, decimal.RequireFromString("150.01").Equal(*a1.WinningAmount))
	assert.Equal(t, int64(4), a1.ProxyBids["bob"].Seq)
	assert.Equal(t, int64(7), a1.Version)

	a2 := byID["a2"]
	require.NotNil(t, a2)
	assert.Nil(t, a2.StartTime)
	assert.Nil(t, a2.WinnerID)
	assert.True(t, a2.Deleted)
	assert.NotNil(t, a2.DeletedAt)
}

func TestLoadIntoStoreIsNotMirroredBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM auctions").WillReturnRows(sqlmock.NewRows([]string{
		"id", "diamond_id", "diamond_name", "image_url", "description",
		"base_price", "current_price", "status", "start_time", "end_time",
		"winner_id", "winning_amount", "is_deleted", "deleted_at",
		"created_at", "updated_at", "version",
	}).AddRow(
		"a1", "d1", "", "", "",
		"100.00", "100.00", "draft", nil, t0.Add(time.Hour),
		nil, nil, false, nil,
		t0, t0, int64(1),
	))
	mock.ExpectQuery("SELECT (.+) FROM bids").WillReturnRows(sqlmock.NewRows([]string{"id", "auction_id", "user_id", "amount", "kind", "created_at"}))
	mock.ExpectQuery("SELECT (.+) FROM proxy_bids").WillReturnRows(sqlmock.NewRows([]string{"auction_id", "user_id", "ceiling", "created_at", "seq"}))

	s := store.New()
	_, err = Load(context.Background(), db, s)
	require.NoError(t, err)

	changed, _ := s.Changes(0)
	assert.Empty(t, changed)
	_, err = s.Get(context.Background(), "a1")
	assert.NoError(t, err)
	require.NoError(t, NewMirror(db, s).SyncOnce(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadPropagatesQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM auctions").WillReturnError(errors.New("relation does not exist"))
	_, err = Load(context.Background(), db, &sink{})
	assert.ErrorContains(t, err, "relation does not exist")
}

func fundedLedger(t *testing.T) *wallet.MemoryLedger {
	ctx := context.Background()
	l := wallet.NewMemoryLedger(wallet.WithJournal())
	_, err := l.Topup(ctx, "alice", decimal.NewFromInt(1000))
	require.NoError(t, err)
	require.NoError(t, l.Debit(ctx, "alice", decimal.RequireFromString("150.01"), "won a1"))
	return l
}

func expectWalletWrite(mock sqlmock.Sqlmock) {
	mock.ExpectExec("INSERT INTO wallet_transactions").
		WithArgs(sqlmock.AnyArg(), "alice", "1000", "topup", "wallet topup", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO wallet_transactions").
		WithArgs(sqlmock.AnyArg(), "alice", "150.01", "debit", "won a1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
}

func TestSyncOnceMirrorsWalletJournal(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	m := NewMirror(db, store.New(), WithJournal(fundedLedger(t)))

	mock.ExpectBegin()
	expectWalletWrite(mock)
	mock.ExpectCommit()

	require.NoError(t, m.SyncOnce(context.Background()))
	require.NoError(t, m.SyncOnce(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncOnceRequeuesWalletJournalOnFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	ledger := fundedLedger(t)
	m := NewMirror(db, store.New(), WithJournal(ledger))

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO wallet_transactions").WithArgs(anyArgs(6)...).WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()
	require.ErrorContains(t, m.SyncOnce(context.Background()), "connection reset")

	// a transaction recorded after the failure goes out behind the retried ones
	require.NoError(t, ledger.Credit(context.Background(), "alice", decimal.NewFromInt(5), "refund"))

	mock.ExpectBegin()
	expectWalletWrite(mock)
	mock.ExpectExec("INSERT INTO wallet_transactions").
		WithArgs(sqlmock.AnyArg(), "alice", "5", "credit", "refund", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	require.NoError(t, m.SyncOnce(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadWalletReplaysInOrder(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM wallet_transactions").WillReturnRows(sqlmock.NewRows([]string{
		"id", "user_id", "amount", "type", "reason", "created_at",
	}).
		AddRow("w1", "bob", "1000.00", "topup", "wallet topup", t0).
		AddRow("w2", "bob", "800.01", "debit", "won a1", t0).
		AddRow("w3", "bob", "-0.99", "adjustment", "fee", t0))

	ledger := wallet.NewMemoryLedger(wallet.WithJournal())
	n, err := LoadWallet(context.Background(), db, ledger)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.NoError(t, mock.ExpectationsWereMet())

	balance, err := ledger.GetBalance(context.Background(), "bob")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("199").Equal(balance), "balance %s", balance)
	assert.Empty(t, ledger.DrainJournal(), "restored history is not persisted twice")
}
