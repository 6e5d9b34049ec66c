package syncdb

import (
	"context"
	"database/sql"
	"fmt"

	"diamondauction/internal/models"
	"diamondauction/internal/wallet"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	selectAuctions = `
	SELECT id, diamond_id, diamond_name, image_url, description,
	       base_price, current_price, status, start_time, end_time,
	       winner_id, winning_amount, is_deleted, deleted_at,
	       created_at, updated_at, version
	  FROM auctions`

	selectBids = `
	SELECT id, auction_id, user_id, amount, kind, created_at
	  FROM bids
	 ORDER BY auction_id, seq`

	selectProxies = `
	SELECT auction_id, user_id, ceiling, created_at, seq
	  FROM proxy_bids`

	selectWalletTxs = `
	SELECT id, user_id, amount, type, reason, created_at
	  FROM wallet_transactions
	 ORDER BY seq`
)

// Replayer rebuilds wallet balances from persisted transactions.
type Replayer interface {
	Replay(tx wallet.Transaction)
}

// LoadWallet replays every mirrored wallet transaction, oldest first, and
// returns how many were applied.
func LoadWallet(ctx context.Context, db *sql.DB, r Replayer) (int, error) {
	rows, err := db.QueryContext(ctx, selectWalletTxs)
	if err != nil {
		return 0, fmt.Errorf("query wallet transactions: %w", err)
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		var (
			tx  wallet.Transaction
			typ string
		)
		if err := rows.Scan(&tx.ID, &tx.UserID, &tx.Amount, &typ, &tx.Reason, &tx.CreatedAt); err != nil {
			return n, fmt.Errorf("scan wallet transaction: %w", err)
		}
		tx.Type = wallet.TxType(typ)
		tx.CreatedAt = tx.CreatedAt.UTC()
		r.Replay(tx)
		n++
	}
	if err := rows.Err(); err != nil {
		return n, err
	}
	zap.L().Info("syncdb.wallet_loaded", zap.Int("transactions", n))
	return n, nil
}

// Load restores every mirrored auction into sink. It returns the number of
// auctions restored.
func Load(ctx context.Context, db *sql.DB, sink Sink) (int, error) {
	auctions, err := loadAuctions(ctx, db)
	if err != nil {
		return 0, err
	}
	if err := loadBids(ctx, db, auctions); err != nil {
		return 0, err
	}
	if err := loadProxies(ctx, db, auctions); err != nil {
		return 0, err
	}
	for _, a := range auctions {
		sink.Put(a)
	}
	zap.L().Info("syncdb.loaded", zap.Int("auctions", len(auctions)))
	return len(auctions), nil
}

func loadAuctions(ctx context.Context, db *sql.DB) (map[string]*models.Auction, error) {
	rows, err := db.QueryContext(ctx, selectAuctions)
	if err != nil {
		return nil, fmt.Errorf("query auctions: %w", err)
	}
	defer rows.Close()

	out := map[string]*models.Auction{}
	for rows.Next() {
		var (
			a         models.Auction
			status    string
			startTime sql.NullTime
			winnerID  sql.NullString
			winning   decimal.NullDecimal
			deletedAt sql.NullTime
		)
		if err := rows.Scan(&a.ID, &a.DiamondID, &a.DiamondName, &a.ImageURL, &a.Description,
			&a.BasePrice, &a.CurrentPrice, &status, &startTime, &a.EndTime,
			&winnerID, &winning, &a.Deleted, &deletedAt,
			&a.CreatedAt, &a.UpdatedAt, &a.Version); err != nil {
			return nil, fmt.Errorf("scan auction: %w", err)
		}
		a.Status = models.AuctionStatus(status)
		if startTime.Valid {
			t := startTime.Time.UTC()
			a.StartTime = &t
		}
		if winnerID.Valid {
			a.WinnerID = &winnerID.String
		}
		if winning.Valid {
			a.WinningAmount = &winning.Decimal
		}
		if deletedAt.Valid {
			t := deletedAt.Time.UTC()
			a.DeletedAt = &t
		}
		a.ProxyBids = map[string]models.ProxyBid{}
		out[a.ID] = &a
	}
	return out, rows.Err()
}

func loadBids(ctx context.Context, db *sql.DB, auctions map[string]*models.Auction) error {
	rows, err := db.QueryContext(ctx, selectBids)
	if err != nil {
		return fmt.Errorf("query bids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			b    models.Bid
			kind string
		)
		if err := rows.Scan(&b.ID, &b.AuctionID, &b.UserID, &b.Amount, &kind, &b.CreatedAt); err != nil {
			return fmt.Errorf("scan bid: %w", err)
		}
		b.Kind = models.BidKind(kind)
		if a, ok := auctions[b.AuctionID]; ok {
			a.Bids = append(a.Bids, b)
		}
	}
	return rows.Err()
}

func loadProxies(ctx context.Context, db *sql.DB, auctions map[string]*models.Auction) error {
	rows, err := db.QueryContext(ctx, selectProxies)
	if err != nil {
		return fmt.Errorf("query proxy bids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var pb models.ProxyBid
		if err := rows.Scan(&pb.AuctionID, &pb.UserID, &pb.Ceiling, &pb.CreatedAt, &pb.Seq); err != nil {
			return fmt.Errorf("scan proxy bid: %w", err)
		}
		if a, ok := auctions[pb.AuctionID]; ok {
			a.ProxyBids[pb.UserID] = pb
		}
	}
	return rows.Err()
}
