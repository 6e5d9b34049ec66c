package syncdb

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"diamondauction/internal/models"
	"diamondauction/internal/wallet"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const flushTimeout = 5 * time.Second

// Source exposes the store's change feed.
type Source interface {
	Changes(since int64) ([]*models.Auction, int64)
	DrainPurged() []string
}

// Sink receives records restored at boot.
type Sink interface {
	Put(a *models.Auction)
}

// Journal hands over wallet transactions that still need persisting.
type Journal interface {
	DrainJournal() []wallet.Transaction
	Requeue(txs []wallet.Transaction)
}

// Mirror copies auction state, and optionally the wallet journal, into
// Postgres. The in-memory state stays authoritative; the mirror only has
// to catch up eventually.
type Mirror struct {
	db      *sql.DB
	src     Source
	journal Journal

	mu        sync.Mutex
	watermark int64
	pending   []string
}

type MirrorOption func(*Mirror)

// WithJournal mirrors wallet transactions in the same database transaction
// as the auction changes.
func WithJournal(j Journal) MirrorOption {
	return func(m *Mirror) { m.journal = j }
}

func NewMirror(db *sql.DB, src Source, opts ...MirrorOption) *Mirror {
	m := &Mirror{db: db, src: src}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Run mirrors changes every interval until ctx is done, then flushes once
// more so a clean shutdown loses nothing.
func Run(ctx context.Context, m *Mirror, interval time.Duration) {
	tk := time.NewTicker(interval)
	defer tk.Stop()
	for {
		select {
		case <-ctx.Done():
			fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
			if err := m.SyncOnce(fctx); err != nil {
				zap.L().Error("syncdb.final_flush", zap.Error(err))
			}
			cancel()
			return
		case <-tk.C:
			if err := m.SyncOnce(ctx); err != nil {
				zap.L().Error("syncdb.sync", zap.Error(err))
			}
		}
	}
}

const (
	upsertAuction = `
	INSERT INTO auctions (id, diamond_id, diamond_name, image_url, description,
	                      base_price, current_price, status, start_time, end_time,
	                      winner_id, winning_amount, is_deleted, deleted_at,
	                      created_at, updated_at, version)
	     VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
	ON CONFLICT (id) DO UPDATE
	       SET current_price=EXCLUDED.current_price,
	           status=EXCLUDED.status,
	           start_time=EXCLUDED.start_time,
	           winner_id=EXCLUDED.winner_id,
	           winning_amount=EXCLUDED.winning_amount,
	           is_deleted=EXCLUDED.is_deleted,
	           deleted_at=EXCLUDED.deleted_at,
	           updated_at=EXCLUDED.updated_at,
	           version=EXCLUDED.version
	     WHERE auctions.version < EXCLUDED.version`

	insertBid = `
	INSERT INTO bids (id, auction_id, user_id, amount, kind, created_at, seq)
	     VALUES ($1,$2,$3,$4,$5,$6,$7)
	ON CONFLICT (id) DO NOTHING`

	upsertProxy = `
	INSERT INTO proxy_bids (auction_id, user_id, ceiling, created_at, seq)
	     VALUES ($1,$2,$3,$4,$5)
	ON CONFLICT (auction_id, user_id) DO UPDATE
	       SET ceiling=EXCLUDED.ceiling,
	           created_at=EXCLUDED.created_at,
	           seq=EXCLUDED.seq`

	deleteAuction = `DELETE FROM auctions WHERE id = $1`

	insertWalletTx = `
	INSERT INTO wallet_transactions (id, user_id, amount, type, reason, created_at)
	     VALUES ($1,$2,$3,$4,$5,$6)
	ON CONFLICT (id) DO NOTHING`
)

// SyncOnce writes everything changed since the previous successful pass in
// one transaction. On failure the watermark does not move, and purged ids
// and wallet transactions are kept for the next pass.
func (m *Mirror) SyncOnce(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	changed, rev := m.src.Changes(m.watermark)
	purged := append(m.pending, m.src.DrainPurged()...)
	m.pending = nil
	var txs []wallet.Transaction
	if m.journal != nil {
		txs = m.journal.DrainJournal()
	}
	if len(changed) == 0 && len(purged) == 0 && len(txs) == 0 {
		m.watermark = rev
		return nil
	}

	if err := m.write(ctx, changed, purged, txs); err != nil {
		m.pending = purged
		if m.journal != nil {
			m.journal.Requeue(txs)
		}
		return err
	}
	m.watermark = rev
	zap.L().Debug("syncdb.synced",
		zap.Int("auctions", len(changed)),
		zap.Int("purged", len(purged)),
		zap.Int("wallet_txs", len(txs)),
		zap.Int64("rev", rev))
	return nil
}

func (m *Mirror) write(ctx context.Context, changed []*models.Auction, purged []string, txs []wallet.Transaction) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, a := range changed {
		if _, err := tx.ExecContext(ctx, upsertAuction,
			a.ID, a.DiamondID, a.DiamondName, a.ImageURL, a.Description,
			a.BasePrice, a.CurrentPrice, string(a.Status), a.StartTime, a.EndTime,
			a.WinnerID, nullDecimal(a.WinningAmount), a.Deleted, a.DeletedAt,
			a.CreatedAt, a.UpdatedAt, a.Version); err != nil {
			return fmt.Errorf("upsert auction %s: %w", a.ID, err)
		}
		for i, b := range a.Bids {
			if _, err := tx.ExecContext(ctx, insertBid,
				b.ID, a.ID, b.UserID, b.Amount, string(b.Kind), b.CreatedAt, i); err != nil {
				return fmt.Errorf("insert bid %s: %w", b.ID, err)
			}
		}
		for _, pb := range proxiesBySeq(a) {
			if _, err := tx.ExecContext(ctx, upsertProxy,
				a.ID, pb.UserID, pb.Ceiling, pb.CreatedAt, pb.Seq); err != nil {
				return fmt.Errorf("upsert proxy %s/%s: %w", a.ID, pb.UserID, err)
			}
		}
	}
	for _, id := range purged {
		if _, err := tx.ExecContext(ctx, deleteAuction, id); err != nil {
			return fmt.Errorf("delete auction %s: %w", id, err)
		}
	}
	for _, wt := range txs {
		if _, err := tx.ExecContext(ctx, insertWalletTx,
			wt.ID, wt.UserID, wt.Amount, string(wt.Type), wt.Reason, wt.CreatedAt); err != nil {
			return fmt.Errorf("insert wallet tx %s: %w", wt.ID, err)
		}
	}
	return tx.Commit()
}

func proxiesBySeq(a *models.Auction) []models.ProxyBid {
	out := make([]models.ProxyBid, 0, len(a.ProxyBids))
	for _, pb := range a.ProxyBids {
		out = append(out, pb)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}
