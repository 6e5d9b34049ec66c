// Package wallet keeps per-user balances. It is keyed by user only and never
// calls back into the auction engine, so the engine may consult it while
// holding an auction lock.
package wallet

import (
	"context"
	"sort"
	"sync"
	"time"

	"diamondauction/internal/auctionerr"
	"diamondauction/internal/models"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/shopspring/decimal"
)

// Ledger is what the auction engine needs from the wallet.
type Ledger interface {
	GetBalance(ctx context.Context, userID string) (decimal.Decimal, error)
	Reserve(ctx context.Context, userID string, amount decimal.Decimal, reason string) error
	Release(ctx context.Context, userID string, amount decimal.Decimal, reason string) error
	Debit(ctx context.Context, userID string, amount decimal.Decimal, reason string) error
	Credit(ctx context.Context, userID string, amount decimal.Decimal, reason string) error
}

type TxType string

const (
	TxTopup      TxType = "topup"
	TxCredit     TxType = "credit"
	TxDebit      TxType = "debit"
	TxReserve    TxType = "reserve"
	TxRelease    TxType = "release"
	TxAdjustment TxType = "adjustment"
)

type Transaction struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Amount    decimal.Decimal `json:"amount"`
	Type      TxType          `json:"type"`
	Reason    string          `json:"reason,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

type account struct {
	mu      sync.Mutex
	balance decimal.Decimal
	held    decimal.Decimal
	history []Transaction
}

// MemoryLedger is an in-process Ledger with a per-user transaction log.
type MemoryLedger struct {
	accounts *xsync.MapOf[string, *account]
	now      func() time.Time

	// transactions not yet persisted, kept only when journaled
	jmu       sync.Mutex
	journal   []Transaction
	journaled bool
}

var _ Ledger = (*MemoryLedger)(nil)

type Option func(*MemoryLedger)

// WithJournal keeps every new transaction until DrainJournal hands it to
// a persister.
func WithJournal() Option {
	return func(l *MemoryLedger) { l.journaled = true }
}

func NewMemoryLedger(opts ...Option) *MemoryLedger {
	l := &MemoryLedger{
		accounts: xsync.NewMapOf[string, *account](),
		now:      time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

func (l *MemoryLedger) acct(userID string) *account {
	a, _ := l.accounts.LoadOrCompute(userID, func() *account { return &account{} })
	return a
}

func checkAmount(userID string, amount decimal.Decimal) error {
	if userID == "" {
		return auctionerr.Invalid("user id is required")
	}
	if !amount.IsPositive() {
		return auctionerr.Invalid("amount must be positive")
	}
	if !models.HasMoneyPrecision(amount) {
		return auctionerr.ErrInvalidPrecision
	}
	return nil
}

// GetBalance returns the spendable balance: funds minus outstanding holds.
func (l *MemoryLedger) GetBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	a, ok := l.accounts.Load(userID)
	if !ok {
		return decimal.Zero, nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.balance.Sub(a.held), nil
}

func (l *MemoryLedger) Reserve(ctx context.Context, userID string, amount decimal.Decimal, reason string) error {
	return l.apply(ctx, userID, amount, TxReserve, reason, func(a *account) error {
		if a.balance.Sub(a.held).LessThan(amount) {
			return auctionerr.ErrInsufficientFunds
		}
		a.held = a.held.Add(amount)
		return nil
	})
}

func (l *MemoryLedger) Release(ctx context.Context, userID string, amount decimal.Decimal, reason string) error {
	return l.apply(ctx, userID, amount, TxRelease, reason, func(a *account) error {
		if a.held.LessThan(amount) {
			return auctionerr.Invalid("release of %s exceeds held %s", amount, a.held)
		}
		a.held = a.held.Sub(amount)
		return nil
	})
}

func (l *MemoryLedger) Debit(ctx context.Context, userID string, amount decimal.Decimal, reason string) error {
	return l.apply(ctx, userID, amount, TxDebit, reason, func(a *account) error {
		if a.balance.Sub(a.held).LessThan(amount) {
			return auctionerr.ErrInsufficientFunds
		}
		a.balance = a.balance.Sub(amount)
		return nil
	})
}

func (l *MemoryLedger) Credit(ctx context.Context, userID string, amount decimal.Decimal, reason string) error {
	return l.apply(ctx, userID, amount, TxCredit, reason, func(a *account) error {
		a.balance = a.balance.Add(amount)
		return nil
	})
}

// Topup adds funds on the user's own request.
func (l *MemoryLedger) Topup(ctx context.Context, userID string, amount decimal.Decimal) (decimal.Decimal, error) {
	err := l.apply(ctx, userID, amount, TxTopup, "wallet topup", func(a *account) error {
		a.balance = a.balance.Add(amount)
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return l.GetBalance(ctx, userID)
}

// Adjust is an administrative correction; delta may be negative but the
// balance never drops below the held amount.
func (l *MemoryLedger) Adjust(ctx context.Context, userID string, delta decimal.Decimal, reason string) (decimal.Decimal, error) {
	if delta.IsZero() {
		return decimal.Zero, auctionerr.Invalid("adjustment must be non-zero")
	}
	err := l.applySigned(ctx, userID, delta.Abs(), delta, TxAdjustment, reason, func(a *account) error {
		next := a.balance.Add(delta)
		if next.LessThan(a.held) {
			return auctionerr.ErrInsufficientFunds
		}
		a.balance = next
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return l.GetBalance(ctx, userID)
}

// History returns the user's transactions, newest first.
func (l *MemoryLedger) History(_ context.Context, userID string) []Transaction {
	a, ok := l.accounts.Load(userID)
	if !ok {
		return []Transaction{}
	}
	a.mu.Lock()
	out := append([]Transaction(nil), a.history...)
	a.mu.Unlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (l *MemoryLedger) apply(ctx context.Context, userID string, amount decimal.Decimal, typ TxType, reason string, fn func(a *account) error) error {
	return l.applySigned(ctx, userID, amount, amount, typ, reason, fn)
}

// applySigned validates amount, runs fn under the account lock and records
// the transaction with the signed value.
func (l *MemoryLedger) applySigned(ctx context.Context, userID string, amount, signed decimal.Decimal, typ TxType, reason string, fn func(a *account) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkAmount(userID, amount); err != nil {
		return err
	}
	a := l.acct(userID)
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := fn(a); err != nil {
		return err
	}
	tx := Transaction{
		ID:        uuid.NewString(),
		UserID:    userID,
		Amount:    signed,
		Type:      typ,
		Reason:    reason,
		CreatedAt: l.now().UTC(),
	}
	a.history = append(a.history, tx)
	if l.journaled {
		l.jmu.Lock()
		l.journal = append(l.journal, tx)
		l.jmu.Unlock()
	}
	return nil
}

// DrainJournal returns the transactions recorded since the previous drain,
// oldest first, and empties the journal.
func (l *MemoryLedger) DrainJournal() []Transaction {
	l.jmu.Lock()
	defer l.jmu.Unlock()
	out := l.journal
	l.journal = nil
	return out
}

// Requeue puts txs back at the head of the journal after a failed persist.
func (l *MemoryLedger) Requeue(txs []Transaction) {
	if len(txs) == 0 {
		return
	}
	l.jmu.Lock()
	defer l.jmu.Unlock()
	l.journal = append(append([]Transaction(nil), txs...), l.journal...)
}

// Replay applies a persisted transaction without validating it. It is meant
// for rebuilding balances at boot and does not journal tx again.
func (l *MemoryLedger) Replay(tx Transaction) {
	a := l.acct(tx.UserID)
	a.mu.Lock()
	defer a.mu.Unlock()
	switch tx.Type {
	case TxTopup, TxCredit, TxAdjustment:
		a.balance = a.balance.Add(tx.Amount)
	case TxDebit:
		a.balance = a.balance.Sub(tx.Amount)
	case TxReserve:
		a.held = a.held.Add(tx.Amount)
	case TxRelease:
		a.held = a.held.Sub(tx.Amount)
	}
	a.history = append(a.history, tx)
}
