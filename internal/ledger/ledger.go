// Package ledger implements the reserve/confirm/release protocol over a
// user's prepaid credit balance.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"
)

// Sentinel errors. Check with errors.Is().
var (
	// ErrInvalidAmount indicates a non-positive reservation amount.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrInsufficientCredits indicates the balance does not cover the amount.
	ErrInsufficientCredits = errors.New("insufficient credits")

	// ErrAlreadyResolved indicates a reservation was confirmed, released or
	// reconciled more than once.
	ErrAlreadyResolved = errors.New("reservation already resolved")
)

// BalanceStore is the per-user atomic balance the ledger runs against. Both
// operations must be single read-modify-write statements: a debit guarded on
// sufficiency, and an unconditional refund.
type BalanceStore interface {
	// DebitCredits subtracts amount if the balance covers it, returning the
	// new balance and whether the debit happened.
	DebitCredits(ctx context.Context, userID string, amount int) (int, bool, error)

	// CreditCredits adds amount back, returning the new balance.
	CreditCredits(ctx context.Context, userID string, amount int) (int, error)
}

// Ledger meters credit reservations against user balances.
type Ledger struct {
	store  BalanceStore
	logger *slog.Logger
}

// New creates a ledger over the given balance store.
func New(store BalanceStore, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{store: store, logger: logger}
}

// Reservation is an ephemeral handle for credits already debited pending a
// terminal outcome. It lives in worker-local state only; a holder that dies
// without resolving it leaves the user under-credited by Amount.
type Reservation struct {
	id       string
	userID   string
	amount   int
	resolved atomic.Bool
}

// UserID returns the owning user.
func (r *Reservation) UserID() string { return r.userID }

// Amount returns the credits debited at reserve time.
func (r *Reservation) Amount() int { return r.amount }

// Reserve debits amount from the user's balance and returns a reservation
// handle. This is a real debit, not a hold: the balance reflects the
// deduction immediately, which is why every reservation must be resolved by
// exactly one Confirm, Release or Reconcile.
func (l *Ledger) Reserve(ctx context.Context, userID string, amount int) (*Reservation, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("reserve %d for %q: %w", amount, userID, ErrInvalidAmount)
	}

	balance, ok, err := l.store.DebitCredits(ctx, userID, amount)
	if err != nil {
		return nil, fmt.Errorf("reserve: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("reserve %d for %q: %w", amount, userID, ErrInsufficientCredits)
	}

	res := &Reservation{
		id:     uuid.New().String(),
		userID: userID,
		amount: amount,
	}
	l.logger.Debug("credits reserved",
		"reservation", res.id, "user_id", userID, "amount", amount, "balance", balance)
	return res, nil
}

// Confirm resolves a reservation with no balance effect: the cost was taken
// at reserve time. Recorded for auditability.
func (l *Ledger) Confirm(ctx context.Context, res *Reservation) error {
	if !res.resolved.CompareAndSwap(false, true) {
		return ErrAlreadyResolved
	}
	l.logger.Debug("reservation confirmed",
		"reservation", res.id, "user_id", res.userID, "amount", res.amount)
	return nil
}

// Release refunds amount to the user and resolves the reservation. Used for
// full or partial refunds on failure paths.
func (l *Ledger) Release(ctx context.Context, res *Reservation, amount int) error {
	if !res.resolved.CompareAndSwap(false, true) {
		return ErrAlreadyResolved
	}
	if amount <= 0 {
		return nil
	}

	balance, err := l.store.CreditCredits(ctx, res.userID, amount)
	if err != nil {
		// Leave the reservation resolvable so the caller may retry the refund.
		res.resolved.Store(false)
		return fmt.Errorf("release: %w", err)
	}
	l.logger.Debug("reservation released",
		"reservation", res.id, "user_id", res.userID, "amount", amount, "balance", balance)
	return nil
}

// Reconcile adjusts a reservation to the actual measured cost, refunding the
// unused portion of the estimate. It never charges more than was reserved.
func (l *Ledger) Reconcile(ctx context.Context, res *Reservation, reserved, actual int) error {
	refund := reserved - actual
	if refund < 0 {
		refund = 0
	}
	return l.Release(ctx, res, refund)
}
