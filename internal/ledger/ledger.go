// Package ledger applies signed amount deltas to envelope balances under
// transactional discipline. Every operation that mutates a transaction row
// and its balance effect runs inside one store transaction; a crash between
// the two is not an acceptable intermediate state.
package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/rumor-ml/commons.systems/envelopes/internal/domain"
	"github.com/rumor-ml/commons.systems/envelopes/internal/store"
)

// Queries is the slice of store methods the ledger needs. Both *store.Store
// and *store.Tx satisfy it; balance-affecting callers must pass a *store.Tx.
type Queries interface {
	AddToBalance(ctx context.Context, userID, envelopeID int64, delta decimal.Decimal) error
	GetTransaction(ctx context.Context, userID, id int64) (*domain.Transaction, error)
	InsertTransaction(ctx context.Context, t *domain.Transaction) error
	DeleteTransaction(ctx context.Context, userID, id int64) error
	SetTransactionFlags(ctx context.Context, userID, id int64, duplicate, visible, split bool) error
	UpdateTransactionEnvelope(ctx context.Context, userID, id, envelopeID int64) error
}

// Ledger owns the envelope-balance invariant.
type Ledger struct {
	store *store.Store
}

// New creates a ledger over the given store.
func New(s *store.Store) *Ledger {
	return &Ledger{store: s}
}

// Apply credits a row's signed amount to its envelope if the row currently
// contributes. Call inside the same transaction that inserted or revealed
// the row.
func Apply(ctx context.Context, q Queries, t *domain.Transaction) error {
	if !t.Contributes() {
		return nil
	}
	if err := q.AddToBalance(ctx, t.UserID, t.EnvelopeID, t.Amount); err != nil {
		return fmt.Errorf("failed to apply %s to envelope %d: %w", t.Amount, t.EnvelopeID, err)
	}
	return nil
}

// Reverse removes a row's prior balance contribution. Call inside the same
// transaction that deletes or hides the row, before its new state applies.
func Reverse(ctx context.Context, q Queries, t *domain.Transaction) error {
	if !t.Contributes() {
		return nil
	}
	if err := q.AddToBalance(ctx, t.UserID, t.EnvelopeID, t.Amount.Neg()); err != nil {
		return fmt.Errorf("failed to reverse %s from envelope %d: %w", t.Amount, t.EnvelopeID, err)
	}
	return nil
}

// Adjust atomically adds delta to an envelope's balance. This is the direct
// balance-adjustment path (funding an envelope, correcting a balance); it
// has no transaction row.
func (l *Ledger) Adjust(ctx context.Context, userID, envelopeID int64, delta decimal.Decimal) error {
	return l.store.WithTx(ctx, func(tx *store.Tx) error {
		return tx.AddToBalance(ctx, userID, envelopeID, delta)
	})
}

// Transfer moves amount from one envelope to another. The two adjustments
// commit together; the transfer is never observable as only one side having
// applied.
func (l *Ledger) Transfer(ctx context.Context, userID, fromID, toID int64, amount decimal.Decimal) error {
	if fromID == toID {
		return fmt.Errorf("cannot transfer envelope %d to itself", fromID)
	}
	return l.store.WithTx(ctx, func(tx *store.Tx) error {
		if err := tx.AddToBalance(ctx, userID, fromID, amount.Neg()); err != nil {
			return err
		}
		return tx.AddToBalance(ctx, userID, toID, amount)
	})
}

// Reassign moves a transaction row to a different envelope, subtracting from
// the old envelope and adding to the new one in the same unit.
func (l *Ledger) Reassign(ctx context.Context, userID, txnID, envelopeID int64) error {
	return l.store.WithTx(ctx, func(tx *store.Tx) error {
		t, err := tx.GetTransaction(ctx, userID, txnID)
		if err != nil {
			return err
		}
		if t.EnvelopeID == envelopeID {
			return nil
		}
		if err := Reverse(ctx, tx, t); err != nil {
			return err
		}
		if err := tx.UpdateTransactionEnvelope(ctx, userID, txnID, envelopeID); err != nil {
			return err
		}
		t.EnvelopeID = envelopeID
		return Apply(ctx, tx, t)
	})
}

// SetDuplicate flips the duplicate flag, reversing or restoring the row's
// balance contribution in the same unit. Duplicate rows are retained for
// visibility but excluded from balances and actual-spend totals.
func (l *Ledger) SetDuplicate(ctx context.Context, userID, txnID int64, duplicate bool) error {
	return l.store.WithTx(ctx, func(tx *store.Tx) error {
		t, err := tx.GetTransaction(ctx, userID, txnID)
		if err != nil {
			return err
		}
		if t.Duplicate == duplicate {
			return nil
		}
		if err := Reverse(ctx, tx, t); err != nil {
			return err
		}
		if err := tx.SetTransactionFlags(ctx, userID, txnID, duplicate, t.Visible, t.Split); err != nil {
			return err
		}
		t.Duplicate = duplicate
		return Apply(ctx, tx, t)
	})
}

// SetVisible flips the visibility flag with the same balance discipline as
// SetDuplicate.
func (l *Ledger) SetVisible(ctx context.Context, userID, txnID int64, visible bool) error {
	return l.store.WithTx(ctx, func(tx *store.Tx) error {
		t, err := tx.GetTransaction(ctx, userID, txnID)
		if err != nil {
			return err
		}
		if t.Visible == visible {
			return nil
		}
		if err := Reverse(ctx, tx, t); err != nil {
			return err
		}
		if err := tx.SetTransactionFlags(ctx, userID, txnID, t.Duplicate, visible, t.Split); err != nil {
			return err
		}
		t.Visible = visible
		return Apply(ctx, tx, t)
	})
}

// SplitPart describes one part of a transaction split.
type SplitPart struct {
	Amount     decimal.Decimal
	EnvelopeID int64
}

// Split redistributes a transaction across several envelopes. The original
// row is hidden and marked split (its contribution reversed) and one new row
// per part is inserted carrying the origin reference. Part amounts must sum
// to the original amount, so net balance impact beyond redistribution is
// zero.
func (l *Ledger) Split(ctx context.Context, userID, txnID int64, parts []SplitPart) error {
	if len(parts) < 2 {
		return fmt.Errorf("split requires at least 2 parts, got %d", len(parts))
	}
	return l.store.WithTx(ctx, func(tx *store.Tx) error {
		origin, err := tx.GetTransaction(ctx, userID, txnID)
		if err != nil {
			return err
		}
		if origin.Split {
			return fmt.Errorf("transaction %d is already split", txnID)
		}

		sum := decimal.Zero
		for _, p := range parts {
			sum = sum.Add(p.Amount)
		}
		if !sum.Equal(origin.Amount) {
			return fmt.Errorf("split parts sum to %s, original amount is %s", sum, origin.Amount)
		}

		if err := Reverse(ctx, tx, origin); err != nil {
			return err
		}
		if err := tx.SetTransactionFlags(ctx, userID, txnID, origin.Duplicate, false, true); err != nil {
			return err
		}

		for _, p := range parts {
			part := &domain.Transaction{
				UserID:      userID,
				EnvelopeID:  p.EnvelopeID,
				AccountID:   origin.AccountID,
				Amount:      p.Amount,
				Date:        origin.Date,
				Description: origin.Description,
				Visible:     true,
				OriginID:    &origin.ID,
			}
			if err := tx.InsertTransaction(ctx, part); err != nil {
				return err
			}
			if err := Apply(ctx, tx, part); err != nil {
				return err
			}
		}
		return nil
	})
}
