// Package reconcile turns batches of raw bank transactions into consistent
// ledger rows with correct, idempotent envelope balances. It owns the narrow
// insertion contract every ingestion path terminates at: insert with
// categorization and duplicate guard, remove with balance reversal, and
// in-place update for pending transactions that have posted.
package reconcile

import (
	"context"
	"errors"
	"log"

	"github.com/rumor-ml/commons.systems/envelopes/internal/dedup"
	"github.com/rumor-ml/commons.systems/envelopes/internal/domain"
	"github.com/rumor-ml/commons.systems/envelopes/internal/ledger"
	"github.com/rumor-ml/commons.systems/envelopes/internal/provider"
	"github.com/rumor-ml/commons.systems/envelopes/internal/rules"
	"github.com/rumor-ml/commons.systems/envelopes/internal/store"
)

// Batch is one accumulated set of changes to apply. Cursor syncs fill all
// three sets; bulk range fetches and file imports fill only Added.
type Batch struct {
	// ItemID is the linked item the provider rows belong to; empty for
	// file imports.
	ItemID string

	// Accounts is provider account metadata used when resolution has to
	// create an account.
	Accounts []domain.RawAccount

	Added    []*domain.RawTransaction
	Modified []*domain.RawTransaction
	Removed  []provider.RemovedTransaction
}

// Result summarizes what a batch did to the ledger.
type Result struct {
	Inserted int
	Updated  int // pending transactions settled in place
	Modified int // modified entries re-inserted
	Deleted  int
	Skipped  int // duplicates recorded but not re-inserted
}

// ProgressFunc receives percent-complete updates during Apply.
type ProgressFunc func(percent float64)

// Engine is the reconciliation engine.
type Engine struct {
	store    *store.Store
	detector *dedup.Detector
}

// New creates a reconciliation engine over the given store.
func New(s *store.Store) *Engine {
	return &Engine{store: s, detector: dedup.New()}
}

// Apply reconciles a batch against the ledger. Phases run in a fixed order:
// added first (so pending-posted matches can consume entries from the
// removed set before they are independently deleted), then the remaining
// removed entries, then modified entries as delete-then-reinsert. Progress
// is reported after each phase against a total fixed at batch start. Every
// row mutation and its balance effect commit inside one store transaction.
func (e *Engine) Apply(ctx context.Context, userID int64, batch *Batch, report ProgressFunc) (*Result, error) {
	if report == nil {
		report = func(float64) {}
	}
	total := len(batch.Added) + len(batch.Modified) + len(batch.Removed)
	if total == 0 {
		report(100)
		return &Result{}, nil
	}

	engine, err := rules.Load(ctx, e.store, userID)
	if err != nil {
		return nil, err
	}
	resolver := newAccountResolver(userID, batch.ItemID, batch.Accounts)

	// Pending-posted link: removed entries indexed by reference number so
	// an added transaction can claim its earlier pending form.
	removedByRef := make(map[string]int, len(batch.Removed))
	for i, r := range batch.Removed {
		removedByRef[r.RefNumber] = i
	}
	consumed := make(map[int]bool)

	result := &Result{}
	processed := 0

	for _, cand := range batch.Added {
		err := e.store.WithTx(ctx, func(tx *store.Tx) error {
			accountID, err := e.resolveCandidate(ctx, tx, resolver, cand)
			if err != nil {
				return err
			}

			if cand.PendingRef() != "" {
				if idx, ok := removedByRef[cand.PendingRef()]; ok && !consumed[idx] {
					consumed[idx] = true
					updated, err := e.settlePending(ctx, tx, userID, accountID, batch.Removed[idx].RefNumber, cand)
					if err != nil {
						return err
					}
					if updated {
						result.Updated++
						return nil
					}
					// Expected pending row is gone (race or earlier
					// partial failure); fall through to a plain insert.
				}
			}

			inserted, err := e.basicInsert(ctx, tx, engine, userID, accountID, cand)
			if err != nil {
				return err
			}
			if inserted {
				result.Inserted++
			} else {
				result.Skipped++
			}
			return nil
		})
		if err != nil {
			return result, err
		}
	}
	processed += len(batch.Added)
	report(float64(processed) / float64(total) * 100)

	for i, removed := range batch.Removed {
		if consumed[i] {
			continue
		}
		err := e.store.WithTx(ctx, func(tx *store.Tx) error {
			accountID, err := resolver.resolve(ctx, tx, removed.ExternalAccountID)
			if err != nil {
				return err
			}
			deleted, err := e.basicRemove(ctx, tx, userID, accountID, removed.RefNumber)
			if err != nil {
				return err
			}
			if deleted {
				result.Deleted++
			}
			return nil
		})
		if err != nil {
			return result, err
		}
	}
	processed += len(batch.Removed)
	report(float64(processed) / float64(total) * 100)

	// Modification is never a field-level patch: the old row is deleted
	// and the candidate re-inserted so categorization and duplicate status
	// are recomputed against current rules.
	for _, cand := range batch.Modified {
		err := e.store.WithTx(ctx, func(tx *store.Tx) error {
			accountID, err := e.resolveCandidate(ctx, tx, resolver, cand)
			if err != nil {
				return err
			}
			if _, err := e.basicRemove(ctx, tx, userID, accountID, cand.RefNumber()); err != nil {
				return err
			}
			inserted, err := e.basicInsert(ctx, tx, engine, userID, accountID, cand)
			if err != nil {
				return err
			}
			if inserted {
				result.Modified++
			} else {
				result.Skipped++
			}
			return nil
		})
		if err != nil {
			return result, err
		}
	}
	processed += len(batch.Modified)
	report(float64(processed) / float64(total) * 100)

	return result, nil
}

// Session runs candidates through the full insert path (account resolution,
// categorization, duplicate guard, balance contribution) one at a time, each
// in its own store transaction. File importers feed rows through a session
// so rules load once per file rather than once per row.
type Session struct {
	engine   *Engine
	rules    *rules.Engine
	resolver *accountResolver
	userID   int64
}

// NewSession creates an insert session for one user.
func (e *Engine) NewSession(ctx context.Context, userID int64) (*Session, error) {
	engine, err := rules.Load(ctx, e.store, userID)
	if err != nil {
		return nil, err
	}
	return &Session{
		engine:   e,
		rules:    engine,
		resolver: newAccountResolver(userID, "", nil),
		userID:   userID,
	}, nil
}

// Insert runs one candidate through the insert contract. Returns true when
// a row was inserted, false when the duplicate guard suppressed it.
func (s *Session) Insert(ctx context.Context, cand *domain.RawTransaction) (bool, error) {
	inserted := false
	err := s.engine.store.WithTx(ctx, func(tx *store.Tx) error {
		accountID, err := s.engine.resolveCandidate(ctx, tx, s.resolver, cand)
		if err != nil {
			return err
		}
		inserted, err = s.engine.basicInsert(ctx, tx, s.rules, s.userID, accountID, cand)
		return err
	})
	return inserted, err
}

func (e *Engine) resolveCandidate(ctx context.Context, tx *store.Tx, resolver *accountResolver, cand *domain.RawTransaction) (int64, error) {
	if cand.ExternalAccountID() != "" {
		return resolver.resolve(ctx, tx, cand.ExternalAccountID())
	}
	return resolver.resolveLabel(ctx, tx, cand.AccountLabel())
}

// basicInsert inserts a candidate unless the duplicate detector matches it.
// Returns true when a row was inserted.
func (e *Engine) basicInsert(ctx context.Context, tx *store.Tx, engine *rules.Engine, userID, accountID int64, cand *domain.RawTransaction) (bool, error) {
	dup, err := e.detector.IsDuplicate(ctx, tx, userID, accountID, cand)
	if err != nil {
		return false, err
	}
	if dup {
		log.Printf("INFO: Skipping duplicate transaction %q on account %d (%s)", cand.Description(), accountID, cand.Date())
		return false, nil
	}

	envelopeID := engine.Categorize(ctx, tx, accountID, cand.Description(), cand.Date())
	row := &domain.Transaction{
		UserID:      userID,
		EnvelopeID:  envelopeID,
		AccountID:   accountID,
		Amount:      cand.Amount(),
		Date:        cand.Date(),
		Description: cand.Description(),
		RefNumber:   cand.RefNumber(),
		Visible:     true,
	}
	if err := tx.InsertTransaction(ctx, row); err != nil {
		return false, err
	}
	return true, ledger.Apply(ctx, tx, row)
}

// basicRemove deletes the row for (account, refNumber) and reverses its
// balance contribution. A missing row is not an error: the provider can
// report removals for transactions a partial earlier sync never stored.
func (e *Engine) basicRemove(ctx context.Context, tx *store.Tx, userID, accountID int64, refNumber string) (bool, error) {
	row, err := tx.FindTransactionByRef(ctx, userID, accountID, refNumber)
	if errors.Is(err, store.ErrNotFound) {
		log.Printf("WARN: Removal for unknown transaction ref %q on account %d, skipping", refNumber, accountID)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := ledger.Reverse(ctx, tx, row); err != nil {
		return false, err
	}
	return true, tx.DeleteTransaction(ctx, userID, row.ID)
}

// settlePending locates the stored pending row by its reference number and
// overwrites reference, amount, date, and description with the posted form,
// keeping the row identifier and envelope assignment stable. The balance is
// corrected by the amount delta in the same unit. Returns false when the
// stored row cannot be found.
func (e *Engine) settlePending(ctx context.Context, tx *store.Tx, userID, accountID int64, pendingRef string, cand *domain.RawTransaction) (bool, error) {
	row, err := tx.FindTransactionByRef(ctx, userID, accountID, pendingRef)
	if errors.Is(err, store.ErrNotFound) {
		log.Printf("WARN: Pending transaction ref %q not found on account %d, falling back to insert", pendingRef, accountID)
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := ledger.Reverse(ctx, tx, row); err != nil {
		return false, err
	}
	if err := tx.UpdateTransactionPosted(ctx, userID, row.ID, cand.RefNumber(), cand.Amount(), cand.Date(), cand.Description()); err != nil {
		return false, err
	}
	row.RefNumber = cand.RefNumber()
	row.Amount = cand.Amount()
	row.Date = cand.Date()
	row.Description = cand.Description()
	return true, ledger.Apply(ctx, tx, row)
}
