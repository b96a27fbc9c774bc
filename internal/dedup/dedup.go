// Package dedup decides whether a candidate transaction already exists in
// the ledger. Aggregation services assign stable reference numbers to posted
// transactions but not to all historical imports, and flat-file imports
// frequently carry no reference number at all, so identity falls back to
// amount+description on the same account and date.
package dedup

import (
	"context"

	"github.com/rumor-ml/commons.systems/envelopes/internal/domain"
)

// Queries is the slice of store methods the detector reads from. Both
// *store.Store and *store.Tx satisfy it.
type Queries interface {
	ListTransactionsByAccountDate(ctx context.Context, userID, accountID int64, date string) ([]domain.Transaction, error)
}

// Detector checks candidates against stored rows. Pure read; it never
// mutates the ledger.
type Detector struct{}

// New creates a duplicate detector.
func New() *Detector {
	return &Detector{}
}

// IsDuplicate reports whether the candidate matches an existing transaction
// on the same account and date. A row matches if either both sides carry a
// non-empty reference number and they are equal, or one side has no
// reference number and the signed amount and description are equal.
func (d *Detector) IsDuplicate(ctx context.Context, q Queries, userID, accountID int64, cand *domain.RawTransaction) (bool, error) {
	existing, err := q.ListTransactionsByAccountDate(ctx, userID, accountID, cand.Date())
	if err != nil {
		return false, err
	}
	for i := range existing {
		if matches(&existing[i], cand) {
			return true, nil
		}
	}
	return false, nil
}

func matches(stored *domain.Transaction, cand *domain.RawTransaction) bool {
	if stored.RefNumber != "" && cand.RefNumber() != "" {
		return stored.RefNumber == cand.RefNumber()
	}
	return stored.Amount.Equal(cand.Amount()) && stored.Description == cand.Description()
}
