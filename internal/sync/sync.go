// Package sync drives transaction fetches from the aggregation service: the
// cursor-based incremental sync and the date-range bulk fetch. Both
// accumulate full change sets across pages, hand them to the reconciliation
// engine, and report percent-complete through an injected progress tracker.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/rumor-ml/commons.systems/envelopes/internal/progress"
	"github.com/rumor-ml/commons.systems/envelopes/internal/provider"
	"github.com/rumor-ml/commons.systems/envelopes/internal/reconcile"
	"github.com/rumor-ml/commons.systems/envelopes/internal/store"
)

// ErrSyncInFlight is returned when a sync is requested for an account that
// already has one running.
var ErrSyncInFlight = errors.New("sync: a sync for this account is already in flight")

// CredentialFunc resolves the aggregation-service access credential for a
// linked item. An empty return means no credential is available and the sync
// is an immediate no-op. Token exchange and storage are outside this core.
type CredentialFunc func(userID int64, itemID string) string

// Orchestrator coordinates background syncs. Progress for each session is
// visible through the tracker; the sync itself always runs to completion or
// hard failure regardless of who is watching.
type Orchestrator struct {
	store      *store.Store
	client     provider.Client
	engine     *reconcile.Engine
	tracker    progress.Tracker
	credential CredentialFunc
	locks      *accountLocks
}

// New creates a sync orchestrator.
func New(s *store.Store, client provider.Client, engine *reconcile.Engine, tracker progress.Tracker, credential CredentialFunc) *Orchestrator {
	return &Orchestrator{
		store:      s,
		client:     client,
		engine:     engine,
		tracker:    tracker,
		credential: credential,
		locks:      newAccountLocks(),
	}
}

// BeginCursorSync starts an incremental sync as a background task and
// returns its session ID immediately. The per-account advisory lock is taken
// before dispatch, so a second begin for the same account fails fast with
// ErrSyncInFlight. The returned channel reports the task's terminal error
// (nil on success) so failures stay observable.
func (o *Orchestrator) BeginCursorSync(userID, accountID int64) (string, <-chan error, error) {
	return o.begin(userID, accountID, func(ctx context.Context, sessionID string) error {
		return o.cursorSync(ctx, sessionID, userID, accountID)
	})
}

// BeginBulkSync starts a date-range backfill as a background task. Dates are
// in domain.DateFormat, inclusive.
func (o *Orchestrator) BeginBulkSync(userID, accountID int64, startDate, endDate string) (string, <-chan error, error) {
	return o.begin(userID, accountID, func(ctx context.Context, sessionID string) error {
		return o.bulkSync(ctx, sessionID, userID, accountID, startDate, endDate)
	})
}

func (o *Orchestrator) begin(userID, accountID int64, run func(ctx context.Context, sessionID string) error) (string, <-chan error, error) {
	if !o.locks.tryAcquire(userID, accountID) {
		return "", nil, ErrSyncInFlight
	}

	sessionID := uuid.New().String()
	o.tracker.Set(sessionID, 0)
	done := make(chan error, 1)

	go func() {
		// Detached from the request context: closing the progress stream
		// or the triggering request must not cancel the sync.
		ctx := context.Background()
		defer o.locks.release(userID, accountID)

		err := run(ctx, sessionID)
		// Terminal progress is always 100; errors surface through the
		// result channel, not the percentage.
		o.tracker.Set(sessionID, progress.Complete)
		if err != nil {
			log.Printf("ERROR: Sync session %s for account %d failed: %v", sessionID, accountID, err)
		}
		done <- err
	}()

	return sessionID, done, nil
}

// cursorSync pulls delta pages from the provider until it reports no more,
// accumulates the full added/modified/removed sets, reconciles them, and
// only then persists the final cursor. Cursor advancement and reconciliation
// success are coupled: a failure anywhere leaves the stored cursor where the
// last successful sync put it.
func (o *Orchestrator) cursorSync(ctx context.Context, sessionID string, userID, accountID int64) error {
	account, err := o.store.GetAccount(ctx, userID, accountID)
	if err != nil {
		return fmt.Errorf("sync target account %d: %w", accountID, err)
	}
	credential := o.credential(userID, account.ExternalItemID)
	if credential == "" {
		log.Printf("INFO: No access credential for account %d, skipping sync", accountID)
		return nil
	}

	batch := &reconcile.Batch{ItemID: account.ExternalItemID}
	cursor := account.Cursor
	for {
		delta, err := o.client.FetchIncremental(ctx, credential, cursor)
		if err != nil {
			return fmt.Errorf("incremental fetch for account %d: %w", accountID, err)
		}
		batch.Added = append(batch.Added, delta.Added...)
		batch.Modified = append(batch.Modified, delta.Modified...)
		batch.Removed = append(batch.Removed, delta.Removed...)
		batch.Accounts = append(batch.Accounts, delta.Accounts...)
		cursor = delta.NextCursor
		if !delta.HasMore {
			break
		}
	}

	result, err := o.engine.Apply(ctx, userID, batch, func(percent float64) {
		o.tracker.Set(sessionID, percent)
	})
	if err != nil {
		return fmt.Errorf("reconciliation for account %d: %w", accountID, err)
	}

	if cursor != account.Cursor {
		if err := o.store.UpdateAccountCursor(ctx, userID, accountID, cursor); err != nil {
			return fmt.Errorf("cursor advance for account %d: %w", accountID, err)
		}
	}

	log.Printf("INFO: Sync session %s account %d: %d inserted, %d settled, %d modified, %d deleted, %d duplicates skipped",
		sessionID, accountID, result.Inserted, result.Updated, result.Modified, result.Deleted, result.Skipped)
	return nil
}

// bulkSync pages through an explicit date window by numeric offset. The
// provider reports no removals for range fetches, so the batch feeds only
// the added path; the duplicate guard makes re-fetching an already-synced
// window a no-op.
func (o *Orchestrator) bulkSync(ctx context.Context, sessionID string, userID, accountID int64, startDate, endDate string) error {
	account, err := o.store.GetAccount(ctx, userID, accountID)
	if err != nil {
		return fmt.Errorf("sync target account %d: %w", accountID, err)
	}
	credential := o.credential(userID, account.ExternalItemID)
	if credential == "" {
		log.Printf("INFO: No access credential for account %d, skipping bulk sync", accountID)
		return nil
	}

	batch := &reconcile.Batch{ItemID: account.ExternalItemID}
	offset := 0
	for {
		page, err := o.client.FetchRange(ctx, credential, startDate, endDate, offset)
		if err != nil {
			return fmt.Errorf("range fetch for account %d at offset %d: %w", accountID, offset, err)
		}
		batch.Added = append(batch.Added, page.Transactions...)
		batch.Accounts = append(batch.Accounts, page.Accounts...)
		offset += len(page.Transactions)
		if len(page.Transactions) == 0 || offset >= page.TotalCount {
			break
		}
	}

	result, err := o.engine.Apply(ctx, userID, batch, func(percent float64) {
		o.tracker.Set(sessionID, percent)
	})
	if err != nil {
		return fmt.Errorf("reconciliation for account %d: %w", accountID, err)
	}

	log.Printf("INFO: Bulk sync session %s account %d (%s..%s): %d inserted, %d duplicates skipped",
		sessionID, accountID, startDate, endDate, result.Inserted, result.Skipped)
	return nil
}
