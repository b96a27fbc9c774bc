package sync

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rumor-ml/commons.systems/envelopes/internal/domain"
	"github.com/rumor-ml/commons.systems/envelopes/internal/progress"
	"github.com/rumor-ml/commons.systems/envelopes/internal/provider"
	"github.com/rumor-ml/commons.systems/envelopes/internal/reconcile"
	"github.com/rumor-ml/commons.systems/envelopes/internal/store"
)

// fakeClient serves scripted delta pages and range pages.
type fakeClient struct {
	deltas     []*provider.Delta
	deltaCalls int
	deltaErr   error

	pages      []*provider.RangePage
	rangeCalls int

	block chan struct{} // when set, FetchIncremental waits on it
}

func (c *fakeClient) FetchIncremental(ctx context.Context, credential, cursor string) (*provider.Delta, error) {
	if c.block != nil {
		<-c.block
	}
	if c.deltaErr != nil {
		return nil, c.deltaErr
	}
	if c.deltaCalls >= len(c.deltas) {
		return &provider.Delta{NextCursor: cursor}, nil
	}
	d := c.deltas[c.deltaCalls]
	c.deltaCalls++
	return d, nil
}

func (c *fakeClient) FetchRange(ctx context.Context, credential, start, end string, offset int) (*provider.RangePage, error) {
	if c.rangeCalls >= len(c.pages) {
		return &provider.RangePage{}, nil
	}
	p := c.pages[c.rangeCalls]
	c.rangeCalls++
	return p, nil
}

type fixture struct {
	store     *store.Store
	tracker   *progress.MemoryTracker
	accountID int64
}

func newFixture(t *testing.T, client provider.Client, credential string) (*fixture, *Orchestrator) {
	t.Helper()
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()

	account := &domain.Account{
		UserID: 1, Name: "chase-Checking-1234", Institution: "chase",
		ExternalItemID: "item-1", ExternalAccountID: "ext-1", Linked: true, Active: true,
	}
	require.NoError(t, s.CreateAccount(ctx, account))

	tracker := progress.NewMemoryTracker()
	orchestrator := New(s, client, reconcile.New(s), tracker,
		func(int64, string) string { return credential })
	return &fixture{store: s, tracker: tracker, accountID: account.ID}, orchestrator
}

func scriptedTxn(t *testing.T, amount, description, ref string) *domain.RawTransaction {
	t.Helper()
	raw, err := domain.NewRawTransaction("2026-03-01", decimal.RequireFromString(amount), description)
	require.NoError(t, err)
	raw.SetExternalAccountID("ext-1")
	raw.SetRefNumber(ref)
	return raw
}

func awaitDone(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("sync did not finish")
		return nil
	}
}

func TestCursorSyncAdvancesCursorAcrossPages(t *testing.T) {
	client := &fakeClient{deltas: []*provider.Delta{
		{
			Added:      []*domain.RawTransaction{scriptedTxn(t, "-42.00", "COFFEE SHOP", "ref-1")},
			NextCursor: "c1",
			HasMore:    true,
		},
		{
			Added:      []*domain.RawTransaction{scriptedTxn(t, "-9.99", "LUNCH SPOT", "ref-2")},
			NextCursor: "c2",
		},
	}}
	f, orchestrator := newFixture(t, client, "token")

	sessionID, done, err := orchestrator.BeginCursorSync(1, f.accountID)
	require.NoError(t, err)
	require.NoError(t, awaitDone(t, done))

	assert.Equal(t, progress.Complete, f.tracker.Get(sessionID))
	assert.Equal(t, 2, client.deltaCalls)

	account, err := f.store.GetAccount(context.Background(), 1, f.accountID)
	require.NoError(t, err)
	assert.Equal(t, "c2", account.Cursor, "cursor lands on the final page's cursor")

	count, err := f.store.CountTransactionsByAccount(context.Background(), 1, f.accountID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestCursorSyncKeepsCursorOnFetchFailure(t *testing.T) {
	client := &fakeClient{deltaErr: fmt.Errorf("upstream down")}
	f, orchestrator := newFixture(t, client, "token")

	sessionID, done, err := orchestrator.BeginCursorSync(1, f.accountID)
	require.NoError(t, err)
	require.Error(t, awaitDone(t, done))

	// Terminal progress is still 100 so watchers disconnect; the error
	// travels on the result channel.
	assert.Equal(t, progress.Complete, f.tracker.Get(sessionID))

	account, err := f.store.GetAccount(context.Background(), 1, f.accountID)
	require.NoError(t, err)
	assert.Empty(t, account.Cursor, "failed sync must not advance the cursor")
}

func TestCursorSyncWithoutCredentialIsNoOp(t *testing.T) {
	client := &fakeClient{deltas: []*provider.Delta{{NextCursor: "c1"}}}
	f, orchestrator := newFixture(t, client, "")

	_, done, err := orchestrator.BeginCursorSync(1, f.accountID)
	require.NoError(t, err)
	require.NoError(t, awaitDone(t, done))

	assert.Zero(t, client.deltaCalls, "no credential, no fetch")
	account, err := f.store.GetAccount(context.Background(), 1, f.accountID)
	require.NoError(t, err)
	assert.Empty(t, account.Cursor)
}

func TestBeginRejectsConcurrentSyncPerAccount(t *testing.T) {
	client := &fakeClient{block: make(chan struct{})}
	f, orchestrator := newFixture(t, client, "token")

	_, done, err := orchestrator.BeginCursorSync(1, f.accountID)
	require.NoError(t, err)

	_, _, err = orchestrator.BeginCursorSync(1, f.accountID)
	assert.ErrorIs(t, err, ErrSyncInFlight)

	close(client.block)
	require.NoError(t, awaitDone(t, done))

	// The lock is released on completion; a new sync may start.
	_, done, err = orchestrator.BeginCursorSync(1, f.accountID)
	require.NoError(t, err)
	awaitDone(t, done)
}

func TestBulkSyncPagesByOffset(t *testing.T) {
	client := &fakeClient{pages: []*provider.RangePage{
		{
			Transactions: []*domain.RawTransaction{
				scriptedTxn(t, "-42.00", "COFFEE SHOP", "ref-1"),
				scriptedTxn(t, "-9.99", "LUNCH SPOT", "ref-2"),
			},
			TotalCount: 3,
		},
		{
			Transactions: []*domain.RawTransaction{scriptedTxn(t, "-5.00", "BUS FARE", "ref-3")},
			TotalCount:   3,
		},
	}}
	f, orchestrator := newFixture(t, client, "token")

	_, done, err := orchestrator.BeginBulkSync(1, f.accountID, "2026-03-01", "2026-03-31")
	require.NoError(t, err)
	require.NoError(t, awaitDone(t, done))

	assert.Equal(t, 2, client.rangeCalls)
	count, err := f.store.CountTransactionsByAccount(context.Background(), 1, f.accountID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	account, err := f.store.GetAccount(context.Background(), 1, f.accountID)
	require.NoError(t, err)
	assert.Empty(t, account.Cursor, "bulk sync never touches the cursor")
}

func TestBulkSyncIsIdempotent(t *testing.T) {
	page := &provider.RangePage{
		Transactions: []*domain.RawTransaction{scriptedTxn(t, "-42.00", "COFFEE SHOP", "ref-1")},
		TotalCount:   1,
	}
	client := &fakeClient{pages: []*provider.RangePage{page}}
	f, orchestrator := newFixture(t, client, "token")

	_, done, err := orchestrator.BeginBulkSync(1, f.accountID, "2026-03-01", "2026-03-31")
	require.NoError(t, err)
	require.NoError(t, awaitDone(t, done))

	client.rangeCalls = 0
	_, done, err = orchestrator.BeginBulkSync(1, f.accountID, "2026-03-01", "2026-03-31")
	require.NoError(t, err)
	require.NoError(t, awaitDone(t, done))

	count, err := f.store.CountTransactionsByAccount(context.Background(), 1, f.accountID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count, "re-fetching a synced window inserts nothing")
}
