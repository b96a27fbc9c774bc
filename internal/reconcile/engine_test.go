package reconcile

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rumor-ml/commons.systems/envelopes/internal/domain"
	"github.com/rumor-ml/commons.systems/envelopes/internal/ledger"
	"github.com/rumor-ml/commons.systems/envelopes/internal/provider"
	"github.com/rumor-ml/commons.systems/envelopes/internal/store"
)

type fixture struct {
	store  *store.Store
	engine *Engine
	coffee int64 // envelope bound to the COFFEE keyword
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()

	coffee := &domain.Envelope{UserID: 1, Name: "coffee", Active: true}
	require.NoError(t, s.CreateEnvelope(ctx, coffee))
	require.NoError(t, s.SaveKeyword(ctx, &domain.Keyword{
		UserID: 1, Word: "COFFEE", EnvelopeID: coffee.ID,
	}))

	return &fixture{store: s, engine: New(s), coffee: coffee.ID}
}

func rawTxn(t *testing.T, date, amount, description, ref string) *domain.RawTransaction {
	t.Helper()
	r, err := domain.NewRawTransaction(date, decimal.RequireFromString(amount), description)
	require.NoError(t, err)
	r.SetExternalAccountID("ext-1")
	r.SetRefNumber(ref)
	return r
}

func rawAcct(t *testing.T) domain.RawAccount {
	t.Helper()
	a, err := domain.NewRawAccount("ext-1", "Checking", "1234", "chase")
	require.NoError(t, err)
	return *a
}

func (f *fixture) balance(t *testing.T, envelopeID int64) decimal.Decimal {
	t.Helper()
	e, err := f.store.GetEnvelope(context.Background(), 1, envelopeID)
	require.NoError(t, err)
	return e.Balance
}

func TestApplyAddedCreatesAccountCategorizesAndContributes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	batch := &Batch{
		ItemID:   "item-1",
		Accounts: []domain.RawAccount{rawAcct(t)},
		Added: []*domain.RawTransaction{
			rawTxn(t, "2026-03-01", "-42.00", "COFFEE SHOP", "ref-1"),
			rawTxn(t, "2026-03-01", "-9.99", "UNKNOWN VENDOR", "ref-2"),
		},
	}

	var percents []float64
	result, err := f.engine.Apply(ctx, 1, batch, func(p float64) { percents = append(percents, p) })
	require.NoError(t, err)
	assert.Equal(t, 2, result.Inserted)

	account, err := f.store.FindAccountByExternalID(ctx, 1, "ext-1")
	require.NoError(t, err, "account auto-created from batch metadata")
	assert.Equal(t, "chase-Checking-1234", account.Name)
	assert.True(t, account.Linked)

	assert.True(t, f.balance(t, f.coffee).Equal(decimal.RequireFromString("-42.00")),
		"categorized row contributes; unmatched row stays unassigned")

	rows, err := f.store.ListTransactionsByAccountDate(ctx, 1, account.ID, "2026-03-01")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	require.NotEmpty(t, percents)
	assert.Equal(t, float64(100), percents[len(percents)-1], "progress ends at 100")
}

func TestApplyIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	batch := &Batch{
		ItemID:   "item-1",
		Accounts: []domain.RawAccount{rawAcct(t)},
		Added:    []*domain.RawTransaction{rawTxn(t, "2026-03-01", "-42.00", "COFFEE SHOP", "ref-1")},
	}

	_, err := f.engine.Apply(ctx, 1, batch, nil)
	require.NoError(t, err)
	result, err := f.engine.Apply(ctx, 1, batch, nil)
	require.NoError(t, err)

	assert.Equal(t, 0, result.Inserted)
	assert.Equal(t, 1, result.Skipped)
	assert.True(t, f.balance(t, f.coffee).Equal(decimal.RequireFromString("-42.00")),
		"replaying a batch must not double-count the balance")
}

func TestApplyRemoved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.Apply(ctx, 1, &Batch{
		ItemID:   "item-1",
		Accounts: []domain.RawAccount{rawAcct(t)},
		Added:    []*domain.RawTransaction{rawTxn(t, "2026-03-01", "-42.00", "COFFEE SHOP", "ref-1")},
	}, nil)
	require.NoError(t, err)

	result, err := f.engine.Apply(ctx, 1, &Batch{
		ItemID:   "item-1",
		Accounts: []domain.RawAccount{rawAcct(t)},
		Removed:  []provider.RemovedTransaction{{ExternalAccountID: "ext-1", RefNumber: "ref-1"}},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Deleted)
	assert.True(t, f.balance(t, f.coffee).IsZero(), "removal reverses the contribution")

	// Removing an unknown ref is a logged no-op, not an error.
	result, err = f.engine.Apply(ctx, 1, &Batch{
		ItemID:   "item-1",
		Accounts: []domain.RawAccount{rawAcct(t)},
		Removed:  []provider.RemovedTransaction{{ExternalAccountID: "ext-1", RefNumber: "ref-gone"}},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Deleted)
}

func TestApplyPendingSettlesInPlace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Day one: the pending form arrives and gets categorized.
	_, err := f.engine.Apply(ctx, 1, &Batch{
		ItemID:   "item-1",
		Accounts: []domain.RawAccount{rawAcct(t)},
		Added:    []*domain.RawTransaction{rawTxn(t, "2026-03-01", "-42.00", "COFFEE SHOP", "pend-1")},
	}, nil)
	require.NoError(t, err)

	account, err := f.store.FindAccountByExternalID(ctx, 1, "ext-1")
	require.NoError(t, err)
	pending, err := f.store.FindTransactionByRef(ctx, 1, account.ID, "pend-1")
	require.NoError(t, err)

	// The user moves it by hand; the settled form must keep that choice.
	dining := &domain.Envelope{UserID: 1, Name: "dining", Active: true}
	require.NoError(t, f.store.CreateEnvelope(ctx, dining))
	require.NoError(t, ledger.New(f.store).Reassign(ctx, 1, pending.ID, dining.ID))

	// Day two: the provider removes the pending form and adds the posted
	// one, linked by the pending reference, with a corrected amount.
	posted := rawTxn(t, "2026-03-02", "-43.10", "COFFEE SHOP #42", "post-1")
	posted.SetPendingRef("pend-1")
	result, err := f.engine.Apply(ctx, 1, &Batch{
		ItemID:   "item-1",
		Accounts: []domain.RawAccount{rawAcct(t)},
		Added:    []*domain.RawTransaction{posted},
		Removed:  []provider.RemovedTransaction{{ExternalAccountID: "ext-1", RefNumber: "pend-1"}},
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Updated, "pending match settles in place")
	assert.Equal(t, 0, result.Inserted)
	assert.Equal(t, 0, result.Deleted, "the matched removal is consumed, not re-deleted")

	settled, err := f.store.GetTransaction(ctx, 1, pending.ID)
	require.NoError(t, err, "row identity survives settlement")
	assert.Equal(t, "post-1", settled.RefNumber)
	assert.Equal(t, "2026-03-02", settled.Date)
	assert.Equal(t, "COFFEE SHOP #42", settled.Description)
	assert.Equal(t, dining.ID, settled.EnvelopeID, "manual envelope choice survives settlement")

	assert.True(t, f.balance(t, dining.ID).Equal(decimal.RequireFromString("-43.10")),
		"balance reflects the corrected posted amount exactly once")
	assert.True(t, f.balance(t, f.coffee).IsZero())
}

func TestApplyPendingFallsBackToInsertWhenRowMissing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	posted := rawTxn(t, "2026-03-02", "-43.10", "COFFEE SHOP #42", "post-1")
	posted.SetPendingRef("pend-never-stored")
	result, err := f.engine.Apply(ctx, 1, &Batch{
		ItemID:   "item-1",
		Accounts: []domain.RawAccount{rawAcct(t)},
		Added:    []*domain.RawTransaction{posted},
		Removed:  []provider.RemovedTransaction{{ExternalAccountID: "ext-1", RefNumber: "pend-never-stored"}},
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Inserted, "missing pending row degrades to a plain insert")
	assert.Equal(t, 0, result.Updated)
	assert.True(t, f.balance(t, f.coffee).Equal(decimal.RequireFromString("-43.10")))
}

func TestApplyModifiedReinserts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.Apply(ctx, 1, &Batch{
		ItemID:   "item-1",
		Accounts: []domain.RawAccount{rawAcct(t)},
		Added:    []*domain.RawTransaction{rawTxn(t, "2026-03-01", "-42.00", "UNKNOWN VENDOR", "ref-1")},
	}, nil)
	require.NoError(t, err)

	// The provider amends the description; re-insertion recategorizes it
	// against current rules.
	result, err := f.engine.Apply(ctx, 1, &Batch{
		ItemID:   "item-1",
		Accounts: []domain.RawAccount{rawAcct(t)},
		Modified: []*domain.RawTransaction{rawTxn(t, "2026-03-01", "-42.00", "COFFEE SHOP", "ref-1")},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Modified, "re-inserts count as modifications, not settlements")
	assert.Equal(t, 0, result.Updated)

	account, err := f.store.FindAccountByExternalID(ctx, 1, "ext-1")
	require.NoError(t, err)
	row, err := f.store.FindTransactionByRef(ctx, 1, account.ID, "ref-1")
	require.NoError(t, err)
	assert.Equal(t, "COFFEE SHOP", row.Description)
	assert.Equal(t, f.coffee, row.EnvelopeID)
	assert.True(t, f.balance(t, f.coffee).Equal(decimal.RequireFromString("-42.00")))
}

func TestApplyEmptyBatchReportsComplete(t *testing.T) {
	f := newFixture(t)

	var percents []float64
	result, err := f.engine.Apply(context.Background(), 1, &Batch{}, func(p float64) { percents = append(percents, p) })
	require.NoError(t, err)
	assert.Equal(t, &Result{}, result)
	assert.Equal(t, []float64{100}, percents)
}

func TestSessionInsertResolvesLabelAccounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.engine.NewSession(ctx, 1)
	require.NoError(t, err)

	cand, err := domain.NewRawTransaction("2026-03-01", decimal.RequireFromString("-42.00"), "COFFEE SHOP")
	require.NoError(t, err)
	cand.SetAccountLabel("chase-checking")

	inserted, err := session.Insert(ctx, cand)
	require.NoError(t, err)
	assert.True(t, inserted)

	account, err := f.store.FindAccountByName(ctx, 1, "chase-checking")
	require.NoError(t, err, "label accounts are created on first use")
	assert.False(t, account.Linked)

	// Same row again: suppressed by the duplicate guard.
	again, err := domain.NewRawTransaction("2026-03-01", decimal.RequireFromString("-42.00"), "COFFEE SHOP")
	require.NoError(t, err)
	again.SetAccountLabel("chase-checking")
	inserted, err = session.Insert(ctx, again)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.True(t, f.balance(t, f.coffee).Equal(decimal.RequireFromString("-42.00")))
}
