package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/rumor-ml/commons.systems/envelopes/internal/domain"
	"github.com/rumor-ml/commons.systems/envelopes/internal/store"
)

// accountResolver maps provider account identifiers and import labels to
// stored account IDs. Lookups are memoized for the life of one batch so a
// batch of hundreds of transactions costs one query per distinct account.
type accountResolver struct {
	userID int64
	itemID string                       // linked item the batch belongs to, empty for imports
	meta   map[string]domain.RawAccount // provider metadata keyed by external account ID
	cache  map[string]int64             // external account ID -> stored account ID
	labels map[string]int64             // import label -> stored account ID
}

func newAccountResolver(userID int64, itemID string, accounts []domain.RawAccount) *accountResolver {
	meta := make(map[string]domain.RawAccount, len(accounts))
	for _, a := range accounts {
		meta[a.ExternalAccountID()] = a
	}
	return &accountResolver{
		userID: userID,
		itemID: itemID,
		meta:   meta,
		cache:  make(map[string]int64),
		labels: make(map[string]int64),
	}
}

// resolve returns the stored account for a provider-side account ID,
// creating one from the batch's account metadata when no match exists. A
// created account inherits the linked item's institution and gets a
// generated institution-accountName[-mask] display name.
func (r *accountResolver) resolve(ctx context.Context, q *store.Tx, externalID string) (int64, error) {
	if externalID == "" {
		return 0, fmt.Errorf("transaction carries no external account ID")
	}
	if id, ok := r.cache[externalID]; ok {
		return id, nil
	}

	account, err := q.FindAccountByExternalID(ctx, r.userID, externalID)
	if err == nil {
		r.cache[externalID] = account.ID
		return account.ID, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return 0, err
	}

	meta, ok := r.meta[externalID]
	if !ok {
		return 0, fmt.Errorf("unknown account %s: not stored and not described by the sync batch", externalID)
	}
	created := &domain.Account{
		UserID:            r.userID,
		Name:              meta.DisplayName(),
		Institution:       meta.Institution(),
		ExternalItemID:    r.itemID,
		ExternalAccountID: externalID,
		Linked:            true,
		Active:            true,
	}
	if err := q.CreateAccount(ctx, created); err != nil {
		return 0, fmt.Errorf("failed to create account for %s: %w", externalID, err)
	}
	r.cache[externalID] = created.ID
	return created.ID, nil
}

// resolveLabel returns the stored account whose display name equals the
// free-text label, creating a manually-typed account when none exists. This
// is the flat-file import path.
func (r *accountResolver) resolveLabel(ctx context.Context, q *store.Tx, label string) (int64, error) {
	if label == "" {
		return 0, fmt.Errorf("import row carries no account label")
	}
	if id, ok := r.labels[label]; ok {
		return id, nil
	}

	account, err := q.FindAccountByName(ctx, r.userID, label)
	if err == nil {
		r.labels[label] = account.ID
		return account.ID, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return 0, err
	}

	created := &domain.Account{
		UserID: r.userID,
		Name:   label,
		Active: true,
	}
	if err := q.CreateAccount(ctx, created); err != nil {
		return 0, fmt.Errorf("failed to create account %q: %w", label, err)
	}
	r.labels[label] = created.ID
	return created.ID, nil
}
