// Package provider defines the aggregation-service boundary: the upstream
// that reports bank transactions as added/modified/removed deltas behind an
// opaque cursor, or as offset-paginated date-range pages. The rest of the
// system consumes the Client interface; the HTTP implementation lives in
// client.go.
package provider

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/rumor-ml/commons.systems/envelopes/internal/domain"
)

// RemovedTransaction identifies a transaction the provider has withdrawn,
// usually a pending transaction that has since posted under a new reference.
type RemovedTransaction struct {
	ExternalAccountID string `json:"account_id"`
	RefNumber         string `json:"transaction_id"`
}

// Delta is one page of an incremental cursor fetch.
type Delta struct {
	Added      []*domain.RawTransaction
	Modified   []*domain.RawTransaction
	Removed    []RemovedTransaction
	Accounts   []domain.RawAccount
	NextCursor string
	HasMore    bool
}

// RangePage is one page of a date-range bulk fetch. Range fetches report no
// removals; they feed only the added path.
type RangePage struct {
	Accounts     []domain.RawAccount
	Transactions []*domain.RawTransaction
	TotalCount   int
}

// Client is the aggregation-service interface consumed by the sync
// orchestrators. credential is the access token for the linked item.
type Client interface {
	// FetchIncremental returns the next delta page after cursor. An empty
	// cursor starts from the beginning of the account's history.
	FetchIncremental(ctx context.Context, credential, cursor string) (*Delta, error)

	// FetchRange returns one page of transactions inside [start, end]
	// (DateFormat dates) beginning at offset.
	FetchRange(ctx context.Context, credential, start, end string, offset int) (*RangePage, error)
}

// wireTransaction is the provider's JSON transaction shape.
type wireTransaction struct {
	AccountID     string          `json:"account_id"`
	TransactionID string          `json:"transaction_id"`
	PendingID     string          `json:"pending_transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
	Date          string          `json:"date"`
	Name          string          `json:"name"`
}

// wireAccount is the provider's JSON account shape.
type wireAccount struct {
	AccountID   string `json:"account_id"`
	Name        string `json:"name"`
	Mask        string `json:"mask"`
	Institution string `json:"institution"`
}

func (w *wireTransaction) toRaw() (*domain.RawTransaction, error) {
	raw, err := domain.NewRawTransaction(w.Date, w.Amount, w.Name)
	if err != nil {
		return nil, fmt.Errorf("provider transaction %s: %w", w.TransactionID, err)
	}
	raw.SetExternalAccountID(w.AccountID)
	raw.SetRefNumber(w.TransactionID)
	raw.SetPendingRef(w.PendingID)
	return raw, nil
}

func (w *wireAccount) toRaw() (*domain.RawAccount, error) {
	return domain.NewRawAccount(w.AccountID, w.Name, w.Mask, w.Institution)
}

func convertTransactions(in []wireTransaction) ([]*domain.RawTransaction, error) {
	out := make([]*domain.RawTransaction, 0, len(in))
	for i := range in {
		raw, err := in[i].toRaw()
		if err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	return out, nil
}

func convertAccounts(in []wireAccount) ([]domain.RawAccount, error) {
	out := make([]domain.RawAccount, 0, len(in))
	for i := range in {
		raw, err := in[i].toRaw()
		if err != nil {
			return nil, err
		}
		out = append(out, *raw)
	}
	return out, nil
}
