// Package domain defines the ledger entities shared by every component:
// accounts, envelopes, transactions, keyword rules, and the raw ingestion
// shapes produced by the aggregation provider and the file importers.
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateFormat is the canonical date representation (ISO, YYYY-MM-DD) used for
// all transaction and rule dates. Dates are stored and compared as strings;
// the format sorts lexicographically in date order.
const DateFormat = "2006-01-02"

// EnvelopeUnassigned is the sentinel envelope ID for uncategorized
// transactions. Rows assigned to it never contribute to any balance.
const EnvelopeUnassigned int64 = 0

// AllAccounts is the sentinel account scope for keyword rules that match
// regardless of account.
const AllAccounts int64 = 0

// Account is an external-or-manual money source.
//
// Invariant: when Linked is true, (Institution, ExternalAccountID) is unique
// per user. A manually created account has empty external identifiers and
// Linked=false. Accounts are soft-deleted (deactivated, identifiers cleared)
// on unlink, never hard-deleted while transactions reference them.
type Account struct {
	ID                int64
	UserID            int64
	Name              string
	Institution       string
	ExternalItemID    string // empty for manual accounts
	ExternalAccountID string // empty for manual accounts
	Cursor            string // opaque incremental sync cursor, empty until first sync
	Linked            bool
	Active            bool
}

// Validate checks required fields on a stored account.
func (a *Account) Validate() error {
	if a.UserID == 0 {
		return fmt.Errorf("account user ID is required")
	}
	if a.Name == "" {
		return fmt.Errorf("account name is required")
	}
	if a.Linked && a.ExternalAccountID == "" {
		return fmt.Errorf("linked account requires an external account ID")
	}
	if !a.Linked && (a.ExternalAccountID != "" || a.ExternalItemID != "") {
		return fmt.Errorf("manual account must not carry external identifiers")
	}
	return nil
}

// Envelope is a budget bucket with a running balance.
//
// Invariant: Balance equals the sum of signed amounts of all visible,
// non-duplicate transactions assigned to it, plus direct adjustments and net
// transfers. The balance is maintained incrementally by the ledger; it is
// never recomputed from scratch.
type Envelope struct {
	ID         int64
	UserID     int64
	CategoryID int64
	Name       string
	Balance    decimal.Decimal
	Active     bool
}

// Validate checks required fields on a stored envelope.
func (e *Envelope) Validate() error {
	if e.UserID == 0 {
		return fmt.Errorf("envelope user ID is required")
	}
	if e.Name == "" {
		return fmt.Errorf("envelope name is required")
	}
	return nil
}

// Transaction is a single ledger entry.
//
// Invariant: exactly one row exists per (account, RefNumber) when RefNumber
// is non-empty. A row contributes its signed amount to its envelope's
// balance only while Visible && !Duplicate && EnvelopeID != EnvelopeUnassigned.
type Transaction struct {
	ID          int64
	UserID      int64
	EnvelopeID  int64 // EnvelopeUnassigned when uncategorized
	AccountID   int64
	Amount      decimal.Decimal
	Date        string // DateFormat
	Description string
	RefNumber   string // external reference number, empty for many file imports
	Budget      bool   // budget allocation line, not actual spend
	Duplicate   bool
	Visible     bool
	Split       bool
	OriginID    *int64 // for split parts: the transaction they were split from
}

// Contributes reports whether this row currently contributes its amount to
// its envelope's balance.
func (t *Transaction) Contributes() bool {
	return t.Visible && !t.Duplicate && t.EnvelopeID != EnvelopeUnassigned
}

// Validate checks required fields on a stored transaction.
func (t *Transaction) Validate() error {
	if t.UserID == 0 {
		return fmt.Errorf("transaction user ID is required")
	}
	if t.AccountID == 0 {
		return fmt.Errorf("transaction account ID is required")
	}
	if _, err := time.Parse(DateFormat, t.Date); err != nil {
		return fmt.Errorf("invalid transaction date %q (expected YYYY-MM-DD): %w", t.Date, err)
	}
	if t.Description == "" {
		return fmt.Errorf("transaction description is required")
	}
	return nil
}

// Keyword maps (account scope, keyword) to an envelope for auto-categorization.
//
// AccountID is AllAccounts for rules that match every account. Invariant: at
// most one rule exists per (user, keyword); saves replace rather than merge.
type Keyword struct {
	ID         int64
	UserID     int64
	AccountID  int64 // AllAccounts or a specific account
	Word       string
	EnvelopeID int64
	LastUsed   string // DateFormat date of last matching transaction, empty if never used
}

// Validate checks required fields on a stored keyword rule.
func (k *Keyword) Validate() error {
	if k.UserID == 0 {
		return fmt.Errorf("keyword user ID is required")
	}
	if strings.TrimSpace(k.Word) == "" {
		return fmt.Errorf("keyword cannot be empty")
	}
	if k.EnvelopeID == EnvelopeUnassigned {
		return fmt.Errorf("keyword must target a real envelope")
	}
	return nil
}

// RawTransaction is a normalized candidate transaction before insertion.
// The aggregation provider and every file importer produce this shape; the
// reconciliation engine consumes it through one narrow insert contract.
type RawTransaction struct {
	externalAccountID string // set by the provider; empty for file imports
	accountLabel      string // set by file imports; empty for provider rows
	amount            decimal.Decimal
	date              string
	description       string
	refNumber         string
	pendingRef        string // links a posted transaction to its earlier pending form
}

// NewRawTransaction creates a validated raw transaction. date must be in
// DateFormat; description must be non-empty after trimming.
func NewRawTransaction(date string, amount decimal.Decimal, description string) (*RawTransaction, error) {
	if _, err := time.Parse(DateFormat, date); err != nil {
		return nil, fmt.Errorf("invalid raw transaction date %q: %w", date, err)
	}
	description = strings.TrimSpace(description)
	if description == "" {
		return nil, fmt.Errorf("raw transaction description cannot be empty")
	}
	return &RawTransaction{
		date:        date,
		amount:      amount,
		description: description,
	}, nil
}

// ExternalAccountID returns the provider-side account identifier, empty for
// file imports.
func (r *RawTransaction) ExternalAccountID() string { return r.externalAccountID }

// AccountLabel returns the free-text account label for file imports, empty
// for provider rows.
func (r *RawTransaction) AccountLabel() string { return r.accountLabel }

// Amount returns the signed amount (positive inflow, negative outflow).
func (r *RawTransaction) Amount() decimal.Decimal { return r.amount }

// Date returns the transaction date in DateFormat.
func (r *RawTransaction) Date() string { return r.date }

// Description returns the trimmed free-text description.
func (r *RawTransaction) Description() string { return r.description }

// RefNumber returns the external reference number, possibly empty.
func (r *RawTransaction) RefNumber() string { return r.refNumber }

// PendingRef returns the pending-form reference for posted transactions,
// possibly empty.
func (r *RawTransaction) PendingRef() string { return r.pendingRef }

// SetExternalAccountID marks the row as provider-sourced.
func (r *RawTransaction) SetExternalAccountID(id string) { r.externalAccountID = id }

// SetAccountLabel marks the row as file-sourced.
func (r *RawTransaction) SetAccountLabel(label string) { r.accountLabel = label }

// SetRefNumber sets the external reference number.
func (r *RawTransaction) SetRefNumber(ref string) { r.refNumber = ref }

// SetPendingRef sets the pending-form reference.
func (r *RawTransaction) SetPendingRef(ref string) { r.pendingRef = ref }

// RawAccount is account metadata reported by the aggregation provider
// alongside a transaction delta.
type RawAccount struct {
	externalAccountID string
	name              string
	mask              string
	institution       string
}

// NewRawAccount creates a validated raw account.
func NewRawAccount(externalAccountID, name, mask, institution string) (*RawAccount, error) {
	if externalAccountID == "" {
		return nil, fmt.Errorf("external account ID cannot be empty")
	}
	if name == "" {
		return nil, fmt.Errorf("account name cannot be empty")
	}
	return &RawAccount{
		externalAccountID: externalAccountID,
		name:              name,
		mask:              mask,
		institution:       institution,
	}, nil
}

// ExternalAccountID returns the provider-side account identifier.
func (r *RawAccount) ExternalAccountID() string { return r.externalAccountID }

// Name returns the provider-reported account name.
func (r *RawAccount) Name() string { return r.name }

// Mask returns the trailing account-number mask, possibly empty.
func (r *RawAccount) Mask() string { return r.mask }

// Institution returns the institution name, possibly empty.
func (r *RawAccount) Institution() string { return r.institution }

// DisplayName builds the generated display name for an auto-created account:
// institution-accountName, with the mask appended when present.
func (r *RawAccount) DisplayName() string {
	name := fmt.Sprintf("%s-%s", r.institution, r.name)
	if r.mask != "" {
		name = fmt.Sprintf("%s-%s", name, r.mask)
	}
	return name
}
