package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestTransactionContributes(t *testing.T) {
	tests := []struct {
		name string
		txn  Transaction
		want bool
	}{
		{
			name: "visible categorized row contributes",
			txn:  Transaction{EnvelopeID: 3, Visible: true},
			want: true,
		},
		{
			name: "hidden row does not contribute",
			txn:  Transaction{EnvelopeID: 3, Visible: false},
			want: false,
		},
		{
			name: "duplicate row does not contribute",
			txn:  Transaction{EnvelopeID: 3, Visible: true, Duplicate: true},
			want: false,
		},
		{
			name: "unassigned row does not contribute",
			txn:  Transaction{EnvelopeID: EnvelopeUnassigned, Visible: true},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.txn.Contributes(); got != tt.want {
				t.Errorf("Contributes() = %v; want %v", got, tt.want)
			}
		})
	}
}

func TestAccountValidate(t *testing.T) {
	tests := []struct {
		name    string
		account Account
		wantErr bool
	}{
		{
			name:    "valid manual account",
			account: Account{UserID: 1, Name: "chase-checking"},
			wantErr: false,
		},
		{
			name: "valid linked account",
			account: Account{
				UserID: 1, Name: "plaid-chase-1234",
				ExternalItemID: "item-1", ExternalAccountID: "acc-1", Linked: true,
			},
			wantErr: false,
		},
		{
			name:    "missing user",
			account: Account{Name: "x"},
			wantErr: true,
		},
		{
			name:    "missing name",
			account: Account{UserID: 1},
			wantErr: true,
		},
		{
			name:    "linked without external ID",
			account: Account{UserID: 1, Name: "x", Linked: true},
			wantErr: true,
		},
		{
			name:    "manual with external ID",
			account: Account{UserID: 1, Name: "x", ExternalAccountID: "acc-1"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.account.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v; wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTransactionValidate(t *testing.T) {
	valid := Transaction{UserID: 1, AccountID: 2, Date: "2026-03-01", Description: "COFFEE SHOP"}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid transaction rejected: %v", err)
	}

	bad := valid
	bad.Date = "03/01/2026"
	if err := bad.Validate(); err == nil {
		t.Error("expected error for non-ISO date")
	}

	bad = valid
	bad.Description = ""
	if err := bad.Validate(); err == nil {
		t.Error("expected error for empty description")
	}
}

func TestKeywordValidate(t *testing.T) {
	valid := Keyword{UserID: 1, Word: "STARBUCKS", EnvelopeID: 5}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid keyword rejected: %v", err)
	}

	bad := valid
	bad.Word = "   "
	if err := bad.Validate(); err == nil {
		t.Error("expected error for blank keyword")
	}

	bad = valid
	bad.EnvelopeID = EnvelopeUnassigned
	if err := bad.Validate(); err == nil {
		t.Error("expected error for unassigned target envelope")
	}
}

func TestNewRawTransaction(t *testing.T) {
	raw, err := NewRawTransaction("2026-03-01", decimal.NewFromFloat(-42.00), "  COFFEE SHOP  ")
	if err != nil {
		t.Fatalf("NewRawTransaction: %v", err)
	}
	if raw.Description() != "COFFEE SHOP" {
		t.Errorf("description not trimmed: %q", raw.Description())
	}
	if !raw.Amount().Equal(decimal.NewFromFloat(-42.00)) {
		t.Errorf("amount = %s; want -42", raw.Amount())
	}

	if _, err := NewRawTransaction("bad-date", decimal.Zero, "x"); err == nil {
		t.Error("expected error for bad date")
	}
	if _, err := NewRawTransaction("2026-03-01", decimal.Zero, "   "); err == nil {
		t.Error("expected error for blank description")
	}
}

func TestRawAccountDisplayName(t *testing.T) {
	tests := []struct {
		name        string
		institution string
		account     string
		mask        string
		want        string
	}{
		{"with mask", "chase", "Checking", "1234", "chase-Checking-1234"},
		{"without mask", "ally", "Savings", "", "ally-Savings"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := NewRawAccount("ext-1", tt.account, tt.mask, tt.institution)
			if err != nil {
				t.Fatalf("NewRawAccount: %v", err)
			}
			if got := raw.DisplayName(); got != tt.want {
				t.Errorf("DisplayName() = %q; want %q", got, tt.want)
			}
		})
	}
}
