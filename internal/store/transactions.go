package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/rumor-ml/commons.systems/envelopes/internal/domain"
)

const transactionColumns = `id, user_id, envelope_id, account_id, amount, date, description, ref_number, budget, duplicate, visible, split, origin_id`

func scanTransaction(row interface{ Scan(...any) error }) (*domain.Transaction, error) {
	var t domain.Transaction
	var amount string
	var origin sql.NullInt64
	err := row.Scan(&t.ID, &t.UserID, &t.EnvelopeID, &t.AccountID, &amount, &t.Date,
		&t.Description, &t.RefNumber, &t.Budget, &t.Duplicate, &t.Visible, &t.Split, &origin)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan transaction: %w", err)
	}
	t.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("corrupt amount %q on transaction %d: %w", amount, t.ID, err)
	}
	if origin.Valid {
		t.OriginID = &origin.Int64
	}
	return &t, nil
}

// InsertTransaction inserts a validated transaction row and fills in its
// generated ID. It does not touch envelope balances; that is the ledger's
// job, inside the same store transaction.
func (d *queries) InsertTransaction(ctx context.Context, t *domain.Transaction) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("invalid transaction: %w", err)
	}
	var origin sql.NullInt64
	if t.OriginID != nil {
		origin = sql.NullInt64{Int64: *t.OriginID, Valid: true}
	}
	res, err := d.q.ExecContext(ctx, `
		INSERT INTO transactions (user_id, envelope_id, account_id, amount, date, description, ref_number, budget, duplicate, visible, split, origin_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.UserID, t.EnvelopeID, t.AccountID, t.Amount.String(), t.Date, t.Description,
		t.RefNumber, t.Budget, t.Duplicate, t.Visible, t.Split, origin)
	if err != nil {
		return fmt.Errorf("failed to insert transaction %q: %w", t.Description, err)
	}
	t.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read transaction ID: %w", err)
	}
	return nil
}

// GetTransaction fetches one transaction by ID within the user scope.
func (d *queries) GetTransaction(ctx context.Context, userID, id int64) (*domain.Transaction, error) {
	row := d.q.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE user_id = ? AND id = ?`, userID, id)
	return scanTransaction(row)
}

// FindTransactionByRef locates the row for (account, reference number).
// Reference numbers are unique per account when present.
func (d *queries) FindTransactionByRef(ctx context.Context, userID, accountID int64, refNumber string) (*domain.Transaction, error) {
	if refNumber == "" {
		return nil, ErrNotFound
	}
	row := d.q.QueryRowContext(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE user_id = ? AND account_id = ? AND ref_number = ?`,
		userID, accountID, refNumber)
	return scanTransaction(row)
}

// ListTransactionsByAccountDate returns all rows for one account on one
// date. The duplicate detector inspects these for candidate matches.
func (d *queries) ListTransactionsByAccountDate(ctx context.Context, userID, accountID int64, date string) ([]domain.Transaction, error) {
	rows, err := d.q.QueryContext(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE user_id = ? AND account_id = ? AND date = ?`,
		userID, accountID, date)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions for account %d on %s: %w", accountID, date, err)
	}
	defer rows.Close()
	return collectTransactions(rows)
}

// ListTransactionsByEnvelope returns all rows assigned to an envelope.
func (d *queries) ListTransactionsByEnvelope(ctx context.Context, userID, envelopeID int64) ([]domain.Transaction, error) {
	rows, err := d.q.QueryContext(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE user_id = ? AND envelope_id = ? ORDER BY date, id`,
		userID, envelopeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions for envelope %d: %w", envelopeID, err)
	}
	defer rows.Close()
	return collectTransactions(rows)
}

func collectTransactions(rows *sql.Rows) ([]domain.Transaction, error) {
	var out []domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// UpdateTransactionPosted overwrites the fields that change when a pending
// transaction settles: reference number, amount, date, and description. The
// row's identifier and envelope assignment stay stable, preserving any
// manual categorization attached to the pending form.
func (d *queries) UpdateTransactionPosted(ctx context.Context, userID, id int64, refNumber string, amount decimal.Decimal, date, description string) error {
	res, err := d.q.ExecContext(ctx, `
		UPDATE transactions SET ref_number = ?, amount = ?, date = ?, description = ?
		WHERE user_id = ? AND id = ?`,
		refNumber, amount.String(), date, description, userID, id)
	if err != nil {
		return fmt.Errorf("failed to update posted transaction %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateTransactionEnvelope moves a row to a different envelope. Balance
// effects are the ledger's responsibility, inside the same store transaction.
func (d *queries) UpdateTransactionEnvelope(ctx context.Context, userID, id, envelopeID int64) error {
	res, err := d.q.ExecContext(ctx,
		`UPDATE transactions SET envelope_id = ? WHERE user_id = ? AND id = ?`,
		envelopeID, userID, id)
	if err != nil {
		return fmt.Errorf("failed to reassign transaction %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetTransactionFlags updates the duplicate/visible/split flags on a row.
func (d *queries) SetTransactionFlags(ctx context.Context, userID, id int64, duplicate, visible, split bool) error {
	res, err := d.q.ExecContext(ctx,
		`UPDATE transactions SET duplicate = ?, visible = ?, split = ? WHERE user_id = ? AND id = ?`,
		duplicate, visible, split, userID, id)
	if err != nil {
		return fmt.Errorf("failed to update flags on transaction %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteTransaction removes a row. Balance reversal is the ledger's
// responsibility, inside the same store transaction.
func (d *queries) DeleteTransaction(ctx context.Context, userID, id int64) error {
	res, err := d.q.ExecContext(ctx,
		`DELETE FROM transactions WHERE user_id = ? AND id = ?`, userID, id)
	if err != nil {
		return fmt.Errorf("failed to delete transaction %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountTransactionsByAccount reports how many rows reference an account.
// Used to guard against hard-deleting accounts that still have history.
func (d *queries) CountTransactionsByAccount(ctx context.Context, userID, accountID int64) (int64, error) {
	var n int64
	err := d.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions WHERE user_id = ? AND account_id = ?`,
		userID, accountID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count transactions for account %d: %w", accountID, err)
	}
	return n, nil
}
