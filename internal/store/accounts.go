package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rumor-ml/commons.systems/envelopes/internal/domain"
)

const accountColumns = `id, user_id, name, institution, external_item_id, external_account_id, cursor, linked, active`

func scanAccount(row interface{ Scan(...any) error }) (*domain.Account, error) {
	var a domain.Account
	err := row.Scan(&a.ID, &a.UserID, &a.Name, &a.Institution, &a.ExternalItemID,
		&a.ExternalAccountID, &a.Cursor, &a.Linked, &a.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}
	return &a, nil
}

// CreateAccount inserts a validated account and fills in its generated ID.
func (d *queries) CreateAccount(ctx context.Context, a *domain.Account) error {
	if err := a.Validate(); err != nil {
		return fmt.Errorf("invalid account: %w", err)
	}
	res, err := d.q.ExecContext(ctx, `
		INSERT INTO accounts (user_id, name, institution, external_item_id, external_account_id, cursor, linked, active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.UserID, a.Name, a.Institution, a.ExternalItemID, a.ExternalAccountID, a.Cursor, a.Linked, a.Active)
	if err != nil {
		return fmt.Errorf("failed to create account %q: %w", a.Name, err)
	}
	a.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read account ID: %w", err)
	}
	return nil
}

// GetAccount fetches one account by ID within the user scope.
func (d *queries) GetAccount(ctx context.Context, userID, id int64) (*domain.Account, error) {
	row := d.q.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE user_id = ? AND id = ?`, userID, id)
	return scanAccount(row)
}

// FindAccountByExternalID locates a linked account by its provider-side
// account identifier.
func (d *queries) FindAccountByExternalID(ctx context.Context, userID int64, externalID string) (*domain.Account, error) {
	row := d.q.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE user_id = ? AND external_account_id = ? AND active = 1`,
		userID, externalID)
	return scanAccount(row)
}

// FindAccountByName locates an account by its display name. Used by file
// imports, which resolve accounts by free-text label.
func (d *queries) FindAccountByName(ctx context.Context, userID int64, name string) (*domain.Account, error) {
	row := d.q.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE user_id = ? AND name = ? AND active = 1`,
		userID, name)
	return scanAccount(row)
}

// ListAccounts returns all active accounts for the user.
func (d *queries) ListAccounts(ctx context.Context, userID int64) ([]domain.Account, error) {
	rows, err := d.q.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE user_id = ? AND active = 1 ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

// UpdateAccountCursor persists the incremental sync cursor for an account.
func (d *queries) UpdateAccountCursor(ctx context.Context, userID, id int64, cursor string) error {
	res, err := d.q.ExecContext(ctx,
		`UPDATE accounts SET cursor = ? WHERE user_id = ? AND id = ?`, cursor, userID, id)
	if err != nil {
		return fmt.Errorf("failed to update account cursor: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UnlinkAccount soft-deletes a linked account: it is deactivated and its
// external identifiers and cursor are cleared. The row itself survives so
// existing transactions keep a valid account reference.
func (d *queries) UnlinkAccount(ctx context.Context, userID, id int64) error {
	res, err := d.q.ExecContext(ctx, `
		UPDATE accounts
		SET active = 0, linked = 0, external_item_id = '', external_account_id = '', cursor = ''
		WHERE user_id = ? AND id = ?`, userID, id)
	if err != nil {
		return fmt.Errorf("failed to unlink account: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
