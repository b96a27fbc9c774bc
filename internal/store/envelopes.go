package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/rumor-ml/commons.systems/envelopes/internal/domain"
)

const envelopeColumns = `id, user_id, category_id, name, balance, active`

func scanEnvelope(row interface{ Scan(...any) error }) (*domain.Envelope, error) {
	var e domain.Envelope
	var balance string
	err := row.Scan(&e.ID, &e.UserID, &e.CategoryID, &e.Name, &balance, &e.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan envelope: %w", err)
	}
	e.Balance, err = decimal.NewFromString(balance)
	if err != nil {
		return nil, fmt.Errorf("corrupt balance %q on envelope %d: %w", balance, e.ID, err)
	}
	return &e, nil
}

// CreateEnvelope inserts a validated envelope and fills in its generated ID.
func (d *queries) CreateEnvelope(ctx context.Context, e *domain.Envelope) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("invalid envelope: %w", err)
	}
	res, err := d.q.ExecContext(ctx, `
		INSERT INTO envelopes (user_id, category_id, name, balance, active)
		VALUES (?, ?, ?, ?, ?)`,
		e.UserID, e.CategoryID, e.Name, e.Balance.String(), e.Active)
	if err != nil {
		return fmt.Errorf("failed to create envelope %q: %w", e.Name, err)
	}
	e.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read envelope ID: %w", err)
	}
	return nil
}

// GetEnvelope fetches one envelope by ID within the user scope.
func (d *queries) GetEnvelope(ctx context.Context, userID, id int64) (*domain.Envelope, error) {
	row := d.q.QueryRowContext(ctx,
		`SELECT `+envelopeColumns+` FROM envelopes WHERE user_id = ? AND id = ?`, userID, id)
	return scanEnvelope(row)
}

// ListEnvelopes returns all active envelopes for the user.
func (d *queries) ListEnvelopes(ctx context.Context, userID int64) ([]domain.Envelope, error) {
	rows, err := d.q.QueryContext(ctx,
		`SELECT `+envelopeColumns+` FROM envelopes WHERE user_id = ? AND active = 1 ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list envelopes: %w", err)
	}
	defer rows.Close()

	var envelopes []domain.Envelope
	for rows.Next() {
		e, err := scanEnvelope(rows)
		if err != nil {
			return nil, err
		}
		envelopes = append(envelopes, *e)
	}
	return envelopes, rows.Err()
}

// AddToBalance adds delta to the stored envelope balance. Callers mutating a
// transaction row alongside the balance must invoke this inside WithTx; the
// decimal math happens in Go because SQLite arithmetic on TEXT amounts would
// go through floats.
func (d *queries) AddToBalance(ctx context.Context, userID, envelopeID int64, delta decimal.Decimal) error {
	var balance string
	err := d.q.QueryRowContext(ctx,
		`SELECT balance FROM envelopes WHERE user_id = ? AND id = ?`, userID, envelopeID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read balance for envelope %d: %w", envelopeID, err)
	}
	current, err := decimal.NewFromString(balance)
	if err != nil {
		return fmt.Errorf("corrupt balance %q on envelope %d: %w", balance, envelopeID, err)
	}
	next := current.Add(delta)
	if _, err := d.q.ExecContext(ctx,
		`UPDATE envelopes SET balance = ? WHERE user_id = ? AND id = ?`,
		next.String(), userID, envelopeID); err != nil {
		return fmt.Errorf("failed to write balance for envelope %d: %w", envelopeID, err)
	}
	return nil
}
