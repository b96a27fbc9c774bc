package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rumor-ml/commons.systems/envelopes/internal/domain"
)

const keywordColumns = `id, user_id, account_id, word, envelope_id, last_used`

func scanKeyword(row interface{ Scan(...any) error }) (*domain.Keyword, error) {
	var k domain.Keyword
	err := row.Scan(&k.ID, &k.UserID, &k.AccountID, &k.Word, &k.EnvelopeID, &k.LastUsed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan keyword: %w", err)
	}
	return &k, nil
}

// SaveKeyword upserts a keyword rule. Saving a rule whose word already
// exists for the user replaces the old rule entirely (last-write-wins), so
// at most one rule can match a (account, description) pair per word.
func (d *queries) SaveKeyword(ctx context.Context, k *domain.Keyword) error {
	if err := k.Validate(); err != nil {
		return fmt.Errorf("invalid keyword: %w", err)
	}
	res, err := d.q.ExecContext(ctx, `
		INSERT INTO keywords (user_id, account_id, word, envelope_id, last_used)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, word) DO UPDATE SET
			account_id = excluded.account_id,
			envelope_id = excluded.envelope_id,
			last_used = excluded.last_used`,
		k.UserID, k.AccountID, k.Word, k.EnvelopeID, k.LastUsed)
	if err != nil {
		return fmt.Errorf("failed to save keyword %q: %w", k.Word, err)
	}
	if id, err := res.LastInsertId(); err == nil && id != 0 {
		k.ID = id
	}
	return nil
}

// ListKeywords returns all keyword rules for the user.
func (d *queries) ListKeywords(ctx context.Context, userID int64) ([]domain.Keyword, error) {
	rows, err := d.q.QueryContext(ctx,
		`SELECT `+keywordColumns+` FROM keywords WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list keywords: %w", err)
	}
	defer rows.Close()

	var keywords []domain.Keyword
	for rows.Next() {
		k, err := scanKeyword(rows)
		if err != nil {
			return nil, err
		}
		keywords = append(keywords, *k)
	}
	return keywords, rows.Err()
}

// TouchKeyword records the date a rule last matched a transaction. The
// last-used date drives surfacing of stale rules; a failed touch must never
// fail categorization, so callers log and continue on error.
func (d *queries) TouchKeyword(ctx context.Context, userID, id int64, date string) error {
	res, err := d.q.ExecContext(ctx,
		`UPDATE keywords SET last_used = ? WHERE user_id = ? AND id = ?`, date, userID, id)
	if err != nil {
		return fmt.Errorf("failed to touch keyword %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteKeyword removes a rule.
func (d *queries) DeleteKeyword(ctx context.Context, userID, id int64) error {
	res, err := d.q.ExecContext(ctx,
		`DELETE FROM keywords WHERE user_id = ? AND id = ?`, userID, id)
	if err != nil {
		return fmt.Errorf("failed to delete keyword %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
