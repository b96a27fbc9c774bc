// Package rules maps transaction descriptions to envelopes via learned
// keyword rules. Rules are stored per user; the engine loads them once per
// reconciliation batch and matches in memory so a batch of hundreds of
// transactions costs one query.
package rules

import (
	"context"
	"log"
	"strings"

	"github.com/rumor-ml/commons.systems/envelopes/internal/domain"
)

// Queries is the slice of store methods the engine needs. Both *store.Store
// and *store.Tx satisfy it.
type Queries interface {
	ListKeywords(ctx context.Context, userID int64) ([]domain.Keyword, error)
	TouchKeyword(ctx context.Context, userID, id int64, date string) error
}

// Engine matches descriptions against one user's keyword rules.
//
// Matching is a case-sensitive substring test: a rule matches when the
// transaction description contains the rule's keyword. A rule scoped to a
// specific account matches only that account; an all-accounts rule matches
// regardless. When several rules match, an account-scoped rule beats an
// all-accounts rule, then the longest keyword wins, then the oldest rule.
// The save path keeps at most one rule per keyword, so ties beyond that
// cannot occur in practice.
type Engine struct {
	userID   int64
	keywords []domain.Keyword
}

// Load reads the user's keyword rules into a new engine.
func Load(ctx context.Context, q Queries, userID int64) (*Engine, error) {
	keywords, err := q.ListKeywords(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Engine{userID: userID, keywords: keywords}, nil
}

// Match returns the rule that wins for (account, description), or nil when
// no rule matches.
func (e *Engine) Match(accountID int64, description string) *domain.Keyword {
	var best *domain.Keyword
	for i := range e.keywords {
		k := &e.keywords[i]
		if k.AccountID != domain.AllAccounts && k.AccountID != accountID {
			continue
		}
		if !contains(description, k.Word) {
			continue
		}
		if best == nil || beats(k, best) {
			best = k
		}
	}
	return best
}

// Categorize resolves the envelope for (account, description) and records
// the rule usage. It returns domain.EnvelopeUnassigned when nothing matches.
// The last-used audit write must not block or fail categorization: a failure
// there is logged and swallowed.
func (e *Engine) Categorize(ctx context.Context, q Queries, accountID int64, description, date string) int64 {
	k := e.Match(accountID, description)
	if k == nil {
		return domain.EnvelopeUnassigned
	}
	if err := q.TouchKeyword(ctx, e.userID, k.ID, date); err != nil {
		log.Printf("WARN: Failed to record usage of keyword %q: %v", k.Word, err)
	}
	return k.EnvelopeID
}

// contains is the match direction: the description contains the keyword,
// never the reverse.
func contains(description, word string) bool {
	if word == "" {
		return false
	}
	return strings.Contains(description, word)
}

func beats(a, b *domain.Keyword) bool {
	aScoped := a.AccountID != domain.AllAccounts
	bScoped := b.AccountID != domain.AllAccounts
	if aScoped != bScoped {
		return aScoped
	}
	if len(a.Word) != len(b.Word) {
		return len(a.Word) > len(b.Word)
	}
	return a.ID < b.ID
}
