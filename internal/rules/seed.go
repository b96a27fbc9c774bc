package rules

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rumor-ml/commons.systems/envelopes/internal/domain"
)

// SeedRule is one entry in a YAML keyword seed file. Envelope and Account
// are referenced by display name; Account is optional (empty means the rule
// applies to all accounts).
type SeedRule struct {
	Word     string `yaml:"word"`
	Envelope string `yaml:"envelope"`
	Account  string `yaml:"account"`
}

// SeedFile is the top-level YAML structure for keyword seeds.
type SeedFile struct {
	Rules []SeedRule `yaml:"rules"`
}

// SeedQueries is the slice of store methods seeding needs.
type SeedQueries interface {
	ListEnvelopes(ctx context.Context, userID int64) ([]domain.Envelope, error)
	FindAccountByName(ctx context.Context, userID int64, name string) (*domain.Account, error)
	SaveKeyword(ctx context.Context, k *domain.Keyword) error
}

// LoadSeedFile parses a YAML keyword seed file and saves every rule for the
// user, resolving envelope and account references by name. Saves are
// last-write-wins per keyword, matching the interactive save path.
func LoadSeedFile(ctx context.Context, q SeedQueries, userID int64, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read keyword seed file: %w", err)
	}
	return LoadSeed(ctx, q, userID, data)
}

// LoadSeed saves the rules in YAML data for the user. Returns the number of
// rules saved.
func LoadSeed(ctx context.Context, q SeedQueries, userID int64, data []byte) (int, error) {
	var seed SeedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return 0, fmt.Errorf("failed to parse keyword seed YAML (check syntax and field names): %w", err)
	}

	envelopes, err := q.ListEnvelopes(ctx, userID)
	if err != nil {
		return 0, err
	}
	byName := make(map[string]int64, len(envelopes))
	for _, e := range envelopes {
		byName[e.Name] = e.ID
	}

	saved := 0
	for i, r := range seed.Rules {
		word := strings.TrimSpace(r.Word)
		if word == "" {
			return saved, fmt.Errorf("seed rule %d: word cannot be empty", i)
		}
		envelopeID, ok := byName[r.Envelope]
		if !ok {
			return saved, fmt.Errorf("seed rule %d (%s): unknown envelope %q", i, word, r.Envelope)
		}
		accountID := domain.AllAccounts
		if r.Account != "" {
			account, err := q.FindAccountByName(ctx, userID, r.Account)
			if err != nil {
				return saved, fmt.Errorf("seed rule %d (%s): unknown account %q: %w", i, word, r.Account, err)
			}
			accountID = account.ID
		}
		k := &domain.Keyword{
			UserID:     userID,
			AccountID:  accountID,
			Word:       word,
			EnvelopeID: envelopeID,
		}
		if err := q.SaveKeyword(ctx, k); err != nil {
			return saved, fmt.Errorf("seed rule %d (%s): %w", i, word, err)
		}
		saved++
	}
	return saved, nil
}
