// Package importer normalizes heterogeneous bank export files into raw
// transactions and feeds them through the reconciliation engine's insert
// contract. Dialect detection happens once per file; after that the chosen
// parser is dispatched through a fixed interface.
package importer

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rumor-ml/commons.systems/envelopes/internal/domain"
)

// Parser is the strategy interface for one file dialect.
type Parser interface {
	// Name returns the dialect identifier (e.g. "ofx1", "csv-chase").
	Name() string

	// CanParse reports whether this dialect handles the file, judged by
	// filename and the first bytes of content.
	CanParse(filename string, header []byte) bool

	// Parse extracts raw transactions. Parsers are tolerant: a malformed
	// row, unparseable date, or empty amount skips that row and never
	// fails the file.
	Parse(ctx context.Context, r io.Reader) ([]*domain.RawTransaction, error)
}

// Registry holds the registered dialect parsers.
type Registry struct {
	parsers []Parser
}

// NewRegistry creates an empty registry. Use Register to add dialects;
// Builtin returns a registry with every built-in dialect.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a dialect parser.
func (r *Registry) Register(p Parser) {
	r.parsers = append(r.parsers, p)
}

// Resolve picks the dialect for a file, once, before any row is parsed.
// A non-empty hint selects by name; otherwise every parser's CanParse is
// tried against the filename and the first header bytes.
func (r *Registry) Resolve(filename string, header []byte, hint string) (Parser, error) {
	if hint != "" {
		for _, p := range r.parsers {
			if strings.EqualFold(p.Name(), hint) {
				return p, nil
			}
		}
		return nil, fmt.Errorf("unknown dialect %q (known: %s)", hint, strings.Join(r.Names(), ", "))
	}
	for _, p := range r.parsers {
		if p.CanParse(filename, header) {
			return p, nil
		}
	}
	return nil, fmt.Errorf("no dialect recognizes file %q", filename)
}

// Names returns the registered dialect names.
func (r *Registry) Names() []string {
	names := make([]string, len(r.parsers))
	for i, p := range r.parsers {
		names[i] = p.Name()
	}
	return names
}

// headerBytes is how much of the file Resolve inspects. Enough for magic
// markers and a header row in every supported format.
const headerBytes = 512

// Header returns the detection window for a file's content.
func Header(data []byte) []byte {
	if len(data) > headerBytes {
		return data[:headerBytes]
	}
	return data
}
