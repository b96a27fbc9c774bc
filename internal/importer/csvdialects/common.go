// Package csvdialects parses the CSV/TSV export dialects of specific banks.
// Each dialect has its own column order, date format, and sign convention;
// all of them normalize into the same raw-transaction shape. Parsers are
// tolerant by contract: short or malformed trailing lines, unparseable
// dates, and empty amounts skip the row, never the file.
package csvdialects

import (
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rumor-ml/commons.systems/envelopes/internal/domain"
)

// readRecords reads every row with lenient CSV settings: lazy quotes for
// banks that half-escape embedded quotes, variable field counts so a short
// trailing line surfaces as a short record instead of an error.
func readRecords(r io.Reader, comma rune) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.Comma = comma
	reader.LazyQuotes = true
	// TrimLeadingSpace treats a tab delimiter as trimmable whitespace and
	// swallows empty TSV fields, shifting later columns left. Tab-delimited
	// dialects keep their fields intact and trim per-field instead.
	reader.TrimLeadingSpace = comma != '\t'
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read delimited content: %w", err)
	}
	return records, nil
}

// parseDate tries each layout in order, returning the canonical DateFormat
// form. ok is false when no layout matches.
func parseDate(s string, layouts ...string) (string, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(domain.DateFormat), true
		}
	}
	return "", false
}

// parseAmount parses a money string, tolerating currency symbols, thousands
// separators, a spaced sign ("- $5.00"), and parenthesized negatives. ok is
// false for empty or unparseable amounts.
func parseAmount(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, false
	}
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	s = strings.NewReplacer("$", "", ",", "", " ", "").Replace(s)
	if strings.HasPrefix(s, "+") {
		s = s[1:]
	}
	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	if negative {
		amount = amount.Neg()
	}
	return amount, true
}

// fileHasPrefix reports whether the file's base name starts with prefix,
// case-insensitively. Several banks name their exports this way.
func fileHasPrefix(filename, prefix string) bool {
	base := strings.ToLower(filepath.Base(filename))
	return strings.HasPrefix(base, prefix)
}

// headerLine returns the first line of the detection window, lowercased,
// for header-signature matching.
func headerLine(header []byte) string {
	line := string(header)
	if i := strings.IndexAny(line, "\r\n"); i >= 0 {
		line = line[:i]
	}
	return strings.ToLower(line)
}

// newRaw builds a raw transaction, reporting false for rows the domain
// constructor rejects (blank description after trimming, bad date).
func newRaw(date string, amount decimal.Decimal, description string) (*domain.RawTransaction, bool) {
	raw, err := domain.NewRawTransaction(date, amount, description)
	if err != nil {
		return nil, false
	}
	return raw, true
}
