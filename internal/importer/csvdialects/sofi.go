package csvdialects

import (
	"context"
	"io"
	"log"
	"strings"

	"github.com/rumor-ml/commons.systems/envelopes/internal/domain"
)

// SofiParser handles SoFi checking/savings CSV exports.
//
// Layout: Date,Description,Type,Amount,Current Balance
// Dates are already ISO (2006-01-02) and amounts are signed.
type SofiParser struct{}

// NewSofiParser returns the SoFi CSV dialect.
func NewSofiParser() *SofiParser {
	return &SofiParser{}
}

func (p *SofiParser) Name() string {
	return "sofi"
}

func (p *SofiParser) CanParse(filename string, header []byte) bool {
	if fileHasPrefix(filename, "sofi") {
		return true
	}
	line := headerLine(header)
	return strings.HasPrefix(line, "date,description,type,amount") &&
		strings.Contains(line, "balance")
}

func (p *SofiParser) Parse(ctx context.Context, r io.Reader) ([]*domain.RawTransaction, error) {
	records, err := readRecords(r, ',')
	if err != nil {
		return nil, err
	}

	var out []*domain.RawTransaction
	for i, record := range records {
		if i == 0 || len(record) < 4 {
			continue
		}
		date, ok := parseDate(record[0], domain.DateFormat)
		if !ok {
			log.Printf("WARN: SoFi row %d has unparseable date %q, skipping", i+1, record[0])
			continue
		}
		amount, ok := parseAmount(record[3])
		if !ok {
			log.Printf("WARN: SoFi row %d has unparseable amount %q, skipping", i+1, record[3])
			continue
		}
		raw, ok := newRaw(date, amount, record[1])
		if !ok {
			continue
		}
		out = append(out, raw)
	}
	return out, nil
}
