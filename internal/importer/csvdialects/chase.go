package csvdialects

import (
	"context"
	"io"
	"log"
	"strings"

	"github.com/rumor-ml/commons.systems/envelopes/internal/domain"
)

// ChaseParser handles Chase checking CSV exports.
//
// Layout: Details,Posting Date,Description,Amount,Type,Balance,Check or Slip #
// Chase reports amounts unsigned on some export paths; rows whose Details
// column says DEBIT are negated so spending comes out negative like every
// other dialect.
type ChaseParser struct{}

// NewChaseParser returns the Chase CSV dialect.
func NewChaseParser() *ChaseParser {
	return &ChaseParser{}
}

func (p *ChaseParser) Name() string {
	return "chase"
}

func (p *ChaseParser) CanParse(filename string, header []byte) bool {
	if fileHasPrefix(filename, "chase") {
		return true
	}
	line := headerLine(header)
	return strings.HasPrefix(line, "details,posting date,description,amount")
}

func (p *ChaseParser) Parse(ctx context.Context, r io.Reader) ([]*domain.RawTransaction, error) {
	records, err := readRecords(r, ',')
	if err != nil {
		return nil, err
	}

	var out []*domain.RawTransaction
	for i, record := range records {
		if i == 0 || len(record) < 4 {
			continue
		}
		date, ok := parseDate(record[1], "01/02/2006", domain.DateFormat)
		if !ok {
			log.Printf("WARN: Chase row %d has unparseable date %q, skipping", i+1, record[1])
			continue
		}
		amount, ok := parseAmount(record[3])
		if !ok {
			log.Printf("WARN: Chase row %d has unparseable amount %q, skipping", i+1, record[3])
			continue
		}
		if strings.EqualFold(strings.TrimSpace(record[0]), "DEBIT") && amount.IsPositive() {
			amount = amount.Neg()
		}
		raw, ok := newRaw(date, amount, record[2])
		if !ok {
			continue
		}
		if len(record) > 6 {
			raw.SetRefNumber(strings.TrimSpace(record[6]))
		}
		out = append(out, raw)
	}
	return out, nil
}
