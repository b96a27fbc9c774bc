package csvdialects

import (
	"context"
	"io"
	"log"
	"strings"

	"github.com/rumor-ml/commons.systems/envelopes/internal/domain"
)

// VenmoParser handles Venmo statement exports, which are tab-separated
// despite the .csv extension Venmo gives them.
//
// Layout: ID\tDatetime\tType\tStatus\tNote\tFrom\tTo\tAmount
// The note is the natural description; when it is blank the counterparty
// fills in, picked by flow direction. Amounts arrive as "+ $12.00" or
// "- $12.00".
type VenmoParser struct{}

// NewVenmoParser returns the Venmo TSV dialect.
func NewVenmoParser() *VenmoParser {
	return &VenmoParser{}
}

func (p *VenmoParser) Name() string {
	return "venmo"
}

func (p *VenmoParser) CanParse(filename string, header []byte) bool {
	if fileHasPrefix(filename, "venmo") {
		return true
	}
	line := headerLine(header)
	return strings.Contains(line, "\t") && strings.Contains(line, "datetime")
}

func (p *VenmoParser) Parse(ctx context.Context, r io.Reader) ([]*domain.RawTransaction, error) {
	records, err := readRecords(r, '\t')
	if err != nil {
		return nil, err
	}

	var out []*domain.RawTransaction
	for i, record := range records {
		if i == 0 || len(record) < 8 {
			continue
		}
		date, ok := parseDate(record[1], "2006-01-02T15:04:05", domain.DateFormat)
		if !ok {
			log.Printf("WARN: Venmo row %d has unparseable datetime %q, skipping", i+1, record[1])
			continue
		}
		amount, ok := parseAmount(record[7])
		if !ok {
			log.Printf("WARN: Venmo row %d has unparseable amount %q, skipping", i+1, record[7])
			continue
		}

		description := strings.TrimSpace(record[4])
		if description == "" {
			if amount.IsNegative() {
				description = strings.TrimSpace(record[6])
			} else {
				description = strings.TrimSpace(record[5])
			}
		}

		raw, ok := newRaw(date, amount, description)
		if !ok {
			continue
		}
		raw.SetRefNumber(strings.TrimSpace(record[0]))
		out = append(out, raw)
	}
	return out, nil
}
