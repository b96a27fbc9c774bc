package csvdialects

import (
	"context"
	"io"
	"log"
	"strings"

	"github.com/rumor-ml/commons.systems/envelopes/internal/domain"
)

// PayPalParser handles PayPal activity CSV exports.
//
// Layout: Date,Time,TimeZone,Name,Type,Status,Currency,Amount,Receipt ID,Balance
// PayPal puts the counterparty in Name regardless of direction, so the
// description is built from Name with the flow direction prefixed: money in
// reads "From <name>", money out reads "To <name>". Rows that never settled
// (Status other than Completed) are dropped.
type PayPalParser struct{}

// NewPayPalParser returns the PayPal CSV dialect.
func NewPayPalParser() *PayPalParser {
	return &PayPalParser{}
}

func (p *PayPalParser) Name() string {
	return "paypal"
}

func (p *PayPalParser) CanParse(filename string, header []byte) bool {
	if fileHasPrefix(filename, "paypal") {
		return true
	}
	line := headerLine(header)
	return strings.Contains(line, "timezone") && strings.Contains(line, "currency") &&
		strings.Contains(line, "amount")
}

func (p *PayPalParser) Parse(ctx context.Context, r io.Reader) ([]*domain.RawTransaction, error) {
	records, err := readRecords(r, ',')
	if err != nil {
		return nil, err
	}

	var out []*domain.RawTransaction
	for i, record := range records {
		if i == 0 || len(record) < 8 {
			continue
		}
		status := strings.TrimSpace(record[5])
		if !strings.EqualFold(status, "Completed") {
			continue
		}
		date, ok := parseDate(record[0], "1/2/2006", "01/02/2006", domain.DateFormat)
		if !ok {
			log.Printf("WARN: PayPal row %d has unparseable date %q, skipping", i+1, record[0])
			continue
		}
		amount, ok := parseAmount(record[7])
		if !ok {
			log.Printf("WARN: PayPal row %d has unparseable amount %q, skipping", i+1, record[7])
			continue
		}

		name := strings.TrimSpace(record[3])
		description := name
		if name != "" {
			if amount.IsNegative() {
				description = "To " + name
			} else {
				description = "From " + name
			}
		} else {
			description = strings.TrimSpace(record[4])
		}

		raw, ok := newRaw(date, amount, description)
		if !ok {
			continue
		}
		if len(record) > 8 {
			raw.SetRefNumber(strings.TrimSpace(record[8]))
		}
		out = append(out, raw)
	}
	return out, nil
}
