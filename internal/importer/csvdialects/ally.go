package csvdialects

import (
	"context"
	"io"
	"log"
	"strings"

	"github.com/rumor-ml/commons.systems/envelopes/internal/domain"
)

// AllyParser handles Ally Bank CSV exports.
//
// Layout: Date, Time, Amount, Type, Description
// Dates are ISO and amounts are signed; the Time and Type columns carry no
// information this pipeline keeps.
type AllyParser struct{}

// NewAllyParser returns the Ally CSV dialect.
func NewAllyParser() *AllyParser {
	return &AllyParser{}
}

func (p *AllyParser) Name() string {
	return "ally"
}

func (p *AllyParser) CanParse(filename string, header []byte) bool {
	if fileHasPrefix(filename, "ally") {
		return true
	}
	line := headerLine(header)
	// TrimLeadingSpace in the reader handles the padded headers; mirror
	// that here by collapsing the spaces before comparing.
	line = strings.ReplaceAll(line, " ", "")
	return strings.HasPrefix(line, "date,time,amount,type,description")
}

func (p *AllyParser) Parse(ctx context.Context, r io.Reader) ([]*domain.RawTransaction, error) {
	records, err := readRecords(r, ',')
	if err != nil {
		return nil, err
	}

	var out []*domain.RawTransaction
	for i, record := range records {
		if i == 0 || len(record) < 5 {
			continue
		}
		date, ok := parseDate(record[0], domain.DateFormat)
		if !ok {
			log.Printf("WARN: Ally row %d has unparseable date %q, skipping", i+1, record[0])
			continue
		}
		amount, ok := parseAmount(record[2])
		if !ok {
			log.Printf("WARN: Ally row %d has unparseable amount %q, skipping", i+1, record[2])
			continue
		}
		raw, ok := newRaw(date, amount, record[4])
		if !ok {
			continue
		}
		out = append(out, raw)
	}
	return out, nil
}
