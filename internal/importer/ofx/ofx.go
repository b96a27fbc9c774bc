// Package ofx parses OFX/QFX bank exports. Two schema versions exist in the
// wild: v1 is tag-delimited SGML with an OFXHEADER preamble, v2 is XML. Both
// are registered as distinct dialects so detection is explicit, and both
// decode through ofxgo.
package ofx

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"math/big"
	"path/filepath"
	"strings"

	"github.com/aclindsa/ofxgo"
	"github.com/shopspring/decimal"

	"github.com/rumor-ml/commons.systems/envelopes/internal/domain"
)

// Parser handles one OFX schema version. Stateless; safe for concurrent use.
type Parser struct {
	name string
	// detect reports whether the header bytes look like this version.
	detect func(header string) bool
}

// NewV1Parser returns the parser for tag-delimited (SGML) OFX 1.x files.
func NewV1Parser() *Parser {
	return &Parser{
		name: "ofx1",
		detect: func(header string) bool {
			return strings.Contains(header, "OFXHEADER:")
		},
	}
}

// NewV2Parser returns the parser for XML OFX 2.x files.
func NewV2Parser() *Parser {
	return &Parser{
		name: "ofx2",
		detect: func(header string) bool {
			return strings.Contains(header, "<?OFX") ||
				strings.Contains(header, "OFXHEADER=") ||
				(strings.Contains(header, "<?XML") && strings.Contains(header, "OFX"))
		},
	}
}

// Name returns the dialect identifier.
func (p *Parser) Name() string {
	return p.name
}

// CanParse checks the extension and header markers for this schema version.
func (p *Parser) CanParse(filename string, header []byte) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext != ".ofx" && ext != ".qfx" {
		return false
	}
	return p.detect(strings.ToUpper(string(header)))
}

// Parse extracts raw transactions from an OFX/QFX file. Transactions with a
// missing date or description are skipped with a warning; they never abort
// the file.
func (p *Parser) Parse(ctx context.Context, r io.Reader) ([]*domain.RawTransaction, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read OFX content: %w", err)
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	response, err := ofxgo.ParseResponse(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse OFX file (%d bytes): %w", len(content), err)
	}

	if len(response.CreditCard) > 0 {
		stmt, ok := response.CreditCard[0].(*ofxgo.CCStatementResponse)
		if !ok {
			return nil, fmt.Errorf("unexpected credit card statement type %T", response.CreditCard[0])
		}
		if stmt.BankTranList == nil {
			return nil, fmt.Errorf("credit card statement carries no transaction list")
		}
		return p.extract(stmt.BankTranList.Transactions), nil
	}

	if len(response.Bank) > 0 {
		stmt, ok := response.Bank[0].(*ofxgo.StatementResponse)
		if !ok {
			return nil, fmt.Errorf("unexpected bank statement type %T", response.Bank[0])
		}
		if stmt.BankTranList == nil {
			return nil, fmt.Errorf("bank statement carries no transaction list")
		}
		return p.extract(stmt.BankTranList.Transactions), nil
	}

	return nil, fmt.Errorf("no bank or credit card statement found in OFX file (bank: %d, creditcard: %d)",
		len(response.Bank), len(response.CreditCard))
}

func (p *Parser) extract(transactions []ofxgo.Transaction) []*domain.RawTransaction {
	out := make([]*domain.RawTransaction, 0, len(transactions))
	for _, txn := range transactions {
		raw, ok := extractTransaction(txn)
		if !ok {
			continue
		}
		out = append(out, raw)
	}
	return out
}

// extractTransaction converts one OFX transaction, reporting false for rows
// too malformed to keep.
func extractTransaction(txn ofxgo.Transaction) (*domain.RawTransaction, bool) {
	date := txn.DtPosted.Time
	if date.IsZero() {
		date = txn.DtUser.Time
	}
	if date.IsZero() {
		log.Printf("WARN: OFX transaction %s has no posted or user date, skipping", txn.FiTID.String())
		return nil, false
	}

	description := strings.TrimSpace(txn.Name.String())
	if description == "" {
		description = strings.TrimSpace(txn.Memo.String())
	}
	if description == "" {
		log.Printf("WARN: OFX transaction %s has no name or memo, skipping", txn.FiTID.String())
		return nil, false
	}

	amount := decimal.NewFromBigRat(new(big.Rat).Set(&txn.TrnAmt.Rat), 2)

	raw, err := domain.NewRawTransaction(date.Format(domain.DateFormat), amount, description)
	if err != nil {
		log.Printf("WARN: OFX transaction %s rejected: %v", txn.FiTID.String(), err)
		return nil, false
	}
	raw.SetRefNumber(txn.FiTID.String())
	return raw, true
}
