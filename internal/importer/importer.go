package importer

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/rumor-ml/commons.systems/envelopes/internal/reconcile"
)

// Summary reports what one file import did.
type Summary struct {
	Dialect    string
	Rows       int // rows the parser yielded
	Inserted   int
	Duplicates int
}

// Importer drives file imports end to end: dialect resolution, parsing, and
// row-by-row insertion through the reconciliation engine.
type Importer struct {
	engine   *reconcile.Engine
	registry *Registry
}

// New creates an importer over the given reconciliation engine and registry.
func New(engine *reconcile.Engine, registry *Registry) *Importer {
	return &Importer{engine: engine, registry: registry}
}

// ImportFile imports one file's transactions into the account named by
// accountLabel, creating the account on first use. The dialect is resolved
// once (by hint, or by filename/header sniffing), then every parsed row runs
// through the insert contract: categorize, duplicate-check, contribute to
// the envelope balance. Imports run synchronously to completion.
func (i *Importer) ImportFile(ctx context.Context, userID int64, accountLabel, filename string, data []byte, dialectHint string) (*Summary, error) {
	if accountLabel == "" {
		return nil, fmt.Errorf("account label is required for imports")
	}

	parser, err := i.registry.Resolve(filename, Header(data), dialectHint)
	if err != nil {
		return nil, err
	}

	raws, err := parser.Parse(ctx, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("dialect %s failed on %s: %w", parser.Name(), filename, err)
	}

	session, err := i.engine.NewSession(ctx, userID)
	if err != nil {
		return nil, err
	}

	summary := &Summary{Dialect: parser.Name(), Rows: len(raws)}
	for _, raw := range raws {
		raw.SetAccountLabel(accountLabel)
		inserted, err := session.Insert(ctx, raw)
		if err != nil {
			return summary, fmt.Errorf("failed to insert %q (%s): %w", raw.Description(), raw.Date(), err)
		}
		if inserted {
			summary.Inserted++
		} else {
			summary.Duplicates++
		}
	}
	if summary.Rows == 0 {
		// A wrong-but-plausible dialect can parse a file to zero rows.
		// That is a soft failure by design; leave a trace for the operator.
		log.Printf("WARN: Dialect %s imported zero transactions from %s", parser.Name(), filename)
	}
	return summary, nil
}

// ImportDir imports every regular file in a directory, using each file's
// name (without extension) as the account label. Per-file failures are
// logged and skipped so one bad file does not abort the run.
func (i *Importer) ImportDir(ctx context.Context, userID int64, dir string) (map[string]*Summary, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read import directory: %w", err)
	}

	summaries := make(map[string]*Summary)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			log.Printf("ERROR: Failed to read %s: %v", path, err)
			continue
		}
		label := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		summary, err := i.ImportFile(ctx, userID, label, entry.Name(), data, "")
		if err != nil {
			log.Printf("ERROR: Failed to import %s: %v", path, err)
			continue
		}
		summaries[entry.Name()] = summary
	}
	return summaries, nil
}
