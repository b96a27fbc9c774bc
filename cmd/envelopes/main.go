package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/rumor-ml/commons.systems/envelopes/internal/importer"
	"github.com/rumor-ml/commons.systems/envelopes/internal/provider"
	"github.com/rumor-ml/commons.systems/envelopes/internal/reconcile"
	"github.com/rumor-ml/commons.systems/envelopes/internal/rules"
	"github.com/rumor-ml/commons.systems/envelopes/internal/server"
	"github.com/rumor-ml/commons.systems/envelopes/internal/store"
	accountsync "github.com/rumor-ml/commons.systems/envelopes/internal/sync"
	"github.com/rumor-ml/commons.systems/envelopes/internal/ui"
	"github.com/rumor-ml/commons.systems/envelopes/internal/validate"
)

const (
	version = "0.1.0"
)

var (
	// Global flags
	versionFlag = flag.Bool("version", false, "Show version")

	// Server flags
	addr   = flag.String("addr", ":8080", "HTTP listen address")
	dbPath = flag.String("db", "envelopes.db", "SQLite database path")

	// CLI mode flags
	userFlag   = flag.Int64("user", 1, "User scope for CLI operations")
	importFile = flag.String("import", "", "Import one statement file and exit")
	account    = flag.String("account", "", "Account label for -import")
	dialect    = flag.String("dialect", "", "Dialect hint for -import (default: sniff)")
	importDir  = flag.String("import-dir", "", "Import every statement file in a directory and exit")
	rulesFile  = flag.String("rules", "", "Load keyword rules from a YAML seed file and exit")
	auditFlag  = flag.Bool("audit", false, "Audit envelope balances against transactions and exit")
)

func main() {
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, `envelopes - envelope budgeting ledger and sync service

Usage:
  envelopes [flags]

Flags:
`)
		flag.PrintDefaults()
		fmt.Fprint(os.Stderr, `
Environment (also read from .env):
  PROVIDER_URL    Base URL of the transaction aggregation service
  PROVIDER_TOKEN  Access credential passed to the aggregation service

Examples:
  # Serve the API
  envelopes -db budget.db -addr :8080

  # Import one statement into the "chase-checking" account
  envelopes -db budget.db -import chase-march.csv -account chase-checking

  # Import a directory, one account per file
  envelopes -db budget.db -import-dir ~/statements

  # Seed keyword rules
  envelopes -db budget.db -rules rules.yaml

  # Check envelope balances against their transactions
  envelopes -db budget.db -audit

`)
	}

	// Absent .env files are fine; the environment may be set directly.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("WARN: Failed to load .env: %v", err)
	}

	flag.Parse()

	if *versionFlag {
		fmt.Printf("envelopes version %s\n", version)
		os.Exit(0)
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	s, err := store.Open(*dbPath)
	if err != nil {
		return err
	}
	defer s.Close()

	switch {
	case *rulesFile != "":
		return seedRules(ctx, s)
	case *importFile != "":
		return importOne(ctx, s)
	case *importDir != "":
		return importAll(ctx, s)
	case *auditFlag:
		return audit(ctx, s)
	default:
		return serve(s)
	}
}

func seedRules(ctx context.Context, s *store.Store) error {
	count, err := rules.LoadSeedFile(ctx, s, *userFlag, *rulesFile)
	if err != nil {
		return fmt.Errorf("failed to seed rules from %s: %w", *rulesFile, err)
	}
	ui.Success("Loaded %d keyword rules from %s", count, *rulesFile)
	return nil
}

func importOne(ctx context.Context, s *store.Store) error {
	if *account == "" {
		return fmt.Errorf("-account is required with -import")
	}
	data, err := os.ReadFile(*importFile)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", *importFile, err)
	}

	imp := importer.New(reconcile.New(s), importer.Builtin())
	summary, err := imp.ImportFile(ctx, *userFlag, *account, *importFile, data, *dialect)
	if err != nil {
		return err
	}
	ui.RenderImportSummary(*importFile, summary)
	return nil
}

func importAll(ctx context.Context, s *store.Store) error {
	imp := importer.New(reconcile.New(s), importer.Builtin())
	summaries, err := imp.ImportDir(ctx, *userFlag, *importDir)
	if err != nil {
		return err
	}
	if len(summaries) == 0 {
		return fmt.Errorf("no statement files imported from %s", *importDir)
	}
	ui.RenderImportSummaries(summaries)
	return nil
}

func audit(ctx context.Context, s *store.Store) error {
	result, err := validate.AuditUser(ctx, s, *userFlag)
	if err != nil {
		return err
	}
	ui.RenderAudit(result)
	if !result.Clean() {
		return fmt.Errorf("audit found %d errors", len(result.Errors))
	}
	return nil
}

func serve(s *store.Store) error {
	var client provider.Client
	credential := accountsync.CredentialFunc(nil)

	if url := os.Getenv("PROVIDER_URL"); url != "" {
		client = provider.NewHTTPClient(url)
		token := os.Getenv("PROVIDER_TOKEN")
		credential = func(int64, string) string { return token }
		log.Printf("INFO: Aggregation provider configured at %s", url)
	} else {
		log.Printf("WARN: PROVIDER_URL not set; syncs will be no-ops")
	}

	srv := server.New(server.Config{
		Store:      s,
		Provider:   client,
		Credential: credential,
	})

	log.Printf("INFO: Listening on %s (db %s)", *addr, *dbPath)
	return http.ListenAndServe(*addr, srv.Handler())
}
