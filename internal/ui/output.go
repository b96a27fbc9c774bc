// Package ui renders CLI output for import and audit runs.
package ui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fatih/color"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/rumor-ml/commons.systems/envelopes/internal/importer"
	"github.com/rumor-ml/commons.systems/envelopes/internal/validate"
)

var printer = message.NewPrinter(language.English)

// Header prints a section header.
func Header(text string) {
	c := color.New(color.FgCyan, color.Bold)
	c.Println(center(text, 60))
	c.Println(strings.Repeat("=", 60))
}

// Success prints a success message in green.
func Success(format string, args ...any) {
	color.New(color.FgGreen).Printf(format+"\n", args...)
}

// Warning prints a warning message in yellow.
func Warning(format string, args ...any) {
	color.New(color.FgYellow).Printf(format+"\n", args...)
}

// Error prints an error message in red.
func Error(format string, args ...any) {
	color.New(color.FgRed).Printf(format+"\n", args...)
}

// center pads text on the left so it sits centered in width. Text wider than
// width is returned unchanged.
func center(text string, width int) string {
	if len(text) >= width {
		return text
	}
	return strings.Repeat(" ", (width-len(text))/2) + text
}

// RenderImportSummary prints one file's import results.
func RenderImportSummary(filename string, s *importer.Summary) {
	fmt.Printf("%-40s %-8s ", filename, s.Dialect)
	printer.Printf("%d rows, ", s.Rows)
	if s.Inserted > 0 {
		Success("%d inserted, %d duplicates", s.Inserted, s.Duplicates)
	} else if s.Rows > 0 {
		Warning("%d inserted, %d duplicates", s.Inserted, s.Duplicates)
	} else {
		Warning("no transactions found")
	}
}

// RenderImportSummaries prints a directory import's results in filename
// order with totals.
func RenderImportSummaries(summaries map[string]*importer.Summary) {
	Header("Import Results")

	names := make([]string, 0, len(summaries))
	for name := range summaries {
		names = append(names, name)
	}
	sort.Strings(names)

	var rows, inserted, duplicates int
	for _, name := range names {
		s := summaries[name]
		RenderImportSummary(name, s)
		rows += s.Rows
		inserted += s.Inserted
		duplicates += s.Duplicates
	}

	fmt.Println(strings.Repeat("-", 60))
	printer.Printf("Total: %d files, %d rows, %d inserted, %d duplicates\n",
		len(names), rows, inserted, duplicates)
}

// RenderAudit prints an audit result, errors first.
func RenderAudit(result *validate.AuditResult) {
	Header("Budget Audit")

	for _, e := range result.Errors {
		Error("ERROR %s %d %s=%q: %s", e.Entity, e.ID, e.Field, e.Value, e.Message)
	}
	for _, w := range result.Warnings {
		Warning("WARN  %s %d %s=%q: %s", w.Entity, w.ID, w.Field, w.Value, w.Message)
	}

	if result.Clean() && len(result.Warnings) == 0 {
		Success("No integrity issues found")
		return
	}
	printer.Printf("%d errors, %d warnings\n", len(result.Errors), len(result.Warnings))
}
