package main

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/ahrav/go-childlimit/internal/application"
	"github.com/ahrav/go-childlimit/internal/domain"
)

// policyTitle renders a cell for people, e.g. "Three Child Limit 2026 (3)".
func policyTitle(cell domain.CellKey) string {
	title := cases.Title(language.BritishEnglish).String(strings.ReplaceAll(cell.Policy, "-", " "))
	if cell.Parameter == nil {
		return fmt.Sprintf("%s %d", title, cell.Year)
	}
	return fmt.Sprintf("%s %d (%d)", title, cell.Year, *cell.Parameter)
}

// printSummary writes a cost and poverty line per report and one line
// per failed cell. Amounts use British digit grouping.
func printSummary(w io.Writer, result *application.BatchResult) {
	p := message.NewPrinter(language.BritishEnglish)

	p.Fprintf(w, "Run %s: %d reports, %d failed, %d fallbacks in %v\n",
		result.RunID, len(result.Reports), len(result.Failures), result.Fallbacks, result.Duration.Round(1e6))

	for _, r := range result.Reports {
		cost, _ := r.Lookup(application.MetricCost)
		out, _ := r.Lookup(application.MetricChildrenOutOfPoverty)
		marker := ""
		if cost.IsEstimate() {
			marker = " (estimated)"
		}
		p.Fprintf(w, "  %-48s cost £%.0f, %.0f children out of poverty%s\n",
			policyTitle(r.Cell), cost.Amount, out.Amount, marker)
	}
	for _, f := range result.Failures {
		p.Fprintf(w, "  %-48s FAILED: %v\n", policyTitle(f.Cell), f.Err)
	}
}
