// Package output persists batch results as CSV files and reads them back.
//
// Three layouts are produced:
//
//	<policy>-<year>[-<suffix><param>].csv           metric,value[,provenance,basis]
//	distribution-<policy>-<year>[-<param>].csv      decile,relative_change_pct
//	all-results.csv                                 year,policy,parameter,metric,value[,provenance,basis]
//
// The basis column is empty for values that are not estimates.
package output

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/ahrav/go-childlimit/internal/domain"
	"github.com/ahrav/go-childlimit/internal/ports"
)

// CombinedFileName is the name of the combined results table.
const CombinedFileName = "all-results.csv"

// WriterConfig configures a CSVWriter.
type WriterConfig struct {
	// Dir is the output directory. It is created if missing.
	Dir string

	// IncludeProvenance adds provenance and basis columns to metric
	// tables.
	IncludeProvenance bool

	// PerScenarioFiles writes one file per cell in addition to the
	// combined table.
	PerScenarioFiles bool

	// Suffixes maps a policy name to the label placed before its
	// parameter in per-scenario file names, e.g. "limit" for
	// three-child-limit-2026-limit3.csv. Policies without an entry use
	// "p".
	Suffixes map[string]string
}

// CSVWriter implements ports.ReportSink on the local filesystem. Files
// are written to a temporary name and renamed into place so a reader
// never sees a partial file.
type CSVWriter struct {
	cfg WriterConfig

	mu      sync.Mutex
	written []string
}

var _ ports.ReportSink = (*CSVWriter)(nil)

// NewCSVWriter creates a writer and ensures the output directory exists.
func NewCSVWriter(cfg WriterConfig) (*CSVWriter, error) {
	if cfg.Dir == "" {
		return nil, ports.NewConfigError("output_dir", ports.ErrConfigNotFound)
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, ports.NewOutputError(cfg.Dir, "mkdir", err)
	}
	return &CSVWriter{cfg: cfg}, nil
}

// Written returns the paths written so far, in write order.
func (w *CSVWriter) Written() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.written...)
}

// ScenarioFileName returns the per-scenario file name for a cell.
func (w *CSVWriter) ScenarioFileName(cell domain.CellKey) string {
	if cell.Parameter == nil {
		return fmt.Sprintf("%s-%d.csv", cell.Policy, cell.Year)
	}
	suffix, ok := w.cfg.Suffixes[cell.Policy]
	if !ok || suffix == "" {
		suffix = "p"
	}
	return fmt.Sprintf("%s-%d-%s%d.csv", cell.Policy, cell.Year, suffix, *cell.Parameter)
}

// DistributionFileName returns the distribution file name for a cell.
func DistributionFileName(cell domain.CellKey) string {
	if cell.Parameter == nil {
		return fmt.Sprintf("distribution-%s-%d.csv", cell.Policy, cell.Year)
	}
	return fmt.Sprintf("distribution-%s-%d-%d.csv", cell.Policy, cell.Year, *cell.Parameter)
}

// WriteReport writes one cell's metrics. It is a no-op unless
// PerScenarioFiles is set.
func (w *CSVWriter) WriteReport(ctx context.Context, report *domain.Report) error {
	if !w.cfg.PerScenarioFiles {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	header := []string{"metric", "value"}
	if w.cfg.IncludeProvenance {
		header = append(header, "provenance", "basis")
	}
	records := make([][]string, 0, len(report.Metrics)+1)
	records = append(records, header)
	for _, m := range report.Metrics {
		rec := []string{m.Name, m.Value.String()}
		if w.cfg.IncludeProvenance {
			rec = append(rec, m.Value.Provenance.String(), m.Value.Basis)
		}
		records = append(records, rec)
	}
	return w.writeFile(w.ScenarioFileName(report.Cell), "WriteReport", records)
}

// WriteDistribution writes one cell's decile summary.
func (w *CSVWriter) WriteDistribution(ctx context.Context, dist *domain.Distribution) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	records := make([][]string, 0, len(dist.Rows)+1)
	records = append(records, []string{"decile", "relative_change_pct"})
	for _, r := range dist.Rows {
		records = append(records, []string{strconv.Itoa(r.Decile), domain.FormatAmount(r.RelativeChangePct())})
	}
	return w.writeFile(DistributionFileName(dist.Cell), "WriteDistribution", records)
}

// WriteCombined writes the combined table.
func (w *CSVWriter) WriteCombined(ctx context.Context, rows []ports.CombinedRow) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return w.writeFile(CombinedFileName, "WriteCombined", CombinedRecords(rows, w.cfg.IncludeProvenance))
}

// CombinedRecords renders combined rows as CSV records, header first.
// The parameter column is empty for parameterless cells.
func CombinedRecords(rows []ports.CombinedRow, includeProvenance bool) [][]string {
	header := []string{"year", "policy", "parameter", "metric", "value"}
	if includeProvenance {
		header = append(header, "provenance", "basis")
	}
	records := make([][]string, 0, len(rows)+1)
	records = append(records, header)
	for _, r := range rows {
		param := ""
		if r.Cell.Parameter != nil {
			param = strconv.Itoa(*r.Cell.Parameter)
		}
		rec := []string{
			strconv.Itoa(r.Cell.Year),
			r.Cell.Policy,
			param,
			r.Metric.Name,
			r.Metric.Value.String(),
		}
		if includeProvenance {
			rec = append(rec, r.Metric.Value.Provenance.String(), r.Metric.Value.Basis)
		}
		records = append(records, rec)
	}
	return records
}

func (w *CSVWriter) writeFile(name, operation string, records [][]string) error {
	path := filepath.Join(w.cfg.Dir, name)
	if err := WriteCSVFile(path, records); err != nil {
		return ports.NewOutputError(path, operation, err)
	}
	w.mu.Lock()
	w.written = append(w.written, path)
	w.mu.Unlock()
	return nil
}

// WriteCSVFile writes records to path through a temporary file in the
// same directory.
func WriteCSVFile(path string, records [][]string) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	wtr := csv.NewWriter(tmp)
	if err = wtr.WriteAll(records); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
