package output

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/ahrav/go-childlimit/internal/domain"
	"github.com/ahrav/go-childlimit/internal/ports"
)

// scenarioFilePattern matches <policy>-<year>[-<suffix><param>].csv.
var scenarioFilePattern = regexp.MustCompile(`^([a-z0-9]+(?:-[a-z0-9]+)*?)-(\d{4})(?:-([a-z]+)(\d+))?\.csv$`)

// ParseScenarioFileName extracts the cell key from a per-scenario file
// name. It reports false for names that do not follow the convention,
// including the combined table and distribution files.
func ParseScenarioFileName(name string) (domain.CellKey, bool) {
	if name == CombinedFileName || strings.HasPrefix(name, "distribution-") {
		return domain.CellKey{}, false
	}
	m := scenarioFilePattern.FindStringSubmatch(name)
	if m == nil {
		return domain.CellKey{}, false
	}
	year, err := strconv.Atoi(m[2])
	if err != nil {
		return domain.CellKey{}, false
	}
	if m[4] == "" {
		return domain.NewCellKey(year, m[1], nil), true
	}
	param, err := strconv.Atoi(m[4])
	if err != nil {
		return domain.CellKey{}, false
	}
	return domain.NewCellKey(year, m[1], &param), true
}

// ReadReport reads a per-scenario metric file. A missing provenance
// column is read as simulated and a missing basis column as empty.
func ReadReport(path string, cell domain.CellKey) (*domain.Report, error) {
	records, err := readCSV(path)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ports.NewOutputError(path, "ReadReport", errors.New("empty file"))
	}

	cols := columnIndex(records[0])
	mi, okM := cols["metric"]
	vi, okV := cols["value"]
	if !okM || !okV {
		return nil, ports.NewOutputError(path, "ReadReport", fmt.Errorf("%w: header %v", domain.ErrColumnNotFound, records[0]))
	}
	pi, hasProv := cols["provenance"]
	bi, hasBasis := cols["basis"]

	report := domain.NewReport(cell)
	for i, rec := range records[1:] {
		v, err := strconv.ParseFloat(rec[vi], 64)
		if err != nil {
			return nil, ports.NewOutputError(path, "ReadReport", fmt.Errorf("row %d: %w", i+2, err))
		}
		prov := domain.ProvenanceSimulated
		if hasProv {
			if prov, err = domain.ParseProvenance(rec[pi]); err != nil {
				return nil, ports.NewOutputError(path, "ReadReport", fmt.Errorf("row %d: %w", i+2, err))
			}
		}
		basis := ""
		if hasBasis {
			basis = rec[bi]
		}
		report.Add(rec[mi], domain.Value{Amount: v, Provenance: prov, Basis: basis})
	}
	return report, nil
}

// ReadScenarioDir rebuilds combined rows from the per-scenario files in
// dir. Files that do not follow the naming convention are skipped. Rows
// are ordered by cell (year, policy, parameter) and keep the metric
// order of each file.
func ReadScenarioDir(dir string) ([]ports.CombinedRow, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, ports.NewOutputError(dir, "ReadScenarioDir", err)
	}

	var reports []*domain.Report
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		cell, ok := ParseScenarioFileName(e.Name())
		if !ok {
			continue
		}
		r, err := ReadReport(filepath.Join(dir, e.Name()), cell)
		if err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}

	sort.SliceStable(reports, func(i, j int) bool { return reports[i].Cell.Less(reports[j].Cell) })

	var rows []ports.CombinedRow
	for _, r := range reports {
		for _, m := range r.Metrics {
			rows = append(rows, ports.CombinedRow{Cell: r.Cell, Metric: m})
		}
	}
	return rows, nil
}

// ReadCombined reads a combined results table.
func ReadCombined(path string) ([]ports.CombinedRow, error) {
	records, err := readCSV(path)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	cols := columnIndex(records[0])
	for _, c := range []string{"year", "policy", "parameter", "metric", "value"} {
		if _, ok := cols[c]; !ok {
			return nil, ports.NewOutputError(path, "ReadCombined", fmt.Errorf("%w: %s", domain.ErrColumnNotFound, c))
		}
	}
	pi, hasProv := cols["provenance"]
	bi, hasBasis := cols["basis"]

	rows := make([]ports.CombinedRow, 0, len(records)-1)
	for i, rec := range records[1:] {
		line := i + 2
		year, err := strconv.Atoi(rec[cols["year"]])
		if err != nil {
			return nil, ports.NewOutputError(path, "ReadCombined", fmt.Errorf("row %d: year: %w", line, err))
		}
		var param *int
		if s := rec[cols["parameter"]]; s != "" {
			p, err := strconv.Atoi(s)
			if err != nil {
				return nil, ports.NewOutputError(path, "ReadCombined", fmt.Errorf("row %d: parameter: %w", line, err))
			}
			param = &p
		}
		v, err := strconv.ParseFloat(rec[cols["value"]], 64)
		if err != nil {
			return nil, ports.NewOutputError(path, "ReadCombined", fmt.Errorf("row %d: value: %w", line, err))
		}
		prov := domain.ProvenanceSimulated
		if hasProv {
			if prov, err = domain.ParseProvenance(rec[pi]); err != nil {
				return nil, ports.NewOutputError(path, "ReadCombined", fmt.Errorf("row %d: %w", line, err))
			}
		}
		basis := ""
		if hasBasis {
			basis = rec[bi]
		}
		rows = append(rows, ports.CombinedRow{
			Cell:   domain.NewCellKey(year, rec[cols["policy"]], param),
			Metric: domain.Metric{Name: rec[cols["metric"]], Value: domain.Value{Amount: v, Provenance: prov, Basis: basis}},
		})
	}
	return rows, nil
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ports.NewOutputError(path, "open", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	var records [][]string
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, ports.NewOutputError(path, "read", err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func columnIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, col := range header {
		idx[col] = i
	}
	return idx
}
