package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/Sternrassler/drs-bulk-compliance/pkg/compliance"
)

// Report columns.
const (
	ColumnIMEI              = "imei"
	ColumnStatus            = "status"
	ColumnBlockDate         = "block_date"
	ColumnInactivityReasons = "inactivity_reasons"
	ColumnStolenStatus      = "stolen_status"
	ColumnSeenOnNetwork     = "seen_on_network"
)

// ReasonSeparator joins inactivity reasons inside one cell.
const ReasonSeparator = "; "

var (
	fullColumns = []string{ColumnIMEI, ColumnStatus, ColumnBlockDate, ColumnInactivityReasons, ColumnStolenStatus, ColumnSeenOnNetwork}
	userColumns = []string{ColumnIMEI, ColumnStatus, ColumnInactivityReasons}
)

// Row is one line of the compliant report.
type Row struct {
	IMEI              string
	Status            string
	BlockDate         string
	InactivityReasons []string
	StolenStatus      string
	SeenOnNetwork     bool
}

// NewRow builds the report row for a classified record.
func NewRow(rec *compliance.Record, v compliance.Verdict) Row {
	row := Row{
		IMEI:          rec.IMEINorm,
		Status:        v.Status,
		StolenStatus:  rec.StolenLabel(),
		SeenOnNetwork: rec.SeenOnNetwork(),
	}
	if !v.Compliant() {
		row.BlockDate = v.BlockDate
		row.InactivityReasons = v.InactivityReasons
	}
	return row
}

func (r Row) full() []string {
	return []string{
		r.IMEI,
		r.Status,
		r.BlockDate,
		strings.Join(r.InactivityReasons, ReasonSeparator),
		r.StolenStatus,
		strconv.FormatBool(r.SeenOnNetwork),
	}
}

func (r Row) user() []string {
	return []string{r.IMEI, r.Status, strings.Join(r.InactivityReasons, ReasonSeparator)}
}

// Table is a report read back from disk.
type Table struct {
	Columns []string
	Rows    [][]string
}

// Column returns the values of the named column, or nil if absent.
func (t Table) Column(name string) []string {
	idx := -1
	for i, c := range t.Columns {
		if c == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}

	values := make([]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		values = append(values, row[idx])
	}
	return values
}

// ReadReport reads a TSV report written by this package.
func ReadReport(path string) (Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return Table{}, fmt.Errorf("open report: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = '\t'
	r.LazyQuotes = true

	lines, err := r.ReadAll()
	if err != nil {
		return Table{}, fmt.Errorf("read report %s: %w", path, err)
	}
	if len(lines) == 0 {
		return Table{}, fmt.Errorf("read report %s: missing header", path)
	}
	return Table{Columns: lines[0], Rows: lines[1:]}, nil
}

func writeTSV(path string, columns []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}

	w := csv.NewWriter(f)
	w.Comma = '\t'
	if err := w.Write(columns); err != nil {
		f.Close()
		return fmt.Errorf("write report header: %w", err)
	}
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		return fmt.Errorf("write report rows: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close report: %w", err)
	}
	return nil
}
