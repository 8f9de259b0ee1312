package report

import (
	"sort"

	"github.com/Sternrassler/drs-bulk-compliance/pkg/compliance"
)

// ConditionRow maps condition name to condition_met for one record.
type ConditionRow map[string]bool

// ConditionRows flattens the conditions picked from every record into one
// row per record. Records without conditions produce no row.
func ConditionRows(records []compliance.Record, pick func(*compliance.Record) []compliance.Condition) []ConditionRow {
	var rows []ConditionRow
	for i := range records {
		conds := pick(&records[i])
		if len(conds) == 0 {
			continue
		}
		row := make(ConditionRow, len(conds))
		for _, c := range conds {
			row[c.Name] = c.Met
		}
		rows = append(rows, row)
	}
	return rows
}

// CountConditions adds, for every condition name seen in rows, the number
// of rows in which it is met. Existing entries of count with the same name
// are overwritten.
func CountConditions(count map[string]int, rows []ConditionRow) map[string]int {
	if count == nil {
		count = make(map[string]int)
	}
	for _, name := range conditionNames(rows) {
		met := 0
		for _, row := range rows {
			if row[name] {
				met++
			}
		}
		count[name] = met
	}
	return count
}

// NoConditionCount returns the number of conditions met by no row.
func NoConditionCount(rows []ConditionRow) int {
	n := 0
	for _, name := range conditionNames(rows) {
		met := false
		for _, row := range rows {
			if row[name] {
				met = true
				break
			}
		}
		if !met {
			n++
		}
	}
	return n
}

func conditionNames(rows []ConditionRow) []string {
	seen := make(map[string]struct{})
	for _, row := range rows {
		for name := range row {
			seen[name] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
