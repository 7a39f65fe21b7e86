package report

import (
	"fmt"
	"strings"
)

// Table is a parsed report: a header index over the data rows.
type Table struct {
	columns map[string]int
	rows    [][]string
}

// NewTable indexes raw CSV records; the first record is the header.
func NewTable(records [][]string) *Table {
	table := &Table{columns: make(map[string]int)}
	if len(records) == 0 {
		return table
	}
	for i, name := range records[0] {
		table.columns[strings.TrimSpace(name)] = i
	}
	table.rows = records[1:]
	return table
}

// Require verifies every named column is present. A report missing a
// column the run depends on cannot be processed at all.
func (t *Table) Require(columns ...string) error {
	var missing []string
	for _, name := range columns {
		if _, ok := t.columns[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("report is missing required columns: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (t *Table) Len() int {
	return len(t.rows)
}

// Get returns the trimmed cell value, or "" when the column is absent or
// the row is ragged.
func (t *Table) Get(row int, column string) string {
	idx, ok := t.columns[column]
	if !ok || row < 0 || row >= len(t.rows) {
		return ""
	}
	cells := t.rows[row]
	if idx >= len(cells) {
		return ""
	}
	return strings.TrimSpace(cells[idx])
}
