package domain

// Column names stamped on every fetched table.
const (
	ColumnUploadDate = "Upload_Date"
	ColumnAccount    = "Account"
)

// Table is a row-oriented view of a normalized API response. Cells are kept as
// text; the loader and writers never interpret them.
type Table struct {
	Columns []string
	Rows    [][]string
}

// Len returns the number of data rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// Index returns the position of column name, or -1.
func (t *Table) Index(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Set assigns value to column name on every row. An existing column is
// overwritten in place; otherwise the column is appended.
func (t *Table) Set(name, value string) {
	idx := t.Index(name)
	if idx < 0 {
		t.Columns = append(t.Columns, name)
		for i := range t.Rows {
			t.Rows[i] = append(t.Rows[i], value)
		}
		return
	}
	for i := range t.Rows {
		t.Rows[i][idx] = value
	}
}

// Column returns every value of column name, or nil when it does not exist.
func (t *Table) Column(name string) []string {
	idx := t.Index(name)
	if idx < 0 {
		return nil
	}
	values := make([]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		values = append(values, row[idx])
	}
	return values
}

// Records returns the header followed by every row, ready for a CSV writer.
func (t *Table) Records() [][]string {
	records := make([][]string, 0, len(t.Rows)+1)
	records = append(records, t.Columns)
	records = append(records, t.Rows...)
	return records
}
