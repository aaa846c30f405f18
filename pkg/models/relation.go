package models

// Relation is a column-aligned table: an ordered column set and rows whose
// cells line up with Columns. A nil cell is a null. Relations flowing out of
// the schema reconciler also carry per-row Provenance; refined and warehouse
// relations do not.
type Relation struct {
	Columns []string
	Rows    [][]interface{}

	// Provenance, when non-nil, has one entry per row.
	Provenance []RowOrigin
}

// NewRelation creates an empty relation with the given columns.
func NewRelation(columns ...string) *Relation {
	return &Relation{Columns: columns}
}

// NumRows returns the row count.
func (r *Relation) NumRows() int {
	return len(r.Rows)
}

// ColumnIndex returns a lookup from column name to position.
func (r *Relation) ColumnIndex() map[string]int {
	idx := make(map[string]int, len(r.Columns))
	for i, c := range r.Columns {
		idx[c] = i
	}
	return idx
}

// HasColumn reports whether the relation contains the named column.
func (r *Relation) HasColumn(name string) bool {
	for _, c := range r.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// AppendRow adds a row. The caller must supply cells aligned to Columns.
func (r *Relation) AppendRow(row []interface{}) {
	r.Rows = append(r.Rows, row)
}

// Value returns the cell at (row, column name), or nil when the column is
// absent.
func (r *Relation) Value(row int, column string) interface{} {
	for i, c := range r.Columns {
		if c == column {
			return r.Rows[row][i]
		}
	}
	return nil
}

// Project returns a new relation restricted to the named columns, in the
// given order. Unknown columns yield all-null cells.
func (r *Relation) Project(columns ...string) *Relation {
	out := NewRelation(columns...)
	idx := r.ColumnIndex()
	out.Rows = make([][]interface{}, 0, len(r.Rows))
	for _, row := range r.Rows {
		projected := make([]interface{}, len(columns))
		for i, c := range columns {
			if j, ok := idx[c]; ok {
				projected[i] = row[j]
			}
		}
		out.Rows = append(out.Rows, projected)
	}
	return out
}
