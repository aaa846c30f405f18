package schema

import (
	"time"

	"github.com/stratumdb/stratum/pkg/models"
)

// Batch is the reconciler's view of one raw batch: an explicit column list,
// rows aligned to it, and the batch's capture provenance.
type Batch struct {
	// Columns is the batch's own column set, which may differ batch to
	// batch for the same entity
	Columns []string
	// Rows are cell slices aligned to Columns
	Rows [][]interface{}
	// Captured is the batch capture timestamp
	Captured time.Time
	// Seq orders batches sharing a capture timestamp
	Seq int
}

// Reconcile merges raw batches of one entity type into a single relation
// whose column set is the union of all batch column sets (union by name).
// Batches missing a column contribute nulls for it. Row order follows batch
// order, and every row carries its origin for downstream deduplication.
//
// With zero batches the result is an empty relation holding only the
// entity's key columns: a valid state, not an error.
func Reconcile(entity *Entity, batches []Batch) *models.Relation {
	if len(batches) == 0 {
		return models.NewRelation(entity.Key()...)
	}

	// Union of observed columns: canonical columns keep their declared
	// order, unknown extras follow in first-seen order.
	seen := make(map[string]bool)
	for _, b := range batches {
		for _, c := range b.Columns {
			seen[c] = true
		}
	}

	var columns []string
	for _, f := range entity.Fields {
		if seen[f.Name] {
			columns = append(columns, f.Name)
			delete(seen, f.Name)
		}
	}
	for _, b := range batches {
		for _, c := range b.Columns {
			if seen[c] {
				columns = append(columns, c)
				delete(seen, c)
			}
		}
	}

	out := models.NewRelation(columns...)
	idx := out.ColumnIndex()

	for _, b := range batches {
		positions := make([]int, len(b.Columns))
		for i, c := range b.Columns {
			positions[i] = idx[c]
		}
		for rowNum, row := range b.Rows {
			merged := make([]interface{}, len(columns))
			for i, cell := range row {
				merged[positions[i]] = cell
			}
			out.AppendRow(merged)
			out.Provenance = append(out.Provenance, models.RowOrigin{
				Captured: b.Captured,
				BatchSeq: b.Seq,
				Row:      rowNum,
			})
		}
	}

	return out
}
