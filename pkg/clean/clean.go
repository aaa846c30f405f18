// Package clean refines reconciled raw relations into canonical refined
// relations: validate, deduplicate, coerce types, and fill defaults.
//
// Cleaning is a pure function over its input and fully replaces the previous
// refined relation on every run. Idempotence comes from recomputing from
// all raw batches every time, not from incremental merging.
//
// Row-level problems (null keys, rule violations, uncoercible key values)
// drop the row and are counted in the Report; they never fail the run.
package clean

import (
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/stratumdb/stratum/pkg/models"
	"github.com/stratumdb/stratum/pkg/schema"
)

// Report summarizes one entity's cleaning pass.
type Report struct {
	Entity          string `json:"entity"`
	RowsIn          int    `json:"rows_in"`
	RowsOut         int    `json:"rows_out"`
	DroppedNullKey  int    `json:"dropped_null_key"`
	DroppedBadKey   int    `json:"dropped_bad_key"`
	DroppedRule     int    `json:"dropped_rule"`
	Duplicates      int    `json:"duplicates"`
	CoercedNulls    int    `json:"coerced_nulls"`
	DefaultsApplied int    `json:"defaults_applied"`
}

// Dropped returns the total number of rows removed by validation.
func (r *Report) Dropped() int {
	return r.DroppedNullKey + r.DroppedBadKey + r.DroppedRule + r.Duplicates
}

// Entity cleans one reconciled relation against its canonical schema.
//
// The output relation carries exactly the canonical column set; unknown
// columns from raw batches are discarded here (the refined tier is typed).
// Duplicate primary keys resolve last-writer-wins: latest capture timestamp,
// then batch order, then row order within the batch. Output rows are sorted
// by primary key so repeated runs produce identical relations.
func Entity(entity *schema.Entity, raw *models.Relation, log *zap.Logger) (*models.Relation, *Report) {
	report := &Report{Entity: entity.Name, RowsIn: raw.NumRows()}

	columns := entity.ColumnNames()
	out := models.NewRelation(columns...)

	rawIdx := raw.ColumnIndex()
	keyCols := entity.Key()

	type candidate struct {
		row    []interface{}
		origin models.RowOrigin
	}
	best := make(map[string]candidate)
	var keyOrder []string

	for rowNum, rawRow := range raw.Rows {
		row := make([]interface{}, len(columns))
		badKey := false
		for i, f := range entity.Fields {
			var v interface{}
			if j, ok := rawIdx[f.Name]; ok {
				v = rawRow[j]
			}
			coerced, err := schema.Coerce(v, f.Type)
			if err != nil {
				if f.Key {
					badKey = true
					break
				}
				// Uncoercible non-key values become nulls.
				report.CoercedNulls++
				coerced = nil
			}
			row[i] = coerced
		}
		if badKey {
			report.DroppedBadKey++
			continue
		}

		key, ok := primaryKey(row, columns, keyCols)
		if !ok {
			report.DroppedNullKey++
			continue
		}

		if violated := checkRules(entity, row, columns); violated != "" {
			report.DroppedRule++
			if log != nil {
				log.Debug("row dropped by business rule",
					zap.String("entity", entity.Name),
					zap.String("rule", violated),
					zap.String("key", key))
			}
			continue
		}

		origin := models.RowOrigin{Row: rowNum}
		if raw.Provenance != nil {
			origin = raw.Provenance[rowNum]
		}

		prev, exists := best[key]
		if !exists {
			keyOrder = append(keyOrder, key)
			best[key] = candidate{row: row, origin: origin}
			continue
		}
		report.Duplicates++
		if origin.After(prev.origin) {
			best[key] = candidate{row: row, origin: origin}
		}
	}

	// Deterministic output: sort by primary key.
	sort.Strings(keyOrder)
	for _, key := range keyOrder {
		row := best[key].row
		for i, f := range entity.Fields {
			if row[i] == nil && f.Default != nil {
				row[i] = f.Default
				report.DefaultsApplied++
			}
		}
		out.AppendRow(row)
	}

	report.RowsOut = out.NumRows()
	if log != nil {
		log.Info("entity cleaned",
			zap.String("entity", entity.Name),
			zap.Int("rows_in", report.RowsIn),
			zap.Int("rows_out", report.RowsOut),
			zap.Int("dropped_null_key", report.DroppedNullKey),
			zap.Int("dropped_rule", report.DroppedRule),
			zap.Int("duplicates", report.Duplicates))
	}

	return out, report
}

// primaryKey builds the composite key string for a cleaned row. Any null key
// column invalidates the row.
func primaryKey(row []interface{}, columns, keyCols []string) (string, bool) {
	parts := make([]string, 0, len(keyCols))
	for _, kc := range keyCols {
		for i, c := range columns {
			if c != kc {
				continue
			}
			s, ok := row[i].(string)
			if !ok || s == "" {
				return "", false
			}
			parts = append(parts, s)
		}
	}
	if len(parts) != len(keyCols) {
		return "", false
	}
	return strings.Join(parts, "\x1f"), true
}

func checkRules(entity *schema.Entity, row []interface{}, columns []string) string {
	for _, rule := range entity.Rules {
		for i, c := range columns {
			if c == rule.Column {
				if !rule.Valid(row[i]) {
					return rule.Name
				}
				break
			}
		}
	}
	return ""
}
