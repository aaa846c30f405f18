package warehouse

import (
	"sort"
	"strings"

	"github.com/stratumdb/stratum/pkg/errors"
	"github.com/stratumdb/stratum/pkg/models"
	"github.com/stratumdb/stratum/pkg/star"
	"github.com/stratumdb/stratum/pkg/store/partition"
)

// Query selects rows from one gold table. Equality filters on partition
// columns are pushed down so non-matching partitions are never opened.
// With GroupBy set the result is one row per group carrying a "rows" count
// and, when SumColumn names a numeric column, a "sum_<column>" total.
type Query struct {
	Table     string
	Filters   []partition.Filter
	Columns   []string
	GroupBy   []string
	SumColumn string
}

// QueryResult carries the rows plus the scan's file-open accounting.
type QueryResult struct {
	Relation     *models.Relation
	FilesOpened  int
	FilesSkipped int
}

// Query executes a query against the gold tier.
func (w *Warehouse) Query(q Query) (*QueryResult, error) {
	table, ok := star.TableByName(q.Table)
	if !ok {
		return nil, errors.New(errors.ErrorTypeQuery, "unknown warehouse table").
			WithDetail("table", q.Table)
	}

	res, err := partition.Scan(w.cfg.GoldDir(), table, q.Filters)
	if err != nil {
		return nil, err
	}

	rel := res.Relation
	if len(q.GroupBy) > 0 {
		rel, err = aggregate(rel, q.GroupBy, q.SumColumn)
		if err != nil {
			return nil, err
		}
	} else if len(q.Columns) > 0 {
		for _, c := range q.Columns {
			if !rel.HasColumn(c) {
				return nil, errors.New(errors.ErrorTypeQuery, "unknown projection column").
					WithDetail("table", q.Table).
					WithDetail("column", c)
			}
		}
		rel = rel.Project(q.Columns...)
	}

	return &QueryResult{
		Relation:     rel,
		FilesOpened:  res.FilesOpened,
		FilesSkipped: res.FilesSkipped,
	}, nil
}

func aggregate(rel *models.Relation, groupBy []string, sumColumn string) (*models.Relation, error) {
	idx := rel.ColumnIndex()
	groupIdx := make([]int, len(groupBy))
	for i, c := range groupBy {
		j, ok := idx[c]
		if !ok {
			return nil, errors.New(errors.ErrorTypeQuery, "unknown group-by column").
				WithDetail("column", c)
		}
		groupIdx[i] = j
	}
	sumIdx := -1
	if sumColumn != "" {
		j, ok := idx[sumColumn]
		if !ok {
			return nil, errors.New(errors.ErrorTypeQuery, "unknown sum column").
				WithDetail("column", sumColumn)
		}
		sumIdx = j
	}

	type group struct {
		values []interface{}
		rows   int64
		sum    float64
	}
	groups := make(map[string]*group)
	var order []string
	for _, row := range rel.Rows {
		parts := make([]string, len(groupIdx))
		values := make([]interface{}, len(groupIdx))
		for i, j := range groupIdx {
			values[i] = row[j]
			parts[i] = partition.EncodeValue(row[j])
		}
		key := strings.Join(parts, "\x1f")
		g, ok := groups[key]
		if !ok {
			g = &group{values: values}
			groups[key] = g
			order = append(order, key)
		}
		g.rows++
		if sumIdx >= 0 {
			switch v := row[sumIdx].(type) {
			case float64:
				g.sum += v
			case int64:
				g.sum += float64(v)
			}
		}
	}
	sort.Strings(order)

	columns := append([]string{}, groupBy...)
	columns = append(columns, "rows")
	if sumIdx >= 0 {
		columns = append(columns, "sum_"+sumColumn)
	}

	out := models.NewRelation(columns...)
	for _, key := range order {
		g := groups[key]
		row := append([]interface{}{}, g.values...)
		row = append(row, g.rows)
		if sumIdx >= 0 {
			row = append(row, g.sum)
		}
		out.AppendRow(row)
	}
	return out, nil
}
