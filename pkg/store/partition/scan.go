package partition

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/stratumdb/stratum/pkg/errors"
	"github.com/stratumdb/stratum/pkg/models"
	"github.com/stratumdb/stratum/pkg/store/columnar"
)

// Filter is an equality predicate on a single column. Filters on partition
// columns prune whole directories before any file is opened; the rest are
// evaluated row by row after reading.
type Filter struct {
	Column string
	Value  interface{}
}

// ScanResult carries the matching rows plus accounting of how many Parquet
// files the scan actually opened versus skipped by pruning.
type ScanResult struct {
	Relation     *models.Relation
	FilesOpened  int
	FilesSkipped int
}

// Scan reads a gold table, pruning partitions that cannot match the filters.
func Scan(goldDir string, table Table, filters []Filter) (*ScanResult, error) {
	tableDir := filepath.Join(goldDir, table.Name)
	result := &ScanResult{Relation: models.NewRelation(columnNames(table)...)}

	if _, err := os.Stat(tableDir); os.IsNotExist(err) {
		return result, nil
	}

	partFilters := make(map[string]string)
	var residual []Filter
	for _, f := range filters {
		if _, ok := table.field(f.Column); !ok {
			return nil, errors.New(errors.ErrorTypeQuery, "unknown filter column").
				WithDetail("table", table.Name).
				WithDetail("column", f.Column)
		}
		if table.isPartitionColumn(f.Column) {
			partFilters[f.Column] = EncodeValue(f.Value)
		} else {
			residual = append(residual, f)
		}
	}

	files, skipped, err := collectFiles(tableDir, table.PartitionBy, partFilters)
	if err != nil {
		return nil, err
	}
	result.FilesSkipped = skipped

	for _, path := range files {
		rel, err := columnar.ReadFile(path)
		if err != nil {
			return nil, err
		}
		result.FilesOpened++
		appendMatching(result.Relation, rel, residual)
	}
	return result, nil
}

// collectFiles walks the partition directory levels in PartitionBy order,
// skipping directories whose encoded value fails a partition filter. It
// returns the data files to read and the count of pruned files.
func collectFiles(dir string, levels []string, partFilters map[string]string) ([]string, int, error) {
	if len(levels) == 0 {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, 0, errors.Wrap(err, errors.ErrorTypeFile, "failed to list partition directory").
				WithDetail("path", dir)
		}
		var files []string
		for _, e := range entries {
			if !e.IsDir() && strings.HasSuffix(e.Name(), ".parquet") {
				files = append(files, filepath.Join(dir, e.Name()))
			}
		}
		sort.Strings(files)
		return files, 0, nil
	}

	col := levels[0]
	want, filtered := partFilters[col]

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrorTypeFile, "failed to list partition directory").
			WithDetail("path", dir)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var files []string
	skipped := 0
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), col+"=") {
			continue
		}
		value := strings.TrimPrefix(e.Name(), col+"=")
		sub := filepath.Join(dir, e.Name())
		if filtered && value != want {
			n, err := countFiles(sub)
			if err != nil {
				return nil, 0, err
			}
			skipped += n
			continue
		}
		subFiles, subSkipped, err := collectFiles(sub, levels[1:], partFilters)
		if err != nil {
			return nil, 0, err
		}
		files = append(files, subFiles...)
		skipped += subSkipped
	}
	return files, skipped, nil
}

func countFiles(dir string) (int, error) {
	n := 0
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, ".parquet") {
			n++
		}
		return nil
	})
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeFile, "failed to walk partition directory").
			WithDetail("path", dir)
	}
	return n, nil
}

func appendMatching(dst, src *models.Relation, residual []Filter) {
	idx := src.ColumnIndex()
	dstIdx := make([]int, len(dst.Columns))
	for i, c := range dst.Columns {
		j, ok := idx[c]
		if !ok {
			j = -1
		}
		dstIdx[i] = j
	}

	for _, row := range src.Rows {
		match := true
		for _, f := range residual {
			j, ok := idx[f.Column]
			if !ok || !valuesEqual(row[j], f.Value) {
				match = false
				break
			}
		}
		if !match {
			continue
		}
		out := make([]interface{}, len(dst.Columns))
		for i, j := range dstIdx {
			if j >= 0 {
				out[i] = row[j]
			}
		}
		dst.AppendRow(out)
	}
}

func valuesEqual(a, b interface{}) bool {
	if at, ok := a.(time.Time); ok {
		bt, ok := b.(time.Time)
		return ok && at.Equal(bt)
	}
	return a == b
}

func columnNames(table Table) []string {
	names := make([]string, len(table.Fields))
	for i, f := range table.Fields {
		names[i] = f.Name
	}
	return names
}
