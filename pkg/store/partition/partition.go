// Package partition manages the gold tier's partitioned table layout.
// Fact tables are split into hive-style directories (region=X/date_key=Y)
// so reads can prune whole partitions. Writes are staged under a per-run
// directory and swapped into place with renames, so a concurrent reader
// sees either the previous state or the new state of a table, never a mix.
package partition

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/stratumdb/stratum/pkg/errors"
	"github.com/stratumdb/stratum/pkg/logger"
	"github.com/stratumdb/stratum/pkg/models"
	"github.com/stratumdb/stratum/pkg/schema"
	"github.com/stratumdb/stratum/pkg/store/columnar"
)

const (
	stagingDirName = ".staging"
	partFileName   = "part-00000.parquet"
)

// Table describes a partitioned gold table. PartitionBy names columns of
// Fields, in directory nesting order. An empty PartitionBy means the table
// is a single Parquet file.
type Table struct {
	Name        string
	Fields      []schema.Field
	PartitionBy []string
}

func (t Table) field(name string) (schema.Field, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return schema.Field{}, false
}

func (t Table) isPartitionColumn(name string) bool {
	for _, c := range t.PartitionBy {
		if c == name {
			return true
		}
	}
	return false
}

// Writer stages table writes for a single run. Staged tables become visible
// only when Commit swaps them into the live directory; Abort discards them.
type Writer struct {
	goldDir    string
	stagingDir string
	log        *zap.Logger
	staged     []string
}

// NewWriter creates the run's staging area under <goldDir>/.staging/<runID>.
func NewWriter(goldDir, runID string, log *zap.Logger) (*Writer, error) {
	if log == nil {
		log = logger.Get()
	}
	stagingDir := filepath.Join(goldDir, stagingDirName, runID)
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to create staging directory").
			WithDetail("path", stagingDir)
	}
	return &Writer{goldDir: goldDir, stagingDir: stagingDir, log: log}, nil
}

// WriteTable stages a full replacement of the table: every partition the
// relation produces is written, and on Commit the table's previous partition
// set is dropped entirely, so partitions absent from this run disappear.
func (w *Writer) WriteTable(table Table, rel *models.Relation) error {
	tableDir := filepath.Join(w.stagingDir, table.Name)
	if err := os.MkdirAll(tableDir, 0o755); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to create staged table directory").
			WithDetail("table", table.Name)
	}

	if len(table.PartitionBy) == 0 {
		if err := columnar.WriteFile(filepath.Join(tableDir, partFileName), table.Fields, rel); err != nil {
			return err
		}
		w.staged = append(w.staged, table.Name)
		return nil
	}

	groups, order, err := groupByPartition(table, rel)
	if err != nil {
		return err
	}

	for _, key := range order {
		part := groups[key]
		dir := filepath.Join(tableDir, filepath.Join(part.segments...))
		if err := columnar.WriteFile(filepath.Join(dir, partFileName), table.Fields, part.rel); err != nil {
			return err
		}
	}

	w.log.Debug("staged table",
		zap.String("table", table.Name),
		zap.Int("partitions", len(groups)),
		zap.Int("rows", rel.NumRows()))

	w.staged = append(w.staged, table.Name)
	return nil
}

// Commit swaps every staged table into the live gold directory. Each swap is
// a pair of renames: the previous table directory is moved aside, the staged
// one takes its place, then the old one is removed.
func (w *Writer) Commit() error {
	for _, name := range w.staged {
		staged := filepath.Join(w.stagingDir, name)
		live := filepath.Join(w.goldDir, name)
		retired := filepath.Join(w.stagingDir, name+".retired")

		if _, err := os.Stat(live); err == nil {
			if err := os.Rename(live, retired); err != nil {
				return errors.Wrap(err, errors.ErrorTypeFile, "failed to retire previous table").
					WithDetail("table", name)
			}
		}
		if err := os.Rename(staged, live); err != nil {
			// Put the old table back so readers are not left without one.
			_ = os.Rename(retired, live)
			return errors.Wrap(err, errors.ErrorTypeFile, "failed to publish staged table").
				WithDetail("table", name)
		}
		_ = os.RemoveAll(retired)

		w.log.Info("published table", zap.String("table", name))
	}
	w.staged = nil
	return os.RemoveAll(w.stagingDir)
}

// Abort discards everything staged by this writer. The live gold directory
// is untouched.
func (w *Writer) Abort() {
	w.staged = nil
	if err := os.RemoveAll(w.stagingDir); err != nil {
		w.log.Warn("failed to remove staging directory",
			zap.String("path", w.stagingDir), zap.Error(err))
	}
}

type partGroup struct {
	segments []string
	rel      *models.Relation
}

func groupByPartition(table Table, rel *models.Relation) (map[string]*partGroup, []string, error) {
	idx := rel.ColumnIndex()
	partIdx := make([]int, len(table.PartitionBy))
	for i, col := range table.PartitionBy {
		j, ok := idx[col]
		if !ok {
			return nil, nil, errors.New(errors.ErrorTypeInternal, "partition column missing from relation").
				WithDetail("table", table.Name).
				WithDetail("column", col)
		}
		partIdx[i] = j
	}

	groups := make(map[string]*partGroup)
	var order []string
	for _, row := range rel.Rows {
		segments := make([]string, len(table.PartitionBy))
		for i, col := range table.PartitionBy {
			v := row[partIdx[i]]
			if v == nil {
				return nil, nil, errors.New(errors.ErrorTypeData, "null value in partition column").
					WithDetail("table", table.Name).
					WithDetail("column", col)
			}
			segments[i] = col + "=" + EncodeValue(v)
		}
		key := strings.Join(segments, "/")
		g, ok := groups[key]
		if !ok {
			g = &partGroup{segments: segments, rel: models.NewRelation(rel.Columns...)}
			groups[key] = g
			order = append(order, key)
		}
		g.rel.AppendRow(row)
	}
	sort.Strings(order)
	return groups, order, nil
}

// EncodeValue renders a partition value as a directory-safe path segment.
func EncodeValue(v interface{}) string {
	switch x := v.(type) {
	case string:
		return sanitizeSegment(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.UTC().Format("2006-01-02")
	default:
		return sanitizeSegment(fmt.Sprintf("%v", x))
	}
}

func sanitizeSegment(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', '=', 0:
			return '_'
		}
		return r
	}, s)
}
