// Package columnar reads and writes relations as Parquet files using Apache
// Arrow. The silver and gold tiers are stored in this format; callers get
// whole-file atomicity because writes go to a temp file renamed into place.
package columnar

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"github.com/stratumdb/stratum/pkg/errors"
	"github.com/stratumdb/stratum/pkg/models"
	"github.com/stratumdb/stratum/pkg/schema"
)

// WriteFile writes a relation to a Parquet file with the given canonical
// schema. The file appears atomically: data is written to a temporary
// sibling and renamed over the target.
func WriteFile(path string, fields []schema.Field, rel *models.Relation) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to create table directory")
	}

	tmp := path + ".tmp"
	if err := writeParquet(tmp, fields, rel); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to commit table file").
			WithDetail("path", path)
	}
	return nil
}

func writeParquet(path string, fields []schema.Field, rel *models.Relation) error {
	arrowSchema, err := toArrowSchema(fields)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to create parquet file").
			WithDetail("path", path)
	}
	defer f.Close()

	props := parquet.NewWriterProperties(
		parquet.WithCompression(compress.Codecs.Snappy),
	)
	writer, err := pqarrow.NewFileWriter(arrowSchema, f, props,
		pqarrow.NewArrowWriterProperties())
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to create parquet writer")
	}

	mem := memory.NewGoAllocator()
	builder := array.NewRecordBuilder(mem, arrowSchema)
	defer builder.Release()

	idx := rel.ColumnIndex()
	for _, row := range rel.Rows {
		for i, field := range fields {
			var v interface{}
			if j, ok := idx[field.Name]; ok {
				v = row[j]
			}
			if err := appendValue(builder.Field(i), v, field.Type); err != nil {
				return errors.Wrap(err, errors.ErrorTypeData, "failed to encode value").
					WithDetail("column", field.Name)
			}
		}
	}

	rec := builder.NewRecord()
	defer rec.Release()

	if err := writer.Write(rec); err != nil {
		writer.Close()
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write parquet record")
	}
	if err := writer.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to close parquet writer")
	}
	return f.Sync()
}

// ReadFile loads a Parquet file back into a relation with canonical Go cell
// values (string, float64, int64, bool, time.Time; nil for nulls).
func ReadFile(path string) (*models.Relation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to open parquet file").
			WithDetail("path", path)
	}
	defer f.Close()

	pf, err := file.NewParquetReader(f)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to read parquet metadata").
			WithDetail("path", path)
	}
	defer pf.Close()

	reader, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{}, memory.NewGoAllocator())
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to create arrow reader")
	}

	tbl, err := reader.ReadTable(context.Background())
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to read parquet table").
			WithDetail("path", path)
	}
	defer tbl.Release()

	columns := make([]string, tbl.NumCols())
	for i := 0; i < int(tbl.NumCols()); i++ {
		columns[i] = tbl.Schema().Field(i).Name
	}

	rel := models.NewRelation(columns...)
	rel.Rows = make([][]interface{}, tbl.NumRows())
	for i := range rel.Rows {
		rel.Rows[i] = make([]interface{}, len(columns))
	}

	for c := 0; c < int(tbl.NumCols()); c++ {
		rowOffset := 0
		chunks := tbl.Column(c).Data()
		for _, chunk := range chunks.Chunks() {
			if err := decodeChunk(rel, c, rowOffset, chunk); err != nil {
				return nil, err
			}
			rowOffset += chunk.Len()
		}
	}

	return rel, nil
}

// Exists reports whether a table file is present.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func toArrowSchema(fields []schema.Field) (*arrow.Schema, error) {
	arrowFields := make([]arrow.Field, len(fields))
	for i, f := range fields {
		dt, err := toArrowType(f.Type)
		if err != nil {
			return nil, err
		}
		arrowFields[i] = arrow.Field{Name: f.Name, Type: dt, Nullable: true}
	}
	return arrow.NewSchema(arrowFields, nil), nil
}

func toArrowType(t schema.FieldType) (arrow.DataType, error) {
	switch t {
	case schema.TypeString:
		return arrow.BinaryTypes.String, nil
	case schema.TypeFloat:
		return arrow.PrimitiveTypes.Float64, nil
	case schema.TypeInt:
		return arrow.PrimitiveTypes.Int64, nil
	case schema.TypeBool:
		return arrow.FixedWidthTypes.Boolean, nil
	case schema.TypeTimestamp:
		return &arrow.TimestampType{Unit: arrow.Microsecond, TimeZone: "UTC"}, nil
	case schema.TypeDate:
		return arrow.FixedWidthTypes.Date32, nil
	default:
		return nil, errors.New(errors.ErrorTypeInternal, "unsupported field type").
			WithDetail("type", string(t))
	}
}

func appendValue(b array.Builder, v interface{}, t schema.FieldType) error {
	if v == nil {
		b.AppendNull()
		return nil
	}

	switch t {
	case schema.TypeString:
		s, ok := v.(string)
		if !ok {
			return typeMismatch(v, t)
		}
		b.(*array.StringBuilder).Append(s)
	case schema.TypeFloat:
		f, ok := v.(float64)
		if !ok {
			return typeMismatch(v, t)
		}
		b.(*array.Float64Builder).Append(f)
	case schema.TypeInt:
		i, ok := v.(int64)
		if !ok {
			return typeMismatch(v, t)
		}
		b.(*array.Int64Builder).Append(i)
	case schema.TypeBool:
		x, ok := v.(bool)
		if !ok {
			return typeMismatch(v, t)
		}
		b.(*array.BooleanBuilder).Append(x)
	case schema.TypeTimestamp:
		ts, ok := v.(time.Time)
		if !ok {
			return typeMismatch(v, t)
		}
		b.(*array.TimestampBuilder).Append(arrow.Timestamp(ts.UTC().UnixMicro()))
	case schema.TypeDate:
		ts, ok := v.(time.Time)
		if !ok {
			return typeMismatch(v, t)
		}
		b.(*array.Date32Builder).Append(arrow.Date32FromTime(ts.UTC()))
	default:
		return errors.New(errors.ErrorTypeInternal, "unsupported field type").
			WithDetail("type", string(t))
	}
	return nil
}

func decodeChunk(rel *models.Relation, col, offset int, chunk arrow.Array) error {
	for i := 0; i < chunk.Len(); i++ {
		if chunk.IsNull(i) {
			continue
		}
		var v interface{}
		switch arr := chunk.(type) {
		case *array.String:
			v = arr.Value(i)
		case *array.Float64:
			v = arr.Value(i)
		case *array.Int64:
			v = arr.Value(i)
		case *array.Boolean:
			v = arr.Value(i)
		case *array.Timestamp:
			unit := arr.DataType().(*arrow.TimestampType).Unit
			v = arr.Value(i).ToTime(unit).UTC()
		case *array.Date32:
			v = arr.Value(i).ToTime().UTC()
		default:
			return errors.New(errors.ErrorTypeFile, "unsupported parquet column type").
				WithDetail("type", chunk.DataType().Name())
		}
		rel.Rows[offset+i][col] = v
	}
	return nil
}

func typeMismatch(v interface{}, t schema.FieldType) error {
	return errors.New(errors.ErrorTypeData, "value does not match canonical column type").
		WithDetail("value", v).
		WithDetail("type", string(t))
}
