package columnar

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratumdb/stratum/pkg/models"
	"github.com/stratumdb/stratum/pkg/schema"
)

func testFields() []schema.Field {
	return []schema.Field{
		{Name: "id", Type: schema.TypeString},
		{Name: "amount", Type: schema.TypeFloat},
		{Name: "quantity", Type: schema.TypeInt},
		{Name: "active", Type: schema.TypeBool},
		{Name: "captured_at", Type: schema.TypeTimestamp},
		{Name: "event_date", Type: schema.TypeDate},
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.parquet")

	ts := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)
	day := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

	rel := models.NewRelation("id", "amount", "quantity", "active", "captured_at", "event_date")
	rel.AppendRow([]interface{}{"T1", 99.5, int64(3), true, ts, day})
	rel.AppendRow([]interface{}{"T2", nil, nil, nil, nil, nil})

	require.NoError(t, WriteFile(path, testFields(), rel))

	got, err := ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, []string{"id", "amount", "quantity", "active", "captured_at", "event_date"}, got.Columns)
	require.Equal(t, 2, got.NumRows())

	assert.Equal(t, "T1", got.Rows[0][0])
	assert.Equal(t, 99.5, got.Rows[0][1])
	assert.Equal(t, int64(3), got.Rows[0][2])
	assert.Equal(t, true, got.Rows[0][3])
	assert.Equal(t, ts, got.Rows[0][4])
	assert.Equal(t, day, got.Rows[0][5])

	for _, cell := range got.Rows[1][1:] {
		assert.Nil(t, cell)
	}
}

func TestWriteEmptyRelation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.parquet")

	rel := models.NewRelation("id", "amount", "quantity", "active", "captured_at", "event_date")
	require.NoError(t, WriteFile(path, testFields(), rel))

	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 0, got.NumRows())
	assert.Equal(t, 6, len(got.Columns))
}

func TestWriteReordersToCanonicalColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reorder.parquet")

	fields := []schema.Field{
		{Name: "id", Type: schema.TypeString},
		{Name: "amount", Type: schema.TypeFloat},
	}

	// Relation columns arrive in a different order and carry an extra
	// column the canonical schema does not know about.
	rel := models.NewRelation("amount", "extra", "id")
	rel.AppendRow([]interface{}{10.0, "x", "T1"})

	require.NoError(t, WriteFile(path, fields, rel))

	got, err := ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, []string{"id", "amount"}, got.Columns)
	assert.Equal(t, "T1", got.Rows[0][0])
	assert.Equal(t, 10.0, got.Rows[0][1])
}

func TestWriteReplacesExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "table.parquet")
	fields := []schema.Field{{Name: "id", Type: schema.TypeString}}

	first := models.NewRelation("id")
	first.AppendRow([]interface{}{"A"})
	require.NoError(t, WriteFile(path, fields, first))

	second := models.NewRelation("id")
	second.AppendRow([]interface{}{"B"})
	second.AppendRow([]interface{}{"C"})
	require.NoError(t, WriteFile(path, fields, second))

	got, err := ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, 2, got.NumRows())
	assert.Equal(t, "B", got.Rows[0][0])
}

func TestTypeMismatchRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.parquet")
	fields := []schema.Field{{Name: "amount", Type: schema.TypeFloat}}

	rel := models.NewRelation("amount")
	rel.AppendRow([]interface{}{"not-a-float"})

	err := WriteFile(path, fields, rel)
	require.Error(t, err)
	assert.False(t, Exists(path))
}
