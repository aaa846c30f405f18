package schema

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcileUnionByName(t *testing.T) {
	// Batch A has {user_id, city}; batch B has {user_id, email}. The merged
	// relation must carry the union, with nulls where a batch lacked the
	// column.
	a := Batch{
		Columns:  []string{"user_id", "city"},
		Rows:     [][]interface{}{{"U1", "Boston"}},
		Captured: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Seq:      1,
	}
	b := Batch{
		Columns:  []string{"user_id", "email"},
		Rows:     [][]interface{}{{"U2", "u2@example.com"}},
		Captured: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		Seq:      2,
	}

	rel := Reconcile(Users, []Batch{a, b})

	assert.Equal(t, []string{"user_id", "email", "city"}, rel.Columns)
	require.Equal(t, 2, rel.NumRows())

	assert.Equal(t, "Boston", rel.Value(0, "city"))
	assert.Nil(t, rel.Value(0, "email"))
	assert.Equal(t, "u2@example.com", rel.Value(1, "email"))
	assert.Nil(t, rel.Value(1, "city"))
}

func TestReconcileKeepsUnknownColumns(t *testing.T) {
	b := Batch{
		Columns: []string{"product_id", "supplier_code"},
		Rows:    [][]interface{}{{"P1", "SUP-9"}},
	}

	rel := Reconcile(Products, []Batch{b})

	assert.Equal(t, []string{"product_id", "supplier_code"}, rel.Columns)
	assert.Equal(t, "SUP-9", rel.Value(0, "supplier_code"))
}

func TestReconcileZeroBatchesYieldsEmptyKeyRelation(t *testing.T) {
	rel := Reconcile(Transactions, nil)

	assert.Equal(t, []string{"transaction_id", "product_id"}, rel.Columns)
	assert.Zero(t, rel.NumRows())
}

func TestReconcileCarriesProvenance(t *testing.T) {
	captured := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	b := Batch{
		Columns:  []string{"user_id"},
		Rows:     [][]interface{}{{"U1"}, {"U2"}},
		Captured: captured,
		Seq:      7,
	}

	rel := Reconcile(Users, []Batch{b})

	require.Len(t, rel.Provenance, 2)
	assert.Equal(t, captured, rel.Provenance[0].Captured)
	assert.Equal(t, 7, rel.Provenance[0].BatchSeq)
	assert.Equal(t, 1, rel.Provenance[1].Row)
}
