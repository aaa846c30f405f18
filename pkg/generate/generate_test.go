package generate

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratumdb/stratum/pkg/compression"
	"github.com/stratumdb/stratum/pkg/config"
	"github.com/stratumdb/stratum/pkg/schema"
	"github.com/stratumdb/stratum/pkg/store/raw"
	"github.com/stratumdb/stratum/pkg/testutil"
)

func testConfig() config.GenerateConfig {
	return config.GenerateConfig{
		Transactions: 200,
		Users:        40,
		Products:     20,
		Stores:       5,
		Seed:         42,
	}
}

func newStore(t *testing.T) *raw.Store {
	t.Helper()
	codec, err := compression.New(compression.None)
	require.NoError(t, err)
	store, err := raw.Open(t.TempDir(), codec, testutil.TestLogger(t))
	require.NoError(t, err)
	return store
}

func readAll(t *testing.T, store *raw.Store, entity string) []schema.Batch {
	t.Helper()
	infos, err := store.Batches(entity)
	require.NoError(t, err)
	batches := make([]schema.Batch, 0, len(infos))
	for _, info := range infos {
		b, err := store.ReadBatch(info)
		require.NoError(t, err)
		batches = append(batches, b)
	}
	return batches
}

func TestGenerateWritesEveryEntity(t *testing.T) {
	store := newStore(t)
	p := New(store, testConfig(), testutil.TestLogger(t))
	require.NoError(t, p.Generate(context.Background()))

	for _, entity := range []string{"users", "products", "stores", "transactions", "inventory", "shipments"} {
		batches := readAll(t, store, entity)
		require.Len(t, batches, 1, entity)
		assert.NotEmpty(t, batches[0].Rows, entity)
	}
}

func TestGenerateReferentiallyComplete(t *testing.T) {
	store := newStore(t)
	cfg := testConfig()
	p := New(store, cfg, testutil.TestLogger(t))
	require.NoError(t, p.Generate(context.Background()))

	users := readAll(t, store, "users")[0]
	products := readAll(t, store, "products")[0]
	stores := readAll(t, store, "stores")[0]

	userSet := columnSet(users, "user_id")
	productSet := columnSet(products, "product_id")
	storeSet := columnSet(stores, "store_id")

	txns := readAll(t, store, "transactions")[0]
	for _, row := range txns.Rows {
		assert.Contains(t, userSet, rowValue(txns, row, "user_id"))
		assert.Contains(t, productSet, rowValue(txns, row, "product_id"))
		assert.Contains(t, storeSet, rowValue(txns, row, "store_id"))
	}

	shipments := readAll(t, store, "shipments")[0]
	for _, row := range shipments.Rows {
		assert.Contains(t, storeSet, rowValue(shipments, row, "origin_store_id"))
		assert.Contains(t, storeSet, rowValue(shipments, row, "dest_store_id"))
	}
}

func TestGenerateSeededDeterminism(t *testing.T) {
	storeA := newStore(t)
	storeB := newStore(t)
	require.NoError(t, New(storeA, testConfig(), testutil.TestLogger(t)).Generate(context.Background()))
	require.NoError(t, New(storeB, testConfig(), testutil.TestLogger(t)).Generate(context.Background()))

	a := readAll(t, storeA, "users")[0]
	b := readAll(t, storeB, "users")[0]
	assert.Equal(t, a.Rows, b.Rows)

	at := readAll(t, storeA, "transactions")[0]
	bt := readAll(t, storeB, "transactions")[0]
	assert.Equal(t, at.Rows, bt.Rows)
}

func TestGenerateInjectsDirt(t *testing.T) {
	store := newStore(t)
	cfg := testConfig()
	cfg.Transactions = 1000
	p := New(store, cfg, testutil.TestLogger(t))
	require.NoError(t, p.Generate(context.Background()))

	txns := readAll(t, store, "transactions")[0]
	assert.Greater(t, len(txns.Rows), cfg.Transactions, "duplicate rows injected")

	nullAmounts := 0
	for _, row := range txns.Rows {
		if rowValue(txns, row, "amount") == nil {
			nullAmounts++
		}
	}
	assert.Greater(t, nullAmounts, 0, "some amounts are null")
}

func TestGenerateStoreRegions(t *testing.T) {
	store := newStore(t)
	p := New(store, testConfig(), testutil.TestLogger(t))
	require.NoError(t, p.Generate(context.Background()))

	stores := readAll(t, store, "stores")[0]
	for _, row := range stores.Rows {
		id := rowValue(stores, row, "store_id").(string)
		region := rowValue(stores, row, "region").(string)
		assert.True(t, strings.HasSuffix(region, id[len(id)-3:]))
	}
}

func columnSet(b schema.Batch, column string) map[interface{}]bool {
	set := make(map[interface{}]bool)
	for _, row := range b.Rows {
		set[rowValue(b, row, column)] = true
	}
	return set
}

func rowValue(b schema.Batch, row []interface{}, column string) interface{} {
	for i, c := range b.Columns {
		if c == column {
			return row[i]
		}
	}
	return nil
}
