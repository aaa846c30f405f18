package star

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/stratumdb/stratum/pkg/models"
	"github.com/stratumdb/stratum/pkg/scd"
	"github.com/stratumdb/stratum/pkg/schema"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func rel(columns []string, rows ...[]interface{}) *models.Relation {
	r := models.NewRelation(columns...)
	for _, row := range rows {
		r.AppendRow(row)
	}
	return r
}

func baseInputs(t *testing.T) Inputs {
	dimUsers, _, err := scd.Apply(nil, rel(
		[]string{"user_id", "name", "email", "city", "signup_date"},
		[]interface{}{"U1", "Ana", "ana@example.com", "Boston", day(2023, 1, 10)},
	), day(2024, 3, 15), zaptest.NewLogger(t))
	require.NoError(t, err)

	return Inputs{
		DimUsers: dimUsers,
		Products: rel(
			[]string{"product_id", "product_name", "category", "price"},
			[]interface{}{"P1", "Lamp", "Home", 25.0},
			[]interface{}{"P2", "Mug", "Kitchen", 8.0},
		),
		Stores: rel(
			[]string{"store_id", "region", "city"},
			[]interface{}{"STORE_001", "Region_East", "Boston"},
		),
		Transactions: rel(
			[]string{"transaction_id", "user_id", "product_id", "timestamp", "amount", "store_id"},
			[]interface{}{"T1", "U1", "P1", day(2024, 3, 10), 25.0, "STORE_001"},
			[]interface{}{"T2", "U1", "P2", day(2024, 3, 12), 8.0, "STORE_777"},
		),
		Inventory: rel(
			[]string{"product_id", "store_id", "stock_level", "reorder_point", "last_restock_date", "stock_status"},
			[]interface{}{"P1", "STORE_001", int64(4), int64(10), day(2024, 3, 1), "low"},
		),
		Shipments: rel(
			[]string{"shipment_id", "transaction_id", "origin_store_id", "dest_store_id",
				"shipped_date", "delivered_date", "delivery_days", "carrier",
				"tracking_number", "status", "shipping_cost"},
			[]interface{}{"SH1", "T1", "STORE_001", "STORE_777", day(2024, 3, 11),
				day(2024, 3, 13), int64(2), "ACME", "TRK1", "delivered", 5.0},
		),
	}
}

func TestBuildResolvesAllSurrogateKeys(t *testing.T) {
	out, err := Build(baseInputs(t), day(2024, 3, 15), zaptest.NewLogger(t))
	require.NoError(t, err)

	require.Equal(t, 2, out.FactTransactions.NumRows())
	assert.Equal(t, int64(1), out.FactTransactions.Value(0, "user_key"))
	assert.Equal(t, int64(1), out.FactTransactions.Value(0, "product_key"))
	assert.Equal(t, "Region_East", out.FactTransactions.Value(0, "region"))
	assert.Equal(t, int64(20240310), out.FactTransactions.Value(0, "date_key"))

	// STORE_777 was never declared: it joins through a derived-region member.
	assert.Equal(t, "Region_777", out.FactTransactions.Value(1, "region"))

	keys := make(map[interface{}]bool)
	idx := out.DimStores.ColumnIndex()
	for _, row := range out.DimStores.Rows {
		keys[row[idx["store_id"]]] = true
	}
	assert.True(t, keys["STORE_777"])
}

func TestBuildFailsOnMissingProduct(t *testing.T) {
	in := baseInputs(t)
	in.Transactions.AppendRow([]interface{}{"T3", "U1", "P_MISSING", day(2024, 3, 10), 1.0, "STORE_001"})

	_, err := Build(in, day(2024, 3, 15), zaptest.NewLogger(t))
	require.Error(t, err)
}

func TestBuildFailsOnMissingUser(t *testing.T) {
	in := baseInputs(t)
	in.Transactions.AppendRow([]interface{}{"T3", "U_GHOST", "P1", day(2024, 3, 10), 1.0, "STORE_001"})

	_, err := Build(in, day(2024, 3, 15), zaptest.NewLogger(t))
	require.Error(t, err)
}

func TestNullNaturalKeysJoinUnknownMember(t *testing.T) {
	in := baseInputs(t)
	in.Transactions = rel(
		[]string{"transaction_id", "user_id", "product_id", "timestamp", "amount", "store_id"},
		[]interface{}{"T1", nil, "P1", nil, 25.0, "STORE_001"},
	)

	out, err := Build(in, day(2024, 3, 15), zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, UnknownKey, out.FactTransactions.Value(0, "user_key"))
	assert.Equal(t, UnknownKey, out.FactTransactions.Value(0, "date_key"))

	// Key 0 lands on a materialized member row in every dimension.
	assert.Equal(t, UnknownKey, out.DimUsers.Value(0, "surrogate_key"))
	assert.Nil(t, out.DimUsers.Value(0, "user_id"))
	assert.Equal(t, UnknownKey, out.DimProducts.Value(0, "product_key"))
	assert.Nil(t, out.DimProducts.Value(0, "product_id"))
	assert.Equal(t, UnknownKey, out.DimStores.Value(0, "store_key"))
	assert.Equal(t, "Region_UNKNOWN", out.DimStores.Value(0, "region"))
}

func TestProductKeysStableAcrossRuns(t *testing.T) {
	in := baseInputs(t)
	out, err := Build(in, day(2024, 3, 15), zaptest.NewLogger(t))
	require.NoError(t, err)

	// Next run: P1 vanished from the feed, P3 arrived.
	in2 := baseInputs(t)
	in2.Products = rel(
		[]string{"product_id", "product_name", "category", "price"},
		[]interface{}{"P2", "Mug", "Kitchen", 9.0},
		[]interface{}{"P3", "Desk", "Office", 120.0},
	)
	in2.PriorDimProducts = out.DimProducts
	in2.PriorDimStores = out.DimStores

	out2, err := Build(in2, day(2024, 3, 16), zaptest.NewLogger(t))
	require.NoError(t, err)

	keys := map[string]int64{}
	idx := out2.DimProducts.ColumnIndex()
	for _, row := range out2.DimProducts.Rows {
		id, _ := row[idx["product_id"]].(string)
		keys[id] = row[idx["product_key"]].(int64)
	}

	assert.Equal(t, int64(1), keys["P1"], "vanished product keeps its key")
	assert.Equal(t, int64(2), keys["P2"])
	assert.Equal(t, int64(3), keys["P3"], "new keys continue from max")

	// P2's price update is applied in place. Row 0 is the unknown member.
	assert.Equal(t, 9.0, out2.DimProducts.Value(2, "price"))
}

func TestDimDatesContinuousWithUnknownRow(t *testing.T) {
	out, err := Build(baseInputs(t), day(2024, 3, 15), zaptest.NewLogger(t))
	require.NoError(t, err)

	dates := out.DimDates
	require.GreaterOrEqual(t, dates.NumRows(), 2)
	assert.Equal(t, UnknownKey, dates.Value(0, "date_key"))
	assert.Nil(t, dates.Value(0, "full_date"))

	// Range spans restock (Mar 1) through delivery (Mar 13), one row per day.
	assert.Equal(t, int64(20240301), dates.Value(1, "date_key"))
	assert.Equal(t, 1+13, dates.NumRows())

	// Saturday March 2 2024.
	assert.Equal(t, int64(6), dates.Value(2, "day_of_week"))
	assert.Equal(t, true, dates.Value(2, "is_weekend"))
	assert.Equal(t, int64(1), dates.Value(2, "quarter"))
}

func TestUnknownStoreSentinelRegion(t *testing.T) {
	in := baseInputs(t)
	in.Transactions = rel(
		[]string{"transaction_id", "user_id", "product_id", "timestamp", "amount", "store_id"},
		[]interface{}{"T1", "U1", "P1", day(2024, 3, 10), 25.0, schema.UnknownStoreID},
	)

	out, err := Build(in, day(2024, 3, 15), zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, "Region_UNKNOWN", out.FactTransactions.Value(0, "region"))
}

func TestInventoryEnrichment(t *testing.T) {
	out, err := Build(baseInputs(t), day(2024, 3, 15), zaptest.NewLogger(t))
	require.NoError(t, err)

	inv := out.FactInventory
	require.Equal(t, 1, inv.NumRows())
	assert.Equal(t, true, inv.Value(0, "needs_reorder"))
	assert.Equal(t, int64(14), inv.Value(0, "days_since_restock"))
	assert.Equal(t, int64(20240301), inv.Value(0, "date_key"))
}

func TestShipmentDeliveryCategories(t *testing.T) {
	cases := []struct {
		days   interface{}
		status interface{}
		want   string
	}{
		{int64(2), "delivered", "fast"},
		{int64(3), "delivered", "fast"},
		{int64(7), "delivered", "normal"},
		{int64(12), "delivered", "slow"},
		{nil, "delayed", "delayed"},
		{nil, "pending", "pending"},
		{nil, nil, "pending"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, deliveryCategory(tc.days, tc.status))
	}
}

func TestShipmentFactRegions(t *testing.T) {
	out, err := Build(baseInputs(t), day(2024, 3, 15), zaptest.NewLogger(t))
	require.NoError(t, err)

	sh := out.FactShipments
	require.Equal(t, 1, sh.NumRows())
	assert.Equal(t, "Region_East", sh.Value(0, "origin_region"))
	assert.Equal(t, "Region_777", sh.Value(0, "dest_region"))
	assert.Equal(t, int64(20240311), sh.Value(0, "date_key"))
	assert.Equal(t, "fast", sh.Value(0, "delivery_category"))
}
