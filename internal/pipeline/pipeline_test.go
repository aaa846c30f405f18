package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratumdb/stratum/pkg/compression"
	"github.com/stratumdb/stratum/pkg/config"
	"github.com/stratumdb/stratum/pkg/generate"
	"github.com/stratumdb/stratum/pkg/star"
	"github.com/stratumdb/stratum/pkg/store/partition"
	"github.com/stratumdb/stratum/pkg/store/raw"
	"github.com/stratumdb/stratum/pkg/store/warehouse"
	"github.com/stratumdb/stratum/pkg/testutil"
)

type fixture struct {
	wh       *warehouse.Warehouse
	raw      *raw.Store
	pipeline *Pipeline
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()

	log := testutil.TestLogger(t)
	wh, err := warehouse.New(cfg, log)
	require.NoError(t, err)

	codec, err := compression.New(compression.None)
	require.NoError(t, err)
	rawStore, err := raw.Open(cfg.BronzeDir(), codec, log)
	require.NoError(t, err)

	return &fixture{wh: wh, raw: rawStore, pipeline: New(wh, rawStore, log)}
}

func (f *fixture) append(t *testing.T, entity string, columns []string, rows ...[]interface{}) {
	t.Helper()
	_, err := f.raw.Append(entity, columns, rows)
	require.NoError(t, err)
}

func (f *fixture) seed(t *testing.T) {
	t.Helper()
	f.append(t, "users",
		[]string{"user_id", "name", "email", "city", "signup_date"},
		[]interface{}{"U1", "Ana", "ana@example.com", "Boston", "2023-01-10"},
		[]interface{}{"U2", "Ben", "ben@example.com", "Denver", "2023-02-01"},
	)
	f.append(t, "products",
		[]string{"product_id", "product_name", "category", "price"},
		[]interface{}{"P1", "Lamp", "Home", "25.0"},
		[]interface{}{"P2", "Mug", "Kitchen", "8.0"},
	)
	f.append(t, "stores",
		[]string{"store_id", "region", "city"},
		[]interface{}{"STORE_001", "Region_East", "Boston"},
	)
	f.append(t, "transactions",
		[]string{"transaction_id", "user_id", "product_id", "timestamp", "amount", "store_id"},
		[]interface{}{"T1", "U1", "P1", "2024-03-10T09:00:00Z", "10.0", "STORE_001"},
		[]interface{}{"T2", "U2", "P2", "2024-03-12T10:00:00Z", "8.0", "STORE_001"},
	)
	f.append(t, "inventory",
		[]string{"product_id", "store_id", "stock_level", "reorder_point", "last_restock_date", "stock_status"},
		[]interface{}{"P1", "STORE_001", "4", "10", "2024-03-01", "low"},
	)
	f.append(t, "shipments",
		[]string{"shipment_id", "transaction_id", "origin_store_id", "dest_store_id",
			"shipped_date", "delivered_date", "delivery_days", "carrier",
			"tracking_number", "status", "shipping_cost"},
		[]interface{}{"SH1", "T1", "STORE_001", "STORE_001", "2024-03-11",
			"2024-03-13", "2", "ACME", "TRK1", "delivered", "5.0"},
	)
}

func TestRunBuildsAllTiers(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	report, err := f.pipeline.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, report.Status)
	assert.NotEmpty(t, report.RunID)

	// Silver tier holds every refined entity.
	for _, entity := range []string{"users", "products", "stores", "transactions", "inventory", "shipments"} {
		rel, err := f.wh.ReadSilver(entity)
		require.NoError(t, err)
		require.NotNil(t, rel, entity)
	}

	// Gold tier holds the star schema.
	facts, err := f.wh.ReadGold(star.TableFactTransactions)
	require.NoError(t, err)
	require.Equal(t, 2, facts.NumRows())

	// Two user versions plus the unknown member row.
	dim, err := f.wh.ReadGold(star.TableDimUsers)
	require.NoError(t, err)
	assert.Equal(t, 3, dim.NumRows())

	status, err := f.wh.Status()
	require.NoError(t, err)
	assert.Equal(t, report.RunID, status.Tables[star.TableFactTransactions].RunID)
	assert.Equal(t, 2, status.Tables[star.TableFactTransactions].Rows)
}

func TestLaterBatchWinsDuplicateKey(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	// A later capture restates T1 with a corrected amount.
	f.append(t, "transactions",
		[]string{"transaction_id", "user_id", "product_id", "timestamp", "amount", "store_id"},
		[]interface{}{"T1", "U1", "P1", "2024-03-10T09:00:00Z", "12.0", "STORE_001"},
	)

	_, err := f.pipeline.Run(context.Background())
	require.NoError(t, err)

	silver, err := f.wh.ReadSilver("transactions")
	require.NoError(t, err)
	require.Equal(t, 2, silver.NumRows())

	for i := 0; i < silver.NumRows(); i++ {
		if silver.Value(i, "transaction_id") == "T1" {
			assert.Equal(t, 12.0, silver.Value(i, "amount"))
		}
	}
}

func TestRerunWithoutNewDataIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	_, err := f.pipeline.Run(context.Background())
	require.NoError(t, err)
	dim1, err := f.wh.ReadGold(star.TableDimUsers)
	require.NoError(t, err)
	facts1, err := f.wh.ReadGold(star.TableFactTransactions)
	require.NoError(t, err)

	_, err = f.pipeline.Run(context.Background())
	require.NoError(t, err)
	dim2, err := f.wh.ReadGold(star.TableDimUsers)
	require.NoError(t, err)
	facts2, err := f.wh.ReadGold(star.TableFactTransactions)
	require.NoError(t, err)

	assert.Equal(t, dim1.Rows, dim2.Rows, "no new user versions")
	assert.Equal(t, facts1.NumRows(), facts2.NumRows())
}

func TestUserMoveOpensNewVersion(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	_, err := f.pipeline.Run(context.Background())
	require.NoError(t, err)

	f.append(t, "users",
		[]string{"user_id", "name", "email", "city", "signup_date"},
		[]interface{}{"U1", "Ana", "ana@example.com", "Austin", "2023-01-10"},
	)
	report, err := f.pipeline.Run(context.Background())
	require.NoError(t, err)

	dim, err := f.wh.ReadGold(star.TableDimUsers)
	require.NoError(t, err)
	require.Equal(t, 4, dim.NumRows())

	// Boston row is closed the day before the second run.
	idx := dim.ColumnIndex()
	var foundClosed bool
	for _, row := range dim.Rows {
		if row[idx["city"]] == "Boston" {
			foundClosed = true
			assert.Equal(t, false, row[idx["is_current"]])
			validTo := row[idx["valid_to"]].(time.Time)
			wantDay := report.RunDate.AddDate(0, 0, -1)
			assert.Equal(t, wantDay.Format("2006-01-02"), validTo.Format("2006-01-02"))
		}
	}
	assert.True(t, foundClosed)
}

func TestReferentialFailurePreservesWarehouse(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	report1, err := f.pipeline.Run(context.Background())
	require.NoError(t, err)

	// A transaction referencing an unknown product makes the next run fatal.
	f.append(t, "transactions",
		[]string{"transaction_id", "user_id", "product_id", "timestamp", "amount", "store_id"},
		[]interface{}{"T9", "U1", "P_MISSING", "2024-03-14T00:00:00Z", "1.0", "STORE_001"},
	)
	report2, err := f.pipeline.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, StatusFailed, report2.Status)

	// The gold tier still reflects the first run.
	facts, err := f.wh.ReadGold(star.TableFactTransactions)
	require.NoError(t, err)
	assert.Equal(t, 2, facts.NumRows())

	status, err := f.wh.Status()
	require.NoError(t, err)
	assert.Equal(t, report1.RunID, status.Tables[star.TableFactTransactions].RunID)
}

func TestNullUserJoinsUnknownDimensionMember(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	// A transaction captured without a user id.
	f.append(t, "transactions",
		[]string{"transaction_id", "user_id", "product_id", "timestamp", "amount", "store_id"},
		[]interface{}{"T5", "", "P1", "2024-03-13T09:00:00Z", "3.0", "STORE_001"},
	)

	_, err := f.pipeline.Run(context.Background())
	require.NoError(t, err)

	facts, err := f.wh.ReadGold(star.TableFactTransactions)
	require.NoError(t, err)
	dim, err := f.wh.ReadGold(star.TableDimUsers)
	require.NoError(t, err)

	keys := map[int64]bool{}
	idx := dim.ColumnIndex()
	for _, row := range dim.Rows {
		keys[row[idx["surrogate_key"]].(int64)] = true
	}

	// Every fact user_key, the null-user key 0 included, joins to a
	// dim_users row.
	fidx := facts.ColumnIndex()
	sawUnknown := false
	for _, row := range facts.Rows {
		key := row[fidx["user_key"]].(int64)
		assert.True(t, keys[key], "user_key %d has no dim_users row", key)
		if key == star.UnknownKey {
			sawUnknown = true
		}
	}
	assert.True(t, sawUnknown)
}

func TestStatusWriteFailureDoesNotFailRun(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	// A directory squatting on the status path makes its final rename fail.
	require.NoError(t, os.MkdirAll(filepath.Join(f.wh.Config().GoldDir(), "status.json"), 0o755))

	report, err := f.pipeline.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, report.Status)

	// The gold tier is live even though the status file never landed.
	facts, err := f.wh.ReadGold(star.TableFactTransactions)
	require.NoError(t, err)
	assert.Equal(t, 2, facts.NumRows())
}

func TestRunLoopPublishesOnSchedule(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	ctx, cancel := testutil.TestContext(t)
	defer cancel()
	loopCtx, stop := context.WithCancel(ctx)

	done := make(chan error, 1)
	go func() { done <- f.pipeline.RunLoop(loopCtx, 50*time.Millisecond) }()

	testutil.AssertEventually(t, func() bool {
		s, err := f.wh.Status()
		return err == nil && len(s.Tables) > 0
	}, 10*time.Second, "scheduled run publishes the gold tier")

	stop()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestRunLockConflict(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	require.NoError(t, f.wh.AcquireLock("external"))
	defer f.wh.ReleaseLock()

	report, err := f.pipeline.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, StatusConflict, report.Status)
	assert.True(t, warehouse.IsAlreadyRunning(err))
}

func TestQueryAfterRunPrunesPartitions(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	_, err := f.pipeline.Run(context.Background())
	require.NoError(t, err)

	res, err := f.wh.Query(warehouse.Query{
		Table:   star.TableFactTransactions,
		Filters: []partition.Filter{{Column: "date_key", Value: int64(20240310)}},
	})
	require.NoError(t, err)
	require.Equal(t, 1, res.Relation.NumRows())
	assert.Equal(t, "T1", res.Relation.Value(0, "transaction_id"))
	assert.Equal(t, 1, res.FilesOpened)
	assert.Equal(t, 1, res.FilesSkipped)
}

func TestRunOverGeneratedData(t *testing.T) {
	f := newFixture(t)

	producer := generate.New(f.raw, config.GenerateConfig{
		Transactions: 150,
		Users:        30,
		Products:     15,
		Stores:       4,
		Seed:         7,
	}, testutil.TestLogger(t))
	require.NoError(t, producer.Generate(context.Background()))

	report, err := f.pipeline.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, report.Status)

	facts, err := f.wh.ReadGold(star.TableFactTransactions)
	require.NoError(t, err)
	assert.Greater(t, facts.NumRows(), 0)

	dim, err := f.wh.ReadGold(star.TableDimUsers)
	require.NoError(t, err)
	assert.Equal(t, 31, dim.NumRows(), "30 users plus the unknown member row")
}
