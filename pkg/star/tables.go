package star

import (
	"github.com/stratumdb/stratum/pkg/scd"
	"github.com/stratumdb/stratum/pkg/schema"
	"github.com/stratumdb/stratum/pkg/store/partition"
)

// Gold table names.
const (
	TableDimUsers         = "dim_users"
	TableDimProducts      = "dim_products"
	TableDimStores        = "dim_stores"
	TableDimDates         = "dim_dates"
	TableFactTransactions = "fact_transactions"
	TableFactInventory    = "fact_inventory"
	TableFactShipments    = "fact_shipments"
)

// UnknownKey is the surrogate key facts use when the natural key is null.
// Every dimension leads with a matching key-0 member row, so a join on the
// unknown key always lands on a dimension row.
const UnknownKey int64 = 0

// DimUsersTable is the SCD2 user dimension, a single Parquet file.
func DimUsersTable() partition.Table {
	return partition.Table{Name: TableDimUsers, Fields: scd.Fields()}
}

func DimProductsTable() partition.Table {
	return partition.Table{
		Name: TableDimProducts,
		Fields: []schema.Field{
			{Name: "product_key", Type: schema.TypeInt},
			{Name: "product_id", Type: schema.TypeString},
			{Name: "product_name", Type: schema.TypeString},
			{Name: "category", Type: schema.TypeString},
			{Name: "price", Type: schema.TypeFloat},
		},
	}
}

func DimStoresTable() partition.Table {
	return partition.Table{
		Name: TableDimStores,
		Fields: []schema.Field{
			{Name: "store_key", Type: schema.TypeInt},
			{Name: "store_id", Type: schema.TypeString},
			{Name: "region", Type: schema.TypeString},
			{Name: "city", Type: schema.TypeString},
		},
	}
}

func DimDatesTable() partition.Table {
	return partition.Table{
		Name: TableDimDates,
		Fields: []schema.Field{
			{Name: "date_key", Type: schema.TypeInt},
			{Name: "full_date", Type: schema.TypeDate},
			{Name: "year", Type: schema.TypeInt},
			{Name: "quarter", Type: schema.TypeInt},
			{Name: "month", Type: schema.TypeInt},
			{Name: "day_of_week", Type: schema.TypeInt},
			{Name: "is_weekend", Type: schema.TypeBool},
		},
	}
}

func FactTransactionsTable() partition.Table {
	return partition.Table{
		Name: TableFactTransactions,
		Fields: []schema.Field{
			{Name: "transaction_id", Type: schema.TypeString},
			{Name: "user_key", Type: schema.TypeInt},
			{Name: "product_key", Type: schema.TypeInt},
			{Name: "store_key", Type: schema.TypeInt},
			{Name: "region", Type: schema.TypeString},
			{Name: "date_key", Type: schema.TypeInt},
			{Name: "timestamp", Type: schema.TypeTimestamp},
			{Name: "amount", Type: schema.TypeFloat},
		},
		PartitionBy: []string{"region", "date_key"},
	}
}

func FactInventoryTable() partition.Table {
	return partition.Table{
		Name: TableFactInventory,
		Fields: []schema.Field{
			{Name: "product_key", Type: schema.TypeInt},
			{Name: "store_key", Type: schema.TypeInt},
			{Name: "region", Type: schema.TypeString},
			{Name: "date_key", Type: schema.TypeInt},
			{Name: "stock_level", Type: schema.TypeInt},
			{Name: "reorder_point", Type: schema.TypeInt},
			{Name: "last_restock_date", Type: schema.TypeDate},
			{Name: "stock_status", Type: schema.TypeString},
			{Name: "needs_reorder", Type: schema.TypeBool},
			{Name: "days_since_restock", Type: schema.TypeInt},
		},
		PartitionBy: []string{"region", "date_key"},
	}
}

func FactShipmentsTable() partition.Table {
	return partition.Table{
		Name: TableFactShipments,
		Fields: []schema.Field{
			{Name: "shipment_id", Type: schema.TypeString},
			{Name: "transaction_id", Type: schema.TypeString},
			{Name: "origin_store_key", Type: schema.TypeInt},
			{Name: "dest_store_key", Type: schema.TypeInt},
			{Name: "origin_region", Type: schema.TypeString},
			{Name: "dest_region", Type: schema.TypeString},
			{Name: "date_key", Type: schema.TypeInt},
			{Name: "shipped_date", Type: schema.TypeDate},
			{Name: "delivered_date", Type: schema.TypeDate},
			{Name: "delivery_days", Type: schema.TypeInt},
			{Name: "carrier", Type: schema.TypeString},
			{Name: "tracking_number", Type: schema.TypeString},
			{Name: "status", Type: schema.TypeString},
			{Name: "shipping_cost", Type: schema.TypeFloat},
			{Name: "delivery_category", Type: schema.TypeString},
		},
		PartitionBy: []string{"origin_region", "date_key"},
	}
}

// Tables lists every gold table in build order: dimensions before facts.
func Tables() []partition.Table {
	return []partition.Table{
		DimUsersTable(),
		DimProductsTable(),
		DimStoresTable(),
		DimDatesTable(),
		FactTransactionsTable(),
		FactInventoryTable(),
		FactShipmentsTable(),
	}
}

// TableByName looks up a gold table definition.
func TableByName(name string) (partition.Table, bool) {
	for _, t := range Tables() {
		if t.Name == name {
			return t, true
		}
	}
	return partition.Table{}, false
}
