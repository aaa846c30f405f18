package schema

// Sentinel defaults. Facts must always resolve their dimension keys, so
// missing join columns are filled with sentinels instead of nulls.
const (
	// UnknownStoreID is the sentinel store for rows missing store_id.
	UnknownStoreID = "STORE_UNKNOWN"
	// UnknownCity fills missing user cities.
	UnknownCity = "Unknown"
	// UnknownCategory fills missing product categories.
	UnknownCategory = "Uncategorized"
	// PendingStatus fills missing shipment statuses.
	PendingStatus = "pending"
)

func positiveFloat(v interface{}) bool {
	f, ok := v.(float64)
	return ok && f > 0
}

func nonNegativeFloat(v interface{}) bool {
	if v == nil {
		return true
	}
	f, ok := v.(float64)
	return ok && f >= 0
}

func nonNegativeInt(v interface{}) bool {
	i, ok := v.(int64)
	return ok && i >= 0
}

// Users is the customer entity; the only SCD2-tracked dimension source.
var Users = &Entity{
	Name: "users",
	Fields: []Field{
		{Name: "user_id", Type: TypeString, Key: true},
		{Name: "name", Type: TypeString},
		{Name: "email", Type: TypeString},
		{Name: "city", Type: TypeString, Default: UnknownCity},
		{Name: "signup_date", Type: TypeDate},
	},
}

// Products is the product catalog entity.
var Products = &Entity{
	Name: "products",
	Fields: []Field{
		{Name: "product_id", Type: TypeString, Key: true},
		{Name: "product_name", Type: TypeString},
		{Name: "category", Type: TypeString, Default: UnknownCategory},
		{Name: "price", Type: TypeFloat},
	},
	Rules: []Rule{
		{Name: "positive_price", Column: "price", Valid: positiveFloat},
	},
}

// Stores is the store entity. Store rows may also be discovered implicitly
// from transaction, inventory, and shipment references.
var Stores = &Entity{
	Name: "stores",
	Fields: []Field{
		{Name: "store_id", Type: TypeString, Key: true},
		{Name: "region", Type: TypeString},
		{Name: "city", Type: TypeString},
	},
}

// Transactions is the sales line-item entity. The key is composite: one
// transaction spans multiple products.
var Transactions = &Entity{
	Name: "transactions",
	Fields: []Field{
		{Name: "transaction_id", Type: TypeString, Key: true},
		{Name: "product_id", Type: TypeString, Key: true},
		{Name: "user_id", Type: TypeString},
		{Name: "timestamp", Type: TypeTimestamp},
		{Name: "amount", Type: TypeFloat},
		{Name: "store_id", Type: TypeString, Default: UnknownStoreID},
	},
	Rules: []Rule{
		{Name: "positive_amount", Column: "amount", Valid: positiveFloat},
	},
}

// Inventory is the per-store stock snapshot entity.
var Inventory = &Entity{
	Name: "inventory",
	Fields: []Field{
		{Name: "product_id", Type: TypeString, Key: true},
		{Name: "store_id", Type: TypeString, Key: true},
		{Name: "stock_level", Type: TypeInt},
		{Name: "reorder_point", Type: TypeInt},
		{Name: "last_restock_date", Type: TypeDate},
		{Name: "stock_status", Type: TypeString},
	},
	Rules: []Rule{
		{Name: "non_negative_stock", Column: "stock_level", Valid: nonNegativeInt},
	},
}

// Shipments is the fulfillment entity.
var Shipments = &Entity{
	Name: "shipments",
	Fields: []Field{
		{Name: "shipment_id", Type: TypeString, Key: true},
		{Name: "transaction_id", Type: TypeString},
		{Name: "origin_store_id", Type: TypeString, Default: UnknownStoreID},
		{Name: "dest_store_id", Type: TypeString, Default: UnknownStoreID},
		{Name: "shipped_date", Type: TypeDate},
		{Name: "delivered_date", Type: TypeDate},
		{Name: "delivery_days", Type: TypeInt},
		{Name: "carrier", Type: TypeString},
		{Name: "tracking_number", Type: TypeString},
		{Name: "status", Type: TypeString, Default: PendingStatus},
		{Name: "shipping_cost", Type: TypeFloat},
	},
	Rules: []Rule{
		{Name: "non_negative_shipping_cost", Column: "shipping_cost", Valid: nonNegativeFloat},
	},
}

// Entities lists every logical entity type in pipeline processing order.
var Entities = []*Entity{Users, Products, Stores, Transactions, Inventory, Shipments}
