package star

import (
	"time"

	"github.com/stratumdb/stratum/pkg/errors"
	"github.com/stratumdb/stratum/pkg/models"
)

// dimIndex holds the natural-key lookups facts resolve against. A miss on a
// non-null natural key is a referential-integrity failure and aborts the run.
type dimIndex struct {
	users    map[string]int64
	products map[string]int64
	stores   map[string]int64
	regions  map[string]string
}

func (d *dimIndex) resolve(table string, m map[string]int64, v interface{}) (int64, error) {
	if v == nil {
		return UnknownKey, nil
	}
	id, ok := v.(string)
	if !ok {
		return 0, errors.New(errors.ErrorTypeData, "natural key is not a string").
			WithDetail("dimension", table).
			WithDetail("value", v)
	}
	key, ok := m[id]
	if !ok {
		return 0, errors.New(errors.ErrorTypeData, "fact references a missing dimension member").
			WithDetail("dimension", table).
			WithDetail("natural_key", id)
	}
	return key, nil
}

func (d *dimIndex) userKey(v interface{}) (int64, error) {
	return d.resolve(TableDimUsers, d.users, v)
}

func (d *dimIndex) productKey(v interface{}) (int64, error) {
	return d.resolve(TableDimProducts, d.products, v)
}

func (d *dimIndex) storeKey(v interface{}) (int64, error) {
	return d.resolve(TableDimStores, d.stores, v)
}

// storeRegion returns the region a fact row is partitioned under. Facts with
// no store land in the unknown-store region.
func (d *dimIndex) storeRegion(v interface{}) string {
	id, ok := v.(string)
	if !ok {
		return "Region_UNKNOWN"
	}
	if region, ok := d.regions[id]; ok {
		return region
	}
	return DeriveRegion(id)
}

func dateKeyOf(v interface{}) int64 {
	t, ok := v.(time.Time)
	if !ok {
		return UnknownKey
	}
	return DateKey(t)
}

func buildFactTransactions(refined *models.Relation, dims *dimIndex) (*models.Relation, error) {
	out := models.NewRelation("transaction_id", "user_key", "product_key", "store_key",
		"region", "date_key", "timestamp", "amount")
	idx := refined.ColumnIndex()

	for _, row := range refined.Rows {
		userKey, err := dims.userKey(row[idx["user_id"]])
		if err != nil {
			return nil, err
		}
		productKey, err := dims.productKey(row[idx["product_id"]])
		if err != nil {
			return nil, err
		}
		storeID := row[idx["store_id"]]
		storeKey, err := dims.storeKey(storeID)
		if err != nil {
			return nil, err
		}

		out.AppendRow([]interface{}{
			row[idx["transaction_id"]],
			userKey,
			productKey,
			storeKey,
			dims.storeRegion(storeID),
			dateKeyOf(row[idx["timestamp"]]),
			row[idx["timestamp"]],
			row[idx["amount"]],
		})
	}
	return out, nil
}

func buildFactInventory(refined *models.Relation, dims *dimIndex, runDate time.Time) (*models.Relation, error) {
	out := models.NewRelation("product_key", "store_key", "region", "date_key",
		"stock_level", "reorder_point", "last_restock_date", "stock_status",
		"needs_reorder", "days_since_restock")
	idx := refined.ColumnIndex()

	for _, row := range refined.Rows {
		productKey, err := dims.productKey(row[idx["product_id"]])
		if err != nil {
			return nil, err
		}
		storeID := row[idx["store_id"]]
		storeKey, err := dims.storeKey(storeID)
		if err != nil {
			return nil, err
		}

		stock, stockOK := row[idx["stock_level"]].(int64)
		reorder, reorderOK := row[idx["reorder_point"]].(int64)
		var needsReorder interface{}
		if stockOK && reorderOK {
			needsReorder = stock <= reorder
		}

		restock := row[idx["last_restock_date"]]
		var daysSince interface{}
		if t, ok := restock.(time.Time); ok {
			daysSince = int64(midnight(runDate).Sub(midnight(t)).Hours() / 24)
		}

		out.AppendRow([]interface{}{
			productKey,
			storeKey,
			dims.storeRegion(storeID),
			dateKeyOf(restock),
			row[idx["stock_level"]],
			row[idx["reorder_point"]],
			restock,
			row[idx["stock_status"]],
			needsReorder,
			daysSince,
		})
	}
	return out, nil
}

// deliveryCategory buckets shipment speed the way downstream reports expect:
// delivered within 3 days is fast, within 7 normal, beyond that slow;
// undelivered shipments are delayed or pending by status.
func deliveryCategory(deliveryDays interface{}, status interface{}) string {
	if days, ok := deliveryDays.(int64); ok {
		switch {
		case days <= 3:
			return "fast"
		case days <= 7:
			return "normal"
		default:
			return "slow"
		}
	}
	if s, ok := status.(string); ok && s == "delayed" {
		return "delayed"
	}
	return "pending"
}

func buildFactShipments(refined *models.Relation, dims *dimIndex) (*models.Relation, error) {
	out := models.NewRelation("shipment_id", "transaction_id", "origin_store_key",
		"dest_store_key", "origin_region", "dest_region", "date_key", "shipped_date",
		"delivered_date", "delivery_days", "carrier", "tracking_number", "status",
		"shipping_cost", "delivery_category")
	idx := refined.ColumnIndex()

	for _, row := range refined.Rows {
		originID := row[idx["origin_store_id"]]
		originKey, err := dims.storeKey(originID)
		if err != nil {
			return nil, err
		}
		destID := row[idx["dest_store_id"]]
		destKey, err := dims.storeKey(destID)
		if err != nil {
			return nil, err
		}

		out.AppendRow([]interface{}{
			row[idx["shipment_id"]],
			row[idx["transaction_id"]],
			originKey,
			destKey,
			dims.storeRegion(originID),
			dims.storeRegion(destID),
			dateKeyOf(row[idx["shipped_date"]]),
			row[idx["shipped_date"]],
			row[idx["delivered_date"]],
			row[idx["delivery_days"]],
			row[idx["carrier"]],
			row[idx["tracking_number"]],
			row[idx["status"]],
			row[idx["shipping_cost"]],
			deliveryCategory(row[idx["delivery_days"]], row[idx["status"]]),
		})
	}
	return out, nil
}
