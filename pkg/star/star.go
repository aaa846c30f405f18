// Package star derives the gold-tier star schema from refined entity
// relations: conformed dimensions with stable surrogate keys, a calendar
// dimension, and partitioned fact tables. Dimension keys are append-only;
// fact rows must resolve every non-null natural key or the build fails.
package star

import (
	"time"

	"go.uber.org/zap"

	"github.com/stratumdb/stratum/pkg/logger"
	"github.com/stratumdb/stratum/pkg/models"
	"github.com/stratumdb/stratum/pkg/scd"
)

// Inputs are the refined relations and the prior dimensions. DimUsers is the
// already-updated SCD2 dimension. Prior dims may be nil on the first run.
type Inputs struct {
	DimUsers     *models.Relation
	Products     *models.Relation
	Stores       *models.Relation
	Transactions *models.Relation
	Inventory    *models.Relation
	Shipments    *models.Relation

	PriorDimProducts *models.Relation
	PriorDimStores   *models.Relation
}

// Output holds every gold table built by one run, keyed for staging.
type Output struct {
	DimUsers         *models.Relation
	DimProducts      *models.Relation
	DimStores        *models.Relation
	DimDates         *models.Relation
	FactTransactions *models.Relation
	FactInventory    *models.Relation
	FactShipments    *models.Relation
}

// Relations maps table name to relation, in build order.
func (o *Output) Relations() map[string]*models.Relation {
	return map[string]*models.Relation{
		TableDimUsers:         o.DimUsers,
		TableDimProducts:      o.DimProducts,
		TableDimStores:        o.DimStores,
		TableDimDates:         o.DimDates,
		TableFactTransactions: o.FactTransactions,
		TableFactInventory:    o.FactInventory,
		TableFactShipments:    o.FactShipments,
	}
}

// Build constructs dimensions first, then facts against them.
func Build(in Inputs, runDate time.Time, log *zap.Logger) (*Output, error) {
	if log == nil {
		log = logger.Get()
	}

	out := &Output{DimUsers: withUnknownUser(in.DimUsers)}
	out.DimProducts = buildDimProducts(in.PriorDimProducts, in.Products)
	out.DimStores = buildDimStores(in.PriorDimStores, in.Stores, referencedStores(in))

	min, max, haveDates := dateRange(in)
	out.DimDates = buildDimDates(min, max, haveDates)

	dims := &dimIndex{
		users:    scd.CurrentKeys(in.DimUsers),
		products: naturalKeys(out.DimProducts, "product_id", "product_key"),
		stores:   naturalKeys(out.DimStores, "store_id", "store_key"),
		regions:  storeRegions(out.DimStores),
	}

	var err error
	if out.FactTransactions, err = buildFactTransactions(in.Transactions, dims); err != nil {
		return nil, err
	}
	if out.FactInventory, err = buildFactInventory(in.Inventory, dims, runDate); err != nil {
		return nil, err
	}
	if out.FactShipments, err = buildFactShipments(in.Shipments, dims); err != nil {
		return nil, err
	}

	log.Info("star schema built",
		zap.Int("dim_users", out.DimUsers.NumRows()),
		zap.Int("dim_products", out.DimProducts.NumRows()),
		zap.Int("dim_stores", out.DimStores.NumRows()),
		zap.Int("dim_dates", out.DimDates.NumRows()),
		zap.Int("fact_transactions", out.FactTransactions.NumRows()),
		zap.Int("fact_inventory", out.FactInventory.NumRows()),
		zap.Int("fact_shipments", out.FactShipments.NumRows()))

	return out, nil
}

// referencedStores collects every store id a fact source mentions, so the
// store dimension can cover stores never declared in the stores entity.
func referencedStores(in Inputs) map[string]bool {
	refs := make(map[string]bool)
	collect := func(rel *models.Relation, columns ...string) {
		if rel == nil {
			return
		}
		idx := rel.ColumnIndex()
		for _, col := range columns {
			j, ok := idx[col]
			if !ok {
				continue
			}
			for _, row := range rel.Rows {
				if id, ok := row[j].(string); ok && id != "" {
					refs[id] = true
				}
			}
		}
	}
	collect(in.Transactions, "store_id")
	collect(in.Inventory, "store_id")
	collect(in.Shipments, "origin_store_id", "dest_store_id")
	return refs
}

// dateRange spans every observed event date across the fact sources.
func dateRange(in Inputs) (time.Time, time.Time, bool) {
	var min, max time.Time
	have := false
	observe := func(rel *models.Relation, column string) {
		if rel == nil {
			return
		}
		idx := rel.ColumnIndex()
		j, ok := idx[column]
		if !ok {
			return
		}
		for _, row := range rel.Rows {
			t, ok := row[j].(time.Time)
			if !ok {
				continue
			}
			d := midnight(t)
			if !have {
				min, max, have = d, d, true
				continue
			}
			if d.Before(min) {
				min = d
			}
			if d.After(max) {
				max = d
			}
		}
	}
	observe(in.Transactions, "timestamp")
	observe(in.Inventory, "last_restock_date")
	observe(in.Shipments, "shipped_date")
	observe(in.Shipments, "delivered_date")
	return min, max, have
}

func naturalKeys(dim *models.Relation, idColumn, keyColumn string) map[string]int64 {
	idx := dim.ColumnIndex()
	keys := make(map[string]int64, dim.NumRows())
	for _, row := range dim.Rows {
		id, _ := row[idx[idColumn]].(string)
		key, _ := row[idx[keyColumn]].(int64)
		keys[id] = key
	}
	return keys
}

func storeRegions(dim *models.Relation) map[string]string {
	idx := dim.ColumnIndex()
	regions := make(map[string]string, dim.NumRows())
	for _, row := range dim.Rows {
		id, _ := row[idx["store_id"]].(string)
		if region, ok := row[idx["region"]].(string); ok {
			regions[id] = region
		}
	}
	return regions
}
