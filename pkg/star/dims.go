package star

import (
	"sort"
	"time"

	"github.com/stratumdb/stratum/pkg/models"
	"github.com/stratumdb/stratum/pkg/schema"
)

// buildDimProducts merges refined products into the prior product dimension.
// Keys are append-only: a product keeps its key forever, attribute changes
// overwrite in place, vanished products keep their row, and new products get
// keys continuing from the maximum. Like every dimension, the output leads
// with the key-0 unknown member row.
func buildDimProducts(prior, refined *models.Relation) *models.Relation {
	type member struct {
		key   int64
		attrs []interface{} // product_name, category, price
	}
	members := make(map[string]*member)
	var maxKey int64

	if prior != nil {
		idx := prior.ColumnIndex()
		for _, row := range prior.Rows {
			id, _ := row[idx["product_id"]].(string)
			if id == "" {
				continue // key-0 unknown member row
			}
			key, _ := row[idx["product_key"]].(int64)
			members[id] = &member{key: key, attrs: []interface{}{
				row[idx["product_name"]], row[idx["category"]], row[idx["price"]],
			}}
			if key > maxKey {
				maxKey = key
			}
		}
	}

	idx := refined.ColumnIndex()
	var fresh []string
	for _, row := range refined.Rows {
		id, _ := row[idx["product_id"]].(string)
		attrs := []interface{}{row[idx["product_name"]], row[idx["category"]], row[idx["price"]]}
		if m, ok := members[id]; ok {
			m.attrs = attrs
		} else {
			members[id] = &member{attrs: attrs}
			fresh = append(fresh, id)
		}
	}
	sort.Strings(fresh)
	for _, id := range fresh {
		maxKey++
		members[id].key = maxKey
	}

	ids := make([]string, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return members[ids[i]].key < members[ids[j]].key })

	out := models.NewRelation("product_key", "product_id", "product_name", "category", "price")
	out.AppendRow([]interface{}{UnknownKey, nil, nil, nil, nil})
	for _, id := range ids {
		m := members[id]
		out.AppendRow([]interface{}{m.key, id, m.attrs[0], m.attrs[1], m.attrs[2]})
	}
	return out
}

// DeriveRegion returns the region for a store with no declared region:
// "Region_" plus the last three characters of the store id. The unknown
// store sentinel maps to its own region.
func DeriveRegion(storeID string) string {
	if storeID == schema.UnknownStoreID {
		return "Region_UNKNOWN"
	}
	if len(storeID) < 3 {
		return "Region_" + storeID
	}
	return "Region_" + storeID[len(storeID)-3:]
}

// buildDimStores covers every store the run has seen: declared stores plus
// any store id referenced by a fact source. Referenced-only stores get a
// derived region and a null city. Keys are append-only like dim_products.
func buildDimStores(prior, refined *models.Relation, referenced map[string]bool) *models.Relation {
	type member struct {
		key    int64
		region interface{}
		city   interface{}
	}
	members := make(map[string]*member)
	var maxKey int64

	if prior != nil {
		idx := prior.ColumnIndex()
		for _, row := range prior.Rows {
			id, _ := row[idx["store_id"]].(string)
			if id == "" {
				continue // key-0 unknown member row
			}
			key, _ := row[idx["store_key"]].(int64)
			members[id] = &member{key: key, region: row[idx["region"]], city: row[idx["city"]]}
			if key > maxKey {
				maxKey = key
			}
		}
	}

	apply := func(id string, region, city interface{}) {
		if region == nil {
			region = DeriveRegion(id)
		}
		if m, ok := members[id]; ok {
			m.region = region
			if city != nil {
				m.city = city
			}
			return
		}
		members[id] = &member{region: region, city: city}
	}

	if refined != nil {
		idx := refined.ColumnIndex()
		for _, row := range refined.Rows {
			id, _ := row[idx["store_id"]].(string)
			if id == "" {
				continue
			}
			apply(id, row[idx["region"]], row[idx["city"]])
		}
	}
	for id := range referenced {
		if _, ok := members[id]; !ok {
			apply(id, nil, nil)
		}
	}

	var fresh []string
	for id, m := range members {
		if m.key == 0 {
			fresh = append(fresh, id)
		}
	}
	sort.Strings(fresh)
	for _, id := range fresh {
		maxKey++
		members[id].key = maxKey
	}

	ids := make([]string, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return members[ids[i]].key < members[ids[j]].key })

	out := models.NewRelation("store_key", "store_id", "region", "city")
	out.AppendRow([]interface{}{UnknownKey, nil, "Region_UNKNOWN", nil})
	for _, id := range ids {
		m := members[id]
		out.AppendRow([]interface{}{m.key, id, m.region, m.city})
	}
	return out
}

// withUnknownUser prepends the key-0 member row to the user dimension the
// tracker produced. Facts whose user_id is null join to this row.
func withUnknownUser(dim *models.Relation) *models.Relation {
	out := models.NewRelation(dim.Columns...)
	out.AppendRow([]interface{}{UnknownKey, nil, nil, nil, nil, nil, nil, nil, true})
	for _, row := range dim.Rows {
		out.AppendRow(row)
	}
	return out
}

// buildDimDates emits one row per calendar day between the earliest and
// latest observed event date, plus a date_key=0 row that facts with no event
// date join to.
func buildDimDates(min, max time.Time, haveDates bool) *models.Relation {
	out := models.NewRelation("date_key", "full_date", "year", "quarter", "month", "day_of_week", "is_weekend")
	out.AppendRow([]interface{}{UnknownKey, nil, nil, nil, nil, nil, nil})

	if !haveDates {
		return out
	}
	for d := min; !d.After(max); d = d.AddDate(0, 0, 1) {
		dow := int64(d.Weekday())
		if dow == 0 {
			dow = 7 // Sunday last, ISO style
		}
		out.AppendRow([]interface{}{
			DateKey(d),
			d,
			int64(d.Year()),
			int64((int(d.Month())-1)/3 + 1),
			int64(d.Month()),
			dow,
			dow >= 6,
		})
	}
	return out
}

// DateKey renders a date as a yyyymmdd integer key.
func DateKey(t time.Time) int64 {
	t = t.UTC()
	return int64(t.Year())*10000 + int64(t.Month())*100 + int64(t.Day())
}

func midnight(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
