// Package scd maintains the slowly-changing user dimension. Changes to the
// tracked attributes open a new version row; the superseded row is closed
// with valid_to set to the day before the run date and is_current flipped
// off. A tracked change landing on the current version's own start date
// corrects that version in place instead of closing it. Untracked attribute
// changes overwrite the current row in place.
package scd

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/stratumdb/stratum/pkg/logger"
	"github.com/stratumdb/stratum/pkg/models"
	"github.com/stratumdb/stratum/pkg/schema"
)

// TrackedAttributes are the user columns whose change creates a new version.
var TrackedAttributes = []string{"city", "email"}

// untracked user attributes carried on each version but never versioned.
var untrackedAttributes = []string{"name", "signup_date"}

// Fields is the canonical dim_users schema.
func Fields() []schema.Field {
	return []schema.Field{
		{Name: "surrogate_key", Type: schema.TypeInt},
		{Name: "user_id", Type: schema.TypeString},
		{Name: "name", Type: schema.TypeString},
		{Name: "email", Type: schema.TypeString},
		{Name: "city", Type: schema.TypeString},
		{Name: "signup_date", Type: schema.TypeDate},
		{Name: "valid_from", Type: schema.TypeDate},
		{Name: "valid_to", Type: schema.TypeDate},
		{Name: "is_current", Type: schema.TypeBool},
	}
}

// ColumnNames returns the dim_users column order.
func ColumnNames() []string {
	fields := Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	return names
}

// Report summarizes what one application of refined users did to the
// dimension.
type Report struct {
	NewUsers  int
	Changed   int
	Unchanged int
	RowsOut   int
}

type version struct {
	surrogateKey int64
	userID       string
	attrs        map[string]interface{}
	validFrom    time.Time
	validTo      interface{} // nil while current
	isCurrent    bool
}

// Apply merges refined users into the existing dimension and returns the
// full replacement relation. Surrogate keys already assigned never change;
// new versions continue from the maximum existing key. Applying the same
// refined input twice yields an identical dimension.
func Apply(existing, refined *models.Relation, runDate time.Time, log *zap.Logger) (*models.Relation, *Report, error) {
	if log == nil {
		log = logger.Get()
	}
	runDate = midnight(runDate)

	versions, maxKey := decode(existing)
	report := &Report{}

	refinedIdx := refined.ColumnIndex()
	seen := make(map[string]bool, refined.NumRows())
	for _, row := range refined.Rows {
		userID, _ := row[refinedIdx["user_id"]].(string)
		if userID == "" || seen[userID] {
			continue
		}
		seen[userID] = true

		incoming := make(map[string]interface{})
		for _, col := range append(append([]string{}, TrackedAttributes...), untrackedAttributes...) {
			if j, ok := refinedIdx[col]; ok {
				incoming[col] = row[j]
			}
		}

		cur := currentVersion(versions[userID])
		switch {
		case cur == nil:
			maxKey++
			versions[userID] = append(versions[userID], &version{
				surrogateKey: maxKey,
				userID:       userID,
				attrs:        incoming,
				validFrom:    runDate,
				isCurrent:    true,
			})
			report.NewUsers++

		case trackedChanged(cur.attrs, incoming):
			if cur.validFrom.Equal(runDate) {
				// The current version opened on this run date. Correct
				// it in place; closing it would set valid_to before
				// valid_from.
				cur.attrs = incoming
				report.Changed++
				log.Debug("user version corrected",
					zap.String("user_id", userID),
					zap.Int64("surrogate_key", cur.surrogateKey))
				continue
			}
			cur.validTo = runDate.AddDate(0, 0, -1)
			cur.isCurrent = false
			maxKey++
			versions[userID] = append(versions[userID], &version{
				surrogateKey: maxKey,
				userID:       userID,
				attrs:        incoming,
				validFrom:    runDate,
				isCurrent:    true,
			})
			report.Changed++
			log.Debug("user version opened",
				zap.String("user_id", userID),
				zap.Int64("surrogate_key", maxKey))

		default:
			for _, col := range untrackedAttributes {
				cur.attrs[col] = incoming[col]
			}
			report.Unchanged++
		}
	}

	out := encode(versions)
	report.RowsOut = out.NumRows()

	log.Info("user dimension updated",
		zap.Int("new", report.NewUsers),
		zap.Int("changed", report.Changed),
		zap.Int("unchanged", report.Unchanged),
		zap.Int("rows", report.RowsOut))

	return out, report, nil
}

// CurrentKeys returns user_id -> surrogate_key for current versions only.
func CurrentKeys(dim *models.Relation) map[string]int64 {
	keys := make(map[string]int64)
	if dim == nil {
		return keys
	}
	idx := dim.ColumnIndex()
	for _, row := range dim.Rows {
		if cur, _ := row[idx["is_current"]].(bool); !cur {
			continue
		}
		userID, _ := row[idx["user_id"]].(string)
		key, _ := row[idx["surrogate_key"]].(int64)
		keys[userID] = key
	}
	return keys
}

func decode(existing *models.Relation) (map[string][]*version, int64) {
	versions := make(map[string][]*version)
	var maxKey int64
	if existing == nil || existing.NumRows() == 0 {
		return versions, maxKey
	}

	idx := existing.ColumnIndex()
	for _, row := range existing.Rows {
		userID, _ := row[idx["user_id"]].(string)
		if userID == "" {
			continue // key-0 unknown member row from the gold tier
		}
		v := &version{
			userID: userID,
			attrs:  make(map[string]interface{}),
		}
		v.surrogateKey, _ = row[idx["surrogate_key"]].(int64)
		for _, col := range append(append([]string{}, TrackedAttributes...), untrackedAttributes...) {
			if j, ok := idx[col]; ok {
				v.attrs[col] = row[j]
			}
		}
		if from, ok := row[idx["valid_from"]].(time.Time); ok {
			v.validFrom = from
		}
		if to, ok := row[idx["valid_to"]].(time.Time); ok {
			v.validTo = to
		}
		v.isCurrent, _ = row[idx["is_current"]].(bool)

		versions[v.userID] = append(versions[v.userID], v)
		if v.surrogateKey > maxKey {
			maxKey = v.surrogateKey
		}
	}
	return versions, maxKey
}

func encode(versions map[string][]*version) *models.Relation {
	userIDs := make([]string, 0, len(versions))
	for id := range versions {
		userIDs = append(userIDs, id)
	}
	sort.Strings(userIDs)

	out := models.NewRelation(ColumnNames()...)
	for _, id := range userIDs {
		vs := versions[id]
		sort.Slice(vs, func(i, j int) bool { return vs[i].surrogateKey < vs[j].surrogateKey })
		for _, v := range vs {
			out.AppendRow([]interface{}{
				v.surrogateKey,
				v.userID,
				v.attrs["name"],
				v.attrs["email"],
				v.attrs["city"],
				v.attrs["signup_date"],
				v.validFrom,
				v.validTo,
				v.isCurrent,
			})
		}
	}
	return out
}

func currentVersion(vs []*version) *version {
	for _, v := range vs {
		if v.isCurrent {
			return v
		}
	}
	return nil
}

func trackedChanged(old, incoming map[string]interface{}) bool {
	for _, col := range TrackedAttributes {
		if !cellEqual(old[col], incoming[col]) {
			return true
		}
	}
	return false
}

func cellEqual(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if at, ok := a.(time.Time); ok {
		bt, ok := b.(time.Time)
		return ok && at.Equal(bt)
	}
	return a == b
}

func midnight(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
