// Package schema declares the canonical schemas of the logical entity types
// and reconciles heterogeneous raw batches against them.
//
// # Entity schemas
//
// Each entity type declares a minimal required key column set, an open-ended
// set of optional attribute columns with canonical types and per-column
// defaults, and its row-level business rules. The cleaner consults these
// declarations; nothing about validation or default-filling is inlined
// elsewhere.
//
// # Reconciliation
//
// Raw batches for one entity may each carry a different column set. The
// reconciler merges them by column name union: a batch missing a column
// contributes nulls for it. Matching is by exact name; semantic column
// mapping happens upstream, before batches reach the raw store.
package schema

import (
	"github.com/stratumdb/stratum/pkg/errors"
)

// FieldType is a canonical column type.
type FieldType string

const (
	// TypeString is a UTF-8 string column
	TypeString FieldType = "string"
	// TypeFloat is a 64-bit float column
	TypeFloat FieldType = "float"
	// TypeInt is a 64-bit integer column
	TypeInt FieldType = "int"
	// TypeBool is a boolean column
	TypeBool FieldType = "bool"
	// TypeTimestamp is a UTC timestamp column with sub-day precision
	TypeTimestamp FieldType = "timestamp"
	// TypeDate is a UTC calendar date column (midnight-normalized)
	TypeDate FieldType = "date"
)

// Field declares one canonical column of an entity schema.
type Field struct {
	// Name is the canonical column name
	Name string
	// Type is the canonical value type
	Type FieldType
	// Key marks primary key columns
	Key bool
	// Default, when non-nil, replaces nulls after cleaning so downstream
	// fact tables never see nulls in join columns
	Default interface{}
}

// Rule is a row-level business rule. Valid receives the coerced value (nil
// for null) and reports acceptance; rows failing any rule are dropped and
// counted, never fatal.
type Rule struct {
	// Name identifies the rule in reports and logs
	Name string
	// Column is the value handed to Valid
	Column string
	// Valid reports whether the value passes
	Valid func(v interface{}) bool
}

// Entity is the canonical schema of one logical entity type.
type Entity struct {
	// Name is the entity type name, e.g. "transactions"
	Name string
	// Fields is the canonical ordered column set, keys included
	Fields []Field
	// Rules are the entity's business rules
	Rules []Rule
}

// Key returns the primary key column names in declaration order.
func (e *Entity) Key() []string {
	var key []string
	for _, f := range e.Fields {
		if f.Key {
			key = append(key, f.Name)
		}
	}
	return key
}

// Field returns the declared field with the given name.
func (e *Entity) Field(name string) (Field, bool) {
	for _, f := range e.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// ColumnNames returns the canonical column names in order.
func (e *Entity) ColumnNames() []string {
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = f.Name
	}
	return names
}

// Lookup returns the entity schema for the given entity type name.
func Lookup(name string) (*Entity, error) {
	for _, e := range Entities {
		if e.Name == name {
			return e, nil
		}
	}
	return nil, errors.New(errors.ErrorTypeNotFound, "unknown entity type").
		WithDetail("entity", name)
}
