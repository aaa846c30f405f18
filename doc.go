// Package stratum provides a layered retail data warehouse engine. Raw
// entity batches land in an append-only bronze tier, are reconciled and
// cleaned into refined silver tables, and are published as a partitioned
// gold-tier star schema with slowly-changing user history.
//
// # Architecture
//
// A warehouse rebuild is a single synchronous pass:
//
//  1. Raw record store: append-only CSV batches with capture order preserved
//     in a manifest. Batches are immutable once written.
//
//  2. Schema reconciler: batches for one entity are merged by column name
//     into a single raw relation; columns absent from a batch read as null.
//
//  3. Cleaner: rows are validated against each entity's canonical schema,
//     duplicate keys are resolved latest-capture-wins, uncoercible values
//     become nulls, and declared defaults are applied.
//
//  4. History tracker: changes to tracked user attributes open new dimension
//     versions; superseded versions are closed the day before the run date.
//
//  5. Star schema builder: conformed dimensions with stable surrogate keys
//     and fact tables that must resolve every non-null natural key.
//
//  6. Partition layout manager: facts are written as hive-style partition
//     directories, staged per run, and swapped in atomically so readers see
//     either the previous state or the new state of a table.
//
// # Quick Start
//
// Generate synthetic batches and rebuild the warehouse:
//
//	stratum config init
//	stratum generate --transactions 1000 --seed 42
//	stratum run
//	stratum status
//
// # Key Packages
//
//	pkg/schema          - entity registry and schema reconciler
//	pkg/clean           - validation, dedup, coercion, defaults
//	pkg/scd             - slowly-changing user dimension
//	pkg/star            - dimensions, facts, date dimension
//	pkg/store/raw       - bronze tier batch store
//	pkg/store/columnar  - Parquet read/write
//	pkg/store/partition - partition pruning and staged swaps
//	pkg/store/warehouse - tier layout, run lock, status, queries
//	internal/pipeline   - run orchestration
//
// Configuration is a YAML file with STRATUM_* environment overrides; see
// pkg/config.
package stratum
