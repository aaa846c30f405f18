// Package warehouse is the facade over the three storage tiers. It owns the
// directory layout, the exclusive run lock, the per-table status file, and
// the query interface over the gold tier.
package warehouse

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/stratumdb/stratum/pkg/config"
	"github.com/stratumdb/stratum/pkg/errors"
	"github.com/stratumdb/stratum/pkg/logger"
	"github.com/stratumdb/stratum/pkg/models"
	"github.com/stratumdb/stratum/pkg/star"
	"github.com/stratumdb/stratum/pkg/store/columnar"
	"github.com/stratumdb/stratum/pkg/store/partition"
)

// Warehouse coordinates access to the bronze, silver and gold tiers.
type Warehouse struct {
	cfg *config.Config
	log *zap.Logger

	mu     sync.Mutex
	locked bool
}

// New prepares the tier directories.
func New(cfg *config.Config, log *zap.Logger) (*Warehouse, error) {
	if log == nil {
		log = logger.Get()
	}
	for _, dir := range []string{cfg.BronzeDir(), cfg.SilverDir(), cfg.GoldDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to create tier directory").
				WithDetail("path", dir)
		}
	}
	return &Warehouse{cfg: cfg, log: log}, nil
}

// Config returns the warehouse configuration.
func (w *Warehouse) Config() *config.Config { return w.cfg }

// AcquireLock takes the exclusive run lock, failing fast when another run
// holds it. The lock file records the run id and pid for operators.
func (w *Warehouse) AcquireLock(runID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.locked {
		return errAlreadyRunning()
	}

	f, err := os.OpenFile(w.cfg.LockPath(), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return errAlreadyRunning()
		}
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to create lock file").
			WithDetail("path", w.cfg.LockPath())
	}
	fmt.Fprintf(f, "run_id=%s\npid=%d\n", runID, os.Getpid())
	f.Close()

	w.locked = true
	w.log.Debug("run lock acquired", zap.String("run_id", runID))
	return nil
}

// ReleaseLock releases the run lock. Safe to call when not held.
func (w *Warehouse) ReleaseLock() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.locked {
		return
	}
	if err := os.Remove(w.cfg.LockPath()); err != nil && !os.IsNotExist(err) {
		w.log.Warn("failed to remove lock file", zap.Error(err))
	}
	w.locked = false
}

func errAlreadyRunning() error {
	return errors.New(errors.ErrorTypeConflict, "a warehouse run is already in progress")
}

// IsAlreadyRunning reports whether the error is a run-lock conflict.
func IsAlreadyRunning(err error) bool {
	return errors.IsType(err, errors.ErrorTypeConflict)
}

// SilverPath returns the refined Parquet file for an entity.
func (w *Warehouse) SilverPath(entity string) string {
	return filepath.Join(w.cfg.SilverDir(), entity+".parquet")
}

// ReadSilver loads an entity's refined relation, or nil when absent.
func (w *Warehouse) ReadSilver(entity string) (*models.Relation, error) {
	path := w.SilverPath(entity)
	if !columnar.Exists(path) {
		return nil, nil
	}
	return columnar.ReadFile(path)
}

// ReadGold loads a full gold table, or nil when the table does not exist
// yet. Dimension tables are single files; facts are scanned across all
// partitions.
func (w *Warehouse) ReadGold(name string) (*models.Relation, error) {
	table, ok := star.TableByName(name)
	if !ok {
		return nil, errors.New(errors.ErrorTypeQuery, "unknown warehouse table").
			WithDetail("table", name)
	}
	if _, err := os.Stat(filepath.Join(w.cfg.GoldDir(), name)); os.IsNotExist(err) {
		return nil, nil
	}
	res, err := partition.Scan(w.cfg.GoldDir(), table, nil)
	if err != nil {
		return nil, err
	}
	return res.Relation, nil
}

// NewGoldWriter opens a staged writer for this run.
func (w *Warehouse) NewGoldWriter(runID string) (*partition.Writer, error) {
	return partition.NewWriter(w.cfg.GoldDir(), runID, w.log)
}

// lastRefresh formats a refresh time for logs and status output.
func lastRefresh(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
