package warehouse

import (
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"

	"github.com/stratumdb/stratum/pkg/errors"
)

const statusFileName = "status.json"

// TableStatus records a table's state after its last successful refresh.
type TableStatus struct {
	Rows        int    `json:"rows"`
	RefreshedAt string `json:"refreshed_at"`
	RunID       string `json:"run_id"`
}

// Status summarizes the warehouse for operators and the status command.
type Status struct {
	UpdatedAt string                 `json:"updated_at"`
	Tables    map[string]TableStatus `json:"tables"`
}

func (w *Warehouse) statusPath() string {
	return filepath.Join(w.cfg.GoldDir(), statusFileName)
}

// Status reads the status file. A warehouse that has never completed a run
// reports an empty table map.
func (w *Warehouse) Status() (*Status, error) {
	data, err := os.ReadFile(w.statusPath())
	if os.IsNotExist(err) {
		return &Status{Tables: map[string]TableStatus{}}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to read status file")
	}
	var s Status
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to parse status file")
	}
	if s.Tables == nil {
		s.Tables = map[string]TableStatus{}
	}
	return &s, nil
}

// WriteStatus replaces the status file after a successful run. The write is
// staged and renamed so readers never see a partial file.
func (w *Warehouse) WriteStatus(runID string, rowCounts map[string]int, at time.Time) error {
	s := &Status{
		UpdatedAt: lastRefresh(at),
		Tables:    make(map[string]TableStatus, len(rowCounts)),
	}
	for table, rows := range rowCounts {
		s.Tables[table] = TableStatus{
			Rows:        rows,
			RefreshedAt: lastRefresh(at),
			RunID:       runID,
		}
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to encode status")
	}
	tmp := w.statusPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write status file")
	}
	if err := os.Rename(tmp, w.statusPath()); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to commit status file")
	}
	return nil
}
