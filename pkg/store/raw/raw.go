// Package raw implements the bronze tier: an append-only store of timestamped
// raw record batches with heterogeneous column sets.
//
// Each batch is one CSV file (optionally compressed) whose header carries the
// batch's explicit column list. A JSON-lines manifest records batch metadata
// in append order; batch files are never mutated or deleted. Producers need
// no schema pre-registration: column names must already match the canonical
// vocabulary, but any subset or superset of columns is accepted.
package raw

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/stratumdb/stratum/pkg/compression"
	"github.com/stratumdb/stratum/pkg/errors"
	"github.com/stratumdb/stratum/pkg/schema"
)

const manifestName = "manifest.jsonl"

// BatchInfo describes one immutable raw batch.
type BatchInfo struct {
	Entity   string    `json:"entity"`
	File     string    `json:"file"`
	Columns  []string  `json:"columns"`
	Rows     int       `json:"rows"`
	Captured time.Time `json:"captured"`
	Seq      int       `json:"seq"`
}

// Store is the bronze-tier raw record store.
type Store struct {
	dir   string
	codec compression.Codec
	log   *zap.Logger

	mu      sync.Mutex
	nextSeq int
}

// Open opens (creating if needed) the raw store rooted at dir. New batches
// are written with the given codec; existing batches are read back by their
// file extension regardless of the current codec.
func Open(dir string, codec compression.Codec, log *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to create raw tier directory")
	}
	if codec == nil {
		codec, _ = compression.New(compression.None)
	}
	if log == nil {
		log = zap.NewNop()
	}

	s := &Store{dir: dir, codec: codec, log: log}

	infos, err := s.readManifest()
	if err != nil {
		return nil, err
	}
	for _, info := range infos {
		if info.Seq >= s.nextSeq {
			s.nextSeq = info.Seq + 1
		}
	}
	return s, nil
}

// Append writes a new batch for the given entity type and registers it in
// the manifest. The batch becomes immutable once Append returns. Rows must
// be aligned to columns; nil cells are written as empty fields.
func (s *Store) Append(entity string, columns []string, rows [][]interface{}) (*BatchInfo, error) {
	if _, err := schema.Lookup(entity); err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, errors.New(errors.ErrorTypeValidation, "batch requires an explicit column list").
			WithDetail("entity", entity)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	captured := time.Now().UTC()
	seq := s.nextSeq
	name := fmt.Sprintf("%s_%s_%05d.csv%s",
		entity, captured.Format("20060102T150405Z"), seq, s.codec.Extension())

	info := &BatchInfo{
		Entity:   entity,
		File:     name,
		Columns:  columns,
		Rows:     len(rows),
		Captured: captured,
		Seq:      seq,
	}

	if err := s.writeBatchFile(name, columns, rows); err != nil {
		return nil, err
	}
	if err := s.appendManifest(info); err != nil {
		return nil, err
	}
	s.nextSeq++

	s.log.Info("raw batch appended",
		zap.String("entity", entity),
		zap.String("file", name),
		zap.Int("rows", len(rows)),
		zap.Int("columns", len(columns)))

	return info, nil
}

// Batches returns the batches recorded for an entity type, ordered by
// capture timestamp then sequence. Zero batches is a valid result.
func (s *Store) Batches(entity string) ([]BatchInfo, error) {
	infos, err := s.readManifest()
	if err != nil {
		return nil, err
	}

	var out []BatchInfo
	for _, info := range infos {
		if info.Entity == entity {
			out = append(out, info)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Captured.Equal(out[j].Captured) {
			return out[i].Captured.Before(out[j].Captured)
		}
		return out[i].Seq < out[j].Seq
	})
	return out, nil
}

// ReadBatch loads a batch file into the reconciler's batch representation.
// Empty CSV cells become nils.
func (s *Store) ReadBatch(info BatchInfo) (schema.Batch, error) {
	f, err := os.Open(filepath.Join(s.dir, info.File))
	if err != nil {
		return schema.Batch{}, errors.Wrap(err, errors.ErrorTypeFile, "failed to open raw batch").
			WithDetail("file", info.File)
	}
	defer f.Close()

	rc, err := compression.ForExtension(info.File).WrapReader(bufio.NewReader(f))
	if err != nil {
		return schema.Batch{}, err
	}
	defer rc.Close()

	r := csv.NewReader(rc)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return schema.Batch{}, errors.Wrap(err, errors.ErrorTypeFile, "failed to read batch header").
			WithDetail("file", info.File)
	}

	batch := schema.Batch{
		Columns:  header,
		Captured: info.Captured,
		Seq:      info.Seq,
	}
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return schema.Batch{}, errors.Wrap(err, errors.ErrorTypeFile, "failed to read batch row").
				WithDetail("file", info.File)
		}
		row := make([]interface{}, len(header))
		for i := range header {
			if i < len(record) && record[i] != "" {
				row[i] = record[i]
			}
		}
		batch.Rows = append(batch.Rows, row)
	}

	return batch, nil
}

func (s *Store) writeBatchFile(name string, columns []string, rows [][]interface{}) error {
	f, err := os.OpenFile(filepath.Join(s.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to create batch file").
			WithDetail("file", name)
	}
	defer f.Close()

	wc, err := s.codec.WrapWriter(f)
	if err != nil {
		return err
	}

	w := csv.NewWriter(wc)
	if err := w.Write(columns); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write batch header")
	}

	record := make([]string, len(columns))
	for _, row := range rows {
		for i := range columns {
			record[i] = ""
			if i < len(row) && row[i] != nil {
				record[i] = formatCell(row[i])
			}
		}
		if err := w.Write(record); err != nil {
			return errors.Wrap(err, errors.ErrorTypeFile, "failed to write batch row")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to flush batch")
	}
	if err := wc.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to finalize batch compression")
	}
	return f.Sync()
}

func (s *Store) appendManifest(info *BatchInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to marshal batch info")
	}

	f, err := os.OpenFile(filepath.Join(s.dir, manifestName),
		os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to open manifest")
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to append to manifest")
	}
	return f.Sync()
}

func (s *Store) readManifest() ([]BatchInfo, error) {
	f, err := os.Open(filepath.Join(s.dir, manifestName))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to open manifest")
	}
	defer f.Close()

	var infos []BatchInfo
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var info BatchInfo
		if err := json.Unmarshal(line, &info); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeFile, "corrupt manifest entry")
		}
		infos = append(infos, info)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to read manifest")
	}
	return infos, nil
}

func formatCell(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", x)
	}
}
