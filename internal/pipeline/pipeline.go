// Package pipeline orchestrates a warehouse rebuild: every bronze batch is
// reconciled and cleaned into the silver tier, the user dimension is rolled
// forward, the star schema is rebuilt, and the gold tier is swapped in
// atomically. A failed run leaves the previous warehouse state untouched.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stratumdb/stratum/pkg/clean"
	"github.com/stratumdb/stratum/pkg/errors"
	"github.com/stratumdb/stratum/pkg/logger"
	"github.com/stratumdb/stratum/pkg/metrics"
	"github.com/stratumdb/stratum/pkg/models"
	"github.com/stratumdb/stratum/pkg/retry"
	"github.com/stratumdb/stratum/pkg/scd"
	"github.com/stratumdb/stratum/pkg/schema"
	"github.com/stratumdb/stratum/pkg/star"
	"github.com/stratumdb/stratum/pkg/store/columnar"
	"github.com/stratumdb/stratum/pkg/store/raw"
	"github.com/stratumdb/stratum/pkg/store/warehouse"
)

// Run outcomes.
const (
	StatusSuccess  = "success"
	StatusFailed   = "failed"
	StatusConflict = "conflict"
)

// StageReport records what one stage did to one entity or table.
type StageReport struct {
	Stage    string        `json:"stage"`
	Entity   string        `json:"entity"`
	RowsIn   int           `json:"rows_in"`
	RowsOut  int           `json:"rows_out"`
	Rejected int           `json:"rejected,omitempty"`
	Duration time.Duration `json:"duration"`
}

// RunReport summarizes a full pipeline run.
type RunReport struct {
	RunID     string        `json:"run_id"`
	RunDate   time.Time     `json:"run_date"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Status    string        `json:"status"`
	Stages    []StageReport `json:"stages"`
	Err       error         `json:"-"`
}

// Pipeline rebuilds the warehouse from the bronze tier.
type Pipeline struct {
	wh    *warehouse.Warehouse
	raw   *raw.Store
	retry retry.Config
	log   *zap.Logger
}

// New wires a pipeline over the warehouse and its raw store.
func New(wh *warehouse.Warehouse, rawStore *raw.Store, log *zap.Logger) *Pipeline {
	if log == nil {
		log = logger.Get()
	}
	cfg := wh.Config()
	retryCfg := retry.DefaultConfig()
	if cfg.Pipeline.RetryAttempts > 0 {
		retryCfg.MaxAttempts = cfg.Pipeline.RetryAttempts
	}
	if cfg.Pipeline.RetryDelay > 0 {
		retryCfg.InitialDelay = cfg.Pipeline.RetryDelay
	}
	return &Pipeline{wh: wh, raw: rawStore, retry: retryCfg, log: log}
}

// Run executes one full rebuild. It is the only write path into the silver
// and gold tiers and takes the exclusive run lock for its duration.
func (p *Pipeline) Run(ctx context.Context) (*RunReport, error) {
	report := &RunReport{
		RunID:     uuid.NewString(),
		RunDate:   time.Now().UTC(),
		StartedAt: time.Now().UTC(),
	}
	log := p.log.With(zap.String("run_id", report.RunID))
	ctx = context.WithValue(ctx, logger.RunIDKey, report.RunID)

	if err := p.wh.AcquireLock(report.RunID); err != nil {
		report.Status = StatusConflict
		report.Err = err
		metrics.RunsTotal.WithLabelValues(StatusConflict).Inc()
		return report, err
	}
	defer p.wh.ReleaseLock()

	err := p.run(ctx, report, log)
	report.Duration = time.Since(report.StartedAt)
	metrics.RunDuration.Observe(report.Duration.Seconds())

	if err != nil {
		report.Status = StatusFailed
		report.Err = err
		metrics.RunsTotal.WithLabelValues(StatusFailed).Inc()
		log.Error("run failed", zap.Error(err), zap.Duration("duration", report.Duration))
		return report, err
	}

	report.Status = StatusSuccess
	metrics.RunsTotal.WithLabelValues(StatusSuccess).Inc()
	log.Info("run complete",
		zap.Duration("duration", report.Duration),
		zap.Int("stages", len(report.Stages)))
	return report, nil
}

func (p *Pipeline) run(ctx context.Context, report *RunReport, log *zap.Logger) error {
	refined, err := p.refine(ctx, report, log)
	if err != nil {
		return err
	}

	dimUsers, err := p.trackUsers(report, refined[schema.Users.Name], log)
	if err != nil {
		return err
	}

	out, err := p.buildStar(report, refined, dimUsers, log)
	if err != nil {
		return err
	}

	return p.publish(ctx, report, out, log)
}

// refine runs reconcile + clean for every entity and writes the silver tier.
func (p *Pipeline) refine(ctx context.Context, report *RunReport, log *zap.Logger) (map[string]*models.Relation, error) {
	refined := make(map[string]*models.Relation, len(schema.Entities))

	for _, entity := range schema.Entities {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeTimeout, "run cancelled")
		}
		ctx := context.WithValue(ctx, logger.EntityKey, entity.Name)

		timer := metrics.NewTimer("reconcile")
		batches, err := p.readBatches(context.WithValue(ctx, logger.StageKey, "reconcile"), entity.Name)
		if err != nil {
			return nil, err
		}
		rawRel := schema.Reconcile(entity, batches)
		report.Stages = append(report.Stages, StageReport{
			Stage:    "reconcile",
			Entity:   entity.Name,
			RowsIn:   rawRel.NumRows(),
			RowsOut:  rawRel.NumRows(),
			Duration: timer.Stop(),
		})
		metrics.RowsProcessed.WithLabelValues("reconcile", entity.Name).Add(float64(rawRel.NumRows()))

		timer = metrics.NewTimer("clean")
		rel, cleanReport := clean.Entity(entity, rawRel, log)
		report.Stages = append(report.Stages, StageReport{
			Stage:    "clean",
			Entity:   entity.Name,
			RowsIn:   cleanReport.RowsIn,
			RowsOut:  cleanReport.RowsOut,
			Rejected: cleanReport.Dropped(),
			Duration: timer.Stop(),
		})
		metrics.RowsProcessed.WithLabelValues("clean", entity.Name).Add(float64(cleanReport.RowsOut))
		metrics.RowsRejected.WithLabelValues(entity.Name, "null_key").Add(float64(cleanReport.DroppedNullKey))
		metrics.RowsRejected.WithLabelValues(entity.Name, "bad_key").Add(float64(cleanReport.DroppedBadKey))
		metrics.RowsRejected.WithLabelValues(entity.Name, "rule").Add(float64(cleanReport.DroppedRule))
		metrics.RowsRejected.WithLabelValues(entity.Name, "duplicate").Add(float64(cleanReport.Duplicates))

		path := p.wh.SilverPath(entity.Name)
		err = retry.Do(context.WithValue(ctx, logger.StageKey, "silver"), p.retry, "write silver "+entity.Name, func() error {
			return columnar.WriteFile(path, entity.Fields, rel)
		})
		if err != nil {
			return nil, err
		}

		refined[entity.Name] = rel
	}
	return refined, nil
}

func (p *Pipeline) readBatches(ctx context.Context, entity string) ([]schema.Batch, error) {
	infos, err := p.raw.Batches(entity)
	if err != nil {
		return nil, err
	}
	batches := make([]schema.Batch, 0, len(infos))
	for _, info := range infos {
		var b schema.Batch
		err := retry.Do(ctx, p.retry, "read batch "+info.File, func() error {
			var readErr error
			b, readErr = p.raw.ReadBatch(info)
			return readErr
		})
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, nil
}

func (p *Pipeline) trackUsers(report *RunReport, refinedUsers *models.Relation, log *zap.Logger) (*models.Relation, error) {
	timer := metrics.NewTimer("scd")
	prior, err := p.wh.ReadGold(star.TableDimUsers)
	if err != nil {
		return nil, err
	}
	dim, scdReport, err := scd.Apply(prior, refinedUsers, report.RunDate, log)
	if err != nil {
		return nil, err
	}
	report.Stages = append(report.Stages, StageReport{
		Stage:    "scd",
		Entity:   schema.Users.Name,
		RowsIn:   refinedUsers.NumRows(),
		RowsOut:  scdReport.RowsOut,
		Duration: timer.Stop(),
	})
	metrics.RowsProcessed.WithLabelValues("scd", schema.Users.Name).Add(float64(scdReport.RowsOut))
	return dim, nil
}

func (p *Pipeline) buildStar(report *RunReport, refined map[string]*models.Relation, dimUsers *models.Relation, log *zap.Logger) (*star.Output, error) {
	timer := metrics.NewTimer("star")

	priorProducts, err := p.wh.ReadGold(star.TableDimProducts)
	if err != nil {
		return nil, err
	}
	priorStores, err := p.wh.ReadGold(star.TableDimStores)
	if err != nil {
		return nil, err
	}

	out, err := star.Build(star.Inputs{
		DimUsers:         dimUsers,
		Products:         refined[schema.Products.Name],
		Stores:           refined[schema.Stores.Name],
		Transactions:     refined[schema.Transactions.Name],
		Inventory:        refined[schema.Inventory.Name],
		Shipments:        refined[schema.Shipments.Name],
		PriorDimProducts: priorProducts,
		PriorDimStores:   priorStores,
	}, report.RunDate, log)
	if err != nil {
		return nil, err
	}

	duration := timer.Stop()
	for name, rel := range out.Relations() {
		report.Stages = append(report.Stages, StageReport{
			Stage:    "star",
			Entity:   name,
			RowsIn:   rel.NumRows(),
			RowsOut:  rel.NumRows(),
			Duration: duration,
		})
	}
	return out, nil
}

// publish stages every gold table and swaps them in. Any failure aborts the
// staging area, leaving the previous warehouse state in place.
func (p *Pipeline) publish(ctx context.Context, report *RunReport, out *star.Output, log *zap.Logger) error {
	ctx = context.WithValue(ctx, logger.StageKey, "publish")
	timer := metrics.NewTimer("publish")
	writer, err := p.wh.NewGoldWriter(report.RunID)
	if err != nil {
		return err
	}

	relations := out.Relations()
	rowCounts := make(map[string]int, len(relations))
	for _, table := range star.Tables() {
		rel := relations[table.Name]
		err := retry.Do(ctx, p.retry, "stage "+table.Name, func() error {
			return writer.WriteTable(table, rel)
		})
		if err != nil {
			writer.Abort()
			return err
		}
		rowCounts[table.Name] = rel.NumRows()
	}

	if err := writer.Commit(); err != nil {
		writer.Abort()
		return err
	}

	for table, rows := range rowCounts {
		metrics.TableRows.WithLabelValues(table).Set(float64(rows))
	}
	// The gold tier is already live; a failed status write only leaves
	// status.json one run behind.
	if err := p.wh.WriteStatus(report.RunID, rowCounts, time.Now().UTC()); err != nil {
		log.Warn("status file not updated", zap.Error(err))
	}

	report.Stages = append(report.Stages, StageReport{
		Stage:    "publish",
		Entity:   "gold",
		RowsOut:  totalRows(rowCounts),
		Duration: timer.Stop(),
	})
	log.Debug("gold tier published", zap.Int("tables", len(rowCounts)))
	return nil
}

func totalRows(counts map[string]int) int {
	total := 0
	for _, n := range counts {
		total += n
	}
	return total
}

// RunLoop runs the pipeline once, then every interval until the context is
// cancelled. A failed iteration is logged and the loop continues; only lock
// conflicts and cancellation stop it.
func (p *Pipeline) RunLoop(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		_, err := p.Run(ctx)
		return err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := p.Run(ctx); err != nil {
			if warehouse.IsAlreadyRunning(err) {
				return err
			}
			p.log.Warn("scheduled run failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
