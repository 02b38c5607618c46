// Package eval runs the evaluation: it splits the task catalog into shards,
// drives a browser worker per shard through every sampled task instance, and
// scores what the solver filled in against the gold labels.
package eval

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"

	"formeval/internal/batch"
	"formeval/internal/config"
	"formeval/internal/field"
	"formeval/internal/gold"
	"formeval/internal/partition"
	"formeval/internal/results"
	"formeval/internal/scoring"
	"formeval/internal/solver"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// PageDriver is the browser surface a worker needs. *browser.Driver
// implements it; tests substitute a fake.
type PageDriver interface {
	Start(ctx context.Context) error
	Shutdown(ctx context.Context) error
	Navigate(ctx context.Context, url string) error
	ExtractFields(ctx context.Context, taskName, url string, fieldNames []string, exclude field.ExclusionSet) ([]field.Record, error)
	SetValue(ctx context.Context, name, value string) error
	Check(ctx context.Context, name, value string) error
}

// TaskCatalog lists task instances and renders their page URLs.
// *catalog.Client implements it.
type TaskCatalog interface {
	GetTasks(ctx context.Context) (map[string][]int, error)
	TaskPageURL(instanceID int) string
}

// Orchestrator wires the catalog, the partitioner, the browser workers, the
// solver and the scoring engine into one run.
type Orchestrator struct {
	cfg       *config.Config
	catalog   TaskCatalog
	store     *results.Store
	engine    *scoring.Engine
	newDriver func() PageDriver
	log       *zap.Logger
}

// New builds an orchestrator. newDriver is called once per shard worker so
// each worker owns its own browser.
func New(cfg *config.Config, cat TaskCatalog, store *results.Store, newDriver func() PageDriver, log *zap.Logger) (*Orchestrator, error) {
	if log == nil {
		log = zap.NewNop()
	}

	opts := []scoring.Option{scoring.WithLogger(log)}
	if cfg.Evaluation.CrossLingual {
		tok, err := scoring.NewSubwordTokenizer()
		if err != nil {
			return nil, fmt.Errorf("cross-lingual tokenizer: %w", err)
		}
		opts = append(opts, scoring.WithTokenizer(tok))
	}

	return &Orchestrator{
		cfg:       cfg,
		catalog:   cat,
		store:     store,
		engine:    scoring.NewEngine(opts...),
		newDriver: newDriver,
		log:       log,
	}, nil
}

// Plan is the partitioned catalog: which tasks exist, their instance ids,
// and how they are divided across shard workers.
type Plan struct {
	Tasks  map[string][]int
	Shards []partition.Shard
}

// Plan fetches the catalog, weighs every task by its batch header, and
// splits the weights into the configured number of shards. A task whose
// batch file cannot be read is dropped from the plan with a logged error.
func (o *Orchestrator) Plan(ctx context.Context) (*Plan, error) {
	tasks, err := o.catalog.GetTasks(ctx)
	if err != nil {
		return nil, err
	}

	weights := make([]partition.Weight, 0, len(tasks))
	for task, ids := range tasks {
		header, err := batch.ReadHeader(batch.Path(o.cfg.TasksDir, task))
		if err != nil {
			o.log.Error("skipping task without readable batch",
				zap.String("task", task), zap.Error(err))
			delete(tasks, task)
			continue
		}
		weights = append(weights, partition.ComputeWeight(
			task, len(ids), len(header.FieldNames()),
			o.cfg.Weighting.InstanceCap, o.cfg.Weighting.FixedOverhead))
	}

	shards, err := partition.Split(weights, o.cfg.Partitions)
	if err != nil {
		return nil, err
	}
	return &Plan{Tasks: tasks, Shards: shards}, nil
}

// Report summarizes a finished run.
type Report struct {
	RunID      string
	Solver     string
	TaskScores []TaskKindScore
	FieldStats []FieldStat
}

// AllShards runs every shard; a non-negative value restricts a run to that
// single shard, for spreading shards across processes or machines.
const AllShards = -1

// Run executes the evaluation: plan, then one worker per non-empty selected
// shard, each with its own browser and solver. Task-level failures are
// logged and contained; only infrastructure failures abort the run.
func (o *Orchestrator) Run(ctx context.Context, onlyShard int) (*Report, error) {
	plan, err := o.Plan(ctx)
	if err != nil {
		return nil, err
	}
	if onlyShard >= len(plan.Shards) {
		return nil, fmt.Errorf("shard %d out of range [0,%d)", onlyShard, len(plan.Shards))
	}

	run, err := o.store.BeginRun(o.cfg.Evaluation.Solver)
	if err != nil {
		return nil, err
	}
	o.log.Info("run started",
		zap.String("run_id", run.ID),
		zap.String("solver", run.Solver),
		zap.Int("tasks", len(plan.Tasks)),
		zap.Int("shards", len(plan.Shards)))

	agg := newAggregator()
	g, gctx := errgroup.WithContext(ctx)
	for i, shard := range plan.Shards {
		if len(shard.Tasks) == 0 || (onlyShard >= 0 && i != onlyShard) {
			continue
		}
		g.Go(func() error {
			return o.runShard(gctx, i, shard.Tasks, plan.Tasks, run, agg)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &Report{
		RunID:      run.ID,
		Solver:     run.Solver,
		TaskScores: agg.TaskScores(),
		FieldStats: agg.FieldStats(),
	}
	o.log.Info("run finished", zap.String("run_id", run.ID))
	return report, nil
}

// runShard owns one browser for the lifetime of its task list.
func (o *Orchestrator) runShard(ctx context.Context, shardIndex int, tasks []string, allIDs map[string][]int, run results.Run, agg *aggregator) error {
	log := o.log.With(zap.Int("shard", shardIndex))

	drv := o.newDriver()
	if err := drv.Start(ctx); err != nil {
		return fmt.Errorf("shard %d: %w", shardIndex, err)
	}
	defer func() {
		if err := drv.Shutdown(context.WithoutCancel(ctx)); err != nil {
			log.Warn("browser shutdown", zap.Error(err))
		}
	}()

	sol, err := solver.New(o.cfg.Evaluation.Solver, drv, o.cfg.Evaluation.Seed+int64(shardIndex))
	if err != nil {
		return err
	}

	for _, task := range tasks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := o.evaluateTask(ctx, drv, sol, run, task, allIDs[task], agg); err != nil {
			log.Error("task failed", zap.String("task", task), zap.Error(err))
		}
	}
	return nil
}

// evaluateTask runs the sampled instances of one task. Any error aborts this
// task only; the caller logs it and moves on.
func (o *Orchestrator) evaluateTask(ctx context.Context, drv PageDriver, sol solver.Solver, run results.Run, task string, ids []int, agg *aggregator) error {
	if len(ids) == 0 {
		return fmt.Errorf("task %q has no instances", task)
	}

	table, err := batch.Read(batch.Path(o.cfg.TasksDir, task))
	if err != nil {
		return err
	}
	resolver, err := gold.NewResolver(task, table, len(ids))
	if err != nil {
		return err
	}

	fieldNames := table.FieldNames()
	exclude := field.NewExclusionSet(o.cfg.Evaluation.ExcludedFields)
	minID := ids[0]
	for _, id := range ids {
		if id < minID {
			minID = id
		}
	}

	for _, id := range sampleInstances(task, ids, o.cfg.Evaluation.MaxInstances, o.cfg.Evaluation.Seed) {
		if err := o.evaluateInstance(ctx, drv, sol, run, task, id, id-minID, fieldNames, exclude, resolver, agg); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) evaluateInstance(ctx context.Context, drv PageDriver, sol solver.Solver, run results.Run, task string, id, instanceIndex int, fieldNames []string, exclude field.ExclusionSet, resolver *gold.Resolver, agg *aggregator) error {
	labels, err := resolver.Labels(instanceIndex, fieldNames)
	if err != nil {
		return err
	}

	url := o.catalog.TaskPageURL(id)
	if err := drv.Navigate(ctx, url); err != nil {
		return err
	}

	records, err := drv.ExtractFields(ctx, task, url, fieldNames, exclude)
	if err != nil {
		return err
	}

	// Fill pass: the solver only touches fields a human could.
	for _, rec := range records {
		if !rec.Visible {
			continue
		}
		if err := sol.Solve(ctx, rec, labels[rec.Name]); err != nil {
			return fmt.Errorf("solve field %q: %w", rec.Name, err)
		}
	}

	// Score pass: re-extract so the filled state, not the solver's intent,
	// is what gets judged. Hidden fields are scored even though the solver
	// never touches them.
	filled, err := drv.ExtractFields(ctx, task, url, fieldNames, exclude)
	if err != nil {
		return err
	}
	for _, rec := range filled {
		agg.CountField(rec.Kind)

		score, scoreErr := o.engine.Score(rec.Kind, scoring.Prediction(rec), labels[rec.Name])
		fs := results.FieldScore{
			Task:       task,
			InstanceID: id,
			FieldName:  rec.Name,
			Kind:       rec.Kind,
			Score:      score,
		}
		if scoreErr != nil {
			if !errors.Is(scoreErr, scoring.ErrUnsupportedKind) {
				return scoreErr
			}
			o.log.Warn("field kind has no metric",
				zap.String("task", task), zap.String("field", rec.Name),
				zap.String("kind", string(rec.Kind)))
			fs.Score = 0
			fs.Err = scoreErr.Error()
		} else {
			agg.AddScore(task, rec.Kind, score)
		}
		if err := o.store.RecordScore(run.ID, fs); err != nil {
			return err
		}
	}
	return nil
}

// sampleInstances picks at most max instance ids, seeded per task so the
// sample is reproducible regardless of shard scheduling. The sampled ids are
// returned sorted.
func sampleInstances(task string, ids []int, max int, seed int64) []int {
	if max <= 0 || len(ids) <= max {
		out := append([]int(nil), ids...)
		sort.Ints(out)
		return out
	}

	var taskSeed int64
	for _, r := range task {
		taskSeed = taskSeed*31 + int64(r)
	}
	rng := rand.New(rand.NewSource(seed + taskSeed))

	out := make([]int, 0, max)
	for _, i := range rng.Perm(len(ids))[:max] {
		out = append(out, ids[i])
	}
	sort.Ints(out)
	return out
}
