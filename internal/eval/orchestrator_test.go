package eval

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"formeval/internal/config"
	"formeval/internal/field"
	"formeval/internal/results"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeFieldSpec describes a form field of a fake task page.
type fakeFieldSpec struct {
	kind    field.Kind
	options []string
}

// fakeEnv is the shared "site": task name -> field name -> spec. Drivers
// from every shard read it.
type fakeEnv struct {
	pages map[string]map[string]fakeFieldSpec
}

// fakeDriver simulates one browser: Navigate resets the page, ExtractFields
// materializes the current task's fields, solver actions mutate them.
type fakeDriver struct {
	env *fakeEnv

	mu      sync.Mutex
	started bool
	state   map[string][]string // field name -> current values
}

func (d *fakeDriver) Start(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.started = true
	return nil
}

func (d *fakeDriver) Shutdown(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.started = false
	return nil
}

func (d *fakeDriver) Navigate(context.Context, string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = make(map[string][]string)
	return nil
}

func (d *fakeDriver) ExtractFields(_ context.Context, taskName, url string, fieldNames []string, exclude field.ExclusionSet) ([]field.Record, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	specs := d.env.pages[taskName]
	var out []field.Record
	for _, name := range fieldNames {
		if exclude.Excluded(name) {
			continue
		}
		spec, ok := specs[name]
		if !ok {
			continue
		}
		out = append(out, field.Record{
			TaskName: taskName,
			URL:      url,
			Name:     name,
			Kind:     spec.kind,
			Values:   append([]string(nil), d.state[name]...),
			Options:  spec.options,
			Visible:  true,
		})
	}
	return out, nil
}

func (d *fakeDriver) SetValue(_ context.Context, name, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state[name] = []string{value}
	return nil
}

func (d *fakeDriver) Check(_ context.Context, name, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state[name] = append(d.state[name], value)
	return nil
}

// fakeCatalog serves a fixed task list.
type fakeCatalog struct {
	tasks map[string][]int
}

func (c *fakeCatalog) GetTasks(context.Context) (map[string][]int, error) {
	return c.tasks, nil
}

func (c *fakeCatalog) TaskPageURL(id int) string {
	return "http://fake/task/" + string(rune('0'+id%10)) + "/"
}

func writeBatch(t *testing.T, tasksDir, task string, rows [][]string) {
	t.Helper()
	dir := filepath.Join(tasksDir, task)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	f, err := os.Create(filepath.Join(dir, "batch.csv"))
	require.NoError(t, err)
	w := csv.NewWriter(f)
	require.NoError(t, w.WriteAll(rows))
	require.NoError(t, f.Close())
}

func testConfig(t *testing.T, tasksDir string) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.TasksDir = tasksDir
	cfg.Partitions = 2
	cfg.Evaluation.Solver = "oracle"
	cfg.Evaluation.MaxInstances = 10
	cfg.Evaluation.Seed = 1
	cfg.Results.DatabasePath = filepath.Join(t.TempDir(), "results.db")
	return cfg
}

func openStore(t *testing.T, cfg *config.Config) *results.Store {
	t.Helper()
	store, err := results.Open(cfg.Results.DatabasePath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRun_OracleScoresPerfect(t *testing.T) {
	tasksDir := t.TempDir()

	// Task "sentiment": two instances, the first annotated twice with a
	// disagreeing rating (majority resolves to "positive" by first-seen).
	writeBatch(t, tasksDir, "sentiment", [][]string{
		{"Input.text", "Answer.comment", "Answer.rating"},
		{"i0", "looks great", "positive"},
		{"i0", "looks great", "negative"},
		{"i1", "not my thing", "negative"},
	})
	// Task "topics": one instance with a checkbox and a slider.
	writeBatch(t, tasksDir, "topics", [][]string{
		{"Input.url", "Answer.tags", "Answer.confidence"},
		{"u0", "news|sports", "7"},
	})

	env := &fakeEnv{pages: map[string]map[string]fakeFieldSpec{
		"sentiment": {
			"comment": {kind: field.KindTextarea},
			"rating":  {kind: field.KindRadio, options: []string{"positive", "negative"}},
		},
		"topics": {
			"tags":       {kind: field.KindCheckbox, options: []string{"news", "sports", "weather"}},
			"confidence": {kind: field.KindRange, options: nil},
		},
	}}

	cfg := testConfig(t, tasksDir)
	store := openStore(t, cfg)
	cat := &fakeCatalog{tasks: map[string][]int{
		"sentiment": {101, 102},
		"topics":    {7},
	}}

	o, err := New(cfg, cat, store, func() PageDriver { return &fakeDriver{env: env} }, nil)
	require.NoError(t, err)

	report, err := o.Run(context.Background(), AllShards)
	require.NoError(t, err)
	require.NotEmpty(t, report.RunID)

	// The oracle reproduces the gold answers, so every field scores 1.0.
	require.NotEmpty(t, report.TaskScores)
	for _, s := range report.TaskScores {
		assert.Equal(t, 1.0, s.Average, "task %s kind %s", s.Task, s.Kind)
	}

	// 2 sentiment instances x 2 fields + 1 topics instance x 2 fields.
	total := 0
	for _, s := range report.TaskScores {
		total += s.Count
	}
	assert.Equal(t, 6, total)

	// The store agrees with the in-memory aggregate.
	summary, err := store.Summary(report.RunID)
	require.NoError(t, err)
	require.NotEmpty(t, summary)
	for _, row := range summary {
		assert.Equal(t, 1.0, row.Average)
	}
}

func TestRun_BadTaskIsContained(t *testing.T) {
	tasksDir := t.TempDir()

	writeBatch(t, tasksDir, "good", [][]string{
		{"Input.x", "Answer.comment"},
		{"a", "fine"},
	})
	// Batch claims one instance; the catalog will report two.
	writeBatch(t, tasksDir, "broken", [][]string{
		{"Input.x", "Answer.comment"},
		{"a", "fine"},
	})

	env := &fakeEnv{pages: map[string]map[string]fakeFieldSpec{
		"good":   {"comment": {kind: field.KindText}},
		"broken": {"comment": {kind: field.KindText}},
	}}

	cfg := testConfig(t, tasksDir)
	store := openStore(t, cfg)
	cat := &fakeCatalog{tasks: map[string][]int{
		"good":   {1},
		"broken": {1, 2},
	}}

	o, err := New(cfg, cat, store, func() PageDriver { return &fakeDriver{env: env} }, nil)
	require.NoError(t, err)

	report, err := o.Run(context.Background(), AllShards)
	require.NoError(t, err)

	require.Len(t, report.TaskScores, 1)
	assert.Equal(t, "good", report.TaskScores[0].Task)
	assert.Equal(t, 1.0, report.TaskScores[0].Average)
}

func TestRun_MissingBatchDroppedFromPlan(t *testing.T) {
	tasksDir := t.TempDir()

	writeBatch(t, tasksDir, "present", [][]string{
		{"Input.x", "Answer.comment"},
		{"a", "ok"},
	})

	env := &fakeEnv{pages: map[string]map[string]fakeFieldSpec{
		"present": {"comment": {kind: field.KindText}},
	}}

	cfg := testConfig(t, tasksDir)
	store := openStore(t, cfg)
	cat := &fakeCatalog{tasks: map[string][]int{
		"present": {1},
		"absent":  {1, 2, 3},
	}}

	o, err := New(cfg, cat, store, func() PageDriver { return &fakeDriver{env: env} }, nil)
	require.NoError(t, err)

	plan, err := o.Plan(context.Background())
	require.NoError(t, err)

	assert.NotContains(t, plan.Tasks, "absent")
	assert.Contains(t, plan.Tasks, "present")
}

func TestRun_SingleShard(t *testing.T) {
	tasksDir := t.TempDir()

	for _, task := range []string{"first", "second"} {
		writeBatch(t, tasksDir, task, [][]string{
			{"Input.x", "Answer.comment"},
			{"a", "fine"},
		})
	}

	env := &fakeEnv{pages: map[string]map[string]fakeFieldSpec{
		"first":  {"comment": {kind: field.KindText}},
		"second": {"comment": {kind: field.KindText}},
	}}

	cfg := testConfig(t, tasksDir)
	store := openStore(t, cfg)
	cat := &fakeCatalog{tasks: map[string][]int{
		"first":  {1},
		"second": {2},
	}}

	o, err := New(cfg, cat, store, func() PageDriver { return &fakeDriver{env: env} }, nil)
	require.NoError(t, err)

	// With two equal tasks and two shards, each shard holds one task.
	seen := map[string]bool{}
	for shard := 0; shard < cfg.Partitions; shard++ {
		report, err := o.Run(context.Background(), shard)
		require.NoError(t, err)
		require.Len(t, report.TaskScores, 1)
		seen[report.TaskScores[0].Task] = true
	}
	assert.Len(t, seen, 2)

	_, err = o.Run(context.Background(), 99)
	require.Error(t, err)
}

func TestSampleInstances(t *testing.T) {
	ids := []int{5, 3, 9, 1, 7}

	// Under the cap: everything, sorted.
	assert.Equal(t, []int{1, 3, 5, 7, 9}, sampleInstances("t", ids, 10, 1))

	// Over the cap: deterministic for a fixed seed and task.
	a := sampleInstances("t", ids, 2, 1)
	b := sampleInstances("t", ids, 2, 1)
	assert.Equal(t, a, b)
	assert.Len(t, a, 2)

	// Different tasks draw different samples from the same seed.
	c := sampleInstances("another-task", ids, 2, 1)
	assert.Len(t, c, 2)
	for _, id := range a {
		assert.Contains(t, ids, id)
	}
	for _, id := range c {
		assert.Contains(t, ids, id)
	}
}

func TestWriteScoreCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "scores.csv")
	scores := []TaskKindScore{
		{Task: "alpha", Kind: field.KindText, Average: 0.5, Count: 2},
		{Task: "alpha", Kind: field.KindRadio, Average: 1.0, Count: 1},
		{Task: "beta", Kind: field.KindText, Average: 0.75, Count: 4},
	}
	require.NoError(t, WriteScoreCSV(path, scores))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, rows, 4) // header, alpha, beta, ALL
	assert.Equal(t, []string{"task", "radio", "text"}, rows[0])
	assert.Equal(t, []string{"alpha", "1.0000", "0.5000"}, rows[1])
	assert.Equal(t, []string{"beta", "", "0.7500"}, rows[2])
	assert.Equal(t, []string{"ALL", "1.0000", "0.6250"}, rows[3])
}

func TestWriteStatsCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.csv")
	stats := []FieldStat{
		{Kind: field.KindCheckbox, Count: 3, Scored: 3, Average: 0.9},
		{Kind: field.KindColor, Count: 1, Scored: 0, Average: 0},
	}
	require.NoError(t, WriteStatsCSV(path, stats))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, rows, 3)
	assert.Equal(t, []string{"field_kind", "count", "scored", "mean_score"}, rows[0])
	assert.Equal(t, []string{"checkbox", "3", "3", "0.9000"}, rows[1])
	assert.Equal(t, []string{"color", "1", "0", "0.0000"}, rows[2])
}
