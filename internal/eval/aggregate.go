package eval

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"formeval/internal/field"
)

// TaskKindScore is the mean score of one field kind within one task.
type TaskKindScore struct {
	Task    string
	Kind    field.Kind
	Average float64
	Count   int
}

// FieldStat is how often a field kind occurred across the run, with its mean
// score over the scoreable occurrences.
type FieldStat struct {
	Kind    field.Kind
	Count   int
	Scored  int
	Average float64
}

// aggregator collects scores from all shard workers. Safe for concurrent
// use.
type aggregator struct {
	mu     sync.Mutex
	scores map[string]map[field.Kind][]float64
	counts map[field.Kind]int
}

func newAggregator() *aggregator {
	return &aggregator{
		scores: make(map[string]map[field.Kind][]float64),
		counts: make(map[field.Kind]int),
	}
}

// CountField tallies an extracted field, scoreable or not.
func (a *aggregator) CountField(kind field.Kind) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.counts[kind]++
}

// AddScore records one scored field.
func (a *aggregator) AddScore(task string, kind field.Kind, score float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	byKind, ok := a.scores[task]
	if !ok {
		byKind = make(map[field.Kind][]float64)
		a.scores[task] = byKind
	}
	byKind[kind] = append(byKind[kind], score)
}

// TaskScores returns per-task, per-kind averages sorted by task then kind.
func (a *aggregator) TaskScores() []TaskKindScore {
	a.mu.Lock()
	defer a.mu.Unlock()

	var out []TaskKindScore
	for task, byKind := range a.scores {
		for kind, vals := range byKind {
			out = append(out, TaskKindScore{
				Task:    task,
				Kind:    kind,
				Average: mean(vals),
				Count:   len(vals),
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Task != out[j].Task {
			return out[i].Task < out[j].Task
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}

// FieldStats returns per-kind occurrence counts and mean scores, sorted by
// kind.
func (a *aggregator) FieldStats() []FieldStat {
	a.mu.Lock()
	defer a.mu.Unlock()

	perKind := make(map[field.Kind][]float64)
	for _, byKind := range a.scores {
		for kind, vals := range byKind {
			perKind[kind] = append(perKind[kind], vals...)
		}
	}

	kinds := make([]field.Kind, 0, len(a.counts))
	for kind := range a.counts {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	out := make([]FieldStat, 0, len(kinds))
	for _, kind := range kinds {
		vals := perKind[kind]
		out = append(out, FieldStat{
			Kind:    kind,
			Count:   a.counts[kind],
			Scored:  len(vals),
			Average: mean(vals),
		})
	}
	return out
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

// WriteScoreCSV writes the task-by-kind score pivot: one row per task, one
// column per field kind seen in the run, cells holding the mean score or
// blank where the task has no field of that kind. A trailing "ALL" row
// carries the per-kind mean across every task.
func WriteScoreCSV(path string, scores []TaskKindScore) error {
	kindSet := make(map[field.Kind]bool)
	taskSet := make(map[string]bool)
	cells := make(map[string]map[field.Kind]float64)
	for _, s := range scores {
		kindSet[s.Kind] = true
		taskSet[s.Task] = true
		if cells[s.Task] == nil {
			cells[s.Task] = make(map[field.Kind]float64)
		}
		cells[s.Task][s.Kind] = s.Average
	}

	kinds := make([]field.Kind, 0, len(kindSet))
	for k := range kindSet {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	tasks := make([]string, 0, len(taskSet))
	for t := range taskSet {
		tasks = append(tasks, t)
	}
	sort.Strings(tasks)

	return writeCSV(path, func(w *csv.Writer) error {
		header := []string{"task"}
		for _, k := range kinds {
			header = append(header, string(k))
		}
		if err := w.Write(header); err != nil {
			return err
		}

		for _, task := range tasks {
			row := []string{task}
			for _, k := range kinds {
				if avg, ok := cells[task][k]; ok {
					row = append(row, formatScore(avg))
				} else {
					row = append(row, "")
				}
			}
			if err := w.Write(row); err != nil {
				return err
			}
		}

		all := []string{"ALL"}
		for _, k := range kinds {
			sum, n := 0.0, 0
			for _, task := range tasks {
				if avg, ok := cells[task][k]; ok {
					sum += avg
					n++
				}
			}
			if n > 0 {
				all = append(all, formatScore(sum/float64(n)))
			} else {
				all = append(all, "")
			}
		}
		return w.Write(all)
	})
}

// WriteStatsCSV writes the per-kind frequency table.
func WriteStatsCSV(path string, stats []FieldStat) error {
	return writeCSV(path, func(w *csv.Writer) error {
		if err := w.Write([]string{"field_kind", "count", "scored", "mean_score"}); err != nil {
			return err
		}
		for _, s := range stats {
			row := []string{
				string(s.Kind),
				strconv.Itoa(s.Count),
				strconv.Itoa(s.Scored),
				formatScore(s.Average),
			}
			if err := w.Write(row); err != nil {
				return err
			}
		}
		return nil
	})
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

func writeCSV(path string, fill func(*csv.Writer) error) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := fill(w); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush %s: %w", path, err)
	}
	return f.Close()
}
