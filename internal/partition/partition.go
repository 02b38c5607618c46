// Package partition splits a weighted task catalog into a fixed number of
// shards of near-equal total weight, so each evaluation worker gets a fair
// slice of a very uneven catalog. A task is never split across shards. The
// split runs once, single-threaded, before any worker starts; shards are
// immutable afterward.
package partition

import (
	"fmt"
	"sort"
)

// Weight is the estimated evaluation cost of one task. Weights are computed
// once, before partitioning, and never change.
type Weight struct {
	Weight int
	Task   string
}

// ComputeWeight estimates a task's cost: instances (capped, so one outlier
// task cannot dominate) times a constant per-instance overhead plus one unit
// per form field.
func ComputeWeight(task string, instanceCount, fieldCount, cap, fixedOverhead int) Weight {
	n := instanceCount
	if cap > 0 && n > cap {
		n = cap
	}
	return Weight{Weight: n * (fixedOverhead + fieldCount), Task: task}
}

// Shard is one worker's slice of the catalog.
type Shard struct {
	Tasks  []string
	Weight int
}

func (s Shard) add(w Weight) Shard {
	s.Tasks = append(s.Tasks, w.Task)
	s.Weight += w.Weight
	return s
}

// workingSet is a sorted slice of (weight, task) pairs supporting
// nearest-greater-or-equal lookup and index removal. It replaces the
// usual mutate-a-shared-set approach with an index-stable ordered structure.
type workingSet struct {
	items []Weight
}

func newWorkingSet(weights []Weight) *workingSet {
	items := make([]Weight, len(weights))
	copy(items, weights)
	sort.Slice(items, func(i, j int) bool {
		if items[i].Weight != items[j].Weight {
			return items[i].Weight < items[j].Weight
		}
		return items[i].Task < items[j].Task
	})
	return &workingSet{items: items}
}

func (ws *workingSet) len() int { return len(ws.items) }

// takeAt removes and returns the item at index i.
func (ws *workingSet) takeAt(i int) Weight {
	w := ws.items[i]
	ws.items = append(ws.items[:i], ws.items[i+1:]...)
	return w
}

// takeHeaviest removes and returns the heaviest remaining item.
func (ws *workingSet) takeHeaviest() Weight {
	return ws.takeAt(len(ws.items) - 1)
}

// peekHeaviest returns the heaviest remaining item without removing it.
func (ws *workingSet) peekHeaviest() Weight {
	return ws.items[len(ws.items)-1]
}

// takeCeiling removes the lightest item with weight >= goal; when every
// remaining item is lighter it falls back to the heaviest one. The sorted
// order makes the choice deterministic, ties resolving by task name.
func (ws *workingSet) takeCeiling(goal int) Weight {
	i := sort.Search(len(ws.items), func(i int) bool {
		return ws.items[i].Weight >= goal
	})
	if i == len(ws.items) {
		i = len(ws.items) - 1
	}
	return ws.takeAt(i)
}

// Split distributes the weighted tasks over exactly shardCount shards using
// a greedy heuristic:
//
//  1. Tasks heavier than the current fair share each get a dedicated shard
//     (outlier extraction), so no shard is forced to absorb an oversized
//     task on top of a fair load.
//  2. Each remaining shard is filled by repeatedly taking the lightest task
//     that covers the shard's remaining budget, falling back to the heaviest
//     task left.
//  3. Anything still unassigned afterward drains onto the lightest shard,
//     one task at a time, so no task weight is ever lost.
//
// The problem is NP-hard; this guarantees a bounded approximation and, for
// reproducibility of worker assignment, full determinism.
func Split(weights []Weight, shardCount int) ([]Shard, error) {
	if shardCount <= 0 {
		return nil, fmt.Errorf("shard count must be positive, got %d", shardCount)
	}

	ws := newWorkingSet(weights)
	total := 0
	for _, w := range ws.items {
		total += w.Weight
	}

	shards := make([]Shard, 0, shardCount)
	remaining := shardCount

	// Outlier extraction.
	for remaining > 1 && ws.len() > 0 && ws.peekHeaviest().Weight > total/remaining {
		w := ws.takeHeaviest()
		shards = append(shards, Shard{}.add(w))
		total -= w.Weight
		remaining--
	}

	// Greedy fill. The budget is the fair share of the post-outlier total
	// and stays fixed across shards.
	fair := total / remaining
	for i := 0; i < remaining; i++ {
		shard := Shard{}
		goal := fair
		for goal > 0 && ws.len() > 0 {
			w := ws.takeCeiling(goal)
			shard = shard.add(w)
			goal -= w.Weight
		}
		shards = append(shards, shard)
	}

	// Conservation drain: leftover tasks go to the lightest shard.
	for ws.len() > 0 {
		w := ws.takeHeaviest()
		lightest := 0
		for i := 1; i < len(shards); i++ {
			if shards[i].Weight < shards[lightest].Weight {
				lightest = i
			}
		}
		shards[lightest] = shards[lightest].add(w)
	}

	return shards, nil
}

// TotalWeight sums the shard weights; used by callers reporting the split.
func TotalWeight(shards []Shard) int {
	total := 0
	for _, s := range shards {
		total += s.Weight
	}
	return total
}
