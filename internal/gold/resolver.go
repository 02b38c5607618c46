// Package gold recovers the canonical reference answers for a task instance
// from the task's raw annotation batch. A batch row holds the input columns
// that parameterize one instance plus one "Answer.<field>" column per form
// field; when several annotators worked the same instance the batch holds
// several rows with identical input columns and differing answers.
package gold

import (
	"fmt"
	"strings"
)

// AnswerPrefix marks the answer columns in a batch table.
const AnswerPrefix = "Answer."

// Table is an immutable in-memory batch table: a header plus rows of cells
// aligned to it. Rows shorter than the header read as empty cells.
type Table struct {
	Columns []string
	Rows    [][]string
}

// cell returns the value at (row, col index), tolerating ragged rows.
func (t *Table) cell(row, col int) string {
	if col < 0 || col >= len(t.Rows[row]) {
		return ""
	}
	return t.Rows[row][col]
}

// FieldNames returns the answer columns with the prefix stripped, in column
// order. Field fill-in order follows this ordering, not page layout.
func (t *Table) FieldNames() []string {
	var names []string
	for _, c := range t.Columns {
		if strings.HasPrefix(c, AnswerPrefix) {
			names = append(names, strings.TrimPrefix(c, AnswerPrefix))
		}
	}
	return names
}

// AnswerSet maps a field name to the ordered reference answers collected for
// one instance, one entry per annotator row.
type AnswerSet map[string][]string

// IntegrityError reports a batch that cannot be reconciled with the task
// catalog, or an instance lookup outside the batch. It aborts the affected
// task only.
type IntegrityError struct {
	Task          string
	InstanceIndex int // -1 when the error is not about a specific instance
	Detail        string
}

func (e *IntegrityError) Error() string {
	if e.InstanceIndex >= 0 {
		return fmt.Sprintf("gold data integrity: task %q instance %d: %s", e.Task, e.InstanceIndex, e.Detail)
	}
	return fmt.Sprintf("gold data integrity: task %q: %s", e.Task, e.Detail)
}

// Resolver answers gold-label lookups for one task's batch table. The
// deduplicated instance list is computed once at construction and validated
// against the externally supplied catalog instance count.
type Resolver struct {
	task       string
	table      *Table
	inputCols  []int // header indexes of the non-answer columns
	answerCols map[string]int
	distinct   []int   // original row index of each distinct instance, in first-seen order
	rowsFor    [][]int // distinct index -> all original rows with the same input columns
}

// NewResolver deduplicates the table's rows on the non-answer columns and
// verifies that exactly instanceCount distinct instances remain.
func NewResolver(task string, table *Table, instanceCount int) (*Resolver, error) {
	r := &Resolver{
		task:       task,
		table:      table,
		answerCols: make(map[string]int),
	}
	for i, c := range table.Columns {
		if strings.HasPrefix(c, AnswerPrefix) {
			r.answerCols[strings.TrimPrefix(c, AnswerPrefix)] = i
		} else {
			r.inputCols = append(r.inputCols, i)
		}
	}

	seen := make(map[string]int)
	for rowIdx := range table.Rows {
		key := r.inputKey(rowIdx)
		if at, ok := seen[key]; ok {
			r.rowsFor[at] = append(r.rowsFor[at], rowIdx)
			continue
		}
		seen[key] = len(r.distinct)
		r.distinct = append(r.distinct, rowIdx)
		r.rowsFor = append(r.rowsFor, []int{rowIdx})
	}

	if len(r.distinct) != instanceCount {
		return nil, &IntegrityError{
			Task:          task,
			InstanceIndex: -1,
			Detail: fmt.Sprintf("batch has %d distinct instances, catalog reports %d",
				len(r.distinct), instanceCount),
		}
	}
	return r, nil
}

// inputKey serializes a row's non-answer columns. Cell values are length
// prefixed so distinct tuples cannot collide.
func (r *Resolver) inputKey(row int) string {
	var b strings.Builder
	for _, col := range r.inputCols {
		v := r.table.cell(row, col)
		fmt.Fprintf(&b, "%d:%s;", len(v), v)
	}
	return b.String()
}

// InstanceCount returns the number of distinct instances in the batch.
func (r *Resolver) InstanceCount() int { return len(r.distinct) }

// Labels gathers every annotator's answer for each requested field of the
// instance at instanceIndex (position in the deduplicated, order-preserving
// instance list). A field whose answer column is absent from the batch
// yields an empty sequence rather than an error.
func (r *Resolver) Labels(instanceIndex int, fieldNames []string) (AnswerSet, error) {
	if instanceIndex < 0 || instanceIndex >= len(r.distinct) {
		return nil, &IntegrityError{
			Task:          r.task,
			InstanceIndex: instanceIndex,
			Detail:        fmt.Sprintf("instance index out of range [0,%d)", len(r.distinct)),
		}
	}

	answers := make(AnswerSet, len(fieldNames))
	for _, name := range fieldNames {
		col, ok := r.answerCols[name]
		if !ok {
			answers[name] = []string{}
			continue
		}
		rows := r.rowsFor[instanceIndex]
		vals := make([]string, 0, len(rows))
		for _, rowIdx := range rows {
			vals = append(vals, r.table.cell(rowIdx, col))
		}
		answers[name] = vals
	}
	return answers, nil
}
