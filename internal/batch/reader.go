// Package batch reads a task's annotation export (batch.csv) into the
// in-memory table the gold resolver works on. The batch file is the only
// artifact the harness needs from the crowdsourcing platform besides the
// live task pages.
package batch

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"formeval/internal/gold"
)

// FileName is the conventional batch export name inside a task directory.
const FileName = "batch.csv"

// Path returns the batch file location for a task under tasksDir.
func Path(tasksDir, taskName string) string {
	return filepath.Join(tasksDir, taskName, FileName)
}

// Read parses the batch file at path. Ragged rows are tolerated (the
// resolver reads short rows as empty cells); an empty file is an error
// since a batch without a header is unusable.
func Read(path string) (*gold.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open batch: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads CSV from r into a table.
func Parse(r io.Reader) (*gold.Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1 // batches in the wild have ragged rows
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("batch is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("read batch header: %w", err)
	}

	table := &gold.Table{Columns: header}
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read batch row %d: %w", len(table.Rows)+2, err)
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

// ReadHeader parses only the header of the batch file, for weight
// computation where the rows are not needed.
func ReadHeader(path string) (*gold.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open batch: %w", err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("batch is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("read batch header: %w", err)
	}
	return &gold.Table{Columns: header}, nil
}
