// Package storage handles the persistence boundary: CSV encoding of
// telemetry tables and archival of processed batches to S3.
package storage

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"bess-analytics/internal/timeseries"
)

// ReadFrame parses delimited telemetry into a frame. The header names the
// columns; cells that fail to parse become missing values so validation can
// report them instead of the reader failing the whole file.
func ReadFrame(r io.Reader) (*timeseries.Frame, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("storage: read header: %w", err)
	}
	for i := range header {
		header[i] = strings.ToLower(strings.TrimSpace(header[i]))
	}

	var rows []map[string]any
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("storage: read row %d: %w", len(rows)+2, err)
		}
		row := make(map[string]any, len(header))
		for i, cell := range record {
			if i >= len(header) {
				break
			}
			cell = strings.TrimSpace(cell)
			if cell == "" {
				continue
			}
			row[header[i]] = cell
		}
		rows = append(rows, row)
	}
	return timeseries.FromRows(rows), nil
}

// ReadFrameFile parses a CSV file into a frame.
func ReadFrameFile(path string) (*timeseries.Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}
	defer file.Close()
	return ReadFrame(file)
}

// WriteFrame encodes a frame as CSV: timestamp first, then numeric columns,
// then flag columns. Missing cells are empty.
func WriteFrame(w io.Writer, f *timeseries.Frame) error {
	writer := csv.NewWriter(w)

	header := make([]string, 0, len(f.Columns())+len(f.FlagColumns())+1)
	if f.HasTimestamp() {
		header = append(header, timeseries.TimestampColumn)
	}
	header = append(header, f.Columns()...)
	header = append(header, f.FlagColumns()...)
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("storage: write header: %w", err)
	}

	row := make([]string, len(header))
	for i := 0; i < f.Len(); i++ {
		row = row[:0]
		if f.HasTimestamp() {
			if f.TimeValid(i) {
				row = append(row, f.Times()[i].UTC().Format(time.RFC3339Nano))
			} else {
				row = append(row, "")
			}
		}
		for _, name := range f.Columns() {
			v := f.Column(name)[i]
			if math.IsNaN(v) {
				row = append(row, "")
			} else {
				row = append(row, strconv.FormatFloat(v, 'g', -1, 64))
			}
		}
		for _, name := range f.FlagColumns() {
			row = append(row, strconv.FormatBool(f.Flag(name)[i]))
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("storage: write row %d: %w", i, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteFrameFile encodes a frame to a CSV file, creating parent directories.
func WriteFrameFile(path string, f *timeseries.Frame) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("storage: mkdir: %w", err)
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("storage: create %s: %w", path, err)
	}
	defer file.Close()
	return WriteFrame(file, f)
}
