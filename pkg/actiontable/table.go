// Package actiontable models the epoch-ordered maneuver schedule produced by a
// trainer and replayed by agent.TableAgent.
package actiontable

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"

	"github.com/boristopalov/spacenav/pkg/core"
)

var (
	ErrMalformed = errors.New("malformed action table")
	ErrUnsorted  = errors.New("action table epochs are not in ascending order")
)

var header = []string{"", "epoch", "dVx", "dVy", "dVz"}

// Row is one scheduled maneuver.
type Row struct {
	Epoch core.Epoch
	DVx   float64
	DVy   float64
	DVz   float64
}

// Table is an ordered list of scheduled maneuvers.
type Table []Row

// Validate checks that every value is finite and epochs are non-decreasing.
func (t Table) Validate() error {
	for i, r := range t {
		for _, v := range []float64{float64(r.Epoch), r.DVx, r.DVy, r.DVz} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: row %d has a non-finite value", ErrMalformed, i)
			}
		}
		if i > 0 && r.Epoch < t[i-1].Epoch {
			return fmt.Errorf("%w: row %d epoch %v precedes row %d epoch %v", ErrUnsorted, i, r.Epoch, i-1, t[i-1].Epoch)
		}
	}
	return nil
}

// Clone returns a copy that shares no memory with t.
func (t Table) Clone() Table {
	out := make(Table, len(t))
	copy(out, t)
	return out
}

// Load reads an action table file. See Read for the format.
func Load(path string) (Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open action table %s: %w", path, err)
	}
	defer f.Close()

	table, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("read action table %s: %w", path, err)
	}
	return table, nil
}

// Read parses a CSV action table: a header row, then one row per maneuver with
// an integer index column (ignored) followed by epoch, dVx, dVy, dVz.
func Read(r io.Reader) (Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(header)
	reader.TrimLeadingSpace = true

	if _, err := reader.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: missing header row", ErrMalformed)
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var table Table
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if _, err := strconv.Atoi(record[0]); err != nil {
			return nil, fmt.Errorf("%w: line %d: index %q is not an integer", ErrMalformed, line, record[0])
		}

		values := make([]float64, 4)
		for i, field := range record[1:] {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d column %s: %v", ErrMalformed, line, header[i+1], err)
			}
			values[i] = v
		}
		table = append(table, Row{
			Epoch: core.Epoch(values[0]),
			DVx:   values[1],
			DVy:   values[2],
			DVz:   values[3],
		})
	}

	if err := table.Validate(); err != nil {
		return nil, err
	}
	return table, nil
}

// Write encodes the table in the format understood by Read.
func Write(w io.Writer, table Table) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(header); err != nil {
		return err
	}
	for i, r := range table {
		record := []string{
			strconv.Itoa(i),
			strconv.FormatFloat(float64(r.Epoch), 'g', -1, 64),
			strconv.FormatFloat(r.DVx, 'g', -1, 64),
			strconv.FormatFloat(r.DVy, 'g', -1, 64),
			strconv.FormatFloat(r.DVz, 'g', -1, 64),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// Save writes the table to path, creating or truncating the file.
func Save(path string, table Table) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create action table %s: %w", path, err)
	}
	if err := Write(f, table); err != nil {
		f.Close()
		return fmt.Errorf("write action table %s: %w", path, err)
	}
	return f.Close()
}
