// Copyright 2023 Stock Parfait

// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at

//     http://www.apache.org/licenses/LICENSE-2.0

// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package table implements an ordered tabular container with CSV and
// plain-text writers. Row types implement the Row interface:
//
//   type Dim struct {
//     Parameter string
//     Code      string
//   }
//
//   func (d Dim) CSV() []string { return []string{d.Parameter, d.Code} }
//
//   t := table.New("parameter", "code")
//   t.AddRow(Dim{"freq", "CL_FREQ"})
package table

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/stockparfait/errors"
)

// Row is a single table row; CSV returns its cells as strings, compatible
// with encoding/csv.
type Row interface {
	CSV() []string
}

// Table is an ordered sequence of rows with an optional header. When a
// header is present, it is expected to have the same number of cells as
// every row.
type Table struct {
	Header []string
	Rows   []Row
}

// New creates an empty Table with optional column headers.
func New(header ...string) *Table {
	return &Table{Header: header}
}

// AddRow appends one or more rows to the table.
func (t *Table) AddRow(rows ...Row) {
	t.Rows = append(t.Rows, rows...)
}

// Size returns the number of rows in the table, not counting the header.
func (t *Table) Size() int { return len(t.Rows) }

// Params configure the table writers.
type Params struct {
	MaxRows  int  // stop after this many rows; 0 = write all
	NoHeader bool // skip the header even when present
}

// rowLimit returns the number of rows to write under p.
func (t *Table) rowLimit(p Params) int {
	if p.MaxRows > 0 && p.MaxRows < len(t.Rows) {
		return p.MaxRows
	}
	return len(t.Rows)
}

// WriteCSV writes the table to w in CSV format.
func (t *Table) WriteCSV(w io.Writer, p Params) error {
	cw := csv.NewWriter(w)
	if !p.NoHeader && len(t.Header) > 0 {
		if err := cw.Write(t.Header); err != nil {
			return errors.Annotate(err, "failed to write header")
		}
	}
	for _, r := range t.Rows[:t.rowLimit(p)] {
		if err := cw.Write(r.CSV()); err != nil {
			return errors.Annotate(err, "failed to write row")
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return errors.Annotate(err, "failed to flush rows")
	}
	return nil
}

// WriteText writes the table to w as aligned columns for ease of reading.
func (t *Table) WriteText(w io.Writer, p Params) error {
	var lines [][]string
	if !p.NoHeader && len(t.Header) > 0 {
		lines = append(lines, t.Header)
	}
	headers := len(lines)
	for _, r := range t.Rows[:t.rowLimit(p)] {
		lines = append(lines, r.CSV())
	}
	if len(lines) == 0 {
		return nil
	}

	widths := make([]int, len(lines[0]))
	for _, cells := range lines {
		if len(cells) != len(widths) {
			return errors.Reason("row size [%d] != expected size [%d]",
				len(cells), len(widths))
		}
		for i, c := range cells {
			if n := len([]rune(c)); n > widths[i] {
				widths[i] = n
			}
		}
	}

	write := func(cells []string) error {
		padded := make([]string, len(cells))
		for i, c := range cells {
			padded[i] = c + strings.Repeat(" ", widths[i]-len([]rune(c)))
		}
		_, err := fmt.Fprintln(w, strings.TrimRight(strings.Join(padded, "  "), " "))
		return err
	}

	for i, cells := range lines {
		if err := write(cells); err != nil {
			return errors.Annotate(err, "failed to write row")
		}
		if headers > 0 && i == 0 {
			dashes := make([]string, len(widths))
			for j, n := range widths {
				dashes[j] = strings.Repeat("-", n)
			}
			if err := write(dashes); err != nil {
				return errors.Annotate(err, "failed to write header separator")
			}
		}
	}
	return nil
}
