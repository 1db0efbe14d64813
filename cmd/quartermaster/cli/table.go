// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"
)

// Table writes aligned columns to Stdout.
//
//	table := cli.NewTable("NAME", "SIZE", "CREATED")
//	table.Row(name, size, created)
//	return table.Flush()
type Table struct {
	writer *tabwriter.Writer
}

// NewTable starts a table with a header row.
func NewTable(headers ...string) *Table {
	table := &Table{writer: tabwriter.NewWriter(Stdout, 2, 0, 2, ' ', 0)}
	if len(headers) > 0 {
		fmt.Fprintln(table.writer, strings.Join(headers, "\t"))
	}
	return table
}

// Row appends one row. Values are formatted with %v.
func (t *Table) Row(values ...any) {
	cells := make([]string, len(values))
	for i, value := range values {
		cells[i] = fmt.Sprint(value)
	}
	fmt.Fprintln(t.writer, strings.Join(cells, "\t"))
}

// Flush writes the aligned output.
func (t *Table) Flush() error {
	return t.writer.Flush()
}
