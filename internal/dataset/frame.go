// Package dataset provides the in-memory tabular representation shared by
// the format readers and the cleaning pipeline.
//
// A Frame is an ordered set of named columns over string-valued records.
// Keeping cells as strings mirrors how the data arrives on disk and defers
// all numeric coercion to the cleaning pipeline, which owns the policy for
// what happens when coercion fails.
package dataset

import "strings"

// Frame is a small column-ordered table. Records hold one string per column;
// short records are treated as padded with empty strings.
type Frame struct {
	Columns []string
	Records [][]string
}

// New creates an empty Frame with the given column order.
func New(columns ...string) *Frame {
	return &Frame{Columns: columns}
}

// Append adds one record. The record is stored as-is; callers are expected
// to supply values in column order.
func (f *Frame) Append(record ...string) {
	f.Records = append(f.Records, record)
}

// Len returns the number of records.
func (f *Frame) Len() int {
	return len(f.Records)
}

// Cell returns the value at (row, col), or "" when the record is shorter
// than the column index.
func (f *Frame) Cell(row, col int) string {
	r := f.Records[row]
	if col < 0 || col >= len(r) {
		return ""
	}
	return r[col]
}

// ColumnIndex returns the position of the named column, matching
// case-insensitively after trimming whitespace. Returns -1 if absent.
func (f *Frame) ColumnIndex(name string) int {
	for i, c := range f.Columns {
		if strings.EqualFold(strings.TrimSpace(c), name) {
			return i
		}
	}
	return -1
}

// HasColumns reports whether every named column is present
// (case-insensitively).
func (f *Frame) HasColumns(names ...string) bool {
	for _, n := range names {
		if f.ColumnIndex(n) < 0 {
			return false
		}
	}
	return true
}

// StripHeaders trims surrounding whitespace from every column name.
func (f *Frame) StripHeaders() {
	for i, c := range f.Columns {
		f.Columns[i] = strings.TrimSpace(c)
	}
}

// Clone returns a deep copy. The cleaning pipeline works on a copy so the
// reader's table is never mutated after handoff.
func (f *Frame) Clone() *Frame {
	out := &Frame{
		Columns: append([]string(nil), f.Columns...),
		Records: make([][]string, len(f.Records)),
	}
	for i, r := range f.Records {
		out.Records[i] = append([]string(nil), r...)
	}
	return out
}
