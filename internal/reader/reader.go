// Package reader provides the format adapters that turn heterogeneous
// life-expectancy exports into one normalized long-form table.
//
// Three adapters exist: delimited wide text (TSV/CSV with a composite header
// column), flat JSON record arrays, and the compact dimension-indexed JSON
// encoding. Every adapter produces a dataset.Frame with the same six columns
// (unit, sex, age, geo, time, value); time stays a string at this layer and
// value is already coerced to a numeric rendering, with unparseable rows
// silently dropped.
//
// Adapters are selected purely by file extension through an init-registered
// factory, so orchestration code never branches on format.
package reader

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/eurolife/lifexp/internal/dataset"
)

// Columns is the canonical column order every adapter emits.
var Columns = []string{"unit", "sex", "age", "geo", "time", "value"}

// Reader is one format adapter bound to a single input.
type Reader interface {
	// Read parses the input fully into a normalized Frame.
	// It either succeeds or fails with a format-level error; row-level
	// coercion failures are dropped, not reported.
	Read() (*dataset.Frame, error)
}

// source is the input a reader parses: an on-disk path, or an in-memory
// upload when data is non-nil.
type source struct {
	path string
	data []byte
}

// open returns the raw byte stream for the source.
func (s source) open() (io.ReadCloser, error) {
	if s.data != nil {
		return io.NopCloser(strings.NewReader(string(s.data))), nil
	}
	return os.Open(s.path)
}

var registry = map[string]func(source) Reader{}

// register binds a file extension (lowercase, with dot) to an adapter
// constructor. Panics on duplicates; registration happens in init only.
func register(ext string, fn func(source) Reader) {
	if _, exists := registry[ext]; exists {
		panic(fmt.Sprintf("reader already registered for extension: %s", ext))
	}
	registry[ext] = fn
}

// New returns the adapter for the file at path, dispatching on extension.
// Returns *UnsupportedExtensionError for anything outside the registry.
func New(path string) (Reader, error) {
	return lookup(path, source{path: path})
}

// FromUpload returns the adapter for an in-memory file, dispatching on the
// extension of its original name.
func FromUpload(name string, data []byte) (Reader, error) {
	return lookup(name, source{path: name, data: data})
}

func lookup(name string, src source) (Reader, error) {
	ext := strings.ToLower(filepath.Ext(name))
	fn, ok := registry[ext]
	if !ok {
		return nil, &UnsupportedExtensionError{Ext: ext}
	}
	return fn(src), nil
}

// Extensions returns the registered extensions, sorted.
func Extensions() []string {
	out := make([]string, 0, len(registry))
	for ext := range registry {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// UnsupportedExtensionError is returned by the factory when no adapter is
// registered for a file's extension.
type UnsupportedExtensionError struct {
	Ext string
}

func (e *UnsupportedExtensionError) Error() string {
	return fmt.Sprintf("unsupported extension: %q (supported: %s)",
		e.Ext, strings.Join(Extensions(), ", "))
}

// MissingFieldsError is returned when flat JSON records lack one of the six
// canonical fields after alias resolution. It reports both what is missing
// and what was actually present for diagnosability.
type MissingFieldsError struct {
	Missing []string
	Present []string
}

func (e *MissingFieldsError) Error() string {
	return fmt.Sprintf("json records missing fields: %s (present fields: %s)",
		strings.Join(e.Missing, ", "), strings.Join(e.Present, ", "))
}

// UnsupportedShapeError is returned when a JSON document is neither a record
// array nor a compact dimension-indexed object.
type UnsupportedShapeError struct{}

func (e *UnsupportedShapeError) Error() string {
	return "unsupported json shape: expected a record array or an object with dimension and value keys"
}
