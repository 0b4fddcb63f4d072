package reader

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/eurolife/lifexp/internal/dataset"
)

func init() {
	register(".json", func(src source) Reader { return &JSON{src: src} })
}

// Field alias priority lists for flat record input; first match wins.
var (
	timeAliases  = []string{"time", "year", "date"}
	geoAliases   = []string{"geo", "country", "region", "geo_code", "geocode", "nuts_code"}
	valueAliases = []string{"value", "values", "obs_value", "obsvalue", "life_expectancy", "lifeexpectancy", "le", "val"}
)

// JSON reads Eurostat-like JSON in either of two shapes: a flat array of
// record objects, or the compact encoding that stores observations by linear
// index into the Cartesian product of per-dimension label lists.
type JSON struct {
	src source
}

// NewJSON creates a reader for an on-disk JSON file.
func NewJSON(path string) *JSON {
	return &JSON{src: source{path: path}}
}

// Read routes to the record-array or compact parser based on the top-level
// JSON shape. Anything else fails with *UnsupportedShapeError.
func (j *JSON) Read() (*dataset.Frame, error) {
	rc, err := j.src.open()
	if err != nil {
		return nil, fmt.Errorf("open json file: %w", err)
	}
	defer rc.Close()

	raw, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read json file: %w", err)
	}

	var data any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}

	switch v := data.(type) {
	case []any:
		return readRecords(v)
	case map[string]any:
		if _, ok := v["dimension"]; ok {
			if _, ok := v["value"]; ok {
				return readCompact(v)
			}
		}
	}
	return nil, &UnsupportedShapeError{}
}

// ----------------------------------------------------------------------------
// Flat record array
// ----------------------------------------------------------------------------

// readRecords normalizes a list of flat record objects. Keys are matched
// case-insensitively and common aliases are accepted for the time, geo, and
// value fields.
func readRecords(records []any) (*dataset.Frame, error) {
	rows := make([]map[string]any, 0, len(records))
	keys := map[string]bool{}

	for _, r := range records {
		obj, ok := r.(map[string]any)
		if !ok {
			return nil, &UnsupportedShapeError{}
		}
		row := make(map[string]any, len(obj))
		for k, v := range obj {
			lk := strings.ToLower(k)
			row[lk] = v
			keys[lk] = true
		}
		rows = append(rows, row)
	}

	// Resolve aliases to canonical names at the column level.
	rename := map[string]string{}
	if c := pick(keys, timeAliases...); c != "" && c != "time" {
		rename[c] = "time"
	}
	if c := pick(keys, geoAliases...); c != "" && c != "geo" {
		rename[c] = "geo"
	}
	if c := pick(keys, valueAliases...); c != "" && c != "value" {
		rename[c] = "value"
	}
	for _, row := range rows {
		for from, to := range rename {
			if v, ok := row[from]; ok {
				delete(row, from)
				row[to] = v
			}
		}
	}
	for from, to := range rename {
		delete(keys, from)
		keys[to] = true
	}

	// When both time and year survive, time wins per record and records
	// missing time fall back to their year value before year is dropped.
	if keys["time"] && keys["year"] {
		for _, row := range rows {
			if t, ok := row["time"]; !ok || t == nil {
				row["time"] = row["year"]
			}
			delete(row, "year")
		}
		delete(keys, "year")
	}

	var missing []string
	for _, need := range Columns {
		if !keys[need] {
			missing = append(missing, need)
		}
	}
	if len(missing) > 0 {
		present := make([]string, 0, len(keys))
		for k := range keys {
			present = append(present, k)
		}
		sort.Strings(present)
		sort.Strings(missing)
		return nil, &MissingFieldsError{Missing: missing, Present: present}
	}

	out := dataset.New(Columns...)
	for _, row := range rows {
		value, ok := coerceValue(row["value"])
		if !ok {
			continue
		}
		out.Append(
			stringify(row["unit"]),
			stringify(row["sex"]),
			stringify(row["age"]),
			stringify(row["geo"]),
			normalizeTime(row["time"]),
			value,
		)
	}
	return out, nil
}

// pick returns the first candidate present in keys, else "".
func pick(keys map[string]bool, candidates ...string) string {
	for _, c := range candidates {
		if keys[c] {
			return c
		}
	}
	return ""
}

// normalizeTime renders a time-like value as a year string: numeric input
// becomes the integer's string form (2019.0 -> "2019"), anything else keeps
// its literal textual form.
func normalizeTime(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case float64:
		if math.IsNaN(t) {
			return ""
		}
		return strconv.Itoa(int(t))
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return t
		}
		return strconv.Itoa(int(f))
	default:
		return fmt.Sprint(v)
	}
}

// coerceValue renders an observation value as a float string.
// Returns ok=false for anything non-numeric; those rows are dropped.
// Plain decimal notation throughout: scientific notation would not survive
// the downstream value parse.
func coerceValue(v any) (string, bool) {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) {
			return "", false
		}
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return "", false
		}
		return strconv.FormatFloat(f, 'f', -1, 64), true
	default:
		return "", false
	}
}

// stringify renders a dimension cell; nil becomes "".
func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// ----------------------------------------------------------------------------
// Compact dimension-indexed object
// ----------------------------------------------------------------------------

// dimensionOrder is the fallback ordering when the dimension object carries
// no recognizable dimension keys.
var dimensionOrder = []string{"unit", "sex", "age", "geo", "time"}

// readCompact decodes the compact shape: per-dimension label lists under
// "dimension" and a linear-index -> number map under "value". Each linear
// index is unraveled into one coordinate per dimension (row-major, last
// dimension varies fastest) and mapped to labels.
func readCompact(data map[string]any) (*dataset.Frame, error) {
	dim, ok := data["dimension"].(map[string]any)
	if !ok {
		return nil, &UnsupportedShapeError{}
	}
	values, ok := data["value"].(map[string]any)
	if !ok {
		return nil, &UnsupportedShapeError{}
	}

	order := make([]string, 0, len(dimensionOrder))
	for _, k := range dimensionOrder {
		if dimensionBlock(dim, k) != nil {
			order = append(order, k)
		}
	}
	if len(order) == 0 {
		order = dimensionOrder
	}

	labels := make(map[string]map[int]string, len(order))
	bases := make([]int, len(order))
	for i, k := range order {
		m := dimensionLabels(dim, k)
		if len(m) == 0 {
			// Missing dimension: a single unlabeled slot.
			m = map[int]string{0: ""}
		}
		labels[k] = m
		bases[i] = dimensionSize(dim, k, m)
	}

	// Sort the linear indices so the output is deterministic regardless of
	// map iteration order. Non-integer keys are silently skipped.
	indices := make([]int, 0, len(values))
	for k := range values {
		if i, err := strconv.Atoi(k); err == nil {
			indices = append(indices, i)
		}
	}
	sort.Ints(indices)

	out := dataset.New(Columns...)
	for _, lin := range indices {
		value, ok := coerceValue(values[strconv.Itoa(lin)])
		if !ok {
			continue
		}

		coords := unravel(lin, bases)
		cell := map[string]string{}
		for i, k := range order {
			label, ok := labels[k][coords[i]]
			if !ok {
				label = strconv.Itoa(coords[i])
			}
			cell[k] = label
		}

		out.Append(cell["unit"], cell["sex"], cell["age"], cell["geo"], cell["time"], value)
	}
	return out, nil
}

// dimensionBlock returns the metadata object for a dimension, trying the
// exact key first and then its uppercase form.
func dimensionBlock(dim map[string]any, key string) map[string]any {
	if b, ok := dim[key].(map[string]any); ok {
		return b
	}
	if b, ok := dim[strings.ToUpper(key)].(map[string]any); ok {
		return b
	}
	return nil
}

// dimensionLabels returns the position -> category-code map reachable via
// the nested category.label field.
func dimensionLabels(dim map[string]any, key string) map[int]string {
	block := dimensionBlock(dim, key)
	if block == nil {
		return nil
	}
	cat, ok := block["category"].(map[string]any)
	if !ok {
		return nil
	}
	lab, ok := cat["label"].(map[string]any)
	if !ok {
		return nil
	}

	out := make(map[int]string, len(lab))
	for k, v := range lab {
		pos, err := strconv.Atoi(k)
		if err != nil {
			continue
		}
		out[pos] = stringify(v)
	}
	return out
}

// dimensionSize returns the dimension's cardinality: the explicit index
// length when present, otherwise the count of distinct labels.
func dimensionSize(dim map[string]any, key string, labels map[int]string) int {
	if block := dimensionBlock(dim, key); block != nil {
		if cat, ok := block["category"].(map[string]any); ok {
			switch idx := cat["index"].(type) {
			case []any:
				if len(idx) > 0 {
					return len(idx)
				}
			case map[string]any:
				if len(idx) > 0 {
					return len(idx)
				}
			}
		}
	}
	return len(labels)
}

// unravel converts a linear index into one coordinate per dimension under a
// mixed-radix numbering where the last dimension varies fastest. Kept as an
// explicit loop so the ordering is auditable.
func unravel(index int, bases []int) []int {
	coords := make([]int, 0, len(bases))
	for i := len(bases) - 1; i >= 0; i-- {
		b := bases[i]
		if b <= 0 {
			b = 1
		}
		coords = append(coords, index%b)
		index /= b
	}
	// coords were produced right-to-left; reverse into dimension order.
	for i, j := 0, len(coords)-1; i < j; i, j = i+1, j-1 {
		coords[i], coords[j] = coords[j], coords[i]
	}
	return coords
}

// ravel is the inverse of unravel. It exists to make the bijection over the
// declared index space testable.
func ravel(coords []int, bases []int) int {
	index := 0
	for i, c := range coords {
		b := bases[i]
		if b <= 0 {
			b = 1
		}
		index = index*b + c
	}
	return index
}
