// Package pipeline reshapes, cleans, and filters tabular life-expectancy
// data into the canonical long-form table for one target region.
//
// Clean accepts either the raw wide shape (composite first column still
// present) or the already-normalized shape produced by the format readers,
// and tracks which one it saw: the two provenances project to different
// output column names (region vs. geo), a historical contract downstream
// consumers depend on.
//
// Row-level coercion failures (unparseable year or value) drop the row
// silently rather than failing the call. Malformed rows are expected noise
// in real statistical extracts, not errors; Stats exposes how many were
// discarded.
package pipeline

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/eurolife/lifexp/internal/dataset"
	"github.com/eurolife/lifexp/internal/reader"
	"github.com/eurolife/lifexp/internal/region"
)

// valuePattern extracts the leading numeric substring from a stringified
// value cell. It tolerates surrounding non-numeric noise but not leading
// signs or scientific notation.
var valuePattern = regexp.MustCompile(`\d+\.?\d*`)

// Row is one cleaned observation for the target region.
type Row struct {
	Unit   string  `json:"unit"`
	Sex    string  `json:"sex"`
	Age    string  `json:"age"`
	Region string  `json:"region"`
	Year   int     `json:"year"`
	Value  float64 `json:"value"`
}

// Stats counts what the cleaning pass did with the input.
type Stats struct {
	// InputRows is the long-form row count before cleaning.
	InputRows int `json:"input_rows"`
	// Dropped is rows discarded for an unparseable year or value.
	Dropped int `json:"dropped"`
	// FilteredOut is clean rows that belonged to other regions.
	FilteredOut int `json:"filtered_out"`
	// OutputRows is what survived.
	OutputRows int `json:"output_rows"`
}

// Result is the cleaned, region-filtered table plus its provenance.
type Result struct {
	Target  region.Code
	FromRaw bool
	Rows    []Row
	Stats   Stats
}

// Columns returns the output column order. Raw-shaped input yields a
// "region" column; pre-normalized input yields "geo" instead, where geo is a
// copy of the resolved region. Both namings are carried deliberately.
func (r *Result) Columns() []string {
	if r.FromRaw {
		return []string{"unit", "sex", "age", "region", "year", "value"}
	}
	return []string{"unit", "sex", "age", "geo", "year", "value"}
}

// Frame renders the result as a string-valued table in Columns order.
// Values use plain decimal notation so a rendered table can be re-cleaned
// without loss.
func (r *Result) Frame() *dataset.Frame {
	out := dataset.New(r.Columns()...)
	for _, row := range r.Rows {
		out.Append(
			row.Unit, row.Sex, row.Age, row.Region,
			strconv.Itoa(row.Year),
			strconv.FormatFloat(row.Value, 'f', -1, 64),
		)
	}
	return out
}

// RowMaps renders the rows for JSON output with the provenance-appropriate
// region key, matching Columns: "region" for raw input, "geo" for
// pre-normalized input.
func (r *Result) RowMaps() []map[string]any {
	key := "geo"
	if r.FromRaw {
		key = "region"
	}
	out := make([]map[string]any, len(r.Rows))
	for i, row := range r.Rows {
		out[i] = map[string]any{
			"unit":  row.Unit,
			"sex":   row.Sex,
			"age":   row.Age,
			key:     row.Region,
			"year":  row.Year,
			"value": row.Value,
		}
	}
	return out
}

// longRow is the intermediate shape after unpivoting, before coercion.
type longRow struct {
	unit, sex, age, region string
	year, value            string
}

// Clean reshapes the input to long form, coerces year and value, normalizes
// region codes against the catalog, and filters to the target region.
// The input frame is not mutated.
func Clean(f *dataset.Frame, target region.Code) (*Result, error) {
	work := f.Clone()
	work.StripHeaders()

	long, fromRaw, err := reshape(work)
	if err != nil {
		return nil, err
	}

	res := &Result{Target: target, FromRaw: fromRaw}
	res.Stats.InputRows = len(long)

	for _, lr := range long {
		year, ok := parseYear(lr.year)
		if !ok {
			res.Stats.Dropped++
			continue
		}
		value, ok := parseValue(lr.value)
		if !ok {
			res.Stats.Dropped++
			continue
		}

		// Uppercase and catalog-normalize the region; unmatched values pass
		// through uppercased so the filter still sees them.
		reg := strings.ToUpper(strings.TrimSpace(lr.region))
		if norm, ok := region.Normalize(reg); ok {
			reg = string(norm)
		}
		reg = strings.ToUpper(reg)

		if reg != string(target) {
			res.Stats.FilteredOut++
			continue
		}

		res.Rows = append(res.Rows, Row{
			Unit:   lr.unit,
			Sex:    lr.sex,
			Age:    lr.age,
			Region: reg,
			Year:   year,
			Value:  value,
		})
	}

	res.Stats.OutputRows = len(res.Rows)
	return res, nil
}

// reshape unifies the two accepted input shapes into long rows and reports
// whether the raw composite shape was seen.
func reshape(f *dataset.Frame) ([]longRow, bool, error) {
	// Exact composite header match first.
	composite := -1
	for i, c := range f.Columns {
		if c == reader.CompositeHeader {
			composite = i
			break
		}
	}

	if composite < 0 && f.HasColumns("unit", "sex", "age", "geo", "time", "value") {
		return meltNormalized(f), false, nil
	}

	// Fall back to a case-insensitive composite search; a match under odd
	// casing is treated as raw-shaped from here on.
	if composite < 0 {
		composite = f.ColumnIndex(reader.CompositeHeader)
	}
	if composite < 0 {
		return nil, false, fmt.Errorf("missing combined metadata column %q and normalized columns; cannot reshape", reader.CompositeHeader)
	}

	return meltRaw(f, composite), true, nil
}

// meltRaw unpivots the wide shape: every non-composite column is a year
// column, and the composite cell splits into (unit, sex, age, region).
func meltRaw(f *dataset.Frame, composite int) []longRow {
	var out []longRow
	for r := range f.Records {
		parts := strings.Split(f.Cell(r, composite), ",")
		get := func(i int) string {
			if i < len(parts) {
				return parts[i]
			}
			return ""
		}
		unit, sex, age, reg := get(0), get(1), get(2), get(3)

		for c, name := range f.Columns {
			if c == composite {
				continue
			}
			out = append(out, longRow{
				unit: unit, sex: sex, age: age, region: reg,
				year:  name,
				value: f.Cell(r, c),
			})
		}
	}
	return out
}

// meltNormalized maps the readers' long shape onto longRow, renaming time to
// year and duplicating geo into region.
func meltNormalized(f *dataset.Frame) []longRow {
	unit := f.ColumnIndex("unit")
	sex := f.ColumnIndex("sex")
	age := f.ColumnIndex("age")
	geo := f.ColumnIndex("geo")
	time := f.ColumnIndex("time")
	value := f.ColumnIndex("value")

	out := make([]longRow, 0, f.Len())
	for r := range f.Records {
		out = append(out, longRow{
			unit:   f.Cell(r, unit),
			sex:    f.Cell(r, sex),
			age:    f.Cell(r, age),
			region: f.Cell(r, geo),
			year:   f.Cell(r, time),
			value:  f.Cell(r, value),
		})
	}
	return out
}

// parseYear does a whitespace-stripped numeric parse, truncating fractional
// year renderings like "2019.0".
func parseYear(s string) (int, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return int(f), true
}

// parseValue extracts the leading numeric substring and coerces it to a
// float. Returns ok=false when nothing numeric is found.
func parseValue(s string) (float64, bool) {
	m := valuePattern.FindString(s)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
