package reader

import (
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/eurolife/lifexp/internal/dataset"
)

func init() {
	register(".tsv", func(src source) Reader { return &Delimited{src: src, Sep: '\t'} })
	register(".csv", func(src source) Reader { return &Delimited{src: src, Sep: '\t'} })
}

// CompositeHeader is the literal header of the combined first column in raw
// Eurostat extracts. The four dimensions are comma-joined in the cell values
// and the year columns follow to the right.
const CompositeHeader = `unit,sex,age,geo\time`

// Delimited reads raw wide-format extracts: one composite first column and
// one column per year. The wide table is unpivoted so every (data row, year
// column) pair becomes one output row.
type Delimited struct {
	src source

	// Sep is the field separator. Eurostat ships tab-separated data under
	// both .tsv and .csv names, so the default is a tab for either.
	Sep rune
}

// NewDelimited creates a reader for an on-disk delimited file.
func NewDelimited(path string) *Delimited {
	return &Delimited{src: source{path: path}, Sep: '\t'}
}

// Read parses the file and returns the unpivoted long-form table.
func (d *Delimited) Read() (*dataset.Frame, error) {
	rc, err := d.src.open()
	if err != nil {
		return nil, fmt.Errorf("open delimited file: %w", err)
	}
	defer rc.Close()

	cr := csv.NewReader(rc)
	cr.Comma = d.Sep
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse delimited file: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("delimited file is empty")
	}

	header := rows[0]
	out := dataset.New(Columns...)

	for _, row := range rows[1:] {
		if len(row) == 0 {
			continue
		}
		unit, sex, age, geo := splitComposite(row[0])

		// Unpivot: one output row per year column.
		for col := 1; col < len(header) && col < len(row); col++ {
			value, ok := cleanValue(row[col])
			if !ok {
				continue
			}
			time := strings.TrimSpace(header[col])
			out.Append(unit, sex, age, geo, time, value)
		}
	}

	return out, nil
}

// splitComposite splits a composite cell "unit,sex,age,geo" into its four
// dimensions positionally. Fields must not contain embedded commas; missing
// trailing fields become empty strings.
func splitComposite(cell string) (unit, sex, age, geo string) {
	parts := strings.Split(cell, ",")
	get := func(i int) string {
		if i < len(parts) {
			return parts[i]
		}
		return ""
	}
	return get(0), get(1), get(2), get(3)
}

// cleanValue strips the Eurostat missing-value marker ":" and spaces, then
// parses the remainder as a float. Returns ok=false when nothing numeric
// remains; that is expected for the marker case and the row is dropped.
// Plain decimal notation throughout: scientific notation would not survive
// the downstream value parse.
func cleanValue(raw string) (string, bool) {
	s := strings.ReplaceAll(raw, ":", "")
	s = strings.ReplaceAll(s, " ", "")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return "", false
	}
	return strconv.FormatFloat(v, 'f', -1, 64), true
}
