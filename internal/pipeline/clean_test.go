package pipeline

import (
	"strconv"
	"strings"
	"testing"

	"github.com/eurolife/lifexp/internal/dataset"
	"github.com/eurolife/lifexp/internal/reader"
)

func rawFrame() *dataset.Frame {
	f := dataset.New(reader.CompositeHeader, "2019", "2020")
	f.Append("YR,F,Y65,PT", "21.8", ": ")
	f.Append("YR,M,Y65,FR", "19.5", "20.1")
	return f
}

func normalizedFrame() *dataset.Frame {
	f := dataset.New("unit", "sex", "age", "geo", "time", "value")
	f.Append("YR", "F", "Y65", "PT", "2019", "21.8")
	f.Append("YR", "F", "Y65", "PT", "2020.0", "22.1")
	f.Append("YR", "M", "Y65", "FR", "2019", "19.5")
	return f
}

func TestClean_RawShape(t *testing.T) {
	res, err := Clean(rawFrame(), "PT")
	if err != nil {
		t.Fatalf("Clean() error = %v", err)
	}

	if !res.FromRaw {
		t.Error("FromRaw = false, want true for composite input")
	}
	if len(res.Rows) != 1 {
		t.Fatalf("Rows = %d, want 1", len(res.Rows))
	}

	row := res.Rows[0]
	if row.Region != "PT" || row.Year != 2019 || row.Value != 21.8 {
		t.Errorf("row = %+v, want PT/2019/21.8", row)
	}

	// 2 data rows x 2 year columns = 4 long rows; one ":" drop, two FR filtered.
	if res.Stats.InputRows != 4 {
		t.Errorf("InputRows = %d, want 4", res.Stats.InputRows)
	}
	if res.Stats.Dropped != 1 {
		t.Errorf("Dropped = %d, want 1", res.Stats.Dropped)
	}
	if res.Stats.FilteredOut != 2 {
		t.Errorf("FilteredOut = %d, want 2", res.Stats.FilteredOut)
	}
	if res.Stats.OutputRows != 1 {
		t.Errorf("OutputRows = %d, want 1", res.Stats.OutputRows)
	}
}

func TestClean_NormalizedShape(t *testing.T) {
	res, err := Clean(normalizedFrame(), "PT")
	if err != nil {
		t.Fatalf("Clean() error = %v", err)
	}

	if res.FromRaw {
		t.Error("FromRaw = true, want false for normalized input")
	}
	if len(res.Rows) != 2 {
		t.Fatalf("Rows = %d, want 2", len(res.Rows))
	}
	// Fractional year rendering truncates.
	if res.Rows[1].Year != 2020 {
		t.Errorf("Rows[1].Year = %d, want 2020", res.Rows[1].Year)
	}
	if res.Stats.FilteredOut != 1 {
		t.Errorf("FilteredOut = %d, want 1", res.Stats.FilteredOut)
	}
}

func TestClean_ColumnsByProvenance(t *testing.T) {
	raw, err := Clean(rawFrame(), "PT")
	if err != nil {
		t.Fatalf("Clean(raw) error = %v", err)
	}
	norm, err := Clean(normalizedFrame(), "PT")
	if err != nil {
		t.Fatalf("Clean(normalized) error = %v", err)
	}

	if got := raw.Columns()[3]; got != "region" {
		t.Errorf("raw columns[3] = %q, want region", got)
	}
	if got := norm.Columns()[3]; got != "geo" {
		t.Errorf("normalized columns[3] = %q, want geo", got)
	}
}

func TestClean_CaseInsensitiveCompositeHeader(t *testing.T) {
	f := dataset.New(strings.ToUpper(reader.CompositeHeader), "2019")
	f.Append("YR,F,Y65,PT", "21.8")

	res, err := Clean(f, "PT")
	if err != nil {
		t.Fatalf("Clean() error = %v", err)
	}
	if !res.FromRaw {
		t.Error("FromRaw = false, want true for case-variant composite header")
	}
	if len(res.Rows) != 1 {
		t.Errorf("Rows = %d, want 1", len(res.Rows))
	}
}

func TestClean_RegionNormalization(t *testing.T) {
	f := dataset.New("unit", "sex", "age", "geo", "time", "value")
	f.Append("YR", "F", "Y65", " pt ", "2019", "21.8")

	res, err := Clean(f, "PT")
	if err != nil {
		t.Fatalf("Clean() error = %v", err)
	}
	if len(res.Rows) != 1 {
		t.Fatalf("Rows = %d, want 1 (lowercase geo should normalize)", len(res.Rows))
	}
	if res.Rows[0].Region != "PT" {
		t.Errorf("Region = %q, want PT", res.Rows[0].Region)
	}
}

func TestClean_UnrecognizedShape(t *testing.T) {
	f := dataset.New("foo", "bar")
	f.Append("1", "2")

	_, err := Clean(f, "PT")
	if err == nil {
		t.Fatal("Clean() expected error for unrecognized shape")
	}
	if !strings.Contains(err.Error(), "cannot reshape") {
		t.Errorf("error = %v, want mention of reshape", err)
	}
}

func TestClean_Idempotent(t *testing.T) {
	// Cleaning an already cleaned, region-filtered table changes nothing.
	first, err := Clean(normalizedFrame(), "PT")
	if err != nil {
		t.Fatalf("first Clean() error = %v", err)
	}

	refed := dataset.New("unit", "sex", "age", "geo", "time", "value")
	for _, row := range first.Rows {
		refed.Append(row.Unit, row.Sex, row.Age, row.Region,
			intString(row.Year), floatString(row.Value))
	}

	second, err := Clean(refed, "PT")
	if err != nil {
		t.Fatalf("second Clean() error = %v", err)
	}

	if len(second.Rows) != len(first.Rows) {
		t.Fatalf("second pass Rows = %d, want %d", len(second.Rows), len(first.Rows))
	}
	for i := range first.Rows {
		if first.Rows[i] != second.Rows[i] {
			t.Errorf("row %d changed on second pass: %+v vs %+v", i, first.Rows[i], second.Rows[i])
		}
	}
	if second.Stats.Dropped != 0 || second.Stats.FilteredOut != 0 {
		t.Errorf("second pass dropped %d / filtered %d, want 0 / 0",
			second.Stats.Dropped, second.Stats.FilteredOut)
	}
}

func TestClean_InputNotMutated(t *testing.T) {
	f := rawFrame()
	before := f.Clone()

	if _, err := Clean(f, "PT"); err != nil {
		t.Fatalf("Clean() error = %v", err)
	}

	for i, c := range before.Columns {
		if f.Columns[i] != c {
			t.Errorf("Columns[%d] mutated: %q -> %q", i, c, f.Columns[i])
		}
	}
	for r := range before.Records {
		for c := range before.Records[r] {
			if f.Records[r][c] != before.Records[r][c] {
				t.Errorf("Cell(%d, %d) mutated", r, c)
			}
		}
	}
}

func TestParseYear(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"2019", 2019, true},
		{" 2019 ", 2019, true},
		{"2019.0", 2019, true},
		{"2019.9", 2019, true},
		{"abc", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseYear(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("parseYear(%q) = (%d, %v), want (%d, %v)", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"21.8", 21.8, true},
		{"21.8 e", 21.8, true},
		{"ca. 21.8", 21.8, true},
		{":", 0, false},
		{"", 0, false},
		// Signs are not part of the numeric pattern; the digits still match.
		{"-5", 5, true},
	}
	for _, tt := range tests {
		got, ok := parseValue(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("parseValue(%q) = (%g, %v), want (%g, %v)", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestClean_LargeValuesSurviveReaders(t *testing.T) {
	data := []byte("unit,sex,age,geo\\time\t2019\nYR,M,Y_LT1,PT\t1000000")

	rd, err := reader.FromUpload("extract.tsv", data)
	if err != nil {
		t.Fatalf("FromUpload() error = %v", err)
	}
	frame, err := rd.Read()
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	res, err := Clean(frame, "PT")
	if err != nil {
		t.Fatalf("Clean() error = %v", err)
	}
	if len(res.Rows) != 1 {
		t.Fatalf("Rows = %d, want 1", len(res.Rows))
	}
	if res.Rows[0].Value != 1000000 {
		t.Errorf("Value = %g, want 1000000", res.Rows[0].Value)
	}
	if got := res.Frame().Cell(0, 5); got != "1000000" {
		t.Errorf("rendered value = %q, want %q", got, "1000000")
	}
}

func TestResult_RowMaps(t *testing.T) {
	raw, err := Clean(rawFrame(), "PT")
	if err != nil {
		t.Fatalf("Clean(raw) error = %v", err)
	}
	norm, err := Clean(normalizedFrame(), "PT")
	if err != nil {
		t.Fatalf("Clean(normalized) error = %v", err)
	}

	rawMaps := raw.RowMaps()
	if len(rawMaps) != 1 {
		t.Fatalf("raw RowMaps = %d, want 1", len(rawMaps))
	}
	if got := rawMaps[0]["region"]; got != "PT" {
		t.Errorf(`raw RowMaps[0]["region"] = %v, want PT`, got)
	}
	if _, ok := rawMaps[0]["geo"]; ok {
		t.Error("raw RowMaps should not carry a geo key")
	}

	normMaps := norm.RowMaps()
	if got := normMaps[0]["geo"]; got != "PT" {
		t.Errorf(`normalized RowMaps[0]["geo"] = %v, want PT`, got)
	}
	if _, ok := normMaps[0]["region"]; ok {
		t.Error("normalized RowMaps should not carry a region key")
	}
}

func TestResult_Frame(t *testing.T) {
	res := &Result{
		Target:  "PT",
		FromRaw: true,
		Rows: []Row{
			{Unit: "YR", Sex: "F", Age: "Y65", Region: "PT", Year: 2019, Value: 21.8},
		},
	}

	f := res.Frame()
	if f.Columns[3] != "region" {
		t.Errorf("Frame columns[3] = %q, want region", f.Columns[3])
	}
	want := []string{"YR", "F", "Y65", "PT", "2019", "21.8"}
	for j, w := range want {
		if got := f.Cell(0, j); got != w {
			t.Errorf("Cell(0, %d) = %q, want %q", j, got, w)
		}
	}
}

func intString(i int) string {
	return strconv.Itoa(i)
}

func floatString(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
