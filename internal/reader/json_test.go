package reader

import (
	"testing"
)

func TestJSON_Records(t *testing.T) {
	data := `[
		{"Unit": "YR", "Sex": "F", "Age": "Y65", "Country": "PT", "Year": 2019, "OBS_VALUE": 21.8},
		{"Unit": "YR", "Sex": "M", "Age": "Y65", "Country": "FR", "Year": 2019.0, "OBS_VALUE": "19.5"},
		{"Unit": "YR", "Sex": "T", "Age": "Y65", "Country": "SE", "Year": 2020, "OBS_VALUE": null}
	]`

	rd, err := FromUpload("extract.json", []byte(data))
	if err != nil {
		t.Fatalf("FromUpload() error = %v", err)
	}
	frame, err := rd.Read()
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	// The null value row is dropped.
	if frame.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", frame.Len())
	}

	want := [][]string{
		{"YR", "F", "Y65", "PT", "2019", "21.8"},
		{"YR", "M", "Y65", "FR", "2019", "19.5"},
	}
	for i, w := range want {
		for j, cell := range w {
			if got := frame.Cell(i, j); got != cell {
				t.Errorf("Cell(%d, %d) = %q, want %q", i, j, got, cell)
			}
		}
	}
}

func TestJSON_Records_TimeWinsOverYear(t *testing.T) {
	data := `[
		{"unit": "YR", "sex": "F", "age": "Y65", "geo": "PT", "time": "2019", "year": 1999, "value": 21.8},
		{"unit": "YR", "sex": "M", "age": "Y65", "geo": "PT", "time": null, "year": 2001, "value": 18.1}
	]`

	rd, _ := FromUpload("extract.json", []byte(data))
	frame, err := rd.Read()
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if got := frame.Cell(0, 4); got != "2019" {
		t.Errorf("row 0 time = %q, want 2019 (time wins over year)", got)
	}
	if got := frame.Cell(1, 4); got != "2001" {
		t.Errorf("row 1 time = %q, want 2001 (year fallback)", got)
	}
}

func TestJSON_Records_MissingFields(t *testing.T) {
	data := `[{"unit": "YR", "sex": "F", "age": "Y65", "geo": "PT", "time": 2019}]`

	rd, _ := FromUpload("extract.json", []byte(data))
	_, err := rd.Read()
	if err == nil {
		t.Fatal("Read() expected error for missing value field")
	}

	mfe, ok := err.(*MissingFieldsError)
	if !ok {
		t.Fatalf("error type = %T, want *MissingFieldsError", err)
	}
	if len(mfe.Missing) != 1 || mfe.Missing[0] != "value" {
		t.Errorf("Missing = %v, want [value]", mfe.Missing)
	}
}

func TestJSON_UnsupportedShape(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"scalar", `42`},
		{"object without dimension", `{"rows": []}`},
		{"object with dimension but no value", `{"dimension": {}}`},
		{"array of scalars", `[1, 2, 3]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rd, _ := FromUpload("x.json", []byte(tt.data))
			_, err := rd.Read()
			if _, ok := err.(*UnsupportedShapeError); !ok {
				t.Errorf("Read() error = %v, want *UnsupportedShapeError", err)
			}
		})
	}
}

func TestJSON_Compact(t *testing.T) {
	data := `{
		"dimension": {
			"unit": {"category": {"index": ["YR"], "label": {"0": "YR"}}},
			"sex": {"category": {"index": ["F"], "label": {"0": "F"}}},
			"age": {"category": {"index": ["Y65"], "label": {"0": "Y65"}}},
			"geo": {"category": {"index": ["PT", "FR"], "label": {"0": "PT", "1": "FR"}}},
			"time": {"category": {"index": ["2019", "2020"], "label": {"0": "2019", "1": "2020"}}}
		},
		"value": {"0": 21.8, "1": 22.1, "2": 19.5, "3": null}
	}`

	rd, _ := FromUpload("compact.json", []byte(data))
	frame, err := rd.Read()
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	// Linear index 3 has a null value and is dropped.
	if frame.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", frame.Len())
	}

	// Row-major: time varies fastest, then geo.
	want := [][]string{
		{"YR", "F", "Y65", "PT", "2019", "21.8"},
		{"YR", "F", "Y65", "PT", "2020", "22.1"},
		{"YR", "F", "Y65", "FR", "2019", "19.5"},
	}
	for i, w := range want {
		for j, cell := range w {
			if got := frame.Cell(i, j); got != cell {
				t.Errorf("Cell(%d, %d) = %q, want %q", i, j, got, cell)
			}
		}
	}
}

func TestJSON_Compact_MissingDimension(t *testing.T) {
	// No unit/sex/age blocks: the present dimensions still decode.
	data := `{
		"dimension": {
			"geo": {"category": {"index": ["PT"], "label": {"0": "PT"}}},
			"time": {"category": {"index": ["2019"], "label": {"0": "2019"}}}
		},
		"value": {"0": 21.8}
	}`

	rd, _ := FromUpload("compact.json", []byte(data))
	frame, err := rd.Read()
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if frame.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", frame.Len())
	}
	if got := frame.Cell(0, 3); got != "PT" {
		t.Errorf("geo = %q, want PT", got)
	}
	if got := frame.Cell(0, 0); got != "" {
		t.Errorf("unit = %q, want empty for absent dimension", got)
	}
}

func TestUnravelRavelRoundTrip(t *testing.T) {
	bases := []int{2, 3, 4}
	total := 2 * 3 * 4

	seen := make(map[int]bool, total)
	for i := 0; i < total; i++ {
		coords := unravel(i, bases)
		for d, c := range coords {
			if c < 0 || c >= bases[d] {
				t.Fatalf("unravel(%d) coord %d out of range: %d", i, d, c)
			}
		}
		back := ravel(coords, bases)
		if back != i {
			t.Errorf("ravel(unravel(%d)) = %d", i, back)
		}
		seen[back] = true
	}
	if len(seen) != total {
		t.Errorf("round trip covered %d indices, want %d", len(seen), total)
	}
}

func TestUnravel_LastDimensionFastest(t *testing.T) {
	bases := []int{3, 2}
	want := [][]int{{0, 0}, {0, 1}, {1, 0}, {1, 1}, {2, 0}, {2, 1}}
	for i, w := range want {
		got := unravel(i, bases)
		if got[0] != w[0] || got[1] != w[1] {
			t.Errorf("unravel(%d, %v) = %v, want %v", i, bases, got, w)
		}
	}
}

func TestNormalizeTime(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"float year", 2019.0, "2019"},
		{"fractional float", 2019.7, "2019"},
		{"numeric string", "2019.0", "2019"},
		{"plain string", "2019", "2019"},
		{"non-numeric string", "unknown", "unknown"},
		{"nil", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := normalizeTime(tt.in); got != tt.want {
				t.Errorf("normalizeTime(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestJSON_LargeValuesStayPlain(t *testing.T) {
	data := `[{"unit":"YR","sex":"F","age":"Y65","geo":"PT","time":"2019","value":1000000}]`

	rd, err := FromUpload("extract.json", []byte(data))
	if err != nil {
		t.Fatalf("FromUpload() error = %v", err)
	}
	frame, err := rd.Read()
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if frame.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", frame.Len())
	}
	// Scientific notation here would corrupt the value downstream.
	if got := frame.Cell(0, 5); got != "1000000" {
		t.Errorf("value cell = %q, want %q", got, "1000000")
	}
}
