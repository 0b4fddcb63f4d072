package core

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/eurolife/lifexp/internal/pipeline"
)

func TestWriteExport(t *testing.T) {
	res := &pipeline.Result{
		Target:  "PT",
		FromRaw: true,
		Rows: []pipeline.Row{
			{Unit: "YR", Sex: "F", Age: "Y65", Region: "PT", Year: 2019, Value: 21.8},
			{Unit: "YR", Sex: "M", Age: "Y65", Region: "PT", Year: 2019, Value: 18.1},
		},
	}

	dir := t.TempDir()
	path, err := WriteExport(res, dir)
	if err != nil {
		t.Fatalf("WriteExport() error = %v", err)
	}

	if want := filepath.Join(dir, "life_expectancy_PT.csv"); path != want {
		t.Errorf("path = %q, want %q", path, want)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open export: %v", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("parse export: %v", err)
	}

	if len(records) != 3 {
		t.Fatalf("record count = %d, want 3 (header + 2 rows)", len(records))
	}

	wantHeader := []string{"unit", "sex", "age", "region", "year", "value"}
	for i, w := range wantHeader {
		if records[0][i] != w {
			t.Errorf("header[%d] = %q, want %q", i, records[0][i], w)
		}
	}

	wantRow := []string{"YR", "F", "Y65", "PT", "2019", "21.8"}
	for i, w := range wantRow {
		if records[1][i] != w {
			t.Errorf("row[%d] = %q, want %q", i, records[1][i], w)
		}
	}
}

func TestWriteExport_CreatesDirectory(t *testing.T) {
	res := &pipeline.Result{Target: "SE"}

	dir := filepath.Join(t.TempDir(), "nested", "cleaned")
	path, err := WriteExport(res, dir)
	if err != nil {
		t.Fatalf("WriteExport() error = %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("export file not created: %v", err)
	}
}
