package core

// export.go writes the cleaned, region-filtered table to the export
// directory as CSV, one file per target region.

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"github.com/eurolife/lifexp/internal/pipeline"
)

// WriteExport writes res as life_expectancy_<CC>.csv under dir, creating
// parent folders if needed. The header follows the result's provenance-
// dependent column order. Returns the written path.
func WriteExport(res *pipeline.Result, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("life_expectancy_%s.csv", res.Target))

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create export file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(res.Columns()); err != nil {
		return "", fmt.Errorf("write export header: %w", err)
	}
	for _, record := range res.Frame().Records {
		if err := w.Write(record); err != nil {
			return "", fmt.Errorf("write export row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("flush export: %w", err)
	}
	return path, nil
}
