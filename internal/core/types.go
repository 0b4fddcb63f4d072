// Package core provides the business logic for ingesting life-expectancy
// extracts: reader dispatch, cleaning, persistence, and export. It has no
// HTTP dependencies and can be driven by any frontend.
package core

import (
	"time"

	"github.com/eurolife/lifexp/internal/pipeline"
	"github.com/eurolife/lifexp/internal/region"
)

// Observation is one persisted data point: a single unit/sex/age/region/year
// combination with its value. Duplicates are legal; the same key can appear
// with a different unit or sex.
type Observation struct {
	Unit   string  `json:"unit"`
	Sex    string  `json:"sex"`
	Age    string  `json:"age"`
	Region string  `json:"region"`
	Year   int     `json:"year"`
	Value  float64 `json:"value"`
}

// observationFromRow converts a cleaned pipeline row for persistence.
func observationFromRow(r pipeline.Row) Observation {
	return Observation{
		Unit:   r.Unit,
		Sex:    r.Sex,
		Age:    r.Age,
		Region: r.Region,
		Year:   r.Year,
		Value:  r.Value,
	}
}

// IngestPhase indicates the current stage of an ingest job.
type IngestPhase string

const (
	PhaseStarting   IngestPhase = "starting"
	PhaseReading    IngestPhase = "reading"
	PhaseCleaning   IngestPhase = "cleaning"
	PhasePersisting IngestPhase = "persisting"
	PhaseExporting  IngestPhase = "exporting"
	PhaseComplete   IngestPhase = "complete"
	PhaseFailed     IngestPhase = "failed"
	PhaseCancelled  IngestPhase = "cancelled"
)

// IngestProgress is a snapshot of an ingest job's state.
type IngestProgress struct {
	IngestID string      `json:"ingest_id"`
	Region   string      `json:"region"`
	FileName string      `json:"file_name"`
	Phase    IngestPhase `json:"phase"`
	// RowsRead is the normalized long-form row count after reading.
	RowsRead int `json:"rows_read"`
	// RowsKept is the cleaned, region-filtered row count.
	RowsKept int    `json:"rows_kept"`
	Error    string `json:"error,omitempty"`
}

// IngestResult is the final outcome of an ingest job.
type IngestResult struct {
	IngestID   string         `json:"ingest_id"`
	Region     string         `json:"region"`
	FileName   string         `json:"file_name"`
	Stats      pipeline.Stats `json:"stats"`
	Persisted  int64          `json:"persisted"`
	ExportPath string         `json:"export_path,omitempty"`
	Duration   time.Duration  `json:"duration_ns"`
	Error      string         `json:"error,omitempty"`
}

// IngestRun is the stored history record for one completed ingest.
type IngestRun struct {
	ID         string        `json:"id"`
	FileName   string        `json:"file_name"`
	Region     region.Code   `json:"region"`
	InputRows  int           `json:"input_rows"`
	Dropped    int           `json:"dropped"`
	OutputRows int           `json:"output_rows"`
	Persisted  int64         `json:"persisted"`
	Duration   time.Duration `json:"duration_ns"`
	Error      string        `json:"error,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
}
