package web

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/eurolife/lifexp/internal/pipeline"
	"github.com/eurolife/lifexp/internal/reader"
	"github.com/eurolife/lifexp/internal/region"
	"github.com/eurolife/lifexp/internal/web/templates"
	"github.com/go-chi/chi/v5"
)

// handleHealthz reports service liveness.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

// handleStatusPage renders the landing page.
func (s *Server) handleStatusPage(w http.ResponseWriter, r *http.Request) {
	all := region.All()
	countries := region.ActualCountries()

	params := templates.StatusParams{
		Regions:    make([]string, len(all)),
		Countries:  len(countries),
		Aggregates: len(all) - len(countries),
		Extensions: reader.Extensions(),
		Limiter:    s.service.LimiterStatus(),
	}
	for i, code := range all {
		params.Regions[i] = string(code)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	templates.StatusPage(params).Render(r.Context(), w)
}

// handleListRegions returns the region catalog.
// Pass aggregates=false to exclude multi-country aggregates.
func (s *Server) handleListRegions(w http.ResponseWriter, r *http.Request) {
	var codes []region.Code
	if r.URL.Query().Get("aggregates") == "false" {
		codes = region.ActualCountries()
	} else {
		codes = region.All()
	}

	writeJSON(w, map[string]any{
		"regions": codes,
		"count":   len(codes),
	})
}

// CleanResponse is the JSON body for a synchronous clean. Row objects are
// keyed per Columns, so the region key is "region" or "geo" by provenance.
type CleanResponse struct {
	Region  string           `json:"region"`
	Columns []string         `json:"columns"`
	Stats   pipeline.Stats   `json:"stats"`
	Rows    []map[string]any `json:"rows"`
}

// handleClean runs the read-and-clean pipeline on an uploaded file and
// returns the filtered rows without persisting anything. The response is
// CSV when the client asks for text/csv (or format=csv), JSON otherwise.
func (s *Server) handleClean(w http.ResponseWriter, r *http.Request) {
	target := chi.URLParam(r, "region")

	data, fileName, ok := s.readUploadedFile(w, r)
	if !ok {
		return
	}

	res, err := s.service.CleanUpload(r.Context(), fileName, data, target)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	if wantsCSV(r) {
		writeResultCSV(w, res)
		return
	}

	writeJSON(w, CleanResponse{
		Region:  string(res.Target),
		Columns: res.Columns(),
		Stats:   res.Stats,
		Rows:    res.RowMaps(),
	})
}

// handleStartIngest begins an asynchronous ingest for the uploaded file.
func (s *Server) handleStartIngest(w http.ResponseWriter, r *http.Request) {
	target := chi.URLParam(r, "region")

	data, fileName, ok := s.readUploadedFile(w, r)
	if !ok {
		return
	}

	ingestID, err := s.service.StartIngest(r.Context(), target, fileName, data)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	if err := json.NewEncoder(w).Encode(map[string]string{"ingest_id": ingestID}); err != nil {
		slog.Error("json encode error", "error", err)
	}
}

// handleIngestProgress streams ingest progress via Server-Sent Events.
func (s *Server) handleIngestProgress(w http.ResponseWriter, r *http.Request) {
	ingestID := chi.URLParam(r, "ingestID")

	progressCh, err := s.service.SubscribeProgress(ingestID)
	if err != nil {
		s.respondError(w, r, err, http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	for {
		select {
		case progress, ok := <-progressCh:
			if !ok {
				// Channel closed - ingest finished
				fmt.Fprintf(w, "event: complete\ndata: {}\n\n")
				flusher.Flush()
				return
			}

			data, _ := json.Marshal(progress)
			fmt.Fprintf(w, "event: progress\ndata: %s\n\n", data)
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

// handleIngestResult returns the final result of an ingest, blocking until
// it completes.
func (s *Server) handleIngestResult(w http.ResponseWriter, r *http.Request) {
	ingestID := chi.URLParam(r, "ingestID")

	result, err := s.service.GetIngestResult(ingestID)
	if err != nil {
		s.respondError(w, r, err, http.StatusNotFound)
		return
	}

	writeJSON(w, result)
}

// handleCancelIngest cancels an in-progress ingest.
func (s *Server) handleCancelIngest(w http.ResponseWriter, r *http.Request) {
	ingestID := chi.URLParam(r, "ingestID")

	if err := s.service.CancelIngest(ingestID); err != nil {
		s.respondError(w, r, err, http.StatusNotFound)
		return
	}

	writeJSON(w, map[string]string{"status": "cancelled"})
}

// handleObservations returns persisted rows for a region.
func (s *Server) handleObservations(w http.ResponseWriter, r *http.Request) {
	target := chi.URLParam(r, "region")
	limit := parseIntParam(r, "limit", 0)

	obs, err := s.service.Observations(r.Context(), target, limit)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	writeJSON(w, map[string]any{
		"region":       strings.ToUpper(strings.TrimSpace(target)),
		"count":        len(obs),
		"observations": obs,
	})
}

// handleHistory returns the ingest-run history for a region.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	target := chi.URLParam(r, "region")
	limit := parseIntParam(r, "limit", 0)

	runs, err := s.service.History(r.Context(), target, limit)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	writeJSON(w, map[string]any{
		"region": strings.ToUpper(strings.TrimSpace(target)),
		"count":  len(runs),
		"runs":   runs,
	})
}

// handleQueueStatus returns the current state of the ingest limiter.
// Used for monitoring and to check if the system can accept more ingests.
func (s *Server) handleQueueStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.service.LimiterStatus())
}

// readUploadedFile extracts the "file" part from a multipart upload,
// enforcing the configured size limit. Reports false after writing an
// error response.
func (s *Server) readUploadedFile(w http.ResponseWriter, r *http.Request) ([]byte, string, bool) {
	maxSize := s.cfg.Ingest.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		writeError(w, http.StatusBadRequest, "file too large or invalid form")
		return nil, "", false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file provided")
		return nil, "", false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read file")
		return nil, "", false
	}

	return data, header.Filename, true
}

// writeResultCSV streams a cleaned result as a CSV attachment.
func writeResultCSV(w http.ResponseWriter, res *pipeline.Result) {
	filename := fmt.Sprintf("life_expectancy_%s.csv", res.Target)
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))

	cw := csv.NewWriter(w)
	cw.Write(res.Columns())
	for _, record := range res.Frame().Records {
		cw.Write(record)
	}
	cw.Flush()
}

// wantsCSV checks if the client asked for CSV output.
func wantsCSV(r *http.Request) bool {
	if r.URL.Query().Get("format") == "csv" {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "text/csv")
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}
