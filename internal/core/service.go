package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/eurolife/lifexp/internal/config"
	"github.com/eurolife/lifexp/internal/pipeline"
	"github.com/eurolife/lifexp/internal/reader"
	"github.com/eurolife/lifexp/internal/region"
	"github.com/google/uuid"
)

// Service orchestrates the ingest pipeline: reader dispatch, cleaning,
// persistence, and CSV export. Ingests run asynchronously; Clean* calls are
// synchronous and side-effect free.
type Service struct {
	store   Store
	cfg     *config.Config
	limiter *IngestLimiter

	mu      sync.RWMutex
	ingests map[string]*activeIngest
}

type activeIngest struct {
	ID       string
	Region   region.Code
	FileName string
	Cancel   context.CancelFunc
	Progress IngestProgress
	Result   *IngestResult
	Done     chan struct{}

	ListenerMu sync.Mutex
	Listeners  []chan IngestProgress
	// Finished marks that listeners were closed; late subscribers get the
	// final snapshot and an immediately closed channel.
	Finished bool
}

// NewService creates a Service. store must be non-nil; it is only touched by
// ingest operations, never by Clean* calls.
func NewService(store Store, cfg *config.Config) *Service {
	return &Service{
		store:   store,
		cfg:     cfg,
		limiter: NewIngestLimiter(cfg.Ingest.MaxConcurrent, cfg.Ingest.MaxWaitTime),
		ingests: make(map[string]*activeIngest),
	}
}

// CleanUpload runs the full read-and-clean pipeline over an in-memory file
// for the requested target region. Nothing is persisted.
func (s *Service) CleanUpload(ctx context.Context, fileName string, data []byte, target string) (*pipeline.Result, error) {
	code, err := region.Resolve(target)
	if err != nil {
		return nil, err
	}

	rd, err := reader.FromUpload(fileName, data)
	if err != nil {
		return nil, err
	}
	frame, err := rd.Read()
	if err != nil {
		return nil, err
	}

	return pipeline.Clean(frame, code)
}

// CleanFile is CleanUpload for an on-disk file.
func (s *Service) CleanFile(ctx context.Context, path string, target string) (*pipeline.Result, error) {
	code, err := region.Resolve(target)
	if err != nil {
		return nil, err
	}

	rd, err := reader.New(path)
	if err != nil {
		return nil, err
	}
	frame, err := rd.Read()
	if err != nil {
		return nil, err
	}

	return pipeline.Clean(frame, code)
}

// StartIngest begins an asynchronous ingest: clean, persist, export.
// Returns the ingest ID immediately; use SubscribeProgress for updates.
func (s *Service) StartIngest(ctx context.Context, target string, fileName string, data []byte) (string, error) {
	code, err := region.Resolve(target)
	if err != nil {
		return "", err
	}

	if max := s.cfg.Ingest.MaxFileSize; max > 0 && int64(len(data)) > max {
		return "", fmt.Errorf("file too large: %d bytes (limit %d)", len(data), max)
	}

	ingestID := uuid.New().String()
	ingestCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Ingest.Timeout)

	job := &activeIngest{
		ID:       ingestID,
		Region:   code,
		FileName: fileName,
		Cancel:   cancel,
		Progress: IngestProgress{
			IngestID: ingestID,
			Region:   string(code),
			FileName: fileName,
			Phase:    PhaseStarting,
		},
		Done: make(chan struct{}),
	}

	s.mu.Lock()
	s.ingests[ingestID] = job
	s.mu.Unlock()

	go s.processIngest(ingestCtx, job, data)

	return ingestID, nil
}

// processIngest runs one ingest job to completion.
func (s *Service) processIngest(ctx context.Context, job *activeIngest, data []byte) {
	start := time.Now()
	logger := slog.Default().With("ingest_id", job.ID, "region", job.Region, "file", job.FileName)

	defer func() {
		job.closeListeners()
		close(job.Done)
		s.cleanup(job.ID, 5*time.Minute)
	}()

	if err := s.limiter.Acquire(ctx); err != nil {
		s.failIngest(job, start, err)
		return
	}
	defer s.limiter.Release()

	job.setPhase(PhaseReading)
	rd, err := reader.FromUpload(job.FileName, data)
	if err != nil {
		s.failIngest(job, start, err)
		return
	}
	frame, err := rd.Read()
	if err != nil {
		s.failIngest(job, start, err)
		return
	}
	job.update(func(p *IngestProgress) {
		p.RowsRead = frame.Len()
		p.Phase = PhaseCleaning
	})

	res, err := pipeline.Clean(frame, job.Region)
	if err != nil {
		s.failIngest(job, start, err)
		return
	}
	job.update(func(p *IngestProgress) { p.RowsKept = res.Stats.OutputRows })

	if err := ctx.Err(); err != nil {
		s.failIngest(job, start, err)
		return
	}

	job.setPhase(PhasePersisting)
	run := IngestRun{
		ID:         job.ID,
		FileName:   job.FileName,
		Region:     job.Region,
		InputRows:  res.Stats.InputRows,
		Dropped:    res.Stats.Dropped,
		OutputRows: res.Stats.OutputRows,
	}
	if err := s.store.SaveRun(ctx, run); err != nil {
		s.failIngest(job, start, err)
		return
	}

	obs := make([]Observation, len(res.Rows))
	for i, row := range res.Rows {
		obs[i] = observationFromRow(row)
	}
	persisted, err := s.store.InsertObservations(ctx, job.ID, obs)
	if err != nil {
		s.failIngest(job, start, err)
		return
	}

	job.setPhase(PhaseExporting)
	var exportPath string
	if s.cfg.Export.Dir != "" {
		exportPath, err = WriteExport(res, s.cfg.Export.Dir)
		if err != nil {
			s.failIngest(job, start, err)
			return
		}
	}

	// Final history record with the persisted count.
	run.Persisted = persisted
	run.Duration = time.Since(start)
	if err := s.store.SaveRun(ctx, run); err != nil {
		logger.Warn("failed to update ingest run record", "error", err)
	}

	job.Result = &IngestResult{
		IngestID:   job.ID,
		Region:     string(job.Region),
		FileName:   job.FileName,
		Stats:      res.Stats,
		Persisted:  persisted,
		ExportPath: exportPath,
		Duration:   time.Since(start),
	}
	job.setPhase(PhaseComplete)

	logger.Info("ingest complete",
		"rows_in", res.Stats.InputRows,
		"rows_out", res.Stats.OutputRows,
		"dropped", res.Stats.Dropped,
		"persisted", persisted,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// failIngest finalizes a job in a failed or cancelled state.
func (s *Service) failIngest(job *activeIngest, start time.Time, err error) {
	phase := PhaseFailed
	if errors.Is(err, context.Canceled) {
		phase = PhaseCancelled
	}

	job.update(func(p *IngestProgress) {
		p.Phase = phase
		p.Error = err.Error()
	})

	job.Result = &IngestResult{
		IngestID: job.ID,
		Region:   string(job.Region),
		FileName: job.FileName,
		Duration: time.Since(start),
		Error:    err.Error(),
	}

	slog.Default().Warn("ingest failed",
		"ingest_id", job.ID,
		"region", job.Region,
		"error", err,
	)
}

// SubscribeProgress returns a channel receiving progress updates for an
// ingest. The channel closes when the ingest completes.
func (s *Service) SubscribeProgress(ingestID string) (<-chan IngestProgress, error) {
	s.mu.RLock()
	job, ok := s.ingests[ingestID]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("ingest not found: %s", ingestID)
	}

	ch := make(chan IngestProgress, 10)

	job.ListenerMu.Lock()
	if job.Finished {
		ch <- job.Progress
		close(ch)
	} else {
		job.Listeners = append(job.Listeners, ch)
		// Send current progress immediately.
		select {
		case ch <- job.Progress:
		default:
		}
	}
	job.ListenerMu.Unlock()

	return ch, nil
}

// CancelIngest cancels an in-progress ingest.
func (s *Service) CancelIngest(ingestID string) error {
	s.mu.RLock()
	job, ok := s.ingests[ingestID]
	s.mu.RUnlock()

	if !ok {
		return fmt.Errorf("ingest not found: %s", ingestID)
	}

	job.Cancel()
	return nil
}

// GetIngestResult blocks until the ingest completes and returns its result.
func (s *Service) GetIngestResult(ingestID string) (*IngestResult, error) {
	s.mu.RLock()
	job, ok := s.ingests[ingestID]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("ingest not found: %s", ingestID)
	}

	<-job.Done
	return job.Result, nil
}

// GetIngestProgress returns the current progress without blocking.
func (s *Service) GetIngestProgress(ingestID string) (IngestProgress, error) {
	s.mu.RLock()
	job, ok := s.ingests[ingestID]
	s.mu.RUnlock()

	if !ok {
		return IngestProgress{}, fmt.Errorf("ingest not found: %s", ingestID)
	}

	job.ListenerMu.Lock()
	snapshot := job.Progress
	job.ListenerMu.Unlock()
	return snapshot, nil
}

// Observations returns persisted rows for a target region.
func (s *Service) Observations(ctx context.Context, target string, limit int) ([]Observation, error) {
	code, err := region.Resolve(target)
	if err != nil {
		return nil, err
	}
	return s.store.ObservationsByRegion(ctx, code, limit)
}

// History returns the ingest-run history for a target region.
func (s *Service) History(ctx context.Context, target string, limit int) ([]IngestRun, error) {
	code, err := region.Resolve(target)
	if err != nil {
		return nil, err
	}
	return s.store.RunsByRegion(ctx, code, limit)
}

// LimiterStatus reports current ingest concurrency.
func (s *Service) LimiterStatus() LimiterStatus {
	return s.limiter.Status()
}

// WaitForIngests blocks until active ingests drain or ctx is cancelled.
// Used during graceful shutdown.
func (s *Service) WaitForIngests(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

// cleanup removes a finished ingest from the registry after a grace period
// so late result polls still succeed.
func (s *Service) cleanup(ingestID string, after time.Duration) {
	time.AfterFunc(after, func() {
		s.mu.Lock()
		delete(s.ingests, ingestID)
		s.mu.Unlock()
	})
}

// setPhase updates the phase and notifies listeners.
func (j *activeIngest) setPhase(p IngestPhase) {
	j.update(func(pr *IngestProgress) { pr.Phase = p })
}

// update mutates the progress snapshot and notifies listeners, all under
// ListenerMu so concurrent readers always see a consistent snapshot.
// Updates are dropped for slow consumers rather than blocking the ingest.
func (j *activeIngest) update(fn func(*IngestProgress)) {
	j.ListenerMu.Lock()
	defer j.ListenerMu.Unlock()

	fn(&j.Progress)
	for _, ch := range j.Listeners {
		select {
		case ch <- j.Progress:
		default:
		}
	}
}

// closeListeners closes all progress channels.
func (j *activeIngest) closeListeners() {
	j.ListenerMu.Lock()
	defer j.ListenerMu.Unlock()

	for _, ch := range j.Listeners {
		close(ch)
	}
	j.Listeners = nil
	j.Finished = true
}
