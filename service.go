package radioedit

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Options configure a Service.
type Options struct {
	Workers    int
	StateDir   string // scratch space for the job store
	OutputsDir string
	Logger     *zap.Logger
}

// Service is the entry point used by the HTTP layer and the CLI: it accepts
// jobs, lists them, cancels them and serves their outputs.
type Service struct {
	store      *Store
	queue      *Queue
	pool       *Pool
	outputsDir string
	logger     *zap.Logger

	closeOnce sync.Once
	closed    atomic.Bool
	stop      context.CancelFunc
}

// NewService opens the job store and builds the worker pool around
// processor. Workers start with Start.
func NewService(opts Options, processor Processor) (*Service, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	stateDir := opts.StateDir
	if stateDir == "" {
		stateDir = os.TempDir()
	}
	store, err := OpenStore(stateDir, logger.Named("store"))
	if err != nil {
		return nil, err
	}
	queue := NewQueue()
	return &Service{
		store:      store,
		queue:      queue,
		pool:       NewPool(store, queue, processor, opts.Workers, logger.Named("worker")),
		outputsDir: opts.OutputsDir,
		logger:     logger,
	}, nil
}

// Start launches the worker pool.
func (s *Service) Start(ctx context.Context) {
	ctx, s.stop = context.WithCancel(ctx)
	s.pool.Start(ctx)
}

// Close stops accepting jobs, lets the workers finish what is already
// queued, and removes the job store.
func (s *Service) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.queue.Close()
		s.pool.Wait()
		if s.stop != nil {
			s.stop()
		}
		// Anything the workers never reached is closed out, not left queued.
		for _, j := range s.store.Snapshot() {
			if j.Status == StatusQueued {
				_, _ = s.store.RequestCancel(j.ID)
			}
		}
		err = s.store.Close()
	})
	return err
}

// Abort is Close without draining: in-flight pipelines see their context end.
func (s *Service) Abort() error {
	if s.stop != nil {
		s.stop()
	}
	return s.Close()
}

// Submit validates params, records a queued job and hands it to the pool.
// It never waits for a worker.
func (s *Service) Submit(filename string, params Params) (string, error) {
	if err := validate(filename, params); err != nil {
		return "", err
	}
	if s.closed.Load() {
		return "", ErrQueueClosed
	}
	job, err := s.store.Create(filename, params)
	if err != nil {
		return "", err
	}
	if err := s.queue.Enqueue(job.ID); err != nil {
		// Nobody will ever pick it up; close the record out.
		_, _ = s.store.Transition(job.ID, []Status{StatusQueued}, StatusCanceled)
		return "", err
	}
	s.logger.Info("queued job",
		zap.String("job_id", job.ID),
		zap.String("file", filename),
		zap.Float64("silence_threshold_dbfs", params.SilenceThresholdDBFS),
		zap.Float64("target_lufs", params.TargetLUFS),
		zap.String("intro", params.Jingles.Intro),
		zap.String("outro", params.Jingles.Outro))
	return job.ID, nil
}

func validate(filename string, params Params) error {
	switch {
	case strings.TrimSpace(filename) == "":
		return &ValidationError{Field: "filename", Reason: "required"}
	case filepath.Base(filename) != filename || filename == "." || filename == "..":
		return &ValidationError{Field: "filename", Reason: "must be a plain file name"}
	}
	if err := validateLevel("silence_threshold_dbfs", params.SilenceThresholdDBFS); err != nil {
		return err
	}
	if err := validateLevel("target_lufs", params.TargetLUFS); err != nil {
		return err
	}
	if strings.TrimSpace(params.Jingles.Intro) == "" {
		return &ValidationError{Field: "jingles.intro", Reason: "name or RANDOM required"}
	}
	if strings.TrimSpace(params.Jingles.Outro) == "" {
		return &ValidationError{Field: "jingles.outro", Reason: "name or RANDOM required"}
	}
	return nil
}

func validateLevel(field string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return &ValidationError{Field: field, Reason: "must be a finite number"}
	}
	if v > 0 {
		return &ValidationError{Field: field, Reason: fmt.Sprintf("must be at or below 0, got %g", v)}
	}
	return nil
}

// Job returns one job.
func (s *Service) Job(id string) (Job, error) {
	return s.store.Get(id)
}

// Jobs returns full copies of every job in submission order.
func (s *Service) Jobs() []Job {
	return s.store.Snapshot()
}

// List returns the status view of every job in submission order.
func (s *Service) List() []JobView {
	jobs := s.store.Snapshot()
	views := make([]JobView, len(jobs))
	for i, j := range jobs {
		views[i] = j.View()
	}
	return views
}

// Cancel asks for a job to stop. Canceling a finished job is a no-op that
// reports CancelAlreadyTerminal.
func (s *Service) Cancel(id string) (CancelResult, error) {
	res, err := s.store.RequestCancel(id)
	if err != nil {
		return "", err
	}
	s.logger.Info("cancel requested", zap.String("job_id", id), zap.String("result", string(res)))
	return res, nil
}

// Pending returns how many jobs wait for a worker.
func (s *Service) Pending() int {
	return s.queue.Len()
}

// WorkerStates reports what each worker is doing.
func (s *Service) WorkerStates() []WorkerState {
	return s.pool.States()
}

// FetchOutput opens the artifact of a done job.
func (s *Service) FetchOutput(name string) (io.ReadCloser, error) {
	if name == "" || filepath.Base(name) != name {
		return nil, fmt.Errorf("%w: %q", ErrOutputNotFound, name)
	}
	found := false
	for _, j := range s.store.Snapshot() {
		if j.Status == StatusDone && j.OutputFilename == name {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: %q", ErrOutputNotFound, name)
	}
	f, err := os.Open(filepath.Join(s.outputsDir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %q", ErrOutputNotFound, name)
		}
		return nil, err
	}
	return f, nil
}
