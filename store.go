package radioedit

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	bedrock "github.com/yirzhou/bedrock"
	"go.uber.org/zap"
)

// CancelResult is the outcome of a cancel request.
type CancelResult string

const (
	CancelAccepted        CancelResult = "accepted"
	CancelAlreadyTerminal CancelResult = "already_terminal"
)

// Store is the authoritative job table.
//
// Records are JSON-encoded into a Bedrock KV store that lives in a scratch
// directory for the lifetime of the process. Every read-check-write goes
// through a single mutex, so a record is never written by two actors at
// once and snapshots never observe a half-applied transition.
type Store struct {
	db      *bedrock.KVStore
	baseDir string
	logger  *zap.Logger

	// mu guards everything below as well as every access to db.
	mu     sync.Mutex
	order  []string // job ids in creation order
	tokens map[string]*CancelToken
	seq    uint64

	now func() time.Time
}

// OpenStore creates a fresh Bedrock store under dir. Anything already there
// is not reloaded: jobs do not survive a restart.
func OpenStore(dir string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	base, err := os.MkdirTemp(dir, "jobs-")
	if err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	cfg := bedrock.NewDefaultConfiguration().
		WithBaseDir(filepath.Join(base, "bedrock")).
		WithEnableMaintenance(false).
		WithEnableCompaction(false).
		WithEnableCheckpoint(true).
		WithEnableSyncCheckpoint(false).
		WithMemtableSizeThreshold(4 << 20).
		WithCheckpointSize(16 << 20).
		WithNoLog()
	db, err := bedrock.Open(cfg)
	if err != nil {
		_ = os.RemoveAll(base)
		return nil, fmt.Errorf("open job store: %w", err)
	}
	return &Store{
		db:      db,
		baseDir: base,
		logger:  logger,
		tokens:  make(map[string]*CancelToken),
		now:     time.Now,
	}, nil
}

// Close shuts the KV store down and removes its scratch directory.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.db.CloseAndCleanUp()
	if rmErr := os.RemoveAll(s.baseDir); err == nil {
		err = rmErr
	}
	return err
}

func jobKey(id string) []byte {
	return []byte("job/" + id)
}

// Create inserts a queued job and returns a copy of it.
func (s *Store) Create(filename string, params Params) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	job := Job{
		ID:        uuid.NewString(),
		Filename:  filename,
		Params:    params,
		Status:    StatusQueued,
		Seq:       s.seq + 1,
		CreatedAt: now,
		UpdatedAt: now,
	}

	jobBytes, err := json.Marshal(job)
	if err != nil {
		return Job{}, err
	}

	txn := s.db.BeginTransaction()
	if err := txn.Put(jobKey(job.ID), jobBytes); err != nil {
		txn.Rollback()
		return Job{}, fmt.Errorf("store job: %w", err)
	}
	if err := txn.Commit(); err != nil {
		return Job{}, fmt.Errorf("store job: %w", err)
	}

	s.seq = job.Seq
	s.order = append(s.order, job.ID)
	s.tokens[job.ID] = NewCancelToken()
	return job, nil
}

// Get returns a copy of one job.
func (s *Store) Get(id string) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(id)
}

func (s *Store) read(id string) (Job, error) {
	raw, found := s.db.Get(jobKey(id))
	if !found {
		return Job{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	var job Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return Job{}, fmt.Errorf("decode job %s: %w", id, err)
	}
	return job, nil
}

// Snapshot returns copies of every job in creation order.
func (s *Store) Snapshot() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs := make([]Job, 0, len(s.order))
	for _, id := range s.order {
		job, err := s.read(id)
		if err != nil {
			s.logger.Warn("skipping unreadable job", zap.String("job_id", id), zap.Error(err))
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs
}

// Token returns the cancellation token of a job that has not reached a
// terminal state, or nil.
func (s *Store) Token(id string) *CancelToken {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens[id]
}

// Update carries the extra fields applied by a transition.
type Update struct {
	apply func(*Job)
}

// WithOutput records the produced artifact on a transition to done.
func WithOutput(name string) Update {
	return Update{apply: func(j *Job) { j.OutputFilename = name }}
}

// WithError records the failure message on a transition to error.
func WithError(msg string) Update {
	return Update{apply: func(j *Job) { j.ErrorMessage = msg }}
}

// Transition atomically moves a job to status `to`, provided its current
// status is one of from and the edge belongs to the state machine. It is the
// only way a job's status ever changes, apart from RequestCancel.
func (s *Store) Transition(id string, from []Status, to Status, updates ...Update) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.modify(id, func(job *Job) error {
		if !slices.Contains(from, job.Status) || !CanTransition(job.Status, to) {
			return fmt.Errorf("%w: job %s is %s, cannot move to %s", ErrTransitionRejected, id, job.Status, to)
		}
		job.Status = to
		for _, u := range updates {
			if u.apply != nil {
				u.apply(job)
			}
		}
		// Keep output/error presence tied to the status.
		if to != StatusDone {
			job.OutputFilename = ""
		}
		if to != StatusError {
			job.ErrorMessage = ""
		}
		switch {
		case to == StatusDone && job.OutputFilename == "":
			return fmt.Errorf("%w: done requires an output filename", ErrTransitionRejected)
		case to == StatusError && job.ErrorMessage == "":
			return fmt.Errorf("%w: error requires a message", ErrTransitionRejected)
		}
		return nil
	})
}

// RequestCancel flags a queued or processing job for cancellation. A queued
// job has no owner yet, so it moves to canceled right away; a processing job
// keeps its status until the worker reaches the next checkpoint.
func (s *Store) RequestCancel(id string) (CancelResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token := s.tokens[id]
	result := CancelAccepted
	_, err := s.modify(id, func(job *Job) error {
		if job.Status.Terminal() {
			result = CancelAlreadyTerminal
			return errNoChange
		}
		job.CancelRequested = true
		if job.Status == StatusQueued {
			job.Status = StatusCanceled
		}
		return nil
	})
	if err != nil && !errors.Is(err, errNoChange) {
		return "", err
	}
	if result == CancelAccepted && token != nil {
		token.Cancel()
	}
	return result, nil
}

var errNoChange = errors.New("no change")

// modify runs fn against the stored record inside one transaction. The
// caller holds s.mu.
func (s *Store) modify(id string, fn func(*Job) error) (Job, error) {
	txn := s.db.BeginTransaction()

	jobBytes, found := txn.GetForUpdate(jobKey(id))
	if !found {
		txn.Rollback()
		return Job{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}

	job := Job{}
	if err := json.Unmarshal(jobBytes, &job); err != nil {
		txn.Rollback()
		return Job{}, fmt.Errorf("decode job %s: %w", id, err)
	}
	current := job

	if err := fn(&job); err != nil {
		txn.Rollback()
		return current, err
	}

	now := s.now()
	job.UpdatedAt = now
	if job.Status != current.Status {
		if job.Status == StatusProcessing {
			job.StartedAt = &now
		}
		if job.Status.Terminal() {
			job.FinishedAt = &now
		}
	}

	updatedJobBytes, err := json.Marshal(job)
	if err != nil {
		txn.Rollback()
		return current, err
	}
	if err := txn.Put(jobKey(id), updatedJobBytes); err != nil {
		txn.Rollback()
		return current, err
	}
	if err := txn.Commit(); err != nil {
		return current, err
	}

	if job.Status.Terminal() {
		delete(s.tokens, id)
	}
	return job, nil
}
