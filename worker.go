package radioedit

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"go.uber.org/zap"
)

// Processor runs the mastering pipeline for one job. It returns the name of
// the artifact it produced. When it observes the job's token it must return
// an error wrapping ErrCanceled.
type Processor interface {
	Process(ctx context.Context, job Job, token *CancelToken) (output string, err error)
	// Discard removes an artifact that must not outlive its job.
	Discard(output string) error
}

// WorkerState is where a worker is in its loop.
type WorkerState string

const (
	WorkerIdle       WorkerState = "idle"       // Blocked in Dequeue.
	WorkerDequeued   WorkerState = "dequeued"   // Holding an id, claiming the job.
	WorkerExecuting  WorkerState = "executing"  // Running the processor.
	WorkerFinalizing WorkerState = "finalizing" // Writing the outcome back.
	WorkerStopped    WorkerState = "stopped"
)

// Pool is a fixed set of workers draining a Queue.
type Pool struct {
	store     *Store
	queue     *Queue
	processor Processor
	logger    *zap.Logger
	size      int

	mu     sync.Mutex
	states []WorkerState

	wg sync.WaitGroup
}

// NewPool creates a pool of size workers. Nothing runs until Start.
func NewPool(store *Store, queue *Queue, processor Processor, size int, logger *zap.Logger) *Pool {
	if size <= 0 {
		size = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	states := make([]WorkerState, size)
	for i := range states {
		states[i] = WorkerStopped
	}
	return &Pool{
		store:     store,
		queue:     queue,
		processor: processor,
		logger:    logger,
		size:      size,
		states:    states,
	}
}

// Start launches the workers. They stop when ctx ends or the queue is
// closed and drained.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			p.run(ctx, id)
		}(i)
	}
}

// Wait blocks until every worker has stopped.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// States returns the current state of each worker.
func (p *Pool) States() []WorkerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]WorkerState(nil), p.states...)
}

func (p *Pool) setState(worker int, state WorkerState) {
	p.mu.Lock()
	p.states[worker] = state
	p.mu.Unlock()
}

func (p *Pool) run(ctx context.Context, worker int) {
	log := p.logger.With(zap.Int("worker", worker))
	log.Debug("worker starting")
	defer func() {
		p.setState(worker, WorkerStopped)
		log.Debug("worker stopped")
	}()

	for {
		p.setState(worker, WorkerIdle)
		// 1. Block until a job id is available.
		id, err := p.queue.Dequeue(ctx)
		if err != nil {
			if !errors.Is(err, ErrQueueClosed) && !errors.Is(err, context.Canceled) {
				log.Warn("dequeue failed", zap.Error(err))
			}
			return
		}
		p.setState(worker, WorkerDequeued)
		p.handle(ctx, log.With(zap.String("job_id", id)), worker, id)
	}
}

func (p *Pool) handle(ctx context.Context, log *zap.Logger, worker int, id string) {
	// 2. A job canceled while it waited is acknowledged and skipped.
	job, err := p.store.Get(id)
	if err != nil {
		log.Warn("dequeued unknown job", zap.Error(err))
		return
	}
	if job.Status == StatusCanceled {
		log.Info("skipping job canceled while queued")
		return
	}

	// 3. Claim the job. Losing the race to a cancel is not an error.
	job, err = p.store.Transition(id, []Status{StatusQueued}, StatusProcessing)
	if err != nil {
		log.Info("job not claimable, skipping", zap.String("status", string(job.Status)), zap.Error(err))
		return
	}
	token := p.store.Token(id)
	if token == nil {
		token = NewCancelToken()
	}

	log.Info("processing job", zap.String("file", job.Filename))
	p.setState(worker, WorkerExecuting)

	// 4. Run the pipeline and record the outcome.
	output, err := p.execute(ctx, job, token)

	p.setState(worker, WorkerFinalizing)
	p.finalize(log, job, output, err)
}

// execute converts a processor panic into an ordinary error so one bad job
// cannot take the worker down.
func (p *Pool) execute(ctx context.Context, job Job, token *CancelToken) (output string, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("processor panicked",
				zap.String("job_id", job.ID),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			err = fmt.Errorf("internal error: %v", r)
		}
	}()
	return p.processor.Process(ctx, job, token)
}

func (p *Pool) finalize(log *zap.Logger, job Job, output string, err error) {
	switch {
	case err == nil:
		if _, terr := p.store.Transition(job.ID, []Status{StatusProcessing}, StatusDone, WithOutput(output)); terr != nil {
			log.Error("could not record completion", zap.Error(terr))
			p.discard(log, output)
			return
		}
		log.Info("job done", zap.String("output", output))

	case errors.Is(err, ErrCanceled):
		p.discard(log, output)
		if _, terr := p.store.Transition(job.ID, []Status{StatusProcessing}, StatusCanceled); terr != nil {
			log.Error("could not record cancellation", zap.Error(terr))
			return
		}
		log.Info("job canceled")

	default:
		p.discard(log, output)
		if _, terr := p.store.Transition(job.ID, []Status{StatusProcessing}, StatusError, WithError(err.Error())); terr != nil {
			log.Error("could not record failure", zap.Error(terr))
			return
		}
		log.Warn("job failed", zap.Error(err))
	}
}

func (p *Pool) discard(log *zap.Logger, output string) {
	if output == "" {
		return
	}
	if err := p.processor.Discard(output); err != nil {
		log.Warn("could not remove output", zap.String("output", output), zap.Error(err))
	}
}
