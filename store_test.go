package radioedit

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenStore(t.TempDir(), nil)
	require.NoError(t, err, "failed to open job store")
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

func TestCreate_PersistsQueuedJob(t *testing.T) {
	store := openTestStore(t)

	job, err := store.Create("show.wav", DefaultParams())
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, StatusQueued, job.Status)
	assert.False(t, job.CreatedAt.IsZero())

	stored, err := store.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, stored.ID)
	assert.Equal(t, "show.wav", stored.Filename)
	assert.Equal(t, DefaultParams(), stored.Params)
	assert.Equal(t, StatusQueued, stored.Status)
	assert.Empty(t, stored.OutputFilename)
	assert.Empty(t, stored.ErrorMessage)
	assert.NotNil(t, store.Token(job.ID))
}

func TestGet_UnknownJob(t *testing.T) {
	store := openTestStore(t)

	_, err := store.Get("missing-id-xyz")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestSnapshot_KeepsCreationOrder(t *testing.T) {
	store := openTestStore(t)

	ids := make([]string, 0, 5)
	for i := 0; i < 5; i++ {
		job, err := store.Create("show.wav", DefaultParams())
		require.NoErrorf(t, err, "create %d failed", i)
		ids = append(ids, job.ID)
	}

	jobs := store.Snapshot()
	require.Len(t, jobs, 5)
	for i, j := range jobs {
		assert.Equalf(t, ids[i], j.ID, "order mismatch at %d", i)
		assert.Equal(t, uint64(i+1), j.Seq)
	}
}

func TestTransition_FollowsStateMachine(t *testing.T) {
	store := openTestStore(t)
	job, err := store.Create("show.wav", DefaultParams())
	require.NoError(t, err)

	got, err := store.Transition(job.ID, []Status{StatusQueued}, StatusProcessing)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, got.Status)
	assert.NotNil(t, got.StartedAt)

	// A second claim loses.
	_, err = store.Transition(job.ID, []Status{StatusQueued}, StatusProcessing)
	assert.ErrorIs(t, err, ErrTransitionRejected)

	got, err = store.Transition(job.ID, []Status{StatusProcessing}, StatusDone, WithOutput("show_edited_1234abcd.mp3"))
	require.NoError(t, err)
	assert.Equal(t, StatusDone, got.Status)
	assert.Equal(t, "show_edited_1234abcd.mp3", got.OutputFilename)
	assert.NotNil(t, got.FinishedAt)
	assert.Nil(t, store.Token(job.ID), "token is dropped once the job is terminal")

	// Terminal states are final.
	for _, to := range []Status{StatusQueued, StatusProcessing, StatusError, StatusCanceled} {
		_, err = store.Transition(job.ID, []Status{StatusDone}, to, WithError("x"))
		assert.ErrorIsf(t, err, ErrTransitionRejected, "done -> %s", to)
	}
	stored, err := store.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDone, stored.Status)
}

func TestTransition_RejectsSkippedEdges(t *testing.T) {
	store := openTestStore(t)
	job, err := store.Create("show.wav", DefaultParams())
	require.NoError(t, err)

	_, err = store.Transition(job.ID, []Status{StatusQueued}, StatusDone, WithOutput("out.mp3"))
	assert.ErrorIs(t, err, ErrTransitionRejected)

	_, err = store.Transition(job.ID, []Status{StatusQueued}, StatusError, WithError("boom"))
	assert.ErrorIs(t, err, ErrTransitionRejected)

	stored, err := store.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, stored.Status)
}

func TestTransition_OutputAndErrorPresence(t *testing.T) {
	store := openTestStore(t)

	a, err := store.Create("a.wav", DefaultParams())
	require.NoError(t, err)
	_, err = store.Transition(a.ID, []Status{StatusQueued}, StatusProcessing)
	require.NoError(t, err)

	_, err = store.Transition(a.ID, []Status{StatusProcessing}, StatusDone)
	assert.ErrorIs(t, err, ErrTransitionRejected, "done needs an output")
	_, err = store.Transition(a.ID, []Status{StatusProcessing}, StatusError)
	assert.ErrorIs(t, err, ErrTransitionRejected, "error needs a message")

	got, err := store.Transition(a.ID, []Status{StatusProcessing}, StatusError, WithError("decode failed"), WithOutput("stray.mp3"))
	require.NoError(t, err)
	assert.Equal(t, "decode failed", got.ErrorMessage)
	assert.Empty(t, got.OutputFilename)

	b, err := store.Create("b.wav", DefaultParams())
	require.NoError(t, err)
	got, err = store.Transition(b.ID, []Status{StatusQueued}, StatusCanceled, WithError("ignored"))
	require.NoError(t, err)
	assert.Empty(t, got.ErrorMessage)
	assert.Empty(t, got.OutputFilename)
}

func TestRequestCancel_QueuedJobIsCanceledImmediately(t *testing.T) {
	store := openTestStore(t)
	job, err := store.Create("show.wav", DefaultParams())
	require.NoError(t, err)
	token := store.Token(job.ID)
	require.NotNil(t, token)

	res, err := store.RequestCancel(job.ID)
	require.NoError(t, err)
	assert.Equal(t, CancelAccepted, res)
	assert.True(t, token.Canceled())

	stored, err := store.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCanceled, stored.Status)
	assert.True(t, stored.CancelRequested)

	// The worker's claim now fails.
	_, err = store.Transition(job.ID, []Status{StatusQueued}, StatusProcessing)
	assert.ErrorIs(t, err, ErrTransitionRejected)
}

func TestRequestCancel_ProcessingJobKeepsStatus(t *testing.T) {
	store := openTestStore(t)
	job, err := store.Create("show.wav", DefaultParams())
	require.NoError(t, err)
	_, err = store.Transition(job.ID, []Status{StatusQueued}, StatusProcessing)
	require.NoError(t, err)
	token := store.Token(job.ID)

	res, err := store.RequestCancel(job.ID)
	require.NoError(t, err)
	assert.Equal(t, CancelAccepted, res)
	assert.True(t, token.Canceled())

	stored, err := store.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, stored.Status, "the worker decides at its next checkpoint")
	assert.True(t, stored.CancelRequested)

	// Repeating the request is harmless.
	res, err = store.RequestCancel(job.ID)
	require.NoError(t, err)
	assert.Equal(t, CancelAccepted, res)
}

func TestRequestCancel_TerminalJobIsNoop(t *testing.T) {
	store := openTestStore(t)
	job, err := store.Create("show.wav", DefaultParams())
	require.NoError(t, err)
	_, err = store.Transition(job.ID, []Status{StatusQueued}, StatusProcessing)
	require.NoError(t, err)
	_, err = store.Transition(job.ID, []Status{StatusProcessing}, StatusError, WithError("boom"))
	require.NoError(t, err)

	res, err := store.RequestCancel(job.ID)
	require.NoError(t, err)
	assert.Equal(t, CancelAlreadyTerminal, res)

	stored, err := store.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusError, stored.Status)
	assert.Equal(t, "boom", stored.ErrorMessage)
	assert.False(t, stored.CancelRequested)
}

func TestRequestCancel_UnknownJob(t *testing.T) {
	store := openTestStore(t)

	_, err := store.RequestCancel("missing-id-xyz")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

// Claims, cancels and completions racing on the same jobs must leave every
// job in a state reachable by the state machine, with exactly one winner per
// claim.
func TestStore_ConcurrentClaimAndCancel(t *testing.T) {
	store := openTestStore(t)

	const jobs = 20
	ids := make([]string, jobs)
	for i := range ids {
		job, err := store.Create("show.wav", DefaultParams())
		require.NoError(t, err)
		ids[i] = job.ID
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		claims = make(map[string]int)
	)
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, id := range ids {
				if _, err := store.Transition(id, []Status{StatusQueued}, StatusProcessing); err == nil {
					mu.Lock()
					claims[id]++
					mu.Unlock()
					_, _ = store.Transition(id, []Status{StatusProcessing}, StatusDone, WithOutput(id+".mp3"))
				} else if !errors.Is(err, ErrTransitionRejected) {
					t.Errorf("unexpected error: %v", err)
				}
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := len(ids) - 1; i >= 0; i-- {
			_, err := store.RequestCancel(ids[i])
			assert.NoError(t, err)
		}
	}()
	wg.Wait()

	for _, j := range store.Snapshot() {
		assert.LessOrEqualf(t, claims[j.ID], 1, "job %s claimed twice", j.ID)
		switch j.Status {
		case StatusDone:
			assert.Equal(t, 1, claims[j.ID])
			assert.Equal(t, j.ID+".mp3", j.OutputFilename)
		case StatusCanceled:
			assert.Equal(t, 0, claims[j.ID], "a claimed job finishes done in this test")
		default:
			t.Errorf("job %s ended %s", j.ID, j.Status)
		}
	}
}

func TestCanTransition(t *testing.T) {
	allowed := map[[2]Status]bool{
		{StatusQueued, StatusProcessing}:   true,
		{StatusQueued, StatusCanceled}:     true,
		{StatusProcessing, StatusDone}:     true,
		{StatusProcessing, StatusError}:    true,
		{StatusProcessing, StatusCanceled}: true,
	}
	all := []Status{StatusQueued, StatusProcessing, StatusDone, StatusError, StatusCanceled}
	for _, from := range all {
		for _, to := range all {
			assert.Equalf(t, allowed[[2]Status{from, to}], CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}
