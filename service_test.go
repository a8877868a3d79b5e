package radioedit

import (
	"context"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmit_Validation(t *testing.T) {
	svc := newTestService(t, 1, newFakeProcessor())

	cases := []struct {
		name     string
		filename string
		mutate   func(*Params)
		field    string
	}{
		{"empty filename", "", nil, "filename"},
		{"path traversal", "../secret.wav", nil, "filename"},
		{"nested path", "dir/show.wav", nil, "filename"},
		{"positive threshold", "show.wav", func(p *Params) { p.SilenceThresholdDBFS = 3 }, "silence_threshold_dbfs"},
		{"nan threshold", "show.wav", func(p *Params) { p.SilenceThresholdDBFS = math.NaN() }, "silence_threshold_dbfs"},
		{"positive target", "show.wav", func(p *Params) { p.TargetLUFS = 1 }, "target_lufs"},
		{"infinite target", "show.wav", func(p *Params) { p.TargetLUFS = math.Inf(-1) }, "target_lufs"},
		{"empty intro", "show.wav", func(p *Params) { p.Jingles.Intro = "" }, "jingles.intro"},
		{"empty outro", "show.wav", func(p *Params) { p.Jingles.Outro = " " }, "jingles.outro"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			params := DefaultParams()
			if tc.mutate != nil {
				tc.mutate(&params)
			}
			_, err := svc.Submit(tc.filename, params)
			require.Error(t, err)
			assert.True(t, IsValidation(err))
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.field, verr.Field)
		})
	}
	assert.Empty(t, svc.List(), "rejected submissions create no job")
}

func TestSubmit_AcceptsBoundaryLevels(t *testing.T) {
	svc := newTestService(t, 1, newFakeProcessor())

	params := Params{SilenceThresholdDBFS: 0, TargetLUFS: 0, Jingles: NamedJingles("station_id.wav", "")}
	id, err := svc.Submit("show.wav", params)
	require.NoError(t, err)

	job, err := svc.Job(id)
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, job.Status)
	assert.Equal(t, "station_id.wav", job.Params.Jingles.Outro)
}

func TestList_ProjectsJobs(t *testing.T) {
	svc := newTestService(t, 1, newFakeProcessor())

	a, err := svc.Submit("a.wav", DefaultParams())
	require.NoError(t, err)
	b, err := svc.Submit("b.wav", DefaultParams())
	require.NoError(t, err)

	views := svc.List()
	require.Len(t, views, 2)
	assert.Equal(t, JobView{ID: a, Filename: "a.wav", Status: StatusQueued}, views[0])
	assert.Equal(t, JobView{ID: b, Filename: "b.wav", Status: StatusQueued}, views[1])
}

func TestCancel_UnknownJob(t *testing.T) {
	svc := newTestService(t, 1, newFakeProcessor())

	_, err := svc.Cancel("missing-id-xyz")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestClose_CancelsLeftoverJobsAndRejectsSubmissions(t *testing.T) {
	svc, err := NewService(Options{Workers: 1, StateDir: t.TempDir(), OutputsDir: t.TempDir()}, newFakeProcessor())
	require.NoError(t, err)

	id, err := svc.Submit("never-started.wav", DefaultParams())
	require.NoError(t, err)
	token := svc.store.Token(id)
	require.NotNil(t, token)

	require.NoError(t, svc.Close())
	assert.True(t, token.Canceled())
	require.NoError(t, svc.Close(), "Close is idempotent")

	_, err = svc.Submit("late.wav", DefaultParams())
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestClose_DrainsQueuedWork(t *testing.T) {
	proc := newFakeProcessor()
	svc, err := NewService(Options{Workers: 2, StateDir: t.TempDir(), OutputsDir: t.TempDir()}, proc)
	require.NoError(t, err)
	svc.Start(context.Background())

	for i := 0; i < 4; i++ {
		_, err := svc.Submit("show.wav", DefaultParams())
		require.NoError(t, err)
	}
	require.NoError(t, svc.Close())
	assert.Len(t, proc.startedOrder(), 4)
}

func TestFetchOutput(t *testing.T) {
	proc := newFakeProcessor()
	svc := newTestService(t, 1, proc)
	svc.Start(context.Background())

	id, err := svc.Submit("show.wav", DefaultParams())
	require.NoError(t, err)
	job := waitForStatus(t, svc, id, StatusDone)
	require.NoError(t, os.WriteFile(filepath.Join(svc.outputsDir, job.OutputFilename), []byte("mastered"), 0o644))

	rc, err := svc.FetchOutput(job.OutputFilename)
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "mastered", string(body))

	// Names that do not belong to a done job are never served.
	require.NoError(t, os.WriteFile(filepath.Join(svc.outputsDir, "stray.mp3"), []byte("x"), 0o644))
	for _, name := range []string{"stray.mp3", "", "../" + job.OutputFilename, "missing.mp3"} {
		_, err := svc.FetchOutput(name)
		assert.ErrorIsf(t, err, ErrOutputNotFound, "name %q", name)
	}
}
