package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aerialplan/internal/pipeline"
)

const orbitRequest = `{"preset":"phantom4pro","pattern":{"type":"orbit","params":{"radius":30,"altitude":60,"segments":16}}}`

type recordingSubmitter struct {
	mu    sync.Mutex
	jobs  []pipeline.Job
	fails int
}

func (r *recordingSubmitter) Submit(job pipeline.Job) (pipeline.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fails > 0 {
		r.fails--
		return job, pipeline.ErrQueueFull
	}
	job.ID = "job-" + job.Request.Name
	r.jobs = append(r.jobs, job)
	return job, nil
}

func (r *recordingSubmitter) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.jobs))
	for i, j := range r.jobs {
		out[i] = j.Request.Name
	}
	return out
}

func startWatcher(t *testing.T, dir string, sub *recordingSubmitter) {
	t.Helper()
	w, err := New(dir, sub, nil)
	require.NoError(t, err)
	w.SetDebounce(20 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
}

func TestWatcherSubmitsExistingAndChangedRequests(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tower.plan.json"), []byte(orbitRequest), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore"), 0644))

	sub := &recordingSubmitter{}
	startWatcher(t, dir, sub)

	require.Eventually(t, func() bool { return len(sub.names()) == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"tower"}, sub.names())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "roof.plan.json"), []byte(orbitRequest), 0644))
	require.Eventually(t, func() bool { return len(sub.names()) >= 2 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, "roof", sub.names()[1])

	sub.mu.Lock()
	assert.Equal(t, "watch", sub.jobs[1].Source)
	sub.mu.Unlock()
}

func TestWatcherSkipsMalformedRequests(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.plan.json"), []byte("{"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "good.plan.json"), []byte(orbitRequest), 0644))

	sub := &recordingSubmitter{}
	startWatcher(t, dir, sub)

	require.Eventually(t, func() bool { return len(sub.names()) == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"good"}, sub.names())
}

func TestWatcherRetriesWhenQueueFull(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tower.plan.json"), []byte(orbitRequest), 0644))

	sub := &recordingSubmitter{fails: 2}
	startWatcher(t, dir, sub)

	require.Eventually(t, func() bool { return len(sub.names()) == 1 }, 5*time.Second, 10*time.Millisecond)
}

func TestReadRequest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "site-a.plan.json")
	require.NoError(t, os.WriteFile(path, []byte(orbitRequest), 0644))

	req, err := ReadRequest(path)
	require.NoError(t, err)
	assert.Equal(t, "site-a", req.Name)
	require.NotNil(t, req.Pattern.Params)
	assert.Equal(t, "orbit", string(req.Pattern.Params.Kind()))

	_, err = ReadRequest(filepath.Join(dir, "missing.plan.json"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestNewRejectsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(path, nil, 0644))
	_, err := New(path, &recordingSubmitter{}, nil)
	assert.Error(t, err)
}
