package watcher

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestWatcher(t *testing.T, debounce time.Duration) (*Watcher, chan string) {
	t.Helper()

	fired := make(chan string, 16)
	w, err := New(debounce, func(jobID string) { fired <- jobID }, log.New(io.Discard, "", 0))
	require.NoError(t, err)
	t.Cleanup(w.Stop)
	return w, fired
}

func waitForJob(t *testing.T, fired chan string, want string) {
	t.Helper()

	select {
	case got := <-fired:
		require.Equal(t, want, got)
	case <-time.After(5 * time.Second):
		t.Fatalf("no change callback for job %s", want)
	}
}

func TestChangeFiresCallbackOnce(t *testing.T) {
	dir := t.TempDir()
	w, fired := newTestWatcher(t, 100*time.Millisecond)
	require.NoError(t, w.AddJob("job-1", dir))
	w.Start(t.Context())

	// A burst of writes should collapse into a single callback.
	for i := 0; i < 5; i++ {
		name := filepath.Join(dir, "doc.txt")
		require.NoError(t, os.WriteFile(name, []byte("v"), 0o644))
	}

	waitForJob(t, fired, "job-1")

	select {
	case got := <-fired:
		t.Fatalf("unexpected second callback for job %s", got)
	case <-time.After(500 * time.Millisecond):
	}
}

func TestHiddenFilesIgnored(t *testing.T) {
	dir := t.TempDir()
	w, fired := newTestWatcher(t, 50*time.Millisecond)
	require.NoError(t, w.AddJob("job-1", dir))
	w.Start(t.Context())

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".drive-sync-local.json"), []byte("{}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "movie.mkv.partial"), []byte("x"), 0o644))

	select {
	case got := <-fired:
		t.Fatalf("unexpected callback for job %s", got)
	case <-time.After(500 * time.Millisecond):
	}
}

func TestRemoveJobStopsCallbacks(t *testing.T) {
	dir := t.TempDir()
	w, fired := newTestWatcher(t, 50*time.Millisecond)
	require.NoError(t, w.AddJob("job-1", dir))
	w.Start(t.Context())

	w.RemoveJob("job-1")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "doc.txt"), []byte("v"), 0o644))

	select {
	case got := <-fired:
		t.Fatalf("unexpected callback for job %s", got)
	case <-time.After(500 * time.Millisecond):
	}
}

func TestMultipleJobsRouteToOwnCallbacks(t *testing.T) {
	dirA := t.TempDir()
	dirB := t.TempDir()
	w, fired := newTestWatcher(t, 50*time.Millisecond)
	require.NoError(t, w.AddJob("job-a", dirA))
	require.NoError(t, w.AddJob("job-b", dirB))
	w.Start(t.Context())

	require.NoError(t, os.WriteFile(filepath.Join(dirB, "doc.txt"), []byte("v"), 0o644))

	waitForJob(t, fired, "job-b")
}

func TestAddJobMissingDir(t *testing.T) {
	w, _ := newTestWatcher(t, 50*time.Millisecond)
	err := w.AddJob("job-1", filepath.Join(t.TempDir(), "does-not-exist"))
	require.Error(t, err)
}

func TestStopIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	w, _ := newTestWatcher(t, 50*time.Millisecond)
	require.NoError(t, w.AddJob("job-1", dir))
	w.Start(t.Context())

	done := make(chan struct{})
	go func() {
		w.Stop()
		w.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Stop did not return")
	}
}

func TestRequiresCallback(t *testing.T) {
	_, err := New(time.Second, nil, nil)
	require.Error(t, err)
}
