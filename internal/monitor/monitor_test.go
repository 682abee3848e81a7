package monitor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"drivesync/internal/device"
	"drivesync/internal/engine"
	"drivesync/internal/engine/enginetest"
	"drivesync/internal/events"
	"drivesync/internal/registry"
)

type recordedEntry struct {
	jobID string
	path  string
}

type fakeRecorder struct {
	entries []recordedEntry
}

func (r *fakeRecorder) RecordEntry(jobID, remotePath string, e engine.Entry) error {
	r.entries = append(r.entries, recordedEntry{jobID: jobID, path: e.Path})
	return nil
}

type harness struct {
	mon      *Monitor
	reg      *registry.Registry
	fake     *enginetest.Fake
	queue    *events.Queue
	recorder *fakeRecorder
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()

	dir := t.TempDir()
	identity, err := device.New(dir, nil)
	if err != nil {
		t.Fatalf("device.New: %v", err)
	}
	fake := enginetest.NewFake()
	reg := registry.New(registry.Options{Dir: dir, ExportDebounce: time.Hour}, identity, fake, nil, nil)
	if err := reg.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	t.Cleanup(reg.Close)

	queue := events.NewQueue(256)
	t.Cleanup(queue.Close)
	recorder := &fakeRecorder{}

	return &harness{
		mon:      New(reg, fake, queue, recorder, opts, nil),
		reg:      reg,
		fake:     fake,
		queue:    queue,
		recorder: recorder,
	}
}

func (h *harness) addJob(t *testing.T, remote string) registry.Job {
	t.Helper()
	job, err := h.reg.CreateJob(t.TempDir(), remote, registry.SyncBisync)
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	return job
}

func drainKinds(q *events.Queue) map[events.Kind]int {
	kinds := make(map[events.Kind]int)
	for {
		select {
		case ev := <-q.C():
			kinds[ev.Kind]++
		default:
			return kinds
		}
	}
}

func TestScanDownloadsMissingFiles(t *testing.T) {
	h := newHarness(t, Options{})
	job := h.addJob(t, "Photos")

	h.fake.PutObject("Photos/a.jpg", []byte("aaa"), time.Now())
	h.fake.PutObject("Photos/b.jpg", []byte("bbbb"), time.Now())

	h.mon.scan(context.Background())

	for _, name := range []string{"a.jpg", "b.jpg"} {
		data, err := os.ReadFile(filepath.Join(job.LocalPath, name))
		if err != nil {
			t.Errorf("%s not downloaded: %v", name, err)
			continue
		}
		if len(data) == 0 {
			t.Errorf("%s is empty", name)
		}
	}

	kinds := drainKinds(h.queue)
	if kinds[events.KindDownloadStarted] != 2 || kinds[events.KindDownloadFinished] != 2 {
		t.Errorf("per-file events wrong: %v", kinds)
	}
	if kinds[events.KindRefreshRequested] == 0 {
		t.Error("no refresh after downloads drained")
	}
	if len(h.recorder.entries) != 2 {
		t.Errorf("indexed %d entries, want 2", len(h.recorder.entries))
	}
}

func TestScanSkipsUpToDateFiles(t *testing.T) {
	h := newHarness(t, Options{})
	job := h.addJob(t, "Docs")

	content := []byte("same size")
	h.fake.PutObject("Docs/kept.txt", content, time.Now())
	if err := os.WriteFile(filepath.Join(job.LocalPath, "kept.txt"), content, 0o644); err != nil {
		t.Fatal(err)
	}

	h.mon.scan(context.Background())

	kinds := drainKinds(h.queue)
	if kinds[events.KindDownloadStarted] != 0 {
		t.Errorf("up-to-date file downloaded: %v", kinds)
	}
}

func TestScanSizeMismatchRedownloads(t *testing.T) {
	h := newHarness(t, Options{})
	job := h.addJob(t, "Docs")

	h.fake.PutObject("Docs/grown.txt", []byte("new longer content"), time.Now())
	if err := os.WriteFile(filepath.Join(job.LocalPath, "grown.txt"), []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	h.mon.scan(context.Background())

	data, err := os.ReadFile(filepath.Join(job.LocalPath, "grown.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "new longer content" {
		t.Errorf("stale file not refreshed, got %q", data)
	}
}

func TestScanBatchesAboveThreshold(t *testing.T) {
	h := newHarness(t, Options{BatchThreshold: 5})
	job := h.addJob(t, "Bulk")

	for _, n := range []string{"a", "b", "c", "d", "e", "f"} {
		h.fake.PutObject("Bulk/"+n+".bin", []byte(strings.Repeat(n, 3)), time.Now())
	}

	h.mon.scan(context.Background())

	var batches, singles int
	for _, call := range h.fake.Calls {
		if strings.HasPrefix(call, "CopyBatch") {
			batches++
		}
		if strings.HasPrefix(call, "CopyFile") {
			singles++
		}
	}
	if batches != 1 {
		t.Errorf("got %d batch calls, want 1", batches)
	}
	if singles != 0 {
		t.Errorf("got %d per-file calls, want 0 above threshold", singles)
	}

	kinds := drainKinds(h.queue)
	if kinds[events.KindBatchComplete] != 1 || kinds[events.KindRefreshRequested] == 0 {
		t.Errorf("batch events wrong: %v", kinds)
	}
	if _, err := os.Stat(filepath.Join(job.LocalPath, "f.bin")); err != nil {
		t.Errorf("batched file missing: %v", err)
	}
	if len(h.recorder.entries) != 6 {
		t.Errorf("indexed %d entries, want 6", len(h.recorder.entries))
	}
}

func TestExactlyThresholdStaysPerFile(t *testing.T) {
	h := newHarness(t, Options{BatchThreshold: 5})
	h.addJob(t, "Edge")

	for _, n := range []string{"a", "b", "c", "d", "e"} {
		h.fake.PutObject("Edge/"+n+".bin", []byte(n), time.Now())
	}

	h.mon.scan(context.Background())

	for _, call := range h.fake.Calls {
		if strings.HasPrefix(call, "CopyBatch") {
			t.Fatalf("five pending files must stay per-file, got %s", call)
		}
	}
}

func TestScanSkipsHiddenAndDirs(t *testing.T) {
	h := newHarness(t, Options{})
	job := h.addJob(t, "Mixed")

	h.fake.PutObject("Mixed/.drive-sync-meta.json", []byte("{}"), time.Now())
	h.fake.PutObject("Mixed/sub/deep.txt", []byte("deep"), time.Now())
	h.fake.PutObject("Mixed/top.txt", []byte("top"), time.Now())

	h.mon.scan(context.Background())

	if _, err := os.Stat(filepath.Join(job.LocalPath, ".drive-sync-meta.json")); err == nil {
		t.Error("marker object downloaded")
	}
	if _, err := os.Stat(filepath.Join(job.LocalPath, "top.txt")); err != nil {
		t.Errorf("top-level file missing: %v", err)
	}
}

func TestDedupeActiveDownloads(t *testing.T) {
	h := newHarness(t, Options{})

	if !h.mon.claim("Photos/a.jpg") {
		t.Fatal("first claim refused")
	}
	if h.mon.claim("Photos/a.jpg") {
		t.Error("second claim for same path accepted")
	}
	if got := h.mon.ActiveDownloads(); len(got) != 1 {
		t.Errorf("active = %v, want one entry", got)
	}

	h.mon.releaseClaim("Photos/a.jpg", "job-1")
	if !h.mon.claim("Photos/a.jpg") {
		t.Error("claim after release refused")
	}
}

func TestMinJobIntervalFloor(t *testing.T) {
	h := newHarness(t, Options{MinJobInterval: time.Hour})
	h.addJob(t, "Slow")

	h.fake.PutObject("Slow/x.txt", []byte("x"), time.Now())

	h.mon.scan(context.Background())
	listings := len(h.fake.Calls)

	// Second scan inside the floor must not list again.
	h.mon.scan(context.Background())
	var lists int
	for _, call := range h.fake.Calls {
		if strings.HasPrefix(call, "List") {
			lists++
		}
	}
	if len(h.fake.Calls) > listings && lists > 1 {
		t.Errorf("job rescanned inside min interval: %v", h.fake.Calls)
	}
}

func TestListingFailureSkipsCycle(t *testing.T) {
	h := newHarness(t, Options{})
	h.addJob(t, "Flaky")
	h.fake.Err = context.DeadlineExceeded

	h.mon.scan(context.Background())

	kinds := drainKinds(h.queue)
	if len(kinds) != 0 {
		t.Errorf("failed listing still produced events: %v", kinds)
	}
}

func TestStartStop(t *testing.T) {
	h := newHarness(t, Options{ScanInterval: time.Second})
	h.addJob(t, "Live")
	h.fake.PutObject("Live/hello.txt", []byte("hi"), time.Now())

	h.mon.Start(context.Background())

	deadline := time.Now().Add(5 * time.Second)
	for {
		if kinds := drainKinds(h.queue); kinds[events.KindDownloadFinished] > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("initial scan never downloaded")
		}
		time.Sleep(10 * time.Millisecond)
	}

	start := time.Now()
	h.mon.Stop()
	if elapsed := time.Since(start); elapsed > stopGrace+time.Second {
		t.Errorf("Stop took %s, want bounded by grace period", elapsed)
	}
}

func TestStopWithoutStart(t *testing.T) {
	h := newHarness(t, Options{})
	h.mon.Stop()
}
