// Package monitor polls the cloud for files that have not reached this
// device yet and downloads them. Small deltas come down file by file so
// the frontend can show per-file progress; large deltas come down as a
// single batched copy.
package monitor

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"drivesync/internal/engine"
	"drivesync/internal/events"
	"drivesync/internal/registry"
)

// stopGrace bounds how long Stop waits for the loop before abandoning
// it.
const stopGrace = 3 * time.Second

// Options tunes the polling loop.
type Options struct {
	// ScanInterval is the pause between full scans.
	ScanInterval time.Duration
	// MinJobInterval is the floor between two scans of the same job.
	MinJobInterval time.Duration
	// BatchThreshold is the largest pending count still downloaded
	// file by file; anything bigger goes through one batch copy.
	BatchThreshold int
}

// Monitor watches registered jobs for remote-side changes.
type Monitor struct {
	reg      *registry.Registry
	eng      engine.Engine
	queue    *events.Queue
	recorder Recorder
	logger   *log.Logger
	opts     Options

	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	active   map[string]bool      // in-flight downloads keyed by cloud path
	lastScan map[string]time.Time // per job
}

// Recorder receives successfully downloaded entries for indexing.
type Recorder interface {
	RecordEntry(jobID, remotePath string, e engine.Entry) error
}

// New builds a monitor. queue and recorder may be nil; a nil logger
// gets a default.
func New(reg *registry.Registry, eng engine.Engine, queue *events.Queue, recorder Recorder, opts Options, logger *log.Logger) *Monitor {
	if logger == nil {
		logger = log.New(os.Stderr, "[monitor] ", log.LstdFlags)
	}
	if opts.ScanInterval <= 0 {
		opts.ScanInterval = 60 * time.Second
	}
	if opts.MinJobInterval <= 0 {
		opts.MinJobInterval = 30 * time.Second
	}
	if opts.BatchThreshold <= 0 {
		opts.BatchThreshold = 5
	}
	return &Monitor{
		reg:      reg,
		eng:      eng,
		queue:    queue,
		recorder: recorder,
		logger:   logger,
		opts:     opts,
		active:   make(map[string]bool),
		lastScan: make(map[string]time.Time),
	}
}

// Start launches the polling loop. It scans once immediately, then
// every ScanInterval.
func (m *Monitor) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})

	go func() {
		defer close(m.done)
		m.logger.Printf("cloud monitor started, scanning every %s", m.opts.ScanInterval)
		m.scan(ctx)
		for m.sleep(ctx) {
			m.scan(ctx)
		}
		m.logger.Printf("cloud monitor stopped")
	}()
}

// Stop cancels the loop and waits briefly. A loop stuck in a transfer
// is abandoned; its context is already cancelled, so the subprocess
// dies on its own.
func (m *Monitor) Stop() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	select {
	case <-m.done:
	case <-time.After(stopGrace):
		m.logger.Printf("monitor loop still busy after %s, abandoning it", stopGrace)
	}
}

// sleep pauses for ScanInterval in one-second slices so cancellation is
// honored within about a second. Returns false when ctx ended.
func (m *Monitor) sleep(ctx context.Context) bool {
	remaining := m.opts.ScanInterval
	for remaining > 0 {
		slice := time.Second
		if remaining < slice {
			slice = remaining
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(slice):
		}
		remaining -= slice
	}
	return ctx.Err() == nil
}

// scan runs one cycle over all jobs. A panic in a cycle is logged and
// the loop carries on with the next interval.
func (m *Monitor) scan(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Printf("scan cycle panicked: %v", r)
		}
	}()

	for _, job := range m.reg.Jobs() {
		if ctx.Err() != nil {
			return
		}
		if !m.dueForScan(job.ID) {
			continue
		}
		m.scanJob(ctx, job)
	}
}

func (m *Monitor) dueForScan(jobID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if time.Since(m.lastScan[jobID]) < m.opts.MinJobInterval {
		return false
	}
	m.lastScan[jobID] = time.Now()
	return true
}

// scanJob lists one job's cloud folder and downloads what is missing
// locally. Listing failures skip the cycle; the next interval retries.
func (m *Monitor) scanJob(ctx context.Context, job registry.Job) {
	entries, err := m.eng.List(ctx, job.RemotePath)
	if err != nil {
		m.logger.Printf("listing %s failed, retrying next cycle: %v", job.RemotePath, err)
		return
	}

	pending := m.pendingEntries(job, entries)
	if len(pending) == 0 {
		return
	}
	m.logger.Printf("job %s has %d pending files", job.ID, len(pending))

	if len(pending) > m.opts.BatchThreshold {
		m.downloadBatch(ctx, job, pending)
		return
	}
	m.downloadFiles(ctx, job, pending)
}

// pendingEntries returns remote files absent locally or differing in
// size. Size is the change proxy; the engine does not give us reliable
// local mtimes after a copy.
func (m *Monitor) pendingEntries(job registry.Job, entries []engine.Entry) []engine.Entry {
	var pending []engine.Entry
	for _, e := range entries {
		if e.IsDir || strings.HasPrefix(e.Name, ".") {
			continue
		}
		local := filepath.Join(job.LocalPath, filepath.FromSlash(e.Path))
		fi, err := os.Stat(local)
		if err == nil && fi.Size() == e.Size {
			continue
		}
		pending = append(pending, e)
	}
	return pending
}

// downloadFiles fetches pending entries one goroutine per file, with a
// dedupe set keyed by cloud path so overlapping cycles never fetch the
// same object twice.
func (m *Monitor) downloadFiles(ctx context.Context, job registry.Job, pending []engine.Entry) {
	var wg sync.WaitGroup
	for _, e := range pending {
		cloudPath := job.RemotePath + "/" + e.Path
		if !m.claim(cloudPath) {
			continue
		}

		m.publish(events.Event{Kind: events.KindDownloadStarted, JobID: job.ID, Path: e.Path})
		wg.Add(1)
		go func(e engine.Entry, cloudPath string) {
			defer wg.Done()
			defer m.releaseClaim(cloudPath, job.ID)

			local := filepath.Join(job.LocalPath, filepath.FromSlash(e.Path))
			if err := m.eng.CopyFile(ctx, cloudPath, local); err != nil {
				m.logger.Printf("downloading %s failed: %v", cloudPath, err)
				m.publish(events.Event{Kind: events.KindDownloadFinished, JobID: job.ID, Path: e.Path, Err: err.Error()})
				return
			}
			m.record(job, e)
			m.publish(events.Event{Kind: events.KindDownloadFinished, JobID: job.ID, Path: e.Path})
		}(e, cloudPath)
	}
	wg.Wait()
}

// downloadBatch fetches all pending entries in one engine call.
func (m *Monitor) downloadBatch(ctx context.Context, job registry.Job, pending []engine.Entry) {
	names := make([]string, 0, len(pending))
	for _, e := range pending {
		names = append(names, e.Path)
	}

	if err := m.eng.CopyBatch(ctx, job.RemotePath, job.LocalPath, names); err != nil {
		m.logger.Printf("batch download for job %s failed: %v", job.ID, err)
		return
	}
	for _, e := range pending {
		m.record(job, e)
	}
	m.publish(events.Event{Kind: events.KindBatchComplete, JobID: job.ID,
		Message: fmt.Sprintf("downloaded %d files", len(pending))})
	m.publish(events.Event{Kind: events.KindRefreshRequested, JobID: job.ID})
}

// claim reserves a cloud path for download. Returns false when another
// download already owns it.
func (m *Monitor) claim(cloudPath string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active[cloudPath] {
		return false
	}
	m.active[cloudPath] = true
	return true
}

// releaseClaim frees a cloud path. When the last download finishes, the
// frontend is told to refresh.
func (m *Monitor) releaseClaim(cloudPath, jobID string) {
	m.mu.Lock()
	delete(m.active, cloudPath)
	empty := len(m.active) == 0
	m.mu.Unlock()

	if empty {
		m.publish(events.Event{Kind: events.KindRefreshRequested, JobID: jobID})
	}
}

// ActiveDownloads returns the cloud paths currently being fetched.
func (m *Monitor) ActiveDownloads() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.active))
	for p := range m.active {
		out = append(out, p)
	}
	return out
}

func (m *Monitor) record(job registry.Job, e engine.Entry) {
	if m.recorder == nil {
		return
	}
	if err := m.recorder.RecordEntry(job.ID, job.RemotePath, e); err != nil {
		m.logger.Printf("cannot index %s: %v", e.Path, err)
	}
}

func (m *Monitor) publish(ev events.Event) {
	if m.queue != nil {
		m.queue.Publish(ev)
	}
}
