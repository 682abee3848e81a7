// Package watcher reacts to local changes inside synced folders.
//
// Each registered job's local path is watched with fsnotify. Events are
// debounced per job so a burst of writes triggers one sync, not one per
// file.
package watcher

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"drivesync/internal/pathcheck"
)

// DefaultDebounce is used when no debounce interval is configured.
const DefaultDebounce = 2 * time.Second

// tick is how often the debounce loop checks for quiet jobs.
const tick = 250 * time.Millisecond

// Watcher monitors job folders and fires a callback once a folder has
// gone quiet for the debounce interval.
type Watcher struct {
	fw       *fsnotify.Watcher
	debounce time.Duration
	onChange func(jobID string)
	logger   *log.Logger

	mu      sync.Mutex
	dirs    map[string]string    // watched dir -> job ID
	jobs    map[string]string    // job ID -> watched dir
	pending map[string]time.Time // job ID -> last event time
	running bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a watcher. onChange is invoked from the watcher's own
// goroutine once per debounced change burst and must not block for long.
func New(debounce time.Duration, onChange func(jobID string), logger *log.Logger) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if onChange == nil {
		return nil, fmt.Errorf("watcher requires a change callback")
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[watcher] ", log.LstdFlags)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &Watcher{
		fw:       fw,
		debounce: debounce,
		onChange: onChange,
		logger:   logger,
		dirs:     make(map[string]string),
		jobs:     make(map[string]string),
		pending:  make(map[string]time.Time),
	}, nil
}

// AddJob starts watching a job's local folder. Adding the same job
// again replaces its previous watch.
func (w *Watcher) AddJob(jobID, localPath string) error {
	dir := filepath.Clean(localPath)

	w.mu.Lock()
	defer w.mu.Unlock()

	if prev, ok := w.jobs[jobID]; ok {
		if prev == dir {
			return nil
		}
		w.fw.Remove(prev)
		delete(w.dirs, prev)
	}

	if err := w.fw.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	w.dirs[dir] = jobID
	w.jobs[jobID] = dir
	w.logger.Printf("watching %s for job %s", dir, jobID)
	return nil
}

// RemoveJob stops watching a job's folder and drops any pending change.
func (w *Watcher) RemoveJob(jobID string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	dir, ok := w.jobs[jobID]
	if !ok {
		return
	}
	w.fw.Remove(dir)
	delete(w.jobs, jobID)
	delete(w.dirs, dir)
	delete(w.pending, jobID)
	w.logger.Printf("stopped watching %s for job %s", dir, jobID)
}

// Start launches the event and debounce loops. It is a no-op when the
// watcher is already running.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return
	}
	w.running = true

	loopCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.wg.Add(2)
	go w.eventLoop(loopCtx)
	go w.debounceLoop(loopCtx)
	w.logger.Printf("watcher started (debounce %s)", w.debounce)
}

// Stop shuts the watcher down and waits for its goroutines to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	cancel := w.cancel
	w.mu.Unlock()

	cancel()
	w.fw.Close()
	w.wg.Wait()
	w.logger.Printf("watcher stopped")
}

func (w *Watcher) eventLoop(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.logger.Printf("watch error: %v", err)
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) &&
		!ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return
	}
	if ignored(ev.Name) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	jobID, ok := w.dirs[filepath.Dir(ev.Name)]
	if !ok {
		return
	}
	w.pending[jobID] = time.Now()
}

func (w *Watcher) debounceLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, jobID := range w.takeQuiet() {
				w.onChange(jobID)
			}
		}
	}
}

// takeQuiet returns the jobs whose last event is older than the
// debounce interval and clears them from the pending set.
func (w *Watcher) takeQuiet() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	var quiet []string
	for jobID, last := range w.pending {
		if now.Sub(last) >= w.debounce {
			quiet = append(quiet, jobID)
			delete(w.pending, jobID)
		}
	}
	return quiet
}

// ignored reports whether a changed path should not trigger a sync.
// Hidden files cover the local marker and rclone's own work files.
func ignored(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return true
	}
	if base == pathcheck.LocalMarkerName {
		return true
	}
	// rclone writes partial downloads under a temporary suffix.
	return strings.HasSuffix(base, ".partial")
}
