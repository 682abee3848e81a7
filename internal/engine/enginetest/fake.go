// Package enginetest provides an in-memory Engine for tests.
package enginetest

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"drivesync/internal/engine"
)

// Fake is an in-memory engine.Engine. Remote objects live in a map keyed
// by remote path; directories are implied by their children plus an
// explicit dirs set for empty ones.
type Fake struct {
	mu      sync.Mutex
	objects map[string][]byte
	modTime map[string]time.Time
	dirs    map[string]bool
	state   map[string]bool // bisync baselines keyed by local+remote

	// Calls records method invocations for assertions.
	Calls []string

	// Err, when set, is returned by every remote operation.
	Err error
}

// NewFake returns an empty fake engine.
func NewFake() *Fake {
	return &Fake{
		objects: make(map[string][]byte),
		modTime: make(map[string]time.Time),
		dirs:    make(map[string]bool),
		state:   make(map[string]bool),
	}
}

// PutObject seeds a remote object.
func (f *Fake) PutObject(remotePath string, data []byte, mod time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[remotePath] = data
	f.modTime[remotePath] = mod
}

// SetPriorState marks a path pair as having a bisync baseline.
func (f *Fake) SetPriorState(localPath, remotePath string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state[localPath+".."+remotePath] = true
}

func (f *Fake) record(format string, args ...any) {
	f.Calls = append(f.Calls, fmt.Sprintf(format, args...))
}

func (f *Fake) Remote() string { return "fake" }

func (f *Fake) Version(ctx context.Context) (string, error) {
	return "v0.0.0-fake", nil
}

func (f *Fake) List(ctx context.Context, remotePath string) ([]engine.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("List %s", remotePath)
	if f.Err != nil {
		return nil, f.Err
	}

	prefix := strings.TrimSuffix(remotePath, "/") + "/"
	seen := make(map[string]engine.Entry)
	for p, data := range f.objects {
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		rest := strings.TrimPrefix(p, prefix)
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			// Deeper object implies a child directory.
			name := rest[:i]
			seen[name] = engine.Entry{Path: name, Name: name, IsDir: true}
			continue
		}
		seen[rest] = engine.Entry{
			Path:    rest,
			Name:    rest,
			Size:    int64(len(data)),
			ModTime: f.modTime[p],
		}
	}
	for d := range f.dirs {
		if strings.HasPrefix(d, prefix) {
			rest := strings.TrimPrefix(d, prefix)
			if rest != "" && !strings.Contains(rest, "/") {
				seen[rest] = engine.Entry{Path: rest, Name: rest, IsDir: true}
			}
		}
	}

	if len(seen) == 0 && !f.dirs[path.Clean(strings.TrimSuffix(remotePath, "/"))] {
		return nil, fmt.Errorf("directory not found: %s", remotePath)
	}

	var entries []engine.Entry
	for _, e := range seen {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

func (f *Fake) CopyFile(ctx context.Context, remotePath, localPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("CopyFile %s -> %s", remotePath, localPath)
	if f.Err != nil {
		return f.Err
	}
	data, ok := f.objects[remotePath]
	if !ok {
		return engine.ErrObjectNotFound
	}
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(localPath, data, 0o644)
}

func (f *Fake) CopyBatch(ctx context.Context, remotePath, localDir string, names []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("CopyBatch %s -> %s (%d names)", remotePath, localDir, len(names))
	if f.Err != nil {
		return f.Err
	}

	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	prefix := strings.TrimSuffix(remotePath, "/") + "/"
	for p, data := range f.objects {
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		rest := strings.TrimPrefix(p, prefix)
		if len(names) > 0 && !want[rest] {
			continue
		}
		dst := filepath.Join(localDir, filepath.FromSlash(rest))
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(dst, data, 0o644); err != nil {
			return err
		}
	}
	return nil
}

func (f *Fake) CopyDirToLocal(ctx context.Context, remotePath, localDir string) error {
	f.record("CopyDirToLocal %s -> %s", remotePath, localDir)
	return f.CopyBatch(ctx, remotePath, localDir, nil)
}

// StartSync runs a no-op subprocess so callers get a real Process handle.
func (f *Fake) StartSync(ctx context.Context, req engine.SyncRequest) (*engine.Process, error) {
	f.mu.Lock()
	f.record("StartSync %s %s", req.Mode, req.LocalPath)
	if f.Err != nil {
		f.mu.Unlock()
		return nil, f.Err
	}
	f.state[req.LocalPath+".."+req.RemotePath] = true
	f.mu.Unlock()
	return engine.Run(exec.CommandContext(ctx, "true"))
}

func (f *Fake) HasPriorSyncState(localPath, remotePath string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state[localPath+".."+remotePath]
}

func (f *Fake) PruneSyncState(localPath, remotePath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("PruneSyncState %s", localPath)
	delete(f.state, localPath+".."+remotePath)
	return nil
}

func (f *Fake) ReadObject(ctx context.Context, remotePath string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ReadObject %s", remotePath)
	if f.Err != nil {
		return nil, f.Err
	}
	data, ok := f.objects[remotePath]
	if !ok {
		return nil, engine.ErrObjectNotFound
	}
	return append([]byte(nil), data...), nil
}

func (f *Fake) WriteObject(ctx context.Context, remotePath string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("WriteObject %s", remotePath)
	if f.Err != nil {
		return f.Err
	}
	f.objects[remotePath] = append([]byte(nil), data...)
	f.modTime[remotePath] = time.Now()
	return nil
}

func (f *Fake) DeleteObject(ctx context.Context, remotePath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("DeleteObject %s", remotePath)
	if f.Err != nil {
		return f.Err
	}
	delete(f.objects, remotePath)
	delete(f.modTime, remotePath)
	return nil
}

func (f *Fake) Mkdir(ctx context.Context, remotePath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("Mkdir %s", remotePath)
	if f.Err != nil {
		return f.Err
	}
	f.dirs[path.Clean(remotePath)] = true
	return nil
}

var _ engine.Engine = (*Fake)(nil)
