package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"
)

const (
	listTimeout = 20 * time.Second
	copyTimeout = 300 * time.Second
)

var _ Engine = (*Rclone)(nil)

// Rclone drives transfers by shelling out to the rclone binary.
type Rclone struct {
	binary    string
	remote    string
	portBase  int
	portCount int
	stateDir  string
	logger    *log.Logger

	portCtr atomic.Uint64
}

// Options configures an Rclone engine. Zero values fall back to
// sensible defaults.
type Options struct {
	Binary    string
	Remote    string
	PortBase  int
	PortCount int
	// StateDir overrides the bisync state directory, normally
	// ~/.cache/rclone/bisync.
	StateDir string
}

// NewRclone returns an engine using the given options. If logger is nil,
// a default logger is used.
func NewRclone(opts Options, logger *log.Logger) *Rclone {
	if logger == nil {
		logger = log.New(os.Stderr, "[engine] ", log.LstdFlags)
	}
	if opts.Binary == "" {
		opts.Binary = "rclone"
	}
	if opts.Remote == "" {
		opts.Remote = "drive"
	}
	if opts.PortBase == 0 {
		opts.PortBase = 5572
	}
	if opts.PortCount == 0 {
		opts.PortCount = 29
	}
	if opts.StateDir == "" {
		if cache, err := os.UserCacheDir(); err == nil {
			opts.StateDir = filepath.Join(cache, "rclone", "bisync")
		}
	}
	return &Rclone{
		binary:    opts.Binary,
		remote:    opts.Remote,
		portBase:  opts.PortBase,
		portCount: opts.PortCount,
		stateDir:  opts.StateDir,
		logger:    logger,
	}
}

// Remote returns the configured remote name.
func (r *Rclone) Remote() string {
	return r.remote
}

// Version returns the rclone version string.
func (r *Rclone) Version(ctx context.Context) (string, error) {
	out, err := r.run(ctx, "version")
	if err != nil {
		return "", fmt.Errorf("getting rclone version: %w", err)
	}
	// First line looks like "rclone v1.68.2".
	line, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	return strings.TrimPrefix(line, "rclone "), nil
}

// List enumerates the immediate children of a remote directory.
func (r *Rclone) List(ctx context.Context, remotePath string) ([]Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, listTimeout)
	defer cancel()

	out, err := r.run(ctx, "lsjson", "--recursive", "--max-depth", "1", r.qualify(remotePath))
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", remotePath, err)
	}

	var entries []Entry
	if err := json.Unmarshal(out, &entries); err != nil {
		return nil, fmt.Errorf("parsing listing for %s: %w", remotePath, err)
	}
	return entries, nil
}

// CopyFile copies a single remote object to a local file path.
func (r *Rclone) CopyFile(ctx context.Context, remotePath, localPath string) error {
	ctx, cancel := context.WithTimeout(ctx, copyTimeout)
	defer cancel()

	if _, err := r.run(ctx, "copyto", r.qualify(remotePath), localPath); err != nil {
		return fmt.Errorf("copying %s to %s: %w", remotePath, localPath, err)
	}
	return nil
}

// CopyBatch copies the named objects from a remote directory into a
// local directory in one invocation.
func (r *Rclone) CopyBatch(ctx context.Context, remotePath, localDir string, names []string) error {
	ctx, cancel := context.WithTimeout(ctx, copyTimeout)
	defer cancel()

	args := []string{"copy", r.qualify(remotePath), localDir}
	for _, name := range names {
		args = append(args, "--include", escapeFilter(name))
	}
	if _, err := r.run(ctx, args...); err != nil {
		return fmt.Errorf("batch copying %s to %s: %w", remotePath, localDir, err)
	}
	return nil
}

// CopyDirToLocal downloads a full remote tree into localDir.
func (r *Rclone) CopyDirToLocal(ctx context.Context, remotePath, localDir string) error {
	if _, err := r.run(ctx, "copy", r.qualify(remotePath), localDir, "--create-empty-src-dirs"); err != nil {
		return fmt.Errorf("downloading %s to %s: %w", remotePath, localDir, err)
	}
	return nil
}

// StartSync launches a sync run for req and returns the process handle.
// A bisync job with no prior baseline runs as a plain copy: bisync
// without state would treat one side as deleted.
func (r *Rclone) StartSync(ctx context.Context, req SyncRequest) (*Process, error) {
	var args []string
	switch req.Mode {
	case ModeBisync:
		switch {
		case req.Resync:
			args = []string{"bisync", req.LocalPath, r.qualify(req.RemotePath), "--resync"}
		case !r.HasPriorSyncState(req.LocalPath, req.RemotePath):
			r.logger.Printf("no prior state for %s, seeding with copy", req.LocalPath)
			args = []string{"copy", req.LocalPath, r.qualify(req.RemotePath), "--create-empty-src-dirs"}
		default:
			args = []string{"bisync", req.LocalPath, r.qualify(req.RemotePath)}
		}
	case ModeSync:
		args = []string{"sync", req.LocalPath, r.qualify(req.RemotePath)}
	case ModeCopy:
		args = []string{"copy", req.LocalPath, r.qualify(req.RemotePath)}
	default:
		return nil, fmt.Errorf("unknown sync mode %q", req.Mode)
	}
	args = append(args, "--rc", "--rc-addr", fmt.Sprintf("localhost:%d", r.nextPort()))

	cmd := exec.CommandContext(ctx, r.binary, args...)
	proc, err := Run(cmd)
	if err != nil {
		return nil, fmt.Errorf("starting %s %s: %w", req.Mode, req.LocalPath, err)
	}
	r.logger.Printf("started %s for %s (pid %d)", req.Mode, req.LocalPath, proc.PID())
	return proc, nil
}

// HasPriorSyncState reports whether a bisync baseline exists for the
// path pair.
func (r *Rclone) HasPriorSyncState(localPath, remotePath string) bool {
	if r.stateDir == "" {
		return false
	}
	_, err := os.Stat(r.stateFileBase(localPath, remotePath) + ".path1.lst")
	return err == nil
}

// PruneSyncState removes all bisync state files for the path pair so
// the next run starts from a clean baseline.
func (r *Rclone) PruneSyncState(localPath, remotePath string) error {
	if r.stateDir == "" {
		return nil
	}
	matches, err := filepath.Glob(r.stateFileBase(localPath, remotePath) + "*")
	if err != nil {
		return fmt.Errorf("globbing sync state: %w", err)
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing sync state %s: %w", m, err)
		}
	}
	return nil
}

// ReadObject fetches a small remote object into memory.
func (r *Rclone) ReadObject(ctx context.Context, remotePath string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, listTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.binary, "cat", r.qualify(remotePath))
	out, err := cmd.Output()
	if err != nil {
		if ee, ok := err.(*exec.ExitError); ok && strings.Contains(string(ee.Stderr), "not found") {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("reading %s: %w", remotePath, err)
	}
	return out, nil
}

// WriteObject replaces a remote object with data. The object is deleted
// first: the provider rejects in-place overwrite.
func (r *Rclone) WriteObject(ctx context.Context, remotePath string, data []byte) error {
	tmp, err := os.CreateTemp("", "drivesync-obj-*")
	if err != nil {
		return fmt.Errorf("staging object: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("staging object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("staging object: %w", err)
	}

	if err := r.DeleteObject(ctx, remotePath); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, copyTimeout)
	defer cancel()
	if _, err := r.run(ctx, "copyto", tmp.Name(), r.qualify(remotePath)); err != nil {
		return fmt.Errorf("writing %s: %w", remotePath, err)
	}
	return nil
}

// DeleteObject removes a remote object. A missing object is not an error.
func (r *Rclone) DeleteObject(ctx context.Context, remotePath string) error {
	ctx, cancel := context.WithTimeout(ctx, listTimeout)
	defer cancel()

	if out, err := r.run(ctx, "deletefile", r.qualify(remotePath)); err != nil {
		if strings.Contains(string(out), "not found") ||
			strings.Contains(string(out), "doesn't exist") {
			return nil
		}
		return fmt.Errorf("deleting %s: %w", remotePath, err)
	}
	return nil
}

// Mkdir creates a remote directory, including parents.
func (r *Rclone) Mkdir(ctx context.Context, remotePath string) error {
	ctx, cancel := context.WithTimeout(ctx, listTimeout)
	defer cancel()

	if _, err := r.run(ctx, "mkdir", r.qualify(remotePath)); err != nil {
		return fmt.Errorf("creating remote dir %s: %w", remotePath, err)
	}
	return nil
}

// run executes rclone with args and returns its combined output.
func (r *Rclone) run(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, r.binary, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return out, fmt.Errorf("rclone %s failed: %w\n%s",
			strings.Join(args, " "), err, string(out))
	}
	return out, nil
}

// escapeFilter backslash-quotes rclone filter metacharacters so a file
// name is matched literally rather than as a glob.
func escapeFilter(name string) string {
	var b strings.Builder
	for _, c := range name {
		switch c {
		case '*', '?', '[', ']', '{', '}', '\\':
			b.WriteRune('\\')
		}
		b.WriteRune(c)
	}
	return b.String()
}

// qualify prefixes a bare path with the remote name. Paths that already
// name a remote pass through unchanged.
func (r *Rclone) qualify(remotePath string) string {
	if strings.Contains(remotePath, ":") {
		return remotePath
	}
	return r.remote + ":" + remotePath
}

// nextPort hands out control ports round-robin so overlapping runs do
// not fight over the rc listener.
func (r *Rclone) nextPort() int {
	n := r.portCtr.Add(1) - 1
	return r.portBase + int(n%uint64(r.portCount))
}

// stateFileBase mirrors rclone's bisync session naming: both paths with
// separators flattened to underscores, joined by "..".
func (r *Rclone) stateFileBase(localPath, remotePath string) string {
	clean := func(p string) string {
		p = strings.TrimSuffix(p, "/")
		p = strings.ReplaceAll(p, "/", "_")
		p = strings.ReplaceAll(p, ":", "_")
		return p
	}
	return filepath.Join(r.stateDir, clean(localPath)+".."+clean(r.qualify(remotePath)))
}
