// Package engine abstracts the transfer tool that moves data between the
// local disk and the cloud remote.
//
// The production implementation shells out to rclone. Consumers depend on
// the Engine interface so tests can substitute a fake and so the transfer
// tool can be swapped without touching sync logic.
package engine

import (
	"context"
	"errors"
	"time"
)

// Entry describes one object or directory on the remote.
type Entry struct {
	Path     string    `json:"Path"`
	Name     string    `json:"Name"`
	Size     int64     `json:"Size"`
	ModTime  time.Time `json:"ModTime"`
	IsDir    bool      `json:"IsDir"`
	MimeType string    `json:"MimeType,omitempty"`
}

// SyncMode selects the transfer direction for a job.
type SyncMode string

const (
	// ModeBisync keeps both sides converged.
	ModeBisync SyncMode = "bisync"
	// ModeSync mirrors local to remote, deleting remote extras.
	ModeSync SyncMode = "sync"
	// ModeCopy pushes local changes to the remote without deleting.
	ModeCopy SyncMode = "copy"
)

// SyncRequest describes one sync run.
type SyncRequest struct {
	LocalPath  string
	RemotePath string
	Mode       SyncMode
	// Resync forces a full baseline rebuild for bisync.
	Resync bool
}

// ErrObjectNotFound is returned by ReadObject when the remote object
// does not exist.
var ErrObjectNotFound = errors.New("remote object not found")

// Engine is the transfer layer used by the sync core.
type Engine interface {
	// Remote returns the configured remote name, e.g. "drive".
	Remote() string

	// Version reports the underlying tool version.
	Version(ctx context.Context) (string, error)

	// List enumerates the immediate children of a remote directory.
	List(ctx context.Context, remotePath string) ([]Entry, error)

	// CopyFile copies a single remote object to a local file path.
	CopyFile(ctx context.Context, remotePath, localPath string) error

	// CopyBatch copies the named objects from a remote directory into a
	// local directory in one invocation. An empty names list copies the
	// whole directory.
	CopyBatch(ctx context.Context, remotePath, localDir string, names []string) error

	// CopyDirToLocal downloads a full remote tree, used when joining a
	// folder shared by another device.
	CopyDirToLocal(ctx context.Context, remotePath, localDir string) error

	// StartSync launches a sync run and returns a handle to the
	// running process.
	StartSync(ctx context.Context, req SyncRequest) (*Process, error)

	// HasPriorSyncState reports whether a bisync baseline exists for
	// the pair. Without one the first run must seed instead of sync.
	HasPriorSyncState(localPath, remotePath string) bool

	// PruneSyncState removes any bisync baseline for the pair.
	PruneSyncState(localPath, remotePath string) error

	// ReadObject fetches a small remote object into memory.
	ReadObject(ctx context.Context, remotePath string) ([]byte, error)

	// WriteObject replaces a small remote object with data.
	WriteObject(ctx context.Context, remotePath string, data []byte) error

	// DeleteObject removes a remote object. Missing objects are not
	// an error.
	DeleteObject(ctx context.Context, remotePath string) error

	// Mkdir creates a remote directory, including parents.
	Mkdir(ctx context.Context, remotePath string) error
}
