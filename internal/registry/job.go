package registry

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SyncType selects how the transfer engine reconciles a job.
type SyncType string

const (
	SyncBisync SyncType = "bisync"
	SyncMirror SyncType = "sync"
	SyncCopy   SyncType = "copy"
)

// SyncMode controls whether other devices may attach to a job's cloud
// folder.
type SyncMode string

const (
	ModeExclusive SyncMode = "exclusive"
	ModeShared    SyncMode = "shared"
)

// SyncStatus is the last known outcome of a job.
type SyncStatus string

const (
	StatusPending  SyncStatus = "pending"
	StatusRunning  SyncStatus = "running"
	StatusSuccess  SyncStatus = "success"
	StatusFailed   SyncStatus = "failed"
	StatusConflict SyncStatus = "conflict"
	StatusMigrated SyncStatus = "migrated"
)

// SharedDevice is one device attached to a shared job.
type SharedDevice struct {
	DeviceID     string    `json:"device_id"`
	DeviceName   string    `json:"device_name"`
	LastSyncTime time.Time `json:"last_sync_time,omitempty"`
}

// Job binds a local folder to a cloud folder.
type Job struct {
	ID               string         `json:"job_id"`
	LocalPath        string         `json:"local_path"`
	RemotePath       string         `json:"remote_path"`
	SyncType         SyncType       `json:"sync_type"`
	OriginDeviceID   string         `json:"origin_device_id"`
	OriginDeviceName string         `json:"origin_device_name"`
	SyncMode         SyncMode       `json:"sync_mode"`
	SharedDevices    []SharedDevice `json:"shared_devices,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	LastSyncTime     time.Time      `json:"last_sync_time,omitempty"`
	LastSyncDeviceID string         `json:"last_sync_device_id,omitempty"`
	LastSyncStatus   SyncStatus     `json:"last_sync_status"`
}

// SharedWith reports whether deviceID is attached to this job.
func (j *Job) SharedWith(deviceID string) bool {
	for _, d := range j.SharedDevices {
		if d.DeviceID == deviceID {
			return true
		}
	}
	return false
}

// clone returns a deep copy so callers never alias registry state.
func (j *Job) clone() Job {
	c := *j
	if j.SharedDevices != nil {
		c.SharedDevices = append([]SharedDevice(nil), j.SharedDevices...)
	}
	return c
}

// newMigratedJob builds a job record for a legacy .conf import.
func newMigratedJob(local, remote string, syncType SyncType, deviceID, deviceName string) Job {
	return Job{
		ID:               uuid.NewString(),
		LocalPath:        normalizeLocal(local),
		RemotePath:       remote,
		SyncType:         syncType,
		OriginDeviceID:   deviceID,
		OriginDeviceName: deviceName,
		SyncMode:         ModeExclusive,
		CreatedAt:        time.Now().UTC(),
		LastSyncStatus:   StatusMigrated,
	}
}

// normalizeLocal canonicalizes a local path lexically. Symlinks are
// deliberately not resolved: the user synced the path they named.
func normalizeLocal(path string) string {
	return filepath.Clean(path)
}

// normalizeRemote strips the remote scheme prefix and trailing slashes
// so "proton:/Photos/", "drive:Photos" and "Photos" all compare equal.
func normalizeRemote(path string) string {
	if i := strings.IndexByte(path, ':'); i >= 0 {
		path = path[i+1:]
	}
	path = strings.TrimPrefix(path, "/")
	path = strings.TrimSuffix(path, "/")
	return path
}

// sameRemote compares remote paths case-insensitively after
// normalization.
func sameRemote(a, b string) bool {
	return strings.EqualFold(normalizeRemote(a), normalizeRemote(b))
}
