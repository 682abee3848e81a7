// Package registry is the authoritative store of sync jobs on this
// device. It persists to sync_jobs.json, mirrors each job into a legacy
// .conf file for external schedulers, detects conflicts between jobs,
// and publishes the job list to the cloud for other devices.
package registry

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"drivesync/internal/cloudmeta"
	"drivesync/internal/device"
	"drivesync/internal/engine"
	"drivesync/internal/pathcheck"
)

// storeVersion is the sync_jobs.json schema version.
const storeVersion = 2

// storeFile is the registry file name under the config dir.
const storeFile = "sync_jobs.json"

// storeFormat is the on-disk layout, compatible with the legacy client.
type storeFormat struct {
	Version  int    `json:"version"`
	DeviceID string `json:"device_id"`
	Jobs     []Job  `json:"jobs"`
}

// Registry owns the job list. All access goes through one mutex; reads
// hand out copies.
type Registry struct {
	dir      string
	identity *device.Identity
	eng      engine.Engine
	meta     *cloudmeta.Store
	logger   *log.Logger

	exportDebounce time.Duration

	mu   sync.Mutex
	jobs []Job

	exportMu    sync.Mutex
	exportTimer *time.Timer
	closed      bool
}

// Options configures a Registry.
type Options struct {
	// Dir is the config directory holding sync_jobs.json and the
	// legacy .conf mirrors.
	Dir string
	// ExportDebounce batches cloud config uploads after changes.
	ExportDebounce time.Duration
}

// New returns an unloaded registry. Call Load before use.
func New(opts Options, identity *device.Identity, eng engine.Engine, meta *cloudmeta.Store, logger *log.Logger) *Registry {
	if logger == nil {
		logger = log.New(os.Stderr, "[registry] ", log.LstdFlags)
	}
	if opts.ExportDebounce == 0 {
		opts.ExportDebounce = 30 * time.Second
	}
	return &Registry{
		dir:            opts.Dir,
		identity:       identity,
		eng:            eng,
		meta:           meta,
		logger:         logger,
		exportDebounce: opts.ExportDebounce,
	}
}

// Load reads sync_jobs.json (a missing file yields an empty registry),
// then removes stale entries, migrates orphaned legacy .conf files, and
// garbage-collects jobs whose local folder is confirmed gone.
func (r *Registry) Load() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := os.ReadFile(r.storePath())
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("reading job store: %w", err)
		}
		r.jobs = nil
	} else {
		var store storeFormat
		if err := json.Unmarshal(data, &store); err != nil {
			return fmt.Errorf("parsing job store: %w", err)
		}
		r.jobs = store.Jobs
	}

	r.cleanupStaleLocked()
	r.migrateOrphansLocked()
	r.gcMissingLocalLocked()

	if err := r.saveLocked(); err != nil {
		r.logger.Printf("cannot persist after load: %v", err)
	}
	r.logger.Printf("loaded %d sync jobs", len(r.jobs))
	return nil
}

// Jobs returns a snapshot of all jobs.
func (r *Registry) Jobs() []Job {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Job, 0, len(r.jobs))
	for i := range r.jobs {
		out = append(out, r.jobs[i].clone())
	}
	return out
}

// JobByID returns a copy of the job with the given ID.
func (r *Registry) JobByID(id string) (Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.jobs {
		if r.jobs[i].ID == id {
			return r.jobs[i].clone(), true
		}
	}
	return Job{}, false
}

// JobByLocalPath returns a copy of the job bound to the local path.
func (r *Registry) JobByLocalPath(path string) (Job, bool) {
	path = normalizeLocal(path)

	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.jobs {
		if normalizeLocal(r.jobs[i].LocalPath) == path {
			return r.jobs[i].clone(), true
		}
	}
	return Job{}, false
}

// NestedPathConflict returns the existing job whose local folder
// contains, or is contained by, the candidate path.
func (r *Registry) NestedPathConflict(path string) (Job, bool) {
	path = normalizeLocal(path)

	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.jobs {
		existing := normalizeLocal(r.jobs[i].LocalPath)
		if existing == path || isSubpath(existing, path) || isSubpath(path, existing) {
			return r.jobs[i].clone(), true
		}
	}
	return Job{}, false
}

// CreateJob registers a new job after conflict checks. The legacy .conf
// mirror is written and a cloud config export is scheduled.
func (r *Registry) CreateJob(localPath, remotePath string, syncType SyncType) (Job, error) {
	localPath = normalizeLocal(localPath)

	r.mu.Lock()
	defer r.mu.Unlock()

	if c := r.checkConflictsLocked(localPath, remotePath); c.Type != ConflictNone {
		return Job{}, fmt.Errorf("cannot create job for %s: %s", localPath, c.Message)
	}

	job := Job{
		ID:               uuid.NewString(),
		LocalPath:        localPath,
		RemotePath:       remotePath,
		SyncType:         syncType,
		OriginDeviceID:   r.identity.DeviceID(),
		OriginDeviceName: r.identity.DeviceName(),
		SyncMode:         ModeExclusive,
		CreatedAt:        time.Now().UTC(),
		LastSyncStatus:   StatusPending,
	}
	r.jobs = append(r.jobs, job)

	if err := r.writeConfMirror(job); err != nil {
		r.logger.Printf("cannot write .conf mirror for %s: %v", job.ID, err)
	}
	if err := r.saveLocked(); err != nil {
		r.logger.Printf("cannot persist new job: %v", err)
	}
	r.scheduleExport()
	return job.clone(), nil
}

// UpdateJob replaces the stored job with the same ID and rewrites its
// .conf mirror.
func (r *Registry) UpdateJob(job Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.jobs {
		if r.jobs[i].ID == job.ID {
			r.jobs[i] = job.clone()
			if err := r.writeConfMirror(r.jobs[i]); err != nil {
				r.logger.Printf("cannot rewrite .conf mirror for %s: %v", job.ID, err)
			}
			if err := r.saveLocked(); err != nil {
				r.logger.Printf("cannot persist job update: %v", err)
			}
			r.scheduleExport()
			return nil
		}
	}
	return fmt.Errorf("job %s not found", job.ID)
}

// DeleteJob removes a job, its .conf mirror, and its engine sync state.
func (r *Registry) DeleteJob(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.jobs {
		if r.jobs[i].ID != id {
			continue
		}
		job := r.jobs[i]
		r.jobs = append(r.jobs[:i], r.jobs[i+1:]...)

		if err := os.Remove(r.confPath(job)); err != nil && !os.IsNotExist(err) {
			r.logger.Printf("cannot remove .conf mirror for %s: %v", id, err)
		}
		if err := r.eng.PruneSyncState(job.LocalPath, job.RemotePath); err != nil {
			r.logger.Printf("cannot prune sync state for %s: %v", id, err)
		}
		if err := r.saveLocked(); err != nil {
			r.logger.Printf("cannot persist job removal: %v", err)
		}
		r.scheduleExport()
		return nil
	}
	return fmt.Errorf("job %s not found", id)
}

// RecordSyncStart marks a job as running on this device.
func (r *Registry) RecordSyncStart(id string) error {
	return r.setStatus(id, StatusRunning, false)
}

// RecordSyncComplete records the outcome of a finished run and stamps
// the sync time.
func (r *Registry) RecordSyncComplete(id string, runErr error) error {
	status := StatusSuccess
	if runErr != nil {
		status = StatusFailed
	}
	return r.setStatus(id, status, true)
}

func (r *Registry) setStatus(id string, status SyncStatus, stampTime bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.jobs {
		if r.jobs[i].ID != id {
			continue
		}
		r.jobs[i].LastSyncStatus = status
		r.jobs[i].LastSyncDeviceID = r.identity.DeviceID()
		if stampTime {
			r.jobs[i].LastSyncTime = time.Now().UTC()
		}
		if err := r.saveLocked(); err != nil {
			r.logger.Printf("cannot persist status change: %v", err)
		}
		r.scheduleExport()
		return nil
	}
	return fmt.Errorf("job %s not found", id)
}

// EnableSharedSync opens a job owned by this device to other devices.
func (r *Registry) EnableSharedSync(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.jobs {
		if r.jobs[i].ID != id {
			continue
		}
		if !r.identity.IsSameDevice(r.jobs[i].OriginDeviceID) {
			return fmt.Errorf("job %s is owned by device %s", id, r.jobs[i].OriginDeviceID)
		}
		r.jobs[i].SyncMode = ModeShared
		if !r.jobs[i].SharedWith(r.identity.DeviceID()) {
			r.jobs[i].SharedDevices = append(r.jobs[i].SharedDevices, SharedDevice{
				DeviceID:   r.identity.DeviceID(),
				DeviceName: r.identity.DeviceName(),
			})
		}
		if err := r.saveLocked(); err != nil {
			r.logger.Printf("cannot persist share change: %v", err)
		}
		r.scheduleExport()
		return nil
	}
	return fmt.Errorf("job %s not found", id)
}

// JoinSharedSync attaches this device to a job published by another
// device, binding it to localPath. The remote job must be shared.
func (r *Registry) JoinSharedSync(remote Job, localPath string) (Job, error) {
	if remote.SyncMode != ModeShared {
		return Job{}, fmt.Errorf("job %s on %s is not shared", remote.ID, remote.OriginDeviceName)
	}
	localPath = normalizeLocal(localPath)

	r.mu.Lock()
	defer r.mu.Unlock()

	if c := r.checkConflictsLocked(localPath, remote.RemotePath); c.Type != ConflictNone {
		return Job{}, fmt.Errorf("cannot join shared job: %s", c.Message)
	}

	job := remote.clone()
	job.LocalPath = localPath
	job.LastSyncStatus = StatusPending
	job.LastSyncTime = time.Time{}
	job.LastSyncDeviceID = ""
	if !job.SharedWith(r.identity.DeviceID()) {
		job.SharedDevices = append(job.SharedDevices, SharedDevice{
			DeviceID:   r.identity.DeviceID(),
			DeviceName: r.identity.DeviceName(),
		})
	}
	r.jobs = append(r.jobs, job)

	if err := r.writeConfMirror(job); err != nil {
		r.logger.Printf("cannot write .conf mirror for %s: %v", job.ID, err)
	}
	if err := r.saveLocked(); err != nil {
		r.logger.Printf("cannot persist joined job: %v", err)
	}
	r.scheduleExport()
	return job.clone(), nil
}

// LeaveSharedSync detaches this device from a shared job. Jobs owned by
// other devices are removed locally; jobs owned here stay but drop the
// shared flag when nobody else is attached.
func (r *Registry) LeaveSharedSync(id string) error {
	r.mu.Lock()

	for i := range r.jobs {
		if r.jobs[i].ID != id {
			continue
		}
		self := r.identity.DeviceID()
		devices := r.jobs[i].SharedDevices[:0]
		for _, d := range r.jobs[i].SharedDevices {
			if d.DeviceID != self {
				devices = append(devices, d)
			}
		}
		r.jobs[i].SharedDevices = devices

		if !r.identity.IsSameDevice(r.jobs[i].OriginDeviceID) {
			r.mu.Unlock()
			return r.DeleteJob(id)
		}
		if len(devices) == 0 {
			r.jobs[i].SyncMode = ModeExclusive
		}
		if err := r.saveLocked(); err != nil {
			r.logger.Printf("cannot persist share change: %v", err)
		}
		r.scheduleExport()
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()
	return fmt.Errorf("job %s not found", id)
}

// Close flushes any pending cloud export timer.
func (r *Registry) Close() {
	r.exportMu.Lock()
	defer r.exportMu.Unlock()
	r.closed = true
	if r.exportTimer != nil {
		r.exportTimer.Stop()
		r.exportTimer = nil
	}
}

func (r *Registry) storePath() string {
	return filepath.Join(r.dir, storeFile)
}

// saveLocked persists the registry; r.mu must be held. Failures leave
// in-memory state authoritative.
func (r *Registry) saveLocked() error {
	store := storeFormat{
		Version:  storeVersion,
		DeviceID: r.identity.DeviceID(),
		Jobs:     r.jobs,
	}
	data, err := json.MarshalIndent(store, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding job store: %w", err)
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	tmp := r.storePath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing job store: %w", err)
	}
	if err := os.Rename(tmp, r.storePath()); err != nil {
		return fmt.Errorf("committing job store: %w", err)
	}
	return nil
}

// gcMissingLocalLocked removes jobs whose local folder is confirmed
// absent. I/O errors keep the job: configuration is never deleted on a
// maybe. Migrated jobs are exempt until their first sync.
func (r *Registry) gcMissingLocalLocked() {
	kept := r.jobs[:0]
	for _, job := range r.jobs {
		if job.LastSyncStatus != StatusMigrated && pathcheck.DefinitelyMissing(job.LocalPath) {
			r.logger.Printf("local folder %s is gone, dropping job %s", job.LocalPath, job.ID)
			continue
		}
		kept = append(kept, job)
	}
	r.jobs = kept
}

func isSubpath(parent, child string) bool {
	return strings.HasPrefix(child, parent+string(filepath.Separator))
}
