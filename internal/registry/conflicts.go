package registry

import (
	"context"
	"errors"
	"fmt"

	"drivesync/internal/cloudmeta"
)

// ConflictType classifies why a new job would collide with existing
// configuration.
type ConflictType int

const (
	// ConflictNone: the pair is free.
	ConflictNone ConflictType = iota
	// ConflictDuplicateJob: same local and same remote already exist.
	ConflictDuplicateJob
	// ConflictLocalClaimed: the local path already syncs to a
	// different remote.
	ConflictLocalClaimed
	// ConflictRemoteExclusive: the remote folder belongs to an
	// exclusive job from another device.
	ConflictRemoteExclusive
	// ConflictSharedNotAuthorized: the remote folder is shared but
	// this device is not on the list.
	ConflictSharedNotAuthorized
	// ConflictCloudFolderDifferentDevice: the cloud folder was created
	// by another device (or predates markers).
	ConflictCloudFolderDifferentDevice
	// ConflictCloudFolderSameDevice: the cloud folder was created by
	// this device.
	ConflictCloudFolderSameDevice
)

func (t ConflictType) String() string {
	switch t {
	case ConflictNone:
		return "none"
	case ConflictDuplicateJob:
		return "duplicate job"
	case ConflictLocalClaimed:
		return "local path already synced"
	case ConflictRemoteExclusive:
		return "remote folder owned exclusively by another device"
	case ConflictSharedNotAuthorized:
		return "remote folder shared without this device"
	case ConflictCloudFolderDifferentDevice:
		return "cloud folder created by another device"
	case ConflictCloudFolderSameDevice:
		return "cloud folder created by this device"
	default:
		return "unknown"
	}
}

// Conflict is the outcome of a conflict check.
type Conflict struct {
	Type    ConflictType
	Message string
	// Job is the existing job that triggered the conflict, if any.
	Job *Job
	// Meta is set for cloud folder conflicts when a marker was found.
	Meta *cloudmeta.FolderMeta
}

// candidate is the pair being validated against the registry.
type candidate struct {
	local    string
	remote   string
	deviceID string
}

// conflictRule inspects one existing job against the candidate. Rules
// run in order; the first match wins, which keeps the outcome
// deterministic for any given registry snapshot.
type conflictRule struct {
	typ   ConflictType
	match func(c candidate, job *Job) bool
	msg   func(job *Job) string
}

var conflictRules = []conflictRule{
	{
		typ: ConflictDuplicateJob,
		match: func(c candidate, job *Job) bool {
			return normalizeLocal(job.LocalPath) == c.local && sameRemote(job.RemotePath, c.remote)
		},
		msg: func(job *Job) string {
			return fmt.Sprintf("already syncing %s to %s (job %s)", job.LocalPath, job.RemotePath, job.ID)
		},
	},
	{
		typ: ConflictLocalClaimed,
		match: func(c candidate, job *Job) bool {
			return normalizeLocal(job.LocalPath) == c.local && !sameRemote(job.RemotePath, c.remote)
		},
		msg: func(job *Job) string {
			return fmt.Sprintf("%s already syncs to %s (job %s)", job.LocalPath, job.RemotePath, job.ID)
		},
	},
	{
		typ: ConflictRemoteExclusive,
		match: func(c candidate, job *Job) bool {
			return sameRemote(job.RemotePath, c.remote) &&
				job.OriginDeviceID != c.deviceID &&
				job.SyncMode == ModeExclusive
		},
		msg: func(job *Job) string {
			return fmt.Sprintf("%s is synced exclusively by %s", job.RemotePath, job.OriginDeviceName)
		},
	},
	{
		typ: ConflictSharedNotAuthorized,
		match: func(c candidate, job *Job) bool {
			return sameRemote(job.RemotePath, c.remote) &&
				job.OriginDeviceID != c.deviceID &&
				job.SyncMode == ModeShared &&
				!job.SharedWith(c.deviceID)
		},
		msg: func(job *Job) string {
			return fmt.Sprintf("%s is shared by %s but this device is not on its list",
				job.RemotePath, job.OriginDeviceName)
		},
	},
}

// CheckConflicts validates a (local, remote) pair against the current
// registry.
func (r *Registry) CheckConflicts(localPath, remotePath string) Conflict {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.checkConflictsLocked(normalizeLocal(localPath), remotePath)
}

func (r *Registry) checkConflictsLocked(localPath, remotePath string) Conflict {
	c := candidate{
		local:    localPath,
		remote:   remotePath,
		deviceID: r.identity.DeviceID(),
	}
	for _, rule := range conflictRules {
		for i := range r.jobs {
			if rule.match(c, &r.jobs[i]) {
				job := r.jobs[i].clone()
				return Conflict{
					Type:    rule.typ,
					Message: rule.msg(&job),
					Job:     &job,
				}
			}
		}
	}
	return Conflict{Type: ConflictNone, Message: "no conflict"}
}

// CheckCloudFolderConflicts extends CheckConflicts with a look at the
// cloud folder's ownership marker. A folder without a marker that
// nevertheless exists is treated as created by another device, since
// pre-marker clients left none.
func (r *Registry) CheckCloudFolderConflicts(ctx context.Context, localPath, remotePath string) Conflict {
	if c := r.CheckConflicts(localPath, remotePath); c.Type != ConflictNone {
		return c
	}

	meta, err := r.meta.Meta(ctx, remotePath)
	switch {
	case err == nil:
		if r.identity.IsSameDevice(meta.DeviceID) {
			return Conflict{
				Type:    ConflictCloudFolderSameDevice,
				Message: fmt.Sprintf("%s was created by this device, sync can resume", remotePath),
				Meta:    &meta,
			}
		}
		return Conflict{
			Type: ConflictCloudFolderDifferentDevice,
			Message: fmt.Sprintf("%s was created by %s; merge into it or create a separate folder",
				remotePath, meta.DeviceName),
			Meta: &meta,
		}
	case errors.Is(err, cloudmeta.ErrNoMarker):
		if r.meta.FolderExists(ctx, remotePath) {
			return Conflict{
				Type: ConflictCloudFolderDifferentDevice,
				Message: fmt.Sprintf("%s exists but carries no marker; treating it as another device's folder",
					remotePath),
			}
		}
		return Conflict{Type: ConflictNone, Message: "cloud folder is free"}
	default:
		r.logger.Printf("cannot read cloud marker for %s: %v", remotePath, err)
		return Conflict{Type: ConflictNone, Message: "cloud folder state unknown"}
	}
}
