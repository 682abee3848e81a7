package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/subosito/gotenv"
)

// The legacy client kept one KEY="VALUE" .conf file per job next to its
// own store, named after the job id, and external scheduler scripts
// still read them. The registry mirrors every job into that format and,
// on load, adopts orphaned .conf files left behind by the old client.

// confPath returns the legacy mirror path for a job. Mirrors are keyed
// by job id: local folder basenames are not unique across jobs.
func (r *Registry) confPath(job Job) string {
	return filepath.Join(r.dir, job.ID+".conf")
}

// writeConfMirror writes the legacy mirror for a job.
func (r *Registry) writeConfMirror(job Job) error {
	content := fmt.Sprintf("REMOTE_PATH=%q\nLOCAL_PATH=%q\nSYNC_TYPE=%q\n",
		r.eng.Remote()+":/"+normalizeRemote(job.RemotePath),
		job.LocalPath,
		string(job.SyncType))
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	if err := os.WriteFile(r.confPath(job), []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing conf mirror: %w", err)
	}
	return nil
}

// cleanupStaleLocked drops jobs whose .conf mirror was removed from
// under us. Only a definite ENOENT counts; an unreadable directory must
// not wipe configuration. Pruned jobs also lose their engine sync state.
func (r *Registry) cleanupStaleLocked() {
	kept := r.jobs[:0]
	for _, job := range r.jobs {
		_, err := os.Stat(r.confPath(job))
		if err != nil && os.IsNotExist(err) {
			r.logger.Printf("conf mirror for job %s is gone, dropping it", job.ID)
			if perr := r.eng.PruneSyncState(job.LocalPath, job.RemotePath); perr != nil {
				r.logger.Printf("cannot prune sync state for %s: %v", job.ID, perr)
			}
			continue
		}
		kept = append(kept, job)
	}
	r.jobs = kept
}

// migrateOrphansLocked imports .conf files that no current job owns.
// Jobs arrive with status migrated; a local folder that cannot be
// reached right now is still imported, the user may have it on a mount
// that comes back.
func (r *Registry) migrateOrphansLocked() {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if !os.IsNotExist(err) {
			r.logger.Printf("cannot scan for orphan conf files: %v", err)
		}
		return
	}

	owned := make(map[string]bool, len(r.jobs))
	for _, job := range r.jobs {
		owned[r.confPath(job)] = true
	}

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".conf") {
			continue
		}
		path := filepath.Join(r.dir, e.Name())
		if owned[path] {
			continue
		}
		job, err := r.parseConfFile(path)
		if err != nil {
			r.logger.Printf("skipping orphan %s: %v", e.Name(), err)
			continue
		}
		// The file name carries the legacy job id. Adopting it keeps
		// the id stable across restarts and makes the orphan file the
		// job's own mirror, so stale cleanup leaves it alone.
		job.ID = strings.TrimSuffix(e.Name(), ".conf")
		if c := r.checkConflictsLocked(normalizeLocal(job.LocalPath), job.RemotePath); c.Type != ConflictNone {
			r.logger.Printf("skipping orphan %s: %s", e.Name(), c.Message)
			continue
		}
		r.logger.Printf("migrated legacy job %s (%s)", job.ID, job.LocalPath)
		r.jobs = append(r.jobs, job)
	}
}

// parseConfFile reads one legacy KEY="VALUE" file into a Job.
func (r *Registry) parseConfFile(path string) (Job, error) {
	f, err := os.Open(path)
	if err != nil {
		return Job{}, fmt.Errorf("opening conf file: %w", err)
	}
	defer f.Close()

	vars, err := gotenv.StrictParse(f)
	if err != nil {
		return Job{}, fmt.Errorf("parsing conf file: %w", err)
	}

	remote := vars["REMOTE_PATH"]
	local := vars["LOCAL_PATH"]
	if remote == "" || local == "" {
		return Job{}, fmt.Errorf("conf file missing REMOTE_PATH or LOCAL_PATH")
	}
	syncType := SyncType(vars["SYNC_TYPE"])
	switch syncType {
	case SyncBisync, SyncMirror, SyncCopy:
	case "":
		syncType = SyncBisync
	default:
		return Job{}, fmt.Errorf("conf file has unknown SYNC_TYPE %q", syncType)
	}

	return newMigratedJob(local, normalizeRemote(remote), syncType,
		r.identity.DeviceID(), r.identity.DeviceName()), nil
}
