package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"drivesync/internal/cloudmeta"
)

// exportTimeout bounds one cloud config upload.
const exportTimeout = 60 * time.Second

// scheduleExport arms the debounced cloud export. Bursts of registry
// changes collapse into one upload.
func (r *Registry) scheduleExport() {
	r.exportMu.Lock()
	defer r.exportMu.Unlock()
	if r.closed || r.meta == nil {
		return
	}
	if r.exportTimer != nil {
		r.exportTimer.Reset(r.exportDebounce)
		return
	}
	r.exportTimer = time.AfterFunc(r.exportDebounce, func() {
		ctx, cancel := context.WithTimeout(context.Background(), exportTimeout)
		defer cancel()
		if err := r.ExportConfigToCloud(ctx); err != nil {
			r.logger.Printf("cloud config export failed: %v", err)
		}
		r.exportMu.Lock()
		r.exportTimer = nil
		r.exportMu.Unlock()
	})
}

// ExportConfigToCloud publishes this device's job list immediately.
func (r *Registry) ExportConfigToCloud(ctx context.Context) error {
	if r.meta == nil {
		return nil
	}
	jobs, err := json.Marshal(r.Jobs())
	if err != nil {
		return fmt.Errorf("encoding jobs for export: %w", err)
	}
	return r.meta.PublishConfig(ctx, cloudmeta.DeviceConfig{
		DeviceID:    r.identity.DeviceID(),
		DeviceName:  r.identity.DeviceName(),
		LastUpdated: time.Now().UTC(),
		Jobs:        jobs,
	})
}

// CloudDeviceConfigs returns every device's published job list,
// including this device's.
func (r *Registry) CloudDeviceConfigs(ctx context.Context) ([]cloudmeta.DeviceConfig, error) {
	if r.meta == nil {
		return nil, fmt.Errorf("no cloud metadata store configured")
	}
	return r.meta.DeviceConfigs(ctx)
}

// SharedJobs returns every job other devices have published for shared
// sync, decoded from their configs. A device is not pre-listed on jobs
// it has yet to join; JoinSharedSync attaches it.
func (r *Registry) SharedJobs(ctx context.Context) ([]Job, error) {
	configs, err := r.CloudDeviceConfigs(ctx)
	if err != nil {
		return nil, err
	}

	var shared []Job
	for _, cfg := range configs {
		if cfg.DeviceID == r.identity.DeviceID() {
			continue
		}
		var jobs []Job
		if err := json.Unmarshal(cfg.Jobs, &jobs); err != nil {
			r.logger.Printf("cannot decode jobs from device %s: %v", cfg.DeviceID, err)
			continue
		}
		for _, job := range jobs {
			if job.SyncMode == ModeShared {
				shared = append(shared, job)
			}
		}
	}
	return shared, nil
}

// ImportConfigFromCloud adopts jobs other devices published for shared
// sync. Each adopted job is bound to a folder named after its remote
// under syncRoot. Already-known remotes are skipped. Returns the new
// jobs.
func (r *Registry) ImportConfigFromCloud(ctx context.Context, syncRoot string) ([]Job, error) {
	shared, err := r.SharedJobs(ctx)
	if err != nil {
		return nil, err
	}

	var imported []Job
	for _, remote := range shared {
		local := filepath.Join(syncRoot, filepath.Base(normalizeRemote(remote.RemotePath)))
		job, err := r.JoinSharedSync(remote, local)
		if err != nil {
			r.logger.Printf("skipping shared job %s: %v", remote.ID, err)
			continue
		}
		imported = append(imported, job)
	}
	return imported, nil
}
