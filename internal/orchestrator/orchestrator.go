// Package orchestrator starts, supervises, and cancels sync runs. It
// ties the registry, the transfer engine, and the event queue together
// and guarantees at most one running process per job.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"

	"drivesync/internal/cloudmeta"
	"drivesync/internal/device"
	"drivesync/internal/engine"
	"drivesync/internal/events"
	"drivesync/internal/pathcheck"
	"drivesync/internal/registry"
)

// Orchestrator supervises sync subprocesses.
type Orchestrator struct {
	reg      *registry.Registry
	eng      engine.Engine
	meta     *cloudmeta.Store
	identity *device.Identity
	queue    *events.Queue
	logger   *log.Logger

	mu       sync.Mutex
	inflight map[string]*engine.Process

	wg sync.WaitGroup
}

// RunningJob describes one in-flight sync.
type RunningJob struct {
	JobID string
	PID   int
}

// New wires an orchestrator. queue may be nil when no frontend listens;
// a nil logger gets a default.
func New(reg *registry.Registry, eng engine.Engine, meta *cloudmeta.Store, identity *device.Identity, queue *events.Queue, logger *log.Logger) *Orchestrator {
	if logger == nil {
		logger = log.New(os.Stderr, "[orchestrator] ", log.LstdFlags)
	}
	return &Orchestrator{
		reg:      reg,
		eng:      eng,
		meta:     meta,
		identity: identity,
		queue:    queue,
		logger:   logger,
		inflight: make(map[string]*engine.Process),
	}
}

// Sync reconciles localPath with remotePath, creating the job if the
// pair is new. New folders get ownership markers on both sides.
func (o *Orchestrator) Sync(ctx context.Context, localPath, remotePath string, syncType registry.SyncType) (registry.Job, error) {
	job, known := o.reg.JobByLocalPath(localPath)
	if !known {
		st := pathcheck.Check(localPath, 0)
		if !st.OK {
			return registry.Job{}, fmt.Errorf("invalid sync root: %s", st.Reason)
		}
		for _, w := range st.Warnings {
			o.logger.Printf("warning: %s", w)
		}
		if nested, ok := o.reg.NestedPathConflict(localPath); ok {
			return registry.Job{}, fmt.Errorf("%s overlaps synced folder %s (job %s)",
				localPath, nested.LocalPath, nested.ID)
		}

		var err error
		job, err = o.reg.CreateJob(localPath, remotePath, syncType)
		if err != nil {
			return registry.Job{}, err
		}
		o.stampMarkers(ctx, job)
		o.publish(events.Event{Kind: events.KindJobAdded, JobID: job.ID, Path: localPath})
	}

	if err := o.SyncJob(ctx, job.ID); err != nil {
		return job, err
	}
	return job, nil
}

// SyncJob starts a run for an existing job. A job with a run already in
// flight is rejected.
func (o *Orchestrator) SyncJob(ctx context.Context, jobID string) error {
	return o.start(ctx, jobID, false)
}

// ForceResync rebuilds the bisync baseline for a job, reconciling both
// sides from scratch.
func (o *Orchestrator) ForceResync(ctx context.Context, jobID string) error {
	return o.start(ctx, jobID, true)
}

func (o *Orchestrator) start(ctx context.Context, jobID string, resync bool) error {
	job, ok := o.reg.JobByID(jobID)
	if !ok {
		return fmt.Errorf("job %s not found", jobID)
	}

	o.mu.Lock()
	if _, running := o.inflight[jobID]; running {
		o.mu.Unlock()
		return fmt.Errorf("job %s is already syncing", jobID)
	}
	// Reserve the slot before the subprocess exists so two callers
	// cannot race past the check.
	o.inflight[jobID] = nil
	o.mu.Unlock()

	if err := os.MkdirAll(job.LocalPath, 0o755); err != nil {
		o.release(jobID)
		return fmt.Errorf("preparing local folder: %w", err)
	}

	if err := o.reg.RecordSyncStart(jobID); err != nil {
		o.logger.Printf("cannot record sync start: %v", err)
	}
	o.publish(events.Event{Kind: events.KindSyncStarted, JobID: jobID, Path: job.LocalPath})

	proc, err := o.eng.StartSync(ctx, engine.SyncRequest{
		LocalPath:  job.LocalPath,
		RemotePath: job.RemotePath,
		Mode:       engine.SyncMode(job.SyncType),
		Resync:     resync,
	})
	if err != nil {
		o.release(jobID)
		if rerr := o.reg.RecordSyncComplete(jobID, err); rerr != nil {
			o.logger.Printf("cannot record spawn failure: %v", rerr)
		}
		o.publish(events.Event{Kind: events.KindSyncFinished, JobID: jobID, Err: err.Error()})
		return fmt.Errorf("starting sync for job %s: %w", jobID, err)
	}

	o.mu.Lock()
	o.inflight[jobID] = proc
	o.mu.Unlock()

	o.wg.Add(1)
	go o.supervise(jobID, proc)
	return nil
}

// supervise waits for a run to finish and records the outcome.
func (o *Orchestrator) supervise(jobID string, proc *engine.Process) {
	defer o.wg.Done()

	<-proc.Done()
	runErr := proc.Err()
	o.release(jobID)

	if err := o.reg.RecordSyncComplete(jobID, runErr); err != nil {
		o.logger.Printf("cannot record sync outcome: %v", err)
	}

	ev := events.Event{Kind: events.KindSyncFinished, JobID: jobID}
	if runErr != nil {
		ev.Err = runErr.Error()
		o.logger.Printf("sync for job %s failed: %v\n%s", jobID, runErr, proc.Output())
	} else {
		o.logger.Printf("sync for job %s finished", jobID)
	}
	o.publish(ev)
}

// Cancel stops a running job, graceful first, forced after the grace
// period.
func (o *Orchestrator) Cancel(ctx context.Context, jobID string) error {
	o.mu.Lock()
	proc := o.inflight[jobID]
	o.mu.Unlock()

	if proc == nil {
		return fmt.Errorf("job %s has no running sync", jobID)
	}
	o.logger.Printf("cancelling sync for job %s (pid %d)", jobID, proc.PID())
	return proc.Stop(ctx)
}

// Running returns a snapshot of in-flight runs.
func (o *Orchestrator) Running() []RunningJob {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]RunningJob, 0, len(o.inflight))
	for id, proc := range o.inflight {
		if proc == nil {
			continue
		}
		out = append(out, RunningJob{JobID: id, PID: proc.PID()})
	}
	return out
}

// Wait blocks until every supervised run has finished. Meant for
// shutdown paths after cancelling.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) release(jobID string) {
	o.mu.Lock()
	delete(o.inflight, jobID)
	o.mu.Unlock()
}

// stampMarkers writes the local and cloud ownership markers for a new
// job. Failures are logged; markers are advisory.
func (o *Orchestrator) stampMarkers(ctx context.Context, job registry.Job) {
	if err := pathcheck.WriteLocalMarker(job.LocalPath,
		o.identity.DeviceID(), o.identity.DeviceName(), job.RemotePath); err != nil {
		o.logger.Printf("cannot write local marker: %v", err)
	}
	if o.meta != nil {
		if err := o.meta.WriteMeta(ctx, job.RemotePath,
			o.identity.DeviceID(), o.identity.DeviceName()); err != nil {
			o.logger.Printf("cannot write cloud marker: %v", err)
		}
	}
}

func (o *Orchestrator) publish(ev events.Event) {
	if o.queue != nil {
		o.queue.Publish(ev)
	}
}
