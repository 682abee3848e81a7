package main

import (
	"fmt"
	"os"
	"path/filepath"

	"drivesync/internal/cloudmeta"
	"drivesync/internal/config"
	"drivesync/internal/device"
	"drivesync/internal/engine"
	"drivesync/internal/index"
	"drivesync/internal/logging"
	"drivesync/internal/registry"
)

// app holds the wired core services shared by all commands.
type app struct {
	cfg      *config.Config
	identity *device.Identity
	eng      *engine.Rclone
	meta     *cloudmeta.Store
	reg      *registry.Registry
	idx      *index.Index
}

func newApp() (*app, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	if flagDebug {
		cfg.Logging.Debug = true
	}
	logging.Setup(cfg.Logging.Dir, cfg.Logging.Debug)

	dir, err := config.ConfigDir()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating config dir: %w", err)
	}

	identity, err := device.New(dir, logging.New("device"))
	if err != nil {
		return nil, err
	}

	eng := engine.NewRclone(engine.Options{
		Binary:    cfg.Engine.Binary,
		Remote:    cfg.Engine.Remote,
		PortBase:  cfg.Engine.PortBase,
		PortCount: cfg.Engine.PortCount,
	}, logging.New("engine"))

	meta := cloudmeta.NewStore(eng, logging.New("cloudmeta"))

	reg := registry.New(registry.Options{
		Dir:            dir,
		ExportDebounce: cfg.Registry.ExportDebounce,
	}, identity, eng, meta, logging.New("registry"))
	if err := reg.Load(); err != nil {
		return nil, err
	}

	return &app{
		cfg:      cfg,
		identity: identity,
		eng:      eng,
		meta:     meta,
		reg:      reg,
	}, nil
}

// openIndex opens the search index on first use.
func (a *app) openIndex() (*index.Index, error) {
	if a.idx != nil {
		return a.idx, nil
	}
	idx, err := index.Open(filepath.Join(a.cfg.Logging.Dir, "index.db"), logging.New("index"))
	if err != nil {
		return nil, err
	}
	a.idx = idx
	return idx, nil
}

func (a *app) close() {
	a.reg.Close()
	if a.idx != nil {
		a.idx.Close()
	}
}

// mustApp wires the core or exits with the error.
func mustApp() *app {
	a, err := newApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return a
}

// findJob resolves a job reference given as a job ID, an ID prefix, or
// a local path.
func findJob(a *app, ref string) (registry.Job, bool) {
	if job, ok := a.reg.JobByID(ref); ok {
		return job, true
	}
	if abs, err := filepath.Abs(ref); err == nil {
		if job, ok := a.reg.JobByLocalPath(abs); ok {
			return job, true
		}
	}
	var match registry.Job
	var found int
	for _, job := range a.reg.Jobs() {
		if len(ref) >= 4 && len(job.ID) >= len(ref) && job.ID[:len(ref)] == ref {
			match = job
			found++
		}
	}
	if found == 1 {
		return match, true
	}
	return registry.Job{}, false
}
