package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"drivesync/internal/events"
	"drivesync/internal/logging"
	"drivesync/internal/orchestrator"
	"drivesync/internal/registry"
)

var (
	syncAll    bool
	syncResync bool
)

var syncCmd = &cobra.Command{
	Use:   "sync [job]",
	Short: "Run a sync now",
	Long: `Run a sync for one job, or for every registered job with --all.

The command blocks until the engine finishes. Ctrl+C stops the engine
cleanly. --resync rebuilds the engine's sync state from scratch; use it
after the two sides have been changed outside of drivesync.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp()
		defer a.close()

		var targets []registry.Job
		switch {
		case syncAll:
			targets = a.reg.Jobs()
		case len(args) == 1:
			job, ok := findJob(a, args[0])
			if !ok {
				fmt.Fprintf(os.Stderr, "Error: no job matching %q\n", args[0])
				os.Exit(1)
			}
			targets = []registry.Job{job}
		default:
			fmt.Fprintf(os.Stderr, "Error: name a job or pass --all\n")
			os.Exit(1)
		}
		if len(targets) == 0 {
			fmt.Println("No sync jobs registered.")
			return
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		queue := events.NewQueue(64)
		orch := orchestrator.New(a.reg, a.eng, a.meta, a.identity, queue, logging.New("orchestrator"))

		printerDone := make(chan struct{})
		go func() {
			defer close(printerDone)
			for ev := range queue.C() {
				printEvent(ev)
			}
		}()

		failed := 0
		for _, job := range targets {
			var err error
			if syncResync {
				err = orch.ForceResync(ctx, job.ID)
			} else {
				err = orch.SyncJob(ctx, job.ID)
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: job %s: %v\n", shortID(job.ID), err)
				failed++
			}
		}

		orch.Wait()
		queue.Close()
		<-printerDone

		for _, job := range targets {
			if current, ok := a.reg.JobByID(job.ID); ok && current.LastSyncStatus == registry.StatusFailed {
				failed++
			}
		}
		if failed > 0 {
			os.Exit(1)
		}
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <job>",
	Short: "Stop a running sync",
	Long: `Stop the engine process currently syncing a job.

The engine is found by matching its command line against the job's
local path, so this also reaches syncs started by the daemon or by
another drivesync invocation.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp()
		defer a.close()

		job, ok := findJob(a, args[0])
		if !ok {
			fmt.Fprintf(os.Stderr, "Error: no job matching %q\n", args[0])
			os.Exit(1)
		}

		n, err := stopEngineFor(a.cfg.Engine.Binary, job.LocalPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if n == 0 {
			fmt.Printf("No running sync for job %s\n", shortID(job.ID))
			return
		}
		fmt.Printf("Stopped %d engine process(es) for job %s\n", n, shortID(job.ID))
	},
}

func printEvent(ev events.Event) {
	switch ev.Kind {
	case events.KindSyncStarted:
		fmt.Printf("Syncing %s -> %s\n", ev.Path, ev.Message)
	case events.KindSyncFinished:
		if ev.Err != "" {
			fmt.Printf("Sync failed for job %s: %s\n", shortID(ev.JobID), ev.Err)
		} else {
			fmt.Printf("Sync finished for job %s\n", shortID(ev.JobID))
		}
	case events.KindDownloadStarted:
		fmt.Printf("Downloading %s\n", ev.Path)
	case events.KindDownloadFinished:
		if ev.Err != "" {
			fmt.Printf("Download failed: %s: %s\n", ev.Path, ev.Err)
		} else {
			fmt.Printf("Downloaded %s\n", ev.Path)
		}
	case events.KindBatchComplete:
		fmt.Printf("Batch download finished for job %s: %s\n", shortID(ev.JobID), ev.Message)
	case events.KindConflictDetected:
		fmt.Printf("Conflict on job %s: %s\n", shortID(ev.JobID), ev.Message)
	case events.KindJobAdded:
		fmt.Printf("Job added: %s\n", ev.Path)
	case events.KindJobRemoved:
		fmt.Printf("Job removed: %s\n", ev.Path)
	case events.KindRefreshRequested:
		// UI refresh hint; nothing to show on the console.
	default:
		fmt.Printf("%s %s %s\n", ev.Kind, ev.Path, ev.Message)
	}
}

func init() {
	syncCmd.Flags().BoolVar(&syncAll, "all", false, "sync every registered job")
	syncCmd.Flags().BoolVar(&syncResync, "resync", false, "rebuild sync state from scratch")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(cancelCmd)
}
