package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"drivesync/internal/events"
	"drivesync/internal/logging"
	"drivesync/internal/monitor"
	"drivesync/internal/orchestrator"
	"drivesync/internal/watcher"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the sync daemon (foreground)",
	Long: `Run the sync daemon in the foreground.

The daemon:
  1. Watches each job's local folder and syncs after changes settle
  2. Polls the cloud for files added by other devices and downloads them
  3. Keeps the local search index up to date
  4. Publishes this device's job config to the cloud

Press Ctrl+C to stop.`,
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp()
		defer a.close()

		idx, err := a.openIndex()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening search index: %v\n", err)
			os.Exit(1)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		queue := events.NewQueue(256)
		orch := orchestrator.New(a.reg, a.eng, a.meta, a.identity, queue, logging.New("orchestrator"))

		mon := monitor.New(a.reg, a.eng, queue, idx, monitor.Options{
			ScanInterval:   a.cfg.Monitor.ScanInterval,
			MinJobInterval: a.cfg.Monitor.MinJobInterval,
			BatchThreshold: a.cfg.Monitor.BatchThreshold,
		}, logging.New("monitor"))

		wlog := logging.New("watcher")
		w, err := watcher.New(a.cfg.Watcher.Debounce, func(jobID string) {
			if err := orch.SyncJob(ctx, jobID); err != nil {
				wlog.Printf("change sync for job %s failed: %v", jobID, err)
			}
		}, wlog)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating watcher: %v\n", err)
			os.Exit(1)
		}

		jobs := a.reg.Jobs()
		for _, job := range jobs {
			if err := w.AddJob(job.ID, job.LocalPath); err != nil {
				wlog.Printf("cannot watch %s: %v", job.LocalPath, err)
			}
		}

		go func() {
			for ev := range queue.C() {
				printEvent(ev)
			}
		}()

		fmt.Printf("drivesync daemon starting\n")
		fmt.Printf("   Device: %s (%s)\n", a.identity.DeviceName(), a.identity.DeviceID())
		fmt.Printf("   Remote: %s\n", a.eng.Remote())
		fmt.Printf("   Jobs:   %d\n", len(jobs))
		fmt.Printf("\nPress Ctrl+C to stop\n\n")

		mon.Start(ctx)
		w.Start(ctx)

		// Catch up on anything that changed while the daemon was down.
		for _, job := range jobs {
			if err := orch.SyncJob(ctx, job.ID); err != nil {
				wlog.Printf("startup sync for job %s failed: %v", job.ID, err)
			}
		}

		if err := a.reg.ExportConfigToCloud(ctx); err != nil {
			wlog.Printf("startup config publish failed: %v", err)
		}

		<-ctx.Done()

		fmt.Println("\nShutting down...")
		w.Stop()
		mon.Stop()
		orch.Wait()
		queue.Close()
	},
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}
