package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"drivesync/internal/pathcheck"
	"drivesync/internal/registry"
)

var jobCmd = &cobra.Command{
	Use:   "job",
	Short: "Manage sync jobs",
}

var jobListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered sync jobs",
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp()
		defer a.close()

		jobs := a.reg.Jobs()
		if len(jobs) == 0 {
			fmt.Println("No sync jobs registered.")
			return
		}

		w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tLOCAL\tREMOTE\tTYPE\tMODE\tSTATUS\tLAST SYNC")
		for _, job := range jobs {
			last := "never"
			if !job.LastSyncTime.IsZero() {
				last = job.LastSyncTime.Local().Format("2006-01-02 15:04")
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				shortID(job.ID), job.LocalPath, job.RemotePath,
				job.SyncType, job.SyncMode, job.LastSyncStatus, last)
		}
		w.Flush()
	},
}

var (
	jobAddType  string
	jobAddForce bool
)

var jobAddCmd = &cobra.Command{
	Use:   "add <local-path> <remote-path>",
	Short: "Register a new sync job",
	Long: `Register a local folder for syncing to a cloud folder.

The local path is validated (volume type, free space, write access) and
both sides are checked for conflicts with existing jobs and with folders
claimed by other devices. Use --force to attach to a folder this device
created earlier, for example after a reinstall.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp()
		defer a.close()

		local, err := filepath.Abs(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		remote := args[1]

		syncType := registry.SyncType(jobAddType)
		switch syncType {
		case registry.SyncBisync, registry.SyncMirror, registry.SyncCopy:
		default:
			fmt.Fprintf(os.Stderr, "Error: unknown sync type %q (want bisync, sync or copy)\n", jobAddType)
			os.Exit(1)
		}

		status := pathcheck.Check(local, 0)
		if !status.OK {
			fmt.Fprintf(os.Stderr, "Error: %s\n", status.Reason)
			os.Exit(1)
		}
		for _, warn := range status.Warnings {
			fmt.Fprintf(os.Stderr, "Warning: %s\n", warn)
		}

		ctx := cmd.Context()
		conflict := a.reg.CheckCloudFolderConflicts(ctx, local, remote)
		switch conflict.Type {
		case registry.ConflictNone:
		case registry.ConflictCloudFolderSameDevice:
			if !jobAddForce {
				fmt.Fprintf(os.Stderr, "Error: %s\n", conflict.Message)
				fmt.Fprintf(os.Stderr, "Use --force to reattach to it.\n")
				os.Exit(1)
			}
		default:
			fmt.Fprintf(os.Stderr, "Error: %s\n", conflict.Message)
			os.Exit(1)
		}

		job, err := a.reg.CreateJob(local, remote, syncType)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if err := os.MkdirAll(job.LocalPath, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: cannot create %s: %v\n", job.LocalPath, err)
		} else if err := pathcheck.WriteLocalMarker(job.LocalPath, a.identity.DeviceID(), a.identity.DeviceName(), job.RemotePath); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: cannot write folder marker: %v\n", err)
		}
		if err := a.meta.WriteMeta(ctx, job.RemotePath, a.identity.DeviceID(), a.identity.DeviceName()); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: cannot claim cloud folder: %v\n", err)
		}

		fmt.Printf("Created job %s\n", shortID(job.ID))
		fmt.Printf("   Local:  %s\n", job.LocalPath)
		fmt.Printf("   Remote: %s\n", job.RemotePath)
		fmt.Printf("Run 'drivesync sync %s' to start the first sync.\n", shortID(job.ID))
	},
}

var jobRmCmd = &cobra.Command{
	Use:   "rm <job>",
	Short: "Remove a sync job",
	Long: `Remove a sync job from the registry.

Local files are left in place; only the job configuration, its legacy
mirror and the engine's sync state are removed.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp()
		defer a.close()

		job, ok := findJob(a, args[0])
		if !ok {
			fmt.Fprintf(os.Stderr, "Error: no job matching %q\n", args[0])
			os.Exit(1)
		}
		if err := a.reg.DeleteJob(job.ID); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if idx, err := a.openIndex(); err == nil {
			idx.DeleteJobFiles(job.ID)
		}
		fmt.Printf("Removed job %s (%s)\n", shortID(job.ID), job.LocalPath)
	},
}

var jobShareCmd = &cobra.Command{
	Use:   "share <job>",
	Short: "Open a job for other devices",
	Long: `Switch a job to shared mode so other devices can join its cloud
folder. The device config is published to the cloud immediately.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp()
		defer a.close()

		job, ok := findJob(a, args[0])
		if !ok {
			fmt.Fprintf(os.Stderr, "Error: no job matching %q\n", args[0])
			os.Exit(1)
		}
		if err := a.reg.EnableSharedSync(job.ID); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if err := a.reg.ExportConfigToCloud(cmd.Context()); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: shared locally but cloud publish failed: %v\n", err)
		}
		fmt.Printf("Job %s is now shared. Other devices can join with:\n", shortID(job.ID))
		fmt.Printf("   drivesync job join %s\n", shortID(job.ID))
	},
}

var jobJoinLocal string

var jobJoinCmd = &cobra.Command{
	Use:   "join <job>",
	Short: "Join a shared job from another device",
	Long: `Attach this device to a job another device has shared.

The shared job is looked up in the cloud device configs. Without
--local the folder lands under the default sync root, named after the
cloud folder.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp()
		defer a.close()

		ctx := cmd.Context()
		shared, err := a.reg.SharedJobs(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		var remote *registry.Job
		for i := range shared {
			if shared[i].ID == args[0] || shortID(shared[i].ID) == args[0] {
				remote = &shared[i]
				break
			}
		}
		if remote == nil {
			fmt.Fprintf(os.Stderr, "Error: no shared job %q offered to this device\n", args[0])
			if len(shared) > 0 {
				fmt.Fprintf(os.Stderr, "Available shared jobs:\n")
				for _, s := range shared {
					fmt.Fprintf(os.Stderr, "   %s  %s (from %s)\n", shortID(s.ID), s.RemotePath, s.OriginDeviceName)
				}
			}
			os.Exit(1)
		}

		local := jobJoinLocal
		if local == "" {
			local = filepath.Join(a.cfg.Sync.DefaultRoot, filepath.Base(remote.RemotePath))
		}
		local, err = filepath.Abs(local)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		job, err := a.reg.JoinSharedSync(*remote, local)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Joined shared job %s\n", shortID(job.ID))
		fmt.Printf("   Local:  %s\n", job.LocalPath)
		fmt.Printf("   Remote: %s\n", job.RemotePath)
	},
}

var jobLeaveCmd = &cobra.Command{
	Use:   "leave <job>",
	Short: "Detach this device from a shared job",
	Long: `Detach this device from a shared job.

Leaving a job joined from another device removes it locally. Leaving a
job this device owns keeps it and drops back to exclusive mode once no
other device is attached.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp()
		defer a.close()

		job, ok := findJob(a, args[0])
		if !ok {
			fmt.Fprintf(os.Stderr, "Error: no job matching %q\n", args[0])
			os.Exit(1)
		}
		if err := a.reg.LeaveSharedSync(job.ID); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Left shared job %s\n", shortID(job.ID))
	},
}

// shortID trims a job UUID to its first hex group for display.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	jobAddCmd.Flags().StringVar(&jobAddType, "type", string(registry.SyncBisync), "sync type: bisync, sync or copy")
	jobAddCmd.Flags().BoolVar(&jobAddForce, "force", false, "reattach to a cloud folder this device already claimed")
	jobJoinCmd.Flags().StringVar(&jobJoinLocal, "local", "", "local folder for the joined job")

	jobCmd.AddCommand(jobListCmd)
	jobCmd.AddCommand(jobAddCmd)
	jobCmd.AddCommand(jobRmCmd)
	jobCmd.AddCommand(jobShareCmd)
	jobCmd.AddCommand(jobJoinCmd)
	jobCmd.AddCommand(jobLeaveCmd)
	rootCmd.AddCommand(jobCmd)
}
