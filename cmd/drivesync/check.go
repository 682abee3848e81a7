package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"drivesync/internal/pathcheck"
)

var checkCmd = &cobra.Command{
	Use:   "check <path>",
	Short: "Validate a folder as a sync root",
	Long: `Check whether a local folder can serve as a sync root.

Reports the volume type, free space and write access, and whether the
folder is already claimed by a sync job on this or another device.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp()
		defer a.close()

		path, err := filepath.Abs(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		status := pathcheck.Check(path, 0)
		fmt.Printf("Path: %s\n", path)
		fmt.Printf("   Exists:     %v\n", status.Exists)
		fmt.Printf("   Writable:   %v\n", status.Writable)
		fmt.Printf("   Filesystem: %s on %s\n", status.Volume.Type, status.Volume.MountPoint)
		fmt.Printf("   Free space: %s of %s\n",
			formatBytes(status.Volume.FreeBytes), formatBytes(status.Volume.TotalBytes))
		if status.Volume.MaxFileSize > 0 {
			fmt.Printf("   Max file:   %s\n", formatBytes(uint64(status.Volume.MaxFileSize)))
		}
		for _, warn := range status.Warnings {
			fmt.Printf("   Warning:    %s\n", warn)
		}
		if !status.OK {
			fmt.Printf("   Not usable: %s\n", status.Reason)
			os.Exit(1)
		}

		conflict := pathcheck.CheckConflicts(path, a.identity.DeviceID())
		switch conflict.Kind {
		case pathcheck.ConflictNone:
			fmt.Println("   Usable as a sync root.")
		case pathcheck.ConflictResume:
			fmt.Printf("   Already a sync root of this device (remote %s).\n", conflict.Marker.RemotePath)
		default:
			fmt.Printf("   Conflict:   %s\n", conflict.Message)
			os.Exit(1)
		}
	},
}

func formatBytes(n uint64) string {
	switch {
	case n >= 1<<30:
		return fmt.Sprintf("%.1f GiB", float64(n)/(1<<30))
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d bytes", n)
	}
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
