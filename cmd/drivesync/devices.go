package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"drivesync/internal/registry"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List devices known to the cloud",
	Long: `List the devices that have published a config to the cloud,
with the number of jobs each one carries and how many of those are
shared.`,
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp()
		defer a.close()

		configs, err := a.reg.CloudDeviceConfigs(cmd.Context())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if len(configs) == 0 {
			fmt.Println("No devices have published a config yet.")
			return
		}

		w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
		fmt.Fprintln(w, "DEVICE\tNAME\tJOBS\tSHARED\tUPDATED")
		for _, cfg := range configs {
			var jobs []registry.Job
			if len(cfg.Jobs) > 0 {
				json.Unmarshal(cfg.Jobs, &jobs)
			}
			shared := 0
			for _, job := range jobs {
				if job.SyncMode == registry.ModeShared {
					shared++
				}
			}
			name := cfg.DeviceName
			if cfg.DeviceID == a.identity.DeviceID() {
				name += " (this device)"
			}
			updated := "unknown"
			if !cfg.LastUpdated.IsZero() {
				updated = cfg.LastUpdated.Local().Format("2006-01-02 15:04")
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n", cfg.DeviceID, name, len(jobs), shared, updated)
		}
		w.Flush()
	},
}

var devicesRenameCmd = &cobra.Command{
	Use:   "rename <name>",
	Short: "Rename this device",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp()
		defer a.close()

		if err := a.identity.SetDeviceName(args[0]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if err := a.reg.ExportConfigToCloud(cmd.Context()); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: renamed locally but cloud publish failed: %v\n", err)
		}
		fmt.Printf("Device renamed to %s\n", args[0])
	},
}

func init() {
	devicesCmd.AddCommand(devicesRenameCmd)
	rootCmd.AddCommand(devicesCmd)
}
