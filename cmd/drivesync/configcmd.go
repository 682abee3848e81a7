package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"drivesync/internal/pathcheck"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Exchange job configs with the cloud",
}

var configExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Publish this device's job config to the cloud",
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp()
		defer a.close()

		if err := a.reg.ExportConfigToCloud(cmd.Context()); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Published config for %s (%d jobs)\n",
			a.identity.DeviceName(), len(a.reg.Jobs()))
	},
}

var configImportRoot string

var configImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import shared jobs offered by other devices",
	Long: `Import every shared job other devices have offered to this
device. Each imported job is placed under the sync root, in a folder
named after its cloud folder. Jobs that conflict with existing local
configuration are skipped.`,
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp()
		defer a.close()

		root := configImportRoot
		if root == "" {
			root = a.cfg.Sync.DefaultRoot
		}
		root, err := pathcheck.EnsureDefaultSyncRoot(root)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		imported, err := a.reg.ImportConfigFromCloud(cmd.Context(), root)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if len(imported) == 0 {
			fmt.Println("No new shared jobs to import.")
			return
		}
		for _, job := range imported {
			fmt.Printf("Imported %s -> %s (job %s)\n", job.RemotePath, job.LocalPath, shortID(job.ID))
		}
	},
}

func init() {
	configImportCmd.Flags().StringVar(&configImportRoot, "root", "", "sync root for imported jobs (default from config)")

	configCmd.AddCommand(configExportCmd)
	configCmd.AddCommand(configImportCmd)
	rootCmd.AddCommand(configCmd)
}
