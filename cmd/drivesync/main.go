package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	flagConfig string
	flagDebug  bool
)

var rootCmd = &cobra.Command{
	Use:   "drivesync",
	Short: "Multi-device cloud folder sync",
	Long: `drivesync keeps local folders in sync with a cloud remote across
multiple devices.

Each device carries a stable identity; folders are claimed with marker
files so two devices never fight over the same cloud folder. Jobs are
stored in a local registry and mirrored to the cloud so other devices
can discover shared folders.`,
}

func main() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default: config.yaml in the drivesync config dir)")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
