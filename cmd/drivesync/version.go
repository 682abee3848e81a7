package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show drivesync and engine versions",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("drivesync %s\n", version)

		a, err := newApp()
		if err != nil {
			return
		}
		defer a.close()

		if ver, err := a.eng.Version(cmd.Context()); err == nil {
			fmt.Printf("engine    %s\n", ver)
		}
		fmt.Printf("device    %s (%s)\n", a.identity.DeviceName(), a.identity.DeviceID())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
