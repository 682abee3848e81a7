package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"drivesync/internal/benchmark"
	"drivesync/internal/logging"
)

var (
	benchReaders int
	benchFiles   int
	benchQueries int
	benchPath    string
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Benchmark the search index",
	Long: `Benchmark search index query latency under concurrent readers.

A throwaway index is seeded with synthetic file records, then hammered
with concurrent name searches. This approximates many frontends
querying while the daemon scans.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := benchmark.DefaultConfig()
		if benchReaders > 0 {
			cfg.Readers = benchReaders
		}
		if benchFiles > 0 {
			cfg.Files = benchFiles
		}
		if benchQueries > 0 {
			cfg.QueriesPerReader = benchQueries
		}
		if benchPath != "" {
			cfg.IndexPath = benchPath
		} else {
			cfg.IndexPath = filepath.Join(os.TempDir(), "drivesync-bench.db")
		}

		fmt.Printf("Running index benchmark (%d readers, %d files)...\n", cfg.Readers, cfg.Files)

		result, err := benchmark.Run(cfg, logging.New("benchmark"))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		benchmark.PrintResult(result)

		os.Remove(cfg.IndexPath)
		if !result.Success {
			os.Exit(1)
		}
	},
}

func init() {
	benchCmd.Flags().IntVar(&benchReaders, "readers", 0, "concurrent query goroutines")
	benchCmd.Flags().IntVar(&benchFiles, "files", 0, "records seeded into the index")
	benchCmd.Flags().IntVar(&benchQueries, "queries", 0, "queries per reader")
	benchCmd.Flags().StringVar(&benchPath, "index", "", "benchmark index path")

	rootCmd.AddCommand(benchCmd)
}
