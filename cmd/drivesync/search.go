package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var searchLimit int

var searchCmd = &cobra.Command{
	Use:   "search <substring>",
	Short: "Search indexed cloud files by name",
	Long: `Search the local file index by name substring.

The index is filled by the daemon as it scans cloud folders, so results
reflect the last scan rather than the live cloud state.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp()
		defer a.close()

		idx, err := a.openIndex()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening search index: %v\n", err)
			os.Exit(1)
		}

		records, err := idx.Search(args[0], searchLimit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if len(records) == 0 {
			fmt.Println("No matches.")
			return
		}

		w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tSIZE\tMODIFIED\tPATH")
		for _, rec := range records {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				rec.Name, formatBytes(uint64(rec.Size)),
				rec.ModTime.Local().Format("2006-01-02 15:04"), rec.Path)
		}
		w.Flush()
	},
}

func init() {
	searchCmd.Flags().IntVar(&searchLimit, "limit", 100, "maximum results")
	rootCmd.AddCommand(searchCmd)
}
