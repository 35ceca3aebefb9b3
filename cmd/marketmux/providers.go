package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "Show registered providers and their availability",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, log, err := setup()
		if err != nil {
			return err
		}
		defer log.Sync()

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "PRIORITY\tNAME\tAVAILABLE")
		for _, s := range a.Status() {
			fmt.Fprintf(w, "%d\t%s\t%t\n", s.Priority, s.Name, s.Available)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(providersCmd)
}
