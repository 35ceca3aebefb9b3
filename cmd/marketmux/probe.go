package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Resolve the latest trading day",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, log, err := setup()
		if err != nil {
			return err
		}
		defer log.Sync()

		day, source := a.Orchestrator().LatestTradingDay(context.Background())
		if day == "" {
			return fmt.Errorf("no provider could resolve the latest trading day")
		}
		return printResult(map[string]any{"trade_date": day, "source": source})
	},
}

func init() {
	rootCmd.AddCommand(probeCmd)
}
