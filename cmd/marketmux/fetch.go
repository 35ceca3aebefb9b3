package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/qleaf/marketmux/internal/provider"
)

var (
	fetchDate          string
	fetchCheck         bool
	fetchPeriod        string
	fetchKlineLimit    int
	fetchAdjust        string
	fetchDays          int
	fetchNewsLimit     int
	fetchAnnouncements bool
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch market data through the fallback chain",
}

var fetchListCmd = &cobra.Command{
	Use:   "list",
	Short: "Fetch the exchange stock list",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, log, err := setup()
		if err != nil {
			return err
		}
		defer log.Sync()

		data, source := a.Orchestrator().StockList(context.Background())
		return printResult(map[string]any{"source": source, "count": len(data), "stocks": data})
	},
}

var fetchQuotesCmd = &cobra.Command{
	Use:   "quotes",
	Short: "Fetch the whole-market realtime quote snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, log, err := setup()
		if err != nil {
			return err
		}
		defer log.Sync()

		data, source := a.Orchestrator().RealtimeQuotes(context.Background())
		return printResult(map[string]any{"source": source, "count": len(data), "quotes": data})
	},
}

var fetchFundamentalsCmd = &cobra.Command{
	Use:   "fundamentals",
	Short: "Fetch daily fundamentals, optionally cross-checked against a second source",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, log, err := setup()
		if err != nil {
			return err
		}
		defer log.Sync()

		ctx := context.Background()
		date := fetchDate
		if date == "" {
			date, _ = a.Orchestrator().LatestTradingDay(ctx)
			if date == "" {
				return fmt.Errorf("no provider could resolve the latest trading day")
			}
		}

		if fetchCheck {
			data, source, report := a.Orchestrator().DailyFundamentalsChecked(ctx, date)
			return printResult(map[string]any{
				"source": source, "trade_date": date, "count": len(data),
				"consistency": report, "fundamentals": data,
			})
		}
		data, source := a.Orchestrator().DailyFundamentals(ctx, date)
		return printResult(map[string]any{
			"source": source, "trade_date": date, "count": len(data), "fundamentals": data,
		})
	},
}

var fetchKlineCmd = &cobra.Command{
	Use:   "kline CODE",
	Short: "Fetch OHLCV bars for one stock",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, log, err := setup()
		if err != nil {
			return err
		}
		defer log.Sync()

		code := provider.NormalizeCode(args[0])
		data, source := a.Orchestrator().Kline(context.Background(), code, fetchPeriod, fetchKlineLimit, fetchAdjust)
		return printResult(map[string]any{"source": source, "code": code, "count": len(data), "bars": data})
	},
}

var fetchNewsCmd = &cobra.Command{
	Use:   "news CODE",
	Short: "Fetch recent news and announcements for one stock",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, log, err := setup()
		if err != nil {
			return err
		}
		defer log.Sync()

		code := provider.NormalizeCode(args[0])
		data, source := a.Orchestrator().News(context.Background(), code, fetchDays, fetchNewsLimit, fetchAnnouncements)
		return printResult(map[string]any{"source": source, "code": code, "count": len(data), "items": data})
	},
}

func printResult(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func init() {
	fetchFundamentalsCmd.Flags().StringVar(&fetchDate, "date", "", "trade date (YYYYMMDD, default: latest trading day)")
	fetchFundamentalsCmd.Flags().BoolVar(&fetchCheck, "check", false, "cross-check against a second source")

	fetchKlineCmd.Flags().StringVar(&fetchPeriod, "period", provider.PeriodDaily, "bar period: daily, weekly, monthly")
	fetchKlineCmd.Flags().IntVar(&fetchKlineLimit, "limit", 120, "maximum number of bars")
	fetchKlineCmd.Flags().StringVar(&fetchAdjust, "adjust", provider.AdjustNone, "price adjustment: qfq, hfq or empty")

	fetchNewsCmd.Flags().IntVar(&fetchDays, "days", 7, "how many days back to search")
	fetchNewsCmd.Flags().IntVar(&fetchNewsLimit, "limit", 20, "maximum number of items")
	fetchNewsCmd.Flags().BoolVar(&fetchAnnouncements, "announcements", true, "include company announcements")

	fetchCmd.AddCommand(fetchListCmd, fetchQuotesCmd, fetchFundamentalsCmd, fetchKlineCmd, fetchNewsCmd)
	rootCmd.AddCommand(fetchCmd)
}
