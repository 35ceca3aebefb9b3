package provider

import (
	"context"
	"time"

	"github.com/qleaf/marketmux/internal/core"
)

// Config holds per-provider configuration injected at construction time.
type Config struct {
	Enabled     bool
	Priority    int
	Token       string
	Timeout     time.Duration
	ProbeWindow int
}

// Provider is the capability contract every vendor adapter implements.
//
// Capabilities return (data, error); any error means the provider could
// not answer and the fallback chain moves on. Errors carry a typed kind
// (core.ErrProviderCall wrapping timeout/auth/decode causes) so logs and
// metrics can tell failures apart, but they never propagate past the
// orchestrator. IsAvailable must be cheap, side-effect-free and must
// never block on network I/O.
type Provider interface {
	// Metadata
	Name() string
	Priority() int

	// Availability, recomputed freshly on every fallback-chain walk.
	IsAvailable() bool

	// Data fetching
	FetchStockList(ctx context.Context) ([]core.StockBasic, error)
	FetchDailyFundamentals(ctx context.Context, tradeDate string) (map[string]core.Fundamentals, error)
	FetchRealtimeQuotes(ctx context.Context) (map[string]core.Quote, error)
	FetchKline(ctx context.Context, code, period string, limit int, adjust string) ([]core.KlineBar, error)
	FetchNews(ctx context.Context, code string, daysBack, limit int, includeAnnouncements bool) ([]core.NewsItem, error)

	// LatestTradingDay probes backward for the most recent day with
	// published data; implementations fall back to yesterday.
	LatestTradingDay(ctx context.Context) (string, error)
}

// Kline periods understood by all adapters.
const (
	PeriodDaily   = "daily"
	PeriodWeekly  = "weekly"
	PeriodMonthly = "monthly"
)

// Adjustment modes for kline data.
const (
	AdjustNone = ""
	AdjustQFQ  = "qfq"
	AdjustHFQ  = "hfq"
)
