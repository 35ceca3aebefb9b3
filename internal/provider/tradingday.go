package provider

import (
	"context"
	"time"

	"github.com/qleaf/marketmux/internal/core"
)

// DefaultProbeWindow bounds the backward trading-day probe when a
// provider does not configure its own window.
const DefaultProbeWindow = 7

var cst = func() *time.Location {
	loc, err := time.LoadLocation("Asia/Shanghai")
	if err != nil {
		return time.FixedZone("CST", 8*3600)
	}
	return loc
}()

// MarketNow returns the current time on the exchange clock. Trade dates
// roll over on Beijing time regardless of where the process runs.
func MarketNow() time.Time {
	return time.Now().In(cst)
}

// ExistsFunc reports whether any published record exists for a trade
// date. Implementations must not panic; a probe failure on one date is
// treated as a miss and must not abort probing of earlier dates.
type ExistsFunc func(ctx context.Context, tradeDate string) bool

// ProbeLatestTradingDay walks backward from now over at most window days
// and returns the first date for which exists reports data. If the whole
// window misses (or the context is cancelled) it returns yesterday as a
// conservative default.
func ProbeLatestTradingDay(ctx context.Context, now time.Time, window int, exists ExistsFunc) (date string, depth int) {
	if window <= 0 {
		window = DefaultProbeWindow
	}

	for i := 0; i < window; i++ {
		if ctx.Err() != nil {
			break
		}
		d := now.AddDate(0, 0, -i).Format(core.TradeDateLayout)
		if exists(ctx, d) {
			return d, i
		}
	}

	return now.AddDate(0, 0, -1).Format(core.TradeDateLayout), window
}
