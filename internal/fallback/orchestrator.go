package fallback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/qleaf/marketmux/internal/core"
	"github.com/qleaf/marketmux/internal/metrics"
	"github.com/qleaf/marketmux/internal/provider"
)

// Options tunes chain-wide behavior.
type Options struct {
	// TotalTimeout bounds one whole chain walk across all providers.
	// Zero means no chain-level deadline beyond the caller's context.
	TotalTimeout time.Duration
}

// Orchestrator walks the registered providers in priority order and
// returns the first non-empty answer together with its source name.
// Exhaustion is not an error: callers get an empty result and an empty
// source, and the miss is visible in logs and metrics instead.
type Orchestrator struct {
	registry   *provider.Registry
	reconciler *Reconciler
	log        *zap.Logger
	metrics    *metrics.Registry
	opts       Options
	group      singleflight.Group
}

// New creates an orchestrator. All dependencies are required except the
// reconciler, which is only consulted by DailyFundamentalsChecked.
func New(reg *provider.Registry, rec *Reconciler, log *zap.Logger, m *metrics.Registry, opts Options) *Orchestrator {
	return &Orchestrator{
		registry:   reg,
		reconciler: rec,
		log:        log,
		metrics:    m,
		opts:       opts,
	}
}

// StockList returns the exchange stock list from the first provider
// that has one.
func (o *Orchestrator) StockList(ctx context.Context) ([]core.StockBasic, string) {
	return runChain(o, ctx, "stock_list", "stock_list",
		func(ctx context.Context, p provider.Provider) ([]core.StockBasic, error) {
			return p.FetchStockList(ctx)
		},
		func(v []core.StockBasic) bool { return len(v) == 0 })
}

// DailyFundamentals returns fundamentals snapshots for one trade date.
func (o *Orchestrator) DailyFundamentals(ctx context.Context, tradeDate string) (map[string]core.Fundamentals, string) {
	return runChain(o, ctx, "daily_fundamentals", "daily_fundamentals:"+tradeDate,
		func(ctx context.Context, p provider.Provider) (map[string]core.Fundamentals, error) {
			return p.FetchDailyFundamentals(ctx, tradeDate)
		},
		func(v map[string]core.Fundamentals) bool { return len(v) == 0 })
}

// RealtimeQuotes returns the whole-market quote snapshot.
func (o *Orchestrator) RealtimeQuotes(ctx context.Context) (map[string]core.Quote, string) {
	return runChain(o, ctx, "realtime_quotes", "realtime_quotes",
		func(ctx context.Context, p provider.Provider) (map[string]core.Quote, error) {
			return p.FetchRealtimeQuotes(ctx)
		},
		func(v map[string]core.Quote) bool { return len(v) == 0 })
}

// Kline returns OHLCV bars for one stock, oldest first.
func (o *Orchestrator) Kline(ctx context.Context, code, period string, limit int, adjust string) ([]core.KlineBar, string) {
	key := fmt.Sprintf("kline:%s:%s:%d:%s", code, period, limit, adjust)
	return runChain(o, ctx, "kline", key,
		func(ctx context.Context, p provider.Provider) ([]core.KlineBar, error) {
			return p.FetchKline(ctx, code, period, limit, adjust)
		},
		func(v []core.KlineBar) bool { return len(v) == 0 })
}

// News returns recent news for one stock, newest first.
func (o *Orchestrator) News(ctx context.Context, code string, daysBack, limit int, includeAnnouncements bool) ([]core.NewsItem, string) {
	key := fmt.Sprintf("news:%s:%d:%d:%t", code, daysBack, limit, includeAnnouncements)
	return runChain(o, ctx, "news", key,
		func(ctx context.Context, p provider.Provider) ([]core.NewsItem, error) {
			return p.FetchNews(ctx, code, daysBack, limit, includeAnnouncements)
		},
		func(v []core.NewsItem) bool { return len(v) == 0 })
}

// LatestTradingDay returns the most recent trading day any provider can
// vouch for. How stale the answer is relative to the market clock is
// recorded as the probe depth.
func (o *Orchestrator) LatestTradingDay(ctx context.Context) (string, string) {
	day, source := runChain(o, ctx, "latest_trading_day", "latest_trading_day",
		func(ctx context.Context, p provider.Provider) (string, error) {
			return p.LatestTradingDay(ctx)
		},
		func(v string) bool { return v == "" })

	if day != "" {
		if d, err := time.Parse(core.TradeDateLayout, day); err == nil {
			now := provider.MarketNow()
			today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
			if depth := int(today.Sub(d).Hours() / 24); depth >= 0 {
				o.metrics.RecordProbeDepth(depth)
			}
		}
	}
	return day, source
}

// checkedResult carries the singleflight payload for the checked
// fundamentals chain.
type checkedResult struct {
	data   map[string]core.Fundamentals
	source string
	report *core.ConsistencyReport
}

// DailyFundamentalsChecked fetches fundamentals from the two
// highest-priority providers that can answer and reconciles them.
// With fewer than two answers it degrades to the plain chain semantics
// and returns no report.
func (o *Orchestrator) DailyFundamentalsChecked(ctx context.Context, tradeDate string) (map[string]core.Fundamentals, string, *core.ConsistencyReport) {
	key := "daily_fundamentals_checked:" + tradeDate
	v, _, _ := o.group.Do(key, func() (any, error) {
		data, source, report := o.fundamentalsChecked(ctx, tradeDate)
		return checkedResult{data, source, report}, nil
	})
	r := v.(checkedResult)
	return r.data, r.source, r.report
}

func (o *Orchestrator) fundamentalsChecked(ctx context.Context, tradeDate string) (map[string]core.Fundamentals, string, *core.ConsistencyReport) {
	ctx, cancel := o.chainContext(ctx)
	defer cancel()

	const op = "daily_fundamentals_checked"
	log := o.log.With(zap.String("op", op), zap.String("chain_id", uuid.NewString()), zap.String("trade_date", tradeDate))

	avail := o.availableProviders()
	if len(avail) == 0 {
		log.Warn("no providers available")
		o.metrics.RecordExhausted(op)
		return nil, "", nil
	}

	fetch := func(p provider.Provider) (map[string]core.Fundamentals, bool) {
		start := time.Now()
		data, err := p.FetchDailyFundamentals(ctx, tradeDate)
		o.observe(log, op, p.Name(), len(data) > 0, err, time.Since(start))
		return data, err == nil && len(data) > 0
	}

	// Primary is pinned to the highest-priority available provider. When
	// it cannot answer there is nothing to corroborate against: the rest
	// of the chain serves the data unchecked, without a report.
	primary, ok := fetch(avail[0])
	if !ok {
		for _, p := range avail[1:] {
			if ctx.Err() != nil {
				break
			}
			if data, hit := fetch(p); hit {
				log.Info("primary empty, returning unchecked", zap.String("source", p.Name()))
				return data, p.Name(), nil
			}
		}
		log.Warn("chain exhausted")
		o.metrics.RecordExhausted(op)
		return nil, "", nil
	}
	primarySrc := avail[0].Name()

	// Secondary is the next available provider, not the next one holding
	// data: an empty second opinion means the answer goes out unchecked.
	if len(avail) < 2 {
		log.Info("no second source, returning unchecked", zap.String("source", primarySrc))
		return primary, primarySrc, nil
	}
	secondary, ok := fetch(avail[1])
	if !ok {
		log.Info("second source empty, returning unchecked", zap.String("source", primarySrc))
		return primary, primarySrc, nil
	}
	secondarySrc := avail[1].Name()

	report := o.reconciler.Compare(primarySrc, secondarySrc, primary, secondary)
	o.metrics.RecordReconcile(string(report.RecommendedAction), report.ConfidenceScore)
	log.Info("reconciled",
		zap.String("primary", primarySrc),
		zap.String("secondary", secondarySrc),
		zap.Float64("confidence", report.ConfidenceScore),
		zap.String("action", string(report.RecommendedAction)),
		zap.Int("differences", len(report.Differences)))

	return o.reconciler.Resolve(report, primary, secondary), primarySrc, report
}

// chainResult carries the singleflight payload for a plain chain.
type chainResult[T any] struct {
	data   T
	source string
}

// runChain is the shared fallback walk. Identical concurrent calls
// (same op and arguments) collapse onto one upstream walk.
func runChain[T any](o *Orchestrator, ctx context.Context, op, key string, fetch func(context.Context, provider.Provider) (T, error), empty func(T) bool) (T, string) {
	v, _, _ := o.group.Do(key, func() (any, error) {
		data, source := walk(o, ctx, op, fetch, empty)
		return chainResult[T]{data, source}, nil
	})
	r := v.(chainResult[T])
	return r.data, r.source
}

func walk[T any](o *Orchestrator, ctx context.Context, op string, fetch func(context.Context, provider.Provider) (T, error), empty func(T) bool) (T, string) {
	ctx, cancel := o.chainContext(ctx)
	defer cancel()

	var zero T
	log := o.log.With(zap.String("op", op), zap.String("chain_id", uuid.NewString()))

	avail := o.availableProviders()
	if len(avail) == 0 {
		log.Warn("no providers available")
		o.metrics.RecordExhausted(op)
		return zero, ""
	}

	for _, p := range avail {
		if ctx.Err() != nil {
			log.Warn("chain deadline reached", zap.Error(ctx.Err()))
			break
		}
		start := time.Now()
		data, err := fetch(ctx, p)
		ok := err == nil && !empty(data)
		o.observe(log, op, p.Name(), ok, err, time.Since(start))
		if ok {
			return data, p.Name()
		}
	}

	log.Warn("chain exhausted", zap.Int("providers_tried", len(avail)))
	o.metrics.RecordExhausted(op)
	return zero, ""
}

// availableProviders recomputes availability and exports it as a gauge.
func (o *Orchestrator) availableProviders() []provider.Provider {
	all := o.registry.All()
	avail := make([]provider.Provider, 0, len(all))
	for _, p := range all {
		ok := p.IsAvailable()
		o.metrics.SetProviderAvailable(p.Name(), ok)
		if ok {
			avail = append(avail, p)
		}
	}
	return avail
}

func (o *Orchestrator) observe(log *zap.Logger, op, name string, ok bool, err error, dur time.Duration) {
	outcome := metrics.OutcomeOK
	switch {
	case errors.Is(err, core.ErrNotSupported):
		outcome = metrics.OutcomeSkipped
		log.Debug("provider skipped", zap.String("provider", name))
	case err != nil:
		outcome = metrics.OutcomeError
		log.Warn("provider failed", zap.String("provider", name), zap.Duration("duration", dur), zap.Error(err))
	case !ok:
		outcome = metrics.OutcomeEmpty
		log.Info("provider returned no data", zap.String("provider", name), zap.Duration("duration", dur))
	default:
		log.Info("provider answered", zap.String("provider", name), zap.Duration("duration", dur))
	}
	o.metrics.RecordAttempt(op, name, outcome, dur.Seconds())
}

func (o *Orchestrator) chainContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.opts.TotalTimeout > 0 {
		return context.WithTimeout(ctx, o.opts.TotalTimeout)
	}
	return context.WithCancel(ctx)
}
