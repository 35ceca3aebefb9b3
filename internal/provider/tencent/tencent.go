package tencent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/qleaf/marketmux/internal/core"
	"github.com/qleaf/marketmux/internal/provider"
)

const klineURL = "https://web.ifzq.gtimg.cn/appstock/app/fqkline/get"

// Tencent implements the provider contract on top of the ifzq kline
// gateway. It is the only free source in the chain that serves
// forward/backward adjusted bars. The gateway is per-symbol, so the
// market-wide operations are not served.
type Tencent struct {
	cfg     provider.Config
	client  *http.Client
	baseURL string
}

// New creates a new Tencent provider.
func New(cfg provider.Config) *Tencent {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Tencent{
		cfg:     cfg,
		client:  &http.Client{Timeout: timeout},
		baseURL: klineURL,
	}
}

func (t *Tencent) Name() string      { return "tencent" }
func (t *Tencent) Priority() int     { return t.cfg.Priority }
func (t *Tencent) IsAvailable() bool { return t.cfg.Enabled }

func (t *Tencent) FetchStockList(ctx context.Context) ([]core.StockBasic, error) {
	return nil, core.ErrNotSupported
}

func (t *Tencent) FetchDailyFundamentals(ctx context.Context, tradeDate string) (map[string]core.Fundamentals, error) {
	return nil, core.ErrNotSupported
}

func (t *Tencent) FetchRealtimeQuotes(ctx context.Context) (map[string]core.Quote, error) {
	return nil, core.ErrNotSupported
}

func (t *Tencent) FetchNews(ctx context.Context, code string, daysBack, limit int, includeAnnouncements bool) ([]core.NewsItem, error) {
	return nil, core.ErrNotSupported
}

// FetchKline fetches OHLCV bars, oldest first. Rows arrive as
// [date, open, close, high, low, volume] with volume in lots.
func (t *Tencent) FetchKline(ctx context.Context, code, period string, limit int, adjust string) ([]core.KlineBar, error) {
	word, err := periodWord(period)
	if err != nil {
		return nil, err
	}
	fq, err := fqParam(adjust)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 120
	}

	symbol := provider.LowerPrefixed(code)
	q := url.Values{}
	q.Set("param", fmt.Sprintf("%s,%s,,,%d,%s", symbol, word, limit, fq))

	body, err := t.get(ctx, t.baseURL+"?"+q.Encode())
	if err != nil {
		return nil, err
	}

	var env struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
		Data map[string]map[string]json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, core.WrapError(core.ErrProviderCall, core.WrapError(core.ErrDecodeFailed, err))
	}
	if env.Code != 0 {
		return nil, core.WrapError(core.ErrProviderCall, fmt.Errorf("code %d: %s", env.Code, env.Msg))
	}

	series, ok := env.Data[symbol]
	if !ok {
		return nil, core.WrapError(core.ErrNoData, fmt.Errorf("no series for %s", symbol))
	}
	// Adjusted series are keyed "qfqday"; the gateway sometimes falls
	// back to the plain key when no adjusted data exists.
	raw, ok := series[fq+word]
	if !ok {
		raw, ok = series[word]
	}
	if !ok {
		return nil, core.WrapError(core.ErrNoData, fmt.Errorf("no %s bars for %s", word, symbol))
	}

	var rows [][]any
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, core.WrapError(core.ErrProviderCall, core.WrapError(core.ErrDecodeFailed, err))
	}

	bars := make([]core.KlineBar, 0, len(rows))
	for _, row := range rows {
		if len(row) < 6 {
			continue
		}
		day, _ := row[0].(string)
		ts, perr := time.ParseInLocation("2006-01-02", day, time.Local)
		if perr != nil {
			continue
		}
		bars = append(bars, core.KlineBar{
			Time:   ts,
			Open:   cell(row[1]),
			Close:  cell(row[2]),
			High:   cell(row[3]),
			Low:    cell(row[4]),
			Volume: cell(row[5]) * 100,
		})
	}
	if len(bars) > limit {
		bars = bars[len(bars)-limit:]
	}
	return bars, nil
}

// LatestTradingDay probes backward using the SSE index daily bars.
func (t *Tencent) LatestTradingDay(ctx context.Context) (string, error) {
	window := t.cfg.ProbeWindow
	if window <= 0 {
		window = provider.DefaultProbeWindow
	}

	traded := make(map[string]bool, window)
	bars, err := t.FetchKline(ctx, "sh000001", provider.PeriodDaily, window, provider.AdjustNone)
	if err == nil {
		for _, b := range bars {
			traded[b.Time.Format(core.TradeDateLayout)] = true
		}
	}

	day, _ := provider.ProbeLatestTradingDay(ctx, provider.MarketNow(), window, func(ctx context.Context, date string) bool {
		return traded[date]
	})
	return day, nil
}

func (t *Tencent) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, core.WrapError(core.ErrProviderCall, err)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, core.WrapError(core.ErrProviderCall, core.WrapError(core.ErrUpstreamTimeout, err))
		}
		return nil, core.WrapError(core.ErrProviderCall, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, core.WrapError(core.ErrProviderCall, fmt.Errorf("status %d", resp.StatusCode))
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, core.WrapError(core.ErrProviderCall, err)
	}
	return body, nil
}

// cell converts a kline cell, which arrives as either a quoted string
// or a bare number depending on the column and series.
func cell(v any) float64 {
	switch x := v.(type) {
	case string:
		f, _ := strconv.ParseFloat(x, 64)
		return f
	case float64:
		return x
	}
	return 0
}

func periodWord(period string) (string, error) {
	switch period {
	case provider.PeriodDaily:
		return "day", nil
	case provider.PeriodWeekly:
		return "week", nil
	case provider.PeriodMonthly:
		return "month", nil
	}
	return "", core.ErrNotSupported
}

func fqParam(adjust string) (string, error) {
	switch adjust {
	case provider.AdjustNone:
		return "", nil
	case provider.AdjustQFQ:
		return "qfq", nil
	case provider.AdjustHFQ:
		return "hfq", nil
	}
	return "", core.WrapError(core.ErrNotSupported, fmt.Errorf("adjust %q", adjust))
}
