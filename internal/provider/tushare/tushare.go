package tushare

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/qleaf/marketmux/internal/core"
	"github.com/qleaf/marketmux/internal/provider"
)

const defaultBaseURL = "http://api.tushare.pro"

// Tushare implements the provider contract on top of the Tushare Pro
// HTTP API. All endpoints share one POST envelope carrying the token.
// Realtime quotes and news are not part of the free API surface and
// report ErrNotSupported so the chain falls through to other providers.
type Tushare struct {
	cfg     provider.Config
	baseURL string
	client  *http.Client
}

// New creates a new Tushare provider.
func New(cfg provider.Config) *Tushare {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Tushare{
		cfg:     cfg,
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (t *Tushare) Name() string  { return "tushare" }
func (t *Tushare) Priority() int { return t.cfg.Priority }

// IsAvailable is true when the provider is enabled and a token is
// configured. No network probe: availability checks must stay cheap.
func (t *Tushare) IsAvailable() bool {
	return t.cfg.Enabled && t.cfg.Token != ""
}

// FetchStockList returns all listed A-share stocks.
func (t *Tushare) FetchStockList(ctx context.Context) ([]core.StockBasic, error) {
	rs, err := t.call(ctx, "stock_basic", map[string]any{"list_status": "L"},
		"ts_code,name,area,industry,market,list_date")
	if err != nil {
		return nil, err
	}

	list := make([]core.StockBasic, 0, rs.len())
	for i := 0; i < rs.len(); i++ {
		code := rs.str(i, "ts_code")
		if code == "" {
			continue
		}
		list = append(list, core.StockBasic{
			Code:     provider.NormalizeCode(code),
			Name:     rs.str(i, "name"),
			Area:     rs.str(i, "area"),
			Industry: rs.str(i, "industry"),
			Market:   rs.str(i, "market"),
			ListDate: rs.str(i, "list_date"),
		})
	}
	return list, nil
}

// FetchDailyFundamentals returns the daily_basic valuation snapshot for
// one trade date, keyed by normalized code. Fields the API reports as
// null stay absent.
func (t *Tushare) FetchDailyFundamentals(ctx context.Context, tradeDate string) (map[string]core.Fundamentals, error) {
	rs, err := t.call(ctx, "daily_basic", map[string]any{"trade_date": tradeDate},
		"ts_code,trade_date,turnover_rate,volume_ratio,pe,pe_ttm,pb,total_mv,circ_mv")
	if err != nil {
		return nil, err
	}

	out := make(map[string]core.Fundamentals, rs.len())
	for i := 0; i < rs.len(); i++ {
		code := provider.NormalizeCode(rs.str(i, "ts_code"))
		if code == "" {
			continue
		}
		f := core.Fundamentals{
			Code:         code,
			TradeDate:    tradeDate,
			TurnoverRate: rs.num(i, "turnover_rate"),
			VolumeRatio:  rs.num(i, "volume_ratio"),
			PE:           rs.num(i, "pe"),
			PETTM:        rs.num(i, "pe_ttm"),
			PB:           rs.num(i, "pb"),
			// Market values arrive in units of 10k CNY; normalize to CNY
			// so they are comparable across providers.
			TotalMV: scale(rs.num(i, "total_mv"), 1e4),
			CircMV:  scale(rs.num(i, "circ_mv"), 1e4),
		}
		out[code] = f
	}
	return out, nil
}

// FetchRealtimeQuotes is not served by the Tushare free API.
func (t *Tushare) FetchRealtimeQuotes(ctx context.Context) (map[string]core.Quote, error) {
	return nil, core.ErrNotSupported
}

// FetchKline returns unadjusted OHLCV bars, oldest first.
func (t *Tushare) FetchKline(ctx context.Context, code, period string, limit int, adjust string) ([]core.KlineBar, error) {
	if adjust != provider.AdjustNone {
		// Adjusted bars need the paid pro_bar endpoint.
		return nil, core.ErrNotSupported
	}

	var apiName string
	switch period {
	case provider.PeriodDaily:
		apiName = "daily"
	case provider.PeriodWeekly:
		apiName = "weekly"
	case provider.PeriodMonthly:
		apiName = "monthly"
	default:
		return nil, core.ErrNotSupported
	}

	rs, err := t.call(ctx, apiName, map[string]any{"ts_code": provider.NormalizeCode(code)},
		"trade_date,open,high,low,close,vol,amount")
	if err != nil {
		return nil, err
	}

	n := rs.len()
	if limit > 0 && n > limit {
		n = limit
	}

	// Rows arrive newest first; emit oldest first.
	bars := make([]core.KlineBar, 0, n)
	for i := n - 1; i >= 0; i-- {
		ts, err := time.ParseInLocation(core.TradeDateLayout, rs.str(i, "trade_date"), time.Local)
		if err != nil {
			continue
		}
		bars = append(bars, core.KlineBar{
			Time:   ts,
			Open:   deref(rs.num(i, "open")),
			High:   deref(rs.num(i, "high")),
			Low:    deref(rs.num(i, "low")),
			Close:  deref(rs.num(i, "close")),
			Volume: deref(rs.num(i, "vol")) * 100,    // lots -> shares
			Amount: deref(rs.num(i, "amount")) * 1e3, // thousand CNY -> CNY
		})
	}
	return bars, nil
}

// FetchNews is not served by the Tushare free API.
func (t *Tushare) FetchNews(ctx context.Context, code string, daysBack, limit int, includeAnnouncements bool) ([]core.NewsItem, error) {
	return nil, core.ErrNotSupported
}

// LatestTradingDay asks the exchange calendar for the newest open day.
// When the calendar call fails it degrades to the shared backward probe
// against daily_basic.
func (t *Tushare) LatestTradingDay(ctx context.Context) (string, error) {
	now := provider.MarketNow()
	window := t.cfg.ProbeWindow
	if window <= 0 {
		window = provider.DefaultProbeWindow
	}

	start := now.AddDate(0, 0, -(window - 1)).Format(core.TradeDateLayout)
	end := now.Format(core.TradeDateLayout)

	rs, err := t.call(ctx, "trade_cal", map[string]any{
		"exchange":   "SSE",
		"start_date": start,
		"end_date":   end,
		"is_open":    "1",
	}, "cal_date")
	if err == nil {
		latest := ""
		for i := 0; i < rs.len(); i++ {
			if d := rs.str(i, "cal_date"); d > latest && d <= end {
				latest = d
			}
		}
		if latest != "" {
			return latest, nil
		}
	}

	day, _ := provider.ProbeLatestTradingDay(ctx, now, window, func(ctx context.Context, date string) bool {
		probe, perr := t.call(ctx, "daily_basic", map[string]any{"trade_date": date}, "ts_code")
		return perr == nil && probe.len() > 0
	})
	return day, nil
}

type apiRequest struct {
	APIName string         `json:"api_name"`
	Token   string         `json:"token"`
	Params  map[string]any `json:"params,omitempty"`
	Fields  string         `json:"fields,omitempty"`
}

type apiResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data *struct {
		Fields []string `json:"fields"`
		Items  [][]any  `json:"items"`
	} `json:"data"`
}

// resultSet is a column-indexed view over one API response.
type resultSet struct {
	idx   map[string]int
	items [][]any
}

func (rs *resultSet) len() int { return len(rs.items) }

func (rs *resultSet) str(row int, field string) string {
	col, ok := rs.idx[field]
	if !ok || col >= len(rs.items[row]) {
		return ""
	}
	s, _ := rs.items[row][col].(string)
	return s
}

// num returns the numeric cell as an optional value; null and
// non-numeric cells are absent, never zero.
func (rs *resultSet) num(row int, field string) *float64 {
	col, ok := rs.idx[field]
	if !ok || col >= len(rs.items[row]) {
		return nil
	}
	if v, ok := rs.items[row][col].(float64); ok {
		return core.Float64(v)
	}
	return nil
}

func (t *Tushare) call(ctx context.Context, apiName string, params map[string]any, fields string) (*resultSet, error) {
	body, err := json.Marshal(apiRequest{
		APIName: apiName,
		Token:   t.cfg.Token,
		Params:  params,
		Fields:  fields,
	})
	if err != nil {
		return nil, core.WrapError(core.ErrProviderCall, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, core.WrapError(core.ErrProviderCall, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, core.WrapError(core.ErrProviderCall, core.WrapError(core.ErrUpstreamTimeout, err))
		}
		return nil, core.WrapError(core.ErrProviderCall, fmt.Errorf("%s: %w", apiName, err))
	}
	defer resp.Body.Close()

	var result apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, core.WrapError(core.ErrProviderCall, core.WrapError(core.ErrDecodeFailed, err))
	}

	if result.Code != 0 {
		cause := fmt.Errorf("%s: api error: %s", apiName, result.Msg)
		if strings.Contains(result.Msg, "token") || strings.Contains(result.Msg, "权限") {
			return nil, core.WrapError(core.ErrProviderCall, core.WrapError(core.ErrAuthFailed, cause))
		}
		return nil, core.WrapError(core.ErrProviderCall, cause)
	}

	rs := &resultSet{idx: make(map[string]int)}
	if result.Data != nil {
		for i, f := range result.Data.Fields {
			rs.idx[f] = i
		}
		rs.items = result.Data.Items
	}
	return rs, nil
}

func scale(v *float64, factor float64) *float64 {
	if v == nil {
		return nil
	}
	return core.Float64(*v * factor)
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
