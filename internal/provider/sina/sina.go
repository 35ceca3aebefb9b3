package sina

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/qleaf/marketmux/internal/core"
	"github.com/qleaf/marketmux/internal/provider"
)

const (
	quotesURL = "http://vip.stock.finance.sina.com.cn/quotes_service/api/json_v2.php/Market_Center.getHQNodeData"
	klineURL  = "https://quotes.sina.cn/cn/api/json_v2.php/CN_MarketDataService.getKLineData"

	pageSize = 100
	maxPages = 100
)

// Sina implements the provider contract on top of the free Sina quote
// endpoints. The market-center node feed carries valuation columns, so
// Sina also answers current-session fundamentals. Stock list and news
// are not served.
type Sina struct {
	cfg     provider.Config
	client  *http.Client
	baseURL struct {
		quotes, kline string
	}
}

// New creates a new Sina provider.
func New(cfg provider.Config) *Sina {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	s := &Sina{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
	s.baseURL.quotes = quotesURL
	s.baseURL.kline = klineURL
	return s
}

func (s *Sina) Name() string      { return "sina" }
func (s *Sina) Priority() int     { return s.cfg.Priority }
func (s *Sina) IsAvailable() bool { return s.cfg.Enabled }

// FetchStockList is not served; the node feed has no listing metadata.
func (s *Sina) FetchStockList(ctx context.Context) ([]core.StockBasic, error) {
	return nil, core.ErrNotSupported
}

// FetchDailyFundamentals maps the node feed valuation columns onto
// snapshots. Like every spot-backed provider it only answers for the
// current session. Sina publishes 0 for figures it does not have, so
// zeros in valuation columns are treated as absent.
func (s *Sina) FetchDailyFundamentals(ctx context.Context, tradeDate string) (map[string]core.Fundamentals, error) {
	latest, err := s.LatestTradingDay(ctx)
	if err != nil {
		return nil, err
	}
	if tradeDate != latest {
		return nil, core.WrapError(core.ErrNoData,
			fmt.Errorf("node feed covers %s, not %s", latest, tradeDate))
	}

	rows, err := s.fetchNodeFeed(ctx)
	if err != nil {
		return nil, err
	}

	out := make(map[string]core.Fundamentals, len(rows))
	for _, r := range rows {
		code := provider.NormalizeCode(r.Symbol)
		if code == "" {
			continue
		}
		out[code] = core.Fundamentals{
			Code:      code,
			TradeDate: tradeDate,
			PE:        nonZero(r.PER.ptr()),
			PB:        nonZero(r.PB.ptr()),
			// Market caps arrive in units of 10k CNY.
			TotalMV:      scale(nonZero(r.MktCap.ptr()), 1e4),
			CircMV:       scale(nonZero(r.NMC.ptr()), 1e4),
			TurnoverRate: nonZero(r.TurnoverRatio.ptr()),
		}
	}
	return out, nil
}

// FetchRealtimeQuotes returns the whole-market node feed.
func (s *Sina) FetchRealtimeQuotes(ctx context.Context) (map[string]core.Quote, error) {
	rows, err := s.fetchNodeFeed(ctx)
	if err != nil {
		return nil, err
	}

	out := make(map[string]core.Quote, len(rows))
	for _, r := range rows {
		code := provider.NormalizeCode(r.Symbol)
		if code == "" {
			continue
		}
		out[code] = core.Quote{
			Code:      code,
			Name:      r.Name,
			Source:    s.Name(),
			Close:     r.Trade.ptr(),
			PctChange: r.ChangePercent.ptr(),
			Amount:    r.Amount.ptr(),
			Open:      r.Open.ptr(),
			High:      r.High.ptr(),
			Low:       r.Low.ptr(),
			Volume:    r.Volume.ptr(),
			PreClose:  r.Settlement.ptr(),
		}
	}
	return out, nil
}

// FetchKline fetches unadjusted OHLCV bars, oldest first.
func (s *Sina) FetchKline(ctx context.Context, code, period string, limit int, adjust string) ([]core.KlineBar, error) {
	if adjust != provider.AdjustNone {
		return nil, core.ErrNotSupported
	}
	scaleMin, err := scaleOf(period)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 120
	}

	q := url.Values{}
	q.Set("symbol", provider.LowerPrefixed(code))
	q.Set("scale", scaleMin)
	q.Set("ma", "no")
	q.Set("datalen", strconv.Itoa(limit))

	body, err := s.get(ctx, s.baseURL.kline+"?"+q.Encode())
	if err != nil {
		return nil, err
	}

	var rows []struct {
		Day    string `json:"day"`
		Open   string `json:"open"`
		High   string `json:"high"`
		Low    string `json:"low"`
		Close  string `json:"close"`
		Volume string `json:"volume"`
	}
	if err := json.Unmarshal(stripJSONP(body), &rows); err != nil {
		return nil, core.WrapError(core.ErrProviderCall, core.WrapError(core.ErrDecodeFailed, err))
	}

	bars := make([]core.KlineBar, 0, len(rows))
	for _, r := range rows {
		ts, perr := time.ParseInLocation("2006-01-02", r.Day, time.Local)
		if perr != nil {
			// Intraday scales carry a clock part.
			ts, perr = time.ParseInLocation("2006-01-02 15:04:05", r.Day, time.Local)
			if perr != nil {
				continue
			}
		}
		open, _ := strconv.ParseFloat(r.Open, 64)
		high, _ := strconv.ParseFloat(r.High, 64)
		low, _ := strconv.ParseFloat(r.Low, 64)
		closeP, _ := strconv.ParseFloat(r.Close, 64)
		volume, _ := strconv.ParseFloat(r.Volume, 64)

		bars = append(bars, core.KlineBar{
			Time:   ts,
			Open:   open,
			High:   high,
			Low:    low,
			Close:  closeP,
			Volume: volume,
		})
	}
	if len(bars) > limit {
		bars = bars[len(bars)-limit:]
	}
	return bars, nil
}

// FetchNews is not served by the JSON endpoints.
func (s *Sina) FetchNews(ctx context.Context, code string, daysBack, limit int, includeAnnouncements bool) ([]core.NewsItem, error) {
	return nil, core.ErrNotSupported
}

// LatestTradingDay probes backward using the SSE index daily bars.
func (s *Sina) LatestTradingDay(ctx context.Context) (string, error) {
	window := s.cfg.ProbeWindow
	if window <= 0 {
		window = provider.DefaultProbeWindow
	}

	traded := make(map[string]bool, window)
	bars, err := s.FetchKline(ctx, "sh000001", provider.PeriodDaily, window, provider.AdjustNone)
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

// nodeRow is one row of the market-center node feed.
type nodeRow struct {
	Symbol        string     `json:"symbol"`
	Name          string     `json:"name"`
	Trade         looseFloat `json:"trade"`
	ChangePercent looseFloat `json:"changepercent"`
	Open          looseFloat `json:"open"`
	High          looseFloat `json:"high"`
	Low           looseFloat `json:"low"`
	Volume        looseFloat `json:"volume"`
	Amount        looseFloat `json:"amount"`
	Settlement    looseFloat `json:"settlement"`
	PER           looseFloat `json:"per"`
	PB            looseFloat `json:"pb"`
	MktCap        looseFloat `json:"mktcap"`
	NMC           looseFloat `json:"nmc"`
	TurnoverRatio looseFloat `json:"turnoverratio"`
}

func (s *Sina) fetchNodeFeed(ctx context.Context) ([]nodeRow, error) {
	var all []nodeRow
	for page := 1; page <= maxPages; page++ {
		q := url.Values{}
		q.Set("page", strconv.Itoa(page))
		q.Set("num", strconv.Itoa(pageSize))
		q.Set("sort", "symbol")
		q.Set("asc", "1")
		q.Set("node", "hs_a")

		body, err := s.get(ctx, s.baseURL.quotes+"?"+q.Encode())
		if err != nil {
			return nil, err
		}

		trimmed := strings.TrimSpace(string(body))
		if trimmed == "" || trimmed == "null" {
			break
		}

		var rows []nodeRow
		if err := json.Unmarshal(quoteKeys([]byte(trimmed)), &rows); err != nil {
			return nil, core.WrapError(core.ErrProviderCall, core.WrapError(core.ErrDecodeFailed, err))
		}
		if len(rows) == 0 {
			break
		}
		all = append(all, rows...)
		if len(rows) < pageSize {
			break
		}
	}

	if len(all) == 0 {
		return nil, core.WrapError(core.ErrNoData, fmt.Errorf("empty node feed"))
	}
	return all, nil
}

func (s *Sina) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, core.WrapError(core.ErrProviderCall, err)
	}
	req.Header.Set("Referer", "https://finance.sina.com.cn")

	resp, err := s.client.Do(req)
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

// bareKey matches the unquoted object keys Sina emits; the node feed is
// JavaScript, not strict JSON.
var bareKey = regexp.MustCompile(`([,{\[])\s*([A-Za-z_][A-Za-z0-9_]*)\s*:`)

func quoteKeys(b []byte) []byte {
	return bareKey.ReplaceAll(b, []byte(`$1"$2":`))
}

// stripJSONP unwraps an optional callback(...) envelope.
func stripJSONP(b []byte) []byte {
	s := strings.TrimSpace(string(b))
	open := strings.Index(s, "(")
	close := strings.LastIndex(s, ")")
	if open >= 0 && close > open && !strings.HasPrefix(s, "[") && !strings.HasPrefix(s, "{") {
		return []byte(s[open+1 : close])
	}
	return []byte(s)
}

func scaleOf(period string) (string, error) {
	switch period {
	case provider.PeriodDaily:
		return "240", nil
	case provider.PeriodWeekly:
		return "1680", nil
	}
	return "", core.ErrNotSupported
}

func nonZero(v *float64) *float64 {
	if v == nil || *v == 0 {
		return nil
	}
	return v
}

func scale(v *float64, factor float64) *float64 {
	if v == nil {
		return nil
	}
	return core.Float64(*v * factor)
}
