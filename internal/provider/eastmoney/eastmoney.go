package eastmoney

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/qleaf/marketmux/internal/core"
	"github.com/qleaf/marketmux/internal/provider"
)

const (
	listURL     = "https://push2.eastmoney.com/api/qt/clist/get"
	historyURL  = "https://push2his.eastmoney.com/api/qt/stock/kline/get"
	newsURL     = "https://np-listapi.eastmoney.com/comm/web/getListInfo"
	announceURL = "https://np-anotice-stock.eastmoney.com/api/security/ann"

	// fs filter: SH main + STAR, SZ main + ChiNext A-shares
	stockFilter = "m:0+t:6,m:0+t:80,m:1+t:2,m:1+t:23"

	spotFields = "f2,f3,f5,f6,f8,f9,f10,f12,f13,f14,f15,f16,f17,f18,f20,f21,f23,f26,f100,f115"

	pageSize = 1000

	// One orchestrator call for fundamentals, quotes and list may hit the
	// same whole-market snapshot three times in quick succession.
	spotTTL = 3 * time.Second
)

// Eastmoney implements the provider contract on top of the free
// Eastmoney push2 endpoints. The whole-market spot snapshot backs the
// stock list, realtime quotes and current-day fundamentals.
type Eastmoney struct {
	cfg     provider.Config
	client  *http.Client
	baseURL struct {
		list, history, news, announce string
	}
	spot *expirable.LRU[string, []spotRow]
}

// New creates a new Eastmoney provider.
func New(cfg provider.Config) *Eastmoney {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	e := &Eastmoney{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		spot:   expirable.NewLRU[string, []spotRow](2, nil, spotTTL),
	}
	e.baseURL.list = listURL
	e.baseURL.history = historyURL
	e.baseURL.news = newsURL
	e.baseURL.announce = announceURL
	return e
}

func (e *Eastmoney) Name() string  { return "eastmoney" }
func (e *Eastmoney) Priority() int { return e.cfg.Priority }

// IsAvailable: the push2 endpoints are anonymous, so availability is
// purely the configuration switch.
func (e *Eastmoney) IsAvailable() bool { return e.cfg.Enabled }

// FetchStockList returns all listed A-share stocks from the spot snapshot.
func (e *Eastmoney) FetchStockList(ctx context.Context) ([]core.StockBasic, error) {
	rows, err := e.fetchSpot(ctx)
	if err != nil {
		return nil, err
	}

	list := make([]core.StockBasic, 0, len(rows))
	for _, r := range rows {
		code := r.normCode()
		if code == "" {
			continue
		}
		list = append(list, core.StockBasic{
			Code:     code,
			Name:     r.Name,
			Industry: r.Industry,
			Market:   marketOf(code),
			ListDate: r.listDate(),
		})
	}
	return list, nil
}

// FetchDailyFundamentals maps the spot snapshot onto valuation records.
// The snapshot only describes the current session, so any other trade
// date is answered with ErrNoData and the chain falls through.
func (e *Eastmoney) FetchDailyFundamentals(ctx context.Context, tradeDate string) (map[string]core.Fundamentals, error) {
	latest, err := e.LatestTradingDay(ctx)
	if err != nil {
		return nil, err
	}
	if tradeDate != latest {
		return nil, core.WrapError(core.ErrNoData,
			fmt.Errorf("spot snapshot covers %s, not %s", latest, tradeDate))
	}

	rows, err := e.fetchSpot(ctx)
	if err != nil {
		return nil, err
	}

	out := make(map[string]core.Fundamentals, len(rows))
	for _, r := range rows {
		code := r.normCode()
		if code == "" {
			continue
		}
		out[code] = core.Fundamentals{
			Code:         code,
			TradeDate:    tradeDate,
			TotalMV:      r.TotalMV.ptr(),
			CircMV:       r.CircMV.ptr(),
			PE:           r.PE.ptr(),
			PETTM:        r.PETTM.ptr(),
			PB:           r.PB.ptr(),
			TurnoverRate: r.TurnoverRate.ptr(),
			VolumeRatio:  r.VolumeRatio.ptr(),
		}
	}
	return out, nil
}

// FetchRealtimeQuotes returns the whole-market spot snapshot.
func (e *Eastmoney) FetchRealtimeQuotes(ctx context.Context) (map[string]core.Quote, error) {
	rows, err := e.fetchSpot(ctx)
	if err != nil {
		return nil, err
	}

	out := make(map[string]core.Quote, len(rows))
	for _, r := range rows {
		code := r.normCode()
		if code == "" {
			continue
		}
		out[code] = core.Quote{
			Code:      code,
			Name:      r.Name,
			Source:    e.Name(),
			Close:     r.Close.ptr(),
			PctChange: r.PctChange.ptr(),
			Amount:    r.Amount.ptr(),
			Open:      r.Open.ptr(),
			High:      r.High.ptr(),
			Low:       r.Low.ptr(),
			Volume:    scale(r.Volume.ptr(), 100), // lots -> shares
			PreClose:  r.PreClose.ptr(),
		}
	}
	return out, nil
}

// FetchKline fetches OHLCV bars, oldest first, length capped by limit.
func (e *Eastmoney) FetchKline(ctx context.Context, code, period string, limit int, adjust string) ([]core.KlineBar, error) {
	klt, err := kltOf(period)
	if err != nil {
		return nil, err
	}
	fqt, err := fqtOf(adjust)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 120
	}

	q := url.Values{}
	q.Set("secid", secidOf(code))
	q.Set("klt", klt)
	q.Set("fqt", fqt)
	q.Set("lmt", strconv.Itoa(limit))
	q.Set("end", "20500101")
	q.Set("fields1", "f1,f2,f3,f4,f5,f6")
	q.Set("fields2", "f51,f52,f53,f54,f55,f56,f57")

	var result struct {
		Data *struct {
			Klines []string `json:"klines"`
		} `json:"data"`
	}
	if err := e.getJSON(ctx, e.baseURL.history+"?"+q.Encode(), &result); err != nil {
		return nil, err
	}
	if result.Data == nil {
		return nil, core.WrapError(core.ErrNoData, fmt.Errorf("no kline data for %s", code))
	}

	bars := make([]core.KlineBar, 0, len(result.Data.Klines))
	for _, line := range result.Data.Klines {
		// date,open,close,high,low,volume,amount
		parts := strings.Split(line, ",")
		if len(parts) < 7 {
			continue
		}
		ts, perr := time.ParseInLocation("2006-01-02", parts[0], time.Local)
		if perr != nil {
			continue
		}
		open, _ := strconv.ParseFloat(parts[1], 64)
		closeP, _ := strconv.ParseFloat(parts[2], 64)
		high, _ := strconv.ParseFloat(parts[3], 64)
		low, _ := strconv.ParseFloat(parts[4], 64)
		volume, _ := strconv.ParseFloat(parts[5], 64)
		amount, _ := strconv.ParseFloat(parts[6], 64)

		bars = append(bars, core.KlineBar{
			Time:   ts,
			Open:   open,
			High:   high,
			Low:    low,
			Close:  closeP,
			Volume: volume * 100, // lots -> shares
			Amount: amount,
		})
	}
	if len(bars) > limit {
		bars = bars[len(bars)-limit:]
	}
	return bars, nil
}

// FetchNews returns recent press items for a stock, optionally merged
// with exchange announcements, newest first.
func (e *Eastmoney) FetchNews(ctx context.Context, code string, daysBack, limit int, includeAnnouncements bool) ([]core.NewsItem, error) {
	if limit <= 0 {
		limit = 20
	}
	if daysBack <= 0 {
		daysBack = 7
	}
	cutoff := provider.MarketNow().AddDate(0, 0, -daysBack)

	items, err := e.fetchPress(ctx, code, limit)
	if err != nil {
		return nil, err
	}

	if includeAnnouncements {
		anns, aerr := e.fetchAnnouncements(ctx, code, limit)
		if aerr == nil {
			items = append(items, anns...)
		}
		// Announcement failures degrade to press-only output.
	}

	out := make([]core.NewsItem, 0, len(items))
	for _, it := range items {
		if it.Time.Before(cutoff) {
			continue
		}
		out = append(out, it)
	}
	sortNewsDesc(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// LatestTradingDay probes backward using the SSE index daily bars.
func (e *Eastmoney) LatestTradingDay(ctx context.Context) (string, error) {
	window := e.cfg.ProbeWindow
	if window <= 0 {
		window = provider.DefaultProbeWindow
	}

	q := url.Values{}
	q.Set("secid", "1.000001") // SSE composite index
	q.Set("klt", "101")
	q.Set("fqt", "0")
	q.Set("lmt", strconv.Itoa(window))
	q.Set("end", "20500101")
	q.Set("fields1", "f1,f2,f3,f4,f5,f6")
	q.Set("fields2", "f51,f52,f53,f54,f55,f56,f57")

	traded := make(map[string]bool, window)
	var result struct {
		Data *struct {
			Klines []string `json:"klines"`
		} `json:"data"`
	}
	if err := e.getJSON(ctx, e.baseURL.history+"?"+q.Encode(), &result); err == nil && result.Data != nil {
		for _, line := range result.Data.Klines {
			if i := strings.Index(line, ","); i > 0 {
				if d, perr := time.Parse("2006-01-02", line[:i]); perr == nil {
					traded[d.Format(core.TradeDateLayout)] = true
				}
			}
		}
	}

	day, _ := provider.ProbeLatestTradingDay(ctx, provider.MarketNow(), window, func(ctx context.Context, date string) bool {
		return traded[date]
	})
	return day, nil
}

// spotRow is one clist row. The API reports unavailable numbers as the
// string "-", which optFloat treats as absent.
type spotRow struct {
	Code         string   `json:"f12"`
	MarketID     int      `json:"f13"`
	Name         string   `json:"f14"`
	Industry     string   `json:"f100"`
	ListDate     optFloat `json:"f26"`
	Close        optFloat `json:"f2"`
	PctChange    optFloat `json:"f3"`
	Volume       optFloat `json:"f5"`
	Amount       optFloat `json:"f6"`
	TurnoverRate optFloat `json:"f8"`
	PE           optFloat `json:"f9"`
	VolumeRatio  optFloat `json:"f10"`
	High         optFloat `json:"f15"`
	Low          optFloat `json:"f16"`
	Open         optFloat `json:"f17"`
	PreClose     optFloat `json:"f18"`
	TotalMV      optFloat `json:"f20"`
	CircMV       optFloat `json:"f21"`
	PB           optFloat `json:"f23"`
	PETTM        optFloat `json:"f115"`
}

func (r *spotRow) normCode() string {
	if r.Code == "" {
		return ""
	}
	return provider.NormalizeCode(fmt.Sprintf("%d.%s", r.MarketID, r.Code))
}

func (r *spotRow) listDate() string {
	if !r.ListDate.ok {
		return ""
	}
	return strconv.Itoa(int(r.ListDate.v))
}

func (e *Eastmoney) fetchSpot(ctx context.Context) ([]spotRow, error) {
	if rows, ok := e.spot.Get("spot"); ok {
		return rows, nil
	}

	var all []spotRow
	for pn := 1; ; pn++ {
		q := url.Values{}
		q.Set("pn", strconv.Itoa(pn))
		q.Set("pz", strconv.Itoa(pageSize))
		q.Set("po", "1")
		q.Set("np", "1")
		q.Set("fltt", "2")
		q.Set("invt", "2")
		q.Set("fid", "f12")
		q.Set("fs", stockFilter)
		q.Set("fields", spotFields)

		var result struct {
			Data *struct {
				Total int       `json:"total"`
				Diff  []spotRow `json:"diff"`
			} `json:"data"`
		}
		if err := e.getJSON(ctx, e.baseURL.list+"?"+q.Encode(), &result); err != nil {
			return nil, err
		}
		if result.Data == nil || len(result.Data.Diff) == 0 {
			break
		}
		all = append(all, result.Data.Diff...)
		if len(all) >= result.Data.Total || len(result.Data.Diff) < pageSize {
			break
		}
	}

	if len(all) == 0 {
		return nil, core.WrapError(core.ErrNoData, fmt.Errorf("empty spot snapshot"))
	}
	e.spot.Add("spot", all)
	return all, nil
}

func (e *Eastmoney) fetchPress(ctx context.Context, code string, limit int) ([]core.NewsItem, error) {
	q := url.Values{}
	q.Set("client", "web")
	q.Set("type", "1")
	q.Set("mTypeAndCode", secidOf(code))
	q.Set("pageSize", strconv.Itoa(limit))

	var result struct {
		Data *struct {
			List []struct {
				Title      string `json:"Art_Title"`
				CreateTime string `json:"Art_CreateTime"`
				URL        string `json:"Art_Url"`
				Media      string `json:"Art_Media_Name"`
			} `json:"list"`
		} `json:"data"`
	}
	if err := e.getJSON(ctx, e.baseURL.news+"?"+q.Encode(), &result); err != nil {
		return nil, err
	}
	if result.Data == nil {
		return nil, core.WrapError(core.ErrNoData, fmt.Errorf("no news for %s", code))
	}

	items := make([]core.NewsItem, 0, len(result.Data.List))
	for _, n := range result.Data.List {
		ts, perr := time.ParseInLocation("2006-01-02 15:04:05", n.CreateTime, time.Local)
		if perr != nil {
			continue
		}
		items = append(items, core.NewsItem{
			Title:  n.Title,
			Source: n.Media,
			Time:   ts,
			URL:    n.URL,
			Kind:   core.NewsKindNews,
		})
	}
	return items, nil
}

func (e *Eastmoney) fetchAnnouncements(ctx context.Context, code string, limit int) ([]core.NewsItem, error) {
	q := url.Values{}
	q.Set("sr", "-1")
	q.Set("page_size", strconv.Itoa(limit))
	q.Set("page_index", "1")
	q.Set("ann_type", "A")
	q.Set("stock_list", provider.BareCode(provider.NormalizeCode(code)))

	var result struct {
		Data *struct {
			List []struct {
				Title      string `json:"title"`
				NoticeDate string `json:"notice_date"`
				ArtCode    string `json:"art_code"`
			} `json:"list"`
		} `json:"data"`
	}
	if err := e.getJSON(ctx, e.baseURL.announce+"?"+q.Encode(), &result); err != nil {
		return nil, err
	}
	if result.Data == nil {
		return nil, core.WrapError(core.ErrNoData, fmt.Errorf("no announcements for %s", code))
	}

	items := make([]core.NewsItem, 0, len(result.Data.List))
	for _, a := range result.Data.List {
		ts, perr := time.ParseInLocation("2006-01-02 15:04:05", a.NoticeDate, time.Local)
		if perr != nil {
			continue
		}
		items = append(items, core.NewsItem{
			Title:  a.Title,
			Source: "eastmoney",
			Time:   ts,
			URL:    "https://data.eastmoney.com/notices/detail/" + provider.BareCode(provider.NormalizeCode(code)) + "/" + a.ArtCode + ".html",
			Kind:   core.NewsKindAnnouncement,
		})
	}
	return items, nil
}

func (e *Eastmoney) getJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return core.WrapError(core.ErrProviderCall, err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return core.WrapError(core.ErrProviderCall, core.WrapError(core.ErrUpstreamTimeout, err))
		}
		return core.WrapError(core.ErrProviderCall, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return core.WrapError(core.ErrProviderCall, fmt.Errorf("status %d", resp.StatusCode))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return core.WrapError(core.ErrProviderCall, core.WrapError(core.ErrDecodeFailed, err))
	}
	return nil
}

// secidOf converts "600519.SH" to the push2 secid "1.600519".
// Shanghai = 1, everything else = 0.
func secidOf(code string) string {
	norm := provider.NormalizeCode(code)
	market := "0"
	if strings.HasSuffix(norm, ".SH") {
		market = "1"
	}
	return market + "." + provider.BareCode(norm)
}

func marketOf(code string) string {
	if i := strings.Index(code, "."); i > 0 && i+1 < len(code) {
		return code[i+1:]
	}
	return ""
}

func kltOf(period string) (string, error) {
	switch period {
	case provider.PeriodDaily:
		return "101", nil
	case provider.PeriodWeekly:
		return "102", nil
	case provider.PeriodMonthly:
		return "103", nil
	}
	return "", core.ErrNotSupported
}

func fqtOf(adjust string) (string, error) {
	switch adjust {
	case provider.AdjustNone:
		return "0", nil
	case provider.AdjustQFQ:
		return "1", nil
	case provider.AdjustHFQ:
		return "2", nil
	}
	return "", core.ErrNotSupported
}

func scale(v *float64, factor float64) *float64 {
	if v == nil {
		return nil
	}
	return core.Float64(*v * factor)
}

func sortNewsDesc(items []core.NewsItem) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Time.After(items[j].Time)
	})
}
