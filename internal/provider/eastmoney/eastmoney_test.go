package eastmoney

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/qleaf/marketmux/internal/core"
	"github.com/qleaf/marketmux/internal/provider"
)

func TestEastmoney_ImplementsProvider(t *testing.T) {
	var _ provider.Provider = (*Eastmoney)(nil)
}

func TestEastmoney_IsAvailable(t *testing.T) {
	if !New(provider.Config{Enabled: true}).IsAvailable() {
		t.Error("enabled provider should be available")
	}
	if New(provider.Config{Enabled: false}).IsAvailable() {
		t.Error("disabled provider should not be available")
	}
}

func TestOptFloat_Unmarshal(t *testing.T) {
	tests := []struct {
		input  string
		wantOK bool
		want   float64
	}{
		{`12.5`, true, 12.5},
		{`"3.4"`, true, 3.4},
		{`"-"`, false, 0},
		{`null`, false, 0},
		{`"garbage"`, false, 0},
		{`0`, true, 0},
	}
	for _, tc := range tests {
		var o optFloat
		if err := json.Unmarshal([]byte(tc.input), &o); err != nil {
			t.Errorf("unmarshal(%s) returned error: %v", tc.input, err)
		}
		if o.ok != tc.wantOK || (tc.wantOK && o.v != tc.want) {
			t.Errorf("unmarshal(%s) = (%f,%v), want (%f,%v)", tc.input, o.v, o.ok, tc.want, tc.wantOK)
		}
	}
}

func TestSecidOf(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"600519.SH", "1.600519"},
		{"000001.SZ", "0.000001"},
		{"sh600519", "1.600519"},
	}
	for _, tc := range tests {
		if got := secidOf(tc.input); got != tc.expected {
			t.Errorf("secidOf(%s) = %s, want %s", tc.input, got, tc.expected)
		}
	}
}

func TestKltAndFqt(t *testing.T) {
	if klt, err := kltOf(provider.PeriodDaily); err != nil || klt != "101" {
		t.Errorf("daily klt = %s, %v", klt, err)
	}
	if _, err := kltOf("4h"); !errors.Is(err, core.ErrNotSupported) {
		t.Error("unknown period should be unsupported")
	}
	if fqt, err := fqtOf(provider.AdjustQFQ); err != nil || fqt != "1" {
		t.Errorf("qfq fqt = %s, %v", fqt, err)
	}
	if _, err := fqtOf("xfq"); !errors.Is(err, core.ErrNotSupported) {
		t.Error("unknown adjust should be unsupported")
	}
}

// spotJSON builds one clist page with two rows, one of them suspended
// (dashes for all trading numbers).
const spotJSON = `{
	"data": {
		"total": 2,
		"diff": [
			{"f12":"600519","f13":1,"f14":"贵州茅台","f100":"白酒","f26":20010827,
			 "f2":1680.5,"f3":1.2,"f5":25000,"f6":4200000000.0,"f8":0.25,"f9":22.5,
			 "f10":1.1,"f15":1690.0,"f16":1660.0,"f17":1665.0,"f18":1661.0,
			 "f20":2100000000000.0,"f21":2100000000000.0,"f23":8.1,"f115":21.8},
			{"f12":"000001","f13":0,"f14":"平安银行","f100":"银行","f26":19910403,
			 "f2":"-","f3":"-","f5":"-","f6":"-","f8":"-","f9":"-",
			 "f10":"-","f15":"-","f16":"-","f17":"-","f18":"-",
			 "f20":"-","f21":"-","f23":"-","f115":"-"}
		]
	}
}`

func klineJSON(dates ...string) string {
	lines := make([]string, len(dates))
	for i, d := range dates {
		lines[i] = fmt.Sprintf(`"%s,10.0,10.5,11.0,9.5,1000,2000.0"`, d)
	}
	return `{"data":{"klines":[` + strings.Join(lines, ",") + `]}}`
}

func newTestProvider(t *testing.T, mux *http.ServeMux) (*Eastmoney, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	e := New(provider.Config{Enabled: true, Priority: 2, ProbeWindow: 5})
	e.baseURL.list = srv.URL + "/list"
	e.baseURL.history = srv.URL + "/kline"
	e.baseURL.news = srv.URL + "/news"
	e.baseURL.announce = srv.URL + "/ann"
	return e, srv
}

func TestEastmoney_FetchRealtimeQuotes(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/list", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, spotJSON)
	})
	e, _ := newTestProvider(t, mux)

	got, err := e.FetchRealtimeQuotes(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 quotes, got %d", len(got))
	}

	moutai := got["600519.SH"]
	if moutai.Close == nil || *moutai.Close != 1680.5 {
		t.Error("close not mapped")
	}
	if moutai.Volume == nil || *moutai.Volume != 25000*100 {
		t.Error("volume should be converted from lots to shares")
	}

	suspended := got["000001.SZ"]
	if suspended.Close != nil || suspended.Volume != nil {
		t.Error("dashes must map to absent fields, not zero")
	}
	if suspended.Name != "平安银行" {
		t.Error("name should survive for suspended stocks")
	}
}

func TestEastmoney_FetchStockList(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/list", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, spotJSON)
	})
	e, _ := newTestProvider(t, mux)

	got, err := e.FetchStockList(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 stocks, got %d", len(got))
	}
	if got[0].Code != "600519.SH" || got[0].Market != "SH" || got[0].ListDate != "20010827" {
		t.Errorf("unexpected row: %+v", got[0])
	}
}

func TestEastmoney_FundamentalsRejectsStaleDate(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/kline", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, klineJSON()) // no trading days known
	})
	e, _ := newTestProvider(t, mux)

	_, err := e.FetchDailyFundamentals(context.Background(), "19900101")
	if !errors.Is(err, core.ErrNoData) {
		t.Errorf("stale date should yield ErrNoData, got %v", err)
	}
}

func TestEastmoney_FundamentalsForCurrentSession(t *testing.T) {
	today := provider.MarketNow()
	mux := http.NewServeMux()
	mux.HandleFunc("/kline", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, klineJSON(today.AddDate(0, 0, -1).Format("2006-01-02"), today.Format("2006-01-02")))
	})
	mux.HandleFunc("/list", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, spotJSON)
	})
	e, _ := newTestProvider(t, mux)

	date := today.Format(core.TradeDateLayout)
	got, err := e.FetchDailyFundamentals(context.Background(), date)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}

	moutai := got["600519.SH"]
	if moutai.PE == nil || *moutai.PE != 22.5 {
		t.Error("pe not mapped")
	}
	if moutai.TradeDate != date {
		t.Errorf("snapshot must be tied to requested date, got %s", moutai.TradeDate)
	}
	if suspended := got["000001.SZ"]; suspended.PE != nil {
		t.Error("dash pe must stay absent")
	}
}

func TestEastmoney_FetchKline(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/kline", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("secid"); got != "1.600519" {
			t.Errorf("unexpected secid %s", got)
		}
		fmt.Fprint(w, klineJSON("2025-08-27", "2025-08-28", "2025-08-29"))
	})
	e, _ := newTestProvider(t, mux)

	bars, err := e.FetchKline(context.Background(), "600519.SH", provider.PeriodDaily, 2, provider.AdjustNone)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("expected limit cap of 2, got %d", len(bars))
	}
	if !bars[0].Time.Before(bars[1].Time) {
		t.Error("bars must be ordered oldest first")
	}
	if bars[0].Volume != 1000*100 {
		t.Error("volume should be converted from lots to shares")
	}
}

func TestEastmoney_FetchNews_MergesAnnouncements(t *testing.T) {
	now := provider.MarketNow()
	recent := now.Add(-2 * time.Hour).Format("2006-01-02 15:04:05")
	stale := now.AddDate(0, 0, -30).Format("2006-01-02 15:04:05")

	mux := http.NewServeMux()
	mux.HandleFunc("/news", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"data":{"list":[
			{"Art_Title":"fresh story","Art_CreateTime":"%s","Art_Url":"http://x/1","Art_Media_Name":"证券时报"},
			{"Art_Title":"old story","Art_CreateTime":"%s","Art_Url":"http://x/2","Art_Media_Name":"证券时报"}
		]}}`, recent, stale)
	})
	mux.HandleFunc("/ann", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"data":{"list":[
			{"title":"annual report","notice_date":"%s","art_code":"AN123"}
		]}}`, recent)
	})
	e, _ := newTestProvider(t, mux)

	items, err := e.FetchNews(context.Background(), "600519.SH", 7, 10, true)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected old story filtered by daysBack, got %d items", len(items))
	}

	var kinds []core.NewsKind
	for _, it := range items {
		kinds = append(kinds, it.Kind)
	}
	if kinds[0] == kinds[1] {
		t.Errorf("expected one news and one announcement, got %v", kinds)
	}
}

func TestEastmoney_FetchNews_WithoutAnnouncements(t *testing.T) {
	now := provider.MarketNow().Add(-time.Hour).Format("2006-01-02 15:04:05")
	mux := http.NewServeMux()
	mux.HandleFunc("/news", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"data":{"list":[{"Art_Title":"story","Art_CreateTime":"%s","Art_Url":"u","Art_Media_Name":"m"}]}}`, now)
	})
	mux.HandleFunc("/ann", func(w http.ResponseWriter, r *http.Request) {
		t.Error("announcements endpoint must not be hit")
	})
	e, _ := newTestProvider(t, mux)

	items, err := e.FetchNews(context.Background(), "600519.SH", 7, 10, false)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(items) != 1 || items[0].Kind != core.NewsKindNews {
		t.Errorf("unexpected items: %+v", items)
	}
}

func TestEastmoney_SpotSnapshotReused(t *testing.T) {
	calls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/list", func(w http.ResponseWriter, r *http.Request) {
		calls++
		fmt.Fprint(w, spotJSON)
	})
	e, _ := newTestProvider(t, mux)

	ctx := context.Background()
	if _, err := e.FetchRealtimeQuotes(ctx); err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	if _, err := e.FetchStockList(ctx); err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected snapshot reuse within TTL, got %d upstream calls", calls)
	}
}
