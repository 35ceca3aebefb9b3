package tushare

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/qleaf/marketmux/internal/core"
	"github.com/qleaf/marketmux/internal/provider"
)

func TestTushare_ImplementsProvider(t *testing.T) {
	var _ provider.Provider = (*Tushare)(nil)
}

func TestTushare_IsAvailable(t *testing.T) {
	tests := []struct {
		name     string
		cfg      provider.Config
		expected bool
	}{
		{"enabled with token", provider.Config{Enabled: true, Token: "tok"}, true},
		{"missing token", provider.Config{Enabled: true}, false},
		{"disabled", provider.Config{Enabled: false, Token: "tok"}, false},
	}
	for _, tc := range tests {
		if got := New(tc.cfg).IsAvailable(); got != tc.expected {
			t.Errorf("%s: IsAvailable() = %v, want %v", tc.name, got, tc.expected)
		}
	}
}

func newTestServer(t *testing.T, handler func(apiName string) any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req apiRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("bad request body: %v", err)
		}
		if req.Token == "" {
			t.Error("token missing from request")
		}
		if err := json.NewEncoder(w).Encode(handler(req.APIName)); err != nil {
			t.Fatalf("encode response: %v", err)
		}
	}))
}

func newTestProvider(t *testing.T, srv *httptest.Server) *Tushare {
	t.Helper()
	p := New(provider.Config{Enabled: true, Priority: 1, Token: "tok"})
	p.baseURL = srv.URL
	return p
}

func TestTushare_FetchDailyFundamentals(t *testing.T) {
	srv := newTestServer(t, func(apiName string) any {
		if apiName != "daily_basic" {
			t.Errorf("unexpected api %s", apiName)
		}
		return map[string]any{
			"code": 0,
			"data": map[string]any{
				"fields": []string{"ts_code", "trade_date", "turnover_rate", "volume_ratio", "pe", "pe_ttm", "pb", "total_mv", "circ_mv"},
				"items": [][]any{
					{"600519.SH", "20250829", 0.25, 1.1, 22.5, 21.8, 8.1, 190000000.0, 190000000.0},
					{"000001.SZ", "20250829", 0.6, nil, nil, 4.9, 0.55, 21000000.0, 21000000.0},
				},
			},
		}
	})
	defer srv.Close()

	got, err := newTestProvider(t, srv).FetchDailyFundamentals(context.Background(), "20250829")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(got))
	}

	moutai := got["600519.SH"]
	if moutai.PE == nil || *moutai.PE != 22.5 {
		t.Error("pe not mapped")
	}
	if moutai.TotalMV == nil || *moutai.TotalMV != 190000000.0*1e4 {
		t.Error("total_mv should be normalized from 10k CNY to CNY")
	}

	pingan := got["000001.SZ"]
	if pingan.PE != nil {
		t.Error("null pe must stay absent, not zero")
	}
	if pingan.VolumeRatio != nil {
		t.Error("null volume_ratio must stay absent")
	}
	if pingan.PETTM == nil || *pingan.PETTM != 4.9 {
		t.Error("pe_ttm not mapped")
	}
}

func TestTushare_FetchStockList(t *testing.T) {
	srv := newTestServer(t, func(apiName string) any {
		return map[string]any{
			"code": 0,
			"data": map[string]any{
				"fields": []string{"ts_code", "name", "area", "industry", "market", "list_date"},
				"items": [][]any{
					{"600519.SH", "贵州茅台", "贵州", "白酒", "主板", "20010827"},
				},
			},
		}
	})
	defer srv.Close()

	got, err := newTestProvider(t, srv).FetchStockList(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 stock, got %d", len(got))
	}
	if got[0].Code != "600519.SH" || got[0].Industry != "白酒" {
		t.Errorf("unexpected row: %+v", got[0])
	}
}

func TestTushare_FetchKline_NewestLastAndCapped(t *testing.T) {
	srv := newTestServer(t, func(apiName string) any {
		if apiName != "daily" {
			t.Errorf("unexpected api %s", apiName)
		}
		return map[string]any{
			"code": 0,
			"data": map[string]any{
				"fields": []string{"trade_date", "open", "high", "low", "close", "vol", "amount"},
				"items": [][]any{
					{"20250829", 10.0, 11.0, 9.5, 10.5, 1000.0, 2000.0},
					{"20250828", 9.0, 10.2, 8.9, 10.0, 1100.0, 2100.0},
					{"20250827", 8.5, 9.1, 8.4, 9.0, 900.0, 1800.0},
				},
			},
		}
	})
	defer srv.Close()

	bars, err := newTestProvider(t, srv).FetchKline(context.Background(), "600519.SH", provider.PeriodDaily, 2, provider.AdjustNone)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("expected limit cap of 2, got %d", len(bars))
	}
	if !bars[0].Time.Before(bars[1].Time) {
		t.Error("bars must be ordered oldest first")
	}
	if bars[1].Close != 10.5 {
		t.Errorf("newest bar must be last, got close %f", bars[1].Close)
	}
	if bars[1].Volume != 1000.0*100 {
		t.Error("volume should be converted from lots to shares")
	}
}

func TestTushare_FetchKline_AdjustedNotSupported(t *testing.T) {
	p := New(provider.Config{Enabled: true, Token: "tok"})
	_, err := p.FetchKline(context.Background(), "600519.SH", provider.PeriodDaily, 10, provider.AdjustQFQ)
	if !errors.Is(err, core.ErrNotSupported) {
		t.Errorf("expected ErrNotSupported, got %v", err)
	}
}

func TestTushare_AuthErrorKind(t *testing.T) {
	srv := newTestServer(t, func(apiName string) any {
		return map[string]any{"code": 2002, "msg": "token不对,请确认"}
	})
	defer srv.Close()

	_, err := newTestProvider(t, srv).FetchStockList(context.Background())
	if !errors.Is(err, core.ErrProviderCall) {
		t.Fatalf("expected call failure, got %v", err)
	}
	if !errors.Is(err, core.ErrAuthFailed) {
		t.Errorf("expected auth kind, got %v", err)
	}
}

func TestTushare_UnsupportedOps(t *testing.T) {
	p := New(provider.Config{Enabled: true, Token: "tok"})
	if _, err := p.FetchRealtimeQuotes(context.Background()); !errors.Is(err, core.ErrNotSupported) {
		t.Error("realtime quotes should be unsupported")
	}
	if _, err := p.FetchNews(context.Background(), "600519.SH", 7, 10, true); !errors.Is(err, core.ErrNotSupported) {
		t.Error("news should be unsupported")
	}
}

func TestTushare_LatestTradingDay_FromCalendar(t *testing.T) {
	srv := newTestServer(t, func(apiName string) any {
		if apiName != "trade_cal" {
			t.Errorf("unexpected api %s", apiName)
		}
		return map[string]any{
			"code": 0,
			"data": map[string]any{
				"fields": []string{"cal_date"},
				"items":  [][]any{{"20250827"}, {"20250828"}, {"20250829"}},
			},
		}
	})
	defer srv.Close()

	day, err := newTestProvider(t, srv).LatestTradingDay(context.Background())
	if err != nil {
		t.Fatalf("latest trading day: %v", err)
	}
	if day != "20250829" {
		t.Errorf("expected newest open day, got %s", day)
	}
}
