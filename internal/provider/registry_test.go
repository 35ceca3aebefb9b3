package provider

import (
	"context"
	"testing"

	"github.com/qleaf/marketmux/internal/core"
)

// fakeProvider for registry tests
type fakeProvider struct {
	name      string
	priority  int
	available func() bool
}

func (f *fakeProvider) Name() string      { return f.name }
func (f *fakeProvider) Priority() int     { return f.priority }
func (f *fakeProvider) IsAvailable() bool {
	if f.available == nil {
		return true
	}
	return f.available()
}
func (f *fakeProvider) FetchStockList(ctx context.Context) ([]core.StockBasic, error) {
	return nil, core.ErrNotSupported
}
func (f *fakeProvider) FetchDailyFundamentals(ctx context.Context, tradeDate string) (map[string]core.Fundamentals, error) {
	return nil, core.ErrNotSupported
}
func (f *fakeProvider) FetchRealtimeQuotes(ctx context.Context) (map[string]core.Quote, error) {
	return nil, core.ErrNotSupported
}
func (f *fakeProvider) FetchKline(ctx context.Context, code, period string, limit int, adjust string) ([]core.KlineBar, error) {
	return nil, core.ErrNotSupported
}
func (f *fakeProvider) FetchNews(ctx context.Context, code string, daysBack, limit int, includeAnnouncements bool) ([]core.NewsItem, error) {
	return nil, core.ErrNotSupported
}
func (f *fakeProvider) LatestTradingDay(ctx context.Context) (string, error) {
	return "", core.ErrNotSupported
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&fakeProvider{name: "a", priority: 1}); err != nil {
		t.Fatalf("register: %v", err)
	}

	p, ok := r.Get("a")
	if !ok {
		t.Fatal("expected to find registered provider")
	}
	if p.Name() != "a" {
		t.Errorf("expected name 'a', got '%s'", p.Name())
	}
}

func TestRegistry_RejectsDuplicateName(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(&fakeProvider{name: "a", priority: 1})
	if err := r.Register(&fakeProvider{name: "a", priority: 2}); err == nil {
		t.Error("expected duplicate name to be rejected")
	}
}

func TestRegistry_RejectsPriorityTie(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(&fakeProvider{name: "a", priority: 1})
	if err := r.Register(&fakeProvider{name: "b", priority: 1}); err == nil {
		t.Error("expected priority tie to be rejected")
	}
}

func TestRegistry_AllOrderedByPriority(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(&fakeProvider{name: "third", priority: 30})
	_ = r.Register(&fakeProvider{name: "first", priority: 10})
	_ = r.Register(&fakeProvider{name: "second", priority: 20})

	all := r.All()
	want := []string{"first", "second", "third"}
	for i, p := range all {
		if p.Name() != want[i] {
			t.Errorf("position %d: got %s, want %s", i, p.Name(), want[i])
		}
	}
}

func TestRegistry_AvailableIsRecomputed(t *testing.T) {
	up := true
	r := NewRegistry()
	_ = r.Register(&fakeProvider{name: "flappy", priority: 1, available: func() bool { return up }})
	_ = r.Register(&fakeProvider{name: "steady", priority: 2})

	if got := len(r.Available()); got != 2 {
		t.Fatalf("expected 2 available, got %d", got)
	}

	up = false
	avail := r.Available()
	if len(avail) != 1 || avail[0].Name() != "steady" {
		t.Fatalf("availability must be recomputed per call, got %v", avail)
	}

	up = true
	if got := len(r.Available()); got != 2 {
		t.Fatalf("provider should be back after recovery, got %d", got)
	}
}
