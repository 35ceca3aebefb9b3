package app

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/qleaf/marketmux/internal/config"
	"github.com/qleaf/marketmux/internal/fallback"
	"github.com/qleaf/marketmux/internal/metrics"
	"github.com/qleaf/marketmux/internal/provider"
	"github.com/qleaf/marketmux/internal/provider/eastmoney"
	"github.com/qleaf/marketmux/internal/provider/sina"
	"github.com/qleaf/marketmux/internal/provider/tencent"
	"github.com/qleaf/marketmux/internal/provider/tushare"
)

// App wires config, providers, the fallback orchestrator and metrics
// into one unit the commands share.
type App struct {
	cfg          *config.Config
	log          *zap.Logger
	metrics      *metrics.Registry
	registry     *provider.Registry
	orchestrator *fallback.Orchestrator
}

// ProviderStatus is one row of the provider status report.
type ProviderStatus struct {
	Name      string `json:"name"`
	Priority  int    `json:"priority"`
	Available bool   `json:"available"`
}

// New builds the application from validated config. Only enabled
// providers are registered; unknown provider names in the config are
// logged and skipped so that a stale config entry cannot prevent
// startup.
func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}

	reg := provider.NewRegistry()
	for name, pc := range cfg.Providers {
		if !pc.Enabled {
			continue
		}
		p := buildProvider(name, provider.Config{
			Enabled:     pc.Enabled,
			Priority:    pc.Priority,
			Token:       pc.Token,
			Timeout:     pc.Timeout,
			ProbeWindow: pc.ProbeWindow,
		})
		if p == nil {
			log.Warn("unknown provider in config, skipping", zap.String("provider", name))
			continue
		}
		if err := reg.Register(p); err != nil {
			return nil, fmt.Errorf("registering provider %s: %w", name, err)
		}
	}

	m := metrics.NewRegistry()
	rec := fallback.NewReconciler(cfg.Reconcile)
	orch := fallback.New(reg, rec, log, m, fallback.Options{
		TotalTimeout: cfg.Fallback.TotalTimeout,
	})

	log.Info("providers registered", zap.Int("count", reg.Len()))

	return &App{
		cfg:          cfg,
		log:          log,
		metrics:      m,
		registry:     reg,
		orchestrator: orch,
	}, nil
}

func buildProvider(name string, cfg provider.Config) provider.Provider {
	switch name {
	case "tushare":
		return tushare.New(cfg)
	case "eastmoney":
		return eastmoney.New(cfg)
	case "sina":
		return sina.New(cfg)
	case "tencent":
		return tencent.New(cfg)
	}
	return nil
}

// Orchestrator returns the fallback orchestrator.
func (a *App) Orchestrator() *fallback.Orchestrator { return a.orchestrator }

// Registry returns the provider registry.
func (a *App) Registry() *provider.Registry { return a.registry }

// Metrics returns the metrics registry.
func (a *App) Metrics() *metrics.Registry { return a.metrics }

// Config returns the application configuration.
func (a *App) Config() *config.Config { return a.cfg }

// Status reports every registered provider in priority order with a
// fresh availability check.
func (a *App) Status() []ProviderStatus {
	all := a.registry.All()
	out := make([]ProviderStatus, 0, len(all))
	for _, p := range all {
		out = append(out, ProviderStatus{
			Name:      p.Name(),
			Priority:  p.Priority(),
			Available: p.IsAvailable(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}
