package fallback

import (
	"fmt"
	"math"
	"sort"

	"github.com/qleaf/marketmux/internal/config"
	"github.com/qleaf/marketmux/internal/core"
)

// defaultEpsilon floors the relative-difference denominator so that
// near-zero figures do not blow up the ratio.
const defaultEpsilon = 1e-9

// Reconciler performs a single two-way comparison of daily fundamentals
// snapshots from two providers. It never retries and never consults a
// third source; when the two disagree beyond what the thresholds allow
// it recommends manual review instead of guessing.
type Reconciler struct {
	Tolerance          float64
	Epsilon            float64
	HighConfidence     float64
	ModerateConfidence float64
}

// NewReconciler builds a Reconciler from validated config.
func NewReconciler(cfg config.ReconcileConfig) *Reconciler {
	return &Reconciler{
		Tolerance:          cfg.Tolerance,
		Epsilon:            defaultEpsilon,
		HighConfidence:     cfg.HighConfidence,
		ModerateConfidence: cfg.ModerateConfidence,
	}
}

// Compare produces a consistency report for two snapshots of the same
// trade date. Only codes present in both snapshots are compared, and
// within those only fields both providers published. Disjoint code sets
// yield zero confidence: there is nothing to corroborate.
func (r *Reconciler) Compare(primarySrc, secondarySrc string, primary, secondary map[string]core.Fundamentals) *core.ConsistencyReport {
	report := &core.ConsistencyReport{
		PrimarySource:   primarySrc,
		SecondarySource: secondarySrc,
	}

	shared := make([]string, 0, len(primary))
	for code := range primary {
		if _, ok := secondary[code]; ok {
			shared = append(shared, code)
		}
	}
	if len(shared) == 0 {
		report.ConfidenceScore = 0
		report.RecommendedAction = core.ActionManualReview
		report.ResolutionStrategy = "no overlapping codes between sources"
		return report
	}
	sort.Strings(shared)

	var compared, differing int
	for _, code := range shared {
		p := primary[code]
		s := secondary[code]
		for _, field := range core.FundamentalsFields {
			pv, sv := p.Field(field), s.Field(field)
			if pv == nil || sv == nil {
				continue
			}
			compared++
			rel := r.relDiff(*pv, *sv)
			if rel > r.Tolerance {
				differing++
				report.Differences = append(report.Differences, core.FieldDiff{
					Code:      code,
					Field:     field,
					Primary:   *pv,
					Secondary: *sv,
					RelDiff:   rel,
				})
			}
		}
	}

	confidence := 1.0
	if compared > 0 {
		confidence = 1 - float64(differing)/float64(compared)
	}
	confidence = math.Max(0, math.Min(1, confidence))

	report.ConfidenceScore = confidence
	report.IsConsistent = differing == 0

	switch {
	case confidence >= r.HighConfidence:
		report.RecommendedAction = core.ActionUsePrimary
		report.ResolutionStrategy = fmt.Sprintf("sources agree, keep %s", primarySrc)
	case confidence >= r.ModerateConfidence:
		report.RecommendedAction = core.ActionMerge
		report.ResolutionStrategy = fmt.Sprintf("merge with %s precedence", primarySrc)
	default:
		report.RecommendedAction = core.ActionManualReview
		report.ResolutionStrategy = "sources disagree beyond tolerance"
	}
	return report
}

// Merge combines two snapshots with primary precedence: every primary
// row is kept as-is, nil fields are filled from the secondary row for
// the same code, and codes only the secondary covers are appended. The
// secondary values displaced on conflicting fields are the ones already
// recorded in the report's Differences.
func (r *Reconciler) Merge(primary, secondary map[string]core.Fundamentals) map[string]core.Fundamentals {
	out := make(map[string]core.Fundamentals, len(primary)+len(secondary))
	for code, row := range primary {
		if sec, ok := secondary[code]; ok {
			for _, field := range core.FundamentalsFields {
				if row.Field(field) == nil {
					row.SetField(field, sec.Field(field))
				}
			}
		}
		out[code] = row
	}
	for code, row := range secondary {
		if _, ok := out[code]; !ok {
			out[code] = row
		}
	}
	return out
}

// Resolve applies the report's recommendation to the two snapshots.
// Manual review keeps the primary data; the report carries the flag.
func (r *Reconciler) Resolve(report *core.ConsistencyReport, primary, secondary map[string]core.Fundamentals) map[string]core.Fundamentals {
	if report.RecommendedAction == core.ActionMerge {
		return r.Merge(primary, secondary)
	}
	return primary
}

func (r *Reconciler) relDiff(a, b float64) float64 {
	eps := r.Epsilon
	if eps <= 0 {
		eps = defaultEpsilon
	}
	denom := math.Max(math.Max(math.Abs(a), math.Abs(b)), eps)
	return math.Abs(a-b) / denom
}
