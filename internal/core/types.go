package core

import "time"

// TradeDateLayout is the wire format for trade dates across all providers.
const TradeDateLayout = "20060102"

// Float64 returns a pointer to v. Optional numeric fields are modeled as
// *float64 so that "absent" is distinguishable from zero.
func Float64(v float64) *float64 { return &v }

// StockBasic is one immutable row of the exchange stock list.
type StockBasic struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	Area     string `json:"area,omitempty"`
	Industry string `json:"industry,omitempty"`
	Market   string `json:"market,omitempty"`
	ListDate string `json:"list_date,omitempty"`
}

// Fundamentals is the daily valuation snapshot of a single stock, tied to
// exactly one trade date. A nil field means the provider did not publish
// that figure; it is never zero-filled.
type Fundamentals struct {
	Code      string `json:"code"`
	TradeDate string `json:"trade_date"`

	TotalMV      *float64 `json:"total_mv,omitempty"`
	CircMV       *float64 `json:"circ_mv,omitempty"`
	PE           *float64 `json:"pe,omitempty"`
	PB           *float64 `json:"pb,omitempty"`
	PETTM        *float64 `json:"pe_ttm,omitempty"`
	PBMRQ        *float64 `json:"pb_mrq,omitempty"`
	TurnoverRate *float64 `json:"turnover_rate,omitempty"`
	VolumeRatio  *float64 `json:"volume_ratio,omitempty"`
}

// FundamentalsFields lists the comparable field names in a stable order.
var FundamentalsFields = []string{
	"total_mv", "circ_mv", "pe", "pb", "pe_ttm", "pb_mrq", "turnover_rate", "volume_ratio",
}

// Field returns the named optional field, nil when the name is unknown.
func (f *Fundamentals) Field(name string) *float64 {
	switch name {
	case "total_mv":
		return f.TotalMV
	case "circ_mv":
		return f.CircMV
	case "pe":
		return f.PE
	case "pb":
		return f.PB
	case "pe_ttm":
		return f.PETTM
	case "pb_mrq":
		return f.PBMRQ
	case "turnover_rate":
		return f.TurnoverRate
	case "volume_ratio":
		return f.VolumeRatio
	}
	return nil
}

// SetField sets the named optional field. Unknown names are ignored.
func (f *Fundamentals) SetField(name string, v *float64) {
	switch name {
	case "total_mv":
		f.TotalMV = v
	case "circ_mv":
		f.CircMV = v
	case "pe":
		f.PE = v
	case "pb":
		f.PB = v
	case "pe_ttm":
		f.PETTM = v
	case "pb_mrq":
		f.PBMRQ = v
	case "turnover_rate":
		f.TurnoverRate = v
	case "volume_ratio":
		f.VolumeRatio = v
	}
}

// Quote is a near-real-time price snapshot for a single stock.
type Quote struct {
	Code      string `json:"code"`
	Name      string `json:"name,omitempty"`
	TradeDate string `json:"trade_date,omitempty"`
	Source    string `json:"source,omitempty"`

	Close     *float64 `json:"close,omitempty"`
	PctChange *float64 `json:"pct_change,omitempty"`
	Amount    *float64 `json:"amount,omitempty"`
	Open      *float64 `json:"open,omitempty"`
	High      *float64 `json:"high,omitempty"`
	Low       *float64 `json:"low,omitempty"`
	Volume    *float64 `json:"volume,omitempty"`
	PreClose  *float64 `json:"pre_close,omitempty"`
}

// KlineBar is one OHLCV bar. Sequences are ordered oldest first.
type KlineBar struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
	Amount float64   `json:"amount,omitempty"`
}

// NewsKind distinguishes press coverage from company announcements.
type NewsKind string

const (
	NewsKindNews         NewsKind = "news"
	NewsKindAnnouncement NewsKind = "announcement"
)

// NewsItem is a single news or announcement entry for a stock.
type NewsItem struct {
	Title  string    `json:"title"`
	Source string    `json:"source,omitempty"`
	Time   time.Time `json:"time"`
	URL    string    `json:"url,omitempty"`
	Kind   NewsKind  `json:"kind"`
}

// ReconcileAction is the recommendation attached to a consistency report.
type ReconcileAction string

const (
	ActionUsePrimary   ReconcileAction = "use_primary"
	ActionMerge        ReconcileAction = "merge"
	ActionManualReview ReconcileAction = "manual_review"
)

// FieldDiff records one flagged per-field disagreement between two sources.
type FieldDiff struct {
	Code      string  `json:"code"`
	Field     string  `json:"field"`
	Primary   float64 `json:"primary"`
	Secondary float64 `json:"secondary"`
	RelDiff   float64 `json:"rel_diff"`
}

// ConsistencyReport summarizes a two-way comparison of fundamentals
// snapshots from two providers for the same trade date.
type ConsistencyReport struct {
	PrimarySource      string          `json:"primary_source"`
	SecondarySource    string          `json:"secondary_source"`
	IsConsistent       bool            `json:"is_consistent"`
	ConfidenceScore    float64         `json:"confidence_score"`
	RecommendedAction  ReconcileAction `json:"recommended_action"`
	ResolutionStrategy string          `json:"resolution_strategy"`
	Differences        []FieldDiff     `json:"differences,omitempty"`
}
