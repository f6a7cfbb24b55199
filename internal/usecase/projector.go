package usecase

import (
	"fmt"
	"math"
	"sort"
	"time"

	"SentinelX/internal/domain/models"
	"SentinelX/pkg/util"
)

// successRatePlaceholder is the fixed success rate shown by the dashboard;
// the backend exposes no counter to derive it from.
const successRatePlaceholder = "99.9%"

// DisplayStats is the display-ready projection of a view.
type DisplayStats struct {
	View string `json:"view"`

	Health *HealthDisplay `json:"health,omitempty"`
	Feeds  *FeedsDisplay  `json:"feeds,omitempty"`
	Deltas *DeltaDisplay  `json:"deltas,omitempty"`
	Blocks []BlockRow     `json:"blocks,omitempty"`
	Txs    []TxRow        `json:"transactions,omitempty"`
	Block  *BlockRow      `json:"block,omitempty"`
	Price  *PriceDisplay  `json:"price,omitempty"`
	AI     InferenceSet   `json:"ai,omitempty"`

	SuccessRate            string `json:"success_rate"`
	SuccessRatePlaceholder bool   `json:"success_rate_placeholder"`
}

type HealthDisplay struct {
	Status      string `json:"status"`
	Phase       string `json:"phase"`
	ModelName   string `json:"model_name"`
	ModelParams string `json:"model_params"`
	Version     string `json:"version,omitempty"`
	Stale       bool   `json:"stale"`
}

type FeedsDisplay struct {
	TotalProcessed int64  `json:"total_processed"`
	PerSecond      string `json:"per_second"`

	// ObservedPerSecond is derived from the last two metrics commits, nil
	// until two samples exist or when the counter went backwards.
	ObservedPerSecond *string `json:"observed_per_second,omitempty"`
	ActiveFeeds       int     `json:"active_feeds"`
	LatencyMs         int64   `json:"latency_ms"`
	LastUpdate        string  `json:"last_update,omitempty"`
	Stale             bool    `json:"stale"`
}

// DeltaDisplay holds signed percentage changes against a historical baseline.
type DeltaDisplay struct {
	Since          time.Time `json:"since"`
	TotalProcessed *string   `json:"total_processed,omitempty"`
	PerSecond      *string   `json:"per_second,omitempty"`
	ActiveFeeds    *string   `json:"active_feeds,omitempty"`
	LatencyMs      *string   `json:"latency_ms,omitempty"`
}

type BlockRow struct {
	Number           uint64 `json:"number"`
	Hash             string `json:"hash"`
	Time             string `json:"time"`
	TransactionCount int    `json:"transaction_count"`
	GasUsed          uint64 `json:"gas_used"`
}

type TxRow struct {
	Hash        string `json:"hash"`
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	BlockNumber uint64 `json:"block_number"`
	Time        string `json:"time"`
}

type PriceDisplay struct {
	Asset      string           `json:"asset"`
	PriceUSD   string           `json:"price_usd"`
	Change24h  string           `json:"change_24h"`
	MarketCap  string           `json:"market_cap"`
	Source     string           `json:"source"`
	Prediction *InferenceDisplay `json:"prediction,omitempty"`
}

// InferenceSet maps an AI operation to its latest answer.
type InferenceSet map[models.Kind]InferenceDisplay

type InferenceDisplay struct {
	Output     string   `json:"output"`
	Confidence string   `json:"confidence"`
	LatencyMs  int64    `json:"latency_ms"`
	Model      string   `json:"model,omitempty"`
	Steps      []string `json:"steps,omitempty"`
	Verifiable *bool    `json:"verifiable,omitempty"`
	Findings   []string `json:"findings,omitempty"`
	GasTips    []string `json:"gas_tips,omitempty"`
}

var inferenceKinds = []models.Kind{
	models.KindAIQuery,
	models.KindContractAnalyze,
	models.KindContractExplain,
	models.KindSecurityAudit,
	models.KindPricePredict,
}

// Project derives the display record of st. baseline may be nil, in which
// case no deltas are produced. Project performs no I/O.
func Project(st models.ViewState, baseline *models.MetricsBaseline) DisplayStats {
	out := DisplayStats{
		View:                   st.View,
		SuccessRate:            successRatePlaceholder,
		SuccessRatePlaceholder: true,
	}

	hs := models.Typed[models.HealthSnapshot](st.Slot(models.KindHealth))
	if hs.Value != nil {
		out.Health = projectHealth(hs.Value)
		out.Health.Stale = hs.Status == models.StatusError
	}

	ms := models.Typed[models.IndexerMetricsSnapshot](st.Slot(models.KindMetrics))
	if ms.Value != nil {
		out.Feeds = projectFeeds(ms.Value)
		out.Feeds.Stale = ms.Status == models.StatusError
		if ms.Status == models.StatusSuccess && st.PreviousMetrics != nil && !st.PreviousMetricsAt.IsZero() {
			out.Feeds.ObservedPerSecond = observedRate(st.PreviousMetrics, st.PreviousMetricsAt, ms.Value, ms.LastUpdatedAt)
		}
		if baseline != nil {
			out.Deltas = projectDeltas(ms.Value, baseline)
		}
	}

	if bl := models.Typed[models.BlockList](st.Slot(models.KindBlocks)); bl.Value != nil {
		out.Blocks = projectBlocks(bl.Value.Blocks)
	}
	if lk := models.Typed[models.BlockLookup](st.Slot(models.KindBlock)); lk.Value != nil {
		row := projectBlock(lk.Value.Block)
		out.Block = &row
	}
	if tl := models.Typed[models.TransactionList](st.Slot(models.KindTransactions)); tl.Value != nil {
		out.Txs = projectTxs(tl.Value.Transactions)
	}

	for _, k := range inferenceKinds {
		ir := models.Typed[models.InferenceResult](st.Slot(k))
		if ir.Value == nil {
			continue
		}
		if out.AI == nil {
			out.AI = make(InferenceSet)
		}
		out.AI[k] = projectInference(ir.Value)
	}

	if ps := models.Typed[models.PriceSnapshot](st.Slot(models.KindPriceCurrent)); ps.Value != nil {
		out.Price = projectPrice(ps.Value)
		if pred, ok := out.AI[models.KindPricePredict]; ok {
			out.Price.Prediction = &pred
		}
	}
	return out
}

func projectHealth(h *models.HealthSnapshot) *HealthDisplay {
	return &HealthDisplay{
		Status:      string(h.Status),
		Phase:       h.Phase,
		ModelName:   h.AIModel.Name,
		ModelParams: FormatParams(h.AIModel.ParameterCount),
		Version:     h.Version,
	}
}

func projectFeeds(m *models.IndexerMetricsSnapshot) *FeedsDisplay {
	f := &FeedsDisplay{
		TotalProcessed: m.TotalFeedsProcessed,
		PerSecond:      fmt.Sprintf("%.2f", m.FeedsPerSecond),
		ActiveFeeds:    m.ActiveFeeds,
		LatencyMs:      int64(math.Round(m.AverageLatencyMs)),
	}
	if m.LastUpdate > 0 {
		f.LastUpdate = util.FormatTimestamp(m.LastUpdate)
	}
	return f
}

// observedRate is the feed throughput between two metrics samples.
func observedRate(prev *models.IndexerMetricsSnapshot, prevAt time.Time, cur *models.IndexerMetricsSnapshot, curAt time.Time) *string {
	dt := curAt.Sub(prevAt).Seconds()
	diff := cur.TotalFeedsProcessed - prev.TotalFeedsProcessed
	if dt <= 0 || diff < 0 {
		return nil
	}
	s := fmt.Sprintf("%.2f", float64(diff)/dt)
	return &s
}

func projectDeltas(m *models.IndexerMetricsSnapshot, b *models.MetricsBaseline) *DeltaDisplay {
	return &DeltaDisplay{
		Since:          b.At,
		TotalProcessed: percentDelta(float64(m.TotalFeedsProcessed), float64(b.TotalFeedsProcessed)),
		PerSecond:      percentDelta(m.FeedsPerSecond, b.FeedsPerSecond),
		ActiveFeeds:    percentDelta(float64(m.ActiveFeeds), float64(b.ActiveFeeds)),
		LatencyMs:      percentDelta(m.AverageLatencyMs, b.AverageLatencyMs),
	}
}

// percentDelta renders the signed change of cur against base, nil when base
// is zero.
func percentDelta(cur, base float64) *string {
	if base == 0 {
		return nil
	}
	s := fmt.Sprintf("%+.1f%%", (cur-base)/base*100)
	return &s
}

func projectBlocks(blocks []models.BlockRecord) []BlockRow {
	rows := make([]BlockRow, 0, len(blocks))
	for _, b := range blocks {
		rows = append(rows, projectBlock(b))
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Number > rows[j].Number })
	return rows
}

func projectBlock(b models.BlockRecord) BlockRow {
	return BlockRow{
		Number:           b.Number,
		Hash:             b.Hash,
		Time:             util.FormatTimestamp(b.Timestamp),
		TransactionCount: b.TransactionCount,
		GasUsed:          b.GasUsed,
	}
}

func projectTxs(txs []models.TransactionRecord) []TxRow {
	rows := make([]TxRow, 0, len(txs))
	for _, t := range txs {
		row := TxRow{
			Hash:        t.Hash,
			From:        t.FromAddress,
			To:          "Contract Creation",
			BlockNumber: t.BlockNumber,
			Time:        util.FormatTimestamp(t.Timestamp),
		}
		if t.ToAddress != nil {
			row.To = *t.ToAddress
		}
		if v, err := util.FormatWei(t.ValueWei); err == nil {
			row.Value = v
		} else {
			row.Value = t.ValueWei
		}
		rows = append(rows, row)
	}
	return rows
}

func projectInference(r *models.InferenceResult) InferenceDisplay {
	return InferenceDisplay{
		Output:     r.OutputText,
		Confidence: fmt.Sprintf("%d%%", int(math.Round(r.Confidence*100))),
		LatencyMs:  int64(math.Round(r.LatencyMs)),
		Model:      r.Model,
		Steps:      r.ReasoningSteps,
		Verifiable: r.Verifiable,
		Findings:   r.SecurityFindings,
		GasTips:    r.GasTips,
	}
}

func projectPrice(p *models.PriceSnapshot) *PriceDisplay {
	return &PriceDisplay{
		Asset:     p.Asset,
		PriceUSD:  "$" + util.FormatFixed(p.PriceUSD, 4),
		Change24h: fmt.Sprintf("%+.2f%%", p.Change24hPercent),
		MarketCap: FormatCompactUSD(p.MarketCapUSD),
		Source:    p.Source,
	}
}

// FormatParams renders a parameter count in billions, e.g. 7000000000 → "7.0B".
func FormatParams(n int64) string {
	return fmt.Sprintf("%.1fB", float64(n)/1e9)
}

// FormatCompactUSD renders large dollar amounts with a K/M/B suffix.
func FormatCompactUSD(v float64) string {
	switch a := math.Abs(v); {
	case a >= 1e9:
		return fmt.Sprintf("$%.2fB", v/1e9)
	case a >= 1e6:
		return fmt.Sprintf("$%.2fM", v/1e6)
	case a >= 1e3:
		return fmt.Sprintf("$%.2fK", v/1e3)
	default:
		return fmt.Sprintf("$%.2f", v)
	}
}
