package sentinel

import (
	"strings"

	"SentinelX/internal/domain/models"
	"SentinelX/pkg/util"
)

// Wire structs mirror the backend JSON. Pointer fields tagged required must
// be present in the body; validation failures are decode errors.

type wireModelInfo struct {
	ModelName   string   `json:"model_name"`
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Parameters  *int64   `json:"parameters" validate:"omitempty,gte=0"`
	FineTunedOn []string `json:"fine_tuned_on"`
}

type wireIndexerSummary struct {
	FeedsProcessed int64   `json:"feeds_processed" validate:"gte=0"`
	FeedsPerSecond float64 `json:"feeds_per_second" validate:"gte=0"`
	ActiveFeeds    int     `json:"active_feeds" validate:"gte=0"`
}

type wireHealth struct {
	Status  string              `json:"status" validate:"required"`
	Message string              `json:"message"`
	Version string              `json:"version"`
	Phase   string              `json:"phase"`
	Indexer *wireIndexerSummary `json:"indexer"`
	AIModel *wireModelInfo      `json:"ai_model"`
}

func (w *wireHealth) snapshot() *models.HealthSnapshot {
	h := &models.HealthSnapshot{
		Status:  models.ParseHealthStatus(w.Status),
		Phase:   w.Phase,
		Message: w.Message,
		Version: w.Version,
	}
	if w.Indexer != nil {
		h.Indexer = &models.IndexerSummary{
			FeedsProcessed: w.Indexer.FeedsProcessed,
			FeedsPerSecond: w.Indexer.FeedsPerSecond,
			ActiveFeeds:    w.Indexer.ActiveFeeds,
		}
	}
	if m := w.AIModel; m != nil {
		h.AIModel = models.AIModelInfo{
			Name:        firstNonEmpty(m.ModelName, m.Name),
			Version:     m.Version,
			FineTunedOn: strings.Join(m.FineTunedOn, ", "),
		}
		if m.Parameters != nil {
			h.AIModel.ParameterCount = *m.Parameters
		}
	}
	return h
}

type wireMetrics struct {
	TotalFeedsProcessed *int64   `json:"total_feeds_processed" validate:"required,gte=0"`
	FeedsPerSecond      float64  `json:"feeds_per_second" validate:"gte=0"`
	AverageLatencyMs    float64  `json:"average_latency_ms" validate:"gte=0"`
	ActiveFeeds         int      `json:"active_feeds" validate:"gte=0"`
	LastUpdate          int64    `json:"last_update" validate:"gte=0"`
}

func (w *wireMetrics) snapshot() *models.IndexerMetricsSnapshot {
	m := &models.IndexerMetricsSnapshot{
		TotalFeedsProcessed: *w.TotalFeedsProcessed,
		FeedsPerSecond:      w.FeedsPerSecond,
		AverageLatencyMs:    w.AverageLatencyMs,
		ActiveFeeds:         w.ActiveFeeds,
	}
	if w.LastUpdate > 0 {
		m.LastUpdate = util.NormalizeEpoch(w.LastUpdate)
	}
	return m
}

type wireBlock struct {
	BlockNumber      *uint64 `json:"block_number" validate:"required"`
	BlockHash        string  `json:"block_hash" validate:"required"`
	Timestamp        *int64  `json:"timestamp" validate:"required,gte=0"`
	TransactionCount int     `json:"transaction_count" validate:"gte=0"`
	GasUsed          uint64  `json:"gas_used"`
}

func (w *wireBlock) record() models.BlockRecord {
	return models.BlockRecord{
		Number:           *w.BlockNumber,
		Hash:             w.BlockHash,
		Timestamp:        util.NormalizeEpoch(*w.Timestamp),
		TransactionCount: w.TransactionCount,
		GasUsed:          w.GasUsed,
	}
}

type wireBlocks struct {
	Blocks []wireBlock `json:"blocks" validate:"required,dive"`
	Source string      `json:"source"`
}

func (w *wireBlocks) list() *models.BlockList {
	out := &models.BlockList{Blocks: make([]models.BlockRecord, 0, len(w.Blocks)), Source: w.Source}
	for i := range w.Blocks {
		out.Blocks = append(out.Blocks, w.Blocks[i].record())
	}
	return out
}

type wireBlockLookup struct {
	Block  *wireBlock `json:"block" validate:"required"`
	Source string     `json:"source"`
}

type wireTransaction struct {
	TxHash      string  `json:"tx_hash" validate:"required"`
	FromAddress string  `json:"from_address" validate:"required"`
	ToAddress   *string `json:"to_address"`
	Value       string  `json:"value" validate:"required,number"`
	GasPrice    string  `json:"gas_price" validate:"omitempty,number"`
	BlockNumber uint64  `json:"block_number"`
	Timestamp   *int64  `json:"timestamp" validate:"required,gte=0"`
}

type wireTransactions struct {
	Transactions []wireTransaction `json:"transactions" validate:"required,dive"`
}

func (w *wireTransactions) list() *models.TransactionList {
	out := &models.TransactionList{Transactions: make([]models.TransactionRecord, 0, len(w.Transactions))}
	for _, t := range w.Transactions {
		out.Transactions = append(out.Transactions, models.TransactionRecord{
			Hash:        t.TxHash,
			FromAddress: t.FromAddress,
			ToAddress:   t.ToAddress,
			ValueWei:    t.Value,
			GasPrice:    t.GasPrice,
			BlockNumber: t.BlockNumber,
			Timestamp:   util.NormalizeEpoch(*t.Timestamp),
		})
	}
	return out
}

type wireInference struct {
	Model               string   `json:"model"`
	Output              *string  `json:"output" validate:"required"`
	Confidence          float64  `json:"confidence" validate:"gte=0,lte=1"`
	LatencyMs           *float64 `json:"latency_ms" validate:"omitempty,gte=0"`
	ReasoningSteps      []string `json:"reasoning_steps"`
	Sources             []string `json:"sources"`
	Verifiable          *bool    `json:"verifiable"`
	OnChainProof        *string  `json:"on_chain_proof"`
	SecurityFindings    []string `json:"security_findings"`
	SecurityAnalysis    []string `json:"security_analysis"`
	GasTips             []string `json:"gas_tips"`
	GasOptimizationTips []string `json:"gas_optimization_tips"`
}

func (w *wireInference) result(measuredMs float64) *models.InferenceResult {
	r := &models.InferenceResult{
		Model:            w.Model,
		OutputText:       *w.Output,
		Confidence:       w.Confidence,
		LatencyMs:        measuredMs,
		ReasoningSteps:   w.ReasoningSteps,
		Sources:          w.Sources,
		Verifiable:       w.Verifiable,
		SecurityFindings: firstNonEmptySlice(w.SecurityFindings, w.SecurityAnalysis),
		GasTips:          firstNonEmptySlice(w.GasTips, w.GasOptimizationTips),
	}
	if w.LatencyMs != nil {
		r.LatencyMs = *w.LatencyMs
	}
	if w.OnChainProof != nil {
		r.OnChainProof = *w.OnChainProof
	}
	return r
}

type wireExplanation struct {
	ContractAddress     string   `json:"contract_address" validate:"required"`
	Explanation         *string  `json:"explanation" validate:"required"`
	SecurityAnalysis    []string `json:"security_analysis"`
	GasOptimizationTips []string `json:"gas_optimization_tips"`
}

func (w *wireExplanation) result(measuredMs float64) *models.InferenceResult {
	return &models.InferenceResult{
		OutputText:       *w.Explanation,
		LatencyMs:        measuredMs,
		SecurityFindings: w.SecurityAnalysis,
		GasTips:          w.GasOptimizationTips,
	}
}

type wirePrice struct {
	Asset     string   `json:"asset" validate:"required"`
	PriceUSD  *float64 `json:"price_usd" validate:"required,gte=0"`
	Change24h float64  `json:"change_24h"`
	MarketCap float64  `json:"market_cap" validate:"gte=0"`
	Source    string   `json:"source"`
	Timestamp int64    `json:"timestamp" validate:"gte=0"`
}

func (w *wirePrice) snapshot() *models.PriceSnapshot {
	p := &models.PriceSnapshot{
		Asset:            w.Asset,
		PriceUSD:         *w.PriceUSD,
		Change24hPercent: w.Change24h,
		MarketCapUSD:     w.MarketCap,
		Source:           w.Source,
	}
	if w.Timestamp > 0 {
		p.Timestamp = util.NormalizeEpoch(w.Timestamp)
	}
	return p
}

// Request bodies.

type queryBody struct {
	Prompt      string          `json:"prompt"`
	TaskType    models.TaskType `json:"task_type"`
	Context     []string        `json:"context,omitempty"`
	MaxTokens   *int            `json:"max_tokens,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
}

type contractBody struct {
	ContractAddress string `json:"contract_address"`
}

type auditBody struct {
	Code string `json:"code"`
}

type assetBody struct {
	Asset string `json:"asset"`
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstNonEmptySlice(vals ...[]string) []string {
	for _, v := range vals {
		if len(v) > 0 {
			return v
		}
	}
	return nil
}
