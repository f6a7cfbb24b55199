package models

// HealthStatus is the coarse backend state reported by /health.
type HealthStatus string

const (
	HealthOK       HealthStatus = "ok"
	HealthDegraded HealthStatus = "degraded"
	HealthUnknown  HealthStatus = "unknown"
)

// ParseHealthStatus maps free-form backend labels onto the known states.
func ParseHealthStatus(s string) HealthStatus {
	switch s {
	case "ok", "healthy", "up":
		return HealthOK
	case "degraded", "warn", "warning":
		return HealthDegraded
	default:
		return HealthUnknown
	}
}

// AIModelInfo describes the inference model served by the backend.
type AIModelInfo struct {
	Name           string `json:"name"`
	Version        string `json:"version,omitempty"`
	ParameterCount int64  `json:"parameter_count"`
	FineTunedOn    string `json:"fine_tuned_on,omitempty"`
}

// IndexerSummary is the indexer excerpt embedded in the health payload.
type IndexerSummary struct {
	FeedsProcessed int64   `json:"feeds_processed"`
	FeedsPerSecond float64 `json:"feeds_per_second"`
	ActiveFeeds    int     `json:"active_feeds"`
}

// HealthSnapshot is replaced wholesale on every successful health fetch.
type HealthSnapshot struct {
	Status  HealthStatus    `json:"status"`
	Phase   string          `json:"phase"`
	Message string          `json:"message,omitempty"`
	Version string          `json:"version,omitempty"`
	Indexer *IndexerSummary `json:"indexer,omitempty"`
	AIModel AIModelInfo     `json:"ai_model"`
}

// IndexerMetricsSnapshot carries the indexer counters. TotalFeedsProcessed is
// expected to grow but may go backwards after a backend restart.
type IndexerMetricsSnapshot struct {
	TotalFeedsProcessed int64   `json:"total_feeds_processed"`
	FeedsPerSecond      float64 `json:"feeds_per_second"`
	ActiveFeeds         int     `json:"active_feeds"`
	AverageLatencyMs    float64 `json:"average_latency_ms"`
	// LastUpdate is a millisecond epoch, zero when the backend omits it.
	LastUpdate int64 `json:"last_update,omitempty"`
}

// BlockRecord is one indexed block. Timestamp is a millisecond epoch.
type BlockRecord struct {
	Number           uint64 `json:"number"`
	Hash             string `json:"hash"`
	Timestamp        int64  `json:"timestamp"`
	TransactionCount int    `json:"transaction_count"`
	GasUsed          uint64 `json:"gas_used"`
}

// BlockList is the latest blocks page, ordered by Number descending.
type BlockList struct {
	Blocks []BlockRecord `json:"blocks"`
	Source string        `json:"source,omitempty"`
}

// BlockLookup is the result of a block-by-number search.
type BlockLookup struct {
	Block  BlockRecord `json:"block"`
	Source string      `json:"source,omitempty"`
}

// TransactionRecord is one indexed transaction. ValueWei and GasPrice stay
// string encoded integers.
type TransactionRecord struct {
	Hash        string  `json:"hash"`
	FromAddress string  `json:"from_address"`
	ToAddress   *string `json:"to_address,omitempty"`
	ValueWei    string  `json:"value_wei"`
	GasPrice    string  `json:"gas_price,omitempty"`
	BlockNumber uint64  `json:"block_number"`
	Timestamp   int64   `json:"timestamp"`
}

// TransactionList is the latest transactions page.
type TransactionList struct {
	Transactions []TransactionRecord `json:"transactions"`
}

// InferenceResult is the answer of any AI operation.
type InferenceResult struct {
	Model            string   `json:"model"`
	OutputText       string   `json:"output_text"`
	Confidence       float64  `json:"confidence"`
	LatencyMs        float64  `json:"latency_ms"`
	ReasoningSteps   []string `json:"reasoning_steps,omitempty"`
	Sources          []string `json:"sources,omitempty"`
	Verifiable       *bool    `json:"verifiable,omitempty"`
	OnChainProof     string   `json:"on_chain_proof,omitempty"`
	SecurityFindings []string `json:"security_findings,omitempty"`
	GasTips          []string `json:"gas_tips,omitempty"`
}

// PriceSnapshot is the current market price of an asset.
type PriceSnapshot struct {
	Asset            string  `json:"asset"`
	PriceUSD         float64 `json:"price_usd"`
	Change24hPercent float64 `json:"change_24h_percent"`
	MarketCapUSD     float64 `json:"market_cap_usd"`
	Source           string  `json:"source"`
	Timestamp        int64   `json:"timestamp,omitempty"`
}
