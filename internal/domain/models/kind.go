package models

// Kind names both a backend operation and the slot its result lands in.
type Kind string

const (
	KindHealth          Kind = "health"
	KindMetrics         Kind = "metrics"
	KindBlocks          Kind = "blocks"
	KindBlock           Kind = "block"
	KindTransactions    Kind = "transactions"
	KindAIQuery         Kind = "ai-query"
	KindContractAnalyze Kind = "contract-analyze"
	KindContractExplain Kind = "contract-explain"
	KindSecurityAudit   Kind = "security-audit"
	KindPricePredict    Kind = "price-predict"
	KindPriceCurrent    Kind = "price-current"
)

// AllKinds lists every known operation.
var AllKinds = []Kind{
	KindHealth, KindMetrics, KindBlocks, KindBlock, KindTransactions,
	KindAIQuery, KindContractAnalyze, KindContractExplain, KindSecurityAudit, KindPricePredict, KindPriceCurrent,
}

// ParseKind reports whether s names a known operation.
func ParseKind(s string) (Kind, bool) {
	for _, k := range AllKinds {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

// TaskType classifies a free-form AI query.
type TaskType string

const (
	TaskContractAnalysis    TaskType = "ContractAnalysis"
	TaskSecurityAudit       TaskType = "SecurityAudit"
	TaskCodeExplanation     TaskType = "CodeExplanation"
	TaskTransactionAnalysis TaskType = "TransactionAnalysis"
	TaskPricePredict        TaskType = "PricePredict"
	TaskGeneralQuery        TaskType = "GeneralQuery"
)
