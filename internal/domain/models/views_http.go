package models

import (
	"strconv"
	"strings"
)

// ViewPath addresses a mountable view.
type ViewPath struct {
	View string `param:"view" validate:"required"`
}

// SlotPath addresses one slot of a view.
type SlotPath struct {
	View string `param:"view" validate:"required"`
	Kind string `param:"kind" validate:"required"`
}

// ActionRequest carries the arguments of every view action. Each action reads
// the fields it needs and rejects the request when a required one is missing.
type ActionRequest struct {
	View   string `param:"view" json:"-" validate:"required"`
	Action string `param:"action" json:"-" validate:"required,oneof=ai-query contract-analyze contract-explain security-audit price-predict block-search"`

	Prompt      string   `json:"prompt" validate:"omitempty,max=8000"`
	TaskType    string   `json:"task_type" default:"GeneralQuery" validate:"oneof=ContractAnalysis SecurityAudit CodeExplanation TransactionAnalysis PricePredict GeneralQuery"`
	Context     []string `json:"context" validate:"omitempty,max=20"`
	MaxTokens   int      `json:"max_tokens" validate:"omitempty,gte=1,lte=4096"`
	Temperature *float64 `json:"temperature" validate:"omitempty,gte=0,lte=2"`

	ContractAddress string `json:"contract_address" validate:"omitempty,startswith=0x,len=42"`
	Code            string `json:"code" validate:"omitempty,max=100000"`
	Asset           string `json:"asset" validate:"omitempty,alphanum,max=16"`
	Number          string `json:"number" validate:"omitempty,numeric"`
}

// Params flattens the request into backend call parameters. Empty fields are
// left out so they do not split request identity.
func (r *ActionRequest) Params() map[string]string {
	p := make(map[string]string)
	set := func(k, v string) {
		if v != "" {
			p[k] = v
		}
	}

	switch r.Action {
	case string(KindAIQuery):
		set("prompt", r.Prompt)
		set("task_type", r.TaskType)
		set("context", strings.Join(r.Context, "\n"))
		if r.MaxTokens > 0 {
			set("max_tokens", strconv.Itoa(r.MaxTokens))
		}
		if r.Temperature != nil {
			set("temperature", strconv.FormatFloat(*r.Temperature, 'f', -1, 64))
		}
	case string(KindContractAnalyze), string(KindContractExplain):
		set("contract_address", r.ContractAddress)
	case string(KindSecurityAudit):
		set("code", r.Code)
	case string(KindPricePredict):
		set("asset", strings.ToUpper(r.Asset))
	case "block-search":
		set("number", r.Number)
	}
	return p
}

// ActionAccepted is returned once an action was scheduled.
type ActionAccepted struct {
	View   string `json:"view"`
	Action string `json:"action"`
	Tick   uint64 `json:"tick"`
	Slots  []Slot `json:"slots"`
}
