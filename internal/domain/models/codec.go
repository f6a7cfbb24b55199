package models

import (
	"encoding/json"
	"fmt"
)

// NewValue returns a pointer to the zero snapshot produced by kind.
func NewValue(kind Kind) (any, error) {
	switch kind {
	case KindHealth:
		return &HealthSnapshot{}, nil
	case KindMetrics:
		return &IndexerMetricsSnapshot{}, nil
	case KindBlocks:
		return &BlockList{}, nil
	case KindBlock:
		return &BlockLookup{}, nil
	case KindTransactions:
		return &TransactionList{}, nil
	case KindAIQuery, KindContractAnalyze, KindContractExplain, KindSecurityAudit, KindPricePredict:
		return &InferenceResult{}, nil
	case KindPriceCurrent:
		return &PriceSnapshot{}, nil
	default:
		return nil, fmt.Errorf("unknown kind %q", kind)
	}
}

// DecodeValue decodes raw into the snapshot type of kind. Empty and null
// payloads decode to nil.
func DecodeValue(kind Kind, raw json.RawMessage) (any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	v, err := NewValue(kind)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return nil, fmt.Errorf("decode %s value: %w", kind, err)
	}
	return v, nil
}

// UnmarshalJSON restores the typed snapshot held by the slot.
func (s *Slot) UnmarshalJSON(b []byte) error {
	type plain Slot
	var aux struct {
		plain
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	v, err := DecodeValue(aux.Kind, aux.Value)
	if err != nil {
		return err
	}
	*s = Slot(aux.plain)
	s.Value = v
	return nil
}

// UnmarshalJSON restores the typed snapshot carried by the event.
func (e *CommitEvent) UnmarshalJSON(b []byte) error {
	type plain CommitEvent
	var aux struct {
		plain
		Value json.RawMessage `json:"value,omitempty"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	v, err := DecodeValue(aux.Kind, aux.Value)
	if err != nil {
		return err
	}
	*e = CommitEvent(aux.plain)
	e.Value = v
	return nil
}
