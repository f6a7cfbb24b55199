package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommitEventJSONKeepsValueType(t *testing.T) {
	t.Parallel()

	in := CommitEvent{
		ID:     "e1",
		View:   "live",
		Kind:   KindPriceCurrent,
		Tick:   3,
		Status: StatusSuccess,
		Value:  &PriceSnapshot{Asset: "CELO", PriceUSD: 0.71},
	}
	b, err := json.Marshal(in)
	require.NoError(t, err)

	var out CommitEvent
	require.NoError(t, json.Unmarshal(b, &out))
	assert.Equal(t, "e1", out.ID)
	p, ok := out.Value.(*PriceSnapshot)
	require.True(t, ok, "got %T", out.Value)
	assert.Equal(t, "CELO", p.Asset)
}

func TestSlotJSONWithoutValue(t *testing.T) {
	t.Parallel()

	var s Slot
	require.NoError(t, json.Unmarshal([]byte(`{"kind":"health","status":"error","value":null,"error":{"kind":"network","op":"health","message":"refused"},"tick":1}`), &s))
	assert.Nil(t, s.Value)
	require.NotNil(t, s.Err)
	assert.Equal(t, ErrNetwork, s.Err.Kind)
}

func TestDecodeValueUnknownKind(t *testing.T) {
	t.Parallel()

	_, err := DecodeValue(Kind("candles"), json.RawMessage(`{}`))
	assert.Error(t, err)

	v, err := DecodeValue(Kind("candles"), nil)
	assert.NoError(t, err)
	assert.Nil(t, v)
}
