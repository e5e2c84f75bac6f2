package envelope

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSuccess(t *testing.T) {
	e := Build(200, "req-1", map[string]string{"tone": "neutral"}, "")

	assert.True(t, e.Success)
	assert.NotNil(t, e.Data)
	assert.Empty(t, e.Error)
	assert.Equal(t, "req-1", e.RequestID)
	assert.Equal(t, Version, e.Version)

	// timestamp — валидный ISO-8601
	_, err := time.Parse(time.RFC3339, e.Timestamp)
	assert.NoError(t, err)
}

func TestBuildFailure(t *testing.T) {
	// success выводится только из статуса; data и error взаимоисключающие
	e := Build(400, "req-2", map[string]string{"ignored": "yes"}, "text is required")

	assert.False(t, e.Success)
	assert.Nil(t, e.Data)
	assert.Equal(t, "text is required", e.Error)
}

func TestBuildWireShape(t *testing.T) {
	raw, err := json.Marshal(Build(400, "req-3", nil, "boom"))
	require.NoError(t, err)

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &m))

	assert.Equal(t, false, m["success"])
	assert.Equal(t, "boom", m["error"])
	assert.Equal(t, "v1", m["contract_version"])
	_, hasData := m["data"]
	assert.False(t, hasData, "data must be omitted on failure")
}

func TestEncodeGuarded(t *testing.T) {
	raw, err := EncodeGuarded(map[string]string{"a": "b"}, 1024)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":"b"}`, string(raw))

	// Превышение потолка отклоняется до передачи
	_, err = EncodeGuarded(map[string]string{"a": string(make([]byte, 2048))}, 1024)
	assert.ErrorIs(t, err, ErrTooLarge)
}
