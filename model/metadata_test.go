package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataMarshal(t *testing.T) {
	t.Run("Marshal empty metadata", func(t *testing.T) {
		bytes, err := Metadata{}.Marshal()
		require.NoError(t, err)
		assert.Equal(t, []byte("{}"), bytes)
	})

	t.Run("Value of nil metadata is an empty object", func(t *testing.T) {
		var m Metadata
		value, err := m.Value()
		require.NoError(t, err)
		assert.Equal(t, []byte("{}"), value)
	})

	t.Run("Value keeps nested values", func(t *testing.T) {
		m := Metadata{"cik": "0000320193", "fiscal": map[string]interface{}{"year": 2024}}
		value, err := m.Value()
		require.NoError(t, err)

		var result map[string]interface{}
		require.NoError(t, json.Unmarshal(value.([]byte), &result))
		assert.Equal(t, "0000320193", result["cik"])
		assert.Equal(t, float64(2024), result["fiscal"].(map[string]interface{})["year"])
	})
}

func TestMetadataScan(t *testing.T) {
	t.Run("Scan from JSON bytes", func(t *testing.T) {
		var m Metadata
		require.NoError(t, m.Scan([]byte(`{"source":"edgar"}`)))
		assert.Equal(t, "edgar", m.String("source"))
	})

	t.Run("Scan from JSON string", func(t *testing.T) {
		var m Metadata
		require.NoError(t, m.Scan(`{"source":"upload"}`))
		assert.Equal(t, "upload", m.String("source"))
	})

	t.Run("Scan nil gives empty metadata", func(t *testing.T) {
		var m Metadata
		require.NoError(t, m.Scan(nil))
		assert.NotNil(t, m)
		assert.Empty(t, m)
	})

	t.Run("Scan Metadata directly", func(t *testing.T) {
		var m Metadata
		require.NoError(t, m.Scan(Metadata{"a": "b"}))
		assert.Equal(t, "b", m.String("a"))
	})

	t.Run("Scan invalid JSON fails", func(t *testing.T) {
		var m Metadata
		assert.Error(t, m.Scan([]byte(`{"broken"`)))
	})

	t.Run("Scan unsupported type fails", func(t *testing.T) {
		var m Metadata
		err := m.Scan(12345)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported type")
	})

	t.Run("String of non-string value is empty", func(t *testing.T) {
		assert.Equal(t, "", Metadata{"n": 1}.String("n"))
	})
}
