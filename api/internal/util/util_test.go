package util

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlexMessage(t *testing.T) {
	tests := map[string]string{
		`{"error":"Invalid token"}`:                   "Invalid token",
		`{"error":{"message":"Disposal not found"}}`: "Disposal not found",
		`{"error":{"detail":"rate limited"}}`:        "rate limited",
		`{"error":null}`:                             "",
		`{"error":true}`:                             "",
		`{}`:                                         "",
	}
	for in, want := range tests {
		var v struct {
			Error FlexMessage `json:"error"`
		}
		require.NoError(t, json.Unmarshal([]byte(in), &v), in)
		assert.Equal(t, want, v.Error.String(), in)
	}
}

func TestStripCodeFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, StripCodeFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, StripCodeFences(`{"a":1}`))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "ab…", Truncate("abcdef", 2))
	assert.Equal(t, "абв…", Truncate("абвгд", 3))
}

func TestDecodeBase64MaybeDataURL(t *testing.T) {
	b, mime, err := DecodeBase64MaybeDataURL("data:image/png;base64,aGVsbG8=")
	require.NoError(t, err)
	assert.Equal(t, "image/png", mime)
	assert.Equal(t, []byte("hello"), b)

	_, _, err = DecodeBase64MaybeDataURL("%%%")
	assert.Error(t, err)
}

func TestPickMIME(t *testing.T) {
	assert.Equal(t, "image/webp", PickMIME("image/webp", "image/png", nil))
	assert.Equal(t, "image/png", PickMIME("", "image/png", nil))
	assert.Equal(t, "image/jpeg", PickMIME("", "", []byte{0xFF, 0xD8, 0xFF, 0xE0}))
	assert.Equal(t, "image/jpeg", SniffMimeHTTP([]byte{0xFF, 0xD8}))
	assert.Equal(t, ".png", ExtForMIME("image/png"))
}

func TestLoadPromptSchema(t *testing.T) {
	m, err := LoadPromptSchema("prediction", []byte(`{"type":"object"}`))
	require.NoError(t, err)
	assert.Equal(t, "object", m["type"])
	assert.Contains(t, m, "$schema")

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "prediction.schema.json"), []byte(`{"type":"array"}`), 0o600))
	t.Setenv("PROMPT_DIR", dir)
	m, err = LoadPromptSchema("prediction", []byte(`{"type":"object"}`))
	require.NoError(t, err)
	assert.Equal(t, "array", m["type"])

	_, err = LoadPromptSchema("missing", nil)
	assert.Error(t, err)
}

func TestSHA256Hex(t *testing.T) {
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", SHA256Hex([]byte("hello")))
}
