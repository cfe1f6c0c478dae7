package util

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FlexMessage decodes an error field that is either a string or an object
// carrying the text under "message" (or "error"/"detail").
type FlexMessage string

func (m *FlexMessage) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*m = ""
		return nil
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*m = FlexMessage(strings.TrimSpace(s))
	case '{':
		var o struct {
			Message string `json:"message"`
			Error   string `json:"error"`
			Detail  string `json:"detail"`
		}
		if err := json.Unmarshal(b, &o); err != nil {
			// nested non-string fields: keep the raw object as text
			*m = FlexMessage(string(b))
			return nil
		}
		for _, s := range []string{o.Message, o.Error, o.Detail} {
			if s = strings.TrimSpace(s); s != "" {
				*m = FlexMessage(s)
				return nil
			}
		}
		*m = ""
	case 't', 'f':
		// some backends send "error": true
		*m = ""
	default:
		*m = FlexMessage(string(b))
	}
	return nil
}

func (m FlexMessage) String() string { return string(m) }

// LoadPromptSchema reads <name>.schema.json from PROMPT_DIR when present, otherwise
// decodes the embedded default.
func LoadPromptSchema(name string, embedded []byte) (map[string]any, error) {
	raw := embedded
	if dir := strings.TrimSpace(os.Getenv("PROMPT_DIR")); dir != "" {
		p := filepath.Join(dir, name+".schema.json")
		if b, err := os.ReadFile(p); err == nil && len(b) > 0 {
			raw = b
		}
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("schema %q not found", name)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("bad %s schema: %w", name, err)
	}
	ensureSchemaMeta(m)
	return m, nil
}

// Some validators expect $schema to be present.
func ensureSchemaMeta(m map[string]any) {
	if _, ok := m["$schema"]; !ok {
		m["$schema"] = "http://json-schema.org/draft-07/schema#"
	}
}
