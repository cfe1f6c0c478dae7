// Package prompt holds the instructions and output schema shared by the LLM engines.
package prompt

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"disposal-bot/api/internal/normalize"
	"disposal-bot/api/internal/util"
)

//go:embed prediction.schema.json
var predictionSchema []byte

const System = `You are a pharmaceutical waste assistant for community health programmes.
Given a medicine name or a photo of a medicine package, classify how the medicine must be disposed of.
Rules:
1) Identify the generic name. If the input is a brand or misspelt name, put the closest generic in similar_generic_name.
2) disposal_category and method_of_disposal are ranked candidate lists [{value, confidence}] with confidence in 0..1, best first.
3) risk_level is one of LOW, MEDIUM, HIGH. Controlled substances, cytotoxics, antibiotics and sharps are never LOW.
4) handling_method describes how to store or pack the item before disposal; leave it empty if it repeats the method.
5) For photos, copy the printed label fields verbatim into ocr_fields (medicine_name, brand_name, dosage, expiry_date, batch_number, manufacturer, storage, instructions, warnings). Never invent fields that are not printed.
Return ONLY JSON that matches prediction.schema.json. Any text outside JSON is an error.`

const ImageTask = "Photo of a medicine package. Answer strictly with JSON per prediction.schema.json, fill ocr_fields."

// Schema is the compiled prediction schema plus its text for the prompt.
type Schema struct {
	Text     string
	compiled *jsonschema.Schema
}

var (
	once    sync.Once
	loaded  *Schema
	loadErr error
)

// Load compiles prediction.schema.json once. PROMPT_DIR may override it.
func Load() (*Schema, error) {
	once.Do(func() {
		doc, err := util.LoadPromptSchema("prediction", predictionSchema)
		if err != nil {
			loadErr = err
			return
		}
		text, _ := json.MarshalIndent(doc, "", "  ")

		c := jsonschema.NewCompiler()
		if err := c.AddResource("prediction.schema.json", doc); err != nil {
			loadErr = fmt.Errorf("prompt: add schema: %w", err)
			return
		}
		sch, err := c.Compile("prediction.schema.json")
		if err != nil {
			loadErr = fmt.Errorf("prompt: compile schema: %w", err)
			return
		}
		loaded = &Schema{Text: string(text), compiled: sch}
	})
	return loaded, loadErr
}

// TextInput is the user turn for a typed medicine name.
func TextInput(genericName string) string {
	in, _ := json.Marshal(map[string]string{"channel": "text", "generic_name": genericName})
	return "INPUT_JSON:\n" + string(in)
}

// Decode parses model output, tolerating code fences, and validates it.
func (s *Schema) Decode(txt string) (*normalize.Object, error) {
	obj, err := normalize.ParseObject([]byte(util.StripCodeFences(txt)))
	if err != nil {
		return nil, fmt.Errorf("bad JSON: %w", err)
	}
	if err := s.compiled.Validate(obj.Map()); err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}
	return obj, nil
}
