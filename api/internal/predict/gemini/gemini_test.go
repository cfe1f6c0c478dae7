package gemini

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"disposal-bot/api/internal/normalize"
	"disposal-bot/api/internal/predict"
)

func TestDecode_Valid(t *testing.T) {
	e := New("k", "gemini-2.5-flash")
	obj, err := e.Decode("```json\n" + `{
		"similar_generic_name": "Amoxicillin",
		"disposal_category": [{"value":"category2","confidence":0.8},{"value":"category5","confidence":0.1}],
		"method_of_disposal": "High-temperature incineration",
		"risk_level": "MEDIUM",
		"ocr_fields": {"brand_name":"Amoxil","warnings":["Finish the course"],"batch_number":null}
	}` + "\n```")
	require.NoError(t, err)

	p := normalize.Normalize(obj, normalize.Input{})
	assert.Equal(t, "Category 2", p.Category.Value)
	assert.Equal(t, normalize.RiskMedium, p.RiskLevel)
	assert.Equal(t, normalize.ChannelImage, p.Channel)
	assert.Len(t, p.OCRSummary, 2)
}

func TestDecode_SchemaViolations(t *testing.T) {
	e := New("k", "m")
	for name, txt := range map[string]string{
		"missing required": `{"risk_level":"LOW"}`,
		"bad risk":         `{"disposal_category":"c1","method_of_disposal":"m","risk_level":"SEVERE"}`,
		"empty candidate":  `{"disposal_category":[{"value":""}],"method_of_disposal":"m","risk_level":"LOW"}`,
		"not an object":    `["LOW"]`,
		"not json":         `I think it is category 2`,
	} {
		_, err := e.Decode(txt)
		assert.Error(t, err, name)
	}
}

func TestEmptyInputsAndKey(t *testing.T) {
	e := New("", "m")
	_, err := e.PredictText(context.Background(), " ")
	assert.Equal(t, "Please enter a medicine name.", predict.MessageOf(err, ""))

	_, err = e.PredictText(context.Background(), "Ibuprofen")
	assert.EqualError(t, err, "GEMINI_API_KEY is empty")
}

func TestSetModel(t *testing.T) {
	e := New("k", "gemini-2.5-flash")
	e.SetModel("  ")
	assert.Equal(t, "gemini-2.5-flash", e.GetModel())
	e.SetModel("gemini-2.5-pro")
	assert.Equal(t, "gemini-2.5-pro", e.GetModel())
}
