package normalize

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_TextChannel(t *testing.T) {
	raw := mustParse(t, `{
		"input_generic_name": "paracetamol",
		"similar_generic_name": "Paracetamol",
		"similarity_distance": 0.02,
		"disposal_category": "category1",
		"confidence": 91,
		"method_of_disposal": "Return to pharmacy take-back",
		"risk_level": "low",
		"handling_method": "Keep in original blister",
		"disposal_remarks": "Do not flush"
	}`)

	p := Normalize(raw, Input{Channel: ChannelText, TypedName: "paracetamol"})
	require.NotNil(t, p)

	assert.Equal(t, ChannelText, p.Channel)
	assert.Equal(t, "Paracetamol", p.IdentifiedMedicine)
	assert.Equal(t, "category1", p.Category.Raw)
	assert.Equal(t, "Category 1", p.Category.Value)
	assert.Equal(t, "91%", p.Category.ConfidenceLabel)
	assert.Equal(t, RiskLow, p.RiskLevel)
	require.NotNil(t, p.PrimaryDisposalMethod)
	assert.Equal(t, "Return to pharmacy take-back", *p.PrimaryDisposalMethod)
	require.NotNil(t, p.Confidence)
	assert.InDelta(t, 0.91, *p.Confidence, 1e-9)
	assert.InDelta(t, 0.02, *p.SimilarityDistance, 1e-9)
	assert.Empty(t, p.OCRSummary)
	assert.NotNil(t, p.OCRSummary)
}

func TestNormalize_ImageChannelRankedCandidates(t *testing.T) {
	raw := mustParse(t, `{
		"disposal_category": [{"label":"category2","confidence":40},{"label":"category5","confidence":88}],
		"method_of_disposal": [{"value":"Encapsulation","score":0.3},{"value":"High-temperature incineration","score":0.7}],
		"dosage_form": [{"value":"Injection","confidence":0.9}],
		"risk_level": [{"value":"Moderate (MEDIUM risk)"}],
		"medicine_info": {"generic_name":"Insulin glargine","manufacturer":"Sanofi"},
		"ocr_fields": {"brand_name":"Lantus","batch_number":"B77"}
	}`)

	p := Normalize(raw, Input{})
	require.NotNil(t, p)

	assert.Equal(t, ChannelImage, p.Channel, "OCR presence implies the image channel")
	assert.Equal(t, "Category 5", p.Category.Value)
	assert.InDelta(t, 0.88, *p.CategoryConfidence, 1e-9)
	assert.Equal(t, "High-temperature incineration", *p.PrimaryDisposalMethod)
	assert.InDelta(t, 0.7, *p.MethodConfidence, 1e-9)
	assert.InDelta(t, 0.88, *p.Confidence, 1e-9)
	assert.Equal(t, RiskMedium, p.RiskLevel)
	assert.Equal(t, "Injection", p.DosageForm)
	assert.Equal(t, "Insulin glargine", p.IdentifiedMedicine)
	assert.Equal(t, "Sanofi", p.Info.Manufacturer)
	assert.Equal(t, []OCRItem{
		{Label: "Brand Name", Value: "Lantus"},
		{Label: "Batch Number", Value: "B77"},
	}, p.OCRSummary)
}

func TestNormalize_MethodConfidenceFallback(t *testing.T) {
	raw := mustParse(t, `{"method_of_disposal": {"value":"Landfill","confidence":0.6}}`)
	p := Normalize(raw, Input{Channel: ChannelText})
	assert.Equal(t, NotClassified, p.Category.Value)
	assert.Equal(t, Dash, p.Category.ConfidenceLabel)
	require.NotNil(t, p.Confidence)
	assert.InDelta(t, 0.6, *p.Confidence, 1e-9)
	assert.Equal(t, RiskUnknown, p.RiskLevel)
}

func TestNormalize_EmptyAndNil(t *testing.T) {
	assert.Nil(t, Normalize(nil, Input{}))

	p := Normalize(NewObject(), Input{TypedName: "  Amoxicillin "})
	require.NotNil(t, p)
	assert.Equal(t, "Amoxicillin", p.IdentifiedMedicine)
	assert.Equal(t, NotClassified, p.Category.Value)
	assert.Nil(t, p.PrimaryDisposalMethod)
	assert.Nil(t, p.Confidence)
}

func TestNormalize_TextChannelIgnoresOCR(t *testing.T) {
	raw := mustParse(t, `{"ocr_text":"Amoxicillin 250mg"}`)
	p := Normalize(raw, Input{Channel: ChannelText})
	assert.Empty(t, p.OCRSummary)
}

func TestObject_RoundTripKeepsOrder(t *testing.T) {
	raw := mustParse(t, `{"z":1,"a":{"y":[true,null],"b":"x"}}`)
	b, err := json.Marshal(raw)
	require.NoError(t, err)
	assert.JSONEq(t, `{"z":1,"a":{"y":[true,null],"b":"x"}}`, string(b))
	assert.Equal(t, `{"z":1,"a":{"y":[true,null],"b":"x"}}`, string(b))
	assert.Equal(t, []string{"z", "a"}, raw.Keys())

	_, err = ParseObject([]byte(`[1,2]`))
	assert.Error(t, err)
}
