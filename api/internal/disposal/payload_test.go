package disposal

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"disposal-bot/api/internal/normalize"
)

func predict(t *testing.T, raw string, in normalize.Input) *normalize.Prediction {
	t.Helper()
	o, err := normalize.ParseObject([]byte(raw))
	require.NoError(t, err)
	p := normalize.Normalize(o, in)
	require.NotNil(t, p)
	return p
}

func TestBuildDisposalPayload_NoPrediction(t *testing.T) {
	assert.Nil(t, BuildDisposalPayload(nil, FormInputs{GenericName: "x"}, nil))
}

func TestBuildDisposalPayload_DefaultsRiskToLow(t *testing.T) {
	p := predict(t, `{"disposal_category":"category2"}`, normalize.Input{Channel: normalize.ChannelText})
	pl := BuildDisposalPayload(p, FormInputs{GenericName: "Ibuprofen"}, nil)
	require.NotNil(t, pl)
	assert.Equal(t, "LOW", pl.RiskLevel)
	assert.Equal(t, ReasonUserInitiated, pl.Reason)
	require.NotNil(t, pl.GenericName)
	assert.Equal(t, "Ibuprofen", *pl.GenericName)
	assert.Nil(t, pl.Confidence)
	assert.Nil(t, pl.DisposalGuidance)
	assert.False(t, pl.Multipart())
}

func TestBuildDisposalPayload_Paracetamol(t *testing.T) {
	p := predict(t, `{
		"similar_generic_name": "Paracetamol",
		"disposal_category": [{"value":"category1","confidence":0.82}],
		"method_of_disposal": "Return unused tablets to a pharmacy take-back point",
		"risk_level": "low"
	}`, normalize.Input{Channel: normalize.ChannelText, TypedName: "paracetamol"})

	assert.Equal(t, normalize.RiskLow, p.RiskLevel)
	assert.Equal(t, "Category 1", p.Category.Value)

	pl := BuildDisposalPayload(p, FormInputs{GenericName: "paracetamol"}, nil)
	require.NotNil(t, pl)
	assert.Equal(t, "Paracetamol", *pl.GenericName)
	assert.Equal(t, "LOW", pl.RiskLevel)
	assert.Equal(t, "category1", *pl.PredictedCategory)
	assert.InDelta(t, 0.82, *pl.Confidence, 1e-9)
	assert.Equal(t, "text", pl.InputChannel)

	b, err := json.Marshal(pl)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Equal(t, "Paracetamol", m["genericName"])
	assert.Contains(t, m, "brandName")
	assert.Nil(t, m["brandName"])
	assert.NotContains(t, m, "Image")
}

func TestBuildDisposalPayload_FallbackChain(t *testing.T) {
	p := predict(t, `{
		"risk_level": "Very HIGH hazard",
		"medicine_info": {"generic_name":"Morphine","brand_name":"MST","dosage_form":"Tablet"},
		"method_confidence": 67,
		"method_of_disposal": "Incineration"
	}`, normalize.Input{Channel: normalize.ChannelText})

	pl := BuildDisposalPayload(p, FormInputs{GenericName: "morph", Reason: "expired"}, nil)
	assert.Equal(t, "Morphine", *pl.GenericName)
	assert.Equal(t, "MST", *pl.BrandName)
	assert.Equal(t, "Tablet", *pl.DosageForm)
	assert.Nil(t, pl.Manufacturer)
	assert.Equal(t, "HIGH", pl.RiskLevel)
	assert.InDelta(t, 0.67, *pl.Confidence, 1e-9)
	assert.Equal(t, "Incineration", *pl.DisposalGuidance)
	assert.Equal(t, "expired", pl.Reason)
}

func TestBuildDisposalPayload_ImageIsCarried(t *testing.T) {
	p := predict(t, `{"ocr_text":"Amoxicillin 500mg","risk_level":"medium"}`, normalize.Input{})
	img := &ImageFile{Name: "box.jpg", MIME: "image/jpeg", Data: []byte{0xFF, 0xD8, 0x01}}

	pl := BuildDisposalPayload(p, FormInputs{GenericName: "Amoxicillin"}, img)
	require.True(t, pl.Multipart())
	assert.Equal(t, "image", pl.InputChannel)
	assert.Equal(t, img.Data, pl.Image.Data)

	f := pl.Fields()
	assert.Equal(t, "MEDIUM", f["riskLevel"])
	assert.Equal(t, "Amoxicillin", f["genericName"])
	assert.NotContains(t, f, "confidence")

	empty := BuildDisposalPayload(p, FormInputs{}, &ImageFile{Name: "x"})
	assert.False(t, empty.Multipart())
}
