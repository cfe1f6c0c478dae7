package mlservice

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"disposal-bot/api/internal/normalize"
	"disposal-bot/api/internal/predict"
)

func TestPredictText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/predict/text", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Paracetamol", body["generic_name"])
		_, _ = io.WriteString(w, `{
			"success": true,
			"input_generic_name": "Paracetamol",
			"similar_generic_name": "Paracetamol",
			"predictions": {"disposal_category":"category1","risk_level":"LOW","similar_generic_name":"paracetamol"}
		}`)
	}))
	defer srv.Close()

	e := New(srv.URL+"/", "")
	assert.Equal(t, "default", e.GetModel())
	raw, err := e.PredictText(context.Background(), "  Paracetamol ")
	require.NoError(t, err)

	assert.Equal(t, []string{"disposal_category", "risk_level", "similar_generic_name", "input_generic_name"}, raw.Keys())
	assert.Equal(t, "paracetamol", raw.String("similar_generic_name"), "predictions win over top-level fields")

	p := normalize.Normalize(raw, normalize.Input{Channel: normalize.ChannelText})
	assert.Equal(t, normalize.RiskLow, p.RiskLevel)
}

func TestPredictText_AcceptsAny2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"similar_generic_name":"Ibuprofen","risk_level":"MEDIUM"}`)
	}))
	defer srv.Close()

	raw, err := New(srv.URL, "").PredictText(context.Background(), "ibuprofen")
	require.NoError(t, err)
	assert.Equal(t, "Ibuprofen", raw.String("similar_generic_name"))
}

func TestPredictImage_MultipartAndOCRMerge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/predict/image", r.URL.Path)
		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		assert.Equal(t, "medicine.jpg", hdr.Filename)
		assert.Equal(t, "image/jpeg", hdr.Header.Get("Content-Type"))
		_, _ = io.WriteString(w, `{
			"success": true,
			"predictions": {"disposal_category":[{"label":"category3","confidence":71}]},
			"ocr_fields": {"brand_name":"Augmentin","expiry_date":"2025-10"}
		}`)
	}))
	defer srv.Close()

	raw, err := New(srv.URL, "v2").PredictImage(context.Background(), []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00}, "")
	require.NoError(t, err)

	p := normalize.Normalize(raw, normalize.Input{Channel: normalize.ChannelImage})
	assert.Equal(t, "Category 3", p.Category.Value)
	assert.Equal(t, []normalize.OCRItem{
		{Label: "Brand Name", Value: "Augmentin"},
		{Label: "Expiry Date", Value: "2025-10"},
	}, p.OCRSummary)
}

func TestFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		msg    string
	}{
		{"success false", http.StatusOK, `{"success":false,"error":"Medicine not recognised"}`, "Medicine not recognised"},
		{"fastapi detail", http.StatusUnprocessableEntity, `{"detail":"generic_name is required"}`, "generic_name is required"},
		{"object error", http.StatusBadGateway, `{"error":{"message":"model offline"}}`, "model offline"},
		{"plain text", http.StatusInternalServerError, `boom`, "the prediction service returned status 500"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			_, err := New(srv.URL, "").PredictText(context.Background(), "x")
			require.Error(t, err)
			var fe *predict.FailedError
			require.True(t, errors.As(err, &fe))
			assert.Equal(t, tt.msg, predict.MessageOf(err, "fallback"))
		})
	}
}

func TestEmptyInputs(t *testing.T) {
	e := New("http://unused", "")
	_, err := e.PredictText(context.Background(), "  ")
	assert.Equal(t, "Please enter a medicine name.", predict.MessageOf(err, ""))
	_, err = e.PredictImage(context.Background(), nil, "")
	assert.Equal(t, "The photo is empty.", predict.MessageOf(err, ""))
}
