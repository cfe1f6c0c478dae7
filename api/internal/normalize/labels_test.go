package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatCategoryLabel(t *testing.T) {
	tests := []struct{ in, want string }{
		{"category3", "Category 3"},
		{"Category 7", "Category 7"},
		{"category_12", "Category 12"},
		{"5", "Category 5"},
		{"", NotClassified},
		{"   ", NotClassified},
		{"expired_tablets", "Expired tablets"},
		{"sharps • needles and lancets", "Sharps"},
		{"category4 | model v2", "Category 4"},
		{"| orphan suffix", NotClassified},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatCategoryLabel(tt.in), "input %q", tt.in)
	}
}

func TestFormatRiskLevel(t *testing.T) {
	assert.Equal(t, "UNKNOWN", FormatRiskLevel(""))
	assert.Equal(t, "VERY HIGH", FormatRiskLevel("very_high"))
	assert.Equal(t, "LOW", FormatRiskLevel("low"))
}

func TestNormalizeRiskLevelForPayload(t *testing.T) {
	assert.Equal(t, RiskMedium, NormalizeRiskLevelForPayload("Moderate (MEDIUM risk)"))
	assert.Equal(t, RiskHigh, NormalizeRiskLevelForPayload("high"))
	assert.Equal(t, RiskHigh, NormalizeRiskLevelForPayload("LOW to HIGH"))
	assert.Equal(t, RiskLow, NormalizeRiskLevelForPayload("risk_low"))
	assert.Equal(t, RiskLevel(""), NormalizeRiskLevelForPayload("unknown"))
	assert.Equal(t, RiskLevel(""), NormalizeRiskLevelForPayload(""))
}
