package disposal

import (
	"strings"

	"disposal-bot/api/internal/normalize"
)

type Section struct {
	Label string `json:"label"`
	Body  string `json:"body"`
}

type QuickRef struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

const fallbackGuidance = "Keep the medicine in its original packaging and ask a community health worker or pharmacy for the right disposal route"

var riskNotes = map[normalize.RiskLevel]string{
	normalize.RiskHigh:   "It can seriously harm people, animals or water sources if it is thrown away with household waste",
	normalize.RiskMedium: "It needs controlled disposal and should not go into household waste",
	normalize.RiskLow:    "It is low risk, but it still should not be flushed or burned at home",
}

// BuildSummarySections renders the prediction as ordered, human-readable sections.
// Sections without content are left out. The result depends only on p.
func BuildSummarySections(p *normalize.Prediction) []Section {
	if p == nil {
		return nil
	}
	var out []Section
	add := func(label string, sentences ...string) {
		body := joinSentences(sentences...)
		if body != "" {
			out = append(out, Section{Label: label, Body: body})
		}
	}

	if name := strings.TrimSpace(p.IdentifiedMedicine); name != "" {
		found := []string{"We identified " + name}
		if form := firstNonBlank(p.DosageForm, p.Info.DosageForm); form != "" {
			found = append(found, "Dosage form: "+form)
		}
		if m := firstNonBlank(p.Manufacturer, p.Info.Manufacturer); m != "" {
			found = append(found, "Manufactured by "+m)
		}
		add("What We Found", found...)
	}

	if strings.TrimSpace(p.Category.Raw) != "" {
		why := "This medicine falls under " + p.Category.Value
		if p.Category.ConfidenceLabel != normalize.Dash {
			why += " (" + p.Category.ConfidenceLabel + " confidence)"
		}
		add("Why It Matters",
			why,
			"Risk level: "+normalize.FormatRiskLevel(string(p.RiskLevel)),
			riskNotes[p.RiskLevel],
		)
	}

	method := ""
	if p.PrimaryDisposalMethod != nil {
		method = strings.TrimSpace(*p.PrimaryDisposalMethod)
	}
	if method != "" {
		add("How To Dispose", method)
	} else {
		add("How To Dispose", fallbackGuidance)
	}

	if h := strings.TrimSpace(p.HandlingMethod); h != "" && !sameInstruction(h, method) {
		add("Handle With Care", h)
	}
	add("Remember", p.Remarks)
	return out
}

// CallToAction picks the closing prompt by risk tier. Empty without a prediction.
func CallToAction(p *normalize.Prediction) string {
	if p == nil {
		return ""
	}
	switch p.RiskLevel {
	case normalize.RiskHigh:
		return "This medicine is high risk. Please contact a community health worker and request a pickup instead of disposing of it yourself."
	case normalize.RiskMedium:
		return "Save this disposal to your history or request a CHW pickup for safe collection."
	default:
		return "Save this disposal to keep a record, or request a pickup if you would like help."
	}
}

// BuildQuickReference is the compact grid shown next to the summary.
func BuildQuickReference(p *normalize.Prediction) []QuickRef {
	if p == nil {
		return nil
	}
	method := normalize.Dash
	if p.PrimaryDisposalMethod != nil && strings.TrimSpace(*p.PrimaryDisposalMethod) != "" {
		method = strings.TrimSpace(*p.PrimaryDisposalMethod)
	}
	medicine := strings.TrimSpace(p.IdentifiedMedicine)
	if medicine == "" {
		medicine = normalize.Dash
	}
	return []QuickRef{
		{Label: "Medicine", Value: medicine},
		{Label: "Category", Value: p.Category.Value},
		{Label: "Risk Level", Value: normalize.FormatRiskLevel(string(p.RiskLevel))},
		{Label: "Confidence", Value: normalize.PercentOrDash(p.Confidence)},
		{Label: "Disposal Method", Value: method},
	}
}

// sentence collapses whitespace and makes sure the text ends with . ! or ?
func sentence(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return ""
	}
	switch s[len(s)-1] {
	case '.', '!', '?':
		return s
	}
	return s + "."
}

func joinSentences(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := sentence(p); s != "" {
			out = append(out, s)
		}
	}
	return strings.Join(out, " ")
}

func sameInstruction(a, b string) bool {
	norm := func(s string) string {
		return strings.TrimRight(strings.ToLower(strings.Join(strings.Fields(s), " ")), ".!?")
	}
	return norm(a) == norm(b)
}

func firstNonBlank(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
