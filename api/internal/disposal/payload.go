package disposal

import (
	"strconv"
	"strings"

	"disposal-bot/api/internal/normalize"
)

// ReasonUserInitiated is recorded when the user saves or requests pickup from a prediction.
const ReasonUserInitiated = "user_initiated"

// FormInputs is what the user typed on the prediction screen.
type FormInputs struct {
	GenericName string
	Reason      string
}

type ImageFile struct {
	Name string
	MIME string
	Data []byte
}

// Payload is the create-disposal request body. Nil pointers are sent as JSON null.
type Payload struct {
	GenericName        *string  `json:"genericName"`
	BrandName          *string  `json:"brandName"`
	DosageForm         *string  `json:"dosageForm"`
	Manufacturer       *string  `json:"manufacturer"`
	RiskLevel          string   `json:"riskLevel"`
	PredictedCategory  *string  `json:"predictedCategory"`
	Confidence         *float64 `json:"confidence"`
	DisposalGuidance   *string  `json:"disposalGuidance"`
	HandlingMethod     *string  `json:"handlingMethod"`
	DisposalRemarks    *string  `json:"disposalRemarks"`
	SimilarGenericName *string  `json:"similarGenericName"`
	SimilarityDistance *float64 `json:"similarityDistance"`
	InputChannel       string   `json:"inputChannel"`
	Reason             string   `json:"reason"`

	Image *ImageFile `json:"-"`
}

// BuildDisposalPayload maps a prediction onto the disposal record schema.
// It returns nil when there is no prediction; callers must not save in that case.
//
// riskLevel falls back to LOW when no risk could be read from the model output.
// That is a safe default for the record, not a detected risk.
func BuildDisposalPayload(p *normalize.Prediction, in FormInputs, img *ImageFile) *Payload {
	if p == nil {
		return nil
	}
	typed := strings.TrimSpace(in.GenericName)

	out := &Payload{
		GenericName: opt(
			p.SimilarGenericName,
			p.InputGenericName,
			p.OCRGenericName,
			p.Info.GenericName,
			typed,
			p.TypedName,
		),
		BrandName:          opt(p.BrandName, p.Info.BrandName),
		DosageForm:         opt(p.DosageForm, p.Info.DosageForm),
		Manufacturer:       opt(p.Manufacturer, p.Info.Manufacturer),
		PredictedCategory:  opt(p.Category.Raw),
		HandlingMethod:     opt(p.HandlingMethod),
		DisposalRemarks:    opt(p.Remarks),
		SimilarGenericName: opt(p.SimilarGenericName),
		SimilarityDistance: p.SimilarityDistance,
		InputChannel:       string(p.Channel),
		Reason:             strings.TrimSpace(in.Reason),
	}
	if p.PrimaryDisposalMethod != nil {
		out.DisposalGuidance = opt(*p.PrimaryDisposalMethod)
	}

	out.RiskLevel = string(normalize.RiskLow)
	if lvl := normalize.NormalizeRiskLevelForPayload(p.RiskRaw); lvl != "" {
		out.RiskLevel = string(lvl)
	} else if p.RiskLevel != "" && p.RiskLevel != normalize.RiskUnknown {
		out.RiskLevel = string(p.RiskLevel)
	}

	switch {
	case p.CategoryConfidence != nil:
		out.Confidence = p.CategoryConfidence
	case p.MethodConfidence != nil:
		out.Confidence = p.MethodConfidence
	}

	if out.Reason == "" {
		out.Reason = ReasonUserInitiated
	}
	if img != nil && len(img.Data) > 0 {
		cp := *img
		out.Image = &cp
	}
	return out
}

// Multipart reports whether the payload has to be sent as multipart/form-data.
func (p *Payload) Multipart() bool { return p != nil && p.Image != nil }

// Fields flattens the payload into form values for multipart submission.
// Null fields are omitted.
func (p *Payload) Fields() map[string]string {
	f := map[string]string{
		"riskLevel":    p.RiskLevel,
		"inputChannel": p.InputChannel,
		"reason":       p.Reason,
	}
	put := func(k string, v *string) {
		if v != nil {
			f[k] = *v
		}
	}
	putNum := func(k string, v *float64) {
		if v != nil {
			f[k] = strconv.FormatFloat(*v, 'f', -1, 64)
		}
	}
	put("genericName", p.GenericName)
	put("brandName", p.BrandName)
	put("dosageForm", p.DosageForm)
	put("manufacturer", p.Manufacturer)
	put("predictedCategory", p.PredictedCategory)
	put("disposalGuidance", p.DisposalGuidance)
	put("handlingMethod", p.HandlingMethod)
	put("disposalRemarks", p.DisposalRemarks)
	put("similarGenericName", p.SimilarGenericName)
	putNum("confidence", p.Confidence)
	putNum("similarityDistance", p.SimilarityDistance)
	return f
}

func opt(vals ...string) *string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return &s
		}
	}
	return nil
}
