package normalize

import "strings"

type Channel string

const (
	ChannelText  Channel = "text"
	ChannelImage Channel = "image"
)

// Input is what the user supplied alongside the raw model output.
type Input struct {
	Channel   Channel
	TypedName string
}

type Category struct {
	Raw             string `json:"raw"`
	Value           string `json:"value"`
	ConfidenceLabel string `json:"confidenceLabel"`
}

// MedicineInfo is the model's nested description of the medicine.
type MedicineInfo struct {
	GenericName  string `json:"genericName,omitempty"`
	BrandName    string `json:"brandName,omitempty"`
	DosageForm   string `json:"dosageForm,omitempty"`
	Manufacturer string `json:"manufacturer,omitempty"`
}

// Prediction is the canonical, shape-independent view of one model response.
type Prediction struct {
	Channel               Channel   `json:"channel"`
	IdentifiedMedicine    string    `json:"identifiedMedicine"`
	Category              Category  `json:"category"`
	RiskLevel             RiskLevel `json:"riskLevel"`
	PrimaryDisposalMethod *string   `json:"primaryDisposalMethod"`
	Confidence            *float64  `json:"confidence"`
	OCRSummary            []OCRItem `json:"ocrSummary"`

	RiskRaw            string       `json:"riskRaw,omitempty"`
	CategoryConfidence *float64     `json:"categoryConfidence,omitempty"`
	MethodConfidence   *float64     `json:"methodConfidence,omitempty"`
	DosageForm         string       `json:"dosageForm,omitempty"`
	Manufacturer       string       `json:"manufacturer,omitempty"`
	BrandName          string       `json:"brandName,omitempty"`
	HandlingMethod     string       `json:"handlingMethod,omitempty"`
	Remarks            string       `json:"remarks,omitempty"`
	SimilarGenericName string       `json:"similarGenericName,omitempty"`
	SimilarityDistance *float64     `json:"similarityDistance,omitempty"`
	InputGenericName   string       `json:"inputGenericName,omitempty"`
	OCRGenericName     string       `json:"ocrGenericName,omitempty"`
	TypedName          string       `json:"typedName,omitempty"`
	Info               MedicineInfo `json:"medicineInfo"`
}

var (
	categoryKeys = []string{"disposal_category", "category", "predicted_category"}
	methodKeys   = []string{"method_of_disposal", "disposal_method", "method"}
	riskKeys     = []string{"risk_level", "risk"}
	infoKeys     = []string{"medicine_info", "medicine", "drug_info"}
	ocrKeys      = []string{"ocr_fields", "ocr", "ocr_result", "ocr_data", "extracted_fields"}
	ocrTextKeys  = []string{"ocr_text", "extracted_text", "raw_text"}
)

// Normalize reduces a raw prediction payload to a Prediction. It never fails;
// missing fields resolve to sentinels. A nil payload yields nil.
func Normalize(raw *Object, in Input) *Prediction {
	if raw == nil {
		return nil
	}
	p := &Prediction{
		Channel:   in.Channel,
		TypedName: strings.TrimSpace(in.TypedName),
		RiskLevel: RiskUnknown,
	}

	if c := Top(firstValue(raw, categoryKeys...)); c != nil {
		p.Category.Raw = c.Value
		p.CategoryConfidence = c.Confidence
	}
	if p.CategoryConfidence == nil {
		if f, ok := ToConfidence(firstValue(raw, "category_confidence", "confidence")); ok {
			p.CategoryConfidence = floatPtr(f)
		}
	}
	p.Category.Value = FormatCategoryLabel(p.Category.Raw)
	p.Category.ConfidenceLabel = PercentOrDash(p.CategoryConfidence)

	if c := Top(firstValue(raw, methodKeys...)); c != nil {
		p.PrimaryDisposalMethod = &c.Value
		p.MethodConfidence = c.Confidence
	}
	if p.MethodConfidence == nil {
		if f, ok := ToConfidence(firstValue(raw, "method_confidence")); ok {
			p.MethodConfidence = floatPtr(f)
		}
	}
	switch {
	case p.CategoryConfidence != nil:
		p.Confidence = floatPtr(*p.CategoryConfidence)
	case p.MethodConfidence != nil:
		p.Confidence = floatPtr(*p.MethodConfidence)
	}

	if c := Top(firstValue(raw, riskKeys...)); c != nil {
		p.RiskRaw = c.Value
		if lvl := NormalizeRiskLevelForPayload(c.Value); lvl != "" {
			p.RiskLevel = lvl
		}
	}

	p.DosageForm = topValue(raw, "dosage_form")
	p.Manufacturer = topValue(raw, "manufacturer")
	p.BrandName = topValue(raw, "brand_name")
	p.HandlingMethod = topValue(raw, "handling_method")
	p.Remarks = topValue(raw, "disposal_remarks", "remarks")
	p.SimilarGenericName = topValue(raw, "similar_generic_name")
	p.InputGenericName = topValue(raw, "input_generic_name", "generic_name")
	if f, ok := toFloat(firstValue(raw, "similarity_distance")); ok {
		p.SimilarityDistance = floatPtr(f)
	}

	if info := raw.Object(infoKeys...); info != nil {
		p.Info = MedicineInfo{
			GenericName:  info.String("generic_name", "name"),
			BrandName:    info.String("brand_name", "brand"),
			DosageForm:   info.String("dosage_form", "form"),
			Manufacturer: info.String("manufacturer"),
		}
	}

	ocr, hasOCR := raw.First(ocrKeys...)
	if !hasOCR {
		ocr, hasOCR = raw.First(ocrTextKeys...)
	}
	if hasOCR && p.Channel == "" {
		p.Channel = ChannelImage
	}
	if p.Channel == "" {
		p.Channel = ChannelText
	}
	if p.Channel == ChannelImage && hasOCR {
		p.OCRSummary = BuildOCRSummaryItems(ocr)
		if o, ok := ocr.(*Object); ok {
			p.OCRGenericName = o.String("generic_name", "medicine_name", "drug_name", "name")
		}
	} else {
		p.OCRSummary = []OCRItem{}
	}

	p.IdentifiedMedicine = firstNonEmpty(
		p.SimilarGenericName,
		p.Info.GenericName,
		p.OCRGenericName,
		p.InputGenericName,
		p.TypedName,
	)
	return p
}

func firstValue(o *Object, keys ...string) any {
	v, _ := o.First(keys...)
	return v
}

func topValue(o *Object, keys ...string) string {
	if c := Top(firstValue(o, keys...)); c != nil {
		return c.Value
	}
	return ""
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
