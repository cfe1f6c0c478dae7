package normalize

import (
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

type OCRItem struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

var ocrLabels = map[string]string{
	"medicine_name":        "Medicine Name",
	"drug_name":            "Medicine Name",
	"name":                 "Medicine Name",
	"generic_name":         "Generic Name",
	"brand_name":           "Brand Name",
	"brand":                "Brand Name",
	"dosage":               "Dosage",
	"strength":             "Dosage",
	"dosage_strength":      "Dosage",
	"dosage_form":          "Dosage Form",
	"form":                 "Dosage Form",
	"expiry_date":          "Expiry Date",
	"expiry":               "Expiry Date",
	"exp_date":             "Expiry Date",
	"expiration_date":      "Expiry Date",
	"batch_number":         "Batch Number",
	"batch":                "Batch Number",
	"batch_no":             "Batch Number",
	"lot_number":           "Batch Number",
	"manufacturer":         "Manufacturer",
	"manufactured_by":      "Manufacturer",
	"storage":              "Storage",
	"storage_instructions": "Storage",
	"instructions":         "Instructions",
	"usage_instructions":   "Instructions",
	"directions":           "Instructions",
	"warnings":             "Warnings",
	"warning":              "Warnings",
}

type ocrEntry struct {
	item  OCRItem
	known bool
}

// BuildOCRSummaryItems flattens any OCR payload shape into labelled rows.
// Known keys come first; order inside each group follows the input.
func BuildOCRSummaryItems(v any) []OCRItem {
	var entries []ocrEntry
	switch t := v.(type) {
	case string:
		if s := collapse(t); s != "" {
			entries = append(entries, ocrEntry{item: OCRItem{Label: "Extracted Text", Value: s}})
		}
	case []any:
		entries = ocrFromList(t)
	case *Object:
		for _, k := range t.Keys() {
			val, _ := t.Get(k)
			if e, ok := ocrField(k, val); ok {
				entries = append(entries, e)
			}
		}
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if e, ok := ocrField(k, t[k]); ok {
				entries = append(entries, e)
			}
		}
	}

	items := make([]OCRItem, 0, len(entries))
	for _, e := range entries {
		if e.known {
			items = append(items, e.item)
		}
	}
	for _, e := range entries {
		if !e.known {
			items = append(items, e.item)
		}
	}
	return items
}

func ocrFromList(list []any) []ocrEntry {
	var out []ocrEntry
	line := 0
	for _, el := range list {
		switch t := el.(type) {
		case *Object:
			text := t.String("text", "value", "content")
			if text == "" {
				continue
			}
			if key := t.String("label", "field", "key", "name"); key != "" && key != text {
				if e, ok := ocrField(key, text); ok {
					out = append(out, e)
					continue
				}
			}
			line++
			out = append(out, ocrEntry{item: OCRItem{Label: "Line " + strconv.Itoa(line), Value: collapse(text)}})
		default:
			s := collapse(ocrValue(el))
			if s == "" {
				continue
			}
			line++
			out = append(out, ocrEntry{item: OCRItem{Label: "Line " + strconv.Itoa(line), Value: s}})
		}
	}
	return out
}

func ocrField(key string, v any) (ocrEntry, bool) {
	val := ocrValue(v)
	if val == "" {
		return ocrEntry{}, false
	}
	norm := strings.ToLower(strings.TrimSpace(key))
	norm = strings.NewReplacer(" ", "_", "-", "_").Replace(norm)
	if label, ok := ocrLabels[norm]; ok {
		return ocrEntry{item: OCRItem{Label: label, Value: val}, known: true}, true
	}
	return ocrEntry{item: OCRItem{Label: titleKey(key), Value: val}}, true
}

func ocrValue(v any) string {
	if arr, ok := v.([]any); ok {
		parts := make([]string, 0, len(arr))
		for _, el := range arr {
			if s := scalarString(el); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	}
	return scalarString(v)
}

// titleKey renders "unknown_field" as "Unknown Field".
func titleKey(k string) string {
	words := strings.Fields(strings.ReplaceAll(k, "_", " "))
	return cases.Title(language.Und, cases.NoLower).String(strings.Join(words, " "))
}

func collapse(s string) string { return strings.Join(strings.Fields(s), " ") }
