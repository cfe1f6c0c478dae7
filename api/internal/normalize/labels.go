package normalize

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

type RiskLevel string

const (
	RiskLow     RiskLevel = "LOW"
	RiskMedium  RiskLevel = "MEDIUM"
	RiskHigh    RiskLevel = "HIGH"
	RiskUnknown RiskLevel = "UNKNOWN"
)

const NotClassified = "Not classified yet"

var (
	categoryNumRe = regexp.MustCompile(`(?i)^category[\s_-]*(\d+)$`)
	bareNumRe     = regexp.MustCompile(`^\d+$`)
)

// FormatCategoryLabel turns a raw category ("category3", "5", "expired_tablets • note")
// into display text.
func FormatCategoryLabel(raw string) string {
	s := strings.TrimSpace(raw)
	if i := strings.IndexAny(s, "•|"); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	if s == "" {
		return NotClassified
	}
	if m := categoryNumRe.FindStringSubmatch(s); m != nil {
		return "Category " + m[1]
	}
	if bareNumRe.MatchString(s) {
		return "Category " + s
	}
	s = strings.ReplaceAll(s, "_", " ")
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}

func FormatRiskLevel(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return string(RiskUnknown)
	}
	return strings.ToUpper(strings.ReplaceAll(s, "_", " "))
}

// NormalizeRiskLevelForPayload finds HIGH, MEDIUM or LOW (in that priority)
// anywhere in the value. Returns "" when none matches.
func NormalizeRiskLevelForPayload(raw string) RiskLevel {
	up := strings.ToUpper(raw)
	for _, lvl := range []RiskLevel{RiskHigh, RiskMedium, RiskLow} {
		if strings.Contains(up, string(lvl)) {
			return lvl
		}
	}
	return ""
}
