package normalize

import (
	"github.com/go-viper/mapstructure/v2"
)

// Candidate is one ranked alternative returned by the model.
// Confidence is already clamped into [0,1]; nil means the model gave none.
type Candidate struct {
	Value      string   `json:"value"`
	Confidence *float64 `json:"confidence"`
}

// wire shape of a candidate object; the model uses several spellings.
type rawCandidate struct {
	Value       any `mapstructure:"value"`
	Label       any `mapstructure:"label"`
	Name        any `mapstructure:"name"`
	Class       any `mapstructure:"class"`
	Prediction  any `mapstructure:"prediction"`
	Confidence  any `mapstructure:"confidence"`
	Score       any `mapstructure:"score"`
	Probability any `mapstructure:"probability"`
}

// Candidates sniffs the shape of a field: a bare scalar, a {value, confidence}
// object, or a list of either.
func Candidates(v any) []Candidate {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		out := make([]Candidate, 0, len(t))
		for _, el := range t {
			if c, ok := candidateOf(el); ok {
				out = append(out, c)
			}
		}
		return out
	default:
		if c, ok := candidateOf(t); ok {
			return []Candidate{c}
		}
		return nil
	}
}

func candidateOf(v any) (Candidate, bool) {
	var m map[string]any
	switch t := v.(type) {
	case *Object:
		m = t.Map()
	case map[string]any:
		m = t
	default:
		s := scalarString(v)
		return Candidate{Value: s}, s != ""
	}

	var rc rawCandidate
	if err := mapstructure.Decode(m, &rc); err != nil {
		return Candidate{}, false
	}
	var value string
	for _, f := range []any{rc.Value, rc.Label, rc.Name, rc.Class, rc.Prediction} {
		if value = scalarString(f); value != "" {
			break
		}
	}
	if value == "" {
		return Candidate{}, false
	}
	c := Candidate{Value: value}
	for _, f := range []any{rc.Confidence, rc.Score, rc.Probability} {
		if conf, ok := ToConfidence(f); ok {
			c.Confidence = floatPtr(conf)
			break
		}
	}
	return c, true
}

// PickTopPrediction returns the highest-confidence candidate. A missing
// confidence ranks as -1 and ties keep the earliest entry.
func PickTopPrediction(cands []Candidate) *Candidate {
	if len(cands) == 0 {
		return nil
	}
	best := 0
	bestConf := rank(cands[0])
	for i := 1; i < len(cands); i++ {
		if r := rank(cands[i]); r > bestConf {
			best, bestConf = i, r
		}
	}
	out := cands[best]
	return &out
}

func rank(c Candidate) float64 {
	if c.Confidence == nil {
		return -1
	}
	return *c.Confidence
}

// Top is PickTopPrediction over whatever shape v has.
func Top(v any) *Candidate { return PickTopPrediction(Candidates(v)) }
