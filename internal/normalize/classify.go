package normalize

import (
	"regexp"

	"hipica/internal/util"
)

// Kind is the content tag assigned to a raw cell.
type Kind int

const (
	KindEmpty Kind = iota
	KindStatus
	KindTimeCode
	KindMargin
	KindOdds
	KindWeight
	KindBodyWeight
	KindInteger
	KindName
	KindOther
)

var kindNames = map[Kind]string{
	KindEmpty:      "empty",
	KindStatus:     "status",
	KindTimeCode:   "time-code",
	KindMargin:     "margin",
	KindOdds:       "odds",
	KindWeight:     "weight",
	KindBodyWeight: "body-weight",
	KindInteger:    "integer",
	KindName:       "name",
	KindOther:      "other",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Rule tags a cell with Kind when Pattern matches and, if Min or Max is set,
// the numeric value of the cell lies within [Min, Max].
type Rule struct {
	Kind    Kind
	Pattern *regexp.Regexp
	Min     float64
	Max     float64
}

func (r Rule) match(cell string) bool {
	if !r.Pattern.MatchString(cell) {
		return false
	}
	if r.Min == 0 && r.Max == 0 {
		return true
	}
	n, ok := util.ParseDecimal(cell)
	if !ok {
		return false
	}
	return n >= r.Min && n <= r.Max
}

// DefaultRules is the ordered classifier list; the first matching rule wins.
var DefaultRules = []Rule{
	{Kind: KindEmpty, Pattern: regexp.MustCompile(`^[\s\-–—]*$`)},
	{Kind: KindStatus, Pattern: regexp.MustCompile(`(?i)^(?:DEB|NTR|S/P|ROD|DNF|DESC|N/C)\.?$`)},
	{Kind: KindTimeCode, Pattern: regexp.MustCompile(`^\d{1,2}[:.]\d{2}[.,]\d{2}$`)},
	{Kind: KindMargin, Pattern: regexp.MustCompile(`(?i)^(?:\d+\s+)?\d/\d(?:\s*(?:cpos?|cuerpos?)\.?)?$`)},
	{Kind: KindMargin, Pattern: regexp.MustCompile(`(?i)^\d+\s*(?:cpos?|cuerpos?)\.?$`)},
	{Kind: KindMargin, Pattern: regexp.MustCompile(`(?i)^(?:1/2\s*)?(?:cbza?|cabeza|pcz|pzo|pescuezo|nrz|nariz|hocico|vp|dist|distanciado)\.?$`)},
	{Kind: KindOdds, Pattern: regexp.MustCompile(`^\$?\s?\d{1,4}[.,]\d{2}$`)},
	{Kind: KindWeight, Pattern: regexp.MustCompile(`(?i)^\d{2}(?:[.,]\d)?\s*(?:k|kg|kgs|kilos)\.?$`)},
	{Kind: KindWeight, Pattern: regexp.MustCompile(`^\d{2}[.,]\d$`), Min: 40, Max: 70},
	{Kind: KindBodyWeight, Pattern: regexp.MustCompile(`^\d{3}$`), Min: 350, Max: 700},
	{Kind: KindInteger, Pattern: regexp.MustCompile(`^\d{1,3}\s*[°º]?$`)},
	{Kind: KindName, Pattern: regexp.MustCompile(`\p{L}{2,}`)},
}

// Classify tags a cell using DefaultRules.
func Classify(cell string) Kind {
	return classify(DefaultRules, cell)
}

func classify(rules []Rule, cell string) Kind {
	s := util.NormalizeSpaces(cell)
	for _, r := range rules {
		if r.match(s) {
			return r.Kind
		}
	}
	return KindOther
}
