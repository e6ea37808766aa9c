package util

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var diceMetric = &metrics.SorensenDice{CaseSensitive: true, NgramSize: 2}

var (
	reSpaces     = regexp.MustCompile(`\s+`)
	reNonAllowed = regexp.MustCompile(`[^A-Z0-9\s]`)
	reFileUnsafe = regexp.MustCompile(`[<>:"/\\|?*\s]+`)
)

// NormalizeSpaces collapses whitespace (including NBSP) and trims.
func NormalizeSpaces(input string) string {
	s := strings.ReplaceAll(input, "\u00a0", " ")
	return strings.TrimSpace(reSpaces.ReplaceAllString(s, " "))
}

// FoldAccents strips combining marks: "Vásquez" -> "Vasquez".
func FoldAccents(input string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, input)
	if err != nil {
		return input
	}
	return out
}

// NormalizeName upper-cases, folds accents and drops punctuation so that
// "Gran Jefe (Lookin At Lucky)" and "GRAN JEFE" compare on the same terms.
func NormalizeName(input string) string {
	s := input
	if idx := strings.Index(s, "("); idx >= 0 {
		s = s[:idx]
	}
	s = strings.ToUpper(FoldAccents(s))
	s = strings.ReplaceAll(s, "Ñ", "N")
	s = reNonAllowed.ReplaceAllString(s, " ")
	return NormalizeSpaces(s)
}

func Tokenize(input string) []string {
	parts := strings.Split(NormalizeName(input), " ")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if len([]rune(p)) >= 2 {
			out = append(out, p)
		}
	}
	return out
}

// SafeFileName replaces characters that are unsafe in file names.
func SafeFileName(input string) string {
	out := strings.Trim(reFileUnsafe.ReplaceAllString(input, "_"), "_")
	if len(out) > 120 {
		out = out[:120]
	}
	return out
}

// DiceCoefficient is the Sørensen-Dice similarity of the bigrams of a and b.
func DiceCoefficient(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	return strutil.Similarity(a, b, diceMetric)
}

func FloatPtr(v float64) *float64 { return &v }
