package util

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	reThousandDot   = regexp.MustCompile(`^\d{1,3}(?:\.\d{3})+$`)
	reThousandComma = regexp.MustCompile(`^\d{1,3}(?:,\d{3})+$`)
	reUnitSuffix    = regexp.MustCompile(`(?i)\s*(?:kgs?|kilos|k)\.?$`)
	rePlainDecimal  = regexp.MustCompile(`^[-+]?(?:\d+\.?\d*|\.\d+)$`)
)

// ParseDecimal reads numbers as printed on race cards and result tables:
// "3,20", "$4.50", "56.5", "55k", "55 kg".
func ParseDecimal(input string) (float64, bool) {
	s := strings.TrimSpace(strings.ReplaceAll(input, "\u00a0", " "))
	s = strings.TrimPrefix(s, "$")
	s = reUnitSuffix.ReplaceAllString(s, "")
	s = strings.ReplaceAll(strings.TrimSpace(s), " ", "")
	if s == "" {
		return 0, false
	}
	if strings.Contains(s, ",") && !strings.Contains(s, ".") {
		s = strings.ReplaceAll(s, ",", ".")
	}
	if !rePlainDecimal.MatchString(s) {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// ParseAmount reads prize money with thousand separators: "$1.500.000" -> 1500000.
func ParseAmount(input string) (float64, bool) {
	s := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(input), "$"))
	s = strings.ReplaceAll(s, " ", "")
	if reThousandDot.MatchString(s) {
		s = strings.ReplaceAll(s, ".", "")
	} else if reThousandComma.MatchString(s) {
		s = strings.ReplaceAll(s, ",", "")
	}
	return ParseDecimal(s)
}
