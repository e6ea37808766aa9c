package util

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

var spanishMonths = map[string]time.Month{
	"enero": time.January, "febrero": time.February, "marzo": time.March,
	"abril": time.April, "mayo": time.May, "junio": time.June,
	"julio": time.July, "agosto": time.August, "septiembre": time.September,
	"setiembre": time.September, "octubre": time.October,
	"noviembre": time.November, "diciembre": time.December,
}

var (
	reISODate     = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	reDMYDate     = regexp.MustCompile(`^(\d{1,2})-(\d{1,2})-(\d{4})$`)
	reSpanishDate = regexp.MustCompile(`(?i)(\d{1,2})\s+(?:de\s+)?([a-záéíóú]+)\s+(?:de\s+)?(\d{4})`)
)

// ParseSpanishDate accepts "2025-11-21", "21-11-2025",
// "Viernes 21 de Noviembre de 2025" and "VIERNES 21 NOVIEMBRE 2025".
func ParseSpanishDate(input string) (time.Time, bool) {
	s := strings.TrimSpace(input)
	if reISODate.MatchString(s) {
		t, err := time.Parse(DateLayout, s)
		return t, err == nil
	}
	if m := reDMYDate.FindStringSubmatch(s); m != nil {
		t, err := time.Parse("2-1-2006", m[1]+"-"+m[2]+"-"+m[3])
		return t, err == nil
	}
	m := reSpanishDate.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, false
	}
	month, ok := spanishMonths[strings.ToLower(FoldAccents(m[2]))]
	if !ok {
		return time.Time{}, false
	}
	day, _ := strconv.Atoi(m[1])
	year, _ := strconv.Atoi(m[3])
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}
