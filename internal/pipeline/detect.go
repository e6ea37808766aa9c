package pipeline

import (
	"strings"

	"hipica/internal"
	"hipica/internal/util"
)

type DetectResult struct {
	IsVolante bool
	Venue     string
	Score     float64
	Reason    string
}

var volanteKeywords = []string{"VOLANTE", "PROGRAMA", "REUNION", "CARRERAS", "HIPODROMO", "CLUB HIPICO"}

// DetectVolanteMail scores a mail as carrying a volante from its subject and
// attachment names. A PDF attachment is required.
func DetectVolanteMail(subject string, attachmentNames []string) DetectResult {
	normSubject := util.NormalizeName(subject)

	score := 0.0
	for _, kw := range volanteKeywords {
		if strings.Contains(normSubject, kw) {
			score += 0.2
		}
	}

	hasPDF := false
	venue := ""
	for _, name := range attachmentNames {
		if !strings.HasSuffix(strings.ToLower(name), ".pdf") {
			continue
		}
		if !hasPDF {
			hasPDF = true
			score += 0.4
		}
		if strings.Contains(util.NormalizeName(name), "VOLANTE") {
			score += 0.2
		}
		if v, ok := internal.DetectVenue(name); ok && venue == "" {
			venue = v.Code
		}
	}
	if venue == "" {
		if v, ok := internal.DetectVenue(subject); ok {
			venue = v.Code
		}
	}
	if venue != "" {
		score += 0.2
	}
	if score > 1 {
		score = 1
	}

	isVolante := hasPDF && score >= 0.6
	reason := "rules_negative"
	switch {
	case !hasPDF:
		reason = "no_pdf_attachment"
	case isVolante:
		reason = "rules_positive"
	}
	return DetectResult{IsVolante: isVolante, Venue: venue, Score: score, Reason: reason}
}
