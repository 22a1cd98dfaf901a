package tool

import (
	"fmt"
	"math"
	"strings"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
)

var distanceMetric = metrics.NewLevenshtein()
var spacingReplacer = strings.NewReplacer(" ", "", "\t", "")

// StringSimilarity scores how close two strings are, tolerating whitespace
// differences — used by the edit tool to accept a near-exact match block
// and by the read tool to suggest a nearby filename. Grounded on
// utils/string_utils.go's StringSimilarity, ported verbatim.
func StringSimilarity(s1, s2 string) float64 {
	if s1 == s2 {
		return 1.0
	}

	var scores []float64

	if strings.TrimSpace(s1) == strings.TrimSpace(s2) {
		scores = append(scores, 0.95)
	}

	s1NoSpacing := spacingReplacer.Replace(s1)
	s2NoSpacing := spacingReplacer.Replace(s2)
	if s1NoSpacing == s2NoSpacing {
		scores = append(scores, 0.9)
	}

	simOriginal := strutil.Similarity(s1, s2, distanceMetric)
	if !math.IsNaN(simOriginal) {
		scores = append(scores, simOriginal)
	}

	simNoWhitespace := strutil.Similarity(s1NoSpacing, s2NoSpacing, distanceMetric)
	weightedAvg := 0.4*simOriginal + 0.6*simNoWhitespace
	if !math.IsNaN(weightedAvg) {
		scores = append(scores, weightedAvg)
	}

	max := 0.0
	for _, s := range scores {
		if s > max {
			max = s
		}
	}
	return max
}

// TruncateMiddle shortens text to maxChars, keeping the start and end and
// marking what was removed. Grounded on dev/truncate.go's TruncateMiddle.
func TruncateMiddle(text string, maxChars int) string {
	if len(text) <= maxChars {
		return text
	}
	removed := len(text) - maxChars
	marker := fmt.Sprintf("\n\n[... truncated %d characters from the middle ...]\n\n", removed)
	available := maxChars - len(marker)
	if available <= 0 {
		return text[:maxChars]
	}
	half := available / 2
	return text[:half] + marker + text[len(text)-half:]
}
