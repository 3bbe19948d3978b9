package rag

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Criterion labels accept Latin letters and their Cyrillic look-alikes.
var scorePatterns = []struct {
	label string
	re    *regexp.Regexp
}{
	{"A", regexp.MustCompile(`[AaАа]\s*[:=\-–—]?\s*(\d+)`)},
	{"B", regexp.MustCompile(`[BbВв]\s*[:=\-–—]?\s*(\d+)`)},
	{"C", regexp.MustCompile(`[CcСс]\s*[:=\-–—]?\s*(\d+)`)},
	{"D", regexp.MustCompile(`[DdДд]\s*[:=\-–—]?\s*(\d+)`)},
}

// combinedScoreRe matches "A, B, C = N" where one value covers three labels.
var combinedScoreRe = regexp.MustCompile(`[AaАа]\s*,?\s*[BbВв]\s*,?\s*[CcСс]\s*[-–—=:]\s*(\d+)`)

var separators = strings.NewReplacer(",", " ", ";", " ")

// ExtractScores finds criterion scores quoted in the question and renders
// them as a prompt hint. The hint is empty when no score is found.
func ExtractScores(question string) (map[string]int, string) {
	found := make(map[string]int)
	text := separators.Replace(question)

	for _, p := range scorePatterns {
		if m := p.re.FindStringSubmatch(text); m != nil {
			if v, err := strconv.Atoi(m[1]); err == nil {
				found[p.label] = v
			}
		}
	}

	if len(found) < 3 {
		if m := combinedScoreRe.FindStringSubmatch(text); m != nil {
			if v, err := strconv.Atoi(m[1]); err == nil {
				for _, l := range []string{"A", "B", "C"} {
					if _, ok := found[l]; !ok {
						found[l] = v
					}
				}
			}
		}
	}

	if len(found) == 0 {
		return found, ""
	}

	labels := make([]string, 0, len(found))
	total := 0
	for l, v := range found {
		labels = append(labels, l)
		total += v
	}
	sort.Strings(labels)

	parts := make([]string, len(labels))
	for i, l := range labels {
		parts[i] = fmt.Sprintf("%s=%d", l, found[l])
	}
	return found, fmt.Sprintf("Подсказка: извлечено из вопроса → %s; сумма=%d.", strings.Join(parts, ", "), total)
}
