package engine

import (
	"regexp"
	"strconv"
	"strings"
)

// Keyword sets for the heuristic scorers. Matching is case-insensitive on
// word boundaries, so "good" does not fire inside "goodbye".
var (
	positiveWords = []string{
		"great", "good", "excellent", "positive", "promising",
		"excited", "glad", "happy", "optimistic",
	}
	negativeWords = []string{
		"bad", "concern", "worried", "negative", "risky", "uncertain",
		"problem", "issue", "doubt", "frustrated", "blocked",
	}
	hedgeWords = []string{
		"maybe", "perhaps", "possibly", "unsure", "might", "could",
		"guess", "uncertain", "probably", "not sure",
	}
)

const (
	confidenceBaseline = 0.5
	// Each hedge occurrence damps the running confidence.
	hedgeDamping = 0.85
	// Blend weights when the text self-reports a confidence value.
	explicitWeight  = 0.6
	heuristicWeight = 0.4
)

var (
	positiveRe   = wordSetRegexp(positiveWords)
	negativeRe   = wordSetRegexp(negativeWords)
	hedgeRe      = wordSetRegexp(hedgeWords)
	confidenceRe = regexp.MustCompile(`(?i)confidence[:\s]+([0-9]+(?:\.[0-9]+)?)`)
)

func wordSetRegexp(words []string) *regexp.Regexp {
	escaped := make([]string, len(words))
	for i, w := range words {
		escaped[i] = regexp.QuoteMeta(w)
	}
	return regexp.MustCompile(`(?i)\b(` + strings.Join(escaped, "|") + `)\b`)
}

// ScoreSentiment maps turn text to [-1, 1] by counting positive and negative
// keyword occurrences. Text with no matches scores 0. Pure and deterministic.
func ScoreSentiment(text string) float64 {
	pos := len(positiveRe.FindAllString(text, -1))
	neg := len(negativeRe.FindAllString(text, -1))
	if pos == 0 && neg == 0 {
		return 0.0
	}
	score := float64(pos-neg) / float64(max(1, pos+neg))
	return clamp(score, -1.0, 1.0)
}

// ScoreConfidence maps turn text to [0, 1]. The heuristic starts at a
// neutral baseline and is damped once per hedge occurrence. When the text
// self-reports "Confidence: <v>" (0-1 or 0-100), the result is a blend
// weighted toward the explicit value. Pure and deterministic.
func ScoreConfidence(text string) float64 {
	hedges := len(hedgeRe.FindAllString(text, -1))
	heuristic := confidenceBaseline
	for i := 0; i < hedges; i++ {
		heuristic *= hedgeDamping
	}

	match := confidenceRe.FindStringSubmatch(text)
	if match == nil {
		return clamp(heuristic, 0.0, 1.0)
	}

	explicit, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return clamp(heuristic, 0.0, 1.0)
	}
	if explicit > 1 {
		// Treat values above 1 as percentages.
		explicit /= 100
	}
	explicit = clamp(explicit, 0.0, 1.0)

	return clamp(explicitWeight*explicit+heuristicWeight*heuristic, 0.0, 1.0)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
