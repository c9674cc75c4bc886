package interactor

import "strings"

// wordJaccard is the word-level Jaccard similarity of two strings,
// case-insensitive. Used for noisy option/suggestion matching.
func wordJaccard(a, b string) float64 {
	setA := wordSet(a)
	setB := wordSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	intersection := 0
	for w := range setA {
		if setB[w] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

func wordSet(s string) map[string]bool {
	out := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(s)) {
		w = strings.Trim(w, ".,;:()[]{}\"'")
		if w != "" {
			out[w] = true
		}
	}
	return out
}

// textMatches reports an exact or containment match, case-insensitive
func textMatches(intended, candidate string) bool {
	i := strings.ToLower(strings.TrimSpace(intended))
	c := strings.ToLower(strings.TrimSpace(candidate))
	if i == "" || c == "" {
		return false
	}
	return i == c || strings.Contains(c, i) || strings.Contains(i, c)
}
