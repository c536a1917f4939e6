package capability

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// suggestThreshold is the minimum Jaro-Winkler score for a name suggestion.
// Below this, an unknown capability error carries no suggestion at all —
// a bad guess is worse than none.
const suggestThreshold = 0.80

// nearestName returns the known capability name most similar to name, or ""
// when nothing scores above the threshold. Comparison is case-insensitive.
func nearestName(name string, known []string) string {
	best := ""
	bestScore := suggestThreshold
	lower := strings.ToLower(name)

	for _, candidate := range known {
		score := matchr.JaroWinkler(lower, strings.ToLower(candidate), false)
		if score > bestScore {
			best = candidate
			bestScore = score
		}
	}
	return best
}
