package repl

import (
	"strings"

	"github.com/agnivade/levenshtein"
)

// maxSuggestDistance: максимальное расстояние правки для подсказки.
const maxSuggestDistance = 2

// suggest возвращает ближайшее известное слово или "", если подходящего нет.
func suggest(cmd string, words []string) string {
	cmd = strings.TrimSpace(cmd)
	if cmd == "" || strings.ContainsAny(cmd, " .()=\"'") {
		return ""
	}
	best := ""
	bestDist := maxSuggestDistance + 1
	for _, w := range words {
		if w == cmd {
			return ""
		}
		d := levenshtein.ComputeDistance(strings.ToLower(cmd), strings.ToLower(w))
		if d < bestDist {
			best, bestDist = w, d
		}
	}
	return best
}
