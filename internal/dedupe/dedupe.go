// Package dedupe removes repeated phrases within a batch.
package dedupe

import (
	"strings"

	"github.com/marketlens/kwscout/internal/domain"
)

// Dedupe drops phrases whose normalized form was already seen, preserving
// first-occurrence order and original casing. Empty and whitespace-only
// entries are dropped silently. Identity is exact normalized equality:
// plural and singular forms stay distinct.
func Dedupe(phrases []string) []string {
	seen := make(map[string]struct{}, len(phrases))
	out := make([]string, 0, len(phrases))

	for _, p := range phrases {
		if strings.TrimSpace(p) == "" {
			continue
		}
		key := domain.NormalizeKeyword(p)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, p)
	}
	return out
}
