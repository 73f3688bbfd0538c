package community

import (
	"strings"

	"github.com/starford/biddge/internal/models"
)

// Filter returns the communities whose name, category or description contains
// query, compared case-insensitively. A blank query returns list unchanged.
// Order is preserved, so Filter(Filter(l, q), q) equals Filter(l, q).
func Filter(list []models.Community, query string) []models.Community {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return list
	}
	out := make([]models.Community, 0, len(list))
	for _, c := range list {
		if matches(c, q) {
			out = append(out, c)
		}
	}
	return out
}

func matches(c models.Community, q string) bool {
	for _, field := range []string{c.Name, c.Category, c.Description} {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return false
}
