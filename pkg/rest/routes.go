package rest

import (
	"sort"
	"strings"

	"github.com/sqlgate/sqlgate/pkg/registry"
)

// orderEndpoints returns the endpoints in registration order: fewer {param}
// placeholders first, then longer literal path, then lexicographic path.
// The ordering is total, so registration is deterministic, and it puts
// specific paths ahead of the templates that would otherwise shadow them —
// /resource/date-range must beat /resource/{id} to its own requests.
func orderEndpoints(endpoints []registry.EndpointDefinition) []registry.EndpointDefinition {
	ordered := make([]registry.EndpointDefinition, len(endpoints))
	copy(ordered, endpoints)

	sort.SliceStable(ordered, func(i, j int) bool {
		pi, pj := paramCount(ordered[i].Path), paramCount(ordered[j].Path)
		if pi != pj {
			return pi < pj
		}
		li, lj := literalLength(ordered[i].Path), literalLength(ordered[j].Path)
		if li != lj {
			return li > lj
		}
		return ordered[i].Path < ordered[j].Path
	})
	return ordered
}

func paramCount(path string) int {
	return strings.Count(path, "{")
}

// literalLength is the length of the path with placeholder names removed,
// so only the literal characters weigh in.
func literalLength(path string) int {
	n := 0
	inParam := false
	for i := 0; i < len(path); i++ {
		switch path[i] {
		case '{':
			inParam = true
		case '}':
			inParam = false
		default:
			if !inParam {
				n++
			}
		}
	}
	return n
}
