package peer

import (
	"sort"
	"strings"
)

// ConcatNonEmpty merges by joining all non-empty responses with sep, in
// peer-name order for determinism. If every response is empty, empty is
// returned instead.
func ConcatNonEmpty(sep, empty string) Merge {
	return func(replies map[string]string) string {
		names := make([]string, 0, len(replies))
		for name := range replies {
			names = append(names, name)
		}
		sort.Strings(names)

		var parts []string
		for _, name := range names {
			if r := strings.TrimSpace(replies[name]); r != "" {
				parts = append(parts, r)
			}
		}
		if len(parts) == 0 {
			return empty
		}
		return strings.Join(parts, sep)
	}
}

// PreferFound merges by returning the best "found" response, falling back
// to notFound only when every peer reported notFound (or nothing). Among
// found responses the one from the lexicographically first peer wins, which
// keeps merges deterministic regardless of arrival order.
func PreferFound(notFound string) Merge {
	return func(replies map[string]string) string {
		names := make([]string, 0, len(replies))
		for name := range replies {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			r := strings.TrimSpace(replies[name])
			if r != "" && r != notFound {
				return r
			}
		}
		return notFound
	}
}
