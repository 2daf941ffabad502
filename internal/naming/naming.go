// Package naming keeps node names unique within a workflow.
package naming

import (
	"fmt"
	"regexp"
)

// Disambiguate returns the name a node called candidate should get among
// siblings. When a sibling is named candidate or "<candidate> (<n>)", the
// result is "<candidate> (<count>)" where count is the number of such
// siblings; if that name is itself taken, count is raised until it is free.
// Otherwise candidate is returned unchanged.
//
// Adding "A" three times therefore yields "A", "A (1)", "A (2)".
func Disambiguate(candidate string, siblings []string) string {
	pattern := regexp.MustCompile(`^` + regexp.QuoteMeta(candidate) + `( \(\d+\))?$`)

	taken := make(map[string]struct{}, len(siblings))
	count := 0
	for _, s := range siblings {
		taken[s] = struct{}{}
		if pattern.MatchString(s) {
			count++
		}
	}
	if count == 0 {
		return candidate
	}

	for {
		name := fmt.Sprintf("%s (%d)", candidate, count)
		if _, ok := taken[name]; !ok {
			return name
		}
		count++
	}
}
