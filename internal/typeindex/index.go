// Package typeindex implements the strategy-collection indexing rules
// shared by the wireup Collection and its activation compiler: ordering
// multiple strategies registered for the same export, and recognizing
// open-generic instantiations by their package-qualified base name.
package typeindex

import (
	"sort"
	"strings"
)

// Sort orders entries by descending priority, then ascending registration
// order. This is the Strategy Collection selection rule: the
// highest-priority strategy wins; ties go to whichever was registered
// first. priority and order extract the relevant fields so callers are
// free to name them however their own descriptor types do.
func Sort[T any](entries []T, priority func(T) int, order func(T) int64) {
	sort.SliceStable(entries, func(i, j int) bool {
		pi, pj := priority(entries[i]), priority(entries[j])
		if pi != pj {
			return pi > pj
		}
		return order(entries[i]) < order(entries[j])
	})
}

// GenericBaseName returns the package-qualified base name of a generic
// instantiation's reflect.Type.String() form - the part before the
// bracketed type argument list - and whether the string looks like one at
// all. Go erases type parameters at compile time, so an open-generic
// export is matched by this string prefix rather than by reflect identity.
func GenericBaseName(typeString string) (string, bool) {
	idx := strings.IndexByte(typeString, '[')
	if idx < 0 {
		return "", false
	}
	return typeString[:idx], true
}
