// Package normalize holds the string canonicalization primitives shared
// by the catalog, the resolver and identity derivation. Keeping them in
// one place guarantees that lookup keys and stored alias-table keys are
// normalized identically.
package normalize

import (
	"sort"
	"strings"
	"unicode"
)

// Key canonicalizes a semantic field name: lowercase with all
// punctuation, underscores and whitespace removed. "Wages_Line-1a" and
// "wages line 1a" normalize to the same key.
func Key(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Tokens splits a semantic field name into lowercase word tokens on any
// non-alphanumeric boundary. Digits-only tokens are kept; they never
// match role vocabulary but still count toward declaration order ties.
func Tokens(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Identity folds a set of identity attributes into one canonical string:
// attributes sorted by name, values trimmed and lowercased, joined as
// "name=value" pairs with "|". Trivial formatting differences in input
// therefore cannot fork a document's lineage.
func Identity(attrs map[string]string) string {
	if len(attrs) == 0 {
		return ""
	}
	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		v := strings.ToLower(strings.TrimSpace(attrs[name]))
		if v == "" {
			continue
		}
		parts = append(parts, strings.ToLower(strings.TrimSpace(name))+"="+v)
	}
	return strings.Join(parts, "|")
}

// PathSegment turns an arbitrary identity value into a storage-key
// segment: lowercase, spaces and punctuation collapsed to single
// hyphens, leading/trailing hyphens dropped.
func PathSegment(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	pendingHyphen := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
			continue
		}
		pendingHyphen = true
	}
	return b.String()
}
