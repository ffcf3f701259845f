package store

import "strings"

// Characters with special meaning in the lexical query languages this
// service targets: tsquery operators (& | ! < > :), Bleve query-string
// syntax (+ - = ~ ^ * ? \ / " brackets), and grouping parens. They are
// replaced with spaces rather than escaped: the lexical stage wants plain
// terms, and parameterized-query escaping is the storage driver's job.
const lexicalSpecials = `()&|!:*'"<>~^?\/+-={}[]` + "`"

// SanitizeQuery strips query-language metacharacters from a raw user query.
// It is a pure string transform: identical input yields identical output.
// Collapses runs of whitespace so rank statistics are not skewed by empty
// terms.
func SanitizeQuery(query string) string {
	if query == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(query))
	for _, r := range query {
		if strings.ContainsRune(lexicalSpecials, r) {
			b.WriteByte(' ')
			continue
		}
		b.WriteRune(r)
	}

	return strings.Join(strings.Fields(b.String()), " ")
}
