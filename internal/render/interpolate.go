package render

import "regexp"

// placeholderRE matches ${name}; name is the shortest non-empty run up to the
// next closing brace.
var placeholderRE = regexp.MustCompile(`\$\{([^}]+)\}`)

// Interpolate replaces every ${name} in text whose name is a key of record.
// Values are inserted verbatim and never re-scanned. Unknown names are left
// in place.
func Interpolate(text string, record Record) string {
	if len(record) == 0 {
		return text
	}
	return placeholderRE.ReplaceAllStringFunc(text, func(token string) string {
		name := token[2 : len(token)-1]
		if v, ok := record[name]; ok {
			return v
		}
		return token
	})
}

// Placeholders returns the distinct names referenced by text in order of first
// appearance.
func Placeholders(text string) []string {
	matches := placeholderRE.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if seen[m[1]] {
			continue
		}
		seen[m[1]] = true
		out = append(out, m[1])
	}
	return out
}

// Bind returns a copy of elements with text passed through Interpolate.
// Image elements are shared, not copied.
func Bind(elements []Element, record Record) []Element {
	out := make([]Element, len(elements))
	for i, el := range elements {
		if t, ok := el.(*TextElement); ok {
			clone := *t
			clone.Text = Interpolate(t.Text, record)
			out[i] = &clone
			continue
		}
		out[i] = el
	}
	return out
}
