// Package template implements placeholder extraction and variable-binding
// resolution for data request templates.
package template

import (
	"regexp"
	"strings"
)

// Placeholder is one {{name}} token found in a template.
type Placeholder struct {
	Name     string
	RawToken string
	Offset   int
}

var tokenPattern = regexp.MustCompile(`\{\{([^}]+)\}\}`)

// Scan extracts the placeholders from text, deduplicated by name and in
// first-occurrence order. The token grammar is {{ plus one or more
// non-} characters plus }}; names are trimmed of surrounding whitespace.
func Scan(text string) []Placeholder {
	if text == "" {
		return nil
	}

	matches := tokenPattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(matches))
	var placeholders []Placeholder
	for _, m := range matches {
		name := strings.TrimSpace(text[m[2]:m[3]])
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		placeholders = append(placeholders, Placeholder{
			Name:     name,
			RawToken: text[m[0]:m[1]],
			Offset:   m[0],
		})
	}
	return placeholders
}
