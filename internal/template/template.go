// Package template substitutes {{variable}} placeholders in message bodies.
// Bodies are plain chat text; no escaping is performed.
package template

import (
	"regexp"
	"strings"
)

var placeholderRe = regexp.MustCompile(`\{\{([^{}]+)\}\}`)

// Render replaces every {{name}} occurrence with vars[name], or the empty
// string when the variable is absent. Keys match case-sensitively. Malformed
// placeholders (an opening {{ without a closing }}) are left verbatim.
func Render(body string, vars map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(body, func(match string) string {
		name := strings.TrimSuffix(strings.TrimPrefix(match, "{{"), "}}")
		return vars[name]
	})
}

// ExtractVariables returns every distinct placeholder name found in body, in
// first-seen order.
func ExtractVariables(body string) []string {
	seen := make(map[string]bool)
	var names []string
	for _, match := range placeholderRe.FindAllStringSubmatch(body, -1) {
		name := match[1]
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}
