package entity

import (
	"regexp"
	"strings"
)

var placeholderRe = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.-]+)\s*\}\}`)

// Render fills {{variable}} placeholders in a prompt template. Unknown
// placeholders are left untouched so the user can see what is missing.
func (p *Prompt) Render(vars map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(p.Content, func(match string) string {
		name := strings.TrimSpace(strings.Trim(match, "{}"))
		if v, ok := vars[name]; ok {
			return v
		}
		return match
	})
}

// Variables lists the distinct placeholder names in a prompt template, in
// order of first appearance.
func (p *Prompt) Variables() []string {
	var names []string
	seen := map[string]struct{}{}
	for _, m := range placeholderRe.FindAllStringSubmatch(p.Content, -1) {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		names = append(names, m[1])
	}
	return names
}
