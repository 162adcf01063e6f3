package prompts

import (
	"regexp"
	"strings"
)

var placeholderRe = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_.]*)\s*\}\}`)

// Render replaces {{ name }} placeholders with ctx[name]. Unknown names render as "".
func Render(template string, ctx map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(template, func(token string) string {
		m := placeholderRe.FindStringSubmatch(token)
		if m == nil {
			return ""
		}
		return ctx[strings.TrimSpace(m[1])]
	})
}
