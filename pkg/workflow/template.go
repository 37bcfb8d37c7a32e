package workflow

import (
	"regexp"
	"strings"
)

var templatePattern = regexp.MustCompile(`\{\{([^}]+)\}\}`)

// Resolve substitutes every {{path}} span found in the context. Spans whose
// path does not resolve are left as written. Substituted text is not rescanned.
func Resolve(template string, ec *ExecutionContext) string {
	if !strings.Contains(template, "{{") {
		return template
	}
	return templatePattern.ReplaceAllStringFunc(template, func(span string) string {
		path := templatePattern.FindStringSubmatch(span)[1]
		if v, ok := ec.Lookup(path); ok {
			return v
		}
		return span
	})
}

// Unresolved lists the paths in template that the context cannot resolve.
func Unresolved(template string, ec *ExecutionContext) []string {
	var missing []string
	for _, m := range templatePattern.FindAllStringSubmatch(template, -1) {
		path := strings.TrimSpace(m[1])
		if _, ok := ec.Lookup(path); !ok {
			missing = append(missing, path)
		}
	}
	return missing
}
