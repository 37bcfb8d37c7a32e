package toolexecutor

import (
	"fmt"
	"sort"
	"strings"
)

// Simulate renders the placeholder result used for tool calls in dry-run mode.
// Argument keys are sorted so the text is stable; string values are quoted.
func Simulate(tool string, args map[string]interface{}) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		if str, ok := args[k].(string); ok {
			parts[i] = fmt.Sprintf("%s=%q", k, str)
		} else {
			parts[i] = fmt.Sprintf("%s=%v", k, args[k])
		}
	}

	return fmt.Sprintf("[DRY RUN] Would call %s(%s)\nSimulated result: Tool '%s' executed successfully with provided arguments.",
		tool, strings.Join(parts, ", "), tool)
}
