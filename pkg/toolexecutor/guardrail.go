package toolexecutor

// Allowed reports whether an agent may call tool. A blocked entry always wins;
// an empty allowed list permits every tool. "*" matches any name in either list.
func Allowed(tool string, allowed, blocked []string) bool {
	for _, b := range blocked {
		if b == tool || b == "*" {
			return false
		}
	}

	if len(allowed) == 0 {
		return true
	}

	for _, a := range allowed {
		if a == tool || a == "*" {
			return true
		}
	}

	return false
}

// FilterAllowed keeps the tools that pass Allowed, preserving order.
func FilterAllowed(tools, allowed, blocked []string) []string {
	out := make([]string, 0, len(tools))
	for _, t := range tools {
		if Allowed(t, allowed, blocked) {
			out = append(out, t)
		}
	}
	return out
}
