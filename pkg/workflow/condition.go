package workflow

import (
	"fmt"
	"strconv"
	"strings"
)

// comparison operators, tried in this order; the first one present wins
var comparisonOps = []string{"!=", ">=", "<=", "==", ">", "<"}

const (
	suffixNotEmpty = "not empty"
	suffixEmpty    = "empty"
	opContains     = " contains "
)

// ConditionError reports a malformed step condition
type ConditionError struct {
	Condition string
	Reason    string
}

func (e *ConditionError) Error() string {
	return fmt.Sprintf("invalid condition %q: %s", e.Condition, e.Reason)
}

type conditionKind int

const (
	condTruthy conditionKind = iota
	condEmpty
	condNotEmpty
	condCompare
	condContains
)

// Condition is a parsed step condition. Parse the resolved text, not the template.
//
// Forms, checked in order:
//
//	<x> not empty | <x> empty       x is looked up in the context, else taken literally
//	<a> OP <b>                      OP in != >= <= == > <, numeric when both parse
//	<a> contains <b>
//	<text>                          true when non-empty
type Condition struct {
	kind        conditionKind
	left, right string
	op          string
}

// ParseCondition parses raw into a Condition
func ParseCondition(raw string) (Condition, error) {
	s := strings.TrimSpace(raw)

	if subject, ok := cutSuffixWord(s, suffixNotEmpty); ok {
		return Condition{kind: condNotEmpty, left: subject}, nil
	}
	if subject, ok := cutSuffixWord(s, suffixEmpty); ok {
		return Condition{kind: condEmpty, left: subject}, nil
	}

	for _, op := range comparisonOps {
		idx := strings.Index(s, op)
		if idx < 0 {
			continue
		}
		left, err := unquote(s[:idx])
		if err != nil {
			return Condition{}, &ConditionError{Condition: raw, Reason: "left of " + op + ": " + err.Error()}
		}
		right, err := unquote(s[idx+len(op):])
		if err != nil {
			return Condition{}, &ConditionError{Condition: raw, Reason: "right of " + op + ": " + err.Error()}
		}
		return Condition{kind: condCompare, left: left, op: op, right: right}, nil
	}

	if idx := strings.Index(s, opContains); idx >= 0 {
		left, err := unquote(s[:idx])
		if err != nil {
			return Condition{}, &ConditionError{Condition: raw, Reason: "left of contains: " + err.Error()}
		}
		right, err := unquote(s[idx+len(opContains):])
		if err != nil {
			return Condition{}, &ConditionError{Condition: raw, Reason: "right of contains: " + err.Error()}
		}
		return Condition{kind: condContains, left: left, right: right}, nil
	}

	return Condition{kind: condTruthy, left: s}, nil
}

// EvaluateCondition parses and evaluates raw against ec
func EvaluateCondition(raw string, ec *ExecutionContext) (bool, error) {
	c, err := ParseCondition(raw)
	if err != nil {
		return false, err
	}
	return c.Eval(ec), nil
}

// Eval evaluates the condition. Only the empty forms read the context.
func (c Condition) Eval(ec *ExecutionContext) bool {
	switch c.kind {
	case condEmpty:
		return subjectValue(c.left, ec) == ""
	case condNotEmpty:
		return subjectValue(c.left, ec) != ""
	case condCompare:
		return compare(c.left, c.op, c.right)
	case condContains:
		return strings.Contains(c.left, c.right)
	default:
		return c.left != ""
	}
}

// cutSuffixWord strips a trailing word and returns the subject before it.
func cutSuffixWord(s, suffix string) (string, bool) {
	if !strings.HasSuffix(s, suffix) {
		return "", false
	}
	rest := s[:len(s)-len(suffix)]
	if rest != "" && !strings.HasSuffix(rest, " ") {
		return "", false
	}
	return strings.TrimSpace(rest), true
}

// subjectValue looks subject up in the context, falling back to the literal.
func subjectValue(subject string, ec *ExecutionContext) string {
	if subject == "" {
		return ""
	}
	if ec != nil {
		if v, ok := ec.Lookup(subject); ok {
			return v
		}
	}
	return subject
}

// unquote strips one matching pair of outer quotes. Stray quotes are kept
// since resolved step output may end in one.
func unquote(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("missing operand")
	}
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' || first == '\'') && last == first {
			return s[1 : len(s)-1], nil
		}
	}
	return s, nil
}

func compare(left, op, right string) bool {
	l, lerr := strconv.ParseFloat(left, 64)
	r, rerr := strconv.ParseFloat(right, 64)
	if lerr == nil && rerr == nil {
		switch op {
		case "==":
			return l == r
		case "!=":
			return l != r
		case ">":
			return l > r
		case "<":
			return l < r
		case ">=":
			return l >= r
		case "<=":
			return l <= r
		}
	}

	switch op {
	case "==":
		return strings.EqualFold(left, right)
	case "!=":
		return !strings.EqualFold(left, right)
	case ">":
		return left > right
	case "<":
		return left < right
	case ">=":
		return left >= right
	case "<=":
		return left <= right
	}
	return false
}
