package toolexecutor

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// Calculator grammar:
//
//	expr    = term { ("+" | "-") term }
//	term    = unary { ("*" | "/" | "//" | "%") unary }
//	unary   = ("+" | "-") unary | power
//	power   = primary [ ("^" | "**") unary ]
//	primary = number | const | func "(" [ expr { "," expr } ] ")" | "(" expr ")"
//
// Only the functions and constants below are accepted.

var calcFunctions = map[string]func(args []float64) (float64, error){
	"sqrt":  unary(math.Sqrt),
	"abs":   unary(math.Abs),
	"floor": unary(math.Floor),
	"ceil":  unary(math.Ceil),
	"sin":   unary(math.Sin),
	"cos":   unary(math.Cos),
	"tan":   unary(math.Tan),
	"log10": unary(math.Log10),
	"log2":  unary(math.Log2),
	"round": func(args []float64) (float64, error) {
		switch len(args) {
		case 1:
			return math.RoundToEven(args[0]), nil
		case 2:
			p := math.Pow(10, math.Trunc(args[1]))
			return math.RoundToEven(args[0]*p) / p, nil
		}
		return 0, fmt.Errorf("round takes 1 or 2 arguments")
	},
	"log": func(args []float64) (float64, error) {
		switch len(args) {
		case 1:
			return math.Log(args[0]), nil
		case 2:
			return math.Log(args[0]) / math.Log(args[1]), nil
		}
		return 0, fmt.Errorf("log takes 1 or 2 arguments")
	},
	"pow": func(args []float64) (float64, error) {
		if len(args) != 2 {
			return 0, fmt.Errorf("pow takes 2 arguments")
		}
		return math.Pow(args[0], args[1]), nil
	},
	"min": func(args []float64) (float64, error) {
		if len(args) == 0 {
			return 0, fmt.Errorf("min needs at least 1 argument")
		}
		m := args[0]
		for _, a := range args[1:] {
			m = math.Min(m, a)
		}
		return m, nil
	},
	"max": func(args []float64) (float64, error) {
		if len(args) == 0 {
			return 0, fmt.Errorf("max needs at least 1 argument")
		}
		m := args[0]
		for _, a := range args[1:] {
			m = math.Max(m, a)
		}
		return m, nil
	},
	"sum": func(args []float64) (float64, error) {
		total := 0.0
		for _, a := range args {
			total += a
		}
		return total, nil
	},
	"factorial": func(args []float64) (float64, error) {
		if len(args) != 1 || args[0] < 0 || args[0] != math.Trunc(args[0]) || args[0] > 170 {
			return 0, fmt.Errorf("factorial needs one non-negative integer up to 170")
		}
		out := 1.0
		for i := 2.0; i <= args[0]; i++ {
			out *= i
		}
		return out, nil
	},
}

var calcConstants = map[string]float64{"pi": math.Pi, "e": math.E}

func unary(fn func(float64) float64) func([]float64) (float64, error) {
	return func(args []float64) (float64, error) {
		if len(args) != 1 {
			return 0, fmt.Errorf("expected 1 argument, got %d", len(args))
		}
		return fn(args[0]), nil
	}
}

type calcToken struct {
	kind string // num, ident, op
	text string
	num  float64
}

type calcParser struct {
	tokens []calcToken
	pos    int
}

// Evaluate parses and evaluates an arithmetic expression.
func Evaluate(expression string) (float64, error) {
	tokens, err := tokenize(expression)
	if err != nil {
		return 0, err
	}
	if len(tokens) == 0 {
		return 0, fmt.Errorf("empty expression")
	}

	p := &calcParser{tokens: tokens}
	v, err := p.expr()
	if err != nil {
		return 0, err
	}
	if p.pos != len(p.tokens) {
		return 0, fmt.Errorf("unexpected %q", p.tokens[p.pos].text)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("result is not a finite number")
	}
	return v, nil
}

// FormatNumber prints whole numbers without a fractional part.
func FormatNumber(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func tokenize(s string) ([]calcToken, error) {
	var tokens []calcToken
	runes := []rune(s)
	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case unicode.IsDigit(r) || r == '.':
			start := i
			for i < len(runes) && (unicode.IsDigit(runes[i]) || runes[i] == '.' || runes[i] == '_') {
				i++
			}
			if i < len(runes) && (runes[i] == 'e' || runes[i] == 'E') {
				j := i + 1
				if j < len(runes) && (runes[j] == '+' || runes[j] == '-') {
					j++
				}
				if j < len(runes) && unicode.IsDigit(runes[j]) {
					i = j
					for i < len(runes) && unicode.IsDigit(runes[i]) {
						i++
					}
				}
			}
			text := strings.ReplaceAll(string(runes[start:i]), "_", "")
			n, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid number %q", text)
			}
			tokens = append(tokens, calcToken{kind: "num", text: text, num: n})
		case unicode.IsLetter(r) || r == '_':
			start := i
			for i < len(runes) && (unicode.IsLetter(runes[i]) || unicode.IsDigit(runes[i]) || runes[i] == '_') {
				i++
			}
			tokens = append(tokens, calcToken{kind: "ident", text: string(runes[start:i])})
		default:
			if i+1 < len(runes) {
				two := string(runes[i : i+2])
				if two == "**" || two == "//" {
					tokens = append(tokens, calcToken{kind: "op", text: two})
					i += 2
					continue
				}
			}
			if !strings.ContainsRune("+-*/%^(),", r) {
				return nil, fmt.Errorf("unsupported character %q", r)
			}
			tokens = append(tokens, calcToken{kind: "op", text: string(r)})
			i++
		}
	}
	return tokens, nil
}

func (p *calcParser) peek() *calcToken {
	if p.pos < len(p.tokens) {
		return &p.tokens[p.pos]
	}
	return nil
}

func (p *calcParser) acceptOp(ops ...string) (string, bool) {
	t := p.peek()
	if t == nil || t.kind != "op" {
		return "", false
	}
	for _, op := range ops {
		if t.text == op {
			p.pos++
			return op, true
		}
	}
	return "", false
}

func (p *calcParser) expr() (float64, error) {
	left, err := p.term()
	if err != nil {
		return 0, err
	}
	for {
		op, ok := p.acceptOp("+", "-")
		if !ok {
			return left, nil
		}
		right, err := p.term()
		if err != nil {
			return 0, err
		}
		if op == "+" {
			left += right
		} else {
			left -= right
		}
	}
}

func (p *calcParser) term() (float64, error) {
	left, err := p.unary()
	if err != nil {
		return 0, err
	}
	for {
		op, ok := p.acceptOp("*", "/", "//", "%")
		if !ok {
			return left, nil
		}
		right, err := p.unary()
		if err != nil {
			return 0, err
		}
		if right == 0 && op != "*" {
			return 0, fmt.Errorf("Division by zero")
		}
		switch op {
		case "*":
			left *= right
		case "/":
			left /= right
		case "//":
			left = math.Floor(left / right)
		case "%":
			left = left - right*math.Floor(left/right)
		}
	}
}

func (p *calcParser) unary() (float64, error) {
	if op, ok := p.acceptOp("+", "-"); ok {
		v, err := p.unary()
		if err != nil {
			return 0, err
		}
		if op == "-" {
			return -v, nil
		}
		return v, nil
	}
	return p.power()
}

func (p *calcParser) power() (float64, error) {
	base, err := p.primary()
	if err != nil {
		return 0, err
	}
	if _, ok := p.acceptOp("^", "**"); ok {
		exp, err := p.unary()
		if err != nil {
			return 0, err
		}
		return math.Pow(base, exp), nil
	}
	return base, nil
}

func (p *calcParser) primary() (float64, error) {
	t := p.peek()
	if t == nil {
		return 0, fmt.Errorf("unexpected end of expression")
	}

	switch t.kind {
	case "num":
		p.pos++
		return t.num, nil

	case "ident":
		p.pos++
		name := t.text
		if _, ok := p.acceptOp("("); !ok {
			if c, ok := calcConstants[name]; ok {
				return c, nil
			}
			return 0, fmt.Errorf("unknown name: %s", name)
		}
		fn, ok := calcFunctions[name]
		if !ok {
			return 0, fmt.Errorf("unknown function: %s", name)
		}
		var args []float64
		if _, ok := p.acceptOp(")"); !ok {
			for {
				v, err := p.expr()
				if err != nil {
					return 0, err
				}
				args = append(args, v)
				if _, ok := p.acceptOp(","); ok {
					continue
				}
				if _, ok := p.acceptOp(")"); !ok {
					return 0, fmt.Errorf("expected ) after arguments to %s", name)
				}
				break
			}
		}
		v, err := fn(args)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", name, err)
		}
		return v, nil

	case "op":
		if t.text == "(" {
			p.pos++
			v, err := p.expr()
			if err != nil {
				return 0, err
			}
			if _, ok := p.acceptOp(")"); !ok {
				return 0, fmt.Errorf("missing closing parenthesis")
			}
			return v, nil
		}
	}

	return 0, fmt.Errorf("unexpected %q", t.text)
}

func calculatorTool() ToolDefinition {
	return ToolDefinition{
		Name: "calculator",
		Description: "Evaluate mathematical expressions. Supports arithmetic, " +
			"trigonometry (sin, cos, tan), logarithms (log, log10), and constants (pi, e).",
		Parameters: []ToolParameter{{
			Name:        "expression",
			Type:        "string",
			Description: "Mathematical expression to evaluate, e.g. '2 + 2', 'sqrt(16)', 'sin(pi/2)'",
			Required:    true,
		}},
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			expr, _ := params["expression"].(string)
			v, err := Evaluate(expr)
			if err != nil {
				return nil, err
			}
			return FormatNumber(v), nil
		},
	}
}
