package logger

import (
	"io"
	"regexp"
)

const redacted = "[REDACTED]"

// rule replaces matches of re. When keep is set, the first submatch (the
// key or scheme) survives and only the value is masked.
type rule struct {
	re   *regexp.Regexp
	keep bool
}

// Redactor masks provider credentials and dashboard tokens in log output.
type Redactor struct {
	rules []rule
}

// NewRedactor returns a Redactor covering the credentials AgentForge handles:
// OpenAI, Anthropic and Groq keys, bearer headers, dashboard tokens passed as
// ?token=, and key/secret/password style settings.
func NewRedactor() *Redactor {
	return &Redactor{
		rules: []rule{
			{re: regexp.MustCompile(`sk-ant-[A-Za-z0-9_-]{16,}`)},
			{re: regexp.MustCompile(`sk-(?:proj-)?[A-Za-z0-9_-]{20,}`)},
			{re: regexp.MustCompile(`gsk_[A-Za-z0-9]{16,}`)},
			{re: regexp.MustCompile(`AKIA[0-9A-Z]{16}`)},
			{re: regexp.MustCompile(`(Bearer\s+)[A-Za-z0-9._~+/=-]+`), keep: true},
			{re: regexp.MustCompile(`([?&]token=)[^&\s"]+`), keep: true},
			{re: regexp.MustCompile(`(?i)((?:api[_-]?key|secret|password|pwd|token)["']?\s*[:=]\s*["']?)[^\s"',}&]+`), keep: true},
		},
	}
}

// AddPattern masks every match of pattern in full.
func (r *Redactor) AddPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	r.rules = append(r.rules, rule{re: re})
	return nil
}

// Redact returns s with every secret masked.
func (r *Redactor) Redact(s string) string {
	return string(r.redact([]byte(s)))
}

func (r *Redactor) redact(p []byte) []byte {
	for _, rl := range r.rules {
		if rl.keep {
			p = rl.re.ReplaceAll(p, []byte("${1}"+redacted))
		} else {
			p = rl.re.ReplaceAll(p, []byte(redacted))
		}
	}
	return p
}

// Wrap returns a writer that redacts each write before passing it to w.
// zerolog issues one Write per event, so a secret is never split across calls.
func (r *Redactor) Wrap(w io.Writer) io.Writer {
	return &redactingWriter{w: w, r: r}
}

type redactingWriter struct {
	w io.Writer
	r *Redactor
}

// Write reports len(p) on success since callers account for the bytes they
// passed in, not the masked length.
func (rw *redactingWriter) Write(p []byte) (int, error) {
	if _, err := rw.w.Write(rw.r.redact(p)); err != nil {
		return 0, err
	}
	return len(p), nil
}
