package llm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go"
)

// AttemptError is one failed call to one candidate model.
type AttemptError struct {
	Model   string
	Attempt int
	Err     error
}

func (e AttemptError) Error() string {
	return fmt.Sprintf("%s (attempt %d): %v", e.Model, e.Attempt, e.Err)
}

// ModelExhaustedError is returned when every candidate in the fallback chain failed.
type ModelExhaustedError struct {
	Candidates []string
	Attempts   []AttemptError
}

func (e *ModelExhaustedError) Error() string {
	msgs := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		msgs[i] = a.Error()
	}
	return fmt.Sprintf("All models failed. Tried: %s. Errors: %s",
		strings.Join(e.Candidates, ", "), strings.Join(msgs, "; "))
}

// Models returns the candidate models in the order they were tried.
func (e *ModelExhaustedError) Models() []string {
	return append([]string(nil), e.Candidates...)
}

// Unwrap exposes the last attempt's error.
func (e *ModelExhaustedError) Unwrap() error {
	if len(e.Attempts) == 0 {
		return nil
	}
	return e.Attempts[len(e.Attempts)-1].Err
}

// ErrNoProvider is returned when a model's provider prefix has no registered Provider.
var ErrNoProvider = errors.New("no provider registered")

// IsRetryableError reports whether err looks like a rate limit or transient
// failure worth retrying on the same model.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var anthropicErr *anthropic.Error
	if errors.As(err, &anthropicErr) {
		return retryableStatus(anthropicErr.StatusCode)
	}
	var openaiErr *openai.Error
	if errors.As(err, &openaiErr) {
		return retryableStatus(openaiErr.StatusCode)
	}

	errMsg := strings.ToLower(err.Error())

	// Network errors
	if strings.Contains(errMsg, "econnreset") || strings.Contains(errMsg, "etimedout") ||
		strings.Contains(errMsg, "connection reset") {
		return true
	}

	// Rate limits
	if strings.Contains(errMsg, "rate") || strings.Contains(errMsg, "429") {
		return true
	}

	// Server errors
	for _, code := range []string{"500", "502", "503", "504", "529"} {
		if strings.Contains(errMsg, code) {
			return true
		}
	}

	return false
}

func retryableStatus(code int) bool {
	return code == 429 || code == 529 || code >= 500
}
