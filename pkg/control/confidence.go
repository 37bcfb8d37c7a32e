package control

import "strings"

// DefaultConfidenceThreshold is used when a team does not configure one
const DefaultConfidenceThreshold = 0.4

// ClarificationPrompt is sent to the model when an answer scores below threshold.
const ClarificationPrompt = "Your previous answer scored low on confidence. " +
	"Please provide a more detailed, definitive response."

const baseConfidence = 0.7

var uncertaintyPhrases = []string{
	"i'm not sure",
	"i am not sure",
	"i don't know",
	"i'm unsure",
	"uncertain",
	"not confident",
	"possibly",
	"maybe",
	"might be",
	"hard to say",
	"difficult to determine",
	"unclear",
	"i think",
	"it seems",
	"perhaps",
}

// ConfidenceChecker scores answers with a keyword heuristic. It is stateless.
type ConfidenceChecker struct {
	Threshold float64
}

// NewConfidenceChecker creates a checker. A negative threshold means the default.
func NewConfidenceChecker(threshold float64) ConfidenceChecker {
	if threshold < 0 {
		threshold = DefaultConfidenceThreshold
	}
	return ConfidenceChecker{Threshold: threshold}
}

// Score returns a value in [0,1]: 0.7, minus 0.1 per uncertainty phrase present,
// plus 0.1 above 200 words or minus 0.1 below 20 words.
func Score(output string) float64 {
	lower := strings.ToLower(output)

	confidence := baseConfidence
	for _, phrase := range uncertaintyPhrases {
		if strings.Contains(lower, phrase) {
			confidence -= 0.1
		}
	}

	words := len(strings.Fields(output))
	switch {
	case words > 200:
		confidence += 0.1
	case words < 20:
		confidence -= 0.1
	}

	if confidence < 0 {
		return 0
	}
	if confidence > 1 {
		return 1
	}
	return confidence
}

// Check scores output
func (c ConfidenceChecker) Check(output string) float64 {
	return Score(output)
}

// ShouldPause reports whether output scores below the threshold. A zero
// threshold disables the check.
func (c ConfidenceChecker) ShouldPause(output string) bool {
	if c.Threshold <= 0 {
		return false
	}
	return Score(output) < c.Threshold
}
