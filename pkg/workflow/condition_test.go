package workflow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateCondition(t *testing.T) {
	ec := NewExecutionContext("hello")
	ec.Set("review", StepRecord{Output: "LGTM", Success: true})
	ec.Set("blank", StepRecord{Output: ""})
	ec.Set("notes", Scalar(""))

	tests := []struct {
		name      string
		condition string
		want      bool
	}{
		{"numeric equality false", "1 == 2", false},
		{"numeric equality true", "2.0 == 2", true},
		{"numeric ordering", "10 > 9", true},
		{"numeric ordering is not lexicographic", "10 < 9", false},
		{"greater or equal", "3 >= 3", true},
		{"less or equal", "4 <= 3", false},
		{"inequality", "1 != 2", true},
		{"string equality ignores case", "Approved == approved", true},
		{"quoted strings", `'yes' == "YES"`, true},
		{"string inequality", "done != pending", true},
		{"string ordering is lexicographic", "apple < banana", true},
		{"contains", "the report is ready contains ready", true},
		{"contains is case sensitive", "the report is ready contains READY", false},
		{"not empty on a record", "review not empty", true},
		{"empty on a record", "review empty", false},
		{"empty on a blank record", "blank empty", true},
		{"not empty on a blank scalar", "notes not empty", false},
		{"empty subject is empty", "empty", true},
		{"not empty on a resolved empty value", "not empty", false},
		{"not empty on a literal falls back to the text", "something not empty", true},
		{"dotted path subject", "review.output not empty", true},
		{"prose before empty is judged by its own text", "the queue is empty", false},
		{"prose before not empty is judged by its own text", "a finished draft not empty", true},
		{"stray trailing quote is kept", `He said "no" == yes`, false},
		{"stray quote compares literally", `it's == it's`, true},
		{"truthy text", "yes", true},
		{"empty text", "   ", false},
	}

	for _, tt := range tests {
		t.Run("should evaluate "+tt.name, func(t *testing.T) {
			got, err := EvaluateCondition(tt.condition, ec)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseConditionRejectsMalformed(t *testing.T) {
	malformed := []string{
		"== yes",
		"yes ==",
		"a >   ",
		"!= b",
	}

	for _, raw := range malformed {
		t.Run("should reject "+raw, func(t *testing.T) {
			_, err := ParseCondition(raw)
			require.Error(t, err)

			var condErr *ConditionError
			assert.True(t, errors.As(err, &condErr))
			assert.Contains(t, err.Error(), "invalid condition")
		})
	}
}
