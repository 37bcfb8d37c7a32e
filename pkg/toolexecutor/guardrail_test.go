package toolexecutor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllowed(t *testing.T) {
	tests := []struct {
		name    string
		tool    string
		allowed []string
		blocked []string
		want    bool
	}{
		{name: "no lists", tool: "calculator", want: true},
		{name: "in allowed", tool: "calculator", allowed: []string{"calculator"}, want: true},
		{name: "not in allowed", tool: "file_write", allowed: []string{"calculator"}, want: false},
		{name: "blocked", tool: "file_write", blocked: []string{"file_write"}, want: false},
		{name: "blocked wins over allowed", tool: "file_write", allowed: []string{"file_write"}, blocked: []string{"file_write"}, want: false},
		{name: "wildcard allowed", tool: "anything", allowed: []string{"*"}, want: true},
		{name: "wildcard blocked", tool: "anything", allowed: []string{"anything"}, blocked: []string{"*"}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Allowed(tt.tool, tt.allowed, tt.blocked))
		})
	}
}

func TestFilterAllowed(t *testing.T) {
	got := FilterAllowed(
		[]string{"calculator", "file_write", "http_request"},
		nil,
		[]string{"file_write"},
	)
	assert.Equal(t, []string{"calculator", "http_request"}, got)
}
