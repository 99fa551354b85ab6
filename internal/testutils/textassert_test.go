package testutils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTextAsserter_Defaults(t *testing.T) {
	ta := NewTextAsserter(t)
	assert.True(t, ta.options.TrimSpace)
	assert.True(t, ta.options.IgnoreTrailingWhitespace)
	assert.False(t, ta.options.IgnoreLeadingWhitespace)
	assert.False(t, ta.options.IgnoreEmptyLines)
	assert.False(t, ta.options.EnableColors)
}

func TestTextAsserter_Diff(t *testing.T) {
	tests := []struct {
		name     string
		opts     []TextOption
		actual   string
		expected string
		match    bool
	}{
		{
			name:     "identical",
			actual:   "ADDRESS  NAME\naa:bb    Sensor",
			expected: "ADDRESS  NAME\naa:bb    Sensor",
			match:    true,
		},
		{
			name:     "trailing whitespace and outer blank lines",
			actual:   "\nADDRESS  NAME   \naa:bb    Sensor\t\n\n",
			expected: "ADDRESS  NAME\naa:bb    Sensor",
			match:    true,
		},
		{
			name:     "trailing whitespace kept when disabled",
			opts:     []TextOption{WithIgnoreTrailingWhitespace(false)},
			actual:   "a  \nb",
			expected: "a\nb",
		},
		{
			name:     "leading whitespace",
			opts:     []TextOption{WithIgnoreLeadingWhitespace(true)},
			actual:   "  a\n\tb",
			expected: "a\nb",
			match:    true,
		},
		{
			name:     "empty lines",
			opts:     []TextOption{WithIgnoreEmptyLines(true)},
			actual:   "a\n\n  \nb",
			expected: "a\nb",
			match:    true,
		},
		{
			name:     "changed line",
			actual:   "a\nb\nc",
			expected: "a\nx\nc",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			diff := NewTextAsserter(t).WithOptions(tt.opts...).Diff(tt.actual, tt.expected)
			if tt.match {
				assert.Empty(t, diff)
			} else {
				assert.Contains(t, diff, "--- expected")
				assert.Contains(t, diff, "+++ actual")
			}
		})
	}
}

func TestTextAsserter_ColorizedDiff(t *testing.T) {
	diff := NewTextAsserter(t).WithOptions(WithEnableColors(true)).Diff("a b", "a c")
	assert.Contains(t, diff, "\x1b[")
	assert.Contains(t, diff, "a·b")
}
