package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScan(t *testing.T) {
	testCases := []struct {
		name  string
		text  string
		names []string
	}{
		{
			name:  "empty_input",
			text:  "",
			names: nil,
		},
		{
			name:  "no_placeholders",
			text:  "SELECT * FROM users",
			names: nil,
		},
		{
			name:  "single_placeholder",
			text:  "status = {{status}}",
			names: []string{"status"},
		},
		{
			name:  "multiple_placeholders_in_order",
			text:  "/teams/{{team}}/users/{{user}}",
			names: []string{"team", "user"},
		},
		{
			name:  "duplicates_deduplicated_first_occurrence",
			text:  "{{b}} and {{a}} and {{b}} and {{a}}",
			names: []string{"b", "a"},
		},
		{
			name:  "whitespace_trimmed",
			text:  "{{ status }} = {{status}}",
			names: []string{"status"},
		},
		{
			name:  "unclosed_token_ignored",
			text:  "{{status",
			names: nil,
		},
		{
			name:  "empty_token_ignored",
			text:  "{{  }} and {{x}}",
			names: []string{"x"},
		},
		{
			name:  "mongo_style_query",
			text:  "collection('users').find({status: {{status}}}).limit({{limit}})",
			names: []string{"status", "limit"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := Scan(tc.text)
			var names []string
			for _, p := range got {
				names = append(names, p.Name)
			}
			assert.Equal(t, tc.names, names)
		})
	}
}

func TestScanOffsetsAndRawTokens(t *testing.T) {
	got := Scan("a={{ a }} b={{b}}")

	assert.Len(t, got, 2)
	assert.Equal(t, "{{ a }}", got[0].RawToken)
	assert.Equal(t, 2, got[0].Offset)
	assert.Equal(t, "{{b}}", got[1].RawToken)
	assert.Equal(t, 12, got[1].Offset)
}

func TestScanDeterministic(t *testing.T) {
	text := "x={{x}} y={{y}} x={{x}}"
	assert.Equal(t, Scan(text), Scan(text))
}
