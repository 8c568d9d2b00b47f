package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "bare product object",
			input: `{"name":"Dress","price":1500}`,
			want:  `{"name":"Dress","price":1500}`,
		},
		{
			name:  "fenced product object",
			input: "```json\n{\"name\":\"Dress\",\"sizes\":[\"S\",\"M\"]}\n```",
			want:  `{"name":"Dress","sizes":["S","M"]}`,
		},
		{
			name:  "preamble before color array",
			input: `Colors found: ["black","red"]`,
			want:  `["black","red"]`,
		},
		{
			name:  "brackets inside a string value",
			input: `{"description":"sizes [S-XL] {new}","price":900}`,
			want:  `{"description":"sizes [S-XL] {new}","price":900}`,
		},
		{
			name:  "escaped quotes inside a string value",
			input: `Result: {"name":"Dress \"Lily\" ]","price":900}`,
			want:  `{"name":"Dress \"Lily\" ]","price":900}`,
		},
		{
			name:  "unbalanced candidate before a valid one",
			input: `{"a": [1, 2} then {"name":"Coat"}`,
			want:  `{"name":"Coat"}`,
		},
		{
			name:  "balanced but invalid candidate skipped",
			input: `{ not json } then {"price":100}`,
			want:  `{"price":100}`,
		},
		{
			name:  "size list prose is not json",
			input: `sizes [S, M] and {"name":"Skirt"}`,
			want:  `{"name":"Skirt"}`,
		},
		{
			name:  "only invalid candidates returns input",
			input: `price {about 100} sizes [S, M]`,
			want:  `price {about 100} sizes [S, M]`,
		},
		{
			name:  "unclosed object returns input",
			input: `{"name":"Dress","price":`,
			want:  `{"name":"Dress","price":`,
		},
		{
			name:  "no json returns input",
			input: "no product here",
			want:  "no product here",
		},
		{
			name:  "empty object",
			input: `Result: {}`,
			want:  `{}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractJSON(tt.input))
		})
	}
}

func TestMatchingBracket(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		start int
		want  int
	}{
		{name: "flat object", text: `{"a":1} tail`, start: 0, want: 6},
		{name: "nested array", text: `[1,[2]] tail`, start: 0, want: 6},
		{name: "closing brace in string", text: `{"a":"}"}`, start: 0, want: 8},
		{name: "escaped quote in string", text: `{"a":"\"}"}`, start: 0, want: 10},
		{name: "inner start", text: `x {"a":[1]}`, start: 7, want: 9},
		{name: "unclosed", text: `{"a":[1,2]`, start: 0, want: -1},
		{name: "unterminated string", text: `{"a":"}`, start: 0, want: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, matchingBracket(tt.text, tt.start))
		})
	}
}
