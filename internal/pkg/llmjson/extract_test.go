package llmjson

import (
	"testing"
)

func TestExtract(t *testing.T) {
	cases := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{
			name:  "direct object",
			input: `{"a": 1}`,
			want:  `{"a": 1}`,
		},
		{
			name:  "json fence",
			input: "Here is the plan:\n```json\n{\"a\": 1}\n```\nDone.",
			want:  `{"a": 1}`,
		},
		{
			name:  "plain fence",
			input: "```\n{\"a\": [1, 2]}\n```",
			want:  `{"a": [1, 2]}`,
		},
		{
			name:  "prose around object",
			input: `Sure! The result is {"keep": "a.txt", "reason": "newer"} as requested.`,
			want:  `{"keep": "a.txt", "reason": "newer"}`,
		},
		{
			name:  "braces inside strings",
			input: `prefix {"note": "odd } brace", "n": 2} suffix`,
			want:  `{"note": "odd } brace", "n": 2}`,
		},
		{
			name:  "nested objects",
			input: `answer: {"outer": {"inner": {"x": 1}}}`,
			want:  `{"outer": {"inner": {"x": 1}}}`,
		},
		{
			name:    "no json at all",
			input:   "I could not produce a plan.",
			wantErr: true,
		},
		{
			name:    "empty",
			input:   "   ",
			wantErr: true,
		},
		{
			name:    "unbalanced",
			input:   `{"a": 1`,
			wantErr: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Extract(tc.input)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}
