package llm

import (
	"errors"
	"testing"
	"unicode/utf8"

	"github.com/ShayCichocki/pairline/internal/apperr"
)

func TestExtractObject(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"bare", `{"a":1}`, `{"a":1}`, false},
		{"fenced", "Here you go:\n```json\n{\"a\":{\"b\":2}}\n```\nDone.", `{"a":{"b":2}}`, false},
		{"no object", "I cannot help with that.", "", true},
		{"reversed braces", "} then {", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractObject(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ExtractObject() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, apperr.ErrSchema) {
					t.Errorf("expected schema error, got %v", err)
				}
				return
			}
			if got != tt.want {
				t.Errorf("ExtractObject() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDecodeObject(t *testing.T) {
	var out struct {
		Tasks []string `json:"tasks"`
	}
	if err := DecodeObject(`result: {"tasks": ["a", "b"]}`, &out); err != nil {
		t.Fatalf("DecodeObject failed: %v", err)
	}
	if len(out.Tasks) != 2 {
		t.Errorf("expected 2 tasks, got %d", len(out.Tasks))
	}

	err := DecodeObject(`{"tasks": [}`, &out)
	if !errors.Is(err, apperr.ErrSchema) {
		t.Errorf("expected schema error for malformed JSON, got %v", err)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{name: "short", in: "abc", max: 5, want: "abc"},
		{name: "ascii", in: "abcdef", max: 3, want: "abc..."},
		{name: "inside rune", in: "abécd", max: 3, want: "ab..."},
		{name: "rune boundary", in: "abécd", max: 4, want: "abé..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncate(tt.in, tt.max)
			if got != tt.want {
				t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("truncate produced invalid UTF-8 %q", got)
			}
		})
	}
}
