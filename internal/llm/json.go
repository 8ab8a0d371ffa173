package llm

import (
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/ShayCichocki/pairline/internal/apperr"
)

// ExtractObject returns the text between the first '{' and the last '}' of a
// response, which is where models put JSON even when they wrap it in prose
// or code fences.
func ExtractObject(response string) (string, error) {
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start == -1 || end == -1 || end <= start {
		return "", apperr.New(apperr.KindSchema, "llm.ExtractObject",
			"no JSON object found in response: %s", truncate(response, 200))
	}
	return response[start : end+1], nil
}

// DecodeObject extracts the JSON object from response and unmarshals it into
// target.
func DecodeObject(response string, target any) error {
	raw, err := ExtractObject(response)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), target); err != nil {
		return &apperr.Error{
			Kind: apperr.KindSchema,
			Op:   "llm.DecodeObject",
			Msg:  "parse JSON (response: " + truncate(raw, 200) + ")",
			Err:  err,
		}
	}
	return nil
}

// truncate shortens s to at most maxLen bytes without splitting a rune.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
