// internal/llmutil/parser.go
package llmutil

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// fencedBlockRegex captures the body of a markdown code fence, with or without a language tag.
// \x60 is a backtick; raw strings cannot contain one.
var fencedBlockRegex = regexp.MustCompile("(?s)\x60\x60\x60(?:[a-zA-Z]+)?\\s*(.*?)\\s*\x60\x60\x60")

// ErrNoJSONObject is returned when a response contains no brace-delimited fragment.
var ErrNoJSONObject = errors.New("no JSON object found in response")

// ExtractJSONObject returns the text from the first '{' to the last '}' inclusive.
// A response carrying several separate objects yields a span that will not parse;
// callers treat that as a malformed response.
func ExtractJSONObject(response string) (string, error) {
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start == -1 || end == -1 || end < start {
		return "", ErrNoJSONObject
	}
	return response[start : end+1], nil
}

// ParseJSONResponse parses an LLM response into T. Markdown fences are
// stripped first; surrounding prose is dropped by brace extraction.
func ParseJSONResponse[T any](response string) (*T, error) {
	candidate := strings.TrimSpace(response)

	if strings.HasPrefix(candidate, "```") {
		if m := fencedBlockRegex.FindStringSubmatch(candidate); len(m) > 1 {
			candidate = strings.TrimSpace(m[1])
		}
	}

	if !strings.HasPrefix(candidate, "[") {
		obj, err := ExtractJSONObject(candidate)
		if err != nil {
			return nil, fmt.Errorf("failed to locate JSON in LLM response: %w", err)
		}
		candidate = obj
	}

	var result T
	if err := json.Unmarshal([]byte(candidate), &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal LLM JSON response: %w. Extracted JSON (truncated): %s", err, Truncate(candidate, 500))
	}
	return &result, nil
}

// Truncate shortens s to at most maxRunes runes, appending "..." when it cut anything.
func Truncate(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return string(runes[:maxRunes]) + "..."
}
