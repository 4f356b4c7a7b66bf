package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrNoJSON is returned by DecodeJSONArray when the reply holds no array.
var ErrNoJSON = errors.New("no JSON in model reply")

var (
	objectFence   = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(\\{.*\\})\\s*```")
	objectBare    = regexp.MustCompile(`(?s)\{[\s\S]*\}`)
	arrayFence    = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(\\[.*\\])\\s*```")
	arrayBare     = regexp.MustCompile(`(?s)\[[\s\S]*\]`)
	trailingComma = regexp.MustCompile(`,\s*([}\]])`)
)

// ExtractJSON pulls a JSON object out of a model reply. Fenced code blocks
// win over bare objects. Line comments and trailing commas are removed.
func ExtractJSON(content string) string {
	return extract(content, objectFence, objectBare)
}

// ExtractJSONArray is ExtractJSON for arrays.
func ExtractJSONArray(content string) string {
	return extract(content, arrayFence, arrayBare)
}

// DecodeJSONArray extracts an array from content and unmarshals it into a
// slice of T.
func DecodeJSONArray[T any](content string) ([]T, error) {
	raw := ExtractJSONArray(content)
	if raw == "" {
		return nil, ErrNoJSON
	}
	var out []T
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("decode model reply: %w", err)
	}
	return out, nil
}

func extract(content string, fence, bare *regexp.Regexp) string {
	if m := fence.FindStringSubmatch(content); len(m) > 1 {
		return cleanJSON(m[1])
	}
	if m := bare.FindString(content); m != "" {
		return cleanJSON(m)
	}
	return ""
}

// cleanJSON strips // comments outside strings and trailing commas.
func cleanJSON(raw string) string {
	lines := strings.Split(raw, "\n")
	for i, line := range lines {
		lines[i] = stripLineComment(line)
	}
	return trailingComma.ReplaceAllString(strings.Join(lines, "\n"), "$1")
}

// stripLineComment cuts a // comment from line unless it sits inside a
// quoted string:
//
//	"url": "http://example.com" // home  ->  "url": "http://example.com"
func stripLineComment(line string) string {
	if !strings.Contains(line, "//") {
		return line
	}

	inString, escaped := false, false
	for i := 0; i < len(line); i++ {
		switch ch := line[i]; {
		case escaped:
			escaped = false
		case ch == '\\' && inString:
			escaped = true
		case ch == '"':
			inString = !inString
		case !inString && ch == '/' && i+1 < len(line) && line[i+1] == '/':
			return strings.TrimRight(line[:i], " \t")
		}
	}
	return line
}
