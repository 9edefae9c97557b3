package llm

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrNoJSON is returned when a response holds no decodable JSON object.
var ErrNoJSON = errors.New("no JSON object in response")

// ParseJSON decodes the JSON object in text into v. The object may be the
// whole text, inside a fenced block, or embedded in prose.
func ParseJSON(text string, v any) error {
	for _, candidate := range jsonCandidates(text) {
		if err := json.Unmarshal([]byte(candidate), v); err == nil {
			return nil
		}
	}
	return ErrNoJSON
}

func jsonCandidates(text string) []string {
	text = strings.TrimSpace(text)
	out := []string{text}

	if i := strings.Index(text, "```"); i >= 0 {
		body := text[i+3:]
		// Skip the info string, e.g. ```json.
		if nl := strings.IndexByte(body, '\n'); nl >= 0 {
			body = body[nl+1:]
		}
		if j := strings.Index(body, "```"); j >= 0 {
			out = append(out, strings.TrimSpace(body[:j]))
		}
	}

	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start >= 0 && end > start {
		out = append(out, text[start:end+1])
	}
	return out
}

// StripFences returns the body of the first fenced code block, or text
// unchanged when there is none.
func StripFences(text string) string {
	trimmed := strings.TrimSpace(text)
	i := strings.Index(trimmed, "```")
	if i < 0 {
		return text
	}
	body := trimmed[i+3:]
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		body = body[nl+1:]
	}
	if j := strings.Index(body, "```"); j >= 0 {
		body = body[:j]
	}
	return strings.TrimRight(body, "\n")
}
