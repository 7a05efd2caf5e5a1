package planner

import (
	"encoding/json"
	"regexp"
	"strings"
)

var fenceRe = regexp.MustCompile("(?s)```[a-zA-Z]*[ \\t]*\\r?\\n?(.*?)```")

// ExtractJSON pulls a JSON object out of a free-text model response. A
// fenced code block is unwrapped first; the object is then the slice from the
// first '{' to the last '}'. The result is guaranteed to be valid JSON.
func ExtractJSON(text string) ([]byte, error) {
	candidate := text
	if m := fenceRe.FindStringSubmatch(text); m != nil {
		candidate = m[1]
	}
	start := strings.Index(candidate, "{")
	end := strings.LastIndex(candidate, "}")
	if start < 0 || end < start {
		return nil, &ParseError{Raw: text, Err: errNoJSON}
	}
	raw := []byte(candidate[start : end+1])
	var probe json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, &ParseError{Raw: text, Err: err}
	}
	return raw, nil
}

// decode extracts and unmarshals a T from a model response.
func decode[T any](text string) (T, error) {
	var out T
	raw, err := ExtractJSON(text)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, &ParseError{Raw: text, Err: err}
	}
	return out, nil
}
