package inference

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

var fencedJSON = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")

// ExtractJSON pulls a JSON object out of model output. It tries, in order,
// the text as a whole, the first ```json fenced block, and the span from the
// first '{' to the last '}'. ErrUnparseable is returned when none of them
// holds a JSON object.
func ExtractJSON(text string) ([]byte, error) {
	if obj, ok := asObject(text); ok {
		return obj, nil
	}
	if m := fencedJSON.FindStringSubmatch(text); m != nil {
		if obj, ok := asObject(m[1]); ok {
			return obj, nil
		}
	}
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start != -1 && end > start {
		if obj, ok := asObject(text[start : end+1]); ok {
			return obj, nil
		}
	}
	return nil, ErrUnparseable
}

func asObject(s string) ([]byte, bool) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "{") || !json.Valid([]byte(s)) {
		return nil, false
	}
	return []byte(s), true
}

// ParseResult runs ExtractJSON and Decode over raw model output.
func ParseResult(text string) (Result, error) {
	raw, err := ExtractJSON(text)
	if err != nil {
		return Result{}, newError(KindParse, err)
	}
	r, err := Decode(raw)
	if err != nil {
		if errors.Is(err, ErrUnparseable) {
			return Result{}, newError(KindParse, err)
		}
		return Result{}, newError(KindInvalid, err)
	}
	return r, nil
}
