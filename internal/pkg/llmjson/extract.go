package llmjson

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var (
	jsonFenceRe  = regexp.MustCompile("(?s)```json\\s*(.*?)```")
	plainFenceRe = regexp.MustCompile("(?s)```\\s*(.*?)```")
)

// Extract pulls a JSON object out of a model reply. Models wrap JSON in
// prose or code fences often enough that a single json.Unmarshal is not
// reliable. Tried in order: the whole reply, a ```json fence, a bare fence,
// the first balanced top-level object.
func Extract(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("empty reply")
	}

	if json.Valid([]byte(text)) {
		return text, nil
	}

	if m := jsonFenceRe.FindStringSubmatch(text); len(m) == 2 {
		candidate := strings.TrimSpace(m[1])
		if json.Valid([]byte(candidate)) {
			return candidate, nil
		}
	}

	if m := plainFenceRe.FindStringSubmatch(text); len(m) == 2 {
		candidate := strings.TrimSpace(m[1])
		if json.Valid([]byte(candidate)) {
			return candidate, nil
		}
	}

	if candidate := balancedObject(text); candidate != "" && json.Valid([]byte(candidate)) {
		return candidate, nil
	}

	return "", fmt.Errorf("no valid JSON object in reply")
}

// balancedObject returns the first top-level {...} span, tracking strings so
// braces inside values do not miscount.
func balancedObject(text string) string {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}
