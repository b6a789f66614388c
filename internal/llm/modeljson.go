package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoJSON indicates the model output contained no JSON object at all.
var ErrNoJSON = errors.New("llm: model output contained no JSON object")

// DecodeModelJSON extracts the first JSON object from raw model output and
// unmarshals it into v. Models asked for "only JSON" still wrap it in
// markdown fences or prose often enough that strict json.Unmarshal on the raw
// text is a reliability bug. The result is either fully decoded or an error;
// callers never see a partially populated value.
func DecodeModelJSON(raw string, v any) error {
	cleaned := stripFences(raw)

	start := strings.IndexByte(cleaned, '{')
	if start < 0 {
		return ErrNoJSON
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(cleaned); i++ {
		ch := cleaned[i]
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
				if err := json.Unmarshal([]byte(cleaned[start:i+1]), v); err != nil {
					return fmt.Errorf("llm: decode model JSON: %w", err)
				}
				return nil
			}
		}
	}
	return ErrNoJSON
}

func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// Drop an optional language tag on the opening fence.
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		first := strings.TrimSpace(s[:idx])
		if first == "json" || first == "" {
			s = s[idx+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
