package extract

import (
	"encoding/json"
	"strings"
)

// parseExtraction decodes a model response as a field-name -> value object,
// tolerating a markdown code fence around the JSON.
func parseExtraction(content string) (map[string]any, error) {
	cleaned := stripCodeFence(content)

	var parsed map[string]any
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return nil, err
	}
	return parsed, nil
}

// stripCodeFence removes a leading ```/```json line and a trailing ``` line.
// Anything that is not fenced passes through untouched.
func stripCodeFence(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	lines := strings.Split(trimmed, "\n")
	if len(lines) < 2 {
		return trimmed
	}

	lines = lines[1:]
	if strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// fieldPayload is the canonical form of one field's raw value, resolved once
// at parse time. Models may return either a bare value or an object shaped
// like {answer|value, reasoning, grounding}.
type fieldPayload struct {
	answer    any
	reasoning string
	grounding []string
}

// resolvePayload sniffs the shape of a raw field value and normalizes it.
func resolvePayload(raw any) fieldPayload {
	obj, ok := raw.(map[string]any)
	if !ok {
		return fieldPayload{answer: raw}
	}

	answer, hasAnswer := obj["answer"]
	if !hasAnswer {
		var hasValue bool
		answer, hasValue = obj["value"]
		if !hasValue {
			// Object without an answer/value key is itself the answer.
			return fieldPayload{answer: raw}
		}
	}

	p := fieldPayload{answer: answer}
	if r, ok := obj["reasoning"].(string); ok {
		p.reasoning = r
	}
	switch g := obj["grounding"].(type) {
	case string:
		p.grounding = []string{g}
	case []any:
		for _, item := range g {
			if s, ok := item.(string); ok {
				p.grounding = append(p.grounding, s)
			}
		}
	}
	return p
}
