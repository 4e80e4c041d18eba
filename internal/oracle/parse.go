package oracle

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/eddiefleurent/options_advisor/internal/models"
)

const codeFence = "```"

// ParseDecision extracts a decision from model output. The reply must hold
// a JSON object with a recognizable action ("recommendation" or "action")
// and a non-empty explanation ("explanation" or "reason"). Anything else
// yields false.
func ParseDecision(raw string) (Decision, bool) {
	block, ok := extractObject(raw)
	if !ok || !gjson.Valid(block) {
		return Decision{}, false
	}
	parsed := gjson.Parse(block)
	if !parsed.IsObject() {
		return Decision{}, false
	}

	actionField := parsed.Get("recommendation")
	if !actionField.Exists() {
		actionField = parsed.Get("action")
	}
	if actionField.Type != gjson.String {
		return Decision{}, false
	}
	action, ok := models.ParseAction(actionField.String())
	if !ok {
		return Decision{}, false
	}

	explanation := parsed.Get("explanation")
	if !explanation.Exists() {
		explanation = parsed.Get("reason")
	}
	text := strings.TrimSpace(explanation.String())
	if explanation.Type != gjson.String || text == "" {
		return Decision{}, false
	}

	return Decision{Action: action, Explanation: text}, true
}

// extractObject returns the first balanced JSON object in raw, looking
// inside a code fence first.
func extractObject(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	if start := strings.Index(raw, codeFence); start != -1 {
		rest := raw[start+len(codeFence):]
		if end := strings.Index(rest, codeFence); end != -1 {
			if obj, ok := balancedObject(rest[:end]); ok {
				return obj, true
			}
		}
	}
	return balancedObject(raw)
}

func balancedObject(s string) (string, bool) {
	start := strings.Index(s, "{")
	if start == -1 {
		return "", false
	}
	depth := 0
	inString := false
	escape := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escape:
				escape = false
			case ch == '\\':
				escape = true
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
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
