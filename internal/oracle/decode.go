package oracle

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// decisionSchema only requires the action; parameter types are coerced
// after validation.
const decisionSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["action"],
  "properties": {
    "action": {"type": "string", "minLength": 1},
    "parameters": {
      "type": ["object", "null"],
      "properties": {
        "angle": {"type": ["number", "string", "null"]},
        "distance": {"type": ["number", "string", "null"]},
        "duration": {"type": ["number", "string", "null"]},
        "targetId": {"type": ["string", "number", "null"]},
        "message": {"type": ["string", "null"]}
      }
    },
    "thought": {}
  }
}`

const interactionSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["reaction"],
  "properties": {"reaction": {"type": "string"}}
}`

var (
	decisionValidator    = jsonschema.MustCompileString("mem://decision.schema.json", decisionSchema)
	interactionValidator = jsonschema.MustCompileString("mem://interaction.schema.json", interactionSchema)
)

// ExtractJSON returns the outermost JSON object embedded in LLM output,
// tolerating code fences and surrounding prose.
func ExtractJSON(raw string) (string, bool) {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start < 0 || end <= start {
		return "", false
	}
	return raw[start : end+1], true
}

// ParseDecision decodes raw oracle output into a Decision. Partial output is
// accepted: missing or ill-typed parameters are dropped rather than failing
// the whole decision. Only a missing action is an error.
func ParseDecision(raw []byte) (Decision, error) {
	body, ok := ExtractJSON(string(raw))
	if !ok {
		return Decision{}, fmt.Errorf("%w: no JSON object", ErrMalformed)
	}
	var v any
	if err := json.Unmarshal([]byte(body), &v); err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if m, ok := v.(map[string]any); ok {
		if inner, ok := m["decision"].(map[string]any); ok {
			v = inner
		}
	}
	if err := decisionValidator.Validate(v); err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return DecisionFromMap(v.(map[string]any)), nil
}

// maxDurationMs bounds decoded durations so the int conversion cannot
// overflow; the resolver clamps further.
const maxDurationMs = 1e9

// DecisionFromMap coerces a decoded JSON object into a Decision.
func DecisionFromMap(m map[string]any) Decision {
	d := Decision{
		Action:  Action(strings.ToLower(strings.TrimSpace(str(m["action"])))),
		Thought: strings.TrimSpace(str(m["thought"])),
	}
	p, _ := m["parameters"].(map[string]any)
	if p == nil {
		return d
	}
	if f, ok := number(p["angle"]); ok {
		d.Parameters.Angle = &f
	}
	if f, ok := number(p["distance"]); ok {
		d.Parameters.Distance = &f
	}
	if f, ok := number(p["duration"]); ok {
		n := int(math.Round(math.Max(-maxDurationMs, math.Min(f, maxDurationMs))))
		d.Parameters.Duration = &n
	}
	d.Parameters.TargetID = strings.TrimSpace(str(p["targetId"]))
	d.Parameters.Message = strings.TrimSpace(str(p["message"]))
	return d
}

// ParseInteraction decodes {reaction} output; plain text is accepted as the
// reaction itself.
func ParseInteraction(raw []byte) (InteractionResult, error) {
	text := strings.TrimSpace(string(raw))
	if body, ok := ExtractJSON(text); ok {
		var v any
		if err := json.Unmarshal([]byte(body), &v); err == nil && interactionValidator.Validate(v) == nil {
			text = strings.TrimSpace(v.(map[string]any)["reaction"].(string))
		}
	}
	if text == "" {
		return InteractionResult{}, ErrEmptyReaction
	}
	return InteractionResult{Reaction: text}, nil
}

func str(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}

func number(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, !math.IsNaN(t) && !math.IsInf(t, 0)
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil && !math.IsNaN(f) && !math.IsInf(f, 0)
	}
	return 0, false
}
