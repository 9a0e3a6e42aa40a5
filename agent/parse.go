package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// finalAction is the action marker the model uses to deliver its answer.
const finalAction = "final"

// action is the structured response contract the model is asked to follow:
// a thought, the chosen action (a tool name or the final marker), the action
// input, and the answer when the action is final.
type action struct {
	Thought string `json:"thought"`
	Action  string `json:"action"`
	Input   any    `json:"input,omitempty"`
	Answer  string `json:"answer,omitempty"`
}

// inputText renders the action input as the text payload handed to a tool.
func (a action) inputText() string {
	switch v := a.Input.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(raw)
	}
}

// parseAction decodes a model response against the action contract. The
// second return is false when the text is not a contract object, in which
// case the caller treats the whole raw response as the final answer. This is
// the fail-open branch: non-compliant output still yields a usable result.
func parseAction(text string) (action, bool) {
	trimmed := strings.TrimSpace(text)
	trimmed = stripCodeFence(trimmed)

	if act, ok := decodeContract(trimmed); ok {
		return act, true
	}

	repaired, err := jsonrepair.JSONRepair(trimmed)
	if err != nil {
		return action{}, false
	}
	return decodeContract(repaired)
}

// decodeContract accepts only a top-level JSON object carrying an action or
// an answer. A repaired bare string or list is not a contract response.
func decodeContract(text string) (action, bool) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &probe); err != nil {
		return action{}, false
	}
	var act action
	if err := json.Unmarshal([]byte(text), &act); err != nil {
		return action{}, false
	}
	if act.Action == "" && act.Answer == "" {
		return action{}, false
	}
	if act.Action == "" {
		act.Action = finalAction
	}
	return act, true
}

// stripCodeFence unwraps a ```json ... ``` block if the response is fenced.
func stripCodeFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	rest := strings.TrimPrefix(text, "```")
	if idx := strings.Index(rest, "\n"); idx >= 0 {
		rest = rest[idx+1:]
	}
	if idx := strings.LastIndex(rest, "```"); idx >= 0 {
		rest = rest[:idx]
	}
	return strings.TrimSpace(rest)
}
