package graph

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/hupe1980/missionmesh/core"
)

// bindingPattern matches {{results.<task>.<field>}} and
// {{inputs.<task>.<field>}} tokens inside task input strings.
var bindingPattern = regexp.MustCompile(`\{\{\s*(results|inputs)\.([\w.-]+?)\.([\w-]+)\s*\}\}`)

// Binding is one parsed input-binding token.
type Binding struct {
	Source string // "results" or "inputs"
	TaskID string
	Field  string
	Token  string
}

// ExtractBindings walks an input value (string, map or list, arbitrarily
// nested) and collects every binding token it contains.
func ExtractBindings(input any) []Binding {
	var out []Binding
	walkInput(input, func(s string) (string, error) {
		for _, m := range bindingPattern.FindAllStringSubmatch(s, -1) {
			out = append(out, Binding{Source: m[1], TaskID: m[2], Field: m[3], Token: m[0]})
		}
		return s, nil
	})
	return out
}

// ResolveInput substitutes every binding token in the task's input with the
// recorded output of the referenced dependency. A token referencing a field
// that does not exist fails with BindingResolutionError.
func ResolveInput(
	taskID string,
	input any,
	results map[string]core.TaskResult,
	inputs map[string]map[string]any,
) (any, error) {
	return walkInput(input, func(s string) (string, error) {
		var resolveErr error
		resolved := bindingPattern.ReplaceAllStringFunc(s, func(token string) string {
			if resolveErr != nil {
				return token
			}
			m := bindingPattern.FindStringSubmatch(token)
			value, err := lookupBinding(taskID, Binding{Source: m[1], TaskID: m[2], Field: m[3], Token: token}, results, inputs)
			if err != nil {
				resolveErr = err
				return token
			}
			return value
		})
		return resolved, resolveErr
	})
}

func lookupBinding(
	taskID string,
	b Binding,
	results map[string]core.TaskResult,
	inputs map[string]map[string]any,
) (string, error) {
	switch b.Source {
	case "results":
		res, ok := results[b.TaskID]
		if !ok {
			return "", &BindingResolutionError{TaskID: taskID, Token: b.Token, Reason: fmt.Sprintf("no recorded result for task %q", b.TaskID)}
		}
		switch b.Field {
		case "output":
			return res.Output, nil
		case "duration":
			return strconv.FormatFloat(res.Duration, 'f', -1, 64), nil
		case "status":
			return string(res.Status), nil
		default:
			return "", &BindingResolutionError{TaskID: taskID, Token: b.Token, Reason: fmt.Sprintf("result of task %q has no field %q", b.TaskID, b.Field)}
		}
	case "inputs":
		fields, ok := inputs[b.TaskID]
		if !ok {
			return "", &BindingResolutionError{TaskID: taskID, Token: b.Token, Reason: fmt.Sprintf("no submitted input for task %q", b.TaskID)}
		}
		value, ok := fields[b.Field]
		if !ok {
			return "", &BindingResolutionError{TaskID: taskID, Token: b.Token, Reason: fmt.Sprintf("input of task %q has no field %q", b.TaskID, b.Field)}
		}
		return fmt.Sprintf("%v", value), nil
	default:
		return "", &BindingResolutionError{TaskID: taskID, Token: b.Token, Reason: "unknown binding source"}
	}
}

// walkInput applies fn to every string reachable through nested maps and
// lists, rebuilding the structure. The first error aborts the walk.
func walkInput(input any, fn func(string) (string, error)) (any, error) {
	switch v := input.(type) {
	case nil:
		return nil, nil
	case string:
		return fn(v)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			resolved, err := walkInput(item, fn)
			if err != nil {
				return nil, err
			}
			out[k] = resolved
		}
		return out, nil
	case []any:
		out := make([]any, 0, len(v))
		for _, item := range v {
			resolved, err := walkInput(item, fn)
			if err != nil {
				return nil, err
			}
			out = append(out, resolved)
		}
		return out, nil
	default:
		return v, nil
	}
}
