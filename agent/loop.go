package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/missionmesh/core"
	"github.com/hupe1980/missionmesh/internal/util"
	"github.com/hupe1980/missionmesh/logging"
	"github.com/hupe1980/missionmesh/model"
)

// EmitFunc receives loop progress events (thinking status, console text).
// A nil EmitFunc disables progress reporting.
type EmitFunc func(core.Event)

const observationLimit = 8 * 1024

// Execute resolves one task to a final answer. The loop alternates model
// calls and tool invocations until the model delivers a final answer, the
// response fails the contract (fail-open: the raw text becomes the answer),
// or the iteration budget runs out (a synthetic answer is produced). It
// returns an error only for faults that must end the run: context
// cancellation and provider transport failures.
func (a *Agent) Execute(ctx context.Context, task core.TaskSpec, input string, emit EmitFunc) (string, error) {
	if emit == nil {
		emit = func(core.Event) {}
	}
	logger := a.logger.WithContext("task_id", task.ID)

	emit(core.NewStatusEvent(task.ID, core.TaskThinking))

	messages := []model.Message{{Role: "user", Content: taskPrompt(task, input)}}
	reflected := false

	for iteration := 1; iteration <= a.planning.MaxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		text, err := a.generate(ctx, messages, iteration)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				// A timed-out model call is an observation, not a run fault.
				messages = append(messages, model.Message{
					Role:    "user",
					Content: "Observation: the previous model call timed out. Answer with what you have or try a different approach.",
				})
				emit(core.NewConsoleEvent(task.ID, "model call timed out, retrying"))
				continue
			}
			return "", err
		}

		act, structured := parseAction(text)
		if !structured {
			// Fail-open: a response outside the contract is the final answer.
			logger.Debug("response outside contract, using raw text as answer")
			return strings.TrimSpace(text), nil
		}

		if act.Thought != "" {
			emit(core.NewConsoleEvent(task.ID, act.Thought))
		}

		if act.Action == finalAction {
			answer := act.Answer
			if answer == "" {
				answer = act.inputText()
			}
			if a.planning.Reflection && !reflected {
				reflected = true
				messages = append(messages,
					model.Message{Role: "assistant", Content: text},
					model.Message{Role: "user", Content: reflectionPrompt(answer)},
				)
				continue
			}
			return answer, nil
		}

		observation := a.act(ctx, task, act, emit, logger)
		messages = append(messages,
			model.Message{Role: "assistant", Content: text},
			model.Message{Role: "user", Content: "Observation: " + util.Truncate(observation, observationLimit)},
		)
	}

	logger.Warn("iteration budget exhausted after %d cycles", a.planning.MaxIterations)
	return a.exhaustedAnswer(messages), nil
}

// generate performs one bounded model call.
func (a *Agent) generate(ctx context.Context, messages []model.Message, iteration int) (string, error) {
	callCtx := ctx
	if a.modelTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, a.modelTimeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := a.mdl.Generate(callCtx, model.Request{
		Instructions: a.instructions(),
		Messages:     messages,
	})
	a.logger.LogModelCall(a.mdl.Info().Name, iteration, time.Since(start), err)
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// act dispatches one tool action and renders the observation text. Failures,
// including unknown tools, become observations so the loop can correct
// itself on the next cycle.
func (a *Agent) act(ctx context.Context, task core.TaskSpec, act action, emit EmitFunc, logger *logging.MissionLogger) string {
	t, ok := a.tools[act.Action]
	if !ok {
		err := &UnknownToolError{Agent: a.name, Tool: act.Action}
		logger.Warn("%s", err.Error())
		emit(core.NewConsoleEvent(task.ID, err.Error()))
		return fmt.Sprintf("%s. Available tools: %s", err.Error(), strings.Join(a.toolOrder, ", "))
	}

	output, err := t.Invoke(ctx, act.inputText())
	if err != nil {
		logger.Warn("tool %s failed: %s", act.Action, err.Error())
		emit(core.NewConsoleEvent(task.ID, fmt.Sprintf("tool %s failed: %s", act.Action, err)))
		return fmt.Sprintf("tool %s failed: %s", act.Action, err)
	}

	emit(core.NewConsoleEvent(task.ID, fmt.Sprintf("tool %s returned %d bytes", act.Action, len(output))))
	return output
}

// exhaustedAnswer synthesizes a final answer when the budget runs out,
// favoring the last assistant thought over an empty result.
func (a *Agent) exhaustedAnswer(messages []model.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role != "assistant" {
			continue
		}
		if act, ok := parseAction(messages[i].Content); ok && act.Thought != "" {
			return fmt.Sprintf("Reached the reasoning limit of %d iterations. Last thought: %s", a.planning.MaxIterations, act.Thought)
		}
	}
	return fmt.Sprintf("Reached the reasoning limit of %d iterations without a final answer.", a.planning.MaxIterations)
}
