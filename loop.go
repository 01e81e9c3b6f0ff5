package nova

import (
	"context"
	"encoding/json"
	"errors"
)

// standardMaxSteps caps the direct tool-augmented loop.
const standardMaxSteps = 5

// runStandard is the direct / ReAct execution strategy. Without a tool
// catalog it is plain chat: exactly one generation step. With a catalog it
// alternates generation and tool invocation until the model stops emitting
// actions or the step cap is reached.
func (r *run) runStandard(ctx context.Context) error {
	agentMode := len(r.req.Tools) > 0
	debugAttempts := 0

	for step := 1; step <= standardMaxSteps; step++ {
		prompt := r.eng.assembler.Assemble(ctx, r.transcript, r.req.Tools)
		if r.req.ResponseFormat == "json_object" {
			prompt = jsonModeInstruction + prompt
		}
		if agentMode {
			prompt += agentInstructions
		}

		// Sampling is rebuilt from the original request every step; preset
		// application is idempotent so this cannot drift.
		cfg := r.base.Applied()

		// A cache hit here replays a complete answer, so the replay chunk
		// is marked terminal the way the final generated chunk would be.
		text, err := r.generate(ctx, prompt, cfg, &finishStop)
		if err != nil {
			return r.fatal(ctx, err)
		}

		if !agentMode {
			return nil
		}

		action, ok := detectToolAction(text)
		if !ok {
			// Final answer or plain text: the loop is done.
			return nil
		}

		payload, err := r.invokeAction(ctx, action.Action, action.Input)
		if err != nil {
			return err
		}

		if r.req.VerifyCode != "" && r.eng.evaluator != nil && codeProducingAction(action.Action) &&
			debugAttempts < cfg.MaxDebugAttempts {
			debugAttempts++
			payload, err = r.selfCorrect(ctx, action, payload)
			if err != nil {
				return err
			}
		}

		r.append(AssistantMessage(text), toolOutputMessage(payload))
	}
	return nil
}

// codeProducingAction reports whether a tool action defines or writes code
// that the verification cycle can exercise.
func codeProducingAction(name string) bool {
	return name == "python_exec" || name == "write_file"
}

// selfCorrect runs the produced code against the request's verification code
// and folds the verdict into the tool payload so the next generation step
// sees it. Outcomes are recorded as episodic memory either way.
func (r *run) selfCorrect(ctx context.Context, action toolAction, payload map[string]any) (map[string]any, error) {
	// For python_exec the code travels in the input; for write_file it is
	// already on disk and the verification code is expected to import it.
	code, _ := action.Input["code"].(string)

	verdict := r.eng.evaluator.Evaluate(ctx, code, r.req.VerifyCode)

	outcome := outcomePass
	feedback := ""
	notice := "\n\n[System: Tests Passed!]\n\n"
	wrapped := map[string]any{"tool_output": payload, "evaluator_feedback": "TEST PASSED."}
	if !verdict.Passed {
		outcome = outcomeFail
		feedback = "\nSYSTEM EVALUATION:\nTEST FAILED.\nFEEDBACK: " + verdict.Feedback +
			"\n\nYou must fix the code. Analyze the error and try again."
		notice = "\n\n[System: Tests Failed. Auto-Correcting...]\n\n"
		wrapped = map[string]any{"tool_output": payload, "evaluator_feedback": feedback}
	}
	if err := r.emitContent(ctx, notice, nil); err != nil {
		return nil, err
	}

	// The episodic record is keyed by the original user task, not the local
	// transcript tail, which by now ends in tool output.
	task := lastUserContent(r.req.Messages)
	inputJSON, _ := json.Marshal(action.Input)
	solution := "Action: " + action.Action + "\nInput: " + string(inputJSON)
	rememberEpisode(ctx, r.eng.memory, r.eng.logger, task, solution, outcome, feedback)

	return wrapped, nil
}

// fatal classifies a generation failure and surfaces it. Safety and
// inference failures become error chunks; a cancelled context means the
// consumer went away and there is nobody to notify.
func (r *run) fatal(ctx context.Context, err error) error {
	var safety *SafetyError
	var inference *InferenceError
	switch {
	case errors.As(err, &safety):
		r.eng.logger.Warn("request blocked", "id", r.id, "reason", safety.Reason)
		r.emitError(ctx, safety.Error())
	case errors.As(err, &inference):
		r.eng.logger.Error("inference failed", "id", r.id, "error", inference.Err)
		r.emitError(ctx, inference.Error())
	}
	return err
}
