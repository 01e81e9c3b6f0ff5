package nova

import (
	"context"
	"errors"
	"strings"
)

// autonomousMaxSteps caps the five-role state machine. Parse failures
// re-enter the same state and consume a step, so persistent malformed output
// exhausts the budget rather than spinning.
const autonomousMaxSteps = 20

// autoState is the closed state set of the autonomous machine.
type autoState int

const (
	statePlanner autoState = iota
	stateArchitect
	stateEngineer
	stateEvaluator
	stateCritic
	stateAutoDone
)

func (s autoState) role() Role {
	switch s {
	case statePlanner:
		return RolePlanner
	case stateArchitect:
		return RoleArchitect
	case stateEngineer:
		return RoleEngineer
	case stateEvaluator:
		return RoleEvaluator
	default:
		return RoleCritic
	}
}

// Named system messages survive role switches. Unnamed system messages are
// instruction-style (the caller's system prompt) and get dropped from role
// prompts, since only one role instruction may be active at a time.
const (
	toolMessageName = "tool"
	noteMessageName = "note"
)

// noteMessage records machine feedback (parse corrections, evaluation
// issues, critic verdicts) in the transcript.
func noteMessage(content string) Message {
	m := SystemMessage(content)
	m.Name = noteMessageName
	return m
}

// rolePrompt builds the prompt for one state machine step: the role's fixed
// instructions as the leading system message, followed by the transcript
// with prior instruction-style system messages stripped.
func (r *run) rolePrompt(ctx context.Context, role Role) string {
	msgs := make([]Message, 0, len(r.transcript)+1)
	msgs = append(msgs, SystemMessage(role.Instructions()))
	for _, m := range r.transcript {
		if m.Role == "system" && m.Name == "" {
			continue
		}
		msgs = append(msgs, m)
	}
	return r.eng.assembler.Assemble(ctx, msgs, r.req.Tools)
}

// roleStep runs one generation+parse cycle for a role. The raw output is
// always appended to the transcript; on parse failure the corrective
// feedback is appended as well and the caller re-enters the same state.
func (r *run) roleStep(ctx context.Context, role Role, cfg SamplingConfig) (RoleOutput, error) {
	prompt := r.rolePrompt(ctx, role)

	text, err := r.generate(ctx, prompt, cfg, nil)
	if err != nil {
		return nil, err
	}
	r.append(AssistantMessage(text))

	out, err := ParseRoleOutput(text, role)
	if err != nil {
		var perr *ParseError
		if errors.As(err, &perr) {
			r.eng.logger.Warn("role output rejected", "id", r.id, "role", role.String(), "kind", perr.Kind.String())
			r.append(noteMessage(perr.Feedback()))
			return nil, nil // recoverable: same state, next step
		}
		return nil, err
	}
	return out, nil
}

// runAutonomous drives PLANNER → ARCHITECT → ENGINEER → EVALUATOR → CRITIC.
// Every generated fragment streams to the caller regardless of state, so the
// full reasoning trace is observable live.
func (r *run) runAutonomous(ctx context.Context) error {
	task := lastUserContent(r.req.Messages)
	state := statePlanner

	for step := 1; step <= autonomousMaxSteps && state != stateAutoDone; step++ {
		cfg := r.base
		cfg.Preset = PresetAutonomous
		cfg = cfg.Applied()

		out, err := r.roleStep(ctx, state.role(), cfg)
		if err != nil {
			return r.fatal(ctx, err)
		}
		if out == nil {
			continue // parse failure, retry the same state
		}

		switch o := out.(type) {
		case PlannerOutput:
			state = stateArchitect

		case ArchitectOutput:
			state = stateEngineer

		case EngineerOutput:
			switch {
			case o.Action == actionFinalAnswer:
				state = stateEvaluator
			case o.Action != "":
				payload, err := r.invokeAction(ctx, o.Action, o.Input)
				if err != nil {
					return err
				}
				r.append(toolOutputMessage(payload))
			default:
				r.append(noteMessage("No action provided. Name a tool to call, or set action to 'final_answer'."))
			}

		case EvaluatorOutput:
			switch {
			case o.Action != "":
				payload, err := r.invokeAction(ctx, o.Action, o.Input)
				if err != nil {
					return err
				}
				r.append(toolOutputMessage(payload))
			case o.Status == "pass":
				state = stateCritic
			default:
				r.append(noteMessage("Evaluation found issues:\n- " + strings.Join(o.Issues, "\n- ")))
				state = stateEngineer
			}

		case CriticOutput:
			if o.Approved {
				rememberEpisode(ctx, r.eng.memory, r.eng.logger, task, o.Critique, outcomeSuccess, "")
				state = stateAutoDone
			} else {
				r.append(noteMessage("Critic rejected the solution: " + o.Feedback))
				state = stateEngineer
			}
		}
	}

	if state != stateAutoDone {
		r.eng.logger.Warn("autonomous run hit step cap", "id", r.id, "state", state.role().String())
	}
	return nil
}
