package nova

import (
	"context"
	"strings"
)

// researchMaxSteps caps the hypothesis loop. The ANALYSIS back-edge to
// HYPOTHESIS can repeat, so a stubborn hypothesis burns through the budget
// instead of looping forever.
const researchMaxSteps = 15

type researchState int

const (
	stateProblem researchState = iota
	stateHypothesis
	stateDesign
	stateExecution
	stateAnalysis
	stateResearchDone
)

func (s researchState) role() Role {
	switch s {
	case stateProblem:
		return RoleProblem
	case stateHypothesis:
		return RoleHypothesis
	case stateDesign:
		return RoleDesign
	case stateExecution:
		return RoleExecution
	default:
		return RoleAnalysis
	}
}

// runResearch drives PROBLEM → HYPOTHESIS → DESIGN → EXECUTION → ANALYSIS,
// with ANALYSIS either concluding the run or sending it back to HYPOTHESIS
// for refinement. A supported-or-refuted conclusion is written to semantic
// memory so later runs can retrieve it.
func (r *run) runResearch(ctx context.Context) error {
	state := stateProblem
	hypothesis := ""

	for step := 1; step <= researchMaxSteps && state != stateResearchDone; step++ {
		cfg := r.base
		cfg.Preset = PresetResearch
		cfg = cfg.Applied()

		out, err := r.roleStep(ctx, state.role(), cfg)
		if err != nil {
			return r.fatal(ctx, err)
		}
		if out == nil {
			continue // parse failure, retry the same state
		}

		switch o := out.(type) {
		case ProblemOutput:
			// Keywords are recorded for the researcher, not dispatched to a
			// search backend.
			r.eng.logger.Info("problem framed", "id", r.id,
				"keywords", strings.Join(o.LiteratureKeywords, ","))
			state = stateHypothesis

		case HypothesisOutput:
			hypothesis = o.HypothesisStatement
			state = stateDesign

		case DesignOutput:
			state = stateExecution

		case ExecutionOutput:
			if o.Action != "" && o.Action != actionFinalAnswer {
				payload, err := r.invokeAction(ctx, o.Action, o.Input)
				if err != nil {
					return err
				}
				r.append(toolOutputMessage(payload))
			}
			state = stateAnalysis

		case AnalysisOutput:
			if o.NextStep == "done" {
				rememberConclusion(ctx, r.eng.memory, r.eng.logger,
					hypothesis, o.Observation, o.Conclusion, o.Supported)
				state = stateResearchDone
			} else {
				r.append(noteMessage("Refine the hypothesis using this observation: " + o.Observation))
				state = stateHypothesis
			}
		}
	}

	if state != stateResearchDone {
		r.eng.logger.Warn("research run hit step cap", "id", r.id, "state", state.role().String())
	}
	return nil
}
