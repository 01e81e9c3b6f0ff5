package nova

import "context"

// HandleChat is the engine's entry point: it validates the request, selects
// an execution strategy from the sampling preset, and runs it to completion,
// streaming chunks into ch. The channel is closed when the request finishes;
// closing it is the end-of-stream marker for the transport layer.
//
// Strategy selection: preset "autonomous" runs the five-role autonomous
// state machine, preset "research" runs the five-phase research state
// machine, and everything else runs the standard tool-augmented loop.
func (e *Engine) HandleChat(ctx context.Context, req Request, ch chan<- StreamChunk) error {
	r := e.newRun(&req, ch)
	defer close(ch)

	var span Span
	if e.tracer != nil {
		ctx, span = e.tracer.Start(ctx, "engine.request",
			StringAttr("request.id", r.id),
			StringAttr("preset", string(r.base.Preset)))
		defer span.End()
	}

	cfg := r.base.Applied()
	if err := cfg.Validate(); err != nil {
		e.logger.Warn("rejecting request", "id", r.id, "error", err)
		r.emitError(ctx, err.Error())
		if span != nil {
			span.Error(err)
		}
		return err
	}

	var err error
	switch r.base.Preset {
	case PresetAutonomous:
		err = r.runAutonomous(ctx)
	case PresetResearch:
		err = r.runResearch(ctx)
	default:
		err = r.runStandard(ctx)
	}
	if err == nil && !r.finished {
		// Terminal chunk; the empty delta with finish_reason "stop" tells
		// the consumer no further content is coming. A cached replay that
		// already carried the finish_reason needs no extra chunk.
		err = r.emitContent(ctx, "", &finishStop)
	}
	if err != nil && span != nil {
		span.Error(err)
	}
	e.logger.Info("request finished", "id", r.id, "model", r.model, "generations", r.gens, "error", err)
	return err
}
