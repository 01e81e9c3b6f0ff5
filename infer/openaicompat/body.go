package openaicompat

import nova "github.com/novalabs/nova"

// buildBody maps a nova sampling configuration onto the wire body. A TopK of
// -1 means "disabled" on the engine side and is simply omitted; zero values
// for the penalties are omitted by their struct tags.
func buildBody(model, prompt string, cfg nova.SamplingConfig, opts ...Option) completionRequest {
	body := completionRequest{
		Model:            model,
		Prompt:           prompt,
		Temperature:      cfg.Temperature,
		TopP:             cfg.TopP,
		MaxTokens:        cfg.MaxTokens,
		PresencePenalty:  cfg.PresencePenalty,
		FrequencyPenalty: cfg.FrequencyPenalty,
		Stop:             cfg.Stop,
		IgnoreEOS:        cfg.IgnoreEOS,
	}
	if cfg.TopK > 0 {
		body.TopK = cfg.TopK
	}
	for _, opt := range opts {
		opt(&body)
	}
	return body
}

// Option configures one completions request. Client-level options are
// applied to every request the client sends.
type Option func(*completionRequest)

// WithSeed sets a deterministic seed for reproducible outputs.
func WithSeed(s int) Option {
	return func(r *completionRequest) { r.Seed = &s }
}

// WithStop appends extra stop sequences to the request.
func WithStop(s ...string) Option {
	return func(r *completionRequest) { r.Stop = append(r.Stop, s...) }
}
