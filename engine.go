package nova

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// InferenceEngine is the text-generation backend collaborator.
type InferenceEngine interface {
	// Generate starts a generation and streams text deltas into ch, closing
	// ch when the generation completes. It returns a validation error for
	// out-of-range sampling fields and a runtime error when the backend is
	// unavailable; either way ch is closed before Generate returns.
	Generate(ctx context.Context, prompt string, cfg SamplingConfig, requestID string, ch chan<- string) error

	// Abort signals the backend to stop the in-flight generation identified
	// by requestID rather than letting it run to completion unobserved.
	Abort(requestID string)
}

// Engine orchestrates multi-step, tool-using conversations over an
// InferenceEngine. Construct one per process with New and share it across
// requests; each request runs as an independent flow with no shared mutable
// state beyond the cache and memory store.
type Engine struct {
	backend       InferenceEngine
	model         string
	contextWindow int

	cache     *failOpenCache
	cacheTTL  time.Duration
	memory    MemoryStore
	tools     *ToolRegistry
	invoker   *Invoker
	safety    *SafetyFilter
	assembler *PromptAssembler
	evaluator *Evaluator

	tracer Tracer
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithModel sets the serving model identity and context window size. Both
// are folded into every cache key: cached text is invalid if either changes.
func WithModel(model string, contextWindow int) Option {
	return func(e *Engine) {
		e.model = model
		e.contextWindow = contextWindow
	}
}

// WithCache sets the response cache backend. Absent a cache, every
// generation is a miss.
func WithCache(c Cache) Option {
	return func(e *Engine) { e.cache = &failOpenCache{inner: c} }
}

// WithCacheTTL overrides the default entry lifetime.
func WithCacheTTL(ttl time.Duration) Option {
	return func(e *Engine) { e.cacheTTL = ttl }
}

// WithMemory sets the memory store used for retrieval-augmented prompts and
// episodic/semantic persistence.
func WithMemory(m MemoryStore) Option {
	return func(e *Engine) { e.memory = m }
}

// WithTools registers tools available to the execution loops.
func WithTools(tools ...Tool) Option {
	return func(e *Engine) {
		for _, t := range tools {
			e.tools.Add(t)
		}
	}
}

// WithSafetyFilter replaces the default safety filter.
func WithSafetyFilter(f *SafetyFilter) Option {
	return func(e *Engine) { e.safety = f }
}

// WithCodeRunner enables the self-correction cycle and evaluator-requested
// code execution.
func WithCodeRunner(r CodeRunner) Option {
	return func(e *Engine) { e.evaluator = NewEvaluator(r) }
}

// WithVerifyTimeout bounds each self-correction execution. A timeout is a
// test failure, not a system error.
func WithVerifyTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if e.evaluator != nil {
			e.evaluator.timeout = d
		}
	}
}

// WithTracer enables span-based tracing.
func WithTracer(t Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an Engine over the given backend. Order matters for options
// that depend on each other: WithVerifyTimeout must follow WithCodeRunner.
func New(backend InferenceEngine, opts ...Option) *Engine {
	e := &Engine{
		backend:       backend,
		model:         "nova-v1",
		contextWindow: 2048,
		cacheTTL:      DefaultCacheTTL,
		tools:         NewToolRegistry(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = nopLogger
	}
	if e.safety == nil {
		e.safety = NewSafetyFilter(SafetyLogger(e.logger))
	}
	if e.cache == nil {
		e.cache = &failOpenCache{}
	}
	e.cache.logger = e.logger
	e.invoker = NewInvoker(e.tools, e.logger)
	e.assembler = NewPromptAssembler(e.memory, e.logger)
	return e
}

// --- per-request run state ---

// run carries the state of one in-flight request. It is owned by a single
// goroutine; nothing here is shared across requests.
type run struct {
	eng        *Engine
	req        *Request
	id         string
	created    int64
	model      string
	base       SamplingConfig // original request config, pre-preset
	transcript []Message
	ch         chan<- StreamChunk
	gens       int  // generation attempts, for step-scoped request IDs
	finished   bool // last emitted chunk carried a finish_reason
}

func (e *Engine) newRun(req *Request, ch chan<- StreamChunk) *run {
	model := req.Model
	if model == "" {
		model = e.model
	}
	transcript := make([]Message, len(req.Messages))
	copy(transcript, req.Messages)
	return &run{
		eng:        e,
		req:        req,
		id:         newRequestID(),
		created:    nowUnix(),
		model:      model,
		base:       req.sampling(),
		transcript: transcript,
		ch:         ch,
	}
}

// emit sends one chunk, honoring cancellation. A stopped consumer surfaces
// as ctx.Err, which callers treat as a request abort.
func (r *run) emit(ctx context.Context, chunk StreamChunk) error {
	select {
	case r.ch <- chunk:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *run) emitContent(ctx context.Context, content string, finish *string) error {
	if err := r.emit(ctx, contentChunk(r.id, r.created, r.model, content, finish)); err != nil {
		return err
	}
	r.finished = finish != nil
	return nil
}

// emitError surfaces a fatal failure as an error chunk. Best effort: when
// the consumer is already gone there is nobody left to tell.
func (r *run) emitError(ctx context.Context, message string) {
	select {
	case r.ch <- errorChunk(r.id, r.created, r.model, message):
	case <-ctx.Done():
	}
}

// generate runs one generation step: input safety check, cache lookup,
// streaming generation with per-fragment output sanitization, and cache
// fill. Returns the accumulated (sanitized) text. hitFinish is the
// finish_reason attached to a cache-hit replay chunk: the standard loop
// marks the hit terminal, the state machines keep streaming past it.
// Fatal failures are *SafetyError or *InferenceError; a ctx error means
// the consumer stopped consuming and the backend generation was aborted.
func (r *run) generate(ctx context.Context, prompt string, cfg SamplingConfig, hitFinish *string) (string, error) {
	e := r.eng
	r.gens++
	stepID := stepRequestID(r.id, r.gens)

	var span Span
	if e.tracer != nil {
		ctx, span = e.tracer.Start(ctx, "engine.generate",
			StringAttr("request.id", stepID),
			IntAttr("sampling.max_tokens", cfg.MaxTokens))
		defer span.End()
	}

	if err := e.safety.CheckInput(prompt); err != nil {
		if span != nil {
			span.Error(err)
		}
		return "", err
	}

	key := CacheKey(e.model, e.contextWindow, prompt, cfg)
	if cached, ok, _ := e.cache.Get(ctx, key); ok {
		if span != nil {
			span.Event("cache.hit")
		}
		if err := r.emitContent(ctx, cached, hitFinish); err != nil {
			return "", err
		}
		return cached, nil
	}

	genCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	deltas := make(chan string)
	errc := make(chan error, 1)
	go func() {
		errc <- e.backend.Generate(genCtx, prompt, cfg, stepID, deltas)
	}()

	var b strings.Builder
	for delta := range deltas {
		clean := e.safety.Sanitize(delta)
		b.WriteString(clean)
		if err := r.emitContent(ctx, clean, nil); err != nil {
			// Consumer stopped consuming: abort the in-flight backend
			// generation instead of letting it run to completion unobserved.
			e.backend.Abort(stepID)
			cancel()
			for range deltas {
			}
			<-errc
			return "", err
		}
	}
	if err := <-errc; err != nil {
		if span != nil {
			span.Error(err)
		}
		return "", &InferenceError{RequestID: stepID, Err: err}
	}

	text := b.String()
	if text != "" {
		_ = e.cache.Set(ctx, key, text, e.cacheTTL)
	}
	return text, nil
}

// append adds messages to the transcript. Mutations happen strictly after
// the generation step that produced them and before the next step reads.
func (r *run) append(msgs ...Message) {
	r.transcript = append(r.transcript, msgs...)
}

// invokeAction executes a tool action and folds the result into the
// transcript, announcing the execution to the caller as a content chunk.
func (r *run) invokeAction(ctx context.Context, action string, input map[string]any) (map[string]any, error) {
	if err := r.emitContent(ctx, "\n\n[System: Executing "+action+"...]\n\n", nil); err != nil {
		return nil, err
	}

	var span Span
	if r.eng.tracer != nil {
		ctx, span = r.eng.tracer.Start(ctx, "engine.tool",
			StringAttr("tool.name", action))
		defer span.End()
	}

	payload := r.eng.invoker.Invoke(ctx, action, input)
	return payload, nil
}
