// Package nova is an agent orchestration engine for text-generation backends.
//
// Given a chat request (message history, optional tool catalog, optional
// execution preset), the engine assembles an augmented prompt, streams
// generated text back to the caller, interprets structured output to decide
// whether to invoke a tool or transition to another role, and repeats until
// a termination condition or step budget is reached.
//
// # Quick Start
//
//	backend := openaicompat.NewClient(apiKey, "nova-v1", "http://localhost:8000/v1")
//	mem := sqlite.New("nova.db")
//	cache, _ := badgercache.New(badgercache.Options{Dir: "cache"})
//
//	engine := nova.New(backend,
//		nova.WithModel("nova-v1", 2048),
//		nova.WithMemory(mem),
//		nova.WithCache(cache),
//		nova.WithTools(file.New(workspace), shell.New(workspace, 30)),
//	)
//
//	ch := make(chan nova.StreamChunk)
//	go engine.HandleChat(ctx, req, ch)
//	for chunk := range ch { ... }
//
// # Core Interfaces
//
// The root package defines the contracts that all components implement:
//
//   - [InferenceEngine] — streaming text-generation backend
//   - [MemoryStore] — episodic/semantic/procedural memory partitions
//   - [Cache] — content-addressed response cache
//   - [Tool] — pluggable capability for agent tool calling
//   - [CodeRunner] — sandboxed code execution for self-correction
//   - [Tracer] — span-based tracing (OTel-backed implementation in observer/)
//
// # Included Implementations
//
// Backends: infer/openaicompat (any OpenAI-compatible completions API).
// Storage: store/sqlite and store/postgres (memory partitions),
// store/badgercache (response cache).
// Tools: tools/file, tools/shell, tools/pyexec, tools/pdfreader, tools/fetch.
//
// See cmd/nova for a complete wiring example.
package nova
