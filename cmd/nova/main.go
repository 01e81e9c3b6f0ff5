// Command nova runs agent tasks against an OpenAI-compatible completion
// backend. The default subcommand executes a batch of tasks concurrently;
// `seed` bootstraps the semantic memory partition from documents.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	nova "github.com/novalabs/nova"
	"github.com/novalabs/nova/infer/openaicompat"
	"github.com/novalabs/nova/internal/config"
	"github.com/novalabs/nova/observer"
	"github.com/novalabs/nova/store/badgercache"
	"github.com/novalabs/nova/store/postgres"
	"github.com/novalabs/nova/store/sqlite"
	"github.com/novalabs/nova/tools/fetch"
	"github.com/novalabs/nova/tools/file"
	"github.com/novalabs/nova/tools/pdfreader"
	"github.com/novalabs/nova/tools/pyexec"
	"github.com/novalabs/nova/tools/shell"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}

func run(args []string) error {
	if len(args) > 0 && args[0] == "seed" {
		return runSeed(args[1:])
	}
	return runBatch(args)
}

// app holds everything built from config, plus the cleanup stack.
type app struct {
	engine   *nova.Engine
	catalog  []nova.ToolDefinition
	memory   nova.MemoryStore
	logger   *slog.Logger
	cleanups []func()
}

func (a *app) close() {
	for i := len(a.cleanups) - 1; i >= 0; i-- {
		a.cleanups[i]()
	}
}

// buildApp wires the engine from config: backend client, cache, memory
// store, safety filter, and the enabled tools.
func buildApp(ctx context.Context, cfg config.Config) (*app, error) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	a := &app{logger: logger}

	if cfg.Observer.Enabled {
		shutdown, err := observer.Init(ctx, cfg.Observer.ServiceName)
		if err != nil {
			return nil, fmt.Errorf("observer init: %w", err)
		}
		a.cleanups = append(a.cleanups, func() {
			shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(shutCtx)
		})
	}

	backend := openaicompat.NewClient(cfg.Backend.APIKey, cfg.Backend.Model, cfg.Backend.BaseURL)

	var cache nova.Cache
	switch cfg.Cache.Kind {
	case "badger":
		bc, err := badgercache.New(badgercache.Options{Dir: cfg.Cache.Dir, Logger: logger})
		if err != nil {
			a.close()
			return nil, fmt.Errorf("open badger cache: %w", err)
		}
		a.cleanups = append(a.cleanups, func() { _ = bc.Close() })
		cache = bc
	default:
		cache = nova.NewMemoryCache()
	}

	memory, err := buildMemory(ctx, cfg, logger, a)
	if err != nil {
		a.close()
		return nil, err
	}
	a.memory = memory

	var safetyOpts []nova.SafetyOption
	if len(cfg.Safety.BlockPhrases) > 0 {
		safetyOpts = append(safetyOpts, nova.BlockPhrases(cfg.Safety.BlockPhrases...))
	}
	safetyOpts = append(safetyOpts, nova.SafetyLogger(logger))

	tools := buildTools(cfg)
	for _, t := range tools {
		a.catalog = append(a.catalog, t.Definitions()...)
	}

	opts := []nova.Option{
		nova.WithModel(cfg.Backend.Model, cfg.Agent.ContextWindow),
		nova.WithCache(cache),
		nova.WithCacheTTL(time.Duration(cfg.Cache.TTLSeconds) * time.Second),
		nova.WithMemory(memory),
		nova.WithTools(tools...),
		nova.WithSafetyFilter(nova.NewSafetyFilter(safetyOpts...)),
		nova.WithLogger(logger),
	}
	if cfg.Tools.EnablePython {
		opts = append(opts, nova.WithCodeRunner(pyexec.NewRunner(cfg.Tools.PythonBin, pyexec.WithWorkDir(cfg.Agent.WorkspacePath))))
	}
	if cfg.Observer.Enabled {
		opts = append(opts, nova.WithTracer(observer.NewTracer()))
	}

	a.engine = nova.New(backend, opts...)
	return a, nil
}

func buildMemory(ctx context.Context, cfg config.Config, logger *slog.Logger, a *app) (nova.MemoryStore, error) {
	switch cfg.Memory.Kind {
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.Memory.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		a.cleanups = append(a.cleanups, pool.Close)
		store := postgres.New(pool)
		if err := store.Init(ctx); err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
		return store, nil
	default:
		store := sqlite.New(cfg.Memory.Path, sqlite.WithLogger(logger))
		a.cleanups = append(a.cleanups, func() { _ = store.Close() })
		if err := store.Init(ctx); err != nil {
			return nil, fmt.Errorf("init sqlite store: %w", err)
		}
		return store, nil
	}
}

func buildTools(cfg config.Config) []nova.Tool {
	if err := os.MkdirAll(cfg.Agent.WorkspacePath, 0755); err != nil {
		log.Printf("workspace dir: %v", err)
	}

	tools := []nova.Tool{file.New(cfg.Agent.WorkspacePath)}
	if cfg.Tools.EnableShell {
		var shellOpts []shell.Option
		if len(cfg.Tools.ShellAllow) > 0 {
			shellOpts = append(shellOpts, shell.WithAllowlist(cfg.Tools.ShellAllow...))
		}
		tools = append(tools, shell.New(cfg.Agent.WorkspacePath, cfg.Tools.ShellTimeout, shellOpts...))
	}
	if cfg.Tools.EnablePython {
		runner := pyexec.NewRunner(cfg.Tools.PythonBin, pyexec.WithWorkDir(cfg.Agent.WorkspacePath))
		tools = append(tools, pyexec.NewTool(runner))
	}
	if cfg.Tools.EnableFetch {
		tools = append(tools, fetch.New())
	}
	if cfg.Tools.EnablePDF {
		tools = append(tools, pdfreader.New(cfg.Agent.WorkspacePath))
	}
	return tools
}

// rootContext returns a context cancelled on SIGINT/SIGTERM.
func rootContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func loadConfig(fs *flag.FlagSet) config.Config {
	path := fs.Lookup("config").Value.String()
	if path == "" {
		path = os.Getenv("NOVA_CONFIG")
	}
	return config.Load(path)
}
