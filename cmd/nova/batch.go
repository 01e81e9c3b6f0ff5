package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	nova "github.com/novalabs/nova"
)

// taskOutcome is one finished batch task.
type taskOutcome struct {
	index   int
	task    string
	output  string
	err     error
	elapsed time.Duration
}

func runBatch(args []string) error {
	fs := flag.NewFlagSet("nova", flag.ExitOnError)
	fs.String("config", "", "config file path (default nova.toml)")
	preset := fs.String("preset", "", "execution preset: coding, creative, research, autonomous")
	tasksFile := fs.String("tasks", "", "file with one task per line (positional args otherwise)")
	workers := fs.Int("workers", 1, "concurrent tasks")
	agentMode := fs.Bool("agent", false, "advertise the tool catalog on the standard loop")
	if err := fs.Parse(args); err != nil {
		return err
	}

	tasks := fs.Args()
	if *tasksFile != "" {
		loaded, err := readTasks(*tasksFile)
		if err != nil {
			return err
		}
		tasks = append(tasks, loaded...)
	}
	if len(tasks) == 0 {
		return fmt.Errorf("no tasks: pass them as arguments or via -tasks")
	}
	if *workers < 1 {
		*workers = 1
	}

	ctx, cancel := rootContext()
	defer cancel()

	cfg := loadConfig(fs)
	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	jobs := make(chan int)
	results := make(chan taskOutcome)

	var wg sync.WaitGroup
	for w := 0; w < *workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results <- a.runTask(ctx, i, tasks[i], nova.Preset(*preset), *agentMode)
			}
		}()
	}
	go func() {
		defer close(jobs)
		for i := range tasks {
			select {
			case jobs <- i:
			case <-ctx.Done():
				return
			}
		}
	}()
	go func() {
		wg.Wait()
		close(results)
	}()

	start := time.Now()
	var done, failed int
	for r := range results {
		done++
		status := "ok"
		if r.err != nil {
			failed++
			status = "error: " + r.err.Error()
		}
		fmt.Printf("--- task %d/%d (%s, %s) ---\n%s\n\n%s\n", r.index+1, len(tasks), r.elapsed.Round(time.Millisecond), status, r.task, r.output)
	}

	elapsed := time.Since(start)
	fmt.Printf("=== %d tasks in %s (%.2f tasks/min), %d failed ===\n",
		done, elapsed.Round(time.Millisecond), float64(done)/elapsed.Minutes(), failed)
	if failed > 0 {
		return fmt.Errorf("%d of %d tasks failed", failed, done)
	}
	return nil
}

// runTask drives one full agent run, draining the chunk stream into a
// buffer so concurrent workers do not interleave output.
func (a *app) runTask(ctx context.Context, index int, task string, preset nova.Preset, agentMode bool) taskOutcome {
	req := nova.Request{
		Messages: []nova.Message{nova.UserMessage(task)},
	}
	if preset != "" {
		req.Sampling = &nova.SamplingConfig{Preset: preset}
	}
	if agentMode || preset == nova.PresetAutonomous || preset == nova.PresetResearch {
		req.Tools = a.catalog
	}

	start := time.Now()
	ch := make(chan nova.StreamChunk, 16)
	errc := make(chan error, 1)
	go func() {
		errc <- a.engine.HandleChat(ctx, req, ch)
	}()

	var out strings.Builder
	for chunk := range ch {
		if chunk.Err != nil {
			out.WriteString("[error] " + chunk.Err.Message + "\n")
			continue
		}
		for _, c := range chunk.Choices {
			out.WriteString(c.Delta.Content)
		}
	}

	return taskOutcome{
		index:   index,
		task:    task,
		output:  strings.TrimSpace(out.String()),
		err:     <-errc,
		elapsed: time.Since(start),
	}
}

// readTasks loads one task per line, skipping blanks and # comments.
func readTasks(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open tasks file: %w", err)
	}
	defer f.Close()

	var tasks []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 1<<20), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		tasks = append(tasks, line)
	}
	return tasks, scanner.Err()
}
