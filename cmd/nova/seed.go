package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// seedChunkSize bounds one semantic memory entry so retrieval returns
// focused snippets instead of whole documents.
const seedChunkSize = 1200

func runSeed(args []string) error {
	fs := flag.NewFlagSet("nova seed", flag.ExitOnError)
	fs.String("config", "", "config file path (default nova.toml)")
	topic := fs.String("topic", "", "topic tag stored with every entry")
	if err := fs.Parse(args); err != nil {
		return err
	}

	paths := fs.Args()
	if len(paths) == 0 {
		return fmt.Errorf("no documents: nova seed [-topic t] file.md ...")
	}

	ctx, cancel := rootContext()
	defer cancel()

	cfg := loadConfig(fs)
	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	var total int
	for _, path := range paths {
		n, err := seedFile(ctx, a, path, *topic)
		if err != nil {
			return err
		}
		fmt.Printf("%s: %d entries\n", path, n)
		total += n
	}
	fmt.Printf("seeded %d semantic memory entries\n", total)
	return nil
}

func seedFile(ctx context.Context, a *app, path, topic string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", path, err)
	}

	metadata := map[string]string{"source": filepath.Base(path)}
	if topic != "" {
		metadata["topic"] = topic
	}

	var n int
	for _, chunk := range splitChunks(string(data)) {
		if err := a.memory.AddSemantic(ctx, chunk, metadata); err != nil {
			return n, fmt.Errorf("store chunk from %s: %w", path, err)
		}
		n++
	}
	return n, nil
}

// splitChunks breaks a document on paragraph boundaries, packing paragraphs
// into chunks of at most seedChunkSize characters. Oversized single
// paragraphs become their own chunk rather than being split mid-sentence.
func splitChunks(text string) []string {
	paragraphs := strings.Split(text, "\n\n")

	var chunks []string
	var current strings.Builder
	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if current.Len() > 0 && current.Len()+len(p) > seedChunkSize {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(p)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}
