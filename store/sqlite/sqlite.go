// Package sqlite implements nova.MemoryStore using pure-Go SQLite with
// FTS5 keyword relevance ranking. Zero CGO required.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	nova "github.com/novalabs/nova"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// Partition names, one row namespace per memory kind.
const (
	partitionEpisodic   = "episodic"
	partitionSemantic   = "semantic"
	partitionProcedural = "procedural"
)

// StoreOption configures a SQLite Store.
type StoreOption func(*Store)

// WithLogger sets a structured logger for the store. When set, the store
// emits debug logs for every operation including timing and row counts.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// Store implements nova.MemoryStore backed by a local SQLite file. Records
// are indexed in an FTS5 table; retrieval ranks by FTS5 relevance.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ nova.MemoryStore = (*Store)(nil)

// nopLogger discards all output.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// New creates a Store using a local SQLite file at dbPath. It opens a single
// shared connection pool with SetMaxOpenConns(1) so all goroutines serialize
// through one connection, eliminating SQLITE_BUSY errors from concurrent
// writers.
func New(dbPath string, opts ...StoreOption) *Store {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		// sql.Open only fails when the driver is not registered; with the
		// blank import above that never happens.
		panic(fmt.Sprintf("sqlite: open driver: %v", err))
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db, logger: nopLogger}
	for _, o := range opts {
		o(s)
	}
	s.logger.Debug("sqlite: memory store opened", "path", dbPath)
	return s
}

// Init creates the memory tables.
func (s *Store) Init(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS memories (
			id TEXT PRIMARY KEY,
			partition TEXT NOT NULL,
			content TEXT NOT NULL,
			metadata TEXT,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_memories_partition ON memories(partition, created_at)`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS memories_fts USING fts5(
			memory_id UNINDEXED,
			content
		)`,
	}
	for _, q := range ddl {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) AddEpisodic(ctx context.Context, content string, metadata map[string]string) error {
	return s.add(ctx, partitionEpisodic, content, metadata)
}

func (s *Store) AddSemantic(ctx context.Context, content string, metadata map[string]string) error {
	return s.add(ctx, partitionSemantic, content, metadata)
}

func (s *Store) AddProcedural(ctx context.Context, content string, metadata map[string]string) error {
	return s.add(ctx, partitionProcedural, content, metadata)
}

func (s *Store) RetrieveEpisodic(ctx context.Context, query string, k int) ([]string, error) {
	return s.retrieve(ctx, partitionEpisodic, query, k)
}

func (s *Store) RetrieveSemantic(ctx context.Context, query string, k int) ([]string, error) {
	return s.retrieve(ctx, partitionSemantic, query, k)
}

func (s *Store) RetrieveProcedural(ctx context.Context, query string, k int) ([]string, error) {
	return s.retrieve(ctx, partitionProcedural, query, k)
}

func (s *Store) add(ctx context.Context, partition, content string, metadata map[string]string) error {
	start := time.Now()
	id := uuid.NewString()

	var metaJSON []byte
	if len(metadata) > 0 {
		var err error
		metaJSON, err = json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO memories (id, partition, content, metadata, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, partition, content, nullString(metaJSON), time.Now().Unix()); err != nil {
		return fmt.Errorf("insert memory: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO memories_fts (memory_id, content) VALUES (?, ?)`,
		id, content); err != nil {
		return fmt.Errorf("index memory: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.logger.Debug("sqlite: memory stored", "partition", partition, "id", id, "duration", time.Since(start))
	return nil
}

func (s *Store) retrieve(ctx context.Context, partition, query string, k int) ([]string, error) {
	start := time.Now()
	if k <= 0 {
		return nil, nil
	}

	match := ftsQuery(query)
	if match == "" {
		// Nothing searchable in the query; fall back to most recent.
		return s.recent(ctx, partition, k)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT m.content
		 FROM memories_fts f
		 JOIN memories m ON m.id = f.memory_id
		 WHERE memories_fts MATCH ? AND m.partition = ?
		 ORDER BY f.rank LIMIT ?`,
		match, partition, k)
	if err != nil {
		return nil, fmt.Errorf("memory search: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var content string
		if err := rows.Scan(&content); err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		out = append(out, content)
	}
	s.logger.Debug("sqlite: memory search ok", "partition", partition, "returned", len(out), "duration", time.Since(start))
	return out, rows.Err()
}

// recent returns the newest k records of a partition.
func (s *Store) recent(ctx context.Context, partition string, k int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT content FROM memories WHERE partition = ? ORDER BY created_at DESC LIMIT ?`,
		partition, k)
	if err != nil {
		return nil, fmt.Errorf("memory recent: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var content string
		if err := rows.Scan(&content); err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		out = append(out, content)
	}
	return out, rows.Err()
}

// ftsQuery turns free text into an FTS5 OR-query of quoted tokens, so
// punctuation in user text cannot be misread as FTS5 syntax.
func ftsQuery(query string) string {
	fields := strings.Fields(query)
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, `"'.,:;!?()[]{}`)
		if f == "" {
			continue
		}
		tokens = append(tokens, `"`+strings.ReplaceAll(f, `"`, ``)+`"`)
	}
	return strings.Join(tokens, " OR ")
}

func nullString(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
