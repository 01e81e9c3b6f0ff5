// Package postgres implements nova.MemoryStore using PostgreSQL with
// tsvector full-text relevance ranking.
//
// The Store accepts an externally-owned *pgxpool.Pool via constructor
// injection. The caller creates and closes the pool.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	nova "github.com/novalabs/nova"
)

// Partition names, one row namespace per memory kind.
const (
	partitionEpisodic   = "episodic"
	partitionSemantic   = "semantic"
	partitionProcedural = "procedural"
)

// Store implements nova.MemoryStore backed by PostgreSQL. Retrieval ranks
// with ts_rank over a generated tsvector column, so relevance search needs
// no application-side scoring.
type Store struct {
	pool *pgxpool.Pool
}

var _ nova.MemoryStore = (*Store)(nil)

// New creates a Store using an existing pgxpool.Pool. The caller owns the
// pool and is responsible for closing it.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Init creates the memory table and indexes. Safe to call multiple times.
func (s *Store) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS memories (
			id TEXT PRIMARY KEY,
			partition TEXT NOT NULL,
			content TEXT NOT NULL,
			metadata JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			content_tsv tsvector GENERATED ALWAYS AS (to_tsvector('english', content)) STORED
		)`,
		`CREATE INDEX IF NOT EXISTS idx_memories_partition ON memories (partition, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_memories_tsv ON memories USING GIN (content_tsv)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init memories: %w", err)
		}
	}
	return nil
}

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
	var metaJSON []byte
	if len(metadata) > 0 {
		var err error
		metaJSON, err = json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO memories (id, partition, content, metadata, created_at) VALUES ($1, $2, $3, $4, $5)`,
		uuid.NewString(), partition, content, metaJSON, time.Now())
	if err != nil {
		return fmt.Errorf("insert memory: %w", err)
	}
	return nil
}

func (s *Store) retrieve(ctx context.Context, partition, query string, k int) ([]string, error) {
	if k <= 0 {
		return nil, nil
	}
	if strings.TrimSpace(query) == "" {
		// Nothing searchable in the query; fall back to most recent.
		return s.recent(ctx, partition, k)
	}

	// websearch_to_tsquery tolerates arbitrary user text as-is.
	rows, err := s.pool.Query(ctx,
		`SELECT content
		 FROM memories
		 WHERE partition = $1 AND content_tsv @@ websearch_to_tsquery('english', $2)
		 ORDER BY ts_rank(content_tsv, websearch_to_tsquery('english', $2)) DESC
		 LIMIT $3`,
		partition, query, k)
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
	return out, rows.Err()
}

// recent returns the newest k records of a partition.
func (s *Store) recent(ctx context.Context, partition string, k int) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT content FROM memories WHERE partition = $1 ORDER BY created_at DESC LIMIT $2`,
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
