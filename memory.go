package nova

import (
	"context"
	"log/slog"
)

// MemoryStore provides three independently queryable record partitions:
// episodic (past task outcomes), semantic (general knowledge), and
// procedural (reusable workflows). Writes need only be eventually visible;
// both stores tolerate concurrent writers and lost updates because memory is
// advisory recollection, never authoritative state.
type MemoryStore interface {
	AddEpisodic(ctx context.Context, content string, metadata map[string]string) error
	AddSemantic(ctx context.Context, content string, metadata map[string]string) error
	AddProcedural(ctx context.Context, content string, metadata map[string]string) error

	// Retrieve* return up to k snippets ranked by relevance to query.
	RetrieveEpisodic(ctx context.Context, query string, k int) ([]string, error)
	RetrieveSemantic(ctx context.Context, query string, k int) ([]string, error)
	RetrieveProcedural(ctx context.Context, query string, k int) ([]string, error)
}

// memoryOutcome values recorded on episodic entries.
const (
	outcomePass    = "PASS"
	outcomeFail    = "FAIL"
	outcomeSuccess = "SUCCESS"
)

// rememberEpisode persists a task outcome to episodic memory, fail-open.
func rememberEpisode(ctx context.Context, mem MemoryStore, logger *slog.Logger, task, solution, outcome, feedback string) {
	if mem == nil {
		return
	}
	content := "Task: " + task + "\nResult: " + outcome + "\nSolution:\n" + solution
	if feedback != "" {
		content += "\nFeedback: " + feedback
	}
	meta := map[string]string{"outcome": outcome}
	if err := mem.AddEpisodic(ctx, content, meta); err != nil {
		logger.Warn("episodic memory write failed", "error", err)
	}
}

// rememberConclusion persists a research conclusion to semantic memory, fail-open.
func rememberConclusion(ctx context.Context, mem MemoryStore, logger *slog.Logger, hypothesis, observation, conclusion string, supported bool) {
	if mem == nil {
		return
	}
	outcome := "refuted"
	if supported {
		outcome = "supported"
	}
	content := "Hypothesis: " + hypothesis + "\nOutcome: " + outcome +
		"\nObservation: " + observation + "\nConclusion: " + conclusion
	if err := mem.AddSemantic(ctx, content, map[string]string{"outcome": outcome}); err != nil {
		logger.Warn("semantic memory write failed", "error", err)
	}
}
