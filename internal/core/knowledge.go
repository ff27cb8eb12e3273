package core

import (
	"fmt"
	"strings"
	"time"

	"forgeloop/pkg/models"
)

// snippetCodeLimit caps the code excerpt length included in a
// retrieved knowledge snippet.
const snippetCodeLimit = 2000

// knowledgeAgent implements KnowledgeAgent on top of a KnowledgeStore.
// It records code that passed its tests and surfaces prior entries for
// related paths as generation context.
type knowledgeAgent struct {
	store  KnowledgeStore
	logger EventLogger
	limit  int
}

// NewKnowledgeAgent creates a KnowledgeAgent backed by the given store.
// limit caps the number of snippets returned per retrieval; logger may
// be nil.
func NewKnowledgeAgent(store KnowledgeStore, logger EventLogger, limit int) KnowledgeAgent {
	if limit < 1 {
		limit = 3
	}
	return &knowledgeAgent{store: store, logger: logger, limit: limit}
}

// GetRelevantKnowledge returns formatted snippets of prior passing code
// for path. Retrieval is best-effort: store errors are logged and yield
// an empty result, never a failure.
func (k *knowledgeAgent) GetRelevantKnowledge(path string) []string {
	entries, err := k.store.EntriesForPath(path, k.limit)
	if err != nil {
		k.log("knowledge.retrieve_failed", map[string]any{"path": path, "error": err.Error()})
		return nil
	}

	snippets := make([]string, 0, len(entries))
	for _, entry := range entries {
		var b strings.Builder
		fmt.Fprintf(&b, "%s (%s, %s)\n", entry.Summary, entry.ID, entry.Path)
		if entry.Code != "" {
			b.WriteString(truncateString(entry.Code, snippetCodeLimit))
		}
		snippets = append(snippets, b.String())
	}
	return snippets
}

// LearnFromSuccess records the passing code for path as a new
// knowledge entry. The pipeline calls this once a file reaches passing.
func (k *knowledgeAgent) LearnFromSuccess(path, code string) error {
	id, err := k.store.GenerateID()
	if err != nil {
		return fmt.Errorf("learning from %s: %w", path, err)
	}

	entry := models.KnowledgeEntry{
		ID:      id,
		Path:    path,
		Summary: fmt.Sprintf("passing implementation of %s", path),
		Code:    code,
		Created: time.Now().UTC(),
	}
	if err := k.store.AddEntry(entry); err != nil {
		return fmt.Errorf("learning from %s: %w", path, err)
	}

	k.log("knowledge.learned", map[string]any{"path": path, "id": id})
	return nil
}

func (k *knowledgeAgent) Capabilities() []models.AgentCapability {
	return []models.AgentCapability{
		{
			Name:        CapRetrieveKnowledge,
			Description: "Retrieve prior passing code snippets relevant to an artifact path",
			Inputs:      []string{"path"},
			Outputs:     []string{"snippets"},
		},
		{
			Name:        CapLearnFromSuccess,
			Description: "Record code that passed its tests for future retrieval",
			Inputs:      []string{"path", "code"},
		},
	}
}

func (k *knowledgeAgent) log(eventType string, data map[string]any) {
	if k.logger != nil {
		_ = k.logger.LogEvent(eventType, data)
	}
}

// truncateString shortens s to at most n bytes, marking the cut.
func truncateString(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "\n[truncated]"
}
