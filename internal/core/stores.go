package core

import "forgeloop/pkg/models"

// ProjectStore persists project state. This interface is defined locally
// in core to avoid importing storage.
type ProjectStore interface {
	SaveProject(p *models.ProjectState) error
	GetProject(id string) (*models.ProjectState, error)
	ListProjects() ([]models.ProjectSummary, error)
}

// KnowledgeStore persists accumulated generation knowledge.
// This interface is defined locally in core to avoid importing storage.
type KnowledgeStore interface {
	AddEntry(entry models.KnowledgeEntry) error
	EntriesForPath(path string, limit int) ([]models.KnowledgeEntry, error)
	GenerateID() (string, error)
}
