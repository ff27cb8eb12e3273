package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"forgeloop/pkg/models"
)

// ProjectStoreManager defines the interface for managing the
// workspace-level project store under projects/.
type ProjectStoreManager interface {
	SaveProject(p *models.ProjectState) error
	GetProject(id string) (*models.ProjectState, error)
	ListProjects() ([]models.ProjectSummary, error)
	DeleteProject(id string) error
	Load() error
}

type fileProjectStore struct {
	basePath string
	index    models.ProjectIndex
}

// NewProjectStoreManager creates a ProjectStoreManager backed by YAML
// files under projects/ in the given base directory. Each project gets
// its own directory holding project.yaml; index.yaml carries summaries
// for listings.
func NewProjectStoreManager(basePath string) ProjectStoreManager {
	return &fileProjectStore{
		basePath: basePath,
		index: models.ProjectIndex{
			Version:  "1.0",
			Projects: nil,
		},
	}
}

func (s *fileProjectStore) projectsDir() string {
	return filepath.Join(s.basePath, "projects")
}

func (s *fileProjectStore) indexPath() string {
	return filepath.Join(s.projectsDir(), "index.yaml")
}

func (s *fileProjectStore) projectDir(id string) string {
	return filepath.Join(s.projectsDir(), id)
}

func (s *fileProjectStore) projectPath(id string) string {
	return filepath.Join(s.projectDir(id), "project.yaml")
}

// SaveProject writes the full project state and refreshes its index
// entry. The project must have an ID already assigned.
func (s *fileProjectStore) SaveProject(p *models.ProjectState) error {
	if p == nil || p.ID == "" {
		return fmt.Errorf("saving project: ID must not be empty")
	}

	p.Updated = time.Now().UTC()
	if p.Created.IsZero() {
		p.Created = p.Updated
	}

	dir := s.projectDir(p.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("saving project: creating directory: %w", err)
	}
	if err := saveYAML(s.projectPath(p.ID), p); err != nil {
		return fmt.Errorf("saving project %s: %w", p.ID, err)
	}

	summary := models.ProjectSummary{
		ID:      p.ID,
		Name:    p.Name,
		Phase:   p.Phase,
		Created: p.Created,
		Updated: p.Updated,
	}
	replaced := false
	for i := range s.index.Projects {
		if s.index.Projects[i].ID == p.ID {
			s.index.Projects[i] = summary
			replaced = true
			break
		}
	}
	if !replaced {
		s.index.Projects = append(s.index.Projects, summary)
	}

	return s.saveIndex()
}

// GetProject loads the full project state for the given ID.
func (s *fileProjectStore) GetProject(id string) (*models.ProjectState, error) {
	data, err := os.ReadFile(s.projectPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("project %s not found", id)
		}
		return nil, fmt.Errorf("reading project %s: %w", id, err)
	}

	var p models.ProjectState
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing project %s: %w", id, err)
	}
	return &p, nil
}

// ListProjects returns project summaries ordered newest-updated first.
func (s *fileProjectStore) ListProjects() ([]models.ProjectSummary, error) {
	sorted := make([]models.ProjectSummary, len(s.index.Projects))
	copy(sorted, s.index.Projects)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Updated.After(sorted[j].Updated)
	})
	return sorted, nil
}

// DeleteProject removes a project's directory and index entry.
func (s *fileProjectStore) DeleteProject(id string) error {
	found := false
	for i, summary := range s.index.Projects {
		if summary.ID == id {
			s.index.Projects = append(s.index.Projects[:i], s.index.Projects[i+1:]...)
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("project %s not found", id)
	}

	if err := os.RemoveAll(s.projectDir(id)); err != nil {
		return fmt.Errorf("deleting project %s: %w", id, err)
	}
	return s.saveIndex()
}

// Load reads the project index from disk. Missing files are treated as
// empty.
func (s *fileProjectStore) Load() error {
	if err := loadYAML(s.indexPath(), &s.index); err != nil {
		return fmt.Errorf("loading project index: %w", err)
	}
	if s.index.Version == "" {
		s.index.Version = "1.0"
	}
	return nil
}

func (s *fileProjectStore) saveIndex() error {
	if err := os.MkdirAll(s.projectsDir(), 0o755); err != nil {
		return fmt.Errorf("saving project index: creating directory: %w", err)
	}
	if err := saveYAML(s.indexPath(), &s.index); err != nil {
		return fmt.Errorf("saving project index: %w", err)
	}
	return nil
}

func loadYAML(path string, target interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // Missing files are initialized to zero values.
		}
		return err
	}
	return yaml.Unmarshal(data, target)
}

func saveYAML(path string, source interface{}) error {
	data, err := yaml.Marshal(source)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
