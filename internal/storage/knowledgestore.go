package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"

	"gopkg.in/yaml.v3"

	"forgeloop/pkg/models"
)

// KnowledgeStoreManager defines the interface for the long-term
// knowledge persistence layer under knowledge/. Entries outlive the
// projects they came from and feed later generation requests.
type KnowledgeStoreManager interface {
	AddEntry(entry models.KnowledgeEntry) error
	GetEntry(id string) (*models.KnowledgeEntry, error)
	GetAllEntries() ([]models.KnowledgeEntry, error)
	EntriesForPath(path string, limit int) ([]models.KnowledgeEntry, error)
	Search(query string) ([]models.KnowledgeEntry, error)
	GenerateID() (string, error)
	Load() error
	Save() error
}

type fileKnowledgeStore struct {
	basePath string
	index    models.KnowledgeIndex
}

// NewKnowledgeStoreManager creates a KnowledgeStoreManager backed by
// YAML files under knowledge/ in the given base directory.
func NewKnowledgeStoreManager(basePath string) KnowledgeStoreManager {
	return &fileKnowledgeStore{
		basePath: basePath,
		index: models.KnowledgeIndex{
			Version: "1.0",
			Entries: nil,
		},
	}
}

func (s *fileKnowledgeStore) knowledgeDir() string {
	return filepath.Join(s.basePath, "knowledge")
}

func (s *fileKnowledgeStore) indexPath() string {
	return filepath.Join(s.knowledgeDir(), "index.yaml")
}

func (s *fileKnowledgeStore) counterPath() string {
	return filepath.Join(s.knowledgeDir(), ".knowledge_counter")
}

// GenerateID reads and increments the knowledge counter file under an
// exclusive lock, returning the next sequential ID in K-XXXXX format.
func (s *fileKnowledgeStore) GenerateID() (string, error) {
	if err := os.MkdirAll(s.knowledgeDir(), 0o755); err != nil {
		return "", fmt.Errorf("generating knowledge ID: creating directory: %w", err)
	}

	unlock, err := s.lockCounter()
	if err != nil {
		return "", fmt.Errorf("generating knowledge ID: acquiring lock: %w", err)
	}
	defer unlock()

	counter := 0
	data, err := os.ReadFile(s.counterPath())
	if err == nil {
		trimmed := strings.TrimSpace(string(data))
		if trimmed != "" {
			counter, err = strconv.Atoi(trimmed)
			if err != nil {
				return "", fmt.Errorf("generating knowledge ID: parsing counter: %w", err)
			}
		}
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("generating knowledge ID: reading counter: %w", err)
	}

	counter++
	id := fmt.Sprintf("K-%05d", counter)

	if err := os.WriteFile(s.counterPath(), []byte(strconv.Itoa(counter)), 0o600); err != nil {
		return "", fmt.Errorf("generating knowledge ID: writing counter: %w", err)
	}
	return id, nil
}

// lockCounter acquires an exclusive lock on the knowledge counter file.
func (s *fileKnowledgeStore) lockCounter() (unlock func() error, err error) {
	f, err := os.OpenFile(s.counterPath(), os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening counter lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		f.Close()
		return nil, fmt.Errorf("acquiring counter lock: %w", err)
	}

	return func() error {
		defer f.Close()
		return syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
	}, nil
}

// AddEntry appends a knowledge entry to the index and persists it. The
// entry must have an ID already assigned (via GenerateID).
func (s *fileKnowledgeStore) AddEntry(entry models.KnowledgeEntry) error {
	if entry.ID == "" {
		return fmt.Errorf("adding knowledge entry: ID must not be empty")
	}
	for _, existing := range s.index.Entries {
		if existing.ID == entry.ID {
			return fmt.Errorf("adding knowledge entry: %s already exists", entry.ID)
		}
	}
	s.index.Entries = append(s.index.Entries, entry)
	return s.Save()
}

// GetEntry returns a knowledge entry by ID.
func (s *fileKnowledgeStore) GetEntry(id string) (*models.KnowledgeEntry, error) {
	for _, entry := range s.index.Entries {
		if entry.ID == id {
			return &entry, nil
		}
	}
	return nil, fmt.Errorf("knowledge entry %s not found", id)
}

// GetAllEntries returns every knowledge entry ordered by ID.
func (s *fileKnowledgeStore) GetAllEntries() ([]models.KnowledgeEntry, error) {
	entries := make([]models.KnowledgeEntry, len(s.index.Entries))
	copy(entries, s.index.Entries)
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].ID < entries[j].ID
	})
	return entries, nil
}

// EntriesForPath returns entries relevant to an artifact path: exact
// path matches first, then entries whose file name matches, each group
// newest first, bounded by limit.
func (s *fileKnowledgeStore) EntriesForPath(path string, limit int) ([]models.KnowledgeEntry, error) {
	if limit < 1 {
		limit = 1
	}

	var exact, related []models.KnowledgeEntry
	base := filepath.Base(path)
	for _, entry := range s.index.Entries {
		switch {
		case entry.Path == path:
			exact = append(exact, entry)
		case filepath.Base(entry.Path) == base:
			related = append(related, entry)
		}
	}

	newestFirst := func(entries []models.KnowledgeEntry) {
		sort.Slice(entries, func(i, j int) bool {
			return entries[i].Created.After(entries[j].Created)
		})
	}
	newestFirst(exact)
	newestFirst(related)

	result := append(exact, related...)
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Search returns entries whose path or summary contains the query,
// case-insensitively.
func (s *fileKnowledgeStore) Search(query string) ([]models.KnowledgeEntry, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return s.GetAllEntries()
	}

	var result []models.KnowledgeEntry
	for _, entry := range s.index.Entries {
		if strings.Contains(strings.ToLower(entry.Path), q) ||
			strings.Contains(strings.ToLower(entry.Summary), q) {
			result = append(result, entry)
		}
	}
	return result, nil
}

// Load reads the knowledge index from disk. Missing files are treated
// as empty.
func (s *fileKnowledgeStore) Load() error {
	data, err := os.ReadFile(s.indexPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("loading knowledge index: %w", err)
	}

	var idx models.KnowledgeIndex
	if err := yaml.Unmarshal(data, &idx); err != nil {
		return fmt.Errorf("loading knowledge index: parsing YAML: %w", err)
	}
	if idx.Version == "" {
		idx.Version = "1.0"
	}
	s.index = idx
	return nil
}

// Save persists the knowledge index to disk.
func (s *fileKnowledgeStore) Save() error {
	if err := os.MkdirAll(s.knowledgeDir(), 0o755); err != nil {
		return fmt.Errorf("saving knowledge index: creating directory: %w", err)
	}
	data, err := yaml.Marshal(&s.index)
	if err != nil {
		return fmt.Errorf("saving knowledge index: marshaling YAML: %w", err)
	}
	if err := os.WriteFile(s.indexPath(), data, 0o600); err != nil {
		return fmt.Errorf("saving knowledge index: writing file: %w", err)
	}
	return nil
}
