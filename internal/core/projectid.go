package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ProjectIDGenerator defines the interface for generating unique,
// sequential project IDs.
type ProjectIDGenerator interface {
	GenerateProjectID() (string, error)
}

// fileProjectIDGenerator implements ProjectIDGenerator by persisting a
// counter in a .project_counter file on disk.
type fileProjectIDGenerator struct {
	basePath string
}

// NewProjectIDGenerator creates a ProjectIDGenerator that stores its
// counter in a .project_counter file within basePath.
// Format: P-{counter:05d} (e.g., P-00001).
func NewProjectIDGenerator(basePath string) ProjectIDGenerator {
	return &fileProjectIDGenerator{basePath: basePath}
}

// GenerateProjectID reads the current counter under an exclusive file
// lock, increments it, writes it back, and returns the formatted ID.
// If the counter file does not exist, the counter starts from 1.
func (g *fileProjectIDGenerator) GenerateProjectID() (string, error) {
	if err := os.MkdirAll(g.basePath, 0o750); err != nil {
		return "", fmt.Errorf("creating base path for project counter: %w", err)
	}

	counterPath := filepath.Join(g.basePath, ".project_counter")
	unlock, err := lockFile(counterPath)
	if err != nil {
		return "", fmt.Errorf("locking project counter: %w", err)
	}
	defer func() { _ = unlock() }()

	counter := 0
	data, err := os.ReadFile(counterPath)
	if err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("reading project counter file: %w", err)
	}
	if err == nil {
		trimmed := strings.TrimSpace(string(data))
		if trimmed != "" {
			counter, err = strconv.Atoi(trimmed)
			if err != nil {
				return "", fmt.Errorf("parsing project counter %q: %w", trimmed, err)
			}
		}
	}

	counter++

	if err := os.WriteFile(counterPath, []byte(strconv.Itoa(counter)), 0o600); err != nil {
		return "", fmt.Errorf("writing project counter file: %w", err)
	}

	return fmt.Sprintf("P-%05d", counter), nil
}
