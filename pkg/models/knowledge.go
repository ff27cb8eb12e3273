package models

import "time"

// KnowledgeEntry is one piece of accumulated generation knowledge: a
// code excerpt that passed its tests, keyed by the artifact path it was
// generated for. Entries persist across projects and feed later
// generation requests as prior context.
type KnowledgeEntry struct {
	ID      string    `yaml:"id"`
	Path    string    `yaml:"path"`
	Summary string    `yaml:"summary"`
	Code    string    `yaml:"code,omitempty"`
	Created time.Time `yaml:"created"`
}

// KnowledgeIndex is the master index of all knowledge entries.
type KnowledgeIndex struct {
	Version string           `yaml:"version"`
	Entries []KnowledgeEntry `yaml:"entries"`
}
