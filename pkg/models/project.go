package models

import "time"

// ProjectPhase is the overall lifecycle stage of a project. Phases move
// forward only: idea intake, ideation, planning, coding.
type ProjectPhase string

const (
	PhaseIdeaIntake ProjectPhase = "idea_intake"
	PhaseIdeation   ProjectPhase = "ideation"
	PhasePlanning   ProjectPhase = "planning"
	PhaseCoding     ProjectPhase = "coding"
)

// ChatMessage is one entry in a project's ordered conversation log.
type ChatMessage struct {
	Role    string    `yaml:"role" json:"role"`
	Content string    `yaml:"content" json:"content"`
	At      time.Time `yaml:"at" json:"at"`
}

// ProjectState is the aggregate root for one project. It is owned by the
// orchestration flow and mutated only through phase controller and
// pipeline operations, never directly by callers.
type ProjectState struct {
	ID      string        `yaml:"id" json:"id"`
	Name    string        `yaml:"name" json:"name"`
	Phase   ProjectPhase  `yaml:"phase" json:"phase"`
	Plan    string        `yaml:"plan,omitempty" json:"plan,omitempty"`
	ChatLog []ChatMessage `yaml:"chat_log,omitempty" json:"chat_log,omitempty"`
	// Artifacts holds the exported artifact tree: top-level nodes in
	// insertion order, children nested beneath them.
	Artifacts       []*ArtifactNode `yaml:"artifacts,omitempty" json:"artifacts,omitempty"`
	SelectedPath    string          `yaml:"selected_path,omitempty" json:"selected_path,omitempty"`
	BuildInProgress bool            `yaml:"build_in_progress" json:"build_in_progress"`
	LastError       string          `yaml:"last_error,omitempty" json:"last_error,omitempty"`
	TerminalLog     []string        `yaml:"terminal_log,omitempty" json:"terminal_log,omitempty"`
	Created         time.Time       `yaml:"created" json:"created"`
	Updated         time.Time       `yaml:"updated" json:"updated"`
}

// ProjectSummary is the index entry for a project, carrying enough for
// listings without loading the full state.
type ProjectSummary struct {
	ID      string       `yaml:"id" json:"id"`
	Name    string       `yaml:"name" json:"name"`
	Phase   ProjectPhase `yaml:"phase" json:"phase"`
	Created time.Time    `yaml:"created" json:"created"`
	Updated time.Time    `yaml:"updated" json:"updated"`
}

// ProjectIndex is the master index of all projects in a workspace.
type ProjectIndex struct {
	Version  string           `yaml:"version"`
	Projects []ProjectSummary `yaml:"projects"`
}
