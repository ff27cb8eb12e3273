package cli

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"forgeloop/pkg/models"
)

func builtProject() *models.ProjectState {
	return &models.ProjectState{
		ID:    "P-00001",
		Name:  "alpha",
		Phase: models.PhaseCoding,
		Artifacts: []*models.ArtifactNode{
			{
				Path: "src",
				Kind: models.ArtifactDirectory,
				Children: []*models.ArtifactNode{
					{Path: "src/main.ext", Kind: models.ArtifactFile, Status: models.ArtifactGenerated, TestStatus: models.TestPassing},
					{Path: "src/ui.ext", Kind: models.ArtifactFile, Status: models.ArtifactGenerated, TestStatus: models.TestFailing},
				},
			},
			{Path: "readme.md", Kind: models.ArtifactFile, Status: models.ArtifactPlanned, TestStatus: models.TestUntested},
		},
	}
}

func TestBuildCmd(t *testing.T) {
	var gotID string
	swapController(t, &mockPhaseController{
		buildFn: func(_ context.Context, id string) (*models.ProjectState, error) {
			gotID = id
			return builtProject(), nil
		},
	})

	if err := buildCmd.RunE(buildCmd, []string{"P-00001"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotID != "P-00001" {
		t.Errorf("id = %q", gotID)
	}
}

func TestBuildCmd_NoPlan(t *testing.T) {
	swapController(t, &mockPhaseController{
		buildFn: func(_ context.Context, id string) (*models.ProjectState, error) {
			return nil, fmt.Errorf("starting build: project %s has no plan", id)
		},
	})

	err := buildCmd.RunE(buildCmd, []string{"P-00001"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "has no plan") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestWalkArtifacts(t *testing.T) {
	project := builtProject()

	var paths []string
	walkArtifacts(project.Artifacts, func(n *models.ArtifactNode) {
		paths = append(paths, n.Path)
	})

	want := []string{"src", "src/main.ext", "src/ui.ext", "readme.md"}
	if len(paths) != len(want) {
		t.Fatalf("visited %d nodes, want %d: %v", len(paths), len(want), paths)
	}
	for i, p := range want {
		if paths[i] != p {
			t.Errorf("paths[%d] = %q, want %q", i, paths[i], p)
		}
	}
}

func TestCountFiles(t *testing.T) {
	if got := countFiles(builtProject().Artifacts); got != 3 {
		t.Errorf("countFiles = %d, want 3", got)
	}
	if got := countFiles(nil); got != 0 {
		t.Errorf("countFiles(nil) = %d, want 0", got)
	}
}
