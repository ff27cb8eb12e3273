package integration

import (
	"context"
	"fmt"
	"strings"

	"forgeloop/internal/core"
	"forgeloop/pkg/models"
)

// noFixMarker is the reply a model gives when it cannot repair the
// code. The self-healing loop treats an empty fix as unfixable.
const noFixMarker = "NO_FIX"

// debugAgent implements core.DebugAgent over a model client.
type debugAgent struct {
	client ModelClient
}

// NewDebugAgent creates a DebugAgent backed by the given client.
func NewDebugAgent(client ModelClient) core.DebugAgent {
	return &debugAgent{client: client}
}

// Fix prompts the model with the failing code and the test output and
// returns the repaired contents. An empty return means no fix.
func (d *debugAgent) Fix(ctx context.Context, code, errMsg string) (string, error) {
	var b strings.Builder
	b.WriteString("The following file fails its tests. Repair it.\n\n")
	b.WriteString("File contents:\n")
	b.WriteString(code)
	b.WriteString("\n\nTest output:\n")
	b.WriteString(errMsg)
	b.WriteString("\n\nReply with only the full corrected file contents.\n")
	b.WriteString("If the failure cannot be repaired by changing this file, reply with exactly NO_FIX.\n")

	content, err := d.client.Complete(ctx, b.String())
	if err != nil {
		return "", fmt.Errorf("requesting fix: %w", err)
	}

	fixed := strings.TrimSpace(content)
	if fixed == noFixMarker {
		return "", nil
	}
	return content, nil
}

func (d *debugAgent) Capabilities() []models.AgentCapability {
	return []models.AgentCapability{
		{
			Name:        core.CapFixCode,
			Description: "Repair code that failed its tests",
			Inputs:      []string{"code", "test_output"},
			Outputs:     []string{"code"},
		},
	}
}
