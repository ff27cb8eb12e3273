package integration

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"forgeloop/internal/core"
	"forgeloop/pkg/models"
)

// execTestRunner implements core.TestAgent by writing the code under
// test to a scratch file and running the configured test command
// against it. Exit 0 is a pass; any other exit code is a failing
// observation with the combined output attached.
type execTestRunner struct {
	command string
	args    []string
}

// NewExecTestRunner creates a TestAgent that runs `command args...
// <file>` for each submission. command must not be empty.
func NewExecTestRunner(command string, args []string) core.TestAgent {
	return &execTestRunner{command: command, args: args}
}

// Run writes code to a temp file and executes the test command on it.
// A command that cannot be started at all (missing binary, cancelled
// context) is an invocation error, not a failing test.
func (r *execTestRunner) Run(ctx context.Context, code string) (*core.TestResult, error) {
	if strings.TrimSpace(r.command) == "" {
		return nil, fmt.Errorf("no test command configured")
	}

	dir, err := os.MkdirTemp("", "forgeloop-test-")
	if err != nil {
		return nil, fmt.Errorf("creating scratch directory: %w", err)
	}
	defer os.RemoveAll(dir)

	file := filepath.Join(dir, "artifact")
	if err := os.WriteFile(file, []byte(code), 0o600); err != nil {
		return nil, fmt.Errorf("writing code under test: %w", err)
	}

	args := make([]string, 0, len(r.args)+1)
	args = append(args, r.args...)
	args = append(args, file)

	cmd := exec.CommandContext(ctx, r.command, args...)
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	err = cmd.Run()
	if err == nil {
		return &core.TestResult{Passed: true, Output: output.String()}, nil
	}

	if exitErr, ok := err.(*exec.ExitError); ok {
		// The command ran and judged the code: a failing observation.
		result := &core.TestResult{Passed: false, Output: output.String()}
		if result.Output == "" {
			result.Output = fmt.Sprintf("exit status %d", exitErr.ExitCode())
		}
		return result, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("running %s: %w", r.command, ctxErr)
	}
	return nil, fmt.Errorf("running %s: %w", r.command, err)
}

func (r *execTestRunner) Capabilities() []models.AgentCapability {
	return []models.AgentCapability{
		{
			Name:        core.CapRunTests,
			Description: "Run the configured test command against generated code",
			Inputs:      []string{"code"},
			Outputs:     []string{"passed", "output"},
		},
	}
}
