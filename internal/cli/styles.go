package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"forgeloop/internal/observability"
	"forgeloop/pkg/models"
)

// Style definitions for status badges. Lipgloss degrades to plain text
// when the output is not a color terminal.
var (
	stylePhaseIntake   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	stylePhaseIdeation = lipgloss.NewStyle().Foreground(lipgloss.Color("141"))
	stylePhasePlanning = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	stylePhaseCoding   = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))

	styleAgentIdle       = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	styleAgentThinking   = lipgloss.NewStyle().Foreground(lipgloss.Color("141"))
	styleAgentGenerating = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	styleAgentTesting    = lipgloss.NewStyle().Foreground(lipgloss.Color("69"))
	styleAgentDebugging  = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	styleAgentError      = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)

	styleArtifactPlanned    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	styleArtifactGenerating = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	styleArtifactGenerated  = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	styleArtifactModified   = lipgloss.NewStyle().Foreground(lipgloss.Color("141"))
	styleArtifactError      = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))

	styleTestPassing = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	styleTestFailing = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	styleTestPending = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))

	severityHigh   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	severityMedium = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	severityLow    = lipgloss.NewStyle().Foreground(lipgloss.Color("69"))
)

func phaseBadge(phase models.ProjectPhase) string {
	return styleForPhase(phase).Render(string(phase))
}

func styleForPhase(phase models.ProjectPhase) lipgloss.Style {
	switch phase {
	case models.PhaseIdeaIntake:
		return stylePhaseIntake
	case models.PhaseIdeation:
		return stylePhaseIdeation
	case models.PhasePlanning:
		return stylePhasePlanning
	case models.PhaseCoding:
		return stylePhaseCoding
	default:
		return stylePhaseIntake
	}
}

func agentStatusBadge(status models.AgentStatus) string {
	return styleForAgentStatus(status).Render(string(status))
}

func styleForAgentStatus(status models.AgentStatus) lipgloss.Style {
	switch status {
	case models.AgentThinking:
		return styleAgentThinking
	case models.AgentGenerating:
		return styleAgentGenerating
	case models.AgentTesting:
		return styleAgentTesting
	case models.AgentDebugging:
		return styleAgentDebugging
	case models.AgentErrored:
		return styleAgentError
	default:
		return styleAgentIdle
	}
}

func artifactStatusBadge(status models.ArtifactStatus) string {
	switch status {
	case models.ArtifactGenerating:
		return styleArtifactGenerating.Render(string(status))
	case models.ArtifactGenerated:
		return styleArtifactGenerated.Render(string(status))
	case models.ArtifactModified:
		return styleArtifactModified.Render(string(status))
	case models.ArtifactError:
		return styleArtifactError.Render(string(status))
	default:
		return styleArtifactPlanned.Render(string(status))
	}
}

func testStatusBadge(status models.TestStatus) string {
	switch status {
	case models.TestPassing:
		return styleTestPassing.Render(string(status))
	case models.TestFailing:
		return styleTestFailing.Render(string(status))
	default:
		return styleTestPending.Render(string(status))
	}
}

func severityBadge(severity observability.AlertSeverity) string {
	label := "[" + strings.ToUpper(string(severity)) + "]"
	switch severity {
	case observability.SeverityHigh:
		return severityHigh.Render(label)
	case observability.SeverityMedium:
		return severityMedium.Render(label)
	default:
		return severityLow.Render(label)
	}
}
