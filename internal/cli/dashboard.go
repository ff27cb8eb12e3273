package cli

import (
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"forgeloop/internal/observability"
	"forgeloop/pkg/models"
)

// Dashboard panel indices.
const (
	panelProjects = iota
	panelAgents
	panelMetrics
	panelAlerts
	panelCount
)

type dashboardModel struct {
	activePanel int
	width       int
	height      int

	// Data.
	phaseCounts map[models.ProjectPhase]int
	agents      []models.Agent
	metricsData *metricsSnapshot
	alerts      []alertSnapshot

	// State.
	loading bool
	err     error
}

type metricsSnapshot struct {
	eventCount      int
	projectsCreated int
	buildsStarted   int
	buildsCompleted int
	buildsFailed    int
	filesGenerated  int
	testsPassed     int
	successRate     float64
}

type alertSnapshot struct {
	severity observability.AlertSeverity
	message  string
	time     string
}

// dataLoadedMsg carries loaded data back to the model.
type dataLoadedMsg struct {
	phaseCounts map[models.ProjectPhase]int
	agents      []models.Agent
	metrics     *metricsSnapshot
	alerts      []alertSnapshot
	err         error
}

// Style definitions for the dashboard chrome. Badge styles for phases,
// agent statuses, and severities live in styles.go.
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	panelStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(1, 2)

	activePanelStyle = lipgloss.NewStyle().
				BorderStyle(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("62")).
				Padding(1, 2)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")).
			MarginBottom(1)

	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func newDashboardModel() dashboardModel {
	return dashboardModel{
		activePanel: panelProjects,
		loading:     true,
		phaseCounts: make(map[models.ProjectPhase]int),
	}
}

func (m dashboardModel) Init() tea.Cmd {
	return loadData
}

func (m dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "tab":
			m.activePanel = (m.activePanel + 1) % panelCount
			return m, nil
		case "shift+tab":
			m.activePanel = (m.activePanel - 1 + panelCount) % panelCount
			return m, nil
		case "r":
			m.loading = true
			return m, loadData
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case dataLoadedMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.phaseCounts = msg.phaseCounts
		m.agents = msg.agents
		m.metricsData = msg.metrics
		m.alerts = msg.alerts
		m.err = nil
		return m, nil
	}

	return m, nil
}

func (m dashboardModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	title := titleStyle.Render(" forgeloop dashboard ")
	help := helpStyle.Render("tab: switch panel | r: refresh | q: quit")

	if m.loading {
		return fmt.Sprintf("%s\n\n  Loading data...\n\n%s", title, help)
	}

	if m.err != nil {
		return fmt.Sprintf("%s\n\n  Error: %s\n\n%s", title, m.err, help)
	}

	projectsPanel := m.renderProjectsPanel()
	agentsPanel := m.renderAgentsPanel()
	metricsPanel := m.renderMetricsPanel()
	alertsPanel := m.renderAlertsPanel()

	// Available width for panels after accounting for margins.
	availableWidth := m.width - 2

	var body string
	if availableWidth > 120 {
		// Horizontal layout: four columns.
		colWidth := availableWidth / 4
		projectsPanel = m.applyPanelStyle(panelProjects, projectsPanel, colWidth-4)
		agentsPanel = m.applyPanelStyle(panelAgents, agentsPanel, colWidth-4)
		metricsPanel = m.applyPanelStyle(panelMetrics, metricsPanel, colWidth-4)
		alertsPanel = m.applyPanelStyle(panelAlerts, alertsPanel, colWidth-4)
		body = lipgloss.JoinHorizontal(lipgloss.Top, projectsPanel, agentsPanel, metricsPanel, alertsPanel)
	} else {
		// Vertical layout: stacked.
		panelWidth := availableWidth - 4
		if panelWidth < 20 {
			panelWidth = 20
		}
		projectsPanel = m.applyPanelStyle(panelProjects, projectsPanel, panelWidth)
		agentsPanel = m.applyPanelStyle(panelAgents, agentsPanel, panelWidth)
		metricsPanel = m.applyPanelStyle(panelMetrics, metricsPanel, panelWidth)
		alertsPanel = m.applyPanelStyle(panelAlerts, alertsPanel, panelWidth)
		body = lipgloss.JoinVertical(lipgloss.Left, projectsPanel, agentsPanel, metricsPanel, alertsPanel)
	}

	return fmt.Sprintf("%s\n\n%s\n\n%s", title, body, help)
}

func (m dashboardModel) applyPanelStyle(panel int, content string, width int) string {
	style := panelStyle
	if m.activePanel == panel {
		style = activePanelStyle
	}
	return style.Width(width).Render(content)
}

func (m dashboardModel) renderProjectsPanel() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Projects"))
	b.WriteString("\n")

	if len(m.phaseCounts) == 0 {
		b.WriteString("  No projects yet.")
		return b.String()
	}

	// Display active phases first.
	order := []models.ProjectPhase{
		models.PhaseCoding,
		models.PhasePlanning,
		models.PhaseIdeation,
		models.PhaseIdeaIntake,
	}
	for _, phase := range order {
		count, ok := m.phaseCounts[phase]
		if !ok || count == 0 {
			continue
		}
		label := fmt.Sprintf("  %-14s %d", phase, count)
		b.WriteString(styleForPhase(phase).Render(label))
		b.WriteString("\n")
	}

	total := 0
	for _, c := range m.phaseCounts {
		total += c
	}
	b.WriteString(fmt.Sprintf("\n  Total: %d", total))

	return b.String()
}

func (m dashboardModel) renderAgentsPanel() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Agents"))
	b.WriteString("\n")

	if len(m.agents) == 0 {
		b.WriteString("  No agents registered.")
		return b.String()
	}

	for _, agent := range m.agents {
		b.WriteString(fmt.Sprintf("  %-10s %s\n", agent.Role, agentStatusBadge(agent.Status)))
	}

	return b.String()
}

func (m dashboardModel) renderMetricsPanel() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Metrics (7d)"))
	b.WriteString("\n")

	if m.metricsData == nil {
		b.WriteString("  No metrics available.")
		return b.String()
	}

	md := m.metricsData
	lines := []struct {
		label string
		value int
	}{
		{"Events", md.eventCount},
		{"Projects", md.projectsCreated},
		{"Builds", md.buildsStarted},
		{"Completed", md.buildsCompleted},
		{"Failed", md.buildsFailed},
		{"Files", md.filesGenerated},
		{"Tests", md.testsPassed},
	}

	for _, l := range lines {
		b.WriteString(fmt.Sprintf("  %-14s %d\n", l.label, l.value))
	}

	if md.buildsCompleted+md.buildsFailed > 0 {
		b.WriteString(fmt.Sprintf("\n  Success rate: %.0f%%", md.successRate*100))
	}

	return b.String()
}

func (m dashboardModel) renderAlertsPanel() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Alerts"))
	b.WriteString("\n")

	if len(m.alerts) == 0 {
		b.WriteString("  No active alerts.")
		return b.String()
	}

	for _, a := range m.alerts {
		b.WriteString(fmt.Sprintf("  %s %s\n", severityBadge(a.severity), a.message))
	}

	b.WriteString(fmt.Sprintf("\n  Total: %d alert(s)", len(m.alerts)))

	return b.String()
}

func loadData() tea.Msg {
	result := dataLoadedMsg{
		phaseCounts: make(map[models.ProjectPhase]int),
	}

	// Load project counts from the phase controller.
	if Controller != nil {
		projects, err := Controller.ListProjects()
		if err != nil {
			result.err = fmt.Errorf("loading projects: %w", err)
			return result
		}
		for _, p := range projects {
			result.phaseCounts[p.Phase]++
		}
	}

	// Load role statuses from the registry.
	if Registry != nil {
		result.agents = Registry.Snapshot()
	}

	// Load metrics from MetricsCalc.
	if MetricsCalc != nil {
		since := time.Now().UTC().AddDate(0, 0, -7)
		metrics, err := MetricsCalc.Calculate(since)
		if err != nil {
			result.err = fmt.Errorf("loading metrics: %w", err)
			return result
		}
		result.metrics = &metricsSnapshot{
			eventCount:      metrics.EventCount,
			projectsCreated: metrics.ProjectsCreated,
			buildsStarted:   metrics.BuildsStarted,
			buildsCompleted: metrics.BuildsCompleted,
			buildsFailed:    metrics.BuildsFailed,
			filesGenerated:  metrics.FilesGenerated,
			testsPassed:     metrics.TestsPassed,
			successRate:     metrics.BuildSuccessRate,
		}
	}

	// Load alerts from AlertEngine.
	if AlertEngine != nil {
		alerts, err := AlertEngine.Evaluate()
		if err != nil {
			result.err = fmt.Errorf("loading alerts: %w", err)
			return result
		}
		result.alerts = make([]alertSnapshot, 0, len(alerts))

		// Sort alerts by severity: high first, then medium, then low.
		sort.Slice(alerts, func(i, j int) bool {
			return severityRank(alerts[i].Severity) < severityRank(alerts[j].Severity)
		})

		for _, a := range alerts {
			result.alerts = append(result.alerts, alertSnapshot{
				severity: a.Severity,
				message:  a.Message,
				time:     a.TriggeredAt.Format("2006-01-02 15:04 UTC"),
			})
		}
	}

	return result
}

func severityRank(s observability.AlertSeverity) int {
	switch s {
	case observability.SeverityHigh:
		return 0
	case observability.SeverityMedium:
		return 1
	case observability.SeverityLow:
		return 2
	default:
		return 3
	}
}

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Interactive TUI dashboard for projects, agents, metrics, and alerts",
	Long: `Launch an interactive terminal dashboard showing project phases, agent
statuses, build metrics, and alerts in a live-updating view.

Navigate between panels with Tab, refresh with r, quit with q.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Controller == nil {
			return fmt.Errorf("project controller not initialized")
		}
		p := tea.NewProgram(newDashboardModel(), tea.WithAltScreen())
		_, err := p.Run()
		return err
	},
}

func init() {
	rootCmd.AddCommand(dashboardCmd)
}
