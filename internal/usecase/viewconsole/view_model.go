package viewconsole

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"eavview/internal/bootstrap/logging"
	"eavview/internal/domain/eav"
	"eavview/internal/usecase/projector"
)

const maxAuditLines = 6
const defaultSampleRows = 5

// Projector is what the console reads and drives.
type Projector interface {
	Status(ctx context.Context) ([]projector.ViewStatus, error)
	Describe() []eav.ViewDescription
	Dialect() eav.Dialect
	Query(ctx context.Context, query string, limit int) (projector.QueryRows, error)
	Apply(ctx context.Context, names []string, force bool) (projector.BatchResult, error)
}

type Options struct {
	SampleRows      int
	RefreshInterval time.Duration
}

type viewModel struct {
	ctx             context.Context
	service         Projector
	sampleRows      int
	refreshInterval time.Duration

	views         []projector.ViewStatus
	selectedIndex int
	detail        viewDetail
	hasDetail     bool
	status        string
	auditLogs     []string
}

type viewDetail struct {
	description eav.ViewDescription
	sample      projector.QueryRows
	sampleErr   error
}

type viewsLoadedMsg struct {
	items []projector.ViewStatus
	err   error
}

type viewDetailLoadedMsg struct {
	view   string
	detail viewDetail
}

type tickMsg struct{}

type actionDoneMsg struct {
	action string
	view   string
	result string
	err    error
}

func NewViewModel(ctx context.Context, service Projector, options Options) tea.Model {
	sampleRows := options.SampleRows
	if sampleRows <= 0 {
		sampleRows = defaultSampleRows
	}
	interval := options.RefreshInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}

	return &viewModel{
		ctx:             ctx,
		service:         service,
		sampleRows:      sampleRows,
		refreshInterval: interval,
		status:          "loading",
	}
}

func (m *viewModel) Init() tea.Cmd {
	return tea.Batch(m.loadViewsCmd(), m.tickCmd())
}

func (m *viewModel) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := message.(type) {
	case tickMsg:
		return m, tea.Batch(m.loadViewsCmd(), m.tickCmd())
	case viewsLoadedMsg:
		if msg.err != nil {
			m.status = "refresh failed: " + msg.err.Error()
			return m, nil
		}
		m.views = msg.items
		if len(m.views) == 0 {
			m.selectedIndex = 0
			m.hasDetail = false
			m.status = "catalog is empty"
			return m, nil
		}
		if m.selectedIndex < 0 {
			m.selectedIndex = 0
		}
		if m.selectedIndex >= len(m.views) {
			m.selectedIndex = len(m.views) - 1
		}
		m.status = fmt.Sprintf("refreshed, %d views", len(m.views))
		return m, m.loadSelectedDetailCmd()
	case viewDetailLoadedMsg:
		if selected, ok := m.selectedView(); !ok || selected.View != msg.view {
			return m, nil
		}
		m.detail = msg.detail
		m.hasDetail = true
		return m, nil
	case actionDoneMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("%s failed: %v", msg.action, msg.err)
		} else {
			m.status = fmt.Sprintf("%s done: %s", msg.action, msg.result)
		}
		m.appendAuditLog(msg.action, msg.view, msg.result, msg.err)
		return m, m.loadViewsCmd()
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "g":
			m.status = "refreshing"
			return m, m.loadViewsCmd()
		case "up", "k":
			if m.selectedIndex > 0 {
				m.selectedIndex--
				return m, m.loadSelectedDetailCmd()
			}
			return m, nil
		case "down", "j":
			if m.selectedIndex < len(m.views)-1 {
				m.selectedIndex++
				return m, m.loadSelectedDetailCmd()
			}
			return m, nil
		case "a":
			return m, m.reprojectCmd()
		}
	}
	return m, nil
}

func (m *viewModel) View() string {
	titleStyle := lipgloss.NewStyle().Bold(true)
	sectionStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	selectedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("229")).Background(lipgloss.Color("62"))
	staleStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("214"))

	var builder strings.Builder
	builder.WriteString(titleStyle.Render("EAV Views"))
	builder.WriteString("\n")
	builder.WriteString(dimStyle.Render(fmt.Sprintf("dialect=%s sample=%d refresh=%s", m.dialectName(), m.sampleRows, m.refreshInterval)))
	builder.WriteString("\n\n")

	builder.WriteString(sectionStyle.Render("Views"))
	builder.WriteString("\n")
	if len(m.views) == 0 {
		builder.WriteString(dimStyle.Render("- no views"))
		builder.WriteString("\n\n")
	} else {
		for index, item := range m.views {
			state := viewState(item)
			line := fmt.Sprintf("%-16s [%s] rows=%d run=%s", item.View, state, item.Rows, firstNonEmpty(shortRunID(item.RunID), "-"))
			switch {
			case index == m.selectedIndex:
				builder.WriteString(selectedStyle.Render("> " + line))
			case state != "current":
				builder.WriteString(staleStyle.Render("  " + line))
			default:
				builder.WriteString("  " + line)
			}
			builder.WriteString("\n")
		}
		builder.WriteString("\n")
	}

	builder.WriteString(sectionStyle.Render("Columns"))
	builder.WriteString("\n")
	if !m.hasDetail {
		builder.WriteString(dimStyle.Render("- no detail"))
		builder.WriteString("\n\n")
	} else {
		if text := strings.TrimSpace(m.detail.description.Description); text != "" {
			builder.WriteString(text + "\n")
		}
		for _, column := range m.detail.description.Columns {
			line := fmt.Sprintf("- %s %s", column.Name, column.Type)
			if column.Description != "" {
				line += "  " + dimStyle.Render(column.Description)
			}
			builder.WriteString(line + "\n")
		}
		builder.WriteString("\n")

		builder.WriteString(sectionStyle.Render("Sample"))
		builder.WriteString("\n")
		switch {
		case m.detail.sampleErr != nil:
			builder.WriteString("- unavailable: " + m.detail.sampleErr.Error() + "\n")
		case len(m.detail.sample.Rows) == 0:
			builder.WriteString(dimStyle.Render("- no rows"))
			builder.WriteString("\n")
		default:
			builder.WriteString(projector.RenderMarkdownTable(m.detail.sample))
			builder.WriteString("\n")
		}
		builder.WriteString("\n")
	}

	builder.WriteString(sectionStyle.Render("Status"))
	builder.WriteString("\n")
	builder.WriteString("- " + firstNonEmpty(m.status, "ready"))
	builder.WriteString("\n\n")

	if len(m.auditLogs) > 0 {
		builder.WriteString(sectionStyle.Render("Actions"))
		builder.WriteString("\n")
		for _, line := range m.auditLogs {
			builder.WriteString("- " + line + "\n")
		}
		builder.WriteString("\n")
	}

	builder.WriteString(dimStyle.Render("Keys: ↑/k ↓/j move  a re-project  g refresh  q quit"))
	return builder.String()
}

func (m *viewModel) tickCmd() tea.Cmd {
	return tea.Tick(m.refreshInterval, func(time.Time) tea.Msg {
		return tickMsg{}
	})
}

func (m *viewModel) loadViewsCmd() tea.Cmd {
	return func() tea.Msg {
		items, err := m.service.Status(m.ctx)
		if err != nil {
			return viewsLoadedMsg{err: err}
		}
		return viewsLoadedMsg{items: items}
	}
}

func (m *viewModel) loadSelectedDetailCmd() tea.Cmd {
	selected, ok := m.selectedView()
	if !ok {
		return nil
	}

	return func() tea.Msg {
		detail := viewDetail{}
		for _, item := range m.service.Describe() {
			if item.Name == selected.View {
				detail.description = item
				break
			}
		}
		if !selected.Installed {
			detail.sampleErr = fmt.Errorf("view %s is not installed", selected.View)
			return viewDetailLoadedMsg{view: selected.View, detail: detail}
		}

		query := "SELECT * FROM " + m.service.Dialect().QuoteIdent(selected.View)
		detail.sample, detail.sampleErr = m.service.Query(m.ctx, query, m.sampleRows)
		return viewDetailLoadedMsg{view: selected.View, detail: detail}
	}
}

func (m *viewModel) reprojectCmd() tea.Cmd {
	selected, ok := m.selectedView()
	if !ok {
		return nil
	}
	m.status = "projecting " + selected.View

	return func() tea.Msg {
		batch, err := m.service.Apply(m.ctx, []string{selected.View}, true)
		if err != nil {
			return actionDoneMsg{action: "project", view: selected.View, err: err}
		}
		result := "-"
		if len(batch.Results) > 0 {
			item := batch.Results[0]
			result = fmt.Sprintf("%s rows=%d", item.Outcome, item.Rows)
		}
		return actionDoneMsg{action: "project", view: selected.View, result: result}
	}
}

func (m *viewModel) selectedView() (projector.ViewStatus, bool) {
	if m.selectedIndex < 0 || m.selectedIndex >= len(m.views) {
		return projector.ViewStatus{}, false
	}
	return m.views[m.selectedIndex], true
}

func (m *viewModel) dialectName() string {
	if m.service == nil {
		return "-"
	}
	return m.service.Dialect().Name()
}

func (m *viewModel) appendAuditLog(action string, view string, result string, opErr error) {
	outcome := strings.TrimSpace(result)
	if opErr != nil {
		outcome = "error: " + opErr.Error()
	}
	if outcome == "" {
		outcome = "ok"
	}

	timestamp := time.Now().UTC().Format(time.RFC3339)
	line := fmt.Sprintf("%s view=%s action=%s result=%s", timestamp, view, action, outcome)
	m.auditLogs = append([]string{line}, m.auditLogs...)
	if len(m.auditLogs) > maxAuditLines {
		m.auditLogs = m.auditLogs[:maxAuditLines]
	}

	logging.Info(m.ctx, "view console action",
		slog.String("view", view),
		slog.String("action", action),
		slog.String("result", outcome),
	)
}

func viewState(item projector.ViewStatus) string {
	switch {
	case !item.Installed:
		return "missing"
	case item.Current:
		return "current"
	case !item.Recorded:
		return "unmanaged"
	default:
		return "stale"
	}
}

func shortRunID(runID string) string {
	if len(runID) > 8 {
		return runID[:8]
	}
	return runID
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}
