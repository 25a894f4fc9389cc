// Package tui is the interactive tool browser.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ToughForge/EspoMCP/internal/audit"
	"github.com/ToughForge/EspoMCP/internal/tools"
)

// Tab represents a browser tab
type Tab int

const (
	TabTools Tab = iota
	TabAudit
)

const tabCount = 2

func (t Tab) String() string {
	return []string{"Tools", "Audit"}[t]
}

// AuditSource loads recent calls and totals. A nil source hides the
// audit data.
type AuditSource func() ([]audit.Call, audit.Stats, error)

type toolItem struct {
	schema tools.OperationSchema
}

func (i toolItem) Title() string       { return i.schema.Name }
func (i toolItem) Description() string { return i.schema.Description }
func (i toolItem) FilterValue() string { return i.schema.Name }

// Model is the browser model
type Model struct {
	// State
	currentTab  Tab
	width       int
	height      int
	ready       bool
	focusDetail bool
	lastRefresh time.Time
	err         error

	// Data
	ops      []tools.OperationSchema
	warnings []string
	source   AuditSource
	calls    []audit.Call
	stats    audit.Stats

	// Components
	list   list.Model
	detail viewport.Model
}

// tickMsg is sent periodically to refresh audit data
type tickMsg time.Time

// auditMsg carries refreshed audit data
type auditMsg struct {
	calls []audit.Call
	stats audit.Stats
	err   error
}

// NewModel creates a browser over ops.
func NewModel(ops []tools.OperationSchema, warnings []string, source AuditSource) Model {
	items := make([]list.Item, len(ops))
	for i, op := range ops {
		items[i] = toolItem{schema: op}
	}

	delegate := list.NewDefaultDelegate()
	delegate.Styles.SelectedTitle = delegate.Styles.SelectedTitle.Foreground(primaryColor).BorderForeground(primaryColor)
	delegate.Styles.SelectedDesc = delegate.Styles.SelectedDesc.BorderForeground(primaryColor)

	l := list.New(items, delegate, 0, 0)
	l.Title = fmt.Sprintf("%d tools", len(ops))
	l.Styles.Title = titleStyle
	l.SetShowHelp(false)

	return Model{
		currentTab: TabTools,
		ops:        ops,
		warnings:   warnings,
		source:     source,
		list:       l,
		detail:     viewport.New(0, 0),
	}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	if m.source == nil {
		return nil
	}
	return tea.Batch(m.refreshAudit, tickEvery(5*time.Second))
}

// tickEvery returns a command that ticks every duration
func tickEvery(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) refreshAudit() tea.Msg {
	if m.source == nil {
		return auditMsg{}
	}
	calls, stats, err := m.source()
	return auditMsg{calls: calls, stats: stats, err: err}
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.list.FilterState() == list.Filtering {
			return m.updateList(msg)
		}
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "1":
			m.currentTab = TabTools
			return m, nil
		case "2":
			m.currentTab = TabAudit
			return m, nil
		case "r":
			return m, m.refreshAudit
		case "tab":
			if m.currentTab == TabTools {
				m.focusDetail = !m.focusDetail
			} else {
				m.currentTab = Tab((int(m.currentTab) + 1) % tabCount)
			}
			return m, nil
		}
		if m.currentTab == TabTools {
			if m.focusDetail {
				var cmd tea.Cmd
				m.detail, cmd = m.detail.Update(msg)
				return m, cmd
			}
			return m.updateList(msg)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.resize()
		m.syncDetail()

	case tickMsg:
		return m, tea.Batch(m.refreshAudit, tickEvery(5*time.Second))

	case auditMsg:
		m.calls = msg.calls
		m.stats = msg.stats
		m.err = msg.err
		m.lastRefresh = time.Now()
	}

	return m, nil
}

func (m Model) updateList(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	m.syncDetail()
	return m, cmd
}

func (m *Model) resize() {
	body := m.height - 6
	if body < 5 {
		body = 5
	}
	listWidth := m.width * 2 / 5
	m.list.SetSize(listWidth-4, body-2)
	m.detail.Width = m.width - listWidth - 6
	m.detail.Height = body - 2
}

func (m *Model) syncDetail() {
	item, ok := m.list.SelectedItem().(toolItem)
	if !ok {
		m.detail.SetContent(statusMutedStyle.Render("No tool selected"))
		return
	}
	m.detail.SetContent(RenderSchema(item.schema, m.detail.Width))
	m.detail.GotoTop()
}

// View renders the UI
func (m Model) View() string {
	if !m.ready {
		return "\n  Loading..."
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.renderTabs())
	b.WriteString("\n")

	switch m.currentTab {
	case TabTools:
		b.WriteString(m.renderToolsTab())
	case TabAudit:
		b.WriteString(m.renderAuditTab())
	}

	b.WriteString("\n")
	b.WriteString(m.renderFooter())
	return b.String()
}

func (m Model) renderHeader() string {
	title := "espo-mcp tool browser"
	right := fmt.Sprintf("%d tools", len(m.ops))
	if len(m.warnings) > 0 {
		right += fmt.Sprintf(" · %d warnings", len(m.warnings))
	}

	headerWidth := m.width
	if headerWidth < 60 {
		headerWidth = 60
	}

	left := lipgloss.NewStyle().Bold(true).Render(title)
	r := lipgloss.NewStyle().Foreground(mutedColor).Render(right)

	gap := headerWidth - lipgloss.Width(left) - lipgloss.Width(r) - 4
	if gap < 0 {
		gap = 0
	}

	return lipgloss.NewStyle().
		Background(lipgloss.Color("#2D3748")).
		Foreground(lipgloss.Color("#FFFFFF")).
		Padding(0, 1).
		Width(headerWidth).
		Render(left + strings.Repeat(" ", gap) + r)
}

func (m Model) renderTabs() string {
	var tabs []string
	for i := 0; i < tabCount; i++ {
		tab := Tab(i)
		style := tabStyle
		if tab == m.currentTab {
			style = activeTabStyle
		}
		tabs = append(tabs, style.Render(fmt.Sprintf("[%d]%s", i+1, tab.String())))
	}
	return strings.Join(tabs, " ")
}

func (m Model) renderFooter() string {
	help := "  [1-2] Switch tabs  [Tab] Focus schema  [/] Filter  [r] Refresh  [q] Quit"
	return helpStyle.Render(help)
}

func (m Model) renderToolsTab() string {
	listStyle, detailStyle := listPanelStyle, detailPanelInactiveStyle
	if m.focusDetail {
		listStyle, detailStyle = listPanelInactiveStyle, detailPanelStyle
	}
	return lipgloss.JoinHorizontal(lipgloss.Top,
		listStyle.Render(m.list.View()),
		detailStyle.Render(m.detail.View()),
	)
}

func (m Model) renderAuditTab() string {
	var b strings.Builder

	if m.source == nil {
		b.WriteString(statusMutedStyle.Render("  Audit log disabled (audit.driver is empty)"))
		return b.String()
	}
	if m.err != nil {
		b.WriteString(statusErrorStyle.Render("  " + m.err.Error()))
		return b.String()
	}

	summary := Box("Calls", []string{
		fmt.Sprintf("Total:  %d", m.stats.Total),
		fmt.Sprintf("Errors: %s", statusErrorStyle.Render(fmt.Sprintf("%d", m.stats.Errors))),
		statusMutedStyle.Render("Refreshed " + m.lastRefresh.Format("15:04:05")),
	}, 30)

	var top []string
	for i, ts := range m.stats.ByTool {
		if i == 5 {
			break
		}
		top = append(top, fmt.Sprintf("%-28s %4d  %s", ts.Tool, ts.Calls, statusMutedStyle.Render(fmt.Sprintf("%.0fms", ts.AvgMillis))))
	}
	if len(top) == 0 {
		top = []string{statusMutedStyle.Render("No calls yet")}
	}
	busiest := Box("Busiest tools", top, 48)

	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, summary, "  ", busiest))
	b.WriteString("\n\n")

	b.WriteString(titleStyle.Render("Recent calls"))
	b.WriteString("\n")
	if len(m.calls) == 0 {
		b.WriteString(statusMutedStyle.Render("  No calls"))
		return b.String()
	}
	for _, c := range m.calls {
		status := "ok"
		if c.IsError {
			status = "error"
		}
		b.WriteString(fmt.Sprintf("  %s %s %-28s %s\n",
			StatusIcon(status),
			statusMutedStyle.Render(c.CreatedAt.Format("15:04:05")),
			c.Tool,
			statusMutedStyle.Render(fmt.Sprintf("%s · %s", c.Duration, shortCaller(c.Caller)))))
	}
	return b.String()
}

func shortCaller(caller string) string {
	if len(caller) > 8 {
		return caller[:8]
	}
	return caller
}

// RenderSchema renders one tool's parameters for the detail panel.
func RenderSchema(op tools.OperationSchema, width int) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(op.Name))
	b.WriteString("\n")
	desc := op.Description
	if width > 10 {
		desc = lipgloss.NewStyle().Width(width - 2).Render(desc)
	}
	b.WriteString(subtitleStyle.Render(desc))
	b.WriteString("\n\n")

	if len(op.Params) == 0 {
		b.WriteString(statusMutedStyle.Render("No parameters"))
		return b.String()
	}

	required := make(map[string]bool, len(op.Required))
	for _, r := range op.Required {
		required[r] = true
	}

	for _, p := range op.Params {
		status := "optional"
		if required[p.Name] {
			status = "required"
		}
		typ := string(p.Type)
		if p.Type == tools.TypeArray {
			typ = "array<" + string(p.Items) + ">"
		}
		b.WriteString(fmt.Sprintf("%s %s %s\n", StatusIcon(status), paramNameStyle.Render(p.Name), statusMutedStyle.Render(typ)))
		if p.Description != "" {
			b.WriteString("    " + p.Description + "\n")
		}
		if len(p.Enum) > 0 {
			b.WriteString("    " + Label("one of", strings.Join(p.Enum, ", ")) + "\n")
		}
		if p.Default != nil {
			b.WriteString("    " + Label("default", fmt.Sprint(p.Default)) + "\n")
		}
	}
	return b.String()
}

// Run starts the browser
func Run(ops []tools.OperationSchema, warnings []string, source AuditSource) error {
	p := tea.NewProgram(
		NewModel(ops, warnings, source),
		tea.WithAltScreen(),
	)

	_, err := p.Run()
	return err
}
