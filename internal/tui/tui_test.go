package tui

import (
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ToughForge/EspoMCP/internal/audit"
	"github.com/ToughForge/EspoMCP/internal/tools"
)

func sampleOps() []tools.OperationSchema {
	return []tools.OperationSchema{
		{
			Name:        "create_account",
			Operation:   tools.Operation{Action: tools.ActionCreate, Entity: "Account"},
			Description: "Create a new Account",
			Params: []tools.Param{
				{Name: "name", Type: tools.TypeString, Description: "Name"},
				{Name: "type", Type: tools.TypeString, Enum: []string{"Customer", "Partner"}},
				{Name: "teamsIds", Type: tools.TypeArray, Items: tools.TypeString},
			},
			Required: []string{"name"},
		},
		{
			Name:        "health_check",
			Description: "Check connectivity",
		},
	}
}

func keyRunes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestRenderSchema(t *testing.T) {
	out := RenderSchema(sampleOps()[0], 80)

	assert.Contains(t, out, "create_account")
	assert.Contains(t, out, "name")
	assert.Contains(t, out, "Customer, Partner")
	assert.Contains(t, out, "array<string>")
}

func TestRenderSchema_NoParams(t *testing.T) {
	out := RenderSchema(sampleOps()[1], 80)
	assert.Contains(t, out, "No parameters")
}

func TestModel_TabSwitching(t *testing.T) {
	m := NewModel(sampleOps(), nil, nil)
	assert.Equal(t, TabTools, m.currentTab)

	next, _ := m.Update(keyRunes("2"))
	m = next.(Model)
	assert.Equal(t, TabAudit, m.currentTab)

	next, _ = m.Update(keyRunes("1"))
	m = next.(Model)
	assert.Equal(t, TabTools, m.currentTab)
}

func TestModel_TabTogglesFocus(t *testing.T) {
	m := NewModel(sampleOps(), nil, nil)

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m = next.(Model)
	assert.True(t, m.focusDetail)
	assert.Equal(t, TabTools, m.currentTab)
}

func TestModel_Quit(t *testing.T) {
	m := NewModel(sampleOps(), nil, nil)

	_, cmd := m.Update(keyRunes("q"))
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
}

func TestModel_WindowSizeShowsSelection(t *testing.T) {
	m := NewModel(sampleOps(), []string{"skipped entity X"}, nil)

	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	m = next.(Model)
	require.True(t, m.ready)

	view := m.View()
	assert.Contains(t, view, "1 warnings")
	assert.Contains(t, view, "create_account")
}

func TestModel_AuditRefresh(t *testing.T) {
	calls := []audit.Call{{
		ID:        "01J0000000000000000000000",
		Caller:    "abcdef123456",
		Tool:      "search_account",
		Duration:  12 * time.Millisecond,
		CreatedAt: time.Now(),
	}}
	stats := audit.Stats{Total: 1, ByTool: []audit.ToolStat{{Tool: "search_account", Calls: 1, AvgMillis: 12}}}
	src := func() ([]audit.Call, audit.Stats, error) { return calls, stats, nil }

	m := NewModel(sampleOps(), nil, src)
	require.NotNil(t, m.Init())

	next, _ := m.Update(m.refreshAudit())
	m = next.(Model)
	next, _ = m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	m = next.(Model)
	m.currentTab = TabAudit

	assert.Contains(t, m.View(), "search_account")
	assert.Equal(t, 1, m.stats.Total)
}

func TestModel_AuditError(t *testing.T) {
	src := func() ([]audit.Call, audit.Stats, error) {
		return nil, audit.Stats{}, errors.New("감사 로그 조회 실패")
	}
	m := NewModel(sampleOps(), nil, src)

	next, _ := m.Update(m.refreshAudit())
	m = next.(Model)
	next, _ = m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	m = next.(Model)
	m.currentTab = TabAudit

	assert.Contains(t, m.View(), "감사 로그 조회 실패")
}

func TestModel_AuditDisabled(t *testing.T) {
	m := NewModel(sampleOps(), nil, nil)
	assert.Nil(t, m.Init())

	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	m = next.(Model)
	m.currentTab = TabAudit
	assert.Contains(t, m.View(), "Audit log disabled")
}
