package review

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/stratamed/policymatch/internal/registry"
	"github.com/stratamed/policymatch/internal/types"
)

type sessionState int

const (
	stateList sessionState = iota
	stateDetail
	stateEdit
)

// draftItem adapts a draft rule to the bubbles list. The source chunk is
// resolved once at startup so the detail view never blocks on the store.
type draftItem struct {
	rule     types.Rule
	chunk    types.Chunk
	hasChunk bool
}

func (i draftItem) Title() string {
	return fmt.Sprintf("%s  [%s]", i.rule.ID, i.rule.Category)
}

func (i draftItem) Description() string {
	return fmt.Sprintf("%.2f  %s", i.rule.Confidence, i.rule.Expression)
}

func (i draftItem) FilterValue() string { return string(i.rule.ID) }

// Model is the interactive review session. One draft at a time is approved,
// rejected, or edited; decisions apply to the registry immediately.
type Model struct {
	ctx      context.Context
	registry *registry.Registry
	logger   *slog.Logger

	state    sessionState
	returnTo sessionState
	list     list.Model
	input    textinput.Model
	detail   draftItem

	status    string
	statusErr bool
	editErr   string
	width     int
	height    int
	quitting  bool
}

// New loads all drafts and their source chunks into a review session.
func New(ctx context.Context, reg *registry.Registry, logger *slog.Logger) (Model, error) {
	if reg == nil {
		return Model{}, fmt.Errorf("registry cannot be nil")
	}
	if logger == nil {
		return Model{}, fmt.Errorf("logger cannot be nil")
	}

	drafts, err := reg.List(ctx, registry.Filter{Statuses: []types.RuleStatus{types.StatusDraft}})
	if err != nil {
		return Model{}, fmt.Errorf("review: list drafts: %w", err)
	}

	items := make([]list.Item, 0, len(drafts))
	for _, rule := range drafts {
		item := draftItem{rule: rule}
		if rule.SourceChunkID != "" {
			if chunk, err := reg.GetChunk(ctx, rule.SourceChunkID); err == nil {
				item.chunk = chunk
				item.hasChunk = true
			}
		}
		items = append(items, item)
	}

	l := list.New(items, list.NewDefaultDelegate(), 0, 0)
	l.Title = "Draft rules awaiting review"
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	l.Styles.Title = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#FAFAFA")).
		Background(lipgloss.Color("#7D56F4")).
		Padding(0, 1)

	ti := textinput.New()
	ti.Placeholder = "rule expression"
	ti.CharLimit = types.MaxExpressionLength
	ti.Width = 72
	ti.Prompt = "> "

	return Model{
		ctx:      ctx,
		registry: reg,
		logger:   logger.With("component", "review"),
		list:     l,
		input:    ti,
	}, nil
}

func (m Model) Init() tea.Cmd { return nil }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.list.SetSize(msg.Width-2, msg.Height-6)
		return m, nil

	case tea.KeyMsg:
		switch m.state {
		case stateList:
			return m.updateList(msg)
		case stateDetail:
			return m.updateDetail(msg)
		case stateEdit:
			return m.updateEdit(msg)
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		m.quitting = true
		return m, tea.Quit

	case "a":
		return m.resolveSelected(true), nil

	case "r":
		return m.resolveSelected(false), nil

	case "e":
		return m.startEdit(stateList)

	case "enter", "s":
		item, ok := m.selected()
		if !ok {
			return m.noDrafts(), nil
		}
		m.detail = item
		m.state = stateDetail
		return m, nil
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) updateDetail(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "esc", "q":
		m.state = stateList
		return m, nil

	case "a":
		m.state = stateList
		return m.resolveSelected(true), nil

	case "r":
		m.state = stateList
		return m.resolveSelected(false), nil

	case "e":
		return m.startEdit(stateDetail)
	}
	return m, nil
}

func (m Model) updateEdit(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "esc":
		m.editErr = ""
		m.input.Blur()
		m.state = m.returnTo
		return m, nil

	case "enter":
		return m.submitEdit()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// resolveSelected approves or rejects the highlighted draft and drops it
// from the list. Registry failures surface in the status line and keep the
// draft in place.
func (m Model) resolveSelected(approve bool) Model {
	item, ok := m.selected()
	if !ok {
		return m.noDrafts()
	}

	var err error
	verb := "rejected"
	if approve {
		verb = "approved"
		_, err = m.registry.Approve(m.ctx, item.rule.ID)
	} else {
		_, err = m.registry.Reject(m.ctx, item.rule.ID)
	}
	if err != nil {
		m.status = err.Error()
		m.statusErr = true
		return m
	}

	m.list.RemoveItem(m.list.Index())
	m.status = fmt.Sprintf("%s %s", verb, item.rule.ID)
	m.statusErr = false
	m.logger.Info("draft resolved", "rule_id", item.rule.ID, "resolution", verb)
	return m
}

func (m Model) startEdit(from sessionState) (tea.Model, tea.Cmd) {
	item, ok := m.selected()
	if !ok {
		return m.noDrafts(), nil
	}
	m.detail = item
	m.returnTo = from
	m.state = stateEdit
	m.editErr = ""
	m.input.SetValue(item.rule.Expression)
	m.input.CursorEnd()
	return m, m.input.Focus()
}

// submitEdit recompiles the entered expression through the registry. A
// rejected expression keeps the editor open with the reason inline.
func (m Model) submitEdit() (tea.Model, tea.Cmd) {
	expression := strings.TrimSpace(m.input.Value())
	if expression == "" {
		m.editErr = "expression cannot be empty"
		return m, nil
	}

	updated, err := m.registry.Edit(m.ctx, m.detail.rule.ID, expression)
	if err != nil {
		m.editErr = err.Error()
		return m, nil
	}

	m.detail.rule = updated
	if idx := m.list.Index(); idx >= 0 {
		m.list.SetItem(idx, m.detail)
	}
	m.editErr = ""
	m.input.Blur()
	m.state = m.returnTo
	m.status = fmt.Sprintf("edited %s to v%d", updated.ID, updated.Version)
	m.statusErr = false
	return m, nil
}

func (m Model) selected() (draftItem, bool) {
	item, ok := m.list.SelectedItem().(draftItem)
	return item, ok
}

func (m Model) noDrafts() Model {
	m.status = "no drafts to review"
	m.statusErr = false
	return m
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	switch m.state {
	case stateDetail:
		return m.detailView()
	case stateEdit:
		return m.editView()
	default:
		return m.listView()
	}
}

func (m Model) listView() string {
	var b strings.Builder
	b.WriteString(m.list.View())
	b.WriteString("\n")
	b.WriteString(m.statusLine())
	b.WriteString(helpStyle().Render("a approve • r reject • e edit • enter details • q quit"))
	return b.String()
}

func (m Model) detailView() string {
	label := lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Width(12)
	title := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))

	rule := m.detail.rule
	var b strings.Builder
	b.WriteString(title.Render(fmt.Sprintf("Draft %s", rule.ID)))
	b.WriteString("\n\n")
	b.WriteString(label.Render("Category") + string(rule.Category) + "\n")
	b.WriteString(label.Render("Version") + fmt.Sprintf("%d", rule.Version) + "\n")
	b.WriteString(label.Render("Confidence") + fmt.Sprintf("%.2f", rule.Confidence) + "\n")
	b.WriteString(label.Render("Expression") + rule.Expression + "\n\n")

	if m.detail.hasChunk {
		source := lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("241")).
			Padding(0, 1).
			Width(76)
		header := m.detail.chunk.Marker
		if header == "" {
			header = string(m.detail.chunk.ID)
		}
		b.WriteString(label.Render("Source") + header + "\n")
		b.WriteString(source.Render(m.detail.chunk.Text))
		b.WriteString("\n")
	} else {
		b.WriteString(label.Render("Source") + "chunk unavailable\n")
	}

	b.WriteString("\n")
	b.WriteString(helpStyle().Render("a approve • r reject • e edit • esc back"))
	return b.String()
}

func (m Model) editView() string {
	title := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))

	var b strings.Builder
	b.WriteString(title.Render(fmt.Sprintf("Edit %s", m.detail.rule.ID)))
	b.WriteString("\n\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")
	if m.editErr != "" {
		errStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87"))
		b.WriteString(errStyle.Render(m.editErr))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(helpStyle().Render("enter save • esc cancel"))
	return b.String()
}

func (m Model) statusLine() string {
	if m.status == "" {
		return "\n"
	}
	style := lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575"))
	if m.statusErr {
		style = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87"))
	}
	return style.Render(m.status) + "\n"
}

func helpStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
}

// Run drives an interactive review session to completion. It returns
// immediately when there is nothing to review.
func Run(ctx context.Context, reg *registry.Registry, logger *slog.Logger) error {
	m, err := New(ctx, reg, logger)
	if err != nil {
		return err
	}
	if len(m.list.Items()) == 0 {
		fmt.Println("no draft rules to review")
		return nil
	}

	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("review: %w", err)
	}
	return nil
}
