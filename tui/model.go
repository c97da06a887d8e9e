// Package tui is the labeling screen: a list of parsed emails, a preview
// with their keywords and a status bar with the run summary.
package tui

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"

	"github.com/bassamadnan/mailsort/dataset"
	"github.com/bassamadnan/mailsort/keywords"
	"github.com/bassamadnan/mailsort/pipeline"
)

type viewState int

const (
	viewDashboard viewState = iota
	viewFocusedEmail
)

const (
	emailListItemHeight = 4
	minListPaneWidth    = 30
	minPreviewPaneWidth = 40
	tempStatusDuration  = 3 * time.Second
)

type itemState int

const (
	statePending itemState = iota
	stateLabeled
	stateSkipped
	stateIgnored
)

type itemStatus struct {
	state itemState
	label int
}

// Labeler stores labeled records. dataset.Writer satisfies it.
type Labeler interface {
	Append(ctx context.Context, r dataset.Record) error
}

// SenderIgnorer adds a sender to the ignore rules. config.Manager
// satisfies it.
type SenderIgnorer interface {
	AddIgnoreSender(sender string) error
}

type Config struct {
	Items     []pipeline.Item
	Summary   pipeline.Summary
	Dataset   Labeler
	Filters   SenderIgnorer
	Highlight bool
	Keys      *KeyMap
	Logger    *log.Logger
}

type Model struct {
	ctx       context.Context
	items     []pipeline.Item
	status    []itemStatus
	saving    []bool // label write in flight
	summary   pipeline.Summary
	dataset   Labeler
	filters   SenderIgnorer
	highlight bool
	keys      *KeyMap
	logger    *log.Logger

	selectedIdx     int
	viewportTopLine int
	preview         viewport.Model
	currentView     viewState

	width, height int
	statusBarText string
	statusIsError bool
	statusIsTemp  bool

	counts  [dataset.MaxLabel + 1]int
	skipped int
	ignored int
}

func NewModel(ctx context.Context, cfg Config) Model {
	vp := viewport.New(0, 0)
	vp.Style = lipgloss.NewStyle()

	m := Model{
		ctx:       ctx,
		items:     cfg.Items,
		status:    make([]itemStatus, len(cfg.Items)),
		saving:    make([]bool, len(cfg.Items)),
		summary:   cfg.Summary,
		dataset:   cfg.Dataset,
		filters:   cfg.Filters,
		highlight: cfg.Highlight,
		keys:      cfg.Keys,
		logger:    cfg.Logger,
		preview:   vp,
	}
	if m.keys == nil {
		m.keys = DefaultKeyMap()
	}
	if m.logger == nil {
		m.logger = log.New(io.Discard)
	}
	m.refreshPreview()
	m.setStandardStatus()
	return m
}

// Run shows the labeling screen until the user quits or ctx ends, and
// returns the final model.
func Run(ctx context.Context, cfg Config) (Model, error) {
	p := tea.NewProgram(NewModel(ctx, cfg), tea.WithAltScreen(), tea.WithContext(ctx))
	final, err := p.Run()
	m, _ := final.(Model)
	return m, err
}

// Tally returns how many messages were labeled, skipped and ignored.
func (m Model) Tally() (labeled, skipped, ignored int) {
	for _, n := range m.counts {
		labeled += n
	}
	return labeled, m.skipped, m.ignored
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()
		m.ensureSelectedVisible()
		m.refreshPreview()

	case tea.KeyMsg:
		return m.handleKey(msg)

	case labelSavedMsg:
		if msg.idx < 0 || msg.idx >= len(m.items) {
			break
		}
		m.saving[msg.idx] = false
		m.status[msg.idx] = itemStatus{state: stateLabeled, label: msg.label}
		m.counts[msg.label]++
		e := m.items[msg.idx].Email
		m.logger.Info("labeled message", "id", e.ID, "label", msg.label)
		if msg.idx == m.selectedIdx {
			m.advance()
		}
		m.showTemporaryStatus(fmt.Sprintf("Labeled %q as %d", truncate(e.Subject, 30), msg.label), &cmds)

	case senderIgnoredMsg:
		n := 0
		for i, it := range m.items {
			if m.status[i].state == statePending && !m.saving[i] && strings.EqualFold(it.Email.Sender, msg.sender) {
				m.status[i] = itemStatus{state: stateIgnored}
				n++
			}
		}
		m.ignored += n
		m.logger.Info("ignoring sender", "sender", msg.sender, "messages", n)
		m.advance()
		m.showTemporaryStatus(fmt.Sprintf("Ignoring %s (%d messages)", msg.sender, n), &cmds)

	case labelFailedMsg:
		if msg.idx >= 0 && msg.idx < len(m.saving) {
			m.saving[msg.idx] = false
		}
		m.logger.Error("labeling screen", "err", msg.err)
		m.updateStatusError(fmt.Sprintf("Error: %v", msg.err))

	case ErrorMsg:
		m.logger.Error("labeling screen", "err", msg.Err)
		m.updateStatusError(fmt.Sprintf("Error: %v", msg.Err))

	case clearTempStatusMsg:
		if m.statusIsTemp {
			m.statusIsTemp = false
			m.setStandardStatus()
		}
	}

	return m, tea.Batch(cmds...)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.updateStatusBar("Quitting...")
		return m, tea.Quit

	case key.Matches(msg, m.keys.Label):
		item, ok := m.selected()
		if !ok {
			return m, nil
		}
		if m.dataset == nil {
			m.updateStatusError("No dataset open")
			return m, nil
		}
		if m.saving[m.selectedIdx] || m.status[m.selectedIdx].state != statePending {
			return m, nil
		}
		label := int(msg.String()[0] - '0')
		r := dataset.NewRecord(item.Email, keywords.Phrases(item.Keywords), label)
		m.saving[m.selectedIdx] = true
		return m, saveLabelCmd(m.ctx, m.dataset, m.selectedIdx, r)

	case key.Matches(msg, m.keys.Skip):
		if _, ok := m.selected(); ok && m.status[m.selectedIdx].state == statePending {
			m.status[m.selectedIdx] = itemStatus{state: stateSkipped}
			m.skipped++
			m.advance()
			m.setStandardStatus()
		}
		return m, nil

	case key.Matches(msg, m.keys.Ignore):
		item, ok := m.selected()
		if !ok {
			return m, nil
		}
		if m.filters == nil || item.Email.Sender == "" {
			m.updateStatusError("Cannot ignore this sender")
			return m, nil
		}
		return m, ignoreSenderCmd(m.filters, item.Email.Sender)

	case key.Matches(msg, m.keys.Open):
		if m.currentView == viewFocusedEmail {
			m.currentView = viewDashboard
		} else if _, ok := m.selected(); ok {
			m.currentView = viewFocusedEmail
		}
		m.layout()
		m.refreshPreview()
		m.setStandardStatus()
		return m, nil

	case key.Matches(msg, m.keys.Back):
		if m.currentView == viewFocusedEmail {
			m.currentView = viewDashboard
			m.layout()
			m.refreshPreview()
			m.setStandardStatus()
		}
		return m, nil
	}

	if m.currentView == viewFocusedEmail {
		var cmd tea.Cmd
		m.preview, cmd = m.preview.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	switch {
	case key.Matches(msg, m.keys.Up):
		if m.selectedIdx > 0 {
			m.selectedIdx--
			m.ensureSelectedVisible()
			m.refreshPreview()
		}
	case key.Matches(msg, m.keys.Down):
		if m.selectedIdx < len(m.items)-1 {
			m.selectedIdx++
			m.ensureSelectedVisible()
			m.refreshPreview()
		}
	case key.Matches(msg, m.keys.ScrollUp):
		m.preview, cmd = m.preview.Update(tea.KeyMsg{Type: tea.KeyPgUp})
	case key.Matches(msg, m.keys.ScrollDown):
		m.preview, cmd = m.preview.Update(tea.KeyMsg{Type: tea.KeyPgDown})
	}
	m.setStandardStatus()
	return m, cmd
}

func (m Model) selected() (pipeline.Item, bool) {
	if m.selectedIdx < 0 || m.selectedIdx >= len(m.items) {
		return pipeline.Item{}, false
	}
	return m.items[m.selectedIdx], true
}

// advance moves the selection to the next pending item, wrapping around.
// It stays put when nothing is pending.
func (m *Model) advance() {
	n := len(m.items)
	for step := 1; step <= n; step++ {
		i := (m.selectedIdx + step) % n
		if m.status[i].state == statePending {
			m.selectedIdx = i
			break
		}
	}
	m.ensureSelectedVisible()
	m.refreshPreview()
}

func (m *Model) showTemporaryStatus(text string, cmds *[]tea.Cmd) {
	m.statusBarText = text
	m.statusIsError = false
	m.statusIsTemp = true
	*cmds = append(*cmds, clearStatusCmd(tempStatusDuration))
}

func (m *Model) updateStatusBar(text string) {
	m.statusBarText = text
	m.statusIsError = false
	m.statusIsTemp = false
}

func (m *Model) updateStatusError(text string) {
	m.statusBarText = text
	m.statusIsError = true
	m.statusIsTemp = false
}

func (m *Model) setStandardStatus() {
	if m.statusIsTemp {
		return
	}
	labeled, skipped, ignored := m.Tally()
	pending := len(m.items) - labeled - skipped - ignored

	statusMsg := fmt.Sprintf(" %s | labeled %d, skipped %d, ignored %d, left %d ",
		m.summary, labeled, skipped, ignored, pending)

	var keyHints string
	switch m.currentView {
	case viewDashboard:
		keyHints = strings.Join([]string{
			hint(m.keys.Quit), hint(m.keys.Down), hint(m.keys.Label),
			hint(m.keys.Skip), hint(m.keys.Ignore), hint(m.keys.Open),
		}, " ")
	case viewFocusedEmail:
		keyHints = strings.Join([]string{hint(m.keys.Quit), hint(m.keys.Label), hint(m.keys.Back)}, " ")
	}
	m.updateStatusBar(statusMsg + "| " + keyHints)
}

func (m Model) listPaneWidth() int {
	w := int(float64(m.width) * 0.35)
	if w < minListPaneWidth {
		w = minListPaneWidth
	}
	if m.width >= minListPaneWidth+minPreviewPaneWidth && w > m.width-minPreviewPaneWidth {
		w = m.width - minPreviewPaneWidth
	}
	if w > m.width {
		w = m.width
	}
	return w
}

// layout sizes the preview viewport for the current view.
func (m *Model) layout() {
	contentHeight := max(m.height-1, 0)
	paneWidth := m.width
	if m.currentView == viewDashboard {
		paneWidth -= m.listPaneWidth()
	}
	// border, padding and the title line
	m.preview.Width = max(paneWidth-4, 0)
	m.preview.Height = max(contentHeight-3, 0)
}

func (m Model) getNumItemsThatFitInList() int {
	titleHeight := lipgloss.Height(EmailListTitleStyle.Render(" "))
	h := m.height - 1 - titleHeight
	if h < 0 {
		return 0
	}
	return h / emailListItemHeight
}

func (m *Model) ensureSelectedVisible() {
	if len(m.items) == 0 {
		m.viewportTopLine = 0
		return
	}

	itemsThatFit := m.getNumItemsThatFitInList()
	if itemsThatFit <= 0 {
		m.viewportTopLine = m.selectedIdx
		return
	}

	if m.selectedIdx < m.viewportTopLine {
		m.viewportTopLine = m.selectedIdx
	} else if m.selectedIdx >= m.viewportTopLine+itemsThatFit {
		m.viewportTopLine = m.selectedIdx - itemsThatFit + 1
	}

	maxTop := max(len(m.items)-itemsThatFit, 0)
	m.viewportTopLine = min(max(m.viewportTopLine, 0), maxTop)
}

func (m *Model) refreshPreview() {
	m.preview.SetContent(m.renderPreviewContent(m.preview.Width))
	m.preview.GotoTop()
}

func (m Model) renderPreviewContent(width int) string {
	item, ok := m.selected()
	if !ok {
		return "\nNo messages to label."
	}
	e := item.Email

	var b strings.Builder
	header := func(k, v string) {
		fmt.Fprintf(&b, "%s %s\n", HeaderKeyStyle.Render(k), HeaderValStyle.Render(v))
	}
	header("From:", e.Sender)
	if !item.Verified() {
		b.WriteString(WarnStyle.Render("  unverifiable sender address") + "\n")
	}
	header("To:", e.Receiver)
	dateStr := e.Date
	if t, err := e.ParsedDate(); err == nil {
		dateStr = t.Local().Format(time.RFC1123)
	}
	header("Date:", dateStr)
	header("Subject:", e.Subject)
	if mark := stateMark(m.status[m.selectedIdx]); mark != "" {
		header("Status:", mark)
	}
	if len(item.Keywords) > 0 {
		parts := make([]string, len(item.Keywords))
		for i, kw := range item.Keywords {
			parts[i] = KeywordStyle.Render(kw.Phrase) + ScoreStyle.Render(fmt.Sprintf(" %.2f", kw.Score))
		}
		header("Keywords:", strings.Join(parts, "  "))
	}
	b.WriteString(strings.Repeat(BoxHorizontal, max(width/2, 1)) + "\n\n")

	body := e.Text()
	if m.highlight {
		body = keywords.Highlight(body, item.Keywords, func(s string) string { return KeywordStyle.Render(s) })
	}
	if width > 0 {
		body = lipgloss.NewStyle().Width(width).Render(body)
	}
	b.WriteString(body)
	return b.String()
}

func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing terminal size..."
	}

	contentHeight := max(m.height-1, 0)
	var mainUIView string
	switch m.currentView {
	case viewDashboard:
		listWidth := m.listPaneWidth()
		mainUIView = lipgloss.JoinHorizontal(lipgloss.Top,
			m.renderEmailList(listWidth, contentHeight),
			m.renderPreviewPane("Preview", m.width-listWidth, contentHeight),
		)
	case viewFocusedEmail:
		mainUIView = m.renderPreviewPane("Full View", m.width, contentHeight)
	}

	return AppStyle.Render(lipgloss.JoinVertical(lipgloss.Left, mainUIView, m.renderStatusBar()))
}

func (m Model) renderEmailList(paneWidth, paneHeight int) string {
	labeled, skipped, ignored := m.Tally()
	title := EmailListTitleStyle.Render(fmt.Sprintf("Emails (%d/%d done)", labeled+skipped+ignored, len(m.items)))

	// item padding, box edges and the list border
	contentWidth := max(paneWidth-8, 10)

	start := min(max(m.viewportTopLine, 0), len(m.items))
	end := min(start+m.getNumItemsThatFitInList(), len(m.items))

	rendered := make([]string, 0, end-start)
	for i := start; i < end; i++ {
		e := m.items[i].Email
		date, _ := e.ParsedDate()
		rendered = append(rendered, formatEmailListItem(e.Subject, e.Sender, date, m.status[i], i == m.selectedIdx, contentWidth))
	}

	list := lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(rendered, "\n"))
	return EmailListStyle.Width(max(paneWidth-1, 0)).Height(paneHeight).MaxHeight(paneHeight).Render(list)
}

func (m Model) renderPreviewPane(label string, paneWidth, paneHeight int) string {
	if paneWidth <= 4 || paneHeight <= 2 {
		return ""
	}
	titleText := label
	if item, ok := m.selected(); ok {
		titleText = fmt.Sprintf("%s: %s", label, truncate(item.Email.Subject, paneWidth-len(label)-8))
	}
	content := lipgloss.JoinVertical(lipgloss.Top, TitleStyle.Render(titleText), m.preview.View())
	return ContentBoxStyle.Width(paneWidth - 2).Height(paneHeight - 2).MaxHeight(paneHeight).Render(content)
}

func (m Model) renderStatusBar() string {
	styleToUse := StatusBarNormalStyle
	if m.statusIsError {
		styleToUse = StatusBarErrorStyle
	} else if m.statusIsTemp {
		styleToUse = StatusBarSuccessStyle
	}
	return styleToUse.Width(m.width).Render(truncate(m.statusBarText, max(m.width-2, 0)))
}
