package tui

import "github.com/charmbracelet/lipgloss"

var (
	AppStyle = lipgloss.NewStyle().Padding(0, 0)

	// Email list
	EmailListItemStyle = lipgloss.NewStyle().PaddingLeft(1).PaddingRight(1)

	NormalBoxCharStyle       = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "245", Dark: "238"})
	NormalSubjectStyle       = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "0", Dark: "15"})
	NormalSecondaryTextStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "240", Dark: "244"})

	SelectedBoxCharStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("99"))
	SelectedSubjectStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("231")).Bold(true)
	SelectedSecondaryTextStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("189"))

	// Items that are done are dimmed.
	DoneSubjectStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("242")).Strikethrough(true)

	EmailListStyle      = lipgloss.NewStyle().Border(lipgloss.NormalBorder(), false, true, false, false).BorderForeground(lipgloss.Color("240")).PaddingRight(1)
	EmailListTitleStyle = lipgloss.NewStyle().Bold(true).MarginBottom(1).MarginLeft(1).Foreground(lipgloss.Color("63"))

	// Preview and full view
	ContentBoxStyle = lipgloss.NewStyle().Border(lipgloss.NormalBorder(), true).Padding(0, 1)
	TitleStyle      = lipgloss.NewStyle().Bold(true).Background(lipgloss.Color("63")).Foreground(lipgloss.Color("255")).Padding(0, 1)
	HeaderKeyStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	HeaderValStyle  = lipgloss.NewStyle()
	WarnStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	KeywordStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("229")).Background(lipgloss.Color("58"))
	ScoreStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))

	// Status bar
	StatusBarSuccessStyle = lipgloss.NewStyle().Background(lipgloss.Color("28")).Foreground(lipgloss.Color("255")).Padding(0, 1)
	StatusBarNormalStyle  = lipgloss.NewStyle().Background(lipgloss.Color("235")).Foreground(lipgloss.Color("250")).Padding(0, 1)
	StatusBarErrorStyle   = lipgloss.NewStyle().Background(lipgloss.Color("196")).Foreground(lipgloss.Color("255")).Padding(0, 1)
)

// Box drawing characters
const (
	BoxTopLeft     = "┌"
	BoxTopRight    = "┐"
	BoxBottomLeft  = "└"
	BoxBottomRight = "┘"
	BoxHorizontal  = "─"
	BoxVertical    = "│"
)
