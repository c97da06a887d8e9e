package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// truncate shortens s to maxLen runes, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 0 {
		return ""
	}
	if maxLen < 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

// padRight pads s with spaces to width runes.
func padRight(s string, width int) string {
	if n := len([]rune(s)); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}

// formatEmailDate formats the date for display in the email list.
func formatEmailDate(t time.Time, now time.Time) string {
	if t.IsZero() {
		return "???"
	}
	t, now = t.Local(), now.Local()
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	return t.Format("Jan02")
}

// stateMark is the short tag shown next to the sender of a list item.
func stateMark(st itemStatus) string {
	switch st.state {
	case stateLabeled:
		return fmt.Sprintf("[%d]", st.label)
	case stateSkipped:
		return "[skip]"
	case stateIgnored:
		return "[ignored]"
	}
	return ""
}

// formatEmailListItem renders one item as a four line box.
// contentWidth is the width of the text inside the box lines.
func formatEmailListItem(subject, sender string, date time.Time, st itemStatus, isSelected bool, contentWidth int) string {
	var boxCharStyle, subjectStyle, secondaryTextStyle lipgloss.Style
	if isSelected {
		boxCharStyle = SelectedBoxCharStyle
		subjectStyle = SelectedSubjectStyle
		secondaryTextStyle = SelectedSecondaryTextStyle
	} else {
		boxCharStyle = NormalBoxCharStyle
		subjectStyle = NormalSubjectStyle
		secondaryTextStyle = NormalSecondaryTextStyle
	}
	if st.state != statePending && !isSelected {
		subjectStyle = DoneSubjectStyle
	}

	if subject == "" {
		subject = "(No Subject)"
	}
	subjectText := padRight(truncate(subject, contentWidth), contentWidth)

	if sender == "" {
		sender = "(Unknown Sender)"
	}
	tail := formatEmailDate(date, time.Now())
	if mark := stateMark(st); mark != "" {
		tail = mark + " " + tail
	}
	maxSenderLen := contentWidth - len([]rune(tail)) - 1
	var secondary string
	if maxSenderLen < 1 {
		secondary = truncate(tail, contentWidth)
	} else {
		secondary = truncate(sender, maxSenderLen) + " " + tail
	}
	secondaryText := padRight(secondary, contentWidth)

	horizontalBar := strings.Repeat(BoxHorizontal, contentWidth+2)
	lines := []string{
		boxCharStyle.Render(BoxTopLeft + horizontalBar + BoxTopRight),
		boxCharStyle.Render(BoxVertical) + " " + subjectStyle.Render(subjectText) + " " + boxCharStyle.Render(BoxVertical),
		boxCharStyle.Render(BoxVertical) + " " + secondaryTextStyle.Render(secondaryText) + " " + boxCharStyle.Render(BoxVertical),
		boxCharStyle.Render(BoxBottomLeft + horizontalBar + BoxBottomRight),
	}
	return EmailListItemStyle.Render(strings.Join(lines, "\n"))
}
