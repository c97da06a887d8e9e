package tui

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/bassamadnan/mailsort/dataset"
)

// saveLabelCmd appends the record off the UI goroutine.
func saveLabelCmd(ctx context.Context, w Labeler, idx int, r dataset.Record) tea.Cmd {
	return func() tea.Msg {
		if err := w.Append(ctx, r); err != nil {
			return labelFailedMsg{idx: idx, err: fmt.Errorf("saving label for %s: %w", r.MessageID, err)}
		}
		return labelSavedMsg{idx: idx, label: r.Label}
	}
}

func ignoreSenderCmd(f SenderIgnorer, sender string) tea.Cmd {
	return func() tea.Msg {
		if err := f.AddIgnoreSender(sender); err != nil {
			return ErrorMsg{Err: fmt.Errorf("ignoring %s: %w", sender, err)}
		}
		return senderIgnoredMsg{sender: sender}
	}
}

func clearStatusCmd(after time.Duration) tea.Cmd {
	return tea.Tick(after, func(time.Time) tea.Msg {
		return clearTempStatusMsg{}
	})
}
