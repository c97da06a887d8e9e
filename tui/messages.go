package tui

// labelSavedMsg reports that the item at idx was written to the dataset.
type labelSavedMsg struct {
	idx   int
	label int
}

// labelFailedMsg reports that writing the label for the item at idx failed.
type labelFailedMsg struct {
	idx int
	err error
}

// senderIgnoredMsg reports that sender was added to the ignore list.
type senderIgnoredMsg struct {
	sender string
}

// A message to indicate an error occurred, typically from a command.
type ErrorMsg struct{ Err error }

func (e ErrorMsg) Error() string { return e.Err.Error() }

// Message to clear a temporary status message after a timeout.
type clearTempStatusMsg struct{}
