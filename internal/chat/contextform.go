package chat

import "strings"

// ContextForm is the key/text form that adds retrievable context.
type ContextForm struct {
	Key  string
	Text string

	inFlight bool
	notify   Notifier
}

func NewContextForm(notify Notifier) *ContextForm {
	return &ContextForm{notify: orNop(notify)}
}

func (f *ContextForm) CanSubmit() bool {
	return !f.inFlight && strings.TrimSpace(f.Key) != "" && strings.TrimSpace(f.Text) != ""
}

func (f *ContextForm) InFlight() bool { return f.inFlight }

// Begin returns the trimmed values to submit. It reports false, changing
// nothing, when the form cannot be submitted.
func (f *ContextForm) Begin() (title, text string, ok bool) {
	if !f.CanSubmit() {
		return "", "", false
	}
	f.inFlight = true
	return strings.TrimSpace(f.Key), strings.TrimSpace(f.Text), true
}

// Finish settles a submission. Fields are kept on failure for correction.
func (f *ContextForm) Finish(err error) {
	f.inFlight = false
	if err != nil {
		f.notify.Notify(Notice{Level: LevelError, Title: "Failed to add context", Description: err.Error()})
		return
	}
	f.Key, f.Text = "", ""
	f.notify.Notify(Notice{Level: LevelSuccess, Title: "Context added", Description: "Indexing has started"})
}
