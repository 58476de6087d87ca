package chat

import (
	"strings"

	"rag-chat/internal/domain"
)

// NewChatTitle names threads created from the sidebar.
const NewChatTitle = "New Chat"

// UntitledChat is shown for threads without a title.
const UntitledChat = "Untitled Chat"

// Sidebar lists the user's active threads and tracks the selected one.
type Sidebar struct {
	threads  []domain.Thread
	selected string

	editingID    string
	EditingTitle string
}

func NewSidebar(selected string) *Sidebar { return &Sidebar{selected: selected} }

func (s *Sidebar) SetThreads(ts []domain.Thread) { s.threads = domain.ActiveThreads(ts) }

func (s *Sidebar) Threads() []domain.Thread { return s.threads }

func (s *Sidebar) Selected() string { return s.selected }

func (s *Sidebar) Select(threadID string) { s.selected = threadID }

// Index returns the position of the selected thread, or -1.
func (s *Sidebar) Index() int {
	for i, t := range s.threads {
		if t.ID == s.selected {
			return i
		}
	}
	return -1
}

// Move selects the thread delta positions away from the current one.
func (s *Sidebar) Move(delta int) string {
	if len(s.threads) == 0 {
		return s.selected
	}
	i := s.Index() + delta
	if i < 0 {
		i = 0
	}
	if i >= len(s.threads) {
		i = len(s.threads) - 1
	}
	s.selected = s.threads[i].ID
	return s.selected
}

func (s *Sidebar) StartRename(threadID string) {
	s.editingID = threadID
	s.EditingTitle = ""
	for _, t := range s.threads {
		if t.ID == threadID {
			s.EditingTitle = t.Title
		}
	}
}

func (s *Sidebar) Editing() string { return s.editingID }

// CommitRename ends editing and returns the trimmed title to save. An empty
// title cancels the rename.
func (s *Sidebar) CommitRename() (threadID, title string, ok bool) {
	threadID, title = s.editingID, strings.TrimSpace(s.EditingTitle)
	s.CancelRename()
	if threadID == "" || title == "" {
		return "", "", false
	}
	return threadID, title, true
}

func (s *Sidebar) CancelRename() {
	s.editingID = ""
	s.EditingTitle = ""
}

// Archived drops threadID from the list and clears the selection if it was
// the selected thread.
func (s *Sidebar) Archived(threadID string) {
	kept := s.threads[:0]
	for _, t := range s.threads {
		if t.ID != threadID {
			kept = append(kept, t)
		}
	}
	s.threads = kept
	if s.selected == threadID {
		s.selected = ""
	}
	if s.editingID == threadID {
		s.CancelRename()
	}
}

// DisplayTitle is the label shown for t.
func DisplayTitle(t domain.Thread) string {
	if t.Title == "" {
		return UntitledChat
	}
	return t.Title
}
