package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"rag-chat/internal/chat"
	"rag-chat/internal/domain"
	"rag-chat/internal/live"
)

type fakeAPI struct {
	mu sync.Mutex

	threads  []domain.Thread
	created  []string
	renamed  [][2]string
	archived []string
	added    [][2]string
	asked    []string
	nextID   int

	createErr error
	askErr    error
	addErr    error
}

func (f *fakeAPI) CreateThread(_ context.Context, title string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.nextID++
	id := fmt.Sprintf("new-%d", f.nextID)
	f.created = append(f.created, title)
	f.threads = append([]domain.Thread{{ID: id, Title: title, Status: domain.ThreadActive}}, f.threads...)
	return id, nil
}

func (f *fakeAPI) ListThreads(context.Context, domain.PageRequest) (domain.Page[domain.Thread], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return domain.Page[domain.Thread]{Items: append([]domain.Thread(nil), f.threads...), IsDone: true}, nil
}

func (f *fakeAPI) RenameThread(_ context.Context, threadID, title string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.renamed = append(f.renamed, [2]string{threadID, title})
	return threadID, nil
}

func (f *fakeAPI) ArchiveThread(_ context.Context, threadID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.archived = append(f.archived, threadID)
	return nil
}

func (f *fakeAPI) AddContext(_ context.Context, title, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return f.addErr
	}
	f.added = append(f.added, [2]string{title, text})
	return nil
}

func (f *fakeAPI) AskQuestion(_ context.Context, _, prompt string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.askErr != nil {
		return f.askErr
	}
	f.asked = append(f.asked, prompt)
	return nil
}

func (f *fakeAPI) ListMessagesWithContext(context.Context, string, domain.PageRequest, bool) (domain.Page[domain.Message], error) {
	return domain.Page[domain.Message]{IsDone: true}, nil
}

func (f *fakeAPI) ListEntries(context.Context, domain.PageRequest) (domain.Page[domain.Entry], error) {
	return domain.Page[domain.Entry]{IsDone: true}, nil
}

func (f *fakeAPI) ListChunks(context.Context, string, domain.PageRequest) (domain.Page[domain.Chunk], error) {
	return domain.Page[domain.Chunk]{IsDone: true}, nil
}

func newTestModel(t *testing.T, api *fakeAPI, threadID string) Model {
	t.Helper()
	m := New(api, Options{ThreadID: threadID, Breakpoint: 120, PageSize: 5, Theme: "light", PollInterval: time.Hour}, nil)
	t.Cleanup(m.Close)
	return m
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func keyRune(r rune) tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}} }

func threadsPage(ts ...domain.Thread) live.Update[domain.Page[domain.Thread]] {
	return live.Update[domain.Page[domain.Thread]]{Value: domain.Page[domain.Thread]{Items: ts, IsDone: true}}
}

func noticeTitles(m Model) []string {
	var out []string
	for _, n := range m.notices.Active() {
		out = append(out, n.Title)
	}
	return out
}

func TestBootstrap_CreatesOneThreadAndNavigates(t *testing.T) {
	api := &fakeAPI{}
	m := newTestModel(t, api, "")

	create := m.onThreads(threadsPage())
	require.NotNil(t, create)
	require.Nil(t, m.onThreads(threadsPage()), "no second creation while the first is in flight")

	m, _ = update(t, m, create())
	require.Equal(t, []string{chat.BootstrapTitle}, api.created)
	require.Equal(t, "new-1", m.threadID)
	require.Equal(t, "/new-1", m.route)
	require.Equal(t, "new-1", m.sidebar.Selected())

	require.Nil(t, m.onThreads(threadsPage(domain.Thread{ID: "new-1", Status: domain.ThreadActive})))
	require.Len(t, api.created, 1)
}

func TestBootstrap_WaitsForFirstPage(t *testing.T) {
	api := &fakeAPI{}
	m := newTestModel(t, api, "")
	m.onThreads(live.Update[domain.Page[domain.Thread]]{Err: errors.New("offline")})
	require.Equal(t, live.LoadingFirstPage, m.threads.Status())
	require.Empty(t, api.created)
}

func TestBootstrap_NavigatesToExistingThread(t *testing.T) {
	api := &fakeAPI{}
	m := newTestModel(t, api, "")
	cmd := m.onThreads(threadsPage(
		domain.Thread{ID: "t0", Status: domain.ThreadArchived},
		domain.Thread{ID: "t1", Status: domain.ThreadActive},
	))
	require.NotNil(t, cmd)
	require.Equal(t, "t1", m.threadID)
	require.Empty(t, api.created)
}

func TestBootstrap_FailureIsLoggedNotRetried(t *testing.T) {
	api := &fakeAPI{createErr: errors.New("offline")}
	m := newTestModel(t, api, "")
	create := m.onThreads(threadsPage())
	m, _ = update(t, m, create())
	require.Empty(t, m.threadID)
	require.Empty(t, noticeTitles(m))
	require.Nil(t, m.onThreads(threadsPage()))
}

func TestSend_OptimisticMessageThenRestoreOnFailure(t *testing.T) {
	api := &fakeAPI{askErr: errors.New("offline")}
	m := newTestModel(t, api, "t1")
	m.input.SetValue("what is RAG?")

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	require.Empty(t, m.input.Value())
	msgs := m.view.Messages()
	require.Len(t, msgs, 1)
	require.True(t, chat.IsOptimistic(msgs[0].ID))
	require.Equal(t, "what is RAG?", msgs[0].Text)

	m, _ = update(t, m, cmd())
	require.Equal(t, "what is RAG?", m.input.Value())
	require.Empty(t, m.view.Messages())
	require.Equal(t, []string{"Failed to send message"}, noticeTitles(m))
}

func TestSend_Success(t *testing.T) {
	api := &fakeAPI{}
	m := newTestModel(t, api, "t1")
	m.input.SetValue("hello")

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	m, _ = update(t, m, cmd())
	require.Equal(t, []string{"hello"}, api.asked)
	require.Empty(t, m.input.Value())
	require.Equal(t, 1, m.view.Pending())
}

func TestSend_WithoutThreadNotifies(t *testing.T) {
	api := &fakeAPI{}
	m := newTestModel(t, api, "")
	m.input.SetValue("hi")

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.Nil(t, cmd)
	require.Equal(t, "hi", m.input.Value())
	require.Equal(t, []string{"Thread ID is not set"}, noticeTitles(m))
}

func TestContextForm(t *testing.T) {
	api := &fakeAPI{}
	m := newTestModel(t, api, "t1")
	m.setFocus(focusContextKey)
	m.keyInput.SetValue("cats")
	m.textInput.SetValue("   ")

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyCtrlS})
	require.Nil(t, cmd)
	require.False(t, m.form.InFlight())

	m.textInput.SetValue("Cats purr.")
	m, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlS})
	require.NotNil(t, cmd)
	require.True(t, m.form.InFlight())

	m, _ = update(t, m, cmd())
	require.Equal(t, [][2]string{{"cats", "Cats purr."}}, api.added)
	require.Empty(t, m.keyInput.Value())
	require.Empty(t, m.textInput.Value())
	require.Equal(t, []string{"Context added"}, noticeTitles(m))
}

func TestContextForm_FailureKeepsFields(t *testing.T) {
	api := &fakeAPI{addErr: errors.New("embedding failed")}
	m := newTestModel(t, api, "t1")
	m.setFocus(focusContextText)
	m.keyInput.SetValue("cats")
	m.textInput.SetValue("Cats purr.")

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyCtrlS})
	m, _ = update(t, m, cmd())
	require.Equal(t, "cats", m.keyInput.Value())
	require.Equal(t, "Cats purr.", m.textInput.Value())
	require.False(t, m.form.InFlight())
}

func TestArchiveSelectedThreadClearsIt(t *testing.T) {
	api := &fakeAPI{}
	m := newTestModel(t, api, "t1")
	m.onThreads(threadsPage(
		domain.Thread{ID: "t1", Status: domain.ThreadActive},
		domain.Thread{ID: "t2", Status: domain.ThreadActive},
	))
	m.setFocus(focusSidebar)

	m, cmd := update(t, m, keyRune('a'))
	require.NotNil(t, cmd)
	m, _ = update(t, m, cmd())
	require.Equal(t, []string{"t1"}, api.archived)
	require.Empty(t, m.threadID)
	require.Empty(t, m.sidebar.Selected())
	require.Equal(t, "/", m.route)
	require.Nil(t, m.messagesSub)
}

func TestRenameThread(t *testing.T) {
	api := &fakeAPI{}
	m := newTestModel(t, api, "t1")
	m.onThreads(threadsPage(domain.Thread{ID: "t1", Title: "Old", Status: domain.ThreadActive}))
	m.setFocus(focusSidebar)

	m, _ = update(t, m, keyRune('r'))
	require.Equal(t, "t1", m.sidebar.Editing())
	require.Equal(t, "Old", m.renameInput.Value())

	m.renameInput.SetValue("  New  ")
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	require.Empty(t, m.sidebar.Editing())
	m, _ = update(t, m, cmd())
	require.Equal(t, [][2]string{{"t1", "New"}}, api.renamed)
}

func TestNewChatNavigates(t *testing.T) {
	api := &fakeAPI{}
	m := newTestModel(t, api, "t1")
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyCtrlN})
	m, _ = update(t, m, cmd())
	require.Equal(t, []string{chat.NewChatTitle}, api.created)
	require.Equal(t, "new-1", m.threadID)
}

func TestResizeForcesPanels(t *testing.T) {
	m := newTestModel(t, &fakeAPI{}, "t1")
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 160, Height: 40})
	require.True(t, m.layout.ShowLeftSidebar)
	require.True(t, m.layout.ShowContextPanel)

	m, _ = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 40})
	require.False(t, m.layout.ShowLeftSidebar)
	require.False(t, m.layout.ShowContextPanel)

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlB})
	require.True(t, m.layout.ShowLeftSidebar)

	m, _ = update(t, m, tea.WindowSizeMsg{Width: 160, Height: 40})
	require.True(t, m.layout.ShowLeftSidebar)
	require.True(t, m.layout.ShowContextPanel)
}

func TestFocusSkipsHiddenPanels(t *testing.T) {
	m := newTestModel(t, &fakeAPI{}, "t1")
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 40})
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	require.Equal(t, focusComposer, m.focus)

	m, _ = update(t, m, tea.WindowSizeMsg{Width: 160, Height: 40})
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	require.Equal(t, focusContextKey, m.focus)

	m.setFocus(focusEntries)
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 40})
	require.Equal(t, focusComposer, m.focus)
}

func TestStaleSubscriptionUpdateIgnored(t *testing.T) {
	m := newTestModel(t, &fakeAPI{}, "t1")
	old := m.messagesSub
	m.navigate("t2")

	m, cmd := update(t, m, liveMsg[domain.Page[domain.Message]]{
		sub: old,
		update: live.Update[domain.Page[domain.Message]]{Value: domain.Page[domain.Message]{
			Items: []domain.Message{{ID: "m1", Role: domain.RoleUser, Text: "from t1"}},
		}},
	})
	require.Nil(t, cmd)
	require.Empty(t, m.view.Messages())
}

func TestView_RendersPanelsAndSources(t *testing.T) {
	m := newTestModel(t, &fakeAPI{}, "t1")
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 160, Height: 40})
	m.onThreads(threadsPage(domain.Thread{ID: "t1", Title: "Cats chat", Status: domain.ThreadActive}))
	m.onMessages(live.Update[domain.Page[domain.Message]]{Value: domain.Page[domain.Message]{
		Items: []domain.Message{
			{ID: "m2", Role: domain.RoleAssistant, Text: "Cats purr.", Status: domain.MessageComplete, Order: 1,
				ContextUsed: []domain.ContextResult{{Key: "cats", Score: 0.91, Text: "Cats purr when content."}}},
			{ID: "m1", Role: domain.RoleUser, Text: "Do cats purr?", Status: domain.MessageComplete, Order: 0},
		},
		IsDone: true,
	}})

	out := m.View()
	require.Contains(t, out, "Threads")
	require.Contains(t, out, "Cats chat")
	require.Contains(t, out, "Add Context")
	require.Contains(t, out, "Do cats purr?")
	require.Contains(t, out, "1 context results")

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlX})
	require.True(t, m.view.Expanded("m2"))
	require.Contains(t, m.View(), "[1] cats (score 0.91)")
}

func TestThemeToggle(t *testing.T) {
	m := newTestModel(t, &fakeAPI{}, "t1")
	require.Equal(t, chat.ThemeLight, m.theme)
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlT})
	require.Equal(t, chat.ThemeDark, m.theme)
	require.True(t, m.styles.Theme.IsDark)
}

func TestTruncate(t *testing.T) {
	require.Equal(t, "abc", truncate("abc", 3))
	require.Equal(t, "ab…", truncate("abcd", 3))
	require.Equal(t, "", truncate("abc", 0))
	require.True(t, strings.HasSuffix(truncate("héllo wörld", 5), "…"))
}
