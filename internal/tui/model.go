// Package tui is the terminal chat screen: threads on the left, the
// conversation in the middle, context and entries on the right.
package tui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"go.uber.org/zap"

	"rag-chat/internal/chat"
	"rag-chat/internal/domain"
	"rag-chat/internal/live"
)

const (
	sidebarWidth = 30
	panelWidth   = 44
	inputHeight  = 3
	minCenter    = 24
)

type focus int

const (
	focusComposer focus = iota
	focusSidebar
	focusContextKey
	focusContextText
	focusEntries
)

// Options configures a Model.
type Options struct {
	// ThreadID opens a thread directly. Empty runs the bootstrap.
	ThreadID       string
	RouteBase      string
	Breakpoint     int
	PageSize       int
	Theme          string
	DarkBackground bool
	PollInterval   time.Duration
}

type Model struct {
	api  chat.API
	hub  *live.Hub
	log  *zap.Logger
	opts Options
	keys keyMap

	width, height int
	focus         focus
	theme         chat.ThemeMode
	styles        Styles
	route         string

	layout   *chat.Layout
	sidebar  *chat.Sidebar
	view     *chat.MessageView
	composer *chat.Composer
	form     *chat.ContextForm
	notices  *chat.Notices
	boot     *chat.Bootstrap

	threadID      string
	selectedEntry string
	entryCursor   int

	threads  *live.Paginated[domain.Thread]
	messages *live.Paginated[domain.Message]
	entries  *live.Paginated[domain.Entry]
	chunks   *live.Paginated[domain.Chunk]

	threadsSub  *live.Subscription[domain.Page[domain.Thread]]
	messagesSub *live.Subscription[domain.Page[domain.Message]]
	entriesSub  *live.Subscription[domain.Page[domain.Entry]]
	chunksSub   *live.Subscription[domain.Page[domain.Chunk]]

	input       textarea.Model
	keyInput    textinput.Model
	textInput   textarea.Model
	renameInput textinput.Model
	viewport    viewport.Model
	spinner     spinner.Model
	help        help.Model
	renderer    *glamour.TermRenderer
	rendered    map[string]string
}

// New subscribes to the thread and entry lists, and to the messages of
// opts.ThreadID when set. Close releases the subscriptions.
func New(api chat.API, opts Options, log *zap.Logger) Model {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.PageSize <= 0 {
		opts.PageSize = domain.DefaultPageSize
	}

	theme := chat.InitialTheme(opts.Theme, opts.DarkBackground)
	styles := NewStyles(themeFor(theme))
	notices := chat.NewNotices(4*time.Second, 3)
	view := chat.NewMessageView()

	input := textarea.New()
	input.Placeholder = "Ask about your context... (enter to send, alt+enter for newline)"
	input.ShowLineNumbers = false
	input.CharLimit = 8000
	input.SetHeight(inputHeight)
	input.KeyMap.InsertNewline.SetKeys("alt+enter")
	input.Focus()

	keyInput := textinput.New()
	keyInput.Placeholder = "Key or title"
	keyInput.CharLimit = 200

	textInput := textarea.New()
	textInput.Placeholder = "Context text"
	textInput.ShowLineNumbers = false
	textInput.SetHeight(5)

	renameInput := textinput.New()
	renameInput.CharLimit = 200

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.Selected

	m := Model{
		api:         api,
		hub:         live.NewHub(opts.PollInterval, log.Named("live")),
		log:         log,
		opts:        opts,
		keys:        defaultKeyMap(),
		theme:       theme,
		styles:      styles,
		route:       chat.ThreadPath(opts.RouteBase, ""),
		layout:      chat.NewLayout(opts.Breakpoint, 0),
		sidebar:     chat.NewSidebar(""),
		view:        view,
		composer:    chat.NewComposer(view, notices),
		form:        chat.NewContextForm(notices),
		notices:     notices,
		threads:     live.NewPaginated(opts.PageSize, threadKey),
		messages:    live.NewPaginated(opts.PageSize, messageKey),
		entries:     live.NewPaginated(opts.PageSize, entryKey),
		chunks:      live.NewPaginated(opts.PageSize, chunkKey),
		input:       input,
		keyInput:    keyInput,
		textInput:   textInput,
		renameInput: renameInput,
		viewport:    viewport.New(80, 20),
		spinner:     sp,
		help:        help.New(),
		rendered:    make(map[string]string),
	}
	m.renderer = newRenderer(theme, 76)
	m.threadsSub = subscribeThreads(m.hub, api, m.threads.FirstPageRequest())
	m.entriesSub = subscribeEntries(m.hub, api, m.entries.FirstPageRequest())
	if opts.ThreadID != "" {
		m.navigate(opts.ThreadID)
	} else {
		m.boot = chat.NewBootstrap()
	}
	return m
}

// Close stops every subscription.
func (m Model) Close() { m.hub.Close() }

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		m.spinner.Tick,
		pruneTick(),
		await(m.threadsSub),
		await(m.entriesSub),
		await(m.messagesSub),
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.layout.Resize(msg.Width)
		m.ensureFocusVisible()
		m.resize()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.busy() {
			m.refreshViewport()
		}
		return m, cmd

	case pruneMsg:
		m.notices.Prune()
		return m, pruneTick()

	case liveMsg[domain.Page[domain.Thread]]:
		if msg.closed || msg.sub != m.threadsSub {
			return m, nil
		}
		cmd := m.onThreads(msg.update)
		return m, tea.Batch(cmd, await(m.threadsSub))

	case liveMsg[domain.Page[domain.Message]]:
		if msg.closed || msg.sub != m.messagesSub {
			return m, nil
		}
		m.onMessages(msg.update)
		return m, await(m.messagesSub)

	case liveMsg[domain.Page[domain.Entry]]:
		if msg.closed || msg.sub != m.entriesSub {
			return m, nil
		}
		m.onEntries(msg.update)
		return m, await(m.entriesSub)

	case liveMsg[domain.Page[domain.Chunk]]:
		if msg.closed || msg.sub != m.chunksSub {
			return m, nil
		}
		m.onChunks(msg.update)
		return m, await(m.chunksSub)

	case pageMsg[domain.Thread]:
		m.onPage(msg.err)
		applyPage(msg)
		m.sidebar.SetThreads(m.threads.Results())
		return m, nil

	case pageMsg[domain.Message]:
		m.onPage(msg.err)
		applyPage(msg)
		m.view.SetServer(m.messages.Results())
		m.refreshViewport()
		return m, nil

	case pageMsg[domain.Entry]:
		m.onPage(msg.err)
		applyPage(msg)
		return m, nil

	case pageMsg[domain.Chunk]:
		m.onPage(msg.err)
		applyPage(msg)
		return m, nil

	case threadCreatedMsg:
		cmd := m.onThreadCreated(msg)
		return m, cmd

	case threadRenamedMsg:
		if msg.err != nil {
			m.notify(chat.LevelError, "Failed to rename chat", msg.err)
			return m, nil
		}
		m.hub.Refresh(threadsKey)
		return m, nil

	case threadArchivedMsg:
		if msg.err != nil {
			m.notify(chat.LevelError, "Failed to archive chat", msg.err)
			return m, nil
		}
		m.sidebar.Archived(msg.id)
		if m.threadID == msg.id {
			m.leaveThread()
		}
		m.hub.Refresh(threadsKey)
		return m, nil

	case sentMsg:
		m.composer.Resolve(msg.pending, msg.err)
		if msg.err != nil {
			m.log.Warn("send message failed", zap.String("thread_id", msg.pending.ThreadID), zap.Error(msg.err))
			m.input.SetValue(m.composer.Prompt())
		}
		m.refreshViewport()
		m.hub.Refresh(messagesKey(msg.pending.ThreadID))
		return m, nil

	case contextAddedMsg:
		m.form.Finish(msg.err)
		if msg.err != nil {
			m.log.Warn("add context failed", zap.Error(msg.err))
		}
		m.keyInput.SetValue(m.form.Key)
		m.textInput.SetValue(m.form.Text)
		m.hub.Refresh(entriesKey)
		return m, nil
	}

	cmd := m.updateFocused(msg)
	return m, cmd
}

func (m *Model) onThreads(u live.Update[domain.Page[domain.Thread]]) tea.Cmd {
	if u.Err != nil {
		m.threads.Fail(u.Err)
		m.log.Warn("list threads failed", zap.Error(u.Err))
		return nil
	}
	m.threads.Merge(u.Value)
	m.sidebar.SetThreads(m.threads.Results())
	if m.boot == nil {
		return nil
	}
	switch a := m.boot.Next(m.threads.Status(), m.threads.Results()); a.Kind {
	case chat.ActionNavigate:
		return m.navigate(a.ThreadID)
	case chat.ActionCreate:
		return m.createThread(a.Title, true)
	}
	return nil
}

func (m *Model) onMessages(u live.Update[domain.Page[domain.Message]]) {
	if u.Err != nil {
		m.messages.Fail(u.Err)
		m.log.Warn("list messages failed", zap.String("thread_id", m.threadID), zap.Error(u.Err))
		return
	}
	m.messages.Merge(u.Value)
	m.view.SetServer(m.messages.Results())
	m.refreshViewport()
}

func (m *Model) onEntries(u live.Update[domain.Page[domain.Entry]]) {
	if u.Err != nil {
		m.entries.Fail(u.Err)
		m.log.Warn("list entries failed", zap.Error(u.Err))
		return
	}
	m.entries.Merge(u.Value)
	if n := len(m.entries.Results()); m.entryCursor >= n {
		m.entryCursor = max(n-1, 0)
	}
}

func (m *Model) onChunks(u live.Update[domain.Page[domain.Chunk]]) {
	if u.Err != nil {
		m.chunks.Fail(u.Err)
		m.log.Warn("list chunks failed", zap.String("entry_id", m.selectedEntry), zap.Error(u.Err))
		return
	}
	m.chunks.Merge(u.Value)
}

func (m *Model) onPage(err error) {
	if err != nil {
		m.notify(chat.LevelError, "Failed to load more", err)
	}
}

func (m *Model) onThreadCreated(msg threadCreatedMsg) tea.Cmd {
	m.hub.Refresh(threadsKey)
	if msg.bootstrap {
		if msg.err != nil {
			m.log.Error("create initial thread failed", zap.Error(msg.err))
		}
		if a := m.boot.Created(msg.id, msg.err); a.Kind == chat.ActionNavigate {
			return m.navigate(a.ThreadID)
		}
		return nil
	}
	if msg.err != nil {
		m.notify(chat.LevelError, "Failed to create chat", msg.err)
		return nil
	}
	return m.navigate(msg.id)
}

// navigate switches the conversation to threadID.
func (m *Model) navigate(threadID string) tea.Cmd {
	if threadID == m.threadID && m.messagesSub != nil {
		return nil
	}
	m.stopMessages()
	m.threadID = threadID
	m.route = chat.ThreadPath(m.opts.RouteBase, threadID)
	m.sidebar.Select(threadID)
	m.view.Reset()
	m.messages = live.NewPaginated(m.opts.PageSize, messageKey)
	m.messagesSub = subscribeMessages(m.hub, m.api, threadID, m.messages.FirstPageRequest())
	m.refreshViewport()
	return await(m.messagesSub)
}

// leaveThread drops the current conversation without picking another.
func (m *Model) leaveThread() {
	m.stopMessages()
	m.threadID = ""
	m.route = chat.ThreadPath(m.opts.RouteBase, "")
	m.view.Reset()
	m.messages = live.NewPaginated(m.opts.PageSize, messageKey)
	m.refreshViewport()
}

func (m *Model) stopMessages() {
	if m.messagesSub != nil {
		m.messagesSub.Unsubscribe()
		m.messagesSub = nil
	}
}

func (m *Model) openEntry(entryID string) tea.Cmd {
	m.closeEntry()
	m.selectedEntry = entryID
	m.chunks = live.NewPaginated(m.opts.PageSize, chunkKey)
	m.chunksSub = subscribeChunks(m.hub, m.api, entryID, m.chunks.FirstPageRequest())
	return await(m.chunksSub)
}

func (m *Model) closeEntry() {
	if m.chunksSub != nil {
		m.chunksSub.Unsubscribe()
		m.chunksSub = nil
	}
	m.selectedEntry = ""
}

func (m *Model) notify(level chat.Level, title string, err error) {
	n := chat.Notice{Level: level, Title: title}
	if err != nil {
		n.Description = err.Error()
	}
	m.notices.Notify(n)
}

func (m Model) busy() bool {
	if m.form.InFlight() || m.view.Pending() > 0 {
		return true
	}
	for _, msg := range m.view.Messages() {
		if msg.Streaming {
			return true
		}
	}
	return false
}

func (m Model) createThread(title string, bootstrap bool) tea.Cmd {
	api := m.api
	return call(func(ctx context.Context) tea.Msg {
		id, err := api.CreateThread(ctx, title)
		return threadCreatedMsg{id: id, bootstrap: bootstrap, err: err}
	})
}

func (m *Model) send() tea.Cmd {
	m.composer.SetPrompt(m.input.Value())
	p, ok := m.composer.Submit(m.threadID)
	m.input.SetValue(m.composer.Prompt())
	m.refreshViewport()
	m.viewport.GotoBottom()
	if !ok {
		return nil
	}
	api := m.api
	return call(func(ctx context.Context) tea.Msg {
		return sentMsg{pending: p, err: api.AskQuestion(ctx, p.ThreadID, p.Prompt)}
	})
}

func (m *Model) submitContext() tea.Cmd {
	m.form.Key = m.keyInput.Value()
	m.form.Text = m.textInput.Value()
	title, text, ok := m.form.Begin()
	if !ok {
		return nil
	}
	api := m.api
	return call(func(ctx context.Context) tea.Msg {
		return contextAddedMsg{err: api.AddContext(ctx, title, text)}
	})
}

func (m *Model) archive(threadID string) tea.Cmd {
	if threadID == "" {
		return nil
	}
	api := m.api
	return call(func(ctx context.Context) tea.Msg {
		return threadArchivedMsg{id: threadID, err: api.ArchiveThread(ctx, threadID)}
	})
}

func (m *Model) rename(threadID, title string) tea.Cmd {
	api := m.api
	return call(func(ctx context.Context) tea.Msg {
		id, err := api.RenameThread(ctx, threadID, title)
		if id == "" {
			id = threadID
		}
		return threadRenamedMsg{id: id, err: err}
	})
}

func (m *Model) loadMore() tea.Cmd {
	api := m.api
	switch m.focus {
	case focusSidebar:
		return loadMore(m.threads, 0, api.ListThreads)
	case focusContextKey, focusContextText, focusEntries:
		if entryID := m.selectedEntry; entryID != "" {
			return loadMore(m.chunks, 0, func(ctx context.Context, req domain.PageRequest) (domain.Page[domain.Chunk], error) {
				return api.ListChunks(ctx, entryID, req)
			})
		}
		return loadMore(m.entries, 0, api.ListEntries)
	default:
		if m.threadID == "" {
			return nil
		}
		threadID := m.threadID
		return loadMore(m.messages, 0, func(ctx context.Context, req domain.PageRequest) (domain.Page[domain.Message], error) {
			return api.ListMessagesWithContext(ctx, threadID, req, true)
		})
	}
}

// toggleLatestContext expands or collapses the sources of the newest message
// that has any.
func (m *Model) toggleLatestContext() {
	msgs := m.view.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if len(msgs[i].ContextUsed) > 0 {
			m.view.ToggleContext(msgs[i].ID)
			m.refreshViewport()
			return
		}
	}
}

func (m *Model) setTheme(mode chat.ThemeMode) {
	m.theme = mode
	m.styles = NewStyles(themeFor(mode))
	m.spinner.Style = m.styles.Selected
	m.resize()
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		return m, tea.Quit
	}
	if m.sidebar.Editing() != "" {
		return m.handleRenameKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.NextFocus):
		m.cycleFocus(1)
		return m, nil
	case key.Matches(msg, m.keys.PrevFocus):
		m.cycleFocus(-1)
		return m, nil
	case key.Matches(msg, m.keys.ToggleSidebar):
		m.layout.ToggleLeftSidebar()
		m.ensureFocusVisible()
		m.resize()
		return m, nil
	case key.Matches(msg, m.keys.TogglePanel):
		m.layout.ToggleContextPanel()
		m.ensureFocusVisible()
		m.resize()
		return m, nil
	case key.Matches(msg, m.keys.NewChat):
		cmd := m.createThread(chat.NewChatTitle, false)
		return m, cmd
	case key.Matches(msg, m.keys.ToggleTheme):
		m.setTheme(m.theme.Toggle())
		return m, nil
	case key.Matches(msg, m.keys.LoadMore):
		cmd := m.loadMore()
		return m, cmd
	case key.Matches(msg, m.keys.ToggleContext):
		m.toggleLatestContext()
		return m, nil
	}

	switch m.focus {
	case focusComposer:
		if key.Matches(msg, m.keys.Send) {
			cmd := m.send()
			return m, cmd
		}
	case focusSidebar:
		switch {
		case key.Matches(msg, m.keys.Up):
			cmd := m.navigate(m.sidebar.Move(-1))
			return m, cmd
		case key.Matches(msg, m.keys.Down):
			cmd := m.navigate(m.sidebar.Move(1))
			return m, cmd
		case key.Matches(msg, m.keys.Rename):
			if id := m.sidebar.Selected(); id != "" {
				m.sidebar.StartRename(id)
				m.renameInput.SetValue(m.sidebar.EditingTitle)
				m.renameInput.CursorEnd()
				m.renameInput.Focus()
			}
			return m, nil
		case key.Matches(msg, m.keys.Archive):
			cmd := m.archive(m.sidebar.Selected())
			return m, cmd
		}
		return m, nil
	case focusContextKey, focusContextText:
		if key.Matches(msg, m.keys.SubmitContext) {
			cmd := m.submitContext()
			return m, cmd
		}
	case focusEntries:
		entries := m.entries.Results()
		switch {
		case key.Matches(msg, m.keys.Up):
			m.entryCursor = max(m.entryCursor-1, 0)
		case key.Matches(msg, m.keys.Down):
			m.entryCursor = min(m.entryCursor+1, max(len(entries)-1, 0))
		case key.Matches(msg, m.keys.Open):
			if m.entryCursor < len(entries) {
				cmd := m.openEntry(entries[m.entryCursor].ID)
				return m, cmd
			}
		case key.Matches(msg, m.keys.Cancel):
			m.closeEntry()
		}
		return m, nil
	}
	cmd := m.updateFocused(msg)
	return m, cmd
}

func (m Model) handleRenameKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Open):
		m.sidebar.EditingTitle = m.renameInput.Value()
		m.renameInput.Blur()
		id, title, ok := m.sidebar.CommitRename()
		if !ok {
			return m, nil
		}
		cmd := m.rename(id, title)
		return m, cmd
	case key.Matches(msg, m.keys.Cancel):
		m.renameInput.Blur()
		m.sidebar.CancelRename()
		return m, nil
	}
	var cmd tea.Cmd
	m.renameInput, cmd = m.renameInput.Update(msg)
	return m, cmd
}

// updateFocused forwards msg to the focused input.
func (m *Model) updateFocused(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	switch m.focus {
	case focusComposer:
		m.input, cmd = m.input.Update(msg)
	case focusContextKey:
		m.keyInput, cmd = m.keyInput.Update(msg)
	case focusContextText:
		m.textInput, cmd = m.textInput.Update(msg)
	}
	return cmd
}

func (m Model) focusOrder() []focus {
	order := []focus{focusComposer}
	if m.layout.ShowContextPanel {
		order = append(order, focusContextKey, focusContextText, focusEntries)
	}
	if m.layout.ShowLeftSidebar {
		order = append([]focus{focusSidebar}, order...)
	}
	return order
}

func (m *Model) cycleFocus(delta int) {
	order := m.focusOrder()
	i := 0
	for j, f := range order {
		if f == m.focus {
			i = j
		}
	}
	i = (i + delta + len(order)) % len(order)
	m.setFocus(order[i])
}

func (m *Model) ensureFocusVisible() {
	for _, f := range m.focusOrder() {
		if f == m.focus {
			return
		}
	}
	m.setFocus(focusComposer)
}

func (m *Model) setFocus(f focus) {
	m.focus = f
	m.input.Blur()
	m.keyInput.Blur()
	m.textInput.Blur()
	switch f {
	case focusComposer:
		m.input.Focus()
	case focusContextKey:
		m.keyInput.Focus()
	case focusContextText:
		m.textInput.Focus()
	}
}

func newRenderer(mode chat.ThemeMode, width int) *glamour.TermRenderer {
	r, err := glamour.NewTermRenderer(
		glamour.WithStylePath(string(mode)),
		glamour.WithWordWrap(max(width, 20)),
	)
	if err != nil {
		return nil
	}
	return r
}
