package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"rag-chat/internal/chat"
	"rag-chat/internal/domain"
	"rag-chat/internal/live"
)

const snippetRunes = 240

func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}
	bodyHeight := m.bodyHeight()

	var cols []string
	if m.layout.ShowLeftSidebar {
		cols = append(cols, m.panelStyle(focusSidebar).Width(sidebarWidth-2).Height(bodyHeight-2).Render(m.sidebarView()))
	}
	cols = append(cols, m.panelStyle(focusComposer).Width(m.centerWidth()-2).Height(bodyHeight-2).Render(m.chatView()))
	if m.layout.ShowContextPanel {
		f := focusEntries
		if m.focus == focusContextKey || m.focus == focusContextText {
			f = m.focus
		}
		cols = append(cols, m.panelStyle(f).Width(panelWidth-2).Height(bodyHeight-2).Render(m.contextView()))
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.headerView(),
		lipgloss.JoinHorizontal(lipgloss.Top, cols...),
		m.statusView(),
	)
}

func (m Model) panelStyle(f focus) lipgloss.Style {
	if m.focus == f {
		return m.styles.FocusedPanel
	}
	return m.styles.Panel
}

func (m Model) bodyHeight() int { return max(m.height-2, 8) }

func (m Model) centerWidth() int {
	w := m.width
	if m.layout.ShowLeftSidebar {
		w -= sidebarWidth
	}
	if m.layout.ShowContextPanel {
		w -= panelWidth
	}
	return max(w, minCenter)
}

// resize fits the inputs and viewport to the current layout.
func (m *Model) resize() {
	inner := m.centerWidth() - 4
	m.viewport.Width = inner
	m.viewport.Height = max(m.bodyHeight()-2-inputHeight-1, 3)
	m.input.SetWidth(inner)
	m.keyInput.Width = panelWidth - 8
	m.textInput.SetWidth(panelWidth - 4)
	m.renameInput.Width = sidebarWidth - 6
	m.renderer = newRenderer(m.theme, inner-2)
	m.rendered = make(map[string]string)
	m.refreshViewport()
}

func (m *Model) refreshViewport() {
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(m.messagesView())
	if atBottom {
		m.viewport.GotoBottom()
	}
}

func (m Model) headerView() string {
	title := "RAG Chat  " + m.route
	return m.styles.Header.Width(m.width).Render(truncate(title, m.width-2))
}

func (m Model) statusView() string {
	if active := m.notices.Active(); len(active) > 0 {
		parts := make([]string, 0, len(active))
		for _, n := range active {
			text := n.Title
			if n.Description != "" {
				text += ": " + n.Description
			}
			parts = append(parts, m.styles.Notice(n.Level).Render(text))
		}
		return m.styles.Footer.Width(m.width).Render(truncate(strings.Join(parts, "  "), m.width*4))
	}
	return m.styles.Footer.Width(m.width).Render(m.help.ShortHelpView(m.keys.ShortHelp(m.focus)))
}

func (m Model) sidebarView() string {
	var b strings.Builder
	b.WriteString(m.styles.Title.Render("Threads") + "\n")
	b.WriteString(m.styles.Muted.Render("+ "+chat.NewChatTitle+" (ctrl+n)") + "\n\n")

	if m.threads.Status() == live.LoadingFirstPage {
		b.WriteString(m.styles.Muted.Render("Loading...") + "\n")
	}
	width := sidebarWidth - 6
	for _, t := range m.sidebar.Threads() {
		if t.ID == m.sidebar.Editing() {
			b.WriteString(m.renameInput.View() + "\n")
			continue
		}
		label := truncate(chat.DisplayTitle(t), width)
		if t.ID == m.sidebar.Selected() {
			b.WriteString(m.styles.Selected.Render("> "+label) + "\n")
			continue
		}
		b.WriteString(m.styles.Body.Render("  "+label) + "\n")
	}
	if m.threads.Status() == live.CanLoadMore {
		b.WriteString(m.styles.Muted.Render("\nmore (ctrl+l)") + "\n")
	}
	if m.threads.Status() == live.LoadingMore {
		b.WriteString("\n" + m.spinner.View() + "\n")
	}
	return b.String()
}

func (m Model) chatView() string {
	return lipgloss.JoinVertical(lipgloss.Left,
		m.viewport.View(),
		m.styles.Muted.Render(strings.Repeat("─", max(m.centerWidth()-4, 1))),
		m.input.View(),
	)
}

func (m *Model) messagesView() string {
	msgs := m.view.Messages()
	if len(msgs) == 0 {
		if m.threadID == "" {
			return m.styles.Muted.Render("No chat selected. Press ctrl+n to start one.")
		}
		return m.styles.Muted.Render("Add some context, then ask a question about it.")
	}

	var b strings.Builder
	switch m.messages.Status() {
	case live.CanLoadMore:
		b.WriteString(m.styles.Muted.Render("older messages (ctrl+l)") + "\n\n")
	case live.LoadingMore:
		b.WriteString(m.spinner.View() + "\n\n")
	}
	for _, msg := range msgs {
		b.WriteString(m.messageView(msg))
		b.WriteString("\n")
	}
	return b.String()
}

func (m *Model) messageView(msg domain.Message) string {
	var b strings.Builder
	role := chat.ResolveRole(msg)
	switch role {
	case domain.RoleAssistant:
		b.WriteString(m.styles.Assistant.Render("Assistant"))
	case domain.RoleSystem:
		b.WriteString(m.styles.System.Render("System"))
	default:
		b.WriteString(m.styles.User.Render("You"))
	}
	switch {
	case chat.IsOptimistic(msg.ID):
		b.WriteString(" " + m.styles.Muted.Render("sending "+m.spinner.View()))
	case msg.Streaming:
		b.WriteString(" " + m.spinner.View())
	case msg.Status == domain.MessageFailed:
		b.WriteString(" " + m.styles.Error.Render("failed"))
	}
	b.WriteString("\n")

	if role == domain.RoleAssistant {
		b.WriteString(m.markdown(msg))
	} else {
		b.WriteString(m.styles.Body.Width(m.viewport.Width).Render(msg.Text) + "\n")
	}

	if n := len(msg.ContextUsed); n > 0 {
		if !m.view.Expanded(msg.ID) {
			b.WriteString(m.styles.Muted.Render(fmt.Sprintf("%d context results (ctrl+x)", n)) + "\n")
		} else {
			b.WriteString(m.contextResultsView(msg.ContextUsed))
		}
	}
	return b.String()
}

func (m Model) contextResultsView(results []domain.ContextResult) string {
	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "[%d] %s (score %.2f)\n", i+1, r.Key, r.Score)
		b.WriteString(truncate(strings.TrimSpace(r.Text), snippetRunes) + "\n")
	}
	return m.styles.Context.Width(max(m.viewport.Width-2, 10)).Render(strings.TrimRight(b.String(), "\n")) + "\n"
}

// markdown renders assistant text, caching finished messages.
func (m *Model) markdown(msg domain.Message) string {
	cacheKey := msg.ID + "\x00" + msg.Text
	if out, ok := m.rendered[cacheKey]; ok {
		return out
	}
	out := msg.Text + "\n"
	if m.renderer != nil {
		if r, err := m.renderer.Render(msg.Text); err == nil {
			out = r
		}
	}
	if !msg.Streaming {
		m.rendered[cacheKey] = out
	}
	return out
}

func (m Model) contextView() string {
	var b strings.Builder
	b.WriteString(m.styles.Title.Render("Add Context") + "\n")
	b.WriteString(m.keyInput.View() + "\n")
	b.WriteString(m.textInput.View() + "\n")
	switch {
	case m.form.InFlight():
		b.WriteString(m.spinner.View() + " Adding...\n")
	default:
		b.WriteString(m.styles.Muted.Render("ctrl+s to add") + "\n")
	}

	b.WriteString("\n" + m.styles.Title.Render("Entries") + "\n")
	entries := m.entries.Results()
	if m.entries.Status() == live.LoadingFirstPage {
		b.WriteString(m.styles.Muted.Render("Loading...") + "\n")
	} else if len(entries) == 0 {
		b.WriteString(m.styles.Muted.Render("No context yet.") + "\n")
	}
	width := panelWidth - 16
	for i, e := range entries {
		line := fmt.Sprintf("%-*s %s", width, truncate(e.Key, width), entryStatus(e.Status))
		switch {
		case e.ID == m.selectedEntry:
			b.WriteString(m.styles.Selected.Render("* "+line) + "\n")
		case i == m.entryCursor && m.focus == focusEntries:
			b.WriteString(m.styles.Selected.Render("> "+line) + "\n")
		default:
			b.WriteString(m.styles.Body.Render("  "+line) + "\n")
		}
	}
	if m.entries.Status() == live.CanLoadMore {
		b.WriteString(m.styles.Muted.Render("more (ctrl+l)") + "\n")
	}

	if m.selectedEntry != "" {
		b.WriteString("\n" + m.chunksView())
	}
	return b.String()
}

func (m Model) chunksView() string {
	var b strings.Builder
	b.WriteString(m.styles.Title.Render("Chunks") + m.styles.Muted.Render("  esc to close") + "\n")
	if m.chunks.Status() == live.LoadingFirstPage {
		b.WriteString(m.styles.Muted.Render("Loading...") + "\n")
	}
	for _, c := range m.chunks.Results() {
		fmt.Fprintf(&b, "%s %s\n", m.styles.Muted.Render(fmt.Sprintf("#%d", c.Order)), truncate(strings.TrimSpace(c.Text), 120))
	}
	if m.chunks.Status() == live.CanLoadMore {
		b.WriteString(m.styles.Muted.Render("more (ctrl+l)") + "\n")
	}
	return b.String()
}

func entryStatus(s domain.EntryStatus) string {
	switch s {
	case domain.EntryReady:
		return "ready"
	case domain.EntryFailed:
		return "failed"
	default:
		return "indexing"
	}
}

func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n == 1 {
		return "…"
	}
	return string(r[:n-1]) + "…"
}
