package usecase

import (
	"fmt"
	"strings"

	"rag-chat/internal/domain"
)

const noContextNote = "No context entries matched this question."

func buildPromptMessages(results []domain.ContextResult, history []domain.Message, question string) []domain.ChatMessage {
	messages := []domain.ChatMessage{
		{Role: string(domain.RoleSystem), Content: buildInstructionPrompt()},
		{Role: string(domain.RoleSystem), Content: buildContextPrompt(results)},
	}
	for _, m := range history {
		if cm, ok := historyToPromptMessage(m); ok {
			messages = append(messages, cm)
		}
	}
	messages = append(messages, domain.ChatMessage{
		Role:    string(domain.RoleUser),
		Content: question,
	})
	return messages
}

func buildInstructionPrompt() string {
	return strings.Join([]string{
		"You are a helpful assistant answering questions about the documents the user has added as context.",
		"",
		"Rules:",
		"1) Prefer the numbered context passages below over prior knowledge.",
		"2) When you rely on a passage, mention its key in parentheses.",
		"3) If the context does not contain the answer, say so before answering from general knowledge.",
		"4) Format answers as Markdown.",
	}, "\n")
}

func buildContextPrompt(results []domain.ContextResult) string {
	if len(results) == 0 {
		return "Context:\n" + noContextNote
	}
	var b strings.Builder
	b.WriteString("Context:\n")
	for i, r := range results {
		fmt.Fprintf(&b, "\n[%d] %s (score %.2f)\n%s\n", i+1, r.Key, r.Score, strings.TrimSpace(r.Text))
	}
	return b.String()
}

// historyToPromptMessage keeps finished user and assistant turns only.
func historyToPromptMessage(m domain.Message) (domain.ChatMessage, bool) {
	if m.Streaming || m.Status != domain.MessageComplete {
		return domain.ChatMessage{}, false
	}
	if m.Role != domain.RoleUser && m.Role != domain.RoleAssistant {
		return domain.ChatMessage{}, false
	}
	text := strings.TrimSpace(m.Text)
	if text == "" {
		return domain.ChatMessage{}, false
	}
	return domain.ChatMessage{Role: string(m.Role), Content: text}, true
}
