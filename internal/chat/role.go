package chat

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"rag-chat/internal/domain"
)

var (
	greeting    = regexp.MustCompile(`(?i)^(hi|hello|hey|thanks?|thank you|ok|okay|yes|no)$`)
	terminators = regexp.MustCompile(`[.!?]`)
	explanatory = []string{"In the context of", "we use it to", "You form it using"}
)

// ResolveRole prefers the stored role. Streaming messages are always the
// assistant's; InferRole is the last resort.
func ResolveRole(m domain.Message) domain.Role {
	if m.Role != "" {
		return m.Role
	}
	if m.Streaming {
		return domain.RoleAssistant
	}
	return InferRole(m.Text)
}

// InferRole guesses the author of text from its shape.
//
// Deprecated: messages carry an explicit role. This only covers records
// written without one.
func InferRole(text string) domain.Role {
	n := utf8.RuneCountInString(text)
	switch {
	case n <= 30, greeting.MatchString(strings.TrimSpace(text)), strings.Contains(text, "?"):
		return domain.RoleUser
	case n > 80, len(terminators.FindAllStringIndex(text, 2)) > 1, containsAny(text, explanatory):
		return domain.RoleAssistant
	default:
		return domain.RoleUser
	}
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
