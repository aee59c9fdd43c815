package llm

import (
	"strings"

	"github.com/antoniostano/voicechat/internal/memory"
)

// HistoryWindow is how many trailing messages are considered for the prompt.
const HistoryWindow = 8

// BuildPrompt assembles persona, optional summary, recent clean history and the
// new user turn, ending with an assistant cue.
func BuildPrompt(persona, summary string, history []memory.Message, userText string) string {
	parts := []string{strings.TrimSpace(persona)}

	if s := strings.TrimSpace(summary); s != "" {
		parts = append(parts, "\n=== CONVERSATION SUMMARY ===", s)
	}

	if len(history) > HistoryWindow {
		history = history[len(history)-HistoryWindow:]
	}
	lines := make([]string, 0, len(history))
	for _, m := range history {
		content := strings.TrimSpace(m.Content)
		if content == "" || m.ErrorType != "" {
			continue
		}
		switch m.Role {
		case memory.RoleUser:
			lines = append(lines, "User: "+content)
		case memory.RoleAssistant:
			lines = append(lines, "Assistant: "+content)
		}
	}
	if len(lines) > 0 {
		parts = append(parts, "\n=== RECENT CONVERSATION ===")
		parts = append(parts, lines...)
	}

	parts = append(parts,
		"\nUser: "+strings.TrimSpace(userText),
		"\nAssistant:",
	)
	return strings.Join(parts, "\n")
}
