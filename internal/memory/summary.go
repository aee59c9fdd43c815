package memory

import "strings"

const (
	// SummaryInterval is the message-count cadence at which the summary is rebuilt.
	SummaryInterval = 10

	summaryClipRunes = 180
	summaryMaxLines  = 6
)

// ShouldSummarize reports whether a session that now holds count messages
// needs its summary rebuilt.
func ShouldSummarize(count int) bool {
	return count > 0 && count%SummaryInterval == 0
}

// BuildSummary condenses the last SummaryInterval messages into at most
// six "User asked" / "Assistant answered" lines.
func BuildSummary(messages []Message) string {
	if len(messages) > SummaryInterval {
		messages = messages[len(messages)-SummaryInterval:]
	}

	lines := make([]string, 0, len(messages))
	for _, m := range messages {
		content := clipRunes(strings.TrimSpace(m.Content), summaryClipRunes)
		if content == "" {
			continue
		}
		switch m.Role {
		case RoleUser:
			lines = append(lines, "User asked: "+content)
		case RoleAssistant:
			lines = append(lines, "Assistant answered: "+content)
		}
	}
	if len(lines) > summaryMaxLines {
		lines = lines[len(lines)-summaryMaxLines:]
	}
	return strings.Join(lines, "\n")
}

func clipRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
