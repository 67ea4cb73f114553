package conversation

import "strings"

// DefaultWindow is the number of prior messages carried into a prompt.
const DefaultWindow = 4

// PromptBuilder turns a thread and a new utterance into a completion prompt.
type PromptBuilder struct {
	// Window caps how many of the most recent settled messages are included.
	// Zero means the whole thread.
	Window int
}

// Build renders the retained history followed by the new user turn. With no
// history the prompt is the bare utterance.
func (b PromptBuilder) Build(history []Message, utterance string) string {
	settled := make([]Message, 0, len(history))
	for _, m := range history {
		if m.IsLoading() {
			continue
		}
		settled = append(settled, m)
	}
	if b.Window > 0 && len(settled) > b.Window {
		settled = settled[len(settled)-b.Window:]
	}
	if len(settled) == 0 {
		return utterance
	}

	var sb strings.Builder
	for i, m := range settled {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(m.Role.Label())
		sb.WriteString(": ")
		sb.WriteString(m.Content)
	}
	sb.WriteString("\nUser: ")
	sb.WriteString(utterance)
	sb.WriteString("\nAssistant:")
	return sb.String()
}
