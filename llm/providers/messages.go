package providers

import (
	"strings"

	"github.com/c360studio/launchmate/llm"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// splitSystem joins all system messages and returns the others in order.
func splitSystem(messages []llm.Message) (string, []chatMessage) {
	var system []string
	rest := make([]chatMessage, 0, len(messages))
	for _, m := range messages {
		if m.Role == "system" {
			system = append(system, m.Content)
			continue
		}
		rest = append(rest, chatMessage{Role: m.Role, Content: m.Content})
	}
	return strings.Join(system, "\n\n"), rest
}
