package ticket

import (
	"fmt"
	"strings"

	"github.com/phil65/aistack/agent"
)

// ParseTranscript is the inverse of RenderTranscript: it parses a
// "ROLE: content" transcript, blocks separated by blank lines, into a
// message log. Content may span multiple lines within a block. Roles are
// matched case-insensitively.
func ParseTranscript(text string) ([]agent.Message, error) {
	var log []agent.Message
	for _, block := range strings.Split(text, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		role, content, ok := strings.Cut(block, ":")
		if !ok {
			return nil, fmt.Errorf("transcript block %d: missing %q separator", len(log)+1, ":")
		}
		r, err := parseRole(strings.TrimSpace(role))
		if err != nil {
			return nil, fmt.Errorf("transcript block %d: %w", len(log)+1, err)
		}
		log = append(log, agent.Message{
			Role:    r,
			Content: strings.TrimSpace(content),
		})
	}
	return log, nil
}

func parseRole(s string) (agent.Role, error) {
	switch strings.ToLower(s) {
	case "user":
		return agent.RoleUser, nil
	case "assistant":
		return agent.RoleAssistant, nil
	case "system":
		return agent.RoleSystem, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}
