package conversation

import (
	"context"
	"strings"
)

const (
	ChatRoleSystem    = "system"
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
)

// ChatMessage is one history entry. It is also the wire shape of the
// optional history sent by callers.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type TokenUsage struct {
	InputTokens  int32
	OutputTokens int32
	TotalTokens  int32
}

// LLMRequest is provider neutral. An empty Model means the adapter's
// configured default.
type LLMRequest struct {
	Model       string
	System      []string
	Messages    []ChatMessage
	MaxTokens   int32
	Temperature float32
}

type LLMResponse struct {
	Text       string
	Usage      TokenUsage
	StopReason string
}

// LLMClient is implemented by every provider adapter.
type LLMClient interface {
	Complete(ctx context.Context, req LLMRequest) (LLMResponse, error)
}

// normalizeRole maps caller-supplied roles onto the three we support.
// Anything unknown is treated as user text.
func normalizeRole(role string) string {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case ChatRoleSystem:
		return ChatRoleSystem
	case ChatRoleAssistant, "bot", "model":
		return ChatRoleAssistant
	default:
		return ChatRoleUser
	}
}

// prepareTurns splits system text from dialogue turns, drops blank entries
// and merges consecutive turns from the same role. Caller-supplied history
// often starts with the assistant greeting or repeats a role; with userFirst
// set, leading assistant turns are dropped for providers that require the
// dialogue to open with the user.
func prepareTurns(req LLMRequest, userFirst bool) ([]string, []ChatMessage) {
	var system []string
	for _, block := range req.System {
		if block = strings.TrimSpace(block); block != "" {
			system = append(system, block)
		}
	}

	turns := make([]ChatMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		role := normalizeRole(msg.Role)
		switch {
		case role == ChatRoleSystem:
			system = append(system, content)
		case userFirst && len(turns) == 0 && role == ChatRoleAssistant:
			// dropped
		case len(turns) > 0 && turns[len(turns)-1].Role == role:
			turns[len(turns)-1].Content += "\n" + content
		default:
			turns = append(turns, ChatMessage{Role: role, Content: content})
		}
	}
	return system, turns
}
