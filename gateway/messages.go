package gateway

import (
	"encoding/json"
	"fmt"
	"strings"

	contractx "github.com/knearme/portfolio-agent/agent/contract"
)

// TrustedContextMarker is stamped only by the server's own context-loading
// step. A system-role message without it is treated as client-smuggled and
// dropped before anything reaches the model, no matter what the message
// claims about its origin.
const TrustedContextMarker = "knearme:trusted-context/v1"

const (
	maxMessages  = 50
	maxPartChars = 8000
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

const (
	PartText       = "text"
	PartToolCall   = "tool-call"
	PartToolResult = "tool-result"
)

// ChatRequest is the /chat payload. Unknown extra fields are tolerated; the
// shape below is enforced.
type ChatRequest struct {
	Messages  []Message `json:"messages"`
	ProjectID string    `json:"projectId,omitempty"`
	SessionID string    `json:"sessionId,omitempty"`
}

type Message struct {
	Role  string `json:"role"`
	Parts []Part `json:"parts"`
}

// Part is a closed tagged union discriminated by Type. Validation happens
// here at the boundary; nothing downstream re-inspects unknown shapes.
type Part struct {
	Type    string          `json:"type"`
	Text    string          `json:"text,omitempty"`
	Tool    string          `json:"toolName,omitempty"`
	CallID  string          `json:"callId,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Validate enforces the payload shape and size caps.
func (r *ChatRequest) Validate() error {
	if len(r.Messages) == 0 {
		return fmt.Errorf("%w: messages are required", contractx.ErrValidation)
	}
	if len(r.Messages) > maxMessages {
		return fmt.Errorf("%w: too many messages (max %d)", contractx.ErrValidation, maxMessages)
	}

	for i, msg := range r.Messages {
		switch msg.Role {
		case RoleUser, RoleAssistant, RoleSystem:
		default:
			return fmt.Errorf("%w: message %d has unknown role %q", contractx.ErrValidation, i, msg.Role)
		}
		if len(msg.Parts) == 0 {
			return fmt.Errorf("%w: message %d has no parts", contractx.ErrValidation, i)
		}
		for j, part := range msg.Parts {
			switch part.Type {
			case PartText:
				if len(part.Text) > maxPartChars {
					return fmt.Errorf("%w: message %d part %d exceeds %d characters",
						contractx.ErrValidation, i, j, maxPartChars)
				}
			case PartToolCall, PartToolResult:
				if strings.TrimSpace(part.Tool) == "" {
					return fmt.Errorf("%w: message %d part %d is missing toolName",
						contractx.ErrValidation, i, j)
				}
			default:
				return fmt.Errorf("%w: message %d part %d has unknown type %q",
					contractx.ErrValidation, i, j, part.Type)
			}
		}
	}
	return nil
}

// FilterUntrusted drops system-role messages that lack the trusted marker.
// Role and part validation must already have happened.
func FilterUntrusted(messages []Message) []Message {
	kept := make([]Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == RoleSystem && !carriesTrustedMarker(msg) {
			continue
		}
		kept = append(kept, msg)
	}
	return kept
}

func carriesTrustedMarker(msg Message) bool {
	for _, part := range msg.Parts {
		if part.Type == PartText && strings.Contains(part.Text, TrustedContextMarker) {
			return true
		}
	}
	return false
}

// textOf flattens a message's text parts. Tool parts in history are artifacts
// for the client; they do not round-trip into model context.
func textOf(msg Message) string {
	var parts []string
	for _, part := range msg.Parts {
		if part.Type == PartText && strings.TrimSpace(part.Text) != "" {
			parts = append(parts, part.Text)
		}
	}
	return strings.Join(parts, "\n")
}
