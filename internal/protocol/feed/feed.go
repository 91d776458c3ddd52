// Package feed defines the typed frames pushed to live viewers of a run.
package feed

import (
	"encoding/json"

	"github.com/agentkitdev/agentkit/internal/server/db"
)

// StatusEvent announces run progress.
type StatusEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// TokenEvent carries one streamed text fragment.
type TokenEvent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ToolStartEvent marks the start of a tool invocation.
type ToolStartEvent struct {
	Type  string `json:"type"`
	Tool  string `json:"tool"`
	Input string `json:"input"`
}

// ToolEndEvent carries a tool invocation result.
type ToolEndEvent struct {
	Type   string `json:"type"`
	Output string `json:"output"`
}

// FinalEvent carries the terminal text and artifact references.
type FinalEvent struct {
	Type      string   `json:"type"`
	Text      string   `json:"text"`
	Artifacts []string `json:"artifacts,omitempty"`
}

// ErrorEvent reports a failed run.
type ErrorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// FromRecord translates a stored event row into its typed frame. Unknown
// payload fields are dropped; unknown types pass through as a status frame.
func FromRecord(event db.Event) any {
	var payload map[string]any
	if len(event.Payload) > 0 {
		_ = json.Unmarshal(event.Payload, &payload)
	}

	str := func(key string) string {
		s, _ := payload[key].(string)
		return s
	}

	switch event.Type {
	case db.EventTypeToken:
		return TokenEvent{Type: string(event.Type), Text: str("text")}
	case db.EventTypeToolStart:
		return ToolStartEvent{Type: string(event.Type), Tool: str("tool"), Input: str("input")}
	case db.EventTypeToolEnd:
		return ToolEndEvent{Type: string(event.Type), Output: str("output")}
	case db.EventTypeFinal:
		var artifacts []string
		if raw, ok := payload["artifacts"].([]any); ok {
			for _, item := range raw {
				if s, ok := item.(string); ok {
					artifacts = append(artifacts, s)
				}
			}
		}
		return FinalEvent{Type: string(event.Type), Text: str("text"), Artifacts: artifacts}
	case db.EventTypeError:
		return ErrorEvent{Type: string(event.Type), Message: str("message")}
	default:
		return StatusEvent{Type: string(event.Type), Message: str("message")}
	}
}
