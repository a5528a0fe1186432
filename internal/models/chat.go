package models

// Role identifies who wrote a message in the wire history.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// ChatMessage represents a single message in a conversation.
type ChatMessage struct {
	Role    Role   `json:"role"` // "user" or "model"
	Content string `json:"content"`
}

// ChatRequest is the payload sent to the chat endpoint.
type ChatRequest struct {
	Message string        `json:"message"`
	History []ChatMessage `json:"history"`
}

// Stream event types.
const (
	EventText    = "text"
	EventWarning = "warning"
	EventHistory = "history"
	EventError   = "error"
)

// StreamEvent is one frame of the chat event stream. Text events carry the
// full reply generated so far, so clients replace rather than append.
type StreamEvent struct {
	Type    string        `json:"type"`
	Content string        `json:"content,omitempty"`
	History []ChatMessage `json:"history,omitempty"`
}

func TextEvent(content string) StreamEvent {
	return StreamEvent{Type: EventText, Content: content}
}

func WarningEvent(content string) StreamEvent {
	return StreamEvent{Type: EventWarning, Content: content}
}

func ErrorEvent(content string) StreamEvent {
	return StreamEvent{Type: EventError, Content: content}
}

func HistoryEvent(history []ChatMessage) StreamEvent {
	if history == nil {
		history = []ChatMessage{}
	}
	return StreamEvent{Type: EventHistory, History: history}
}
