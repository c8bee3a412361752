package models

import (
	"encoding/json"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleTool:
		return true
	default:
		return false
	}
}

// Event names shared by every transport.
const (
	EventChatStream       = "chat-stream"
	EventStop             = "stop-generation"
	EventChatError        = "chat-error"
	EventNativeCanvas     = "native-canvas-update"
	EventCanvasSplit      = "canvas-split"
	EventSelection        = "selection-snippet"
	EventStreamUpdated    = "stream-updated"
	EventMessageFinalized = "message-finalized"
	EventChatReset        = "chat-reset"
	EventSurfaceChanged   = "surface-changed"
	EventSurfaceReveal    = "surface-reveal"
	EventSessionsChanged  = "sessions-changed"
)

type ToolCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message is one turn of the conversation. DisplayContent is what the user
// sees, ModelContent is what goes back to the agent on the next turn.
type Message struct {
	ID             string     `json:"id"`
	Role           Role       `json:"role"`
	DisplayContent string     `json:"displayContent"`
	ModelContent   string     `json:"modelContent"`
	ToolCalls      []ToolCall `json:"toolCalls,omitempty"`
	Timestamp      time.Time  `json:"timestamp"`
	Streaming      bool       `json:"streaming,omitempty"`
}

// Clone returns a copy that shares no slices with m.
func (m Message) Clone() Message {
	if m.ToolCalls != nil {
		m.ToolCalls = append([]ToolCall(nil), m.ToolCalls...)
	}
	return m
}

// Chunk is one incremental unit of agent output.
type Chunk struct {
	Content    string     `json:"content,omitempty"`
	IsThinking bool       `json:"is_thinking,omitempty"`
	ToolCalls  []ToolCall `json:"toolCalls,omitempty"`
	Done       bool       `json:"done"`
	StreamID   string     `json:"streamId,omitempty"`
}

// UnmarshalJSON accepts the snake_case tool_calls key used by older agents.
func (c *Chunk) UnmarshalJSON(data []byte) error {
	type plain Chunk
	var aux struct {
		plain
		SnakeToolCalls []ToolCall `json:"tool_calls"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*c = Chunk(aux.plain)
	if len(c.ToolCalls) == 0 && len(aux.SnakeToolCalls) > 0 {
		c.ToolCalls = aux.SnakeToolCalls
	}
	return nil
}

type StreamError struct {
	StreamID string `json:"streamId,omitempty"`
	Error    string `json:"error"`
}

// StreamUpdate is the rendering projection of the accumulator state.
type StreamUpdate struct {
	MessageID string `json:"messageId"`
	Text      string `json:"text"`
	ToolCalls int    `json:"toolCalls"`
	Done      bool   `json:"done"`
}

type SelectionSnippet struct {
	Text     string `json:"text"`
	Source   string `json:"source,omitempty"`
	CanvasID string `json:"canvasId,omitempty"`
}

type SurfaceNotice struct {
	Surface string `json:"surface"`
}
