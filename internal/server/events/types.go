package events

import (
	"time"
)

// EventType is the SSE "event:" field.
type EventType string

const (
	// Sent once when a push stream opens
	EventConnectionEstablished EventType = "connection:established"

	// Carries one JSON-RPC message
	EventMessage EventType = "message"
)

// Event is one server-sent event. Data is written as the event's
// "data:" line, so for EventMessage it is a bare JSON-RPC message.
type Event struct {
	Type      EventType
	Timestamp time.Time
	SessionID string
	Data      interface{}
}

// NewEvent creates a new event
func NewEvent(eventType EventType, data interface{}) *Event {
	return &Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

// WithSession sets session ID
func (e *Event) WithSession(sessionID string) *Event {
	e.SessionID = sessionID
	return e
}

// ConnectionData is the payload of EventConnectionEstablished.
type ConnectionData struct {
	SessionID  string    `json:"sessionId"`
	ListenerID string    `json:"listenerId"`
	Timestamp  time.Time `json:"timestamp"`
}

// LogMessage is the JSON-RPC notifications/message sent to push
// streams after a tool call.
type LogMessage struct {
	JSONRPC string         `json:"jsonrpc"`
	Method  string         `json:"method"`
	Params  LogMessageData `json:"params"`
}

// LogMessageData follows the MCP logging notification shape.
type LogMessageData struct {
	Level  string      `json:"level"`
	Logger string      `json:"logger,omitempty"`
	Data   interface{} `json:"data"`
}

// NewLogMessage builds a notifications/message event.
func NewLogMessage(level, logger string, data interface{}) *Event {
	return NewEvent(EventMessage, LogMessage{
		JSONRPC: "2.0",
		Method:  "notifications/message",
		Params:  LogMessageData{Level: level, Logger: logger, Data: data},
	})
}
