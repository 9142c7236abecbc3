package model

import "time"

// WebSocket message types.
const (
	WSMessageTypeView  = "view"
	WSMessageTypeQuery = "query"
	WSMessageTypeError = "error"
)

// WebSocketMessage represents a message exchanged over a WebSocket connection.
// Server messages carry a View; client messages carry a Query.
type WebSocketMessage struct {
	Type      string    `json:"type"`
	Query     string    `json:"query,omitempty"`
	View      *View     `json:"view,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewViewMessage creates a message pushing the current derived view.
func NewViewMessage(view View) WebSocketMessage {
	return WebSocketMessage{
		Type:      WSMessageTypeView,
		Query:     view.Query,
		View:      &view,
		Timestamp: time.Now().UTC(),
	}
}

// NewErrorMessage creates an error message for a malformed client frame.
func NewErrorMessage(errMsg string) WebSocketMessage {
	return WebSocketMessage{
		Type:      WSMessageTypeError,
		Error:     errMsg,
		Timestamp: time.Now().UTC(),
	}
}
