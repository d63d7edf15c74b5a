// Package api defines the JSON messages exchanged over the WebSocket stream.
package api

import (
	"github.com/skobkin/perflog/internal/stream"
)

// HelloMessage is the initial payload sent on WebSocket connection.
type HelloMessage struct {
	Type        string          `json:"type"`
	IntervalMS  int             `json:"interval_ms"`
	PID         int             `json:"pid"`
	Accelerator string          `json:"accelerator"`
	Features    map[string]bool `json:"features"`
}

// NewHelloMessage constructs a hello payload.
func NewHelloMessage(intervalMS, pid int, accelerator string, features map[string]bool) HelloMessage {
	return HelloMessage{
		Type:        "hello",
		IntervalMS:  intervalMS,
		PID:         pid,
		Accelerator: accelerator,
		Features:    features,
	}
}

// SnapshotMessage wraps an emitted record for transport.
type SnapshotMessage struct {
	Type string `json:"type"`
	stream.Record
}

// NewSnapshotMessage constructs a snapshot payload.
func NewSnapshotMessage(record stream.Record) SnapshotMessage {
	return SnapshotMessage{
		Type:   "snapshot",
		Record: record,
	}
}

// ErrorMessage communicates an error condition to the client.
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ClientMessage is a generic envelope used for decoding inbound client messages.
type ClientMessage struct {
	Type string `json:"type"`
}

// PongMessage is the response to a ping.
type PongMessage struct {
	Type string `json:"type"`
}
