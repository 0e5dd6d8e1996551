package websocket

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message is the envelope for every frame in both directions. Type carries a
// wallet event name or TypeError.
type Message struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

const TypeError = "error"

const (
	ErrInvalidMessage = "INVALID_MESSAGE"
	ErrUnknownEvent   = "UNKNOWN_EVENT"
	ErrRequestFailed  = "REQUEST_FAILED"
)

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewMessage wraps payload in an envelope. A nil payload leaves the payload
// field out of the frame.
func NewMessage(msgType string, payload any, now time.Time) (*Message, error) {
	msg := &Message{Type: msgType, Timestamp: now.UTC()}
	if payload == nil {
		return msg, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	msg.Payload = data
	return msg, nil
}

func ParseMessage(raw []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("message type is required")
	}
	return &msg, nil
}
