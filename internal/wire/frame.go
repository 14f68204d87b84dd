// Package wire defines the frame format exchanged over the persistent
// channel. Frames are flat JSON objects tagged with a "type" discriminator,
// matching what the server produces and consumes.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/SueMuBai/nebula/internal/model"
)

type Type string

const (
	TypeText                 Type = "text"
	TypeVoice                Type = "voice"
	TypeImg                  Type = "img"
	TypeDeliveryConfirmation Type = "delivery_confirmation"
	TypeError                Type = "error"
)

// Content reports whether t carries a conversation message payload.
func (t Type) Content() bool {
	return t == TypeText || t == TypeVoice || t == TypeImg
}

// Kind maps a content frame type to its message kind.
func (t Type) Kind() model.Kind {
	return model.Kind(t)
}

// Chat scope for content frames: the server routes on this.
const (
	ChatPrivate = 0
	ChatGroup   = 1
)

// ErrMalformed marks an inbound frame that could not be decoded.
// Malformed frames are dropped by the consumer, never fatal.
var ErrMalformed = errors.New("malformed frame")

// Frame is one unit on the persistent channel. Field population depends
// on Type: content frames carry from/to/content/timestamp, confirmations
// carry success plus the echoed message id, error frames carry message.
type Frame struct {
	Type      Type   `json:"type"`
	MessageID string `json:"message_id,omitempty"`
	From      int64  `json:"from,omitempty"`
	To        int64  `json:"to,omitempty"`
	Content   string `json:"content,omitempty"`
	ChatType  int    `json:"messageType"`
	Timestamp int64  `json:"timestamp,omitempty"`
	Success   *bool  `json:"success,omitempty"`
	Message   string `json:"message,omitempty"`
}

// Decode parses a raw channel payload. A frame without a type is treated
// as malformed: there is nothing to route on.
func Decode(raw []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if f.Type == "" {
		return Frame{}, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	return f, nil
}

// Time converts the frame's epoch-millisecond timestamp.
func (f Frame) Time() time.Time {
	return time.UnixMilli(f.Timestamp)
}

// Delivered reports the confirmation outcome; absent success is negative.
func (f Frame) Delivered() bool {
	return f.Success != nil && *f.Success
}

// ContentFrame builds an outbound content frame from an optimistic message.
func ContentFrame(m model.Message, chatType int) Frame {
	return Frame{
		Type:      Type(m.Kind),
		MessageID: m.ID,
		To:        m.To,
		Content:   m.Content,
		ChatType:  chatType,
		Timestamp: m.Timestamp.UnixMilli(),
	}
}

// AsMessage converts an inbound content frame into a conversation entry.
// Inbound messages are delivered by definition.
func (f Frame) AsMessage() model.Message {
	return model.Message{
		ID:        f.MessageID,
		From:      f.From,
		To:        f.To,
		Kind:      f.Type.Kind(),
		Content:   f.Content,
		Timestamp: f.Time(),
		Status:    model.StatusDelivered,
	}
}
