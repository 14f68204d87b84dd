package model

import "time"

type Kind string

const (
	KindText  Kind = "text"
	KindVoice Kind = "voice"
	KindImg   Kind = "img"
)

// Valid reports whether k is one of the content kinds carried over the wire.
func (k Kind) Valid() bool {
	switch k {
	case KindText, KindVoice, KindImg:
		return true
	}
	return false
}

type DeliveryStatus string

const (
	StatusPending   DeliveryStatus = "pending"
	StatusDelivered DeliveryStatus = "delivered"
	StatusFailed    DeliveryStatus = "failed"
)

// Message is one entry in a conversation log. ID is the logical identity
// assigned at send time and echoed back in delivery confirmations; it is
// the primary dedup key between an optimistic entry and its server echo.
type Message struct {
	ID        string         `json:"id,omitempty"`
	From      int64          `json:"from"`
	To        int64          `json:"to"`
	Kind      Kind           `json:"kind"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Status    DeliveryStatus `json:"status"`
}
