package model

import "time"

type ConversationType string

const (
	ConversationDirect ConversationType = "direct"
	ConversationGroup  ConversationType = "group"
	ConversationMatch  ConversationType = "match"
)

// Summary is the list-view state of a conversation: who, what was said
// last, when, and how many inbound messages have not been read.
// It is updated atomically with the conversation log.
type Summary struct {
	ContactID       int64            `json:"contact_id"`
	Type            ConversationType `json:"type"`
	LastMessage     string           `json:"last_message"`
	LastMessageTime time.Time        `json:"last_message_time"`
	Unread          int              `json:"unread"`
}
