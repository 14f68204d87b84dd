// Package chat keeps the client's view of every conversation: an ordered
// message log plus a summary (last message, time, unread count) that are
// always updated together. It reconciles optimistic local sends, server
// confirmations and inbound pushes into a single consistent view.
package chat

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/SueMuBai/nebula/internal/logger"
	"github.com/SueMuBai/nebula/internal/model"
	"github.com/SueMuBai/nebula/internal/wire"
	"github.com/google/uuid"
)

// Sender transmits frames over the persistent channel.
type Sender interface {
	Send(wire.Frame) error
}

// History is the REST collaborator surface the store needs.
type History interface {
	History(ctx context.Context, contactID int64, limit, offset int) ([]model.Message, error)
	MarkRead(ctx context.Context, fromUserID int64) error
	RecentChats(ctx context.Context) ([]model.Summary, error)
}

const collaboratorTimeout = 5 * time.Second

// Conversation is one counterpart's log and summary. Owned by the store;
// accessors return copies.
type Conversation struct {
	ID       int64
	Type     model.ConversationType
	Messages []model.Message
	Summary  model.Summary
}

// Store is the conversation state store. A single mutex covers log and
// summary so no observer ever sees one updated without the other.
type Store struct {
	selfID   int64
	sender   Sender
	history  History
	pageSize int

	now   func() time.Time
	newID func() string

	mu            sync.RWMutex
	conversations map[int64]*Conversation
	// openID is the conversation currently displayed; 0 means none.
	// Inbound messages are appended to the log only while their
	// conversation is open; summaries update regardless.
	openID int64
}

// New builds a store for the authenticated user.
func New(selfID int64, sender Sender, history History, pageSize int) *Store {
	if pageSize <= 0 {
		pageSize = 50
	}
	return &Store{
		selfID:        selfID,
		sender:        sender,
		history:       history,
		pageSize:      pageSize,
		now:           time.Now,
		newID:         uuid.NewString,
		conversations: make(map[int64]*Conversation),
	}
}

// Open marks a conversation as displayed and clears its unread count.
func (s *Store) Open(conversationID int64, typ model.ConversationType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv := s.ensureLocked(conversationID, typ)
	s.openID = conversationID
	conv.Summary.Unread = 0
}

// CloseConversation returns the store to the no-conversation-open state.
func (s *Store) CloseConversation() {
	s.mu.Lock()
	s.openID = 0
	s.mu.Unlock()
}

// OpenID returns the currently displayed conversation id, 0 when none.
func (s *Store) OpenID() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.openID
}

// SendLocal appends an optimistic pending message and requests its
// transmission. The call returns immediately; if transmission fails
// synchronously the entry is marked failed but retained so the user can
// see and retry it.
func (s *Store) SendLocal(to int64, content string, kind model.Kind, chatType int) (model.Message, error) {
	if !kind.Valid() {
		return model.Message{}, fmt.Errorf("invalid message kind %q", kind)
	}

	msg := model.Message{
		ID:        s.newID(),
		From:      s.selfID,
		To:        to,
		Kind:      kind,
		Content:   content,
		Timestamp: s.now(),
		Status:    model.StatusPending,
	}

	typ := model.ConversationDirect
	if chatType == wire.ChatGroup {
		typ = model.ConversationGroup
	}

	s.mu.Lock()
	conv := s.ensureLocked(to, typ)
	conv.Messages = append(conv.Messages, msg)
	s.updateSummaryLocked(conv, msg, false)
	s.mu.Unlock()

	if err := s.sender.Send(wire.ContentFrame(msg, chatType)); err != nil {
		s.setStatus(to, msg.ID, model.StatusFailed)
		msg.Status = model.StatusFailed
		return msg, fmt.Errorf("send message: %w", err)
	}
	return msg, nil
}

// ReceiveInbound merges a pushed message into its conversation. The log
// grows only while that conversation is open; the summary and unread
// count update unconditionally. A push that matches a pending optimistic
// entry is treated as the server's echo and resolves that entry instead
// of appending a duplicate.
func (s *Store) ReceiveInbound(conversationID int64, m model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conv, ok := s.conversations[conversationID]; ok && m.From == s.selfID {
		if s.resolveEchoLocked(conv, m) {
			return
		}
	}

	typ := model.ConversationDirect
	if conversationID != m.From {
		typ = model.ConversationGroup
	}
	conv := s.ensureLocked(conversationID, typ)
	if s.openID == conversationID {
		conv.Messages = append(conv.Messages, m)
	}
	s.updateSummaryLocked(conv, m, s.openID != conversationID && m.From != s.selfID)
}

// Confirm resolves a pending message to delivered or failed. Correlation
// is by the echoed message id; confirmations without one fall back to the
// oldest pending entry, which matches the order sends went out.
func (s *Store) Confirm(messageID string, delivered bool, at time.Time) {
	status := model.StatusDelivered
	if !delivered {
		status = model.StatusFailed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if messageID != "" {
		for _, conv := range s.conversations {
			for i := range conv.Messages {
				if conv.Messages[i].ID == messageID && conv.Messages[i].Status == model.StatusPending {
					conv.Messages[i].Status = status
					return
				}
			}
		}
		logger.Debugf("chat: confirmation for unknown message %s", messageID)
		return
	}

	// No id echoed: resolve the oldest pending entry.
	var (
		oldest     *model.Message
		oldestTime time.Time
	)
	for _, conv := range s.conversations {
		for i := range conv.Messages {
			msg := &conv.Messages[i]
			if msg.Status != model.StatusPending || msg.From != s.selfID {
				continue
			}
			if oldest == nil || msg.Timestamp.Before(oldestTime) {
				oldest = msg
				oldestTime = msg.Timestamp
			}
		}
	}
	if oldest != nil {
		oldest.Status = status
	}
}

// LoadHistory fetches the newest page for a conversation and replaces the
// displayed log. See LoadHistoryPage.
func (s *Store) LoadHistory(ctx context.Context, conversationID int64) ([]model.Message, error) {
	return s.LoadHistoryPage(ctx, conversationID, s.pageSize, 0)
}

// LoadHistoryPage fetches one page of history (server order: newest
// first), normalizes it to ascending display order and replaces the
// current log. A non-empty page triggers a best-effort read receipt.
func (s *Store) LoadHistoryPage(ctx context.Context, conversationID int64, limit, offset int) ([]model.Message, error) {
	defer logger.DeferLogDuration("chat.LoadHistoryPage", time.Now())()

	page, err := s.history.History(ctx, conversationID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("load history for %d: %w", conversationID, err)
	}

	ascending := make([]model.Message, len(page))
	for i, m := range page {
		ascending[len(page)-1-i] = m
	}

	s.mu.Lock()
	conv := s.ensureLocked(conversationID, model.ConversationDirect)
	conv.Messages = ascending
	if n := len(ascending); n > 0 {
		last := ascending[n-1]
		conv.Summary.LastMessage = last.Content
		conv.Summary.LastMessageTime = last.Timestamp
	}
	conv.Summary.Unread = 0
	s.mu.Unlock()

	if len(ascending) > 0 {
		s.MarkRead(conversationID)
	}
	return ascending, nil
}

// MarkRead notifies the server that a conversation has been read.
// Fire-and-forget: failure is logged, never surfaced.
func (s *Store) MarkRead(conversationID int64) {
	s.mu.Lock()
	if conv, ok := s.conversations[conversationID]; ok {
		conv.Summary.Unread = 0
	}
	s.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), collaboratorTimeout)
		defer cancel()
		if err := s.history.MarkRead(ctx, conversationID); err != nil {
			logger.Errorf("chat mark read %d: %v", conversationID, err)
		}
	}()
}

// Refresh seeds conversation summaries from the server's recent-chat
// list. Local logs are untouched.
func (s *Store) Refresh(ctx context.Context) error {
	summaries, err := s.history.RecentChats(ctx)
	if err != nil {
		return fmt.Errorf("refresh recent chats: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sum := range summaries {
		conv := s.ensureLocked(sum.ContactID, sum.Type)
		// The server does not know what is displayed here; keep the
		// local unread count for the open conversation.
		if s.openID == sum.ContactID {
			sum.Unread = 0
		}
		conv.Summary = sum
	}
	return nil
}

// Messages returns a copy of a conversation's displayed log.
func (s *Store) Messages(conversationID int64) []model.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[conversationID]
	if !ok {
		return nil
	}
	out := make([]model.Message, len(conv.Messages))
	copy(out, conv.Messages)
	return out
}

// Summaries returns all conversation summaries, most recent first.
func (s *Store) Summaries() []model.Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Summary, 0, len(s.conversations))
	for _, conv := range s.conversations {
		out = append(out, conv.Summary)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastMessageTime.After(out[j].LastMessageTime)
	})
	return out
}

// InitConversation creates an empty conversation if none exists, used
// when a match session activates.
func (s *Store) InitConversation(conversationID int64, typ model.ConversationType) {
	s.mu.Lock()
	s.ensureLocked(conversationID, typ)
	s.mu.Unlock()
}

// RemoveConversation drops a conversation from the active set (expired
// match teardown).
func (s *Store) RemoveConversation(conversationID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conversations, conversationID)
	if s.openID == conversationID {
		s.openID = 0
	}
}

func (s *Store) ensureLocked(conversationID int64, typ model.ConversationType) *Conversation {
	conv, ok := s.conversations[conversationID]
	if !ok {
		conv = &Conversation{
			ID:      conversationID,
			Type:    typ,
			Summary: model.Summary{ContactID: conversationID, Type: typ},
		}
		s.conversations[conversationID] = conv
	}
	return conv
}

func (s *Store) updateSummaryLocked(conv *Conversation, m model.Message, countUnread bool) {
	conv.Summary.LastMessage = m.Content
	conv.Summary.LastMessageTime = m.Timestamp
	if countUnread {
		conv.Summary.Unread++
	}
}

// resolveEchoLocked flips a pending optimistic entry matching the echoed
// message to delivered. Match is by explicit id first, then by the
// (sender, recipient, content, timestamp) tuple.
func (s *Store) resolveEchoLocked(conv *Conversation, m model.Message) bool {
	key := dedupKey(m)
	for i := range conv.Messages {
		entry := &conv.Messages[i]
		if entry.Status != model.StatusPending {
			continue
		}
		if (m.ID != "" && entry.ID == m.ID) || dedupKey(*entry) == key {
			entry.Status = model.StatusDelivered
			return true
		}
	}
	return false
}

func dedupKey(m model.Message) string {
	return fmt.Sprintf("%d|%d|%s|%d", m.From, m.To, m.Content, m.Timestamp.UnixMilli())
}

func (s *Store) setStatus(conversationID int64, messageID string, status model.DeliveryStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[conversationID]
	if !ok {
		return
	}
	for i := range conv.Messages {
		if conv.Messages[i].ID == messageID {
			conv.Messages[i].Status = status
			return
		}
	}
}
