package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/SueMuBai/nebula/internal/model"
)

// historyMessage is the server's row shape for archived messages.
type historyMessage struct {
	ID        int64  `json:"id"`
	MessageID string `json:"message_id,omitempty"`
	Sender    int64  `json:"sender"`
	Receiver  int64  `json:"receiver"`
	Content   string `json:"content"`
	Status    int    `json:"status"`
	Timestamp int64  `json:"timestamp"`
}

func (h historyMessage) toModel() model.Message {
	id := h.MessageID
	if id == "" {
		// Older rows predate client-assigned ids; the numeric row id
		// still gives a stable identity for display.
		id = fmt.Sprintf("row-%d", h.ID)
	}
	return model.Message{
		ID:        id,
		From:      h.Sender,
		To:        h.Receiver,
		Kind:      model.KindText,
		Content:   h.Content,
		Timestamp: time.UnixMilli(h.Timestamp),
		Status:    model.StatusDelivered,
	}
}

type historyResponse struct {
	envelope
	Messages []historyMessage `json:"messages"`
}

// History fetches one page of archived messages for a conversation,
// returned by the server in descending chronological order.
func (c *Client) History(ctx context.Context, contactID int64, limit, offset int) ([]model.Message, error) {
	var resp historyResponse
	path := fmt.Sprintf("/chat/history?contactId=%d&limit=%d&offset=%d", contactID, limit, offset)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, resp.reject()
	}
	out := make([]model.Message, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		out = append(out, m.toModel())
	}
	return out, nil
}

type recentChat struct {
	ContactID       int64  `json:"contactId"`
	LastMessage     string `json:"lastMessage"`
	LastMessageTime int64  `json:"lastMessageTime"`
	Unread          int    `json:"unread,omitempty"`
}

type recentResponse struct {
	envelope
	Chats []recentChat `json:"chats"`
}

// RecentChats returns the server's view of conversation summaries,
// most recent first.
func (c *Client) RecentChats(ctx context.Context) ([]model.Summary, error) {
	var resp recentResponse
	if err := c.do(ctx, http.MethodGet, "/chat/recent", nil, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, resp.reject()
	}
	out := make([]model.Summary, 0, len(resp.Chats))
	for _, ch := range resp.Chats {
		out = append(out, model.Summary{
			ContactID:       ch.ContactID,
			Type:            model.ConversationDirect,
			LastMessage:     ch.LastMessage,
			LastMessageTime: time.UnixMilli(ch.LastMessageTime),
			Unread:          ch.Unread,
		})
	}
	return out, nil
}

// MarkRead acknowledges a conversation's inbound messages. Best-effort:
// callers log failures rather than surfacing them.
func (c *Client) MarkRead(ctx context.Context, fromUserID int64) error {
	var resp envelope
	body := map[string]int64{"fromUserId": fromUserID}
	if err := c.do(ctx, http.MethodPost, "/chat/read", body, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return resp.reject()
	}
	return nil
}
