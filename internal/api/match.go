package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/SueMuBai/nebula/internal/model"
)

type matchRandomResponse struct {
	envelope
	MatchedUser *model.UserPublic `json:"matchedUser"`
}

// RequestMatch asks the pairing service for a candidate. A nil candidate
// with a nil error is the expected no-match-available outcome.
func (c *Client) RequestMatch(ctx context.Context) (*model.UserPublic, error) {
	var resp matchRandomResponse
	if err := c.do(ctx, http.MethodPost, "/match/random", nil, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, resp.reject()
	}
	return resp.MatchedUser, nil
}

type matchConfirmResponse struct {
	envelope
	Pending bool `json:"pending"`
}

// ConfirmMatch confirms a pairing with userID. The server distinguishes
// the two outcomes explicitly: pending (waiting for the counterpart) or
// active (the handshake is complete).
func (c *Client) ConfirmMatch(ctx context.Context, userID int64) (pending bool, err error) {
	var resp matchConfirmResponse
	path := fmt.Sprintf("/match/confirm/%d", userID)
	if err := c.do(ctx, http.MethodPost, path, nil, &resp); err != nil {
		return false, err
	}
	if !resp.Success {
		return false, resp.reject()
	}
	return resp.Pending, nil
}

// ExtendMatch renews an active pairing's 24-hour window.
func (c *Client) ExtendMatch(ctx context.Context, userID int64) error {
	var resp envelope
	path := fmt.Sprintf("/match/extend/%d", userID)
	if err := c.do(ctx, http.MethodPost, path, nil, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return resp.reject()
	}
	return nil
}

type activeMatch struct {
	UserID   int64  `json:"userId"`
	Nickname string `json:"nickname"`
	Avatar   string `json:"avatar,omitempty"`
	// TimeLeft is the remaining validity in milliseconds.
	TimeLeft int64 `json:"timeLeft"`
}

type activeMatchesResponse struct {
	envelope
	Matches []activeMatch `json:"matches"`
}

// ActiveMatches returns the server's authoritative set of live pairings.
// Expiry timestamps are reconstructed from the remaining time.
func (c *Client) ActiveMatches(ctx context.Context, now time.Time) ([]model.MatchSession, error) {
	var resp activeMatchesResponse
	if err := c.do(ctx, http.MethodGet, "/match/active", nil, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, resp.reject()
	}
	out := make([]model.MatchSession, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		out = append(out, model.MatchSession{
			UserID:    m.UserID,
			Nickname:  m.Nickname,
			Avatar:    m.Avatar,
			Status:    model.MatchActive,
			ExpiresAt: now.Add(time.Duration(m.TimeLeft) * time.Millisecond),
		})
	}
	return out, nil
}
