package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/SueMuBai/nebula/internal/model"
)

type loginResponse struct {
	envelope
	Token    string `json:"token"`
	UserID   int64  `json:"userId"`
	Nickname string `json:"nickname"`
	Avatar   string `json:"avatar,omitempty"`
}

// Login exchanges credentials for a session token and the user profile.
func (c *Client) Login(ctx context.Context, phone, password string) (string, model.User, error) {
	var resp loginResponse
	body := map[string]string{"phone": phone, "password": password}
	if err := c.do(ctx, http.MethodPost, "/user/login", body, &resp); err != nil {
		return "", model.User{}, err
	}
	if !resp.Success {
		return "", model.User{}, resp.reject()
	}
	user := model.User{
		ID:       resp.UserID,
		Phone:    phone,
		Nickname: resp.Nickname,
		Avatar:   resp.Avatar,
	}
	return resp.Token, user, nil
}

// Register creates an account; the caller logs in afterwards.
func (c *Client) Register(ctx context.Context, phone, password, nickname string) error {
	var resp envelope
	body := map[string]string{"phone": phone, "password": password, "nickname": nickname}
	if err := c.do(ctx, http.MethodPost, "/user/register", body, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return resp.reject()
	}
	return nil
}

// Logout invalidates the session token server-side.
func (c *Client) Logout(ctx context.Context) error {
	var resp envelope
	if err := c.do(ctx, http.MethodPost, "/user/logout", nil, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return resp.reject()
	}
	return nil
}

type profileResponse struct {
	envelope
	User model.UserPublic `json:"user"`
}

// Profile fetches another user's public profile by id.
func (c *Client) Profile(ctx context.Context, userID int64) (model.UserPublic, error) {
	var resp profileResponse
	path := fmt.Sprintf("/user/profile?userId=%d", userID)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return model.UserPublic{}, err
	}
	if !resp.Success {
		return model.UserPublic{}, resp.reject()
	}
	return resp.User, nil
}
