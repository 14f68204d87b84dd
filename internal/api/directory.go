package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/SueMuBai/nebula/internal/model"
)

// Directory lookups are plain id-keyed fetches with no client-side state.

type friendsResponse struct {
	envelope
	Friends []model.UserPublic `json:"friends"`
}

// Friends lists the current user's confirmed friends.
func (c *Client) Friends(ctx context.Context) ([]model.UserPublic, error) {
	var resp friendsResponse
	if err := c.do(ctx, http.MethodGet, "/friend/list", nil, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, resp.reject()
	}
	return resp.Friends, nil
}

// FriendRequest is a pending inbound friend request.
type FriendRequest struct {
	FromUserID int64  `json:"fromUserId"`
	Nickname   string `json:"nickname"`
	Avatar     string `json:"avatar,omitempty"`
	CreatedAt  int64  `json:"createdAt"`
}

type friendRequestsResponse struct {
	envelope
	Requests []FriendRequest `json:"requests"`
}

// FriendRequests lists pending inbound requests.
func (c *Client) FriendRequests(ctx context.Context) ([]FriendRequest, error) {
	var resp friendRequestsResponse
	if err := c.do(ctx, http.MethodGet, "/friend/requests", nil, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, resp.reject()
	}
	return resp.Requests, nil
}

// SendFriendRequest asks userID for friendship.
func (c *Client) SendFriendRequest(ctx context.Context, userID int64) error {
	var resp envelope
	path := fmt.Sprintf("/friend/request/%d", userID)
	if err := c.do(ctx, http.MethodPost, path, nil, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return resp.reject()
	}
	return nil
}

// ApproveFriendRequest accepts or rejects a pending request from userID.
func (c *Client) ApproveFriendRequest(ctx context.Context, userID int64, accept bool) error {
	var resp envelope
	body := map[string]any{"fromUserId": userID, "accept": accept}
	if err := c.do(ctx, http.MethodPost, "/friend/approve", body, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return resp.reject()
	}
	return nil
}

type searchResponse struct {
	envelope
	Users []model.UserPublic `json:"users"`
}

// SearchUsers finds users by nickname or phone fragment.
func (c *Client) SearchUsers(ctx context.Context, query string) ([]model.UserPublic, error) {
	var resp searchResponse
	path := "/user/search?q=" + url.QueryEscape(query)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, resp.reject()
	}
	return resp.Users, nil
}

// Group is a group chat the user belongs to.
type Group struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Avatar      string `json:"avatar,omitempty"`
	MemberCount int    `json:"memberCount,omitempty"`
}

type groupsResponse struct {
	envelope
	Groups []Group `json:"groups"`
}

// Groups lists the current user's group chats.
func (c *Client) Groups(ctx context.Context) ([]Group, error) {
	var resp groupsResponse
	if err := c.do(ctx, http.MethodGet, "/group/list", nil, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, resp.reject()
	}
	return resp.Groups, nil
}

type groupMembersResponse struct {
	envelope
	Members []model.UserPublic `json:"members"`
}

// GroupMembers lists the members of one group.
func (c *Client) GroupMembers(ctx context.Context, groupID int64) ([]model.UserPublic, error) {
	var resp groupMembersResponse
	path := fmt.Sprintf("/group/members?groupId=%d", groupID)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, resp.reject()
	}
	return resp.Members, nil
}
