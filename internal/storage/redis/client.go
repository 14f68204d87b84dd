package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/SueMuBai/nebula/internal/storage"
	"github.com/redis/go-redis/v9"
)

// Session state lives as long as the server-side session secret would.
const sessionTTL = 30 * 24 * time.Hour

const sessionKey = "nebula:session"

type Client struct {
	cli *redis.Client
}

func New(ctx context.Context, url string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{cli: cli}, nil
}

func (c *Client) Close() error {
	return c.cli.Close()
}

// SaveSession stores the token and profile under one key so restore is a
// single read.
func (c *Client) SaveSession(ctx context.Context, state storage.SessionState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal session state: %w", err)
	}
	return c.cli.Set(ctx, sessionKey, data, sessionTTL).Err()
}

// LoadSession returns the persisted state; ok is false when none exists.
func (c *Client) LoadSession(ctx context.Context) (storage.SessionState, bool, error) {
	raw, err := c.cli.Get(ctx, sessionKey).Bytes()
	if err == redis.Nil {
		return storage.SessionState{}, false, nil
	}
	if err != nil {
		return storage.SessionState{}, false, err
	}
	var state storage.SessionState
	if err := json.Unmarshal(raw, &state); err != nil {
		return storage.SessionState{}, false, fmt.Errorf("unmarshal session state: %w", err)
	}
	return state, state.Token != "", nil
}

// ClearSession removes the persisted state on logout.
func (c *Client) ClearSession(ctx context.Context) error {
	return c.cli.Del(ctx, sessionKey).Err()
}
