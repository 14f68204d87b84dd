package memory

import (
	"context"
	"sync"

	"github.com/SueMuBai/nebula/internal/storage"
)

// Client keeps session state in memory only; nothing survives a restart.
// Used for dev runs without Redis and in tests.
type Client struct {
	mu    sync.RWMutex
	state storage.SessionState
	saved bool
}

func New() *Client {
	return &Client{}
}

func (c *Client) Close() error { return nil }

func (c *Client) SaveSession(ctx context.Context, state storage.SessionState) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = state
	c.saved = true
	return nil
}

func (c *Client) LoadSession(ctx context.Context) (storage.SessionState, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.saved || c.state.Token == "" {
		return storage.SessionState{}, false, nil
	}
	return c.state, true, nil
}

func (c *Client) ClearSession(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = storage.SessionState{}
	c.saved = false
	return nil
}
