package storage

import (
	"context"

	"github.com/SueMuBai/nebula/internal/model"
)

// SessionState is the minimal state persisted between launches: the auth
// token and the owning profile. Its absence means no session is restored
// and the client starts unauthenticated.
type SessionState struct {
	Token string     `json:"token"`
	User  model.User `json:"user"`
}

// SessionStore persists SessionState.
// Implementations: redis.Client, memory.Client (dev runs without Redis).
type SessionStore interface {
	SaveSession(ctx context.Context, state SessionState) error
	LoadSession(ctx context.Context) (SessionState, bool, error)
	ClearSession(ctx context.Context) error
	Close() error
}
