// Package session ties the core together for one authenticated user: the
// REST client, the persistent channel, the conversation store and the
// match manager share a single explicit context that is constructed on
// successful authentication and torn down on logout, replacing any
// ambient session state.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/SueMuBai/nebula/internal/api"
	"github.com/SueMuBai/nebula/internal/chat"
	"github.com/SueMuBai/nebula/internal/config"
	"github.com/SueMuBai/nebula/internal/dispatch"
	"github.com/SueMuBai/nebula/internal/logger"
	"github.com/SueMuBai/nebula/internal/match"
	"github.com/SueMuBai/nebula/internal/model"
	"github.com/SueMuBai/nebula/internal/storage"
	"github.com/SueMuBai/nebula/internal/transport"
)

// Notifier receives user-visible notices (server error frames, remote
// rejections). The core never renders anything itself.
type Notifier interface {
	Notify(message string)
}

// LogNotifier is the default notifier; it only logs.
type LogNotifier struct{}

func (LogNotifier) Notify(message string) {
	logger.Infof("notice: %s", message)
}

// Session is the per-user context. Zero value is unusable; construct
// with New and authenticate with Login or Restore.
type Session struct {
	cfg      *config.Config
	api      *api.Client
	persist  storage.SessionStore
	channel  *transport.Channel
	notifier Notifier

	mu      sync.RWMutex
	user    model.User
	token   string
	chats   *chat.Store
	matches *match.Manager
}

// New builds an unauthenticated session.
func New(cfg *config.Config, persist storage.SessionStore, notifier Notifier) *Session {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	s := &Session{
		cfg:      cfg,
		persist:  persist,
		notifier: notifier,
	}
	s.api = api.New(cfg.APIBase(), s.Token)
	s.channel = transport.NewChannel(transport.Options{
		URL:            cfg.WSURL(),
		WriteTimeout:   cfg.WSWriteTimeout,
		PongTimeout:    cfg.WSPongTimeout,
		MaxMessageSize: cfg.WSMaxMessageSize,
		ReconnectDelay: cfg.ReconnectDelay,
	})
	return s
}

// Token returns the current auth credential; empty when unauthenticated.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// User returns the authenticated profile.
func (s *Session) User() (model.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user, s.token != ""
}

// Chats returns the conversation store; nil before authentication.
func (s *Session) Chats() *chat.Store {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chats
}

// Matches returns the match manager; nil before authentication.
func (s *Session) Matches() *match.Manager {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.matches
}

// Channel exposes the persistent channel for status observation.
func (s *Session) Channel() *transport.Channel {
	return s.channel
}

// API exposes the REST collaborator client for directory lookups and
// registration, calls with no core state of their own.
func (s *Session) API() *api.Client {
	return s.api
}

// Login exchanges credentials for a token, establishes the session
// context, persists it for the next launch and opens the channel.
func (s *Session) Login(ctx context.Context, phone, password string) error {
	defer logger.DeferLogDuration("session.Login", time.Now())()

	token, user, err := s.api.Login(ctx, phone, password)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	s.establish(token, user)

	if err := s.persist.SaveSession(ctx, storage.SessionState{Token: token, User: user}); err != nil {
		// The session still works for this run.
		logger.Errorf("session persist: %v", err)
	}
	if err := s.channel.Connect(ctx); err != nil {
		// The retry policy owns recovery from here.
		logger.Errorf("session connect: %v", err)
	}
	logger.Infof("logged in as %s (%d)", user.Nickname, user.ID)
	return nil
}

// Restore brings back the previous launch's session if one was
// persisted. Returns false when there is nothing to restore.
func (s *Session) Restore(ctx context.Context) (bool, error) {
	state, ok, err := s.persist.LoadSession(ctx)
	if err != nil {
		return false, fmt.Errorf("restore session: %w", err)
	}
	if !ok {
		return false, nil
	}
	s.establish(state.Token, state.User)
	if err := s.channel.Connect(ctx); err != nil {
		logger.Errorf("session connect: %v", err)
	}
	logger.Infof("restored session for %s (%d)", state.User.Nickname, state.User.ID)
	return true, nil
}

// establish builds the per-user components and wires the dispatcher as
// the channel's exclusive frame consumer.
func (s *Session) establish(token string, user model.User) {
	s.mu.Lock()
	s.token = token
	s.user = user
	s.chats = chat.New(user.ID, s.channel, s.api, s.cfg.HistoryPageSize)
	s.matches = match.New(s.api, s.chats)
	d := dispatch.New(s.chats, s.notifier)
	s.mu.Unlock()

	s.channel.SetToken(token)
	s.channel.OnFrame(d.Dispatch)
}

// Logout tears the context down: best-effort server logout, cleared
// persisted state, closed channel. The session returns to the
// unauthenticated state.
func (s *Session) Logout(ctx context.Context) {
	if err := s.api.Logout(ctx); err != nil {
		logger.Errorf("logout request: %v", err)
	}
	if err := s.persist.ClearSession(ctx); err != nil {
		logger.Errorf("clear persisted session: %v", err)
	}
	s.channel.Disconnect()

	s.mu.Lock()
	s.token = ""
	s.user = model.User{}
	s.chats = nil
	s.matches = nil
	s.mu.Unlock()
	logger.Info("logged out")
}
